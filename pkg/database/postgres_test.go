package database

import (
	"testing"

	"bridge-relay/pkg/config"

	"github.com/stretchr/testify/assert"
)

func TestPostgresDSN(t *testing.T) {
	c := config.DBConfig{Host: "db", Port: "5432", User: "relay", Password: "secret", Name: "relay_db"}

	assert.Equal(t, "host=db user=relay password=secret dbname=relay_db port=5432 sslmode=disable TimeZone=UTC", PostgresDSN(c))
	assert.Equal(t, "postgres://relay:secret@db:5432/relay_db?sslmode=disable", PostgresURL(c))
}
