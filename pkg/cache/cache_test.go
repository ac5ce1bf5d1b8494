package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Hash  string `json:"hash"`
	Value string `json:"value"`
}

func TestMemoryCacheCopiesValues(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, time.Minute)

	in := []item{{Hash: "0x01", Value: "1"}}
	require.NoError(t, c.Set(ctx, "k", in, time.Minute))
	in[0].Value = "changed"

	var out []item
	require.NoError(t, c.Get(ctx, "k", &out))
	assert.Equal(t, "1", out[0].Value)

	require.NoError(t, c.Delete(ctx, "k"))
	assert.ErrorIs(t, c.Get(ctx, "k", &out), ErrMiss)
}

func TestMultiLevelCacheBackfillsLocal(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryCache(time.Minute, time.Minute)
	remote := NewMemoryCache(time.Minute, time.Minute)
	c := NewMultiLevelCache(local, remote)

	require.NoError(t, remote.Set(ctx, "k", item{Hash: "0x02"}, time.Minute))

	var out item
	require.NoError(t, c.Get(ctx, "k", &out))
	assert.Equal(t, "0x02", out.Hash)

	// L2 命中后已回写 L1
	var cached item
	require.NoError(t, local.Get(ctx, "k", &cached))
	assert.Equal(t, "0x02", cached.Hash)

	require.NoError(t, c.Delete(ctx, "k"))
	assert.ErrorIs(t, c.Get(ctx, "k", &out), ErrMiss)
}
