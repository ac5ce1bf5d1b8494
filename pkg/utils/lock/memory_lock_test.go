package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLock(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLock(time.Minute)

	ok, err := l.Acquire(ctx, "session_request:topic:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire(ctx, "session_request:topic:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "重复获取应失败")

	require.NoError(t, l.Release(ctx, "session_request:topic:1"))
	ok, _ = l.Acquire(ctx, "session_request:topic:1", time.Minute)
	assert.True(t, ok)
}

func TestMemoryLockExpires(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLock(time.Minute)

	ok, _ := l.Acquire(ctx, "k", 20*time.Millisecond)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	ok, _ = l.Acquire(ctx, "k", time.Minute)
	assert.True(t, ok, "过期后可以再次获取")
}
