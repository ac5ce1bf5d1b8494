package lock

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLock 单实例部署时的进程内实现
type MemoryLock struct {
	c *gocache.Cache
}

func NewMemoryLock(cleanupInterval time.Duration) *MemoryLock {
	return &MemoryLock{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (l *MemoryLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	// Add 在 key 已存在 (且未过期) 时返回 error，正好是 SETNX 语义
	if err := l.c.Add(key, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (l *MemoryLock) Release(ctx context.Context, key string) error {
	l.c.Delete(key)
	return nil
}
