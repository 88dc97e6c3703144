package cache

import (
	"context"
	"time"
)

// LayeredCache reads through a process-local LRU to a shared Store. Writes
// go to the shared store first; the local copy lives at most l1TTL.
type LayeredCache struct {
	l1    *MemoryCache
	l2    Store
	l1TTL time.Duration
}

type LayeredOption func(*layeredConfig)

type layeredConfig struct {
	size int
	ttl  time.Duration
}

func WithLayeredMemorySize(n int) LayeredOption {
	return func(c *layeredConfig) { c.size = n }
}

// WithLayeredMemoryTTL bounds how stale a local copy may get.
func WithLayeredMemoryTTL(d time.Duration) LayeredOption {
	return func(c *layeredConfig) {
		if d > 0 {
			c.ttl = d
		}
	}
}

func NewLayeredCache(shared Store, opts ...LayeredOption) *LayeredCache {
	cfg := layeredConfig{size: 1000, ttl: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &LayeredCache{
		l1:    NewMemoryCache(WithMemoryMaxSize(cfg.size)),
		l2:    shared,
		l1TTL: cfg.ttl,
	}
}

func (c *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	return getValue(ctx, c, key, dest)
}

func (c *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return setValue(ctx, c, key, value, ttl)
}

func (c *LayeredCache) GetBytes(ctx context.Context, key string) ([]byte, error) {
	if b, err := c.l1.GetBytes(ctx, key); err == nil {
		return b, nil
	}
	b, err := c.l2.GetBytes(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = c.l1.SetBytes(ctx, key, b, c.l1TTL)
	return b, nil
}

func (c *LayeredCache) SetBytes(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.l2.SetBytes(ctx, key, data, ttl); err != nil {
		// a stale local copy must not outlive a failed write
		_ = c.l1.Delete(ctx, key)
		return err
	}
	local := c.l1TTL
	if ttl > 0 && ttl < local {
		local = ttl
	}
	return c.l1.SetBytes(ctx, key, data, local)
}

func (c *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = c.l1.Delete(ctx, keys...)
	return c.l2.Delete(ctx, keys...)
}
