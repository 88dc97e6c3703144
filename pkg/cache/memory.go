package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryCache is a size-bounded LRU. Expired entries are dropped when read
// or when they reach the cold end of the list.
type MemoryCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List
	items   map[string]*list.Element
	now     func() time.Time
}

type memEntry struct {
	key     string
	data    []byte
	expires time.Time
}

type MemoryOption func(*MemoryCache)

// WithMemoryMaxSize caps the entry count. Values below one mean 1000.
func WithMemoryMaxSize(n int) MemoryOption {
	return func(c *MemoryCache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		maxSize: 1000,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	return getValue(ctx, c, key, dest)
}

func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return setValue(ctx, c, key, value, ttl)
}

func (c *MemoryCache) GetBytes(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	e := el.Value.(*memEntry)
	if c.expired(e) {
		c.remove(el)
		return nil, ErrCacheMiss
	}
	c.order.MoveToFront(el)
	return e.data, nil
}

func (c *MemoryCache) SetBytes(_ context.Context, key string, data []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}
	stored := append([]byte(nil), data...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*memEntry)
		e.data, e.expires = stored, expires
		c.order.MoveToFront(el)
		return nil
	}
	c.items[key] = c.order.PushFront(&memEntry{key: key, data: stored, expires: expires})
	for c.order.Len() > c.maxSize {
		c.remove(c.order.Back())
	}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if el, ok := c.items[k]; ok {
			c.remove(el)
		}
	}
	return nil
}

// Len counts stored entries, expired ones included until they are touched.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *MemoryCache) expired(e *memEntry) bool {
	return !e.expires.IsZero() && !c.now().Before(e.expires)
}

func (c *MemoryCache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*memEntry).key)
}
