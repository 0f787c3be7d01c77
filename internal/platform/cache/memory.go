package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	payload []byte
	expires time.Time
}

// MemoryTableCache is a single-process cache for CACHE_DRIVER=memory and tests.
type MemoryTableCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	locks   map[string]time.Time
	now     func() time.Time
}

func NewMemoryTableCache() *MemoryTableCache {
	return &MemoryTableCache{
		entries: make(map[string]memoryEntry),
		locks:   make(map[string]time.Time),
		now:     time.Now,
	}
}

func (c *MemoryTableCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.payload...), true, nil
}

func (c *MemoryTableCache) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{payload: append([]byte(nil), payload...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *MemoryTableCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *MemoryTableCache) Lock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exp, held := c.locks[key]; held && c.now().Before(exp) {
		return func() {}, false, nil
	}
	token := c.now().Add(ttl)
	c.locks[key] = token
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.locks[key].Equal(token) {
			delete(c.locks, key)
		}
	}, true, nil
}

// Len reports the number of stored entries, expired or not.
func (c *MemoryTableCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
