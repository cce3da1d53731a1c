package guard

import (
	"sync"
	"time"
)

// Cache is a short-TTL read-through cache keyed by idempotency key. Expiry
// is lazy; Invalidate removes a key eagerly (used by mutations on success).
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	items map[string]cacheItem
}

type cacheItem struct {
	val       any
	expiresAt time.Time
}

// NewCache creates a cache with the given entry lifetime. ttl <= 0 uses
// 5 minutes. A nil clock uses time.Now.
func NewCache(ttl time.Duration, clock func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if clock == nil {
		clock = time.Now
	}
	return &Cache{ttl: ttl, now: clock, items: map[string]cacheItem{}}
}

// Get returns the value for key when present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().After(it.expiresAt) {
		delete(c.items, key)
		return nil, false
	}
	return it.val, true
}

// Set stores val under key with the cache TTL.
func (c *Cache) Set(key string, val any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem{val: val, expiresAt: c.now().Add(c.ttl)}
}

// Invalidate removes key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
