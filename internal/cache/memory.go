package cache

import (
	"sync"
	"time"
)

// entry is a cached value with its expiry
type entry struct {
	value      []byte
	expiration time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiration)
}

// MemoryCache is an in-memory byte cache with a fixed TTL per entry.
// A background janitor evicts expired entries until Stop is called.
type MemoryCache struct {
	items map[string]*entry
	mutex sync.RWMutex
	ttl   time.Duration
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates a new memory cache. Entries are swept every
// cleanupInterval; a non-positive interval disables the janitor.
func NewMemoryCache(ttl, cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		items: make(map[string]*entry),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go c.cleanupExpired(cleanupInterval)
	}

	return c
}

// Set stores a value under key
func (c *MemoryCache) Set(key string, value []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = &entry{
		value:      value,
		expiration: c.now().Add(c.ttl),
	}
}

// Get returns the value stored under key if present and not expired
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, exists := c.items[key]
	if !exists || e.expired(c.now()) {
		return nil, false
	}

	return e.value, true
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*entry)
}

// Size returns the number of stored items, including expired ones not yet swept
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// Stop terminates the janitor goroutine. Safe to call more than once.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// sweep removes every expired entry
func (c *MemoryCache) sweep() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	for key, e := range c.items {
		if e.expired(now) {
			delete(c.items, key)
		}
	}
}

func (c *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}
