// Package cache provides a small in-memory TTL cache for fetched page
// content. It lives and dies with the process; nothing is written to
// disk.
package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	data     []byte
	storedAt time.Time
}

// Cache maps URL hashes to page bodies with a fixed TTL.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration

	now func() time.Time
}

// New creates a Cache with the given TTL. A non-positive TTL disables
// caching entirely: Get always misses and Set is a no-op.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// key hashes the URL so arbitrarily long URLs stay cheap map keys.
func (c *Cache) key(url string) string {
	hash := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%x", hash)
}

// Get returns the cached body for url and true on a hit. Expired
// entries are dropped on access.
func (c *Cache) Get(url string) ([]byte, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	k := c.key(url)
	e, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, k)
		return nil, false
	}
	return e.data, true
}

// Set stores the body for url, replacing any previous entry.
func (c *Cache) Set(url string, data []byte) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(url)] = entry{data: data, storedAt: c.now()}
}

// Len reports the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
