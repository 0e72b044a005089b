// SPDX-License-Identifier: MIT

// Package cache stores resolved channel identifiers keyed by broadcaster channel keys.
package cache

import (
	"sync"
	"time"
)

// Cache provides thread-safe storage of resolved channel ids with optional expiry.
type Cache interface {
	// Get retrieves a channel id. Returns false if not found or expired.
	Get(key string) (uint32, bool)
	// Set stores a channel id. A ttl <= 0 keeps the entry until it is deleted.
	Set(key string, chanID uint32, ttl time.Duration)
	// Delete removes an entry.
	Delete(key string)
	// Clear removes all entries owned by this cache.
	Clear()
	// Stats returns cache statistics.
	Stats() CacheStats
}

// CacheStats holds cache performance metrics.
type CacheStats struct {
	Hits        int64 // Number of successful Get operations
	Misses      int64 // Number of failed Get operations (not found or expired)
	Sets        int64 // Number of Set operations
	Evictions   int64 // Number of expired entries cleaned up
	CurrentSize int   // Current number of cached entries
}

type entry struct {
	chanID     uint32
	expiration time.Time // zero means no expiry
}

func (e *entry) isExpired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

// MemoryCache is the process-local Cache implementation.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	stats   CacheStats
	janitor *janitor
	now     func() time.Time
}

// NewMemoryCache creates a new in-memory cache.
// A positive cleanupInterval starts a janitor goroutine that removes expired
// entries; call Stop to release it.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]*entry),
		now:     time.Now,
	}

	if cleanupInterval > 0 {
		c.janitor = &janitor{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
			done:     make(chan struct{}),
		}
		go c.janitor.run(c)
	}

	return c
}

// Get retrieves a channel id from the cache.
func (c *MemoryCache) Get(key string) (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || e.isExpired(c.now()) {
		c.stats.Misses++
		return 0, false
	}

	c.stats.Hits++
	return e.chanID, true
}

// Set stores a channel id in the cache.
func (c *MemoryCache) Set(key string, chanID uint32, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{chanID: chanID}
	if ttl > 0 {
		e.expiration = c.now().Add(ttl)
	}
	c.entries[key] = e
	c.stats.Sets++
}

// Delete removes an entry from the cache.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries from the cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

// deleteExpired removes all expired entries and returns how many were removed.
func (c *MemoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for key, e := range c.entries {
		if e.isExpired(now) {
			delete(c.entries, key)
			count++
		}
	}

	c.stats.Evictions += int64(count)
	return count
}

// Stop stops the background cleanup goroutine and waits for it to exit.
func (c *MemoryCache) Stop() {
	if c.janitor == nil {
		return
	}
	c.janitor.once.Do(func() { close(c.janitor.stop) })
	<-c.janitor.done
}

type janitor struct {
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func (j *janitor) run(c *MemoryCache) {
	defer close(j.done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}
