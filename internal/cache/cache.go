// Package cache maps request fingerprints to previously computed provider
// results and enforces a time-to-live on every entry.
package cache

import (
	"sync"
	"time"

	"github.com/router-for-me/ModelGovernor/internal/models"
	"github.com/router-for-me/ModelGovernor/internal/scheduler"
)

// Cache is an in-memory TTL response cache. Entries past their TTL are
// treated as absent on lookup and removed wholesale by Sweep.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   scheduler.Clock
	entries map[string]models.CachedResult
}

// New constructs a Cache with the given TTL. A zero or negative TTL disables
// caching entirely: Lookup always misses and Store is a no-op.
func New(ttl time.Duration, clock scheduler.Clock) *Cache {
	if clock == nil {
		clock = scheduler.System()
	}
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]models.CachedResult),
	}
}

// Lookup returns the cached result for a fingerprint when present and within
// TTL. An expired entry is evicted lazily and reported as absent.
func (c *Cache) Lookup(fingerprint string) (models.CachedResult, bool) {
	if c == nil || c.ttl <= 0 || fingerprint == "" {
		return models.CachedResult{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()
	if !ok {
		return models.CachedResult{}, false
	}
	if c.clock.Now().Sub(entry.StoredAt) > c.ttl {
		c.mu.Lock()
		if current, still := c.entries[fingerprint]; still && current.StoredAt.Equal(entry.StoredAt) {
			delete(c.entries, fingerprint)
		}
		c.mu.Unlock()
		return models.CachedResult{}, false
	}
	return entry, true
}

// Store inserts or overwrites the entry for a fingerprint unconditionally.
func (c *Cache) Store(fingerprint string, result models.CachedResult) {
	if c == nil || c.ttl <= 0 || fingerprint == "" {
		return
	}
	if result.StoredAt.IsZero() {
		result.StoredAt = c.clock.Now()
	}
	c.mu.Lock()
	c.entries[fingerprint] = result
	c.mu.Unlock()
}

// Sweep removes all entries past TTL as of now and reports how many were
// evicted. It runs independently of the request path.
func (c *Cache) Sweep(now time.Time) int {
	if c == nil || c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for fingerprint, entry := range c.entries {
		if now.Sub(entry.StoredAt) > c.ttl {
			delete(c.entries, fingerprint)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of live entries, expired or not.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
