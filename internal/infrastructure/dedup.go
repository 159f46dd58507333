package infrastructure

import (
	"strings"
	"sync"
	"time"
)

// SeenCache answers "have I processed this webhook event before" for
// at-least-once deliveries. Entries expire after ttl (purged lazily on each
// check) and the cache is capacity-bounded: inserting at capacity evicts the
// single oldest-inserted entry. Eviction order is insertion order, not access
// order.
type SeenCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	order   []string // insertion order, oldest first
	ttl     time.Duration
	max     int
	now     func() time.Time
}

func NewSeenCache(ttl time.Duration, max int) *SeenCache {
	if max < 1 {
		max = 1
	}
	return &SeenCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		max:     max,
		now:     time.Now,
	}
}

// SeenKey builds the composite key for a webhook event.
func SeenKey(parts ...string) string {
	return strings.Join(parts, "|")
}

// Seen reports whether key was recorded within the TTL window. Unknown keys
// are recorded and return false.
func (c *SeenCache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.purge(now)

	if _, ok := c.entries[key]; ok {
		return true
	}

	if len(c.entries) >= c.max {
		c.evictOldest()
	}

	c.entries[key] = now
	c.order = append(c.order, key)
	return false
}

// Len returns the current entry count (after no purge; for tests/stats).
func (c *SeenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// purge drops entries older than ttl. Linear scan is fine at the cache sizes
// this runs at.
func (c *SeenCache) purge(now time.Time) {
	cutoff := now.Add(-c.ttl)
	kept := c.order[:0]
	for _, key := range c.order {
		ts, ok := c.entries[key]
		if !ok {
			continue
		}
		if ts.Before(cutoff) || ts.Equal(cutoff) {
			delete(c.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
}

func (c *SeenCache) evictOldest() {
	for len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.entries[oldest]; ok {
			delete(c.entries, oldest)
			return
		}
	}
}
