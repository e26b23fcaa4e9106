package dedupe

import (
	"sync"
	"time"
)

type entry struct {
	id string
	ts time.Time
}

// Cache remembers recently ingested article ids so that a redelivered feed
// message is not pushed through the pipeline twice. It is bounded both by
// capacity and by ttl.
type Cache struct {
	mu       sync.Mutex
	items    map[string]time.Time
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		items:    make(map[string]time.Time, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// IsSeen reports whether id was ingested within the ttl window.
func (c *Cache) IsSeen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, ok := c.items[id]
	return ok && c.now().Sub(ts) <= c.ttl
}

// MarkSeen records ids as ingested.
func (c *Cache) MarkSeen(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, id := range ids {
		c.items[id] = now
		c.order = append(c.order, entry{id: id, ts: now})
	}
	c.evict(now)
}

// Len returns the number of ids currently tracked.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) evict(now time.Time) {
	cutoff := now.Add(-c.ttl)
	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]
		// A re-marked id has a newer timestamp; only the latest entry owns it.
		if ts, ok := c.items[oldest.id]; ok && ts.Equal(oldest.ts) {
			delete(c.items, oldest.id)
		}
	}
}
