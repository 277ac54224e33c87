package cache

import (
	"sync"
	"time"
)

type entry struct {
	key string
	ts  time.Time
}

type item[V any] struct {
	value V
	ts    time.Time
}

// Cache keeps a fixed number of recently stored values, each valid for ttl.
// It is safe for concurrent use.
type Cache[V any] struct {
	mu       sync.Mutex
	items    map[string]item[V]
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// New creates a cache with the provided capacity and ttl.
func New[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache[V]{
		items:    make(map[string]item[V], capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the value stored under key if it is still inside the ttl window.
func (c *Cache[V]) Get(key string) (V, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok && now.Sub(it.ts) <= c.ttl {
		return it.value, true
	}
	var zero V
	return zero, false
}

// Contains reports whether key is present and fresh.
func (c *Cache[V]) Contains(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Put stores value under key, evicting expired and overflowing entries oldest first.
func (c *Cache[V]) Put(key string, value V) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item[V]{value: value, ts: now}
	c.order = append(c.order, entry{key: key, ts: now})
	c.compact(now)
}

// Len returns the number of stored entries, including ones not yet compacted.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[V]) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		if it, ok := c.items[oldest.key]; ok && it.ts.Equal(oldest.ts) {
			delete(c.items, oldest.key)
		}
	}
}
