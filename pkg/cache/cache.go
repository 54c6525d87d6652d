package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a size-bounded map whose entries carry their own expiry. It is
// safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	items      map[K]entry[V]
	maxEntries int
	now        func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// New starts a cache that sweeps expired entries every sweepEvery. A
// non-positive sweepEvery disables the background sweep; maxEntries <= 0
// means unbounded.
func New[K comparable, V any](maxEntries int, sweepEvery time.Duration) *Cache[K, V] {
	c := &Cache[K, V]{
		items:      make(map[K]entry[V]),
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if sweepEvery > 0 {
		go c.sweepLoop(sweepEvery)
	}
	return c
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// SetUntil stores value until expiresAt. When the cache is full, expired
// entries are dropped first, then the entry closest to expiry.
func (c *Cache[K, V]) SetUntil(key K, value V, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !now.Before(expiresAt) {
		delete(c.items, key)
		return
	}
	if _, exists := c.items[key]; !exists && c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		c.removeExpiredLocked(now)
		if len(c.items) >= c.maxEntries {
			c.evictSoonestLocked()
		}
	}
	c.items[key] = entry[V]{value: value, expiresAt: expiresAt}
}

func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.SetUntil(key, value, c.now().Add(ttl))
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len counts stored entries, including expired ones not yet swept.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// RemoveExpired drops expired entries and returns how many were removed.
func (c *Cache[K, V]) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeExpiredLocked(c.now())
}

func (c *Cache[K, V]) removeExpiredLocked(now time.Time) int {
	removed := 0
	for k, e := range c.items {
		if !now.Before(e.expiresAt) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

func (c *Cache[K, V]) evictSoonestLocked() {
	var (
		victim  K
		soonest time.Time
		found   bool
	)
	for k, e := range c.items {
		if !found || e.expiresAt.Before(soonest) {
			victim, soonest, found = k, e.expiresAt, true
		}
	}
	if found {
		delete(c.items, victim)
	}
}

func (c *Cache[K, V]) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.RemoveExpired()
		case <-c.stop:
			return
		}
	}
}

// Stop ends the background sweep. The cache stays usable.
func (c *Cache[K, V]) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
