// ABOUTME: Thread-safe generic TTL cache for memoizing computed results.
// ABOUTME: Expired entries are evicted lazily on read, or by an optional background janitor.

package cache

import (
	"sync"
	"time"
)

// entry stores a cached value and the wall-clock instant it expires.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache provides a thread-safe, TTL-based cache keyed by string. Entries are
// evicted lazily when read after expiry; with WithJanitor a background
// goroutine additionally sweeps expired entries so unread keys do not
// accumulate. The cache is unbounded in size.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration
	done    chan struct{}
	closed  bool

	// now is replaceable for tests
	now func() time.Time
}

// Option configures a Cache at construction time.
type Option func(interval *time.Duration)

// WithJanitor enables a background sweep of expired entries at the given
// interval.
func WithJanitor(interval time.Duration) Option {
	return func(dst *time.Duration) {
		*dst = interval
	}
}

// New creates a cache whose entries live for ttl after being set.
func New[V any](ttl time.Duration, opts ...Option) *Cache[V] {
	var janitorInterval time.Duration
	for _, opt := range opts {
		opt(&janitorInterval)
	}

	c := &Cache[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	if janitorInterval > 0 {
		go c.janitor(janitorInterval)
	}
	return c
}

// Get returns the cached value for key. A hit requires the entry to still be
// live; an expired entry is removed and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		// Lazy eviction. Re-check under the write lock in case a
		// concurrent Set refreshed the entry.
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Set stores a value for key, resetting its TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Delete removes a key from the cache.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Len returns the number of entries currently held, including any expired
// entries that have not yet been evicted.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// janitor runs in a background goroutine, periodically removing expired entries.
func (c *Cache[V]) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes all expired entries.
func (c *Cache[V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Close stops the background janitor if one is running. It is safe to call
// multiple times.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
