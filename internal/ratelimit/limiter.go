// ABOUTME: Sliding-window rate limiter for per-key admission control
// ABOUTME: Tracks request timestamps in memory; no persistence across restarts

package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// SlidingWindowLimiter admits up to limit requests per key within a rolling
// window. Each Allow call prunes timestamps that have aged out and then
// decides admission, so the window slides continuously rather than resetting
// on a fixed boundary.
type SlidingWindowLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	history map[string][]time.Time

	// now is replaceable for tests
	now func() time.Time
}

// New creates a limiter admitting limit requests per window.
func New(limit int, window time.Duration) (*SlidingWindowLimiter, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be at least 1, got %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %v", window)
	}
	return &SlidingWindowLimiter{
		limit:   limit,
		window:  window,
		history: make(map[string][]time.Time),
		now:     time.Now,
	}, nil
}

// Allow reports whether a request for key is admitted. Admitted requests are
// recorded; rejected ones are not, so a rejected caller does not push its own
// window further out. The check and the record happen under one lock.
func (l *SlidingWindowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.prune(key, now)

	if len(kept) >= l.limit {
		return false
	}

	l.history[key] = append(kept, now)
	return true
}

// Len returns the number of live (unexpired) recorded requests for key.
func (l *SlidingWindowLimiter) Len(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.prune(key, l.now())
	return len(kept)
}

// prune drops timestamps that have aged out of the window and updates the
// map entry. Caller must hold the lock. A timestamp exactly window old is
// expired: the boundary request no longer counts.
func (l *SlidingWindowLimiter) prune(key string, now time.Time) []time.Time {
	stamps := l.history[key]

	// Timestamps are appended in order, so find the first live one
	cutoff := 0
	for cutoff < len(stamps) && now.Sub(stamps[cutoff]) >= l.window {
		cutoff++
	}

	kept := stamps[cutoff:]
	if len(kept) == 0 {
		delete(l.history, key)
		return nil
	}
	if cutoff > 0 {
		l.history[key] = kept
	}
	return kept
}
