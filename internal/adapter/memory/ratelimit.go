package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"trustcore/internal/domain"
)

var _ domain.RateLimiter = (*SlidingWindow)(nil)

// SlidingWindow is an in-process sliding-window limiter. Keys live in a
// bounded LRU whose entries also expire once a full interval passes without
// a touch, so memory stays bounded by Capacity either way.
type SlidingWindow struct {
	mu       sync.Mutex
	cache    *expirable.LRU[string, []time.Time]
	interval time.Duration
	now      func() time.Time
}

// NewSlidingWindow creates a limiter holding at most capacity distinct keys.
func NewSlidingWindow(interval time.Duration, capacity int) *SlidingWindow {
	if capacity <= 0 {
		capacity = 500
	}
	return &SlidingWindow{
		cache:    expirable.NewLRU[string, []time.Time](capacity, nil, interval),
		interval: interval,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	l.now = now
	return l
}

// Check admits the request when fewer than limit requests were admitted for
// key during the trailing interval. Rejected requests are not recorded.
func (l *SlidingWindow) Check(_ context.Context, limit int, key string) domain.RateLimitResult {
	now := l.now()
	cutoff := now.Add(-l.interval)

	l.mu.Lock()
	defer l.mu.Unlock()

	stamps, _ := l.cache.Get(key)
	kept := make([]time.Time, 0, len(stamps)+1)
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		reset := now.Add(l.interval)
		if len(kept) > 0 {
			reset = kept[0].Add(l.interval)
		}
		return domain.RateLimitResult{Success: false, Limit: limit, Remaining: 0, Reset: reset}
	}

	kept = append(kept, now)
	l.cache.Add(key, kept)
	return domain.RateLimitResult{
		Success:   true,
		Limit:     limit,
		Remaining: limit - len(kept),
		Reset:     now.Add(l.interval),
	}
}

// Reset forgets every recorded request for key.
func (l *SlidingWindow) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Remove(key)
	return nil
}

// Len returns the number of keys currently tracked.
func (l *SlidingWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache.Len()
}
