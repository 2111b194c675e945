package domain

import (
	"context"
	"time"
)

// RateLimitResult is the outcome of a single limiter check.
type RateLimitResult struct {
	Success   bool      `json:"success"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"-"`
	// Error is set when the backing store could not be consulted. The
	// result is still usable.
	Error string `json:"error,omitempty"`
}

// RateLimiter counts requests per identity key over a sliding window.
// Implementations must be safe for concurrent use.
type RateLimiter interface {
	Check(ctx context.Context, limit int, key string) RateLimitResult
	Reset(ctx context.Context, key string) error
}
