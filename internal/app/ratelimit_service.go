package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"trustcore/internal/domain"
)

// ErrUnknownPolicy indicates that no rate-limit policy has the given name.
var ErrUnknownPolicy = errors.New("unknown rate limit policy")

// Policy names.
const (
	PolicyAuth          = "auth"
	PolicyPasswordReset = "password_reset"
	PolicyAPI           = "api"
)

// RateLimitPolicy is a named limit over a sliding window. Capacity bounds
// how many distinct keys an in-process limiter tracks.
type RateLimitPolicy struct {
	Name     string
	Limit    int
	Interval time.Duration
	Capacity int
}

// DefaultPolicies returns the built-in policies.
func DefaultPolicies() []RateLimitPolicy {
	return []RateLimitPolicy{
		{Name: PolicyAuth, Limit: 5, Interval: time.Minute, Capacity: 1000},
		{Name: PolicyPasswordReset, Limit: 3, Interval: time.Hour, Capacity: 1000},
		{Name: PolicyAPI, Limit: 100, Interval: time.Minute, Capacity: 500},
	}
}

// LimiterFactory builds the limiter backing one policy.
type LimiterFactory func(p RateLimitPolicy) domain.RateLimiter

type boundPolicy struct {
	RateLimitPolicy
	limiter domain.RateLimiter
}

// RateLimitService routes checks to per-policy limiters.
type RateLimitService struct {
	policies map[string]boundPolicy
}

// NewRateLimitService creates one limiter per policy using factory.
func NewRateLimitService(policies []RateLimitPolicy, factory LimiterFactory) *RateLimitService {
	s := &RateLimitService{policies: make(map[string]boundPolicy, len(policies))}
	for _, p := range policies {
		s.policies[p.Name] = boundPolicy{RateLimitPolicy: p, limiter: factory(p)}
	}
	return s
}

// Check counts one request for key against the named policy.
func (s *RateLimitService) Check(ctx context.Context, policy, key string) (domain.RateLimitResult, error) {
	p, ok := s.policies[policy]
	if !ok {
		return domain.RateLimitResult{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
	return p.limiter.Check(ctx, p.Limit, key), nil
}

// Reset clears key under the named policy. It is an administrative action.
func (s *RateLimitService) Reset(ctx context.Context, policy, key string) error {
	p, ok := s.policies[policy]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
	return p.limiter.Reset(ctx, key)
}

// Policy returns the named policy.
func (s *RateLimitService) Policy(name string) (RateLimitPolicy, bool) {
	p, ok := s.policies[name]
	return p.RateLimitPolicy, ok
}

// IPKey builds the limiter key for a client address.
func IPKey(ip string) string {
	return "ip:" + strings.TrimSpace(ip)
}

// EmailKey builds the limiter key for an email address.
func EmailKey(email string) string {
	return "email:" + NormalizeEmail(email)
}

// AccountKey builds the limiter key for an account identifier.
func AccountKey(id string) string {
	return "account:" + strings.TrimSpace(id)
}
