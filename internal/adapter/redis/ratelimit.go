// Package redis implements a sliding-window limiter shared by every process
// pointed at the same Redis.
package redis

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"trustcore/internal/domain"
)

var _ domain.RateLimiter = (*SlidingWindow)(nil)

// slidingWindowScript prunes, counts and conditionally records in one step.
// KEYS[1] window key; ARGV now(ms), interval(ms), limit, member.
// Returns {admitted, count, oldest(ms)}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - interval)
local count = redis.call('ZCARD', key)
local admitted = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, interval)
	count = count + 1
	admitted = 1
end

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
	oldest = tonumber(first[2])
end
return {admitted, count, oldest}
`)

// NewClient connects to Redis and pings it. url may be a redis:// URL or a
// bare host:port.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	var opt *redis.Options
	if strings.Contains(url, "://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: url}
	}
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// SlidingWindow keeps one sorted set of admitted timestamps per key.
// Memory is bounded by the per-key PEXPIRE; the server's maxmemory policy
// bounds the key count.
type SlidingWindow struct {
	client   redis.UniversalClient
	prefix   string
	interval time.Duration
	now      func() time.Time
}

// NewSlidingWindow creates a limiter whose keys are namespaced by prefix.
func NewSlidingWindow(client redis.UniversalClient, prefix string, interval time.Duration) *SlidingWindow {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &SlidingWindow{client: client, prefix: prefix, interval: interval, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (l *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	l.now = now
	return l
}

func (l *SlidingWindow) key(k string) string {
	return l.prefix + ":" + k
}

// Check applies the sliding window. When Redis is unreachable the request is
// admitted and the returned result carries the failure in Error.
func (l *SlidingWindow) Check(ctx context.Context, limit int, key string) domain.RateLimitResult {
	now := l.now()
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	raw, err := slidingWindowScript.Run(ctx, l.client, []string{l.key(key)},
		nowMs, l.interval.Milliseconds(), limit, member).Int64Slice()
	if err != nil || len(raw) != 3 {
		if err == nil {
			err = fmt.Errorf("unexpected script reply of length %d", len(raw))
		}
		log.Printf("ratelimit: redis check failed for %s: %v", l.prefix, err)
		return domain.RateLimitResult{
			Success:   true,
			Limit:     limit,
			Remaining: limit,
			Reset:     now.Add(l.interval),
			Error:     err.Error(),
		}
	}

	admitted, count, oldest := raw[0] == 1, int(raw[1]), raw[2]
	if !admitted {
		return domain.RateLimitResult{
			Success:   false,
			Limit:     limit,
			Remaining: 0,
			Reset:     time.UnixMilli(oldest).Add(l.interval),
		}
	}
	return domain.RateLimitResult{
		Success:   true,
		Limit:     limit,
		Remaining: limit - count,
		Reset:     now.Add(l.interval),
	}
}

// Reset deletes the key's window.
func (l *SlidingWindow) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("ratelimit reset: %w", err)
	}
	return nil
}
