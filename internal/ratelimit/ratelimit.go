// Package ratelimit provides a Redis-backed fixed-window limiter. Counters
// live in Redis with an explicit TTL rather than process memory so the limit
// holds when multiple instances run against the same feeds.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts events per key within a fixed window.
type Limiter struct {
	rdb    *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// New creates a limiter. A nil Redis client disables limiting: every call
// to Allow succeeds.
func New(rdb *redis.Client, prefix string, limit int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, prefix: prefix, limit: int64(limit), window: window}
}

// Allow increments the counter for key and reports whether the event is
// within the limit for the current window. Redis failures fail open: the
// limiter never blocks work because the counter store is down.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}

	k := fmt.Sprintf("%s:%s", l.prefix, key)
	n, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return true, err
	}
	if n == 1 {
		_ = l.rdb.Expire(ctx, k, l.window).Err()
	}
	return n <= l.limit, nil
}
