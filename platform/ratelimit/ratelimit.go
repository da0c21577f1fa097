// Package ratelimit provides fixed-window request counters keyed by client.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result describes a limiter decision.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts hits per key inside fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// RedisLimiter shares counters across API instances.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := l.now()
	windowStart := now.Truncate(window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, windowStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit incr: %w", err)
	}

	return decide(int(incr.Val()), limit, windowStart.Add(window).Sub(now)), nil
}

type window struct {
	start time.Time
	count int
}

// MemoryLimiter keeps counters in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryLimiter creates an in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*window), now: time.Now}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, size time.Duration) (Result, error) {
	now := l.now()
	start := now.Truncate(size)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !w.start.Equal(start) {
		w = &window{start: start}
		l.windows[key] = w
	}
	w.count++
	return decide(w.count, limit, start.Add(size).Sub(now)), nil
}

// Prune drops windows that ended before now.
func (l *MemoryLimiter) Prune(maxWindow time.Duration) {
	cutoff := l.now().Add(-maxWindow)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.windows {
		if w.start.Before(cutoff) {
			delete(l.windows, k)
		}
	}
}

func decide(count, limit int, untilReset time.Duration) Result {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	res := Result{Allowed: count <= limit, Remaining: remaining}
	if !res.Allowed {
		res.RetryAfter = untilReset
	}
	return res
}

var (
	_ Limiter = (*RedisLimiter)(nil)
	_ Limiter = (*MemoryLimiter)(nil)
)
