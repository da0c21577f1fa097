package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLimiterFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewRedisLimiter(client, "rl:")
	now := time.Date(2026, 1, 1, 12, 0, 5, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res, err := limiter.Allow(ctx, "bulk-tag:user-1", 10, time.Minute)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	res, err := limiter.Allow(ctx, "bulk-tag:user-1", 10, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if res.Allowed {
		t.Fatalf("11th request should be rejected")
	}
	if res.RetryAfter != 55*time.Second {
		t.Fatalf("expected 55s retry-after, got %s", res.RetryAfter)
	}

	now = now.Add(time.Minute)
	res, _ = limiter.Allow(ctx, "bulk-tag:user-1", 10, time.Minute)
	if !res.Allowed {
		t.Fatalf("new window should reset the counter")
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if res, _ := limiter.Allow(ctx, "a", 2, time.Minute); !res.Allowed {
			t.Fatalf("expected key a allowed")
		}
	}
	if res, _ := limiter.Allow(ctx, "a", 2, time.Minute); res.Allowed {
		t.Fatalf("expected key a limited")
	}
	if res, _ := limiter.Allow(ctx, "b", 2, time.Minute); !res.Allowed || res.Remaining != 1 {
		t.Fatalf("expected key b allowed with 1 remaining, got %+v", res)
	}
}
