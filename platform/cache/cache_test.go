package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:"), mr
}

func TestRedisStoreSetGetExpire(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "dash", []byte(`{"a":1}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, "dash")
	if err != nil || string(got) != `{"a":1}` {
		t.Fatalf("unexpected get %q %v", got, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "dash"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after ttl, got %v", err)
	}
}

func TestRedisStoreTakeIsSingleUse(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	_ = store.Set(ctx, "oauth:state", []byte("user-1"), 10*time.Minute)
	got, err := store.Take(ctx, "oauth:state")
	if err != nil || string(got) != "user-1" {
		t.Fatalf("unexpected take %q %v", got, err)
	}
	if _, err := store.Take(ctx, "oauth:state"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected second take to miss, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.Set(ctx, "k", []byte("v"), time.Minute)
	if _, err := store.Get(ctx, "k"); err != nil {
		t.Fatalf("expected hit, got %v", err)
	}

	now = now.Add(time.Minute)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss at expiry, got %v", err)
	}
}
