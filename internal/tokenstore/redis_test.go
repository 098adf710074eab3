package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestStore creates a Redis store under a test profile and removes its
// key before and after the test. Tests that call this helper require a
// running Redis on localhost:6379 and are skipped otherwise.
func newTestStore(t *testing.T) *Redis {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available: %v", err)
	}
	client.Close()

	config := DefaultRedisConfig()
	config.Profile = "test_" + t.Name()
	config.TTL = time.Hour
	store, err := NewRedis(config)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	store.client.Del(ctx, store.Key())
	t.Cleanup(func() {
		store.client.Del(ctx, store.Key())
		store.Close()
	})
	return store
}

func TestRedis_LoadMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedis_SaveLoadClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	saved := time.Date(2026, 10, 18, 21, 0, 0, 0, time.UTC)

	if err := store.Save(ctx, Tokens{Access: "a1", Refresh: "r1", SavedAt: saved}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Access != "a1" || got.Refresh != "r1" {
		t.Errorf("unexpected tokens: %+v", got)
	}
	if !got.SavedAt.Equal(saved) {
		t.Errorf("expected saved_at %v, got %v", saved, got.SavedAt)
	}

	ttl, err := store.TTL(ctx)
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("expected ttl within (0, 1h], got %v", ttl)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestRedis_ProfilesAreSeparate(t *testing.T) {
	store := newTestStore(t)
	if store.Key() != KeyPrefix+"test_"+t.Name() {
		t.Errorf("unexpected key %q", store.Key())
	}
}
