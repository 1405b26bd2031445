package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealer_coach_backend/internal/coaching/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestRedisStoreRoundTripAndTTL(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()

	s := &Session{
		ID:         "abc",
		OperatorID: "op-1",
		Draft:      "hello",
		State:      StateReview,
		Targets:    []domain.TargetDecision{{AgentID: "D100", Reason: "r"}},
	}
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL(sessionKey("abc")); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}

	got, err := store.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Draft != "hello" || got.State != StateReview || len(got.Targets) != 1 {
		t.Fatalf("unexpected session %+v", got)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := store.Get(ctx, "abc"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expired session should be gone, got %v", err)
	}
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	ctx := context.Background()

	if err := store.Save(ctx, &Session{ID: "x", State: StateReview}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "x"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	s := &Session{ID: "m", Draft: "a"}
	_ = store.Save(ctx, s)
	s.Draft = "changed"

	got, err := store.Get(ctx, "m")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Draft != "a" {
		t.Fatalf("store must keep its own copy, got %q", got.Draft)
	}
}
