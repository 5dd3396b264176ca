package idempotency

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("ABG_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ABG_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	store, err := NewRedisStore(client, "abg:test:"+ulid.Make().String()+":")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	return store
}

func TestRedisStoreLifecycle(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	state, _, err := store.Reserve(ctx, "checkout", "fp", now, time.Minute)
	if err != nil || state != StateNew {
		t.Fatalf("expected new reservation, got %v %v", state, err)
	}
	state, _, err = store.Reserve(ctx, "checkout", "fp", now, time.Minute)
	if err != nil || state != StatePending {
		t.Fatalf("expected pending, got %v %v", state, err)
	}
	if _, _, err := store.Reserve(ctx, "checkout", "other", now, time.Minute); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected fingerprint mismatch, got %v", err)
	}

	resp := Response{Status: http.StatusCreated, Headers: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{"order_id":5}`)}
	if err := store.Complete(ctx, "checkout", "fp", resp, now, time.Minute); err != nil {
		t.Fatalf("complete: %v", err)
	}
	state, record, err := store.Reserve(ctx, "checkout", "fp", now, time.Minute)
	if err != nil || state != StateCompleted {
		t.Fatalf("expected completed, got %v %v", state, err)
	}
	if record.Status != http.StatusCreated || string(record.Body) != `{"order_id":5}` {
		t.Fatalf("unexpected record %+v", record)
	}

	if err := store.Release(ctx, "checkout"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if state, _, _ := store.Reserve(ctx, "checkout", "fp", now, time.Minute); state != StateNew {
		t.Fatalf("expected new after release, got %v", state)
	}
}

func TestNewRedisStoreRequiresClient(t *testing.T) {
	if _, err := NewRedisStore(nil, ""); err == nil {
		t.Fatal("expected error for nil client")
	}
}
