package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultRedisPrefix = "abg:idempotency:"

// RedisStore shares reservations across API instances. Reservation uses SET NX so exactly one
// request wins a key; Redis expiry removes stale records.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: redis client is required")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	record := Record{Fingerprint: fingerprint, CreatedAt: now}
	payload, err := json.Marshal(record)
	if err != nil {
		return StatePending, Record{}, err
	}

	won, err := s.client.SetNX(ctx, s.prefix+key, payload, ttlOrDefault(ttl)).Result()
	if err != nil {
		return StatePending, Record{}, fmt.Errorf("idempotency: reserve: %w", err)
	}
	if won {
		return StateNew, record, nil
	}

	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; let the caller retry
		return StatePending, Record{}, nil
	}
	if err != nil {
		return StatePending, Record{}, fmt.Errorf("idempotency: load: %w", err)
	}
	var existing Record
	if err := json.Unmarshal(raw, &existing); err != nil {
		return StatePending, Record{}, fmt.Errorf("idempotency: decode: %w", err)
	}
	state, err := classify(existing, fingerprint)
	return state, existing, err
}

func (s *RedisStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	payload, err := json.Marshal(completedRecord(fingerprint, resp, now))
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, payload, ttlOrDefault(ttl)).Err(); err != nil {
		return fmt.Errorf("idempotency: complete: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}
