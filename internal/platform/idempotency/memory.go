package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

// MemoryStore keeps records in process. Used when no Redis address is configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok && now.Before(entry.expiresAt) {
		state, err := classify(entry.record, fingerprint)
		return state, entry.record, err
	}

	record := Record{Fingerprint: fingerprint, CreatedAt: now}
	s.entries[key] = memoryEntry{record: record, expiresAt: now.Add(ttlOrDefault(ttl))}
	return StateNew, record, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := now
	if entry, ok := s.entries[key]; ok {
		if entry.record.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		createdAt = entry.record.CreatedAt
	}
	s.entries[key] = memoryEntry{
		record:    completedRecord(fingerprint, resp, createdAt),
		expiresAt: now.Add(ttlOrDefault(ttl)),
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
