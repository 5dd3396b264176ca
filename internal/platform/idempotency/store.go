package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

// State is the outcome of reserving a key.
type State int

const (
	// StateNew means the caller owns the key and should run the handler.
	StateNew State = iota
	// StateCompleted means a stored response should be replayed.
	StateCompleted
	// StatePending means another request still holds the key.
	StatePending
)

// Record is the stored reservation and, once completed, the response to replay.
type Record struct {
	Fingerprint string              `json:"fingerprint"`
	Completed   bool                `json:"completed"`
	Status      int                 `json:"status,omitempty"`
	Headers     map[string][]string `json:"headers,omitempty"`
	Body        []byte              `json:"body,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Response is the handler output captured for replay.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists reservations and completed responses. Implementations expire records after ttl.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// ErrFingerprintMismatch reports a key reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key already used for a different request")

func classify(record Record, fingerprint string) (State, error) {
	if record.Fingerprint != fingerprint {
		return StatePending, ErrFingerprintMismatch
	}
	if record.Completed {
		return StateCompleted, nil
	}
	return StatePending, nil
}

func completedRecord(fingerprint string, resp Response, createdAt time.Time) Record {
	return Record{
		Fingerprint: fingerprint,
		Completed:   true,
		Status:      resp.Status,
		Headers:     replayableHeaders(resp.Headers),
		Body:        append([]byte(nil), resp.Body...),
		CreatedAt:   createdAt,
	}
}

func replayableHeaders(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "transfer-encoding", "x-request-id":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return out
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
