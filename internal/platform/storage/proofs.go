package storage

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const defaultProofURLTTL = 15 * time.Minute

var (
	// ErrInvalidObject reports a proof path that cannot name an object in the bucket.
	ErrInvalidObject = errors.New("storage: invalid object path")
	errNoSigner      = errors.New("storage: signer is required")
	errNoBucket      = errors.New("storage: bucket name is required")
)

// ProofLinker turns stored proof-of-delivery paths into V4 signed GET URLs.
type ProofLinker struct {
	bucket string
	signer Signer
	ttl    time.Duration
	now    func() time.Time
}

type ProofLinkerOption func(*ProofLinker)

func WithURLTTL(ttl time.Duration) ProofLinkerOption {
	return func(l *ProofLinker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) ProofLinkerOption {
	return func(l *ProofLinker) {
		if now != nil {
			l.now = now
		}
	}
}

func NewProofLinker(bucket string, signer Signer, opts ...ProofLinkerOption) (*ProofLinker, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errNoBucket
	}
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	l := &ProofLinker{bucket: bucket, signer: signer, ttl: defaultProofURLTTL, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// ProofURL signs a download link for the stored path. Paths may be bare object names or
// gs://<bucket>/<object> URIs for the configured bucket.
func (l *ProofLinker) ProofURL(ctx context.Context, stored string) (string, time.Time, error) {
	object, err := l.objectName(stored)
	if err != nil {
		return "", time.Time{}, err
	}
	expires := l.now().Add(l.ttl)
	url, err := storage.SignedURL(l.bucket, object, &storage.SignedURLOptions{
		GoogleAccessID: l.signer.Email(),
		SignBytes: func(payload []byte) ([]byte, error) {
			return l.signer.SignBytes(ctx, payload)
		},
		Method:  http.MethodGet,
		Expires: expires,
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return url, expires, nil
}

func (l *ProofLinker) objectName(stored string) (string, error) {
	name := strings.TrimSpace(stored)
	if rest, ok := strings.CutPrefix(name, "gs://"); ok {
		bucket, object, found := strings.Cut(rest, "/")
		if !found || bucket != l.bucket {
			return "", ErrInvalidObject
		}
		name = object
	}
	name = strings.TrimLeft(name, "/")
	if name == "" || strings.Contains(name, "..") || path.Clean(name) != name {
		return "", ErrInvalidObject
	}
	return name, nil
}
