package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	scheme              = "sm://"
	defaultVersion      = "latest"
	defaultFallbackPath = ".secrets.local"
	meterName           = "github.com/RLASH18/abg-prime-v2/internal/platform/secrets"
)

var (
	// ErrInvalidReference reports a malformed sm:// reference.
	ErrInvalidReference = errors.New("secrets: invalid reference")
	// ErrNotFound reports a secret missing from both Secret Manager and the local fallback file.
	ErrNotFound = errors.New("secrets: secret not found")
)

var clientFactory = func(ctx context.Context, opts ...option.ClientOption) (secretClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Reference is a parsed sm://[project/]secret[#version] value.
type Reference struct {
	Project string
	Secret  string
	Version string
}

// ParseReference parses ref, defaulting the version to latest.
func ParseReference(ref string) (Reference, error) {
	trimmed := strings.TrimSpace(ref)
	if !strings.HasPrefix(trimmed, scheme) {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	body := strings.TrimPrefix(trimmed, scheme)
	version := defaultVersion
	if idx := strings.LastIndex(body, "#"); idx >= 0 {
		version = strings.TrimSpace(body[idx+1:])
		body = body[:idx]
	}

	parts := strings.Split(strings.Trim(body, "/"), "/")
	var out Reference
	switch len(parts) {
	case 1:
		out.Secret = parts[0]
	case 2:
		out.Project, out.Secret = parts[0], parts[1]
	default:
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	out.Secret = strings.TrimSpace(out.Secret)
	out.Version = version
	if out.Secret == "" || out.Version == "" {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return out, nil
}

func (r Reference) resource(defaultProject string) string {
	project := r.Project
	if project == "" {
		project = defaultProject
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, r.Secret, r.Version)
}

// Resolver resolves sm:// references through Secret Manager, caching values for the life of the
// process. A local dotenv-style fallback file serves development machines without GCP access.
type Resolver struct {
	client     secretClient
	ownsClient bool
	project    string
	logger     *zap.Logger

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.RWMutex
	cache map[string]string

	cacheHits metric.Int64Counter
}

type resolverConfig struct {
	client       secretClient
	clientOpts   []option.ClientOption
	project      string
	logger       *zap.Logger
	fallbackPath string
	meter        metric.Meter
}

// Option customises Resolver construction.
type Option func(*resolverConfig)

// WithProject sets the project used by references without one.
func WithProject(projectID string) Option {
	return func(cfg *resolverConfig) { cfg.project = strings.TrimSpace(projectID) }
}

func WithLogger(logger *zap.Logger) Option {
	return func(cfg *resolverConfig) { cfg.logger = logger }
}

// WithFallbackFile overrides the local fallback file; empty disables it.
func WithFallbackFile(path string) Option {
	return func(cfg *resolverConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

func WithMeter(meter metric.Meter) Option {
	return func(cfg *resolverConfig) { cfg.meter = meter }
}

// WithClient injects a Secret Manager client, mainly for tests.
func WithClient(client secretClient) Option {
	return func(cfg *resolverConfig) { cfg.client = client }
}

func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *resolverConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// NewResolver builds a Resolver. When the Secret Manager client cannot be created the resolver runs
// on the fallback file alone.
func NewResolver(ctx context.Context, opts ...Option) (*Resolver, error) {
	cfg := resolverConfig{fallbackPath: defaultFallbackPath}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.meter == nil {
		cfg.meter = otel.GetMeterProvider().Meter(meterName)
	}

	r := &Resolver{
		client:       cfg.client,
		project:      cfg.project,
		logger:       cfg.logger,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]string),
	}

	hits, err := cfg.meter.Int64Counter("secrets.resolve.cache_hits",
		metric.WithDescription("Count of secret resolutions served from cache"))
	if err != nil {
		cfg.logger.Warn("secrets: unable to register cache hit metric", zap.Error(err))
	} else {
		r.cacheHits = hits
	}

	if r.client == nil && r.project != "" {
		client, err := clientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager unavailable, using fallback file only", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}
	return r, nil
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	if r.ownsClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ResolveSecret implements config.SecretResolver.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	parsed, err := ParseReference(ref)
	if err != nil {
		return "", err
	}
	key := parsed.resource(r.project)

	r.mu.RLock()
	value, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		if r.cacheHits != nil {
			r.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", parsed.Secret)))
		}
		return value, nil
	}

	value, err = r.fetch(ctx, parsed, key)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[key] = value
	r.mu.Unlock()
	return value, nil
}

func (r *Resolver) fetch(ctx context.Context, ref Reference, resource string) (string, error) {
	if r.client != nil && (ref.Project != "" || r.project != "") {
		resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
		if err == nil {
			if resp.GetPayload() == nil {
				return "", fmt.Errorf("secrets: empty payload for %s", resource)
			}
			return string(resp.GetPayload().GetData()), nil
		}
		if !fallbackEligible(err) {
			return "", fmt.Errorf("secrets: access %s: %w", resource, err)
		}
		r.logger.Debug("secrets: falling back to local file", zap.String("secret", ref.Secret), zap.Error(err))
	}

	if value, ok := r.lookupFallback(ref.Secret); ok {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, ref.Secret)
}

func (r *Resolver) lookupFallback(secret string) (string, bool) {
	r.fallbackOnce.Do(func() {
		if r.fallbackPath == "" {
			return
		}
		values, err := godotenv.Read(r.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				r.logger.Warn("secrets: unable to read fallback file", zap.String("path", r.fallbackPath), zap.Error(err))
			}
			return
		}
		r.fallback = values
	})
	value, ok := r.fallback[secret]
	return value, ok
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.NotFound, codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable:
		return true
	default:
		return false
	}
}
