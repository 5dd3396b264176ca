package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 20 * time.Second
	defaultMaxOpenConns    = 20
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultPaymentProvider = "paymongo"
	defaultPayMongoBaseURL = "https://api.paymongo.com/v1"
	defaultGatewayTimeout  = 15 * time.Second
	defaultProofURLTTL     = 15 * time.Minute
	defaultCheckoutRate    = "30-M"
	defaultCallbackRate    = "120-M"
	defaultScheduleOffset  = 24 * time.Hour
	defaultLogLevel        = "info"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment   string
	LogLevel      string
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Payments      PaymentsConfig
	Notifications NotificationsConfig
	Storage       StorageConfig
	Auth          AuthConfig
	RateLimits    RateLimitConfig
	Delivery      DeliveryConfig
	Secrets       SecretsConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the MySQL DSN and pool sizing.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig backs the idempotency store. An empty Addr selects the in-memory store.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

// PaymentsConfig selects the gateway and carries its credentials.
type PaymentsConfig struct {
	Provider              string
	PayMongoSecretKey     string
	PayMongoBaseURL       string
	PayMongoWebhookSecret string
	StripeAPIKey          string
	SuccessURL            string
	CancelURL             string
	GatewayTimeout        time.Duration
}

// NotificationsConfig points at the Pub/Sub topic for order confirmations. An empty topic logs only.
type NotificationsConfig struct {
	ProjectID string
	Topic     string
	// EventsTopic receives order status events; empty disables them.
	EventsTopic string
}

// StorageConfig controls proof-of-delivery download links.
type StorageConfig struct {
	ProofBucket   string
	SignerEmail   string
	SignerKeyFile string
	ProofURLTTL   time.Duration
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// RateLimitConfig uses the limiter formatted rate syntax, e.g. "120-M".
type RateLimitConfig struct {
	Checkout string
	Callback string
}

type DeliveryConfig struct {
	ScheduleOffset time.Duration
}

type SecretsConfig struct {
	ProjectID string
}

// SecretResolver resolves sm:// references to their secret values.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists every missing or invalid field.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes a failed sm:// lookup.
type SecretError struct {
	Field string
	Ref   string
	Err   error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("config: resolve %s (%s): %v", e.Field, e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path. An empty path skips the file.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that win over the OS environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles configuration from defaults, the .env file, the OS environment and WithEnvMap,
// in increasing precedence, then resolves sm:// references and validates required fields.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	lookup, err := newLookup(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: strings.ToLower(lookup.str("ABG_ENV", "local")),
		LogLevel:    lookup.str("LOG_LEVEL", defaultLogLevel),
		Server: ServerConfig{
			Port:            lookup.str("ABG_SERVER_PORT", defaultPort),
			ReadTimeout:     lookup.duration("ABG_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    lookup.duration("ABG_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     lookup.duration("ABG_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: lookup.duration("ABG_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Database: DatabaseConfig{
			DSN:             lookup.str("ABG_DB_DSN", ""),
			MaxOpenConns:    lookup.integer("ABG_DB_MAX_OPEN_CONNS", defaultMaxOpenConns),
			MaxIdleConns:    lookup.integer("ABG_DB_MAX_IDLE_CONNS", defaultMaxIdleConns),
			ConnMaxLifetime: lookup.duration("ABG_DB_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
			AutoMigrate:     lookup.boolean("ABG_DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Addr:           lookup.str("ABG_REDIS_ADDR", ""),
			Password:       lookup.str("ABG_REDIS_PASSWORD", ""),
			DB:             lookup.integer("ABG_REDIS_DB", 0),
			IdempotencyTTL: lookup.duration("ABG_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
		Payments: PaymentsConfig{
			Provider:              strings.ToLower(lookup.str("ABG_PAYMENT_PROVIDER", defaultPaymentProvider)),
			PayMongoSecretKey:     lookup.str("ABG_PAYMONGO_SECRET_KEY", ""),
			PayMongoBaseURL:       lookup.str("ABG_PAYMONGO_BASE_URL", defaultPayMongoBaseURL),
			PayMongoWebhookSecret: lookup.str("ABG_PAYMONGO_WEBHOOK_SECRET", ""),
			StripeAPIKey:          lookup.str("ABG_STRIPE_API_KEY", ""),
			SuccessURL:            lookup.str("ABG_PAYMENT_SUCCESS_URL", ""),
			CancelURL:             lookup.str("ABG_PAYMENT_CANCEL_URL", ""),
			GatewayTimeout:        lookup.duration("ABG_PAYMENT_GATEWAY_TIMEOUT", defaultGatewayTimeout),
		},
		Notifications: NotificationsConfig{
			ProjectID:   lookup.str("ABG_PUBSUB_PROJECT_ID", ""),
			Topic:       lookup.str("ABG_PUBSUB_CONFIRMATION_TOPIC", ""),
			EventsTopic: lookup.str("ABG_PUBSUB_ORDER_EVENTS_TOPIC", ""),
		},
		Storage: StorageConfig{
			ProofBucket:   lookup.str("ABG_STORAGE_PROOF_BUCKET", ""),
			SignerEmail:   lookup.str("ABG_STORAGE_SIGNER_EMAIL", ""),
			SignerKeyFile: lookup.str("ABG_STORAGE_SIGNER_KEY_FILE", ""),
			ProofURLTTL:   lookup.duration("ABG_STORAGE_PROOF_URL_TTL", defaultProofURLTTL),
		},
		Auth: AuthConfig{
			JWTSecret: lookup.str("ABG_AUTH_JWT_SECRET", ""),
			Issuer:    lookup.str("ABG_AUTH_ISSUER", ""),
		},
		RateLimits: RateLimitConfig{
			Checkout: lookup.str("ABG_RATELIMIT_CHECKOUT", defaultCheckoutRate),
			Callback: lookup.str("ABG_RATELIMIT_CALLBACK", defaultCallbackRate),
		},
		Delivery: DeliveryConfig{
			ScheduleOffset: lookup.duration("ABG_DELIVERY_SCHEDULE_OFFSET", defaultScheduleOffset),
		},
		Secrets: SecretsConfig{
			ProjectID: lookup.str("ABG_SECRETS_PROJECT_ID", ""),
		},
	}

	secretFields := []struct {
		name  string
		field *string
	}{
		{"Database.DSN", &cfg.Database.DSN},
		{"Redis.Password", &cfg.Redis.Password},
		{"Payments.PayMongoSecretKey", &cfg.Payments.PayMongoSecretKey},
		{"Payments.PayMongoWebhookSecret", &cfg.Payments.PayMongoWebhookSecret},
		{"Payments.StripeAPIKey", &cfg.Payments.StripeAPIKey},
		{"Auth.JWTSecret", &cfg.Auth.JWTSecret},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			var secretErr *SecretError
			if errors.As(err, &secretErr) {
				secretErr.Field = target.name
			}
			return Config{}, err
		}
		*target.field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsSecretReference reports whether value points at Secret Manager.
func IsSecretReference(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), "sm://")
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !IsSecretReference(value) {
		return value, nil
	}
	ref := strings.TrimSpace(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Database.DSN == "" {
		missing = append(missing, "Database.DSN")
	}
	if cfg.Auth.JWTSecret == "" {
		missing = append(missing, "Auth.JWTSecret")
	}
	switch cfg.Payments.Provider {
	case "paymongo":
		if cfg.Payments.PayMongoSecretKey == "" {
			missing = append(missing, "Payments.PayMongoSecretKey")
		}
	case "stripe":
		if cfg.Payments.StripeAPIKey == "" {
			missing = append(missing, "Payments.StripeAPIKey")
		}
	default:
		missing = append(missing, "Payments.Provider")
	}
	if cfg.Payments.SuccessURL == "" {
		missing = append(missing, "Payments.SuccessURL")
	}
	if cfg.Payments.CancelURL == "" {
		missing = append(missing, "Payments.CancelURL")
	}
	if cfg.Notifications.Topic != "" && cfg.Notifications.ProjectID == "" {
		missing = append(missing, "Notifications.ProjectID")
	}
	if cfg.Redis.IdempotencyTTL <= 0 {
		missing = append(missing, "Redis.IdempotencyTTL")
	}
	if cfg.Delivery.ScheduleOffset <= 0 {
		missing = append(missing, "Delivery.ScheduleOffset")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

type envLookup func(string) (string, bool)

func newLookup(options loaderOptions) (envLookup, error) {
	var dotEnv map[string]string
	if options.envFile != "" {
		values, err := godotenv.Read(options.envFile)
		switch {
		case err == nil:
			dotEnv = values
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", options.envFile, err)
		}
	}

	return func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	}, nil
}

func (l envLookup) str(key, fallback string) string {
	if value, ok := l(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func (l envLookup) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(l.str(key, "")); err == nil {
		return d
	}
	return fallback
}

func (l envLookup) integer(key string, fallback int) int {
	if parsed, err := strconv.Atoi(l.str(key, "")); err == nil {
		return parsed
	}
	return fallback
}

func (l envLookup) boolean(key string, fallback bool) bool {
	switch strings.ToLower(l.str(key, "")) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return fallback
}
