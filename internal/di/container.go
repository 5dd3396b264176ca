package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/RLASH18/abg-prime-v2/internal/handlers"
	"github.com/RLASH18/abg-prime-v2/internal/payments"
	"github.com/RLASH18/abg-prime-v2/internal/platform/auth"
	"github.com/RLASH18/abg-prime-v2/internal/platform/config"
	"github.com/RLASH18/abg-prime-v2/internal/platform/database"
	"github.com/RLASH18/abg-prime-v2/internal/platform/idempotency"
	"github.com/RLASH18/abg-prime-v2/internal/platform/jobs"
	"github.com/RLASH18/abg-prime-v2/internal/platform/notifications"
	"github.com/RLASH18/abg-prime-v2/internal/platform/observability"
	"github.com/RLASH18/abg-prime-v2/internal/platform/storage"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
	"github.com/RLASH18/abg-prime-v2/internal/repositories/mysql"
	"github.com/RLASH18/abg-prime-v2/internal/services"
)

const idempotencyKeyPrefix = "abg:idem:"

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Stock        services.StockLedger
	Cart         services.CartService
	Checkout     services.CheckoutService
	Orders       services.OrderService
	Billing      services.BillingService
	Deliveries   services.DeliveryService
	DamagedItems services.DamagedItemService
	Inventory    services.InventoryService
}

// Infrastructure holds the adapters services and handlers are built on.
type Infrastructure struct {
	Auth        *auth.Authenticator
	Payments    *payments.Manager
	Webhooks    *payments.WebhookVerifier
	Idempotency idempotency.Store
	Notifier    services.Notifier
	Events      services.OrderEventPublisher
	Proofs      services.ProofLinker
	Health      repositories.HealthRepository
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Logger       *zap.Logger
	Repositories repositories.Registry
	Infra        Infrastructure
	Services     Services
	BuildInfo    handlers.BuildInfo

	closers []func(context.Context) error
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	registry   repositories.Registry
	redis      redis.UniversalClient
	httpClient payments.HTTPDoer
	buildInfo  handlers.BuildInfo
	clock      func() time.Time
}

// WithRegistry supplies a ready registry and skips opening MySQL.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *containerOptions) {
		o.registry = reg
	}
}

// WithRedisClient supplies the redis client used for idempotency instead of dialing Redis.Addr.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *containerOptions) {
		o.redis = client
	}
}

// WithPaymentHTTPClient overrides the client used for PayMongo calls.
func WithPaymentHTTPClient(client payments.HTTPDoer) Option {
	return func(o *containerOptions) {
		o.httpClient = client
	}
}

func WithBuildInfo(info handlers.BuildInfo) Option {
	return func(o *containerOptions) {
		o.buildInfo = info
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies. Partially built resources are released when a
// later step fails.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *Container, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	c := &Container{Config: cfg, Logger: logger, BuildInfo: options.buildInfo}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	if err = c.buildStores(ctx, options); err != nil {
		return nil, err
	}
	if err = c.buildInfrastructure(ctx, options); err != nil {
		return nil, err
	}
	if err = c.buildServices(options.clock); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) buildStores(ctx context.Context, options containerOptions) error {
	var checks []repositories.DependencyCheck

	redisClient := options.redis
	if redisClient == nil && strings.TrimSpace(c.Config.Redis.Addr) != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		redisClient = client
	}
	if redisClient != nil {
		store, err := idempotency.NewRedisStore(redisClient, idempotencyKeyPrefix)
		if err != nil {
			return fmt.Errorf("di: idempotency store: %w", err)
		}
		c.Infra.Idempotency = store
		checks = append(checks, repositories.DependencyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	} else {
		c.Infra.Idempotency = idempotency.NewMemoryStore()
	}

	if options.registry != nil {
		c.Repositories = options.registry
		c.Infra.Health = options.registry.Health()
		return nil
	}

	db, err := database.Open(ctx, database.Options{
		DSN:             c.Config.Database.DSN,
		MaxOpenConns:    c.Config.Database.MaxOpenConns,
		MaxIdleConns:    c.Config.Database.MaxIdleConns,
		ConnMaxLifetime: c.Config.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	checks = append([]repositories.DependencyCheck{{
		Name:  "mysql",
		Check: func(ctx context.Context) error { return database.Ping(ctx, db) },
	}}, checks...)

	health, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyClock(options.clock))
	if err != nil {
		_ = db.Close()
		return err
	}
	reg, err := mysql.NewRegistry(db, health)
	if err != nil {
		_ = db.Close()
		return err
	}
	c.Repositories = reg
	c.Infra.Health = health
	return nil
}

func (c *Container) buildInfrastructure(ctx context.Context, options containerOptions) error {
	authn, err := auth.NewAuthenticator(c.Config.Auth.JWTSecret,
		auth.WithIssuer(c.Config.Auth.Issuer),
		auth.WithClock(options.clock),
	)
	if err != nil {
		return fmt.Errorf("di: authenticator: %w", err)
	}
	c.Infra.Auth = authn

	manager, err := buildPaymentManager(c.Config.Payments, c.Logger, options.httpClient)
	if err != nil {
		return err
	}
	c.Infra.Payments = manager

	if secret := strings.TrimSpace(c.Config.Payments.PayMongoWebhookSecret); secret != "" {
		verifier, err := payments.NewWebhookVerifier(secret, 0, options.clock)
		if err != nil {
			return err
		}
		c.Infra.Webhooks = verifier
	}

	if err := c.buildMessaging(ctx); err != nil {
		return err
	}

	if bucket := strings.TrimSpace(c.Config.Storage.ProofBucket); bucket != "" && strings.TrimSpace(c.Config.Storage.SignerKeyFile) != "" {
		signer, err := storage.LoadKeySigner(c.Config.Storage.SignerKeyFile, c.Config.Storage.SignerEmail)
		if err != nil {
			return fmt.Errorf("di: proof signer: %w", err)
		}
		linker, err := storage.NewProofLinker(bucket, signer,
			storage.WithURLTTL(c.Config.Storage.ProofURLTTL),
			storage.WithClock(options.clock),
		)
		if err != nil {
			return err
		}
		c.Infra.Proofs = linker
	}
	return nil
}

// buildMessaging publishes confirmations and order events through Pub/Sub when topics are set.
// Without a confirmation topic the notifier only logs.
func (c *Container) buildMessaging(ctx context.Context) error {
	cfg := c.Config.Notifications
	confirmTopic := strings.TrimSpace(cfg.Topic)
	eventsTopic := strings.TrimSpace(cfg.EventsTopic)

	if confirmTopic == "" && eventsTopic == "" {
		c.Infra.Notifier = notifications.NewLogSender(observability.ServiceLogger(c.Logger, "notifications"))
		return nil
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("di: pubsub client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })

	if confirmTopic != "" {
		publisher, err := c.topicPublisher(client, confirmTopic)
		if err != nil {
			return err
		}
		sender, err := notifications.NewPubSubSender(publisher)
		if err != nil {
			return err
		}
		c.Infra.Notifier = sender
	} else {
		c.Infra.Notifier = notifications.NewLogSender(observability.ServiceLogger(c.Logger, "notifications"))
	}

	if eventsTopic != "" {
		publisher, err := c.topicPublisher(client, eventsTopic)
		if err != nil {
			return err
		}
		events, err := jobs.NewOrderEventPublisher(publisher)
		if err != nil {
			return err
		}
		c.Infra.Events = events
	}
	return nil
}

func (c *Container) topicPublisher(client *pubsub.Client, topicID string) (*jobs.PubSubPublisher, error) {
	publisher, err := jobs.NewPubSubPublisher(client.Topic(topicID))
	if err != nil {
		return nil, err
	}
	// Closers run in reverse, so topics flush before the client closes.
	c.closers = append(c.closers, func(context.Context) error {
		publisher.Stop()
		return nil
	})
	return publisher, nil
}

func buildPaymentManager(cfg config.PaymentsConfig, logger *zap.Logger, httpClient payments.HTTPDoer) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider, 2)

	if key := strings.TrimSpace(cfg.PayMongoSecretKey); key != "" {
		if httpClient == nil {
			httpClient = &http.Client{Timeout: cfg.GatewayTimeout}
		}
		provider, err := payments.NewPayMongoProvider(payments.PayMongoProviderConfig{
			SecretKey:  key,
			BaseURL:    cfg.PayMongoBaseURL,
			HTTPClient: httpClient,
			Logger:     observability.ServiceLogger(logger, "payments.paymongo"),
		})
		if err != nil {
			return nil, err
		}
		providers[payments.ProviderPayMongo] = provider
	}
	if key := strings.TrimSpace(cfg.StripeAPIKey); key != "" {
		provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: key,
			Logger: observability.ServiceLogger(logger, "payments.stripe"),
		})
		if err != nil {
			return nil, err
		}
		providers[payments.ProviderStripe] = provider
	}
	if len(providers) == 0 {
		return nil, errors.New("di: no payment provider configured")
	}

	opts := []payments.ManagerOption{payments.WithDefaultProvider(cfg.Provider)}
	if _, ok := providers[payments.ProviderPayMongo]; ok {
		// Stripe has no GCash support.
		opts = append(opts, payments.WithMethodRoutes(map[string]string{
			"gcash": payments.ProviderPayMongo,
		}))
	}
	return payments.NewManager(providers, opts...)
}

func (c *Container) buildServices(clock func() time.Time) error {
	reg := c.Repositories
	logger := func(name string) func(context.Context, string, map[string]any) {
		return observability.ServiceLogger(c.Logger, name)
	}

	stock, err := services.NewStockLedger(services.StockLedgerDeps{
		Items:        reg.Items(),
		DamagedItems: reg.DamagedItems(),
		Logger:       logger("stock"),
	})
	if err != nil {
		return err
	}
	billing, err := services.NewBillingService(services.BillingServiceDeps{
		Billings: reg.Billings(),
		Clock:    clock,
		Logger:   logger("billing"),
	})
	if err != nil {
		return err
	}
	deliveries, err := services.NewDeliveryService(services.DeliveryServiceDeps{
		Deliveries:     reg.Deliveries(),
		Orders:         reg.Orders(),
		UnitOfWork:     reg,
		Proofs:         c.Infra.Proofs,
		Events:         c.Infra.Events,
		ScheduleOffset: c.Config.Delivery.ScheduleOffset,
		Clock:          clock,
		Logger:         logger("deliveries"),
	})
	if err != nil {
		return err
	}
	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Billing:    billing,
		Deliveries: deliveries,
		UnitOfWork: reg,
		Notifier:   c.Infra.Notifier,
		Events:     c.Infra.Events,
		Clock:      clock,
		Logger:     logger("orders"),
	})
	if err != nil {
		return err
	}
	cart, err := services.NewCartService(services.CartServiceDeps{
		Carts:      reg.Carts(),
		Stock:      stock,
		UnitOfWork: reg,
		Clock:      clock,
		Logger:     logger("cart"),
	})
	if err != nil {
		return err
	}
	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:      reg.Carts(),
		Orders:     reg.Orders(),
		Stock:      stock,
		Payments:   c.Infra.Payments,
		OrderFlow:  orders,
		UnitOfWork: reg,
		SuccessURL: c.Config.Payments.SuccessURL,
		CancelURL:  c.Config.Payments.CancelURL,
		Clock:      clock,
		Logger:     logger("checkout"),
	})
	if err != nil {
		return err
	}
	damaged, err := services.NewDamagedItemService(services.DamagedItemServiceDeps{
		Items:        reg.Items(),
		DamagedItems: reg.DamagedItems(),
		Stock:        stock,
		UnitOfWork:   reg,
		Clock:        clock,
		Logger:       logger("damaged_items"),
	})
	if err != nil {
		return err
	}
	inventory, err := services.NewInventoryService(services.InventoryServiceDeps{
		Items:      reg.Items(),
		UnitOfWork: reg,
		Clock:      clock,
		Logger:     logger("inventory"),
	})
	if err != nil {
		return err
	}

	c.Services = Services{
		Stock:        stock,
		Cart:         cart,
		Checkout:     checkout,
		Orders:       orders,
		Billing:      billing,
		Deliveries:   deliveries,
		DamagedItems: damaged,
		Inventory:    inventory,
	}
	return nil
}

// Router assembles the HTTP surface over the container's services.
func (c *Container) Router() (http.Handler, error) {
	checkoutLimit, err := handlers.NewRateLimit(c.Config.RateLimits.Checkout)
	if err != nil {
		return nil, fmt.Errorf("di: checkout rate limit: %w", err)
	}
	callbackLimit, err := handlers.NewRateLimit(c.Config.RateLimits.Callback)
	if err != nil {
		return nil, fmt.Errorf("di: callback rate limit: %w", err)
	}

	cart := handlers.NewCartHandlers(c.Infra.Auth, c.Services.Cart)
	checkout := handlers.NewCheckoutHandlers(c.Infra.Auth, c.Services.Checkout,
		handlers.WithCheckoutRateLimit(checkoutLimit),
		handlers.WithCheckoutIdempotency(idempotency.Middleware(c.Infra.Idempotency,
			idempotency.WithTTL(c.Config.Redis.IdempotencyTTL),
		)),
	)
	paymentOpts := []handlers.PaymentOption{handlers.WithCallbackRateLimit(callbackLimit)}
	if c.Infra.Webhooks != nil {
		paymentOpts = append(paymentOpts, handlers.WithWebhookVerifier(c.Infra.Webhooks))
	}
	paymentHandlers := handlers.NewPaymentHandlers(c.Infra.Auth, c.Services.Checkout, paymentOpts...)
	admin := handlers.NewAdminHandlers(c.Infra.Auth, handlers.AdminServices{
		Orders:       c.Services.Orders,
		Billings:     c.Services.Billing,
		Deliveries:   c.Services.Deliveries,
		DamagedItems: c.Services.DamagedItems,
		Inventory:    c.Services.Inventory,
	})
	health := handlers.NewHealthHandlers(
		handlers.WithHealthRepository(c.Infra.Health),
		handlers.WithHealthBuildInfo(c.BuildInfo),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.RequestIDMiddleware,
			observability.TraceMiddleware,
			observability.InjectLoggerMiddleware(c.Logger),
			observability.RequestLoggerMiddleware,
			observability.RecoveryMiddleware(c.Logger),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithCartRoutes(cart.Routes),
		handlers.WithCheckoutRoutes(checkout.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.CallbackRoutes),
		handlers.WithAdminRoutes(admin.Routes),
	}
	if c.Infra.Webhooks != nil {
		opts = append(opts, handlers.WithWebhookRoutes(paymentHandlers.WebhookRoutes))
	} else {
		c.Logger.Warn("paymongo webhook secret not configured; webhook routes disabled")
	}
	return handlers.NewRouter(opts...), nil
}

// Close releases Pub/Sub, Redis and database resources in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
