package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/RLASH18/abg-prime-v2/internal/di"
	"github.com/RLASH18/abg-prime-v2/internal/handlers"
	"github.com/RLASH18/abg-prime-v2/internal/platform/config"
	"github.com/RLASH18/abg-prime-v2/internal/platform/database"
	"github.com/RLASH18/abg-prime-v2/internal/platform/observability"
	"github.com/RLASH18/abg-prime-v2/internal/platform/secrets"
)

func main() {
	app := &cli.App{
		Name:  "abg-api",
		Usage: "ABG Prime storefront and back-office API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Value:   ".env",
				Usage:   "dotenv file loaded before the process environment",
				EnvVars: []string{"ABG_ENV_FILE"},
			},
			&cli.StringFlag{
				Name:    "secrets-project",
				Usage:   "Secret Manager project for sm:// references",
				EnvVars: []string{"ABG_SECRETS_PROJECT_ID"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply schema migrations",
				Subcommands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "apply every pending migration",
						Action: migrateAction(database.MigrateUp),
					},
					{
						Name:   "down",
						Usage:  "roll back the latest migration",
						Action: migrateAction(database.MigrateDown),
					},
				},
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "abg-api: %v\n", err)
		os.Exit(1)
	}
}

// runtime carries what every command needs: a logger and resolved configuration.
type runtime struct {
	logger *zap.Logger
	cfg    config.Config
	close  func()
}

func bootstrap(c *cli.Context) (*runtime, error) {
	baseLogger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, fmt.Errorf("initialise logger: %w", err)
	}
	logger := baseLogger.Named("api")

	resolver, err := secrets.NewResolver(c.Context,
		secrets.WithProject(c.String("secrets-project")),
		secrets.WithLogger(logger.Named("secrets")),
	)
	if err != nil {
		_ = baseLogger.Sync()
		return nil, fmt.Errorf("initialise secret resolver: %w", err)
	}

	cfg, err := config.Load(c.Context,
		config.WithEnvFile(c.String("env-file")),
		config.WithSecretResolver(resolver),
	)
	if err != nil {
		_ = resolver.Close()
		_ = baseLogger.Sync()
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	// Reapply the configured level now that .env has been read.
	if lvl := strings.TrimSpace(cfg.LogLevel); lvl != "" && !strings.EqualFold(lvl, os.Getenv("LOG_LEVEL")) {
		if leveled, err := observability.NewLogger(lvl); err == nil {
			_ = baseLogger.Sync()
			baseLogger = leveled
			logger = baseLogger.Named("api")
		}
	}
	logger = logger.With(zap.String("environment", cfg.Environment))

	return &runtime{
		logger: logger,
		cfg:    cfg,
		close: func() {
			if err := resolver.Close(); err != nil {
				logger.Warn("secret resolver close error", zap.Error(err))
			}
			_ = baseLogger.Sync()
		},
	}, nil
}

func serve(c *cli.Context) error {
	rt, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer rt.close()
	logger, cfg := rt.logger, rt.cfg

	if cfg.Database.AutoMigrate {
		version, err := database.Migrate(cfg.Database.DSN, database.MigrateUp, observability.NewPrintfAdapter(logger.Named("migrate"), false))
		if err != nil {
			return err
		}
		logger.Info("schema migrated", zap.Uint("version", version))
	}

	ctx := observability.WithLogger(c.Context, logger)
	container, err := di.NewContainer(ctx, cfg, logger, di.WithBuildInfo(buildInfoFromEnv(cfg)))
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	router, err := container.Router()
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	serverErr := make(chan error, 1)
	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("abg api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-shutdown:
	}
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

func migrateAction(direction database.MigrationDirection) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := bootstrap(c)
		if err != nil {
			return err
		}
		defer rt.close()

		version, err := database.Migrate(rt.cfg.Database.DSN, direction, observability.NewPrintfAdapter(rt.logger.Named("migrate"), true))
		if err != nil {
			return err
		}
		rt.logger.Info("migration complete", zap.Stringer("direction", direction), zap.Uint("version", version))
		return nil
	}
}

func buildInfoFromEnv(cfg config.Config) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{Version: version, Environment: environment}
}
