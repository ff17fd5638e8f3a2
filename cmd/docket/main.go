package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/bootstrap"
	"github.com/platinummonkey/docket/pkg/config"
	"github.com/platinummonkey/docket/pkg/database"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/server"
	"github.com/platinummonkey/docket/pkg/storage"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (overrides "+config.ConfigFileEnv+")")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")
	flag.Parse()

	if *configPath != "" {
		os.Setenv(config.ConfigFileEnv, *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *printConfig {
		fmt.Print(cfg.String())
		return
	}

	if err := run(cfg); err != nil {
		log.Fatalf("docket: %v", err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLoggerWithFormat(cfg.LogLevel(), cfg.Observability.LogFormat, os.Stdout)
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	defer func() {
		if err := shutdown.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Shutdown finished with errors")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	providers, err := observability.InitOTel(ctx, cfg.OTelOptions(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	db, err := database.Open(ctx, cfg.DatabaseOptions())
	if err != nil {
		return err
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	if metrics != nil {
		observability.RegisterDBStats(registry, db, "docket")
	}

	if cfg.Bootstrap.MigrateOnStart {
		applied, err := database.Migrate(ctx, db, cfg.Database.Driver)
		if err != nil {
			return err
		}
		logger.WithField("versions", applied).Info("Migrations applied")
	}
	if cfg.Bootstrap.SeedOnStart {
		catalog, err := bootstrap.DefaultCatalog()
		if err != nil {
			return err
		}
		if _, err := bootstrap.Apply(observability.WithLogger(ctx, logger), rbac.NewStore(db), catalog); err != nil {
			return fmt.Errorf("failed to seed roles: %w", err)
		}
	}

	objects, err := storage.New(ctx, cfg.StorageOptions(), metrics)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	srv, err := server.New(cfg, server.Dependencies{
		DB:          db,
		Objects:     objects,
		Redis:       redisClient,
		Logger:      logger,
		Registry:    registry,
		Metrics:     metrics,
		AuditLogger: audit.NewLogrusLogger(logger.Logrus()),
		Version:     version,
	})
	if err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"addr":    cfg.ServerAddr(),
		"ops":     cfg.OpsAddr(),
		"storage": cfg.Storage.Backend,
		"version": version,
	}).Info("Starting docket")

	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
