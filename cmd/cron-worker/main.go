package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"

	"github.com/slye-labs/slye-backend/internal/backends"
	"github.com/slye-labs/slye-backend/internal/backends/kie"
	"github.com/slye-labs/slye-backend/internal/credits"
	"github.com/slye-labs/slye-backend/internal/cron"
	"github.com/slye-labs/slye-backend/internal/generations"
	"github.com/slye-labs/slye-backend/internal/niches"
	"github.com/slye-labs/slye-backend/pkg/config"
	"github.com/slye-labs/slye-backend/pkg/db"
	"github.com/slye-labs/slye-backend/pkg/instance"
	"github.com/slye-labs/slye-backend/pkg/logger"
	"github.com/slye-labs/slye-backend/pkg/metrics"
	"github.com/slye-labs/slye-backend/pkg/migrate"
	"github.com/slye-labs/slye-backend/pkg/outbox"
	"github.com/slye-labs/slye-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	domainMetrics := metrics.NewDomainMetrics(metricsRegistry)
	go serveMetrics(ctx, logg, cfg.App.Port, metricsRegistry)

	generationService, err := buildGenerationService(cfg, logg, dbClient, domainMetrics)
	if err != nil {
		logg.Error(ctx, "failed to build generation service", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, generationService)
	if err != nil {
		logg.Error(ctx, "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(metricsRegistry),
		Schedule: cfg.Cron.Schedule,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildGenerationService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, domainMetrics *metrics.DomainMetrics) (*generations.Service, error) {
	kieClient, err := kie.NewClient(cfg.Kie, logg)
	if err != nil {
		return nil, err
	}
	backendRegistry, err := backends.NewRegistry(backends.Name(cfg.Generation.DefaultBackend), kieClient)
	if err != nil {
		return nil, err
	}
	nicheRegistry, err := niches.NewDefaultRegistry()
	if err != nil {
		return nil, err
	}
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ledger, err := credits.NewService(credits.ServiceParams{
		DB:         dbClient,
		Repository: credits.NewRepository(dbClient.DB()),
		Outbox:     outboxService,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}
	return generations.NewService(generations.ServiceParams{
		DB:         dbClient,
		Repository: generations.NewRepository(dbClient.DB()),
		Ledger:     ledger,
		Niches:     nicheRegistry,
		Backends:   backendRegistry,
		Outbox:     outboxService,
		Metrics:    domainMetrics,
		Logger:     logg,
	})
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, gens *generations.Service) (*cron.Registry, error) {
	syncJob, err := cron.NewGenerationSyncJob(cron.GenerationSyncJobParams{
		Logger:      logg,
		Generations: gens,
		MinAge:      cfg.Generation.PollInterval,
		BatchSize:   cfg.Generation.SyncBatchSize,
	})
	if err != nil {
		return nil, err
	}
	staleJob, err := cron.NewStalePendingJob(cron.StalePendingJobParams{
		Logger:      logg,
		Generations: gens,
		StaleAfter:  cfg.Generation.StaleAfter,
		BatchSize:   cfg.Generation.SyncBatchSize,
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(staleJob, syncJob, retentionJob)
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s", env)
}

func serveMetrics(ctx context.Context, logg *logger.Logger, port string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "metrics server stopped", err)
	}
}
