package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"

	"github.com/slye-labs/slye-backend/api/routes"
	"github.com/slye-labs/slye-backend/internal/backends"
	"github.com/slye-labs/slye-backend/internal/backends/kie"
	"github.com/slye-labs/slye-backend/internal/credits"
	"github.com/slye-labs/slye-backend/internal/generations"
	"github.com/slye-labs/slye-backend/internal/niches"
	"github.com/slye-labs/slye-backend/internal/payments"
	stripewebhook "github.com/slye-labs/slye-backend/internal/webhooks/stripe"
	"github.com/slye-labs/slye-backend/pkg/config"
	"github.com/slye-labs/slye-backend/pkg/db"
	"github.com/slye-labs/slye-backend/pkg/instance"
	"github.com/slye-labs/slye-backend/pkg/logger"
	"github.com/slye-labs/slye-backend/pkg/metrics"
	"github.com/slye-labs/slye-backend/pkg/migrate"
	"github.com/slye-labs/slye-backend/pkg/outbox"
	"github.com/slye-labs/slye-backend/pkg/outbox/idempotency"
	"github.com/slye-labs/slye-backend/pkg/redis"
	pkgstripe "github.com/slye-labs/slye-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ledger, err := credits.NewService(credits.ServiceParams{
		DB:         dbClient,
		Repository: credits.NewRepository(dbClient.DB()),
		Outbox:     outboxService,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create credit ledger", err)
		os.Exit(1)
	}

	nicheRegistry, err := niches.NewDefaultRegistry()
	if err != nil {
		logg.Error(ctx, "failed to load generation types", err)
		os.Exit(1)
	}
	generationService, err := buildGenerationService(cfg, logg, dbClient, ledger, nicheRegistry, outboxService, domainMetrics)
	if err != nil {
		logg.Error(ctx, "failed to build generation service", err)
		os.Exit(1)
	}

	// Stripe is optional at boot; checkout and the webhook report the
	// configuration error when they are used.
	var (
		stripeClient *pkgstripe.Client
		gateway      payments.Gateway
	)
	stripeClient, err = pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		logg.Error(ctx, "stripe is not configured", err)
		gateway = payments.NewUnavailableGateway(err)
	} else {
		gateway = payments.NewStripeGateway()
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Gateway: gateway,
		Ledger:  ledger,
		Metrics: domainMetrics,
		Logger:  logg,
		Origin:  cfg.App.Origin(),
	})
	if err != nil {
		logg.Error(ctx, "failed to create payment service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{Payments: paymentService, Logger: logg})
	if err != nil {
		logg.Error(ctx, "failed to create stripe webhook service", err)
		os.Exit(1)
	}
	eventManager, err := idempotency.NewManager(redisClient, cfg.Generation.WebhookEventTTL)
	if err != nil {
		logg.Error(ctx, "failed to create webhook idempotency manager", err)
		os.Exit(1)
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(eventManager)
	if err != nil {
		logg.Error(ctx, "failed to create webhook guard", err)
		os.Exit(1)
	}

	params := routes.Params{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Store:         redisClient,
		Generations:   generationService,
		Niches:        nicheRegistry,
		Credits:       ledger,
		Payments:      paymentService,
		StripeWebhook: webhookService,
		WebhookGuard:  webhookGuard,
		Metrics:       promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}),
	}
	if stripeClient != nil {
		params.StripeEvents = stripeClient
	}
	handler, err := routes.NewRouter(params)
	if err != nil {
		logg.Error(ctx, "failed to build router", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

func buildGenerationService(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	ledger *credits.Service,
	nicheRegistry *niches.Registry,
	outboxService *outbox.Service,
	domainMetrics *metrics.DomainMetrics,
) (*generations.Service, error) {
	kieClient, err := kie.NewClient(cfg.Kie, logg)
	if err != nil {
		return nil, err
	}
	backendRegistry, err := backends.NewRegistry(backends.Name(cfg.Generation.DefaultBackend), kieClient)
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
