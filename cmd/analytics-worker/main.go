package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"

	"github.com/slye-labs/slye-backend/internal/analytics/router"
	"github.com/slye-labs/slye-backend/internal/analytics/worker"
	"github.com/slye-labs/slye-backend/internal/analytics/writer"
	"github.com/slye-labs/slye-backend/pkg/bigquery"
	"github.com/slye-labs/slye-backend/pkg/config"
	"github.com/slye-labs/slye-backend/pkg/instance"
	"github.com/slye-labs/slye-backend/pkg/logger"
	"github.com/slye-labs/slye-backend/pkg/outbox/idempotency"
	"github.com/slye-labs/slye-backend/pkg/outbox/registry"
	"github.com/slye-labs/slye-backend/pkg/pubsub"
	"github.com/slye-labs/slye-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "analytics-worker"

	logg = logger.New(logger.Options{
		ServiceName: "analytics-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.RoleSubscriber, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	subscription := pubsubClient.LedgerSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "ledger subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	ledgerWriter, err := writer.New(bqClient, writer.Config{LedgerTable: cfg.BigQuery.LedgerEventsTable})
	requireResource(ctx, logg, "ledger bigquery writer", err)

	routingHandler, err := router.NewRouter(ledgerWriter, registry.NewLedgerDecoderRegistry(), logg)
	requireResource(ctx, logg, "ledger router", err)

	service, err := worker.NewService(subscription, routingHandler, manager, logg)
	requireResource(ctx, logg, "analytics worker service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(runCtx, "analytics worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", err)
		os.Exit(1)
	}
	if err := ledgerWriter.Flush(context.WithoutCancel(runCtx)); err != nil {
		logg.Error(runCtx, "failed to flush buffered ledger rows", err)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
