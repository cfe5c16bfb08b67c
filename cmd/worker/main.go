package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-ads/internal/analytics/writer"
	"github.com/angelmondragon/packfinderz-ads/internal/budget"
	spend "github.com/angelmondragon/packfinderz-ads/internal/consumers/spend"
	"github.com/angelmondragon/packfinderz-ads/internal/notifications"
	"github.com/angelmondragon/packfinderz-ads/internal/wallet"
	"github.com/angelmondragon/packfinderz-ads/pkg/bigquery"
	"github.com/angelmondragon/packfinderz-ads/pkg/config"
	"github.com/angelmondragon/packfinderz-ads/pkg/db"
	"github.com/angelmondragon/packfinderz-ads/pkg/instance"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
	"github.com/angelmondragon/packfinderz-ads/pkg/metrics"
	"github.com/angelmondragon/packfinderz-ads/pkg/migrate"
	"github.com/angelmondragon/packfinderz-ads/pkg/outbox/idempotency"
	"github.com/angelmondragon/packfinderz-ads/pkg/pubsub"
	"github.com/angelmondragon/packfinderz-ads/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
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
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub", err)
		}
	}()

	bigqueryClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap bigquery", err)
		os.Exit(1)
	}
	defer func() {
		if err := bigqueryClient.Close(); err != nil {
			logg.Error(ctx, "error closing bigquery", err)
		}
	}()

	walletClient, err := wallet.NewClient(ctx, cfg.Wallet, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap wallet client", err)
		os.Exit(1)
	}

	emitter, err := notifications.NewEmitter(
		notifications.NewRepository(dbClient.DB()),
		pubsubClient.NotificationPublisher(),
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to create notification emitter", err)
		os.Exit(1)
	}

	budgetMetrics := metrics.NewBudgetMetrics(prometheus.DefaultRegisterer)
	budgetService, err := budget.NewService(
		budget.NewRepository(dbClient.DB()),
		dbClient,
		walletClient,
		emitter,
		logg,
		cfg.Budget,
		budgetMetrics,
	)
	if err != nil {
		logg.Error(ctx, "failed to create budget service", err)
		os.Exit(1)
	}

	factWriter, err := writer.New(bigqueryClient, writer.Config{
		SpendFactsTable: cfg.BigQuery.SpendFactsTable,
	})
	if err != nil {
		logg.Error(ctx, "failed to create spend fact writer", err)
		os.Exit(1)
	}

	manager, err := idempotency.NewManager(redisClient, cfg.PubSub.IdempotencyTTL)
	if err != nil {
		logg.Error(ctx, "failed to create idempotency manager", err)
		os.Exit(1)
	}

	consumer, err := spend.NewConsumer(
		pubsubClient.AdEventsSubscription(),
		budgetService,
		factWriter,
		manager,
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to create spend consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		PubSub:        pubsubClient,
		BigQuery:      bigqueryClient,
		SpendConsumer: consumer,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting spend event worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}
