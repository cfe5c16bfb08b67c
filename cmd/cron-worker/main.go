package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-ads/internal/budget"
	"github.com/angelmondragon/packfinderz-ads/internal/cron"
	"github.com/angelmondragon/packfinderz-ads/internal/notifications"
	"github.com/angelmondragon/packfinderz-ads/internal/wallet"
	"github.com/angelmondragon/packfinderz-ads/pkg/config"
	"github.com/angelmondragon/packfinderz-ads/pkg/db"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
	"github.com/angelmondragon/packfinderz-ads/pkg/metrics"
	"github.com/angelmondragon/packfinderz-ads/pkg/migrate"
	"github.com/angelmondragon/packfinderz-ads/pkg/pubsub"
	"github.com/angelmondragon/packfinderz-ads/pkg/redis"
)

const lockKeyFormat = "pf:cron-worker:lock:%s"

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

	walletClient, err := wallet.NewClient(ctx, cfg.Wallet, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap wallet client", err)
		os.Exit(1)
	}

	notificationsRepo := notifications.NewRepository(dbClient.DB())
	emitter, err := notifications.NewEmitter(notificationsRepo, pubsubClient.NotificationPublisher(), logg)
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

	monitorJob, err := cron.NewBudgetMonitorJob(cron.BudgetMonitorJobParams{
		Logger: logg,
		Budget: budgetService,
	})
	if err != nil {
		logg.Error(ctx, "failed to create budget monitor job", err)
		os.Exit(1)
	}
	resetJob, err := cron.NewDailyResetJob(cron.DailyResetJobParams{
		Logger: logg,
		Budget: budgetService,
	})
	if err != nil {
		logg.Error(ctx, "failed to create daily reset job", err)
		os.Exit(1)
	}
	cleanupJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notificationsRepo,
	})
	if err != nil {
		logg.Error(ctx, "failed to create notification cleanup job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(monitorJob, resetJob, cleanupJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Monitor.SweepInterval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
