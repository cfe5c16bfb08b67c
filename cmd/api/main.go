package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-ads/api/routes"
	"github.com/angelmondragon/packfinderz-ads/internal/analytics"
	"github.com/angelmondragon/packfinderz-ads/internal/bidding"
	"github.com/angelmondragon/packfinderz-ads/internal/budget"
	"github.com/angelmondragon/packfinderz-ads/internal/competition"
	"github.com/angelmondragon/packfinderz-ads/internal/notifications"
	"github.com/angelmondragon/packfinderz-ads/internal/performance"
	"github.com/angelmondragon/packfinderz-ads/internal/wallet"
	"github.com/angelmondragon/packfinderz-ads/pkg/bigquery"
	"github.com/angelmondragon/packfinderz-ads/pkg/config"
	"github.com/angelmondragon/packfinderz-ads/pkg/db"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
	"github.com/angelmondragon/packfinderz-ads/pkg/metrics"
	"github.com/angelmondragon/packfinderz-ads/pkg/migrate"
	"github.com/angelmondragon/packfinderz-ads/pkg/pubsub"
	"github.com/angelmondragon/packfinderz-ads/pkg/redis"
)

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
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := context.Background()

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

	notificationsRepo := notifications.NewRepository(dbClient.DB())
	emitter, err := notifications.NewEmitter(notificationsRepo, pubsubClient.NotificationPublisher(), logg)
	if err != nil {
		logg.Error(ctx, "failed to create notification emitter", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notificationsRepo)
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
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

	biddingRepo, err := bidding.NewRepository(dbClient.DB())
	if err != nil {
		logg.Error(ctx, "failed to create bidding repository", err)
		os.Exit(1)
	}
	perfReader, err := performance.NewReader(dbClient.DB())
	if err != nil {
		logg.Error(ctx, "failed to create performance reader", err)
		os.Exit(1)
	}
	compAnalyzer, err := competition.NewAnalyzer(dbClient.DB())
	if err != nil {
		logg.Error(ctx, "failed to create competition analyzer", err)
		os.Exit(1)
	}
	biddingService, err := bidding.NewService(biddingRepo, perfReader, compAnalyzer, emitter, logg)
	if err != nil {
		logg.Error(ctx, "failed to create bidding service", err)
		os.Exit(1)
	}

	analyticsService, err := analytics.NewService(
		bigqueryClient,
		cfg.GCP.ProjectID,
		cfg.BigQuery.Dataset,
		cfg.BigQuery.SpendFactsTable,
	)
	if err != nil {
		logg.Error(ctx, "failed to create analytics service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			bigqueryClient,
			budgetService,
			biddingService,
			analyticsService,
			notificationsService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
