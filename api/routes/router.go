package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-ads/api/controllers"
	"github.com/angelmondragon/packfinderz-ads/api/middleware"
	"github.com/angelmondragon/packfinderz-ads/internal/analytics"
	"github.com/angelmondragon/packfinderz-ads/internal/bidding"
	"github.com/angelmondragon/packfinderz-ads/internal/budget"
	"github.com/angelmondragon/packfinderz-ads/internal/notifications"
	"github.com/angelmondragon/packfinderz-ads/pkg/bigquery"
	"github.com/angelmondragon/packfinderz-ads/pkg/config"
	"github.com/angelmondragon/packfinderz-ads/pkg/db"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
	"github.com/angelmondragon/packfinderz-ads/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	bigqueryClient bigquery.Pinger,
	budgetService budget.Service,
	biddingService bidding.Service,
	analyticsService analytics.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	optimizePolicy := middleware.NewRateLimitPolicy(
		"optimize",
		cfg.RateLimit.OptimizeWindow,
		cfg.RateLimit.OptimizeIPLimit,
		cfg.RateLimit.OptimizeBusinessLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient, bigqueryClient))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
		r.Post("/validate", controllers.PublicValidate(logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.BusinessContext(logg))
			r.Get("/ping", controllers.PrivatePing())

			r.Route("/v1/budgets/{campaignId}", func(r chi.Router) {
				r.Get("/status", controllers.BudgetStatus(budgetService, logg))
				r.Get("/events", controllers.ListSpendEvents(budgetService, logg))
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireBudgetManager(logg))
					r.Post("/lock", controllers.LockBudget(budgetService, logg))
					r.Post("/release", controllers.ReleaseBudget(budgetService, logg))
					r.Post("/deduct", controllers.DeductCost(budgetService, logg))
				})
			})

			r.Route("/v1/bids", func(r chi.Router) {
				r.Post("/recommendations", controllers.BidRecommendations(biddingService, logg))
				r.Post("/{campaignId}/suggest", controllers.SuggestBid(biddingService, logg))
				r.Post("/{campaignId}/adjust", controllers.AdjustBid(biddingService, logg))
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireBudgetManager(logg))
					r.Post("/{campaignId}/apply", controllers.ApplyBid(biddingService, logg))
					r.With(middleware.RateLimit(optimizePolicy, redisClient, logg)).
						Post("/optimize-roi", controllers.OptimizeROI(biddingService, logg))
				})
			})

			r.Route("/v1/analytics", func(r chi.Router) {
				r.Get("/campaigns/{campaignId}/burn-rate", controllers.BurnRate(analyticsService, logg))
			})

			r.Route("/v1/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(notificationsService, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
			})
		})
	})

	return r
}
