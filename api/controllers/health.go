package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/packfinderz-ads/api/responses"
	"github.com/angelmondragon/packfinderz-ads/pkg/bigquery"
	"github.com/angelmondragon/packfinderz-ads/pkg/config"
	"github.com/angelmondragon/packfinderz-ads/pkg/db"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
	"github.com/angelmondragon/packfinderz-ads/pkg/redis"
)

const readinessPingTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PackFinderz-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the hard dependencies. Nil pingers are reported as
// skipped rather than failing readiness.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, cache redis.Pinger, warehouse bigquery.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PackFinderz-Env", cfg.App.Env)

		checks := map[string]string{}
		healthy := true

		probe := func(name string, ping func(context.Context) error) {
			if ping == nil {
				checks[name] = "skipped"
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), readinessPingTimeout)
			defer cancel()
			if err := ping(ctx); err != nil {
				healthy = false
				checks[name] = "down"
				if logg != nil {
					logg.Error(r.Context(), "readiness probe failed: "+name, err)
				}
				return
			}
			checks[name] = "up"
		}

		var dbPing, cachePing, warehousePing func(context.Context) error
		if dbP != nil {
			dbPing = dbP.Ping
		}
		if cache != nil {
			cachePing = cache.Ping
		}
		if warehouse != nil {
			warehousePing = warehouse.Ping
		}
		probe("postgres", dbPing)
		probe("redis", cachePing)
		probe("bigquery", warehousePing)

		status := "ready"
		code := http.StatusOK
		if !healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		responses.WriteSuccessStatus(w, code, map[string]any{
			"status": status,
			"checks": checks,
		})
	}
}
