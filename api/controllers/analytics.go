package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-ads/api/responses"
	"github.com/angelmondragon/packfinderz-ads/internal/analytics"
	"github.com/angelmondragon/packfinderz-ads/internal/analytics/types"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
)

const defaultBurnRateWindow = 7 * 24 * time.Hour

// BurnRate reports spend pacing for a campaign over the requested window.
// Defaults to the trailing seven days when no range is given.
func BurnRate(svc analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analytics service unavailable"))
			return
		}

		campaignID, err := campaignIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		end := time.Now().UTC()
		if raw := strings.TrimSpace(r.URL.Query().Get("end")); raw != "" {
			end, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "end must be RFC 3339"))
				return
			}
		}

		start := end.Add(-defaultBurnRateWindow)
		if raw := strings.TrimSpace(r.URL.Query().Get("start")); raw != "" {
			start, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "start must be RFC 3339"))
				return
			}
		}

		report, err := svc.BurnRate(r.Context(), types.SpendQueryRequest{
			CampaignID: campaignID.String(),
			Start:      start,
			End:        end,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
