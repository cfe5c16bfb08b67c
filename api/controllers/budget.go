package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-ads/api/responses"
	"github.com/angelmondragon/packfinderz-ads/api/validators"
	"github.com/angelmondragon/packfinderz-ads/internal/budget"
	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
	"github.com/angelmondragon/packfinderz-ads/pkg/pagination"
)

func campaignIDFromRequest(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "campaignId"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid campaign id")
	}
	return id, nil
}

type LockBudgetBody struct {
	AmountCents      int64  `json:"amount_cents" validate:"required,min=1"`
	DailyBudgetCents *int64 `json:"daily_budget_cents,omitempty"`
	Reason           string `json:"reason,omitempty" validate:"max=256"`
}

// LockBudget reserves wallet funds for a campaign and opens its budget.
func LockBudget(svc budget.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		businessID, err := businessIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		campaignID, err := campaignIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body LockBudgetBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lockID, err := svc.LockBudget(r.Context(), budget.LockBudgetInput{
			BusinessID:       businessID,
			CampaignID:       campaignID,
			AmountCents:      body.AmountCents,
			DailyBudgetCents: body.DailyBudgetCents,
			Reason:           validators.SanitizeString(body.Reason, 256),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{
			"lock_id":     lockID.String(),
			"campaign_id": campaignID.String(),
		})
	}
}

// BudgetStatus reports the campaign's budget position.
func BudgetStatus(svc budget.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID, err := campaignIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.CheckBudgetStatus(r.Context(), campaignID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// ReleaseBudget returns unspent locked funds to the wallet.
func ReleaseBudget(svc budget.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID, err := campaignIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ReleaseBudget(r.Context(), campaignID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{
			"campaign_id": campaignID.String(),
			"status":      "released",
		})
	}
}

type DeductCostBody struct {
	EventID      string `json:"event_id" validate:"required,uuid"`
	Type         string `json:"type" validate:"required"`
	CostCents    int64  `json:"cost_cents" validate:"required,min=1"`
	RevenueCents int64  `json:"revenue_cents,omitempty" validate:"min=0"`
	Description  string `json:"description,omitempty" validate:"max=256"`
	OccurredAt   string `json:"occurred_at,omitempty"`
}

// DeductCost charges a billable ad event synchronously. Ad serving normally
// publishes events to Pub/Sub; this endpoint is the fallback path.
func DeductCost(svc budget.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID, err := campaignIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body DeductCostBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		eventType, err := enums.ParseSpendEventType(strings.TrimSpace(body.Type))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event type"))
			return
		}

		var occurredAt time.Time
		if raw := strings.TrimSpace(body.OccurredAt); raw != "" {
			occurredAt, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "occurred_at must be RFC 3339"))
				return
			}
		}

		result, err := svc.DeductCost(r.Context(), budget.DeductCostInput{
			CampaignID:   campaignID,
			CostCents:    body.CostCents,
			RevenueCents: body.RevenueCents,
			EventType:    eventType,
			EventID:      body.EventID,
			Description:  validators.SanitizeString(body.Description, 256),
			OccurredAt:   occurredAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ListSpendEvents returns the campaign's spend ledger, newest first.
func ListSpendEvents(svc budget.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID, err := campaignIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		events, nextCursor, err := svc.ListSpendEvents(r.Context(), campaignID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"events":      events,
			"next_cursor": nextCursor,
		})
	}
}
