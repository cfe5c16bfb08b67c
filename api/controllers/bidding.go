package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-ads/api/responses"
	"github.com/angelmondragon/packfinderz-ads/api/validators"
	"github.com/angelmondragon/packfinderz-ads/internal/bidding"
	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
)

type BidConfigBody struct {
	Strategy        string `json:"strategy" validate:"required"`
	TargetCPA       string `json:"target_cpa,omitempty"`
	TargetROAS      string `json:"target_roas,omitempty"`
	MinCPC          string `json:"min_cpc,omitempty"`
	MaxCPC          string `json:"max_cpc,omitempty"`
	ImpressionShare string `json:"impression_share,omitempty"`
}

func parseOptionalDecimal(field, raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid decimal value").WithDetails(map[string]any{"field": field})
	}
	return &value, nil
}

func (b BidConfigBody) toConfig() (bidding.Config, error) {
	cfg := bidding.Config{Strategy: enums.BidStrategy(strings.TrimSpace(b.Strategy))}

	var err error
	if cfg.TargetCPA, err = parseOptionalDecimal("target_cpa", b.TargetCPA); err != nil {
		return bidding.Config{}, err
	}
	if cfg.TargetROAS, err = parseOptionalDecimal("target_roas", b.TargetROAS); err != nil {
		return bidding.Config{}, err
	}
	if cfg.MinCPC, err = parseOptionalDecimal("min_cpc", b.MinCPC); err != nil {
		return bidding.Config{}, err
	}
	if cfg.MaxCPC, err = parseOptionalDecimal("max_cpc", b.MaxCPC); err != nil {
		return bidding.Config{}, err
	}
	if cfg.ImpressionShare, err = parseOptionalDecimal("impression_share", b.ImpressionShare); err != nil {
		return bidding.Config{}, err
	}
	return cfg, nil
}

// SuggestBid returns a bid suggestion for the campaign without applying it.
func SuggestBid(svc bidding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID, err := campaignIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body BidConfigBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cfg, err := body.toConfig()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		suggestion, err := svc.GenerateCampaignBidSuggestion(r.Context(), campaignID, cfg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, suggestion)
	}
}

type WindowMetricsBody struct {
	DurationMinutes int64 `json:"duration_minutes" validate:"required,min=1"`
	Impressions     int64 `json:"impressions" validate:"min=0"`
	Clicks          int64 `json:"clicks" validate:"min=0"`
	Conversions     int64 `json:"conversions" validate:"min=0"`
	SpendCents      int64 `json:"spend_cents" validate:"min=0"`
}

// AdjustBid evaluates a short observation window against the campaign
// baseline and returns the recommended correction.
func AdjustBid(svc bidding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID, err := campaignIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body WindowMetricsBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		adjustment, err := svc.PerformRealTimeBidAdjustment(r.Context(), campaignID, bidding.WindowMetrics{
			Duration:    time.Duration(body.DurationMinutes) * time.Minute,
			Impressions: body.Impressions,
			Clicks:      body.Clicks,
			Conversions: body.Conversions,
			SpendCents:  body.SpendCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, adjustment)
	}
}

// ApplyBid applies the campaign's bid suggestion when it clears the
// confidence and magnitude gates.
func ApplyBid(svc bidding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID, err := campaignIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body BidConfigBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cfg, err := body.toConfig()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ApplyAutomaticBidAdjustments(r.Context(), campaignID, cfg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type OptimizeROIBody struct {
	CampaignIDs      []string `json:"campaign_ids" validate:"required,min=1,max=50,dive,uuid"`
	TotalBudgetCents int64    `json:"total_budget_cents" validate:"required,min=1"`
	TargetROI        string   `json:"target_roi" validate:"required"`
}

// OptimizeROI reallocates a shared budget across campaigns by expected return.
func OptimizeROI(svc bidding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body OptimizeROIBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		targetROI, err := decimal.NewFromString(strings.TrimSpace(body.TargetROI))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target_roi"))
			return
		}

		campaignIDs := make([]uuid.UUID, 0, len(body.CampaignIDs))
		for _, raw := range body.CampaignIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid campaign id"))
				return
			}
			campaignIDs = append(campaignIDs, id)
		}

		optimization, err := svc.OptimizeBidsForROI(r.Context(), campaignIDs, body.TotalBudgetCents, targetROI)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, optimization)
	}
}

type BidRecommendationBody struct {
	Targeting struct {
		Demographics []string `json:"demographics"`
		Locations    []string `json:"locations"`
		Behaviors    []string `json:"behaviors"`
	} `json:"targeting"`
	BudgetRange struct {
		Min string `json:"min" validate:"required"`
		Max string `json:"max" validate:"required"`
	} `json:"budget_range" validate:"required"`
}

// BidRecommendations prices a campaign before launch from its targeting.
func BidRecommendations(svc bidding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body BidRecommendationBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		min, err := decimal.NewFromString(strings.TrimSpace(body.BudgetRange.Min))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid budget_range.min"))
			return
		}
		max, err := decimal.NewFromString(strings.TrimSpace(body.BudgetRange.Max))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid budget_range.max"))
			return
		}

		recommendation, err := svc.GetBidRecommendations(r.Context(), bidding.TargetingConfig{
			Demographics: body.Targeting.Demographics,
			Locations:    body.Targeting.Locations,
			Behaviors:    body.Targeting.Behaviors,
		}, bidding.BudgetRange{Min: min, Max: max})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, recommendation)
	}
}
