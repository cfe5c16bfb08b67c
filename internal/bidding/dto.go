package bidding

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
)

// Config drives one optimization pass for a campaign. Strategy variants are
// handled exhaustively; unknown strategies are rejected up front.
type Config struct {
	Strategy   enums.BidStrategy
	TargetCPA  *decimal.Decimal
	TargetROAS *decimal.Decimal
	MinCPC     *decimal.Decimal
	MaxCPC     *decimal.Decimal
	// ImpressionShare is supplied by the ad-serving layer (fraction of
	// eligible auctions the campaign appeared in). When absent a neutral
	// 0.5 is assumed so share-driven branches stay quiet.
	ImpressionShare *decimal.Decimal
}

// ExpectedImpact is a deliberately simple linear projection of what a bid
// change does to delivery. It is a heuristic, not a calibrated predictor.
type ExpectedImpact struct {
	ClicksChangePct      decimal.Decimal
	ConversionsChangePct decimal.Decimal
	CostChangePct        decimal.Decimal
	ROASChangePct        decimal.Decimal
}

// Suggestion is the optimizer's recommendation for one campaign.
type Suggestion struct {
	CampaignID       uuid.UUID
	CurrentBid       decimal.Decimal
	SuggestedBid     decimal.Decimal
	BidChangePct     decimal.Decimal
	Reason           string
	Confidence       decimal.Decimal
	Priority         enums.SuggestionPriority
	ExpectedImpact   ExpectedImpact
	CompetitionLevel enums.CompetitionLevel
}

// WindowMetrics is a short observation window handed in by ad serving for
// real-time adjustment decisions.
type WindowMetrics struct {
	Duration    time.Duration
	Impressions int64
	Clicks      int64
	Conversions int64
	SpendCents  int64
}

// Adjustment is the outcome of a real-time bid check.
type Adjustment struct {
	CampaignID   uuid.UUID
	ShouldAdjust bool
	NewBid       *decimal.Decimal
	Reason       string
	Urgency      enums.AdjustmentUrgency
}

// ApplyResult says whether an automatic adjustment was written.
type ApplyResult struct {
	CampaignID uuid.UUID
	Applied    bool
	Reason     string
	Suggestion *Suggestion
}

// CampaignOptimization is the ROI-targeted outcome for one campaign in a
// shared-budget set.
type CampaignOptimization struct {
	CampaignID           uuid.UUID
	CurrentBid           decimal.Decimal
	OptimizedBid         decimal.Decimal
	AllocatedBudgetCents int64
	ExpectedROI          decimal.Decimal
}

// ROIOptimization aggregates a shared-budget pass.
type ROIOptimization struct {
	Campaigns        []CampaignOptimization
	MeanProjectedROI decimal.Decimal
}

// TargetingConfig is the typed targeting shape used for pre-launch bid
// recommendations.
type TargetingConfig struct {
	Demographics []string
	Locations    []string
	Behaviors    []string
}

// BudgetRange brackets the budget a recommendation must respect.
type BudgetRange struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Recommendation is a pre-launch bid estimate derived from targeting
// specificity instead of history.
type Recommendation struct {
	SuggestedBid         decimal.Decimal
	TargetingSpecificity decimal.Decimal
	EstimatedCompetition enums.CompetitionLevel
}
