package bidding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-ads/internal/competition"
	"github.com/angelmondragon/packfinderz-ads/internal/performance"
	"github.com/angelmondragon/packfinderz-ads/pkg/db/models"
	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
)

// Tunables for the suggestion heuristics. Values are intentionally coarse;
// they encode operator judgement, not a trained model.
var (
	one        = decimal.NewFromInt(1)
	oneHundred = decimal.NewFromInt(100)

	lowShare     = decimal.NewFromFloat(0.5)
	starvedShare = decimal.NewFromFloat(0.3)
	neutralShare = decimal.NewFromFloat(0.5)

	clicksRaise      = decimal.NewFromFloat(1.2)
	conversionsLower = decimal.NewFromFloat(0.85)
	conversionsRaise = decimal.NewFromFloat(1.15)
	cpaHeadroom      = decimal.NewFromFloat(0.8)
	roasLower        = decimal.NewFromFloat(0.9)
	roasRaise        = decimal.NewFromFloat(1.1)
	roasOvershoot    = decimal.NewFromFloat(1.2)

	holdConfidence  = decimal.NewFromFloat(0.5)
	overlayBonus    = decimal.NewFromFloat(0.1)
	confidenceCeil  = decimal.NewFromFloat(0.9)
	applyConfidence = decimal.NewFromFloat(0.7)
	applyMinChange  = decimal.NewFromInt(5)

	// Hard rail for automated adjustments relative to the current bid.
	railFloor = decimal.NewFromFloat(0.5)
	railCeil  = decimal.NewFromInt(2)

	// Real-time trigger thresholds against the 30-day baseline.
	ctrCollapseRatio  = decimal.NewFromFloat(0.5)
	convCollapseRatio = decimal.NewFromFloat(0.3)
	cpcSpikeRatio     = decimal.NewFromFloat(1.5)
	ctrOutperform     = decimal.NewFromFloat(1.3)
	convOutperform    = decimal.NewFromFloat(1.2)

	rtCollapseRaise = decimal.NewFromFloat(1.2)
	rtConvLower     = decimal.NewFromFloat(0.9)
	rtCPCLower      = decimal.NewFromFloat(0.85)
	rtModestRaise   = decimal.NewFromFloat(1.1)

	// Linear impact model coefficients.
	impactCompetition = map[enums.CompetitionLevel]decimal.Decimal{
		enums.CompetitionLevelHigh:   decimal.NewFromFloat(0.8),
		enums.CompetitionLevelMedium: decimal.NewFromInt(1),
		enums.CompetitionLevelLow:    decimal.NewFromFloat(1.2),
	}
	impactHotCTR           = decimal.NewFromInt(2)
	impactColdCTR          = decimal.NewFromFloat(0.5)
	impactHotFactor        = decimal.NewFromFloat(1.1)
	impactColdFactor       = decimal.NewFromFloat(0.9)
	impactConversionFollow = decimal.NewFromFloat(0.8)
	impactROASDrag         = decimal.NewFromFloat(0.3)

	// Pre-launch recommendation shaping.
	recBasePoint  = decimal.NewFromFloat(0.4)
	recHighSpec   = decimal.NewFromFloat(0.7)
	recMidSpec    = decimal.NewFromFloat(0.4)
	recSpecRaise  = decimal.NewFromFloat(1.3)
	recSpecLower  = decimal.NewFromFloat(0.8)
	recCompRaise  = decimal.NewFromFloat(1.4)
	recCompLower  = decimal.NewFromFloat(0.7)
	targetingAxes = decimal.NewFromInt(3)
)

const (
	minSampleImpressions = 100
	minSampleClicks      = 10

	realTimeMinWindow      = 60 * time.Minute
	realTimeMinImpressions = 100
)

// Service is the bid optimizer.
type Service interface {
	GenerateCampaignBidSuggestion(ctx context.Context, campaignID uuid.UUID, cfg Config) (*Suggestion, error)
	PerformRealTimeBidAdjustment(ctx context.Context, campaignID uuid.UUID, window WindowMetrics) (*Adjustment, error)
	ApplyAutomaticBidAdjustments(ctx context.Context, campaignID uuid.UUID, cfg Config) (*ApplyResult, error)
	OptimizeBidsForROI(ctx context.Context, campaignIDs []uuid.UUID, totalBudgetCents int64, targetROI decimal.Decimal) (*ROIOptimization, error)
	GetBidRecommendations(ctx context.Context, targeting TargetingConfig, budget BudgetRange) (*Recommendation, error)
}

// Notifier receives best-effort bid change notices. Implementations must not
// block the caller on delivery problems.
type Notifier interface {
	BidAdjusted(ctx context.Context, campaign *models.Campaign, oldBid, newBid decimal.Decimal, reason string)
}

type service struct {
	repo     Repository
	perf     performance.Reader
	comp     competition.Analyzer
	notifier Notifier
	logg     *logger.Logger
}

// NewService builds the optimizer. The notifier may be nil when bid change
// notices are not wanted.
func NewService(
	repo Repository,
	perf performance.Reader,
	comp competition.Analyzer,
	notifier Notifier,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bidding service requires a repository")
	}
	if perf == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bidding service requires a performance reader")
	}
	if comp == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bidding service requires a competition analyzer")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bidding service requires a logger")
	}
	return &service{
		repo:     repo,
		perf:     perf,
		comp:     comp,
		notifier: notifier,
		logg:     logg,
	}, nil
}

func (s *service) GenerateCampaignBidSuggestion(ctx context.Context, campaignID uuid.UUID, cfg Config) (*Suggestion, error) {
	if campaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id is required")
	}
	if !cfg.Strategy.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown bid strategy %q", cfg.Strategy))
	}

	campaign, err := s.repo.FindCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	metrics, err := s.perf.CampaignMetrics(ctx, campaignID, performance.DefaultWindowDays*24*time.Hour)
	if err != nil {
		return nil, err
	}
	analysis, err := s.comp.AnalyzeCompetition(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	share := neutralShare
	if cfg.ImpressionShare != nil {
		share = *cfg.ImpressionShare
	}

	current := campaign.BidAmount
	suggested := current
	confidence := holdConfidence
	priority := enums.SuggestionPriorityLow
	reason := "performance within expected bounds; holding current bid"

	switch cfg.Strategy {
	case enums.BidStrategyMaximizeClicks:
		if share.LessThan(lowShare) {
			suggested = current.Mul(clicksRaise)
			confidence = decimal.NewFromFloat(0.8)
			priority = enums.SuggestionPriorityHigh
			reason = "impression share below 50%; raising bid to win more auctions"
		}
	case enums.BidStrategyMaximizeConversions, enums.BidStrategyTargetCPA:
		if cfg.TargetCPA == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "strategy requires a target CPA")
		}
		if metrics.Conversions > 0 {
			switch {
			case metrics.CPA.GreaterThan(*cfg.TargetCPA):
				suggested = current.Mul(conversionsLower)
				confidence = decimal.NewFromFloat(0.75)
				priority = enums.SuggestionPriorityHigh
				reason = "cost per acquisition above target; lowering bid"
			case metrics.CPA.LessThan(cfg.TargetCPA.Mul(cpaHeadroom)):
				suggested = current.Mul(conversionsRaise)
				confidence = decimal.NewFromFloat(0.7)
				priority = enums.SuggestionPriorityMedium
				reason = "cost per acquisition well under target; headroom to raise bid"
			}
		}
	case enums.BidStrategyTargetROAS:
		if cfg.TargetROAS == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "strategy requires a target ROAS")
		}
		if metrics.SpendCents > 0 {
			switch {
			case metrics.ROAS.LessThan(*cfg.TargetROAS):
				suggested = current.Mul(roasLower)
				confidence = decimal.NewFromFloat(0.7)
				priority = enums.SuggestionPriorityHigh
				reason = "return on ad spend below target; lowering bid"
			case metrics.ROAS.GreaterThan(cfg.TargetROAS.Mul(roasOvershoot)):
				suggested = current.Mul(roasRaise)
				confidence = decimal.NewFromFloat(0.65)
				priority = enums.SuggestionPriorityMedium
				reason = "return on ad spend beating target; raising bid to scale"
			}
		}
	case enums.BidStrategyManualCPC:
		reason = "manual bidding strategy; no automated change"
	}

	if analysis.Level == enums.CompetitionLevelHigh && share.LessThan(starvedShare) {
		if analysis.BidRange.Recommended.GreaterThan(suggested) {
			suggested = analysis.BidRange.Recommended
			reason = "high competition and starved delivery; matching market recommended bid"
		}
		confidence = confidence.Add(overlayBonus)
		if confidence.GreaterThan(confidenceCeil) {
			confidence = confidenceCeil
		}
	}

	var clamped bool
	suggested, clamped = clampBid(suggested, cfg.MinCPC, cfg.MaxCPC)
	if clamped {
		reason += " (capped at configured bid bounds)"
	}

	return &Suggestion{
		CampaignID:       campaignID,
		CurrentBid:       current,
		SuggestedBid:     suggested,
		BidChangePct:     changePct(current, suggested),
		Reason:           reason,
		Confidence:       confidence,
		Priority:         priority,
		ExpectedImpact:   projectImpact(current, suggested, analysis.Level, metrics.CTR),
		CompetitionLevel: analysis.Level,
	}, nil
}

func (s *service) PerformRealTimeBidAdjustment(ctx context.Context, campaignID uuid.UUID, window WindowMetrics) (*Adjustment, error) {
	if campaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id is required")
	}
	if window.Duration < realTimeMinWindow || window.Impressions <= realTimeMinImpressions {
		return &Adjustment{
			CampaignID:   campaignID,
			ShouldAdjust: false,
			Reason:       "observation window too small for a reliable decision",
			Urgency:      enums.AdjustmentUrgencyLow,
		}, nil
	}

	campaign, err := s.repo.FindCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	baseline, err := s.perf.CampaignMetrics(ctx, campaignID, performance.DefaultWindowDays*24*time.Hour)
	if err != nil {
		return nil, err
	}

	wCTR := rate(window.Clicks, window.Impressions)
	wConv := rate(window.Conversions, window.Clicks)
	wCPC := decimal.Zero
	if window.Clicks > 0 {
		wCPC = decimal.NewFromInt(window.SpendCents).Div(decimal.NewFromInt(window.Clicks * 100))
	}

	multiplier := decimal.Zero
	reason := "window metrics within baseline bands"
	urgency := enums.AdjustmentUrgencyLow

	switch {
	case baseline.CTR.IsPositive() && wCTR.LessThan(baseline.CTR.Mul(ctrCollapseRatio)):
		multiplier = rtCollapseRaise
		reason = "click-through rate collapsed below half of baseline"
		urgency = enums.AdjustmentUrgencyHigh
	case baseline.ConversionRate.IsPositive() && wConv.LessThan(baseline.ConversionRate.Mul(convCollapseRatio)):
		multiplier = rtConvLower
		reason = "conversion rate collapsed below 30% of baseline"
		urgency = enums.AdjustmentUrgencyMedium
	case baseline.CPC.IsPositive() && wCPC.GreaterThan(baseline.CPC.Mul(cpcSpikeRatio)):
		multiplier = rtCPCLower
		reason = "cost per click spiked above 150% of baseline"
		urgency = enums.AdjustmentUrgencyHigh
	case baseline.CTR.IsPositive() && baseline.ConversionRate.IsPositive() &&
		wCTR.GreaterThan(baseline.CTR.Mul(ctrOutperform)) &&
		wConv.GreaterThan(baseline.ConversionRate.Mul(convOutperform)):
		multiplier = rtModestRaise
		reason = "window outperforming baseline on clicks and conversions"
		urgency = enums.AdjustmentUrgencyLow
	}

	if multiplier.IsZero() {
		return &Adjustment{
			CampaignID:   campaignID,
			ShouldAdjust: false,
			Reason:       reason,
			Urgency:      urgency,
		}, nil
	}

	newBid := campaign.BidAmount.Mul(multiplier)
	newBid = railTo(newBid, campaign.BidAmount)

	return &Adjustment{
		CampaignID:   campaignID,
		ShouldAdjust: true,
		NewBid:       &newBid,
		Reason:       reason,
		Urgency:      urgency,
	}, nil
}

func (s *service) ApplyAutomaticBidAdjustments(ctx context.Context, campaignID uuid.UUID, cfg Config) (*ApplyResult, error) {
	metrics, err := s.perf.CampaignMetrics(ctx, campaignID, performance.DefaultWindowDays*24*time.Hour)
	if err != nil {
		return nil, err
	}
	if !metrics.HasSample(minSampleImpressions, minSampleClicks) {
		return &ApplyResult{
			CampaignID: campaignID,
			Applied:    false,
			Reason:     "insufficient sample to adjust bids automatically",
		}, nil
	}

	suggestion, err := s.GenerateCampaignBidSuggestion(ctx, campaignID, cfg)
	if err != nil {
		return nil, err
	}
	if suggestion.Confidence.LessThan(applyConfidence) {
		return &ApplyResult{
			CampaignID: campaignID,
			Applied:    false,
			Reason:     "suggestion confidence below automatic apply threshold",
			Suggestion: suggestion,
		}, nil
	}
	if suggestion.BidChangePct.Abs().LessThan(applyMinChange) {
		return &ApplyResult{
			CampaignID: campaignID,
			Applied:    false,
			Reason:     "suggested change too small to act on",
			Suggestion: suggestion,
		}, nil
	}

	if err := s.repo.UpdateBidAmount(ctx, campaignID, suggestion.SuggestedBid); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithCampaignID(ctx, campaignID.String())
	s.logg.Info(logCtx, fmt.Sprintf(
		"auto-adjusted bid %s -> %s: %s",
		suggestion.CurrentBid.StringFixed(4), suggestion.SuggestedBid.StringFixed(4), suggestion.Reason,
	))
	if s.notifier != nil {
		campaign, ferr := s.repo.FindCampaign(ctx, campaignID)
		if ferr == nil {
			s.notifier.BidAdjusted(ctx, campaign, suggestion.CurrentBid, suggestion.SuggestedBid, suggestion.Reason)
		}
	}

	return &ApplyResult{
		CampaignID: campaignID,
		Applied:    true,
		Reason:     suggestion.Reason,
		Suggestion: suggestion,
	}, nil
}

func (s *service) OptimizeBidsForROI(ctx context.Context, campaignIDs []uuid.UUID, totalBudgetCents int64, targetROI decimal.Decimal) (*ROIOptimization, error) {
	if len(campaignIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one campaign is required")
	}
	if totalBudgetCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total budget must be positive")
	}
	if !targetROI.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target ROI must be positive")
	}

	campaigns, err := s.repo.ListCampaignsByIDs(ctx, campaignIDs)
	if err != nil {
		return nil, err
	}
	if len(campaigns) != len(campaignIDs) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "one or more campaigns not found")
	}

	type staged struct {
		campaign models.Campaign
		bid      decimal.Decimal
		roi      decimal.Decimal
		weight   decimal.Decimal
	}

	stagedSet := make([]staged, 0, len(campaigns))
	weightSum := decimal.Zero
	roiSum := decimal.Zero

	for _, campaign := range campaigns {
		metrics, err := s.perf.CampaignMetrics(ctx, campaign.ID, performance.DefaultWindowDays*24*time.Hour)
		if err != nil {
			return nil, err
		}

		bid := campaign.BidAmount
		if metrics.Conversions > 0 && metrics.Clicks > 0 {
			avgOrderValue := decimal.NewFromInt(metrics.RevenueCents).Div(decimal.NewFromInt(metrics.Conversions * 100))
			targetCPA := avgOrderValue.Div(targetROI)
			convFraction := decimal.NewFromInt(metrics.Conversions).Div(decimal.NewFromInt(metrics.Clicks))
			bid = railTo(targetCPA.Mul(convFraction), campaign.BidAmount)
		}

		roi := metrics.ROAS
		if roi.IsZero() {
			roi = targetROI
		}
		weight := roi.Div(roi.Add(one))

		stagedSet = append(stagedSet, staged{campaign: campaign, bid: bid, roi: roi, weight: weight})
		weightSum = weightSum.Add(weight)
		roiSum = roiSum.Add(roi)
	}

	result := &ROIOptimization{Campaigns: make([]CampaignOptimization, 0, len(stagedSet))}
	total := decimal.NewFromInt(totalBudgetCents)
	for _, st := range stagedSet {
		allocated := total.Div(decimal.NewFromInt(int64(len(stagedSet))))
		if weightSum.IsPositive() {
			allocated = total.Mul(st.weight.Div(weightSum))
		}
		result.Campaigns = append(result.Campaigns, CampaignOptimization{
			CampaignID:           st.campaign.ID,
			CurrentBid:           st.campaign.BidAmount,
			OptimizedBid:         st.bid,
			AllocatedBudgetCents: allocated.IntPart(),
			ExpectedROI:          st.roi,
		})
	}
	result.MeanProjectedROI = roiSum.Div(decimal.NewFromInt(int64(len(stagedSet))))

	return result, nil
}

func (s *service) GetBidRecommendations(ctx context.Context, targeting TargetingConfig, budget BudgetRange) (*Recommendation, error) {
	if !budget.Min.IsPositive() || !budget.Max.IsPositive() || !budget.Min.LessThan(budget.Max) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "budget range must satisfy 0 < min < max")
	}

	specificity := targetingSpecificity(targeting)

	level := enums.CompetitionLevelHigh
	switch {
	case specificity.GreaterThan(recHighSpec):
		level = enums.CompetitionLevelLow
	case specificity.GreaterThan(recMidSpec):
		level = enums.CompetitionLevelMedium
	}

	bid := budget.Min.Add(budget.Max.Sub(budget.Min).Mul(recBasePoint))
	switch {
	case specificity.GreaterThan(recHighSpec):
		bid = bid.Mul(recSpecRaise)
	case specificity.LessThan(recMidSpec):
		bid = bid.Mul(recSpecLower)
	}
	switch level {
	case enums.CompetitionLevelHigh:
		bid = bid.Mul(recCompRaise)
	case enums.CompetitionLevelLow:
		bid = bid.Mul(recCompLower)
	}

	if bid.LessThan(budget.Min) {
		bid = budget.Min
	}
	if bid.GreaterThan(budget.Max) {
		bid = budget.Max
	}

	return &Recommendation{
		SuggestedBid:         bid,
		TargetingSpecificity: specificity,
		EstimatedCompetition: level,
	}, nil
}

// targetingSpecificity scores how narrow the targeting is. Each present
// dimension contributes 1/len(list) of a third, so a single-value filter on
// every axis scores 1 and an absent axis scores 0.
func targetingSpecificity(t TargetingConfig) decimal.Decimal {
	score := decimal.Zero
	for _, axis := range [][]string{t.Demographics, t.Locations, t.Behaviors} {
		if len(axis) == 0 {
			continue
		}
		score = score.Add(one.Div(decimal.NewFromInt(int64(len(axis)))))
	}
	return score.Div(targetingAxes)
}

func clampBid(bid decimal.Decimal, min, max *decimal.Decimal) (decimal.Decimal, bool) {
	clamped := false
	if min != nil && bid.LessThan(*min) {
		bid = *min
		clamped = true
	}
	if max != nil && bid.GreaterThan(*max) {
		bid = *max
		clamped = true
	}
	return bid, clamped
}

// railTo clamps bid to [0.5x, 2x] of the reference bid.
func railTo(bid, reference decimal.Decimal) decimal.Decimal {
	if !reference.IsPositive() {
		return bid
	}
	floor := reference.Mul(railFloor)
	ceil := reference.Mul(railCeil)
	if bid.LessThan(floor) {
		return floor
	}
	if bid.GreaterThan(ceil) {
		return ceil
	}
	return bid
}

func changePct(current, suggested decimal.Decimal) decimal.Decimal {
	if current.IsZero() {
		return decimal.Zero
	}
	return suggested.Sub(current).Div(current).Mul(oneHundred)
}

func rate(numerator, denominator int64) decimal.Decimal {
	if denominator == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(numerator).Div(decimal.NewFromInt(denominator)).Mul(oneHundred)
}

func projectImpact(current, suggested decimal.Decimal, level enums.CompetitionLevel, ctr decimal.Decimal) ExpectedImpact {
	ratio := one
	if current.IsPositive() {
		ratio = suggested.Div(current)
	}
	base := ratio.Sub(one).Mul(oneHundred)

	comp, ok := impactCompetition[level]
	if !ok {
		comp = one
	}
	perf := one
	if ctr.GreaterThan(impactHotCTR) {
		perf = impactHotFactor
	} else if ctr.IsPositive() && ctr.LessThan(impactColdCTR) {
		perf = impactColdFactor
	}

	clicks := base.Mul(comp).Mul(perf)
	return ExpectedImpact{
		ClicksChangePct:      clicks,
		ConversionsChangePct: clicks.Mul(impactConversionFollow),
		CostChangePct:        base,
		ROASChangePct:        base.Neg().Mul(impactROASDrag),
	}
}
