package competition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-ads/pkg/db/models"
	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
)

// Tunable policy constants. These encode product heuristics, not derived
// science; adjust with product sign-off.
const (
	// SampleCap bounds how many comparable campaigns feed one analysis.
	SampleCap = 20
	// MediumThreshold and HighThreshold split the competitor count into
	// low / medium / high bands.
	MediumThreshold = 5
	HighThreshold   = 15
)

// DefaultAverageBid is the floor used when no competitors exist, keeping
// downstream ratios away from zero.
var DefaultAverageBid = decimal.NewFromInt(2)

// bidRangeFactors hold the (min, recommended, max) multipliers applied to
// the average competitor bid. They widen and shift upward with competition.
var bidRangeFactors = map[enums.CompetitionLevel][3]decimal.Decimal{
	enums.CompetitionLevelLow:    {decimal.NewFromFloat(0.7), decimal.NewFromFloat(0.9), decimal.NewFromFloat(1.2)},
	enums.CompetitionLevelMedium: {decimal.NewFromFloat(0.8), decimal.NewFromFloat(1.1), decimal.NewFromFloat(1.5)},
	enums.CompetitionLevelHigh:   {decimal.NewFromFloat(1.0), decimal.NewFromFloat(1.3), decimal.NewFromFloat(2.0)},
}

// Seasonal factors are a fixed calendar placeholder for a real seasonal
// model: the Nov-Dec shopping peak and the Jun-Aug summer lull.
var (
	seasonalPeakFactor = decimal.NewFromFloat(1.3)
	seasonalLullFactor = decimal.NewFromFloat(0.9)
	seasonalFlatFactor = decimal.NewFromInt(1)
)

// BidRange brackets reasonable bids for the current market.
type BidRange struct {
	Min         decimal.Decimal
	Max         decimal.Decimal
	Recommended decimal.Decimal
}

// SeasonalTrend reports the calendar adjustment applied to the analysis.
type SeasonalTrend struct {
	Direction enums.TrendDirection
	Factor    decimal.Decimal
}

// Analysis is the market snapshot for one campaign.
type Analysis struct {
	CampaignID           uuid.UUID
	Level                enums.CompetitionLevel
	SampleSize           int
	AverageCompetitorBid decimal.Decimal
	BidRange             BidRange
	SeasonalTrend        SeasonalTrend
}

// Analyzer estimates market competitiveness for a campaign.
type Analyzer interface {
	AnalyzeCompetition(ctx context.Context, campaignID uuid.UUID) (*Analysis, error)
}

type analyzer struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAnalyzer builds a competition analyzer over the given DB handle.
func NewAnalyzer(db *gorm.DB) (Analyzer, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle required")
	}
	return &analyzer{db: db, now: time.Now}, nil
}

func (a *analyzer) AnalyzeCompetition(ctx context.Context, campaignID uuid.UUID) (*Analysis, error) {
	if campaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}

	var campaign models.Campaign
	err := a.db.WithContext(ctx).Where("id = ?", campaignID).First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeAnalysisFailed, err, "load campaign")
	}

	var competitors []models.Campaign
	err = a.db.WithContext(ctx).
		Where("type = ? AND status = ? AND id <> ?", campaign.Type, enums.CampaignStatusActive, campaignID).
		Order("created_at DESC").
		Limit(SampleCap).
		Find(&competitors).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAnalysisFailed, err, "load comparable campaigns")
	}

	level := levelForCount(len(competitors))
	avgBid := averageBid(competitors)
	factors := bidRangeFactors[level]

	analysis := &Analysis{
		CampaignID:           campaignID,
		Level:                level,
		SampleSize:           len(competitors),
		AverageCompetitorBid: avgBid,
		BidRange: BidRange{
			Min:         avgBid.Mul(factors[0]),
			Recommended: avgBid.Mul(factors[1]),
			Max:         avgBid.Mul(factors[2]),
		},
		SeasonalTrend: seasonalTrend(a.now().UTC()),
	}
	return analysis, nil
}

func levelForCount(count int) enums.CompetitionLevel {
	switch {
	case count < MediumThreshold:
		return enums.CompetitionLevelLow
	case count < HighThreshold:
		return enums.CompetitionLevelMedium
	default:
		return enums.CompetitionLevelHigh
	}
}

func averageBid(competitors []models.Campaign) decimal.Decimal {
	if len(competitors) == 0 {
		return DefaultAverageBid
	}
	sum := decimal.Zero
	for _, c := range competitors {
		sum = sum.Add(c.BidAmount)
	}
	return sum.Div(decimal.NewFromInt(int64(len(competitors))))
}

func seasonalTrend(now time.Time) SeasonalTrend {
	switch now.Month() {
	case time.November, time.December:
		return SeasonalTrend{Direction: enums.TrendDirectionIncreasing, Factor: seasonalPeakFactor}
	case time.June, time.July, time.August:
		return SeasonalTrend{Direction: enums.TrendDirectionDecreasing, Factor: seasonalLullFactor}
	default:
		return SeasonalTrend{Direction: enums.TrendDirectionStable, Factor: seasonalFlatFactor}
	}
}
