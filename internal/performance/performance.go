package performance

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

// DefaultWindowDays is the rolling window used when callers do not pick one.
const DefaultWindowDays = 30

// Metrics aggregates a campaign's ad events over a rolling window. Derived
// rates fall back to zero when the denominator is zero.
type Metrics struct {
	CampaignID   uuid.UUID
	WindowStart  time.Time
	WindowEnd    time.Time
	Impressions  int64
	Clicks       int64
	Conversions  int64
	SpendCents   int64
	RevenueCents int64

	CPC            decimal.Decimal // spend per click
	CTR            decimal.Decimal // clicks/impressions*100
	CPA            decimal.Decimal // spend per conversion
	ROAS           decimal.Decimal // revenue/spend
	ConversionRate decimal.Decimal // conversions/clicks*100
}

// Reader computes performance metrics from recorded spend events.
type Reader interface {
	CampaignMetrics(ctx context.Context, campaignID uuid.UUID, window time.Duration) (*Metrics, error)
}

type reader struct {
	db  *gorm.DB
	now func() time.Time
}

// NewReader builds a performance reader over the given DB handle.
func NewReader(db *gorm.DB) (Reader, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle required")
	}
	return &reader{db: db, now: time.Now}, nil
}

type aggregateRow struct {
	Type         enums.SpendEventType
	Events       int64
	CostCents    int64
	RevenueCents int64
}

func (r *reader) CampaignMetrics(ctx context.Context, campaignID uuid.UUID, window time.Duration) (*Metrics, error) {
	if campaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}
	if window <= 0 {
		window = DefaultWindowDays * 24 * time.Hour
	}

	var exists int64
	if err := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Count(&exists).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAnalysisFailed, err, "check campaign")
	}
	if exists == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
	}

	end := r.now().UTC()
	start := end.Add(-window)

	var rows []aggregateRow
	err := r.db.WithContext(ctx).
		Model(&models.SpendEvent{}).
		Select("type, COUNT(*) AS events, COALESCE(SUM(cost_cents), 0) AS cost_cents, COALESCE(SUM(revenue_cents), 0) AS revenue_cents").
		Where("campaign_id = ? AND occurred_at >= ? AND occurred_at < ?", campaignID, start, end).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeAnalysisFailed, err, "metrics query cancelled")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeAnalysisFailed, err, "aggregate spend events")
	}

	m := &Metrics{
		CampaignID:  campaignID,
		WindowStart: start,
		WindowEnd:   end,
	}
	for _, row := range rows {
		m.SpendCents += row.CostCents
		m.RevenueCents += row.RevenueCents
		switch row.Type {
		case enums.SpendEventTypeImpression:
			m.Impressions = row.Events
		case enums.SpendEventTypeClick:
			m.Clicks = row.Events
		case enums.SpendEventTypeConversion:
			m.Conversions = row.Events
		}
	}
	m.deriveRates()
	return m, nil
}

func (m *Metrics) deriveRates() {
	spend := decimal.NewFromInt(m.SpendCents).Div(decimal.NewFromInt(100))
	revenue := decimal.NewFromInt(m.RevenueCents).Div(decimal.NewFromInt(100))
	hundred := decimal.NewFromInt(100)

	if m.Clicks > 0 {
		clicks := decimal.NewFromInt(m.Clicks)
		m.CPC = spend.Div(clicks)
		if m.Conversions > 0 {
			m.ConversionRate = decimal.NewFromInt(m.Conversions).Div(clicks).Mul(hundred)
		}
	}
	if m.Impressions > 0 {
		m.CTR = decimal.NewFromInt(m.Clicks).Div(decimal.NewFromInt(m.Impressions)).Mul(hundred)
	}
	if m.Conversions > 0 {
		m.CPA = spend.Div(decimal.NewFromInt(m.Conversions))
	}
	if m.SpendCents > 0 {
		m.ROAS = revenue.Div(spend)
	}
}

// HasSample reports whether the window holds enough data for automated
// decisions (used by the bid optimizer gates).
func (m *Metrics) HasSample(minImpressions, minClicks int64) bool {
	return m.Impressions >= minImpressions && m.Clicks >= minClicks
}
