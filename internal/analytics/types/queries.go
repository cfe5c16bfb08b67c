package types

import "time"

// SpendQueryRequest carries the input parameters for spend analytics queries.
type SpendQueryRequest struct {
	CampaignID string
	Start      time.Time
	End        time.Time
}

// TimeSeriesPoint describes a single date/value pair returned by the query service.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// LabelValue represents a keyed aggregate such as spend by event type.
type LabelValue struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// BurnRateReport summarizes how fast a campaign is consuming its budget.
type BurnRateReport struct {
	CampaignID               string            `json:"campaign_id"`
	Start                    time.Time         `json:"start"`
	End                      time.Time         `json:"end"`
	SpendCents               int64             `json:"spend_cents"`
	RevenueCents             int64             `json:"revenue_cents"`
	DailySpend               []TimeSeriesPoint `json:"daily_spend"`
	SpendByType              []LabelValue      `json:"spend_by_type"`
	HourlyBurnCents          int64             `json:"hourly_burn_cents"`
	PeakHourCents            int64             `json:"peak_hour_cents"`
	ProjectedDailySpendCents int64             `json:"projected_daily_spend_cents"`
}
