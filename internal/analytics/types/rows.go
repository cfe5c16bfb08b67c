package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
)

// SpendFactRow mirrors the spend_facts BigQuery schema.
type SpendFactRow struct {
	EventID      string               `bigquery:"event_id"`
	OccurredAt   time.Time            `bigquery:"occurred_at"`
	CampaignID   string               `bigquery:"campaign_id"`
	BusinessID   string               `bigquery:"business_id"`
	Type         enums.SpendEventType `bigquery:"type"`
	CostCents    int64                `bigquery:"cost_cents"`
	RevenueCents int64                `bigquery:"revenue_cents"`
	Payload      cbigquery.NullJSON   `bigquery:"payload"`
}
