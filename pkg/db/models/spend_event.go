package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
)

// SpendEvent is the immutable record of one billable ad event. EventID is
// the delivery idempotency key; the unique index turns retried deliveries
// into no-ops instead of double charges.
type SpendEvent struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CampaignID   uuid.UUID            `gorm:"column:campaign_id;type:uuid;not null;index:idx_spend_events_campaign_time"`
	Type         enums.SpendEventType `gorm:"column:type;type:spend_event_type;not null"`
	CostCents    int64                `gorm:"column:cost_cents;not null"`
	RevenueCents int64                `gorm:"column:revenue_cents;not null;default:0"`
	EventID      string               `gorm:"column:event_id;not null;uniqueIndex:ux_spend_events_event_id"`
	OccurredAt   time.Time            `gorm:"column:occurred_at;type:timestamptz;not null;index:idx_spend_events_campaign_time"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
}
