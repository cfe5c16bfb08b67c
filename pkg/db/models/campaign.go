package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
)

// Campaign holds the slice of the campaign record the budget and bidding
// engines read. Creation, approval, and creative management live in the
// campaign-management service.
type Campaign struct {
	ID         uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BusinessID uuid.UUID            `gorm:"column:business_id;type:uuid;not null;index"`
	Name       string               `gorm:"column:name;not null"`
	Type       enums.CampaignType   `gorm:"column:type;type:campaign_type;not null"`
	Status     enums.CampaignStatus `gorm:"column:status;type:campaign_status;not null;default:'draft'"`
	BidAmount  decimal.Decimal      `gorm:"column:bid_amount;type:numeric(12,4);not null;default:0"`
	Targeting  json.RawMessage      `gorm:"column:targeting;type:jsonb"`
	StartDate  *time.Time           `gorm:"column:start_date;type:timestamptz"`
	EndDate    *time.Time           `gorm:"column:end_date;type:timestamptz"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
