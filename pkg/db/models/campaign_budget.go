package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
)

// CampaignBudget is the single source of truth for how much a campaign may
// still spend. SpentCents only moves through the conditional update in the
// budget repository so it can never pass TotalBudgetCents.
type CampaignBudget struct {
	CampaignID       uuid.UUID         `gorm:"column:campaign_id;type:uuid;primaryKey"`
	BusinessID       uuid.UUID         `gorm:"column:business_id;type:uuid;not null;index"`
	TotalBudgetCents int64             `gorm:"column:total_budget_cents;not null"`
	DailyBudgetCents *int64            `gorm:"column:daily_budget_cents"`
	SpentCents       int64             `gorm:"column:spent_cents;not null;default:0"`
	ActiveLockID     *uuid.UUID        `gorm:"column:active_lock_id;type:uuid"`
	PauseReason      enums.PauseReason `gorm:"column:pause_reason;type:pause_reason;not null;default:'none'"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// RemainingCents reports the un-spent budget, clamped at zero.
func (b CampaignBudget) RemainingCents() int64 {
	remaining := b.TotalBudgetCents - b.SpentCents
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsExhausted reports whether cumulative spend has reached the total ceiling.
func (b CampaignBudget) IsExhausted() bool {
	return b.SpentCents >= b.TotalBudgetCents
}
