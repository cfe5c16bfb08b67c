package budget

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
)

// LockBudgetInput reserves wallet funds for a campaign and records its
// spend ceilings.
type LockBudgetInput struct {
	BusinessID       uuid.UUID
	CampaignID       uuid.UUID
	AmountCents      int64
	DailyBudgetCents *int64
	Reason           string
}

// DeductCostInput charges one billable ad event against the campaign budget.
type DeductCostInput struct {
	CampaignID uuid.UUID
	CostCents  int64
	// RevenueCents is attributed revenue for conversion events; zero for
	// impressions and clicks.
	RevenueCents int64
	EventType    enums.SpendEventType
	EventID      string
	Description  string
	OccurredAt   time.Time
}

// DeductResult reports the budget position after a deduction attempt.
type DeductResult struct {
	SpentCents      int64
	RemainingCents  int64
	DailySpentCents int64
	Exhausted       bool
	// Duplicate marks a redelivered event. The charge was already applied
	// by an earlier delivery and nothing changed this time.
	Duplicate bool
}

// Status is the read-side view of a campaign budget.
type Status struct {
	CampaignID          uuid.UUID
	TotalBudgetCents    int64
	SpentCents          int64
	RemainingCents      int64
	DailyBudgetCents    *int64
	DailySpentCents     int64
	DailyRemainingCents int64
	Utilization         float64
	IsExhausted         bool
	ActiveLockID        *uuid.UUID
	PauseReason         enums.PauseReason
}

// SweepResult reports what a monitor pass did, per campaign.
type SweepResult struct {
	PausedIDs []uuid.UUID
	WarnedIDs []uuid.UUID
	FailedIDs []uuid.UUID
}

// ResetResult reports which daily-capped campaigns a reset pass resumed.
type ResetResult struct {
	ResumedIDs []uuid.UUID
	FailedIDs  []uuid.UUID
}
