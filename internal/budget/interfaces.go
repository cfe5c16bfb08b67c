package budget

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-ads/pkg/db/models"
	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
	"github.com/angelmondragon/packfinderz-ads/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notifier delivers best-effort budget alerts. Implementations never
// return errors; delivery failures are logged and swallowed.
type Notifier interface {
	BudgetWarning(ctx context.Context, campaign *models.Campaign, utilization float64)
	BudgetExhausted(ctx context.Context, campaign *models.Campaign)
	DailyCapReached(ctx context.Context, campaign *models.Campaign)
	CampaignResumed(ctx context.Context, campaign *models.Campaign)
}

// Repository defines the persistence operations the budget manager needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	FindBudget(ctx context.Context, campaignID uuid.UUID) (*models.CampaignBudget, error)

	// FindBudgetForUpdate locks the budget row for the duration of the
	// surrounding transaction so headroom checks and the spend increment
	// cannot interleave with a concurrent deduction.
	FindBudgetForUpdate(ctx context.Context, campaignID uuid.UUID) (*models.CampaignBudget, error)

	CreateBudget(ctx context.Context, budget *models.CampaignBudget) error
	UpdateBudgetLock(ctx context.Context, campaignID uuid.UUID, lockID *uuid.UUID) error

	// AssociateBudgetLock sets active_lock_id only when the column is NULL.
	// Returns false when a concurrent lock attempt already claimed the row.
	AssociateBudgetLock(ctx context.Context, campaignID, lockID uuid.UUID) (bool, error)
	UpdateBudgetCeilings(ctx context.Context, campaignID uuid.UUID, totalCents int64, dailyCents *int64) error

	// ApplySpend increments spent_cents only when the result stays within
	// total_budget_cents. The guard and the increment are a single
	// conditional UPDATE so concurrent deductions cannot race past the
	// ceiling. Returns false when the guard rejects the increment.
	ApplySpend(ctx context.Context, campaignID uuid.UUID, costCents int64) (bool, error)

	SpendEventExists(ctx context.Context, eventID string) (bool, error)
	CreateSpendEvent(ctx context.Context, event *models.SpendEvent) error
	SumSpendBetween(ctx context.Context, campaignID uuid.UUID, from, to time.Time) (int64, error)
	ListSpendEvents(ctx context.Context, campaignID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.SpendEvent, error)

	SetCampaignStatus(ctx context.Context, campaignID uuid.UUID, status enums.CampaignStatus) error
	SetPauseReason(ctx context.Context, campaignID uuid.UUID, reason enums.PauseReason) error

	ListActiveCampaignsInWindow(ctx context.Context, now time.Time) ([]models.Campaign, error)
	ListBudgetsPausedForDailyCap(ctx context.Context) ([]models.CampaignBudget, error)
}
