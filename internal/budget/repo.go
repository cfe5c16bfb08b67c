package budget

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-ads/pkg/db/models"
	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
	"github.com/angelmondragon/packfinderz-ads/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a budget repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&campaign).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *repository) FindBudget(ctx context.Context, campaignID uuid.UUID) (*models.CampaignBudget, error) {
	var budget models.CampaignBudget
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		First(&budget).Error
	if err != nil {
		return nil, err
	}
	return &budget, nil
}

// FindBudgetForUpdate loads the budget row under a SELECT FOR UPDATE so the
// headroom checks and the spend increment see a consistent row. Must run
// inside a transaction; drivers without row locks ignore the clause.
func (r *repository) FindBudgetForUpdate(ctx context.Context, campaignID uuid.UUID) (*models.CampaignBudget, error) {
	var budget models.CampaignBudget
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("campaign_id = ?", campaignID).
		First(&budget).Error
	if err != nil {
		return nil, err
	}
	return &budget, nil
}

func (r *repository) CreateBudget(ctx context.Context, budget *models.CampaignBudget) error {
	return r.db.WithContext(ctx).Create(budget).Error
}

func (r *repository) UpdateBudgetLock(ctx context.Context, campaignID uuid.UUID, lockID *uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.CampaignBudget{}).
		Where("campaign_id = ?", campaignID).
		Updates(map[string]any{
			"active_lock_id": lockID,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// AssociateBudgetLock attaches a wallet lock to a budget only when no lock is
// held. Returns false when another lock won the race.
func (r *repository) AssociateBudgetLock(ctx context.Context, campaignID, lockID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CampaignBudget{}).
		Where("campaign_id = ? AND active_lock_id IS NULL", campaignID).
		Updates(map[string]any{
			"active_lock_id": lockID,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateBudgetCeilings(ctx context.Context, campaignID uuid.UUID, totalCents int64, dailyCents *int64) error {
	return r.db.WithContext(ctx).
		Model(&models.CampaignBudget{}).
		Where("campaign_id = ?", campaignID).
		Updates(map[string]any{
			"total_budget_cents": totalCents,
			"daily_budget_cents": dailyCents,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *repository) ApplySpend(ctx context.Context, campaignID uuid.UUID, costCents int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CampaignBudget{}).
		Where("campaign_id = ? AND spent_cents + ? <= total_budget_cents", campaignID, costCents).
		Updates(map[string]any{
			"spent_cents": gorm.Expr("spent_cents + ?", costCents),
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SpendEventExists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SpendEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CreateSpendEvent(ctx context.Context, event *models.SpendEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) SumSpendBetween(ctx context.Context, campaignID uuid.UUID, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.SpendEvent{}).
		Select("COALESCE(SUM(cost_cents), 0)").
		Where("campaign_id = ? AND occurred_at >= ? AND occurred_at < ?", campaignID, from, to).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repository) ListSpendEvents(ctx context.Context, campaignID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.SpendEvent, error) {
	query := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var events []models.SpendEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) SetCampaignStatus(ctx context.Context, campaignID uuid.UUID, status enums.CampaignStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) SetPauseReason(ctx context.Context, campaignID uuid.UUID, reason enums.PauseReason) error {
	return r.db.WithContext(ctx).
		Model(&models.CampaignBudget{}).
		Where("campaign_id = ?", campaignID).
		Updates(map[string]any{
			"pause_reason": reason,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (r *repository) ListActiveCampaignsInWindow(ctx context.Context, now time.Time) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.CampaignStatusActive).
		Where("start_date IS NULL OR start_date <= ?", now).
		Where("end_date IS NULL OR end_date > ?", now).
		Order("created_at ASC").
		Find(&campaigns).Error
	if err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *repository) ListBudgetsPausedForDailyCap(ctx context.Context) ([]models.CampaignBudget, error) {
	var budgets []models.CampaignBudget
	err := r.db.WithContext(ctx).
		Where("pause_reason = ?", enums.PauseReasonDailyCapped).
		Order("updated_at ASC").
		Find(&budgets).Error
	if err != nil {
		return nil, err
	}
	return budgets, nil
}
