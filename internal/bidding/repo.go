package bidding

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-ads/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
)

// Repository is the narrow campaign surface the optimizer needs.
type Repository interface {
	FindCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	ListCampaignsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Campaign, error)
	UpdateBidAmount(ctx context.Context, id uuid.UUID, bid decimal.Decimal) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a gorm-backed Repository.
func NewRepository(db *gorm.DB) (Repository, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bidding repository requires a database handle")
	}
	return &repository{db: db}, nil
}

func (r *repository) FindCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.WithContext(ctx).First(&campaign, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finding campaign")
	}
	return &campaign, nil
}

func (r *repository) ListCampaignsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Campaign, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var campaigns []models.Campaign
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at ASC").
		Find(&campaigns).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing campaigns")
	}
	return campaigns, nil
}

func (r *repository) UpdateBidAmount(ctx context.Context, id uuid.UUID, bid decimal.Decimal) error {
	res := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"bid_amount": bid,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "updating bid amount")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
	}
	return nil
}
