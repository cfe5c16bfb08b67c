package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-ads/internal/bidding"
	"github.com/angelmondragon/packfinderz-ads/internal/budget"
	"github.com/angelmondragon/packfinderz-ads/pkg/db/models"
	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
)

const publishTimeout = 10 * time.Second

// Emitter fans budget and bid events out to the in-app notification table
// and the notification topic. Delivery is best effort: failures are logged
// and never surfaced, so a notification outage cannot block spend recording
// or bid changes.
type Emitter interface {
	budget.Notifier
	bidding.Notifier
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type gcpPublisher struct {
	inner *gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.inner == nil {
		return nil
	}
	return p.inner.Publish(ctx, msg)
}

type emitter struct {
	repo Repository
	pub  publisher
	logg *logger.Logger
	now  func() time.Time
}

// NewEmitter builds the notification fan-out. The publisher may be nil when
// no topic is configured; rows are still written.
func NewEmitter(repo Repository, pub *gcppubsub.Publisher, logg *logger.Logger) (Emitter, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	em := &emitter{repo: repo, logg: logg, now: time.Now}
	if pub != nil {
		em.pub = &gcpPublisher{inner: pub}
	}
	return em, nil
}

func (e *emitter) BudgetWarning(ctx context.Context, campaign *models.Campaign, utilization float64) {
	e.emit(ctx, campaign, enums.NotificationTypeBudgetWarning,
		"Campaign budget almost exhausted",
		fmt.Sprintf("Campaign %q has used %.0f%% of its budget.", campaign.Name, utilization*100),
		map[string]any{"utilization": utilization},
	)
}

func (e *emitter) BudgetExhausted(ctx context.Context, campaign *models.Campaign) {
	e.emit(ctx, campaign, enums.NotificationTypeBudgetExhausted,
		"Campaign budget exhausted",
		fmt.Sprintf("Campaign %q spent its full budget and was paused.", campaign.Name),
		nil,
	)
}

func (e *emitter) DailyCapReached(ctx context.Context, campaign *models.Campaign) {
	e.emit(ctx, campaign, enums.NotificationTypeDailyCapReached,
		"Campaign daily budget reached",
		fmt.Sprintf("Campaign %q hit its daily budget and was paused until the next reset.", campaign.Name),
		nil,
	)
}

func (e *emitter) CampaignResumed(ctx context.Context, campaign *models.Campaign) {
	e.emit(ctx, campaign, enums.NotificationTypeCampaignResumed,
		"Campaign resumed",
		fmt.Sprintf("Campaign %q was resumed after the daily budget reset.", campaign.Name),
		nil,
	)
}

func (e *emitter) BidAdjusted(ctx context.Context, campaign *models.Campaign, oldBid, newBid decimal.Decimal, reason string) {
	e.emit(ctx, campaign, enums.NotificationTypeBidAdjusted,
		"Campaign bid adjusted",
		fmt.Sprintf("Campaign %q bid changed from %s to %s: %s.",
			campaign.Name, oldBid.StringFixed(2), newBid.StringFixed(2), reason),
		map[string]any{
			"old_bid": oldBid.String(),
			"new_bid": newBid.String(),
			"reason":  reason,
		},
	)
}

func (e *emitter) emit(ctx context.Context, campaign *models.Campaign, kind enums.NotificationType, title, message string, payload map[string]any) {
	if campaign == nil {
		return
	}
	logCtx := e.logg.WithCampaignID(ctx, campaign.ID.String())

	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			e.logg.Error(logCtx, "encoding notification payload", err)
		} else {
			raw = encoded
		}
	}

	campaignID := campaign.ID
	row := &models.Notification{
		ID:         uuid.New(),
		BusinessID: campaign.BusinessID,
		CampaignID: &campaignID,
		Type:       kind,
		Title:      title,
		Message:    message,
		Payload:    raw,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.repo.Create(ctx, row); err != nil {
		e.logg.Error(logCtx, fmt.Sprintf("storing %s notification", kind), err)
		return
	}

	e.publish(logCtx, row)
}

func (e *emitter) publish(ctx context.Context, row *models.Notification) {
	if e.pub == nil {
		return
	}
	data, err := json.Marshal(row)
	if err != nil {
		e.logg.Error(ctx, "encoding notification event", err)
		return
	}

	// The parent context may be cancelled right after the triggering
	// request finishes; the publish still gets its own grace window.
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	result := e.pub.Publish(publishCtx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"notification_id": row.ID.String(),
			"type":            string(row.Type),
			"business_id":     row.BusinessID.String(),
		},
	})
	if result == nil {
		e.logg.Warn(ctx, "notification publisher returned no result")
		return
	}
	if _, err := result.Get(publishCtx); err != nil {
		e.logg.Error(ctx, "publishing notification event", err)
	}
}
