package spend

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-ads/internal/analytics"
	"github.com/angelmondragon/packfinderz-ads/internal/analytics/types"
	"github.com/angelmondragon/packfinderz-ads/internal/budget"
	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
)

const spendConsumerName = "spend"

// AdEvent is the wire payload ad serving publishes for every billable event.
type AdEvent struct {
	EventID      string               `json:"event_id"`
	CampaignID   uuid.UUID            `json:"campaign_id"`
	BusinessID   uuid.UUID            `json:"business_id"`
	Type         enums.SpendEventType `json:"type"`
	CostCents    int64                `json:"cost_cents"`
	RevenueCents int64                `json:"revenue_cents"`
	Description  string               `json:"description"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

type budgetService interface {
	DeductCost(ctx context.Context, input budget.DeductCostInput) (*budget.DeductResult, error)
}

type factWriter interface {
	InsertSpendFact(ctx context.Context, row types.SpendFactRow) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer drains the ad events subscription into the budget manager and the
// spend facts table.
type Consumer struct {
	subscription *gcppubsub.Subscriber
	budget       budgetService
	facts        factWriter
	manager      idempotencyChecker
	logg         *logger.Logger
	now          func() time.Time
}

// NewConsumer builds the spend consumer. The fact writer may be nil when
// BigQuery export is disabled.
func NewConsumer(
	subscription *gcppubsub.Subscriber,
	budgetSvc budgetService,
	facts factWriter,
	manager idempotencyChecker,
	logg *logger.Logger,
) (*Consumer, error) {
	if subscription == nil {
		return nil, errors.New("ad events subscription is required")
	}
	if budgetSvc == nil {
		return nil, errors.New("budget service is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		subscription: subscription,
		budget:       budgetSvc,
		facts:        facts,
		manager:      manager,
		logg:         logg,
		now:          time.Now,
	}, nil
}

type processResult struct {
	nack bool
}

// Run starts consuming ad events until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if c.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{"message_id": msg.ID}
	logCtx := c.logg.WithFields(ctx, fields)

	var event AdEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logg.Error(logCtx, "invalid ad event payload", err)
		return processResult{}
	}

	fields["event_id"] = event.EventID
	fields["campaign_id"] = event.CampaignID.String()
	fields["event_type"] = event.Type
	logCtx = c.logg.WithFields(ctx, fields)

	eventID, err := uuid.Parse(strings.TrimSpace(event.EventID))
	if err != nil {
		c.logg.Warn(logCtx, "dropping ad event with malformed event id")
		return processResult{}
	}

	already, err := c.manager.CheckAndMarkProcessed(logCtx, spendConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "ad event already processed")
		return processResult{}
	}

	result, err := c.budget.DeductCost(logCtx, budget.DeductCostInput{
		CampaignID:   event.CampaignID,
		CostCents:    event.CostCents,
		RevenueCents: event.RevenueCents,
		EventType:    event.Type,
		EventID:      eventID.String(),
		Description:  event.Description,
		OccurredAt:   event.OccurredAt,
	})
	if err != nil {
		if isPermanentRefusal(err) {
			// The budget manager refused the charge for good. Redelivery
			// cannot change the outcome, so the message is settled.
			c.logg.Warn(logCtx, "ad event refused: "+err.Error())
			return processResult{}
		}
		c.logg.Error(logCtx, "deducting ad event cost", err)
		_ = c.manager.Delete(logCtx, spendConsumerName, eventID)
		return processResult{nack: true}
	}
	if result.Duplicate {
		c.logg.Info(logCtx, "ad event cost already recorded")
	}

	if err := c.exportFact(logCtx, event, eventID); err != nil {
		// Unmark so redelivery retries the export; the deduction itself is
		// protected by the spend event unique index.
		c.logg.Error(logCtx, "exporting spend fact", err)
		_ = c.manager.Delete(logCtx, spendConsumerName, eventID)
		return processResult{nack: true}
	}

	return processResult{}
}

func (c *Consumer) exportFact(ctx context.Context, event AdEvent, eventID uuid.UUID) error {
	if c.facts == nil {
		return nil
	}

	payload := cbigquery.NullJSON{}
	if event.Description != "" {
		encoded, err := json.Marshal(map[string]string{"description": event.Description})
		if err == nil {
			payload = cbigquery.NullJSON{Valid: true, JSONVal: string(encoded)}
		}
	}

	return c.facts.InsertSpendFact(ctx, types.SpendFactRow{
		EventID:      eventID.String(),
		OccurredAt:   analytics.FactTimestamp(event.OccurredAt, c.now()),
		CampaignID:   event.CampaignID.String(),
		BusinessID:   event.BusinessID.String(),
		Type:         event.Type,
		CostCents:    event.CostCents,
		RevenueCents: event.RevenueCents,
		Payload:      payload,
	})
}

func isPermanentRefusal(err error) bool {
	for _, code := range []pkgerrors.Code{
		pkgerrors.CodeValidation,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeStateConflict,
		pkgerrors.CodeBudgetExhausted,
		pkgerrors.CodeDailyBudgetHit,
	} {
		if pkgerrors.HasCode(err, code) {
			return true
		}
	}
	return false
}
