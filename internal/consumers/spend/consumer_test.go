package spend

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-ads/internal/analytics/types"
	"github.com/angelmondragon/packfinderz-ads/internal/budget"
	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
)

func TestProcessDeductsAndExportsFact(t *testing.T) {
	manager := &stubManager{}
	budgetSvc := &stubBudget{result: &budget.DeductResult{SpentCents: 150, RemainingCents: 850}}
	facts := &stubWriter{}
	c := newTestConsumer(t, budgetSvc, facts, manager)

	event := buildEvent()
	res := c.process(context.Background(), buildSpendMessage(t, event))
	if res.nack {
		t.Fatalf("expected ack, got nack")
	}
	if len(manager.checked) != 1 {
		t.Fatalf("expected one idempotency check, got %d", len(manager.checked))
	}
	if budgetSvc.input == nil {
		t.Fatal("expected deduction to run")
	}
	if budgetSvc.input.CampaignID != event.CampaignID {
		t.Fatalf("unexpected campaign id %s", budgetSvc.input.CampaignID)
	}
	if budgetSvc.input.CostCents != 150 {
		t.Fatalf("unexpected cost %d", budgetSvc.input.CostCents)
	}
	if budgetSvc.input.EventID != event.EventID {
		t.Fatalf("unexpected event id %s", budgetSvc.input.EventID)
	}
	if len(facts.rows) != 1 {
		t.Fatalf("expected one exported fact, got %d", len(facts.rows))
	}
	row := facts.rows[0]
	if row.EventID != event.EventID {
		t.Fatalf("unexpected fact event id %s", row.EventID)
	}
	if row.Type != enums.SpendEventTypeClick {
		t.Fatalf("unexpected fact type %v", row.Type)
	}
	if !row.OccurredAt.Equal(event.OccurredAt) {
		t.Fatalf("unexpected fact timestamp %v", row.OccurredAt)
	}
}

func TestProcessAlreadyProcessedSkipsDeduction(t *testing.T) {
	manager := &stubManager{checkResult: true}
	budgetSvc := &stubBudget{}
	c := newTestConsumer(t, budgetSvc, &stubWriter{}, manager)

	res := c.process(context.Background(), buildSpendMessage(t, buildEvent()))
	if res.nack {
		t.Fatalf("expected ack, got nack")
	}
	if budgetSvc.input != nil {
		t.Fatal("deduction should not run for a processed event")
	}
}

func TestProcessInvalidPayloadAcks(t *testing.T) {
	manager := &stubManager{}
	budgetSvc := &stubBudget{}
	c := newTestConsumer(t, budgetSvc, &stubWriter{}, manager)

	msg := &gcppubsub.Message{ID: "msg-1", Data: []byte("not json")}
	res := c.process(context.Background(), msg)
	if res.nack {
		t.Fatalf("invalid payload should ack")
	}
	if len(manager.checked) != 0 {
		t.Fatal("idempotency manager should not be touched")
	}
}

func TestProcessMalformedEventIDAcks(t *testing.T) {
	manager := &stubManager{}
	budgetSvc := &stubBudget{}
	c := newTestConsumer(t, budgetSvc, &stubWriter{}, manager)

	event := buildEvent()
	event.EventID = "not-a-uuid"
	res := c.process(context.Background(), buildSpendMessage(t, event))
	if res.nack {
		t.Fatalf("malformed event id should ack")
	}
	if budgetSvc.input != nil {
		t.Fatal("deduction should not run")
	}
}

func TestProcessPermanentRefusalAcks(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{name: "exhausted", err: pkgerrors.New(pkgerrors.CodeBudgetExhausted, "no headroom")},
		{name: "daily cap", err: pkgerrors.New(pkgerrors.CodeDailyBudgetHit, "ceiling")},
		{name: "not found", err: pkgerrors.New(pkgerrors.CodeNotFound, "no budget")},
		{name: "paused", err: pkgerrors.New(pkgerrors.CodeStateConflict, "campaign paused")},
		{name: "validation", err: pkgerrors.New(pkgerrors.CodeValidation, "cost required")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			manager := &stubManager{}
			budgetSvc := &stubBudget{err: tc.err}
			facts := &stubWriter{}
			c := newTestConsumer(t, budgetSvc, facts, manager)

			res := c.process(context.Background(), buildSpendMessage(t, buildEvent()))
			if res.nack {
				t.Fatalf("permanent refusal should ack")
			}
			if len(manager.deleted) != 0 {
				t.Fatal("refused events stay marked processed")
			}
			if len(facts.rows) != 0 {
				t.Fatal("refused events should not export facts")
			}
		})
	}
}

func TestProcessTransientErrorRetries(t *testing.T) {
	manager := &stubManager{}
	budgetSvc := &stubBudget{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "deduct")}
	c := newTestConsumer(t, budgetSvc, &stubWriter{}, manager)

	res := c.process(context.Background(), buildSpendMessage(t, buildEvent()))
	if !res.nack {
		t.Fatalf("expected nack on transient error")
	}
	if len(manager.deleted) != 1 {
		t.Fatalf("expected idempotency delete before redelivery")
	}
}

func TestProcessDuplicateDeductionStillExports(t *testing.T) {
	manager := &stubManager{}
	budgetSvc := &stubBudget{result: &budget.DeductResult{Duplicate: true}}
	facts := &stubWriter{}
	c := newTestConsumer(t, budgetSvc, facts, manager)

	res := c.process(context.Background(), buildSpendMessage(t, buildEvent()))
	if res.nack {
		t.Fatalf("expected ack, got nack")
	}
	if len(facts.rows) != 1 {
		t.Fatalf("expected fact export on duplicate charge, got %d rows", len(facts.rows))
	}
}

func TestProcessFactExportFailureRetries(t *testing.T) {
	manager := &stubManager{}
	budgetSvc := &stubBudget{result: &budget.DeductResult{}}
	facts := &stubWriter{err: errors.New("bigquery unavailable")}
	c := newTestConsumer(t, budgetSvc, facts, manager)

	res := c.process(context.Background(), buildSpendMessage(t, buildEvent()))
	if !res.nack {
		t.Fatalf("expected nack when fact export fails")
	}
	if len(manager.deleted) != 1 {
		t.Fatalf("expected idempotency delete so redelivery retries the export")
	}
}

func TestProcessWithoutFactWriter(t *testing.T) {
	manager := &stubManager{}
	budgetSvc := &stubBudget{result: &budget.DeductResult{}}
	c := newTestConsumer(t, budgetSvc, nil, manager)

	res := c.process(context.Background(), buildSpendMessage(t, buildEvent()))
	if res.nack {
		t.Fatalf("expected ack without a fact writer")
	}
}

func buildEvent() AdEvent {
	return AdEvent{
		EventID:     uuid.NewString(),
		CampaignID:  uuid.New(),
		BusinessID:  uuid.New(),
		Type:        enums.SpendEventTypeClick,
		CostCents:   150,
		OccurredAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Description: "search placement click",
	}
}

func buildSpendMessage(t *testing.T, event AdEvent) *gcppubsub.Message {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return &gcppubsub.Message{ID: "msg-1", Data: data}
}

func newTestConsumer(t *testing.T, budgetSvc budgetService, facts factWriter, manager idempotencyChecker) *Consumer {
	t.Helper()
	return &Consumer{
		budget:  budgetSvc,
		facts:   facts,
		manager: manager,
		logg:    logger.New(logger.Options{ServiceName: "spend-test"}),
		now:     time.Now,
	}
}

type stubBudget struct {
	input  *budget.DeductCostInput
	result *budget.DeductResult
	err    error
}

func (s *stubBudget) DeductCost(ctx context.Context, input budget.DeductCostInput) (*budget.DeductResult, error) {
	s.input = &input
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubWriter struct {
	rows []types.SpendFactRow
	err  error
}

func (s *stubWriter) InsertSpendFact(ctx context.Context, row types.SpendFactRow) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, row)
	return nil
}

type stubManager struct {
	checkResult bool
	checkErr    error
	deleteErr   error
	checked     []uuid.UUID
	deleted     []uuid.UUID
}

func (s *stubManager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	s.checked = append(s.checked, eventID)
	return s.checkResult, s.checkErr
}

func (s *stubManager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	s.deleted = append(s.deleted, eventID)
	return s.deleteErr
}
