package writer

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/packfinderz-ads/internal/analytics/types"
	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
)

type fakeInserter struct {
	errs  []error
	calls [][]any
}

func (f *fakeInserter) InsertRows(_ context.Context, _ string, rows []any) error {
	f.calls = append(f.calls, rows)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func newTestWriter(client tableInserter, batchSize int) *BigQueryWriter {
	return &BigQueryWriter{
		client:    client,
		table:     "spend_facts",
		batchSize: batchSize,
		retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaximumBackoff: 2 * time.Millisecond,
		},
	}
}

func factRow(eventID string) types.SpendFactRow {
	return types.SpendFactRow{
		EventID:    eventID,
		OccurredAt: time.Now().UTC(),
		CampaignID: "c1",
		BusinessID: "b1",
		Type:       enums.SpendEventTypeClick,
		CostCents:  50,
	}
}

func TestWriterBuffersUntilBatchSize(t *testing.T) {
	inserter := &fakeInserter{}
	w := newTestWriter(inserter, 2)

	if err := w.InsertSpendFact(context.Background(), factRow("e1")); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	if len(inserter.calls) != 0 {
		t.Fatalf("expected buffered row, got %d calls", len(inserter.calls))
	}

	if err := w.InsertSpendFact(context.Background(), factRow("e2")); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	if len(inserter.calls) != 1 {
		t.Fatalf("expected one flush, got %d", len(inserter.calls))
	}
	if len(inserter.calls[0]) != 2 {
		t.Fatalf("expected 2 rows in flush, got %d", len(inserter.calls[0]))
	}
}

func TestWriterRetriesRetryableErrors(t *testing.T) {
	inserter := &fakeInserter{
		errs: []error{
			&googleapi.Error{Code: http.StatusServiceUnavailable},
			&googleapi.Error{Code: http.StatusTooManyRequests},
		},
	}
	w := newTestWriter(inserter, 1)

	if err := w.InsertSpendFact(context.Background(), factRow("e1")); err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if len(inserter.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(inserter.calls))
	}
}

func TestWriterStopsOnNonRetryableError(t *testing.T) {
	inserter := &fakeInserter{errs: []error{errors.New("schema mismatch")}}
	w := newTestWriter(inserter, 1)

	if err := w.InsertSpendFact(context.Background(), factRow("e1")); err == nil {
		t.Fatal("expected error")
	}
	if len(inserter.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(inserter.calls))
	}
}

func TestWriterFlushEmptyIsNoop(t *testing.T) {
	inserter := &fakeInserter{}
	w := newTestWriter(inserter, 5)
	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}
	if len(inserter.calls) != 0 {
		t.Fatalf("expected no calls, got %d", len(inserter.calls))
	}
}
