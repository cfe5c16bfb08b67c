package budget

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-ads/internal/wallet"
	"github.com/angelmondragon/packfinderz-ads/pkg/config"
	"github.com/angelmondragon/packfinderz-ads/pkg/db/models"
	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
	"github.com/angelmondragon/packfinderz-ads/pkg/pagination"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type fakeLedger struct {
	lockFn    func(ctx context.Context, params wallet.LockParams) (*wallet.Lock, error)
	releaseFn func(ctx context.Context, lockID uuid.UUID) error
	debitFn   func(ctx context.Context, params wallet.DebitParams) error
	balanceFn func(ctx context.Context, businessID uuid.UUID) (int64, error)

	debits   []wallet.DebitParams
	releases []uuid.UUID
}

func (f *fakeLedger) Lock(ctx context.Context, params wallet.LockParams) (*wallet.Lock, error) {
	if f.lockFn != nil {
		return f.lockFn(ctx, params)
	}
	return &wallet.Lock{ID: uuid.New(), BusinessID: params.BusinessID, AmountCents: params.AmountCents}, nil
}

func (f *fakeLedger) Release(ctx context.Context, lockID uuid.UUID) error {
	f.releases = append(f.releases, lockID)
	if f.releaseFn != nil {
		return f.releaseFn(ctx, lockID)
	}
	return nil
}

func (f *fakeLedger) Debit(ctx context.Context, params wallet.DebitParams) error {
	f.debits = append(f.debits, params)
	if f.debitFn != nil {
		return f.debitFn(ctx, params)
	}
	return nil
}

func (f *fakeLedger) GetAvailableBalance(ctx context.Context, businessID uuid.UUID) (int64, error) {
	if f.balanceFn != nil {
		return f.balanceFn(ctx, businessID)
	}
	return 1_000_000, nil
}

type recordingNotifier struct {
	warnings  []uuid.UUID
	exhausted []uuid.UUID
	dailyCaps []uuid.UUID
	resumed   []uuid.UUID
}

func (n *recordingNotifier) BudgetWarning(ctx context.Context, campaign *models.Campaign, utilization float64) {
	n.warnings = append(n.warnings, campaign.ID)
}

func (n *recordingNotifier) BudgetExhausted(ctx context.Context, campaign *models.Campaign) {
	n.exhausted = append(n.exhausted, campaign.ID)
}

func (n *recordingNotifier) DailyCapReached(ctx context.Context, campaign *models.Campaign) {
	n.dailyCaps = append(n.dailyCaps, campaign.ID)
}

func (n *recordingNotifier) CampaignResumed(ctx context.Context, campaign *models.Campaign) {
	n.resumed = append(n.resumed, campaign.ID)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:budget_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	campaigns := `
CREATE TABLE IF NOT EXISTS campaigns (
  id TEXT PRIMARY KEY,
  business_id TEXT NOT NULL,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'draft',
  bid_amount TEXT NOT NULL DEFAULT '0',
  targeting TEXT,
  start_date DATETIME,
  end_date DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	budgets := `
CREATE TABLE IF NOT EXISTS campaign_budgets (
  campaign_id TEXT PRIMARY KEY,
  business_id TEXT NOT NULL,
  total_budget_cents INTEGER NOT NULL,
  daily_budget_cents INTEGER,
  spent_cents INTEGER NOT NULL DEFAULT 0,
  active_lock_id TEXT,
  pause_reason TEXT NOT NULL DEFAULT 'none',
  created_at DATETIME,
  updated_at DATETIME
);`
	spendEvents := `
CREATE TABLE IF NOT EXISTS spend_events (
  id TEXT PRIMARY KEY,
  campaign_id TEXT NOT NULL,
  type TEXT NOT NULL,
  cost_cents INTEGER NOT NULL,
  revenue_cents INTEGER NOT NULL DEFAULT 0,
  event_id TEXT NOT NULL,
  occurred_at DATETIME NOT NULL,
  created_at DATETIME
);`
	eventIndex := `CREATE UNIQUE INDEX IF NOT EXISTS ux_spend_events_event_id ON spend_events (event_id);`

	for _, stmt := range []string{campaigns, budgets, spendEvents, eventIndex} {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func testBudgetConfig() config.BudgetConfig {
	return config.BudgetConfig{
		MaxLockCents:       10_000_000,
		MaxEventCostCents:  10_000,
		WarnUtilization:    0.9,
		SweepWarnLow:       0.8,
		ResetWindowMinutes: 30,
	}
}

type fixture struct {
	svc      *service
	db       *gorm.DB
	ledger   *fakeLedger
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	ledger := &fakeLedger{}
	notifier := &recordingNotifier{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	svc, err := NewService(NewRepository(db), gormTxRunner{db: db}, ledger, notifier, logg, testBudgetConfig(), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{
		svc:      svc.(*service),
		db:       db,
		ledger:   ledger,
		notifier: notifier,
	}
}

func (f *fixture) seedCampaign(t *testing.T, businessID uuid.UUID, status enums.CampaignStatus) uuid.UUID {
	t.Helper()
	campaign := models.Campaign{
		ID:         uuid.New(),
		BusinessID: businessID,
		Name:       "Spring Promo",
		Type:       enums.CampaignTypeSponsoredListing,
		Status:     status,
	}
	if err := f.db.Create(&campaign).Error; err != nil {
		t.Fatalf("seed campaign: %v", err)
	}
	return campaign.ID
}

func (f *fixture) seedBudget(t *testing.T, campaignID, businessID uuid.UUID, totalCents, spentCents int64, dailyCents *int64) uuid.UUID {
	t.Helper()
	lockID := uuid.New()
	budget := models.CampaignBudget{
		CampaignID:       campaignID,
		BusinessID:       businessID,
		TotalBudgetCents: totalCents,
		DailyBudgetCents: dailyCents,
		SpentCents:       spentCents,
		ActiveLockID:     &lockID,
		PauseReason:      enums.PauseReasonNone,
	}
	if err := f.db.Create(&budget).Error; err != nil {
		t.Fatalf("seed budget: %v", err)
	}
	return lockID
}

func int64Ptr(v int64) *int64 {
	return &v
}

func TestLockBudgetCreatesBudgetAndLock(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	businessID := uuid.New()
	campaignID := f.seedCampaign(t, businessID, enums.CampaignStatusDraft)

	lockID, err := f.svc.LockBudget(context.Background(), LockBudgetInput{
		BusinessID:       businessID,
		CampaignID:       campaignID,
		AmountCents:      100_000,
		DailyBudgetCents: int64Ptr(10_000),
	})
	if err != nil {
		t.Fatalf("lock budget: %v", err)
	}
	if lockID == uuid.Nil {
		t.Fatal("expected lock id")
	}

	var budget models.CampaignBudget
	if err := f.db.First(&budget, "campaign_id = ?", campaignID).Error; err != nil {
		t.Fatalf("load budget: %v", err)
	}
	if budget.TotalBudgetCents != 100_000 || budget.ActiveLockID == nil || *budget.ActiveLockID != lockID {
		t.Fatalf("unexpected budget state: %+v", budget)
	}
}

func TestLockBudgetEnforcesOneLockInvariant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	businessID := uuid.New()
	campaignID := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	f.seedBudget(t, campaignID, businessID, 100_000, 0, nil)

	_, err := f.svc.LockBudget(context.Background(), LockBudgetInput{
		BusinessID:  businessID,
		CampaignID:  campaignID,
		AmountCents: 50_000,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeAlreadyLocked) {
		t.Fatalf("expected ALREADY_LOCKED, got %v", err)
	}
}

func TestLockBudgetRejectsCrossTenantAccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	campaignID := f.seedCampaign(t, uuid.New(), enums.CampaignStatusDraft)

	_, err := f.svc.LockBudget(context.Background(), LockBudgetInput{
		BusinessID:  uuid.New(),
		CampaignID:  campaignID,
		AmountCents: 50_000,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestLockBudgetInsufficientFunds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	businessID := uuid.New()
	campaignID := f.seedCampaign(t, businessID, enums.CampaignStatusDraft)
	f.ledger.balanceFn = func(ctx context.Context, id uuid.UUID) (int64, error) {
		return 10, nil
	}

	_, err := f.svc.LockBudget(context.Background(), LockBudgetInput{
		BusinessID:  businessID,
		CampaignID:  campaignID,
		AmountCents: 50_000,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}
}

func TestDeductCostDailyCap(t *testing.T) {
	t.Parallel()

	// Scenario: total 1000 units, daily 100 units. A 60-unit event lands,
	// then a 50-unit event must be refused without touching spent.
	f := newFixture(t)
	businessID := uuid.New()
	campaignID := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	f.seedBudget(t, campaignID, businessID, 1000, 0, int64Ptr(100))
	ctx := context.Background()

	res, err := f.svc.DeductCost(ctx, DeductCostInput{
		CampaignID: campaignID,
		CostCents:  60,
		EventType:  enums.SpendEventTypeImpression,
		EventID:    "evt-1",
	})
	if err != nil {
		t.Fatalf("first deduction: %v", err)
	}
	if res.SpentCents != 60 || res.DailySpentCents != 60 {
		t.Fatalf("unexpected result %+v", res)
	}

	_, err = f.svc.DeductCost(ctx, DeductCostInput{
		CampaignID: campaignID,
		CostCents:  50,
		EventType:  enums.SpendEventTypeClick,
		EventID:    "evt-2",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeDailyBudgetHit) {
		t.Fatalf("expected DAILY_BUDGET_EXCEEDED, got %v", err)
	}

	var budget models.CampaignBudget
	if err := f.db.First(&budget, "campaign_id = ?", campaignID).Error; err != nil {
		t.Fatalf("load budget: %v", err)
	}
	if budget.SpentCents != 60 {
		t.Fatalf("expected spent to stay 60, got %d", budget.SpentCents)
	}
	if budget.PauseReason != enums.PauseReasonDailyCapped {
		t.Fatalf("expected daily cap pause reason, got %s", budget.PauseReason)
	}
	if len(f.notifier.dailyCaps) != 1 {
		t.Fatalf("expected one daily-cap notification, got %d", len(f.notifier.dailyCaps))
	}
}

func TestDeductCostExhaustsAndPauses(t *testing.T) {
	t.Parallel()

	// Scenario: total 500 units with 480 already spent. A 20-unit event
	// succeeds, lands exactly on the ceiling, and pauses the campaign.
	f := newFixture(t)
	businessID := uuid.New()
	campaignID := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	f.seedBudget(t, campaignID, businessID, 500, 480, nil)

	res, err := f.svc.DeductCost(context.Background(), DeductCostInput{
		CampaignID: campaignID,
		CostCents:  20,
		EventType:  enums.SpendEventTypeConversion,
		EventID:    "evt-exhaust",
	})
	if err != nil {
		t.Fatalf("deduction: %v", err)
	}
	if res.SpentCents != 500 || !res.Exhausted || res.RemainingCents != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	var campaign models.Campaign
	if err := f.db.First(&campaign, "id = ?", campaignID).Error; err != nil {
		t.Fatalf("load campaign: %v", err)
	}
	if campaign.Status != enums.CampaignStatusPaused {
		t.Fatalf("expected campaign paused, got %s", campaign.Status)
	}
	var budget models.CampaignBudget
	if err := f.db.First(&budget, "campaign_id = ?", campaignID).Error; err != nil {
		t.Fatalf("load budget: %v", err)
	}
	if budget.PauseReason != enums.PauseReasonTotalExhausted {
		t.Fatalf("expected total-exhausted reason, got %s", budget.PauseReason)
	}
	if len(f.notifier.exhausted) != 1 {
		t.Fatalf("expected exhaustion notification")
	}
	if len(f.ledger.debits) != 1 || f.ledger.debits[0].AmountCents != 20 {
		t.Fatalf("expected wallet debit of 20, got %+v", f.ledger.debits)
	}
}

func TestDeductCostOverBudgetFailsClosed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	businessID := uuid.New()
	campaignID := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	f.seedBudget(t, campaignID, businessID, 500, 480, nil)

	_, err := f.svc.DeductCost(context.Background(), DeductCostInput{
		CampaignID: campaignID,
		CostCents:  21,
		EventType:  enums.SpendEventTypeClick,
		EventID:    "evt-over",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeBudgetExhausted) {
		t.Fatalf("expected BUDGET_EXHAUSTED, got %v", err)
	}

	var budget models.CampaignBudget
	if err := f.db.First(&budget, "campaign_id = ?", campaignID).Error; err != nil {
		t.Fatalf("load budget: %v", err)
	}
	if budget.SpentCents != 480 {
		t.Fatalf("expected spent unchanged at 480, got %d", budget.SpentCents)
	}
	if len(f.ledger.debits) != 0 {
		t.Fatal("expected no wallet debit on refusal")
	}
}

func TestDeductCostIdempotentEventID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	businessID := uuid.New()
	campaignID := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	f.seedBudget(t, campaignID, businessID, 1000, 0, nil)
	ctx := context.Background()

	input := DeductCostInput{
		CampaignID: campaignID,
		CostCents:  75,
		EventType:  enums.SpendEventTypeClick,
		EventID:    "evt-dup",
	}
	if _, err := f.svc.DeductCost(ctx, input); err != nil {
		t.Fatalf("first deduction: %v", err)
	}

	res, err := f.svc.DeductCost(ctx, input)
	if err != nil {
		t.Fatalf("redelivered deduction: %v", err)
	}
	if !res.Duplicate {
		t.Fatal("expected duplicate no-op result")
	}

	var budget models.CampaignBudget
	if err := f.db.First(&budget, "campaign_id = ?", campaignID).Error; err != nil {
		t.Fatalf("load budget: %v", err)
	}
	if budget.SpentCents != 75 {
		t.Fatalf("expected spent charged once (75), got %d", budget.SpentCents)
	}
	var count int64
	if err := f.db.Model(&models.SpendEvent{}).Where("campaign_id = ?", campaignID).Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 spend event, got %d", count)
	}
}

func TestDeductCostValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	cases := []DeductCostInput{
		{CampaignID: uuid.New(), CostCents: 0, EventType: enums.SpendEventTypeClick, EventID: "e"},
		{CampaignID: uuid.New(), CostCents: 20_000, EventType: enums.SpendEventTypeClick, EventID: "e"},
		{CampaignID: uuid.New(), CostCents: 10, EventType: "bogus", EventID: "e"},
		{CampaignID: uuid.New(), CostCents: 10, EventType: enums.SpendEventTypeClick, EventID: "  "},
	}
	for _, input := range cases {
		if _, err := f.svc.DeductCost(ctx, input); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %+v, got %v", input, err)
		}
	}
}

func TestDeductCostInactiveCampaign(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	businessID := uuid.New()
	campaignID := f.seedCampaign(t, businessID, enums.CampaignStatusPaused)
	f.seedBudget(t, campaignID, businessID, 1000, 0, nil)

	_, err := f.svc.DeductCost(context.Background(), DeductCostInput{
		CampaignID: campaignID,
		CostCents:  10,
		EventType:  enums.SpendEventTypeImpression,
		EventID:    "evt-paused",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
}

func TestCheckBudgetStatusWindowsDailySpend(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	businessID := uuid.New()
	campaignID := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	f.seedBudget(t, campaignID, businessID, 1000, 260, int64Ptr(300))

	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	events := []models.SpendEvent{
		{ID: uuid.New(), CampaignID: campaignID, Type: enums.SpendEventTypeClick, CostCents: 200, EventID: "old", OccurredAt: now.Add(-48 * time.Hour)},
		{ID: uuid.New(), CampaignID: campaignID, Type: enums.SpendEventTypeClick, CostCents: 60, EventID: "today", OccurredAt: now.Add(-2 * time.Hour)},
	}
	for i := range events {
		if err := f.db.Create(&events[i]).Error; err != nil {
			t.Fatalf("seed event: %v", err)
		}
	}

	status, err := f.svc.CheckBudgetStatus(context.Background(), campaignID)
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if status.DailySpentCents != 60 {
		t.Fatalf("expected daily spend 60 (yesterday excluded), got %d", status.DailySpentCents)
	}
	if status.DailyRemainingCents != 240 {
		t.Fatalf("expected daily remaining 240, got %d", status.DailyRemainingCents)
	}
	if status.RemainingCents != 740 || status.IsExhausted {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestReleaseBudgetIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	businessID := uuid.New()
	campaignID := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	lockID := f.seedBudget(t, campaignID, businessID, 1000, 0, nil)
	ctx := context.Background()

	if err := f.svc.ReleaseBudget(ctx, campaignID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(f.ledger.releases) != 1 || f.ledger.releases[0] != lockID {
		t.Fatalf("expected wallet release of %s, got %+v", lockID, f.ledger.releases)
	}

	// Second release is a logged no-op; the wallet is not touched again.
	if err := f.svc.ReleaseBudget(ctx, campaignID); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if len(f.ledger.releases) != 1 {
		t.Fatalf("expected a single wallet release, got %d", len(f.ledger.releases))
	}
}

func TestResetDailyBudgetCountersResumesOnlyDailyCapped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	businessID := uuid.New()
	ctx := context.Background()

	// 00:10 UTC, inside the reset window.
	f.svc.now = func() time.Time {
		return time.Date(2026, 3, 15, 0, 10, 0, 0, time.UTC)
	}

	dailyCapped := f.seedCampaign(t, businessID, enums.CampaignStatusPaused)
	f.seedBudget(t, dailyCapped, businessID, 1000, 100, int64Ptr(100))
	if err := f.db.Model(&models.CampaignBudget{}).Where("campaign_id = ?", dailyCapped).
		Update("pause_reason", enums.PauseReasonDailyCapped).Error; err != nil {
		t.Fatalf("mark daily capped: %v", err)
	}

	exhausted := f.seedCampaign(t, businessID, enums.CampaignStatusPaused)
	f.seedBudget(t, exhausted, businessID, 500, 500, int64Ptr(100))
	if err := f.db.Model(&models.CampaignBudget{}).Where("campaign_id = ?", exhausted).
		Update("pause_reason", enums.PauseReasonDailyCapped).Error; err != nil {
		t.Fatalf("mark exhausted: %v", err)
	}

	res, err := f.svc.ResetDailyBudgetCounters(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(res.ResumedIDs) != 1 || res.ResumedIDs[0] != dailyCapped {
		t.Fatalf("expected only the daily-capped campaign resumed, got %+v", res.ResumedIDs)
	}

	var campaign models.Campaign
	if err := f.db.First(&campaign, "id = ?", dailyCapped).Error; err != nil {
		t.Fatalf("load campaign: %v", err)
	}
	if campaign.Status != enums.CampaignStatusActive {
		t.Fatalf("expected resumed campaign active, got %s", campaign.Status)
	}
	var stillPaused models.Campaign
	if err := f.db.First(&stillPaused, "id = ?", exhausted).Error; err != nil {
		t.Fatalf("load exhausted campaign: %v", err)
	}
	if stillPaused.Status != enums.CampaignStatusPaused {
		t.Fatal("out-of-money campaign must stay paused")
	}
	if len(f.notifier.resumed) != 1 {
		t.Fatalf("expected one resume notification, got %d", len(f.notifier.resumed))
	}
}

func TestResetDailyBudgetCountersOutsideWindowSkips(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.svc.now = func() time.Time {
		return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	}

	res, err := f.svc.ResetDailyBudgetCounters(context.Background())
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(res.ResumedIDs) != 0 {
		t.Fatalf("expected no resumes outside window, got %+v", res.ResumedIDs)
	}
}

func TestMonitorAndPauseCampaignsWarnsAndPauses(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	businessID := uuid.New()
	ctx := context.Background()

	healthy := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	f.seedBudget(t, healthy, businessID, 1000, 100, nil)

	warned := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	f.seedBudget(t, warned, businessID, 1000, 850, nil)

	exhausted := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	f.seedBudget(t, exhausted, businessID, 1000, 1000, nil)

	res, err := f.svc.MonitorAndPauseCampaigns(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.PausedIDs) != 1 || res.PausedIDs[0] != exhausted {
		t.Fatalf("expected exhausted campaign paused, got %+v", res.PausedIDs)
	}
	if len(res.WarnedIDs) != 1 || res.WarnedIDs[0] != warned {
		t.Fatalf("expected high-utilization campaign warned, got %+v", res.WarnedIDs)
	}

	var campaign models.Campaign
	if err := f.db.First(&campaign, "id = ?", exhausted).Error; err != nil {
		t.Fatalf("load campaign: %v", err)
	}
	if campaign.Status != enums.CampaignStatusPaused {
		t.Fatalf("expected paused, got %s", campaign.Status)
	}
}

type flakyRepo struct {
	Repository
	failCampaignID uuid.UUID
}

func (f *flakyRepo) WithTx(tx *gorm.DB) Repository {
	return &flakyRepo{Repository: f.Repository.WithTx(tx), failCampaignID: f.failCampaignID}
}

func (f *flakyRepo) FindBudget(ctx context.Context, campaignID uuid.UUID) (*models.CampaignBudget, error) {
	if campaignID == f.failCampaignID {
		return nil, errDeliberate
	}
	return f.Repository.FindBudget(ctx, campaignID)
}

var errDeliberate = pkgerrors.New(pkgerrors.CodeDependency, "deliberate test failure")

func TestMonitorSweepIsolatesPerCampaignFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	businessID := uuid.New()
	ctx := context.Background()

	broken := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	f.seedBudget(t, broken, businessID, 1000, 100, nil)

	warned := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	f.seedBudget(t, warned, businessID, 1000, 850, nil)

	exhausted := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	f.seedBudget(t, exhausted, businessID, 1000, 1000, nil)

	svc, err := NewService(
		&flakyRepo{Repository: NewRepository(f.db), failCampaignID: broken},
		gormTxRunner{db: f.db},
		f.ledger,
		f.notifier,
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		testBudgetConfig(),
		nil,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	res, sweepErr := svc.MonitorAndPauseCampaigns(ctx)
	if sweepErr == nil {
		t.Fatal("expected the broken campaign's failure to be reported")
	}
	if len(res.FailedIDs) != 1 || res.FailedIDs[0] != broken {
		t.Fatalf("expected broken campaign in failures, got %+v", res.FailedIDs)
	}
	if len(res.PausedIDs) != 1 || res.PausedIDs[0] != exhausted {
		t.Fatalf("expected exhausted campaign still paused despite failure, got %+v", res.PausedIDs)
	}
	if len(res.WarnedIDs) != 1 || res.WarnedIDs[0] != warned {
		t.Fatalf("expected warned campaign still processed, got %+v", res.WarnedIDs)
	}
}

func TestListSpendEventsPaginates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	businessID := uuid.New()
	campaignID := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	f.seedBudget(t, campaignID, businessID, 100_000, 0, nil)

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		event := models.SpendEvent{
			ID:         uuid.New(),
			CampaignID: campaignID,
			Type:       enums.SpendEventTypeImpression,
			CostCents:  5,
			EventID:    uuid.NewString(),
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := f.db.Create(&event).Error; err != nil {
			t.Fatalf("seed event: %v", err)
		}
	}

	page, next, err := f.svc.ListSpendEvents(context.Background(), campaignID, pagination.Params{Limit: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 3 || next == "" {
		t.Fatalf("expected 3 events and a cursor, got %d events, cursor %q", len(page), next)
	}

	rest, next2, err := f.svc.ListSpendEvents(context.Background(), campaignID, pagination.Params{Limit: 3, Cursor: next})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(rest) != 2 || next2 != "" {
		t.Fatalf("expected 2 remaining events and no cursor, got %d, %q", len(rest), next2)
	}
}

type budgetReadCounts struct {
	forUpdate int
	plain     int
}

// countingRepo wraps a real repository and tallies which budget read path
// the service takes.
type countingRepo struct {
	Repository
	reads *budgetReadCounts
}

func (c countingRepo) WithTx(tx *gorm.DB) Repository {
	return countingRepo{Repository: c.Repository.WithTx(tx), reads: c.reads}
}

func (c countingRepo) FindBudget(ctx context.Context, campaignID uuid.UUID) (*models.CampaignBudget, error) {
	c.reads.plain++
	return c.Repository.FindBudget(ctx, campaignID)
}

func (c countingRepo) FindBudgetForUpdate(ctx context.Context, campaignID uuid.UUID) (*models.CampaignBudget, error) {
	c.reads.forUpdate++
	return c.Repository.FindBudgetForUpdate(ctx, campaignID)
}

func TestDeductCostReadsBudgetUnderRowLock(t *testing.T) {
	t.Parallel()

	// The daily sum and the spend increment must observe the budget row
	// under SELECT FOR UPDATE, otherwise two concurrent deductions can both
	// pass the daily check before either writes.
	f := newFixture(t)
	reads := &budgetReadCounts{}
	f.svc.repo = countingRepo{Repository: f.svc.repo, reads: reads}
	businessID := uuid.New()
	campaignID := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	f.seedBudget(t, campaignID, businessID, 1000, 0, int64Ptr(100))

	if _, err := f.svc.DeductCost(context.Background(), DeductCostInput{
		CampaignID: campaignID,
		CostCents:  40,
		EventType:  enums.SpendEventTypeClick,
		EventID:    "evt-locked-read",
	}); err != nil {
		t.Fatalf("deduction: %v", err)
	}
	if reads.forUpdate != 1 {
		t.Fatalf("expected one locked budget read, got %d", reads.forUpdate)
	}
	if reads.plain != 0 {
		t.Fatalf("expected no unlocked budget reads during deduction, got %d", reads.plain)
	}
}

func TestDeductCostTotalExhaustionOutranksDailyCap(t *testing.T) {
	t.Parallel()

	// Total 1000 with 995 spent, daily cap 100 with 98 spent today. A
	// 10-unit event breaches both ceilings and must be refused as exhausted,
	// not daily-capped, so the midnight reset leaves the campaign paused.
	f := newFixture(t)
	businessID := uuid.New()
	campaignID := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	f.seedBudget(t, campaignID, businessID, 1000, 995, int64Ptr(100))

	prior := models.SpendEvent{
		ID:         uuid.New(),
		CampaignID: campaignID,
		Type:       enums.SpendEventTypeClick,
		CostCents:  98,
		EventID:    "evt-earlier-today",
		OccurredAt: time.Now().UTC(),
	}
	if err := f.db.Create(&prior).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}

	_, err := f.svc.DeductCost(context.Background(), DeductCostInput{
		CampaignID: campaignID,
		CostCents:  10,
		EventType:  enums.SpendEventTypeClick,
		EventID:    "evt-both-ceilings",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeBudgetExhausted) {
		t.Fatalf("expected BUDGET_EXHAUSTED, got %v", err)
	}

	var budget models.CampaignBudget
	if err := f.db.First(&budget, "campaign_id = ?", campaignID).Error; err != nil {
		t.Fatalf("load budget: %v", err)
	}
	if budget.PauseReason != enums.PauseReasonTotalExhausted {
		t.Fatalf("expected total-exhausted reason, got %s", budget.PauseReason)
	}
	var campaign models.Campaign
	if err := f.db.First(&campaign, "id = ?", campaignID).Error; err != nil {
		t.Fatalf("load campaign: %v", err)
	}
	if campaign.Status != enums.CampaignStatusPaused {
		t.Fatalf("expected campaign paused, got %s", campaign.Status)
	}
}

func TestLockBudgetLosingRaceReleasesWalletLock(t *testing.T) {
	t.Parallel()

	// Two lock attempts race on a budget row with no active lock. The loser
	// must release the wallet lock it took and surface the conflict.
	f := newFixture(t)
	businessID := uuid.New()
	campaignID := f.seedCampaign(t, businessID, enums.CampaignStatusActive)
	budget := models.CampaignBudget{
		CampaignID:       campaignID,
		BusinessID:       businessID,
		TotalBudgetCents: 100_000,
		PauseReason:      enums.PauseReasonNone,
	}
	if err := f.db.Create(&budget).Error; err != nil {
		t.Fatalf("seed budget: %v", err)
	}

	input := LockBudgetInput{
		BusinessID:  businessID,
		CampaignID:  campaignID,
		AmountCents: 50_000,
	}

	var (
		winnerID  uuid.UUID
		winnerErr error
		reentered bool
	)
	f.ledger.lockFn = func(ctx context.Context, params wallet.LockParams) (*wallet.Lock, error) {
		if !reentered {
			reentered = true
			winnerID, winnerErr = f.svc.LockBudget(ctx, input)
		}
		return &wallet.Lock{ID: uuid.New(), BusinessID: params.BusinessID, AmountCents: params.AmountCents}, nil
	}

	_, err := f.svc.LockBudget(context.Background(), input)
	if winnerErr != nil {
		t.Fatalf("winning lock attempt: %v", winnerErr)
	}
	if winnerID == uuid.Nil {
		t.Fatal("expected winning lock id")
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeAlreadyLocked) {
		t.Fatalf("expected ALREADY_LOCKED for the losing attempt, got %v", err)
	}
	if len(f.ledger.releases) != 1 {
		t.Fatalf("expected the losing wallet lock released, got %d releases", len(f.ledger.releases))
	}
	if f.ledger.releases[0] == winnerID {
		t.Fatal("released the winning wallet lock instead of the loser's")
	}

	var persisted models.CampaignBudget
	if err := f.db.First(&persisted, "campaign_id = ?", campaignID).Error; err != nil {
		t.Fatalf("load budget: %v", err)
	}
	if persisted.ActiveLockID == nil || *persisted.ActiveLockID != winnerID {
		t.Fatalf("expected winning lock to stay attached, got %v", persisted.ActiveLockID)
	}
}
