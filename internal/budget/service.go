package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-ads/internal/wallet"
	"github.com/angelmondragon/packfinderz-ads/pkg/config"
	dbpkg "github.com/angelmondragon/packfinderz-ads/pkg/db"
	"github.com/angelmondragon/packfinderz-ads/pkg/db/models"
	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
	"github.com/angelmondragon/packfinderz-ads/pkg/metrics"
	"github.com/angelmondragon/packfinderz-ads/pkg/pagination"
)

// Service defines the budget manager operations.
type Service interface {
	LockBudget(ctx context.Context, input LockBudgetInput) (uuid.UUID, error)
	DeductCost(ctx context.Context, input DeductCostInput) (*DeductResult, error)
	CheckBudgetStatus(ctx context.Context, campaignID uuid.UUID) (*Status, error)
	ReleaseBudget(ctx context.Context, campaignID uuid.UUID) error
	PauseCampaignOnBudgetExhaustion(ctx context.Context, campaignID uuid.UUID, reason enums.PauseReason)
	MonitorAndPauseCampaigns(ctx context.Context) (*SweepResult, error)
	ResetDailyBudgetCounters(ctx context.Context) (*ResetResult, error)
	ListSpendEvents(ctx context.Context, campaignID uuid.UUID, params pagination.Params) ([]models.SpendEvent, string, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	wallet   wallet.Ledger
	notifier Notifier
	logg     *logger.Logger
	cfg      config.BudgetConfig
	metrics  *metrics.BudgetMetrics
	now      func() time.Time
}

// errDuplicateEvent aborts the deduction transaction when the unique index
// catches a concurrent redelivery; the rollback discards the increment.
var errDuplicateEvent = errors.New("duplicate spend event")

// errLockHeld aborts lock persistence when a concurrent LockBudget claimed
// the budget row first; the caller releases its wallet lock and reports the
// conflict.
var errLockHeld = errors.New("budget lock already held")

// NewService wires the budget manager with its collaborators. The metrics
// receiver may be nil.
func NewService(repo Repository, tx txRunner, ledger wallet.Ledger, notifier Notifier, logg *logger.Logger, cfg config.BudgetConfig, budgetMetrics *metrics.BudgetMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("budget repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		wallet:   ledger,
		notifier: notifier,
		logg:     logg,
		cfg:      cfg,
		metrics:  budgetMetrics,
		now:      time.Now,
	}, nil
}

func (s *service) LockBudget(ctx context.Context, input LockBudgetInput) (uuid.UUID, error) {
	if input.BusinessID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "business id required")
	}
	if input.CampaignID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}
	if input.AmountCents <= 0 {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "lock amount must be positive")
	}
	if input.AmountCents > s.cfg.MaxLockCents {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "lock amount exceeds configured maximum")
	}
	if input.DailyBudgetCents != nil && (*input.DailyBudgetCents <= 0 || *input.DailyBudgetCents > input.AmountCents) {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "daily budget must be positive and within the total budget")
	}

	campaign, err := s.repo.FindCampaign(ctx, input.CampaignID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load campaign")
	}
	if campaign.BusinessID != input.BusinessID {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "campaign does not belong to business")
	}

	existing, err := s.repo.FindBudget(ctx, input.CampaignID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load campaign budget")
	}
	if existing != nil && existing.ActiveLockID != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeAlreadyLocked, "campaign already has an active budget lock")
	}

	balance, err := s.wallet.GetAvailableBalance(ctx, input.BusinessID)
	if err != nil {
		return uuid.Nil, err
	}
	if balance < input.AmountCents {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "available balance below requested lock amount")
	}

	lock, err := s.wallet.Lock(ctx, wallet.LockParams{
		BusinessID:  input.BusinessID,
		AmountCents: input.AmountCents,
		Reference:   lockReference(input.CampaignID, input.Reason),
	})
	if err != nil {
		return uuid.Nil, err
	}

	persistErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		lockID := lock.ID
		if existing == nil {
			err := repo.CreateBudget(ctx, &models.CampaignBudget{
				CampaignID:       input.CampaignID,
				BusinessID:       input.BusinessID,
				TotalBudgetCents: input.AmountCents,
				DailyBudgetCents: input.DailyBudgetCents,
				ActiveLockID:     &lockID,
				PauseReason:      enums.PauseReasonNone,
			})
			if dbpkg.IsUniqueViolation(err, "campaign_budgets_pkey") {
				return errLockHeld
			}
			return err
		}
		claimed, err := repo.AssociateBudgetLock(ctx, input.CampaignID, lockID)
		if err != nil {
			return err
		}
		if !claimed {
			return errLockHeld
		}
		return repo.UpdateBudgetCeilings(ctx, input.CampaignID, input.AmountCents, input.DailyBudgetCents)
	})
	if persistErr != nil {
		if releaseErr := s.wallet.Release(ctx, lock.ID); releaseErr != nil {
			s.logg.Error(ctx, "releasing orphaned wallet lock failed", releaseErr)
		}
		if errors.Is(persistErr, errLockHeld) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeAlreadyLocked, "campaign already has an active budget lock")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, persistErr, "persist campaign budget")
	}

	return lock.ID, nil
}

func (s *service) DeductCost(ctx context.Context, input DeductCostInput) (*DeductResult, error) {
	if input.CampaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}
	if input.CostCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cost must be positive")
	}
	if input.CostCents > s.cfg.MaxEventCostCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cost exceeds per-event cap")
	}
	if input.RevenueCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "revenue must not be negative")
	}
	if !input.EventType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid event type %q", input.EventType))
	}
	eventID := strings.TrimSpace(input.EventID)
	if eventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	occurred := input.OccurredAt
	if occurred.IsZero() {
		occurred = s.now().UTC()
	}

	var (
		result      DeductResult
		campaign    *models.Campaign
		lockID      *uuid.UUID
		dailyCapped bool
		noHeadroom  bool
	)

	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		c, err := repo.FindCampaign(ctx, input.CampaignID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load campaign")
		}
		campaign = c
		if c.Status != enums.CampaignStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "campaign is not active")
		}

		budget, err := repo.FindBudgetForUpdate(ctx, input.CampaignID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "campaign budget not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load campaign budget")
		}
		if budget.ActiveLockID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "campaign has no active budget lock")
		}
		id := *budget.ActiveLockID
		lockID = &id

		exists, err := repo.SpendEventExists(ctx, eventID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check event idempotency")
		}
		if exists {
			result = DeductResult{
				SpentCents:     budget.SpentCents,
				RemainingCents: budget.RemainingCents(),
				Exhausted:      budget.IsExhausted(),
				Duplicate:      true,
			}
			return nil
		}

		// Total exhaustion outranks the daily cap. Reported the other way
		// round, the midnight reset would resume a campaign with no budget
		// left.
		if budget.SpentCents+input.CostCents > budget.TotalBudgetCents {
			noHeadroom = true
			return pkgerrors.New(pkgerrors.CodeBudgetExhausted, "remaining budget below cost")
		}

		dayStart, dayEnd := dayWindow(occurred)
		if budget.DailyBudgetCents != nil {
			dailySpent, err := repo.SumSpendBetween(ctx, input.CampaignID, dayStart, dayEnd)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute daily spend")
			}
			if dailySpent+input.CostCents > *budget.DailyBudgetCents {
				dailyCapped = true
				return pkgerrors.New(pkgerrors.CodeDailyBudgetHit, "daily budget would be exceeded")
			}
			result.DailySpentCents = dailySpent + input.CostCents
		}

		applied, err := repo.ApplySpend(ctx, input.CampaignID, input.CostCents)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply spend")
		}
		if !applied {
			noHeadroom = true
			return pkgerrors.New(pkgerrors.CodeBudgetExhausted, "remaining budget below cost")
		}

		event := &models.SpendEvent{
			ID:           uuid.New(),
			CampaignID:   input.CampaignID,
			Type:         input.EventType,
			CostCents:    input.CostCents,
			RevenueCents: input.RevenueCents,
			EventID:      eventID,
			OccurredAt:   occurred,
		}
		if err := repo.CreateSpendEvent(ctx, event); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_spend_events_event_id") {
				return errDuplicateEvent
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record spend event")
		}

		result.SpentCents = budget.SpentCents + input.CostCents
		remaining := budget.TotalBudgetCents - result.SpentCents
		if remaining < 0 {
			remaining = 0
		}
		result.RemainingCents = remaining
		result.Exhausted = result.SpentCents >= budget.TotalBudgetCents
		return nil
	})

	if txErr != nil {
		switch {
		case errors.Is(txErr, errDuplicateEvent):
			s.metrics.IncDeduction("duplicate")
			return &DeductResult{Duplicate: true}, nil
		case dailyCapped:
			s.metrics.IncDeduction("daily_capped")
			s.PauseCampaignOnBudgetExhaustion(ctx, input.CampaignID, enums.PauseReasonDailyCapped)
		case noHeadroom:
			s.metrics.IncDeduction("exhausted")
			s.PauseCampaignOnBudgetExhaustion(ctx, input.CampaignID, enums.PauseReasonTotalExhausted)
		default:
			s.metrics.IncDeduction("error")
		}
		return nil, txErr
	}

	if result.Duplicate {
		s.metrics.IncDeduction("duplicate")
		return &result, nil
	}

	s.metrics.IncDeduction("applied")
	s.metrics.ObserveSpend(string(input.EventType), input.CostCents)

	// Settlement and alerting happen after commit; a deduction is never
	// unwound because a side effect misbehaved.
	if lockID != nil {
		if err := s.wallet.Debit(ctx, wallet.DebitParams{
			LockID:      *lockID,
			AmountCents: input.CostCents,
			Reference:   eventID,
		}); err != nil {
			ctx := s.logg.WithCampaignID(ctx, input.CampaignID.String())
			s.logg.Error(ctx, "wallet debit failed after spend was recorded", err)
		}
	}

	if result.Exhausted {
		s.PauseCampaignOnBudgetExhaustion(ctx, input.CampaignID, enums.PauseReasonTotalExhausted)
	} else if campaign != nil {
		total := result.SpentCents + result.RemainingCents
		if total > 0 {
			utilization := float64(result.SpentCents) / float64(total)
			if utilization >= s.cfg.WarnUtilization {
				s.notifier.BudgetWarning(ctx, campaign, utilization)
			}
		}
	}

	return &result, nil
}

func (s *service) CheckBudgetStatus(ctx context.Context, campaignID uuid.UUID) (*Status, error) {
	if campaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}

	budget, err := s.repo.FindBudget(ctx, campaignID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "campaign budget not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load campaign budget")
	}

	dayStart, dayEnd := dayWindow(s.now().UTC())
	dailySpent, err := s.repo.SumSpendBetween(ctx, campaignID, dayStart, dayEnd)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute daily spend")
	}

	status := &Status{
		CampaignID:       campaignID,
		TotalBudgetCents: budget.TotalBudgetCents,
		SpentCents:       budget.SpentCents,
		RemainingCents:   budget.RemainingCents(),
		DailyBudgetCents: budget.DailyBudgetCents,
		DailySpentCents:  dailySpent,
		IsExhausted:      budget.IsExhausted(),
		ActiveLockID:     budget.ActiveLockID,
		PauseReason:      budget.PauseReason,
	}
	if budget.DailyBudgetCents != nil {
		dailyRemaining := *budget.DailyBudgetCents - dailySpent
		if dailyRemaining < 0 {
			dailyRemaining = 0
		}
		status.DailyRemainingCents = dailyRemaining
	}
	if budget.TotalBudgetCents > 0 {
		status.Utilization = float64(budget.SpentCents) / float64(budget.TotalBudgetCents)
	}
	return status, nil
}

func (s *service) ReleaseBudget(ctx context.Context, campaignID uuid.UUID) error {
	if campaignID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}

	budget, err := s.repo.FindBudget(ctx, campaignID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "campaign budget not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load campaign budget")
	}
	if budget.ActiveLockID == nil {
		ctx := s.logg.WithCampaignID(ctx, campaignID.String())
		s.logg.Warn(ctx, "release requested but campaign has no active lock")
		return nil
	}

	if err := s.wallet.Release(ctx, *budget.ActiveLockID); err != nil {
		return err
	}
	if err := s.repo.UpdateBudgetLock(ctx, campaignID, nil); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear active lock")
	}
	return nil
}

// PauseCampaignOnBudgetExhaustion never surfaces errors. It runs from hot
// paths and background sweeps where a failed pause must not take down the
// caller; failures are logged.
func (s *service) PauseCampaignOnBudgetExhaustion(ctx context.Context, campaignID uuid.UUID, reason enums.PauseReason) {
	if campaignID == uuid.Nil || !reason.IsValid() || reason == enums.PauseReasonNone {
		return
	}
	ctx = s.logg.WithCampaignID(ctx, campaignID.String())

	var campaign *models.Campaign
	paused := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		c, err := repo.FindCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		campaign = c
		if c.Status != enums.CampaignStatusActive {
			return nil
		}
		if err := repo.SetCampaignStatus(ctx, campaignID, enums.CampaignStatusPaused); err != nil {
			return err
		}
		if err := repo.SetPauseReason(ctx, campaignID, reason); err != nil {
			return err
		}
		paused = true
		return nil
	})
	if err != nil {
		s.logg.Error(ctx, "pausing campaign failed", err)
		return
	}
	if !paused {
		return
	}

	s.metrics.IncPause(string(reason))
	s.logg.Warn(ctx, fmt.Sprintf("campaign paused (%s)", reason))
	switch reason {
	case enums.PauseReasonTotalExhausted:
		s.notifier.BudgetExhausted(ctx, campaign)
	case enums.PauseReasonDailyCapped:
		s.notifier.DailyCapReached(ctx, campaign)
	}
}

func (s *service) MonitorAndPauseCampaigns(ctx context.Context) (*SweepResult, error) {
	campaigns, err := s.repo.ListActiveCampaignsInWindow(ctx, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active campaigns")
	}

	result := &SweepResult{}
	var sweepErr error
	for i := range campaigns {
		campaign := campaigns[i]
		status, err := s.CheckBudgetStatus(ctx, campaign.ID)
		if err != nil {
			result.FailedIDs = append(result.FailedIDs, campaign.ID)
			sweepErr = multierr.Append(sweepErr, fmt.Errorf("campaign %s: %w", campaign.ID, err))
			continue
		}

		switch {
		case status.IsExhausted:
			s.PauseCampaignOnBudgetExhaustion(ctx, campaign.ID, enums.PauseReasonTotalExhausted)
			result.PausedIDs = append(result.PausedIDs, campaign.ID)
		case status.Utilization >= s.cfg.SweepWarnLow && status.Utilization < 1:
			s.notifier.BudgetWarning(ctx, &campaign, status.Utilization)
			result.WarnedIDs = append(result.WarnedIDs, campaign.ID)
		}
	}
	return result, sweepErr
}

func (s *service) ResetDailyBudgetCounters(ctx context.Context) (*ResetResult, error) {
	now := s.now().UTC()
	dayStart, dayEnd := dayWindow(now)
	window := time.Duration(s.cfg.ResetWindowMinutes) * time.Minute
	if now.Sub(dayStart) > window {
		s.logg.Info(ctx, "outside daily reset window, skipping")
		return &ResetResult{}, nil
	}

	budgets, err := s.repo.ListBudgetsPausedForDailyCap(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list daily-capped budgets")
	}

	result := &ResetResult{}
	var resetErr error
	for _, budget := range budgets {
		// A campaign that is actually out of money must stay paused.
		if budget.IsExhausted() {
			continue
		}

		dailySpent, err := s.repo.SumSpendBetween(ctx, budget.CampaignID, dayStart, dayEnd)
		if err != nil {
			result.FailedIDs = append(result.FailedIDs, budget.CampaignID)
			resetErr = multierr.Append(resetErr, fmt.Errorf("campaign %s: %w", budget.CampaignID, err))
			continue
		}
		if dailySpent != 0 {
			continue
		}

		var campaign *models.Campaign
		resumed := false
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			c, err := repo.FindCampaign(ctx, budget.CampaignID)
			if err != nil {
				return err
			}
			campaign = c
			if c.Status != enums.CampaignStatusPaused {
				return nil
			}
			if err := repo.SetCampaignStatus(ctx, budget.CampaignID, enums.CampaignStatusActive); err != nil {
				return err
			}
			if err := repo.SetPauseReason(ctx, budget.CampaignID, enums.PauseReasonNone); err != nil {
				return err
			}
			resumed = true
			return nil
		})
		if err != nil {
			result.FailedIDs = append(result.FailedIDs, budget.CampaignID)
			resetErr = multierr.Append(resetErr, fmt.Errorf("campaign %s: %w", budget.CampaignID, err))
			continue
		}
		if resumed {
			result.ResumedIDs = append(result.ResumedIDs, budget.CampaignID)
			s.notifier.CampaignResumed(ctx, campaign)
		}
	}
	return result, resetErr
}

func (s *service) ListSpendEvents(ctx context.Context, campaignID uuid.UUID, params pagination.Params) ([]models.SpendEvent, string, error) {
	if campaignID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	events, err := s.repo.ListSpendEvents(ctx, campaignID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list spend events")
	}

	next := ""
	if len(events) > limit {
		events = events[:limit]
		last := events[limit-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return events, next, nil
}

func lockReference(campaignID uuid.UUID, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "campaign-budget"
	}
	return fmt.Sprintf("%s:%s", reason, campaignID)
}

// dayWindow returns the [00:00, 24:00) UTC window containing t.
func dayWindow(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}
