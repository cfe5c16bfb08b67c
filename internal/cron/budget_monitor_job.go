package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packfinderz-ads/internal/budget"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
)

// BudgetMonitorJobParams configure the exhausted-budget sweep.
type BudgetMonitorJobParams struct {
	Logger *logger.Logger
	Budget budgetSweeper
}

type budgetSweeper interface {
	MonitorAndPauseCampaigns(ctx context.Context) (*budget.SweepResult, error)
}

// NewBudgetMonitorJob builds the job that pauses campaigns whose budgets
// ran out between deductions.
func NewBudgetMonitorJob(params BudgetMonitorJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Budget == nil {
		return nil, fmt.Errorf("budget service required")
	}
	return &budgetMonitorJob{
		logg:   params.Logger,
		budget: params.Budget,
	}, nil
}

type budgetMonitorJob struct {
	logg   *logger.Logger
	budget budgetSweeper
}

func (j *budgetMonitorJob) Name() string { return "budget-monitor" }

func (j *budgetMonitorJob) Run(ctx context.Context) error {
	result, err := j.budget.MonitorAndPauseCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("budget sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"campaigns_paused": len(result.PausedIDs),
		"campaigns_warned": len(result.WarnedIDs),
		"campaigns_failed": len(result.FailedIDs),
	})
	j.logg.Info(logCtx, "budget sweep complete")
	if len(result.FailedIDs) > 0 {
		j.logg.Warn(logCtx, "budget sweep left campaigns unpaused")
	}
	return nil
}
