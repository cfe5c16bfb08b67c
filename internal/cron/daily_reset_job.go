package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packfinderz-ads/internal/budget"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
)

// DailyResetJobParams configure the midnight daily-cap reset.
type DailyResetJobParams struct {
	Logger *logger.Logger
	Budget dailyResetter
}

type dailyResetter interface {
	ResetDailyBudgetCounters(ctx context.Context) (*budget.ResetResult, error)
}

// NewDailyResetJob builds the job that resumes campaigns paused by the
// daily spending cap once the day rolls over.
func NewDailyResetJob(params DailyResetJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Budget == nil {
		return nil, fmt.Errorf("budget service required")
	}
	return &dailyResetJob{
		logg:   params.Logger,
		budget: params.Budget,
	}, nil
}

type dailyResetJob struct {
	logg   *logger.Logger
	budget dailyResetter
}

func (j *dailyResetJob) Name() string { return "daily-budget-reset" }

func (j *dailyResetJob) Run(ctx context.Context) error {
	result, err := j.budget.ResetDailyBudgetCounters(ctx)
	if err != nil {
		return fmt.Errorf("daily budget reset: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"campaigns_resumed": len(result.ResumedIDs),
		"campaigns_failed":  len(result.FailedIDs),
	})
	j.logg.Info(logCtx, "daily budget reset complete")
	if len(result.FailedIDs) > 0 {
		j.logg.Warn(logCtx, "daily budget reset left campaigns paused")
	}
	return nil
}
