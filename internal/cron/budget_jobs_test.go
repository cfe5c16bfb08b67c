package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-ads/internal/budget"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
)

func TestBudgetMonitorJobRunsSweep(t *testing.T) {
	sweeper := &fakeBudgetService{sweep: &budget.SweepResult{
		PausedIDs: []uuid.UUID{uuid.New()},
		WarnedIDs: []uuid.UUID{uuid.New(), uuid.New()},
	}}
	job, err := NewBudgetMonitorJob(BudgetMonitorJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Budget: sweeper,
	})
	if err != nil {
		t.Fatalf("NewBudgetMonitorJob: %v", err)
	}
	if job.Name() != "budget-monitor" {
		t.Fatalf("unexpected job name %s", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.sweeps != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.sweeps)
	}
}

func TestBudgetMonitorJobPropagatesErrors(t *testing.T) {
	sweeper := &fakeBudgetService{err: errors.New("boom")}
	job, err := NewBudgetMonitorJob(BudgetMonitorJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Budget: sweeper,
	})
	if err != nil {
		t.Fatalf("NewBudgetMonitorJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestDailyResetJobRunsReset(t *testing.T) {
	resetter := &fakeBudgetService{reset: &budget.ResetResult{
		ResumedIDs: []uuid.UUID{uuid.New()},
	}}
	job, err := NewDailyResetJob(DailyResetJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Budget: resetter,
	})
	if err != nil {
		t.Fatalf("NewDailyResetJob: %v", err)
	}
	if job.Name() != "daily-budget-reset" {
		t.Fatalf("unexpected job name %s", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resetter.resets != 1 {
		t.Fatalf("expected one reset, got %d", resetter.resets)
	}
}

func TestDailyResetJobPropagatesErrors(t *testing.T) {
	resetter := &fakeBudgetService{err: errors.New("boom")}
	job, err := NewDailyResetJob(DailyResetJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Budget: resetter,
	})
	if err != nil {
		t.Fatalf("NewDailyResetJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeBudgetService struct {
	sweep  *budget.SweepResult
	reset  *budget.ResetResult
	err    error
	sweeps int
	resets int
}

func (f *fakeBudgetService) MonitorAndPauseCampaigns(ctx context.Context) (*budget.SweepResult, error) {
	f.sweeps++
	if f.err != nil {
		return nil, f.err
	}
	return f.sweep, nil
}

func (f *fakeBudgetService) ResetDailyBudgetCounters(ctx context.Context) (*budget.ResetResult, error) {
	f.resets++
	if f.err != nil {
		return nil, f.err
	}
	return f.reset, nil
}
