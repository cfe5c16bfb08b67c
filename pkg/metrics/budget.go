package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BudgetMetrics records spend deduction outcomes and campaign pauses.
type BudgetMetrics struct {
	deductions *prometheus.CounterVec
	pauses     *prometheus.CounterVec
	spendCents *prometheus.HistogramVec
}

// NewBudgetMetrics registers the budget metrics on the provided registerer.
func NewBudgetMetrics(reg prometheus.Registerer) *BudgetMetrics {
	if reg == nil {
		return &BudgetMetrics{}
	}
	deductions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "budget_deductions",
		Help: "Spend deduction attempts by outcome.",
	}, []string{"outcome"})
	pauses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_pauses",
		Help: "Campaigns paused by the budget engine, by reason.",
	}, []string{"reason"})
	spendCents := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "budget_deduction_cents",
		Help:    "Cost of accepted spend deductions in cents.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"event_type"})
	reg.MustRegister(deductions, pauses, spendCents)
	return &BudgetMetrics{
		deductions: deductions,
		pauses:     pauses,
		spendCents: spendCents,
	}
}

// IncDeduction increments the deduction counter for the given outcome.
func (b *BudgetMetrics) IncDeduction(outcome string) {
	if b == nil || b.deductions == nil {
		return
	}
	b.deductions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncPause increments the pause counter for the given reason.
func (b *BudgetMetrics) IncPause(reason string) {
	if b == nil || b.pauses == nil {
		return
	}
	b.pauses.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveSpend records the cost of an accepted deduction.
func (b *BudgetMetrics) ObserveSpend(eventType string, costCents int64) {
	if b == nil || b.spendCents == nil {
		return
	}
	b.spendCents.WithLabelValues(normalizeLabel(eventType)).Observe(float64(costCents))
}
