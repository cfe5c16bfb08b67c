package analytics

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packfinderz-ads/internal/analytics/query"
	"github.com/angelmondragon/packfinderz-ads/internal/analytics/types"
	"github.com/angelmondragon/packfinderz-ads/pkg/bigquery"
)

// Service provides spend reports based on recorded ad events.
type Service interface {
	// BurnRate returns spend pacing for the provided campaign and window.
	BurnRate(ctx context.Context, req types.SpendQueryRequest) (*types.BurnRateReport, error)
}

type service struct {
	spend query.SpendService
}

// NewService builds an analytics service backed by BigQuery.
func NewService(client *bigquery.Client, project, dataset, table string) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}

	spend, err := query.NewSpendService(client, project, dataset, table)
	if err != nil {
		return nil, err
	}

	return &service{spend: spend}, nil
}

func (s *service) BurnRate(ctx context.Context, req types.SpendQueryRequest) (*types.BurnRateReport, error) {
	return s.spend.BurnRate(ctx, req)
}
