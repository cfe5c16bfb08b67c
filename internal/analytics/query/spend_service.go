package query

import (
	"context"
	"fmt"

	cloudbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/angelmondragon/packfinderz-ads/internal/analytics/types"
	"github.com/angelmondragon/packfinderz-ads/pkg/bigquery"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
)

const (
	totalsSQL = `
SELECT
  SUM(COALESCE(cost_cents, 0)) AS spend,
  SUM(COALESCE(revenue_cents, 0)) AS revenue
FROM %s
WHERE campaign_id = @campaignID
  AND occurred_at BETWEEN @start AND @end
`

	dailySpendSQL = `
SELECT
  FORMAT_DATE('%%F', DATE_TRUNC(occurred_at, DAY)) AS day,
  SUM(COALESCE(cost_cents, 0)) AS value
FROM %s
WHERE campaign_id = @campaignID
  AND occurred_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	spendByTypeSQL = `
SELECT type AS label, SUM(COALESCE(cost_cents, 0)) AS value
FROM %s
WHERE campaign_id = @campaignID
  AND occurred_at BETWEEN @start AND @end
GROUP BY type
ORDER BY value DESC
`

	hourlySpendSQL = `
SELECT
  FORMAT_TIMESTAMP('%%FT%%H', TIMESTAMP_TRUNC(occurred_at, HOUR)) AS day,
  SUM(COALESCE(cost_cents, 0)) AS value
FROM %s
WHERE campaign_id = @campaignID
  AND occurred_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`
)

// SpendService reports budget burn rates from BigQuery spend_facts.
type SpendService interface {
	BurnRate(ctx context.Context, req types.SpendQueryRequest) (*types.BurnRateReport, error)
}

type spendService struct {
	client   *bigquery.Client
	tableRef string
}

// NewSpendService builds a service backed by BigQuery.
func NewSpendService(client *bigquery.Client, project, dataset, table string) (SpendService, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if project == "" || dataset == "" || table == "" {
		return nil, fmt.Errorf("project, dataset, and table are required")
	}
	return &spendService{
		client:   client,
		tableRef: fmt.Sprintf("`%s.%s.%s`", project, dataset, table),
	}, nil
}

func (s *spendService) BurnRate(ctx context.Context, req types.SpendQueryRequest) (*types.BurnRateReport, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	params := s.baseParams(req)

	spend, revenue, err := s.queryTotals(ctx, fmt.Sprintf(totalsSQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}
	daily, err := s.querySeries(ctx, fmt.Sprintf(dailySpendSQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}
	byType, err := s.queryTopLabels(ctx, fmt.Sprintf(spendByTypeSQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}
	hourly, err := s.querySeries(ctx, fmt.Sprintf(hourlySpendSQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}

	report := &types.BurnRateReport{
		CampaignID:   req.CampaignID,
		Start:        req.Start.UTC(),
		End:          req.End.UTC(),
		SpendCents:   spend,
		RevenueCents: revenue,
		DailySpend:   daily,
		SpendByType:  byType,
	}

	hours := int64(req.End.Sub(req.Start).Hours())
	if hours < 1 {
		hours = 1
	}
	report.HourlyBurnCents = spend / hours
	for _, point := range hourly {
		if point.Value > report.PeakHourCents {
			report.PeakHourCents = point.Value
		}
	}
	report.ProjectedDailySpendCents = report.HourlyBurnCents * 24

	return report, nil
}

func validateRequest(req types.SpendQueryRequest) error {
	if req.CampaignID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "start and end are required")
	}
	if req.End.Before(req.Start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	return nil
}

func (s *spendService) baseParams(req types.SpendQueryRequest) []cloudbigquery.QueryParameter {
	return []cloudbigquery.QueryParameter{
		{Name: "campaignID", Value: req.CampaignID},
		{Name: "start", Value: req.Start},
		{Name: "end", Value: req.End},
	}
}

func (s *spendService) querySeries(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]types.TimeSeriesPoint, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}

	var points []types.TimeSeriesPoint
	for {
		var row struct {
			Day   string `bigquery:"day"`
			Value int64  `bigquery:"value"`
		}
		if err := iter.Next(&row); err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("reading series row: %w", err)
		}
		points = append(points, types.TimeSeriesPoint{Date: row.Day, Value: row.Value})
	}
	return points, nil
}

func (s *spendService) queryTopLabels(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]types.LabelValue, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}

	var result []types.LabelValue
	for {
		var row struct {
			Label string `bigquery:"label"`
			Value int64  `bigquery:"value"`
		}
		if err := iter.Next(&row); err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("reading label row: %w", err)
		}
		result = append(result, types.LabelValue{Label: row.Label, Value: row.Value})
	}
	return result, nil
}

func (s *spendService) queryTotals(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (int64, int64, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return 0, 0, fmt.Errorf("query totals: %w", err)
	}
	var row struct {
		Spend   cloudbigquery.NullInt64 `bigquery:"spend"`
		Revenue cloudbigquery.NullInt64 `bigquery:"revenue"`
	}
	if err := iter.Next(&row); err != nil {
		if err == iterator.Done {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("reading totals row: %w", err)
	}
	return row.Spend.Int64, row.Revenue.Int64, nil
}
