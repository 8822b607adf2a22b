package usecase

import "context"

// MetricsSummary represents aggregated scan insights.
type MetricsSummary struct {
	TotalScans            int64   `json:"total_scans"`
	ValidScans            int64   `json:"valid_scans"`
	ValidRate             float64 `json:"valid_rate"`
	AverageScore          float64 `json:"average_score"`
	AverageScanDurationMs float64 `json:"average_scan_duration_ms"`
}

// GetMetricsSummary aggregates scan metrics from persisted records.
func (uc *ScanUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalScans:            aggregation.TotalCount,
		ValidScans:            aggregation.ValidCount,
		AverageScore:          aggregation.AverageScore,
		AverageScanDurationMs: aggregation.AverageDurationMs,
	}

	if aggregation.TotalCount > 0 {
		summary.ValidRate = float64(aggregation.ValidCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
