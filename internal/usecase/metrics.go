package usecase

import "context"

// MetricsSummary represents aggregated swap insights.
type MetricsSummary struct {
	TotalRequests          int64   `json:"total_requests"`
	SuccessfulRequests     int64   `json:"successful_requests"`
	SuccessRate            float64 `json:"success_rate"`
	AverageRemoteLatencyMs float64 `json:"average_remote_latency_ms"`
}

// GetMetricsSummary aggregates swap metrics from persisted logs.
func (uc *SwapUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:          aggregation.TotalCount,
		SuccessfulRequests:     aggregation.SuccessCount,
		AverageRemoteLatencyMs: aggregation.AverageLatencyMs,
	}

	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
