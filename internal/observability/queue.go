package observability

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
)

// QueueMetrics records queue and executor occupancy gauges.
// Pollers and the run executor push current values; the SDK observes them on collection.
type QueueMetrics interface {
	SetRiverQueueDepth(depth int)
	SetActiveRuns(n int)
}

// queueMetrics implements QueueMetrics.
type queueMetrics struct {
	riverQueueDepth atomic.Int64
	activeRuns      atomic.Int64
	riverQueueGauge metric.Float64ObservableGauge
	activeRunsGauge metric.Float64ObservableGauge
}

// NewQueueMetrics creates QueueMetrics and registers gauges. Returns (nil, nil) when meter is nil (metrics disabled).
func NewQueueMetrics(meter metric.Meter) (QueueMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	qm := &queueMetrics{}

	riverQueueGauge, err := meter.Float64ObservableGauge(
		MetricNameRiverQueueDepth,
		metric.WithDescription("Current River job queue depth (matching queue, available/retryable/scheduled)"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(float64(qm.riverQueueDepth.Load()))

			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create river queue depth gauge: %w", err)
	}

	qm.riverQueueGauge = riverQueueGauge

	activeRunsGauge, err := meter.Float64ObservableGauge(
		MetricNameActiveRuns,
		metric.WithDescription("Matching runs currently in RUNNING status"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(float64(qm.activeRuns.Load()))

			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create active runs gauge: %w", err)
	}

	qm.activeRunsGauge = activeRunsGauge

	return qm, nil
}

func (q *queueMetrics) SetRiverQueueDepth(depth int) {
	q.riverQueueDepth.Store(int64(depth))
}

func (q *queueMetrics) SetActiveRuns(n int) {
	q.activeRuns.Store(int64(n))
}
