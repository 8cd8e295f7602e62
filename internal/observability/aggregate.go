package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all nova metric collectors. When metrics are disabled, all fields are nil.
// Components that accept an interface (MatchingMetrics, QueueMetrics, CacheMetrics, APIMetrics) can
// receive the corresponding field; they already handle nil.
type Metrics struct {
	Matching MatchingMetrics
	Queue    QueueMetrics
	Cache    CacheMetrics
	API      APIMetrics
}

// NewMetrics creates all metric collectors from the given meter.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	matching, err := NewMatchingMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("matching metrics: %w", err)
	}

	queue, err := NewQueueMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("queue metrics: %w", err)
	}

	cache, err := NewCacheMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("cache metrics: %w", err)
	}

	api, err := NewAPIMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("api metrics: %w", err)
	}

	return &Metrics{
		Matching: matching,
		Queue:    queue,
		Cache:    cache,
		API:      api,
	}, nil
}
