package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// APIMetrics records API-level rejection metrics (body too large, rate limited).
type APIMetrics interface {
	RecordRequestBodyTooLarge(ctx context.Context)
	RecordRateLimited(ctx context.Context)
}

// apiMetrics implements APIMetrics.
type apiMetrics struct {
	requestBodyTooLarge metric.Int64Counter
	rateLimited         metric.Int64Counter
}

// NewAPIMetrics creates APIMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewAPIMetrics(meter metric.Meter) (APIMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	bodyDesc := "Total number of requests rejected because the request body exceeded the configured limit (413)."

	bodyTooLarge, err := meter.Int64Counter(
		MetricNameRequestBodyTooLarge,
		metric.WithDescription(bodyDesc),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request body too large counter: %w", err)
	}

	rateDesc := "Total number of ingest requests rejected by the rate limiter (429)."

	rateLimited, err := meter.Int64Counter(
		MetricNameRateLimited,
		metric.WithDescription(rateDesc),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rate limited counter: %w", err)
	}

	return &apiMetrics{requestBodyTooLarge: bodyTooLarge, rateLimited: rateLimited}, nil
}

func (a *apiMetrics) RecordRequestBodyTooLarge(ctx context.Context) {
	a.requestBodyTooLarge.Add(ctx, 1)
}

func (a *apiMetrics) RecordRateLimited(ctx context.Context) {
	a.rateLimited.Add(ctx, 1)
}
