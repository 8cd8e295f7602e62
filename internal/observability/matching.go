package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MatchingMetrics records matching-run pipeline metrics (run manager, solver, gateway).
// Methods accept ctx for future exemplar support.
type MatchingMetrics interface {
	RecordRunStarted(ctx context.Context, trigger string)
	RecordRunFinished(ctx context.Context, status string, duration time.Duration)
	RecordRunFailure(ctx context.Context, reason string)
	RecordSolverDuration(ctx context.Context, duration time.Duration)
	RecordEdgesGenerated(ctx context.Context, count int64)
	RecordPairsCommitted(ctx context.Context, source string, count int64)
	RecordOverridesCarried(ctx context.Context, count int64)
	RecordOverrideDropped(ctx context.Context, reason string)
}

// matchingMetrics implements MatchingMetrics.
type matchingMetrics struct {
	runsStarted      metric.Int64Counter
	runsFinished     metric.Int64Counter
	runFailures      metric.Int64Counter
	runDuration      metric.Float64Histogram
	solverDuration   metric.Float64Histogram
	edgesGenerated   metric.Int64Counter
	pairsCommitted   metric.Int64Counter
	overridesCarried metric.Int64Counter
	overridesDropped metric.Int64Counter
}

// NewMatchingMetrics creates MatchingMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewMatchingMetrics(meter metric.Meter) (MatchingMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	runsStarted, err := meter.Int64Counter(
		MetricNameRunsStarted,
		metric.WithDescription("Total matching runs started, by trigger (api, queue)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create runs started counter: %w", err)
	}

	runsFinished, err := meter.Int64Counter(
		MetricNameRunsFinished,
		metric.WithDescription("Total matching runs reaching a terminal status (done, failed)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create runs finished counter: %w", err)
	}

	runFailures, err := meter.Int64Counter(
		MetricNameRunFailures,
		metric.WithDescription("Total matching run failures by reason (timeout, conflict, storage, validation, stalled)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create run failures counter: %w", err)
	}

	runDuration, err := meter.Float64Histogram(
		MetricNameRunDuration,
		metric.WithDescription("End-to-end matching run duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create run duration histogram: %w", err)
	}

	solverDuration, err := meter.Float64Histogram(
		MetricNameSolverDuration,
		metric.WithDescription("Greedy solver phase duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create solver duration histogram: %w", err)
	}

	edgesGenerated, err := meter.Int64Counter(
		MetricNameEdgesGenerated,
		metric.WithDescription("Total candidate edges emitted by the generator"),
	)
	if err != nil {
		return nil, fmt.Errorf("create edges generated counter: %w", err)
	}

	pairsCommitted, err := meter.Int64Counter(
		MetricNamePairsCommitted,
		metric.WithDescription("Total pairs committed, by source (algo, premium, manual)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pairs committed counter: %w", err)
	}

	overridesCarried, err := meter.Int64Counter(
		MetricNameOverridesCarried,
		metric.WithDescription("Total locked or privileged pairs carried forward from a prior run"),
	)
	if err != nil {
		return nil, fmt.Errorf("create overrides carried counter: %w", err)
	}

	overridesDropped, err := meter.Int64Counter(
		MetricNameOverridesDropped,
		metric.WithDescription("Total carried pairs dropped by reason (diamond_deleted)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create overrides dropped counter: %w", err)
	}

	return &matchingMetrics{
		runsStarted:      runsStarted,
		runsFinished:     runsFinished,
		runFailures:      runFailures,
		runDuration:      runDuration,
		solverDuration:   solverDuration,
		edgesGenerated:   edgesGenerated,
		pairsCommitted:   pairsCommitted,
		overridesCarried: overridesCarried,
		overridesDropped: overridesDropped,
	}, nil
}

func (m *matchingMetrics) RecordRunStarted(ctx context.Context, trigger string) {
	trigger = NormalizeTrigger(trigger)
	m.runsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrTrigger, trigger)))
}

func (m *matchingMetrics) RecordRunFinished(ctx context.Context, status string, duration time.Duration) {
	status = NormalizeStatus(status)
	m.runsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStatus, status)))
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (m *matchingMetrics) RecordRunFailure(ctx context.Context, reason string) {
	reason = NormalizeReason(reason, AllowedFailureReasons)
	m.runFailures.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

func (m *matchingMetrics) RecordSolverDuration(ctx context.Context, duration time.Duration) {
	m.solverDuration.Record(ctx, duration.Seconds())
}

func (m *matchingMetrics) RecordEdgesGenerated(ctx context.Context, count int64) {
	m.edgesGenerated.Add(ctx, count)
}

func (m *matchingMetrics) RecordPairsCommitted(ctx context.Context, source string, count int64) {
	source = NormalizeSource(source)
	m.pairsCommitted.Add(ctx, count, metric.WithAttributes(attribute.String(AttrSource, source)))
}

func (m *matchingMetrics) RecordOverridesCarried(ctx context.Context, count int64) {
	m.overridesCarried.Add(ctx, count)
}

func (m *matchingMetrics) RecordOverrideDropped(ctx context.Context, reason string) {
	reason = NormalizeReason(reason, AllowedDroppedReasons)
	m.overridesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}
