// Package worker provides background workers for the Nova API.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/observability"
)

// reaperRunsRepository is the minimal interface needed by the reaper.
type reaperRunsRepository interface {
	ListStalled(ctx context.Context, cutoff time.Time) ([]models.MatchingRun, error)
	ListOrphanedCreated(ctx context.Context, cutoff time.Time) ([]models.MatchingRun, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// RunReaper is a background worker that settles matching runs whose executor
// disappeared: RUNNING runs with a stale heartbeat and CREATED runs that
// were never claimed. Both hold the job's active-run slot, so until the
// reaper fails them no new run can start for that job.
type RunReaper struct {
	runs          reaperRunsRepository
	metrics       observability.MatchingMetrics
	interval      time.Duration
	stallTimeout  time.Duration
	orphanTimeout time.Duration
}

// NewRunReaper creates a new run reaper. metrics may be nil.
func NewRunReaper(
	runs reaperRunsRepository,
	metrics observability.MatchingMetrics,
	interval, stallTimeout, orphanTimeout time.Duration,
) *RunReaper {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	if stallTimeout <= 0 {
		stallTimeout = 5 * time.Minute
	}

	if orphanTimeout <= 0 {
		orphanTimeout = 15 * time.Minute
	}

	return &RunReaper{
		runs:          runs,
		metrics:       metrics,
		interval:      interval,
		stallTimeout:  stallTimeout,
		orphanTimeout: orphanTimeout,
	}
}

// Start begins the reaper loop. It runs until the context is cancelled.
func (r *RunReaper) Start(ctx context.Context) {
	slog.Info("run reaper started",
		"interval", r.interval,
		"stall_timeout", r.stallTimeout,
		"orphan_timeout", r.orphanTimeout,
	)

	// Run immediately on startup
	r.runOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("run reaper stopped")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

// runOnce executes a single reap sweep.
func (r *RunReaper) runOnce(ctx context.Context) {
	now := time.Now()

	stalled, err := r.runs.ListStalled(ctx, now.Add(-r.stallTimeout))
	if err != nil {
		slog.Error("run reaper: listing stalled runs failed", "error", err)
	} else {
		r.failAll(ctx, stalled, "run stalled: executor heartbeat lost")
	}

	orphaned, err := r.runs.ListOrphanedCreated(ctx, now.Add(-r.orphanTimeout))
	if err != nil {
		slog.Error("run reaper: listing orphaned runs failed", "error", err)
		return
	}

	r.failAll(ctx, orphaned, "run was never claimed by an executor")
}

// failAll marks each run FAILED with the given reason. A conflict means the
// run settled between the list and the write, which is the race working as
// intended, so individual failures only log.
func (r *RunReaper) failAll(ctx context.Context, runs []models.MatchingRun, reason string) {
	for i := range runs {
		run := &runs[i]

		if err := r.runs.MarkFailed(ctx, run.ID, reason); err != nil {
			slog.Warn("run reaper: marking run failed was rejected",
				"run_id", run.ID,
				"job_id", run.JobID,
				"error", err,
			)

			continue
		}

		slog.Warn("run reaper: failed abandoned run",
			"run_id", run.ID,
			"job_id", run.JobID,
			"status", run.Status,
			"reason", reason,
		)

		if r.metrics != nil {
			r.metrics.RecordRunFailure(ctx, "stalled")
		}
	}
}
