// Package workers provides River job workers (e.g. matching run execution).
package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
	"github.com/Nastaran-Nourbakhsh/nova/internal/service"
)

// MatchingRunWorker drives one queued matching run to a terminal status.
type MatchingRunWorker struct {
	river.WorkerDefaults[service.MatchingRunArgs]

	runs    matchingRunExecutor
	timeout time.Duration
}

// matchingRunExecutor is the minimal interface needed by the worker.
type matchingRunExecutor interface {
	ExecuteRun(ctx context.Context, runID uuid.UUID, trigger string) error
}

// NewMatchingRunWorker creates a worker that executes queued runs. timeout
// caps one attempt and must exceed the largest configured solver budget.
func NewMatchingRunWorker(runs matchingRunExecutor, timeout time.Duration) *MatchingRunWorker {
	return &MatchingRunWorker{runs: runs, timeout: timeout}
}

// Timeout limits how long a single run attempt can hold a worker slot.
func (w *MatchingRunWorker) Timeout(*river.Job[service.MatchingRunArgs]) time.Duration {
	return w.timeout
}

// Work executes the run. Terminal outcomes return nil: the run row carries
// the verdict, and re-running a settled run would only conflict on the
// claim. Only claim-stage infrastructure failures are retried, while the run
// is still CREATED and claimable.
func (w *MatchingRunWorker) Work(ctx context.Context, job *river.Job[service.MatchingRunArgs]) error {
	args := job.Args

	err := w.runs.ExecuteRun(ctx, args.RunID, "queue")
	if err == nil {
		return nil
	}

	if errors.Is(err, service.ErrRunNotClaimed) {
		isLastAttempt := job.Attempt >= job.MaxAttempts
		if isLastAttempt {
			slog.Error("matching run: claim failed (final attempt), leaving run to the reaper",
				"run_id", args.RunID,
				"job_id", args.JobID,
				"error", err,
			)

			return nil
		}

		return err
	}

	if errors.Is(err, novaerrors.ErrConflict) {
		slog.Info("matching run: settled by another executor",
			"run_id", args.RunID,
			"error", err,
		)

		return nil
	}

	// The pipeline already marked the run FAILED with this reason.
	slog.Warn("matching run: failed",
		"run_id", args.RunID,
		"job_id", args.JobID,
		"error", err,
	)

	return nil
}
