package workers

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// JobErrorHandler logs queue-level failures. Pipeline errors are already
// recorded on the run row by the executing service; this catches what only
// the queue sees, in particular panics and exhausted retries.
type JobErrorHandler struct{}

// HandleError is called when a job attempt returns an error. Returning nil
// keeps river's default retry behavior.
func (h *JobErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	slog.Error("queue job failed",
		"kind", job.Kind,
		"river_job_id", job.ID,
		"attempt", job.Attempt,
		"max_attempts", job.MaxAttempts,
		"error", err,
	)

	return nil
}

// HandlePanic is called when a job panics.
func (h *JobErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	slog.Error("queue job panicked",
		"kind", job.Kind,
		"river_job_id", job.ID,
		"attempt", job.Attempt,
		"panic_value", panicVal,
		"stack_trace", trace,
	)

	return nil
}
