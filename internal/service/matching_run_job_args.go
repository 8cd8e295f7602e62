package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

const (
	matchingRunKind = "matching_run"
	// MatchingQueueName is the River queue used for matching run execution.
	MatchingQueueName = "matching"
)

// MatchingRunInserter inserts matching run jobs (e.g. River client).
type MatchingRunInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// MatchingRunArgs is the job payload for executing one matching run.
// Uniqueness is by RunID: the run row is created before the job is enqueued,
// so a duplicate insert for the same run never produces a second execution.
type MatchingRunArgs struct {
	RunID uuid.UUID `json:"run_id" river:"unique"`
	JobID uuid.UUID `json:"job_id"`
}

// Kind returns the River job kind.
func (MatchingRunArgs) Kind() string { return matchingRunKind }

var _ river.JobArgs = MatchingRunArgs{}
