package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle status of a matching run.
type RunStatus string

const (
	RunStatusCreated RunStatus = "CREATED"
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusDone    RunStatus = "DONE"
	RunStatusFailed  RunStatus = "FAILED"
)

// IsValid reports whether the status is a known run status.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusCreated, RunStatusRunning, RunStatusDone, RunStatusFailed:
		return true
	}

	return false
}

// IsTerminal reports whether the run can no longer change.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusDone || s == RunStatusFailed
}

// ParseRunStatus parses a string into a RunStatus.
func ParseRunStatus(s string) (RunStatus, error) {
	status := RunStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown run status: %q", s)
	}

	return status, nil
}

// RunParams are the normalized matching parameters stored on the run row.
// Stored params are always complete (defaults resolved at validation time)
// so identical stored params imply an identical computation.
type RunParams struct {
	MinConfidence float64 `json:"min_confidence"`
	CarryLocked   bool    `json:"carry_locked"`
	AreaTolerance float64 `json:"area_tolerance"`
	ModelVersion  string  `json:"model_version"`
}

// MatchingRun represents one matching attempt over a job's diamonds.
// Runs are additive history: a new run never mutates a prior run's pairs.
type MatchingRun struct {
	ID            uuid.UUID  `json:"id"`
	JobID         uuid.UUID  `json:"job_id"`
	Status        RunStatus  `json:"status"`
	Params        RunParams  `json:"params"`
	CreatedBy     string     `json:"created_by"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	HeartbeatAt   *time.Time `json:"heartbeat_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CreateMatchingRunRequest represents the request to start a matching run.
// MinConfidence is required; AreaTolerance and ModelVersion fall back to the
// configured defaults when omitted.
type CreateMatchingRunRequest struct {
	MinConfidence *float64 `json:"min_confidence" validate:"required,gte=0,lte=1"`
	CarryLocked   bool     `json:"carry_locked"`
	AreaTolerance *float64 `json:"area_tolerance,omitempty" validate:"omitempty,gt=0"`
	ModelVersion  *string  `json:"model_version,omitempty" validate:"omitempty,min=1,max=64,no_null_bytes"`
	CreatedBy     *string  `json:"created_by,omitempty" validate:"omitempty,max=255,no_null_bytes"`
}

// ListMatchingRunsFilters represents filters for listing a job's runs.
type ListMatchingRunsFilters struct {
	Status *RunStatus `form:"status" validate:"omitempty,run_status"`
	Since  *time.Time `form:"since"`
	Until  *time.Time `form:"until"`
	Limit  int        `form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset int        `form:"offset" validate:"omitempty,min=0"`
}

// ListMatchingRunsResponse represents the response for listing matching runs.
type ListMatchingRunsResponse struct {
	Data   []MatchingRun `json:"data"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}
