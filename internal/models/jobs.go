package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle status of a scan job.
type JobStatus string

const (
	JobStatusCreated    JobStatus = "CREATED"
	JobStatusScanning   JobStatus = "SCANNING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusDone       JobStatus = "DONE"
	JobStatusFailed     JobStatus = "FAILED"
)

// IsValid reports whether the status is a known job status.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusCreated, JobStatusScanning, JobStatusProcessing, JobStatusDone, JobStatusFailed:
		return true
	}

	return false
}

// ParseJobStatus parses a string into a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown job status: %q", s)
	}

	return status, nil
}

// CanTransitionTo reports whether the lifecycle transition s -> next is allowed.
// Scanning may be paused into PROCESSING and resumed back; both active states
// may complete into DONE or fail. Terminal states accept nothing.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusCreated:
		return next == JobStatusScanning || next == JobStatusFailed
	case JobStatusScanning:
		return next == JobStatusProcessing || next == JobStatusDone || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusScanning || next == JobStatusDone || next == JobStatusFailed
	case JobStatusDone, JobStatusFailed:
		return false
	}

	return false
}

// Job represents one scan session owning rings and diamonds.
type Job struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateJobRequest represents the request to create a job.
type CreateJobRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255,no_null_bytes"`
}

// ListJobsFilters represents filters for listing jobs.
type ListJobsFilters struct {
	Status *JobStatus `form:"status" validate:"omitempty,job_status"`
	Limit  int        `form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset int        `form:"offset" validate:"omitempty,min=0"`
}

// ListJobsResponse represents the response for listing jobs.
type ListJobsResponse struct {
	Data   []Job `json:"data"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}
