package models

import (
	"time"

	"github.com/google/uuid"
)

// Ring represents a physical holder grouping diamonds by slot position
// within a job. The label is unique per job.
type Ring struct {
	ID        uuid.UUID `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	Label     string    `json:"label"`
	Position  *int      `json:"position,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateRingRequest represents the request to create a ring inside a job.
// Creating a ring with a label that already exists returns the existing ring.
type CreateRingRequest struct {
	Label    string `json:"label" validate:"required,min=1,max=255,no_null_bytes"`
	Position *int   `json:"position,omitempty" validate:"omitempty,min=0"`
}

// ListRingsResponse represents the response for listing a job's rings.
type ListRingsResponse struct {
	Data  []Ring `json:"data"`
	Total int64  `json:"total"`
}
