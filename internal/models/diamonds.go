package models

import (
	"time"

	"github.com/google/uuid"
)

// Diamond represents one physical gem scanned within a job. Identity is
// immutable once created; the slot it occupies is unique within (job, ring).
type Diamond struct {
	ID        uuid.UUID  `json:"id"`
	JobID     uuid.UUID  `json:"job_id"`
	RingID    *uuid.UUID `json:"ring_id,omitempty"`
	SlotIndex int        `json:"slot_index"`
	CreatedAt time.Time  `json:"created_at"`
}

// CreateDiamondRequest represents the request to ingest one scanned diamond.
// RingLabel resolves to an existing ring or creates one; ingesting into an
// occupied slot is a conflict, never an overwrite.
type CreateDiamondRequest struct {
	RingLabel *string `json:"ring_label,omitempty" validate:"omitempty,min=1,max=255,no_null_bytes"`
	SlotIndex int     `json:"slot_index" validate:"min=0"`
}

// ListDiamondsFilters represents filters for listing a job's diamonds.
type ListDiamondsFilters struct {
	RingID *uuid.UUID `form:"ring_id" validate:"omitempty"`
	Limit  int        `form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset int        `form:"offset" validate:"omitempty,min=0"`
}

// ListDiamondsResponse represents the response for listing diamonds.
type ListDiamondsResponse struct {
	Data   []Diamond `json:"data"`
	Total  int64     `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}
