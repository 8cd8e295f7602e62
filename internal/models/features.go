package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// BoundaryKind discriminates the boundary shape descriptor.
type BoundaryKind string

const (
	BoundaryKindCircle BoundaryKind = "circle"
	BoundaryKindRect   BoundaryKind = "rect"
)

// Boundary describes a diamond's outline in image space: a circle
// (cx, cy, r) or an axis-aligned rectangle (x, y, w, h). The kind tag
// decides which dimension set must be present.
type Boundary struct {
	Kind BoundaryKind `json:"kind"`

	// Circle dimensions.
	Cx *float64 `json:"cx,omitempty"`
	Cy *float64 `json:"cy,omitempty"`
	R  *float64 `json:"r,omitempty"`

	// Rectangle dimensions.
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
	W *float64 `json:"w,omitempty"`
	H *float64 `json:"h,omitempty"`
}

// Validate checks that the dimensions required by the kind are present and sane.
func (b *Boundary) Validate() error {
	switch b.Kind {
	case BoundaryKindCircle:
		if b.Cx == nil || b.Cy == nil || b.R == nil {
			return errors.New("circle boundary requires cx, cy and r")
		}

		if *b.R <= 0 {
			return errors.New("circle boundary radius must be positive")
		}
	case BoundaryKindRect:
		if b.X == nil || b.Y == nil || b.W == nil || b.H == nil {
			return errors.New("rect boundary requires x, y, w and h")
		}

		if *b.W <= 0 || *b.H <= 0 {
			return errors.New("rect boundary width and height must be positive")
		}
	default:
		return errors.New("boundary kind must be circle or rect")
	}

	return nil
}

// DiamondFeature holds the extracted visual features for one diamond under
// one feature-extraction model version. Embeddings arrive precomputed; a row
// with neither embedding makes the diamond ineligible for matching.
type DiamondFeature struct {
	ID              uuid.UUID `json:"id"`
	DiamondID       uuid.UUID `json:"diamond_id"`
	ModelVersion    string    `json:"model_version"`
	AsetEmbedding   []float32 `json:"aset_embedding,omitempty"`
	UVFreeEmbedding []float32 `json:"uv_free_embedding,omitempty"`
	DiamondType     *string   `json:"diamond_type,omitempty"`
	Boundary        *Boundary `json:"boundary,omitempty"`
	AreaPx          float64   `json:"area_px"`
	TableSizePx     *float64  `json:"table_size_px,omitempty"`
	FaceUpColor     *string   `json:"face_up_color,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Eligible reports whether the feature row carries at least one embedding
// channel and can therefore enter candidate generation.
func (f *DiamondFeature) Eligible() bool {
	return len(f.AsetEmbedding) > 0 || len(f.UVFreeEmbedding) > 0
}

// UpsertDiamondFeatureRequest represents the request to create or replace the
// feature row for a (diamond, model_version). ModelVersion defaults to "v1".
type UpsertDiamondFeatureRequest struct {
	ModelVersion    *string   `json:"model_version,omitempty" validate:"omitempty,min=1,max=64,no_null_bytes"`
	AsetEmbedding   []float32 `json:"aset_embedding,omitempty"`
	UVFreeEmbedding []float32 `json:"uv_free_embedding,omitempty"`
	DiamondType     *string   `json:"diamond_type,omitempty" validate:"omitempty,min=1,max=64,no_null_bytes"`
	Boundary        *Boundary `json:"boundary,omitempty" validate:"omitempty,boundary"`
	AreaPx          float64   `json:"area_px" validate:"required,gt=0"`
	TableSizePx     *float64  `json:"table_size_px,omitempty" validate:"omitempty,gt=0"`
	FaceUpColor     *string   `json:"face_up_color,omitempty" validate:"omitempty,max=64,no_null_bytes"`
}
