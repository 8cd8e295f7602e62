package models

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PairSource identifies where a pair came from. MANUAL and PREMIUM pairs are
// authoritative: their confidence is never recomputed by the solver.
type PairSource string

const (
	PairSourceAlgo    PairSource = "ALGO"
	PairSourcePremium PairSource = "PREMIUM"
	PairSourceManual  PairSource = "MANUAL"
)

// IsValid reports whether the source is a known pair source.
func (s PairSource) IsValid() bool {
	switch s {
	case PairSourceAlgo, PairSourcePremium, PairSourceManual:
		return true
	}

	return false
}

// Precedence returns the total order over sources: MANUAL > PREMIUM > ALGO.
// Only override resolution consults it; the solver is source-agnostic.
func (s PairSource) Precedence() int {
	switch s {
	case PairSourceManual:
		return 2
	case PairSourcePremium:
		return 1
	case PairSourceAlgo:
		return 0
	}

	return 0
}

// ParsePairSource parses a string into a PairSource.
func ParsePairSource(s string) (PairSource, error) {
	source := PairSource(s)
	if !source.IsValid() {
		return "", fmt.Errorf("unknown pair source: %q", s)
	}

	return source, nil
}

// DiamondPair represents an unordered association of two diamonds within a
// run. Diamond1/Diamond2 preserve the orientation the producer supplied;
// DiamondMin/DiamondMax are the canonical form used for uniqueness.
type DiamondPair struct {
	ID           uuid.UUID  `json:"id"`
	RunID        uuid.UUID  `json:"run_id"`
	Diamond1ID   uuid.UUID  `json:"diamond1_id"`
	Diamond2ID   uuid.UUID  `json:"diamond2_id"`
	DiamondMinID uuid.UUID  `json:"diamond_min_id"`
	DiamondMaxID uuid.UUID  `json:"diamond_max_id"`
	Confidence   float64    `json:"confidence"`
	Locked       bool       `json:"locked"`
	Source       PairSource `json:"source"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CanonicalPairIDs orders two diamond identifiers into their canonical
// (min, max) form. UUIDs compare bytewise, which matches both the database's
// uuid ordering and lexicographic order over the hex text form.
func CanonicalPairIDs(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}

	return b, a
}

// ListPairsResponse represents the response for reading a run's pair set.
type ListPairsResponse struct {
	Data  []DiamondPair `json:"data"`
	Total int64         `json:"total"`
}
