// Package matching implements the deterministic pairing core: candidate
// generation over a feature snapshot, override carry-forward, and the greedy
// solver. Everything in this package is pure computation — callers own all
// I/O and fetch the snapshot before handing it in.
package matching

import (
	"bytes"

	"github.com/google/uuid"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
)

// Diamond is the solver's view of one scanned gem: identity plus the
// features that drive pairing. Diamonds without at least one embedding
// channel are ineligible and must be filtered out before this package.
type Diamond struct {
	ID     uuid.UUID
	Type   string // empty means unconstrained
	AreaPx float64
	Aset   []float32
	UVFree []float32
}

// Edge is one weighted candidate pairing. A and B are stored in canonical
// order (A < B bytewise) so equal-weight edges sort identically everywhere.
type Edge struct {
	A      uuid.UUID
	B      uuid.UUID
	Weight float64
}

// less orders edges by weight descending, then canonical ids ascending.
// The strict total order is what makes tied weights deterministic.
func (e Edge) less(other Edge) bool {
	if e.Weight != other.Weight {
		return e.Weight > other.Weight
	}

	if cmp := bytes.Compare(e.A[:], other.A[:]); cmp != 0 {
		return cmp < 0
	}

	return bytes.Compare(e.B[:], other.B[:]) < 0
}

// Pair is one produced pairing before persistence. Diamond1/Diamond2 keep
// the orientation the producer supplied: solver pairs are canonical, carried
// pairs preserve the prior run's orientation.
type Pair struct {
	Diamond1ID uuid.UUID
	Diamond2ID uuid.UUID
	Confidence float64
	Locked     bool
	Source     models.PairSource
}

// Canonical returns the unordered identity of the pair as (min, max).
func (p Pair) Canonical() (uuid.UUID, uuid.UUID) {
	return models.CanonicalPairIDs(p.Diamond1ID, p.Diamond2ID)
}

// EdgeSource is a finite, single-use sequence of candidate edges. Next
// returns false permanently once the sequence is exhausted.
type EdgeSource interface {
	Next() (Edge, bool)
}
