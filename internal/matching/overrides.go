package matching

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
)

// DroppedOverride records a prior pair that could not be carried because one
// of its diamonds no longer exists. Dropping is a warning, never a failure.
type DroppedOverride struct {
	Pair             models.DiamondPair
	MissingDiamondID uuid.UUID
}

// CarryForward selects the pairs from the job's most recent DONE run that
// survive into the new run when carryLocked is set: every pair that is
// locked or whose source outranks ALGO (MANUAL, PREMIUM) is carried
// unchanged — confidence, source and locked flag all preserved — and its
// diamonds leave the free pool. existing is the set of diamond ids that
// still exist in the job.
//
// Returns the carried pairs in canonical order, the set of pinned diamond
// ids, and the pairs dropped because a diamond was deleted.
func CarryForward(prior []models.DiamondPair, existing map[uuid.UUID]bool, carryLocked bool) ([]Pair, map[uuid.UUID]bool, []DroppedOverride) {
	pinned := make(map[uuid.UUID]bool)

	if !carryLocked {
		return nil, pinned, nil
	}

	var (
		carried []Pair
		dropped []DroppedOverride
	)

	for _, p := range prior {
		if !p.Locked && p.Source.Precedence() <= models.PairSourceAlgo.Precedence() {
			continue
		}

		if !existing[p.Diamond1ID] {
			dropped = append(dropped, DroppedOverride{Pair: p, MissingDiamondID: p.Diamond1ID})
			continue
		}

		if !existing[p.Diamond2ID] {
			dropped = append(dropped, DroppedOverride{Pair: p, MissingDiamondID: p.Diamond2ID})
			continue
		}

		carried = append(carried, Pair{
			Diamond1ID: p.Diamond1ID,
			Diamond2ID: p.Diamond2ID,
			Confidence: p.Confidence,
			Locked:     p.Locked,
			Source:     p.Source,
		})

		pinned[p.Diamond1ID] = true
		pinned[p.Diamond2ID] = true
	}

	sort.Slice(carried, func(i, j int) bool {
		iMin, iMax := carried[i].Canonical()
		jMin, jMax := carried[j].Canonical()

		if cmp := bytes.Compare(iMin[:], jMin[:]); cmp != 0 {
			return cmp < 0
		}

		return bytes.Compare(iMax[:], jMax[:]) < 0
	})

	return carried, pinned, dropped
}
