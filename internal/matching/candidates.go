package matching

import (
	"bytes"
	"math"
	"sort"

	"github.com/Nastaran-Nourbakhsh/nova/pkg/embeddings"
)

// DefaultAreaTolerance is the relative pixel-area tolerance used when a run
// does not override it.
const DefaultAreaTolerance = 0.15

// DefaultHardFloor is the weight floor below which candidate edges are never
// emitted. It keeps the graph sparse independent of the per-run confidence
// threshold.
const DefaultHardFloor = 0.0

// Generator builds the sparse weighted compatibility graph for one run.
type Generator struct {
	areaTolerance float64
	hardFloor     float64
}

// NewGenerator creates a Generator. A non-positive tolerance falls back to
// DefaultAreaTolerance; the floor is taken as given (0 is meaningful).
func NewGenerator(areaTolerance, hardFloor float64) *Generator {
	if areaTolerance <= 0 {
		areaTolerance = DefaultAreaTolerance
	}

	return &Generator{
		areaTolerance: areaTolerance,
		hardFloor:     hardFloor,
	}
}

// Compatible reports whether two diamonds may be paired at all: their types
// must agree (an unset type matches anything) and their pixel areas must
// differ by no more than the relative tolerance.
func (g *Generator) Compatible(a, b *Diamond) bool {
	if a.Type != "" && b.Type != "" && a.Type != b.Type {
		return false
	}

	larger := math.Max(a.AreaPx, b.AreaPx)
	if larger == 0 {
		return true
	}

	return math.Abs(a.AreaPx-b.AreaPx) <= g.areaTolerance*larger
}

// Weight combines the per-channel cosine similarities into one score: the
// arithmetic mean over the channels both diamonds carry. A single shared
// channel stands alone; no shared channel means the pair cannot be scored
// and the second return is false.
func (g *Generator) Weight(a, b *Diamond) (float64, bool) {
	var sum float64

	channels := 0

	if len(a.Aset) > 0 && len(b.Aset) > 0 {
		if sim, ok := embeddings.Cosine(a.Aset, b.Aset); ok {
			sum += sim
			channels++
		}
	}

	if len(a.UVFree) > 0 && len(b.UVFree) > 0 {
		if sim, ok := embeddings.Cosine(a.UVFree, b.UVFree); ok {
			sum += sim
			channels++
		}
	}

	if channels == 0 {
		return 0, false
	}

	return sum / float64(channels), true
}

// Edges returns the candidate edge sequence for the given diamonds. The
// sequence is lazy (pairs are scored as they are pulled), finite, and
// single-use. Diamonds are pre-bucketed by type so pairs with conflicting
// types are never even enumerated; untyped diamonds join every bucket.
func (g *Generator) Edges(diamonds []Diamond) *EdgeIterator {
	byType := make(map[string][]*Diamond)

	var untyped []*Diamond

	for i := range diamonds {
		d := &diamonds[i]
		if d.Type == "" {
			untyped = append(untyped, d)
			continue
		}

		byType[d.Type] = append(byType[d.Type], d)
	}

	keys := make([]string, 0, len(byType))
	for k := range byType {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sortByID := func(ds []*Diamond) {
		sort.Slice(ds, func(i, j int) bool {
			return bytes.Compare(ds[i].ID[:], ds[j].ID[:]) < 0
		})
	}

	sortByID(untyped)

	// Each unordered couple appears in exactly one block: same-type pairs in
	// their bucket, typed-vs-untyped pairs in the bucket's cross block, and
	// untyped-vs-untyped pairs in the final block.
	var blocks []edgeBlock

	for _, k := range keys {
		bucket := byType[k]
		sortByID(bucket)
		blocks = append(blocks, edgeBlock{within: bucket})

		if len(untyped) > 0 {
			blocks = append(blocks, edgeBlock{within: bucket, cross: untyped})
		}
	}

	blocks = append(blocks, edgeBlock{within: untyped})

	return &EdgeIterator{gen: g, blocks: blocks, j: 1}
}

// edgeBlock is one enumeration unit: all i<j pairs of within when cross is
// nil, otherwise the full within x cross product.
type edgeBlock struct {
	within []*Diamond
	cross  []*Diamond
}

// EdgeIterator lazily walks the candidate blocks in a fixed order. It is
// single-use; Next never yields an edge twice and returns false forever once
// exhausted.
type EdgeIterator struct {
	gen    *Generator
	blocks []edgeBlock
	block  int
	i      int
	j      int
}

// Next returns the next candidate edge that passes compatibility, carries a
// scorable channel, and clears the hard floor.
func (it *EdgeIterator) Next() (Edge, bool) {
	for it.block < len(it.blocks) {
		b := it.blocks[it.block]

		a, c, ok := it.advance(b)
		if !ok {
			it.block++
			it.i = 0
			it.j = 1

			continue
		}

		if !it.gen.Compatible(a, c) {
			continue
		}

		weight, ok := it.gen.Weight(a, c)
		if !ok || weight <= it.gen.hardFloor {
			continue
		}

		minID, maxID := a.ID, c.ID
		if bytes.Compare(minID[:], maxID[:]) > 0 {
			minID, maxID = maxID, minID
		}

		return Edge{A: minID, B: maxID, Weight: weight}, true
	}

	return Edge{}, false
}

// advance steps the cursor through the current block, returning the next
// raw couple before any compatibility checks.
func (it *EdgeIterator) advance(b edgeBlock) (*Diamond, *Diamond, bool) {
	if b.cross == nil {
		if it.i >= len(b.within)-1 {
			return nil, nil, false
		}

		a, c := b.within[it.i], b.within[it.j]

		it.j++
		if it.j >= len(b.within) {
			it.i++
			it.j = it.i + 1
		}

		return a, c, true
	}

	if it.i >= len(b.within) {
		return nil, nil, false
	}

	// Cross blocks use j as a 0-based cursor into cross.
	a, c := b.within[it.i], b.cross[it.j-1]

	it.j++
	if it.j > len(b.cross) {
		it.i++
		it.j = 1
	}

	return a, c, true
}
