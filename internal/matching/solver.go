package matching

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
)

// deadlineCheckInterval bounds how many edges pass between wall-clock checks
// during collection and the greedy scan.
const deadlineCheckInterval = 1024

// Solve consumes the candidate edge sequence and returns a deterministic
// greedy matching: edges sorted by (weight desc, min id asc, max id asc),
// accepted when both endpoints are still free. Edges below minConfidence are
// pruned before the greedy pass — filtering afterwards would let a rejected
// edge steal endpoints from better edges behind it. Diamonds left unmatched
// are simply absent from the result.
//
// The caller bounds the solve with a context deadline; exceeding it returns
// a TimeoutError rather than a partial (and therefore order-dependent)
// result. Solve emits ALGO pairs only.
func Solve(ctx context.Context, edges EdgeSource, minConfidence float64) ([]Pair, error) {
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	var candidates []Edge

	seen := 0

	for {
		e, ok := edges.Next()
		if !ok {
			break
		}

		seen++
		if seen%deadlineCheckInterval == 0 {
			if err := checkDeadline(ctx); err != nil {
				return nil, err
			}
		}

		if e.Weight < minConfidence {
			continue
		}

		candidates = append(candidates, e)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].less(candidates[j])
	})

	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	used := make(map[uuid.UUID]bool, len(candidates)*2)

	var pairs []Pair

	for i, e := range candidates {
		if i > 0 && i%deadlineCheckInterval == 0 {
			if err := checkDeadline(ctx); err != nil {
				return nil, err
			}
		}

		if used[e.A] || used[e.B] {
			continue
		}

		used[e.A] = true
		used[e.B] = true

		pairs = append(pairs, Pair{
			Diamond1ID: e.A,
			Diamond2ID: e.B,
			Confidence: e.Weight,
			Source:     models.PairSourceAlgo,
		})
	}

	return pairs, nil
}

// checkDeadline translates context expiry into the run failure taxonomy: a
// blown deadline is a TimeoutError, an explicit cancellation passes through.
func checkDeadline(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return novaerrors.NewTimeoutError("solver budget exceeded")
	}

	return err
}
