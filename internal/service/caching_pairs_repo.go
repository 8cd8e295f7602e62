package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/observability"
	"github.com/Nastaran-Nourbakhsh/nova/pkg/cache"
)

const cacheNameRunPairs = "run_pairs"

// cachingPairsReader wraps a PairsLister with an LRU keyed by run ID. Only
// DONE runs are read through it, and a DONE run's pair set never changes, so
// entries are never invalidated; the LRU bound alone caps memory.
type cachingPairsReader struct {
	inner   PairsLister
	cache   *cache.LoaderCache[uuid.UUID, []models.DiamondPair]
	metrics observability.CacheMetrics
}

// NewCachingPairsReader returns a PairsLister that caches whole pair sets per
// run. metrics may be nil (no cache metrics recorded).
func NewCachingPairsReader(
	inner PairsLister,
	pairsCache *cache.LoaderCache[uuid.UUID, []models.DiamondPair],
	metrics observability.CacheMetrics,
) PairsLister {
	return &cachingPairsReader{
		inner:   inner,
		cache:   pairsCache,
		metrics: metrics,
	}
}

func (r *cachingPairsReader) ListByRun(ctx context.Context, runID uuid.UUID) ([]models.DiamondPair, error) {
	if r.metrics != nil {
		pairs, hit, err := r.cache.GetWithStats(ctx, runID, r.inner.ListByRun)
		if err != nil {
			return nil, fmt.Errorf("list pairs by run: %w", err)
		}

		if hit {
			r.metrics.RecordHit(ctx, cacheNameRunPairs)
		} else {
			r.metrics.RecordMiss(ctx, cacheNameRunPairs)
		}

		return pairs, nil
	}

	pairs, err := r.cache.Get(ctx, runID, r.inner.ListByRun)
	if err != nil {
		return nil, fmt.Errorf("list pairs by run: %w", err)
	}

	return pairs, nil
}
