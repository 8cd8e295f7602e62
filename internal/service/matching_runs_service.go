package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/Nastaran-Nourbakhsh/nova/internal/config"
	"github.com/Nastaran-Nourbakhsh/nova/internal/matching"
	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
	"github.com/Nastaran-Nourbakhsh/nova/internal/observability"
)

// MatchingRunsRepository defines the interface for matching run data access.
type MatchingRunsRepository interface {
	Create(ctx context.Context, jobID uuid.UUID, params models.RunParams, createdBy string) (*models.MatchingRun, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.MatchingRun, error)
	GetLatestDone(ctx context.Context, jobID uuid.UUID) (*models.MatchingRun, error)
	ListByJob(ctx context.Context, jobID uuid.UUID, filters *models.ListMatchingRunsFilters) ([]models.MatchingRun, error)
	CountByJob(ctx context.Context, jobID uuid.UUID, filters *models.ListMatchingRunsFilters) (int64, error)
	MarkRunning(ctx context.Context, id uuid.UUID) (*models.MatchingRun, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Heartbeat(ctx context.Context, id uuid.UUID) error
}

// PairsGateway is the transactional pair surface: commit a run's whole pair
// set atomically, read it back in canonical order.
type PairsGateway interface {
	CommitPairs(ctx context.Context, runID uuid.UUID, pairs []models.DiamondPair) error
	ListByRun(ctx context.Context, runID uuid.UUID) ([]models.DiamondPair, error)
}

// PairsLister reads a run's pair set. Implemented by the gateway and by the
// caching reader that fronts it for immutable DONE runs.
type PairsLister interface {
	ListByRun(ctx context.Context, runID uuid.UUID) ([]models.DiamondPair, error)
}

// MatchingRunsService owns the run lifecycle: validation, single-flight
// creation, the execution pipeline shared by the queue worker and the sync
// path, and the read surface over runs and pairs.
type MatchingRunsService struct {
	cfg       *config.Config
	jobs      JobsRepository
	diamonds  DiamondsRepository
	features  FeaturesRepository
	runs      MatchingRunsRepository
	pairs     PairsGateway
	donePairs PairsLister                   // cached reads for DONE runs; nil falls back to pairs
	inserter  MatchingRunInserter           // nil in sync-only setups
	metrics   observability.MatchingMetrics // nil when metrics are disabled
}

// NewMatchingRunsService creates a new matching runs service. donePairs,
// inserter and metrics may be nil.
func NewMatchingRunsService(
	cfg *config.Config,
	jobs JobsRepository,
	diamonds DiamondsRepository,
	features FeaturesRepository,
	runs MatchingRunsRepository,
	pairs PairsGateway,
	donePairs PairsLister,
	inserter MatchingRunInserter,
	metrics observability.MatchingMetrics,
) *MatchingRunsService {
	return &MatchingRunsService{
		cfg:       cfg,
		jobs:      jobs,
		diamonds:  diamonds,
		features:  features,
		runs:      runs,
		pairs:     pairs,
		donePairs: donePairs,
		inserter:  inserter,
		metrics:   metrics,
	}
}

// SetInserter wires the queue inserter after construction. The worker that
// executes runs needs this service, and the River client needs the worker
// registry, so the client can only be attached once it exists.
func (s *MatchingRunsService) SetInserter(inserter MatchingRunInserter) {
	s.inserter = inserter
}

// EnqueueRun validates params, creates the run row in CREATED, and enqueues
// its execution. The row insert is the single-flight gate: a second run for
// the same job conflicts before anything is queued.
func (s *MatchingRunsService) EnqueueRun(
	ctx context.Context, jobID uuid.UUID, req *models.CreateMatchingRunRequest,
) (*models.MatchingRun, error) {
	if s.inserter == nil {
		return nil, novaerrors.NewStorageError("matching queue is not configured", nil)
	}

	params, createdBy, err := s.resolveRunParams(req)
	if err != nil {
		return nil, err
	}

	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}

	run, err := s.runs.Create(ctx, jobID, params, createdBy)
	if err != nil {
		return nil, err
	}

	_, err = s.inserter.Insert(ctx, MatchingRunArgs{RunID: run.ID, JobID: jobID}, &river.InsertOpts{
		Queue:       MatchingQueueName,
		MaxAttempts: s.cfg.MatchingMaxAttempts,
	})
	if err != nil {
		// The CREATED row holds the job's active-run marker; fail it so the
		// job is not wedged by a run nothing will ever execute.
		enqueueErr := novaerrors.NewStorageError("failed to enqueue matching run", err)
		s.failRun(ctx, run.ID, enqueueErr)

		return nil, enqueueErr
	}

	slog.Info("matching run enqueued",
		"run_id", run.ID,
		"job_id", jobID,
		"min_confidence", params.MinConfidence,
		"carry_locked", params.CarryLocked,
	)

	return run, nil
}

// RunSync validates params, creates the run row, and executes the pipeline
// inline. On success it returns the DONE run; on pipeline failure the run is
// already marked FAILED and the classified error surfaces to the caller.
func (s *MatchingRunsService) RunSync(
	ctx context.Context, jobID uuid.UUID, req *models.CreateMatchingRunRequest,
) (*models.MatchingRun, error) {
	params, createdBy, err := s.resolveRunParams(req)
	if err != nil {
		return nil, err
	}

	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}

	run, err := s.runs.Create(ctx, jobID, params, createdBy)
	if err != nil {
		return nil, err
	}

	if err := s.ExecuteRun(ctx, run.ID, "api"); err != nil {
		return nil, err
	}

	return s.runs.GetByID(ctx, run.ID)
}

// ErrRunNotClaimed marks claim-stage infrastructure failures: the run never
// reached RUNNING and stays claimable, so the queue may retry. A definitive
// claim conflict is not wrapped in it.
var ErrRunNotClaimed = errors.New("matching run not claimed")

// ExecuteRun claims the run (CREATED to RUNNING) and drives the pipeline to
// a terminal status. A claim conflict means another executor or the reaper
// settled the run; the caller decides whether that is an error. Any pipeline
// failure marks the run FAILED with the cause as its reason and returns the
// cause; a FAILED run has zero visible pairs.
func (s *MatchingRunsService) ExecuteRun(ctx context.Context, runID uuid.UUID, trigger string) error {
	run, err := s.runs.MarkRunning(ctx, runID)
	if err != nil {
		if errors.Is(err, novaerrors.ErrConflict) {
			return err
		}

		return fmt.Errorf("%w: %w", ErrRunNotClaimed, err)
	}

	ctx = observability.ContextWithRunID(ctx, runID)
	start := time.Now()

	if s.metrics != nil {
		s.metrics.RecordRunStarted(ctx, trigger)
	}

	slog.Info("matching run started",
		"run_id", runID,
		"job_id", run.JobID,
		"trigger", trigger,
		"min_confidence", run.Params.MinConfidence,
		"carry_locked", run.Params.CarryLocked,
		"model_version", run.Params.ModelVersion,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.heartbeatLoop(runCtx, runID, cancel)

	err = s.computeAndCommit(runCtx, run)
	duration := time.Since(start)

	if err != nil {
		s.failRun(ctx, runID, err)

		if s.metrics != nil {
			s.metrics.RecordRunFinished(ctx, "failed", duration)
			s.metrics.RecordRunFailure(ctx, failureReason(err))
		}

		return err
	}

	if s.metrics != nil {
		s.metrics.RecordRunFinished(ctx, "done", duration)
	}

	slog.Info("matching run done",
		"run_id", runID,
		"job_id", run.JobID,
		"duration_ms", duration.Milliseconds(),
	)

	return nil
}

// GetRun retrieves a single run by ID.
func (s *MatchingRunsService) GetRun(ctx context.Context, runID uuid.UUID) (*models.MatchingRun, error) {
	return s.runs.GetByID(ctx, runID)
}

// GetPairs returns a run's pair set in canonical order. DONE runs are
// immutable and served through the cache; non-terminal and FAILED runs read
// the gateway directly (and are empty by construction).
func (s *MatchingRunsService) GetPairs(ctx context.Context, runID uuid.UUID) (*models.ListPairsResponse, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	var pairs []models.DiamondPair

	if run.Status == models.RunStatusDone {
		pairs, err = s.listDonePairs(ctx, runID)
	} else {
		pairs, err = s.pairs.ListByRun(ctx, runID)
	}

	if err != nil {
		return nil, err
	}

	return &models.ListPairsResponse{
		Data:  pairs,
		Total: int64(len(pairs)),
	}, nil
}

// GetLatestDoneRun retrieves the job's most recent DONE run.
func (s *MatchingRunsService) GetLatestDoneRun(ctx context.Context, jobID uuid.UUID) (*models.MatchingRun, error) {
	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}

	return s.runs.GetLatestDone(ctx, jobID)
}

// ListRuns retrieves a job's run history, newest first.
func (s *MatchingRunsService) ListRuns(
	ctx context.Context, jobID uuid.UUID, filters *models.ListMatchingRunsFilters,
) (*models.ListMatchingRunsResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = 100 // Default limit
	}

	if filters.Limit > 1000 {
		filters.Limit = 1000 // Max limit
	}

	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}

	runs, err := s.runs.ListByJob(ctx, jobID, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.runs.CountByJob(ctx, jobID, filters)
	if err != nil {
		return nil, err
	}

	return &models.ListMatchingRunsResponse{
		Data:   runs,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// computeAndCommit runs the pipeline over one claimed run: feature snapshot,
// override carry-forward, candidate generation, greedy solve under the
// wall-clock budget, and the atomic commit that also flips the run DONE.
func (s *MatchingRunsService) computeAndCommit(ctx context.Context, run *models.MatchingRun) error {
	features, err := s.features.ListByJobAndModel(ctx, run.JobID, run.Params.ModelVersion)
	if err != nil {
		return err
	}

	pool := make([]matching.Diamond, 0, len(features))

	for i := range features {
		f := &features[i]
		if !f.Eligible() {
			continue
		}

		d := matching.Diamond{
			ID:     f.DiamondID,
			AreaPx: f.AreaPx,
			Aset:   f.AsetEmbedding,
			UVFree: f.UVFreeEmbedding,
		}
		if f.DiamondType != nil {
			d.Type = *f.DiamondType
		}

		pool = append(pool, d)
	}

	carried, pinned, err := s.resolveOverrides(ctx, run)
	if err != nil {
		return err
	}

	// Pinned diamonds leave the free pool before candidate generation so the
	// solver cannot produce a second pair for them.
	if len(pinned) > 0 {
		free := pool[:0]

		for _, d := range pool {
			if !pinned[d.ID] {
				free = append(free, d)
			}
		}

		pool = free
	}

	budget := s.cfg.SolverBudget(len(pool))

	solveCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	gen := matching.NewGenerator(run.Params.AreaTolerance, matching.DefaultHardFloor)
	edges := &countingEdgeSource{src: gen.Edges(pool)}

	solveStart := time.Now()

	solved, err := matching.Solve(solveCtx, edges, run.Params.MinConfidence)

	if s.metrics != nil {
		s.metrics.RecordSolverDuration(ctx, time.Since(solveStart))
		s.metrics.RecordEdgesGenerated(ctx, int64(edges.n))
	}

	if err != nil {
		return err
	}

	slog.Info("solver finished",
		"run_id", run.ID,
		"eligible", len(pool),
		"edges", edges.n,
		"solved", len(solved),
		"carried", len(carried),
		"budget_ms", budget.Milliseconds(),
	)

	pairs := make([]models.DiamondPair, 0, len(carried)+len(solved))

	for _, p := range carried {
		pairs = append(pairs, toDiamondPair(p))
	}

	for _, p := range solved {
		pairs = append(pairs, toDiamondPair(p))
	}

	if err := s.pairs.CommitPairs(ctx, run.ID, pairs); err != nil {
		return err
	}

	if s.metrics != nil {
		counts := make(map[models.PairSource]int64, 3)
		for i := range pairs {
			counts[pairs[i].Source]++
		}

		for source, count := range counts {
			s.metrics.RecordPairsCommitted(ctx, string(source), count)
		}
	}

	return nil
}

// resolveOverrides loads the job's most recent DONE pair set and carries the
// locked and human-sourced pairs forward unchanged. Pairs whose diamonds
// were deleted since that run are dropped with a warning.
func (s *MatchingRunsService) resolveOverrides(
	ctx context.Context, run *models.MatchingRun,
) ([]matching.Pair, map[uuid.UUID]bool, error) {
	if !run.Params.CarryLocked {
		return nil, map[uuid.UUID]bool{}, nil
	}

	latest, err := s.runs.GetLatestDone(ctx, run.JobID)
	if err != nil {
		if errors.Is(err, novaerrors.ErrNotFound) {
			return nil, map[uuid.UUID]bool{}, nil
		}

		return nil, nil, err
	}

	prior, err := s.listDonePairs(ctx, latest.ID)
	if err != nil {
		return nil, nil, err
	}

	ids, err := s.diamonds.ListIDsByJob(ctx, run.JobID)
	if err != nil {
		return nil, nil, err
	}

	existing := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		existing[id] = true
	}

	carried, pinned, dropped := matching.CarryForward(prior, existing, run.Params.CarryLocked)

	for _, d := range dropped {
		slog.Warn("dropping carried pair, diamond deleted",
			"run_id", run.ID,
			"prior_run_id", latest.ID,
			"diamond1_id", d.Pair.Diamond1ID,
			"diamond2_id", d.Pair.Diamond2ID,
			"missing_diamond_id", d.MissingDiamondID,
			"source", d.Pair.Source,
		)

		if s.metrics != nil {
			s.metrics.RecordOverrideDropped(ctx, "diamond_deleted")
		}
	}

	if s.metrics != nil && len(carried) > 0 {
		s.metrics.RecordOverridesCarried(ctx, int64(len(carried)))
	}

	return carried, pinned, nil
}

// listDonePairs serves an immutable DONE pair set through the cache when one
// is wired.
func (s *MatchingRunsService) listDonePairs(ctx context.Context, runID uuid.UUID) ([]models.DiamondPair, error) {
	if s.donePairs != nil {
		return s.donePairs.ListByRun(ctx, runID)
	}

	return s.pairs.ListByRun(ctx, runID)
}

// heartbeatLoop refreshes the run's liveness marker until the run context
// ends. Losing RUNNING (the reaper claimed the run as stalled) cancels the
// in-flight work early; the commit-time status flip is the hard guard against
// a zombie executor writing pairs.
func (s *MatchingRunsService) heartbeatLoop(ctx context.Context, runID uuid.UUID, cancel context.CancelFunc) {
	ticker := time.NewTicker(s.cfg.RunHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.runs.Heartbeat(ctx, runID)
			if err == nil {
				continue
			}

			if errors.Is(err, novaerrors.ErrConflict) {
				slog.Warn("matching run is no longer RUNNING, canceling work", "run_id", runID)
				cancel()

				return
			}

			slog.Warn("failed to refresh run heartbeat", "run_id", runID, "error", err)
		}
	}
}

// failRun marks the run FAILED with a human-readable reason, detached from
// the (possibly canceled) run context so the verdict still lands. A
// terminal-wins conflict means someone else already settled the run.
func (s *MatchingRunsService) failRun(ctx context.Context, runID uuid.UUID, cause error) {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.runs.MarkFailed(markCtx, runID, cause.Error()); err != nil {
		if errors.Is(err, novaerrors.ErrConflict) {
			slog.Debug("matching run already terminal", "run_id", runID)

			return
		}

		slog.Error("failed to mark matching run failed",
			"run_id", runID,
			"reason", cause.Error(),
			"error", err,
		)

		return
	}

	slog.Warn("matching run failed", "run_id", runID, "reason", cause.Error())
}

// resolveRunParams validates the request and fills defaults, returning the
// complete params stored on the run row plus the creator label.
func (s *MatchingRunsService) resolveRunParams(req *models.CreateMatchingRunRequest) (models.RunParams, string, error) {
	if req == nil || req.MinConfidence == nil {
		return models.RunParams{}, "", novaerrors.NewValidationError("min_confidence", "min_confidence is required")
	}

	if *req.MinConfidence < 0 || *req.MinConfidence > 1 {
		return models.RunParams{}, "", novaerrors.NewValidationError("min_confidence", "min_confidence must be between 0 and 1")
	}

	params := models.RunParams{
		MinConfidence: *req.MinConfidence,
		CarryLocked:   req.CarryLocked,
		AreaTolerance: s.cfg.MatchingAreaTolerance,
		ModelVersion:  s.cfg.MatchingModelVersion,
	}

	if req.AreaTolerance != nil {
		if *req.AreaTolerance <= 0 {
			return models.RunParams{}, "", novaerrors.NewValidationError("area_tolerance", "area_tolerance must be positive")
		}

		params.AreaTolerance = *req.AreaTolerance
	}

	if req.ModelVersion != nil && strings.TrimSpace(*req.ModelVersion) != "" {
		params.ModelVersion = strings.TrimSpace(*req.ModelVersion)
	}

	createdBy := "api"
	if req.CreatedBy != nil && strings.TrimSpace(*req.CreatedBy) != "" {
		createdBy = strings.TrimSpace(*req.CreatedBy)
	}

	return params, createdBy, nil
}

// toDiamondPair converts one produced pair into its storage form with the
// canonical (min, max) identity filled in.
func toDiamondPair(p matching.Pair) models.DiamondPair {
	minID, maxID := p.Canonical()

	return models.DiamondPair{
		Diamond1ID:   p.Diamond1ID,
		Diamond2ID:   p.Diamond2ID,
		DiamondMinID: minID,
		DiamondMaxID: maxID,
		Confidence:   p.Confidence,
		Locked:       p.Locked,
		Source:       p.Source,
	}
}

// failureReason classifies a pipeline error into the bounded label set used
// by the failure counter.
func failureReason(err error) string {
	switch {
	case errors.Is(err, novaerrors.ErrTimeout):
		return "timeout"
	case errors.Is(err, novaerrors.ErrConflict):
		return "conflict"
	case errors.Is(err, novaerrors.ErrValidation):
		return "validation"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "storage"
	}
}

// countingEdgeSource counts candidate edges as the solver pulls them.
type countingEdgeSource struct {
	src matching.EdgeSource
	n   int
}

func (c *countingEdgeSource) Next() (matching.Edge, bool) {
	e, ok := c.src.Next()
	if ok {
		c.n++
	}

	return e, ok
}
