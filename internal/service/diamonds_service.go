package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Nastaran-Nourbakhsh/nova/internal/config"
	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
)

// RingsRepository defines the interface for ring data access.
type RingsRepository interface {
	GetOrCreate(ctx context.Context, jobID uuid.UUID, req *models.CreateRingRequest) (*models.Ring, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Ring, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Ring, error)
}

// DiamondsRepository defines the interface for diamond data access.
type DiamondsRepository interface {
	Create(ctx context.Context, jobID uuid.UUID, ringID *uuid.UUID, slotIndex int) (*models.Diamond, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Diamond, error)
	ListByJob(ctx context.Context, jobID uuid.UUID, filters *models.ListDiamondsFilters) ([]models.Diamond, error)
	CountByJob(ctx context.Context, jobID uuid.UUID, filters *models.ListDiamondsFilters) (int64, error)
	ListIDsByJob(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// FeaturesRepository defines the interface for diamond feature data access.
type FeaturesRepository interface {
	Upsert(ctx context.Context, diamondID uuid.UUID, modelVersion string, req *models.UpsertDiamondFeatureRequest) (*models.DiamondFeature, error)
	GetByDiamondAndModel(ctx context.Context, diamondID uuid.UUID, modelVersion string) (*models.DiamondFeature, error)
	ListByJobAndModel(ctx context.Context, jobID uuid.UUID, modelVersion string) ([]models.DiamondFeature, error)
}

// DiamondsService handles business logic for rings, diamonds, and their
// feature rows.
type DiamondsService struct {
	cfg      *config.Config
	jobs     JobsRepository
	rings    RingsRepository
	diamonds DiamondsRepository
	features FeaturesRepository
}

// NewDiamondsService creates a new diamonds service.
func NewDiamondsService(
	cfg *config.Config,
	jobs JobsRepository,
	rings RingsRepository,
	diamonds DiamondsRepository,
	features FeaturesRepository,
) *DiamondsService {
	return &DiamondsService{
		cfg:      cfg,
		jobs:     jobs,
		rings:    rings,
		diamonds: diamonds,
		features: features,
	}
}

// GetOrCreateRing resolves a ring by label inside a job, creating it when
// absent. Repeating the call with the same label returns the same ring.
func (s *DiamondsService) GetOrCreateRing(
	ctx context.Context, jobID uuid.UUID, req *models.CreateRingRequest,
) (*models.Ring, error) {
	if strings.TrimSpace(req.Label) == "" {
		return nil, novaerrors.NewValidationError("label", "label is required")
	}

	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}

	return s.rings.GetOrCreate(ctx, jobID, req)
}

// ListRings retrieves all rings of a job.
func (s *DiamondsService) ListRings(ctx context.Context, jobID uuid.UUID) ([]models.Ring, error) {
	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}

	return s.rings.ListByJob(ctx, jobID)
}

// IngestDiamond records one scanned diamond at (ring, slot). The ring label,
// when given, is resolved get-or-create; an occupied slot is a conflict so
// scanner retries never silently overwrite.
func (s *DiamondsService) IngestDiamond(
	ctx context.Context, jobID uuid.UUID, req *models.CreateDiamondRequest,
) (*models.Diamond, error) {
	if req.SlotIndex < 0 {
		return nil, novaerrors.NewValidationError("slot_index", "slot_index must not be negative")
	}

	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}

	var ringID *uuid.UUID

	if req.RingLabel != nil {
		label := strings.TrimSpace(*req.RingLabel)
		if label == "" {
			return nil, novaerrors.NewValidationError("ring_label", "ring_label must not be blank")
		}

		ring, err := s.rings.GetOrCreate(ctx, jobID, &models.CreateRingRequest{Label: label})
		if err != nil {
			return nil, err
		}

		ringID = &ring.ID
	}

	return s.diamonds.Create(ctx, jobID, ringID, req.SlotIndex)
}

// GetDiamond retrieves a single diamond by ID.
func (s *DiamondsService) GetDiamond(ctx context.Context, id uuid.UUID) (*models.Diamond, error) {
	return s.diamonds.GetByID(ctx, id)
}

// ListDiamonds retrieves a job's diamonds with optional filters.
func (s *DiamondsService) ListDiamonds(
	ctx context.Context, jobID uuid.UUID, filters *models.ListDiamondsFilters,
) (*models.ListDiamondsResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = 100 // Default limit
	}

	if filters.Limit > 1000 {
		filters.Limit = 1000 // Max limit
	}

	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}

	diamonds, err := s.diamonds.ListByJob(ctx, jobID, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.diamonds.CountByJob(ctx, jobID, filters)
	if err != nil {
		return nil, err
	}

	return &models.ListDiamondsResponse{
		Data:   diamonds,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// DeleteDiamond removes a diamond. Pairs from past runs survive; the next
// run's override carry-forward drops any pair that references it.
func (s *DiamondsService) DeleteDiamond(ctx context.Context, id uuid.UUID) error {
	return s.diamonds.Delete(ctx, id)
}

// UpsertFeature creates or replaces the feature row for one diamond under a
// model version. Embeddings arrive precomputed; dimensions must match the
// configured width so halfvec columns stay consistent.
func (s *DiamondsService) UpsertFeature(
	ctx context.Context, diamondID uuid.UUID, req *models.UpsertDiamondFeatureRequest,
) (*models.DiamondFeature, error) {
	if err := s.validateFeatureRequest(req); err != nil {
		return nil, err
	}

	if _, err := s.diamonds.GetByID(ctx, diamondID); err != nil {
		return nil, err
	}

	modelVersion := s.cfg.MatchingModelVersion
	if req.ModelVersion != nil && strings.TrimSpace(*req.ModelVersion) != "" {
		modelVersion = strings.TrimSpace(*req.ModelVersion)
	}

	return s.features.Upsert(ctx, diamondID, modelVersion, req)
}

// GetFeature retrieves the feature row for (diamond, model_version), falling
// back to the configured default model version.
func (s *DiamondsService) GetFeature(
	ctx context.Context, diamondID uuid.UUID, modelVersion string,
) (*models.DiamondFeature, error) {
	if strings.TrimSpace(modelVersion) == "" {
		modelVersion = s.cfg.MatchingModelVersion
	}

	return s.features.GetByDiamondAndModel(ctx, diamondID, modelVersion)
}

// validateFeatureRequest checks the pieces the struct tags cannot express.
func (s *DiamondsService) validateFeatureRequest(req *models.UpsertDiamondFeatureRequest) error {
	if req.AreaPx <= 0 {
		return novaerrors.NewValidationError("area_px", "area_px must be positive")
	}

	if len(req.AsetEmbedding) > 0 && len(req.AsetEmbedding) != s.cfg.EmbeddingDimensions {
		return novaerrors.NewValidationError("aset_embedding",
			fmt.Sprintf("aset_embedding must have %d dimensions, got %d",
				s.cfg.EmbeddingDimensions, len(req.AsetEmbedding)))
	}

	if len(req.UVFreeEmbedding) > 0 && len(req.UVFreeEmbedding) != s.cfg.EmbeddingDimensions {
		return novaerrors.NewValidationError("uv_free_embedding",
			fmt.Sprintf("uv_free_embedding must have %d dimensions, got %d",
				s.cfg.EmbeddingDimensions, len(req.UVFreeEmbedding)))
	}

	if req.TableSizePx != nil && *req.TableSizePx <= 0 {
		return novaerrors.NewValidationError("table_size_px", "table_size_px must be positive")
	}

	if req.Boundary != nil {
		if err := req.Boundary.Validate(); err != nil {
			return novaerrors.NewValidationError("boundary", err.Error())
		}
	}

	return nil
}
