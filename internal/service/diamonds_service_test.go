package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
)

type mockRingsRepo struct {
	getOrCreateFunc func(ctx context.Context, jobID uuid.UUID, req *models.CreateRingRequest) (*models.Ring, error)
}

func (m *mockRingsRepo) GetOrCreate(ctx context.Context, jobID uuid.UUID, req *models.CreateRingRequest) (*models.Ring, error) {
	if m.getOrCreateFunc != nil {
		return m.getOrCreateFunc(ctx, jobID, req)
	}

	return &models.Ring{ID: uuid.Must(uuid.NewV7()), JobID: jobID, Label: req.Label}, nil
}

func (m *mockRingsRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Ring, error) {
	return &models.Ring{ID: id}, nil
}

func (m *mockRingsRepo) ListByJob(_ context.Context, _ uuid.UUID) ([]models.Ring, error) {
	return []models.Ring{}, nil
}

func newDiamondsService(rings *mockRingsRepo, diamonds *mockDiamondsRepo, features *mockFeaturesRepo) *DiamondsService {
	return NewDiamondsService(testRunConfig(), &mockJobsRepo{}, rings, diamonds, features)
}

func TestDiamondsService_GetOrCreateRing_RequiresLabel(t *testing.T) {
	svc := newDiamondsService(&mockRingsRepo{}, &mockDiamondsRepo{}, &mockFeaturesRepo{})

	_, err := svc.GetOrCreateRing(context.Background(), testJobID, &models.CreateRingRequest{Label: "  "})
	require.ErrorIs(t, err, novaerrors.ErrValidation)
}

func TestDiamondsService_IngestDiamond(t *testing.T) {
	t.Run("negative slot rejected", func(t *testing.T) {
		svc := newDiamondsService(&mockRingsRepo{}, &mockDiamondsRepo{}, &mockFeaturesRepo{})

		_, err := svc.IngestDiamond(context.Background(), testJobID, &models.CreateDiamondRequest{SlotIndex: -1})
		require.ErrorIs(t, err, novaerrors.ErrValidation)
	})

	t.Run("ring label resolves get-or-create", func(t *testing.T) {
		ringID := uuid.Must(uuid.NewV7())

		var gotLabel string

		rings := &mockRingsRepo{
			getOrCreateFunc: func(_ context.Context, jobID uuid.UUID, req *models.CreateRingRequest) (*models.Ring, error) {
				gotLabel = req.Label

				return &models.Ring{ID: ringID, JobID: jobID, Label: req.Label}, nil
			},
		}

		var gotRingID *uuid.UUID

		var gotSlot int

		diamonds := &mockDiamondsRepo{
			createFunc: func(_ context.Context, jobID uuid.UUID, rid *uuid.UUID, slot int) (*models.Diamond, error) {
				gotRingID, gotSlot = rid, slot

				return &models.Diamond{ID: uuid.Must(uuid.NewV7()), JobID: jobID, RingID: rid, SlotIndex: slot}, nil
			},
		}
		svc := newDiamondsService(rings, diamonds, &mockFeaturesRepo{})

		_, err := svc.IngestDiamond(context.Background(), testJobID, &models.CreateDiamondRequest{
			RingLabel: strPtr("  tray-1  "),
			SlotIndex: 3,
		})
		require.NoError(t, err)

		assert.Equal(t, "tray-1", gotLabel)
		require.NotNil(t, gotRingID)
		assert.Equal(t, ringID, *gotRingID)
		assert.Equal(t, 3, gotSlot)
	})

	t.Run("loose diamond has no ring", func(t *testing.T) {
		var gotRingID *uuid.UUID

		diamonds := &mockDiamondsRepo{
			createFunc: func(_ context.Context, jobID uuid.UUID, rid *uuid.UUID, slot int) (*models.Diamond, error) {
				gotRingID = rid

				return &models.Diamond{ID: uuid.Must(uuid.NewV7()), JobID: jobID, SlotIndex: slot}, nil
			},
		}
		svc := newDiamondsService(&mockRingsRepo{}, diamonds, &mockFeaturesRepo{})

		_, err := svc.IngestDiamond(context.Background(), testJobID, &models.CreateDiamondRequest{SlotIndex: 0})
		require.NoError(t, err)
		assert.Nil(t, gotRingID)
	})

	t.Run("blank ring label rejected", func(t *testing.T) {
		svc := newDiamondsService(&mockRingsRepo{}, &mockDiamondsRepo{}, &mockFeaturesRepo{})

		_, err := svc.IngestDiamond(context.Background(), testJobID, &models.CreateDiamondRequest{
			RingLabel: strPtr("   "),
			SlotIndex: 0,
		})
		require.ErrorIs(t, err, novaerrors.ErrValidation)
	})
}

func TestDiamondsService_UpsertFeature(t *testing.T) {
	diamondID := uuid.Must(uuid.NewV7())

	t.Run("area must be positive", func(t *testing.T) {
		svc := newDiamondsService(&mockRingsRepo{}, &mockDiamondsRepo{}, &mockFeaturesRepo{})

		_, err := svc.UpsertFeature(context.Background(), diamondID, &models.UpsertDiamondFeatureRequest{AreaPx: 0})
		require.ErrorIs(t, err, novaerrors.ErrValidation)
	})

	t.Run("embedding dimensions must match config", func(t *testing.T) {
		svc := newDiamondsService(&mockRingsRepo{}, &mockDiamondsRepo{}, &mockFeaturesRepo{})

		_, err := svc.UpsertFeature(context.Background(), diamondID, &models.UpsertDiamondFeatureRequest{
			AreaPx:        100,
			AsetEmbedding: []float32{1, 0, 0},
		})
		require.ErrorIs(t, err, novaerrors.ErrValidation)
		assert.Contains(t, err.Error(), "must have 2 dimensions, got 3")
	})

	t.Run("invalid boundary rejected", func(t *testing.T) {
		svc := newDiamondsService(&mockRingsRepo{}, &mockDiamondsRepo{}, &mockFeaturesRepo{})

		_, err := svc.UpsertFeature(context.Background(), diamondID, &models.UpsertDiamondFeatureRequest{
			AreaPx:   100,
			Boundary: &models.Boundary{Kind: "hexagon"},
		})
		require.ErrorIs(t, err, novaerrors.ErrValidation)
	})

	t.Run("model version defaults from config", func(t *testing.T) {
		var gotVersion string

		features := &mockFeaturesRepo{
			upsertFunc: func(_ context.Context, id uuid.UUID, modelVersion string, _ *models.UpsertDiamondFeatureRequest) (*models.DiamondFeature, error) {
				gotVersion = modelVersion

				return &models.DiamondFeature{DiamondID: id, ModelVersion: modelVersion}, nil
			},
		}
		svc := newDiamondsService(&mockRingsRepo{}, &mockDiamondsRepo{}, features)

		_, err := svc.UpsertFeature(context.Background(), diamondID, &models.UpsertDiamondFeatureRequest{AreaPx: 100})
		require.NoError(t, err)
		assert.Equal(t, "v1", gotVersion)

		_, err = svc.UpsertFeature(context.Background(), diamondID, &models.UpsertDiamondFeatureRequest{
			AreaPx:       100,
			ModelVersion: strPtr("  v2  "),
		})
		require.NoError(t, err)
		assert.Equal(t, "v2", gotVersion)
	})
}

func TestDiamondsService_GetFeature_DefaultModelVersion(t *testing.T) {
	var gotVersion string

	features := &mockFeaturesRepo{
		getFunc: func(_ context.Context, id uuid.UUID, modelVersion string) (*models.DiamondFeature, error) {
			gotVersion = modelVersion

			return &models.DiamondFeature{DiamondID: id, ModelVersion: modelVersion}, nil
		},
	}
	svc := newDiamondsService(&mockRingsRepo{}, &mockDiamondsRepo{}, features)

	_, err := svc.GetFeature(context.Background(), uuid.Must(uuid.NewV7()), "")
	require.NoError(t, err)
	assert.Equal(t, "v1", gotVersion)
}
