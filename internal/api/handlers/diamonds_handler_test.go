package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
)

// mockDiamondsService mocks DiamondsService for handler tests.
type mockDiamondsService struct {
	ingestFunc        func(ctx context.Context, jobID uuid.UUID, req *models.CreateDiamondRequest) (*models.Diamond, error)
	getFunc           func(ctx context.Context, id uuid.UUID) (*models.Diamond, error)
	listFunc          func(ctx context.Context, jobID uuid.UUID, filters *models.ListDiamondsFilters) (*models.ListDiamondsResponse, error)
	deleteFunc        func(ctx context.Context, id uuid.UUID) error
	upsertFeatureFunc func(ctx context.Context, diamondID uuid.UUID, req *models.UpsertDiamondFeatureRequest) (*models.DiamondFeature, error)
	getFeatureFunc    func(ctx context.Context, diamondID uuid.UUID, modelVersion string) (*models.DiamondFeature, error)
}

func (m *mockDiamondsService) IngestDiamond(ctx context.Context, jobID uuid.UUID, req *models.CreateDiamondRequest) (*models.Diamond, error) {
	if m.ingestFunc != nil {
		return m.ingestFunc(ctx, jobID, req)
	}

	return &models.Diamond{ID: testDiamondID, JobID: jobID, SlotIndex: req.SlotIndex}, nil
}

func (m *mockDiamondsService) GetDiamond(ctx context.Context, id uuid.UUID) (*models.Diamond, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}

	return &models.Diamond{ID: id, JobID: testJobID}, nil
}

func (m *mockDiamondsService) ListDiamonds(ctx context.Context, jobID uuid.UUID, filters *models.ListDiamondsFilters) (*models.ListDiamondsResponse, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, jobID, filters)
	}

	return &models.ListDiamondsResponse{Data: []models.Diamond{}}, nil
}

func (m *mockDiamondsService) DeleteDiamond(ctx context.Context, id uuid.UUID) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}

	return nil
}

func (m *mockDiamondsService) UpsertFeature(ctx context.Context, diamondID uuid.UUID, req *models.UpsertDiamondFeatureRequest) (*models.DiamondFeature, error) {
	if m.upsertFeatureFunc != nil {
		return m.upsertFeatureFunc(ctx, diamondID, req)
	}

	return &models.DiamondFeature{ID: uuid.Must(uuid.NewV7()), DiamondID: diamondID, AreaPx: req.AreaPx}, nil
}

func (m *mockDiamondsService) GetFeature(ctx context.Context, diamondID uuid.UUID, modelVersion string) (*models.DiamondFeature, error) {
	if m.getFeatureFunc != nil {
		return m.getFeatureFunc(ctx, diamondID, modelVersion)
	}

	return &models.DiamondFeature{DiamondID: diamondID, ModelVersion: modelVersion}, nil
}

func TestDiamondsHandler_Ingest(t *testing.T) {
	t.Run("success returns 201 with the diamond", func(t *testing.T) {
		h := NewDiamondsHandler(&mockDiamondsService{})

		req := httptest.NewRequest(http.MethodPost,
			"http://test/v1/jobs/"+testJobID.String()+"/diamonds",
			strings.NewReader(`{"ring_label":"tray-1","slot_index":3}`))
		req.SetPathValue("id", testJobID.String())
		rec := httptest.NewRecorder()

		h.Ingest(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)

		var diamond models.Diamond

		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diamond))
		assert.Equal(t, 3, diamond.SlotIndex)
	})

	t.Run("occupied slot returns 409", func(t *testing.T) {
		mock := &mockDiamondsService{
			ingestFunc: func(context.Context, uuid.UUID, *models.CreateDiamondRequest) (*models.Diamond, error) {
				return nil, novaerrors.NewConflictError("slot 3 is already occupied")
			},
		}
		h := NewDiamondsHandler(mock)

		req := httptest.NewRequest(http.MethodPost,
			"http://test/v1/jobs/"+testJobID.String()+"/diamonds",
			strings.NewReader(`{"ring_label":"tray-1","slot_index":3}`))
		req.SetPathValue("id", testJobID.String())
		rec := httptest.NewRecorder()

		h.Ingest(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)

		problem := decodeProblem(t, rec)
		assert.Contains(t, problem.Detail, "already occupied")
	})

	t.Run("negative slot_index returns 400", func(t *testing.T) {
		h := NewDiamondsHandler(&mockDiamondsService{})

		req := httptest.NewRequest(http.MethodPost,
			"http://test/v1/jobs/"+testJobID.String()+"/diamonds",
			strings.NewReader(`{"slot_index":-1}`))
		req.SetPathValue("id", testJobID.String())
		rec := httptest.NewRecorder()

		h.Ingest(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown job returns 404", func(t *testing.T) {
		mock := &mockDiamondsService{
			ingestFunc: func(context.Context, uuid.UUID, *models.CreateDiamondRequest) (*models.Diamond, error) {
				return nil, novaerrors.NewNotFoundError("job", "job not found")
			},
		}
		h := NewDiamondsHandler(mock)

		req := httptest.NewRequest(http.MethodPost,
			"http://test/v1/jobs/"+testJobID.String()+"/diamonds",
			strings.NewReader(`{"slot_index":0}`))
		req.SetPathValue("id", testJobID.String())
		rec := httptest.NewRecorder()

		h.Ingest(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDiamondsHandler_List(t *testing.T) {
	t.Run("passes ring_id filter to the service", func(t *testing.T) {
		ringID := uuid.Must(uuid.NewV7())

		var captured *models.ListDiamondsFilters

		mock := &mockDiamondsService{
			listFunc: func(_ context.Context, _ uuid.UUID, filters *models.ListDiamondsFilters) (*models.ListDiamondsResponse, error) {
				captured = filters

				return &models.ListDiamondsResponse{Data: []models.Diamond{}}, nil
			},
		}
		h := NewDiamondsHandler(mock)

		req := httptest.NewRequest(http.MethodGet,
			"http://test/v1/jobs/"+testJobID.String()+"/diamonds?ring_id="+ringID.String(), http.NoBody)
		req.SetPathValue("id", testJobID.String())
		rec := httptest.NewRecorder()

		h.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, captured)
		require.NotNil(t, captured.RingID)
		assert.Equal(t, ringID, *captured.RingID)
	})
}

func TestDiamondsHandler_Delete(t *testing.T) {
	t.Run("success returns 204", func(t *testing.T) {
		h := NewDiamondsHandler(&mockDiamondsService{})

		req := httptest.NewRequest(http.MethodDelete,
			"http://test/v1/diamonds/"+testDiamondID.String(), http.NoBody)
		req.SetPathValue("id", testDiamondID.String())
		rec := httptest.NewRecorder()

		h.Delete(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("unknown diamond returns 404", func(t *testing.T) {
		mock := &mockDiamondsService{
			deleteFunc: func(context.Context, uuid.UUID) error {
				return novaerrors.NewNotFoundError("diamond", "diamond not found")
			},
		}
		h := NewDiamondsHandler(mock)

		req := httptest.NewRequest(http.MethodDelete,
			"http://test/v1/diamonds/"+testDiamondID.String(), http.NoBody)
		req.SetPathValue("id", testDiamondID.String())
		rec := httptest.NewRecorder()

		h.Delete(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDiamondsHandler_UpsertFeature(t *testing.T) {
	t.Run("success returns 200 with the feature row", func(t *testing.T) {
		h := NewDiamondsHandler(&mockDiamondsService{})

		req := httptest.NewRequest(http.MethodPut,
			"http://test/v1/diamonds/"+testDiamondID.String()+"/features",
			strings.NewReader(`{"area_px":4523.5,"aset_embedding":[0.1,0.2]}`))
		req.SetPathValue("id", testDiamondID.String())
		rec := httptest.NewRecorder()

		h.UpsertFeature(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var feature models.DiamondFeature

		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feature))
		assert.InDelta(t, 4523.5, feature.AreaPx, 1e-9)
	})

	t.Run("dimension mismatch returns 422", func(t *testing.T) {
		mock := &mockDiamondsService{
			upsertFeatureFunc: func(context.Context, uuid.UUID, *models.UpsertDiamondFeatureRequest) (*models.DiamondFeature, error) {
				return nil, novaerrors.NewValidationError("aset_embedding",
					"aset_embedding must have 512 dimensions, got 3")
			},
		}
		h := NewDiamondsHandler(mock)

		req := httptest.NewRequest(http.MethodPut,
			"http://test/v1/diamonds/"+testDiamondID.String()+"/features",
			strings.NewReader(`{"area_px":100,"aset_embedding":[0.1,0.2,0.3]}`))
		req.SetPathValue("id", testDiamondID.String())
		rec := httptest.NewRecorder()

		h.UpsertFeature(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		problem := decodeProblem(t, rec)
		assert.Contains(t, problem.Detail, "512 dimensions")
	})

	t.Run("unknown boundary kind returns 400", func(t *testing.T) {
		h := NewDiamondsHandler(&mockDiamondsService{})

		req := httptest.NewRequest(http.MethodPut,
			"http://test/v1/diamonds/"+testDiamondID.String()+"/features",
			strings.NewReader(`{"area_px":100,"boundary":{"kind":"hexagon"}}`))
		req.SetPathValue("id", testDiamondID.String())
		rec := httptest.NewRecorder()

		h.UpsertFeature(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		problem := decodeProblem(t, rec)
		assert.Contains(t, problem.Detail, "circle or rect")
	})

	t.Run("missing area_px returns 400", func(t *testing.T) {
		h := NewDiamondsHandler(&mockDiamondsService{})

		req := httptest.NewRequest(http.MethodPut,
			"http://test/v1/diamonds/"+testDiamondID.String()+"/features",
			strings.NewReader(`{"aset_embedding":[0.1]}`))
		req.SetPathValue("id", testDiamondID.String())
		rec := httptest.NewRecorder()

		h.UpsertFeature(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDiamondsHandler_GetFeature(t *testing.T) {
	t.Run("passes model_version through to the service", func(t *testing.T) {
		var capturedVersion string

		mock := &mockDiamondsService{
			getFeatureFunc: func(_ context.Context, diamondID uuid.UUID, modelVersion string) (*models.DiamondFeature, error) {
				capturedVersion = modelVersion

				return &models.DiamondFeature{DiamondID: diamondID, ModelVersion: modelVersion}, nil
			},
		}
		h := NewDiamondsHandler(mock)

		req := httptest.NewRequest(http.MethodGet,
			"http://test/v1/diamonds/"+testDiamondID.String()+"/features?model_version=v2", http.NoBody)
		req.SetPathValue("id", testDiamondID.String())
		rec := httptest.NewRecorder()

		h.GetFeature(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "v2", capturedVersion)
	})

	t.Run("missing feature row returns 404", func(t *testing.T) {
		mock := &mockDiamondsService{
			getFeatureFunc: func(context.Context, uuid.UUID, string) (*models.DiamondFeature, error) {
				return nil, novaerrors.NewNotFoundError("diamond_feature", "feature row not found")
			},
		}
		h := NewDiamondsHandler(mock)

		req := httptest.NewRequest(http.MethodGet,
			"http://test/v1/diamonds/"+testDiamondID.String()+"/features", http.NoBody)
		req.SetPathValue("id", testDiamondID.String())
		rec := httptest.NewRecorder()

		h.GetFeature(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
