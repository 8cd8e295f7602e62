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

// mockRingsService mocks RingsService for handler tests.
type mockRingsService struct {
	getOrCreateFunc func(ctx context.Context, jobID uuid.UUID, req *models.CreateRingRequest) (*models.Ring, error)
	listFunc        func(ctx context.Context, jobID uuid.UUID) ([]models.Ring, error)
}

func (m *mockRingsService) GetOrCreateRing(ctx context.Context, jobID uuid.UUID, req *models.CreateRingRequest) (*models.Ring, error) {
	if m.getOrCreateFunc != nil {
		return m.getOrCreateFunc(ctx, jobID, req)
	}

	return &models.Ring{ID: uuid.Must(uuid.NewV7()), JobID: jobID, Label: req.Label}, nil
}

func (m *mockRingsService) ListRings(ctx context.Context, jobID uuid.UUID) ([]models.Ring, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, jobID)
	}

	return []models.Ring{}, nil
}

func TestRingsHandler_Create(t *testing.T) {
	t.Run("returns the ring for a new or existing label", func(t *testing.T) {
		h := NewRingsHandler(&mockRingsService{})

		req := httptest.NewRequest(http.MethodPost,
			"http://test/v1/jobs/"+testJobID.String()+"/rings",
			strings.NewReader(`{"label":"tray-1","position":2}`))
		req.SetPathValue("id", testJobID.String())
		rec := httptest.NewRecorder()

		h.Create(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var ring models.Ring

		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ring))
		assert.Equal(t, "tray-1", ring.Label)
		assert.Equal(t, testJobID, ring.JobID)
	})

	t.Run("missing label returns 400", func(t *testing.T) {
		h := NewRingsHandler(&mockRingsService{})

		req := httptest.NewRequest(http.MethodPost,
			"http://test/v1/jobs/"+testJobID.String()+"/rings", strings.NewReader(`{}`))
		req.SetPathValue("id", testJobID.String())
		rec := httptest.NewRecorder()

		h.Create(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown job returns 404", func(t *testing.T) {
		mock := &mockRingsService{
			getOrCreateFunc: func(context.Context, uuid.UUID, *models.CreateRingRequest) (*models.Ring, error) {
				return nil, novaerrors.NewNotFoundError("job", "job not found")
			},
		}
		h := NewRingsHandler(mock)

		req := httptest.NewRequest(http.MethodPost,
			"http://test/v1/jobs/"+testJobID.String()+"/rings",
			strings.NewReader(`{"label":"tray-1"}`))
		req.SetPathValue("id", testJobID.String())
		rec := httptest.NewRecorder()

		h.Create(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRingsHandler_List(t *testing.T) {
	t.Run("wraps rings with a total", func(t *testing.T) {
		mock := &mockRingsService{
			listFunc: func(_ context.Context, jobID uuid.UUID) ([]models.Ring, error) {
				return []models.Ring{
					{ID: uuid.Must(uuid.NewV7()), JobID: jobID, Label: "tray-1"},
					{ID: uuid.Must(uuid.NewV7()), JobID: jobID, Label: "tray-2"},
				}, nil
			},
		}
		h := NewRingsHandler(mock)

		req := httptest.NewRequest(http.MethodGet,
			"http://test/v1/jobs/"+testJobID.String()+"/rings", http.NoBody)
		req.SetPathValue("id", testJobID.String())
		rec := httptest.NewRecorder()

		h.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp models.ListRingsResponse

		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(2), resp.Total)
		require.Len(t, resp.Data, 2)
		assert.Equal(t, "tray-1", resp.Data[0].Label)
	})
}
