package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/Nastaran-Nourbakhsh/nova/internal/api/response"
	"github.com/Nastaran-Nourbakhsh/nova/internal/api/validation"
	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
)

// RingsService defines the interface for ring business logic.
type RingsService interface {
	GetOrCreateRing(ctx context.Context, jobID uuid.UUID, req *models.CreateRingRequest) (*models.Ring, error)
	ListRings(ctx context.Context, jobID uuid.UUID) ([]models.Ring, error)
}

// RingsHandler handles HTTP requests for rings
type RingsHandler struct {
	service RingsService
}

// NewRingsHandler creates a new rings handler
func NewRingsHandler(service RingsService) *RingsHandler {
	return &RingsHandler{service: service}
}

// Create handles POST /v1/jobs/{id}/rings. The endpoint is get-or-create:
// posting an existing label returns the existing ring, so scanner retries
// are safe.
func (h *RingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseIDParam(w, r, "Job")
	if !ok {
		return
	}

	var req models.CreateRingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	ring, err := h.service.GetOrCreateRing(r.Context(), jobID, &req)
	if err != nil {
		if errors.Is(err, novaerrors.ErrNotFound) {
			response.RespondNotFound(w, "Job not found")
			return
		}
		if errors.Is(err, novaerrors.ErrValidation) {
			response.RespondUnprocessableEntity(w, err.Error())
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, ring)
}

// List handles GET /v1/jobs/{id}/rings.
func (h *RingsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseIDParam(w, r, "Job")
	if !ok {
		return
	}

	rings, err := h.service.ListRings(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, novaerrors.ErrNotFound) {
			response.RespondNotFound(w, "Job not found")
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, models.ListRingsResponse{
		Data:  rings,
		Total: int64(len(rings)),
	})
}
