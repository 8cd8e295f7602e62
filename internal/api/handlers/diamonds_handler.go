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

// DiamondsService defines the interface for diamond and feature business logic.
type DiamondsService interface {
	IngestDiamond(ctx context.Context, jobID uuid.UUID, req *models.CreateDiamondRequest) (*models.Diamond, error)
	GetDiamond(ctx context.Context, id uuid.UUID) (*models.Diamond, error)
	ListDiamonds(ctx context.Context, jobID uuid.UUID, filters *models.ListDiamondsFilters) (*models.ListDiamondsResponse, error)
	DeleteDiamond(ctx context.Context, id uuid.UUID) error
	UpsertFeature(ctx context.Context, diamondID uuid.UUID, req *models.UpsertDiamondFeatureRequest) (*models.DiamondFeature, error)
	GetFeature(ctx context.Context, diamondID uuid.UUID, modelVersion string) (*models.DiamondFeature, error)
}

// DiamondsHandler handles HTTP requests for diamonds and their features
type DiamondsHandler struct {
	service DiamondsService
}

// NewDiamondsHandler creates a new diamonds handler
func NewDiamondsHandler(service DiamondsService) *DiamondsHandler {
	return &DiamondsHandler{service: service}
}

// Ingest handles POST /v1/jobs/{id}/diamonds
// @Summary Ingest a scanned diamond
// @Description Records one scanned diamond at (ring, slot); an occupied slot is a conflict
// @Tags Diamonds
// @Accept json
// @Produce json
// @Param id path string true "Job ID (UUID)"
// @Param request body CreateDiamondRequest true "Diamond to ingest"
// @Success 201 {object} Diamond
// @Failure 404 {object} ProblemDetails "Job not found"
// @Failure 409 {object} ProblemDetails "Slot already occupied"
// @Security BearerAuth
// @Router /v1/jobs/{id}/diamonds [post]
func (h *DiamondsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseIDParam(w, r, "Job")
	if !ok {
		return
	}

	var req models.CreateDiamondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	diamond, err := h.service.IngestDiamond(r.Context(), jobID, &req)
	if err != nil {
		if errors.Is(err, novaerrors.ErrNotFound) {
			response.RespondNotFound(w, "Job not found")
			return
		}
		if errors.Is(err, novaerrors.ErrConflict) {
			response.RespondConflict(w, err.Error())
			return
		}
		if errors.Is(err, novaerrors.ErrValidation) {
			response.RespondUnprocessableEntity(w, err.Error())
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusCreated, diamond)
}

// List handles GET /v1/jobs/{id}/diamonds
func (h *DiamondsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseIDParam(w, r, "Job")
	if !ok {
		return
	}

	filters := &models.ListDiamondsFilters{}

	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	result, err := h.service.ListDiamonds(r.Context(), jobID, filters)
	if err != nil {
		if errors.Is(err, novaerrors.ErrNotFound) {
			response.RespondNotFound(w, "Job not found")
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Get handles GET /v1/diamonds/{id}
func (h *DiamondsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "Diamond")
	if !ok {
		return
	}

	diamond, err := h.service.GetDiamond(r.Context(), id)
	if err != nil {
		if errors.Is(err, novaerrors.ErrNotFound) {
			response.RespondNotFound(w, "Diamond not found")
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, diamond)
}

// Delete handles DELETE /v1/diamonds/{id}. Pairs from past runs keep their
// rows; the next run's carry-forward drops pairs that reference the deleted
// diamond.
func (h *DiamondsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "Diamond")
	if !ok {
		return
	}

	if err := h.service.DeleteDiamond(r.Context(), id); err != nil {
		if errors.Is(err, novaerrors.ErrNotFound) {
			response.RespondNotFound(w, "Diamond not found")
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpsertFeature handles PUT /v1/diamonds/{id}/features
// @Summary Upsert diamond features
// @Description Creates or replaces the feature row for (diamond, model_version)
// @Tags Diamonds
// @Accept json
// @Produce json
// @Param id path string true "Diamond ID (UUID)"
// @Param request body UpsertDiamondFeatureRequest true "Feature row to upsert"
// @Success 200 {object} DiamondFeature
// @Failure 404 {object} ProblemDetails "Diamond not found"
// @Failure 422 {object} ProblemDetails "Embedding dimensions or boundary invalid"
// @Security BearerAuth
// @Router /v1/diamonds/{id}/features [put]
func (h *DiamondsHandler) UpsertFeature(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "Diamond")
	if !ok {
		return
	}

	var req models.UpsertDiamondFeatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	feature, err := h.service.UpsertFeature(r.Context(), id, &req)
	if err != nil {
		if errors.Is(err, novaerrors.ErrNotFound) {
			response.RespondNotFound(w, "Diamond not found")
			return
		}
		if errors.Is(err, novaerrors.ErrValidation) {
			response.RespondUnprocessableEntity(w, err.Error())
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, feature)
}

// GetFeature handles GET /v1/diamonds/{id}/features. The model_version query
// parameter selects the row; it defaults to the configured model version.
func (h *DiamondsHandler) GetFeature(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "Diamond")
	if !ok {
		return
	}

	feature, err := h.service.GetFeature(r.Context(), id, r.URL.Query().Get("model_version"))
	if err != nil {
		if errors.Is(err, novaerrors.ErrNotFound) {
			response.RespondNotFound(w, "Feature row not found")
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, feature)
}
