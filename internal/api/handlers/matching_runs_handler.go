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

// MatchingRunsService defines the interface for matching run business logic.
type MatchingRunsService interface {
	EnqueueRun(ctx context.Context, jobID uuid.UUID, req *models.CreateMatchingRunRequest) (*models.MatchingRun, error)
	RunSync(ctx context.Context, jobID uuid.UUID, req *models.CreateMatchingRunRequest) (*models.MatchingRun, error)
	GetRun(ctx context.Context, runID uuid.UUID) (*models.MatchingRun, error)
	GetPairs(ctx context.Context, runID uuid.UUID) (*models.ListPairsResponse, error)
	GetLatestDoneRun(ctx context.Context, jobID uuid.UUID) (*models.MatchingRun, error)
	ListRuns(ctx context.Context, jobID uuid.UUID, filters *models.ListMatchingRunsFilters) (*models.ListMatchingRunsResponse, error)
}

// MatchingRunsHandler handles HTTP requests for matching runs and their pairs
type MatchingRunsHandler struct {
	service MatchingRunsService
}

// NewMatchingRunsHandler creates a new matching runs handler
func NewMatchingRunsHandler(service MatchingRunsService) *MatchingRunsHandler {
	return &MatchingRunsHandler{service: service}
}

// Create handles POST /v1/jobs/{id}/matching-runs
// @Summary Start an asynchronous matching run
// @Description Creates a run in CREATED and enqueues its execution; at most one active run per job
// @Tags Matching Runs
// @Accept json
// @Produce json
// @Param id path string true "Job ID (UUID)"
// @Param request body CreateMatchingRunRequest true "Run parameters"
// @Success 202 {object} MatchingRun
// @Failure 404 {object} ProblemDetails "Job not found"
// @Failure 409 {object} ProblemDetails "A run is already active for this job"
// @Failure 422 {object} ProblemDetails "Invalid run parameters"
// @Security BearerAuth
// @Router /v1/jobs/{id}/matching-runs [post]
func (h *MatchingRunsHandler) Create(w http.ResponseWriter, r *http.Request) {
	jobID, req, ok := h.decodeRunRequest(w, r)
	if !ok {
		return
	}

	run, err := h.service.EnqueueRun(r.Context(), jobID, req)
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusAccepted, run)
}

// CreateSync handles POST /v1/jobs/{id}/matching-runs/sync
// @Summary Run matching synchronously
// @Description Executes the full matching pipeline inline and returns the DONE run
// @Tags Matching Runs
// @Accept json
// @Produce json
// @Param id path string true "Job ID (UUID)"
// @Param request body CreateMatchingRunRequest true "Run parameters"
// @Success 200 {object} MatchingRun
// @Failure 404 {object} ProblemDetails "Job not found"
// @Failure 409 {object} ProblemDetails "A run is already active for this job"
// @Failure 422 {object} ProblemDetails "Invalid run parameters"
// @Failure 502 {object} ProblemDetails "Storage failure; the run is FAILED with zero pairs"
// @Failure 504 {object} ProblemDetails "Solver budget exceeded; the run is FAILED with zero pairs"
// @Security BearerAuth
// @Router /v1/jobs/{id}/matching-runs/sync [post]
func (h *MatchingRunsHandler) CreateSync(w http.ResponseWriter, r *http.Request) {
	jobID, req, ok := h.decodeRunRequest(w, r)
	if !ok {
		return
	}

	run, err := h.service.RunSync(r.Context(), jobID, req)
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, run)
}

// Get handles GET /v1/matching-runs/{id}
// @Summary Get a matching run by ID
// @Description Retrieves a run's status, params and failure reason
// @Tags Matching Runs
// @Produce json
// @Param id path string true "Run ID (UUID)"
// @Success 200 {object} MatchingRun
// @Failure 404 {object} ProblemDetails "Run not found"
// @Security BearerAuth
// @Router /v1/matching-runs/{id} [get]
func (h *MatchingRunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseIDParam(w, r, "Run")
	if !ok {
		return
	}

	run, err := h.service.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, novaerrors.ErrNotFound) {
			response.RespondNotFound(w, "Matching run not found")
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, run)
}

// GetPairs handles GET /v1/matching-runs/{id}/pairs
// @Summary Get a run's pair set
// @Description Retrieves the committed pairs of a run, ordered by canonical pair; DONE runs are served from cache
// @Tags Matching Runs
// @Produce json
// @Param id path string true "Run ID (UUID)"
// @Success 200 {object} ListPairsResponse
// @Failure 404 {object} ProblemDetails "Run not found"
// @Security BearerAuth
// @Router /v1/matching-runs/{id}/pairs [get]
func (h *MatchingRunsHandler) GetPairs(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseIDParam(w, r, "Run")
	if !ok {
		return
	}

	pairs, err := h.service.GetPairs(r.Context(), runID)
	if err != nil {
		if errors.Is(err, novaerrors.ErrNotFound) {
			response.RespondNotFound(w, "Matching run not found")
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, pairs)
}

// List handles GET /v1/jobs/{id}/matching-runs
// @Summary List a job's matching runs
// @Description Lists run history, newest first, filterable by status and creation time
// @Tags Matching Runs
// @Produce json
// @Param id path string true "Job ID (UUID)"
// @Param status query string false "Filter by run status (CREATED, RUNNING, DONE, FAILED)"
// @Param since query string false "Filter by created_at >= since (ISO 8601 format)"
// @Param until query string false "Filter by created_at <= until (ISO 8601 format)"
// @Param limit query int false "Number of results to return (max 1000)"
// @Param offset query int false "Number of results to skip"
// @Success 200 {object} ListMatchingRunsResponse
// @Failure 404 {object} ProblemDetails "Job not found"
// @Security BearerAuth
// @Router /v1/jobs/{id}/matching-runs [get]
func (h *MatchingRunsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseIDParam(w, r, "Job")
	if !ok {
		return
	}

	filters := &models.ListMatchingRunsFilters{}

	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	result, err := h.service.ListRuns(r.Context(), jobID, filters)
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

// GetLatest handles GET /v1/jobs/{id}/matching-runs/latest
// @Summary Get the latest completed run
// @Description Retrieves the most recent DONE run for a job
// @Tags Matching Runs
// @Produce json
// @Param id path string true "Job ID (UUID)"
// @Success 200 {object} MatchingRun
// @Failure 404 {object} ProblemDetails "Job has no completed matching run"
// @Security BearerAuth
// @Router /v1/jobs/{id}/matching-runs/latest [get]
func (h *MatchingRunsHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseIDParam(w, r, "Job")
	if !ok {
		return
	}

	run, err := h.service.GetLatestDoneRun(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, novaerrors.ErrNotFound) {
			response.RespondNotFound(w, err.Error())
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, run)
}

// decodeRunRequest parses the job ID and run params shared by the async and
// sync creation endpoints.
func (h *MatchingRunsHandler) decodeRunRequest(
	w http.ResponseWriter, r *http.Request,
) (uuid.UUID, *models.CreateMatchingRunRequest, bool) {
	jobID, ok := parseIDParam(w, r, "Job")
	if !ok {
		return uuid.Nil, nil, false
	}

	var req models.CreateMatchingRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return uuid.Nil, nil, false
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)
		return uuid.Nil, nil, false
	}

	return jobID, &req, true
}

// respondRunError maps run creation and execution errors onto the status
// codes the run endpoints document. Timeout and storage failures mean the
// run is already FAILED with zero pairs; the client can fetch it for the
// recorded failure reason.
func (h *MatchingRunsHandler) respondRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, novaerrors.ErrNotFound):
		response.RespondNotFound(w, "Job not found")
	case errors.Is(err, novaerrors.ErrConflict):
		response.RespondConflict(w, err.Error())
	case errors.Is(err, novaerrors.ErrValidation):
		response.RespondUnprocessableEntity(w, err.Error())
	case errors.Is(err, novaerrors.ErrTimeout):
		response.RespondGatewayTimeout(w, err.Error())
	case errors.Is(err, novaerrors.ErrStorage):
		response.RespondBadGateway(w, err.Error())
	default:
		response.RespondInternalServerError(w, "An unexpected error occurred")
	}
}
