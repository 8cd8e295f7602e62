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

// JobsService defines the interface for job business logic.
type JobsService interface {
	CreateJob(ctx context.Context, req *models.CreateJobRequest) (*models.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filters *models.ListJobsFilters) (*models.ListJobsResponse, error)
	StartJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	PauseJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ResumeJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	CompleteJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// JobsHandler handles HTTP requests for scan jobs
type JobsHandler struct {
	service JobsService
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(service JobsService) *JobsHandler {
	return &JobsHandler{service: service}
}

// Create handles POST /v1/jobs
// @Summary Create scan job
// @Description Create a new scan job in status CREATED
// @Tags Jobs
// @Accept json
// @Produce json
// @Param request body CreateJobRequest true "Job to create"
// @Success 201 {object} Job
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails "Unauthorized - Invalid or missing API key"
// @Security BearerAuth
// @Router /v1/jobs [post]
func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	job, err := h.service.CreateJob(r.Context(), &req)
	if err != nil {
		if errors.Is(err, novaerrors.ErrValidation) {
			response.RespondUnprocessableEntity(w, err.Error())
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusCreated, job)
}

// Get handles GET /v1/jobs/{id}
// @Summary Get a scan job by ID
// @Description Retrieves a single scan job by its UUID
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID (UUID)"
// @Success 200 {object} Job
// @Failure 400 {object} ProblemDetails "Invalid UUID format"
// @Failure 401 {object} ProblemDetails "Unauthorized - Invalid or missing API key"
// @Failure 404 {object} ProblemDetails "Job not found"
// @Security BearerAuth
// @Router /v1/jobs/{id} [get]
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "Job")
	if !ok {
		return
	}

	job, err := h.service.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, novaerrors.ErrNotFound) {
			response.RespondNotFound(w, "Job not found")
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, job)
}

// List handles GET /v1/jobs
// @Summary List scan jobs
// @Description Lists scan jobs with optional status filter and pagination
// @Tags Jobs
// @Produce json
// @Param status query string false "Filter by job status (CREATED, SCANNING, PROCESSING, DONE, FAILED)"
// @Param limit query int false "Number of results to return (max 1000)"
// @Param offset query int false "Number of results to skip"
// @Success 200 {object} ListJobsResponse
// @Failure 401 {object} ProblemDetails "Unauthorized - Invalid or missing API key"
// @Security BearerAuth
// @Router /v1/jobs [get]
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListJobsFilters{}

	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	result, err := h.service.ListJobs(r.Context(), filters)
	if err != nil {
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Start handles POST /v1/jobs/{id}/start
// @Summary Start scanning
// @Description Transitions a CREATED job to SCANNING
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID (UUID)"
// @Success 200 {object} Job
// @Failure 404 {object} ProblemDetails "Job not found"
// @Failure 409 {object} ProblemDetails "Transition not allowed from current status"
// @Security BearerAuth
// @Router /v1/jobs/{id}/start [post]
func (h *JobsHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.StartJob)
}

// Pause handles POST /v1/jobs/{id}/pause
// @Summary Pause scanning
// @Description Transitions a SCANNING job to PROCESSING
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID (UUID)"
// @Success 200 {object} Job
// @Failure 404 {object} ProblemDetails "Job not found"
// @Failure 409 {object} ProblemDetails "Transition not allowed from current status"
// @Security BearerAuth
// @Router /v1/jobs/{id}/pause [post]
func (h *JobsHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.PauseJob)
}

// Resume handles POST /v1/jobs/{id}/resume
// @Summary Resume scanning
// @Description Transitions a PROCESSING job back to SCANNING
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID (UUID)"
// @Success 200 {object} Job
// @Failure 404 {object} ProblemDetails "Job not found"
// @Failure 409 {object} ProblemDetails "Transition not allowed from current status"
// @Security BearerAuth
// @Router /v1/jobs/{id}/resume [post]
func (h *JobsHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ResumeJob)
}

// Complete handles POST /v1/jobs/{id}/complete
// @Summary Complete a job
// @Description Transitions a SCANNING or PROCESSING job to DONE
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID (UUID)"
// @Success 200 {object} Job
// @Failure 404 {object} ProblemDetails "Job not found"
// @Failure 409 {object} ProblemDetails "Transition not allowed from current status"
// @Security BearerAuth
// @Router /v1/jobs/{id}/complete [post]
func (h *JobsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CompleteJob)
}

// transition runs one lifecycle method and maps its errors; all four lifecycle
// endpoints share this shape.
func (h *JobsHandler) transition(
	w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, id uuid.UUID) (*models.Job, error),
) {
	id, ok := parseIDParam(w, r, "Job")
	if !ok {
		return
	}

	job, err := fn(r.Context(), id)
	if err != nil {
		if errors.Is(err, novaerrors.ErrNotFound) {
			response.RespondNotFound(w, "Job not found")
			return
		}
		if errors.Is(err, novaerrors.ErrConflict) {
			response.RespondConflict(w, err.Error())
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, job)
}

// parseIDParam extracts and parses the {id} path parameter. On failure it
// writes a 400 response and returns ok=false.
func parseIDParam(w http.ResponseWriter, r *http.Request, resource string) (uuid.UUID, bool) {
	idStr := r.PathValue("id")
	if idStr == "" {
		response.RespondBadRequest(w, resource+" ID is required")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		response.RespondBadRequest(w, "Invalid UUID format")
		return uuid.Nil, false
	}

	return id, true
}
