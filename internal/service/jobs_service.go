// Package service contains the business logic between the HTTP handlers and
// the repositories: job lifecycle, diamond ingest, feature upserts, and the
// matching run pipeline.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
)

// JobsRepository defines the interface for job data access.
type JobsRepository interface {
	Create(ctx context.Context, req *models.CreateJobRequest) (*models.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.JobStatus) (*models.Job, error)
	List(ctx context.Context, filters *models.ListJobsFilters) ([]models.Job, error)
	Count(ctx context.Context, filters *models.ListJobsFilters) (int64, error)
}

// JobsService handles business logic for scan jobs.
type JobsService struct {
	repo JobsRepository
}

// NewJobsService creates a new jobs service.
func NewJobsService(repo JobsRepository) *JobsService {
	return &JobsService{repo: repo}
}

// CreateJob creates a new job in status CREATED.
func (s *JobsService) CreateJob(ctx context.Context, req *models.CreateJobRequest) (*models.Job, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, novaerrors.NewValidationError("name", "name is required")
	}

	return s.repo.Create(ctx, req)
}

// GetJob retrieves a single job by ID.
func (s *JobsService) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.repo.GetByID(ctx, id)
}

// ListJobs retrieves jobs with optional filters.
func (s *JobsService) ListJobs(ctx context.Context, filters *models.ListJobsFilters) (*models.ListJobsResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = 100 // Default limit
	}

	if filters.Limit > 1000 {
		filters.Limit = 1000 // Max limit
	}

	jobs, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &models.ListJobsResponse{
		Data:   jobs,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// StartJob moves a job from CREATED into SCANNING.
func (s *JobsService) StartJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.transition(ctx, id, models.JobStatusScanning)
}

// PauseJob moves a scanning job into PROCESSING.
func (s *JobsService) PauseJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.transition(ctx, id, models.JobStatusProcessing)
}

// ResumeJob moves a processing job back into SCANNING.
func (s *JobsService) ResumeJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.transition(ctx, id, models.JobStatusScanning)
}

// CompleteJob moves an active job into DONE.
func (s *JobsService) CompleteJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.transition(ctx, id, models.JobStatusDone)
}

// transition applies one lifecycle step. The matrix check catches invalid
// requests up front; the repository's compare-and-set catches the race where
// the status moved between read and write.
func (s *JobsService) transition(ctx context.Context, id uuid.UUID, to models.JobStatus) (*models.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !job.Status.CanTransitionTo(to) {
		return nil, novaerrors.NewConflictError(
			fmt.Sprintf("cannot transition job from %s to %s", job.Status, to))
	}

	return s.repo.UpdateStatus(ctx, id, job.Status, to)
}
