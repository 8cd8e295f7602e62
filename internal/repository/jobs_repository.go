// Package repository provides pgx-backed data access for jobs, diamonds,
// features, matching runs, and pairs.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
)

// JobsRepository handles data access for scan jobs.
type JobsRepository struct {
	db *pgxpool.Pool
}

// NewJobsRepository creates a new jobs repository.
func NewJobsRepository(db *pgxpool.Pool) *JobsRepository {
	return &JobsRepository{db: db}
}

// Create inserts a new job in status CREATED.
func (r *JobsRepository) Create(ctx context.Context, req *models.CreateJobRequest) (*models.Job, error) {
	query := `
		INSERT INTO jobs (id, name, status)
		VALUES ($1, $2, $3)
		RETURNING id, name, status, created_at, updated_at
	`

	var job models.Job

	err := r.db.QueryRow(ctx, query,
		uuid.Must(uuid.NewV7()), req.Name, models.JobStatusCreated,
	).Scan(
		&job.ID, &job.Name, &job.Status, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	return &job, nil
}

// GetByID retrieves a single job by ID.
func (r *JobsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `
		SELECT id, name, status, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	var job models.Job

	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.Name, &job.Status, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, novaerrors.NewNotFoundError("job", "job not found")
		}

		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// UpdateStatus transitions a job from one status to another with a
// compare-and-set. Returns a conflict when the job is no longer in the
// expected status; the caller validates the transition itself beforehand.
func (r *JobsRepository) UpdateStatus(
	ctx context.Context, id uuid.UUID, from, to models.JobStatus,
) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING id, name, status, created_at, updated_at
	`

	var job models.Job

	err := r.db.QueryRow(ctx, query, id, from, to).Scan(
		&job.ID, &job.Name, &job.Status, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, novaerrors.NewConflictError(
				fmt.Sprintf("job is no longer in status %s", from))
		}

		return nil, fmt.Errorf("failed to update job status: %w", err)
	}

	return &job, nil
}

// buildJobFilterConditions builds WHERE clause conditions and arguments from filters.
// Returns the WHERE clause (including " WHERE " prefix if conditions exist) and the args slice.
func buildJobFilterConditions(filters *models.ListJobsFilters) (whereClause string, args []any) {
	var conditions []string

	argCount := 1

	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCount))
		args = append(args, *filters.Status)
	}

	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}

// List retrieves jobs with optional filters, newest first.
func (r *JobsRepository) List(ctx context.Context, filters *models.ListJobsFilters) ([]models.Job, error) {
	query := `
		SELECT id, name, status, created_at, updated_at
		FROM jobs
	`

	whereClause, args := buildJobFilterConditions(filters)
	query += whereClause
	argCount := len(args) + 1

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)

		args = append(args, filters.Limit)
		argCount++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)

		args = append(args, filters.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.Job{} // Initialize as empty slice, not nil

	for rows.Next() {
		var job models.Job

		err := rows.Scan(&job.ID, &job.Name, &job.Status, &job.CreatedAt, &job.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}

		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// Count returns the total count of jobs matching the filters.
func (r *JobsRepository) Count(ctx context.Context, filters *models.ListJobsFilters) (int64, error) {
	query := `SELECT COUNT(*) FROM jobs`

	whereClause, args := buildJobFilterConditions(filters)
	query += whereClause

	var count int64

	err := r.db.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	return count, nil
}
