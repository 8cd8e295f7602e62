package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
)

// MatchingRunsRepository handles data access for matching run rows.
type MatchingRunsRepository struct {
	db *pgxpool.Pool
}

// NewMatchingRunsRepository creates a new matching runs repository.
func NewMatchingRunsRepository(db *pgxpool.Pool) *MatchingRunsRepository {
	return &MatchingRunsRepository{db: db}
}

const matchingRunColumns = `id, job_id, status, params, created_by, failure_reason,
	heartbeat_at, started_at, finished_at, created_at, updated_at`

// Create inserts a run in status CREATED. The partial unique index
// matching_runs_one_active_per_job admits at most one CREATED or RUNNING run
// per job, so a concurrent creator loses with a conflict instead of queuing
// a second run.
func (r *MatchingRunsRepository) Create(
	ctx context.Context, jobID uuid.UUID, params models.RunParams, createdBy string,
) (*models.MatchingRun, error) {
	query := `
		INSERT INTO matching_runs (id, job_id, status, params, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + matchingRunColumns

	run, err := scanMatchingRunRow(r.db.QueryRow(ctx, query,
		uuid.Must(uuid.NewV7()), jobID, models.RunStatusCreated, params, createdBy,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, novaerrors.NewConflictError("a matching run is already active for this job")
		}

		return nil, fmt.Errorf("failed to create matching run: %w", err)
	}

	return run, nil
}

// GetByID retrieves a matching run by its ID.
func (r *MatchingRunsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MatchingRun, error) {
	query := `SELECT ` + matchingRunColumns + ` FROM matching_runs WHERE id = $1`

	run, err := scanMatchingRunRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, novaerrors.NewNotFoundError("matching_run", "matching run not found")
		}

		return nil, fmt.Errorf("failed to get matching run: %w", err)
	}

	return run, nil
}

// GetLatestDone retrieves the most recent DONE run for a job. Override
// resolution reads locked and human-sourced pairs from this run.
func (r *MatchingRunsRepository) GetLatestDone(ctx context.Context, jobID uuid.UUID) (*models.MatchingRun, error) {
	query := `
		SELECT ` + matchingRunColumns + `
		FROM matching_runs
		WHERE job_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	run, err := scanMatchingRunRow(r.db.QueryRow(ctx, query, jobID, models.RunStatusDone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, novaerrors.NewNotFoundError("matching_run", "job has no completed matching run")
		}

		return nil, fmt.Errorf("failed to get latest done matching run: %w", err)
	}

	return run, nil
}

// buildMatchingRunFilterConditions builds WHERE conditions appended after the
// job_id predicate, which is always $1.
func buildMatchingRunFilterConditions(filters *models.ListMatchingRunsFilters) (string, []any) {
	conditions := ""
	args := []any{}
	argCount := 2

	if filters.Status != nil {
		conditions += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *filters.Status)
		argCount++
	}

	if filters.Since != nil {
		conditions += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filters.Since)
		argCount++
	}

	if filters.Until != nil {
		conditions += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filters.Until)
		argCount++
	}

	return conditions, args
}

// ListByJob retrieves a job's runs, newest first.
func (r *MatchingRunsRepository) ListByJob(
	ctx context.Context, jobID uuid.UUID, filters *models.ListMatchingRunsFilters,
) ([]models.MatchingRun, error) {
	conditions, args := buildMatchingRunFilterConditions(filters)

	query := `
		SELECT ` + matchingRunColumns + `
		FROM matching_runs
		WHERE job_id = $1` + conditions + `
		ORDER BY created_at DESC
		LIMIT $` + fmt.Sprint(len(args)+2) + ` OFFSET $` + fmt.Sprint(len(args)+3)

	queryArgs := append([]any{jobID}, args...)
	queryArgs = append(queryArgs, filters.Limit, filters.Offset)

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list matching runs: %w", err)
	}
	defer rows.Close()

	runs := []models.MatchingRun{} // Initialize as empty slice, not nil

	for rows.Next() {
		run, err := scanMatchingRunRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan matching run: %w", err)
		}

		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matching runs: %w", err)
	}

	return runs, nil
}

// CountByJob counts a job's runs under the same filters as ListByJob.
func (r *MatchingRunsRepository) CountByJob(
	ctx context.Context, jobID uuid.UUID, filters *models.ListMatchingRunsFilters,
) (int64, error) {
	conditions, args := buildMatchingRunFilterConditions(filters)

	query := `SELECT COUNT(*) FROM matching_runs WHERE job_id = $1` + conditions

	queryArgs := append([]any{jobID}, args...)

	var count int64
	if err := r.db.QueryRow(ctx, query, queryArgs...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count matching runs: %w", err)
	}

	return count, nil
}

// MarkRunning transitions a run from CREATED to RUNNING. The status predicate
// makes the claim a compare-and-set: the second of two racing executors sees
// zero rows and backs off with a conflict.
func (r *MatchingRunsRepository) MarkRunning(ctx context.Context, id uuid.UUID) (*models.MatchingRun, error) {
	query := `
		UPDATE matching_runs
		SET status = $3, started_at = now(), heartbeat_at = now(), updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + matchingRunColumns

	run, err := scanMatchingRunRow(r.db.QueryRow(ctx, query, id, models.RunStatusCreated, models.RunStatusRunning))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, novaerrors.NewConflictError("matching run is no longer claimable")
		}

		return nil, fmt.Errorf("failed to mark matching run running: %w", err)
	}

	return run, nil
}

// MarkFailed moves a non-terminal run to FAILED and records the reason.
// Terminal statuses win: failing an already DONE or FAILED run returns a
// conflict and changes nothing.
func (r *MatchingRunsRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE matching_runs
		SET status = $2, failure_reason = $3, finished_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ($4, $5)
	`

	result, err := r.db.Exec(ctx, query, id, models.RunStatusFailed, reason,
		models.RunStatusCreated, models.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark matching run failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return novaerrors.NewConflictError("matching run is already terminal")
	}

	return nil
}

// Heartbeat refreshes the liveness timestamp of a RUNNING run. Zero rows
// means the run lost RUNNING (reaped as stalled, or finished elsewhere); the
// executor should stop working on it.
func (r *MatchingRunsRepository) Heartbeat(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE matching_runs SET heartbeat_at = now(), updated_at = now() WHERE id = $1 AND status = $2`

	result, err := r.db.Exec(ctx, query, id, models.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to heartbeat matching run: %w", err)
	}

	if result.RowsAffected() == 0 {
		return novaerrors.NewConflictError("matching run is no longer running")
	}

	return nil
}

// ListStalled returns RUNNING runs whose heartbeat is older than the cutoff.
func (r *MatchingRunsRepository) ListStalled(ctx context.Context, cutoff time.Time) ([]models.MatchingRun, error) {
	query := `
		SELECT ` + matchingRunColumns + `
		FROM matching_runs
		WHERE status = $1 AND heartbeat_at < $2
		ORDER BY heartbeat_at
	`

	rows, err := r.db.Query(ctx, query, models.RunStatusRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stalled matching runs: %w", err)
	}
	defer rows.Close()

	runs := []models.MatchingRun{} // Initialize as empty slice, not nil

	for rows.Next() {
		run, err := scanMatchingRunRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stalled matching run: %w", err)
		}

		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stalled matching runs: %w", err)
	}

	return runs, nil
}

// ListOrphanedCreated returns CREATED runs older than the cutoff. A run that
// was never claimed (its queue job was lost or exhausted its attempts) holds
// the job's active-run slot until the reaper fails it.
func (r *MatchingRunsRepository) ListOrphanedCreated(ctx context.Context, cutoff time.Time) ([]models.MatchingRun, error) {
	query := `
		SELECT ` + matchingRunColumns + `
		FROM matching_runs
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, models.RunStatusCreated, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned matching runs: %w", err)
	}
	defer rows.Close()

	runs := []models.MatchingRun{} // Initialize as empty slice, not nil

	for rows.Next() {
		run, err := scanMatchingRunRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan orphaned matching run: %w", err)
		}

		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orphaned matching runs: %w", err)
	}

	return runs, nil
}

// CountActive counts runs currently holding the active marker, for the
// observable gauge.
func (r *MatchingRunsRepository) CountActive(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM matching_runs WHERE status IN ($1, $2)`

	var count int64
	if err := r.db.QueryRow(ctx, query, models.RunStatusCreated, models.RunStatusRunning).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active matching runs: %w", err)
	}

	return count, nil
}

// scanMatchingRunRow scans one matching_runs row. Params land in the struct
// directly; pgx decodes the jsonb column through encoding/json.
func scanMatchingRunRow(row pgx.Row) (*models.MatchingRun, error) {
	var run models.MatchingRun

	err := row.Scan(
		&run.ID, &run.JobID, &run.Status, &run.Params, &run.CreatedBy, &run.FailureReason,
		&run.HeartbeatAt, &run.StartedAt, &run.FinishedAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &run, nil
}
