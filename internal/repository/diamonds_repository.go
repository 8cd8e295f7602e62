package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
)

// DiamondsRepository handles data access for diamonds.
type DiamondsRepository struct {
	db *pgxpool.Pool
}

// NewDiamondsRepository creates a new diamonds repository.
func NewDiamondsRepository(db *pgxpool.Pool) *DiamondsRepository {
	return &DiamondsRepository{db: db}
}

// Create inserts a new diamond. Inserting into an occupied slot is a
// conflict, never an overwrite.
func (r *DiamondsRepository) Create(
	ctx context.Context, jobID uuid.UUID, ringID *uuid.UUID, slotIndex int,
) (*models.Diamond, error) {
	query := `
		INSERT INTO diamonds (id, job_id, ring_id, slot_index)
		VALUES ($1, $2, $3, $4)
		RETURNING id, job_id, ring_id, slot_index, created_at
	`

	var diamond models.Diamond

	err := r.db.QueryRow(ctx, query,
		uuid.Must(uuid.NewV7()), jobID, ringID, slotIndex,
	).Scan(
		&diamond.ID, &diamond.JobID, &diamond.RingID, &diamond.SlotIndex, &diamond.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique violation
			return nil, novaerrors.NewConflictError(
				fmt.Sprintf("slot %d is already occupied", slotIndex))
		}

		return nil, fmt.Errorf("failed to create diamond: %w", err)
	}

	return &diamond, nil
}

// GetByID retrieves a single diamond by ID.
func (r *DiamondsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Diamond, error) {
	query := `
		SELECT id, job_id, ring_id, slot_index, created_at
		FROM diamonds
		WHERE id = $1
	`

	var diamond models.Diamond

	err := r.db.QueryRow(ctx, query, id).Scan(
		&diamond.ID, &diamond.JobID, &diamond.RingID, &diamond.SlotIndex, &diamond.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, novaerrors.NewNotFoundError("diamond", "diamond not found")
		}

		return nil, fmt.Errorf("failed to get diamond: %w", err)
	}

	return &diamond, nil
}

// buildDiamondFilterConditions builds WHERE clause conditions and arguments
// from filters, starting after the job_id argument.
func buildDiamondFilterConditions(filters *models.ListDiamondsFilters) (whereClause string, args []any) {
	var conditions []string

	argCount := 2 // $1 is job_id

	if filters.RingID != nil {
		conditions = append(conditions, fmt.Sprintf("ring_id = $%d", argCount))
		args = append(args, *filters.RingID)
	}

	if len(conditions) > 0 {
		whereClause = " AND " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}

// ListByJob retrieves a job's diamonds ordered by ring then slot.
func (r *DiamondsRepository) ListByJob(
	ctx context.Context, jobID uuid.UUID, filters *models.ListDiamondsFilters,
) ([]models.Diamond, error) {
	query := `
		SELECT id, job_id, ring_id, slot_index, created_at
		FROM diamonds
		WHERE job_id = $1
	`

	whereClause, filterArgs := buildDiamondFilterConditions(filters)
	query += whereClause

	args := append([]any{jobID}, filterArgs...)
	argCount := len(args) + 1

	query += " ORDER BY ring_id NULLS FIRST, slot_index"

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
		return nil, fmt.Errorf("failed to list diamonds: %w", err)
	}
	defer rows.Close()

	diamonds := []models.Diamond{} // Initialize as empty slice, not nil

	for rows.Next() {
		var diamond models.Diamond

		err := rows.Scan(&diamond.ID, &diamond.JobID, &diamond.RingID, &diamond.SlotIndex, &diamond.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diamond: %w", err)
		}

		diamonds = append(diamonds, diamond)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diamonds: %w", err)
	}

	return diamonds, nil
}

// CountByJob returns the total count of a job's diamonds matching the filters.
func (r *DiamondsRepository) CountByJob(
	ctx context.Context, jobID uuid.UUID, filters *models.ListDiamondsFilters,
) (int64, error) {
	query := `SELECT COUNT(*) FROM diamonds WHERE job_id = $1`

	whereClause, filterArgs := buildDiamondFilterConditions(filters)
	query += whereClause

	args := append([]any{jobID}, filterArgs...)

	var count int64

	err := r.db.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count diamonds: %w", err)
	}

	return count, nil
}

// ListIDsByJob returns the IDs of every diamond in a job. Override resolution
// uses it to detect carried pairs whose diamonds were deleted.
func (r *DiamondsRepository) ListIDsByJob(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM diamonds WHERE job_id = $1`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list diamond ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan diamond id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diamond ids: %w", err)
	}

	return ids, nil
}

// Delete removes a diamond. Feature rows cascade; pair rows from past runs
// stay untouched and carry-forward drops them when it notices the gap.
func (r *DiamondsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM diamonds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete diamond: %w", err)
	}

	if result.RowsAffected() == 0 {
		return novaerrors.NewNotFoundError("diamond", "diamond not found")
	}

	return nil
}
