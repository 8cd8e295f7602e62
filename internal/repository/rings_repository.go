package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
)

// RingsRepository handles data access for rings.
type RingsRepository struct {
	db *pgxpool.Pool
}

// NewRingsRepository creates a new rings repository.
func NewRingsRepository(db *pgxpool.Pool) *RingsRepository {
	return &RingsRepository{db: db}
}

// GetOrCreate returns the ring with the given label inside the job, creating
// it when absent. The no-op DO UPDATE makes the insert return the existing
// row instead of zero rows on conflict.
func (r *RingsRepository) GetOrCreate(ctx context.Context, jobID uuid.UUID, req *models.CreateRingRequest) (*models.Ring, error) {
	query := `
		INSERT INTO rings (id, job_id, label, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id, label) DO UPDATE SET label = EXCLUDED.label
		RETURNING id, job_id, label, position, created_at
	`

	var ring models.Ring

	err := r.db.QueryRow(ctx, query,
		uuid.Must(uuid.NewV7()), jobID, req.Label, req.Position,
	).Scan(
		&ring.ID, &ring.JobID, &ring.Label, &ring.Position, &ring.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create ring: %w", err)
	}

	return &ring, nil
}

// GetByID retrieves a single ring by ID.
func (r *RingsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ring, error) {
	query := `
		SELECT id, job_id, label, position, created_at
		FROM rings
		WHERE id = $1
	`

	var ring models.Ring

	err := r.db.QueryRow(ctx, query, id).Scan(
		&ring.ID, &ring.JobID, &ring.Label, &ring.Position, &ring.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, novaerrors.NewNotFoundError("ring", "ring not found")
		}

		return nil, fmt.Errorf("failed to get ring: %w", err)
	}

	return &ring, nil
}

// ListByJob retrieves all rings of a job ordered by position, then label.
func (r *RingsRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Ring, error) {
	query := `
		SELECT id, job_id, label, position, created_at
		FROM rings
		WHERE job_id = $1
		ORDER BY position NULLS LAST, label
	`

	rows, err := r.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rings: %w", err)
	}
	defer rows.Close()

	rings := []models.Ring{} // Initialize as empty slice, not nil

	for rows.Next() {
		var ring models.Ring

		err := rows.Scan(&ring.ID, &ring.JobID, &ring.Label, &ring.Position, &ring.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ring: %w", err)
		}

		rings = append(rings, ring)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rings: %w", err)
	}

	return rings, nil
}
