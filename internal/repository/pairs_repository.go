package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
)

// PairsRepository handles data access for diamond pair rows. It is the single
// write path for pair sets: pairs only ever appear as a complete, validated
// batch committed together with the run's DONE transition.
type PairsRepository struct {
	db *pgxpool.Pool
}

// NewPairsRepository creates a new pairs repository.
func NewPairsRepository(db *pgxpool.Pool) *PairsRepository {
	return &PairsRepository{db: db}
}

const insertPairQuery = `
	INSERT INTO diamond_pairs (
		id, run_id, diamond1_id, diamond2_id, diamond_min_id, diamond_max_id,
		confidence, locked, source
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// CommitPairs validates the batch, inserts every pair, and moves the run from
// RUNNING to DONE in a single transaction. Any invariant violation aborts the
// whole batch before a row becomes visible. A run that lost RUNNING in the
// meantime (reaped as stalled, failed elsewhere) aborts the DONE transition
// and the rollback discards the pairs.
func (r *PairsRepository) CommitPairs(ctx context.Context, runID uuid.UUID, pairs []models.DiamondPair) error {
	if err := validatePairBatch(pairs); err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return novaerrors.NewStorageError("failed to begin pair commit", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if len(pairs) > 0 {
		batch := &pgx.Batch{}

		for i := range pairs {
			p := &pairs[i]
			batch.Queue(insertPairQuery,
				uuid.Must(uuid.NewV7()), runID, p.Diamond1ID, p.Diamond2ID,
				p.DiamondMinID, p.DiamondMaxID, p.Confidence, p.Locked, p.Source,
			)
		}

		br := tx.SendBatch(ctx, batch)

		for range pairs {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()

				return classifyPairInsertError(err)
			}
		}

		if err := br.Close(); err != nil {
			return novaerrors.NewStorageError("failed to flush pair batch", err)
		}
	}

	result, err := tx.Exec(ctx, `
		UPDATE matching_runs
		SET status = $2, finished_at = now(), updated_at = now()
		WHERE id = $1 AND status = $3
	`, runID, models.RunStatusDone, models.RunStatusRunning)
	if err != nil {
		return novaerrors.NewStorageError("failed to complete matching run", err)
	}

	if result.RowsAffected() == 0 {
		return novaerrors.NewConflictError("matching run is no longer running")
	}

	if err := tx.Commit(ctx); err != nil {
		return novaerrors.NewStorageError("failed to commit pair batch", err)
	}

	return nil
}

// ListByRun retrieves a run's pair set in canonical order.
func (r *PairsRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]models.DiamondPair, error) {
	query := `
		SELECT id, run_id, diamond1_id, diamond2_id, diamond_min_id, diamond_max_id,
			confidence, locked, source, created_at
		FROM diamond_pairs
		WHERE run_id = $1
		ORDER BY diamond_min_id, diamond_max_id
	`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list diamond pairs: %w", err)
	}
	defer rows.Close()

	pairs := []models.DiamondPair{} // Initialize as empty slice, not nil

	for rows.Next() {
		var pair models.DiamondPair

		err := rows.Scan(
			&pair.ID, &pair.RunID, &pair.Diamond1ID, &pair.Diamond2ID,
			&pair.DiamondMinID, &pair.DiamondMaxID,
			&pair.Confidence, &pair.Locked, &pair.Source, &pair.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diamond pair: %w", err)
		}

		pairs = append(pairs, pair)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diamond pairs: %w", err)
	}

	return pairs, nil
}

type coupleKey struct {
	minID uuid.UUID
	maxID uuid.UUID
}

// validatePairBatch rejects a batch that breaks any pair invariant: a diamond
// paired with itself, a non-canonical or negative-confidence row, an unknown
// source, the same unordered couple twice, or a diamond occupying a slot in
// more than one pair. The first violation found aborts the batch.
func validatePairBatch(pairs []models.DiamondPair) error {
	couples := make(map[coupleKey]struct{}, len(pairs))
	slots := make(map[uuid.UUID]struct{}, len(pairs)*2)

	for i := range pairs {
		p := &pairs[i]

		if p.Diamond1ID == p.Diamond2ID {
			return novaerrors.NewValidationError("", fmt.Sprintf("diamond %s cannot pair with itself", p.Diamond1ID))
		}

		minID, maxID := models.CanonicalPairIDs(p.Diamond1ID, p.Diamond2ID)
		if p.DiamondMinID != minID || p.DiamondMaxID != maxID {
			return novaerrors.NewValidationError("",
				fmt.Sprintf("pair %s/%s is not in canonical order", p.Diamond1ID, p.Diamond2ID))
		}

		if p.Confidence < 0 {
			return novaerrors.NewValidationError("", fmt.Sprintf("pair %s/%s has negative confidence", minID, maxID))
		}

		if !p.Source.IsValid() {
			return novaerrors.NewValidationError("", fmt.Sprintf("pair %s/%s has unknown source %q", minID, maxID, p.Source))
		}

		key := coupleKey{minID: minID, maxID: maxID}
		if _, ok := couples[key]; ok {
			return novaerrors.NewConflictError(fmt.Sprintf("pair %s/%s appears twice in the batch", minID, maxID))
		}

		couples[key] = struct{}{}

		for _, id := range [2]uuid.UUID{p.Diamond1ID, p.Diamond2ID} {
			if _, ok := slots[id]; ok {
				return novaerrors.NewConflictError(fmt.Sprintf("diamond %s appears in more than one pair", id))
			}

			slots[id] = struct{}{}
		}
	}

	return nil
}

// classifyPairInsertError maps database-level violations onto the gateway's
// error contract. Unique violations surface as conflicts, check violations as
// validation failures, and anything else as a retryable storage error.
func classifyPairInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return novaerrors.NewConflictError("pair batch conflicts with pairs already stored for this run")
		case "23514":
			return novaerrors.NewValidationError("", "pair batch violates constraint "+pgErr.ConstraintName)
		}
	}

	return novaerrors.NewStorageError("failed to insert pair batch", err)
}
