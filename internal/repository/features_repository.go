package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
)

// FeaturesRepository handles data access for diamond feature rows.
type FeaturesRepository struct {
	db *pgxpool.Pool
}

// NewFeaturesRepository creates a new features repository.
func NewFeaturesRepository(db *pgxpool.Pool) *FeaturesRepository {
	return &FeaturesRepository{db: db}
}

// halfVecOrNil converts an embedding slice to a halfvec parameter, keeping
// NULL for absent channels. pgvector-go converts float32 to float16 on encode.
func halfVecOrNil(embedding []float32) *pgvector.HalfVector {
	if len(embedding) == 0 {
		return nil
	}

	vec := pgvector.NewHalfVector(embedding)

	return &vec
}

// Upsert inserts or replaces the feature row for (diamond_id, model_version).
// The replace is total: omitted channels become NULL rather than surviving
// from the previous row.
func (r *FeaturesRepository) Upsert(
	ctx context.Context, diamondID uuid.UUID, modelVersion string, req *models.UpsertDiamondFeatureRequest,
) (*models.DiamondFeature, error) {
	query := `
		INSERT INTO diamond_features (
			id, diamond_id, model_version, aset_embedding, uv_free_embedding,
			diamond_type, boundary, area_px, table_size_px, face_up_color
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (diamond_id, model_version) DO UPDATE SET
			aset_embedding = EXCLUDED.aset_embedding,
			uv_free_embedding = EXCLUDED.uv_free_embedding,
			diamond_type = EXCLUDED.diamond_type,
			boundary = EXCLUDED.boundary,
			area_px = EXCLUDED.area_px,
			table_size_px = EXCLUDED.table_size_px,
			face_up_color = EXCLUDED.face_up_color,
			updated_at = now()
		RETURNING id, diamond_id, model_version, aset_embedding, uv_free_embedding,
			diamond_type, boundary, area_px, table_size_px, face_up_color,
			created_at, updated_at
	`

	feature, err := scanFeatureRow(r.db.QueryRow(ctx, query,
		uuid.Must(uuid.NewV7()), diamondID, modelVersion,
		halfVecOrNil(req.AsetEmbedding), halfVecOrNil(req.UVFreeEmbedding),
		req.DiamondType, req.Boundary, req.AreaPx, req.TableSizePx, req.FaceUpColor,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert diamond feature: %w", err)
	}

	return feature, nil
}

// GetByDiamondAndModel retrieves the feature row for (diamond_id, model_version).
func (r *FeaturesRepository) GetByDiamondAndModel(
	ctx context.Context, diamondID uuid.UUID, modelVersion string,
) (*models.DiamondFeature, error) {
	query := `
		SELECT id, diamond_id, model_version, aset_embedding, uv_free_embedding,
			diamond_type, boundary, area_px, table_size_px, face_up_color,
			created_at, updated_at
		FROM diamond_features
		WHERE diamond_id = $1 AND model_version = $2
	`

	feature, err := scanFeatureRow(r.db.QueryRow(ctx, query, diamondID, modelVersion))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, novaerrors.NewNotFoundError("diamond_feature", "no feature row for diamond and model version")
		}

		return nil, fmt.Errorf("failed to get diamond feature: %w", err)
	}

	return feature, nil
}

// ListByJobAndModel returns the feature rows of every diamond in the job at
// the given model version, ordered by diamond ID. A matching run reads this
// once at start; it is the run's consistent feature snapshot.
func (r *FeaturesRepository) ListByJobAndModel(
	ctx context.Context, jobID uuid.UUID, modelVersion string,
) ([]models.DiamondFeature, error) {
	query := `
		SELECT f.id, f.diamond_id, f.model_version, f.aset_embedding, f.uv_free_embedding,
			f.diamond_type, f.boundary, f.area_px, f.table_size_px, f.face_up_color,
			f.created_at, f.updated_at
		FROM diamond_features f
		INNER JOIN diamonds d ON d.id = f.diamond_id
		WHERE d.job_id = $1 AND f.model_version = $2
		ORDER BY f.diamond_id
	`

	rows, err := r.db.Query(ctx, query, jobID, modelVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to list diamond features: %w", err)
	}
	defer rows.Close()

	features := []models.DiamondFeature{} // Initialize as empty slice, not nil

	for rows.Next() {
		feature, err := scanFeatureRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diamond feature: %w", err)
		}

		features = append(features, *feature)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diamond features: %w", err)
	}

	return features, nil
}

// scanFeatureRow scans one diamond_features row, mapping NULL embedding
// columns to nil slices.
func scanFeatureRow(row pgx.Row) (*models.DiamondFeature, error) {
	var (
		feature models.DiamondFeature
		aset    *pgvector.HalfVector
		uvFree  *pgvector.HalfVector
	)

	err := row.Scan(
		&feature.ID, &feature.DiamondID, &feature.ModelVersion, &aset, &uvFree,
		&feature.DiamondType, &feature.Boundary, &feature.AreaPx, &feature.TableSizePx, &feature.FaceUpColor,
		&feature.CreatedAt, &feature.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if aset != nil {
		feature.AsetEmbedding = aset.Slice()
	}

	if uvFree != nil {
		feature.UVFreeEmbedding = uvFree.Slice()
	}

	return &feature, nil
}
