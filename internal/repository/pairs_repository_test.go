package repository

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
)

var (
	diamondA = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	diamondB = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	diamondC = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	diamondD = uuid.MustParse("44444444-4444-4444-4444-444444444444")
)

func makePair(a, b uuid.UUID, confidence float64, source models.PairSource) models.DiamondPair {
	minID, maxID := models.CanonicalPairIDs(a, b)

	return models.DiamondPair{
		Diamond1ID:   a,
		Diamond2ID:   b,
		DiamondMinID: minID,
		DiamondMaxID: maxID,
		Confidence:   confidence,
		Source:       source,
	}
}

func TestValidatePairBatch(t *testing.T) {
	t.Run("accepts an empty batch", func(t *testing.T) {
		require.NoError(t, validatePairBatch(nil))
		require.NoError(t, validatePairBatch([]models.DiamondPair{}))
	})

	t.Run("accepts a valid batch", func(t *testing.T) {
		pairs := []models.DiamondPair{
			makePair(diamondA, diamondB, 0.9, models.PairSourceAlgo),
			makePair(diamondD, diamondC, 0.4, models.PairSourceManual),
		}

		require.NoError(t, validatePairBatch(pairs))
	})

	t.Run("rejects a self-pair", func(t *testing.T) {
		pairs := []models.DiamondPair{
			makePair(diamondA, diamondA, 0.9, models.PairSourceAlgo),
		}

		err := validatePairBatch(pairs)

		require.Error(t, err)
		assert.True(t, errors.Is(err, novaerrors.ErrValidation))
		assert.Contains(t, err.Error(), "cannot pair with itself")
	})

	t.Run("rejects a non-canonical pair", func(t *testing.T) {
		pair := makePair(diamondA, diamondB, 0.9, models.PairSourceAlgo)
		pair.DiamondMinID, pair.DiamondMaxID = pair.DiamondMaxID, pair.DiamondMinID

		err := validatePairBatch([]models.DiamondPair{pair})

		require.Error(t, err)
		assert.True(t, errors.Is(err, novaerrors.ErrValidation))
		assert.Contains(t, err.Error(), "canonical order")
	})

	t.Run("rejects negative confidence", func(t *testing.T) {
		pairs := []models.DiamondPair{
			makePair(diamondA, diamondB, -0.1, models.PairSourceAlgo),
		}

		err := validatePairBatch(pairs)

		require.Error(t, err)
		assert.True(t, errors.Is(err, novaerrors.ErrValidation))
		assert.Contains(t, err.Error(), "negative confidence")
	})

	t.Run("rejects an unknown source", func(t *testing.T) {
		pairs := []models.DiamondPair{
			makePair(diamondA, diamondB, 0.9, models.PairSource("GUESS")),
		}

		err := validatePairBatch(pairs)

		require.Error(t, err)
		assert.True(t, errors.Is(err, novaerrors.ErrValidation))
		assert.Contains(t, err.Error(), "unknown source")
	})

	t.Run("rejects the same couple twice", func(t *testing.T) {
		pairs := []models.DiamondPair{
			makePair(diamondA, diamondB, 0.9, models.PairSourceAlgo),
			makePair(diamondA, diamondB, 0.5, models.PairSourceAlgo),
		}

		err := validatePairBatch(pairs)

		require.Error(t, err)
		assert.True(t, errors.Is(err, novaerrors.ErrConflict))
		assert.Contains(t, err.Error(), "appears twice")
	})

	t.Run("rejects the same couple in reversed orientation", func(t *testing.T) {
		pairs := []models.DiamondPair{
			makePair(diamondA, diamondB, 0.9, models.PairSourceAlgo),
			makePair(diamondB, diamondA, 0.5, models.PairSourceManual),
		}

		err := validatePairBatch(pairs)

		require.Error(t, err)
		assert.True(t, errors.Is(err, novaerrors.ErrConflict))
		assert.Contains(t, err.Error(), "appears twice")
	})

	t.Run("rejects a diamond reused in the same slot", func(t *testing.T) {
		pairs := []models.DiamondPair{
			makePair(diamondA, diamondB, 0.9, models.PairSourceAlgo),
			makePair(diamondA, diamondC, 0.8, models.PairSourceAlgo),
		}

		err := validatePairBatch(pairs)

		require.Error(t, err)
		assert.True(t, errors.Is(err, novaerrors.ErrConflict))
		assert.Contains(t, err.Error(), "more than one pair")
	})

	t.Run("rejects a diamond reused across slots", func(t *testing.T) {
		pairs := []models.DiamondPair{
			makePair(diamondA, diamondB, 0.9, models.PairSourceAlgo),
			makePair(diamondC, diamondB, 0.8, models.PairSourceAlgo),
		}

		err := validatePairBatch(pairs)

		require.Error(t, err)
		assert.True(t, errors.Is(err, novaerrors.ErrConflict))
		assert.Contains(t, err.Error(), diamondB.String())
	})

	t.Run("accepts zero confidence", func(t *testing.T) {
		pairs := []models.DiamondPair{
			makePair(diamondA, diamondB, 0, models.PairSourceManual),
		}

		require.NoError(t, validatePairBatch(pairs))
	})
}

func TestClassifyPairInsertError(t *testing.T) {
	t.Run("maps unique violations to conflicts", func(t *testing.T) {
		err := classifyPairInsertError(&pgconn.PgError{Code: "23505", ConstraintName: "diamond_pairs_couple_unique"})

		assert.True(t, errors.Is(err, novaerrors.ErrConflict))
	})

	t.Run("maps check violations to validation errors", func(t *testing.T) {
		err := classifyPairInsertError(&pgconn.PgError{Code: "23514", ConstraintName: "diamond_pairs_confidence_check"})

		assert.True(t, errors.Is(err, novaerrors.ErrValidation))
		assert.Contains(t, err.Error(), "diamond_pairs_confidence_check")
	})

	t.Run("maps other database errors to storage errors", func(t *testing.T) {
		err := classifyPairInsertError(&pgconn.PgError{Code: "08006"})

		assert.True(t, errors.Is(err, novaerrors.ErrStorage))
	})

	t.Run("maps transport errors to storage errors and keeps the cause", func(t *testing.T) {
		cause := errors.New("connection reset")

		err := classifyPairInsertError(cause)

		assert.True(t, errors.Is(err, novaerrors.ErrStorage))
		assert.True(t, errors.Is(err, cause))
	})
}
