package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
)

type mockReaperRepo struct {
	stalled  []models.MatchingRun
	orphaned []models.MatchingRun

	stalledCutoff  time.Time
	orphanedCutoff time.Time

	failed      []uuid.UUID
	reasons     []string
	markFailErr error
}

func (m *mockReaperRepo) ListStalled(_ context.Context, cutoff time.Time) ([]models.MatchingRun, error) {
	m.stalledCutoff = cutoff

	return m.stalled, nil
}

func (m *mockReaperRepo) ListOrphanedCreated(_ context.Context, cutoff time.Time) ([]models.MatchingRun, error) {
	m.orphanedCutoff = cutoff

	return m.orphaned, nil
}

func (m *mockReaperRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	if m.markFailErr != nil {
		return m.markFailErr
	}

	m.failed = append(m.failed, id)
	m.reasons = append(m.reasons, reason)

	return nil
}

func TestRunReaper_RunOnce(t *testing.T) {
	stalledRun := models.MatchingRun{ID: uuid.Must(uuid.NewV7()), Status: models.RunStatusRunning}
	orphanedRun := models.MatchingRun{ID: uuid.Must(uuid.NewV7()), Status: models.RunStatusCreated}

	repo := &mockReaperRepo{
		stalled:  []models.MatchingRun{stalledRun},
		orphaned: []models.MatchingRun{orphanedRun},
	}
	reaper := NewRunReaper(repo, nil, 30*time.Second, 5*time.Minute, 15*time.Minute)

	before := time.Now()
	reaper.runOnce(context.Background())

	require.Len(t, repo.failed, 2)
	assert.Equal(t, stalledRun.ID, repo.failed[0])
	assert.Equal(t, orphanedRun.ID, repo.failed[1])

	assert.Contains(t, repo.reasons[0], "heartbeat lost")
	assert.Contains(t, repo.reasons[1], "never claimed")

	// Cutoffs look back by the configured timeouts.
	assert.WithinDuration(t, before.Add(-5*time.Minute), repo.stalledCutoff, time.Second)
	assert.WithinDuration(t, before.Add(-15*time.Minute), repo.orphanedCutoff, time.Second)
}

func TestRunReaper_RunOnce_ConflictIsNotFatal(t *testing.T) {
	repo := &mockReaperRepo{
		stalled:     []models.MatchingRun{{ID: uuid.Must(uuid.NewV7()), Status: models.RunStatusRunning}},
		markFailErr: novaerrors.NewConflictError("matching run is already terminal"),
	}
	reaper := NewRunReaper(repo, nil, 30*time.Second, 5*time.Minute, 15*time.Minute)

	reaper.runOnce(context.Background())

	assert.Empty(t, repo.failed)
}

func TestRunReaper_Start_StopsOnCancel(t *testing.T) {
	repo := &mockReaperRepo{}
	reaper := NewRunReaper(repo, nil, time.Hour, 5*time.Minute, 15*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		reaper.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop on context cancel")
	}
}
