package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/novaerrors"
)

func TestJobsService_CreateJob_RequiresName(t *testing.T) {
	svc := NewJobsService(&mockJobsRepo{})

	_, err := svc.CreateJob(context.Background(), &models.CreateJobRequest{Name: "   "})
	require.ErrorIs(t, err, novaerrors.ErrValidation)
}

func TestJobsService_Transitions(t *testing.T) {
	tests := []struct {
		name   string
		from   models.JobStatus
		call   func(svc *JobsService, ctx context.Context, id uuid.UUID) (*models.Job, error)
		wantTo models.JobStatus
	}{
		{
			name:   "start scans a created job",
			from:   models.JobStatusCreated,
			call:   (*JobsService).StartJob,
			wantTo: models.JobStatusScanning,
		},
		{
			name:   "pause parks a scanning job",
			from:   models.JobStatusScanning,
			call:   (*JobsService).PauseJob,
			wantTo: models.JobStatusProcessing,
		},
		{
			name:   "resume rescans a processing job",
			from:   models.JobStatusProcessing,
			call:   (*JobsService).ResumeJob,
			wantTo: models.JobStatusScanning,
		},
		{
			name:   "complete finishes a processing job",
			from:   models.JobStatusProcessing,
			call:   (*JobsService).CompleteJob,
			wantTo: models.JobStatusDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotFrom, gotTo models.JobStatus

			repo := &mockJobsRepo{
				getByIDFunc: func(_ context.Context, id uuid.UUID) (*models.Job, error) {
					return &models.Job{ID: id, Status: tt.from}, nil
				},
				updateStatusFunc: func(_ context.Context, id uuid.UUID, from, to models.JobStatus) (*models.Job, error) {
					gotFrom, gotTo = from, to

					return &models.Job{ID: id, Status: to}, nil
				},
			}
			svc := NewJobsService(repo)

			job, err := tt.call(svc, context.Background(), testJobID)
			require.NoError(t, err)

			assert.Equal(t, tt.from, gotFrom)
			assert.Equal(t, tt.wantTo, gotTo)
			assert.Equal(t, tt.wantTo, job.Status)
		})
	}
}

func TestJobsService_Transitions_TerminalJobConflicts(t *testing.T) {
	updateCalled := false
	repo := &mockJobsRepo{
		getByIDFunc: func(_ context.Context, id uuid.UUID) (*models.Job, error) {
			return &models.Job{ID: id, Status: models.JobStatusDone}, nil
		},
		updateStatusFunc: func(_ context.Context, id uuid.UUID, _, to models.JobStatus) (*models.Job, error) {
			updateCalled = true

			return &models.Job{ID: id, Status: to}, nil
		},
	}
	svc := NewJobsService(repo)

	_, err := svc.StartJob(context.Background(), testJobID)
	require.ErrorIs(t, err, novaerrors.ErrConflict)
	assert.Contains(t, err.Error(), "cannot transition job from DONE to SCANNING")
	assert.False(t, updateCalled)
}

func TestJobsService_ListJobs_ClampsLimit(t *testing.T) {
	var gotLimit int

	repo := &mockJobsRepo{
		listFunc: func(_ context.Context, filters *models.ListJobsFilters) ([]models.Job, error) {
			gotLimit = filters.Limit

			return []models.Job{}, nil
		},
	}
	svc := NewJobsService(repo)

	_, err := svc.ListJobs(context.Background(), &models.ListJobsFilters{Limit: 5000})
	require.NoError(t, err)
	assert.Equal(t, 1000, gotLimit)

	_, err = svc.ListJobs(context.Background(), &models.ListJobsFilters{})
	require.NoError(t, err)
	assert.Equal(t, 100, gotLimit)
}
