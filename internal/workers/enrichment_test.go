package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bdougie/contributor-enrichment/internal/errors"
	"github.com/bdougie/contributor-enrichment/internal/models"
)

type mockEnricher struct {
	mock.Mock
}

func (m *mockEnricher) EnrichContributor(ctx context.Context, contributorID, workspaceID uuid.UUID) (*models.AnalyticsSnapshot, error) {
	args := m.Called(ctx, contributorID, workspaceID)
	snap, _ := args.Get(0).(*models.AnalyticsSnapshot)
	return snap, args.Error(1)
}

func (m *mockEnricher) EnrichWorkspace(ctx context.Context, workspaceID uuid.UUID) (*models.WorkspaceRunSummary, error) {
	args := m.Called(ctx, workspaceID)
	summary, _ := args.Get(0).(*models.WorkspaceRunSummary)
	return summary, args.Error(1)
}

func (m *mockEnricher) EnrichWorkspaceTopics(ctx context.Context, workspaceID uuid.UUID) (*models.TopicRunSummary, error) {
	args := m.Called(ctx, workspaceID)
	summary, _ := args.Get(0).(*models.TopicRunSummary)
	return summary, args.Error(1)
}

func (m *mockEnricher) EnrichAllWorkspaces(ctx context.Context) (*models.AllWorkspacesSummary, error) {
	args := m.Called(ctx)
	summary, _ := args.Get(0).(*models.AllWorkspacesSummary)
	return summary, args.Error(1)
}

func jobOf[T river.JobArgs](args T) *river.Job[T] {
	return &river.Job[T]{JobRow: &rivertype.JobRow{Attempt: 1, MaxAttempts: 3}, Args: args}
}

func TestEnrichContributorWorker_Work(t *testing.T) {
	ctx := context.Background()
	args := EnrichContributorArgs{ContributorID: uuid.New(), WorkspaceID: uuid.New()}

	t.Run("success", func(t *testing.T) {
		enricher := new(mockEnricher)
		enricher.On("EnrichContributor", mock.Anything, args.ContributorID, args.WorkspaceID).
			Return(&models.AnalyticsSnapshot{SnapshotDate: time.Now()}, nil)

		require.NoError(t, NewEnrichContributorWorker(enricher).Work(ctx, jobOf(args)))
		enricher.AssertExpectations(t)
	})

	t.Run("missing contributor cancels the job", func(t *testing.T) {
		enricher := new(mockEnricher)
		enricher.On("EnrichContributor", mock.Anything, args.ContributorID, args.WorkspaceID).
			Return(nil, apperrors.NewNotFoundError("contributor", "contributor not found"))

		err := NewEnrichContributorWorker(enricher).Work(ctx, jobOf(args))
		require.Error(t, err)

		var cancelErr *rivertype.JobCancelError
		assert.ErrorAs(t, err, &cancelErr)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("other failures are retried", func(t *testing.T) {
		enricher := new(mockEnricher)
		enricher.On("EnrichContributor", mock.Anything, args.ContributorID, args.WorkspaceID).
			Return(nil, apperrors.NewPersistenceError("upsert contributor snapshot", errors.New("conn reset")))

		err := NewEnrichContributorWorker(enricher).Work(ctx, jobOf(args))
		require.Error(t, err)

		var cancelErr *rivertype.JobCancelError
		assert.False(t, errors.As(err, &cancelErr))
		assert.ErrorIs(t, err, apperrors.ErrPersistence)
		assert.Contains(t, err.Error(), KindEnrichContributor)
	})

	t.Run("timeout", func(t *testing.T) {
		assert.Equal(t, ContributorJobTimeout, NewEnrichContributorWorker(nil).Timeout(jobOf(args)))
	})
}

func TestEnrichWorkspaceWorker_Work(t *testing.T) {
	ctx := context.Background()
	workspaceID := uuid.New()

	t.Run("partially failed run completes the job", func(t *testing.T) {
		enricher := new(mockEnricher)
		enricher.On("EnrichWorkspace", mock.Anything, workspaceID).Return(&models.WorkspaceRunSummary{
			WorkspaceID: workspaceID,
			State:       models.RunStatePartiallyFailed,
			Succeeded:   6,
			Failed:      []models.ContributorFailure{{ContributorID: uuid.New(), Error: "boom"}},
		}, nil)

		assert.NoError(t, NewEnrichWorkspaceWorker(enricher).Work(ctx, jobOf(EnrichWorkspaceArgs{WorkspaceID: workspaceID})))
	})

	t.Run("failed run is retried", func(t *testing.T) {
		enricher := new(mockEnricher)
		enricher.On("EnrichWorkspace", mock.Anything, workspaceID).
			Return(&models.WorkspaceRunSummary{State: models.RunStateFailed}, errors.New("clustering: timeout"))

		err := NewEnrichWorkspaceWorker(enricher).Work(ctx, jobOf(EnrichWorkspaceArgs{WorkspaceID: workspaceID}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "clustering: timeout")
	})
}

func TestEnrichWorkspaceTopicsWorker_Work(t *testing.T) {
	ctx := context.Background()
	workspaceID := uuid.New()

	enricher := new(mockEnricher)
	enricher.On("EnrichWorkspaceTopics", mock.Anything, workspaceID).
		Return(&models.TopicRunSummary{WorkspaceID: workspaceID, Skipped: true, SkipReason: "too few items"}, nil).Once()

	worker := NewEnrichWorkspaceTopicsWorker(enricher)
	assert.NoError(t, worker.Work(ctx, jobOf(EnrichWorkspaceTopicsArgs{WorkspaceID: workspaceID})))
	assert.Equal(t, WorkspaceJobTimeout, worker.Timeout(nil))
	enricher.AssertExpectations(t)
}

func TestEnrichAllWorkspacesWorker_Work(t *testing.T) {
	ctx := context.Background()

	t.Run("workspace failures do not fail the sweep", func(t *testing.T) {
		enricher := new(mockEnricher)
		enricher.On("EnrichAllWorkspaces", mock.Anything).
			Return(&models.AllWorkspacesSummary{Succeeded: 2, Failed: 1}, nil)

		assert.NoError(t, NewEnrichAllWorkspacesWorker(enricher).Work(ctx, jobOf(EnrichAllWorkspacesArgs{})))
	})

	t.Run("listing failure is retried", func(t *testing.T) {
		enricher := new(mockEnricher)
		enricher.On("EnrichAllWorkspaces", mock.Anything).Return(nil, errors.New("db down"))

		assert.Error(t, NewEnrichAllWorkspacesWorker(enricher).Work(ctx, jobOf(EnrichAllWorkspacesArgs{})))
	})
}

func TestRegister(t *testing.T) {
	workers := river.NewWorkers()
	assert.NotPanics(t, func() { Register(workers, new(mockEnricher)) })
}

func TestErrorHandler(t *testing.T) {
	h := &ErrorHandler{}
	row := &rivertype.JobRow{ID: 7, Kind: KindEnrichWorkspace, Attempt: 3, MaxAttempts: 3}

	assert.Nil(t, h.HandleError(context.Background(), row, errors.New("boom")))
	assert.Nil(t, h.HandlePanic(context.Background(), row, "panic", "trace"))
}
