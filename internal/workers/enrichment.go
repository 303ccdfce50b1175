package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	apperrors "github.com/bdougie/contributor-enrichment/internal/errors"
	"github.com/bdougie/contributor-enrichment/internal/models"
)

// Job timeouts. A workspace run covers topic clustering plus every contributor batch.
const (
	ContributorJobTimeout   = 2 * time.Minute
	WorkspaceJobTimeout     = 30 * time.Minute
	AllWorkspacesJobTimeout = 4 * time.Hour
)

type contributorEnricher interface {
	EnrichContributor(ctx context.Context, contributorID, workspaceID uuid.UUID) (*models.AnalyticsSnapshot, error)
}

type workspaceEnricher interface {
	EnrichWorkspace(ctx context.Context, workspaceID uuid.UUID) (*models.WorkspaceRunSummary, error)
}

type topicEnricher interface {
	EnrichWorkspaceTopics(ctx context.Context, workspaceID uuid.UUID) (*models.TopicRunSummary, error)
}

type allWorkspacesEnricher interface {
	EnrichAllWorkspaces(ctx context.Context) (*models.AllWorkspacesSummary, error)
}

// Enricher is the full set of enrichment triggers the workers call.
type Enricher interface {
	contributorEnricher
	workspaceEnricher
	topicEnricher
	allWorkspacesEnricher
}

// Register adds every enrichment worker to workers.
func Register(workers *river.Workers, enricher Enricher) {
	river.AddWorker(workers, NewEnrichContributorWorker(enricher))
	river.AddWorker(workers, NewEnrichWorkspaceWorker(enricher))
	river.AddWorker(workers, NewEnrichWorkspaceTopicsWorker(enricher))
	river.AddWorker(workers, NewEnrichAllWorkspacesWorker(enricher))
}

// retryable turns a run error into the job result: missing rows cancel the job, everything
// else is returned so River retries it.
func retryable(kind string, err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return river.JobCancel(err)
	}
	return fmt.Errorf("%s: %w", kind, err)
}

// EnrichContributorWorker enriches a single contributor.
type EnrichContributorWorker struct {
	river.WorkerDefaults[EnrichContributorArgs]

	enricher contributorEnricher
}

// NewEnrichContributorWorker creates a contributor worker.
func NewEnrichContributorWorker(enricher contributorEnricher) *EnrichContributorWorker {
	return &EnrichContributorWorker{enricher: enricher}
}

// Timeout limits how long a single contributor enrichment can run.
func (w *EnrichContributorWorker) Timeout(*river.Job[EnrichContributorArgs]) time.Duration {
	return ContributorJobTimeout
}

// Work runs the contributor enrichment.
func (w *EnrichContributorWorker) Work(ctx context.Context, job *river.Job[EnrichContributorArgs]) error {
	args := job.Args

	snapshot, err := w.enricher.EnrichContributor(ctx, args.ContributorID, args.WorkspaceID)
	if err != nil {
		slog.Warn("contributor enrichment job failed",
			"contributor_id", args.ContributorID,
			"workspace_id", args.WorkspaceID,
			"attempt", job.Attempt,
			"error", err,
		)
		return retryable(KindEnrichContributor, err)
	}

	slog.Debug("contributor enrichment job done",
		"contributor_id", args.ContributorID,
		"workspace_id", args.WorkspaceID,
		"snapshot_date", snapshot.SnapshotDate.Format(time.DateOnly),
	)

	return nil
}

// EnrichWorkspaceWorker runs the full pipeline for one workspace.
type EnrichWorkspaceWorker struct {
	river.WorkerDefaults[EnrichWorkspaceArgs]

	enricher workspaceEnricher
}

// NewEnrichWorkspaceWorker creates a workspace worker.
func NewEnrichWorkspaceWorker(enricher workspaceEnricher) *EnrichWorkspaceWorker {
	return &EnrichWorkspaceWorker{enricher: enricher}
}

// Timeout limits how long a workspace run can take.
func (w *EnrichWorkspaceWorker) Timeout(*river.Job[EnrichWorkspaceArgs]) time.Duration {
	return WorkspaceJobTimeout
}

// Work runs the workspace pipeline. A partially failed run is not retried: the failed
// contributors are listed in the summary and picked up by the next scheduled run.
func (w *EnrichWorkspaceWorker) Work(ctx context.Context, job *river.Job[EnrichWorkspaceArgs]) error {
	summary, err := w.enricher.EnrichWorkspace(ctx, job.Args.WorkspaceID)
	if err != nil {
		return retryable(KindEnrichWorkspace, err)
	}

	slog.Info("workspace enrichment job finished",
		"workspace_id", job.Args.WorkspaceID,
		"run_id", summary.RunID,
		"state", summary.State,
		"succeeded", summary.Succeeded,
		"failed", len(summary.Failed),
		"duration", summary.Duration,
	)

	return nil
}

// EnrichWorkspaceTopicsWorker runs the topic phase of one workspace.
type EnrichWorkspaceTopicsWorker struct {
	river.WorkerDefaults[EnrichWorkspaceTopicsArgs]

	enricher topicEnricher
}

// NewEnrichWorkspaceTopicsWorker creates a topic worker.
func NewEnrichWorkspaceTopicsWorker(enricher topicEnricher) *EnrichWorkspaceTopicsWorker {
	return &EnrichWorkspaceTopicsWorker{enricher: enricher}
}

// Timeout limits how long the topic phase can take.
func (w *EnrichWorkspaceTopicsWorker) Timeout(*river.Job[EnrichWorkspaceTopicsArgs]) time.Duration {
	return WorkspaceJobTimeout
}

// Work runs the topic phase.
func (w *EnrichWorkspaceTopicsWorker) Work(ctx context.Context, job *river.Job[EnrichWorkspaceTopicsArgs]) error {
	summary, err := w.enricher.EnrichWorkspaceTopics(ctx, job.Args.WorkspaceID)
	if err != nil {
		return retryable(KindEnrichWorkspaceTopics, err)
	}

	if summary.Skipped {
		slog.Info("topic job skipped", "workspace_id", job.Args.WorkspaceID, "reason", summary.SkipReason)
		return nil
	}

	slog.Info("topic job finished",
		"workspace_id", job.Args.WorkspaceID,
		"topics", summary.TopicsKept,
		"contributors_updated", summary.ContributorsUpdated,
	)

	return nil
}

// EnrichAllWorkspacesWorker runs every active workspace. It is scheduled periodically.
type EnrichAllWorkspacesWorker struct {
	river.WorkerDefaults[EnrichAllWorkspacesArgs]

	enricher allWorkspacesEnricher
}

// NewEnrichAllWorkspacesWorker creates the all-workspaces worker.
func NewEnrichAllWorkspacesWorker(enricher allWorkspacesEnricher) *EnrichAllWorkspacesWorker {
	return &EnrichAllWorkspacesWorker{enricher: enricher}
}

// Timeout limits how long a full sweep can take.
func (w *EnrichAllWorkspacesWorker) Timeout(*river.Job[EnrichAllWorkspacesArgs]) time.Duration {
	return AllWorkspacesJobTimeout
}

// Work runs every workspace. Individual workspace failures are reported in the summary
// and do not fail the job.
func (w *EnrichAllWorkspacesWorker) Work(ctx context.Context, job *river.Job[EnrichAllWorkspacesArgs]) error {
	summary, err := w.enricher.EnrichAllWorkspaces(ctx)
	if err != nil {
		return retryable(KindEnrichAllWorkspaces, err)
	}

	slog.Info("all-workspaces job finished",
		"workspaces", len(summary.Runs),
		"succeeded", summary.Succeeded,
		"partial", summary.Partial,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration", summary.Duration,
	)

	return nil
}
