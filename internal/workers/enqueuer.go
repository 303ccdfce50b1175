package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/bdougie/contributor-enrichment/internal/observability"
)

// DefaultUniquePeriod deduplicates identical triggers within one day.
const DefaultUniquePeriod = 24 * time.Hour

// JobInserter inserts River jobs. *river.Client[pgx.Tx] satisfies it.
type JobInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Enqueuer schedules enrichment jobs.
type Enqueuer struct {
	inserter     JobInserter
	maxAttempts  int
	uniquePeriod time.Duration
	metrics      observability.EnrichmentMetrics
}

// NewEnqueuer creates an enqueuer. metrics may be nil when metrics are disabled.
func NewEnqueuer(inserter JobInserter, maxAttempts int, metrics observability.EnrichmentMetrics) *Enqueuer {
	return &Enqueuer{
		inserter:     inserter,
		maxAttempts:  maxAttempts,
		uniquePeriod: DefaultUniquePeriod,
		metrics:      metrics,
	}
}

// InsertOpts are the options every enrichment job is inserted with: the enrichment queue,
// the attempt budget and uniqueness by args within period.
func InsertOpts(maxAttempts int, period time.Duration) *river.InsertOpts {
	return &river.InsertOpts{
		Queue:       QueueName,
		MaxAttempts: maxAttempts,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: period,
		},
	}
}

// EnqueueContributor schedules one contributor. It reports false when an identical job was
// already enqueued in the current period.
func (e *Enqueuer) EnqueueContributor(ctx context.Context, contributorID, workspaceID uuid.UUID) (bool, error) {
	return e.insert(ctx, EnrichContributorArgs{ContributorID: contributorID, WorkspaceID: workspaceID})
}

// EnqueueWorkspace schedules a full workspace run.
func (e *Enqueuer) EnqueueWorkspace(ctx context.Context, workspaceID uuid.UUID) (bool, error) {
	return e.insert(ctx, EnrichWorkspaceArgs{WorkspaceID: workspaceID})
}

// EnqueueWorkspaceTopics schedules the topic phase of a workspace.
func (e *Enqueuer) EnqueueWorkspaceTopics(ctx context.Context, workspaceID uuid.UUID) (bool, error) {
	return e.insert(ctx, EnrichWorkspaceTopicsArgs{WorkspaceID: workspaceID})
}

// EnqueueAllWorkspaces schedules a sweep over every active workspace.
func (e *Enqueuer) EnqueueAllWorkspaces(ctx context.Context) (bool, error) {
	return e.insert(ctx, EnrichAllWorkspacesArgs{})
}

func (e *Enqueuer) insert(ctx context.Context, args river.JobArgs) (bool, error) {
	result, err := e.inserter.Insert(ctx, args, InsertOpts(e.maxAttempts, e.uniquePeriod))
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordJobEnqueueError(ctx, args.Kind())
		}
		return false, fmt.Errorf("enqueue %s: %w", args.Kind(), err)
	}

	if result != nil && result.UniqueSkippedAsDuplicate {
		slog.Debug("enrichment job already enqueued", "kind", args.Kind())
		return false, nil
	}

	if e.metrics != nil {
		e.metrics.RecordJobEnqueued(ctx, args.Kind())
	}

	return true, nil
}

// PeriodicJobs returns the scheduled all-workspaces sweep, run every interval and once on start.
func PeriodicJobs(interval time.Duration, maxAttempts int) []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) {
				return EnrichAllWorkspacesArgs{}, InsertOpts(maxAttempts, interval)
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}
