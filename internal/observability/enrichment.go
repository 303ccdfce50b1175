package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EnrichmentMetrics records enrichment pipeline metrics (orchestrator, labeler, workers).
// Methods accept ctx for future exemplar support.
type EnrichmentMetrics interface {
	RecordContributorOutcome(ctx context.Context, phase, outcome string)
	RecordContributorDuration(ctx context.Context, duration time.Duration, outcome string)
	RecordWorkspaceRun(ctx context.Context, state string, duration time.Duration)
	RecordClustering(ctx context.Context, iterations int, converged bool)
	RecordLabelingFallback(ctx context.Context, reason string)
	RecordSnapshotUpsertError(ctx context.Context, kind string)
	RecordJobEnqueued(ctx context.Context, kind string)
	RecordJobEnqueueError(ctx context.Context, kind string)
}

type enrichmentMetrics struct {
	contributorOutcomes  metric.Int64Counter
	contributorDuration  metric.Float64Histogram
	workspaceRuns        metric.Int64Counter
	workspaceRunDuration metric.Float64Histogram
	clusteringIterations metric.Int64Histogram
	clusteringRuns       metric.Int64Counter
	labelingFallbacks    metric.Int64Counter
	snapshotErrors       metric.Int64Counter
	jobsEnqueued         metric.Int64Counter
	jobEnqueueErrors     metric.Int64Counter
}

// NewEnrichmentMetrics creates EnrichmentMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewEnrichmentMetrics(meter metric.Meter) (EnrichmentMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	contributorOutcomes, err := meter.Int64Counter(
		MetricNameContributorOutcomes,
		metric.WithDescription("Contributor enrichment outcomes by phase"),
	)
	if err != nil {
		return nil, fmt.Errorf("create contributor outcomes counter: %w", err)
	}

	contributorDuration, err := meter.Float64Histogram(
		MetricNameContributorDuration,
		metric.WithDescription("Per-contributor enrichment duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create contributor duration histogram: %w", err)
	}

	workspaceRuns, err := meter.Int64Counter(
		MetricNameWorkspaceRuns,
		metric.WithDescription("Workspace enrichment runs by final state"),
	)
	if err != nil {
		return nil, fmt.Errorf("create workspace runs counter: %w", err)
	}

	workspaceRunDuration, err := meter.Float64Histogram(
		MetricNameWorkspaceRunDuration,
		metric.WithDescription("Workspace enrichment run duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create workspace run duration histogram: %w", err)
	}

	clusteringIterations, err := meter.Int64Histogram(
		MetricNameClusteringIterations,
		metric.WithDescription("k-means iterations per clustering run"),
	)
	if err != nil {
		return nil, fmt.Errorf("create clustering iterations histogram: %w", err)
	}

	clusteringRuns, err := meter.Int64Counter(
		MetricNameClusteringRuns,
		metric.WithDescription("Clustering runs by convergence"),
	)
	if err != nil {
		return nil, fmt.Errorf("create clustering runs counter: %w", err)
	}

	labelingFallbacks, err := meter.Int64Counter(
		MetricNameLabelingFallbacks,
		metric.WithDescription("Topic labels produced by the heuristic fallback, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("create labeling fallbacks counter: %w", err)
	}

	snapshotErrors, err := meter.Int64Counter(
		MetricNameSnapshotUpsertErrors,
		metric.WithDescription("Snapshot upsert failures by snapshot kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("create snapshot upsert errors counter: %w", err)
	}

	jobsEnqueued, err := meter.Int64Counter(
		MetricNameJobsEnqueued,
		metric.WithDescription("Enrichment jobs enqueued by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("create jobs enqueued counter: %w", err)
	}

	jobEnqueueErrors, err := meter.Int64Counter(
		MetricNameJobEnqueueErrors,
		metric.WithDescription("Enrichment job enqueue failures by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("create job enqueue errors counter: %w", err)
	}

	return &enrichmentMetrics{
		contributorOutcomes:  contributorOutcomes,
		contributorDuration:  contributorDuration,
		workspaceRuns:        workspaceRuns,
		workspaceRunDuration: workspaceRunDuration,
		clusteringIterations: clusteringIterations,
		clusteringRuns:       clusteringRuns,
		labelingFallbacks:    labelingFallbacks,
		snapshotErrors:       snapshotErrors,
		jobsEnqueued:         jobsEnqueued,
		jobEnqueueErrors:     jobEnqueueErrors,
	}, nil
}

func (e *enrichmentMetrics) RecordContributorOutcome(ctx context.Context, phase, outcome string) {
	e.contributorOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrPhase, NormalizeReason(phase, AllowedPhases)),
		attribute.String(AttrOutcome, NormalizeReason(outcome, AllowedOutcomes)),
	))
}

func (e *enrichmentMetrics) RecordContributorDuration(ctx context.Context, duration time.Duration, outcome string) {
	e.contributorDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrOutcome, NormalizeReason(outcome, AllowedOutcomes)),
	))
}

func (e *enrichmentMetrics) RecordWorkspaceRun(ctx context.Context, state string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(AttrState, NormalizeReason(state, AllowedRunStates)))
	e.workspaceRuns.Add(ctx, 1, attrs)
	e.workspaceRunDuration.Record(ctx, duration.Seconds(), attrs)
}

func (e *enrichmentMetrics) RecordClustering(ctx context.Context, iterations int, converged bool) {
	e.clusteringIterations.Record(ctx, int64(iterations))
	e.clusteringRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrConverged, strconv.FormatBool(converged)),
	))
}

func (e *enrichmentMetrics) RecordLabelingFallback(ctx context.Context, reason string) {
	e.labelingFallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrReason, NormalizeReason(reason, AllowedFallbackReasons)),
	))
}

func (e *enrichmentMetrics) RecordSnapshotUpsertError(ctx context.Context, kind string) {
	e.snapshotErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrSnapshot, NormalizeReason(kind, AllowedSnapshotKinds)),
	))
}

func (e *enrichmentMetrics) RecordJobEnqueued(ctx context.Context, kind string) {
	e.jobsEnqueued.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrKind, NormalizeReason(kind, AllowedJobKinds)),
	))
}

func (e *enrichmentMetrics) RecordJobEnqueueError(ctx context.Context, kind string) {
	e.jobEnqueueErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrKind, NormalizeReason(kind, AllowedJobKinds)),
	))
}
