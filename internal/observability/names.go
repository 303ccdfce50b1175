// Package observability provides OpenTelemetry metrics and tracing for the enrichment pipeline.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameContributorOutcomes   = "enrichment_contributor_outcomes_total"
	MetricNameContributorDuration   = "enrichment_contributor_duration_seconds"
	MetricNameWorkspaceRuns         = "enrichment_workspace_runs_total"
	MetricNameWorkspaceRunDuration  = "enrichment_workspace_run_duration_seconds"
	MetricNameClusteringIterations  = "enrichment_clustering_iterations"
	MetricNameClusteringRuns        = "enrichment_clustering_runs_total"
	MetricNameLabelingFallbacks     = "enrichment_labeling_fallbacks_total"
	MetricNameSnapshotUpsertErrors  = "enrichment_snapshot_upsert_errors_total"
	MetricNameCacheLookups          = "enrichment_cache_lookups_total"
	MetricNameJobsEnqueued          = "enrichment_jobs_enqueued_total"
	MetricNameJobEnqueueErrors      = "enrichment_job_enqueue_errors_total"
	durationHistogramInstrumentName = "enrichment_*_duration_seconds"
)

// Attribute keys.
const (
	AttrPhase     = "phase"
	AttrOutcome   = "outcome"
	AttrState     = "state"
	AttrConverged = "converged"
	AttrReason    = "reason"
	AttrKind      = "kind"
	AttrCache     = "cache"
	AttrResult    = "result"
	AttrSnapshot  = "snapshot"
)

// AllowedPhases for enrichment_contributor_outcomes_total.
var AllowedPhases = map[string]bool{
	"topics":  true,
	"persona": true,
	"quality": true,
	"trends":  true,
	"persist": true,
	"total":   true,
}

// AllowedOutcomes for contributor outcomes.
var AllowedOutcomes = map[string]bool{
	"success": true,
	"failure": true,
}

// AllowedRunStates for enrichment_workspace_runs_total.
var AllowedRunStates = map[string]bool{
	"done":             true,
	"partially_failed": true,
	"failed":           true,
	"skipped":          true,
}

// AllowedFallbackReasons for enrichment_labeling_fallbacks_total.
var AllowedFallbackReasons = map[string]bool{
	"no_generator":  true,
	"generator_err": true,
	"unparsable":    true,
	"empty_label":   true,
}

// AllowedCacheNames for enrichment_cache_lookups_total.
var AllowedCacheNames = map[string]bool{
	"contributor_by_username": true,
}

// AllowedSnapshotKinds for enrichment_snapshot_upsert_errors_total.
var AllowedSnapshotKinds = map[string]bool{
	"contributor": true,
	"workspace":   true,
}

// AllowedJobKinds for job enqueue counters.
var AllowedJobKinds = map[string]bool{
	"enrich_contributor":      true,
	"enrich_workspace":        true,
	"enrich_workspace_topics": true,
	"enrich_all_workspaces":   true,
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeCacheName returns name if it is a known cache, otherwise "other".
func NormalizeCacheName(name string) string {
	return NormalizeReason(name, AllowedCacheNames)
}
