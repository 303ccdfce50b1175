package models

import (
	"time"

	"github.com/google/uuid"
)

// RunState is the state of a workspace enrichment run.
type RunState string

// Workspace run states. Done and PartiallyFailed are the normal terminal states;
// Failed means topic clustering aborted the run and Skipped means there was nothing to enrich.
const (
	RunStateIdle                  RunState = "idle"
	RunStateClusteringTopics      RunState = "clustering_topics"
	RunStateEnrichingContributors RunState = "enriching_contributors"
	RunStateDone                  RunState = "done"
	RunStatePartiallyFailed       RunState = "partially_failed"
	RunStateFailed                RunState = "failed"
	RunStateSkipped               RunState = "skipped"
)

// IsTerminal reports whether the run has finished.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateDone, RunStatePartiallyFailed, RunStateFailed, RunStateSkipped:
		return true
	default:
		return false
	}
}

// TopicRunSummary reports the outcome of the workspace topic phase.
type TopicRunSummary struct {
	WorkspaceID         uuid.UUID `json:"workspace_id"`
	ItemCount           int       `json:"item_count"`
	ClustersFound       int       `json:"clusters_found"`
	TopicsKept          int       `json:"topics_kept"`
	ContributorsUpdated int       `json:"contributors_updated"`
	ContributorsFailed  int       `json:"contributors_failed"`
	Iterations          int       `json:"iterations"`
	Converged           bool      `json:"converged"`
	Silhouette          float64   `json:"silhouette"`
	Skipped             bool      `json:"skipped"`
	SkipReason          string    `json:"skip_reason,omitempty"`
}

// ContributorFailure names a contributor whose enrichment failed.
type ContributorFailure struct {
	ContributorID uuid.UUID `json:"contributor_id"`
	Error         string    `json:"error"`
}

// WorkspaceRunSummary reports one workspace run.
type WorkspaceRunSummary struct {
	WorkspaceID uuid.UUID            `json:"workspace_id"`
	RunID       uuid.UUID            `json:"run_id"`
	State       RunState             `json:"state"`
	Topics      *TopicRunSummary     `json:"topics,omitempty"`
	Batches     int                  `json:"batches"`
	Succeeded   int                  `json:"succeeded"`
	Failed      []ContributorFailure `json:"failed"`
	Duration    time.Duration        `json:"duration"`
	Error       string               `json:"error,omitempty"`
}

// AllWorkspacesSummary aggregates the runs of every active workspace.
type AllWorkspacesSummary struct {
	Runs      []WorkspaceRunSummary `json:"runs"`
	Succeeded int                   `json:"succeeded"`
	Partial   int                   `json:"partial"`
	Failed    int                   `json:"failed"`
	Skipped   int                   `json:"skipped"`
	Duration  time.Duration         `json:"duration"`
}
