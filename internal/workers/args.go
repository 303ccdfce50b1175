// Package workers provides River job workers for the enrichment pipeline.
package workers

import (
	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// QueueName is the River queue that runs enrichment jobs.
const QueueName = "enrichment"

// Job kinds.
const (
	KindEnrichContributor     = "enrich_contributor"
	KindEnrichWorkspace       = "enrich_workspace"
	KindEnrichWorkspaceTopics = "enrich_workspace_topics"
	KindEnrichAllWorkspaces   = "enrich_all_workspaces"
)

// EnrichContributorArgs enriches one contributor within one workspace.
type EnrichContributorArgs struct {
	ContributorID uuid.UUID `json:"contributor_id" river:"unique"`
	WorkspaceID   uuid.UUID `json:"workspace_id"   river:"unique"`
}

// Kind returns the River job kind.
func (EnrichContributorArgs) Kind() string { return KindEnrichContributor }

// EnrichWorkspaceArgs runs the full workspace pipeline (topics, then contributors).
type EnrichWorkspaceArgs struct {
	WorkspaceID uuid.UUID `json:"workspace_id" river:"unique"`
}

// Kind returns the River job kind.
func (EnrichWorkspaceArgs) Kind() string { return KindEnrichWorkspace }

// EnrichWorkspaceTopicsArgs runs only the topic clustering phase of a workspace.
type EnrichWorkspaceTopicsArgs struct {
	WorkspaceID uuid.UUID `json:"workspace_id" river:"unique"`
}

// Kind returns the River job kind.
func (EnrichWorkspaceTopicsArgs) Kind() string { return KindEnrichWorkspaceTopics }

// EnrichAllWorkspacesArgs runs every active workspace in turn.
type EnrichAllWorkspacesArgs struct{}

// Kind returns the River job kind.
func (EnrichAllWorkspacesArgs) Kind() string { return KindEnrichAllWorkspaces }

var (
	_ river.JobArgs = EnrichContributorArgs{}
	_ river.JobArgs = EnrichWorkspaceArgs{}
	_ river.JobArgs = EnrichWorkspaceTopicsArgs{}
	_ river.JobArgs = EnrichAllWorkspacesArgs{}
)
