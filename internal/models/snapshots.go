package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalyticsSnapshot is one dated row of derived analytics, unique per (contributor, workspace, date).
// Nil fields are left untouched by an upsert so the topic phase and the contributor phase
// can each write their own part of the same day's row.
type AnalyticsSnapshot struct {
	ContributorID   uuid.UUID              `json:"contributor_id"`
	WorkspaceID     uuid.UUID              `json:"workspace_id"`
	SnapshotDate    time.Time              `json:"snapshot_date"`
	Topics          []string               `json:"topics,omitempty"`
	Persona         *ContributorPersona    `json:"persona,omitempty"`
	Quality         *QualityScoreBreakdown `json:"quality,omitempty"`
	Velocity        *VelocityMetrics       `json:"velocity,omitempty"`
	TopicShifts     []TopicShift           `json:"topic_shifts,omitempty"`
	PredictedFocus  []string               `json:"predicted_focus,omitempty"`
	TrendConfidence *float64               `json:"trend_confidence,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// WorkspaceTopicSnapshot is the workspace-level record of one day's topic clustering.
type WorkspaceTopicSnapshot struct {
	WorkspaceID  uuid.UUID      `json:"workspace_id"`
	SnapshotDate time.Time      `json:"snapshot_date"`
	Topics       []TopicCluster `json:"topics"`
	Silhouette   float64        `json:"silhouette"`
	ItemCount    int            `json:"item_count"`
	Iterations   int            `json:"iterations"`
	Converged    bool           `json:"converged"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// SnapshotDate truncates t to its UTC calendar day.
func SnapshotDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
