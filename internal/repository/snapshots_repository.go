package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/bdougie/contributor-enrichment/internal/errors"
	"github.com/bdougie/contributor-enrichment/internal/models"
)

// SnapshotsRepository stores dated analytics snapshots.
type SnapshotsRepository struct {
	db *pgxpool.Pool
}

// NewSnapshotsRepository creates a new snapshots repository.
func NewSnapshotsRepository(db *pgxpool.Pool) *SnapshotsRepository {
	return &SnapshotsRepository{db: db}
}

// UpsertSnapshot writes the snapshot for (contributor, workspace, date). Fields left nil keep
// the value already stored for that day, so repeated runs on one day converge to a single row.
func (r *SnapshotsRepository) UpsertSnapshot(ctx context.Context, s *models.AnalyticsSnapshot) error {
	persona, err := marshalNullable(s.Persona)
	if err != nil {
		return fmt.Errorf("failed to encode persona: %w", err)
	}
	quality, err := marshalNullable(s.Quality)
	if err != nil {
		return fmt.Errorf("failed to encode quality: %w", err)
	}
	velocity, err := marshalNullable(s.Velocity)
	if err != nil {
		return fmt.Errorf("failed to encode velocity: %w", err)
	}

	var (
		shifts         []byte
		predictedFocus []string
	)
	if s.Velocity != nil {
		topicShifts := s.TopicShifts
		if topicShifts == nil {
			topicShifts = []models.TopicShift{}
		}
		if shifts, err = json.Marshal(topicShifts); err != nil {
			return fmt.Errorf("failed to encode topic shifts: %w", err)
		}
		predictedFocus = s.PredictedFocus
		if predictedFocus == nil {
			predictedFocus = []string{}
		}
	}

	query := `
		INSERT INTO contributor_analytics_snapshots AS t (
			contributor_id, workspace_id, snapshot_date, topics, persona, quality,
			velocity, topic_shifts, predicted_focus, trend_confidence, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (contributor_id, workspace_id, snapshot_date) DO UPDATE SET
			topics = COALESCE(EXCLUDED.topics, t.topics),
			persona = COALESCE(EXCLUDED.persona, t.persona),
			quality = COALESCE(EXCLUDED.quality, t.quality),
			velocity = COALESCE(EXCLUDED.velocity, t.velocity),
			topic_shifts = COALESCE(EXCLUDED.topic_shifts, t.topic_shifts),
			predicted_focus = COALESCE(EXCLUDED.predicted_focus, t.predicted_focus),
			trend_confidence = COALESCE(EXCLUDED.trend_confidence, t.trend_confidence),
			updated_at = NOW()
	`

	_, err = r.db.Exec(ctx, query,
		s.ContributorID, s.WorkspaceID, models.SnapshotDate(s.SnapshotDate), s.Topics,
		persona, quality, velocity, shifts, predictedFocus, s.TrendConfidence,
	)
	if err != nil {
		return apperrors.NewPersistenceError("upsert analytics snapshot", err)
	}

	return nil
}

// FetchHistoricalSnapshots returns up to limit snapshots, newest first.
func (r *SnapshotsRepository) FetchHistoricalSnapshots(ctx context.Context, contributorID, workspaceID uuid.UUID, limit int) ([]models.AnalyticsSnapshot, error) {
	query := `
		SELECT contributor_id, workspace_id, snapshot_date, topics, persona, quality,
			velocity, topic_shifts, predicted_focus, trend_confidence, created_at, updated_at
		FROM contributor_analytics_snapshots
		WHERE contributor_id = $1 AND workspace_id = $2
		ORDER BY snapshot_date DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, contributorID, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]models.AnalyticsSnapshot, 0, limit)
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

func scanSnapshot(row pgx.Row) (*models.AnalyticsSnapshot, error) {
	var (
		s                                 models.AnalyticsSnapshot
		persona, quality, velocity, shift []byte
	)
	if err := row.Scan(
		&s.ContributorID, &s.WorkspaceID, &s.SnapshotDate, &s.Topics, &persona, &quality,
		&velocity, &shift, &s.PredictedFocus, &s.TrendConfidence, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	decode := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"persona", persona, &s.Persona},
		{"quality", quality, &s.Quality},
		{"velocity", velocity, &s.Velocity},
		{"topic_shifts", shift, &s.TopicShifts},
	}
	for _, d := range decode {
		if len(d.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(d.raw, d.dst); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %s: %w", d.name, err)
		}
	}

	return &s, nil
}

// UpsertWorkspaceTopicSnapshot records the day's topic clustering for a workspace.
func (r *SnapshotsRepository) UpsertWorkspaceTopicSnapshot(ctx context.Context, s *models.WorkspaceTopicSnapshot) error {
	topics := s.Topics
	if topics == nil {
		topics = []models.TopicCluster{}
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return fmt.Errorf("failed to encode topics: %w", err)
	}

	query := `
		INSERT INTO workspace_topic_snapshots (
			workspace_id, snapshot_date, topics, silhouette, item_count, iterations, converged, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (workspace_id, snapshot_date) DO UPDATE SET
			topics = EXCLUDED.topics,
			silhouette = EXCLUDED.silhouette,
			item_count = EXCLUDED.item_count,
			iterations = EXCLUDED.iterations,
			converged = EXCLUDED.converged,
			updated_at = NOW()
	`

	_, err = r.db.Exec(ctx, query,
		s.WorkspaceID, models.SnapshotDate(s.SnapshotDate), topicsJSON,
		s.Silhouette, s.ItemCount, s.Iterations, s.Converged,
	)
	if err != nil {
		return apperrors.NewPersistenceError("upsert workspace topic snapshot", err)
	}

	return nil
}

// LatestWorkspaceTopicSnapshot returns the newest topic snapshot of a workspace.
func (r *SnapshotsRepository) LatestWorkspaceTopicSnapshot(ctx context.Context, workspaceID uuid.UUID) (*models.WorkspaceTopicSnapshot, error) {
	query := `
		SELECT workspace_id, snapshot_date, topics, silhouette, item_count, iterations, converged, created_at, updated_at
		FROM workspace_topic_snapshots
		WHERE workspace_id = $1
		ORDER BY snapshot_date DESC
		LIMIT 1
	`

	var (
		s      models.WorkspaceTopicSnapshot
		topics []byte
	)
	err := r.db.QueryRow(ctx, query, workspaceID).Scan(
		&s.WorkspaceID, &s.SnapshotDate, &topics, &s.Silhouette,
		&s.ItemCount, &s.Iterations, &s.Converged, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("workspace_topic_snapshot", "no topic snapshot for workspace")
		}
		return nil, fmt.Errorf("failed to get topic snapshot: %w", err)
	}
	if err := json.Unmarshal(topics, &s.Topics); err != nil {
		return nil, fmt.Errorf("failed to decode topics: %w", err)
	}

	return &s, nil
}

// DeleteSnapshotsBefore removes contributor snapshots older than cutoff and returns how many were removed.
func (r *SnapshotsRepository) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx,
		`DELETE FROM contributor_analytics_snapshots WHERE snapshot_date < $1`,
		models.SnapshotDate(cutoff),
	)
	if err != nil {
		return 0, apperrors.NewPersistenceError("delete old snapshots", err)
	}

	return result.RowsAffected(), nil
}
