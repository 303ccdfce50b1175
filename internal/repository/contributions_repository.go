// Package repository provides PostgreSQL data access for the enrichment pipeline.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/contributor-enrichment/internal/models"
)

// detailedIssueBodyLength is the body length above which an issue counts as detailed.
const detailedIssueBodyLength = 100

// errEmbeddingScanInvalidType is returned when Scan receives neither a vector nor its binary form.
var errEmbeddingScanInvalidType = errors.New("embedding: expected pgvector.Vector or []byte")

// nullableEmbedding scans a vector column that may be NULL (pgvector.Vector.Scan panics on NULL).
// Pools with the pgvector codec registered hand over a decoded pgvector.Vector; others pass raw bytes.
type nullableEmbedding []float32

func (n *nullableEmbedding) Scan(src any) error {
	var buf []byte

	switch v := src.(type) {
	case nil:
		*n = nil
		return nil
	case pgvector.Vector:
		*n = v.Slice()
		return nil
	case *pgvector.Vector:
		if v == nil {
			*n = nil
			return nil
		}
		*n = v.Slice()
		return nil
	case []byte:
		buf = v
	default:
		return fmt.Errorf("%w: got %T", errEmbeddingScanInvalidType, src)
	}
	if len(buf) == 0 {
		*n = nil
		return nil
	}

	var vec pgvector.Vector
	if err := vec.DecodeBinary(buf); err != nil {
		return fmt.Errorf("embedding decode: %w", err)
	}
	*n = vec.Slice()

	return nil
}

// workspaceScope restricts contributions c to repositories of workspace $2.
const workspaceScope = `c.repository_id IN (SELECT repository_id FROM workspace_repositories WHERE workspace_id = $2)`

// ContributionsRepository reads contribution records.
type ContributionsRepository struct {
	db *pgxpool.Pool
}

// NewContributionsRepository creates a new contributions repository.
func NewContributionsRepository(db *pgxpool.Pool) *ContributionsRepository {
	return &ContributionsRepository{db: db}
}

// FetchEmbeddedItems returns the workspace's contributions created since since that carry a
// 384-dimension embedding. Rows with another dimension or an unknown type are skipped.
func (r *ContributionsRepository) FetchEmbeddedItems(ctx context.Context, workspaceID uuid.UUID, since time.Time) ([]models.ContributionItem, error) {
	query := `
		SELECT c.id, c.type, c.title, c.embedding, COALESCE(p.username, ''), c.repository_id, c.created_at
		FROM contributions c
		LEFT JOIN contributors p ON p.id = c.author_id
		WHERE c.created_at >= $1
			AND c.embedding IS NOT NULL
			AND ` + workspaceScope + `
		ORDER BY c.created_at DESC, c.id
	`

	rows, err := r.db.Query(ctx, query, since, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch embedded items: %w", err)
	}
	defer rows.Close()

	items := make([]models.ContributionItem, 0)
	skipped := 0
	for rows.Next() {
		var (
			item      models.ContributionItem
			embedding nullableEmbedding
		)
		if err := rows.Scan(&item.ID, &item.Type, &item.Title, &embedding, &item.AuthorUsername, &item.RepositoryID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan embedded item: %w", err)
		}
		item.Embedding = embedding

		if !item.Type.IsValid() || !item.HasEmbedding() {
			skipped++
			slog.Debug("skipping contribution", "item_id", item.ID, "type", item.Type, "dim", len(item.Embedding))
			continue
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating embedded items: %w", err)
	}

	if skipped > 0 {
		slog.Info("skipped contributions with unusable embeddings", "workspace_id", workspaceID, "skipped", skipped)
	}

	return items, nil
}

// FetchContributorActivity returns the contributor's workspace records since since, plus
// the helpful-comment and accepted-answer counts.
func (r *ContributionsRepository) FetchContributorActivity(ctx context.Context, contributorID, workspaceID uuid.UUID, since time.Time) (*models.ContributorActivity, error) {
	query := `
		SELECT c.type, c.title, c.body, c.created_at
		FROM contributions c
		WHERE c.author_id = $1
			AND ` + workspaceScope + `
			AND c.created_at >= $3
		ORDER BY c.created_at DESC
	`

	rows, err := r.db.Query(ctx, query, contributorID, workspaceID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch activity: %w", err)
	}
	defer rows.Close()

	activity := &models.ContributorActivity{
		ContributorID: contributorID,
		WorkspaceID:   workspaceID,
		Records:       make([]models.ActivityRecord, 0),
	}
	for rows.Next() {
		var rec models.ActivityRecord
		if err := rows.Scan(&rec.Type, &rec.Title, &rec.Body, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity record: %w", err)
		}
		activity.Records = append(activity.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity: %w", err)
	}

	countsQuery := `
		SELECT
			COUNT(*) FILTER (WHERE c.type = 'comment' AND c.parent_author_id IS NOT NULL AND c.parent_author_id <> c.author_id),
			COUNT(*) FILTER (WHERE c.type = 'comment' AND c.is_answer)
		FROM contributions c
		WHERE c.author_id = $1
			AND ` + workspaceScope + `
			AND c.created_at >= $3
	`
	if err := r.db.QueryRow(ctx, countsQuery, contributorID, workspaceID, since).Scan(
		&activity.HelpfulComments, &activity.AnswersGiven,
	); err != nil {
		return nil, fmt.Errorf("failed to count helpful activity: %w", err)
	}

	return activity, nil
}

// FetchQualitySignals aggregates the counts behind the quality score.
func (r *ContributionsRepository) FetchQualitySignals(ctx context.Context, contributorID, workspaceID uuid.UUID, since time.Time) (*models.QualitySignals, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE c.type = 'discussion'),
			COUNT(*) FILTER (WHERE c.type = 'discussion' AND c.is_answered),
			COUNT(*) FILTER (WHERE c.type = 'comment'),
			COUNT(*) FILTER (WHERE c.type = 'review'),
			COALESCE(SUM(c.review_comment_count) FILTER (WHERE c.type = 'review'), 0),
			COUNT(*) FILTER (WHERE c.type = 'review' AND c.review_state = 'CHANGES_REQUESTED'),
			COUNT(*) FILTER (WHERE c.type = 'issue'),
			COUNT(*) FILTER (WHERE c.type = 'issue' AND char_length(c.body) > $4),
			COUNT(*) FILTER (WHERE c.type = 'issue' AND c.state = 'closed'),
			COUNT(*) FILTER (WHERE c.type = 'comment' AND c.parent_author_id IS NOT NULL AND c.parent_author_id <> c.author_id),
			COUNT(*) FILTER (WHERE c.type = 'comment' AND c.is_answer),
			COALESCE(array_agg(c.title) FILTER (WHERE c.type = 'pr'), '{}')
		FROM contributions c
		WHERE c.author_id = $1
			AND ` + workspaceScope + `
			AND c.created_at >= $3
	`

	var s models.QualitySignals
	err := r.db.QueryRow(ctx, query, contributorID, workspaceID, since, detailedIssueBodyLength).Scan(
		&s.TotalDiscussions, &s.AnsweredDiscussions, &s.Comments,
		&s.TotalReviews, &s.ReviewComments, &s.ChangesRequested,
		&s.TotalIssues, &s.DetailedIssues, &s.ClosedIssues,
		&s.HelpfulComments, &s.AnswersGiven, &s.PRTitles,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quality signals: %w", err)
	}

	return &s, nil
}

// CountContributions counts the contributor's workspace contributions in [window.Start, window.End).
func (r *ContributionsRepository) CountContributions(ctx context.Context, contributorID, workspaceID uuid.UUID, window models.ActivityWindow) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM contributions c
		WHERE c.author_id = $1
			AND ` + workspaceScope + `
			AND c.created_at >= $3 AND c.created_at < $4
	`

	var n int
	if err := r.db.QueryRow(ctx, query, contributorID, workspaceID, window.Start, window.End).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count contributions: %w", err)
	}

	return n, nil
}

// FetchRecentTitles returns up to limit PR, issue and discussion titles created since since, newest first.
func (r *ContributionsRepository) FetchRecentTitles(ctx context.Context, contributorID, workspaceID uuid.UUID, since time.Time, limit int) ([]string, error) {
	query := `
		SELECT c.title
		FROM contributions c
		WHERE c.author_id = $1
			AND ` + workspaceScope + `
			AND c.created_at >= $3
			AND c.type IN ('pr', 'issue', 'discussion')
			AND c.title <> ''
		ORDER BY c.created_at DESC
		LIMIT $4
	`

	rows, err := r.db.Query(ctx, query, contributorID, workspaceID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent titles: %w", err)
	}

	titles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan recent titles: %w", err)
	}

	return titles, nil
}
