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

// ContributorsRepository handles data access for contributors.
type ContributorsRepository struct {
	db *pgxpool.Pool
}

// NewContributorsRepository creates a new contributors repository.
func NewContributorsRepository(db *pgxpool.Pool) *ContributorsRepository {
	return &ContributorsRepository{db: db}
}

const contributorColumns = `id, username, primary_topics, persona, quality_score, quality_breakdown, last_analytics_update`

func scanContributor(row pgx.Row) (*models.Contributor, error) {
	var (
		c         models.Contributor
		persona   []byte
		breakdown []byte
	)
	if err := row.Scan(&c.ID, &c.Username, &c.PrimaryTopics, &persona, &c.QualityScore, &breakdown, &c.LastAnalyticsUpdate); err != nil {
		return nil, err
	}

	if len(persona) > 0 {
		c.Persona = &models.ContributorPersona{}
		if err := json.Unmarshal(persona, c.Persona); err != nil {
			return nil, fmt.Errorf("failed to decode persona: %w", err)
		}
	}
	if len(breakdown) > 0 {
		c.QualityBreakdown = &models.QualityScoreBreakdown{}
		if err := json.Unmarshal(breakdown, c.QualityBreakdown); err != nil {
			return nil, fmt.Errorf("failed to decode quality breakdown: %w", err)
		}
	}

	return &c, nil
}

// GetByID retrieves a contributor by ID.
func (r *ContributorsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Contributor, error) {
	query := `SELECT ` + contributorColumns + ` FROM contributors WHERE id = $1`

	c, err := scanContributor(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("contributor", "contributor not found")
		}
		return nil, fmt.Errorf("failed to get contributor: %w", err)
	}

	return c, nil
}

// GetByUsername retrieves a contributor by username.
func (r *ContributorsRepository) GetByUsername(ctx context.Context, username string) (*models.Contributor, error) {
	query := `SELECT ` + contributorColumns + ` FROM contributors WHERE username = $1`

	c, err := scanContributor(r.db.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("contributor", fmt.Sprintf("contributor %q not found", username))
		}
		return nil, fmt.Errorf("failed to get contributor by username: %w", err)
	}

	return c, nil
}

// ListWorkspaceContributorIDs lists the ids of a workspace's contributors in a stable order.
func (r *ContributorsRepository) ListWorkspaceContributorIDs(ctx context.Context, workspaceID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT contributor_id
		FROM workspace_contributors
		WHERE workspace_id = $1
		ORDER BY contributor_id
	`

	rows, err := r.db.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace contributors: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspace contributors: %w", err)
	}

	return ids, nil
}

// UpdateTopics replaces a contributor's primary topics.
func (r *ContributorsRepository) UpdateTopics(ctx context.Context, id uuid.UUID, topics []string) error {
	if topics == nil {
		topics = []string{}
	}

	result, err := r.db.Exec(ctx,
		`UPDATE contributors SET primary_topics = $1, updated_at = $2 WHERE id = $3`,
		topics, time.Now(), id,
	)
	if err != nil {
		return apperrors.NewPersistenceError("update contributor topics", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("contributor", "contributor not found")
	}

	return nil
}

// UpdateAnalytics writes persona, quality and the last analytics update time.
func (r *ContributorsRepository) UpdateAnalytics(ctx context.Context, id uuid.UUID, persona *models.ContributorPersona, quality *models.QualityScoreBreakdown, at time.Time) error {
	personaJSON, err := marshalNullable(persona)
	if err != nil {
		return fmt.Errorf("failed to encode persona: %w", err)
	}
	qualityJSON, err := marshalNullable(quality)
	if err != nil {
		return fmt.Errorf("failed to encode quality: %w", err)
	}

	var overall *float64
	if quality != nil {
		overall = &quality.Overall
	}

	query := `
		UPDATE contributors
		SET persona = COALESCE($1, persona),
			quality_breakdown = COALESCE($2, quality_breakdown),
			quality_score = COALESCE($3, quality_score),
			last_analytics_update = $4,
			updated_at = $4
		WHERE id = $5
	`

	result, err := r.db.Exec(ctx, query, personaJSON, qualityJSON, overall, at, id)
	if err != nil {
		return apperrors.NewPersistenceError("update contributor analytics", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("contributor", "contributor not found")
	}

	return nil
}

// marshalNullable encodes v as JSON, or returns nil for a nil pointer so the column stays NULL.
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
