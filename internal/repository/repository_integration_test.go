package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	apperrors "github.com/bdougie/contributor-enrichment/internal/errors"
	"github.com/bdougie/contributor-enrichment/internal/models"
	"github.com/bdougie/contributor-enrichment/pkg/database"
)

// setupDatabase starts a pgvector-enabled Postgres, applies the migrations and returns a pool.
func setupDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "pgvector/pgvector:pg16",
		postgres.WithDatabase("enrichment"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, Migrate(dsn, -1))

	pool, err := database.NewPostgresPool(ctx, dsn, database.WithVectorTypes())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

type fixture struct {
	workspaceID  uuid.UUID
	repositoryID uuid.UUID
	aliceID      uuid.UUID
	bobID        uuid.UUID
}

func seed(t *testing.T, pool *pgxpool.Pool) fixture {
	t.Helper()
	ctx := context.Background()

	f := fixture{workspaceID: uuid.New(), repositoryID: uuid.New(), aliceID: uuid.New(), bobID: uuid.New()}
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO workspaces (id, name) VALUES ($1, 'core')`, []any{f.workspaceID}},
		{`INSERT INTO workspaces (name, is_active) VALUES ('archived', FALSE)`, nil},
		{`INSERT INTO repositories (id, full_name) VALUES ($1, 'acme/api')`, []any{f.repositoryID}},
		{`INSERT INTO workspace_repositories (workspace_id, repository_id) VALUES ($1, $2)`, []any{f.workspaceID, f.repositoryID}},
		{`INSERT INTO contributors (id, username) VALUES ($1, 'alice'), ($2, 'bob')`, []any{f.aliceID, f.bobID}},
		{`INSERT INTO workspace_contributors (workspace_id, contributor_id) VALUES ($1, $2), ($1, $3)`, []any{f.workspaceID, f.aliceID, f.bobID}},
	}
	for _, s := range stmts {
		_, err := pool.Exec(ctx, s.sql, s.args...)
		require.NoError(t, err, s.sql)
	}

	return f
}

func unitVector(axis int) pgvector.Vector {
	v := make([]float32, models.EmbeddingDimensions)
	v[axis] = 1
	return pgvector.NewVector(v)
}

func TestRepositories_Integration(t *testing.T) {
	pool := setupDatabase(t)
	f := seed(t, pool)
	ctx := context.Background()
	now := time.Now()

	contributions := NewContributionsRepository(pool)
	contributors := NewContributorsRepository(pool)
	workspaces := NewWorkspacesRepository(pool)
	snapshots := NewSnapshotsRepository(pool)

	_, err := pool.Exec(ctx, `
		INSERT INTO contributions (type, repository_id, author_id, parent_author_id, title, body, state, embedding, created_at)
		VALUES
			('pr', $1, $2, NULL, 'Add webhook retries', '', 'open', $3, $5),
			('issue', $1, $2, NULL, 'Crash on start', repeat('x', 150), 'closed', $4, $5),
			('comment', $1, $2, $6, '', 'try this', 'open', NULL, $5),
			('pr', $1, $6, NULL, 'Old change', '', 'open', $3, $7)
	`, f.repositoryID, f.aliceID, unitVector(0), unitVector(1), now.Add(-time.Hour), f.bobID, now.Add(-200*24*time.Hour))
	require.NoError(t, err)

	t.Run("workspaces", func(t *testing.T) {
		active, err := workspaces.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, f.workspaceID, active[0].ID)

		_, err = workspaces.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("embedded items skip missing embeddings and old rows", func(t *testing.T) {
		items, err := contributions.FetchEmbeddedItems(ctx, f.workspaceID, now.Add(-90*24*time.Hour))
		require.NoError(t, err)
		require.Len(t, items, 2)
		for _, item := range items {
			assert.Len(t, item.Embedding, models.EmbeddingDimensions)
			assert.Equal(t, "alice", item.AuthorUsername)
		}
	})

	t.Run("quality signals", func(t *testing.T) {
		signals, err := contributions.FetchQualitySignals(ctx, f.aliceID, f.workspaceID, now.Add(-90*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, signals.TotalIssues)
		assert.Equal(t, 1, signals.DetailedIssues)
		assert.Equal(t, 1, signals.ClosedIssues)
		assert.Equal(t, 1, signals.Comments)
		assert.Equal(t, 1, signals.HelpfulComments)
		assert.Equal(t, []string{"Add webhook retries"}, signals.PRTitles)
	})

	t.Run("counts and titles", func(t *testing.T) {
		n, err := contributions.CountContributions(ctx, f.aliceID, f.workspaceID, models.ActivityWindow{Start: now.Add(-7 * 24 * time.Hour), End: now})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		titles, err := contributions.FetchRecentTitles(ctx, f.aliceID, f.workspaceID, now.Add(-30*24*time.Hour), 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"Add webhook retries", "Crash on start"}, titles)
	})

	t.Run("contributors", func(t *testing.T) {
		ids, err := contributors.ListWorkspaceContributorIDs(ctx, f.workspaceID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{f.aliceID, f.bobID}, ids)

		require.NoError(t, contributors.UpdateTopics(ctx, f.aliceID, []string{"Webhooks", "ci"}))
		quality := &models.QualityScoreBreakdown{Overall: 72.5}
		persona := &models.ContributorPersona{Personas: []models.PersonaTag{models.PersonaBugHunter}, Confidence: 0.6}
		require.NoError(t, contributors.UpdateAnalytics(ctx, f.aliceID, persona, quality, now))

		alice, err := contributors.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"Webhooks", "ci"}, alice.PrimaryTopics)
		require.NotNil(t, alice.QualityScore)
		assert.InDelta(t, 72.5, *alice.QualityScore, 1e-9)
		require.NotNil(t, alice.Persona)
		assert.Equal(t, []models.PersonaTag{models.PersonaBugHunter}, alice.Persona.Personas)
		assert.NotNil(t, alice.LastAnalyticsUpdate)

		_, err = contributors.GetByUsername(ctx, "mallory")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.ErrorIs(t, contributors.UpdateTopics(ctx, uuid.New(), nil), apperrors.ErrNotFound)
	})

	t.Run("snapshot upsert keeps one row per day", func(t *testing.T) {
		day := models.SnapshotDate(now)
		require.NoError(t, snapshots.UpsertSnapshot(ctx, &models.AnalyticsSnapshot{
			ContributorID: f.aliceID, WorkspaceID: f.workspaceID, SnapshotDate: day,
			Topics: []string{"Webhooks"},
		}))

		confidence := 0.5
		require.NoError(t, snapshots.UpsertSnapshot(ctx, &models.AnalyticsSnapshot{
			ContributorID: f.aliceID, WorkspaceID: f.workspaceID, SnapshotDate: day.Add(3 * time.Hour),
			Quality:         &models.QualityScoreBreakdown{Overall: 60},
			Velocity:        &models.VelocityMetrics{Current30d: 3, Trend: models.TrendSteady},
			TrendConfidence: &confidence,
		}))

		history, err := snapshots.FetchHistoricalSnapshots(ctx, f.aliceID, f.workspaceID, 8)
		require.NoError(t, err)
		require.Len(t, history, 1)

		got := history[0]
		assert.Equal(t, []string{"Webhooks"}, got.Topics)
		require.NotNil(t, got.Quality)
		assert.InDelta(t, 60.0, got.Quality.Overall, 1e-9)
		require.NotNil(t, got.Velocity)
		assert.Equal(t, 3, got.Velocity.Current30d)
		assert.Empty(t, got.TopicShifts)
		assert.NotNil(t, got.PredictedFocus)
		require.NotNil(t, got.TrendConfidence)
		assert.InDelta(t, 0.5, *got.TrendConfidence, 1e-9)

		require.NoError(t, snapshots.UpsertSnapshot(ctx, &models.AnalyticsSnapshot{
			ContributorID: f.aliceID, WorkspaceID: f.workspaceID, SnapshotDate: day.Add(-24 * time.Hour),
			Topics: []string{"docs"},
		}))
		history, err = snapshots.FetchHistoricalSnapshots(ctx, f.aliceID, f.workspaceID, 8)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, []string{"Webhooks"}, history[0].Topics)

		removed, err := snapshots.DeleteSnapshotsBefore(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
	})

	t.Run("workspace topic snapshot", func(t *testing.T) {
		snap := &models.WorkspaceTopicSnapshot{
			WorkspaceID:  f.workspaceID,
			SnapshotDate: now,
			Topics:       []models.TopicCluster{{ID: "0", Label: "Webhooks", TopContributors: []string{"alice"}}},
			Silhouette:   0.4,
			ItemCount:    2,
			Iterations:   3,
			Converged:    true,
		}
		require.NoError(t, snapshots.UpsertWorkspaceTopicSnapshot(ctx, snap))
		snap.Silhouette = 0.6
		require.NoError(t, snapshots.UpsertWorkspaceTopicSnapshot(ctx, snap))

		got, err := snapshots.LatestWorkspaceTopicSnapshot(ctx, f.workspaceID)
		require.NoError(t, err)
		assert.InDelta(t, 0.6, got.Silhouette, 1e-9)
		require.Len(t, got.Topics, 1)
		assert.Equal(t, "Webhooks", got.Topics[0].Label)

		_, err = snapshots.LatestWorkspaceTopicSnapshot(ctx, uuid.New())
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}
