package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bdougie/contributor-enrichment/internal/errors"
	"github.com/bdougie/contributor-enrichment/internal/models"
)

func embeddedItem(title string, vec ...float32) models.ContributionItem {
	return models.ContributionItem{
		ID:             uuid.New(),
		Type:           models.ContributionTypeIssue,
		Title:          title,
		Embedding:      vec,
		AuthorUsername: "octocat",
	}
}

func clusterOf(run *ClusterRun, id uuid.UUID) int {
	for _, c := range run.Clusters {
		for _, m := range c.MemberIDs {
			if m == id {
				return c.ID
			}
		}
	}
	return -1
}

func TestClusteringService_Cluster_TwoSeparatedPairs(t *testing.T) {
	svc := NewClusteringService()

	a1 := embeddedItem("auth token refresh", 1, 0, 0)
	a2 := embeddedItem("auth session expiry", 1, 0.2, 0)
	b1 := embeddedItem("render chart axis", 0.2, 1, 0)
	b2 := embeddedItem("render chart legend", 0, 1, 0)
	items := []models.ContributionItem{a1, a2, b1, b2}

	// Every possible initialization converges to the same partition for these points.
	for seed := int64(0); seed < 20; seed++ {
		opts := DefaultClusterOptions()
		opts.K = 2
		opts.Rand = rand.New(rand.NewSource(seed))

		run, err := svc.Cluster(context.Background(), items, opts)
		require.NoError(t, err)

		require.Len(t, run.Clusters, 2)
		assert.True(t, run.Converged, "seed %d", seed)
		assert.Equal(t, clusterOf(run, a1.ID), clusterOf(run, a2.ID), "seed %d", seed)
		assert.Equal(t, clusterOf(run, b1.ID), clusterOf(run, b2.ID), "seed %d", seed)
		assert.NotEqual(t, clusterOf(run, a1.ID), clusterOf(run, b1.ID), "seed %d", seed)

		for _, c := range run.Clusters {
			assert.Len(t, c.MemberIDs, 2)
			assert.Greater(t, c.Confidence(), 0.5)
		}
		assert.Greater(t, run.Silhouette, 0.5)
	}
}

func TestClusteringService_Cluster_IdenticalVectorsHaveFullConfidence(t *testing.T) {
	svc := NewClusteringService()

	items := make([]models.ContributionItem, 0, 6)
	for i := 0; i < 6; i++ {
		items = append(items, embeddedItem("same", 0.3, 0.4, 0.5))
	}

	opts := DefaultClusterOptions()
	opts.K = 2
	opts.Rand = rand.New(rand.NewSource(7))

	run, err := svc.Cluster(context.Background(), items, opts)
	require.NoError(t, err)

	// Ties go to the first centroid, so the second cluster stays empty and keeps its centroid.
	require.Len(t, run.Clusters, 2)
	assert.Len(t, run.Clusters[0].MemberIDs, 6)
	assert.Empty(t, run.Clusters[1].MemberIDs)
	assert.Equal(t, []float32{0.3, 0.4, 0.5}, run.Clusters[1].Centroid)

	assert.InDelta(t, 1.0, run.Clusters[0].Confidence(), 1e-9)
	assert.InDelta(t, 0.0, run.Variance, 1e-9)
	assert.True(t, run.Converged)
	for _, d := range run.Distances {
		assert.InDelta(t, 0.0, d, 1e-9)
	}
}

func TestClusteringService_Cluster_InsufficientData(t *testing.T) {
	svc := NewClusteringService()

	items := []models.ContributionItem{
		embeddedItem("one", 1, 0),
		embeddedItem("two", 0, 1),
		{ID: uuid.New(), Title: "no embedding"},
	}

	opts := DefaultClusterOptions()
	opts.K = 3

	run, err := svc.Cluster(context.Background(), items, opts)
	require.Error(t, err)
	assert.Nil(t, run)
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientData))

	var insufficient *apperrors.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 3, insufficient.Required)
	assert.Equal(t, 2, insufficient.Available)
}

func TestClusteringService_Cluster_ExcludesItemsWithoutEmbeddings(t *testing.T) {
	svc := NewClusteringService()

	missing := models.ContributionItem{ID: uuid.New(), Title: "no embedding"}
	mismatched := embeddedItem("wrong dim", 1, 0, 0, 0)
	items := []models.ContributionItem{
		embeddedItem("a", 1, 0, 0),
		missing,
		embeddedItem("b", 0, 1, 0),
		mismatched,
	}

	opts := DefaultClusterOptions()
	opts.K = 2
	opts.Rand = rand.New(rand.NewSource(1))

	run, err := svc.Cluster(context.Background(), items, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, run.ItemCount)
	assert.Equal(t, -1, clusterOf(run, missing.ID))
	assert.Equal(t, -1, clusterOf(run, mismatched.ID))
}

func TestClusteringService_Cluster_NonConvergenceIsSoft(t *testing.T) {
	svc := NewClusteringService()

	items := []models.ContributionItem{
		embeddedItem("a", 1, 0),
		embeddedItem("b", 0.9, 0.1),
		embeddedItem("c", 0.1, 0.9),
		embeddedItem("d", 0, 1),
	}

	opts := DefaultClusterOptions()
	opts.K = 2
	opts.MaxIterations = 1
	opts.Rand = rand.New(rand.NewSource(3))

	run, err := svc.Cluster(context.Background(), items, opts)
	require.NoError(t, err)
	assert.False(t, run.Converged)
	assert.Equal(t, 1, run.Iterations)
	assert.Len(t, run.Clusters, 2)
}

func TestClusteringService_Cluster_InvalidK(t *testing.T) {
	svc := NewClusteringService()

	opts := DefaultClusterOptions()
	opts.K = 0

	_, err := svc.Cluster(context.Background(), []models.ContributionItem{embeddedItem("a", 1)}, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestClusteringService_Cluster_Cancelled(t *testing.T) {
	svc := NewClusteringService()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := DefaultClusterOptions()
	opts.K = 1

	_, err := svc.Cluster(ctx, []models.ContributionItem{embeddedItem("a", 1, 0)}, opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindNearestCentroid_TiesGoToFirst(t *testing.T) {
	centroids := [][]float32{{1, 0}, {0, 1}}

	// Equidistant from both centroids.
	assert.Equal(t, 0, findNearestCentroid([]float32{1, 1}, centroids))
	assert.Equal(t, 1, findNearestCentroid([]float32{0.1, 1}, centroids))
}

func TestUpdateCentroids_EmptyClusterKeepsCentroid(t *testing.T) {
	points := []point{
		{id: uuid.New(), vec: []float32{1, 0}},
		{id: uuid.New(), vec: []float32{0, 1}},
	}
	centroids := [][]float32{{0.5, 0.5}, {9, 9}}

	updateCentroids(points, []int{0, 0}, centroids)

	assert.Equal(t, []float32{0.5, 0.5}, centroids[0])
	assert.Equal(t, []float32{9, 9}, centroids[1])
}

func TestRelativeChange(t *testing.T) {
	assert.InDelta(t, 0.5, relativeChange(0.4, 0.2), 1e-12)
	assert.InDelta(t, 0.0, relativeChange(0, 0), 1e-12)
	assert.InDelta(t, 1.0, relativeChange(0, 0.1), 1e-12)
}

func TestEmbeddingClusterConfidence(t *testing.T) {
	assert.InDelta(t, 1.0, models.EmbeddingCluster{Variance: 0}.Confidence(), 1e-12)
	assert.InDelta(t, 0.5, models.EmbeddingCluster{Variance: 1}.Confidence(), 1e-12)
	assert.InDelta(t, 0.0, models.EmbeddingCluster{Variance: 2.5}.Confidence(), 1e-12)
	assert.InDelta(t, 1.0, models.EmbeddingCluster{Variance: -0.1}.Confidence(), 1e-12)
}
