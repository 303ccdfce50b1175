package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/bdougie/contributor-enrichment/internal/errors"
	"github.com/bdougie/contributor-enrichment/internal/models"
	"github.com/bdougie/contributor-enrichment/pkg/embeddings"
)

// silhouetteSampleSize caps the O(n²) silhouette computation.
const silhouetteSampleSize = 1000

// ClusterOptions configures a k-means run.
type ClusterOptions struct {
	K                    int
	MaxIterations        int
	ConvergenceThreshold float64
	// MinClusterSize is applied by callers when they decide which clusters to keep.
	MinClusterSize int
	// Rand seeds centroid initialization. Nil means a time-seeded source.
	Rand *rand.Rand
}

// DefaultClusterOptions returns k=7, 50 iterations, a 1% convergence threshold and a minimum cluster size of 3.
func DefaultClusterOptions() ClusterOptions {
	return ClusterOptions{
		K:                    7,
		MaxIterations:        50,
		ConvergenceThreshold: 0.01,
		MinClusterSize:       3,
	}
}

// ClusterRun is the result of one clustering run. Clusters always has exactly K entries,
// including clusters that ended up empty.
type ClusterRun struct {
	Clusters   []models.EmbeddingCluster
	Iterations int
	Converged  bool
	// Variance is the mean over non-empty clusters of each cluster's average distance to its centroid.
	Variance   float64
	Silhouette float64
	ItemCount  int
	// Distances holds each clustered item's cosine distance to its final centroid.
	Distances map[uuid.UUID]float64
}

// ClusteringService partitions embedded contribution items into topic groups
// with k-means over cosine distance.
type ClusteringService struct{}

// NewClusteringService creates a new clustering service.
func NewClusteringService() *ClusteringService {
	return &ClusteringService{}
}

type point struct {
	id  uuid.UUID
	vec []float32
}

// Cluster runs k-means on the items that carry an embedding. It fails with an
// InsufficientDataError when fewer than opts.K items are usable. Running out of
// iterations is not an error: the run is returned with Converged=false.
func (s *ClusteringService) Cluster(ctx context.Context, items []models.ContributionItem, opts ClusterOptions) (*ClusterRun, error) {
	if opts.K < 1 {
		return nil, apperrors.NewValidationError("k", "k must be at least 1")
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = DefaultClusterOptions().MaxIterations
	}
	if opts.ConvergenceThreshold <= 0 {
		opts.ConvergenceThreshold = DefaultClusterOptions().ConvergenceThreshold
	}

	points := embeddedPoints(items)
	if len(points) < opts.K {
		return nil, apperrors.NewInsufficientDataError("embedded items", opts.K, len(points))
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // clustering init, not security sensitive
	}

	slog.Debug("starting k-means clustering", "k", opts.K, "items", len(points), "max_iterations", opts.MaxIterations)

	centroids := initializeCentroids(points, opts.K, rng)
	assignments := make([]int, len(points))

	var (
		variance   float64
		prev       float64
		iterations int
		converged  bool
	)

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("clustering cancelled: %w", err)
		}

		for i, p := range points {
			assignments[i] = findNearestCentroid(p.vec, centroids)
		}

		updateCentroids(points, assignments, centroids)

		variance = totalVariance(points, assignments, centroids)
		iterations = iter

		if iter > 1 && relativeChange(prev, variance) < opts.ConvergenceThreshold {
			converged = true
			break
		}
		prev = variance
	}

	if !converged {
		slog.Warn("k-means did not converge", "k", opts.K, "iterations", iterations, "variance", variance)
	}

	run := &ClusterRun{
		Clusters:   buildClusters(points, assignments, centroids),
		Iterations: iterations,
		Converged:  converged,
		Variance:   variance,
		ItemCount:  len(points),
		Distances:  make(map[uuid.UUID]float64, len(points)),
	}
	for i, p := range points {
		run.Distances[p.id] = embeddings.CosineDistance(p.vec, centroids[assignments[i]])
	}
	run.Silhouette = silhouetteScore(points, assignments, opts.K, rng)

	return run, nil
}

// embeddedPoints keeps items with a non-empty embedding of the same length as the first one.
func embeddedPoints(items []models.ContributionItem) []point {
	points := make([]point, 0, len(items))
	dim := 0
	for _, it := range items {
		if len(it.Embedding) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(it.Embedding)
		}
		if len(it.Embedding) != dim {
			slog.Debug("skipping item with mismatched embedding dimension", "item_id", it.ID, "dim", len(it.Embedding), "want", dim)
			continue
		}
		points = append(points, point{id: it.ID, vec: it.Embedding})
	}
	return points
}

// initializeCentroids samples k distinct points uniformly at random.
func initializeCentroids(points []point, k int, rng *rand.Rand) [][]float32 {
	centroids := make([][]float32, k)
	for i, idx := range rng.Perm(len(points))[:k] {
		centroids[i] = append([]float32(nil), points[idx].vec...)
	}
	return centroids
}

// findNearestCentroid returns the index of the nearest centroid. Ties keep the first minimum.
func findNearestCentroid(embedding []float32, centroids [][]float32) int {
	minDist := math.MaxFloat64
	nearest := 0
	for i, centroid := range centroids {
		if dist := embeddings.CosineDistance(embedding, centroid); dist < minDist {
			minDist = dist
			nearest = i
		}
	}
	return nearest
}

// updateCentroids moves each centroid to the mean of its members. A cluster with no
// members keeps its previous centroid.
func updateCentroids(points []point, assignments []int, centroids [][]float32) {
	dim := len(centroids[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for i := range sums {
		sums[i] = make([]float64, dim)
	}

	for i, p := range points {
		c := assignments[i]
		counts[c]++
		for d, v := range p.vec {
			sums[c][d] += float64(v)
		}
	}

	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		next := make([]float32, dim)
		for d := range next {
			next[d] = float32(sums[c][d] / float64(counts[c]))
		}
		centroids[c] = next
	}
}

// clusterAverageDistances returns each cluster's average member distance and member count.
func clusterAverageDistances(points []point, assignments []int, centroids [][]float32) ([]float64, []int) {
	sums := make([]float64, len(centroids))
	counts := make([]int, len(centroids))
	for i, p := range points {
		c := assignments[i]
		sums[c] += embeddings.CosineDistance(p.vec, centroids[c])
		counts[c]++
	}
	for c := range sums {
		if counts[c] > 0 {
			sums[c] /= float64(counts[c])
		}
	}
	return sums, counts
}

func totalVariance(points []point, assignments []int, centroids [][]float32) float64 {
	avgs, counts := clusterAverageDistances(points, assignments, centroids)
	var total float64
	nonEmpty := 0
	for c, avg := range avgs {
		if counts[c] == 0 {
			continue
		}
		total += avg
		nonEmpty++
	}
	if nonEmpty == 0 {
		return 0
	}
	return total / float64(nonEmpty)
}

// relativeChange is |prev-cur|/prev. With prev=0 it is 0 when cur is also 0, else 1.
func relativeChange(prev, cur float64) float64 {
	if prev == 0 {
		if cur == 0 {
			return 0
		}
		return 1
	}
	return math.Abs(prev-cur) / prev
}

func buildClusters(points []point, assignments []int, centroids [][]float32) []models.EmbeddingCluster {
	avgs, _ := clusterAverageDistances(points, assignments, centroids)

	clusters := make([]models.EmbeddingCluster, len(centroids))
	for c := range clusters {
		clusters[c] = models.EmbeddingCluster{
			ID:        c,
			Centroid:  centroids[c],
			MemberIDs: make([]uuid.UUID, 0),
			Variance:  avgs[c],
		}
	}
	for i, p := range points {
		c := assignments[i]
		clusters[c].MemberIDs = append(clusters[c].MemberIDs, p.id)
	}
	return clusters
}

// silhouetteScore is the mean silhouette over (a sample of) clustered points, in [-1,1].
// Higher means tighter, better separated clusters.
func silhouetteScore(points []point, assignments []int, k int, rng *rand.Rand) float64 {
	if k < 2 || len(points) < 2 {
		return 0
	}

	sample := rng.Perm(len(points))
	if len(sample) > silhouetteSampleSize {
		sample = sample[:silhouetteSampleSize]
	}

	var total float64
	count := 0
	for _, i := range sample {
		own := assignments[i]
		sums := make([]float64, k)
		counts := make([]int, k)
		for j, q := range points {
			if j == i {
				continue
			}
			c := assignments[j]
			sums[c] += embeddings.CosineDistance(points[i].vec, q.vec)
			counts[c]++
		}

		if counts[own] == 0 {
			// Singleton clusters score 0 by convention.
			count++
			continue
		}
		a := sums[own] / float64(counts[own])

		b := math.MaxFloat64
		for c := 0; c < k; c++ {
			if c == own || counts[c] == 0 {
				continue
			}
			b = math.Min(b, sums[c]/float64(counts[c]))
		}
		if b == math.MaxFloat64 {
			continue
		}

		if maxAB := math.Max(a, b); maxAB > 0 {
			total += (b - a) / maxAB
		}
		count++
	}

	if count == 0 {
		return 0
	}
	return total / float64(count)
}
