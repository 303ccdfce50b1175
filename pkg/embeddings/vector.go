// Package embeddings provides distance functions over embedding vectors.
package embeddings

import "math"

// CosineDistance returns 1 - cosine similarity, clamped to [0,2]; smaller is more similar.
// Vectors of different length, or with zero magnitude, are at distance 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 1.0
	}

	var dot, sumA, sumB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		sumA += float64(a[i]) * float64(a[i])
		sumB += float64(b[i]) * float64(b[i])
	}

	if sumA == 0 || sumB == 0 {
		return 1.0
	}

	dist := 1.0 - dot/(math.Sqrt(sumA)*math.Sqrt(sumB))
	return math.Max(0, math.Min(2, dist))
}
