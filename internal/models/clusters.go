package models

import (
	"github.com/google/uuid"
)

// EmbeddingCluster is one partition produced by a clustering run. It is never persisted directly.
type EmbeddingCluster struct {
	ID        int         `json:"id"`
	Centroid  []float32   `json:"centroid"`
	MemberIDs []uuid.UUID `json:"member_ids"`
	// Variance is the average cosine distance of members to the centroid.
	Variance float64 `json:"variance"`
}

// Confidence maps variance onto [0,1]; cosine distance is bounded by 2.
func (c EmbeddingCluster) Confidence() float64 {
	conf := 1 - c.Variance/2
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

// Size returns the number of member items.
func (c EmbeddingCluster) Size() int {
	return len(c.MemberIDs)
}

// TopicCluster is a labeled cluster ready to be attached to contributors.
type TopicCluster struct {
	ID               string   `json:"id"`
	Label            string   `json:"label"`
	Keywords         []string `json:"keywords"`
	ContributorCount int      `json:"contributor_count"`
	TopContributors  []string `json:"top_contributors"`
	Confidence       float64  `json:"confidence"`
	SampleTitles     []string `json:"sample_titles"`
}
