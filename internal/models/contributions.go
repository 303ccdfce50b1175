package models

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingDimensions is the length of every stored contribution embedding.
const EmbeddingDimensions = 384

// ContributionType identifies the kind of contribution a record represents.
type ContributionType string

// Contribution types.
const (
	ContributionTypeIssue      ContributionType = "issue"
	ContributionTypePR         ContributionType = "pr"
	ContributionTypeDiscussion ContributionType = "discussion"
	ContributionTypeReview     ContributionType = "review"
	ContributionTypeComment    ContributionType = "comment"
)

// IsValid reports whether t is one of the known contribution types.
func (t ContributionType) IsValid() bool {
	switch t {
	case ContributionTypeIssue, ContributionTypePR, ContributionTypeDiscussion,
		ContributionTypeReview, ContributionTypeComment:
		return true
	default:
		return false
	}
}

// ContributionItem is one immutable contribution record with an optional embedding.
// Items without an embedding are excluded from clustering.
type ContributionItem struct {
	ID             uuid.UUID        `json:"id"`
	Type           ContributionType `json:"type"`
	Title          string           `json:"title"`
	Embedding      []float32        `json:"embedding,omitempty"`
	AuthorUsername string           `json:"author_username"`
	RepositoryID   uuid.UUID        `json:"repository_id"`
	CreatedAt      time.Time        `json:"created_at"`
}

// HasEmbedding reports whether the item carries a full-length embedding.
func (c ContributionItem) HasEmbedding() bool {
	return len(c.Embedding) == EmbeddingDimensions
}

// ActivityRecord is the text of a single contribution used for keyword heuristics.
type ActivityRecord struct {
	Type      ContributionType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	CreatedAt time.Time        `json:"created_at"`
}

// ContributorActivity is a contributor's activity within one workspace over a lookback window.
type ContributorActivity struct {
	ContributorID uuid.UUID        `json:"contributor_id"`
	WorkspaceID   uuid.UUID        `json:"workspace_id"`
	Records       []ActivityRecord `json:"records"`
	// HelpfulComments counts comments left on items authored by someone else.
	HelpfulComments int `json:"helpful_comments"`
	// AnswersGiven counts discussions where this contributor's reply was accepted as the answer.
	AnswersGiven int `json:"answers_given"`
}

// QualitySignals are the workspace-scoped counts the quality score is computed from.
type QualitySignals struct {
	TotalDiscussions    int `json:"total_discussions"`
	AnsweredDiscussions int `json:"answered_discussions"`
	Comments            int `json:"comments"`

	TotalReviews     int `json:"total_reviews"`
	ReviewComments   int `json:"review_comments"`
	ChangesRequested int `json:"changes_requested"`

	TotalIssues    int `json:"total_issues"`
	DetailedIssues int `json:"detailed_issues"`
	ClosedIssues   int `json:"closed_issues"`

	HelpfulComments int      `json:"helpful_comments"`
	AnswersGiven    int      `json:"answers_given"`
	PRTitles        []string `json:"pr_titles"`
}

// ActivityWindow is a half-open time range [Start, End).
type ActivityWindow struct {
	Start time.Time
	End   time.Time
}
