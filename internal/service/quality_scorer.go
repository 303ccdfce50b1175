package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bdougie/contributor-enrichment/internal/models"
)

const (
	qualityLookback   = 90 * 24 * time.Hour
	detailedIssueBody = 100
)

var docPRKeywords = []string{"doc", "readme", "guide", "tutorial", "example", "contributing"}

// QualitySignalsRepository loads the counts a quality score is computed from.
type QualitySignalsRepository interface {
	FetchQualitySignals(ctx context.Context, contributorID, workspaceID uuid.UUID, since time.Time) (*models.QualitySignals, error)
}

// QualityScorer loads workspace-scoped signals and scores them.
type QualityScorer struct {
	repo    QualitySignalsRepository
	weights models.QualityWeights
	now     func() time.Time
}

// NewQualityScorer creates a scorer with the default weights.
func NewQualityScorer(repo QualitySignalsRepository) *QualityScorer {
	return &QualityScorer{
		repo:    repo,
		weights: models.DefaultQualityWeights(),
		now:     time.Now,
	}
}

// Score returns the quality breakdown of contributorID within workspaceID.
func (s *QualityScorer) Score(ctx context.Context, contributorID, workspaceID uuid.UUID) (*models.QualityScoreBreakdown, error) {
	signals, err := s.repo.FetchQualitySignals(ctx, contributorID, workspaceID, s.now().Add(-qualityLookback))
	if err != nil {
		return nil, fmt.Errorf("fetch quality signals: %w", err)
	}

	score := ComputeQualityScore(*signals, s.weights)
	return &score, nil
}

// ratio returns num/den, or 0 when den is 0.
func ratio(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return clampUnit(float64(num) / float64(den))
}

// capped returns v/limit within [0,1].
func capped(v int, limit float64) float64 {
	return clampUnit(float64(v) / limit)
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// IsDocumentationPR reports whether a PR title mentions documentation work.
func IsDocumentationPR(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range docPRKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ComputeQualityScore combines the four sub-scores with weights. Every ratio with a
// zero denominator counts as 0, so no sub-score is ever NaN. It is pure.
func ComputeQualityScore(s models.QualitySignals, weights models.QualityWeights) models.QualityScoreBreakdown {
	discussionImpact := 50*ratio(s.AnsweredDiscussions, s.TotalDiscussions) +
		50*capped(s.Comments, 10)

	codeReviewDepth := 40*math.Min(ratio(s.ReviewComments, s.TotalReviews)/5, 1) +
		30*capped(s.TotalReviews, 20) +
		30*ratio(s.ChangesRequested, s.TotalReviews)

	issueQuality := 40*ratio(s.DetailedIssues, s.TotalIssues) +
		30*ratio(s.ClosedIssues, s.TotalIssues) +
		30*capped(s.TotalIssues, 10)

	docPRs := 0
	for _, title := range s.PRTitles {
		if IsDocumentationPR(title) {
			docPRs++
		}
	}
	mentorScore := 50*capped(s.HelpfulComments, 20) +
		30*capped(s.AnswersGiven, 10) +
		20*capped(docPRs, 5)

	overall := weights.DiscussionImpact*discussionImpact +
		weights.CodeReviewDepth*codeReviewDepth +
		weights.IssueQuality*issueQuality +
		weights.MentorScore*mentorScore

	return models.QualityScoreBreakdown{
		Overall:          overall,
		DiscussionImpact: discussionImpact,
		CodeReviewDepth:  codeReviewDepth,
		IssueQuality:     issueQuality,
		MentorScore:      mentorScore,
		Weights:          weights,
	}
}
