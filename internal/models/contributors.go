package models

import (
	"time"

	"github.com/google/uuid"
)

// Contributor is the per-person record the enrichment pipeline writes derived fields onto.
type Contributor struct {
	ID                  uuid.UUID              `json:"id"`
	Username            string                 `json:"username"`
	PrimaryTopics       []string               `json:"primary_topics"`
	Persona             *ContributorPersona    `json:"persona,omitempty"`
	QualityScore        *float64               `json:"quality_score,omitempty"`
	QualityBreakdown    *QualityScoreBreakdown `json:"quality_breakdown,omitempty"`
	LastAnalyticsUpdate *time.Time             `json:"last_analytics_update,omitempty"`
}

// Workspace groups repositories and contributors.
type Workspace struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	IsActive bool      `json:"is_active"`
}

// PersonaTag is a behavioral or expertise tag.
type PersonaTag string

// Persona tags in scoring declaration order.
const (
	PersonaEnterprise       PersonaTag = "enterprise"
	PersonaSecurity         PersonaTag = "security"
	PersonaPerformance      PersonaTag = "performance"
	PersonaDocumentation    PersonaTag = "documentation"
	PersonaBugHunter        PersonaTag = "bug_hunter"
	PersonaFeatureRequester PersonaTag = "feature_requester"
	PersonaCommunityHelper  PersonaTag = "community_helper"
)

// ContributionStyle describes whether a contributor leans toward code or conversation.
type ContributionStyle string

// Contribution styles.
const (
	StyleCode       ContributionStyle = "code"
	StyleDiscussion ContributionStyle = "discussion"
	StyleMixed      ContributionStyle = "mixed"
)

// EngagementPattern summarizes how a contributor engages with the project.
type EngagementPattern string

// Engagement patterns.
const (
	EngagementMentor   EngagementPattern = "mentor"
	EngagementBuilder  EngagementPattern = "builder"
	EngagementReporter EngagementPattern = "reporter"
	EngagementLearner  EngagementPattern = "learner"
)

// ContributorPersona holds at most two persona tags plus style and engagement classification.
type ContributorPersona struct {
	Personas          []PersonaTag      `json:"personas"`
	Confidence        float64           `json:"confidence"`
	Expertise         []string          `json:"expertise"`
	ContributionStyle ContributionStyle `json:"contribution_style"`
	EngagementPattern EngagementPattern `json:"engagement_pattern"`
}

// QualityWeights are the coefficients of the overall quality score.
type QualityWeights struct {
	DiscussionImpact float64 `json:"discussion_impact"`
	CodeReviewDepth  float64 `json:"code_review_depth"`
	IssueQuality     float64 `json:"issue_quality"`
	MentorScore      float64 `json:"mentor_score"`
}

// DefaultQualityWeights returns the fixed 0.25/0.30/0.25/0.20 weighting.
func DefaultQualityWeights() QualityWeights {
	return QualityWeights{
		DiscussionImpact: 0.25,
		CodeReviewDepth:  0.30,
		IssueQuality:     0.25,
		MentorScore:      0.20,
	}
}

// Sum returns the total of all weights.
func (w QualityWeights) Sum() float64 {
	return w.DiscussionImpact + w.CodeReviewDepth + w.IssueQuality + w.MentorScore
}

// QualityScoreBreakdown holds the overall quality score and its four sub-scores, each in [0,100].
type QualityScoreBreakdown struct {
	Overall          float64        `json:"overall"`
	DiscussionImpact float64        `json:"discussion_impact"`
	CodeReviewDepth  float64        `json:"code_review_depth"`
	IssueQuality     float64        `json:"issue_quality"`
	MentorScore      float64        `json:"mentor_score"`
	Weights          QualityWeights `json:"weights"`
}
