package service

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bdougie/contributor-enrichment/internal/models"
)

const (
	maxPersonas            = 2
	maxExpertise           = 3
	personaLookback        = 90 * 24 * time.Hour
	fullConfidenceActivity = 20.0
)

// Keyword categories, in declaration order. Multi-word phrases tolerate any run of whitespace.
var keywordCategories = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"security", regexp.MustCompile(`(?i)\b(security|vulnerabilit(?:y|ies)|cve|xss|csrf|injection|exploit|authentication|authorization|access\s+control|encryption|sanitiz(?:e|ation))\b`)},
	{"performance", regexp.MustCompile(`(?i)\b(performance|perf|latency|slow|optimi[sz](?:e|ation)|memory\s+leak|caching|benchmark|throughput|speed\s+up)\b`)},
	{"documentation", regexp.MustCompile(`(?i)\b(documentation|docs|readme|guide|tutorial|typo|examples?)\b`)},
	{"bug", regexp.MustCompile(`(?i)\b(bug|crash(?:es)?|broken|regression|fail(?:s|ing|ure)?|exception|panic|not\s+working)\b`)},
	{"feature", regexp.MustCompile(`(?i)\b(feature|proposal|enhancement|add\s+support|support\s+for|would\s+be\s+nice|request)\b`)},
	{"enterprise", regexp.MustCompile(`(?i)\b(enterprise|sso|saml|single\s+sign[\s-]+on|ldap|compliance|audit|rbac|role\s+based\s+access|scim|soc\s*2|hipaa|gdpr|self[\s-]+hosted|on[\s-]+prem(?:ise)?)\b`)},
}

// ActivityPattern aggregates a contributor's 90-day activity for persona scoring.
type ActivityPattern struct {
	PullRequests int
	Issues       int
	Reviews      int
	Discussions  int
	Comments     int

	SecurityKeywords      int
	PerformanceKeywords   int
	DocumentationKeywords int
	BugKeywords           int
	FeatureKeywords       int
	EnterpriseKeywords    int

	HelpfulComments     int
	AnsweredDiscussions int
	AvgIssueBodyLength  float64
}

// Total returns the number of contributions of every type.
func (p ActivityPattern) Total() int {
	return p.PullRequests + p.Issues + p.Reviews + p.Discussions + p.Comments
}

func (p ActivityPattern) keywordHits() []int {
	return []int{
		p.SecurityKeywords,
		p.PerformanceKeywords,
		p.DocumentationKeywords,
		p.BugKeywords,
		p.FeatureKeywords,
		p.EnterpriseKeywords,
	}
}

// BuildActivityPattern counts contribution types, keyword hits over titles and bodies,
// and the behavioral counters of activity.
func BuildActivityPattern(activity *models.ContributorActivity) ActivityPattern {
	var p ActivityPattern
	if activity == nil {
		return p
	}

	var (
		text          strings.Builder
		issueBodyRune int
	)
	for _, r := range activity.Records {
		switch r.Type {
		case models.ContributionTypePR:
			p.PullRequests++
		case models.ContributionTypeIssue:
			p.Issues++
			issueBodyRune += utf8.RuneCountInString(r.Body)
		case models.ContributionTypeReview:
			p.Reviews++
		case models.ContributionTypeDiscussion:
			p.Discussions++
		case models.ContributionTypeComment:
			p.Comments++
		}
		text.WriteString(r.Title)
		text.WriteString(" ")
		text.WriteString(r.Body)
		text.WriteString("\n")
	}

	corpus := text.String()
	hits := make([]int, len(keywordCategories))
	for i, cat := range keywordCategories {
		hits[i] = len(cat.pattern.FindAllStringIndex(corpus, -1))
	}
	p.SecurityKeywords = hits[0]
	p.PerformanceKeywords = hits[1]
	p.DocumentationKeywords = hits[2]
	p.BugKeywords = hits[3]
	p.FeatureKeywords = hits[4]
	p.EnterpriseKeywords = hits[5]

	if p.Issues > 0 {
		p.AvgIssueBodyLength = float64(issueBodyRune) / float64(p.Issues)
	}
	p.HelpfulComments = activity.HelpfulComments
	p.AnsweredDiscussions = activity.AnswersGiven

	return p
}

func boolScore(cond bool, v int) int {
	if cond {
		return v
	}
	return 0
}

type personaScore struct {
	tag       models.PersonaTag
	score     int
	threshold int
}

// personaScores returns every persona's score in declaration order.
func personaScores(p ActivityPattern) []personaScore {
	return []personaScore{
		{models.PersonaEnterprise, 3*p.EnterpriseKeywords + boolScore(p.SecurityKeywords > 0, 2*p.EnterpriseKeywords), 5},
		{models.PersonaSecurity, 3*p.SecurityKeywords + boolScore(p.AvgIssueBodyLength > 200, 5) + boolScore(p.Issues > 5, 5), 10},
		{models.PersonaPerformance, 3*p.PerformanceKeywords + boolScore(p.PullRequests > 3, 5), 8},
		{models.PersonaDocumentation, 3*p.DocumentationKeywords + boolScore(p.PullRequests > 0, 5), 8},
		{models.PersonaBugHunter, 2*p.BugKeywords + boolScore(p.Issues > 5, 10) + boolScore(p.AvgIssueBodyLength > 150, 5), 10},
		{models.PersonaFeatureRequester, 3*p.FeatureKeywords + boolScore(p.Issues > 3, 5) + boolScore(p.PullRequests < 2, 5), 10},
		{models.PersonaCommunityHelper, 2*p.HelpfulComments + 3*p.AnsweredDiscussions + boolScore(p.Discussions > 5, 5), 15},
	}
}

// ClassifyPersona assigns up to two personas (highest score first, ties by declaration
// order), a contribution style, an engagement pattern and a confidence. It is pure.
func ClassifyPersona(p ActivityPattern) models.ContributorPersona {
	qualifying := make([]personaScore, 0, 7)
	for _, s := range personaScores(p) {
		if s.score > s.threshold {
			qualifying = append(qualifying, s)
		}
	}
	sort.SliceStable(qualifying, func(i, j int) bool {
		return qualifying[i].score > qualifying[j].score
	})
	if len(qualifying) > maxPersonas {
		qualifying = qualifying[:maxPersonas]
	}

	personas := make([]models.PersonaTag, 0, len(qualifying))
	for _, s := range qualifying {
		personas = append(personas, s.tag)
	}

	total := float64(p.Total())
	presence := 0.4
	if len(personas) > 0 {
		presence = 0.8
	}

	return models.ContributorPersona{
		Personas:          personas,
		Confidence:        0.6*math.Min(total/fullConfidenceActivity, 1) + 0.4*presence,
		Expertise:         expertise(p),
		ContributionStyle: contributionStyle(p),
		EngagementPattern: engagementPattern(p),
	}
}

// expertise lists keyword categories with at least one hit, most hits first.
func expertise(p ActivityPattern) []string {
	type hit struct {
		name  string
		count int
	}
	hits := make([]hit, 0, len(keywordCategories))
	for i, n := range p.keywordHits() {
		if n > 0 {
			hits = append(hits, hit{keywordCategories[i].name, n})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].count > hits[j].count })

	out := make([]string, 0, maxExpertise)
	for _, h := range hits {
		if len(out) == maxExpertise {
			break
		}
		out = append(out, h.name)
	}
	return out
}

func contributionStyle(p ActivityPattern) models.ContributionStyle {
	code := p.PullRequests + p.Reviews
	talk := p.Issues + p.Discussions + p.Comments
	switch {
	case code > 2*talk:
		return models.StyleCode
	case talk > 2*code:
		return models.StyleDiscussion
	default:
		return models.StyleMixed
	}
}

func engagementPattern(p ActivityPattern) models.EngagementPattern {
	total := float64(p.Total())
	switch {
	case p.HelpfulComments > 10 || p.AnsweredDiscussions > 5:
		return models.EngagementMentor
	case float64(p.PullRequests) > 0.5*total:
		return models.EngagementBuilder
	case float64(p.Issues) > 0.4*total:
		return models.EngagementReporter
	default:
		return models.EngagementLearner
	}
}

// ActivityRepository loads a contributor's workspace activity since a point in time.
type ActivityRepository interface {
	FetchContributorActivity(ctx context.Context, contributorID, workspaceID uuid.UUID, since time.Time) (*models.ContributorActivity, error)
}

// PersonaClassifier loads 90-day activity and classifies it.
type PersonaClassifier struct {
	repo ActivityRepository
	now  func() time.Time
}

// NewPersonaClassifier creates a new persona classifier.
func NewPersonaClassifier(repo ActivityRepository) *PersonaClassifier {
	return &PersonaClassifier{repo: repo, now: time.Now}
}

// Classify returns the persona of contributorID within workspaceID.
func (c *PersonaClassifier) Classify(ctx context.Context, contributorID, workspaceID uuid.UUID) (*models.ContributorPersona, error) {
	activity, err := c.repo.FetchContributorActivity(ctx, contributorID, workspaceID, c.now().Add(-personaLookback))
	if err != nil {
		return nil, fmt.Errorf("fetch activity: %w", err)
	}

	persona := ClassifyPersona(BuildActivityPattern(activity))
	return &persona, nil
}
