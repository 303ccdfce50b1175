package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/time/rate"

	apperrors "github.com/bdougie/contributor-enrichment/internal/errors"
	"github.com/bdougie/contributor-enrichment/internal/models"
	"github.com/bdougie/contributor-enrichment/internal/observability"
)

const (
	// DefaultTopicLabel is used when there is nothing to derive a label from.
	DefaultTopicLabel = "General Development"

	maxLabelSampleTitles = 10
	maxLabelKeywords     = 5
	maxLabelRunes        = 50
	minKeywordLength     = 4
)

// Conventional-commit verbs that say nothing about a topic.
var labelStopWords = map[string]bool{
	"fix":      true,
	"add":      true,
	"update":   true,
	"remove":   true,
	"improve":  true,
	"refactor": true,
	"feat":     true,
	"chore":    true,
	"docs":     true,
	"test":     true,
}

var (
	codeFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")
	jsonObjectRe   = regexp.MustCompile(`(?s)\{.*\}`)
)

// TopicLabel is a human-readable topic name plus up to five keywords.
type TopicLabel struct {
	Primary  string   `json:"label"`
	Keywords []string `json:"keywords"`
}

// TextGenerator is a generative model that completes a prompt. Implementations live in
// internal/openai and internal/googleai.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// RateLimitedGenerator bounds the request rate to a TextGenerator.
type RateLimitedGenerator struct {
	next    TextGenerator
	limiter *rate.Limiter
}

// NewRateLimitedGenerator allows perSecond requests per second with a burst of one.
func NewRateLimitedGenerator(next TextGenerator, perSecond float64) *RateLimitedGenerator {
	return &RateLimitedGenerator{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Complete waits for the limiter and then delegates.
func (g *RateLimitedGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	return g.next.Complete(ctx, prompt)
}

// TopicLabeler names clusters. It asks the generator first and falls back to a
// deterministic keyword heuristic whenever the generator is absent, fails or returns junk.
type TopicLabeler struct {
	generator TextGenerator
	provider  string
	timeout   time.Duration
	metrics   observability.EnrichmentMetrics
}

// NewTopicLabeler creates a labeler. generator may be nil (heuristic labels only).
// timeout bounds each generator call; zero means no extra bound.
func NewTopicLabeler(generator TextGenerator, provider string, timeout time.Duration, metrics observability.EnrichmentMetrics) *TopicLabeler {
	return &TopicLabeler{
		generator: generator,
		provider:  provider,
		timeout:   timeout,
		metrics:   metrics,
	}
}

// Label returns a label for cluster from up to ten sample titles. It never fails.
func (l *TopicLabeler) Label(ctx context.Context, cluster models.EmbeddingCluster, sampleTitles []string) TopicLabel {
	if len(sampleTitles) > maxLabelSampleTitles {
		sampleTitles = sampleTitles[:maxLabelSampleTitles]
	}

	if len(sampleTitles) == 0 {
		return FallbackLabel(nil)
	}

	if l.generator == nil {
		l.recordFallback(ctx, "no_generator")
		return FallbackLabel(sampleTitles)
	}

	label, err := l.generate(ctx, sampleTitles)
	if err != nil {
		reason := "generator_err"
		var labelErr *apperrors.LabelingServiceError
		if errors.As(err, &labelErr) && labelErr.Reason != "" {
			reason = labelErr.Reason
		}

		slog.Warn("topic labeling fell back to heuristic",
			"cluster_id", cluster.ID,
			"provider", l.provider,
			"reason", reason,
			"error", err,
		)
		l.recordFallback(ctx, reason)

		return FallbackLabel(sampleTitles)
	}

	return label
}

func (l *TopicLabeler) generate(ctx context.Context, sampleTitles []string) (TopicLabel, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	raw, err := l.generator.Complete(ctx, BuildLabelPrompt(sampleTitles))
	if err != nil {
		return TopicLabel{}, apperrors.NewLabelingServiceError(l.provider, "generator_err", err)
	}

	label, err := ParseTopicLabel(raw)
	if err != nil {
		return TopicLabel{}, apperrors.NewLabelingServiceError(l.provider, "unparsable", err)
	}

	if label.Primary == "" {
		return TopicLabel{}, apperrors.NewLabelingServiceError(l.provider, "empty_label", nil)
	}

	return label, nil
}

func (l *TopicLabeler) recordFallback(ctx context.Context, reason string) {
	if l.metrics != nil {
		l.metrics.RecordLabelingFallback(ctx, reason)
	}
}

// BuildLabelPrompt asks for a short topic label and keywords as a JSON object.
func BuildLabelPrompt(sampleTitles []string) string {
	var b strings.Builder
	b.WriteString("These are titles of GitHub issues, pull requests and discussions that belong to one topic.\n")
	b.WriteString("Name the topic in two to four words and give up to five lowercase keywords.\n")
	b.WriteString(`Respond with JSON only: {"label": "...", "keywords": ["..."]}`)
	b.WriteString("\n\nTitles:\n")
	for _, title := range sampleTitles {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(title))
		b.WriteString("\n")
	}
	return b.String()
}

// ParseTopicLabel parses a {label, keywords} object from model output. Code fences and
// surrounding prose are tolerated. The label is cut to 50 runes; keywords are trimmed,
// deduplicated and capped at five.
func ParseTopicLabel(raw string) (TopicLabel, error) {
	text := strings.TrimSpace(raw)
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if !strings.HasPrefix(text, "{") {
		text = jsonObjectRe.FindString(text)
	}
	if text == "" {
		return TopicLabel{}, errors.New("no JSON object in response")
	}

	var parsed struct {
		Label    string   `json:"label"`
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return TopicLabel{}, fmt.Errorf("decode label: %w", err)
	}

	label := TopicLabel{
		Primary:  truncateRunes(strings.TrimSpace(parsed.Label), maxLabelRunes),
		Keywords: make([]string, 0, maxLabelKeywords),
	}
	seen := make(map[string]bool, len(parsed.Keywords))
	for _, kw := range parsed.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		label.Keywords = append(label.Keywords, kw)
		if len(label.Keywords) == maxLabelKeywords {
			break
		}
	}

	return label, nil
}

// truncateRunes cuts s to at most limit runes, dropping a trailing partial word when one was cut.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	cut := string(runes[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > 0 && runes[limit] != ' ' {
		cut = cut[:i]
	}

	return strings.TrimSpace(cut)
}

// FallbackLabel derives a label from title word frequencies. Stop-listed verbs and tokens
// shorter than four characters are ignored; frequency ties keep first appearance order.
// It is pure and deterministic.
func FallbackLabel(sampleTitles []string) TopicLabel {
	ranked := rankTokens(sampleTitles, func(tok string) bool {
		return utf8.RuneCountInString(tok) >= minKeywordLength && !labelStopWords[tok]
	})
	if len(ranked) == 0 {
		return TopicLabel{Primary: DefaultTopicLabel, Keywords: []string{}}
	}

	if len(ranked) > maxLabelKeywords {
		ranked = ranked[:maxLabelKeywords]
	}

	return TopicLabel{
		Primary:  capitalize(ranked[0]),
		Keywords: ranked,
	}
}

// tokenize lowercases s and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// rankTokens counts the tokens of texts accepted by keep and returns them by descending
// frequency, ties broken by first appearance.
func rankTokens(texts []string, keep func(string) bool) []string {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, text := range texts {
		for _, tok := range tokenize(text) {
			if !keep(tok) {
				continue
			}
			if counts[tok] == 0 {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	return order
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
