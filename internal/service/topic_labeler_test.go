package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/contributor-enrichment/internal/models"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func TestFallbackLabel(t *testing.T) {
	tests := []struct {
		name         string
		titles       []string
		wantPrimary  string
		wantKeywords []string
	}{
		{
			name:         "empty input",
			titles:       nil,
			wantPrimary:  DefaultTopicLabel,
			wantKeywords: []string{},
		},
		{
			name: "ranks by frequency and strips stop words",
			titles: []string{
				"fix: cache invalidation on deploy",
				"feat: cache warmup for search",
				"refactor cache keys",
				"update search index",
			},
			wantPrimary:  "Cache",
			wantKeywords: []string{"cache", "search", "invalidation", "deploy", "warmup"},
		},
		{
			name:         "only stop words and short tokens",
			titles:       []string{"fix typo", "docs: add test", "chore: bump"},
			wantPrimary:  "Typo",
			wantKeywords: []string{"typo", "bump"},
		},
		{
			name:         "nothing survives filtering",
			titles:       []string{"fix it", "add a", "docs"},
			wantPrimary:  DefaultTopicLabel,
			wantKeywords: []string{},
		},
		{
			name:         "frequency ties keep first appearance",
			titles:       []string{"webhooks retries", "retries webhooks"},
			wantPrimary:  "Webhooks",
			wantKeywords: []string{"webhooks", "retries"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackLabel(tt.titles)
			assert.Equal(t, tt.wantPrimary, got.Primary)
			assert.Equal(t, tt.wantKeywords, got.Keywords)
		})
	}
}

func TestFallbackLabel_Deterministic(t *testing.T) {
	titles := []string{"alpha beta gamma delta", "delta gamma beta alpha", "epsilon zeta alpha"}

	first := FallbackLabel(titles)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, FallbackLabel(titles))
	}
	assert.LessOrEqual(t, len(first.Keywords), 5)
}

func TestParseTopicLabel(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    TopicLabel
		wantErr bool
	}{
		{
			name: "plain JSON",
			raw:  `{"label": "Authentication", "keywords": ["oauth", "tokens"]}`,
			want: TopicLabel{Primary: "Authentication", Keywords: []string{"oauth", "tokens"}},
		},
		{
			name: "code fenced",
			raw:  "```json\n{\"label\": \"CI Pipelines\", \"keywords\": [\"Actions\", \"actions\", \" cache \"]}\n```",
			want: TopicLabel{Primary: "CI Pipelines", Keywords: []string{"actions", "cache"}},
		},
		{
			name: "prose around object",
			raw:  "Sure! Here it is: {\"label\": \"Docs\", \"keywords\": []} Hope that helps.",
			want: TopicLabel{Primary: "Docs", Keywords: []string{}},
		},
		{
			name: "caps keywords at five",
			raw:  `{"label": "X", "keywords": ["a","b","c","d","e","f"]}`,
			want: TopicLabel{Primary: "X", Keywords: []string{"a", "b", "c", "d", "e"}},
		},
		{
			name: "long label cut at word boundary",
			raw:  `{"label": "Continuous integration and deployment pipeline maintenance", "keywords": []}`,
			want: TopicLabel{Primary: "Continuous integration and deployment pipeline", Keywords: []string{}},
		},
		{
			name: "long single word cut at limit",
			raw:  `{"label": "` + strings.Repeat("x", 60) + `", "keywords": []}`,
			want: TopicLabel{Primary: strings.Repeat("x", 50), Keywords: []string{}},
		},
		{name: "not JSON", raw: "I cannot help with that", wantErr: true},
		{name: "broken JSON", raw: `{"label": "Auth",`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTopicLabel(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTopicLabeler_UsesGenerator(t *testing.T) {
	gen := &mockGenerator{}
	titles := []string{"oauth login loop", "token refresh race"}
	gen.On("Complete", mock.Anything, BuildLabelPrompt(titles)).
		Return(`{"label": "Authentication", "keywords": ["oauth", "tokens"]}`, nil).Once()

	labeler := NewTopicLabeler(gen, "openai", time.Second, nil)
	got := labeler.Label(context.Background(), models.EmbeddingCluster{ID: 1}, titles)

	assert.Equal(t, TopicLabel{Primary: "Authentication", Keywords: []string{"oauth", "tokens"}}, got)
	gen.AssertExpectations(t)
}

func TestTopicLabeler_FallsBack(t *testing.T) {
	titles := []string{"flaky integration tests", "integration timeouts"}
	want := FallbackLabel(titles)

	tests := []struct {
		name     string
		response string
		err      error
	}{
		{"generator error", "", errors.New("503 service unavailable")},
		{"unparsable output", "no idea", nil},
		{"empty label", `{"label": "  ", "keywords": ["x"]}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{}
			gen.On("Complete", mock.Anything, mock.Anything).Return(tt.response, tt.err).Once()

			labeler := NewTopicLabeler(gen, "google", 0, nil)
			got := labeler.Label(context.Background(), models.EmbeddingCluster{}, titles)

			assert.Equal(t, want, got)
			gen.AssertExpectations(t)
		})
	}
}

func TestTopicLabeler_NoGeneratorAndEmptyInput(t *testing.T) {
	labeler := NewTopicLabeler(nil, "", 0, nil)

	assert.Equal(t, FallbackLabel([]string{"release notes automation"}),
		labeler.Label(context.Background(), models.EmbeddingCluster{}, []string{"release notes automation"}))

	gen := &mockGenerator{}
	withGen := NewTopicLabeler(gen, "openai", 0, nil)
	got := withGen.Label(context.Background(), models.EmbeddingCluster{}, nil)
	assert.Equal(t, TopicLabel{Primary: DefaultTopicLabel, Keywords: []string{}}, got)
	gen.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestTopicLabeler_TruncatesSampleTitles(t *testing.T) {
	titles := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		titles = append(titles, "pagination cursor bug")
	}

	gen := &mockGenerator{}
	gen.On("Complete", mock.Anything, BuildLabelPrompt(titles[:10])).
		Return(`{"label": "Pagination", "keywords": ["cursor"]}`, nil).Once()

	labeler := NewTopicLabeler(gen, "openai", 0, nil)
	got := labeler.Label(context.Background(), models.EmbeddingCluster{}, titles)

	assert.Equal(t, "Pagination", got.Primary)
	gen.AssertExpectations(t)
}

func TestRateLimitedGenerator_RespectsContext(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Complete", mock.Anything, "p").Return("ok", nil).Once()

	limited := NewRateLimitedGenerator(gen, 0.001)

	out, err := limited.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	// The single token is spent; a short deadline cannot wait ~1000s for the next one.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = limited.Complete(ctx, "p")
	require.Error(t, err)
	gen.AssertExpectations(t)
}
