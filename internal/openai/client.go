// Package openai provides a thin wrapper around the official OpenAI Go SDK for topic labeling.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

var (
	// ErrEmptyPrompt is returned when Complete is called with an empty prompt.
	ErrEmptyPrompt = errors.New("openai: prompt is empty")
	// ErrNoChoiceInResponse is returned when the API response contains no completion.
	ErrNoChoiceInResponse = errors.New("openai: no choice in response")
)

const (
	defaultModel       = openaisdk.ChatModelGPT4oMini
	defaultTemperature = 0.2

	systemPrompt = "You name clusters of GitHub contributions. Reply with a single JSON object and nothing else."
)

// Client calls the OpenAI chat completions API via the official SDK.
type Client struct {
	sdk         openaisdk.Client
	model       string
	temperature float64
}

type clientSettings struct {
	model       string
	temperature float64
	requestOpts []option.RequestOption
}

// ClientOption configures the Client.
type ClientOption func(*clientSettings)

// WithModel sets the chat model. Empty uses the default.
func WithModel(model string) ClientOption {
	return func(s *clientSettings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ClientOption {
	return func(s *clientSettings) {
		s.temperature = t
	}
}

// WithBaseURL points the client at another OpenAI-compatible endpoint.
func WithBaseURL(url string) ClientOption {
	return func(s *clientSettings) {
		s.requestOpts = append(s.requestOpts, option.WithBaseURL(url))
	}
}

// NewClient creates an OpenAI chat client using the official SDK.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	settings := &clientSettings{
		model:       defaultModel,
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(settings)
	}

	requestOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}, settings.requestOpts...)

	return &Client{
		sdk:         openaisdk.NewClient(requestOpts...),
		model:       settings.model,
		temperature: settings.temperature,
	}
}

// Complete sends prompt as the user message and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(systemPrompt),
			openaisdk.UserMessage(prompt),
		},
		Temperature: param.NewOpt(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoiceInResponse
	}

	return resp.Choices[0].Message.Content, nil
}
