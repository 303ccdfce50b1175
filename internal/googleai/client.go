// Package googleai provides a thin wrapper around the Google Gen AI SDK for topic labeling (Gemini API).
package googleai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrEmptyPrompt is returned when Complete is called with an empty prompt.
	ErrEmptyPrompt = errors.New("googleai: prompt is empty")
	// ErrEmptyResponse is returned when the model returns no text.
	ErrEmptyResponse = errors.New("googleai: empty response")
)

const (
	defaultModel       = "gemini-2.0-flash"
	defaultTemperature = float32(0.2)

	systemInstruction = "You name clusters of GitHub contributions. Reply with a single JSON object and nothing else."
)

// Client calls the Gemini GenerateContent API via the Google Gen AI SDK.
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithModel sets the model name (e.g. gemini-2.0-flash). Empty uses default.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) ClientOption {
	return func(c *Client) {
		c.temperature = t
	}
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("googleai client: %w", err)
	}

	client := &Client{
		client:      genaiClient,
		model:       defaultModel,
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Complete generates a JSON response for prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	model := c.model
	if model == "" {
		model = defaultModel
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}
