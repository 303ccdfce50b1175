package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler func(body map[string]any) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		status, resp := handler(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Complete(t *testing.T) {
	srv := newTestServer(t, func(body map[string]any) (int, string) {
		assert.Equal(t, "gpt-test", body["model"])
		assert.InDelta(t, 0.2, body["temperature"], 1e-9)

		messages, ok := body["messages"].([]any)
		require.True(t, ok)
		require.Len(t, messages, 2)
		user, ok := messages[1].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "user", user["role"])
		assert.Equal(t, "name these titles", user["content"])

		return http.StatusOK, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-test",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"label\":\"Webhooks\",\"keywords\":[\"retry\"]}"}}]
		}`
	})

	client := NewClient("test-key", WithBaseURL(srv.URL), WithModel("gpt-test"))
	got, err := client.Complete(context.Background(), "  name these titles ")
	require.NoError(t, err)
	assert.JSONEq(t, `{"label":"Webhooks","keywords":["retry"]}`, got)
}

func TestClient_CompleteNoChoices(t *testing.T) {
	srv := newTestServer(t, func(map[string]any) (int, string) {
		return http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`
	})

	_, err := NewClient("k", WithBaseURL(srv.URL)).Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrNoChoiceInResponse)
}

func TestClient_CompleteAPIError(t *testing.T) {
	srv := newTestServer(t, func(map[string]any) (int, string) {
		return http.StatusBadRequest, `{"error":{"message":"bad request","type":"invalid_request_error"}}`
	})

	_, err := NewClient("k", WithBaseURL(srv.URL)).Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai completion")
}

func TestClient_CompleteEmptyPrompt(t *testing.T) {
	_, err := NewClient("k").Complete(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}
