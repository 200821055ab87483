package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/crewpipe/crewpipe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func llmConfig(provider, baseURL string) config.LLMConfig {
	return config.LLMConfig{
		Provider:   provider,
		Model:      "test-model",
		APIKey:     "sk-test",
		BaseURL:    baseURL,
		MaxRetries: 2,
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(llmConfig("anthropic", ""))
	require.NoError(t, err)
	assert.IsType(t, &anthropicClient{}, c)

	c, err = NewClient(llmConfig("openai", ""))
	require.NoError(t, err)
	assert.IsType(t, &openAIClient{}, c)

	_, err = NewClient(llmConfig("cohere", ""))
	assert.Error(t, err)

	cfg := llmConfig("anthropic", "")
	cfg.APIKey = ""
	_, err = NewClient(cfg)
	assert.Error(t, err)
}

func TestAnthropicComplete(t *testing.T) {
	var gotReq anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := anthropicResponse{}
		resp.Content = append(resp.Content, struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{Type: "text", Text: "1. Write the function"})
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewClient(llmConfig("anthropic", server.URL))
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "You're the Planner.", "User wants: add two numbers")
	require.NoError(t, err)
	assert.Equal(t, "1. Write the function", text)
	assert.Equal(t, "You're the Planner.", gotReq.System)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
}

func TestAnthropicRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		resp := anthropicResponse{}
		resp.Content = append(resp.Content, struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{Type: "text", Text: "recovered"})
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewClient(llmConfig("anthropic", server.URL))
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "prompt", "transcript")
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnthropicDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`))
	}))
	defer server.Close()

	client, err := NewClient(llmConfig("anthropic", server.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "prompt", "transcript")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
	assert.Equal(t, int32(1), calls.Load(), "client errors are terminal")
}

func TestOpenAIComplete(t *testing.T) {
	var gotReq openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		var resp openAIResponse
		resp.Choices = append(resp.Choices, struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		}{})
		resp.Choices[0].Message.Content = "def add(a, b):\n    return a + b"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewClient(llmConfig("openai", server.URL))
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "You're the Writer.", "plan")
	require.NoError(t, err)
	assert.Contains(t, text, "def add")
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(errors.New("plain")))
	assert.True(t, isRetryableError(&retryableError{err: errors.New("503")}))
}
