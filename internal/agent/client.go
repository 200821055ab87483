package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/crewpipe/crewpipe/internal/config"
)

// CompletionClient is the agent-turn collaborator: one synchronous call per
// turn, free text in, free text out. The pipeline assumes no semantic
// stability between calls.
type CompletionClient interface {
	// Complete sends a role instruction plus the serialized transcript and
	// returns the agent's turn text.
	Complete(ctx context.Context, systemPrompt, transcript string) (string, error)
}

// Default completion client values.
const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultMaxTokens        = 1024
	defaultTimeout          = 60 * time.Second
	defaultMaxRetries       = 3
	defaultBaseBackoff      = 1 * time.Second
)

// Rate limiter defaults: 50 requests per minute for both providers.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// NewClient builds a CompletionClient from config.
func NewClient(cfg config.LLMConfig) (CompletionClient, error) {
	switch cfg.Provider {
	case "anthropic":
		return newAnthropicClient(cfg)
	case "openai":
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.Provider)
	}
}

// retryableError marks errors worth retrying with backoff.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryableError reports whether the error is transient.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*retryableError)
	return ok
}
