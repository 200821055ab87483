package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.LLM.APIKey = "sk-test"
	cfg.GitHub.Token = "ghp-test"
	cfg.GitHub.Owner = "octocat"
	cfg.GitHub.Repo = "hello-world"
	cfg.SMTP.Host = "smtp.example.com"
	cfg.SMTP.Username = "bot@example.com"
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, DefaultModel, cfg.LLM.Model)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout.Duration())
	assert.Equal(t, 1, cfg.Pipeline.Cycles)
	assert.Equal(t, "python:3.10", cfg.Sandbox.Image)
	assert.Equal(t, "128m", cfg.Sandbox.MemoryLimit)
	assert.Equal(t, 30*time.Second, cfg.Sandbox.Timeout.Duration())
	assert.Equal(t, "main", cfg.GitHub.BaseBranch)
	assert.Equal(t, "generated_code.py", cfg.GitHub.CommitPath)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestApplyDefaultsDoesNotOverride(t *testing.T) {
	cfg := &Config{}
	cfg.LLM.Provider = "openai"
	cfg.Pipeline.Cycles = 3
	cfg.SMTP.Username = "sender@example.com"
	applyDefaults(cfg)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Pipeline.Cycles)
	assert.Equal(t, "sender@example.com", cfg.SMTP.From, "From defaults to Username")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad provider", func(c *Config) { c.LLM.Provider = "cohere" }, "llm.provider"},
		{"missing api key", func(c *Config) { c.LLM.APIKey = "" }, "llm.api_key"},
		{"zero cycles", func(c *Config) { c.Pipeline.Cycles = 0 }, "pipeline.cycles"},
		{"zero sandbox timeout", func(c *Config) { c.Sandbox.Timeout = 0 }, "sandbox.timeout"},
		{"missing token", func(c *Config) { c.GitHub.Token = "" }, "github.token"},
		{"missing repo", func(c *Config) { c.GitHub.Repo = "" }, "github.owner"},
		{"missing smtp host", func(c *Config) { c.SMTP.Host = "" }, "smtp.host"},
		{"smtp port out of range", func(c *Config) { c.SMTP.Port = 70000 }, "smtp.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("super-secret-token")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "super-secret-token", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(data))

	empty := Secret("")
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")), "negative durations rejected")
	assert.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}
