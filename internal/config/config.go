// Package config provides configuration loading for crewpipe.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration passed explicitly into the pipeline,
// sandbox and delivery constructors. There are no process-wide singletons.
type Config struct {
	LLM      LLMConfig      `koanf:"llm"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Sandbox  SandboxConfig  `koanf:"sandbox"`
	GitHub   GitHubConfig   `koanf:"github"`
	SMTP     SMTPConfig     `koanf:"smtp"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// LLMConfig configures the completion backend used for agent turns.
type LLMConfig struct {
	// Provider selects the backend: "anthropic" or "openai".
	Provider string `koanf:"provider"`

	// Model is the model identifier sent to the provider.
	Model string `koanf:"model"`

	// APIKey authenticates against the provider.
	APIKey Secret `koanf:"api_key"`

	// BaseURL overrides the provider endpoint (tests, proxies).
	BaseURL string `koanf:"base_url"`

	// Timeout bounds a single completion call.
	Timeout Duration `koanf:"timeout"`

	// MaxRetries bounds backoff retries on transient provider errors.
	MaxRetries int `koanf:"max_retries"`
}

// PipelineConfig configures the coordinator.
type PipelineConfig struct {
	// Cycles is the number of full passes through the five-role cycle.
	// MaxTurns is always 5 * Cycles.
	Cycles int `koanf:"cycles"`
}

// SandboxConfig configures untrusted-code execution.
type SandboxConfig struct {
	// Image is the container image the artifact runs in.
	Image string `koanf:"image"`

	// MemoryLimit is the hard memory ceiling passed to the runtime (e.g. "128m").
	MemoryLimit string `koanf:"memory_limit"`

	// Timeout is the wall-clock execution bound; the run is forcibly
	// terminated when it elapses.
	Timeout Duration `koanf:"timeout"`

	// DockerBinary is the container CLI to invoke.
	DockerBinary string `koanf:"docker_binary"`
}

// GitHubConfig configures the source-hosting collaborator.
type GitHubConfig struct {
	Token Secret `koanf:"token"`

	// Owner and Repo identify the target repository.
	Owner string `koanf:"owner"`
	Repo  string `koanf:"repo"`

	// BaseBranch is the branch pull requests target.
	BaseBranch string `koanf:"base_branch"`

	// CommitPath is the repository path the generated artifact is committed to.
	CommitPath string `koanf:"commit_path"`
}

// SMTPConfig configures the mail collaborator.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password Secret `koanf:"password"`

	// From is the sender address; defaults to Username.
	From string `koanf:"from"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// Default configuration values.
const (
	DefaultProvider     = "anthropic"
	DefaultModel        = "claude-3-5-sonnet-20241022"
	DefaultImage        = "python:3.10"
	DefaultMemoryLimit  = "128m"
	DefaultDockerBinary = "docker"
	DefaultBaseBranch   = "main"
	DefaultCommitPath   = "generated_code.py"
	DefaultSMTPPort     = 465
)

func applyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = DefaultProvider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = Duration(60 * time.Second)
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.Pipeline.Cycles == 0 {
		cfg.Pipeline.Cycles = 1
	}
	if cfg.Sandbox.Image == "" {
		cfg.Sandbox.Image = DefaultImage
	}
	if cfg.Sandbox.MemoryLimit == "" {
		cfg.Sandbox.MemoryLimit = DefaultMemoryLimit
	}
	if cfg.Sandbox.Timeout == 0 {
		cfg.Sandbox.Timeout = Duration(30 * time.Second)
	}
	if cfg.Sandbox.DockerBinary == "" {
		cfg.Sandbox.DockerBinary = DefaultDockerBinary
	}
	if cfg.GitHub.BaseBranch == "" {
		cfg.GitHub.BaseBranch = DefaultBaseBranch
	}
	if cfg.GitHub.CommitPath == "" {
		cfg.GitHub.CommitPath = DefaultCommitPath
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = DefaultSMTPPort
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks configuration consistency. It does not verify credentials;
// collaborator calls surface auth failures at run time.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm.provider must be anthropic or openai, got %q", c.LLM.Provider)
	}
	if !c.LLM.APIKey.IsSet() {
		return fmt.Errorf("llm.api_key is required")
	}
	if c.Pipeline.Cycles < 1 {
		return fmt.Errorf("pipeline.cycles must be at least 1, got %d", c.Pipeline.Cycles)
	}
	if c.Sandbox.Timeout.Duration() <= 0 {
		return fmt.Errorf("sandbox.timeout must be positive")
	}
	if !c.GitHub.Token.IsSet() {
		return fmt.Errorf("github.token is required")
	}
	if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
		return fmt.Errorf("github.owner and github.repo are required")
	}
	if c.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port out of range: %d", c.SMTP.Port)
	}
	return nil
}
