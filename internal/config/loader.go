package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load loads configuration from a YAML file, then overrides with environment
// variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (LLM_API_KEY, GITHUB_TOKEN, SANDBOX_TIMEOUT, ...)
//  2. YAML config file (~/.config/crewpipe/config.yaml by default)
//  3. Hardcoded defaults
//
// Environment variables map section-first: the part before the first
// underscore is the section, the rest is the field name:
//
//	LLM_API_KEY      -> llm.api_key
//	GITHUB_TOKEN     -> github.token
//	SANDBOX_TIMEOUT  -> sandbox.timeout
//	SMTP_PASSWORD    -> smtp.password
//
// The config file must be owner-readable only (0600); world-readable files
// are rejected because the file carries credentials. The merged result is
// validated before it is returned; an incomplete configuration never reaches
// a run.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "crewpipe", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate through the descriptor to avoid a TOCTOU race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// knownSections limits environment mapping to crewpipe's own config sections
// so unrelated variables (PATH, HOME, ...) never leak into the tree.
var knownSections = map[string]bool{
	"llm":      true,
	"pipeline": true,
	"sandbox":  true,
	"github":   true,
	"smtp":     true,
	"logging":  true,
}

// envTransform maps SECTION_FIELD_NAME to section.field_name.
// Variables outside known sections map to an empty key and are dropped.
func envTransform(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) != 2 || !knownSections[parts[0]] {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// validateFileProperties rejects oversized or group/world-readable files.
func validateFileProperties(info os.FileInfo) error {
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	// Permission bits are not meaningful on Windows.
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			return fmt.Errorf("config file has insecure permissions %04o, want 0600", perm)
		}
	}
	return nil
}
