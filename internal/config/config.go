// Package config loads push.yaml, layered with environment variable
// overrides and CLI flag overrides (highest priority), grounded on the
// teacher's internal/config.Load (haasonsaas-nexus/internal/config/config.go):
// read file, os.ExpandEnv, strict YAML decode, env overrides, then defaults.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is push's full configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Loop     LoopConfig     `yaml:"loop"`
	Session  SessionConfig  `yaml:"session"`
	Logging  LoggingConfig  `yaml:"logging"`
	Auditor  AuditorConfig  `yaml:"auditor"`
}

// ProviderConfig selects and configures the LLM backend.
type ProviderConfig struct {
	Name    string `yaml:"name"`    // "anthropic" (default), "ollama", "mistral", "openrouter"
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// SandboxConfig addresses the remote sandbox RPC surface.
type SandboxConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoopConfig mirrors internal/agentloop.LoopConfig's tunables.
type LoopConfig struct {
	MaxRounds    int           `yaml:"max_rounds"`
	RoundTimeout time.Duration `yaml:"round_timeout"`
}

// SessionConfig configures session persistence (§6).
type SessionConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// AuditorConfig configures the prepare_commit safety gate (§4.4).
type AuditorConfig struct {
	Model string `yaml:"model"`
}

// Load reads path, expands ${VAR} references, strictly decodes the YAML,
// applies PUSH_* environment overrides, then fills defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			expanded := os.ExpandEnv(string(data))
			decoder := yaml.NewDecoder(strings.NewReader(expanded))
			decoder.KnownFields(true)
			if err := decoder.Decode(&cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
			if err := decoder.Decode(new(struct{})); err != io.EOF {
				return nil, fmt.Errorf("parse config: expected single document")
			}
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PUSH_PROVIDER")); v != "" {
		cfg.Provider.Name = v
	}
	if v := strings.TrimSpace(os.Getenv("PUSH_MODEL")); v != "" {
		cfg.Provider.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("PUSH_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("PUSH_SANDBOX_URL")); v != "" {
		cfg.Sandbox.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PUSH_SESSION_DIR")); v != "" {
		cfg.Session.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("PUSH_MAX_ROUNDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Loop.MaxRounds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("PUSH_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("PUSH_AUDITOR_MODEL")); v != "" {
		cfg.Auditor.Model = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "anthropic"
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Sandbox.Timeout == 0 {
		cfg.Sandbox.Timeout = 30 * time.Second
	}
	if cfg.Loop.MaxRounds == 0 {
		cfg.Loop.MaxRounds = 8
	}
	cfg.Loop.MaxRounds = ClampMaxRounds(cfg.Loop.MaxRounds)
	if cfg.Loop.RoundTimeout == 0 {
		cfg.Loop.RoundTimeout = 180 * time.Second
	}
	if cfg.Session.Dir == "" {
		cfg.Session.Dir = "./.push/sessions"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// ClampMaxRounds enforces the CLI's [1, 30] bound on --max-rounds (§6).
func ClampMaxRounds(n int) int {
	if n < 1 {
		return 1
	}
	if n > 30 {
		return 30
	}
	return n
}
