// Package config loads the gateway configuration from ~/.gptcli.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Config defines how gpt-cli connects to an OpenAI-compatible gateway.
type Config struct {
	// APIBaseURL is the base URL for OpenAI-compatible chat completions.
	APIBaseURL string `json:"api_base_url"`
	// APIKey is the bearer token used for Authorization. Falls back to
	// the OPENAI_API_KEY environment variable when empty.
	APIKey string `json:"api_key"`
	// TimeoutMS configures request timeout in milliseconds.
	TimeoutMS int `json:"timeout_ms"`
	// DefaultModel is used when no CLI override is provided.
	DefaultModel string `json:"default_model"`
	// ModelAliases maps friendly names (e.g., 4o) to provider model ids.
	ModelAliases map[string]string `json:"model_aliases"`
	// Markdown toggles markdown rendering of assistant output. Defaults
	// to on when absent.
	Markdown *bool `json:"markdown"`
}

var (
	// ErrConfigMissing is returned when the config file does not exist.
	ErrConfigMissing = errors.New("config missing")
	// ErrConfigInvalid is returned when required fields are missing.
	ErrConfigInvalid = errors.New("config invalid")
)

// Path returns the default config path.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".gptcli", "config.json"), nil
}

// Load reads and validates the config file at path, or at the default
// location when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = Path()
		if err != nil {
			return nil, err
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigMissing
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.APIBaseURL == "" || cfg.DefaultModel == "" {
		return nil, ErrConfigInvalid
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if cfg.TimeoutMS <= 0 {
		cfg.TimeoutMS = 600000
	}

	if cfg.ModelAliases == nil {
		cfg.ModelAliases = make(map[string]string)
	}

	return &cfg, nil
}

// MarkdownEnabled reports whether markdown rendering is configured on.
func (c *Config) MarkdownEnabled() bool {
	if c.Markdown == nil {
		return true
	}
	return *c.Markdown
}

// ResolveModel returns the model to use for a turn. A CLI or in-chat
// override takes precedence over the configured default, and aliases
// resolve to provider model ids in either case.
func (c *Config) ResolveModel(override string) string {
	if override == "" {
		return c.aliasModel(c.DefaultModel)
	}
	return c.aliasModel(override)
}

func (c *Config) aliasModel(name string) string {
	if aliased, ok := c.ModelAliases[name]; ok {
		return aliased
	}
	return name
}
