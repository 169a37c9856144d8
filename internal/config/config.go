// Package config loads doorstep configuration from a YAML file with
// environment variable overrides for secrets and provider selection.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all doorstep configuration.
type Config struct {
	// Server settings for the HTTP transport.
	Server ServerConfig `yaml:"server"`

	// LLM configures the text completion provider.
	LLM LLMConfig `yaml:"llm"`

	// Store configures the document store.
	Store StoreConfig `yaml:"store"`

	// Router configures action classification.
	Router RouterConfig `yaml:"router"`

	// Tools configures tool execution.
	Tools ToolsConfig `yaml:"tools"`

	// Verification configures the fact-checking gate.
	Verification VerificationConfig `yaml:"verification"`

	// Newsletter configures lifecycle behaviour.
	Newsletter NewsletterConfig `yaml:"newsletter"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// RouterConfig configures the reasoning router.
type RouterConfig struct {
	// ConfidenceThreshold gates destructive actions; decisions below it
	// degrade to a chat response.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// ToolsConfig configures the tool executor.
type ToolsConfig struct {
	// Timeout bounds a single tool invocation.
	Timeout string `yaml:"timeout"`
}

// VerificationConfig configures the verification gate.
type VerificationConfig struct {
	// SearchAttempts is how many source-search rounds an event gets
	// before it is kept as unverified.
	SearchAttempts int `yaml:"search_attempts"`
	// FetchTimeout bounds one source fetch.
	FetchTimeout string `yaml:"fetch_timeout"`
}

// NewsletterConfig configures the lifecycle manager.
type NewsletterConfig struct {
	// UpdateRetries is the compare-and-swap retry budget for applyUpdate.
	UpdateRetries int `yaml:"update_retries"`
	// GenerationTimeout bounds one background generation job.
	GenerationTimeout string `yaml:"generation_timeout"`
	// MinEvents is the threshold below which event search widens its
	// radius and retries.
	MinEvents int `yaml:"min_events"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o",
			Timeout:  "60s",
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    ".doorstep/doorstep.db",
		},
		Router:       RouterConfig{ConfidenceThreshold: 0.5},
		Tools:        ToolsConfig{Timeout: "30s"},
		Verification: VerificationConfig{SearchAttempts: 2, FetchTimeout: "15s"},
		Newsletter: NewsletterConfig{
			UpdateRetries:     3,
			GenerationTimeout: "3m",
			MinEvents:         5,
		},
	}
}

// Load reads the YAML file at path, falling back to defaults when the file
// does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults stand.
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets API keys flow in from the environment without
// living in the config file. GEMINI_API_KEY takes precedence when both
// are set and no provider was chosen explicitly.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "openai"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if addr := os.Getenv("DOORSTEP_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if path := os.Getenv("DOORSTEP_DB"); path != "" {
		c.Store.Path = path
		c.Store.Backend = "sqlite"
	}
}

func (c *Config) validate() error {
	if c.Router.ConfidenceThreshold < 0 || c.Router.ConfidenceThreshold > 1 {
		return fmt.Errorf("router.confidence_threshold must be in [0,1], got %v", c.Router.ConfidenceThreshold)
	}
	if c.Verification.SearchAttempts < 1 {
		return fmt.Errorf("verification.search_attempts must be at least 1, got %d", c.Verification.SearchAttempts)
	}
	if c.Newsletter.UpdateRetries < 1 {
		return fmt.Errorf("newsletter.update_retries must be at least 1, got %d", c.Newsletter.UpdateRetries)
	}
	switch c.Store.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("store.backend must be sqlite or memory, got %q", c.Store.Backend)
	}
	return nil
}

// Duration parses a config duration string with a fallback.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
