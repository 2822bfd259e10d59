// Package config loads and validates the tronctx configuration.
//
// DESIGN: Everything the CLI wires together (context manager, summarizer,
// session store, logging) is described by one YAML document. Values may
// reference the environment with ${VAR} or ${VAR:-default}; a few TRON_*
// variables override the file so operators can redirect output without
// editing it.
//
// FILES:
//   - config.go:     Root Config struct, Load(), Validate()
//   - monitoring.go: Logging and metrics settings
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mhismail3/tron-sub010/external"
	"github.com/mhismail3/tron-sub010/internal/contextmgr"
	"github.com/mhismail3/tron-sub010/internal/summarizer"
)

// ContextConfig is the context manager section.
type ContextConfig = contextmgr.Config

// Config is the root configuration.
type Config struct {
	Context    ContextConfig    `yaml:"context"`    // Model, thresholds, tool result budget
	Tokens     TokensConfig     `yaml:"tokens"`     // Token estimator
	Summarizer SummarizerConfig `yaml:"summarizer"` // How older turns are summarized
	Store      StoreConfig      `yaml:"store"`      // Session persistence
	Monitoring MonitoringConfig `yaml:"monitoring"` // Logging and metrics
}

// Estimator types.
const (
	EstimatorChars    = "chars"
	EstimatorTiktoken = "tiktoken"
)

// TokensConfig selects the token estimator.
type TokensConfig struct {
	Estimator string `yaml:"estimator"` // chars or tiktoken
	Encoding  string `yaml:"encoding"`  // BPE encoding for tiktoken (default cl100k_base)
}

// Summarizer types.
const (
	SummarizerKeyword = "keyword"
	SummarizerLLM     = "llm"
)

// SummarizerConfig selects and configures the compaction summarizer.
type SummarizerConfig struct {
	Type string               `yaml:"type"` // keyword or llm
	LLM  summarizer.LLMConfig `yaml:"llm"`

	// Region is the AWS region used when LLM.Provider is bedrock
	// (default external.DefaultBedrockRegion).
	Region string `yaml:"region"`
	// Fallback uses the keyword summarizer when the LLM call fails.
	Fallback bool `yaml:"fallback"`
}

// Store types.
const (
	StoreNone   = "none"
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// StoreConfig contains session store settings.
type StoreConfig struct {
	Type string        `yaml:"type"` // none, memory or sqlite
	Path string        `yaml:"path"` // Database file for sqlite
	TTL  time.Duration `yaml:"ttl"`  // Entry lifetime for memory
}

// ResolveProviderEndpoint returns the public API endpoint for provider.
// Unknown providers get the OpenAI-compatible endpoint.
func ResolveProviderEndpoint(provider, model string) string {
	switch provider {
	case external.ProviderAnthropic:
		return "https://api.anthropic.com/v1/messages"
	case external.ProviderGemini:
		return "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":generateContent"
	default:
		return "https://api.openai.com/v1/chat/completions"
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands ${VAR} and ${VAR:-default}. Unset variables
// without a default expand to the empty string.
func expandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes, applies env
// overrides and defaults, and validates the result.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides lets the environment win over the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TRON_LOG_LEVEL"); v != "" {
		c.Monitoring.LogLevel = v
	}
	if v := os.Getenv("TRON_STORE_PATH"); v != "" {
		c.Store.Path = v
		if c.Store.Type == "" || c.Store.Type == StoreNone {
			c.Store.Type = StoreSQLite
		}
	}
	if v := os.Getenv("TRON_EVENT_LOG"); v != "" {
		c.Monitoring.EventLogPath = v
	}
	if v := os.Getenv("TRON_MODEL"); v != "" {
		c.Context.Model = v
	}
}

func (c *Config) applyDefaults() {
	c.Context = c.Context.WithDefaults()
	if c.Tokens.Estimator == "" {
		c.Tokens.Estimator = EstimatorChars
	}
	if c.Summarizer.Type == "" {
		c.Summarizer.Type = SummarizerKeyword
	}
	if llm := &c.Summarizer.LLM; llm.Endpoint == "" && llm.Provider != "" {
		if llm.Provider == external.ProviderBedrock {
			llm.Endpoint = external.BedrockEndpoint(c.Summarizer.Region, llm.Model)
		} else {
			llm.Endpoint = ResolveProviderEndpoint(llm.Provider, llm.Model)
		}
	}
	if c.Store.Type == "" {
		c.Store.Type = StoreNone
	}
	if c.Store.Type == StoreMemory && c.Store.TTL == 0 {
		c.Store.TTL = 24 * time.Hour
	}
	if c.Monitoring.LogLevel == "" {
		c.Monitoring.LogLevel = "info"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Context.Validate(); err != nil {
		return fmt.Errorf("context: %w", err)
	}

	switch c.Tokens.Estimator {
	case EstimatorChars, EstimatorTiktoken:
	default:
		return fmt.Errorf("invalid tokens.estimator: %q (must be chars or tiktoken)", c.Tokens.Estimator)
	}

	switch c.Summarizer.Type {
	case SummarizerKeyword:
	case SummarizerLLM:
		if c.Summarizer.LLM.Model == "" {
			return fmt.Errorf("summarizer.llm.model is required")
		}
		if c.Summarizer.LLM.Endpoint == "" {
			return fmt.Errorf("summarizer.llm.endpoint is required (or set summarizer.llm.provider)")
		}
	default:
		return fmt.Errorf("invalid summarizer.type: %q (must be keyword or llm)", c.Summarizer.Type)
	}

	switch c.Store.Type {
	case StoreNone:
	case StoreMemory:
		if c.Store.TTL < 0 {
			return fmt.Errorf("store.ttl must not be negative")
		}
	case StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for sqlite")
		}
	default:
		return fmt.Errorf("invalid store.type: %q (must be none, memory or sqlite)", c.Store.Type)
	}

	return c.Monitoring.Validate()
}
