// Package models maps model identifiers to their context budget.
//
// DESIGN: Static table of known models plus prefix rules for provider
// detection. Unknown ids are not an error: they get DefaultContextWindow, the
// most permissive common budget, and a warning is logged.
package models

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultContextWindow is the budget for models missing from the registry.
const DefaultContextWindow = 200000

// Provider identifies the API family of a model.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderUnknown   Provider = "unknown"
)

// Info describes one model.
type Info struct {
	ID            string   `json:"id" yaml:"id"`
	ContextWindow int      `json:"contextWindow" yaml:"context_window"`
	MaxOutput     int      `json:"maxOutput,omitempty" yaml:"max_output"`
	Provider      Provider `json:"provider" yaml:"provider"`
	Known         bool     `json:"known" yaml:"-"`
}

// =============================================================================
// MODEL TABLE
// =============================================================================

// DefaultModels contains known model context windows.
var DefaultModels = map[string]Info{
	// Anthropic
	"claude-opus-4-6":            {ContextWindow: 200000, MaxOutput: 128000, Provider: ProviderAnthropic},
	"claude-opus-4-5":            {ContextWindow: 200000, MaxOutput: 64000, Provider: ProviderAnthropic},
	"claude-sonnet-4-5":          {ContextWindow: 200000, MaxOutput: 64000, Provider: ProviderAnthropic},
	"claude-sonnet-4-5-20250929": {ContextWindow: 200000, MaxOutput: 64000, Provider: ProviderAnthropic},
	"claude-haiku-4-5":           {ContextWindow: 200000, MaxOutput: 64000, Provider: ProviderAnthropic},
	"claude-haiku-4-5-20251001":  {ContextWindow: 200000, MaxOutput: 64000, Provider: ProviderAnthropic},

	// OpenAI
	"gpt-4o":      {ContextWindow: 128000, MaxOutput: 16384, Provider: ProviderOpenAI},
	"gpt-4o-mini": {ContextWindow: 128000, MaxOutput: 16384, Provider: ProviderOpenAI},
	"gpt-4-turbo": {ContextWindow: 128000, MaxOutput: 4096, Provider: ProviderOpenAI},
	"gpt-4.1":     {ContextWindow: 1047576, MaxOutput: 32768, Provider: ProviderOpenAI},
	"gpt-5":       {ContextWindow: 400000, MaxOutput: 128000, Provider: ProviderOpenAI},
	"o3":          {ContextWindow: 200000, MaxOutput: 100000, Provider: ProviderOpenAI},

	// Google
	"gemini-2.5-pro":   {ContextWindow: 1048576, MaxOutput: 65536, Provider: ProviderGoogle},
	"gemini-2.5-flash": {ContextWindow: 1048576, MaxOutput: 65536, Provider: ProviderGoogle},

	// Test models
	"test-model-small": {ContextWindow: 10000, MaxOutput: 2000, Provider: ProviderUnknown},
	"test-model-tiny":  {ContextWindow: 2000, MaxOutput: 500, Provider: ProviderUnknown},
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry resolves model ids. The zero value is not usable; use NewRegistry.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Info
	logger zerolog.Logger
}

// NewRegistry returns a registry seeded with DefaultModels.
func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{models: make(map[string]Info, len(DefaultModels)), logger: logger}
	for id, info := range DefaultModels {
		r.models[id] = info
	}
	return r
}

// Register adds or replaces a model entry.
func (r *Registry) Register(info Info) {
	if info.Provider == "" {
		info.Provider = DetectProvider(info.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[info.ID] = info
}

// Lookup returns the entry for modelID. Unknown ids fall back to
// DefaultContextWindow with a provider guessed from the id prefix.
func (r *Registry) Lookup(modelID string) Info {
	r.mu.RLock()
	info, ok := r.models[modelID]
	r.mu.RUnlock()

	if ok {
		info.ID = modelID
		info.Known = true
		return info
	}

	provider := DetectProvider(modelID)
	r.logger.Warn().
		Str("model", modelID).
		Str("provider", string(provider)).
		Int("context_window", DefaultContextWindow).
		Msg("unknown model, using default context window")

	return Info{ID: modelID, ContextWindow: DefaultContextWindow, Provider: provider}
}

// DetectProvider guesses the provider from a model id prefix.
func DetectProvider(modelID string) Provider {
	id := strings.ToLower(modelID)
	switch {
	case strings.HasPrefix(id, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(id, "gpt"), strings.HasPrefix(id, "o1"), strings.HasPrefix(id, "o3"), strings.HasPrefix(id, "o4"):
		return ProviderOpenAI
	case strings.HasPrefix(id, "gemini"):
		return ProviderGoogle
	}
	return ProviderUnknown
}
