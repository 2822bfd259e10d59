package models_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/mhismail3/tron-sub010/internal/models"
)

func TestLookup_KnownModels(t *testing.T) {
	r := models.NewRegistry(zerolog.Nop())

	tests := []struct {
		id       string
		window   int
		provider models.Provider
	}{
		{"claude-opus-4-6", 200000, models.ProviderAnthropic},
		{"gpt-4o", 128000, models.ProviderOpenAI},
		{"gemini-2.5-pro", 1048576, models.ProviderGoogle},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			info := r.Lookup(tt.id)
			assert.True(t, info.Known)
			assert.Equal(t, tt.id, info.ID)
			assert.Equal(t, tt.window, info.ContextWindow)
			assert.Equal(t, tt.provider, info.Provider)
		})
	}
}

func TestLookup_UnknownModelFallsBackWithWarning(t *testing.T) {
	var buf bytes.Buffer
	r := models.NewRegistry(zerolog.New(&buf))

	info := r.Lookup("claude-future-9")

	assert.False(t, info.Known)
	assert.Equal(t, models.DefaultContextWindow, info.ContextWindow)
	assert.Equal(t, models.ProviderAnthropic, info.Provider)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "claude-future-9")
}

func TestRegister_OverridesAndDetectsProvider(t *testing.T) {
	r := models.NewRegistry(zerolog.Nop())
	r.Register(models.Info{ID: "gpt-custom", ContextWindow: 32000})

	info := r.Lookup("gpt-custom")
	assert.True(t, info.Known)
	assert.Equal(t, 32000, info.ContextWindow)
	assert.Equal(t, models.ProviderOpenAI, info.Provider)
}

func TestDetectProvider(t *testing.T) {
	assert.Equal(t, models.ProviderAnthropic, models.DetectProvider("Claude-3"))
	assert.Equal(t, models.ProviderOpenAI, models.DetectProvider("o3-mini"))
	assert.Equal(t, models.ProviderGoogle, models.DetectProvider("gemini-pro"))
	assert.Equal(t, models.ProviderUnknown, models.DetectProvider("llama3"))
}
