package summarizer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mhismail3/tron-sub010/external"
	"github.com/mhismail3/tron-sub010/internal/message"
)

// SystemPrompt instructs the model to answer with the Result JSON shape.
const SystemPrompt = `You summarize the earlier part of a conversation between a user and a coding assistant so the assistant can continue without the original messages.

Respond with a single JSON object and nothing else:
{
  "narrative": "a few paragraphs describing what happened, in past tense",
  "extractedData": {
    "currentGoal": "",
    "completedSteps": [],
    "pendingTasks": [],
    "keyDecisions": [{"decision": "", "reason": ""}],
    "filesModified": [],
    "topicsDiscussed": [],
    "userPreferences": [],
    "importantContext": []
  }
}`

const defaultSummaryMaxTokens = 4096

// LLMConfig configures an LLMSummarizer.
type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	Endpoint  string        `yaml:"endpoint"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LLMSummarizer asks a model for a summary through external.CallLLM.
type LLMSummarizer struct {
	cfg    LLMConfig
	client *http.Client
	logger zerolog.Logger
}

// LLMOption configures an LLMSummarizer.
type LLMOption func(*LLMSummarizer)

// WithHTTPClient sets the client used for calls. Bedrock needs the signing
// client from external.NewBedrockClient.
func WithHTTPClient(c *http.Client) LLMOption {
	return func(s *LLMSummarizer) { s.client = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) LLMOption {
	return func(s *LLMSummarizer) { s.logger = l }
}

// NewLLMSummarizer returns a summarizer backed by the configured model.
func NewLLMSummarizer(cfg LLMConfig, opts ...LLMOption) *LLMSummarizer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultSummaryMaxTokens
	}
	s := &LLMSummarizer{cfg: cfg, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize implements Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, msgs []message.Message) (*Result, error) {
	transcript := SerializeMessages(msgs)
	start := time.Now()

	resp, err := external.CallLLM(ctx, external.CallLLMParams{
		Provider:     s.cfg.Provider,
		Endpoint:     s.cfg.Endpoint,
		APIKey:       s.cfg.APIKey,
		Model:        s.cfg.Model,
		SystemPrompt: SystemPrompt,
		UserPrompt:   "Summarize this conversation:\n\n" + transcript,
		MaxTokens:    s.cfg.MaxTokens,
		Timeout:      s.cfg.Timeout,
		JSONOutput:   true,
		HTTPClient:   s.client,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize %d messages: %w", len(msgs), err)
	}

	res, err := ParseResponse(resp.Content)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("provider", resp.Provider).
			Int("response_len", len(resp.Content)).
			Msg("summarizer: unusable model response")
		return nil, err
	}

	s.logger.Debug().
		Str("provider", resp.Provider).
		Int("messages", len(msgs)).
		Int("transcript_chars", len(transcript)).
		Int("input_tokens", resp.InputTokens).
		Int("output_tokens", resp.OutputTokens).
		Dur("latency", time.Since(start)).
		Msg("summarizer: summary produced")
	return res, nil
}

// Fallback tries Primary and, on any error other than cancellation, Secondary.
type Fallback struct {
	Primary   Summarizer
	Secondary Summarizer
	Logger    zerolog.Logger
}

// WithFallback wraps primary so failures fall back to secondary.
func WithFallback(primary, secondary Summarizer) *Fallback {
	return &Fallback{Primary: primary, Secondary: secondary, Logger: zerolog.Nop()}
}

// Summarize implements Summarizer.
func (f *Fallback) Summarize(ctx context.Context, msgs []message.Message) (*Result, error) {
	res, err := f.Primary.Summarize(ctx, msgs)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	f.Logger.Warn().Err(err).Msg("summarizer: primary failed, using fallback")
	return f.Secondary.Summarize(ctx, msgs)
}
