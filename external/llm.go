package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// DefaultTimeout for LLM API calls.
	DefaultTimeout = 60 * time.Second

	// maxResponseSize prevents OOM on unexpectedly large API responses (10MB).
	maxResponseSize = 10 * 1024 * 1024

	// maxErrorBodyLen limits error body in error messages to avoid log bloat.
	maxErrorBodyLen = 500

	anthropicVersion = "2023-06-01"
	bedrockVersion   = "bedrock-2023-05-31"
)

// Provider names accepted by CallLLMParams.Provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderBedrock   = "bedrock"
)

// ErrEmptyResponse is returned when the provider answered without text.
var ErrEmptyResponse = errors.New("empty LLM response")

// CallLLMParams contains parameters for calling an LLM provider.
type CallLLMParams struct {
	// Provider overrides detection from Endpoint.
	Provider string

	Endpoint     string
	APIKey       string
	BearerToken  string // Authorization: Bearer, Anthropic OAuth only
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Timeout      time.Duration

	// JSONOutput asks providers that support it for a JSON object response.
	JSONOutput bool

	ExtraHeaders map[string]string

	// HTTPClient overrides the default client. Bedrock needs one built by
	// NewBedrockClient so requests are SigV4 signed.
	HTTPClient *http.Client
}

func (p *CallLLMParams) validate() error {
	if p.Endpoint == "" {
		return fmt.Errorf("endpoint required")
	}
	if p.APIKey == "" && p.BearerToken == "" && p.Provider != ProviderBedrock {
		return fmt.Errorf("api key or bearer token required")
	}
	if p.Model == "" {
		return fmt.Errorf("model required")
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultTimeout
	}
	return nil
}

// CallLLMResult contains the response from an LLM call.
type CallLLMResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Provider     string
}

// CallLLM sends one system+user prompt pair and returns the text answer.
// The caller's context bounds the call in addition to params.Timeout.
func CallLLM(ctx context.Context, params CallLLMParams) (*CallLLMResult, error) {
	if params.Provider == "" {
		params.Provider = DetectProvider(params.Endpoint)
	}
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("invalid CallLLM params: %w", err)
	}
	provider := params.Provider

	body, err := buildRequestBody(provider, params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", provider, err)
	}

	ctx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, params.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	setAuthHeaders(req, provider, params.APIKey, params.BearerToken)
	for k, v := range params.ExtraHeaders {
		req.Header.Set(k, v)
	}

	client := params.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", provider, err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody := string(respBody)
		if len(errBody) > maxErrorBodyLen {
			errBody = errBody[:maxErrorBodyLen] + "... (truncated)"
		}
		return nil, fmt.Errorf("%s API returned status %d: %s", provider, resp.StatusCode, errBody)
	}

	return parseResponse(provider, respBody)
}

// DetectProvider infers the LLM provider from an endpoint URL.
func DetectProvider(endpoint string) string {
	switch {
	case strings.Contains(endpoint, "bedrock"):
		return ProviderBedrock
	case strings.Contains(endpoint, "anthropic"):
		return ProviderAnthropic
	case strings.Contains(endpoint, "generativelanguage.googleapis.com"):
		return ProviderGemini
	default:
		return ProviderOpenAI
	}
}

func setAuthHeaders(req *http.Request, provider, apiKey, bearerToken string) {
	switch provider {
	case ProviderAnthropic:
		if apiKey != "" {
			req.Header.Set("x-api-key", apiKey)
		} else if bearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+bearerToken)
		}
		req.Header.Set("anthropic-version", anthropicVersion)
	case ProviderBedrock:
		// signed by the transport
	case ProviderGemini:
		req.Header.Set("x-goog-api-key", apiKey)
	default:
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

// Temperature is 0 wherever the API accepts it; OpenAI reasoning models
// reject the field so it is omitted there.
func buildRequestBody(provider string, params CallLLMParams) ([]byte, error) {
	switch provider {
	case ProviderAnthropic, ProviderBedrock:
		req := &AnthropicRequest{
			Model:     params.Model,
			MaxTokens: params.MaxTokens,
			System:    params.SystemPrompt,
			Messages:  []AnthropicMessage{{Role: "user", Content: params.UserPrompt}},
		}
		if provider == ProviderBedrock {
			// Bedrock takes the model from the URL.
			req.Model = ""
			req.AnthropicVersion = bedrockVersion
		}
		return json.Marshal(req)

	case ProviderGemini:
		cfg := &GeminiGenerationConfig{MaxOutputTokens: params.MaxTokens}
		if params.JSONOutput {
			cfg.ResponseMIMEType = "application/json"
		}
		return json.Marshal(&GeminiRequest{
			SystemInstruction: &GeminiContent{Parts: []GeminiPart{{Text: params.SystemPrompt}}},
			Contents:          []GeminiContent{{Role: "user", Parts: []GeminiPart{{Text: params.UserPrompt}}}},
			GenerationConfig:  cfg,
		})

	default:
		req := &OpenAIChatRequest{
			Model: params.Model,
			Messages: []OpenAIMessage{
				{Role: "system", Content: params.SystemPrompt},
				{Role: "user", Content: params.UserPrompt},
			},
			MaxCompletionTokens: params.MaxTokens,
		}
		if params.JSONOutput {
			req.ResponseFormat = &OpenAIFormat{Type: "json_object"}
		}
		return json.Marshal(req)
	}
}

func parseResponse(provider string, body []byte) (*CallLLMResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("failed to parse %s response: invalid JSON", provider)
	}
	root := gjson.ParseBytes(body)
	result := &CallLLMResult{Provider: provider}

	switch provider {
	case ProviderAnthropic, ProviderBedrock:
		result.Content = joinTexts(root.Get(`content.#(type=="text")#.text`))
		result.InputTokens = int(root.Get("usage.input_tokens").Int())
		result.OutputTokens = int(root.Get("usage.output_tokens").Int())
	case ProviderGemini:
		result.Content = joinTexts(root.Get("candidates.0.content.parts.#.text"))
		result.InputTokens = int(root.Get("usageMetadata.promptTokenCount").Int())
		result.OutputTokens = int(root.Get("usageMetadata.candidatesTokenCount").Int())
	default:
		result.Content = root.Get("choices.0.message.content").String()
		result.InputTokens = int(root.Get("usage.prompt_tokens").Int())
		result.OutputTokens = int(root.Get("usage.completion_tokens").Int())
	}

	if strings.TrimSpace(result.Content) == "" {
		return nil, fmt.Errorf("%s: %w", provider, ErrEmptyResponse)
	}
	return result, nil
}

func joinTexts(arr gjson.Result) string {
	var parts []string
	for _, t := range arr.Array() {
		if s := t.String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
