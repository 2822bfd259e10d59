// Package external is the thin HTTP client used to call LLM providers for
// conversation summarization.
//
// DESIGN: One entry point, CallLLM, that speaks the Anthropic Messages,
// OpenAI Chat Completions, Gemini generateContent and Bedrock (Anthropic on
// AWS, SigV4 signed) APIs. Requests are typed structs; responses are read
// with gjson so a provider adding fields never breaks parsing.
package external

// =============================================================================
// REQUEST TYPES
// =============================================================================

// AnthropicRequest is the Messages API request body.
type AnthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version,omitempty"`
	Model            string             `json:"model,omitempty"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []AnthropicMessage `json:"messages"`
	Temperature      float64            `json:"temperature"`
}

// AnthropicMessage is one turn of an AnthropicRequest.
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIChatRequest is the Chat Completions request body.
type OpenAIChatRequest struct {
	Model               string          `json:"model"`
	Messages            []OpenAIMessage `json:"messages"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	ResponseFormat      *OpenAIFormat   `json:"response_format,omitempty"`
}

// OpenAIMessage is one turn of an OpenAIChatRequest.
type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIFormat selects structured output.
type OpenAIFormat struct {
	Type string `json:"type"`
}

// GeminiRequest is the generateContent request body.
type GeminiRequest struct {
	SystemInstruction *GeminiContent          `json:"systemInstruction,omitempty"`
	Contents          []GeminiContent         `json:"contents"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiContent is a role plus parts.
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart is a text part.
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiGenerationConfig controls sampling.
type GeminiGenerationConfig struct {
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	Temperature      float64 `json:"temperature"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}
