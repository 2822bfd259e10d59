package normalize

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/mhismail3/tron-sub010/internal/message"
)

// =============================================================================
// PROVIDER REQUESTS AND RESPONSES
// =============================================================================

// Request is a provider request body reduced to what the context manager
// tracks. Anthropic Messages and OpenAI chat bodies are both accepted, as is
// a bare message array.
type Request struct {
	Model    string
	System   string
	Messages []message.Message
	Tools    []message.ToolDefinition
}

// ParseRequest decodes body. Like the other normalizers it never fails;
// invalid input yields an empty Request.
func ParseRequest(body []byte) Request {
	req := Request{Messages: NormalizeMessages(body)}
	if !gjson.ValidBytes(body) {
		return req
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return req
	}

	req.Model = stripProviderPrefix(root.Get("model").String())
	req.System = decodeSystem(root.Get("system"))
	root.Get("tools").ForEach(func(_, t gjson.Result) bool {
		if def, ok := decodeTool(t); ok {
			req.Tools = append(req.Tools, def)
		}
		return true
	})
	return req
}

// stripProviderPrefix turns "openai/gpt-4o" into "gpt-4o".
func stripProviderPrefix(model string) string {
	if idx := strings.Index(model, "/"); idx != -1 {
		return model[idx+1:]
	}
	return model
}

// decodeSystem accepts a string or an array of text blocks.
func decodeSystem(v gjson.Result) string {
	if !v.IsArray() {
		return strings.TrimSpace(v.String())
	}
	var parts []string
	v.ForEach(func(_, b gjson.Result) bool {
		if text := strings.TrimSpace(b.Get("text").String()); text != "" {
			parts = append(parts, text)
		}
		return true
	})
	return strings.Join(parts, "\n\n")
}

// decodeTool reads an Anthropic tool (input_schema), an OpenAI function tool
// (function.parameters) or a canonical one (inputSchema).
func decodeTool(t gjson.Result) (message.ToolDefinition, bool) {
	if fn := t.Get("function"); fn.IsObject() {
		t = fn
	}
	name := t.Get("name").String()
	if name == "" {
		return message.ToolDefinition{}, false
	}
	def := message.ToolDefinition{Name: name, Description: t.Get("description").String()}
	for _, key := range []string{"inputSchema", "input_schema", "parameters"} {
		if schema := t.Get(key); schema.IsObject() {
			def.InputSchema = json.RawMessage(schema.Raw)
			break
		}
	}
	return def, true
}

// ResponseUsage reads the token usage from a provider response body. OpenAI
// and Gemini prompt counts already include cached tokens.
//
//   - Anthropic: usage.input_tokens, cache_read_input_tokens, cache_creation_input_tokens
//   - OpenAI:    usage.prompt_tokens, completion_tokens
//   - Gemini:    usageMetadata.promptTokenCount, candidatesTokenCount
//
// It returns nil when the body reports no usage.
func ResponseUsage(body []byte) *message.TokenUsage {
	if !gjson.ValidBytes(body) {
		return nil
	}
	root := gjson.ParseBytes(body)

	if meta := root.Get("usageMetadata"); meta.IsObject() {
		return &message.TokenUsage{
			InputTokens:  int(meta.Get("promptTokenCount").Int()),
			OutputTokens: int(meta.Get("candidatesTokenCount").Int()),
		}
	}

	u := root.Get("usage")
	if !u.IsObject() {
		return nil
	}
	if u.Get("prompt_tokens").Exists() {
		return &message.TokenUsage{
			InputTokens:  int(u.Get("prompt_tokens").Int()),
			OutputTokens: int(u.Get("completion_tokens").Int()),
		}
	}
	return decodeUsage(u)
}
