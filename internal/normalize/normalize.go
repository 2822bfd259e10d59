// Package normalize maps provider wire payloads onto the canonical message
// model.
//
// DESIGN: Boundary adapter between two field-naming dialects:
//   - wire (snake_case):     tool_use_id, is_error, input, stop_reason
//   - internal (camelCase):  toolCallId, isError, arguments, stopReason
//
// When a block carries both, the internal field wins. Every function here is
// total: malformed or missing fields fall back to defaults, nothing panics and
// nothing returns an error. Parsing goes through gjson so partial or odd
// payloads can be inspected without a strict schema.
package normalize

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/mhismail3/tron-sub010/internal/message"
)

// =============================================================================
// TYPE GUARDS
// =============================================================================

// IsToolResultBlock reports whether block looks like a tool result in either dialect.
func IsToolResultBlock(block gjson.Result) bool {
	if !block.IsObject() {
		return false
	}
	if block.Get("type").String() == string(message.BlockToolResult) {
		return true
	}
	return block.Get("tool_use_id").Exists() || block.Get("toolCallId").Exists()
}

// IsToolUseBlock reports whether block looks like a tool invocation in either dialect.
func IsToolUseBlock(block gjson.Result) bool {
	if !block.IsObject() {
		return false
	}
	if block.Get("type").String() == string(message.BlockToolUse) {
		return true
	}
	hasArgs := block.Get("input").Exists() || block.Get("arguments").Exists()
	return hasArgs && block.Get("id").Exists() && block.Get("name").Exists()
}

// =============================================================================
// BLOCK NORMALIZERS
// =============================================================================

// NormalizeToolResultBlock returns the canonical tool_result block for block.
// isError defaults to false when neither dialect sets it.
func NormalizeToolResultBlock(block gjson.Result) message.ContentBlock {
	id := firstString(block.Get("toolCallId"), block.Get("tool_use_id"))
	isError := firstBool(block.Get("isError"), block.Get("is_error"))
	content := decodeContent(block.Get("content"))
	return message.ToolResultBlock(id, content, isError)
}

// NormalizeToolUseBlock returns the canonical tool_use block for block.
// Arguments default to an empty map.
func NormalizeToolUseBlock(block gjson.Result) message.ContentBlock {
	args := block.Get("arguments")
	if !args.Exists() || args.Type == gjson.Null {
		args = block.Get("input")
	}
	return message.ToolUseBlock(block.Get("id").String(), block.Get("name").String(), decodeArguments(args))
}

// NormalizeMessageContent maps every element of blocks to its canonical form,
// preserving order and count. A non-array input yields an empty slice.
func NormalizeMessageContent(blocks gjson.Result) []message.ContentBlock {
	out := []message.ContentBlock{}
	if !blocks.IsArray() {
		return out
	}
	blocks.ForEach(func(_, b gjson.Result) bool {
		out = append(out, normalizeBlock(b))
		return true
	})
	return out
}

func normalizeBlock(b gjson.Result) message.ContentBlock {
	switch {
	case IsToolResultBlock(b):
		return NormalizeToolResultBlock(b)
	case IsToolUseBlock(b):
		return NormalizeToolUseBlock(b)
	}

	switch message.BlockType(b.Get("type").String()) {
	case message.BlockText:
		return message.TextBlock(b.Get("text").String())
	case message.BlockThinking:
		return message.ThinkingBlock(b.Get("thinking").String(), b.Get("signature").String())
	case message.BlockImage:
		return decodeImage(b)
	}

	// Unmodelled blocks pass through untouched.
	return message.ContentBlock{
		Type: message.BlockType(b.Get("type").String()),
		Raw:  json.RawMessage(b.Raw),
	}
}

// decodeImage accepts the internal {data, mimeType} form and the Anthropic
// {source:{type, media_type, data|url}} form.
func decodeImage(b gjson.Result) message.ContentBlock {
	src := b.Get("source")
	return message.ContentBlock{
		Type:     message.BlockImage,
		Data:     firstString(b.Get("data"), src.Get("data")),
		MimeType: firstString(b.Get("mimeType"), src.Get("media_type"), b.Get("media_type")),
		URL:      firstString(b.Get("url"), src.Get("url")),
	}
}

// decodeContent maps a string | array | missing value onto message.Content.
func decodeContent(v gjson.Result) message.Content {
	switch {
	case v.IsArray():
		return message.Content{Blocks: NormalizeMessageContent(v)}
	case v.Type == gjson.String:
		return message.Content{Text: v.String()}
	case !v.Exists() || v.Type == gjson.Null:
		return message.Content{}
	}
	// Numbers, bools and objects are kept as their JSON text.
	return message.Content{Text: v.Raw}
}

func decodeArguments(v gjson.Result) map[string]any {
	args := map[string]any{}
	if !v.IsObject() {
		return args
	}
	if m, ok := v.Value().(map[string]any); ok {
		return m
	}
	return args
}

// firstString returns the first candidate that exists as a non-empty string.
func firstString(candidates ...gjson.Result) string {
	for _, c := range candidates {
		if c.Exists() && c.Type == gjson.String && c.Str != "" {
			return c.Str
		}
	}
	return ""
}

// firstBool returns the first candidate that is a JSON boolean, false if none is.
func firstBool(candidates ...gjson.Result) bool {
	for _, c := range candidates {
		if c.Type == gjson.True || c.Type == gjson.False {
			return c.Bool()
		}
	}
	return false
}
