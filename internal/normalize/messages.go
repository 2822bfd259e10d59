package normalize

import (
	"github.com/tidwall/gjson"

	"github.com/mhismail3/tron-sub010/internal/message"
)

// =============================================================================
// MESSAGE NORMALIZERS
// =============================================================================

// NormalizeMessages decodes a JSON message array in either dialect and
// flat-maps NormalizeMessage over it. A request body of the form
// {"messages":[...]} is also accepted. Invalid JSON, null and non-array input
// yield an empty slice.
func NormalizeMessages(raw []byte) []message.Message {
	out := []message.Message{}
	if !gjson.ValidBytes(raw) {
		return out
	}
	root := gjson.ParseBytes(raw)
	if root.IsObject() {
		root = root.Get("messages")
	}
	if !root.IsArray() {
		return out
	}
	root.ForEach(func(_, m gjson.Result) bool {
		out = append(out, NormalizeMessage(m)...)
		return true
	})
	return out
}

// NormalizeMessage maps one wire message onto zero or more canonical messages.
// A user turn whose content is made only of tool_result blocks expands into one
// toolResult message per block. OpenAI assistant tool_calls become tool_use
// blocks and role "tool" becomes toolResult. Non-object input yields nothing.
func NormalizeMessage(raw gjson.Result) []message.Message {
	if !raw.IsObject() {
		return nil
	}
	role := message.Role(raw.Get("role").String())
	content := raw.Get("content")

	switch role {
	case message.RoleToolResult, roleOpenAITool:
		return []message.Message{{
			Role:       message.RoleToolResult,
			ToolCallID: firstString(raw.Get("toolCallId"), raw.Get("tool_use_id"), raw.Get("tool_call_id")),
			Content:    decodeContent(content),
			IsError:    firstBool(raw.Get("isError"), raw.Get("is_error")),
		}}

	case message.RoleUser:
		m := message.Message{Role: role, Content: decodeContent(content), Timestamp: decodeTimestamp(raw)}
		return expandLegacyToolResults(m)

	case message.RoleAssistant:
		m := message.Message{
			Role:       role,
			Content:    message.Content{Blocks: NormalizeMessageContent(content)},
			Usage:      decodeUsage(raw.Get("usage")),
			Cost:       decodeCost(raw.Get("cost")),
			StopReason: message.StopReason(firstString(raw.Get("stopReason"), raw.Get("stop_reason"))),
		}
		// Some providers send assistant text as a bare string.
		if content.Type == gjson.String && content.Str != "" {
			m.Content.Blocks = []message.ContentBlock{message.TextBlock(content.Str)}
		}
		m.Content.Blocks = append(m.Content.Blocks, decodeToolCalls(raw.Get("tool_calls"))...)
		return []message.Message{m}
	}

	// system and unrecognized roles pass through with their content decoded.
	return []message.Message{{Role: role, Content: decodeContent(content), Timestamp: decodeTimestamp(raw)}}
}

// roleOpenAITool is the OpenAI chat role for a tool result.
const roleOpenAITool message.Role = "tool"

// decodeToolCalls maps OpenAI tool_calls onto tool_use blocks. Arguments
// arrive as a JSON-encoded string; anything that is not a JSON object
// becomes an empty map.
func decodeToolCalls(calls gjson.Result) []message.ContentBlock {
	var out []message.ContentBlock
	calls.ForEach(func(_, c gjson.Result) bool {
		fn := c.Get("function")
		args := fn.Get("arguments")
		if args.Type == gjson.String && gjson.Valid(args.Str) {
			args = gjson.Parse(args.Str)
		}
		out = append(out, message.ToolUseBlock(c.Get("id").String(), fn.Get("name").String(), decodeArguments(args)))
		return true
	})
	return out
}

// NormalizeTyped applies the message-level normalization to an already
// decoded message. Only the legacy tool-result expansion has an effect here.
func NormalizeTyped(m message.Message) []message.Message {
	if m.Role != message.RoleUser {
		return []message.Message{m}
	}
	return expandLegacyToolResults(m)
}

// NormalizeTypedAll flat-maps NormalizeTyped over msgs.
func NormalizeTypedAll(msgs []message.Message) []message.Message {
	out := make([]message.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NormalizeTyped(m)...)
	}
	return out
}

// expandLegacyToolResults converts a user turn carrying only tool_result
// blocks into standalone toolResult messages. Any other user turn is returned
// unchanged.
func expandLegacyToolResults(m message.Message) []message.Message {
	blocks := m.Content.Blocks
	if len(blocks) == 0 {
		return []message.Message{m}
	}
	for _, b := range blocks {
		if b.Type != message.BlockToolResult {
			return []message.Message{m}
		}
	}
	out := make([]message.Message, 0, len(blocks))
	for _, b := range blocks {
		content := message.Content{}
		if b.Content != nil {
			content = *b.Content
		}
		out = append(out, message.Message{
			Role:       message.RoleToolResult,
			ToolCallID: b.ToolCallID,
			Content:    content,
			IsError:    b.IsError,
		})
	}
	return out
}

func decodeTimestamp(raw gjson.Result) *int64 {
	ts := raw.Get("timestamp")
	if ts.Type != gjson.Number {
		return nil
	}
	v := ts.Int()
	return &v
}

func decodeUsage(u gjson.Result) *message.TokenUsage {
	if !u.IsObject() {
		return nil
	}
	return &message.TokenUsage{
		InputTokens:         int(firstInt(u.Get("inputTokens"), u.Get("input_tokens"))),
		OutputTokens:        int(firstInt(u.Get("outputTokens"), u.Get("output_tokens"))),
		CacheReadTokens:     int(firstInt(u.Get("cacheReadTokens"), u.Get("cache_read_input_tokens"))),
		CacheCreationTokens: int(firstInt(u.Get("cacheCreationTokens"), u.Get("cache_creation_input_tokens"))),
	}
}

func decodeCost(c gjson.Result) *message.Cost {
	if !c.IsObject() {
		return nil
	}
	return &message.Cost{
		Input:  c.Get("input").Float(),
		Output: c.Get("output").Float(),
		Total:  c.Get("total").Float(),
	}
}

func firstInt(candidates ...gjson.Result) int64 {
	for _, c := range candidates {
		if c.Type == gjson.Number {
			return c.Int()
		}
	}
	return 0
}
