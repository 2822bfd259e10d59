package normalize

import (
	"strings"

	"github.com/tidwall/sjson"

	"github.com/mhismail3/tron-sub010/internal/message"
)

// =============================================================================
// WIRE ENCODING
// =============================================================================

// WirePayload is the provider-dialect rendering of a conversation.
type WirePayload struct {
	System   string
	Messages []byte // JSON array
}

// EncodeWire renders canonical messages in the snake_case provider dialect
// (Anthropic Messages shape):
//   - tool_use arguments are written as input
//   - consecutive toolResult messages become one user turn of tool_result blocks
//   - unsigned thinking blocks are dropped
//   - system messages are lifted out into WirePayload.System
//
// Usage, cost and timestamps are not part of the wire turn. Apart from those,
// NormalizeMessages(EncodeWire(x).Messages) reproduces a sanitized x that has
// no unsigned thinking blocks.
func EncodeWire(msgs []message.Message) (WirePayload, error) {
	var (
		out    = []byte(`[]`)
		system []string
		err    error
	)

	for i := 0; i < len(msgs); i++ {
		m := msgs[i]
		switch m.Role {
		case message.RoleSystem:
			if text := m.Content.PlainText(); text != "" {
				system = append(system, text)
			}
			continue

		case message.RoleToolResult:
			turn := []byte(`{"role":"user","content":[]}`)
			for ; i < len(msgs) && msgs[i].Role == message.RoleToolResult; i++ {
				block, berr := encodeToolResult(msgs[i].ToolCallID, msgs[i].Content, msgs[i].IsError)
				if berr != nil {
					return WirePayload{}, berr
				}
				if turn, err = sjson.SetRawBytes(turn, "content.-1", block); err != nil {
					return WirePayload{}, err
				}
			}
			i--
			if out, err = sjson.SetRawBytes(out, "-1", turn); err != nil {
				return WirePayload{}, err
			}
			continue
		}

		enc, merr := encodeMessage(m)
		if merr != nil {
			return WirePayload{}, merr
		}
		if out, err = sjson.SetRawBytes(out, "-1", enc); err != nil {
			return WirePayload{}, err
		}
	}

	return WirePayload{System: strings.Join(system, "\n\n"), Messages: out}, nil
}

func encodeMessage(m message.Message) ([]byte, error) {
	obj, err := sjson.SetBytes([]byte(`{}`), "role", string(m.Role))
	if err != nil {
		return nil, err
	}
	if m.Role == message.RoleAssistant && m.StopReason != "" {
		if obj, err = sjson.SetBytes(obj, "stop_reason", string(m.StopReason)); err != nil {
			return nil, err
		}
	}
	return setContent(obj, "content", m.Content)
}

func setContent(obj []byte, path string, c message.Content) ([]byte, error) {
	if !c.IsBlocks() {
		return sjson.SetBytes(obj, path, c.Text)
	}
	obj, err := sjson.SetRawBytes(obj, path, []byte(`[]`))
	if err != nil {
		return nil, err
	}
	for _, b := range c.Blocks {
		if b.Type == message.BlockThinking && b.Signature == "" {
			continue
		}
		enc, err := encodeBlock(b)
		if err != nil {
			return nil, err
		}
		if obj, err = sjson.SetRawBytes(obj, path+".-1", enc); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func encodeBlock(b message.ContentBlock) ([]byte, error) {
	var (
		obj = []byte(`{}`)
		err error
	)
	set := func(path string, v any) {
		if err == nil {
			obj, err = sjson.SetBytes(obj, path, v)
		}
	}

	switch b.Type {
	case message.BlockText:
		set("type", "text")
		set("text", b.Text)
	case message.BlockThinking:
		set("type", "thinking")
		set("thinking", b.Thinking)
		set("signature", b.Signature)
	case message.BlockToolUse:
		set("type", "tool_use")
		set("id", b.ID)
		set("name", b.Name)
		if len(b.Arguments) == 0 {
			if err == nil {
				obj, err = sjson.SetRawBytes(obj, "input", []byte(`{}`))
			}
		} else {
			set("input", b.Arguments)
		}
	case message.BlockImage:
		set("type", "image")
		if b.URL != "" {
			set("source.type", "url")
			set("source.url", b.URL)
		} else {
			set("source.type", "base64")
			set("source.media_type", b.MimeType)
			set("source.data", b.Data)
		}
	case message.BlockToolResult:
		content := message.Content{}
		if b.Content != nil {
			content = *b.Content
		}
		return encodeToolResult(b.ToolCallID, content, b.IsError)
	default:
		if len(b.Raw) > 0 {
			return b.Raw, nil
		}
		set("type", string(b.Type))
	}
	return obj, err
}

func encodeToolResult(id string, content message.Content, isError bool) ([]byte, error) {
	obj, err := sjson.SetBytes([]byte(`{"type":"tool_result"}`), "tool_use_id", id)
	if err != nil {
		return nil, err
	}
	if obj, err = setContent(obj, "content", content); err != nil {
		return nil, err
	}
	return sjson.SetBytes(obj, "is_error", isError)
}
