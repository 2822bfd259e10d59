package message

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Canonical JSON uses the internal camelCase dialect only. Provider wire
// payloads are decoded by internal/normalize, which accepts both dialects.

type messageJSON struct {
	Role       Role        `json:"role"`
	Content    Content     `json:"content"`
	Timestamp  *int64      `json:"timestamp,omitempty"`
	Usage      *TokenUsage `json:"usage,omitempty"`
	Cost       *Cost       `json:"cost,omitempty"`
	StopReason StopReason  `json:"stopReason,omitempty"`
	ToolCallID *string     `json:"toolCallId,omitempty"`
	IsError    *bool       `json:"isError,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{
		Role:       m.Role,
		Content:    m.Content,
		Timestamp:  m.Timestamp,
		Usage:      m.Usage,
		Cost:       m.Cost,
		StopReason: m.StopReason,
	}
	if m.Role == RoleToolResult {
		id, isErr := m.ToolCallID, m.IsError
		out.ToolCallID = &id
		out.IsError = &isErr
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	var in messageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = Message{
		Role:       in.Role,
		Content:    in.Content,
		Timestamp:  in.Timestamp,
		Usage:      in.Usage,
		Cost:       in.Cost,
		StopReason: in.StopReason,
	}
	if in.ToolCallID != nil {
		m.ToolCallID = *in.ToolCallID
	}
	if in.IsError != nil {
		m.IsError = *in.IsError
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsBlocks() {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
		return nil
	case data[0] == '[':
		blocks := []ContentBlock{}
		if err := json.Unmarshal(data, &blocks); err != nil {
			return err
		}
		*c = Content{Blocks: blocks}
		return nil
	}
	return fmt.Errorf("content must be a string or an array, got %.20s", data)
}

type blockJSON struct {
	Type       BlockType       `json:"type"`
	Text       *string         `json:"text,omitempty"`
	Data       string          `json:"data,omitempty"`
	MimeType   string          `json:"mimeType,omitempty"`
	URL        string          `json:"url,omitempty"`
	Thinking   *string         `json:"thinking,omitempty"`
	Signature  string          `json:"signature,omitempty"`
	ID         *string         `json:"id,omitempty"`
	Name       *string         `json:"name,omitempty"`
	Arguments  *map[string]any `json:"arguments,omitempty"`
	ToolCallID *string         `json:"toolCallId,omitempty"`
	Content    *Content        `json:"content,omitempty"`
	IsError    *bool           `json:"isError,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	out := blockJSON{Type: b.Type}
	switch b.Type {
	case BlockText:
		out.Text = &b.Text
	case BlockImage:
		out.Data, out.MimeType, out.URL = b.Data, b.MimeType, b.URL
	case BlockThinking:
		out.Thinking = &b.Thinking
		out.Signature = b.Signature
	case BlockToolUse:
		args := b.Arguments
		if args == nil {
			args = map[string]any{}
		}
		out.ID, out.Name, out.Arguments = &b.ID, &b.Name, &args
	case BlockToolResult:
		content := Content{}
		if b.Content != nil {
			content = *b.Content
		}
		out.ToolCallID, out.Content, out.IsError = &b.ToolCallID, &content, &b.IsError
	default:
		if len(b.Raw) > 0 {
			return b.Raw, nil
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var in blockJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*b = ContentBlock{Type: in.Type}
	switch in.Type {
	case BlockText:
		b.Text = deref(in.Text)
	case BlockImage:
		b.Data, b.MimeType, b.URL = in.Data, in.MimeType, in.URL
	case BlockThinking:
		b.Thinking, b.Signature = deref(in.Thinking), in.Signature
	case BlockToolUse:
		b.ID, b.Name = deref(in.ID), deref(in.Name)
		b.Arguments = map[string]any{}
		if in.Arguments != nil && *in.Arguments != nil {
			b.Arguments = *in.Arguments
		}
	case BlockToolResult:
		b.ToolCallID = deref(in.ToolCallID)
		content := Content{}
		if in.Content != nil {
			content = *in.Content
		}
		b.Content = &content
		b.IsError = in.IsError != nil && *in.IsError
	default:
		b.Raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
