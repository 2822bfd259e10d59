// Package message defines the canonical conversation data model.
//
// DESIGN: One tagged shape for every provider dialect. Messages are
// discriminated by Role, content blocks by Type. Anything that reaches this
// package from the wire goes through internal/normalize first, so the rest of
// the module never sees snake_case provider fields.
//
// FILES:
//   - types.go:  Message, Content, ContentBlock and constructors
//   - clone.go:  explicit structural deep copy
//   - json.go:   canonical (camelCase) JSON encoding
package message

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// ROLES AND BLOCK TYPES
// =============================================================================

// Role discriminates the Message union.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "toolResult"
	RoleSystem     Role = "system"
)

// Known reports whether r is one of the four recognized roles.
func (r Role) Known() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleToolResult, RoleSystem:
		return true
	}
	return false
}

// BlockType discriminates the ContentBlock union.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockImage    BlockType = "image"
	BlockThinking BlockType = "thinking"
	BlockToolUse  BlockType = "tool_use"
	// BlockToolResult only appears in the legacy encoding where tool results
	// were carried inside a user turn. The normalizer expands it.
	BlockToolResult BlockType = "tool_result"
)

// StopReason records why the provider stopped generating.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopSequence     StopReason = "stop_sequence"
	StopInterrupted  StopReason = "interrupted"
)

// =============================================================================
// CONTENT
// =============================================================================

// ContentBlock is one element of a block-form content array.
// Only the fields relevant to Type are populated.
type ContentBlock struct {
	Type BlockType

	// text
	Text string

	// image: base64 Data + MimeType, or a remote URL
	Data     string
	MimeType string
	URL      string

	// thinking
	Thinking  string
	Signature string

	// tool_use
	ID        string
	Name      string
	Arguments map[string]any

	// tool_result (legacy encoding)
	ToolCallID string
	Content    *Content
	IsError    bool

	// Raw holds the original JSON of a block type this package does not model.
	Raw json.RawMessage
}

// Content is either a plain string or an array of blocks.
// Blocks != nil selects the block form, so an empty array stays distinguishable
// from an empty string.
type Content struct {
	Text   string
	Blocks []ContentBlock
}

// IsBlocks reports whether c is in block form.
func (c Content) IsBlocks() bool { return c.Blocks != nil }

// IsEmpty reports whether c carries no effective content: a blank string or
// an empty block array.
func (c Content) IsEmpty() bool {
	if c.IsBlocks() {
		return len(c.Blocks) == 0
	}
	return isBlank(c.Text)
}

// AsBlocks returns c in block form, wrapping a non-blank string as one text block.
func (c Content) AsBlocks() []ContentBlock {
	if c.IsBlocks() {
		return c.Blocks
	}
	if isBlank(c.Text) {
		return []ContentBlock{}
	}
	return []ContentBlock{TextBlock(c.Text)}
}

// PlainText concatenates the text carried by c, one block per line.
func (c Content) PlainText() string {
	if !c.IsBlocks() {
		return c.Text
	}
	var out []byte
	for _, b := range c.Blocks {
		var s string
		switch b.Type {
		case BlockText:
			s = b.Text
		case BlockToolResult:
			if b.Content != nil {
				s = b.Content.PlainText()
			}
		}
		if s == "" {
			continue
		}
		if len(out) > 0 {
			out = append(out, '\n')
		}
		out = append(out, s...)
	}
	return string(out)
}

// =============================================================================
// MESSAGE
// =============================================================================

// TokenUsage is the provider-reported usage attached to an assistant turn.
type TokenUsage struct {
	InputTokens         int `json:"inputTokens"`
	OutputTokens        int `json:"outputTokens"`
	CacheReadTokens     int `json:"cacheReadTokens,omitempty"`
	CacheCreationTokens int `json:"cacheCreationTokens,omitempty"`
}

// ContextTokens is the prompt size the provider counted, cached parts
// included.
func (u TokenUsage) ContextTokens() int {
	return u.InputTokens + u.CacheReadTokens + u.CacheCreationTokens
}

// Cost is the dollar cost attached to an assistant turn.
type Cost struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
	Total  float64 `json:"total"`
}

// Message is one conversation turn.
//
// Field use by role:
//   - user:       Content, Timestamp
//   - assistant:  Content (always block form), Usage, Cost, StopReason
//   - toolResult: ToolCallID, Content, IsError
//   - system:     Content (string form)
type Message struct {
	Role    Role
	Content Content

	Timestamp *int64

	Usage      *TokenUsage
	Cost       *Cost
	StopReason StopReason

	ToolCallID string
	IsError    bool
}

// ToolDefinition describes a tool offered to the model. It only contributes
// to the baseline token cost.
type ToolDefinition struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty" yaml:"-"`
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// User returns a string-form user message.
func User(text string) Message {
	return Message{Role: RoleUser, Content: Content{Text: text}}
}

// UserBlocks returns a block-form user message.
func UserBlocks(blocks ...ContentBlock) Message {
	return Message{Role: RoleUser, Content: blockContent(blocks)}
}

// Assistant returns an assistant message with the given blocks.
func Assistant(blocks ...ContentBlock) Message {
	return Message{Role: RoleAssistant, Content: blockContent(blocks)}
}

// ToolResult returns a string-form tool result message.
func ToolResult(toolCallID, text string, isError bool) Message {
	return Message{Role: RoleToolResult, ToolCallID: toolCallID, Content: Content{Text: text}, IsError: isError}
}

// System returns a system message.
func System(text string) Message {
	return Message{Role: RoleSystem, Content: Content{Text: text}}
}

// TextBlock returns a text block.
func TextBlock(text string) ContentBlock { return ContentBlock{Type: BlockText, Text: text} }

// ThinkingBlock returns a thinking block. An empty signature means the block
// is display-only and is stripped before transmission.
func ThinkingBlock(thinking, signature string) ContentBlock {
	return ContentBlock{Type: BlockThinking, Thinking: thinking, Signature: signature}
}

// ToolUseBlock returns a tool invocation block. A nil args map becomes {}.
func ToolUseBlock(id, name string, args map[string]any) ContentBlock {
	if args == nil {
		args = map[string]any{}
	}
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Arguments: args}
}

// ImageBlock returns a base64 image block.
func ImageBlock(data, mimeType string) ContentBlock {
	return ContentBlock{Type: BlockImage, Data: data, MimeType: mimeType}
}

// ToolResultBlock returns a legacy in-user-turn tool result block.
func ToolResultBlock(toolCallID string, content Content, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolCallID: toolCallID, Content: &content, IsError: isError}
}

// ToolUses returns the tool_use blocks of an assistant message in order.
func (m Message) ToolUses() []ContentBlock {
	if m.Role != RoleAssistant {
		return nil
	}
	var out []ContentBlock
	for _, b := range m.Content.Blocks {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// SurvivesConversion reports whether b is still present after provider
// conversion. Unsigned thinking blocks are display-only and get stripped.
func (b ContentBlock) SurvivesConversion() bool {
	switch b.Type {
	case BlockText, BlockToolUse:
		return true
	case BlockThinking:
		return b.Signature != ""
	}
	return false
}

func blockContent(blocks []ContentBlock) Content {
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	return Content{Blocks: blocks}
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
