// Package tokens provides approximate token counting.
//
// DESIGN: Counting is pluggable through Estimator. The default CharEstimator
// is the cheap deterministic heuristic (about 4 characters per token plus a
// fixed per-message overhead); TiktokenEstimator swaps in a BPE count for
// text when the encoding is available and falls back to the heuristic when
// it is not. Precision is not a goal, stability is.
package tokens

import (
	"encoding/json"
	"math"

	"github.com/mhismail3/tron-sub010/internal/message"
)

const (
	// CharsPerToken is the heuristic ratio used by CharEstimator.
	CharsPerToken = 4

	// messageOverheadChars covers role and structure per message.
	messageOverheadChars = 10

	// MinImageTokens is the floor for a base64 image.
	MinImageTokens = 85

	// DefaultURLImageTokens is used for URL images (roughly 1024x1024).
	DefaultURLImageTokens = 1500
)

// Estimator counts tokens for messages and raw text.
type Estimator interface {
	EstimateText(text string) int
	EstimateMessage(m message.Message) int
}

// EstimateMessages sums e over msgs.
func EstimateMessages(e Estimator, msgs []message.Message) int {
	total := 0
	for _, m := range msgs {
		total += e.EstimateMessage(m)
	}
	return total
}

// EstimateTools estimates the cost of the tool definitions from their JSON form.
func EstimateTools(e Estimator, tools []message.ToolDefinition) int {
	if len(tools) == 0 {
		return 0
	}
	data, err := json.Marshal(tools)
	if err != nil {
		return 0
	}
	return e.EstimateText(string(data))
}

// =============================================================================
// CHAR ESTIMATOR
// =============================================================================

// CharEstimator is the default heuristic estimator.
type CharEstimator struct{}

// NewCharEstimator returns the default estimator.
func NewCharEstimator() CharEstimator { return CharEstimator{} }

// EstimateText implements Estimator.
func (CharEstimator) EstimateText(text string) int {
	return charsToTokens(len(text))
}

// EstimateMessage implements Estimator.
func (CharEstimator) EstimateMessage(m message.Message) int {
	return charsToTokens(MessageChars(m, func(s string) int { return len(s) }))
}

// MessageChars returns the character weight of m. textLen measures free text;
// fixed-cost parts such as images are expressed in characters so the result
// can be divided by CharsPerToken.
func MessageChars(m message.Message, textLen func(string) int) int {
	chars := len(m.Role) + messageOverheadChars
	if m.Role == message.RoleToolResult {
		chars += len(m.ToolCallID)
	}
	return chars + contentChars(m.Content, textLen)
}

func contentChars(c message.Content, textLen func(string) int) int {
	if !c.IsBlocks() {
		return textLen(c.Text)
	}
	chars := 0
	for _, b := range c.Blocks {
		chars += blockChars(b, textLen)
	}
	return chars
}

func blockChars(b message.ContentBlock, textLen func(string) int) int {
	switch b.Type {
	case message.BlockText:
		return textLen(b.Text)
	case message.BlockThinking:
		return textLen(b.Thinking)
	case message.BlockToolUse:
		args := "{}"
		if len(b.Arguments) > 0 {
			if data, err := json.Marshal(b.Arguments); err == nil {
				args = string(data)
			}
		}
		return len(b.ID) + len(b.Name) + textLen(args)
	case message.BlockToolResult:
		chars := len(b.ToolCallID)
		if b.Content != nil {
			chars += contentChars(*b.Content, textLen)
		}
		return chars
	case message.BlockImage:
		return ImageTokens(b) * CharsPerToken
	}
	return len(b.Raw)
}

// ImageTokens estimates an image block. Base64 data is sized from its
// decoded byte count; URL images use a fixed default.
func ImageTokens(b message.ContentBlock) int {
	if b.Data == "" {
		return DefaultURLImageTokens
	}
	bytes := float64(len(b.Data)) * 0.75
	pixels := bytes * 5
	tokens := int(math.Ceil(pixels / 750))
	if tokens < MinImageTokens {
		return MinImageTokens
	}
	return tokens
}

func charsToTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + CharsPerToken - 1) / CharsPerToken
}
