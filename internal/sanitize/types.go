// Package sanitize repairs arbitrary message sequences into a shape every
// provider accepts.
//
// DESIGN: Sanitize is pure, total and idempotent. It never returns an error:
// malformed input degrades to a best-effort valid sequence plus a list of the
// fixes applied. Output guarantees:
//   - every tool_use id has exactly one matching toolResult after it
//   - no message has empty effective content
//   - the first conversation message is a user turn
//   - no two consecutive messages share a role, except toolResult
//
// Logging and fix counting are injected through options; the package holds
// no global state and is safe for concurrent use.
package sanitize

import (
	"github.com/rs/zerolog"

	"github.com/mhismail3/tron-sub010/internal/message"
)

// Synthetic contents.
const (
	InterruptedContent = "[Interrupted]"
	ContinuedContent   = "[Continued]"
)

// =============================================================================
// FIXES AND VIOLATIONS
// =============================================================================

// FixType identifies a repair applied by Sanitize.
type FixType string

const (
	FixInjectedToolResult      FixType = "injected_tool_result"
	FixRemovedEmptyMessage     FixType = "removed_empty_message"
	FixRemovedThinkingOnly     FixType = "removed_thinking_only_message"
	FixRemovedInvalidBlock     FixType = "removed_invalid_block"
	FixRemovedDuplicateToolUse FixType = "removed_duplicate_tool_use"
	FixMergedConsecutive       FixType = "merged_consecutive_messages"
	FixInjectedPlaceholderUser FixType = "injected_placeholder_user"
)

// Fix records one repair. Index is the position in the input sequence, or -1
// when the fix concerns the output as a whole.
type Fix struct {
	Type       FixType `json:"type"`
	Index      int     `json:"index"`
	ToolCallID string  `json:"toolCallId,omitempty"`
	Details    string  `json:"details"`
}

// ViolationType identifies a problem reported by Validate.
type ViolationType string

const (
	ViolationMissingToolResult ViolationType = "missing_tool_result"
	ViolationEmptyMessage      ViolationType = "empty_message"
	ViolationInvalidToolResult ViolationType = "invalid_tool_result"
	ViolationMissingFirstUser  ViolationType = "missing_first_user"
)

// Violation is a read-only diagnostic.
type Violation struct {
	Type       ViolationType `json:"type"`
	Index      int           `json:"index"`
	ToolCallID string        `json:"toolCallId,omitempty"`
	Message    string        `json:"message"`
}

// Result is the output of Sanitize. IsValid is true when no fix was needed.
type Result struct {
	Messages []message.Message `json:"messages"`
	Fixes    []Fix             `json:"fixes"`
	IsValid  bool              `json:"isValid"`
}

// =============================================================================
// OPTIONS
// =============================================================================

// FixRecorder receives every fix as it is applied.
type FixRecorder interface {
	RecordFix(Fix)
}

// Option configures a Sanitize call.
type Option func(*options)

type options struct {
	logger   zerolog.Logger
	recorder FixRecorder
}

// WithLogger reports each fix as a warning on l.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecorder forwards each fix to r.
func WithRecorder(r FixRecorder) Option {
	return func(o *options) { o.recorder = r }
}

func newOptions(opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
