// Package contextmgr owns a session's live message buffer and its token budget.
//
// DESIGN: One Manager per session. Every mutation (AddMessage, SetMessages,
// ExecuteCompaction, SwitchModel) runs under the Manager's mutex, so
// compaction's read-then-replace can never interleave with an append. The
// summarizer is the only blocking collaborator; it receives the caller's
// context and a failure or cancellation leaves the buffer as it was.
//
// ARCHITECTURE:
//   - Manager:   buffer, memoized token count, threshold tracking, callbacks
//   - compactor: splits the buffer into summarized and preserved turns
//   - budget:    shrinking ceiling for tool output echoed back to the model
package contextmgr

import (
	"errors"
	"fmt"

	"github.com/mhismail3/tron-sub010/internal/message"
	"github.com/mhismail3/tron-sub010/internal/summarizer"
)

// Errors returned by the Manager.
var (
	ErrInvalidConfig    = errors.New("invalid context manager config")
	ErrCompactionFailed = errors.New("compaction failed")
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config configures a Manager.
type Config struct {
	Model        string                   `yaml:"model"`
	SystemPrompt string                   `yaml:"system_prompt"`
	Tools        []message.ToolDefinition `yaml:"-"`

	// CompactionThreshold is the usage ratio at which ShouldCompact reports true.
	CompactionThreshold float64 `yaml:"compaction_threshold"`
	// PreserveRecentTurns is how many trailing turns compaction keeps verbatim.
	PreserveRecentTurns int `yaml:"preserve_recent_turns"`

	// Tool result budget
	MaxToolResultChars    int `yaml:"max_tool_result_chars"`
	MinToolResultTokens   int `yaml:"min_tool_result_tokens"`
	ResponseReserveTokens int `yaml:"response_reserve_tokens"`
}

// Defaults.
const (
	DefaultCompactionThreshold   = 0.70
	DefaultPreserveRecentTurns   = 3
	DefaultMaxToolResultChars    = 100_000
	DefaultMinToolResultTokens   = 2_500
	DefaultResponseReserveTokens = 8_000
)

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.CompactionThreshold == 0 {
		c.CompactionThreshold = DefaultCompactionThreshold
	}
	if c.PreserveRecentTurns == 0 {
		c.PreserveRecentTurns = DefaultPreserveRecentTurns
	}
	if c.MaxToolResultChars == 0 {
		c.MaxToolResultChars = DefaultMaxToolResultChars
	}
	if c.MinToolResultTokens == 0 {
		c.MinToolResultTokens = DefaultMinToolResultTokens
	}
	if c.ResponseReserveTokens == 0 {
		c.ResponseReserveTokens = DefaultResponseReserveTokens
	}
	return c
}

// Validate reports programmer errors in c. Call after WithDefaults.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if c.CompactionThreshold <= 0 || c.CompactionThreshold > 1 {
		return fmt.Errorf("%w: compaction_threshold must be in (0, 1], got %v", ErrInvalidConfig, c.CompactionThreshold)
	}
	if c.PreserveRecentTurns < 0 {
		return fmt.Errorf("%w: preserve_recent_turns must not be negative", ErrInvalidConfig)
	}
	if c.MaxToolResultChars < 0 || c.MinToolResultTokens < 0 || c.ResponseReserveTokens < 0 {
		return fmt.Errorf("%w: tool result budget values must not be negative", ErrInvalidConfig)
	}
	if c.MinToolResultTokens*charsPerToken > c.MaxToolResultChars {
		return fmt.Errorf("%w: min_tool_result_tokens exceeds max_tool_result_chars", ErrInvalidConfig)
	}
	return nil
}

// =============================================================================
// THRESHOLD LEVELS
// =============================================================================

// ThresholdLevel classifies context usage.
type ThresholdLevel string

const (
	LevelNormal   ThresholdLevel = "normal"   // < 50%
	LevelWarning  ThresholdLevel = "warning"  // 50-70%
	LevelAlert    ThresholdLevel = "alert"    // 70-85%, compaction suggested
	LevelCritical ThresholdLevel = "critical" // 85-95%, new turns blocked
	LevelExceeded ThresholdLevel = "exceeded" // >= 95%
)

// ThresholdLevelFor maps a usage ratio to its level.
func ThresholdLevelFor(ratio float64) ThresholdLevel {
	switch {
	case ratio >= 0.95:
		return LevelExceeded
	case ratio >= 0.85:
		return LevelCritical
	case ratio >= 0.70:
		return LevelAlert
	case ratio >= 0.50:
		return LevelWarning
	default:
		return LevelNormal
	}
}

func (l ThresholdLevel) severity() int {
	switch l {
	case LevelWarning:
		return 1
	case LevelAlert:
		return 2
	case LevelCritical:
		return 3
	case LevelExceeded:
		return 4
	}
	return 0
}

// NeedsCompaction reports whether l is alert or worse.
func (l ThresholdLevel) NeedsCompaction() bool { return l.severity() >= LevelAlert.severity() }

// BlocksTurns reports whether l is critical or worse.
func (l ThresholdLevel) BlocksTurns() bool { return l.severity() >= LevelCritical.severity() }

// escalated reports whether moving from old to l should raise onCompactionNeeded.
func (l ThresholdLevel) escalated(old ThresholdLevel) bool {
	return l.NeedsCompaction() && l.severity() > old.severity()
}

// =============================================================================
// RESULTS
// =============================================================================

// Breakdown splits the token count by source.
type Breakdown struct {
	SystemPrompt int `json:"systemPrompt"`
	Tools        int `json:"tools"`
	Messages     int `json:"messages"`
}

// Snapshot is a point-in-time view of the budget.
type Snapshot struct {
	SessionID      string         `json:"sessionId"`
	Model          string         `json:"model"`
	MessageCount   int            `json:"messageCount"`
	CurrentTokens  int            `json:"currentTokens"`
	ContextLimit   int            `json:"contextLimit"`
	UsagePercent   float64        `json:"usagePercent"`
	ThresholdLevel ThresholdLevel `json:"thresholdLevel"`
	Breakdown      Breakdown      `json:"breakdown"`
}

// TurnCheck is the answer to CanAcceptTurn.
type TurnCheck struct {
	CanProceed         bool `json:"canProceed"`
	NeedsCompaction    bool `json:"needsCompaction"`
	WouldExceedLimit   bool `json:"wouldExceedLimit"`
	CurrentTokens      int  `json:"currentTokens"`
	EstimatedAfterTurn int  `json:"estimatedAfterTurn"`
	ContextLimit       int  `json:"contextLimit"`
}

// CompactionOptions customizes one compaction.
type CompactionOptions struct {
	// Summarizer overrides the Manager's summarizer.
	Summarizer summarizer.Summarizer
	// EditedSummary replaces the generated narrative.
	EditedSummary string
}

// CompactionResult reports a compaction or preview.
type CompactionResult struct {
	Success            bool                      `json:"success"`
	TokensBefore       int                       `json:"tokensBefore"`
	TokensAfter        int                       `json:"tokensAfter"`
	CompressionRatio   float64                   `json:"compressionRatio"`
	SummarizedMessages int                       `json:"summarizedMessages"`
	PreservedMessages  int                       `json:"preservedMessages"`
	Summary            string                    `json:"summary,omitempty"`
	ExtractedData      *summarizer.ExtractedData `json:"extractedData,omitempty"`
	Error              string                    `json:"error,omitempty"`
}

// ToolResultOutput is a tool output fitted to the current budget.
type ToolResultOutput struct {
	Content      string `json:"content"`
	Truncated    bool   `json:"truncated"`
	OriginalSize int    `json:"originalSize"`
}

// State is the persisted form of a session.
type State struct {
	SessionID    string            `json:"sessionId"`
	Model        string            `json:"model"`
	SystemPrompt string            `json:"systemPrompt"`
	Messages     []message.Message `json:"messages"`
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// MetricsRecorder receives compaction outcomes and threshold changes.
type MetricsRecorder interface {
	RecordCompaction(outcome string, tokensBefore, tokensAfter int)
	RecordThreshold(level string, usage float64)
}

// Compaction outcomes passed to MetricsRecorder.
const (
	OutcomeSuccess  = "success"
	OutcomeNoop     = "noop"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

type nopMetrics struct{}

func (nopMetrics) RecordCompaction(string, int, int) {}
func (nopMetrics) RecordThreshold(string, float64) {}
