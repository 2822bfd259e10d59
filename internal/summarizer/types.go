// Package summarizer turns a run of older conversation turns into a short
// narrative plus structured notes.
//
// DESIGN: Summarizer is the only collaborator of the compactor that blocks.
// Implementations:
//   - KeywordSummarizer: deterministic, no I/O; used in tests and as fallback
//   - LLMSummarizer:     serializes the transcript and asks a model for JSON
//   - Fallback:          tries a primary, falls back on any error
package summarizer

import (
	"context"
	"errors"

	"github.com/mhismail3/tron-sub010/internal/message"
)

// Errors returned by summarizers.
var (
	ErrEmptyNarrative    = errors.New("summarizer returned an empty narrative")
	ErrMalformedResponse = errors.New("malformed summarizer response")
)

// Summarizer produces a summary of msgs. It must honor ctx cancellation.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []message.Message) (*Result, error)
}

// Func adapts a function to Summarizer.
type Func func(ctx context.Context, msgs []message.Message) (*Result, error)

// Summarize implements Summarizer.
func (f Func) Summarize(ctx context.Context, msgs []message.Message) (*Result, error) {
	return f(ctx, msgs)
}

// Result is a summary.
type Result struct {
	Narrative     string        `json:"narrative"`
	ExtractedData ExtractedData `json:"extractedData"`
}

// KeyDecision is a decision taken during the conversation.
type KeyDecision struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// ExtractedData is the structured part of a summary.
type ExtractedData struct {
	CurrentGoal      string        `json:"currentGoal"`
	CompletedSteps   []string      `json:"completedSteps"`
	PendingTasks     []string      `json:"pendingTasks"`
	KeyDecisions     []KeyDecision `json:"keyDecisions"`
	FilesModified    []string      `json:"filesModified"`
	TopicsDiscussed  []string      `json:"topicsDiscussed"`
	UserPreferences  []string      `json:"userPreferences"`
	ImportantContext []string      `json:"importantContext"`
}

// Validate rejects results the compactor cannot use.
func (r *Result) Validate() error {
	if r == nil {
		return ErrMalformedResponse
	}
	if isBlank(r.Narrative) {
		return ErrEmptyNarrative
	}
	return nil
}
