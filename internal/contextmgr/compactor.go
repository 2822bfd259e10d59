package contextmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/mhismail3/tron-sub010/internal/message"
	"github.com/mhismail3/tron-sub010/internal/summarizer"
	"github.com/mhismail3/tron-sub010/internal/tokens"
)

const (
	// SummaryPrefix opens the synthesized user message carrying the summary.
	SummaryPrefix = "[Context from earlier in the conversation] "
	// SummaryAck is the assistant reply that follows the summary.
	SummaryAck = "I understand the previous context. Let me continue helping you."
)

// compactionPlan splits a buffer for compaction.
type compactionPlan struct {
	systems     []message.Message
	toSummarize []message.Message
	preserved   []message.Message
}

// planCompaction keeps the last turns complete turns. A turn starts at a user
// message and runs through the assistant reply and its tool results. System
// messages are set aside and never summarized.
func planCompaction(msgs []message.Message, turns int) compactionPlan {
	var p compactionPlan
	var convo []message.Message
	for _, msg := range msgs {
		if msg.Role == message.RoleSystem {
			p.systems = append(p.systems, msg)
			continue
		}
		convo = append(convo, msg)
	}

	cut := len(convo)
	if turns > 0 {
		cut = -1
		seen := 0
		for i := len(convo) - 1; i >= 0; i-- {
			if !isTurnStart(convo[i]) {
				continue
			}
			seen++
			if seen == turns {
				cut = i
				break
			}
		}
		if cut < 0 {
			// Fewer turns than requested: nothing old enough to summarize.
			cut = 0
		}
	}

	p.toSummarize = convo[:cut]
	p.preserved = convo[cut:]
	return p
}

// isTurnStart reports whether msg is a user turn rather than a tool result
// carried in a user message.
func isTurnStart(msg message.Message) bool {
	if msg.Role != message.RoleUser {
		return false
	}
	if !msg.Content.IsBlocks() {
		return true
	}
	for _, b := range msg.Content.Blocks {
		if b.Type != message.BlockToolResult {
			return true
		}
	}
	return false
}

// compactedBuffer assembles the buffer that replaces the current one.
func compactedBuffer(p compactionPlan, summary string) []message.Message {
	out := make([]message.Message, 0, len(p.systems)+2+len(p.preserved))
	out = append(out, message.CloneAll(p.systems)...)
	out = append(out,
		message.User(SummaryPrefix+summary),
		message.Assistant(message.TextBlock(SummaryAck)),
	)
	return append(out, message.CloneAll(p.preserved)...)
}

// =============================================================================
// EXECUTION
// =============================================================================

// PreviewCompaction computes what ExecuteCompaction would produce without
// changing the buffer.
func (m *Manager) PreviewCompaction(ctx context.Context, opts CompactionOptions) (CompactionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, _, err := m.compactLocked(ctx, opts)
	m.logger.Debug().
		Bool("success", res.Success).
		Int("tokens_before", res.TokensBefore).
		Int("tokens_after", res.TokensAfter).
		Msg("context: compaction preview")
	return res, err
}

// ExecuteCompaction replaces older turns with a summary. On any failure,
// including ctx cancellation, the buffer is left untouched and the returned
// error wraps ErrCompactionFailed.
func (m *Manager) ExecuteCompaction(ctx context.Context, opts CompactionOptions) (CompactionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	res, next, err := m.compactLocked(ctx, opts)
	switch {
	case err != nil:
		outcome := OutcomeFailed
		if ctx.Err() != nil {
			outcome = OutcomeCanceled
		}
		m.metrics.RecordCompaction(outcome, res.TokensBefore, res.TokensBefore)
		m.logger.Warn().
			Err(err).
			Int("tokens_before", res.TokensBefore).
			Msg("context: compaction failed, buffer unchanged")
		return res, err

	case next == nil:
		m.metrics.RecordCompaction(OutcomeNoop, res.TokensBefore, res.TokensAfter)
		return res, nil
	}

	m.messages = next
	m.invalidateLocked()
	m.metrics.RecordCompaction(OutcomeSuccess, res.TokensBefore, res.TokensAfter)
	m.metrics.RecordThreshold(string(m.levelLocked()), m.usageLocked())
	m.logger.Info().
		Int("tokens_before", res.TokensBefore).
		Int("tokens_after", res.TokensAfter).
		Float64("compression_ratio", res.CompressionRatio).
		Int("summarized", res.SummarizedMessages).
		Int("preserved", res.PreservedMessages).
		Dur("duration", time.Since(start)).
		Msg("context: compaction executed")
	return res, nil
}

// compactLocked runs the compaction without committing it. next is nil when
// there is nothing to summarize or when the summary would not shrink the
// buffer.
func (m *Manager) compactLocked(ctx context.Context, opts CompactionOptions) (CompactionResult, []message.Message, error) {
	before := m.estimatedTokensLocked()
	plan := planCompaction(m.messages, m.cfg.PreserveRecentTurns)
	res := CompactionResult{
		TokensBefore:       before,
		TokensAfter:        before,
		CompressionRatio:   1,
		SummarizedMessages: len(plan.toSummarize),
		PreservedMessages:  len(plan.preserved),
	}
	if len(plan.toSummarize) == 0 {
		res.Success = true
		return res, nil, nil
	}

	fail := func(err error) (CompactionResult, []message.Message, error) {
		res.Error = err.Error()
		return res, nil, fmt.Errorf("%w: %w", ErrCompactionFailed, err)
	}

	s := opts.Summarizer
	if s == nil {
		s = m.summarizer
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	// The summarizer gets its own copy; it must not alias the live buffer.
	out, err := s.Summarize(ctx, message.CloneAll(plan.toSummarize))
	if err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if out == nil {
		return fail(summarizer.ErrMalformedResponse)
	}

	summary := out.Narrative
	if opts.EditedSummary != "" {
		summary = opts.EditedSummary
	} else if err := out.Validate(); err != nil {
		return fail(err)
	}

	next := compactedBuffer(plan, summary)
	b := m.breakdownLocked()
	after := b.SystemPrompt + b.Tools + tokens.EstimateMessages(m.estimator, next)
	if after >= before {
		m.logger.Debug().
			Int("tokens_before", before).
			Int("tokens_after", after).
			Msg("context: summary would not reduce the buffer")
		res.Success = true
		res.SummarizedMessages = 0
		res.PreservedMessages = len(plan.toSummarize) + len(plan.preserved)
		return res, nil, nil
	}

	data := out.ExtractedData
	res.Success = true
	res.TokensAfter = after
	res.Summary = summary
	res.ExtractedData = &data
	if before > 0 {
		res.CompressionRatio = float64(after) / float64(before)
	}
	return res, next, nil
}
