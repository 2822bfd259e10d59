package sanitize

import (
	"fmt"
	"strings"

	"github.com/mhismail3/tron-sub010/internal/message"
	"github.com/mhismail3/tron-sub010/internal/normalize"
)

// SanitizeJSON decodes raw in either wire dialect and sanitizes the result.
// Invalid JSON, null and non-array input produce an empty valid result.
func SanitizeJSON(raw []byte, opts ...Option) Result {
	return Sanitize(normalize.NormalizeMessages(raw), opts...)
}

// Sanitize returns a repaired copy of msgs and the fixes applied. msgs is
// never modified. System messages are moved ahead of the conversation and
// merged into one.
func Sanitize(msgs []message.Message, opts ...Option) Result {
	s := &sanitizer{opts: newOptions(opts)}

	in := normalize.NormalizeTypedAll(msgs)
	convo, systems := s.filter(in)
	convo = s.injectMissingResults(convo)
	convo = s.ensureLeadingUser(convo, hasConversation(in))
	convo = s.mergeConsecutive(convo)

	out := make([]message.Message, 0, len(convo)+1)
	if sys, ok := s.mergeSystems(systems); ok {
		out = append(out, sys)
	}
	for _, e := range convo {
		out = append(out, e.msg)
	}

	fixes := s.fixes
	if fixes == nil {
		fixes = []Fix{}
	}
	return Result{Messages: out, Fixes: fixes, IsValid: len(fixes) == 0}
}

type sanitizer struct {
	opts  options
	fixes []Fix
}

// entry is a surviving conversation message plus the tool calls it opened.
type entry struct {
	msg   message.Message
	index int
	calls []string
}

func (s *sanitizer) fix(t FixType, index int, toolCallID, format string, args ...any) {
	f := Fix{Type: t, Index: index, ToolCallID: toolCallID, Details: fmt.Sprintf(format, args...)}
	s.fixes = append(s.fixes, f)

	ev := s.opts.logger.Warn().Str("fix", string(t)).Int("index", index)
	if toolCallID != "" {
		ev = ev.Str("tool_call_id", toolCallID)
	}
	ev.Msg(f.Details)

	if s.opts.recorder != nil {
		s.opts.recorder.RecordFix(f)
	}
}

// =============================================================================
// PHASE 1: FILTER AND DEDUPE
// =============================================================================

// filter drops invalid messages and blocks, dedupes tool_use ids across the
// whole session and clones every survivor. Tool results are matched against
// the calls opened so far: the first result for an open call answers it, a
// second one for the same call is dropped, and results for calls that were
// never opened are kept as they are.
func (s *sanitizer) filter(in []message.Message) (convo []entry, systems []message.Message) {
	seenCalls := map[string]bool{}
	open := map[string]bool{}
	answered := map[string]bool{}

	for i, m := range in {
		switch m.Role {
		case message.RoleSystem:
			if m.Content.IsEmpty() {
				s.fix(FixRemovedEmptyMessage, i, "", "removed empty system message")
				continue
			}
			systems = append(systems, m.Clone())

		case message.RoleUser:
			if msg, ok := s.filterUser(i, m); ok {
				convo = append(convo, entry{msg: msg, index: i})
			}

		case message.RoleAssistant:
			msg, calls, ok := s.filterAssistant(i, m, seenCalls)
			if !ok {
				continue
			}
			for _, id := range calls {
				open[id] = true
			}
			convo = append(convo, entry{msg: msg, index: i, calls: calls})

		case message.RoleToolResult:
			id := m.ToolCallID
			switch {
			case strings.TrimSpace(id) == "":
				s.fix(FixRemovedEmptyMessage, i, "", "removed tool result without toolCallId")
				continue
			case m.Content.IsBlocks() && len(m.Content.Blocks) == 0:
				s.fix(FixRemovedEmptyMessage, i, id, "removed tool result with empty content")
				continue
			case open[id]:
				delete(open, id)
				answered[id] = true
			case answered[id]:
				s.fix(FixRemovedInvalidBlock, i, id, "removed duplicate tool result")
				continue
			}
			convo = append(convo, entry{msg: m.Clone(), index: i})

		default:
			s.fix(FixRemovedEmptyMessage, i, "", "removed message with unrecognized role %q", m.Role)
		}
	}

	// Calls still open have no result; mark them for injection.
	for _, e := range convo {
		for j, id := range e.calls {
			if answered[id] {
				e.calls[j] = ""
			}
		}
	}
	return convo, systems
}

func (s *sanitizer) filterUser(i int, m message.Message) (message.Message, bool) {
	if !m.Content.IsBlocks() {
		if m.Content.IsEmpty() {
			s.fix(FixRemovedEmptyMessage, i, "", "removed empty user message")
			return message.Message{}, false
		}
		return m.Clone(), true
	}

	kept := make([]message.ContentBlock, 0, len(m.Content.Blocks))
	for _, b := range m.Content.Blocks {
		switch b.Type {
		case message.BlockText, message.BlockImage:
			kept = append(kept, b.Clone())
		default:
			s.fix(FixRemovedInvalidBlock, i, b.ToolCallID, "removed %s block from user message", blockName(b))
		}
	}
	if len(kept) == 0 {
		s.fix(FixRemovedEmptyMessage, i, "", "removed empty user message")
		return message.Message{}, false
	}

	out := m.Clone()
	out.Content = message.Content{Blocks: kept}
	return out, true
}

func (s *sanitizer) filterAssistant(i int, m message.Message, seenCalls map[string]bool) (message.Message, []string, bool) {
	blocks := m.Content.Blocks
	if len(blocks) == 0 {
		s.fix(FixRemovedEmptyMessage, i, "", "removed empty assistant message")
		return message.Message{}, nil, false
	}

	var calls []string
	kept := make([]message.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case message.BlockText, message.BlockThinking:
			kept = append(kept, b.Clone())
		case message.BlockToolUse:
			switch {
			case strings.TrimSpace(b.ID) == "":
				s.fix(FixRemovedInvalidBlock, i, "", "removed tool_use block %q without id", b.Name)
			case seenCalls[b.ID]:
				s.fix(FixRemovedDuplicateToolUse, i, b.ID, "removed duplicate tool_use block %q", b.Name)
			default:
				seenCalls[b.ID] = true
				calls = append(calls, b.ID)
				kept = append(kept, b.Clone())
			}
		default:
			s.fix(FixRemovedInvalidBlock, i, b.ToolCallID, "removed %s block from assistant message", blockName(b))
		}
	}

	surviving := false
	for _, b := range kept {
		if b.SurvivesConversion() {
			surviving = true
			break
		}
	}
	if !surviving {
		if len(kept) > 0 {
			s.fix(FixRemovedThinkingOnly, i, "", "removed assistant message with only unsigned thinking")
		} else {
			s.fix(FixRemovedEmptyMessage, i, "", "removed assistant message with no valid blocks")
		}
		return message.Message{}, nil, false
	}

	out := m.Clone()
	out.Content = message.Content{Blocks: kept}
	return out, calls, true
}

func blockName(b message.ContentBlock) string {
	if b.Type == "" {
		return "untyped"
	}
	return string(b.Type)
}

// =============================================================================
// PHASE 2-3: INJECT MISSING RESULTS
// =============================================================================

// injectMissingResults builds a new sequence in which every unanswered call
// gets an [Interrupted] result directly after the assistant message that
// opened it, in call order.
func (s *sanitizer) injectMissingResults(convo []entry) []entry {
	out := make([]entry, 0, len(convo))
	for _, e := range convo {
		out = append(out, entry{msg: e.msg, index: e.index})
		for _, id := range e.calls {
			if id == "" {
				continue
			}
			s.fix(FixInjectedToolResult, e.index, id, "injected %s result for unanswered tool call", InterruptedContent)
			out = append(out, entry{
				msg:   message.ToolResult(id, InterruptedContent, false),
				index: -1,
			})
		}
	}
	return out
}

// =============================================================================
// PHASE 4: LEAD-IN
// =============================================================================

// ensureLeadingUser prepends a [Continued] user turn when the conversation
// does not start with one. A conversation whose every message was removed
// also gets the placeholder, so non-empty input never collapses to nothing.
func (s *sanitizer) ensureLeadingUser(convo []entry, hadConversation bool) []entry {
	switch {
	case len(convo) == 0 && !hadConversation:
		return convo
	case len(convo) == 0:
		s.fix(FixInjectedPlaceholderUser, -1, "", "all messages were removed; inserted %s user message", ContinuedContent)
	case convo[0].msg.Role == message.RoleUser:
		return convo
	default:
		s.fix(FixInjectedPlaceholderUser, -1, "", "conversation started with %s; prepended %s user message", convo[0].msg.Role, ContinuedContent)
	}
	return append([]entry{{msg: message.User(ContinuedContent), index: -1}}, convo...)
}

func hasConversation(msgs []message.Message) bool {
	for _, m := range msgs {
		if m.Role != message.RoleSystem {
			return true
		}
	}
	return false
}

// =============================================================================
// PHASE 5: MERGE CONSECUTIVE SAME-ROLE MESSAGES
// =============================================================================

func (s *sanitizer) mergeConsecutive(convo []entry) []entry {
	out := make([]entry, 0, len(convo))
	for _, e := range convo {
		if len(out) == 0 {
			out = append(out, e)
			continue
		}
		prev := &out[len(out)-1]
		role := e.msg.Role
		if role != prev.msg.Role || role == message.RoleToolResult {
			out = append(out, e)
			continue
		}

		switch role {
		case message.RoleAssistant:
			prev.msg.Content.Blocks = append(prev.msg.Content.Blocks, e.msg.Content.Blocks...)
		case message.RoleUser:
			blocks := append(prev.msg.Content.AsBlocks(), e.msg.Content.AsBlocks()...)
			prev.msg.Content = message.Content{Blocks: blocks}
		}
		s.fix(FixMergedConsecutive, e.index, "", "merged consecutive %s messages", role)
	}
	return out
}

func (s *sanitizer) mergeSystems(systems []message.Message) (message.Message, bool) {
	if len(systems) == 0 {
		return message.Message{}, false
	}
	if len(systems) == 1 {
		return systems[0], true
	}
	texts := make([]string, 0, len(systems))
	for _, m := range systems {
		texts = append(texts, m.Content.PlainText())
	}
	s.fix(FixMergedConsecutive, -1, "", "merged %d system messages", len(systems))
	return message.System(strings.Join(texts, "\n\n")), true
}
