package sanitize

import (
	"fmt"
	"strings"

	"github.com/mhismail3/tron-sub010/internal/message"
	"github.com/mhismail3/tron-sub010/internal/normalize"
)

// Validate reports the problems Sanitize would repair, without changing
// anything. Indexes refer to msgs after legacy tool-result expansion.
func Validate(msgs []message.Message) []Violation {
	in := normalize.NormalizeTypedAll(msgs)
	violations := []Violation{}
	add := func(t ViolationType, i int, id, format string, args ...any) {
		violations = append(violations, Violation{Type: t, Index: i, ToolCallID: id, Message: fmt.Sprintf(format, args...)})
	}

	open := map[string]int{}
	answered := map[string]bool{}
	firstChecked := false

	for i, m := range in {
		if m.Role != message.RoleSystem && !firstChecked {
			firstChecked = true
			if m.Role != message.RoleUser {
				add(ViolationMissingFirstUser, i, "", "first message has role %q", m.Role)
			}
		}

		switch m.Role {
		case message.RoleSystem, message.RoleUser:
			if m.Content.IsEmpty() {
				add(ViolationEmptyMessage, i, "", "%s message has no content", m.Role)
			}

		case message.RoleAssistant:
			surviving := false
			for _, b := range m.Content.Blocks {
				if b.SurvivesConversion() {
					surviving = true
				}
				if b.Type == message.BlockToolUse && b.ID != "" {
					if _, dup := open[b.ID]; !dup && !answered[b.ID] {
						open[b.ID] = i
					}
				}
			}
			if !surviving {
				add(ViolationEmptyMessage, i, "", "assistant message has no content surviving provider conversion")
			}

		case message.RoleToolResult:
			id := m.ToolCallID
			switch {
			case strings.TrimSpace(id) == "":
				add(ViolationInvalidToolResult, i, "", "tool result has no toolCallId")
			case m.Content.IsBlocks() && len(m.Content.Blocks) == 0:
				add(ViolationEmptyMessage, i, id, "tool result has empty content")
			case answered[id]:
				add(ViolationInvalidToolResult, i, id, "duplicate tool result")
			default:
				if _, ok := open[id]; ok {
					delete(open, id)
					answered[id] = true
				}
			}

		default:
			add(ViolationEmptyMessage, i, "", "message has unrecognized role %q", m.Role)
		}
	}

	// Report unanswered calls in the order they were opened.
	reported := map[string]bool{}
	for i, m := range in {
		for _, b := range m.ToolUses() {
			if at, ok := open[b.ID]; ok && at == i && !reported[b.ID] {
				reported[b.ID] = true
				add(ViolationMissingToolResult, i, b.ID, "tool call %q has no result", b.Name)
			}
		}
	}
	return violations
}
