package sanitize_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhismail3/tron-sub010/internal/message"
	"github.com/mhismail3/tron-sub010/internal/sanitize"
)

// =============================================================================
// GENERATOR
// =============================================================================

var (
	genIDs   = []string{"a", "b", "c", "d", ""}
	genTexts = []string{"", "  ", "hi", "do the thing"}
)

func pick[T any](r *rand.Rand, xs []T) T { return xs[r.Intn(len(xs))] }

func randomAssistantBlock(r *rand.Rand) message.ContentBlock {
	switch r.Intn(4) {
	case 0:
		return message.TextBlock(pick(r, genTexts))
	case 1:
		return message.ThinkingBlock("hmm", pick(r, []string{"", "sig"}))
	case 2:
		return message.ContentBlock{Type: "document"}
	default:
		return message.ToolUseBlock(pick(r, genIDs), "Tool", map[string]any{"n": float64(r.Intn(3))})
	}
}

func randomConversation(r *rand.Rand) []message.Message {
	n := r.Intn(14)
	out := make([]message.Message, 0, n)
	for i := 0; i < n; i++ {
		switch r.Intn(8) {
		case 0, 1:
			out = append(out, message.User(pick(r, genTexts)))
		case 2:
			var blocks []message.ContentBlock
			for j := r.Intn(3); j > 0; j-- {
				blocks = append(blocks, pick(r, []message.ContentBlock{
					message.TextBlock("t"),
					message.ImageBlock("AAAA", "image/png"),
					message.ToolUseBlock("u", "Misplaced", nil),
				}))
			}
			out = append(out, message.UserBlocks(blocks...))
		case 3, 4:
			var blocks []message.ContentBlock
			for j := r.Intn(4); j > 0; j-- {
				blocks = append(blocks, randomAssistantBlock(r))
			}
			out = append(out, message.Assistant(blocks...))
		case 5, 6:
			out = append(out, message.ToolResult(pick(r, genIDs), "result", r.Intn(2) == 0))
		default:
			out = append(out, message.UserBlocks(
				message.ToolResultBlock(pick(r, genIDs), message.Content{Text: "legacy"}, false),
			))
		}
	}
	return out
}

// =============================================================================
// PROPERTIES
// =============================================================================

const propertySeeds = 500

func TestProperty_Idempotence(t *testing.T) {
	for seed := int64(0); seed < propertySeeds; seed++ {
		in := randomConversation(rand.New(rand.NewSource(seed)))

		first := sanitize.Sanitize(in)
		second := sanitize.Sanitize(first.Messages)

		require.Equal(t, first.Messages, second.Messages, "seed %d", seed)
		require.True(t, second.IsValid, "seed %d: %v", seed, second.Fixes)
		require.Empty(t, sanitize.Validate(first.Messages), "seed %d", seed)
	}
}

func TestProperty_ToolCallClosure(t *testing.T) {
	for seed := int64(0); seed < propertySeeds; seed++ {
		out := sanitize.Sanitize(randomConversation(rand.New(rand.NewSource(seed)))).Messages

		for i, m := range out {
			for _, call := range m.ToolUses() {
				matches := 0
				for _, later := range out[i+1:] {
					if later.Role == message.RoleToolResult && later.ToolCallID == call.ID {
						matches++
					}
				}
				require.Equal(t, 1, matches, "seed %d: call %q at %d", seed, call.ID, i)
			}
		}
	}
}

func TestProperty_LeadInAndNoAdjacentRoles(t *testing.T) {
	for seed := int64(0); seed < propertySeeds; seed++ {
		in := randomConversation(rand.New(rand.NewSource(seed)))
		out := sanitize.Sanitize(in).Messages

		if len(in) > 0 {
			require.NotEmpty(t, out, "seed %d", seed)
		}
		if len(out) == 0 {
			continue
		}
		require.Equal(t, message.RoleUser, out[0].Role, "seed %d", seed)
		for i := 1; i < len(out); i++ {
			if out[i].Role == message.RoleToolResult {
				continue
			}
			require.NotEqual(t, out[i-1].Role, out[i].Role, "seed %d at %d", seed, i)
		}
	}
}

func TestProperty_InjectedResultsFollowTheirCall(t *testing.T) {
	for seed := int64(0); seed < propertySeeds; seed++ {
		out := sanitize.Sanitize(randomConversation(rand.New(rand.NewSource(seed)))).Messages

		for i, m := range out {
			calls := m.ToolUses()
			if len(calls) == 0 {
				continue
			}
			// Injected results sit directly after the call, in call order.
			j := i + 1
			for _, c := range calls {
				if j < len(out) && out[j].ToolCallID == c.ID && out[j].Content.Text == sanitize.InterruptedContent {
					j++
				}
			}
			for ; j < len(out); j++ {
				if out[j].Role == message.RoleToolResult && out[j].Content.Text == sanitize.InterruptedContent {
					for _, c := range calls {
						assert.NotEqual(t, c.ID, out[j].ToolCallID, fmt.Sprintf("seed %d: misplaced injection", seed))
					}
				}
			}
		}
	}
}
