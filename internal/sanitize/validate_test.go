package sanitize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhismail3/tron-sub010/internal/message"
	"github.com/mhismail3/tron-sub010/internal/sanitize"
)

func violationTypes(vs []sanitize.Violation) []sanitize.ViolationType {
	out := make([]sanitize.ViolationType, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Type)
	}
	return out
}

func TestValidate_CleanConversation(t *testing.T) {
	msgs := []message.Message{
		message.System("rules"),
		message.User("go"),
		message.Assistant(message.ToolUseBlock("t1", "Read", nil)),
		message.ToolResult("t1", "ok", false),
	}
	assert.Empty(t, sanitize.Validate(msgs))
}

func TestValidate_ReportsEveryCategory(t *testing.T) {
	msgs := []message.Message{
		message.Assistant(message.ThinkingBlock("hmm", "")),
		message.User(""),
		message.Assistant(message.ToolUseBlock("t1", "Spawn", nil)),
		message.ToolResult("", "lost", false),
	}

	vs := sanitize.Validate(msgs)

	assert.Equal(t, []sanitize.ViolationType{
		sanitize.ViolationMissingFirstUser,
		sanitize.ViolationEmptyMessage,
		sanitize.ViolationEmptyMessage,
		sanitize.ViolationInvalidToolResult,
		sanitize.ViolationMissingToolResult,
	}, violationTypes(vs))
	assert.Equal(t, "t1", vs[4].ToolCallID)
	assert.Equal(t, 2, vs[4].Index)
}

func TestValidate_DuplicateResult(t *testing.T) {
	msgs := []message.Message{
		message.User("go"),
		message.Assistant(message.ToolUseBlock("t1", "Read", nil)),
		message.ToolResult("t1", "a", false),
		message.ToolResult("t1", "b", false),
	}
	vs := sanitize.Validate(msgs)
	require.Len(t, vs, 1)
	assert.Equal(t, sanitize.ViolationInvalidToolResult, vs[0].Type)
	assert.Equal(t, 3, vs[0].Index)
}

func TestValidate_ResultBeforeCallDoesNotCount(t *testing.T) {
	msgs := []message.Message{
		message.User("go"),
		message.ToolResult("t1", "early", false),
		message.Assistant(message.ToolUseBlock("t1", "Read", nil)),
	}
	assert.Equal(t, []sanitize.ViolationType{sanitize.ViolationMissingToolResult}, violationTypes(sanitize.Validate(msgs)))
}

func TestValidate_DoesNotMutate(t *testing.T) {
	msgs := []message.Message{message.User("A"), message.User("B")}
	snapshot := message.CloneAll(msgs)
	sanitize.Validate(msgs)
	assert.Equal(t, snapshot, msgs)
}

func TestValidate_AgreesWithSanitize(t *testing.T) {
	msgs := []message.Message{
		message.User("Research X"),
		message.Assistant(message.TextBlock("ok"), message.ToolUseBlock("t1", "Spawn", nil)),
		message.User("nevermind"),
	}
	assert.NotEmpty(t, sanitize.Validate(msgs))
	assert.Empty(t, sanitize.Validate(sanitize.Sanitize(msgs).Messages))
}
