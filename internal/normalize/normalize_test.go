package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/mhismail3/tron-sub010/internal/message"
	"github.com/mhismail3/tron-sub010/internal/normalize"
)

// =============================================================================
// BLOCK NORMALIZERS
// =============================================================================

func TestNormalizeToolResultBlock_Dialects(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		id      string
		isError bool
	}{
		{"wire", `{"type":"tool_result","tool_use_id":"w1","is_error":true,"content":"x"}`, "w1", true},
		{"internal", `{"type":"tool_result","toolCallId":"i1","isError":true,"content":"x"}`, "i1", true},
		{"both_internal_wins", `{"tool_use_id":"w1","toolCallId":"i1","is_error":true,"isError":false}`, "i1", false},
		{"is_error_defaults_false", `{"type":"tool_result","tool_use_id":"w1"}`, "w1", false},
		{"missing_everything", `{"type":"tool_result"}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := normalize.NormalizeToolResultBlock(gjson.Parse(tt.raw))
			assert.Equal(t, message.BlockToolResult, b.Type)
			assert.Equal(t, tt.id, b.ToolCallID)
			assert.Equal(t, tt.isError, b.IsError)
			require.NotNil(t, b.Content)
		})
	}
}

func TestNormalizeToolUseBlock_Dialects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		args map[string]any
	}{
		{"wire_input", `{"type":"tool_use","id":"t1","name":"Read","input":{"path":"a"}}`, map[string]any{"path": "a"}},
		{"internal_arguments", `{"type":"tool_use","id":"t1","name":"Read","arguments":{"path":"b"}}`, map[string]any{"path": "b"}},
		{"both_internal_wins", `{"type":"tool_use","id":"t1","name":"Read","input":{"path":"a"},"arguments":{"path":"b"}}`, map[string]any{"path": "b"}},
		{"defaults_empty", `{"type":"tool_use","id":"t1","name":"Read"}`, map[string]any{}},
		{"non_object_args", `{"type":"tool_use","id":"t1","name":"Read","input":"oops"}`, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := normalize.NormalizeToolUseBlock(gjson.Parse(tt.raw))
			assert.Equal(t, message.BlockToolUse, b.Type)
			assert.Equal(t, "t1", b.ID)
			assert.Equal(t, "Read", b.Name)
			assert.Equal(t, tt.args, b.Arguments)
		})
	}
}

func TestTypeGuards(t *testing.T) {
	assert.True(t, normalize.IsToolResultBlock(gjson.Parse(`{"tool_use_id":"x"}`)))
	assert.True(t, normalize.IsToolResultBlock(gjson.Parse(`{"toolCallId":"x"}`)))
	assert.False(t, normalize.IsToolResultBlock(gjson.Parse(`{"type":"text","text":"x"}`)))
	assert.False(t, normalize.IsToolResultBlock(gjson.Parse(`"tool_result"`)))

	assert.True(t, normalize.IsToolUseBlock(gjson.Parse(`{"id":"a","name":"b","input":{}}`)))
	assert.True(t, normalize.IsToolUseBlock(gjson.Parse(`{"id":"a","name":"b","arguments":{}}`)))
	assert.False(t, normalize.IsToolUseBlock(gjson.Parse(`{"id":"a","name":"b"}`)))
}

func TestNormalizeMessageContent_PreservesOrderAndCount(t *testing.T) {
	raw := `[
		{"type":"text","text":"one"},
		{"type":"tool_use","id":"t1","name":"Read","input":{}},
		{"type":"image","source":{"type":"base64","media_type":"image/png","data":"AAAA"}},
		{"type":"thinking","thinking":"hm","signature":"sig"},
		{"type":"document","title":"x"}
	]`
	blocks := normalize.NormalizeMessageContent(gjson.Parse(raw))
	require.Len(t, blocks, 5)

	assert.Equal(t, message.TextBlock("one"), blocks[0])
	assert.Equal(t, message.BlockToolUse, blocks[1].Type)
	assert.Equal(t, "image/png", blocks[2].MimeType)
	assert.Equal(t, "AAAA", blocks[2].Data)
	assert.Equal(t, "sig", blocks[3].Signature)
	assert.Equal(t, message.BlockType("document"), blocks[4].Type)
	assert.JSONEq(t, `{"type":"document","title":"x"}`, string(blocks[4].Raw))
}

// =============================================================================
// MESSAGE NORMALIZERS
// =============================================================================

func TestNormalizeMessage_ExpandsLegacyToolResults(t *testing.T) {
	raw := `{"role":"user","content":[
		{"type":"tool_result","tool_use_id":"a","content":"first"},
		{"type":"tool_result","toolCallId":"b","isError":true,"content":[{"type":"text","text":"second"}]}
	]}`
	out := normalize.NormalizeMessage(gjson.Parse(raw))
	require.Len(t, out, 2)

	assert.Equal(t, message.RoleToolResult, out[0].Role)
	assert.Equal(t, "a", out[0].ToolCallID)
	assert.Equal(t, "first", out[0].Content.Text)
	assert.False(t, out[0].IsError)

	assert.Equal(t, "b", out[1].ToolCallID)
	assert.True(t, out[1].IsError)
	assert.Equal(t, "second", out[1].Content.PlainText())
}

func TestNormalizeMessage_MixedUserContentPassesThrough(t *testing.T) {
	raw := `{"role":"user","content":[
		{"type":"tool_result","tool_use_id":"a","content":"r"},
		{"type":"text","text":"and also"}
	]}`
	out := normalize.NormalizeMessage(gjson.Parse(raw))
	require.Len(t, out, 1)
	assert.Equal(t, message.RoleUser, out[0].Role)
	assert.Len(t, out[0].Content.Blocks, 2)
}

func TestNormalizeMessage_Roles(t *testing.T) {
	t.Run("user_string", func(t *testing.T) {
		out := normalize.NormalizeMessage(gjson.Parse(`{"role":"user","content":"hi","timestamp":5}`))
		require.Len(t, out, 1)
		assert.Equal(t, "hi", out[0].Content.Text)
		assert.Equal(t, int64(5), *out[0].Timestamp)
	})

	t.Run("assistant_snake_case_metadata", func(t *testing.T) {
		out := normalize.NormalizeMessage(gjson.Parse(`{"role":"assistant","stop_reason":"tool_use",
			"usage":{"input_tokens":12,"output_tokens":3},
			"content":[{"type":"tool_use","id":"t1","name":"Bash","input":{"cmd":"ls"}}]}`))
		require.Len(t, out, 1)
		assert.Equal(t, message.StopToolUse, out[0].StopReason)
		assert.Equal(t, 12, out[0].Usage.InputTokens)
		assert.Equal(t, map[string]any{"cmd": "ls"}, out[0].ToolUses()[0].Arguments)
	})

	t.Run("assistant_string_content", func(t *testing.T) {
		out := normalize.NormalizeMessage(gjson.Parse(`{"role":"assistant","content":"plain"}`))
		require.Len(t, out, 1)
		assert.Equal(t, []message.ContentBlock{message.TextBlock("plain")}, out[0].Content.Blocks)
	})

	t.Run("tool_result_wire_fields", func(t *testing.T) {
		out := normalize.NormalizeMessage(gjson.Parse(`{"role":"toolResult","tool_use_id":"x","is_error":true,"content":"boom"}`))
		require.Len(t, out, 1)
		assert.Equal(t, "x", out[0].ToolCallID)
		assert.True(t, out[0].IsError)
	})

	t.Run("unknown_role", func(t *testing.T) {
		out := normalize.NormalizeMessage(gjson.Parse(`{"role":"narrator","content":"once"}`))
		require.Len(t, out, 1)
		assert.Equal(t, message.Role("narrator"), out[0].Role)
		assert.Equal(t, "once", out[0].Content.Text)
	})
}

func TestNormalizeMessages_Totality(t *testing.T) {
	inputs := []string{
		``,
		`null`,
		`42`,
		`"text"`,
		`{"role":"user"}`,
		`[1, "two", null, [], {}]`,
		`[{"role":"assistant","content":{"nested":true}}]`,
		`[{"role":"user","content":[{"type":"tool_result"}, 7]}]`,
		`{not json`,
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			out := normalize.NormalizeMessages([]byte(in))
			assert.NotNil(t, out)
		}, "input %q", in)
	}
}

func TestNormalizeMessages_AcceptsRequestBody(t *testing.T) {
	out := normalize.NormalizeMessages([]byte(`{"model":"x","messages":[{"role":"user","content":"hi"}]}`))
	require.Len(t, out, 1)
	assert.Equal(t, "hi", out[0].Content.Text)
}

func TestNormalizeTyped_OnlyTouchesLegacyUserTurns(t *testing.T) {
	legacy := message.UserBlocks(message.ToolResultBlock("t1", message.Content{Text: "r"}, false))
	out := normalize.NormalizeTypedAll([]message.Message{
		message.User("hi"),
		legacy,
		message.Assistant(message.TextBlock("ok")),
	})
	require.Len(t, out, 3)
	assert.Equal(t, message.RoleUser, out[0].Role)
	assert.Equal(t, message.ToolResult("t1", "r", false), out[1])
	assert.Equal(t, message.RoleAssistant, out[2].Role)
}

// =============================================================================
// WIRE ENCODING
// =============================================================================

func TestEncodeWire_SnakeCaseAndGrouping(t *testing.T) {
	msgs := []message.Message{
		message.System("be brief"),
		message.User("go"),
		message.Assistant(
			message.ThinkingBlock("draft", ""),
			message.ToolUseBlock("a", "Read", map[string]any{"path": "x.go"}),
			message.ToolUseBlock("b", "Read", nil),
		),
		message.ToolResult("a", "contents", false),
		message.ToolResult("b", "missing", true),
	}

	payload, err := normalize.EncodeWire(msgs)
	require.NoError(t, err)
	assert.Equal(t, "be brief", payload.System)

	body := gjson.ParseBytes(payload.Messages)
	require.Equal(t, int64(3), body.Get("#").Int())

	asst := body.Get("1.content")
	assert.Equal(t, int64(2), asst.Get("#").Int(), "unsigned thinking is dropped")
	assert.Equal(t, "x.go", asst.Get("0.input.path").String())
	assert.Equal(t, "{}", asst.Get("1.input").Raw)

	results := body.Get("2")
	assert.Equal(t, "user", results.Get("role").String())
	assert.Equal(t, "a", results.Get("content.0.tool_use_id").String())
	assert.True(t, results.Get("content.1.is_error").Bool())
}

func TestEncodeWire_RoundTripsThroughNormalizer(t *testing.T) {
	msgs := []message.Message{
		message.User("go"),
		message.Assistant(message.TextBlock("reading"), message.ToolUseBlock("a", "Read", map[string]any{"path": "x.go", "limit": 10.0})),
		message.ToolResult("a", "contents", false),
		message.Assistant(message.TextBlock("done")),
	}

	payload, err := normalize.EncodeWire(msgs)
	require.NoError(t, err)
	assert.Equal(t, msgs, normalize.NormalizeMessages(payload.Messages))
}
