package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// testConfig writes a config that logs only errors and stores sessions in
// a SQLite file under dir.
func testConfig(t *testing.T, dir string) string {
	t.Helper()
	return writeFile(t, dir, "config.yaml", fmt.Sprintf(`
context:
  model: claude-sonnet-4-5
  preserve_recent_turns: 2
store:
  type: sqlite
  path: %s
monitoring:
  log_level: error
  log_format: json
`, filepath.Join(dir, "sessions.db")))
}

const danglingToolCall = `[
	{"role":"user","content":"read the file"},
	{"role":"assistant","content":[{"type":"tool_use","id":"t1","name":"Read","input":{"file_path":"a.go"}}]},
	{"role":"user","content":"never mind"}
]`

func conversationJSON(turns int) string {
	var parts []string
	for i := 0; i < turns; i++ {
		parts = append(parts,
			fmt.Sprintf(`{"role":"user","content":"request %d about the parser"}`, i),
			fmt.Sprintf(`{"role":"assistant","content":[{"type":"text","text":"answer %d"}]}`, i),
		)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}

func TestConfigs(t *testing.T) {
	out, err := execute(t, "", "configs")
	require.NoError(t, err)
	assert.Contains(t, out, "default")
	assert.Contains(t, out, "llm_summarizer")
	assert.Contains(t, out, "bedrock")

	out, err = execute(t, "", "configs", "default")
	require.NoError(t, err)
	assert.Contains(t, out, "summarizer:")

	_, err = execute(t, "", "configs", "missing")
	assert.Error(t, err)
}

func TestResolveConfig(t *testing.T) {
	dir := t.TempDir()
	path := testConfig(t, dir)

	data, source, err := resolveConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, source)
	assert.Contains(t, string(data), "sqlite")

	_, source, err = resolveConfig("bedrock")
	require.NoError(t, err)
	assert.Equal(t, "(embedded) bedrock", source)

	_, _, err = resolveConfig(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestSanitize_InjectsMissingResult(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	in := writeFile(t, dir, "in.json", danglingToolCall)

	out, err := execute(t, "", "sanitize", "--config", cfg, in)
	require.NoError(t, err)

	res := gjson.Parse(out)
	assert.False(t, res.Get("isValid").Bool())
	assert.Equal(t, "injected_tool_result", res.Get("fixes.0.type").String())
	assert.Equal(t, "t1", res.Get("fixes.0.toolCallId").String())
	assert.Equal(t, "toolResult", res.Get("messages.2.role").String())
}

func TestSanitize_WireFromStdin(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	input := `{"system":"be brief","messages":` + danglingToolCall + `}`

	out, err := execute(t, input, "sanitize", "--config", cfg, "--wire", "-")
	require.NoError(t, err)

	res := gjson.Parse(out)
	assert.Equal(t, "be brief", res.Get("system").String())
	assert.Equal(t, "user", res.Get("messages.0.role").String())
	assert.Equal(t, "tool_use", res.Get("messages.1.content.0.type").String())
	assert.Equal(t, "tool_result", res.Get("messages.2.content.0.type").String())
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)

	out, err := execute(t, "", "validate", "--config", cfg, writeFile(t, dir, "bad.json", danglingToolCall))
	require.ErrorIs(t, err, errViolations)
	assert.Equal(t, "missing_tool_result", gjson.Get(out, "0.type").String())

	out, err = execute(t, "", "validate", "--config", cfg, writeFile(t, dir, "ok.json", conversationJSON(2)))
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestValidate_BadInput(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)

	_, err := execute(t, "", "validate", "--config", cfg, writeFile(t, dir, "x.json", `{"nope":1}`))
	assert.ErrorContains(t, err, "expected a message array")

	_, err = execute(t, "", "validate", "--config", cfg, writeFile(t, dir, "y.json", `not json`))
	assert.ErrorContains(t, err, "invalid JSON")
}

func TestSnapshot_ModelOverride(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	in := writeFile(t, dir, "in.json", conversationJSON(3))

	out, err := execute(t, "", "snapshot", "--config", cfg, "--model", "gpt-4o", in)
	require.NoError(t, err)

	res := gjson.Parse(out)
	assert.Equal(t, int64(128000), res.Get("snapshot.contextLimit").Int())
	assert.Equal(t, int64(6), res.Get("snapshot.messageCount").Int())
	assert.Equal(t, "normal", res.Get("snapshot.thresholdLevel").String())
	assert.False(t, res.Get("shouldCompact").Bool())
	assert.True(t, res.Get("turn.canProceed").Bool())
}

func TestCompact_SavesAndResumes(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	in := writeFile(t, dir, "in.json", conversationJSON(5))

	out, err := execute(t, "", "compact", "--config", cfg, "--summary", "parser work so far", in)
	require.NoError(t, err)

	res := gjson.Parse(out)
	sessionID := res.Get("sessionId").String()
	require.NotEmpty(t, sessionID)
	assert.True(t, res.Get("result.success").Bool())
	assert.Equal(t, int64(6), res.Get("result.summarizedMessages").Int())
	assert.Equal(t, int64(4), res.Get("result.preservedMessages").Int())
	assert.Contains(t, res.Get("messages.0.content").String(), "parser work so far")

	out, err = execute(t, "", "sessions", "list", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, sessionID)

	out, err = execute(t, "", "sessions", "show", "--config", cfg, sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, gjson.Get(out, "sessionId").String())

	out, err = execute(t, "", "compact", "--config", cfg, "--resume", sessionID, "--preview")
	require.NoError(t, err)
	assert.Equal(t, sessionID, gjson.Get(out, "sessionId").String())
	assert.True(t, gjson.Get(out, "preview").Bool())

	_, err = execute(t, "", "sessions", "delete", "--config", cfg, sessionID)
	require.NoError(t, err)
	_, err = execute(t, "", "compact", "--config", cfg, "--resume", sessionID)
	assert.ErrorContains(t, err, "session not found")
}

func TestCompact_RequiresInput(t *testing.T) {
	_, err := execute(t, "", "compact")
	assert.ErrorContains(t, err, "FILE is required")
}

func TestSnapshot_RequestBodyAndReportedUsage(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	in := writeFile(t, dir, "req.json", `{
		"model": "gpt-4o",
		"system": "be brief",
		"tools": [{"type":"function","function":{"name":"search","description":"web search"}}],
		"messages": [{"role":"user","content":"hello"}]
	}`)
	usage := writeFile(t, dir, "resp.json", `{"usage":{"prompt_tokens":102400,"completion_tokens":10}}`)

	out, err := execute(t, "", "snapshot", "--config", cfg, "--usage", usage, in)
	require.NoError(t, err)

	res := gjson.Parse(out)
	assert.Equal(t, "gpt-4o", res.Get("snapshot.model").String())
	assert.Equal(t, int64(102400), res.Get("snapshot.currentTokens").Int())
	assert.Equal(t, "alert", res.Get("snapshot.thresholdLevel").String())
	assert.Positive(t, res.Get("snapshot.breakdown.tools").Int())
	assert.Positive(t, res.Get("snapshot.breakdown.systemPrompt").Int())
	assert.True(t, res.Get("shouldCompact").Bool())

	_, err = execute(t, "", "snapshot", "--config", cfg, "--usage", in, in)
	assert.ErrorContains(t, err, "no token usage")
}
