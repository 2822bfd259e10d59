package summarizer_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/mhismail3/tron-sub010/external"
	"github.com/mhismail3/tron-sub010/internal/message"
	"github.com/mhismail3/tron-sub010/internal/summarizer"
)

func conversation() []message.Message {
	return []message.Message{
		message.User("Fix the login bug"),
		message.Assistant(
			message.TextBlock("Looking at the auth handler. It seems fine."),
			message.ToolUseBlock("c1", "read", map[string]any{"file_path": "auth.go"}),
		),
		message.ToolResult("c1", "package auth", false),
		message.User("Now add a test"),
		message.Assistant(message.ToolUseBlock("c2", "write", map[string]any{"path": "auth_test.go"})),
		message.ToolResult("c2", "permission denied", true),
	}
}

// =============================================================================
// KEYWORD SUMMARIZER
// =============================================================================

func TestKeywordSummarizer_Narrative(t *testing.T) {
	res, err := summarizer.NewKeywordSummarizer().Summarize(context.Background(), conversation())
	require.NoError(t, err)

	assert.Equal(t,
		"The user made 2 requests. Key requests: Fix the login bug; Now add a test Tools used: read, write Files touched: auth.go, auth_test.go",
		res.Narrative)
	assert.Equal(t, "Fix the login bug", res.ExtractedData.CurrentGoal)
	assert.Equal(t, []string{"auth.go", "auth_test.go"}, res.ExtractedData.FilesModified)
	assert.Equal(t, []string{"Looking at the auth handler"}, res.ExtractedData.TopicsDiscussed)
}

func TestKeywordSummarizer_NoUserMessages(t *testing.T) {
	msgs := []message.Message{message.Assistant(message.TextBlock("hi")), message.Assistant(message.TextBlock("there"))}
	res, err := summarizer.NewKeywordSummarizer().Summarize(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, "(2 messages summarized)", res.Narrative)
}

func TestKeywordSummarizer_Deterministic(t *testing.T) {
	s := summarizer.NewKeywordSummarizer()
	a, err := s.Summarize(context.Background(), conversation())
	require.NoError(t, err)
	b, err := s.Summarize(context.Background(), conversation())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestKeywordSummarizer_LongRequestTruncated(t *testing.T) {
	msgs := []message.Message{message.User(strings.Repeat("x", 500))}
	res, err := summarizer.NewKeywordSummarizer().Summarize(context.Background(), msgs)
	require.NoError(t, err)
	assert.Contains(t, res.Narrative, strings.Repeat("x", 197)+"...")
	assert.NotContains(t, res.Narrative, strings.Repeat("x", 198))
}

func TestKeywordSummarizer_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := summarizer.NewKeywordSummarizer().Summarize(ctx, conversation())
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func TestSerializeMessages(t *testing.T) {
	msgs := append([]message.Message{}, conversation()...)
	msgs = append(msgs, message.Assistant(message.ThinkingBlock("hmm", "sig")))

	got := summarizer.SerializeMessages(msgs)
	want := strings.Join([]string{
		"[USER] Fix the login bug",
		"[ASSISTANT] Looking at the auth handler. It seems fine.",
		"[TOOL_CALL] read(file_path: auth.go)",
		"[TOOL_RESULT] package auth",
		"[USER] Now add a test",
		"[TOOL_CALL] write(path: auth_test.go)",
		"[TOOL_ERROR] permission denied",
		"[THINKING] hmm",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestSerializeMessages_ToolArgumentsInPriorityOrder(t *testing.T) {
	msgs := []message.Message{message.Assistant(message.ToolUseBlock("c", "grep", map[string]any{
		"query":   "q",
		"pattern": "p",
		"ignored": "z",
		"path":    strings.Repeat("d", 150),
	}))}
	got := summarizer.SerializeMessages(msgs)
	assert.Equal(t, "[TOOL_CALL] grep(path: "+strings.Repeat("d", 97)+"..., pattern: p, query: q)", got)
}

func TestSerializeMessages_Capped(t *testing.T) {
	var msgs []message.Message
	for i := 0; i < 2000; i++ {
		msgs = append(msgs, message.User(fmt.Sprintf("request %d %s", i, strings.Repeat("y", 100))))
	}
	got := summarizer.SerializeMessages(msgs)

	assert.Less(t, len(got), summarizer.MaxTranscriptChars)
	assert.True(t, strings.HasPrefix(got, "[USER] request 0 "))
	assert.True(t, strings.HasSuffix(got, strings.Repeat("y", 100)))
	assert.Contains(t, got, "characters omitted ...]")
}

// =============================================================================
// RESPONSE PARSING
// =============================================================================

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"plain json", `{"narrative":"did things"}`, nil},
		{"fenced json", "```json\n{\"narrative\":\"did things\"}\n```", nil},
		{"bare fence", "```\n{\"narrative\":\"did things\"}\n```", nil},
		{"missing narrative", `{"extractedData":{}}`, summarizer.ErrEmptyNarrative},
		{"blank narrative", `{"narrative":"  "}`, summarizer.ErrEmptyNarrative},
		{"not json", `here is your summary`, summarizer.ErrMalformedResponse},
		{"array", `["narrative"]`, summarizer.ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := summarizer.ParseResponse(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "did things", res.Narrative)
		})
	}
}

func TestParseResponse_ExtractedData(t *testing.T) {
	res, err := summarizer.ParseResponse(`{
		"narrative": "n",
		"extractedData": {
			"currentGoal": "ship",
			"completedSteps": ["a", "", 3],
			"pendingTasks": ["b"],
			"keyDecisions": [{"decision": "use sqlite", "reason": "embedded"}, {"reason": "orphan"}],
			"filesModified": ["x.go"],
			"topicsDiscussed": ["t"],
			"userPreferences": ["tabs"],
			"importantContext": ["c"]
		}
	}`)
	require.NoError(t, err)

	d := res.ExtractedData
	assert.Equal(t, "ship", d.CurrentGoal)
	assert.Equal(t, []string{"a"}, d.CompletedSteps)
	assert.Equal(t, []string{"b"}, d.PendingTasks)
	assert.Equal(t, []summarizer.KeyDecision{{Decision: "use sqlite", Reason: "embedded"}}, d.KeyDecisions)
	assert.Equal(t, []string{"x.go"}, d.FilesModified)
	assert.Equal(t, []string{"tabs"}, d.UserPreferences)
	assert.Equal(t, []string{"c"}, d.ImportantContext)
}

// =============================================================================
// LLM SUMMARIZER
// =============================================================================

func TestLLMSummarizer(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		prompt = gjson.GetBytes(data, "messages.1.content").String()
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"narrative\":\"model summary\"}"}}]}`))
	}))
	defer srv.Close()

	s := summarizer.NewLLMSummarizer(summarizer.LLMConfig{
		Provider: external.ProviderOpenAI,
		Endpoint: srv.URL,
		APIKey:   "key",
		Model:    "gpt-4o-mini",
	}, summarizer.WithHTTPClient(srv.Client()))

	res, err := s.Summarize(context.Background(), conversation())
	require.NoError(t, err)
	assert.Equal(t, "model summary", res.Narrative)
	assert.Contains(t, prompt, "[USER] Fix the login bug")
}

func TestLLMSummarizer_BadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"sorry, no"}}]}`))
	}))
	defer srv.Close()

	s := summarizer.NewLLMSummarizer(summarizer.LLMConfig{
		Provider: external.ProviderOpenAI, Endpoint: srv.URL, APIKey: "key", Model: "m",
	})
	_, err := s.Summarize(context.Background(), conversation())
	assert.ErrorIs(t, err, summarizer.ErrMalformedResponse)
}

// =============================================================================
// FALLBACK
// =============================================================================

func TestWithFallback(t *testing.T) {
	failing := summarizer.Func(func(context.Context, []message.Message) (*summarizer.Result, error) {
		return nil, errors.New("boom")
	})

	res, err := summarizer.WithFallback(failing, summarizer.NewKeywordSummarizer()).
		Summarize(context.Background(), conversation())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Narrative, "The user made 2 requests."))
}

func TestWithFallback_CancellationIsNotMasked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := summarizer.Func(func(ctx context.Context, _ []message.Message) (*summarizer.Result, error) {
		cancel()
		return nil, ctx.Err()
	})

	_, err := summarizer.WithFallback(primary, summarizer.NewKeywordSummarizer()).Summarize(ctx, conversation())
	assert.ErrorIs(t, err, context.Canceled)
}
