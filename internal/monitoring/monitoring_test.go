package monitoring_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/mhismail3/tron-sub010/internal/contextmgr"
	"github.com/mhismail3/tron-sub010/internal/message"
	"github.com/mhismail3/tron-sub010/internal/monitoring"
	"github.com/mhismail3/tron-sub010/internal/sanitize"
)

// =============================================================================
// LOGGER
// =============================================================================

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tron.log")
	logger := monitoring.New(monitoring.LoggerConfig{Level: "warn", Format: "json", Output: path})

	logger.Info().Msg("dropped")
	logger.Warn().Str("k", "v").Msg("kept")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", gjson.Get(lines[0], "message").String())
	assert.Equal(t, "v", gjson.Get(lines[0], "k").String())
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	logger := monitoring.New(monitoring.LoggerConfig{Level: "loud", Format: "json", Output: "stderr"})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

// =============================================================================
// METRICS
// =============================================================================

func TestMetrics_Recorders(t *testing.T) {
	m := monitoring.NewMetrics()

	m.RecordCompaction(contextmgr.OutcomeSuccess, 9000, 3000)
	m.RecordCompaction(contextmgr.OutcomeFailed, 9000, 9000)
	m.RecordCompaction(contextmgr.OutcomeFailed, 9000, 9000)
	m.RecordFix(sanitize.Fix{Type: sanitize.FixInjectedToolResult})
	m.RecordThreshold(string(contextmgr.LevelAlert), 0.75)

	expected := `
# HELP tron_compactions_total Compaction attempts by outcome.
# TYPE tron_compactions_total counter
tron_compactions_total{outcome="failed"} 2
tron_compactions_total{outcome="success"} 1
# HELP tron_sanitizer_fixes_total Fixes applied by the message sanitizer by type.
# TYPE tron_sanitizer_fixes_total counter
tron_sanitizer_fixes_total{type="injected_tool_result"} 1
# HELP tron_context_usage_ratio Last observed context usage as a fraction of the model window.
# TYPE tron_context_usage_ratio gauge
tron_context_usage_ratio 0.75
# HELP tron_context_threshold_level 1 for the current threshold level, 0 for the others.
# TYPE tron_context_threshold_level gauge
tron_context_threshold_level{level="alert"} 1
tron_context_threshold_level{level="critical"} 0
tron_context_threshold_level{level="exceeded"} 0
tron_context_threshold_level{level="normal"} 0
tron_context_threshold_level{level="warning"} 0
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"tron_compactions_total", "tron_sanitizer_fixes_total", "tron_context_usage_ratio", "tron_context_threshold_level")
	assert.NoError(t, err)
}

func TestMetrics_HandlerAndText(t *testing.T) {
	m := monitoring.NewMetrics()
	m.RecordCompaction(contextmgr.OutcomeSuccess, 9000, 3000)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tron_compaction_tokens_saved_sum 6000")

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	assert.Contains(t, buf.String(), "tron_compaction_tokens_saved_count 1")
}

func TestMetrics_WiredIntoManager(t *testing.T) {
	metrics := monitoring.NewMetrics()
	mgr, err := contextmgr.New(contextmgr.Config{Model: "test-model-small"}, contextmgr.WithMetrics(metrics))
	require.NoError(t, err)

	// Restored state is sanitized, so the dangling call is reported as a fix.
	mgr.SetMessages([]message.Message{
		message.User("go"),
		message.Assistant(message.ToolUseBlock("c1", "bash", nil)),
	})
	_, err = mgr.ExecuteCompaction(context.Background(), contextmgr.CompactionOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.CollectAndCount(metrics.Registry(), "tron_sanitizer_fixes_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.Registry(), "tron_compactions_total"))
}

// =============================================================================
// EVENT LOG
// =============================================================================

func TestEventLog(t *testing.T) {
	var buf bytes.Buffer
	l := monitoring.NewEventLog(&buf, "sess-1")

	l.RecordThreshold("normal", 0.1)
	l.RecordThreshold("normal", 0.2)
	l.RecordThreshold("alert", 0.72)
	l.RecordCompaction(contextmgr.OutcomeSuccess, 8000, 3000)
	l.RecordFix(sanitize.Fix{Type: sanitize.FixInjectedToolResult, ToolCallID: "c1", Details: "injected"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4, "unchanged threshold levels are not repeated")

	assert.Equal(t, monitoring.EventThreshold, gjson.Get(lines[0], "event").String())
	assert.Equal(t, "alert", gjson.Get(lines[1], "level").String())
	assert.Equal(t, "success", gjson.Get(lines[2], "outcome").String())
	assert.Equal(t, int64(3000), gjson.Get(lines[2], "tokens_after").Int())
	assert.Equal(t, "c1", gjson.Get(lines[3], "tool_call_id").String())
	for _, line := range lines {
		assert.Equal(t, "sess-1", gjson.Get(line, "session_id").String())
		assert.NotEmpty(t, gjson.Get(line, "timestamp").String())
	}
}

func TestOpenEventLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.jsonl")
	l, err := monitoring.OpenEventLog(path, "s")
	require.NoError(t, err)
	l.RecordCompaction(contextmgr.OutcomeNoop, 10, 10)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "noop", gjson.GetBytes(data, "outcome").String())
}

func TestRecorders_FanOut(t *testing.T) {
	var buf bytes.Buffer
	metrics := monitoring.NewMetrics()
	rs := monitoring.Recorders{metrics, monitoring.NewEventLog(&buf, "s")}

	rs.RecordFix(sanitize.Fix{Type: sanitize.FixRemovedEmptyMessage})
	rs.RecordCompaction(contextmgr.OutcomeFailed, 1, 1)
	rs.RecordThreshold("warning", 0.6)

	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.Registry(), "tron_compactions_total"))
}
