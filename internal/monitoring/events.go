// Package monitoring - events.go appends context events to a JSONL file.
//
// DESIGN: One JSON object per line, written as soon as the event happens so
// the file can be tailed while a session runs. Threshold observations are
// only written when the level changes.
package monitoring

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mhismail3/tron-sub010/internal/contextmgr"
	"github.com/mhismail3/tron-sub010/internal/sanitize"
)

// Event types.
const (
	EventCompaction = "compaction"
	EventThreshold  = "threshold_changed"
	EventFix        = "sanitizer_fix"
)

// Event is one line of the event log.
type Event struct {
	Timestamp    string  `json:"timestamp"`
	Event        string  `json:"event"`
	SessionID    string  `json:"session_id,omitempty"`
	Outcome      string  `json:"outcome,omitempty"`
	TokensBefore int     `json:"tokens_before,omitempty"`
	TokensAfter  int     `json:"tokens_after,omitempty"`
	Level        string  `json:"level,omitempty"`
	UsagePercent float64 `json:"usage_percent,omitempty"`
	FixType      string  `json:"fix_type,omitempty"`
	ToolCallID   string  `json:"tool_call_id,omitempty"`
	Details      string  `json:"details,omitempty"`
}

// EventLog writes events to w.
type EventLog struct {
	mu        sync.Mutex
	w         io.Writer
	closer    io.Closer
	sessionID string
	lastLevel string
	now       func() time.Time
}

// NewEventLog writes events to w, tagging each with sessionID.
func NewEventLog(w io.Writer, sessionID string) *EventLog {
	return &EventLog{w: w, sessionID: sessionID, now: time.Now}
}

// OpenEventLog appends events to the file at path, creating its directory.
func OpenEventLog(path, sessionID string) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	l := NewEventLog(f, sessionID)
	l.closer = f
	return l, nil
}

// Log writes e, filling the timestamp and session id.
func (l *EventLog) Log(e Event) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLocked(e)
}

func (l *EventLog) writeLocked(e Event) {
	if e.Timestamp == "" {
		e.Timestamp = l.now().UTC().Format(time.RFC3339Nano)
	}
	if e.SessionID == "" {
		e.SessionID = l.sessionID
	}
	if data, err := json.Marshal(e); err == nil {
		_, _ = l.w.Write(append(data, '\n'))
	}
}

// RecordCompaction implements contextmgr.MetricsRecorder.
func (l *EventLog) RecordCompaction(outcome string, tokensBefore, tokensAfter int) {
	l.Log(Event{Event: EventCompaction, Outcome: outcome, TokensBefore: tokensBefore, TokensAfter: tokensAfter})
}

// RecordThreshold implements contextmgr.MetricsRecorder.
func (l *EventLog) RecordThreshold(level string, usage float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level == l.lastLevel {
		return
	}
	l.lastLevel = level
	l.writeLocked(Event{Event: EventThreshold, Level: level, UsagePercent: usage})
}

// RecordFix implements sanitize.FixRecorder.
func (l *EventLog) RecordFix(f sanitize.Fix) {
	l.Log(Event{Event: EventFix, FixType: string(f.Type), ToolCallID: f.ToolCallID, Details: f.Details})
}

// Close closes the underlying file, if OpenEventLog created one.
func (l *EventLog) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// =============================================================================
// FAN-OUT
// =============================================================================

// Recorder receives everything the context manager and sanitizer report.
type Recorder interface {
	contextmgr.MetricsRecorder
	sanitize.FixRecorder
}

// Recorders forwards to every element.
type Recorders []Recorder

// RecordCompaction implements contextmgr.MetricsRecorder.
func (rs Recorders) RecordCompaction(outcome string, tokensBefore, tokensAfter int) {
	for _, r := range rs {
		r.RecordCompaction(outcome, tokensBefore, tokensAfter)
	}
}

// RecordThreshold implements contextmgr.MetricsRecorder.
func (rs Recorders) RecordThreshold(level string, usage float64) {
	for _, r := range rs {
		r.RecordThreshold(level, usage)
	}
}

// RecordFix implements sanitize.FixRecorder.
func (rs Recorders) RecordFix(f sanitize.Fix) {
	for _, r := range rs {
		r.RecordFix(f)
	}
}

var (
	_ Recorder = (*EventLog)(nil)
	_ Recorder = (*Metrics)(nil)
	_ Recorder = Recorders(nil)
)
