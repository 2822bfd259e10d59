package contextmgr

import (
	"github.com/mhismail3/tron-sub010/internal/message"
)

// ExportState returns a copy of the session suitable for persistence.
func (m *Manager) ExportState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		SessionID:    m.sessionID,
		Model:        m.model.ID,
		SystemPrompt: m.cfg.SystemPrompt,
		Messages:     message.CloneAll(m.messages),
	}
}

// Restore loads s into m. Messages are sanitized on the way in; the session
// id of m is kept.
func (m *Manager) Restore(s State) {
	m.mutate(func() {
		if s.Model != "" {
			m.model = m.registry.Lookup(s.Model)
		}
		m.cfg.SystemPrompt = s.SystemPrompt
		m.messages = m.sanitize(s.Messages, true)
	})
}

// NewFromState builds a Manager that resumes s. s.Model and s.SystemPrompt
// take precedence over cfg.
func NewFromState(s State, cfg Config, opts ...Option) (*Manager, error) {
	if s.Model != "" {
		cfg.Model = s.Model
	}
	cfg.SystemPrompt = s.SystemPrompt
	if s.SessionID != "" {
		opts = append(opts, WithSessionID(s.SessionID))
	}
	m, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	m.Restore(s)
	return m, nil
}
