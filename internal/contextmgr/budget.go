package contextmgr

import (
	"unicode/utf8"

	"github.com/mhismail3/tron-sub010/internal/tokens"
)

const charsPerToken = tokens.CharsPerToken

// TruncationMarker ends a tool output cut to fit the budget.
const TruncationMarker = "\n\n[truncated]"

// MaxToolResultSize returns the largest tool output, in bytes, that fits
// the remaining budget. The response reserve and a 10% margin come off the
// remaining tokens first; the result never drops below the configured floor
// nor exceeds the configured cap.
func (m *Manager) MaxToolResultSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxToolResultSizeLocked()
}

func (m *Manager) maxToolResultSizeLocked() int {
	remaining := m.model.ContextWindow - m.currentTokensLocked()
	available := remaining - m.cfg.ResponseReserveTokens - remaining/10
	if available < m.cfg.MinToolResultTokens {
		available = m.cfg.MinToolResultTokens
	}
	chars := available * charsPerToken
	if chars > m.cfg.MaxToolResultChars {
		chars = m.cfg.MaxToolResultChars
	}
	return chars
}

// ProcessToolResult fits content to MaxToolResultSize.
func (m *Manager) ProcessToolResult(content string) ToolResultOutput {
	limit := m.MaxToolResultSize()
	out := ToolResultOutput{Content: content, OriginalSize: len(content)}
	if len(content) <= limit {
		return out
	}

	out.Truncated = true
	keep := limit - len(TruncationMarker)
	if keep < 0 {
		out.Content = cutUTF8(content, limit)
		return out
	}
	out.Content = cutUTF8(content, keep) + TruncationMarker

	m.logger.Debug().
		Int("original_size", len(content)).
		Int("limit", limit).
		Msg("context: tool result truncated")
	return out
}

// cutUTF8 returns the longest prefix of s not longer than n bytes that does
// not split a rune.
func cutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
