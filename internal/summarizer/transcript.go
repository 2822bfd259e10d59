package summarizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mhismail3/tron-sub010/internal/message"
)

// Transcript limits, in bytes.
const (
	MaxTranscriptChars = 150_000

	assistantTextLimit = 300
	thinkingLimit      = 500
	toolArgLimit       = 100
	toolResultLimit    = 100
)

// argumentPriority lists the tool arguments worth showing in a transcript.
var argumentPriority = []string{"file_path", "path", "command", "pattern", "url", "query"}

// SerializeMessages renders msgs as a compact tagged transcript for a
// summarization prompt. The result never exceeds MaxTranscriptChars plus the
// omission marker.
func SerializeMessages(msgs []message.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case message.RoleUser:
			if text := strings.TrimSpace(m.Content.PlainText()); text != "" {
				writeLine(&sb, "[USER]", text)
			}
		case message.RoleAssistant:
			for _, b := range m.Content.AsBlocks() {
				switch b.Type {
				case message.BlockText:
					if text := strings.TrimSpace(b.Text); text != "" {
						writeLine(&sb, "[ASSISTANT]", truncate(text, assistantTextLimit))
					}
				case message.BlockThinking:
					if text := strings.TrimSpace(b.Thinking); text != "" {
						writeLine(&sb, "[THINKING]", truncate(text, thinkingLimit))
					}
				case message.BlockToolUse:
					writeLine(&sb, "[TOOL_CALL]", formatToolCall(b))
				}
			}
		case message.RoleToolResult:
			tag := "[TOOL_RESULT]"
			if m.IsError {
				tag = "[TOOL_ERROR]"
			}
			writeLine(&sb, tag, truncate(strings.TrimSpace(m.Content.PlainText()), toolResultLimit))
		}
	}
	return capTranscript(sb.String())
}

func writeLine(sb *strings.Builder, tag, text string) {
	if sb.Len() > 0 {
		sb.WriteByte('\n')
	}
	sb.WriteString(tag)
	sb.WriteByte(' ')
	sb.WriteString(text)
}

func formatToolCall(b message.ContentBlock) string {
	var args []string
	for _, key := range argumentPriority {
		v, ok := b.Arguments[key]
		if !ok {
			continue
		}
		args = append(args, key+": "+truncate(argumentString(v), toolArgLimit))
	}
	return fmt.Sprintf("%s(%s)", b.Name, strings.Join(args, ", "))
}

func argumentString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// capTranscript keeps the first and last quarter of an oversized transcript.
func capTranscript(s string) string {
	if len(s) <= MaxTranscriptChars {
		return s
	}
	quarter := MaxTranscriptChars / 4
	head := s[:quarter]
	tail := s[len(s)-quarter:]
	omitted := len(s) - 2*quarter
	return head + fmt.Sprintf("\n[... %d characters omitted ...]\n", omitted) + tail
}
