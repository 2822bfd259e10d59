package summarizer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mhismail3/tron-sub010/internal/message"
)

const (
	keywordRequestLimit = 200
	keywordTopicLimit   = 80
)

// KeywordSummarizer builds a summary from user requests, tool names and file
// paths without calling a model. Its output depends only on its input.
type KeywordSummarizer struct{}

// NewKeywordSummarizer returns a KeywordSummarizer.
func NewKeywordSummarizer() KeywordSummarizer { return KeywordSummarizer{} }

// Summarize implements Summarizer.
func (KeywordSummarizer) Summarize(ctx context.Context, msgs []message.Message) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var requests, files, topics, tools []string
	for _, m := range msgs {
		switch m.Role {
		case message.RoleUser:
			if text := strings.TrimSpace(m.Content.PlainText()); text != "" {
				requests = append(requests, truncate(text, keywordRequestLimit))
			}
		case message.RoleAssistant:
			for _, b := range m.Content.AsBlocks() {
				switch b.Type {
				case message.BlockToolUse:
					tools = appendUnique(tools, b.Name)
					if p := pathArgument(b.Arguments); p != "" {
						files = appendUnique(files, p)
					}
				case message.BlockText:
					first, _, _ := strings.Cut(b.Text, ".")
					if topic := truncate(strings.TrimSpace(first), keywordTopicLimit); topic != "" {
						topics = appendUnique(topics, topic)
					}
				}
			}
		}
	}

	narrative := fmt.Sprintf("(%d messages summarized)", len(msgs))
	if len(requests) > 0 {
		parts := []string{
			fmt.Sprintf("The user made %d requests.", len(requests)),
			"Key requests: " + strings.Join(requests, "; "),
		}
		if len(tools) > 0 {
			parts = append(parts, "Tools used: "+strings.Join(tools, ", "))
		}
		if len(files) > 0 {
			parts = append(parts, "Files touched: "+strings.Join(files, ", "))
		}
		narrative = strings.Join(parts, " ")
	}

	data := ExtractedData{FilesModified: files, TopicsDiscussed: topics}
	if len(requests) > 0 {
		data.CurrentGoal = requests[0]
	}
	return &Result{Narrative: narrative, ExtractedData: data}, nil
}

func pathArgument(args map[string]any) string {
	for _, key := range []string{"file_path", "path"} {
		if s, ok := args[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func appendUnique(xs []string, s string) []string {
	for _, x := range xs {
		if x == s {
			return xs
		}
	}
	return append(xs, s)
}

// truncate cuts s to at most limit bytes on a rune boundary, marking the cut with "...".
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
