package summarizer

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseResponse extracts a Result from a model answer. The answer may be
// wrapped in a markdown code fence; narrative is required, everything else
// is optional.
func ParseResponse(text string) (*Result, error) {
	body := stripFence(strings.TrimSpace(text))
	if !gjson.Valid(body) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrMalformedResponse)
	}
	root := gjson.Parse(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedResponse)
	}

	res := &Result{Narrative: strings.TrimSpace(root.Get("narrative").String())}
	if err := res.Validate(); err != nil {
		return nil, err
	}

	data := root.Get("extractedData")
	res.ExtractedData = ExtractedData{
		CurrentGoal:      data.Get("currentGoal").String(),
		CompletedSteps:   stringArray(data.Get("completedSteps")),
		PendingTasks:     stringArray(data.Get("pendingTasks")),
		FilesModified:    stringArray(data.Get("filesModified")),
		TopicsDiscussed:  stringArray(data.Get("topicsDiscussed")),
		UserPreferences:  stringArray(data.Get("userPreferences")),
		ImportantContext: stringArray(data.Get("importantContext")),
	}
	data.Get("keyDecisions").ForEach(func(_, v gjson.Result) bool {
		d := KeyDecision{
			Decision: v.Get("decision").String(),
			Reason:   v.Get("reason").String(),
		}
		if d.Decision != "" {
			res.ExtractedData.KeyDecisions = append(res.ExtractedData.KeyDecisions, d)
		}
		return true
	})
	return res, nil
}

func stringArray(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	var out []string
	for _, v := range r.Array() {
		if v.Type == gjson.String && v.Str != "" {
			out = append(out, v.Str)
		}
	}
	return out
}

// stripFence removes a surrounding ``` or ```json fence.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
