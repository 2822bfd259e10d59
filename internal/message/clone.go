package message

// Clone returns a deep copy of m. Argument maps and nested tool result content
// are copied field by field so the copy shares no mutable state with m.
func (m Message) Clone() Message {
	out := m
	out.Content = m.Content.Clone()
	if m.Timestamp != nil {
		ts := *m.Timestamp
		out.Timestamp = &ts
	}
	if m.Usage != nil {
		u := *m.Usage
		out.Usage = &u
	}
	if m.Cost != nil {
		c := *m.Cost
		out.Cost = &c
	}
	return out
}

// Clone returns a deep copy of c, preserving the string/block distinction.
func (c Content) Clone() Content {
	if c.Blocks == nil {
		return Content{Text: c.Text}
	}
	blocks := make([]ContentBlock, len(c.Blocks))
	for i, b := range c.Blocks {
		blocks[i] = b.Clone()
	}
	return Content{Text: c.Text, Blocks: blocks}
}

// Clone returns a deep copy of b.
func (b ContentBlock) Clone() ContentBlock {
	out := b
	if b.Arguments != nil {
		out.Arguments = cloneMap(b.Arguments)
	}
	if b.Content != nil {
		c := b.Content.Clone()
		out.Content = &c
	}
	if b.Raw != nil {
		out.Raw = append([]byte(nil), b.Raw...)
	}
	return out
}

// CloneAll deep-copies a message slice. A nil input yields an empty slice.
func CloneAll(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	case []byte:
		return append([]byte(nil), t...)
	default:
		// strings, numbers, bools and nil are immutable
		return v
	}
}
