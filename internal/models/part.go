package models

// PartType discriminates the closed set of message part variants.
// Every consumption site must switch over all of these.
type PartType string

const (
	PartText       PartType = "text"
	PartReasoning  PartType = "reasoning"
	PartSource     PartType = "source"
	PartFile       PartType = "file"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

// Part is a typed fragment of a message's content. Exactly one payload
// field matching Type is set.
type Part struct {
	Type PartType `json:"type"`

	// PartText and PartReasoning payload.
	Text string `json:"text,omitempty"`

	Source     *SourceRef  `json:"source,omitempty"`
	File       *FileRef    `json:"file,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// SourceRef cites an external document the model drew on.
type SourceRef struct {
	ID    string `json:"id,omitempty"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// FileRef points at file content embedded in the exchange.
type FileRef struct {
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// ToolCall records a tool invocation requested by the model.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args,omitempty"`
}

// ToolResult records the outcome of a tool invocation.
type ToolResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result string `json:"result"`
}

// TextPart builds a plain text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ReasoningPart builds a reasoning-token part.
func ReasoningPart(text string) Part {
	return Part{Type: PartReasoning, Text: text}
}

// CloneParts deep-copies a part sequence.
func CloneParts(parts []Part) []Part {
	if parts == nil {
		return nil
	}
	out := make([]Part, len(parts))
	for i, p := range parts {
		out[i] = p
		if p.Source != nil {
			s := *p.Source
			out[i].Source = &s
		}
		if p.File != nil {
			f := *p.File
			out[i].File = &f
		}
		if p.ToolCall != nil {
			c := *p.ToolCall
			out[i].ToolCall = &c
		}
		if p.ToolResult != nil {
			r := *p.ToolResult
			out[i].ToolResult = &r
		}
	}
	return out
}

// PartsEqual reports whether two part sequences carry identical content,
// comparing every variant payload by value.
func PartsEqual(a, b []Part) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !partEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func partEqual(a, b Part) bool {
	if a.Type != b.Type || a.Text != b.Text {
		return false
	}
	if !refEqual(a.Source, b.Source) || !refEqual(a.File, b.File) {
		return false
	}
	return refEqual(a.ToolCall, b.ToolCall) && refEqual(a.ToolResult, b.ToolResult)
}

func refEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// JoinTextParts concatenates the text of all text parts, which by the
// content/parts invariant equals the message content.
func JoinTextParts(parts []Part) string {
	var out string
	for _, p := range parts {
		switch p.Type {
		case PartText:
			out += p.Text
		case PartReasoning, PartSource, PartFile, PartToolCall, PartToolResult:
			// not message content
		}
	}
	return out
}
