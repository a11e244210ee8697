package llm

import "strconv"

// CallDelta is one streamed fragment of a structured tool call, in the
// chat-completions "tool_calls" delta shape:
//
//	{"index":0,"id":"call_1","type":"function","function":{"name":"read_file","arguments":"{\"pa"}}
//
// Index and ID are both optional; usually only the first fragment of a
// call carries the ID and the name.
type CallDelta struct {
	Index     *int   `json:"index,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// HasIndex reports whether the delta carries an index.
func (d CallDelta) HasIndex() bool {
	return d.Index != nil
}

// String renders the delta for logs.
func (d CallDelta) String() string {
	idx := "-"
	if d.Index != nil {
		idx = strconv.Itoa(*d.Index)
	}
	return "delta{index=" + idx + " id=" + d.ID + " name=" + d.Name + " args=" + strconv.Quote(d.Arguments) + "}"
}

// IndexedDelta is a convenience constructor for a delta with an index.
func IndexedDelta(index int, id, name, arguments string) CallDelta {
	return CallDelta{
		Index:     &index,
		ID:        id,
		Name:      name,
		Arguments: arguments,
	}
}

// Usage represents token usage information.
type Usage struct {
	InputTokens  int `json:"prompt_tokens"`
	OutputTokens int `json:"completion_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// StreamChunk is the decoded content of one streaming response payload.
type StreamChunk struct {
	Content          string
	ReasoningContent string
	ToolCalls        []CallDelta
	FinishReason     string
	Usage            *Usage
}

// Empty reports whether the chunk carries nothing a parser needs.
func (c StreamChunk) Empty() bool {
	return c.Content == "" && c.ReasoningContent == "" && len(c.ToolCalls) == 0 && c.FinishReason == ""
}
