package blocks

import (
	"encoding/json"
	"maps"
)

const (
	TypeText    = "text"
	TypeToolUse = "tool_use"
)

// ContentBlock represents one unit of parsed model output.
// The set of implementations is closed: TextBlock and ToolUseBlock.
type ContentBlock interface {
	IsContentBlock()
	Type() string
	IsPartial() bool

	frozen() ContentBlock
	clone() ContentBlock
}

// TextBlock is free-form text outside of any tool invocation.
type TextBlock struct {
	Content string `json:"content"`
	Partial bool   `json:"partial"`
}

func (t TextBlock) IsContentBlock() {}
func (t TextBlock) Type() string    { return TypeText }
func (t TextBlock) IsPartial() bool { return t.Partial }

func (t TextBlock) clone() ContentBlock {
	return t
}

func (t TextBlock) frozen() ContentBlock {
	t.Partial = false
	return t
}

// MarshalJSON adds the "type" discriminator.
func (t TextBlock) MarshalJSON() ([]byte, error) {
	type Alias TextBlock
	return json.Marshal(struct {
		Type string `json:"type"`
		Alias
	}{
		Type:  TypeText,
		Alias: Alias(t),
	})
}

// ToolUseBlock is a tool invocation extracted from the stream.
//
// Params values are strings when the call came from inline tags, and
// arbitrary decoded JSON values when it came from call deltas.
type ToolUseBlock struct {
	ID      string         `json:"id,omitempty"`
	Name    string         `json:"name"`
	Params  map[string]any `json:"params"`
	Partial bool           `json:"partial"`
}

func (t ToolUseBlock) IsContentBlock() {}
func (t ToolUseBlock) Type() string    { return TypeToolUse }
func (t ToolUseBlock) IsPartial() bool { return t.Partial }

func (t ToolUseBlock) frozen() ContentBlock {
	t.Partial = false
	return t
}

func (t ToolUseBlock) clone() ContentBlock {
	t.Params = cloneParams(t.Params)
	return t
}

// MarshalJSON adds the "type" discriminator.
func (t ToolUseBlock) MarshalJSON() ([]byte, error) {
	type Alias ToolUseBlock
	tmp := struct {
		Type string `json:"type"`
		Alias
	}{
		Type:  TypeToolUse,
		Alias: Alias(t),
	}
	if tmp.Params == nil {
		tmp.Params = map[string]any{}
	}
	return json.Marshal(tmp)
}

// StringParam returns a parameter value when it is a string.
func (t ToolUseBlock) StringParam(name string) (string, bool) {
	v, ok := t.Params[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := maps.Clone(params)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies the container types produced by encoding/json.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneParams(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
