package blocks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAppendFreezesOpenBlock(t *testing.T) {
	l := NewList()
	h1 := l.Append(TextBlock{Content: "a", Partial: true})
	assert.True(t, l.IsOpen(h1))

	h2 := l.Append(ToolUseBlock{Name: "read_file", Partial: true})
	assert.False(t, l.IsOpen(h1))
	assert.True(t, l.IsOpen(h2))

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	assert.False(t, snap[0].IsPartial())
	assert.True(t, snap[1].IsPartial())

	// A complete block does not become the open one.
	h3 := l.Append(ToolUseBlock{Name: "list_files"})
	assert.False(t, l.IsOpen(h3))
	assert.Equal(t, 3, l.Len())
}

func TestListAppendCompleteBlock(t *testing.T) {
	l := NewList()
	text := l.Append(TextBlock{Content: "a", Partial: true})
	l.Append(ToolUseBlock{ID: "call_1", Name: "list_files"})
	assert.False(t, l.IsOpen(text), "a complete block freezes open text")

	tool := l.Append(ToolUseBlock{ID: "tool-1", Name: "read_file", Params: map[string]any{}, Partial: true})
	l.Append(ToolUseBlock{ID: "call_2", Name: "list_files"})
	assert.True(t, l.IsOpen(tool), "a complete block leaves an open tool use streaming")
	h, ok := l.Open()
	require.True(t, ok)
	assert.Equal(t, tool, h)

	assert.True(t, l.UpdateToolUse(tool, func(tb *ToolUseBlock) {
		tb.Params["path"] = "a.go"
		tb.Partial = false
	}))
	assert.Equal(t, []ContentBlock{
		TextBlock{Content: "a"},
		ToolUseBlock{ID: "call_1", Name: "list_files"},
		ToolUseBlock{ID: "tool-1", Name: "read_file", Params: map[string]any{"path": "a.go"}},
		ToolUseBlock{ID: "call_2", Name: "list_files"},
	}, l.Snapshot())

	// A partial block still closes whatever is open.
	tool = l.Append(ToolUseBlock{Name: "f", Partial: true})
	next := l.Append(TextBlock{Partial: true})
	assert.False(t, l.IsOpen(tool))
	assert.True(t, l.IsOpen(next))
}

func TestListUpdateOnlyOpenBlock(t *testing.T) {
	l := NewList()
	text := l.Append(TextBlock{Partial: true})

	assert.True(t, l.UpdateText(text, func(tb *TextBlock) { tb.Content = "hi" }))
	assert.False(t, l.UpdateToolUse(text, func(*ToolUseBlock) {}), "wrong block type")

	tool := l.Append(ToolUseBlock{Name: "f", Params: map[string]any{}, Partial: true})
	assert.False(t, l.UpdateText(text, func(tb *TextBlock) { tb.Content = "changed" }), "frozen block")
	assert.True(t, l.UpdateToolUse(tool, func(tb *ToolUseBlock) { tb.Params["k"] = "v" }))

	// Completing a block through an update closes it.
	assert.True(t, l.UpdateToolUse(tool, func(tb *ToolUseBlock) { tb.Partial = false }))
	assert.False(t, l.IsOpen(tool))
	assert.False(t, l.UpdateToolUse(tool, func(tb *ToolUseBlock) { tb.Name = "g" }))

	assert.Equal(t, []ContentBlock{
		TextBlock{Content: "hi"},
		ToolUseBlock{Name: "f", Params: map[string]any{"k": "v"}},
	}, l.Snapshot())
	assert.False(t, l.UpdateText(NoHandle, func(*TextBlock) {}))
}

func TestListFreeze(t *testing.T) {
	l := NewList()
	h := l.Append(TextBlock{Content: "x", Partial: true})
	l.Freeze(h)
	l.Freeze(h)
	l.Freeze(Handle(42))
	l.Freeze(NoHandle)
	assert.Equal(t, []ContentBlock{TextBlock{Content: "x"}}, l.Snapshot())
}

func TestSnapshotDeepCopies(t *testing.T) {
	l := NewList()
	l.Append(ToolUseBlock{
		Name: "f",
		Params: map[string]any{
			"obj":  map[string]any{"k": "v"},
			"list": []any{"a", map[string]any{"n": float64(1)}},
		},
	})

	snap := l.Snapshot()
	tu := snap[0].(ToolUseBlock)
	tu.Params["obj"].(map[string]any)["k"] = "changed"
	tu.Params["list"].([]any)[1].(map[string]any)["n"] = float64(2)
	tu.Params["new"] = true

	again := l.Snapshot()[0].(ToolUseBlock)
	assert.Equal(t, map[string]any{
		"obj":  map[string]any{"k": "v"},
		"list": []any{"a", map[string]any{"n": float64(1)}},
	}, again.Params)
}

func TestListReset(t *testing.T) {
	l := NewList()
	l.Append(TextBlock{Content: "x", Partial: true})
	l.Reset()
	assert.Zero(t, l.Len())
	_, ok := l.Open()
	assert.False(t, ok)
}

func TestBlockJSON(t *testing.T) {
	data, err := json.Marshal([]ContentBlock{
		TextBlock{Content: "hi", Partial: true},
		ToolUseBlock{ID: "call_1", Name: "read_file"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"type":"text","content":"hi","partial":true},
		{"type":"tool_use","id":"call_1","name":"read_file","params":{},"partial":false}
	]`, string(data))
}

func TestStringParam(t *testing.T) {
	tu := ToolUseBlock{Params: map[string]any{"path": "a.go", "n": float64(1)}}

	v, ok := tu.StringParam("path")
	assert.True(t, ok)
	assert.Equal(t, "a.go", v)

	_, ok = tu.StringParam("n")
	assert.False(t, ok)
	_, ok = tu.StringParam("missing")
	assert.False(t, ok)
}
