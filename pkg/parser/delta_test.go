package parser

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiancaiamao/toolstream/pkg/blocks"
	"github.com/tiancaiamao/toolstream/pkg/llm"
)

func newTestAccumulator(allow *AllowList, opts ...Option) *DeltaAccumulator {
	return NewDeltaAccumulator(allow, append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)...)
}

func TestDeltaAccumulatorCompletesOnce(t *testing.T) {
	a := newTestAccumulator(NewAllowList().Add("f"))
	a.ProcessDeltas([]llm.CallDelta{
		llm.IndexedDelta(0, "a", "f", `{"x":`),
		llm.IndexedDelta(0, "", "", `1}`),
		llm.IndexedDelta(0, "", "", `}`),
	})

	requireBlocks(t, []blocks.ContentBlock{
		toolUse("a", "f", map[string]any{"x": float64(1)}),
	}, a.Sink().Snapshot())
	assert.Zero(t, a.Pending())
	assert.Equal(t, int64(1), a.stats.CallsEmitted)
	assert.Zero(t, a.stats.DeltasDropped, "fragments after completion are ignored, not dropped")
}

func TestDeltaAccumulatorRouting(t *testing.T) {
	allow := NewAllowList().Add("read_file", "path").Add("list_files", "path")

	t.Run("interleaved by index", func(t *testing.T) {
		a := newTestAccumulator(allow)
		a.ProcessDeltas([]llm.CallDelta{
			llm.IndexedDelta(0, "call_1", "read_file", `{"path":`),
			llm.IndexedDelta(1, "call_2", "list_files", `{"path":`),
			llm.IndexedDelta(1, "", "", `"."}`),
			llm.IndexedDelta(0, "", "", `"a.go"}`),
		})
		requireBlocks(t, []blocks.ContentBlock{
			toolUse("call_2", "list_files", map[string]any{"path": "."}),
			toolUse("call_1", "read_file", map[string]any{"path": "a.go"}),
		}, a.Sink().Snapshot())
	})

	t.Run("by id without index", func(t *testing.T) {
		a := newTestAccumulator(allow)
		a.ProcessDeltas([]llm.CallDelta{
			{ID: "call_1", Name: "read_file", Arguments: `{"pa`},
			{ID: "call_1", Arguments: `th":"b.go"}`},
		})
		requireBlocks(t, []blocks.ContentBlock{
			toolUse("call_1", "read_file", map[string]any{"path": "b.go"}),
		}, a.Sink().Snapshot())
	})

	t.Run("index reused for a new id", func(t *testing.T) {
		a := newTestAccumulator(allow)
		a.ProcessDeltas([]llm.CallDelta{
			llm.IndexedDelta(0, "call_1", "read_file", `{"path":"a"}`),
			llm.IndexedDelta(0, "call_2", "read_file", `{"path":`),
			llm.IndexedDelta(0, "", "", `"b"}`),
		})
		requireBlocks(t, []blocks.ContentBlock{
			toolUse("call_1", "read_file", map[string]any{"path": "a"}),
			toolUse("call_2", "read_file", map[string]any{"path": "b"}),
		}, a.Sink().Snapshot())
	})

	t.Run("unresolvable deltas are dropped", func(t *testing.T) {
		a := newTestAccumulator(allow)
		a.ProcessDeltas([]llm.CallDelta{
			llm.IndexedDelta(3, "", "", `{"path":"x"}`), // index never bound
			{Arguments: `{}`},               // neither index nor id
			{ID: "call_9", Arguments: `{}`}, // fragment before name
		})
		assert.Empty(t, a.Sink().Snapshot())
		assert.Equal(t, int64(3), a.stats.DeltasDropped)
	})
}

func TestDeltaAccumulatorUnknownTool(t *testing.T) {
	a := newTestAccumulator(NewAllowList().Add("read_file", "path"))
	a.ProcessDeltas([]llm.CallDelta{
		llm.IndexedDelta(0, "call_1", "rm_rf", `{"path":`),
		llm.IndexedDelta(0, "", "", `"/"}`),
	})
	assert.Empty(t, a.Sink().Snapshot())
	assert.Equal(t, int64(2), a.stats.DeltasDropped, "each fragment of a rejected call is dropped on its own")

	// Rejecting a name does not retire the id.
	a.ProcessDeltas([]llm.CallDelta{llm.IndexedDelta(0, "call_1", "read_file", `{"path":"a"}`)})
	requireBlocks(t, []blocks.ContentBlock{
		toolUse("call_1", "read_file", map[string]any{"path": "a"}),
	}, a.Sink().Snapshot())
	assert.Equal(t, int64(2), a.stats.DeltasDropped)
}

func TestDeltaAccumulatorNonObjectArguments(t *testing.T) {
	a := newTestAccumulator(NewAllowList().Add("f"))
	a.ProcessDeltas([]llm.CallDelta{
		llm.IndexedDelta(0, "a", "f", `[1,2]`),
		llm.IndexedDelta(0, "", "", `{"x":1}`),
	})
	assert.Empty(t, a.Sink().Snapshot())
	assert.Equal(t, int64(1), a.stats.CallsDiscarded)

	a.Finalize()
	assert.Empty(t, a.Sink().Snapshot(), "a discarded call is not revived on Finalize")
}

func TestDeltaAccumulatorRepairsDoubleEncoding(t *testing.T) {
	a := newTestAccumulator(NewAllowList().Add("f"))
	a.ProcessDeltas([]llm.CallDelta{
		llm.IndexedDelta(0, "a", "f", `{"cfg":"{\"a\":[1,\"[2]\"]}","s":"{not json}","t":"plain"}`),
	})
	requireBlocks(t, []blocks.ContentBlock{
		toolUse("a", "f", map[string]any{
			"cfg": map[string]any{"a": []any{float64(1), []any{float64(2)}}},
			"s":   "{not json}",
			"t":   "plain",
		}),
	}, a.Sink().Snapshot())
}

func TestDeltaAccumulatorFinalize(t *testing.T) {
	a := newTestAccumulator(NewAllowList().Add("f").Add("g"))
	a.ProcessDeltas([]llm.CallDelta{
		llm.IndexedDelta(0, "a", "f", ""),
		llm.IndexedDelta(1, "b", "g", `{"x":`),
		llm.IndexedDelta(2, "c", "f", "  "),
	})
	require.Equal(t, 3, a.Pending())

	a.Finalize()
	requireBlocks(t, []blocks.ContentBlock{
		toolUse("a", "f", map[string]any{}),
		toolUse("c", "f", map[string]any{}),
	}, a.Sink().Snapshot())
	assert.Zero(t, a.Pending())
	assert.Equal(t, int64(1), a.stats.CallsDiscarded)

	// Finalized ids stay inert.
	a.ProcessDeltas([]llm.CallDelta{llm.IndexedDelta(1, "", "", `1}`)})
	assert.Len(t, a.Sink().Snapshot(), 2)
}

func TestDeltaAccumulatorArgumentCap(t *testing.T) {
	a := newTestAccumulator(NewAllowList().Add("f"), WithMaxBufferBytes(8))
	a.ProcessDeltas([]llm.CallDelta{
		llm.IndexedDelta(0, "a", "f", `{"x":`),
		llm.IndexedDelta(0, "", "", `"long"}`),
	})
	assert.Empty(t, a.Sink().Snapshot())
	assert.Equal(t, int64(1), a.stats.CallsDiscarded)
}

func TestDeltaAccumulatorReset(t *testing.T) {
	a := newTestAccumulator(NewAllowList().Add("f"))
	a.ProcessDeltas([]llm.CallDelta{
		llm.IndexedDelta(0, "a", "f", `{}`),
		llm.IndexedDelta(1, "b", "f", `{`),
	})
	a.Reset()
	assert.Zero(t, a.Pending())

	// The same id is accepted again after Reset.
	a.ProcessDeltas([]llm.CallDelta{llm.IndexedDelta(0, "a", "f", `{"y":true}`)})
	snap := a.Sink().Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, toolUse("a", "f", map[string]any{"y": true}), snap[1])
}
