package parser

import (
	"log/slog"
	"strings"

	"github.com/tiancaiamao/toolstream/pkg/blocks"
	"github.com/tiancaiamao/toolstream/pkg/llm"
)

// pendingCall accumulates the argument fragments of one structured call.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// DeltaAccumulator reassembles structured tool calls from streamed
// fragments and appends each one as a frozen ToolUseBlock as soon as its
// arguments form a complete JSON object.
//
// Fragments are routed by index when present (providers usually send the
// id only on the first fragment) and by id otherwise. Each call is emitted
// at most once; later fragments for it are ignored.
//
// A DeltaAccumulator is not safe for concurrent use.
type DeltaAccumulator struct {
	sink  blocks.Sink
	allow *AllowList
	opts  Options
	log   *slog.Logger
	stats *Stats

	calls     map[string]*pendingCall
	order     []string // call ids in creation order
	indexToID map[int]string
	finalized map[string]bool

	// beforeEmit runs before a call is appended to the sink.
	beforeEmit func()
}

// NewDeltaAccumulator creates an accumulator over allow. Without WithSink
// it writes into its own blocks.List.
func NewDeltaAccumulator(allow *AllowList, opts ...Option) *DeltaAccumulator {
	if allow == nil {
		allow = NewAllowList()
	}
	o := buildOptions(opts)
	a := &DeltaAccumulator{
		sink:  o.Sink,
		allow: allow,
		opts:  o,
		log:   o.Logger,
		stats: o.stats,
	}
	a.Reset()
	return a
}

// Sink returns the sink the accumulator writes into.
func (a *DeltaAccumulator) Sink() blocks.Sink {
	return a.sink
}

// ProcessDeltas applies deltas in order. Deltas that cannot be applied are
// logged and dropped; they never fail the stream.
func (a *DeltaAccumulator) ProcessDeltas(deltas []llm.CallDelta) {
	for _, d := range deltas {
		a.process(d)
	}
}

func (a *DeltaAccumulator) process(d llm.CallDelta) {
	a.stats.Deltas++

	id, ok := a.resolveID(d)
	if !ok {
		a.drop(d, "no call id")
		return
	}
	if a.finalized[id] {
		a.log.Debug("[Deltas] fragment for completed call ignored", "id", id)
		return
	}

	call, exists := a.calls[id]
	if d.Name != "" {
		if !a.allow.HasTool(d.Name) {
			a.drop(d, "tool not allowed")
			return
		}
		if !exists {
			call = &pendingCall{id: id, name: d.Name}
			a.calls[id] = call
			a.order = append(a.order, id)
			a.log.Debug("[Deltas] call started", "id", id, "tool", d.Name)
		}
	} else if !exists {
		a.drop(d, "fragment before tool name")
		return
	}

	if call.args.Len()+len(d.Arguments) > a.opts.MaxBufferBytes {
		a.discard(call, "arguments exceed size cap")
		return
	}
	call.args.WriteString(d.Arguments)
	a.tryEmit(call)
}

// resolveID maps a delta to its call id. An index seen together with an id
// binds that index to the id; later index-only fragments follow the binding.
func (a *DeltaAccumulator) resolveID(d llm.CallDelta) (string, bool) {
	if d.Index != nil {
		if d.ID != "" {
			a.indexToID[*d.Index] = d.ID
			return d.ID, true
		}
		id, ok := a.indexToID[*d.Index]
		return id, ok
	}
	if d.ID != "" {
		return d.ID, true
	}
	return "", false
}

func (a *DeltaAccumulator) tryEmit(call *pendingCall) {
	params, complete, isObject := parseArguments(call.args.String())
	if !complete {
		return
	}
	if !isObject {
		a.discard(call, "arguments are not a JSON object")
		return
	}
	a.emit(call, params)
}

func (a *DeltaAccumulator) emit(call *pendingCall, params map[string]any) {
	if a.beforeEmit != nil {
		a.beforeEmit()
	}
	a.sink.Append(blocks.ToolUseBlock{
		ID:     call.id,
		Name:   call.name,
		Params: params,
	})
	a.finish(call)
	a.stats.CallsEmitted++
	a.log.Debug("[Deltas] call emitted", "id", call.id, "tool", call.name, "params", len(params))
}

func (a *DeltaAccumulator) discard(call *pendingCall, reason string) {
	a.finish(call)
	a.stats.CallsDiscarded++
	a.log.Warn("[Deltas] call discarded", "id", call.id, "tool", call.name, "reason", reason, "bytes", call.args.Len())
}

func (a *DeltaAccumulator) finish(call *pendingCall) {
	a.finalized[call.id] = true
	delete(a.calls, call.id)
}

func (a *DeltaAccumulator) drop(d llm.CallDelta, reason string) {
	a.stats.DeltasDropped++
	a.log.Warn("[Deltas] delta dropped", "reason", reason, "delta", d.String())
}

// Finalize flushes calls still waiting for arguments. A call that never
// received any argument text is emitted with empty params; one whose
// arguments do not parse is discarded.
func (a *DeltaAccumulator) Finalize() {
	for _, id := range a.order {
		call, ok := a.calls[id]
		if !ok {
			continue
		}
		if strings.TrimSpace(call.args.String()) == "" {
			a.emit(call, map[string]any{})
			continue
		}
		a.discard(call, "incomplete arguments at end of stream")
	}
	a.order = a.order[:0]
}

// Pending returns the number of calls still accumulating.
func (a *DeltaAccumulator) Pending() int {
	return len(a.calls)
}

// Reset forgets all calls, bindings and completed ids.
func (a *DeltaAccumulator) Reset() {
	a.calls = make(map[string]*pendingCall)
	a.order = nil
	a.indexToID = make(map[int]string)
	a.finalized = make(map[string]bool)
}
