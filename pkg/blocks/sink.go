package blocks

// Handle addresses a block in a Sink by position.
type Handle int

// NoHandle is the zero value for "no block".
const NoHandle Handle = -1

// Valid reports whether h refers to a position.
func (h Handle) Valid() bool { return h >= 0 }

// Sink is an ordered, index-addressable block collection shared by the
// tag scanner and the delta accumulator. Blocks are never removed.
//
// At most one block is open at a time. Appending a partial block freezes
// the currently open one. Appending a complete block freezes an open text
// block but leaves an open tool use streaming. A frozen block can no longer
// be updated.
type Sink interface {
	Append(b ContentBlock) Handle
	UpdateText(h Handle, fn func(*TextBlock)) bool
	UpdateToolUse(h Handle, fn func(*ToolUseBlock)) bool
	Freeze(h Handle)
	IsOpen(h Handle) bool
	Open() (Handle, bool)
	Len() int
	Snapshot() []ContentBlock
	Reset()
}

// List is the default Sink backed by a slice.
// It is not safe for concurrent use.
type List struct {
	blocks []ContentBlock
	open   Handle
}

var _ Sink = (*List)(nil)

// NewList creates an empty block list.
func NewList() *List {
	return &List{open: NoHandle}
}

// Append adds b to the end of the list and returns its handle. A partial
// block becomes the open block.
func (l *List) Append(b ContentBlock) Handle {
	if l.open.Valid() && (b.IsPartial() || l.blocks[l.open].Type() == TypeText) {
		l.Freeze(l.open)
	}
	l.blocks = append(l.blocks, b)
	h := Handle(len(l.blocks) - 1)
	if b.IsPartial() {
		l.open = h
	}
	return h
}

// UpdateText mutates the open text block at h. It returns false when h is
// not the open block or does not hold text.
func (l *List) UpdateText(h Handle, fn func(*TextBlock)) bool {
	if h != l.open || !h.Valid() {
		return false
	}
	tb, ok := l.blocks[h].(TextBlock)
	if !ok {
		return false
	}
	fn(&tb)
	l.store(h, tb)
	return true
}

// UpdateToolUse mutates the open tool-use block at h.
func (l *List) UpdateToolUse(h Handle, fn func(*ToolUseBlock)) bool {
	if h != l.open || !h.Valid() {
		return false
	}
	tb, ok := l.blocks[h].(ToolUseBlock)
	if !ok {
		return false
	}
	fn(&tb)
	l.store(h, tb)
	return true
}

func (l *List) store(h Handle, b ContentBlock) {
	l.blocks[h] = b
	if !b.IsPartial() {
		l.open = NoHandle
	}
}

// Freeze marks the block at h as complete. Freezing twice is a no-op.
func (l *List) Freeze(h Handle) {
	if !h.Valid() || int(h) >= len(l.blocks) {
		return
	}
	if l.blocks[h].IsPartial() {
		l.blocks[h] = l.blocks[h].frozen()
	}
	if l.open == h {
		l.open = NoHandle
	}
}

// IsOpen reports whether h is the block currently being extended.
func (l *List) IsOpen(h Handle) bool {
	return h.Valid() && h == l.open
}

// Open returns the handle of the open block, if any.
func (l *List) Open() (Handle, bool) {
	return l.open, l.open.Valid()
}

// Len returns the number of blocks.
func (l *List) Len() int {
	return len(l.blocks)
}

// Snapshot returns a deep copy of all blocks in order.
func (l *List) Snapshot() []ContentBlock {
	out := make([]ContentBlock, len(l.blocks))
	for i, b := range l.blocks {
		out[i] = b.clone()
	}
	return out
}

// Reset drops all blocks.
func (l *List) Reset() {
	l.blocks = nil
	l.open = NoHandle
}
