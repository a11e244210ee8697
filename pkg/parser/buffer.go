package parser

import "strings"

// Buffer is the append-only accumulator for one model turn.
//
// String returns a view that shares memory with the builder, so slicing
// the tail for suffix checks costs nothing regardless of buffer length.
type Buffer struct {
	b   strings.Builder
	max int
}

// NewBuffer creates a buffer that refuses to grow beyond max bytes.
func NewBuffer(max int) *Buffer {
	return &Buffer{max: max}
}

// Append adds chunk, or returns an *OverflowError without modifying the
// buffer if the cap would be exceeded.
func (b *Buffer) Append(chunk string) error {
	size := b.b.Len() + len(chunk)
	if size > b.max {
		return &OverflowError{Limit: b.max, Size: size}
	}
	b.b.WriteString(chunk)
	return nil
}

// String returns everything appended so far.
func (b *Buffer) String() string {
	return b.b.String()
}

// Len returns the buffer length in bytes.
func (b *Buffer) Len() int {
	return b.b.Len()
}

// Cap returns the configured limit.
func (b *Buffer) Cap() int {
	return b.max
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.b.Reset()
}
