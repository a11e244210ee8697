package parser

import (
	"errors"
	"fmt"
)

// ErrResponseTooLarge is matched (via errors.Is) by every buffer overflow.
// Callers should abort the turn when they see it.
var ErrResponseTooLarge = errors.New("response too large")

// OverflowError reports that the accumulated model output would exceed the
// hard cap. It is the only error the parser surfaces.
type OverflowError struct {
	Limit int // configured cap in bytes
	Size  int // size the buffer would have reached
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("assistant message exceeds maximum allowed size: %d > %d bytes", e.Size, e.Limit)
}

func (e *OverflowError) Is(target error) bool {
	return target == ErrResponseTooLarge
}
