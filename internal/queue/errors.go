package queue

import (
	"errors"
	"fmt"
)

var (
	ErrQueueEmpty         = errors.New("queue is empty")
	ErrNotPlaying         = errors.New("nothing is playing")
	ErrPositionOutOfRange = errors.New("position out of range")
	ErrIndexerNotStandard = errors.New("queue is not in standard mode")
	ErrBadPosition        = errors.New("invalid position")
)

// RangeError reports a 1-based position that falls outside 1..Len.
type RangeError struct {
	Position int
	Len      int
}

func (e *RangeError) Error() string {
	if e.Len == 1 {
		return fmt.Sprintf("position %d is out of range, the queue only has 1 track", e.Position)
	}
	return fmt.Sprintf("position %d is out of range (1-%d)", e.Position, e.Len)
}

func (e *RangeError) Unwrap() error { return ErrPositionOutOfRange }
