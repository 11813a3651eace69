package queue

import (
	"context"
	"time"
)

// AdvanceLock lets a command that repositions the queue tell the track-end
// handler that the next end-of-track notification was caused on purpose and
// must not advance the cursor again.
//
// It holds at most one pending permit. Acquire never blocks.
type AdvanceLock struct {
	ch chan struct{}
}

func NewAdvanceLock() *AdvanceLock {
	return &AdvanceLock{ch: make(chan struct{}, 1)}
}

// Acquire leaves a permit for the next Wait. Acquiring twice before a Wait
// still leaves a single permit.
func (l *AdvanceLock) Acquire() {
	select {
	case l.ch <- struct{}{}:
	default:
	}
}

// Wait consumes a pending permit, or one that arrives before timeout.
// It reports whether a permit was consumed.
func (l *AdvanceLock) Wait(ctx context.Context, timeout time.Duration) bool {
	select {
	case <-l.ch:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-l.ch:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Reset drops a pending permit, if any.
func (l *AdvanceLock) Reset() {
	select {
	case <-l.ch:
	default:
	}
}
