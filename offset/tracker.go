// Package offset tracks which offsets within a single topic partition have
// been acked, so a consumer can compute the contiguous prefix it is safe
// to commit even though acks arrive out of order.
package offset

import (
	"fmt"

	"github.com/stanlemon/storm-dynamic-spout/errs"
	"github.com/stanlemon/storm-dynamic-spout/primitives"
)

// Tracker computes the highest offset such that every offset up to and
// including it has been finished, for one topic partition. Offsets are
// started as they are polled and finished as they are acked or failed
// past their retry limit.
type Tracker struct {
	inFlight  *primitives.PriorityQueue[int64]
	finished  map[int64]bool
	committed int64
	started   bool
}

// NewTracker returns a tracker with nothing committed yet. Committed()
// returns startOffset-1 until the first offset is finished.
func NewTracker(startOffset int64) *Tracker {
	return &Tracker{
		inFlight:  primitives.NewPriorityQueue[int64](false),
		finished:  make(map[int64]bool),
		committed: startOffset - 1,
	}
}

// StartTracking records offset as in flight. Offsets must be started in
// non-decreasing order, matching how a log source hands out records.
func (t *Tracker) StartTracking(offset int64) error {
	if t.started && offset < t.committed {
		return errs.InvalidArgument("offset.Tracker.StartTracking", fmt.Errorf("offset %d precedes committed offset %d", offset, t.committed))
	}
	t.started = true
	t.inFlight.Push(offset, float64(offset))
	return nil
}

// Finish marks offset as done (acked, or failed and abandoned) and
// advances Committed() over any newly-contiguous prefix. Finishing an
// offset that was never started, or finishing it twice, is a no-op.
func (t *Tracker) Finish(offset int64) {
	if !t.inFlight.Contains(offset) {
		return
	}
	t.finished[offset] = true

	for {
		next, ok := t.inFlight.Peek()
		if !ok || !t.finished[next] {
			return
		}
		t.inFlight.Pop()
		delete(t.finished, next)
		t.committed = next
	}
}

// Committed returns the highest offset such that it, and every offset
// before it since tracking began, has finished.
func (t *Tracker) Committed() int64 {
	return t.committed
}

// InFlight reports how many offsets are started but not yet finished.
func (t *Tracker) InFlight() int {
	return t.inFlight.Len()
}
