// Package filter implements the labelled, ordered predicate chain the
// firehose consults to decide whether a message should be diverted
// (sidelined) instead of emitted.
package filter

import (
	"sync"

	"github.com/stanlemon/storm-dynamic-spout/message"
)

// Label identifies one entry in a Chain. Sideline requests use their
// request id (stringified) as the label so Controller.Stop can find the
// entry it needs to remove again.
type Label string

// Step is one predicate in a filter chain entry. Matches reports whether
// msg should be dropped by this step. Equal must be implemented so
// Chain.FindLabel can locate an entry by value rather than identity —
// implementations should compare on whatever makes two steps
// "the same predicate" for their domain.
type Step interface {
	Matches(msg *message.Message) bool
	Equal(other Step) bool
}

type entry struct {
	label Label
	steps []Step
}

// Chain is an ordered, labelled set of filter entries. Evaluating a
// message against the chain passes it through every step of every entry;
// if any step matches, the message is dropped. Iteration order is the
// insertion order of AddSteps calls, which callers rely on for
// deterministic identity-by-steps tests.
type Chain struct {
	mu      sync.RWMutex
	entries []entry
}

// New returns an empty chain.
func New() *Chain {
	return &Chain{}
}

// AddSteps installs steps under label, replacing any existing entry with
// the same label.
func (c *Chain) AddSteps(label Label, steps []Step) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := make([]Step, len(steps))
	copy(cp, steps)

	for i, e := range c.entries {
		if e.label == label {
			c.entries[i].steps = cp
			return
		}
	}
	c.entries = append(c.entries, entry{label: label, steps: cp})
}

// RemoveSteps removes and returns the steps registered under label, if
// any.
func (c *Chain) RemoveSteps(label Label) []Step {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if e.label == label {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return e.steps
		}
	}
	return nil
}

// FindLabel returns the first label whose registered steps equal steps by
// value (via Step.Equal, pairwise, in order), and whether one was found.
func (c *Chain) FindLabel(steps []Step) (Label, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entries {
		if stepsEqual(e.steps, steps) {
			return e.label, true
		}
	}
	return "", false
}

func stepsEqual(a, b []Step) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Test evaluates msg against every step of every entry in insertion
// order. It returns true (drop) as soon as any step matches, and is
// lock-free with respect to concurrent AddSteps/RemoveSteps in the sense
// that it operates over a stable snapshot taken under a read lock.
func (c *Chain) Test(msg *message.Message) bool {
	c.mu.RLock()
	snapshot := make([]entry, len(c.entries))
	copy(snapshot, c.entries)
	c.mu.RUnlock()

	for _, e := range snapshot {
		for _, s := range e.steps {
			if s.Matches(msg) {
				return true
			}
		}
	}
	return false
}

// Steps returns a copy of the steps registered under label, if any.
func (c *Chain) Steps(label Label) ([]Step, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entries {
		if e.label == label {
			cp := make([]Step, len(e.steps))
			copy(cp, e.steps)
			return cp, true
		}
	}
	return nil, false
}
