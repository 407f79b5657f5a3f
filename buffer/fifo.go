package buffer

import (
	"github.com/stanlemon/storm-dynamic-spout/message"
)

// FIFO is a single bounded queue shared by all producers: simple, but
// starvation-prone if one producer floods it.
type FIFO struct {
	ch chan *message.Message
}

func NewFIFO() *FIFO { return &FIFO{} }

func (f *FIFO) Open(cfg Config) error {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	f.ch = make(chan *message.Message, capacity)
	return nil
}

// Put blocks until there is room. key is unused by FIFO; it exists only to
// satisfy the shared Buffer interface RoundRobin needs.
func (f *FIFO) Put(key message.VirtualConsumerID, m *message.Message) error {
	f.ch <- m
	return nil
}

func (f *FIFO) Poll() (*message.Message, bool) {
	select {
	case m := <-f.ch:
		return m, true
	default:
		return nil, false
	}
}

func (f *FIFO) Size() int { return len(f.ch) }
