package buffer

import (
	"sync"

	"github.com/stanlemon/storm-dynamic-spout/message"
)

// RoundRobin gives each producer key its own bounded sub-queue, and polls
// them in a stable rotating order so no single producer can starve the
// others. Sub-queues are created lazily on first Put.
type RoundRobin struct {
	capacity int

	mu     sync.Mutex
	keys   []message.VirtualConsumerID // copy-on-write: Poll snapshots this
	queues map[message.VirtualConsumerID]chan *message.Message
	cursor int
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{queues: make(map[message.VirtualConsumerID]chan *message.Message)}
}

func (r *RoundRobin) Open(cfg Config) error {
	r.capacity = cfg.Capacity
	if r.capacity <= 0 {
		r.capacity = 1
	}
	return nil
}

func (r *RoundRobin) queueFor(key message.VirtualConsumerID) chan *message.Message {
	r.mu.Lock()
	ch, ok := r.queues[key]
	if !ok {
		ch = make(chan *message.Message, r.capacity)
		r.queues[key] = ch
		// copy-on-write: replace, don't mutate, the slice Poll may be
		// mid-iteration over.
		next := make([]message.VirtualConsumerID, len(r.keys), len(r.keys)+1)
		copy(next, r.keys)
		r.keys = append(next, key)
	}
	r.mu.Unlock()
	return ch
}

func (r *RoundRobin) Put(key message.VirtualConsumerID, m *message.Message) error {
	r.queueFor(key) <- m
	return nil
}

// Poll iterates producer keys from a cursor that advances by one call,
// returning the first non-empty sub-queue's head. Keys added or removed
// concurrently cannot corrupt this pass since the key slice is
// copy-on-write.
func (r *RoundRobin) Poll() (*message.Message, bool) {
	r.mu.Lock()
	keys := r.keys
	if len(keys) == 0 {
		r.mu.Unlock()
		return nil, false
	}
	start := r.cursor % len(keys)
	r.cursor = (r.cursor + 1) % len(keys)
	r.mu.Unlock()

	for i := 0; i < len(keys); i++ {
		key := keys[(start+i)%len(keys)]
		r.mu.Lock()
		ch := r.queues[key]
		r.mu.Unlock()
		if ch == nil {
			continue
		}
		select {
		case m := <-ch:
			return m, true
		default:
		}
	}
	return nil, false
}

func (r *RoundRobin) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, ch := range r.queues {
		total += len(ch)
	}
	return total
}
