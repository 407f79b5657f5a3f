// Package buffer implements the bounded, multi-producer single-consumer
// queue that sits between VirtualConsumers and the coordinator's pull
// interface.
package buffer

import (
	"github.com/stanlemon/storm-dynamic-spout/message"
)

// Config carries buffer-wide settings. Capacity is interpreted globally by
// FIFO and per-producer by RoundRobin.
type Config struct {
	Capacity int
}

// Buffer is the polymorphic producer-side-fair bounded queue every
// coordinator drains from.
type Buffer interface {
	Open(cfg Config) error
	// Put enqueues m under producer key, blocking if that producer's
	// queue (or the shared queue, for FIFO) is full.
	Put(key message.VirtualConsumerID, m *message.Message) error
	// Poll returns the next message, non-blocking. False means empty.
	Poll() (*message.Message, bool)
	Size() int
}
