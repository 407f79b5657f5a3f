// Package logsource abstracts the external partitioned log the engine
// consumes from: poll, seek (via Assign's start offset), commit, and
// assign/unsubscribe. It is deliberately interface-first, per the engine's
// non-goals around log-consumer internals; logsource.KafkaSource is the one
// concrete binding, backed by Kafka.
package logsource

import (
	"context"

	"github.com/stanlemon/storm-dynamic-spout/message"
)

// Record is a single polled entry from the log, prior to deserialization.
type Record struct {
	TopicPartition message.TopicPartition
	Offset         int64
	Value          []byte
}

// Source is the external log-consumer client abstraction a VirtualConsumer
// drives. Implementations own their own partition assignment and offset
// storage; the engine only ever asks for the next record and reports
// commit points.
//
// Retention is an external guarantee of the log, not something this
// package enforces: if a replay consumer is configured with a starting
// offset the firehose has already advanced past on the underlying log,
// Poll simply will not find those records again once the log has expired
// them. Callers are responsible for choosing a log retention policy long
// enough to cover the sideline window.
type Source interface {
	// Assign subscribes to tp, starting at startOffset. Calling Assign
	// again for a tp already assigned reseeks it.
	Assign(tp message.TopicPartition, startOffset int64) error
	// Unsubscribe stops consuming tp. Safe to call on a tp that was never
	// assigned.
	Unsubscribe(tp message.TopicPartition) error
	// Poll returns the next available record across all assigned
	// partitions, non-blocking beyond the given context's deadline. The
	// second return value is false when nothing was ready.
	Poll(ctx context.Context) (*Record, bool, error)
	// CommitOffset persists offset as the committed position for tp.
	CommitOffset(tp message.TopicPartition, offset int64) error
	// CommittedState returns the last-committed offset per assigned
	// partition.
	CommittedState() message.ConsumerState
	// ClearCommitted removes any persisted committed offsets for this
	// source's consumer identity.
	ClearCommitted() error
	// Close releases all underlying connections. Idempotent.
	Close() error
}

// Deserializer turns a raw record value into the ordered field sequence a
// Message carries. A nil result (with or without an error) means the
// record is unparseable; the caller treats that the same as a filtered
// message: auto-commit, no emit.
type Deserializer interface {
	Deserialize(value []byte) ([]any, error)
}

// DeserializerFunc adapts a plain function to Deserializer.
type DeserializerFunc func(value []byte) ([]any, error)

func (f DeserializerFunc) Deserialize(value []byte) ([]any, error) { return f(value) }
