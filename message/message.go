// Package message holds the data model shared by every other package in
// the engine: message identity, the immutable tuple wrapper, per-partition
// consumer state, and virtual consumer identifiers.
package message

import (
	"fmt"
	"strconv"
	"strings"
)

// TopicPartition names one partition of one topic in the external log.
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s-%d", tp.Topic, tp.Partition)
}

// MarshalText/UnmarshalText let TopicPartition serve as a JSON map key
// (used by ConsumerState) without ambiguity from topic names containing
// '-'; the delimiter here is '|', not the '-' used by String.
func (tp TopicPartition) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%s|%d", tp.Topic, tp.Partition)), nil
}

func (tp *TopicPartition) UnmarshalText(text []byte) error {
	s := string(text)
	i := strings.LastIndex(s, "|")
	if i < 0 {
		return fmt.Errorf("invalid topic-partition key %q", s)
	}
	partition, err := strconv.ParseInt(s[i+1:], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid topic-partition key %q: %w", s, err)
	}
	tp.Topic = s[:i]
	tp.Partition = int32(partition)
	return nil
}

// VirtualConsumerID is an opaque, printable identifier unique within a
// process. It is built from a configured prefix, a task index, and an
// optional suffix (typically a sideline request id for replay consumers).
type VirtualConsumerID string

// NewVirtualConsumerID derives an id from a prefix, task index, and
// optional suffix. Two VirtualConsumers constructed with equal ids is a
// programmer error the caller must guard against (see errs.IllegalState in
// package coordinator).
func NewVirtualConsumerID(prefix string, taskIndex int, suffix string) VirtualConsumerID {
	if suffix == "" {
		return VirtualConsumerID(fmt.Sprintf("%s:%d", prefix, taskIndex))
	}
	return VirtualConsumerID(fmt.Sprintf("%s:%d:%s", prefix, taskIndex, suffix))
}

func (id VirtualConsumerID) String() string { return string(id) }

// ID identifies exactly one emitted message so a later ack/fail can be
// routed back to the VirtualConsumer that produced it.
type ID struct {
	Topic                   string
	Partition               int32
	Offset                  int64
	SourceVirtualConsumerID VirtualConsumerID
}

// TopicPartition returns the (topic, partition) this id belongs to.
func (id ID) TopicPartition() TopicPartition {
	return TopicPartition{Topic: id.Topic, Partition: id.Partition}
}

func (id ID) String() string {
	return fmt.Sprintf("%s-%d@%d[%s]", id.Topic, id.Partition, id.Offset, id.SourceVirtualConsumerID)
}

// Message is an immutable tuple: an identity plus an ordered field
// sequence. Construct with New; the fields are exported for convenient
// pattern matching downstream but the zero value should not be treated as
// meaningful.
type Message struct {
	ID     ID
	Values []any
}

// New builds a Message, copying values so later mutation of the caller's
// slice cannot change an already-emitted message.
func New(id ID, values []any) *Message {
	cp := make([]any, len(values))
	copy(cp, values)
	return &Message{ID: id, Values: cp}
}
