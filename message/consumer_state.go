package message

import "fmt"

// ConsumerState maps a (topic, partition) to an offset. It is used both as
// a starting state (seek targets) and an ending state (inclusive upper
// bound per partition — an offset equal to the bound is still delivered,
// strictly greater is dropped).
type ConsumerState map[TopicPartition]int64

// Offset returns the offset registered for tp, and whether one was found.
func (s ConsumerState) Offset(tp TopicPartition) (int64, bool) {
	o, ok := s[tp]
	return o, ok
}

// Partitions returns the set of topic-partitions this state covers, in no
// particular order.
func (s ConsumerState) Partitions() []TopicPartition {
	out := make([]TopicPartition, 0, len(s))
	for tp := range s {
		out = append(out, tp)
	}
	return out
}

// Clone returns a defensive copy.
func (s ConsumerState) Clone() ConsumerState {
	out := make(ConsumerState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ConsumerStateBuilder accumulates (partition, offset) pairs before
// producing an immutable ConsumerState. Registering the same partition
// twice is rejected rather than silently overwritten.
type ConsumerStateBuilder struct {
	offsets map[TopicPartition]int64
	err     error
}

// NewConsumerStateBuilder starts a new builder.
func NewConsumerStateBuilder() *ConsumerStateBuilder {
	return &ConsumerStateBuilder{offsets: make(map[TopicPartition]int64)}
}

// WithPartition registers the offset for tp. Calling this twice for the
// same partition marks the builder as failed; the error surfaces at Build.
func (b *ConsumerStateBuilder) WithPartition(tp TopicPartition, offset int64) *ConsumerStateBuilder {
	if _, exists := b.offsets[tp]; exists {
		if b.err == nil {
			b.err = fmt.Errorf("partition %s registered more than once in consumer state", tp)
		}
		return b
	}
	b.offsets[tp] = offset
	return b
}

// Build returns the accumulated, read-only ConsumerState, or the first
// error encountered while building it.
func (b *ConsumerStateBuilder) Build() (ConsumerState, error) {
	if b.err != nil {
		return nil, b.err
	}
	return ConsumerState(b.offsets).Clone(), nil
}
