package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewVirtualConsumerID_WithAndWithoutSuffix(t *testing.T) {
	require.Equal(t, VirtualConsumerID("firehose:0"), NewVirtualConsumerID("firehose", 0, ""))
	require.Equal(t, VirtualConsumerID("firehose:0:abc-123"), NewVirtualConsumerID("firehose", 0, "abc-123"))
}

func TestMessage_NewCopiesValues(t *testing.T) {
	id := ID{Topic: "T", Partition: 0, Offset: 42, SourceVirtualConsumerID: "firehose:0"}
	values := []any{"a", "b"}
	m := New(id, values)

	values[0] = "mutated"
	require.Equal(t, "a", m.Values[0], "message must not observe caller mutation of the source slice")
	require.Equal(t, id, m.ID)
}

func TestID_TopicPartition(t *testing.T) {
	id := ID{Topic: "T", Partition: 4, Offset: 4444}
	require.Equal(t, TopicPartition{Topic: "T", Partition: 4}, id.TopicPartition())
}

func TestConsumerStateBuilder_DuplicatePartitionIsAnError(t *testing.T) {
	tp := TopicPartition{Topic: "T", Partition: 0}
	_, err := NewConsumerStateBuilder().
		WithPartition(tp, 100).
		WithPartition(tp, 200).
		Build()
	require.Error(t, err)
}

func TestConsumerStateBuilder_BuildsImmutableState(t *testing.T) {
	tp0 := TopicPartition{Topic: "T", Partition: 0}
	tp1 := TopicPartition{Topic: "T", Partition: 1}
	state, err := NewConsumerStateBuilder().
		WithPartition(tp0, 100).
		WithPartition(tp1, 200).
		Build()
	require.NoError(t, err)

	o, ok := state.Offset(tp0)
	require.True(t, ok)
	require.Equal(t, int64(100), o)

	clone := state.Clone()
	clone[tp0] = 999
	o, _ = state.Offset(tp0)
	require.Equal(t, int64(100), o, "mutating a clone must not affect the original")
}
