package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stanlemon/storm-dynamic-spout/message"
)

func TestMemory_ConsumerStateRoundTripsAndClears(t *testing.T) {
	m := NewMemory()
	id := message.VirtualConsumerID("firehose:0")
	state := message.ConsumerState{{Topic: "T", Partition: 0}: 42}

	_, ok, err := m.RetrieveConsumerState(id)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.PersistConsumerState(id, state))
	got, ok, err := m.RetrieveConsumerState(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, state, got)

	state[message.TopicPartition{Topic: "T", Partition: 0}] = 99
	got2, _, _ := m.RetrieveConsumerState(id)
	require.Equal(t, int64(42), got2[message.TopicPartition{Topic: "T", Partition: 0}], "stored copy must not see caller mutation")

	require.NoError(t, m.ClearConsumerState(id))
	_, ok, _ = m.RetrieveConsumerState(id)
	require.False(t, ok)
}

func TestMemory_SidelineRequestLifecycle(t *testing.T) {
	m := NewMemory()
	payload := SidelinePayload{ID: "req-1", Type: Start}
	require.NoError(t, m.PersistSidelineRequest(payload))

	ids, err := m.ListSidelineRequests()
	require.NoError(t, err)
	require.Equal(t, []RequestID{"req-1"}, ids)

	got, ok, err := m.RetrieveSidelineRequest("req-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload, got)

	require.NoError(t, m.ClearSidelineRequest("req-1"))
	_, ok, _ = m.RetrieveSidelineRequest("req-1")
	require.False(t, ok)
}
