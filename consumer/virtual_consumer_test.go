package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stanlemon/storm-dynamic-spout/errs"
	"github.com/stanlemon/storm-dynamic-spout/filter"
	"github.com/stanlemon/storm-dynamic-spout/logsource"
	"github.com/stanlemon/storm-dynamic-spout/message"
	"github.com/stanlemon/storm-dynamic-spout/persistence"
	"github.com/stanlemon/storm-dynamic-spout/retry"
)

func init() {
	filter.RegisterPredicate("test.consumer.always-drop", func(*message.Message, json.RawMessage) bool { return true })
}

// fakeSource is an in-memory logsource.Source: records are queued up front
// and returned in order from Poll, regardless of which partition Assign
// was called for.
type fakeSource struct {
	queue        []*logsource.Record
	committed    map[message.TopicPartition]int64
	unsubscribed map[message.TopicPartition]int
	assigned     map[message.TopicPartition]int64
	closed       bool
	clearedAll   bool
}

func newFakeSource(records ...*logsource.Record) *fakeSource {
	return &fakeSource{
		queue:        records,
		committed:    make(map[message.TopicPartition]int64),
		unsubscribed: make(map[message.TopicPartition]int),
		assigned:     make(map[message.TopicPartition]int64),
	}
}

func (s *fakeSource) Assign(tp message.TopicPartition, startOffset int64) error {
	s.assigned[tp] = startOffset
	return nil
}

func (s *fakeSource) Unsubscribe(tp message.TopicPartition) error {
	s.unsubscribed[tp]++
	return nil
}

func (s *fakeSource) Poll(ctx context.Context) (*logsource.Record, bool, error) {
	if len(s.queue) == 0 {
		return nil, false, nil
	}
	r := s.queue[0]
	s.queue = s.queue[1:]
	return r, true, nil
}

func (s *fakeSource) CommitOffset(tp message.TopicPartition, offset int64) error {
	s.committed[tp] = offset
	return nil
}

func (s *fakeSource) CommittedState() message.ConsumerState {
	state := make(message.ConsumerState, len(s.committed))
	for tp, o := range s.committed {
		state[tp] = o
	}
	return state
}

func (s *fakeSource) ClearCommitted() error {
	s.clearedAll = true
	s.committed = make(map[message.TopicPartition]int64)
	return nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

var alwaysParses = logsource.DeserializerFunc(func(value []byte) ([]any, error) {
	return []any{string(value)}, nil
})

var neverParses = logsource.DeserializerFunc(func(value []byte) ([]any, error) {
	return nil, nil
})

func rec(topic string, partition int32, offset int64) *logsource.Record {
	return &logsource.Record{
		TopicPartition: message.TopicPartition{Topic: topic, Partition: partition},
		Offset:         offset,
		Value:          []byte("payload"),
	}
}

func partitions(tps ...message.TopicPartition) []message.TopicPartition { return tps }

func TestVirtualConsumer_OpenTwiceIsIllegalState(t *testing.T) {
	src := newFakeSource()
	vc := New("firehose:0", partitions(message.TopicPartition{Topic: "T", Partition: 0}), src, alwaysParses, retry.NeverRetry{}, persistence.NewMemory())
	require.NoError(t, vc.Open())

	err := vc.Open()
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindIllegalState))
}

func TestVirtualConsumer_EndOffsetBoundaryInclusive(t *testing.T) {
	tp := message.TopicPartition{Topic: "T", Partition: 4}
	src := newFakeSource(rec("T", 4, 4344), rec("T", 4, 4444), rec("T", 4, 4544), rec("T", 4, 4545))

	vc := New("firehose:0", partitions(tp), src, alwaysParses, retry.NeverRetry{}, persistence.NewMemory(),
		WithEndingState(message.ConsumerState{tp: 4444}))
	require.NoError(t, vc.Open())

	msg, err := vc.NextMessage(context.Background())
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, int64(4344), msg.ID.Offset)

	msg, err = vc.NextMessage(context.Background())
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, int64(4444), msg.ID.Offset, "boundary offset is inclusive")

	msg, err = vc.NextMessage(context.Background())
	require.NoError(t, err)
	require.Nil(t, msg)

	msg, err = vc.NextMessage(context.Background())
	require.NoError(t, err)
	require.Nil(t, msg)

	require.Equal(t, 1, src.unsubscribed[tp], "unsubscribed exactly once")
	require.Empty(t, src.committed, "delivered-but-unacked offsets, and overshoot offsets, are never committed here")
	require.True(t, vc.IsCompleted())
}

func TestVirtualConsumer_FilterDropAutoCommits(t *testing.T) {
	tp := message.TopicPartition{Topic: "MyTopic", Partition: 3}
	src := newFakeSource(rec("MyTopic", 3, 434323))

	chain := filter.New()
	always, err := filter.NewPredicate("test.consumer.always-drop", nil)
	require.NoError(t, err)
	chain.AddSteps("r1", []filter.Step{always})

	vc := New("firehose:0", partitions(tp), src, alwaysParses, retry.NeverRetry{}, persistence.NewMemory(),
		WithFilter(chain))
	require.NoError(t, vc.Open())

	msg, err := vc.NextMessage(context.Background())
	require.NoError(t, err)
	require.Nil(t, msg)
	require.Equal(t, int64(434323), src.committed[tp])
}

func TestVirtualConsumer_DeserializeFailureAutoCommits(t *testing.T) {
	tp := message.TopicPartition{Topic: "T", Partition: 0}
	src := newFakeSource(rec("T", 0, 10))

	vc := New("firehose:0", partitions(tp), src, neverParses, retry.NeverRetry{}, persistence.NewMemory())
	require.NoError(t, vc.Open())

	msg, err := vc.NextMessage(context.Background())
	require.NoError(t, err)
	require.Nil(t, msg)
	require.Equal(t, int64(10), src.committed[tp])
}

func TestVirtualConsumer_AckNilIDIsNoop(t *testing.T) {
	src := newFakeSource()
	vc := New("firehose:0", partitions(message.TopicPartition{Topic: "T", Partition: 0}), src, alwaysParses, retry.NeverRetry{}, persistence.NewMemory())
	require.NoError(t, vc.Open())
	require.NoError(t, vc.Ack(message.ID{}))
}

func TestVirtualConsumer_FailWithNoMoreRetriesIsAbandoned(t *testing.T) {
	tp := message.TopicPartition{Topic: "T", Partition: 3}
	src := newFakeSource(rec("T", 3, 434323))

	vc := New("firehose:0", partitions(tp), src, alwaysParses, retry.NeverRetry{}, persistence.NewMemory())
	require.NoError(t, vc.Open())

	msg, err := vc.NextMessage(context.Background())
	require.NoError(t, err)
	require.NotNil(t, msg)

	err = vc.Fail(msg.ID)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindAbandoned))
	require.Equal(t, int64(434323), src.committed[tp])
}

func TestVirtualConsumer_FailWithRetryFurtherLeavesOffsetInFlight(t *testing.T) {
	tp := message.TopicPartition{Topic: "T", Partition: 0}
	src := newFakeSource(rec("T", 0, 101))

	rm := retry.NewFailedTuplesFirst()
	vc := New("replay:0", partitions(tp), src, alwaysParses, rm, persistence.NewMemory())
	require.NoError(t, vc.Open())

	msg, err := vc.NextMessage(context.Background())
	require.NoError(t, err)
	require.NotNil(t, msg)

	require.NoError(t, vc.Fail(msg.ID))
	_, committed := src.committed[tp]
	require.False(t, committed, "offset must stay in flight after a retryable failure")

	replayed, err := vc.NextMessage(context.Background())
	require.NoError(t, err)
	require.NotNil(t, replayed)
	require.Equal(t, msg.ID, replayed.ID)

	require.NoError(t, vc.Ack(replayed.ID))
	require.Equal(t, int64(101), src.committed[tp])
}

func TestVirtualConsumer_CloseFlushesStateWhenNotCompleted(t *testing.T) {
	tp := message.TopicPartition{Topic: "T", Partition: 0}
	src := newFakeSource(rec("T", 0, 5))
	persist := persistence.NewMemory()

	vc := New("firehose:0", partitions(tp), src, alwaysParses, retry.NeverRetry{}, persist)
	require.NoError(t, vc.Open())

	msg, err := vc.NextMessage(context.Background())
	require.NoError(t, err)
	require.NoError(t, vc.Ack(msg.ID))

	require.NoError(t, vc.Close())
	require.True(t, src.closed)

	state, ok, err := persist.RetrieveConsumerState("firehose:0")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(5), state[tp])
}

func TestVirtualConsumer_CloseWhenCompletedPurgesState(t *testing.T) {
	tp := message.TopicPartition{Topic: "T", Partition: 0}
	src := newFakeSource()
	persist := persistence.NewMemory()
	require.NoError(t, persist.PersistConsumerState("replay:req-1", message.ConsumerState{tp: 5}))
	require.NoError(t, persist.PersistSidelineRequest(persistence.SidelinePayload{ID: "req-1"}))

	vc := New("replay:req-1", partitions(tp), src, alwaysParses, retry.NewFailedTuplesFirst(), persist,
		WithSidelineRequestID("req-1"))
	require.NoError(t, vc.Open())
	vc.setCompletedForTest(true)

	require.NoError(t, vc.Close())
	require.True(t, src.clearedAll)

	_, ok, _ := persist.RetrieveConsumerState("replay:req-1")
	require.False(t, ok)
	_, ok, _ = persist.RetrieveSidelineRequest("req-1")
	require.False(t, ok)
}

func TestVirtualConsumer_RetryCandidateEvictedFromCacheIsReQueuedNotOrphaned(t *testing.T) {
	tp := message.TopicPartition{Topic: "T", Partition: 0}
	src := newFakeSource(rec("T", 0, 1), rec("T", 0, 2))

	now := time.Unix(1000, 0)
	rm := retry.NewExponentialBackoff()
	rcfg := retry.Config{
		InitialDelay:    10 * time.Second,
		DelayMultiplier: 1,
		MaxAttempts:     2,
		Now:             func() time.Time { return now },
	}
	require.NoError(t, rm.Open(rcfg))

	vc := New("replay:0", partitions(tp), src, alwaysParses, rm, persistence.NewMemory(),
		WithRecentCacheSize(1))
	// Open re-opens the retry manager with the consumer's own RetryConfig.
	vc.cfg.RetryConfig = rcfg
	require.NoError(t, vc.Open())

	first, err := vc.NextMessage(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, int64(1), first.ID.Offset)

	require.NoError(t, vc.Fail(first.ID))
	require.True(t, rm.RetryFurther(first.ID), "one failure, MaxAttempts is 2")

	// Polling the second record evicts the first id from the bounded
	// cache, while its backoff has not yet elapsed.
	second, err := vc.NextMessage(context.Background())
	require.NoError(t, err)
	require.NotNil(t, second)
	require.Equal(t, int64(2), second.ID.Offset)
	require.NoError(t, vc.Ack(second.ID))

	now = now.Add(10 * time.Second) // first id's backoff has now elapsed

	msg, err := vc.NextMessage(context.Background())
	require.NoError(t, err)
	require.Nil(t, msg, "evicted candidate cannot be re-emitted from cache")

	require.False(t, rm.RetryFurther(first.ID), "re-queued on cache miss, a second failure consumed the last retry attempt")
}

func TestVirtualConsumer_CloseIsIdempotent(t *testing.T) {
	src := newFakeSource()
	vc := New("firehose:0", partitions(message.TopicPartition{Topic: "T", Partition: 0}), src, alwaysParses, retry.NeverRetry{}, persistence.NewMemory())
	require.NoError(t, vc.Open())
	require.NoError(t, vc.Close())
	require.NoError(t, vc.Close())
}
