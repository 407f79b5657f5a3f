// Package consumer implements the VirtualConsumer state machine: one
// independent, bounded-offset consumer of a log, whether that is the
// unbounded firehose or a bounded sideline replay.
package consumer

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/stanlemon/storm-dynamic-spout/errs"
	"github.com/stanlemon/storm-dynamic-spout/filter"
	"github.com/stanlemon/storm-dynamic-spout/logsource"
	"github.com/stanlemon/storm-dynamic-spout/message"
	"github.com/stanlemon/storm-dynamic-spout/offset"
	"github.com/stanlemon/storm-dynamic-spout/persistence"
	"github.com/stanlemon/storm-dynamic-spout/retry"
)

// VirtualConsumer moves through created -> opened -> running ->
// (stopRequested or completed) -> closed. Open is guarded by a flag (a
// second call fails with errs.IllegalState) and Close is idempotent; every
// other operation is a single non-blocking step intended to be
// called from one owning goroutine (see the coordinator package for how
// ack/fail are serialized onto that goroutine from the outside).
type VirtualConsumer struct {
	cfg    Config
	logger *zap.Logger

	opened    bool
	closed    bool
	completed bool

	stopRequested atomic.Bool

	trackers map[message.TopicPartition]*offset.Tracker
	done     map[message.TopicPartition]bool

	recent *recentCache
}

// New constructs an unopened VirtualConsumer. source, deserializer,
// retryManager and persistenceAdapter are the collaborators Open acquires
// configuration for; id must be unique among all live consumers: the
// coordinator refuses a consumer whose id is already registered, logging
// errs.IllegalState without opening it.
func New(id message.VirtualConsumerID, partitions []message.TopicPartition, source logsource.Source, deserializer logsource.Deserializer, retryManager retry.Manager, persistenceAdapter persistence.Adapter, opts ...Option) *VirtualConsumer {
	cfg := newConfig(id, partitions, source, deserializer, retryManager, persistenceAdapter, opts...)
	return &VirtualConsumer{
		cfg:      cfg,
		logger:   cfg.Logger.Named("virtual-consumer").With(zap.String("id", string(id))),
		trackers: make(map[message.TopicPartition]*offset.Tracker),
		done:     make(map[message.TopicPartition]bool),
		recent:   newRecentCache(cfg.RecentCacheSize),
	}
}

// ID returns the consumer's identity.
func (c *VirtualConsumer) ID() message.VirtualConsumerID { return c.cfg.ID }

// Open acquires the log-consumer client, deserializer, and retry manager,
// seeking every assigned partition to its starting offset. Calling Open
// twice is a programmer error.
func (c *VirtualConsumer) Open() error {
	if c.opened {
		return errs.IllegalState("consumer.VirtualConsumer.Open", fmt.Errorf("consumer %s already opened", c.cfg.ID))
	}

	if err := c.cfg.RetryManager.Open(c.cfg.RetryConfig); err != nil {
		return errs.Transient("consumer.VirtualConsumer.Open", err)
	}

	for _, tp := range c.cfg.Partitions {
		startOffset := int64(-1) // source-defined default (e.g. latest) when unspecified
		if c.cfg.StartingState != nil {
			if o, ok := c.cfg.StartingState.Offset(tp); ok {
				startOffset = o
			}
		}
		if err := c.cfg.Source.Assign(tp, startOffset); err != nil {
			return errs.Transient("consumer.VirtualConsumer.Open", err)
		}
		trackFrom := startOffset
		if trackFrom < 0 {
			trackFrom = 0
		}
		c.trackers[tp] = offset.NewTracker(trackFrom)
	}

	c.opened = true
	c.logger.Info("virtual consumer opened", zap.Int("partitions", len(c.cfg.Partitions)))
	return nil
}

// NextMessage performs one non-blocking poll step. A nil message with a
// nil error means nothing was ready this tick.
func (c *VirtualConsumer) NextMessage(ctx context.Context) (*message.Message, error) {
	if id, ok := c.cfg.RetryManager.NextFailedMessageToRetry(); ok {
		if msg, found := c.recent.get(id); found {
			return msg, nil
		}
		c.logger.Warn("retry candidate evicted from recent cache, re-queueing", zap.String("id", id.String()))
		c.cfg.RetryManager.Failed(id)
		return nil, nil
	}

	rec, ok, err := c.cfg.Source.Poll(ctx)
	if err != nil {
		c.logger.Warn("poll failed", zap.Error(err))
		return nil, nil
	}
	if !ok {
		return nil, nil
	}

	tp := rec.TopicPartition
	if c.cfg.EndingState != nil {
		bound, hasBound := c.cfg.EndingState.Offset(tp)
		if !hasBound {
			return nil, errs.IllegalState("consumer.VirtualConsumer.NextMessage", fmt.Errorf("partition %s has no ending state", tp))
		}
		if rec.Offset > bound {
			c.markPartitionDone(tp)
			return nil, nil
		}
	}

	values, derr := c.cfg.Deserializer.Deserialize(rec.Value)
	if derr != nil || values == nil {
		c.finalizeAndCommit(tp, rec.Offset)
		return nil, nil
	}

	if c.cfg.Filter != nil {
		probe := message.New(message.ID{Topic: tp.Topic, Partition: tp.Partition, Offset: rec.Offset, SourceVirtualConsumerID: c.cfg.ID}, values)
		if c.cfg.Filter.Test(probe) {
			c.finalizeAndCommit(tp, rec.Offset)
			return nil, nil
		}
	}

	id := message.ID{Topic: tp.Topic, Partition: tp.Partition, Offset: rec.Offset, SourceVirtualConsumerID: c.cfg.ID}
	msg := message.New(id, values)

	tracker := c.trackers[tp]
	if err := tracker.StartTracking(rec.Offset); err != nil {
		return nil, errs.IllegalState("consumer.VirtualConsumer.NextMessage", err)
	}
	c.recent.put(msg)
	return msg, nil
}

// markPartitionDone records that tp has reached its ending state, and
// unsubscribes it exactly once. Completed is set once every assigned
// partition has reached its bound.
func (c *VirtualConsumer) markPartitionDone(tp message.TopicPartition) {
	if c.done[tp] {
		return
	}
	c.done[tp] = true
	if err := c.cfg.Source.Unsubscribe(tp); err != nil {
		c.logger.Warn("unsubscribe failed", zap.String("partition", tp.String()), zap.Error(err))
	}

	for _, p := range c.cfg.Partitions {
		if !c.done[p] {
			return
		}
	}
	c.completed = true
	c.logger.Info("virtual consumer completed")
}

// finalizeAndCommit auto-commits offset without ever handing it to the
// caller: used for filtered and unparseable records, both of which must
// still advance the firehose.
func (c *VirtualConsumer) finalizeAndCommit(tp message.TopicPartition, offset int64) {
	tracker := c.trackers[tp]
	if err := tracker.StartTracking(offset); err != nil {
		c.logger.Warn("failed to track auto-committed offset", zap.Error(err))
		return
	}
	tracker.Finish(offset)
	if err := c.cfg.Source.CommitOffset(tp, tracker.Committed()); err != nil {
		c.logger.Warn("auto-commit failed", zap.Error(err))
	}
}

// Ack informs the retry manager and the offset tracker that id succeeded,
// and reports the tracker's advanced commit point to the log consumer. A
// zero-value id is a silent no-op.
func (c *VirtualConsumer) Ack(id message.ID) error {
	if id == (message.ID{}) {
		return nil
	}
	if id.SourceVirtualConsumerID != c.cfg.ID {
		return errs.InvalidArgument("consumer.VirtualConsumer.Ack", fmt.Errorf("id %s does not belong to consumer %s", id, c.cfg.ID))
	}
	return c.finish(id)
}

// Fail informs the retry manager of a failure. If the retry manager has
// exhausted retries for id, the message is treated as an ack (abandoned):
// the offset is finalized for commit purposes and errs.Abandoned is
// returned so callers can count it separately from a genuine ack.
func (c *VirtualConsumer) Fail(id message.ID) error {
	if id == (message.ID{}) {
		return nil
	}
	if id.SourceVirtualConsumerID != c.cfg.ID {
		return errs.InvalidArgument("consumer.VirtualConsumer.Fail", fmt.Errorf("id %s does not belong to consumer %s", id, c.cfg.ID))
	}

	if !c.cfg.RetryManager.RetryFurther(id) {
		if err := c.finish(id); err != nil {
			return err
		}
		return errs.Abandoned("consumer.VirtualConsumer.Fail")
	}

	c.cfg.RetryManager.Failed(id)
	return nil
}

func (c *VirtualConsumer) finish(id message.ID) error {
	tp := id.TopicPartition()
	tracker, ok := c.trackers[tp]
	if !ok {
		return errs.IllegalState("consumer.VirtualConsumer.finish", fmt.Errorf("partition %s is not assigned to consumer %s", tp, c.cfg.ID))
	}

	c.cfg.RetryManager.Acked(id)
	tracker.Finish(id.Offset)
	c.recent.delete(id)

	if err := c.cfg.Source.CommitOffset(tp, tracker.Committed()); err != nil {
		return errs.Transient("consumer.VirtualConsumer.finish", err)
	}
	return nil
}

// RequestStop sets the cooperative termination flag. Safe to call from any
// goroutine.
func (c *VirtualConsumer) RequestStop() { c.stopRequested.Store(true) }

// IsStopRequested reports whether RequestStop has been called.
func (c *VirtualConsumer) IsStopRequested() bool { return c.stopRequested.Load() }

// IsCompleted reports whether every assigned partition has reached its
// ending state.
func (c *VirtualConsumer) IsCompleted() bool { return c.completed }

// setCompletedForTest is a package-visible test hook, used in place of
// reflecting into the unexported completed field.
func (c *VirtualConsumer) setCompletedForTest(v bool) { c.completed = v }

// GetCurrentState delegates to the log consumer and returns the committed
// state, not the in-flight leading edge.
func (c *VirtualConsumer) GetCurrentState() message.ConsumerState {
	return c.cfg.Source.CommittedState()
}

// FilterChain returns the consumer's live filter chain, or nil if none was
// configured. The sideline controller uses this on the firehose consumer
// to add and remove diversion steps at runtime.
func (c *VirtualConsumer) FilterChain() *filter.Chain { return c.cfg.Filter }

// Unsubscribe delegates to the log consumer.
func (c *VirtualConsumer) Unsubscribe(tp message.TopicPartition) error {
	return c.cfg.Source.Unsubscribe(tp)
}

// Close is idempotent. If the consumer completed, its persisted offsets
// and, if it was a sideline replay, its sideline payload are purged.
// Otherwise the current commit state is flushed so a restart can resume.
// The log consumer is always closed last.
func (c *VirtualConsumer) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	if c.completed {
		if cerr := c.cfg.Source.ClearCommitted(); cerr != nil {
			err = multierr.Append(err, cerr)
		}
		if cerr := c.cfg.Persistence.ClearConsumerState(c.cfg.ID); cerr != nil {
			err = multierr.Append(err, cerr)
		}
		if c.cfg.SidelineRequestID != "" {
			if cerr := c.cfg.Persistence.ClearSidelineRequest(c.cfg.SidelineRequestID); cerr != nil {
				err = multierr.Append(err, cerr)
			}
		}
	} else {
		if cerr := c.cfg.Persistence.PersistConsumerState(c.cfg.ID, c.GetCurrentState()); cerr != nil {
			err = multierr.Append(err, cerr)
		}
	}

	if cerr := c.cfg.Source.Close(); cerr != nil {
		err = multierr.Append(err, cerr)
	}
	c.logger.Info("virtual consumer closed", zap.Bool("completed", c.completed))
	return err
}
