// Package coordinator owns the set of live VirtualConsumers and the
// shared MessageBuffer, and exposes the single pull interface the host
// runtime drives.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/stanlemon/storm-dynamic-spout/buffer"
	"github.com/stanlemon/storm-dynamic-spout/consumer"
	"github.com/stanlemon/storm-dynamic-spout/errs"
	"github.com/stanlemon/storm-dynamic-spout/message"
)

type ackFailCmd struct {
	id   message.ID
	fail bool
}

type workerHandle struct {
	vc   *consumer.VirtualConsumer
	cmds chan ackFailCmd
	done chan struct{}
}

// Coordinator schedules one worker goroutine per VirtualConsumer and one
// monitor goroutine, and multiplexes their emitted messages through a
// shared Buffer.
type Coordinator struct {
	cfg    Config
	buf    buffer.Buffer
	logger *zap.Logger

	mu      sync.Mutex
	workers map[message.VirtualConsumerID]*workerHandle

	pending chan *consumer.VirtualConsumer
	stop    chan struct{}
	monitorDone chan struct{}
}

// New constructs a coordinator over buf. Call Open before use.
func New(buf buffer.Buffer, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		cfg:         cfg,
		buf:         buf,
		logger:      cfg.Logger.Named("coordinator"),
		workers:     make(map[message.VirtualConsumerID]*workerHandle),
		pending:     make(chan *consumer.VirtualConsumer, 64),
		stop:        make(chan struct{}),
		monitorDone: make(chan struct{}),
	}
}

// Open starts the buffer and the monitor goroutine.
func (c *Coordinator) Open() error {
	if err := c.buf.Open(c.cfg.BufferConfig); err != nil {
		return errs.Transient("coordinator.Coordinator.Open", err)
	}
	go c.monitor()
	return nil
}

// AddVirtualConsumer submits vc to be opened and started by the monitor
// goroutine on its next pass. vc must not already be open.
func (c *Coordinator) AddVirtualConsumer(vc *consumer.VirtualConsumer) {
	c.pending <- vc
}

// NextMessage delegates to the buffer.
func (c *Coordinator) NextMessage() (*message.Message, bool) {
	return c.buf.Poll()
}

// Ack routes id to its originating VirtualConsumer's command queue. A
// consumer that has already been reaped (e.g. it completed and closed
// concurrently with a late ack arriving) is logged and otherwise ignored.
func (c *Coordinator) Ack(id message.ID) {
	c.dispatch(id, false)
}

func (c *Coordinator) Fail(id message.ID) {
	c.dispatch(id, true)
}

func (c *Coordinator) dispatch(id message.ID, fail bool) {
	if id == (message.ID{}) {
		return
	}
	c.mu.Lock()
	h, ok := c.workers[id.SourceVirtualConsumerID]
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("ack/fail for unknown or reaped consumer", zap.String("id", id.String()))
		return
	}
	h.cmds <- ackFailCmd{id: id, fail: fail}
}

// Close requests every worker to stop, waits up to CloseGracePeriod for
// them to finish (which closes their VirtualConsumers), then returns.
func (c *Coordinator) Close() error {
	close(c.stop)

	c.mu.Lock()
	handles := make([]*workerHandle, 0, len(c.workers))
	for _, h := range c.workers {
		h.vc.RequestStop()
		handles = append(handles, h)
	}
	c.mu.Unlock()

	<-c.monitorDone

	deadline := time.After(c.cfg.CloseGracePeriod)
	var err error
	for _, h := range handles {
		select {
		case <-h.done:
		case <-deadline:
			err = multierr.Append(err, errs.Transient("coordinator.Coordinator.Close", context.DeadlineExceeded))
		}
	}
	return err
}

func (c *Coordinator) monitor() {
	defer close(c.monitorDone)
	ticker := time.NewTicker(c.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case vc := <-c.pending:
			c.startWorker(vc)
		case <-ticker.C:
			c.reapCompleted()
			c.emitMetrics()
		}
	}
}

func (c *Coordinator) startWorker(vc *consumer.VirtualConsumer) {
	c.mu.Lock()
	if _, exists := c.workers[vc.ID()]; exists {
		c.mu.Unlock()
		err := errs.IllegalState("coordinator.Coordinator.startWorker", fmt.Errorf("worker already running for id %s", vc.ID()))
		c.logger.Error("duplicate virtual consumer id, refusing second worker", zap.String("id", string(vc.ID())), zap.Error(err))
		return
	}
	c.mu.Unlock()

	if err := vc.Open(); err != nil {
		c.logger.Error("failed to open virtual consumer", zap.String("id", string(vc.ID())), zap.Error(err))
		return
	}

	h := &workerHandle{
		vc:   vc,
		cmds: make(chan ackFailCmd, 256),
		done: make(chan struct{}),
	}
	c.mu.Lock()
	c.workers[vc.ID()] = h
	c.mu.Unlock()

	go c.runWorker(h)
}

func (c *Coordinator) runWorker(h *workerHandle) {
	defer close(h.done)
	defer func() {
		if err := h.vc.Close(); err != nil {
			c.logger.Warn("error closing virtual consumer", zap.String("id", string(h.vc.ID())), zap.Error(err))
		}
	}()

	ctx := context.Background()
	for {
		select {
		case <-c.stop:
			return
		case cmd := <-h.cmds:
			c.handleCmd(h, cmd)
		default:
		}

		if h.vc.IsStopRequested() || h.vc.IsCompleted() {
			return
		}

		msg, err := h.vc.NextMessage(ctx)
		if err != nil {
			c.logger.Warn("nextMessage failed", zap.String("id", string(h.vc.ID())), zap.Error(err))
			continue
		}
		if msg != nil {
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.Emitted(h.vc.ID())
			}
			if err := c.buf.Put(h.vc.ID(), msg); err != nil {
				c.logger.Warn("buffer put failed", zap.String("id", string(h.vc.ID())), zap.Error(err))
			}
			continue
		}

		select {
		case <-c.stop:
			return
		case cmd := <-h.cmds:
			c.handleCmd(h, cmd)
		case <-time.After(c.cfg.WorkerIdleSleep):
		}
	}
}

func (c *Coordinator) handleCmd(h *workerHandle, cmd ackFailCmd) {
	var err error
	if cmd.fail {
		err = h.vc.Fail(cmd.id)
	} else {
		err = h.vc.Ack(cmd.id)
	}
	if err == nil {
		if !cmd.fail && c.cfg.Metrics != nil {
			c.cfg.Metrics.Acked(h.vc.ID())
		}
		return
	}
	if errs.Is(err, errs.KindAbandoned) {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.Abandoned(h.vc.ID())
		}
		return
	}
	c.logger.Warn("ack/fail command failed", zap.String("id", string(h.vc.ID())), zap.Bool("fail", cmd.fail), zap.Error(err))
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.Transient(h.vc.ID(), "ack-fail")
	}
}

func (c *Coordinator) reapCompleted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, h := range c.workers {
		select {
		case <-h.done:
			delete(c.workers, id)
		default:
		}
	}
}

func (c *Coordinator) emitMetrics() {
	if c.cfg.Metrics == nil {
		return
	}
	c.mu.Lock()
	active := len(c.workers)
	c.mu.Unlock()
	c.cfg.Metrics.SetActiveConsumers(active)
	c.cfg.Metrics.SetBufferLength(c.buf.Size())
}
