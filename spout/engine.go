// Package spout assembles the generic multiplexing engine — coordinator,
// buffer, firehose VirtualConsumer, and sideline controller — behind the
// pull interface a host streaming runtime drives (open/nextTuple/ack/fail,
// the Go analogue of the original DynamicSpout/SidelineSpout contract).
package spout

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/stanlemon/storm-dynamic-spout/buffer"
	"github.com/stanlemon/storm-dynamic-spout/config"
	"github.com/stanlemon/storm-dynamic-spout/consumer"
	"github.com/stanlemon/storm-dynamic-spout/coordinator"
	"github.com/stanlemon/storm-dynamic-spout/errs"
	"github.com/stanlemon/storm-dynamic-spout/logsource"
	"github.com/stanlemon/storm-dynamic-spout/message"
	"github.com/stanlemon/storm-dynamic-spout/metrics"
	"github.com/stanlemon/storm-dynamic-spout/persistence"
	"github.com/stanlemon/storm-dynamic-spout/sideline"
)

// Tuple is one message handed to the host runtime's emitter: the fields a
// downstream worker sees, the opaque id it must pass back to Ack/Fail, and
// the output stream it was declared against.
type Tuple struct {
	ID       message.ID
	Values   []any
	StreamID string
}

// Emitter is the host runtime's collector: whatever NextTuple produces is
// handed to it before being returned to the caller.
type Emitter interface {
	Emit(t *Tuple)
}

// EmitterFunc adapts a plain function to Emitter.
type EmitterFunc func(t *Tuple)

func (f EmitterFunc) Emit(t *Tuple) { f(t) }

// Engine is the host-runtime-facing assembly: Open/NextTuple/Ack/Fail/
// DeclareOutputFields/Close/Activate/Deactivate, plus sideline
// start/stop/introspection for operators.
type Engine struct {
	firehoseID message.VirtualConsumerID
	partitions []message.TopicPartition

	source        logsource.Source
	sourceFactory sideline.SourceFactory
	registerer    prometheus.Registerer

	cfg         *config.SpoutConfig
	buf         buffer.Buffer
	coord       *coordinator.Coordinator
	persistence persistence.Adapter
	firehose    *consumer.VirtualConsumer
	sideline    *sideline.Controller
	metrics     *metrics.Recorder
	emitter     Emitter
	logger      *zap.Logger

	opened bool
}

// EngineOption mutates an Engine during construction, before Open.
type EngineOption func(*Engine)

// WithRegisterer overrides the Prometheus registerer metrics are
// registered against. Defaults to a fresh, private registry so multiple
// Engines (e.g. in tests) never collide on metric names.
func WithRegisterer(reg prometheus.Registerer) EngineOption {
	return func(e *Engine) { e.registerer = reg }
}

// New constructs an unopened Engine. source is the firehose's own log
// client; sourceFactory builds a fresh Source for each sideline replay
// consumer the controller spawns (typically a constructor closure over
// the same broker/group configuration, since each replay needs its own
// independent client).
func New(firehoseID message.VirtualConsumerID, partitions []message.TopicPartition, source logsource.Source, sourceFactory sideline.SourceFactory, opts ...EngineOption) *Engine {
	e := &Engine{
		firehoseID:    firehoseID,
		partitions:    partitions,
		source:        source,
		sourceFactory: sourceFactory,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open wires every collaborator named in cfg — persistence adapter,
// deserializer, message buffer, coordinator, firehose VirtualConsumer,
// sideline controller — and recovers any sideline state persisted by a
// prior process.
func (e *Engine) Open(cfg *config.SpoutConfig, emitter Emitter) error {
	if e.opened {
		return errs.IllegalState("spout.Engine.Open", fmt.Errorf("engine already opened"))
	}
	e.cfg = cfg
	e.emitter = emitter
	e.logger = cfg.Logger.Named("spout")

	persistenceAdapter, err := persistence.NewFromConfig(cfg.PersistenceKind, cfg.PersistenceZkServers)
	if err != nil {
		return errs.ConfigMissing("spout.Engine.Open", "persistenceAdapterClass")
	}
	if err := persistenceAdapter.Open(); err != nil {
		return errs.Transient("spout.Engine.Open", err)
	}
	e.persistence = persistenceAdapter

	deserializer, err := logsource.NewDeserializer(cfg.DeserializerName)
	if err != nil {
		return errs.ConfigMissing("spout.Engine.Open", "deserializerClass")
	}

	buf, err := buffer.NewFromConfig(cfg.MessageBufferKind)
	if err != nil {
		return errs.ConfigMissing("spout.Engine.Open", "messageBufferClass")
	}
	if err := buf.Open(buffer.Config{Capacity: cfg.MessageBufferCapacity}); err != nil {
		return errs.Transient("spout.Engine.Open", err)
	}
	e.buf = buf

	if e.registerer == nil {
		e.registerer = prometheus.NewRegistry()
	}
	e.metrics = metrics.NewRecorder(e.registerer)

	coordCfg := coordinator.Config{
		MonitorInterval:  cfg.MonitorInterval(),
		WorkerIdleSleep:  cfg.WorkerIdleSleep(),
		CloseGracePeriod: cfg.CloseGracePeriod(),
		BufferConfig:     buffer.Config{Capacity: cfg.MessageBufferCapacity},
		Logger:           e.logger,
		Metrics:          e.metrics,
	}
	coord := coordinator.New(buf, coordCfg)
	if err := coord.Open(); err != nil {
		return errs.Transient("spout.Engine.Open", err)
	}
	e.coord = coord

	var startingState message.ConsumerState
	if state, found, err := persistenceAdapter.RetrieveConsumerState(e.firehoseID); err == nil && found {
		startingState = state
	}

	factory := consumer.Factory{
		RetryKind:   cfg.RetryManagerKind,
		RetryConfig: cfg.RetryConfig(),
		Persistence: persistenceAdapter,
	}
	firehose, err := factory.NewFirehose(e.firehoseID, e.partitions, e.source, deserializer, startingState, consumer.WithOutputStreamID(cfg.OutputStreamId))
	if err != nil {
		return err
	}
	e.firehose = firehose
	coord.AddVirtualConsumer(firehose)

	e.sideline = sideline.New(firehose, persistenceAdapter, coord, e.sourceFactory, deserializer, cfg.ConsumerIdPrefix, e.logger)
	if err := e.sideline.RecoverOnOpen(); err != nil {
		return err
	}

	e.opened = true
	e.logger.Info("spout engine opened", zap.String("firehose", string(e.firehoseID)))
	return nil
}

// NextTuple polls the shared buffer for at most one message, emits it via
// the configured Emitter, and returns it. A nil return means nothing was
// ready this tick.
func (e *Engine) NextTuple() *Tuple {
	msg, ok := e.coord.NextMessage()
	if !ok {
		return nil
	}
	t := &Tuple{ID: msg.ID, Values: msg.Values, StreamID: e.cfg.OutputStreamId}
	if e.emitter != nil {
		e.emitter.Emit(t)
	}
	return t
}

// Ack routes an opaque id back to its originating VirtualConsumer. A
// wrong-type id is logged and dropped, matching the spec's
// errs.InvalidArgument policy for ack/fail payloads.
func (e *Engine) Ack(opaqueID any) {
	id, ok := opaqueID.(message.ID)
	if !ok {
		e.logger.Warn("ack with non-message.ID payload, dropping")
		return
	}
	e.coord.Ack(id)
}

func (e *Engine) Fail(opaqueID any) {
	id, ok := opaqueID.(message.ID)
	if !ok {
		e.logger.Warn("fail with non-message.ID payload, dropping")
		return
	}
	e.coord.Fail(id)
}

// DeclareOutputFields names the single "values" field every Tuple carries;
// downstream workers destructure Tuple.Values themselves since the engine
// treats field content as opaque per the filter-language non-goal.
func (e *Engine) DeclareOutputFields() []string {
	return []string{"values"}
}

// Close shuts down the coordinator (which stops and closes every live
// VirtualConsumer) and the persistence adapter. Calling Close on an engine
// that is not open, including a second Close, returns nil.
func (e *Engine) Close() error {
	if !e.opened {
		return nil
	}
	e.opened = false
	var err error
	if cerr := e.coord.Close(); cerr != nil {
		err = cerr
	}
	if cerr := e.persistence.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Activate and Deactivate are no-ops: this engine has no paused state
// distinct from "workers are running, buffer may just be empty."
func (e *Engine) Activate()   {}
func (e *Engine) Deactivate() {}

// StartSideline diverts req's steps from the firehose. See
// sideline.Controller.Start.
func (e *Engine) StartSideline(req sideline.Request) (uuid.UUID, error) {
	id, err := e.sideline.Start(req)
	if err != nil {
		return uuid.UUID{}, err
	}
	return uuid.Parse(string(id))
}

// StopSideline ends a currently-active diversion and submits its replay
// consumer. See sideline.Controller.Stop.
func (e *Engine) StopSideline(req sideline.Request) (uuid.UUID, error) {
	id, err := e.sideline.Stop(req)
	if err != nil || id == "" {
		return uuid.UUID{}, err
	}
	return uuid.Parse(string(id))
}

// ActiveSidelines exposes the persistence adapter's list of sideline
// requests at the engine level, for operational visibility into what is
// currently diverted or replaying.
func (e *Engine) ActiveSidelines() ([]uuid.UUID, error) {
	ids, err := e.persistence.ListSidelineRequests()
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		parsed, err := uuid.Parse(string(id))
		if err != nil {
			continue
		}
		out = append(out, parsed)
	}
	return out, nil
}
