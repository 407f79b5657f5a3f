// Package config carries every tunable enumerated in the spec's external
// interfaces: retry policy, persistence backend, message buffer variant,
// deserializer selection, and coordinator timing. It is built with a
// struct of defaults plus functional options, mirroring the teacher's
// ConsumerConfig/With* convention rather than a reflection-driven
// properties file.
package config

import (
	"time"

	"go.uber.org/zap"

	"github.com/stanlemon/storm-dynamic-spout/buffer"
	"github.com/stanlemon/storm-dynamic-spout/errs"
	"github.com/stanlemon/storm-dynamic-spout/persistence"
	"github.com/stanlemon/storm-dynamic-spout/retry"
)

// SpoutConfig is the full set of configuration spec.md §6 enumerates.
type SpoutConfig struct {
	// ConsumerIdPrefix is required and non-empty: the prefix every
	// VirtualConsumerID in this process is derived from.
	ConsumerIdPrefix string
	// OutputStreamId defaults to "default".
	OutputStreamId string

	RetryManagerKind retry.Kind
	RetryInitialDelay    time.Duration
	RetryDelayMultiplier float64
	RetryMaxDelay        time.Duration
	RetryMaxAttempts     int

	PersistenceKind      persistence.Kind
	PersistenceZkRoot    string
	PersistenceZkServers []string

	MessageBufferKind     buffer.Kind
	MessageBufferCapacity int

	// DeserializerName selects a Deserializer registered with
	// logsource.RegisterDeserializer.
	DeserializerName string

	CoordinatorMonitorIntervalMs  int
	CoordinatorWorkerIdleSleepMs  int
	CoordinatorCloseGracePeriodMs int

	Logger *zap.Logger
}

// Option mutates a SpoutConfig during construction.
type Option func(*SpoutConfig)

func WithConsumerIdPrefix(prefix string) Option {
	return func(c *SpoutConfig) { c.ConsumerIdPrefix = prefix }
}

func WithOutputStreamId(id string) Option {
	return func(c *SpoutConfig) { c.OutputStreamId = id }
}

func WithRetryManagerKind(kind retry.Kind) Option {
	return func(c *SpoutConfig) { c.RetryManagerKind = kind }
}

func WithRetryBackoff(initialDelay time.Duration, multiplier float64, maxDelay time.Duration, maxAttempts int) Option {
	return func(c *SpoutConfig) {
		c.RetryInitialDelay = initialDelay
		c.RetryDelayMultiplier = multiplier
		c.RetryMaxDelay = maxDelay
		c.RetryMaxAttempts = maxAttempts
	}
}

func WithPersistenceKind(kind persistence.Kind) Option {
	return func(c *SpoutConfig) { c.PersistenceKind = kind }
}

func WithPersistenceZk(root string, servers []string) Option {
	return func(c *SpoutConfig) {
		c.PersistenceZkRoot = root
		c.PersistenceZkServers = servers
	}
}

func WithMessageBuffer(kind buffer.Kind, capacity int) Option {
	return func(c *SpoutConfig) {
		c.MessageBufferKind = kind
		c.MessageBufferCapacity = capacity
	}
}

func WithDeserializerName(name string) Option {
	return func(c *SpoutConfig) { c.DeserializerName = name }
}

func WithCoordinatorTiming(monitorIntervalMs, workerIdleSleepMs, closeGracePeriodMs int) Option {
	return func(c *SpoutConfig) {
		c.CoordinatorMonitorIntervalMs = monitorIntervalMs
		c.CoordinatorWorkerIdleSleepMs = workerIdleSleepMs
		c.CoordinatorCloseGracePeriodMs = closeGracePeriodMs
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *SpoutConfig) { c.Logger = logger }
}

// New builds a SpoutConfig from defaults plus opts, and validates it.
func New(opts ...Option) (*SpoutConfig, error) {
	cfg := &SpoutConfig{
		OutputStreamId:                "default",
		RetryManagerKind:              retry.ExponentialBackoffKind,
		RetryInitialDelay:             time.Second,
		RetryDelayMultiplier:          2,
		RetryMaxDelay:                 time.Minute,
		RetryMaxAttempts:              -1,
		PersistenceKind:               persistence.MemoryKind,
		MessageBufferKind:             buffer.RoundRobinKind,
		MessageBufferCapacity:         1000,
		DeserializerName:              "json-array",
		CoordinatorMonitorIntervalMs:  1000,
		CoordinatorWorkerIdleSleepMs:  100,
		CoordinatorCloseGracePeriodMs: 5000,
		Logger:                        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *SpoutConfig) validate() error {
	if c.ConsumerIdPrefix == "" {
		return errs.ConfigMissing("config.SpoutConfig.validate", "consumerIdPrefix")
	}
	return nil
}

func (c *SpoutConfig) MonitorInterval() time.Duration {
	return time.Duration(c.CoordinatorMonitorIntervalMs) * time.Millisecond
}

func (c *SpoutConfig) WorkerIdleSleep() time.Duration {
	return time.Duration(c.CoordinatorWorkerIdleSleepMs) * time.Millisecond
}

func (c *SpoutConfig) CloseGracePeriod() time.Duration {
	return time.Duration(c.CoordinatorCloseGracePeriodMs) * time.Millisecond
}

func (c *SpoutConfig) RetryConfig() retry.Config {
	return retry.Config{
		InitialDelay:    c.RetryInitialDelay,
		DelayMultiplier: c.RetryDelayMultiplier,
		MaxDelay:        c.RetryMaxDelay,
		MaxAttempts:     c.RetryMaxAttempts,
	}
}
