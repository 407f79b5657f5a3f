package consumer

import (
	"go.uber.org/zap"

	"github.com/stanlemon/storm-dynamic-spout/filter"
	"github.com/stanlemon/storm-dynamic-spout/logsource"
	"github.com/stanlemon/storm-dynamic-spout/message"
	"github.com/stanlemon/storm-dynamic-spout/persistence"
	"github.com/stanlemon/storm-dynamic-spout/retry"
)

// Config describes one VirtualConsumer. ID, Partitions, Source,
// Deserializer, RetryManager and Persistence are required; everything else
// has a workable default.
type Config struct {
	ID         message.VirtualConsumerID
	Partitions []message.TopicPartition

	// StartingState seeks each partition before the first poll. A
	// partition absent from StartingState starts from the source's
	// default (typically latest).
	StartingState message.ConsumerState
	// EndingState, if non-nil, bounds delivery: offsets greater than the
	// per-partition bound are silently dropped, and the consumer
	// completes once every assigned partition has reached its bound.
	EndingState message.ConsumerState

	OutputStreamID string
	// SidelineRequestID associates a replay consumer with the sideline
	// request that spawned it, so Close can purge the right payload. Zero
	// value means "not a sideline replay" (the firehose case).
	SidelineRequestID persistence.RequestID

	Source       logsource.Source
	Deserializer logsource.Deserializer
	RetryManager retry.Manager
	RetryConfig  retry.Config
	Filter       *filter.Chain
	Persistence  persistence.Adapter

	Logger *zap.Logger

	// RecentCacheSize bounds how many recently-emitted messages are kept
	// around so a retried MessageId can be re-emitted without a fresh
	// poll. Older entries are evicted first.
	RecentCacheSize int
}

// Option mutates a Config during construction.
type Option func(*Config)

func WithStartingState(state message.ConsumerState) Option {
	return func(c *Config) { c.StartingState = state }
}

func WithEndingState(state message.ConsumerState) Option {
	return func(c *Config) { c.EndingState = state }
}

func WithOutputStreamID(id string) Option {
	return func(c *Config) { c.OutputStreamID = id }
}

func WithSidelineRequestID(id persistence.RequestID) Option {
	return func(c *Config) { c.SidelineRequestID = id }
}

func WithFilter(chain *filter.Chain) Option {
	return func(c *Config) { c.Filter = chain }
}

func WithRecentCacheSize(n int) Option {
	return func(c *Config) { c.RecentCacheSize = n }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

func newConfig(id message.VirtualConsumerID, partitions []message.TopicPartition, source logsource.Source, deserializer logsource.Deserializer, retryManager retry.Manager, persistenceAdapter persistence.Adapter, opts ...Option) Config {
	cfg := Config{
		ID:              id,
		Partitions:      partitions,
		Source:          source,
		Deserializer:    deserializer,
		RetryManager:    retryManager,
		Persistence:     persistenceAdapter,
		OutputStreamID:  "default",
		RecentCacheSize: 1024,
		Logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
