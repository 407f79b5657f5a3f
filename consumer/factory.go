package consumer

import (
	"github.com/stanlemon/storm-dynamic-spout/errs"
	"github.com/stanlemon/storm-dynamic-spout/filter"
	"github.com/stanlemon/storm-dynamic-spout/logsource"
	"github.com/stanlemon/storm-dynamic-spout/message"
	"github.com/stanlemon/storm-dynamic-spout/persistence"
	"github.com/stanlemon/storm-dynamic-spout/retry"
)

// Factory is the enum-dispatched construction point that replaces the
// source system's reflection-based class loading: building a
// VirtualConsumer from a retry.Kind rather than a retry-manager class
// name. Set once at process start and reused for the firehose and every
// sideline replay consumer the process spawns.
type Factory struct {
	RetryKind   retry.Kind
	RetryConfig retry.Config
	Persistence persistence.Adapter
}

// NewFirehose builds the unbounded, no-ending-state VirtualConsumer that
// streams the entire source. Its filter chain starts empty; the
// sideline.Controller attaches and removes diversion steps on it at
// runtime.
func (f Factory) NewFirehose(id message.VirtualConsumerID, partitions []message.TopicPartition, source logsource.Source, deserializer logsource.Deserializer, startingState message.ConsumerState, extraOpts ...Option) (*VirtualConsumer, error) {
	rm, err := retry.NewFromConfig(f.RetryKind)
	if err != nil {
		return nil, errs.ConfigMissing("consumer.Factory.NewFirehose", "retryManagerClass")
	}

	opts := []Option{
		WithFilter(filter.New()),
	}
	if startingState != nil {
		opts = append(opts, WithStartingState(startingState))
	}
	opts = append(opts, extraOpts...)

	vc := New(id, partitions, source, deserializer, rm, f.Persistence, opts...)
	vc.cfg.RetryConfig = f.RetryConfig
	return vc, nil
}
