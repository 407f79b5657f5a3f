package logsource

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/stanlemon/storm-dynamic-spout/errs"
	"github.com/stanlemon/storm-dynamic-spout/message"
)

// KafkaSource is the concrete Source backed by a real Kafka cluster. Offset
// storage rides on Kafka's own consumer-group offset API (via
// sarama.OffsetManager) rather than the coordination-service persistence
// adapter; that adapter is reserved for sideline metadata and consumer
// state snapshots, per the external interfaces design.
type KafkaSource struct {
	groupID string
	logger  *zap.Logger

	client    sarama.Client
	consumer  sarama.Consumer
	offsetMgr sarama.OffsetManager

	mu                  sync.Mutex
	partitionConsumers  map[message.TopicPartition]sarama.PartitionConsumer
	partitionOffsetMgrs map[message.TopicPartition]sarama.PartitionOffsetManager
	committed           map[message.TopicPartition]int64

	records chan *Record
	errsCh  chan error
}

// NewKafkaSource dials brokers and prepares consumer and offset-manager
// clients. groupID scopes committed offsets the same way a Kafka consumer
// group would, without this source participating in group rebalancing —
// partition assignment here is driven entirely by Assign/Unsubscribe.
func NewKafkaSource(brokers []string, groupID string, logger *zap.Logger) (*KafkaSource, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, errs.Transient("logsource.NewKafkaSource", err)
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		client.Close()
		return nil, errs.Transient("logsource.NewKafkaSource", err)
	}

	offsetMgr, err := sarama.NewOffsetManagerFromClient(groupID, client)
	if err != nil {
		consumer.Close()
		client.Close()
		return nil, errs.Transient("logsource.NewKafkaSource", err)
	}

	return &KafkaSource{
		groupID:             groupID,
		logger:              logger.Named("kafka-source").With(zap.String("group-id", groupID)),
		client:              client,
		consumer:            consumer,
		offsetMgr:           offsetMgr,
		partitionConsumers:  make(map[message.TopicPartition]sarama.PartitionConsumer),
		partitionOffsetMgrs: make(map[message.TopicPartition]sarama.PartitionOffsetManager),
		committed:           make(map[message.TopicPartition]int64),
		records:             make(chan *Record, 256),
		errsCh:              make(chan error, 16),
	}, nil
}

// Assign seeks to startOffset, which accepts sarama's sentinels
// (sarama.OffsetOldest, sarama.OffsetNewest) as well as an explicit
// offset. Reassigning an already-assigned partition reseeks it.
func (s *KafkaSource) Assign(tp message.TopicPartition, startOffset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pc, ok := s.partitionConsumers[tp]; ok {
		pc.AsyncClose()
		delete(s.partitionConsumers, tp)
	}

	pc, err := s.consumer.ConsumePartition(tp.Topic, tp.Partition, startOffset)
	if err != nil {
		return errs.Transient("logsource.KafkaSource.Assign", err)
	}
	s.partitionConsumers[tp] = pc
	go s.pump(tp, pc)

	if _, ok := s.partitionOffsetMgrs[tp]; !ok {
		pom, err := s.offsetMgr.ManagePartition(tp.Topic, tp.Partition)
		if err != nil {
			pc.AsyncClose()
			delete(s.partitionConsumers, tp)
			return errs.Transient("logsource.KafkaSource.Assign", err)
		}
		s.partitionOffsetMgrs[tp] = pom
		if next, _ := pom.NextOffset(); next >= 0 {
			s.committed[tp] = next - 1
		}
	}
	return nil
}

func (s *KafkaSource) pump(tp message.TopicPartition, pc sarama.PartitionConsumer) {
	for {
		select {
		case msg, ok := <-pc.Messages():
			if !ok {
				return
			}
			s.records <- &Record{TopicPartition: tp, Offset: msg.Offset, Value: msg.Value}
		case err, ok := <-pc.Errors():
			if !ok {
				continue
			}
			s.errsCh <- err
		}
	}
}

// Unsubscribe stops consuming tp. Its offset manager is left open so a
// later CommitOffset for the same tp during shutdown still lands.
func (s *KafkaSource) Unsubscribe(tp message.TopicPartition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pc, ok := s.partitionConsumers[tp]; ok {
		pc.AsyncClose()
		delete(s.partitionConsumers, tp)
	}
	return nil
}

// Poll returns immediately, per the VirtualConsumer contract of a single
// non-blocking step: the returned bool is false whenever no partition has
// a record ready.
func (s *KafkaSource) Poll(ctx context.Context) (*Record, bool, error) {
	select {
	case r := <-s.records:
		return r, true, nil
	case err := <-s.errsCh:
		return nil, false, errs.Transient("logsource.KafkaSource.Poll", err)
	case <-ctx.Done():
		return nil, false, nil
	default:
		return nil, false, nil
	}
}

func (s *KafkaSource) CommitOffset(tp message.TopicPartition, offset int64) error {
	s.mu.Lock()
	pom, ok := s.partitionOffsetMgrs[tp]
	s.mu.Unlock()
	if !ok {
		return errs.IllegalState("logsource.KafkaSource.CommitOffset", fmt.Errorf("partition %s is not assigned", tp))
	}
	pom.MarkOffset(offset+1, "")

	s.mu.Lock()
	s.committed[tp] = offset
	s.mu.Unlock()
	return nil
}

func (s *KafkaSource) CommittedState() message.ConsumerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := make(message.ConsumerState, len(s.committed))
	for tp, offset := range s.committed {
		state[tp] = offset
	}
	return state
}

// ClearCommitted resets every tracked offset back to the start. Kafka's
// offset API has no delete primitive, so "clear" here means reset to 0
// rather than remove the key entirely.
func (s *KafkaSource) ClearCommitted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tp, pom := range s.partitionOffsetMgrs {
		pom.ResetOffset(0, "")
		delete(s.committed, tp)
	}
	return nil
}

func (s *KafkaSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for tp, pc := range s.partitionConsumers {
		if cerr := pc.Close(); cerr != nil {
			err = multierr.Append(err, cerr)
		}
		delete(s.partitionConsumers, tp)
	}
	for tp, pom := range s.partitionOffsetMgrs {
		if cerr := pom.Close(); cerr != nil {
			err = multierr.Append(err, cerr)
		}
		delete(s.partitionOffsetMgrs, tp)
	}
	if cerr := s.offsetMgr.Close(); cerr != nil {
		err = multierr.Append(err, cerr)
	}
	if cerr := s.consumer.Close(); cerr != nil {
		err = multierr.Append(err, cerr)
	}
	if cerr := s.client.Close(); cerr != nil {
		err = multierr.Append(err, cerr)
	}
	s.logger.Info("kafka source closed")
	return err
}
