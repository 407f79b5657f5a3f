// Command spout assembles and runs a standalone spout.Engine against a
// real Kafka topic, printing emitted tuples and auto-acking them. It is
// a minimal stand-in for the host streaming runtime (Storm itself, or
// any other nextTuple/ack/fail-driven framework), which is an external
// collaborator per the engine's non-goals.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	etcdembed "go.etcd.io/etcd/server/v3/embed"
	"go.uber.org/zap"

	"github.com/stanlemon/storm-dynamic-spout/buffer"
	"github.com/stanlemon/storm-dynamic-spout/config"
	"github.com/stanlemon/storm-dynamic-spout/logsource"
	"github.com/stanlemon/storm-dynamic-spout/message"
	"github.com/stanlemon/storm-dynamic-spout/persistence"
	"github.com/stanlemon/storm-dynamic-spout/retry"
	"github.com/stanlemon/storm-dynamic-spout/spout"
)

var (
	brokers          string
	topic            string
	partitions       string
	groupID          string
	consumerIDPrefix string
	etcdEndpoints    string
	embedEtcd        bool
	bufferKind       string
	bufferCapacity   int
)

func init() {
	flag.StringVar(&brokers, "brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	flag.StringVar(&topic, "topic", "", "topic to consume")
	flag.StringVar(&partitions, "partitions", "0", "comma-separated partition numbers to assign")
	flag.StringVar(&groupID, "group-id", "dynamic-spout", "Kafka consumer-group id used for firehose offset storage")
	flag.StringVar(&consumerIDPrefix, "consumer-id-prefix", "dynamic-spout", "required prefix for every VirtualConsumerID in this process")
	flag.StringVar(&etcdEndpoints, "etcd-endpoints", "localhost:2379", "comma-separated etcd endpoints for sideline/consumer-state persistence")
	flag.BoolVar(&embedEtcd, "embed-etcd", false, "start a single-node embedded etcd server for development instead of dialing -etcd-endpoints")
	flag.StringVar(&bufferKind, "buffer", "round-robin", "message buffer variant: fifo|round-robin")
	flag.IntVar(&bufferCapacity, "buffer-capacity", 1000, "message buffer capacity")
}

func main() {
	flag.Parse()
	if topic == "" {
		fmt.Fprintln(os.Stderr, "error: -topic is required")
		flag.Usage()
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	stop := make(chan struct{})
	if embedEtcd {
		if err := startEmbeddedEtcd(stop, logger); err != nil {
			logger.Fatal("failed to start embedded etcd", zap.Error(err))
		}
		etcdEndpoints = "localhost:2379"
	}

	brokerList := strings.Split(brokers, ",")
	source, err := logsource.NewKafkaSource(brokerList, groupID, logger)
	if err != nil {
		logger.Fatal("failed to construct firehose kafka source", zap.Error(err))
	}

	sourceFactory := func() (logsource.Source, error) {
		return logsource.NewKafkaSource(brokerList, groupID, logger)
	}

	tps := make([]message.TopicPartition, 0)
	for _, p := range strings.Split(partitions, ",") {
		var n int32
		if _, err := fmt.Sscanf(p, "%d", &n); err != nil {
			logger.Fatal("invalid -partitions entry", zap.String("value", p), zap.Error(err))
		}
		tps = append(tps, message.TopicPartition{Topic: topic, Partition: n})
	}

	bk := buffer.RoundRobinKind
	if bufferKind == "fifo" {
		bk = buffer.FIFOKind
	}

	cfg, err := config.New(
		config.WithConsumerIdPrefix(consumerIDPrefix),
		config.WithRetryManagerKind(retry.ExponentialBackoffKind),
		config.WithPersistenceKind(persistence.EtcdKind),
		config.WithPersistenceZk("/dynamic-spout", strings.Split(etcdEndpoints, ",")),
		config.WithMessageBuffer(bk, bufferCapacity),
		config.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	engine := spout.New(message.NewVirtualConsumerID(consumerIDPrefix, 0, ""), tps, source, sourceFactory)

	emitter := spout.EmitterFunc(func(t *spout.Tuple) {
		fmt.Printf("tuple stream=%s id=%s values=%v\n", t.StreamID, t.ID, t.Values)
	})

	if err := engine.Open(cfg, emitter); err != nil {
		logger.Fatal("failed to open engine", zap.Error(err))
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)

	done := make(chan struct{})
	go runLoop(engine, sigs, done, logger)

	<-done
	close(stop)
	if err := engine.Close(); err != nil {
		logger.Error("error closing engine", zap.Error(err))
	}
}

// runLoop is a minimal stand-in for a host runtime's scheduler: it calls
// NextTuple in a tight poll, auto-acking every tuple immediately since
// there is no real downstream worker topology in this binary.
func runLoop(engine *spout.Engine, sigs <-chan os.Signal, done chan<- struct{}, logger *zap.Logger) {
	defer close(done)
	for {
		select {
		case <-sigs:
			logger.Info("shutdown signal received")
			return
		default:
		}

		t := engine.NextTuple()
		if t == nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		engine.Ack(t.ID)
	}
}

func startEmbeddedEtcd(stop <-chan struct{}, logger *zap.Logger) error {
	cfg := etcdembed.NewConfig()
	cfg.Dir = "dynamic-spout.etcd"
	cfg.Logger = "zap"
	cfg.LogOutputs = []string{"stderr"}

	e, err := etcdembed.StartEtcd(cfg)
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-e.Server.ReadyNotify():
			logger.Info("embedded etcd ready")
		case <-time.After(60 * time.Second):
			logger.Warn("embedded etcd took too long to start")
		}

		<-stop
		e.Server.Stop()
		select {
		case <-e.Server.StopNotify():
			logger.Info("embedded etcd stopped")
		case <-time.After(60 * time.Second):
			logger.Warn("embedded etcd took too long to stop")
		}
	}()

	return nil
}
