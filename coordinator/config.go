package coordinator

import (
	"time"

	"go.uber.org/zap"

	"github.com/stanlemon/storm-dynamic-spout/buffer"
	"github.com/stanlemon/storm-dynamic-spout/metrics"
)

// Config carries coordinator-wide settings.
type Config struct {
	MonitorInterval  time.Duration
	WorkerIdleSleep  time.Duration
	CloseGracePeriod time.Duration
	BufferConfig     buffer.Config
	Logger           *zap.Logger
	Metrics          *metrics.Recorder
}

func (c Config) withDefaults() Config {
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = time.Second
	}
	if c.WorkerIdleSleep <= 0 {
		c.WorkerIdleSleep = 100 * time.Millisecond
	}
	if c.CloseGracePeriod <= 0 {
		c.CloseGracePeriod = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
