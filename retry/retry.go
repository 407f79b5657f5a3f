// Package retry implements the RetryManager capability set: tracking
// failed message ids and deciding whether, and when, they should be
// retried.
package retry

import (
	"time"

	"github.com/stanlemon/storm-dynamic-spout/message"
)

// Config carries the configuration a Manager needs at Open. Only the
// fields relevant to the constructed variant are consulted.
type Config struct {
	InitialDelay    time.Duration
	DelayMultiplier float64
	MaxDelay        time.Duration
	// MaxAttempts caps ExponentialBackoff retries. Negative means
	// unbounded.
	MaxAttempts int
	// Now overrides the clock for tests. Defaults to time.Now.
	Now func() time.Time
}

// Manager is the polymorphic retry capability set every VirtualConsumer
// consults after a fail. Implementations are not safe for concurrent use
// by design — spec.md's concurrency model serializes all operations on
// one VirtualConsumer's Manager onto that consumer's owning worker
// goroutine.
type Manager interface {
	Open(cfg Config) error
	Failed(id message.ID)
	Acked(id message.ID)
	RetryFurther(id message.ID) bool
	// NextFailedMessageToRetry returns the next failed id eligible for
	// replay, transitioning it to "in flight" so a later call won't
	// return it again until a fresh Failed call re-marks it.
	NextFailedMessageToRetry() (message.ID, bool)
}
