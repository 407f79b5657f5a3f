package retry

import (
	"math"
	"time"

	"github.com/stanlemon/storm-dynamic-spout/message"
	"github.com/stanlemon/storm-dynamic-spout/primitives"
)

type backoffState struct {
	attempt       int
	firstFailedAt time.Time
	nextRetryTime time.Time
}

// ExponentialBackoff schedules retries with a delay that grows
// geometrically per attempt, capped at MaxDelay, and gives up once an id
// has been attempted MaxAttempts times (unbounded if MaxAttempts is
// negative). Ready-to-retry ids are found via a min-heap keyed by
// nextRetryTime rather than a scan over every tracked id.
type ExponentialBackoff struct {
	cfg   Config
	now   func() time.Time
	state map[message.ID]*backoffState
	pq    *primitives.PriorityQueue[message.ID]
}

// NewExponentialBackoff returns a manager; call Open before use to apply
// configuration (delay base, multiplier, cap, max attempts).
func NewExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		state: make(map[message.ID]*backoffState),
		pq:    primitives.NewPriorityQueue[message.ID](false),
	}
}

func (m *ExponentialBackoff) Open(cfg Config) error {
	m.cfg = cfg
	m.now = cfg.Now
	if m.now == nil {
		m.now = time.Now
	}
	return nil
}

// Failed registers id's failure (or re-failure) and computes its next
// eligible retry time: now + base*multiplier^attempt, capped at MaxDelay,
// where attempt is the number of prior failures for id and now is the
// instant of this failure — so each subsequent attempt's delay accumulates
// on top of the time already spent waiting, rather than resetting against
// the original failure instant.
func (m *ExponentialBackoff) Failed(id message.ID) {
	s, exists := m.state[id]
	if !exists {
		s = &backoffState{firstFailedAt: m.now()}
		m.state[id] = s
	}
	delay := m.delayForAttempt(s.attempt)
	s.nextRetryTime = m.now().Add(delay)
	s.attempt++
	m.pq.Push(id, float64(s.nextRetryTime.UnixNano()))
}

func (m *ExponentialBackoff) delayForAttempt(attempt int) time.Duration {
	mult := math.Pow(m.cfg.DelayMultiplier, float64(attempt))
	d := time.Duration(float64(m.cfg.InitialDelay) * mult)
	if m.cfg.MaxDelay > 0 && d > m.cfg.MaxDelay {
		d = m.cfg.MaxDelay
	}
	return d
}

// Acked removes all retry state for id.
func (m *ExponentialBackoff) Acked(id message.ID) {
	delete(m.state, id)
	m.pq.Remove(id)
}

// RetryFurther reports whether id may still be retried: false once its
// attempt count reaches MaxAttempts (when MaxAttempts is non-negative).
func (m *ExponentialBackoff) RetryFurther(id message.ID) bool {
	s, ok := m.state[id]
	if !ok {
		return true
	}
	if m.cfg.MaxAttempts < 0 {
		return true
	}
	return s.attempt < m.cfg.MaxAttempts
}

// NextFailedMessageToRetry returns the queued id with the smallest ready
// nextRetryTime <= now, ties broken by earliest first-failure time.
// Returns false if none are ready yet. An id is removed from the queue
// when it's handed out here and only rejoins it on its next Failed call,
// so an id already handed out is never returned twice.
func (m *ExponentialBackoff) NextFailedMessageToRetry() (message.ID, bool) {
	now := float64(m.now().UnixNano())

	id, ok := m.pq.Peek()
	if !ok {
		return message.ID{}, false
	}
	priority, _ := m.pq.PeekPriority()
	if priority > now {
		return message.ID{}, false
	}

	// Collect every id tied at this exact nextRetryTime so the winner is
	// chosen by earliest first-failure time, not heap insertion order.
	tied := []message.ID{id}
	m.pq.Pop()
	for {
		next, ok := m.pq.Peek()
		if !ok {
			break
		}
		nextPriority, _ := m.pq.PeekPriority()
		if nextPriority != priority {
			break
		}
		m.pq.Pop()
		tied = append(tied, next)
	}

	best := tied[0]
	for _, candidate := range tied[1:] {
		if m.state[candidate].firstFailedAt.Before(m.state[best].firstFailedAt) {
			best = candidate
		}
	}
	for _, candidate := range tied {
		if candidate != best {
			m.pq.Push(candidate, priority)
		}
	}

	return best, true
}
