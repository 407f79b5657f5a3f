package retry

import (
	"container/list"

	"github.com/stanlemon/storm-dynamic-spout/message"
)

// FailedTuplesFirst retries every failure, in the order failures were
// reported; an id that fails again after being handed out rejoins at the back.
// It is meant for replay consumers, which must re-emit every failure
// rather than eventually giving up on it.
type FailedTuplesFirst struct {
	queue    *list.List // of message.ID, oldest failure first
	elements map[message.ID]*list.Element
	inFlight map[message.ID]bool
}

// NewFailedTuplesFirst returns an empty manager. Open is a no-op for this
// variant; it takes no configuration.
func NewFailedTuplesFirst() *FailedTuplesFirst {
	return &FailedTuplesFirst{
		queue:    list.New(),
		elements: make(map[message.ID]*list.Element),
		inFlight: make(map[message.ID]bool),
	}
}

func (m *FailedTuplesFirst) Open(Config) error { return nil }

// Failed registers id as eligible for immediate retry. If id was already
// in flight (previously handed out by NextFailedMessageToRetry), it is
// re-queued at the back, since this is a fresh failure event.
func (m *FailedTuplesFirst) Failed(id message.ID) {
	delete(m.inFlight, id)
	if _, exists := m.elements[id]; exists {
		return
	}
	m.elements[id] = m.queue.PushBack(id)
}

// Acked removes all retry state for id, whether it was queued, in
// flight, or unknown.
func (m *FailedTuplesFirst) Acked(id message.ID) {
	if e, ok := m.elements[id]; ok {
		m.queue.Remove(e)
		delete(m.elements, id)
	}
	delete(m.inFlight, id)
}

// RetryFurther always returns true: this variant never gives up.
func (m *FailedTuplesFirst) RetryFurther(message.ID) bool { return true }

// NextFailedMessageToRetry returns the oldest queued failure not already
// in flight, transitioning it to in-flight.
func (m *FailedTuplesFirst) NextFailedMessageToRetry() (message.ID, bool) {
	e := m.queue.Front()
	if e == nil {
		return message.ID{}, false
	}
	id := e.Value.(message.ID)
	m.queue.Remove(e)
	delete(m.elements, id)
	m.inFlight[id] = true
	return id, true
}
