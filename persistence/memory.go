package persistence

import (
	"sync"

	"github.com/stanlemon/storm-dynamic-spout/message"
)

// Memory is an in-process Adapter, useful for tests and single-node
// development runs where a real etcd cluster is unnecessary.
type Memory struct {
	mu        sync.Mutex
	consumers map[message.VirtualConsumerID]message.ConsumerState
	sidelines map[RequestID]SidelinePayload
}

func NewMemory() *Memory {
	return &Memory{
		consumers: make(map[message.VirtualConsumerID]message.ConsumerState),
		sidelines: make(map[RequestID]SidelinePayload),
	}
}

func (m *Memory) Open() error  { return nil }
func (m *Memory) Close() error { return nil }

func (m *Memory) PersistConsumerState(id message.VirtualConsumerID, state message.ConsumerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumers[id] = state.Clone()
	return nil
}

func (m *Memory) RetrieveConsumerState(id message.VirtualConsumerID) (message.ConsumerState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.consumers[id]
	if !ok {
		return nil, false, nil
	}
	return state.Clone(), true, nil
}

func (m *Memory) ClearConsumerState(id message.VirtualConsumerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.consumers, id)
	return nil
}

func (m *Memory) PersistSidelineRequest(payload SidelinePayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sidelines[payload.ID] = payload
	return nil
}

func (m *Memory) RetrieveSidelineRequest(id RequestID) (SidelinePayload, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.sidelines[id]
	return payload, ok, nil
}

func (m *Memory) ListSidelineRequests() ([]RequestID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]RequestID, 0, len(m.sidelines))
	for id := range m.sidelines {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Memory) ClearSidelineRequest(id RequestID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sidelines, id)
	return nil
}
