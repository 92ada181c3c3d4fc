package storage

import (
	"context"
	"sync"
)

// Memory is a process-local blob backend with no fallback; it survives
// only the owning TokenManager's lifetime (spec.md §4.1).
//
// Stores and sources built over the same *Memory share its map and its
// change channel, the in-process analogue of two browser tabs sharing one
// window.localStorage — see internal/crosstab's MemorySource. The change
// channel is a single coalescing channel, not a broadcast: each signal is
// received by exactly one reader.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string

	changes chan struct{}
}

var _ Backend = (*Memory)(nil)

// NewMemory creates an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{
		data:    map[string]string{},
		changes: make(chan struct{}, 1),
	}
}

func (m *Memory) Name() string { return "memory" }
func (m *Memory) Keyed() bool  { return false }

func (m *Memory) GetItem(_ context.Context, subkey string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[subkey]
	return v, ok, nil
}

func (m *Memory) SetItem(_ context.Context, subkey string, value string) error {
	m.mu.Lock()
	m.data[subkey] = value
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *Memory) RemoveItem(_ context.Context, subkey string) error {
	m.mu.Lock()
	delete(m.data, subkey)
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.data = map[string]string{}
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *Memory) notify() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

// Changes returns a channel that receives a value (coalesced, never
// blocking) on every write. Consumed by crosstab.MemorySource.
func (m *Memory) Changes() <-chan struct{} {
	return m.changes
}
