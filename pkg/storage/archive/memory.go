package archive

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps ticks in process. It satisfies the same sink and
// pruner contracts as Client and stands in for it in tests.
type MemoryStore struct {
	mu    sync.Mutex
	ticks []TickRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ticks: make([]TickRecord, 0),
	}
}

func (m *MemoryStore) SaveTick(_ context.Context, rec TickRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks = append(m.ticks, rec)
	return nil
}

func (m *MemoryStore) Ticks() []TickRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TickRecord, len(m.ticks))
	copy(out, m.ticks)
	return out
}

func (m *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.ticks[:0]
	var n int64
	for _, t := range m.ticks {
		if t.ObservedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, t)
	}
	m.ticks = kept
	return n, nil
}
