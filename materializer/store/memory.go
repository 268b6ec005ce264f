package store

import (
	"context"
	"sync"
)

// Memory is an in-memory Store for tests and development, following the
// same shape as the teacher's MemStore: a mutex-guarded slice, no
// persistence across process restarts.
type Memory struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Dump(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Record, len(records))
	copy(cp, records)
	m.records = cp
	return nil
}

func (m *Memory) Load(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make([]Record, len(m.records))
	copy(cp, m.records)
	return cp, nil
}

func (m *Memory) Close() error { return nil }
