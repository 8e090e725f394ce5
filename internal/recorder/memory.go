package recorder

import (
	"context"
	"sync"

	"github.com/codex-k8s/command-router/internal/protocol"
)

// Memory is a process-local Store.
type Memory struct {
	mu      sync.Mutex
	records []protocol.Record
	closed  bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, rec protocol.Record) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	rec.Sequence = uint64(len(m.records) + 1)
	m.records = append(m.records, rec)
	return rec.Sequence, nil
}

// History implements Store.
func (m *Memory) History(_ context.Context, limit int) ([]protocol.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]protocol.Record, 0, min(limit, len(m.records)))
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

// All returns every record in append order.
func (m *Memory) All() []protocol.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Record(nil), m.records...)
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
