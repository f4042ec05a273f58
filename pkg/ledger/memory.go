package ledger

import (
	"context"
	"sort"
	"sync"
)

// MemoryRecorder keeps records in process memory.
type MemoryRecorder struct {
	mu      sync.RWMutex
	records map[string]*Record
}

var _ Recorder = (*MemoryRecorder)(nil)

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{records: make(map[string]*Record)}
}

// Put implements Recorder.
func (m *MemoryRecorder) Put(_ context.Context, record *Record) error {
	cp := *record

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = &cp
	return nil
}

// Get implements Recorder.
func (m *MemoryRecorder) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound{ID: id}
	}
	cp := *r
	return &cp, nil
}

// List implements Recorder.
func (m *MemoryRecorder) List(_ context.Context, opts ListOptions) ([]*Record, error) {
	m.mu.RLock()
	out := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		if opts.Outcome != "" && r.Outcome != opts.Outcome {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Stats implements Recorder.
func (m *MemoryRecorder) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{}
	for _, r := range m.records {
		stats.add(r.Outcome, 1)
	}
	return stats, nil
}

// Close implements Recorder.
func (m *MemoryRecorder) Close() error { return nil }
