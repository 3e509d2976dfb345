package cost

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory append-only Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append implements Store.
func (m *MemoryStore) Append(ctx context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	m.mu.Lock()
	m.records = append(m.records, record)
	m.mu.Unlock()
	return nil
}

// Aggregate implements Store.
func (m *MemoryStore) Aggregate(ctx context.Context, opts AggregateOptions) (Aggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var agg Aggregate
	for _, r := range m.records {
		if opts.Matches(r) {
			agg.Add(r)
		}
	}
	return agg, nil
}

// AggregateBy implements Store.
func (m *MemoryStore) AggregateBy(ctx context.Context, group GroupBy, opts AggregateOptions) (map[string]Aggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Aggregate)
	for _, r := range m.records {
		if !opts.Matches(r) {
			continue
		}
		key := r.ModelID
		if group == GroupByStage {
			key = r.Stage
		}
		agg := out[key]
		agg.Add(r)
		out[key] = agg
	}
	return out, nil
}

// Records returns a copy of all records in insertion order.
func (m *MemoryStore) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Record(nil), m.records...)
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
