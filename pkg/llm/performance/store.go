// Package performance tracks per-(model, stage) latency and success and
// derives a health state from a rolling window of samples.
package performance

import (
	"context"
	"sync"
	"time"
)

// Sample is one gateway call outcome. Samples are append-only.
type Sample struct {
	ModelID   string        `json:"model_id"`
	Stage     string        `json:"stage"`
	Latency   time.Duration `json:"latency"`
	Success   bool          `json:"success"`
	Quality   *float64      `json:"quality,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store is an append-only log of samples.
type Store interface {
	// Append inserts a sample.
	Append(ctx context.Context, s Sample) error

	// Recent returns up to limit of the newest samples for (model, stage),
	// oldest first.
	Recent(ctx context.Context, modelID, stage string, limit int) ([]Sample, error)

	// Close releases resources.
	Close() error
}

type key struct {
	model string
	stage string
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	samples map[key][]Sample
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{samples: make(map[key][]Sample)}
}

// Append implements Store.
func (m *MemoryStore) Append(ctx context.Context, s Sample) error {
	k := key{s.ModelID, s.Stage}
	m.mu.Lock()
	m.samples[k] = append(m.samples[k], s)
	m.mu.Unlock()
	return nil
}

// Recent implements Store.
func (m *MemoryStore) Recent(ctx context.Context, modelID, stage string, limit int) ([]Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.samples[key{modelID, stage}]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]Sample(nil), all...), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
