package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
)

// catalog is an immutable snapshot of known models.
type catalog struct {
	models    []ModelDescriptor
	byID      map[string]int
	updatedAt time.Time
}

// Registry holds the model catalog. Readers always see a complete snapshot;
// Refresh and Replace swap the whole catalog at once.
type Registry struct {
	current atomic.Pointer[catalog]
	source  CatalogSource
	logger  *slog.Logger
	now     func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCatalogSource sets where Refresh loads models from.
func WithCatalogSource(src CatalogSource) RegistryOption {
	return func(r *Registry) { r.source = src }
}

// WithRegistryLogger sets the logger used by the refresh loop.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates a registry seeded with models.
func NewRegistry(models []ModelDescriptor, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Replace(models); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace validates models and atomically installs them as the catalog.
func (r *Registry) Replace(models []ModelDescriptor) error {
	snap, err := newCatalog(models, r.now())
	if err != nil {
		return err
	}
	r.current.Store(snap)
	return nil
}

func newCatalog(models []ModelDescriptor, at time.Time) (*catalog, error) {
	sorted := make([]ModelDescriptor, len(models))
	copy(sorted, models)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byID := make(map[string]int, len(sorted))
	for i, m := range sorted {
		if m.ID == "" {
			return nil, &pkgerrors.ValidationError{
				Field:   "model.id",
				Message: "model id is required",
			}
		}
		if _, dup := byID[m.ID]; dup {
			return nil, &pkgerrors.ValidationError{
				Field:   "model.id",
				Message: fmt.Sprintf("duplicate model id %q", m.ID),
			}
		}
		if m.Provider == "" {
			sorted[i].Provider = ProviderOf(m.ID)
		}
		// Capabilities are copied so callers cannot mutate the snapshot.
		sorted[i].Capabilities = append([]string(nil), m.Capabilities...)
		byID[m.ID] = i
	}
	return &catalog{models: sorted, byID: byID, updatedAt: at}, nil
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (ModelDescriptor, error) {
	snap := r.current.Load()
	i, ok := snap.byID[id]
	if !ok {
		return ModelDescriptor{}, &pkgerrors.NotFoundError{Resource: "model", ID: id}
	}
	return snap.models[i], nil
}

// List returns models accepted by every filter, sorted by id.
func (r *Registry) List(filters ...Filter) []ModelDescriptor {
	snap := r.current.Load()
	out := make([]ModelDescriptor, 0, len(snap.models))
	for _, m := range snap.models {
		if acceptAll(m, filters) {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of models in the catalog.
func (r *Registry) Len() int {
	return len(r.current.Load().models)
}

// UpdatedAt returns when the current catalog was installed.
func (r *Registry) UpdatedAt() time.Time {
	return r.current.Load().updatedAt
}

// Refresh loads the catalog from the configured source and swaps it in.
// On failure the previous catalog stays in place.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.source == nil {
		return &pkgerrors.ConfigError{Key: "registry.source", Reason: "no catalog source configured"}
	}
	models, err := r.source.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}
	if len(models) == 0 {
		return &pkgerrors.ValidationError{Field: "catalog", Message: "gateway returned an empty model list"}
	}
	return r.Replace(models)
}

// Start refreshes the catalog every interval until ctx is cancelled.
// Refresh errors are logged and the previous catalog is retained.
func (r *Registry) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 || r.source == nil {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.Refresh(ctx); err != nil {
					r.logger.Warn("model catalog refresh failed", slog.Any("error", err))
					continue
				}
				r.logger.Debug("model catalog refreshed", slog.Int("models", r.Len()))
			}
		}
	}()
}
