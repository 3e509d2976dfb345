// Package cost records per-call spend and enforces budgets.
package cost

import (
	"context"
	"time"
)

// Record is one priced gateway call. Records are append-only.
type Record struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	ModelID   string    `json:"model_id"`
	Stage     string    `json:"stage"`
	TokensIn  int       `json:"tokens_in"`
	TokensOut int       `json:"tokens_out"`
	Cost      float64   `json:"cost"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is an append-only log of cost records.
type Store interface {
	// Append inserts a record. Records are never updated.
	Append(ctx context.Context, record Record) error

	// Aggregate computes totals over the records matching opts.
	Aggregate(ctx context.Context, opts AggregateOptions) (Aggregate, error)

	// AggregateBy computes totals grouped by model or stage.
	AggregateBy(ctx context.Context, group GroupBy, opts AggregateOptions) (map[string]Aggregate, error)

	// Close releases resources.
	Close() error
}

// GroupBy selects the grouping key for AggregateBy.
type GroupBy string

const (
	GroupByModel GroupBy = "model"
	GroupByStage GroupBy = "stage"
)

// AggregateOptions specifies filtering options for aggregation queries.
type AggregateOptions struct {
	// StartTime filters records at or after this time.
	StartTime *time.Time

	// EndTime filters records before this time.
	EndTime *time.Time

	// Model filters records for a specific model.
	Model string

	// Stage filters records for a specific stage.
	Stage string

	// RunID filters records for a specific run.
	RunID string
}

// Matches reports whether r passes the filters.
func (o AggregateOptions) Matches(r Record) bool {
	if o.StartTime != nil && r.CreatedAt.Before(*o.StartTime) {
		return false
	}
	if o.EndTime != nil && !r.CreatedAt.Before(*o.EndTime) {
		return false
	}
	if o.Model != "" && r.ModelID != o.Model {
		return false
	}
	if o.Stage != "" && r.Stage != o.Stage {
		return false
	}
	if o.RunID != "" && r.RunID != o.RunID {
		return false
	}
	return true
}

// Aggregate holds totals over a set of records.
type Aggregate struct {
	Calls     int     `json:"calls"`
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	Cost      float64 `json:"cost"`
}

// Add folds r into the aggregate.
func (a *Aggregate) Add(r Record) {
	a.Calls++
	a.TokensIn += r.TokensIn
	a.TokensOut += r.TokensOut
	a.Cost += r.Cost
}
