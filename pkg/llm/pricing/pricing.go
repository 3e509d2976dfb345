// Package pricing converts token counts into USD cost.
package pricing

import (
	"sort"
	"sync"
)

// Price is a per-million-token rate in USD.
type Price struct {
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million"`
}

// IsZero reports whether no rate is set.
func (p Price) IsZero() bool {
	return p.InputPerMillion == 0 && p.OutputPerMillion == 0
}

// FallbackPrice is charged for models with no known rate so that unknown
// models are never treated as free when checking budgets.
var FallbackPrice = Price{InputPerMillion: 1.00, OutputPerMillion: 2.00}

// Table maps model ids to prices. It is safe for concurrent use.
type Table struct {
	mu     sync.RWMutex
	prices map[string]Price
}

// NewTable returns a table seeded with the built-in gateway prices.
func NewTable() *Table {
	t := &Table{prices: make(map[string]Price, len(builtIn))}
	for id, p := range builtIn {
		t.prices[id] = p
	}
	return t
}

// Set records the price for a model, overriding any previous value.
func (t *Table) Set(modelID string, p Price) {
	t.mu.Lock()
	t.prices[modelID] = p
	t.mu.Unlock()
}

// Lookup returns the price for a model. The boolean is false when the
// fallback price was used.
func (t *Table) Lookup(modelID string) (Price, bool) {
	t.mu.RLock()
	p, ok := t.prices[modelID]
	t.mu.RUnlock()
	if !ok {
		return FallbackPrice, false
	}
	return p, true
}

// Models lists the model ids with a known price.
func (t *Table) Models() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.prices))
	for id := range t.prices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// builtIn holds gateway list prices used before the first catalog refresh.
var builtIn = map[string]Price{
	"anthropic/claude-3-opus":         {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"anthropic/claude-3.5-sonnet":     {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"anthropic/claude-3-haiku":        {InputPerMillion: 0.25, OutputPerMillion: 1.25},
	"openai/gpt-4o":                   {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"openai/gpt-4-turbo":              {InputPerMillion: 10.00, OutputPerMillion: 30.00},
	"openai/gpt-4o-mini":              {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"google/gemini-pro-1.5":           {InputPerMillion: 1.25, OutputPerMillion: 5.00},
	"google/gemini-flash-1.5":         {InputPerMillion: 0.075, OutputPerMillion: 0.30},
	"meta-llama/llama-3-70b-instruct": {InputPerMillion: 0.80, OutputPerMillion: 0.80},
	"meta-llama/llama-3-8b-instruct":  {InputPerMillion: 0.20, OutputPerMillion: 0.20},
	"mistralai/mixtral-8x7b-instruct": {InputPerMillion: 0.60, OutputPerMillion: 0.60},
	"mistralai/mistral-7b-instruct":   {InputPerMillion: 0.20, OutputPerMillion: 0.20},
}
