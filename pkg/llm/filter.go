package llm

import (
	"fmt"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
)

// Filter accepts or rejects a model.
type Filter func(ModelDescriptor) bool

func acceptAll(m ModelDescriptor, filters []Filter) bool {
	for _, f := range filters {
		if f != nil && !f(m) {
			return false
		}
	}
	return true
}

// RequireCapabilities accepts models carrying every tag.
func RequireCapabilities(tags ...string) Filter {
	return func(m ModelDescriptor) bool {
		return m.HasCapabilities(tags...)
	}
}

// MatchPatterns accepts models whose id matches at least one allow glob
// (all models when allow is empty) and no deny glob. Patterns use
// doublestar syntax, so "anthropic/*" and "**/*-mini" both work.
func MatchPatterns(allow, deny []string) (Filter, error) {
	for _, p := range append(append([]string(nil), allow...), deny...) {
		if !doublestar.ValidatePattern(p) {
			return nil, &pkgerrors.ValidationError{
				Field:      "pattern",
				Message:    fmt.Sprintf("invalid model pattern %q", p),
				Suggestion: "use glob syntax such as 'anthropic/*' or 'openai/gpt-4*'",
			}
		}
	}
	return func(m ModelDescriptor) bool {
		for _, p := range deny {
			if ok, _ := doublestar.Match(p, m.ID); ok {
				return false
			}
		}
		if len(allow) == 0 {
			return true
		}
		for _, p := range allow {
			if ok, _ := doublestar.Match(p, m.ID); ok {
				return true
			}
		}
		return false
	}, nil
}

var (
	whereMu    sync.RWMutex
	whereCache = make(map[string]*vm.Program)
)

// Where compiles a boolean expr-lang expression evaluated against each
// model. Available variables: id, provider, tier, input_price,
// output_price, context_window, max_output_tokens, streaming and
// capabilities. Example: `tier == "strategic" && input_price < 5`.
func Where(expression string) (Filter, error) {
	if expression == "" {
		return nil, nil
	}
	program, err := compileWhere(expression)
	if err != nil {
		return nil, &pkgerrors.ValidationError{
			Field:      "where",
			Message:    fmt.Sprintf("failed to compile expression: %s", err.Error()),
			Suggestion: "use comparison operators over id, provider, tier, input_price, output_price, context_window",
			Cause:      err,
		}
	}
	return func(m ModelDescriptor) bool {
		out, err := expr.Run(program, modelEnv(m))
		if err != nil {
			return false
		}
		ok, _ := out.(bool)
		return ok
	}, nil
}

func compileWhere(expression string) (*vm.Program, error) {
	whereMu.RLock()
	if prog, ok := whereCache[expression]; ok {
		whereMu.RUnlock()
		return prog, nil
	}
	whereMu.RUnlock()

	prog, err := expr.Compile(expression, expr.Env(modelEnv(ModelDescriptor{})), expr.AsBool())
	if err != nil {
		return nil, err
	}

	whereMu.Lock()
	whereCache[expression] = prog
	whereMu.Unlock()
	return prog, nil
}

func modelEnv(m ModelDescriptor) map[string]interface{} {
	caps := m.Capabilities
	if caps == nil {
		caps = []string{}
	}
	return map[string]interface{}{
		"id":                m.ID,
		"provider":          m.Provider,
		"tier":              string(m.Tier),
		"input_price":       m.Pricing.InputPerMillion,
		"output_price":      m.Pricing.OutputPerMillion,
		"context_window":    m.ContextWindow,
		"max_output_tokens": m.MaxOutputTokens,
		"streaming":         m.Streaming,
		"capabilities":      caps,
	}
}

// Query is a user-facing model search, as accepted by the CLI and the
// HTTP API.
type Query struct {
	Capabilities []string
	Tier         ModelTier
	Allow        []string
	Deny         []string
	Where        string
}

// Filters compiles q. Invalid tiers, globs or expressions return a
// ValidationError.
func (q Query) Filters() ([]Filter, error) {
	var filters []Filter
	if len(q.Capabilities) > 0 {
		filters = append(filters, RequireCapabilities(q.Capabilities...))
	}
	if q.Tier != "" {
		if !q.Tier.IsValid() {
			return nil, &pkgerrors.ValidationError{
				Field:      "tier",
				Message:    fmt.Sprintf("unknown tier %q", q.Tier),
				Suggestion: "use fast, balanced or strategic",
			}
		}
		tier := q.Tier
		filters = append(filters, func(m ModelDescriptor) bool { return m.Tier == tier })
	}
	if len(q.Allow) > 0 || len(q.Deny) > 0 {
		patterns, err := MatchPatterns(q.Allow, q.Deny)
		if err != nil {
			return nil, err
		}
		filters = append(filters, patterns)
	}
	where, err := Where(q.Where)
	if err != nil {
		return nil, err
	}
	if where != nil {
		filters = append(filters, where)
	}
	return filters, nil
}
