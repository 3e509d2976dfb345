// Package jq applies jq expressions to the JSON output of hive commands.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/itchyny/gojq"
)

const (
	// DefaultTimeout is the default execution time for jq expressions (1 second)
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize is the default maximum input size (10MB)
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// Filter is a compiled jq expression. It is safe for concurrent use.
type Filter struct {
	expression   string
	code         *gojq.Code
	timeout      time.Duration
	maxInputSize int
}

// Compile parses and compiles expression. Zero limits take defaults.
func Compile(expression string, timeout time.Duration, maxInputSize int) (*Filter, error) {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxInputSize == 0 {
		maxInputSize = DefaultMaxInputSize
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("jq compilation failed: %w", err)
	}

	return &Filter{
		expression:   expression,
		code:         code,
		timeout:      timeout,
		maxInputSize: maxInputSize,
	}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expression
}

// Apply runs the filter against v and returns every result. v may be any
// JSON-serializable value; it is normalized through encoding/json so
// struct tags decide the field names the expression sees.
func (f *Filter) Apply(ctx context.Context, v any) ([]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}
	if len(data) > f.maxInputSize {
		return nil, fmt.Errorf("data size (%d bytes) exceeds maximum (%d bytes)", len(data), f.maxInputSize)
	}

	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("failed to normalize data: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var results []any
	iter := f.code.RunWithContext(execCtx, input)
	for {
		out, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := out.(error); isErr {
			if execCtx.Err() != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("execution timeout after %v", f.timeout)
			}
			return nil, err
		}
		results = append(results, out)
	}
	return results, nil
}

// Write applies the filter and writes each result on its own line, the way
// jq prints a result stream. String results are written raw when raw is set.
func (f *Filter) Write(ctx context.Context, w io.Writer, v any, raw bool) error {
	results, err := f.Apply(ctx, v)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	for _, r := range results {
		if s, ok := r.(string); ok && raw {
			if _, err := fmt.Fprintln(w, s); err != nil {
				return err
			}
			continue
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
