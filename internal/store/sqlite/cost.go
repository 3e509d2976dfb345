// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hivetechs/consensus/pkg/llm/cost"
)

var _ cost.Store = (*CostStore)(nil)

// CostStore implements cost.Store over the cost_tracking table.
type CostStore struct {
	db queryer
}

// Append inserts a record.
func (s *CostStore) Append(ctx context.Context, r cost.Record) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_tracking (id, run_id, model_id, stage, tokens_in, tokens_out, cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, nullString(r.RunID), r.ModelID, r.Stage, r.TokensIn, r.TokensOut, r.Cost, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cost record: %w", err)
	}
	return nil
}

// Aggregate sums the records matching opts.
func (s *CostStore) Aggregate(ctx context.Context, opts cost.AggregateOptions) (cost.Aggregate, error) {
	where, args := costFilter(opts)
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(tokens_in), 0), COALESCE(SUM(tokens_out), 0), COALESCE(SUM(cost), 0)
		FROM cost_tracking`+where, args...)

	var agg cost.Aggregate
	if err := row.Scan(&agg.Calls, &agg.TokensIn, &agg.TokensOut, &agg.Cost); err != nil {
		return cost.Aggregate{}, fmt.Errorf("failed to aggregate costs: %w", err)
	}
	return agg, nil
}

// AggregateBy sums the records matching opts grouped by model or stage.
func (s *CostStore) AggregateBy(ctx context.Context, group cost.GroupBy, opts cost.AggregateOptions) (map[string]cost.Aggregate, error) {
	column := "model_id"
	if group == cost.GroupByStage {
		column = "stage"
	}

	where, args := costFilter(opts)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+column+`, COUNT(*), SUM(tokens_in), SUM(tokens_out), SUM(cost)
		FROM cost_tracking`+where+`
		GROUP BY `+column, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate costs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]cost.Aggregate)
	for rows.Next() {
		var key string
		var agg cost.Aggregate
		if err := rows.Scan(&key, &agg.Calls, &agg.TokensIn, &agg.TokensOut, &agg.Cost); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		out[key] = agg
	}
	return out, rows.Err()
}

// Close is a no-op; the owning DB closes the connection.
func (s *CostStore) Close() error {
	return nil
}

func costFilter(opts cost.AggregateOptions) (string, []any) {
	var clauses []string
	var args []any

	if opts.StartTime != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, formatTime(*opts.StartTime))
	}
	if opts.EndTime != nil {
		clauses = append(clauses, "created_at < ?")
		args = append(args, formatTime(*opts.EndTime))
	}
	if opts.Model != "" {
		clauses = append(clauses, "model_id = ?")
		args = append(args, opts.Model)
	}
	if opts.Stage != "" {
		clauses = append(clauses, "stage = ?")
		args = append(args, opts.Stage)
	}
	if opts.RunID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, opts.RunID)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
