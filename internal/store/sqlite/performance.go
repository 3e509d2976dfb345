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
	"database/sql"
	"fmt"
	"time"

	"github.com/hivetechs/consensus/pkg/llm/performance"
)

var _ performance.Store = (*PerformanceStore)(nil)

// queryer is the subset of *sql.DB the stores use.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PerformanceStore implements performance.Store over the
// performance_metrics table.
type PerformanceStore struct {
	db queryer
}

// Append inserts a sample.
func (s *PerformanceStore) Append(ctx context.Context, sample performance.Sample) error {
	var quality any
	if sample.Quality != nil {
		quality = *sample.Quality
	}
	success := 0
	if sample.Success {
		success = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO performance_metrics (model_id, stage, latency_ms, success, quality, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sample.ModelID, sample.Stage, float64(sample.Latency)/float64(time.Millisecond), success, quality, formatTime(sample.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert performance sample: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest samples for (model, stage),
// oldest first.
func (s *PerformanceStore) Recent(ctx context.Context, modelID, stage string, limit int) ([]performance.Sample, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT latency_ms, success, quality, created_at
		FROM performance_metrics
		WHERE model_id = ? AND stage = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, modelID, stage, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance samples: %w", err)
	}
	defer rows.Close()

	var samples []performance.Sample
	for rows.Next() {
		var (
			latencyMS float64
			success   int
			quality   sql.NullFloat64
			createdAt string
		)
		if err := rows.Scan(&latencyMS, &success, &quality, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan performance sample: %w", err)
		}
		ts, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
		}

		sample := performance.Sample{
			ModelID:   modelID,
			Stage:     stage,
			Latency:   time.Duration(latencyMS * float64(time.Millisecond)),
			Success:   success == 1,
			CreatedAt: ts,
		}
		if quality.Valid {
			q := quality.Float64
			sample.Quality = &q
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}

// Close is a no-op; the owning DB closes the connection.
func (s *PerformanceStore) Close() error {
	return nil
}
