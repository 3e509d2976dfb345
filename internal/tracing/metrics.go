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

package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hivetechs/consensus/pkg/consensus"
	"github.com/hivetechs/consensus/pkg/llm"
)

var _ consensus.Metrics = (*MetricsCollector)(nil)

// MetricsCollector records engine measurements as OpenTelemetry instruments.
type MetricsCollector struct {
	meter metric.Meter

	// Counters
	requestsTotal metric.Int64Counter
	stagesTotal   metric.Int64Counter
	runsTotal     metric.Int64Counter
	tokensTotal   metric.Int64Counter
	costTotal     metric.Float64Counter

	// Histograms
	requestLatency metric.Float64Histogram
	stageDuration  metric.Float64Histogram
	runDuration    metric.Float64Histogram

	circuitsMu sync.RWMutex
	circuits   func() []llm.CircuitStatus
}

// NewMetricsCollector creates a collector using the given meter provider.
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("github.com/hivetechs/consensus")
	mc := &MetricsCollector{meter: meter}

	var err error

	mc.requestsTotal, err = meter.Int64Counter(
		"hive_gateway_requests_total",
		metric.WithDescription("Total number of gateway calls by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	mc.stagesTotal, err = meter.Int64Counter(
		"hive_stages_total",
		metric.WithDescription("Total number of completed pipeline stages"),
		metric.WithUnit("{stage}"),
	)
	if err != nil {
		return nil, err
	}

	mc.runsTotal, err = meter.Int64Counter(
		"hive_runs_total",
		metric.WithDescription("Total number of consensus runs by terminal status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	mc.tokensTotal, err = meter.Int64Counter(
		"hive_tokens_total",
		metric.WithDescription("Total number of tokens processed"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	mc.costTotal, err = meter.Float64Counter(
		"hive_cost_usd_total",
		metric.WithDescription("Total spend in USD"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return nil, err
	}

	mc.requestLatency, err = meter.Float64Histogram(
		"hive_gateway_latency_seconds",
		metric.WithDescription("Gateway call latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.stageDuration, err = meter.Float64Histogram(
		"hive_stage_duration_seconds",
		metric.WithDescription("Stage duration in seconds including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.runDuration, err = meter.Float64Histogram(
		"hive_run_duration_seconds",
		metric.WithDescription("Consensus run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"hive_circuit_open",
		metric.WithDescription("1 while a provider circuit is open or half-open"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.circuitsMu.RLock()
			source := mc.circuits
			mc.circuitsMu.RUnlock()
			if source == nil {
				return nil
			}
			for _, st := range source() {
				var v int64
				if st.State != llm.CircuitClosed {
					v = 1
				}
				observer.Observe(v, metric.WithAttributes(attribute.String("provider", st.Provider)))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// ObserveCircuits reports breaker state through the hive_circuit_open gauge.
func (mc *MetricsCollector) ObserveCircuits(b *llm.CircuitBreaker) {
	mc.circuitsMu.Lock()
	mc.circuits = b.Status
	mc.circuitsMu.Unlock()
}

// RecordAttempt records one gateway call.
func (mc *MetricsCollector) RecordAttempt(ctx context.Context, stage, modelID, errKind string, latency time.Duration) {
	status := "success"
	if errKind != "" {
		status = errKind
	}
	attrs := metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("model", modelID),
		attribute.String("status", status),
	)
	mc.requestsTotal.Add(ctx, 1, attrs)
	mc.requestLatency.Record(ctx, latency.Seconds(), attrs)
}

// RecordStage records a completed stage.
func (mc *MetricsCollector) RecordStage(ctx context.Context, stage, modelID string, tokensIn, tokensOut int, cost float64, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("stage", stage),
		attribute.String("model", modelID),
	}

	mc.stagesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mc.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if tokensIn > 0 {
		mc.tokensTotal.Add(ctx, int64(tokensIn), metric.WithAttributes(append(attrs, attribute.String("type", "prompt"))...))
	}
	if tokensOut > 0 {
		mc.tokensTotal.Add(ctx, int64(tokensOut), metric.WithAttributes(append(attrs, attribute.String("type", "completion"))...))
	}
	if cost > 0 {
		mc.costTotal.Add(ctx, cost, metric.WithAttributes(attrs...))
	}
}

// RecordRun records a finished run.
func (mc *MetricsCollector) RecordRun(ctx context.Context, profile string, status consensus.Status, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("profile", profile),
		attribute.String("status", string(status)),
	)
	mc.runsTotal.Add(ctx, 1, attrs)
	mc.runDuration.Record(ctx, duration.Seconds(), attrs)
}
