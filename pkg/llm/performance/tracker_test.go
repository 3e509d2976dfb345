package performance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(tr *Tracker, model, stage string, n int, success bool, latency time.Duration) {
	for i := 0; i < n; i++ {
		tr.Record(Sample{ModelID: model, Stage: stage, Latency: latency, Success: success})
	}
}

func TestTracker_HealthClassification(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		failures  int
		latency   time.Duration
		want      State
	}{
		{"no samples", 0, 0, 0, Healthy},
		{"all good", 100, 0, time.Second, Healthy},
		{"exactly 90 percent", 90, 10, time.Second, Healthy},
		{"89 percent", 89, 11, time.Second, Degraded},
		{"slow but successful", 100, 0, 12 * time.Second, Degraded},
		{"exactly half", 50, 50, time.Second, Degraded},
		{"51 of 100 failed", 49, 51, time.Second, Unhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(nil, Config{})
			defer tr.Close(context.Background())
			record(tr, "m/x", "validator", tt.successes, true, tt.latency)
			record(tr, "m/x", "validator", tt.failures, false, tt.latency)

			h := tr.Health("m/x", "validator")
			assert.Equal(t, tt.want, h.State)
			assert.Equal(t, tt.successes+tt.failures, h.Samples)
		})
	}
}

func TestTracker_RollingWindowDropsOldSamples(t *testing.T) {
	tr := NewTracker(nil, Config{WindowSize: 10})
	defer tr.Close(context.Background())

	record(tr, "m/x", "generator", 10, false, time.Second)
	assert.Equal(t, Unhealthy, tr.Health("m/x", "generator").State)

	record(tr, "m/x", "generator", 10, true, time.Second)
	h := tr.Health("m/x", "generator")
	assert.Equal(t, Healthy, h.State)
	assert.Equal(t, 10, h.Samples)
	assert.Equal(t, 1.0, h.SuccessRate)
}

func TestTracker_Percentiles(t *testing.T) {
	tr := NewTracker(nil, Config{})
	defer tr.Close(context.Background())

	for i := 1; i <= 100; i++ {
		tr.Record(Sample{ModelID: "m/x", Stage: "curator", Latency: time.Duration(i) * time.Millisecond, Success: true})
	}

	h := tr.Health("m/x", "curator")
	assert.Equal(t, 50*time.Millisecond, h.P50)
	assert.Equal(t, 95*time.Millisecond, h.P95)
	assert.Equal(t, 99*time.Millisecond, h.P99)
}

func TestTracker_StagesAreIndependent(t *testing.T) {
	tr := NewTracker(nil, Config{})
	defer tr.Close(context.Background())

	record(tr, "m/x", "validator", 10, false, time.Second)
	record(tr, "m/x", "generator", 10, true, time.Second)

	assert.Equal(t, Unhealthy, tr.Health("m/x", "validator").State)
	assert.Equal(t, Healthy, tr.Health("m/x", "generator").State)
	assert.Equal(t, Degraded, tr.ModelHealth("m/x").State)
}

func TestTracker_QualityAverage(t *testing.T) {
	tr := NewTracker(nil, Config{})
	defer tr.Close(context.Background())

	q1, q2 := 0.8, 0.6
	tr.Record(Sample{ModelID: "m/x", Stage: "curator", Success: true, Quality: &q1})
	tr.Record(Sample{ModelID: "m/x", Stage: "curator", Success: true, Quality: &q2})
	tr.Record(Sample{ModelID: "m/x", Stage: "curator", Success: true})

	h := tr.Health("m/x", "curator")
	require.NotNil(t, h.AvgQuality)
	assert.InDelta(t, 0.7, *h.AvgQuality, 1e-9)
}

func TestTracker_PersistsAndWarms(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, Config{WindowSize: 5})
	record(tr, "m/x", "refiner", 8, false, time.Second)
	require.NoError(t, tr.Flush(context.Background()))
	require.NoError(t, tr.Close(context.Background()))

	persisted, err := store.Recent(context.Background(), "m/x", "refiner", 0)
	require.NoError(t, err)
	assert.Len(t, persisted, 8)

	fresh := NewTracker(store, Config{WindowSize: 5})
	defer fresh.Close(context.Background())
	require.NoError(t, fresh.Warm(context.Background(), []string{"m/x", "m/y"}, []string{"refiner"}))
	h := fresh.Health("m/x", "refiner")
	assert.Equal(t, 5, h.Samples)
	assert.Equal(t, Unhealthy, h.State)
}

func TestTracker_Snapshot(t *testing.T) {
	tr := NewTracker(nil, Config{})
	defer tr.Close(context.Background())

	for _, stage := range []string{"refiner", "generator"} {
		for _, model := range []string{"m/b", "m/a"} {
			tr.Record(Sample{ModelID: model, Stage: stage, Success: true})
		}
	}

	snap := tr.Snapshot()
	require.Len(t, snap, 4)
	got := make([]string, len(snap))
	for i, h := range snap {
		got[i] = fmt.Sprintf("%s/%s", h.ModelID, h.Stage)
	}
	assert.Equal(t, []string{"m/a/generator", "m/a/refiner", "m/b/generator", "m/b/refiner"}, got)
}
