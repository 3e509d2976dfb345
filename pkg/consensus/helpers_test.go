package consensus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hivetechs/consensus/pkg/llm"
	"github.com/hivetechs/consensus/pkg/llm/cost"
	"github.com/hivetechs/consensus/pkg/llm/performance"
	"github.com/hivetechs/consensus/pkg/llm/pricing"
	"github.com/hivetechs/consensus/pkg/profile"
)

const (
	modelGPT    = "openai/gpt-4o"
	modelClaude = "anthropic/claude-3.5-sonnet"
	modelFlash  = "google/gemini-flash-1.5"
	modelLlama  = "meta-llama/llama-3.1-70b"
)

func testCatalog() []llm.ModelDescriptor {
	chat := []string{llm.CapabilityChat}
	return []llm.ModelDescriptor{
		{ID: modelGPT, Tier: llm.TierStrategic, Capabilities: chat, Pricing: pricing.Price{InputPerMillion: 2.5, OutputPerMillion: 10}},
		{ID: modelClaude, Tier: llm.TierStrategic, Capabilities: chat, Pricing: pricing.Price{InputPerMillion: 3, OutputPerMillion: 15}},
		{ID: modelFlash, Tier: llm.TierFast, Capabilities: chat, Pricing: pricing.Price{InputPerMillion: 0.075, OutputPerMillion: 0.3}},
		{ID: modelLlama, Tier: llm.TierBalanced, Capabilities: chat, Pricing: pricing.Price{InputPerMillion: 0.5, OutputPerMillion: 0.8}},
	}
}

func testProfiles(t *testing.T) *profile.Set {
	t.Helper()
	set, err := profile.NewSet(map[string]profile.Profile{
		"balanced": {
			Strategy: profile.StrategyBalanced,
			Models: profile.StageModels{
				Generator: modelGPT,
				Refiner:   modelClaude,
				Validator: modelFlash,
				Curator:   modelLlama,
			},
		},
		"quality": {
			Strategy: profile.StrategyQualityFirst,
			Models: profile.StageModels{
				Generator: modelClaude,
				Refiner:   modelClaude,
				Validator: modelGPT,
				Curator:   modelClaude,
			},
		},
	})
	require.NoError(t, err)
	return set
}

func testRegistry(t *testing.T) *llm.Registry {
	t.Helper()
	reg, err := llm.NewRegistry(testCatalog())
	require.NoError(t, err)
	return reg
}

func fastRetry(attempts int) llm.RetryPolicy {
	return llm.RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

// fakeGateway scripts per-model failures. Calls fail with the queued errors
// for a model first, then with the model's permanent error, then succeed.
type fakeGateway struct {
	mu        sync.Mutex
	calls     []llm.CallRequest
	queued    map[string][]error
	permanent map[string]error
	block     bool
	streaming bool
	started   chan string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		queued:    make(map[string][]error),
		permanent: make(map[string]error),
		started:   make(chan string, 64),
	}
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) failNext(model string, errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queued[model] = append(g.queued[model], errs...)
}

func (g *fakeGateway) failAlways(model string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.permanent[model] = err
}

func (g *fakeGateway) begin(req llm.CallRequest) error {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	var err error
	if q := g.queued[req.Model]; len(q) > 0 {
		err, g.queued[req.Model] = q[0], q[1:]
	} else if perm := g.permanent[req.Model]; perm != nil {
		err = perm
	}
	g.mu.Unlock()

	select {
	case g.started <- req.Model:
	default:
	}
	return err
}

func (g *fakeGateway) Call(ctx context.Context, req llm.CallRequest) (*llm.CallResponse, error) {
	if err := g.begin(req); err != nil {
		return nil, err
	}
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &llm.CallResponse{
		Model:        req.Model,
		Content:      answerFor(req),
		Usage:        llm.Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
		FinishReason: llm.FinishReasonStop,
	}, nil
}

func (g *fakeGateway) Stream(ctx context.Context, req llm.CallRequest) (<-chan llm.StreamChunk, error) {
	if err := g.begin(req); err != nil {
		return nil, err
	}
	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		text := answerFor(req)
		half := len(text) / 2
		chunks := []llm.StreamChunk{
			{Delta: text[:half]},
			{Progress: &llm.Progress{Tokens: 5, Expected: 10}},
			{Delta: text[half:]},
			{FinishReason: llm.FinishReasonStop, Usage: &llm.Usage{InputTokens: 80, OutputTokens: 40, TotalTokens: 120}},
		}
		for _, c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (g *fakeGateway) models() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, len(g.calls))
	for i, c := range g.calls {
		ids[i] = c.Model
	}
	return ids
}

func (g *fakeGateway) request(i int) llm.CallRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[i]
}

func answerFor(req llm.CallRequest) string {
	return fmt.Sprintf("answer from %s", req.Model)
}

type testEngine struct {
	*Engine
	gateway *fakeGateway
	costs   *cost.Tracker
	perf    *performance.Tracker
	breaker *llm.CircuitBreaker
}

func newTestEngine(t *testing.T, opts ...Option) *testEngine {
	t.Helper()
	gw := newFakeGateway()
	costs := cost.NewTracker(cost.NewMemoryStore(), cost.BudgetConfig{})
	perf := performance.NewTracker(nil, performance.Config{})
	breaker := llm.NewCircuitBreaker(llm.DefaultBreakerConfig())
	t.Cleanup(func() {
		costs.Close(context.Background())
		perf.Close(context.Background())
	})

	base := []Option{
		WithConfig(Config{Streaming: false}),
		WithCostTracker(costs),
		WithPerformanceTracker(perf),
		WithAdmission(llm.NewAdmission(llm.NewRateLimiter(llm.ProviderLimit{}, nil), breaker)),
		WithRetryPolicy(fastRetry(3)),
	}
	eng, err := New(gw, testRegistry(t), testProfiles(t), append(base, opts...)...)
	require.NoError(t, err)
	return &testEngine{Engine: eng, gateway: gw, costs: costs, perf: perf, breaker: breaker}
}

func collectEvents(t *testing.T, ch <-chan PipelineEvent) []PipelineEvent {
	t.Helper()
	var events []PipelineEvent
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("event channel not closed")
			return nil
		}
	}
}

func eventsOf(events []PipelineEvent, typ EventType) []PipelineEvent {
	var out []PipelineEvent
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
