package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/llm"
	"github.com/hivetechs/consensus/pkg/llm/pricing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL:          srv.URL,
		APIKey:           "test-key",
		HTTPClient:       srv.Client(),
		ProgressInterval: time.Nanosecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func testRequest() llm.CallRequest {
	return llm.CallRequest{
		Model:     "openai/gpt-4o",
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
		MaxTokens: 100,
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	var cfgErr *pkgerrors.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestCall_SendsHeadersAndParsesResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("HTTP-Referer"); got != "https://hivetechs.io" {
			t.Errorf("HTTP-Referer = %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "Hive.AI Consensus Pipeline" {
			t.Errorf("X-Title = %q", got)
		}
		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Stream || body.Model != "openai/gpt-4o" || body.MaxTokens != 100 {
			t.Errorf("unexpected request body %+v", body)
		}
		w.Header().Set("X-Request-Id", "req-1")
		fmt.Fprint(w, `{"id":"gen-1","model":"openai/gpt-4o","choices":[{"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	})

	resp, err := c.Call(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if resp.Content != "hi there" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 || resp.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.FinishReason != llm.FinishReasonStop {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.RequestID != "req-1" {
		t.Errorf("RequestID = %q", resp.RequestID)
	}
}

func TestCall_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		header   map[string]string
		body     string
		wantKind string
	}{
		{"unauthorized", 401, nil, `{"error":{"message":"bad key"}}`, pkgerrors.KindAuth},
		{"payment required", 402, nil, `{"error":{"message":"no credits"}}`, pkgerrors.KindAuth},
		{"rate limited", 429, map[string]string{"Retry-After": "2"}, `{"error":{"message":"slow down"}}`, pkgerrors.KindRateLimit},
		{"not found", 404, nil, `{"error":{"message":"gone"}}`, pkgerrors.KindModelUnavailable},
		{"invalid model", 400, nil, `{"error":{"message":"foo/bar is not a valid model ID"}}`, pkgerrors.KindModelUnavailable},
		{"bad request", 400, nil, `{"error":{"message":"messages required"}}`, pkgerrors.KindValidation},
		{"server error", 502, nil, `upstream`, pkgerrors.KindTransport},
		{"request timeout", 408, nil, ``, pkgerrors.KindTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := c.Call(context.Background(), testRequest())
			if err == nil {
				t.Fatal("expected error")
			}
			if got := pkgerrors.KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf() = %q, want %q (err: %v)", got, tt.wantKind, err)
			}
		})
	}
}

func TestCall_RateLimitRetryAfter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := c.Call(context.Background(), testRequest())
	var rl *pkgerrors.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rl.RetryAfter != 3*time.Second {
		t.Errorf("RetryAfter = %v, want 3s", rl.RetryAfter)
	}
}

func TestCall_RejectsEmptyMessages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	req := testRequest()
	req.Messages = nil
	_, err := c.Call(context.Background(), req)
	if pkgerrors.KindOf(err) != pkgerrors.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func sseHandler(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprint(w, line+"\n")
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func collect(t *testing.T, ch <-chan llm.StreamChunk) []llm.StreamChunk {
	t.Helper()
	var chunks []llm.StreamChunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
		case <-timeout:
			t.Fatal("stream did not close")
			return nil
		}
	}
}

func TestStream_DeltasProgressAndUsage(t *testing.T) {
	c := newTestClient(t, sseHandler(
		": OPENROUTER PROCESSING",
		"",
		`data: {"choices":[{"delta":{"content":"Hello"}}]}`,
		"",
		`data:{"choices":[{"delta":{"content":", world"}}]}`,
		"",
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		"",
		`data: {"choices":[],"usage":{"prompt_tokens":7,"completion_tokens":3}}`,
		"",
		"data: [DONE]",
	))

	ch, err := c.Stream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	chunks := collect(t, ch)

	var content strings.Builder
	var progress int
	for _, chunk := range chunks {
		if chunk.Error != nil {
			t.Fatalf("unexpected error chunk: %v", chunk.Error)
		}
		content.WriteString(chunk.Delta)
		if chunk.Progress != nil {
			progress++
			if chunk.Progress.Expected != 100 {
				t.Errorf("Progress.Expected = %d, want 100", chunk.Progress.Expected)
			}
		}
	}
	if content.String() != "Hello, world" {
		t.Errorf("content = %q", content.String())
	}
	if progress == 0 {
		t.Error("expected at least one progress chunk")
	}

	last := chunks[len(chunks)-1]
	if last.FinishReason != llm.FinishReasonStop {
		t.Errorf("final FinishReason = %q", last.FinishReason)
	}
	if last.Usage == nil || last.Usage.InputTokens != 7 || last.Usage.OutputTokens != 3 || last.Usage.TotalTokens != 10 {
		t.Errorf("final Usage = %+v", last.Usage)
	}
}

func TestStream_EOFWithoutCompletion(t *testing.T) {
	c := newTestClient(t, sseHandler(
		`data: {"choices":[{"delta":{"content":"partial"}}]}`,
	))
	ch, err := c.Stream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	chunks := collect(t, ch)
	last := chunks[len(chunks)-1]
	if last.Error == nil {
		t.Fatal("expected error on truncated stream")
	}
	if pkgerrors.KindOf(last.Error) != pkgerrors.KindValidation {
		t.Errorf("KindOf() = %q", pkgerrors.KindOf(last.Error))
	}
}

func TestStream_FinishWithoutDone(t *testing.T) {
	c := newTestClient(t, sseHandler(
		`data: {"choices":[{"delta":{"content":"all"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	))
	ch, err := c.Stream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	chunks := collect(t, ch)
	last := chunks[len(chunks)-1]
	if pkgerrors.KindOf(last.Error) != pkgerrors.KindValidation {
		t.Errorf("expected validation error without [DONE], got %+v", last)
	}
}

func TestStream_ReassemblesSplitLines(t *testing.T) {
	parts := []string{
		`data: {"choices":[{"delta":{"con`,
		`tent":"Hel`,
		`lo"}}]}` + "\n\ndata: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n",
		"\ndata: [DO",
		"NE]\n",
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, part := range parts {
			fmt.Fprint(w, part)
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	})

	ch, err := c.Stream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	var content strings.Builder
	chunks := collect(t, ch)
	for _, chunk := range chunks {
		if chunk.Error != nil {
			t.Fatalf("unexpected error chunk: %v", chunk.Error)
		}
		content.WriteString(chunk.Delta)
	}
	if content.String() != "Hello there" {
		t.Errorf("content = %q", content.String())
	}
	if last := chunks[len(chunks)-1]; last.FinishReason != llm.FinishReasonStop {
		t.Errorf("final FinishReason = %q", last.FinishReason)
	}
}

func TestStream_ThrottlesProgress(t *testing.T) {
	const deltas = 50
	lines := make([]string, 0, deltas+1)
	for i := 0; i < deltas; i++ {
		lines = append(lines, `data: {"choices":[{"delta":{"content":"tok "}}]}`)
	}
	lines = append(lines, "data: [DONE]")

	srv := httptest.NewServer(sseHandler(lines...))
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL:          srv.URL,
		APIKey:           "test-key",
		HTTPClient:       srv.Client(),
		ProgressInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ch, err := c.Stream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	var progress, text int
	for _, chunk := range collect(t, ch) {
		if chunk.Progress != nil {
			progress++
		}
		if chunk.Delta != "" {
			text++
		}
	}
	if text != deltas {
		t.Errorf("got %d deltas, want %d", text, deltas)
	}
	if progress != 1 {
		t.Errorf("got %d progress chunks within one interval, want 1", progress)
	}
}

func TestStream_MalformedPayload(t *testing.T) {
	c := newTestClient(t, sseHandler(`data: {not json`))
	ch, err := c.Stream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	chunks := collect(t, ch)
	if len(chunks) != 1 || chunks[0].Error == nil {
		t.Fatalf("expected a single error chunk, got %+v", chunks)
	}
	if chunks[0].FinishReason != llm.FinishReasonError {
		t.Errorf("FinishReason = %q", chunks[0].FinishReason)
	}
}

func TestStream_MidStreamError(t *testing.T) {
	c := newTestClient(t, sseHandler(
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		`data: {"error":{"code":429,"message":"Rate limit exceeded"}}`,
	))
	ch, err := c.Stream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	chunks := collect(t, ch)
	last := chunks[len(chunks)-1]
	if pkgerrors.KindOf(last.Error) != pkgerrors.KindRateLimit {
		t.Errorf("expected rate limit error, got %v", last.Error)
	}
}

func TestStream_StatusErrorReturnedDirectly(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	ch, err := c.Stream(context.Background(), testRequest())
	if ch != nil {
		t.Error("expected nil channel")
	}
	if pkgerrors.KindOf(err) != pkgerrors.KindAuth {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestStream_CancelClosesChannel(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.Stream(ctx, testRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	first := <-ch
	if first.Delta != "a" {
		t.Fatalf("first chunk = %+v", first)
	}
	cancel()
	for chunk := range ch {
		if chunk.Error != nil {
			t.Errorf("unexpected error chunk after cancel: %v", chunk.Error)
		}
	}
}

func TestListModels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":[
			{"id":"anthropic/claude-3-opus","name":"Claude 3 Opus","context_length":200000,
			 "pricing":{"prompt":"0.000015","completion":"0.000075"},
			 "architecture":{"input_modalities":["text","image"]},
			 "supported_parameters":["tools","temperature"]},
			{"id":"meta-llama/llama-3-8b","context_length":8192,
			 "pricing":{"prompt":"0.0000001","completion":"0.0000002"}},
			{"id":"broken"}
		]}`)
	})

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("len(models) = %d, want 2", len(models))
	}

	opus := models[0]
	if opus.Provider != "anthropic" || opus.Tier != llm.TierStrategic {
		t.Errorf("opus = %+v", opus)
	}
	if opus.Pricing.InputPerMillion < 14.99 || opus.Pricing.InputPerMillion > 15.01 {
		t.Errorf("InputPerMillion = %v", opus.Pricing.InputPerMillion)
	}
	for _, want := range []string{llm.CapabilityVision, llm.CapabilityTools, llm.CapabilityLongContext, llm.CapabilityReasoning} {
		if !opus.HasCapability(want) {
			t.Errorf("opus missing capability %q", want)
		}
	}

	if models[1].Tier != llm.TierFast {
		t.Errorf("llama tier = %q, want fast", models[1].Tier)
	}
}

func TestSeedModels(t *testing.T) {
	models := SeedModels(pricing.NewTable(), []string{"openai/gpt-4o", "acme/unknown-model", "no-slash"})

	byID := make(map[string]llm.ModelDescriptor)
	for _, m := range models {
		if _, dup := byID[m.ID]; dup {
			t.Errorf("duplicate descriptor %q", m.ID)
		}
		byID[m.ID] = m
	}
	if _, ok := byID["no-slash"]; ok {
		t.Error("ids without a provider prefix must be skipped")
	}

	unknown, ok := byID["acme/unknown-model"]
	if !ok {
		t.Fatal("configured id missing from seed")
	}
	if unknown.Pricing != pricing.FallbackPrice || unknown.Provider != "acme" {
		t.Errorf("unknown = %+v", unknown)
	}
	if byID["anthropic/claude-3-opus"].Tier != llm.TierStrategic {
		t.Errorf("opus tier = %q", byID["anthropic/claude-3-opus"].Tier)
	}
}
