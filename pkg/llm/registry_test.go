package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/llm/pricing"
)

func testModels() []ModelDescriptor {
	return []ModelDescriptor{
		{ID: "openai/gpt-4o-mini", Tier: TierFast, Capabilities: []string{"chat", "code"}, Pricing: pricing.Price{InputPerMillion: 0.15, OutputPerMillion: 0.6}, ContextWindow: 128000, Streaming: true},
		{ID: "anthropic/claude-3-opus", Tier: TierStrategic, Capabilities: []string{"chat", "reasoning"}, Pricing: pricing.Price{InputPerMillion: 15, OutputPerMillion: 75}, ContextWindow: 200000, Streaming: true},
		{ID: "google/gemini-pro-1.5", Tier: TierBalanced, Capabilities: []string{"chat", "vision", "long-context"}, Pricing: pricing.Price{InputPerMillion: 1.25, OutputPerMillion: 5}, ContextWindow: 1000000},
	}
}

type staticSource struct {
	models []ModelDescriptor
	err    error
}

func (s staticSource) ListModels(ctx context.Context) ([]ModelDescriptor, error) {
	return s.models, s.err
}

func TestRegistry_ListSortedAndFiltered(t *testing.T) {
	r, err := NewRegistry(testModels())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	all := r.List()
	if len(all) != 3 {
		t.Fatalf("List() len = %d, want 3", len(all))
	}
	if all[0].ID != "anthropic/claude-3-opus" || all[2].ID != "openai/gpt-4o-mini" {
		t.Errorf("List() not sorted by id: %v, %v", all[0].ID, all[2].ID)
	}
	if all[0].Provider != "anthropic" {
		t.Errorf("Provider = %q, want derived from id", all[0].Provider)
	}

	code := r.List(RequireCapabilities("code"))
	if len(code) != 1 || code[0].ID != "openai/gpt-4o-mini" {
		t.Errorf("List(code) = %v", code)
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	models := append(testModels(), ModelDescriptor{ID: "openai/gpt-4o-mini"})
	if _, err := NewRegistry(models); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestRegistry_Get(t *testing.T) {
	r, _ := NewRegistry(testModels())

	m, err := r.Get("google/gemini-pro-1.5")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if m.Tier != TierBalanced {
		t.Errorf("Tier = %s", m.Tier)
	}

	_, err = r.Get("missing/model")
	var nf *pkgerrors.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("Get(missing) error = %v, want NotFoundError", err)
	}
}

func TestRegistry_RefreshSwapsCatalog(t *testing.T) {
	src := staticSource{models: []ModelDescriptor{{ID: "mistralai/mistral-7b-instruct", Tier: TierFast}}}
	r, _ := NewRegistry(testModels(), WithCatalogSource(src))

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after refresh", r.Len())
	}
}

func TestRegistry_FailedRefreshKeepsCatalog(t *testing.T) {
	r, _ := NewRegistry(testModels(), WithCatalogSource(staticSource{err: errors.New("gateway down")}))

	if err := r.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want previous catalog of 3", r.Len())
	}

	r2, _ := NewRegistry(testModels(), WithCatalogSource(staticSource{}))
	if err := r2.Refresh(context.Background()); err == nil {
		t.Error("expected error for empty catalog")
	}
}

func TestRegistry_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	small := []ModelDescriptor{{ID: "a/1"}, {ID: "a/2"}}
	large := []ModelDescriptor{{ID: "b/1"}, {ID: "b/2"}, {ID: "b/3"}, {ID: "b/4"}}
	r, _ := NewRegistry(small)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				_ = r.Replace(large)
			} else {
				_ = r.Replace(small)
			}
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		list := r.List()
		prefix := list[0].ID[0]
		for _, m := range list {
			if m.ID[0] != prefix {
				t.Fatalf("observed mixed catalog: %v", list)
			}
		}
		if (prefix == 'a' && len(list) != 2) || (prefix == 'b' && len(list) != 4) {
			t.Fatalf("observed partial catalog: %v", list)
		}
	}
}

func TestMatchPatterns(t *testing.T) {
	r, _ := NewRegistry(testModels())

	f, err := MatchPatterns([]string{"anthropic/*", "openai/*"}, []string{"**/*-mini"})
	if err != nil {
		t.Fatalf("MatchPatterns() error = %v", err)
	}
	got := r.List(f)
	if len(got) != 1 || got[0].ID != "anthropic/claude-3-opus" {
		t.Errorf("List(patterns) = %v", got)
	}

	if _, err := MatchPatterns([]string{"anthropic/[*"}, nil); err == nil {
		t.Error("expected invalid pattern error")
	}
}

func TestWhere(t *testing.T) {
	r, _ := NewRegistry(testModels())

	f, err := Where(`tier != "fast" && input_price < 5`)
	if err != nil {
		t.Fatalf("Where() error = %v", err)
	}
	got := r.List(f)
	if len(got) != 1 || got[0].ID != "google/gemini-pro-1.5" {
		t.Errorf("List(where) = %v", got)
	}

	f, err = Where(`"reasoning" in capabilities`)
	if err != nil {
		t.Fatalf("Where() error = %v", err)
	}
	if got := r.List(f); len(got) != 1 || got[0].ID != "anthropic/claude-3-opus" {
		t.Errorf("List(capabilities) = %v", got)
	}

	if _, err := Where(`tier +`); err == nil {
		t.Error("expected compile error")
	}

	f, err = Where("")
	if err != nil || f != nil {
		t.Errorf("Where(\"\") returned filter=%t err=%v; want nil filter", f != nil, err)
	}
}

func TestModelDescriptor_EstimateCost(t *testing.T) {
	m := ModelDescriptor{ID: "x/y", Pricing: pricing.Price{InputPerMillion: 2, OutputPerMillion: 4}}
	if got := m.EstimateCost(1_000_000, 500_000); got != 4 {
		t.Errorf("EstimateCost() = %v, want 4", got)
	}

	free := ModelDescriptor{ID: "x/z"}
	if got := free.EstimateCost(1_000_000, 0); got != pricing.FallbackPrice.InputPerMillion {
		t.Errorf("EstimateCost() with no pricing = %v, want fallback", got)
	}
}

func TestQuery_Filters(t *testing.T) {
	r, err := NewRegistry(testModels())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"empty", Query{}, []string{"anthropic/claude-3-opus", "google/gemini-pro-1.5", "openai/gpt-4o-mini"}},
		{"capability", Query{Capabilities: []string{"code"}}, []string{"openai/gpt-4o-mini"}},
		{"tier", Query{Tier: TierStrategic}, []string{"anthropic/claude-3-opus"}},
		{"deny glob", Query{Deny: []string{"anthropic/*"}}, []string{"google/gemini-pro-1.5", "openai/gpt-4o-mini"}},
		{"where", Query{Where: "context_window >= 200000"}, []string{"anthropic/claude-3-opus", "google/gemini-pro-1.5"}},
		{"combined", Query{Capabilities: []string{"chat"}, Where: "input_price < 2"}, []string{"google/gemini-pro-1.5", "openai/gpt-4o-mini"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filters, err := tt.query.Filters()
			if err != nil {
				t.Fatalf("Filters() error = %v", err)
			}
			got := r.List(filters...)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d models, want %d", len(got), len(tt.want))
			}
			for i, m := range got {
				if m.ID != tt.want[i] {
					t.Errorf("model[%d] = %s, want %s", i, m.ID, tt.want[i])
				}
			}
		})
	}
}

func TestQuery_InvalidTier(t *testing.T) {
	_, err := Query{Tier: "premium"}.Filters()
	var vErr *pkgerrors.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "tier" {
		t.Fatalf("expected tier ValidationError, got %v", err)
	}
}
