package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/llm"
	"github.com/hivetechs/consensus/pkg/llm/pricing"
)

// Tier thresholds on blended price, USD per million tokens.
const (
	strategicPriceFloor = 5.0
	balancedPriceFloor  = 0.5
	longContextTokens   = 100_000
)

// ListModels fetches the live catalog from /models.
func (c *Client) ListModels(ctx context.Context) ([]llm.ModelDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &pkgerrors.TransportError{Provider: providerName, Message: "catalog request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError("", resp.StatusCode, resp.Header, body)
	}

	var body modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &pkgerrors.ValidationError{Field: "models", Message: "malformed catalog payload", Cause: err}
	}

	models := make([]llm.ModelDescriptor, 0, len(body.Data))
	for _, m := range body.Data {
		if m.ID == "" || !strings.Contains(m.ID, "/") {
			continue
		}
		price := pricing.Price{
			InputPerMillion:  perMillion(m.Pricing.Prompt),
			OutputPerMillion: perMillion(m.Pricing.Completion),
		}
		models = append(models, llm.ModelDescriptor{
			ID:              m.ID,
			Name:            m.Name,
			Provider:        llm.ProviderOf(m.ID),
			Tier:            tierFor(price),
			Capabilities:    capabilitiesFor(m.ID, m.ContextLength, m.Architecture.InputModalities, m.Architecture.Modality, m.SupportedParameters),
			Pricing:         price,
			ContextWindow:   m.ContextLength,
			MaxOutputTokens: m.TopProvider.MaxCompletionTokens,
			Streaming:       true,
		})
	}
	return models, nil
}

// perMillion converts OpenRouter's per-token price string.
func perMillion(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v * 1e6
}

func tierFor(p pricing.Price) llm.ModelTier {
	blended := (p.InputPerMillion + p.OutputPerMillion) / 2
	switch {
	case blended >= strategicPriceFloor:
		return llm.TierStrategic
	case blended >= balancedPriceFloor:
		return llm.TierBalanced
	default:
		return llm.TierFast
	}
}

func capabilitiesFor(id string, contextLength int, inputs []string, modality string, params []string) []string {
	caps := []string{llm.CapabilityChat}
	lower := strings.ToLower(id)

	if strings.Contains(lower, "code") || strings.Contains(lower, "claude") ||
		strings.Contains(lower, "gpt-4") || strings.Contains(lower, "deepseek") {
		caps = append(caps, llm.CapabilityCode)
	}
	if strings.Contains(lower, "o1") || strings.Contains(lower, "o3") ||
		strings.Contains(lower, "r1") || strings.Contains(lower, "reason") ||
		strings.Contains(lower, "opus") || strings.Contains(lower, "thinking") {
		caps = append(caps, llm.CapabilityReasoning)
	}

	vision := strings.Contains(modality, "image")
	for _, in := range inputs {
		if in == "image" {
			vision = true
		}
	}
	if vision {
		caps = append(caps, llm.CapabilityVision)
	}
	for _, p := range params {
		if p == "tools" {
			caps = append(caps, llm.CapabilityTools)
			break
		}
	}
	if contextLength >= longContextTokens {
		caps = append(caps, llm.CapabilityLongContext)
	}
	return caps
}

// SeedModels builds descriptors for ids priced from table. It stands in for
// the catalog until the first successful fetch. Table models are included
// alongside ids.
func SeedModels(table *pricing.Table, ids []string) []llm.ModelDescriptor {
	seen := make(map[string]bool)
	var models []llm.ModelDescriptor
	for _, id := range append(table.Models(), ids...) {
		if seen[id] || !strings.Contains(id, "/") {
			continue
		}
		seen[id] = true
		price, _ := table.Lookup(id)
		models = append(models, llm.ModelDescriptor{
			ID:           id,
			Provider:     llm.ProviderOf(id),
			Tier:         tierFor(price),
			Capabilities: capabilitiesFor(id, 0, nil, "", nil),
			Pricing:      price,
			Streaming:    true,
		})
	}
	return models
}
