package llm

import (
	"strings"

	"github.com/hivetechs/consensus/pkg/llm/pricing"
)

// ModelTier is a coarse quality class used in selection scoring.
type ModelTier string

const (
	// TierFast is for small, inexpensive models.
	TierFast ModelTier = "fast"

	// TierBalanced is for general-purpose models.
	TierBalanced ModelTier = "balanced"

	// TierStrategic is for the most capable models.
	TierStrategic ModelTier = "strategic"
)

// Weight returns the quality weight of a tier in (0, 1].
func (t ModelTier) Weight() float64 {
	switch t {
	case TierStrategic:
		return 1.0
	case TierBalanced:
		return 0.7
	case TierFast:
		return 0.4
	default:
		return 0.5
	}
}

// IsValid reports whether t is a known tier.
func (t ModelTier) IsValid() bool {
	return t == TierFast || t == TierBalanced || t == TierStrategic
}

// Capability tags.
const (
	CapabilityChat        = "chat"
	CapabilityCode        = "code"
	CapabilityReasoning   = "reasoning"
	CapabilityVision      = "vision"
	CapabilityTools       = "tools"
	CapabilityLongContext = "long-context"
)

// ModelDescriptor describes a callable model. Descriptors are values held
// in an immutable catalog snapshot and are never edited in place.
type ModelDescriptor struct {
	ID              string        `json:"id"`
	Name            string        `json:"name,omitempty"`
	Provider        string        `json:"provider"`
	Tier            ModelTier     `json:"tier"`
	Capabilities    []string      `json:"capabilities"`
	Pricing         pricing.Price `json:"pricing"`
	ContextWindow   int           `json:"context_window"`
	MaxOutputTokens int           `json:"max_output_tokens,omitempty"`
	Streaming       bool          `json:"streaming"`
}

// HasCapability reports whether the model carries tag.
func (m ModelDescriptor) HasCapability(tag string) bool {
	for _, c := range m.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// HasCapabilities reports whether the model carries every tag.
func (m ModelDescriptor) HasCapabilities(tags ...string) bool {
	for _, tag := range tags {
		if !m.HasCapability(tag) {
			return false
		}
	}
	return true
}

// EstimateCost returns the projected cost of a call of the given size.
func (m ModelDescriptor) EstimateCost(tokensIn, tokensOut int) float64 {
	p := m.Pricing
	if p.IsZero() {
		p = pricing.FallbackPrice
	}
	return pricing.Calculate(p, tokensIn, tokensOut)
}

// ProviderOf returns the provider prefix of a gateway model id
// ("anthropic/claude-3-opus" -> "anthropic").
func ProviderOf(modelID string) string {
	if i := strings.IndexByte(modelID, '/'); i > 0 {
		return modelID[:i]
	}
	return modelID
}
