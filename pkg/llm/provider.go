// Package llm provides the gateway-facing building blocks of the consensus
// engine: message types, the model catalog, and per-provider admission
// control (rate limiting, circuit breaking, retry backoff).
package llm

import (
	"context"
	"time"
)

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is a single chat message sent to a model.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// FinishReason explains why a model stopped generating.
type FinishReason string

const (
	FinishReasonStop   FinishReason = "stop"
	FinishReasonLength FinishReason = "length"
	FinishReasonError  FinishReason = "error"
)

// CallRequest is a single chat completion request to the gateway.
type CallRequest struct {
	// Model is the gateway model id, e.g. "anthropic/claude-3.5-sonnet".
	Model string

	Messages []Message

	// Temperature is optional; nil uses the gateway default.
	Temperature *float64

	// MaxTokens caps the completion length. Zero uses the gateway default.
	MaxTokens int

	// ExpectedTokens is the denominator for stream progress. Defaults to MaxTokens.
	ExpectedTokens int
}

// CallResponse is the result of a buffered call.
type CallResponse struct {
	ID           string
	Model        string
	Content      string
	Usage        Usage
	FinishReason FinishReason
	RequestID    string
	Latency      time.Duration
}

// Progress is an estimate of how far a streamed completion has advanced.
type Progress struct {
	Tokens   int
	Expected int
}

// Percent returns progress in the range [0, 100].
func (p Progress) Percent() float64 {
	if p.Expected <= 0 {
		return 0
	}
	pct := float64(p.Tokens) / float64(p.Expected) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// StreamChunk is one element of a streamed completion. Exactly one of
// Delta, Progress, or Error is meaningful for most chunks; the final chunk
// carries FinishReason and, when the gateway reports it, Usage.
type StreamChunk struct {
	Delta        string
	Progress     *Progress
	FinishReason FinishReason
	Usage        *Usage
	Error        error
	RequestID    string
}

// Gateway is a model-aggregation endpoint able to serve many models.
type Gateway interface {
	// Name identifies the gateway in logs and errors.
	Name() string

	// Call sends a request and waits for the complete response.
	Call(ctx context.Context, req CallRequest) (*CallResponse, error)

	// Stream sends a request and returns a channel of incremental chunks.
	// The channel is closed when the stream ends or ctx is cancelled.
	Stream(ctx context.Context, req CallRequest) (<-chan StreamChunk, error)
}

// CatalogSource lists the models a gateway currently serves.
type CatalogSource interface {
	ListModels(ctx context.Context) ([]ModelDescriptor, error)
}
