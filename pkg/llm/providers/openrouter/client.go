// Package openrouter implements llm.Gateway against the OpenRouter
// OpenAI-compatible chat completions API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/httpclient"
	"github.com/hivetechs/consensus/pkg/llm"
)

const (
	providerName = "openrouter"

	// DefaultBaseURL is the public OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	defaultReferer = "https://hivetechs.io"
	defaultTitle   = "Hive.AI Consensus Pipeline"

	// DefaultProgressInterval throttles progress chunks on a stream.
	DefaultProgressInterval = 100 * time.Millisecond

	maxErrorBody = 64 * 1024
)

// Config configures a Client.
type Config struct {
	// BaseURL overrides the API root. Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey is the bearer credential. Required.
	APIKey string

	// Referer and Title identify the application to OpenRouter.
	Referer string
	Title   string

	// HTTPClient overrides the pooled client built from httpclient.
	HTTPClient *http.Client

	// Timeout bounds the wait for response headers when HTTPClient is nil.
	Timeout time.Duration

	// ProgressInterval is the minimum spacing of progress chunks.
	ProgressInterval time.Duration

	Logger *slog.Logger
}

// Client is an llm.Gateway and llm.CatalogSource backed by OpenRouter.
type Client struct {
	baseURL          string
	apiKey           string
	referer          string
	title            string
	httpClient       *http.Client
	progressInterval time.Duration
	logger           *slog.Logger
}

var (
	_ llm.Gateway       = (*Client)(nil)
	_ llm.CatalogSource = (*Client)(nil)
)

// New creates a Client. Completion retries are left to the engine's retry
// policy; the HTTP layer only retries idempotent catalog requests.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &pkgerrors.ConfigError{
			Key:    "gateway.api_key",
			Reason: "an OpenRouter API key is required",
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Referer == "" {
		cfg.Referer = defaultReferer
	}
	if cfg.Title == "" {
		cfg.Title = defaultTitle
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hcfg := httpclient.DefaultConfig()
		if cfg.Timeout > 0 {
			hcfg.Timeout = cfg.Timeout
		}
		hcfg.Logger = cfg.Logger
		var err error
		hc, err = httpclient.New(hcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
	}

	return &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:           cfg.APIKey,
		referer:          cfg.Referer,
		title:            cfg.Title,
		httpClient:       hc,
		progressInterval: cfg.ProgressInterval,
		logger:           cfg.Logger.With(slog.String("gateway", providerName)),
	}, nil
}

// Name returns the gateway identifier.
func (c *Client) Name() string { return providerName }

// Call sends a non-streaming chat completion.
func (c *Client) Call(ctx context.Context, req llm.CallRequest) (*llm.CallResponse, error) {
	start := time.Now()
	resp, err := c.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &pkgerrors.ValidationError{
			Field:   "response",
			Message: "malformed completion payload",
			Cause:   err,
		}
	}
	if body.Error != nil {
		return nil, payloadError(req.Model, body.Error)
	}
	if len(body.Choices) == 0 {
		return nil, &pkgerrors.ValidationError{
			Field:   "response.choices",
			Message: "completion payload has no choices",
		}
	}

	out := &llm.CallResponse{
		ID:           body.ID,
		Model:        body.Model,
		Content:      body.Choices[0].Message.Content,
		FinishReason: toFinishReason(body.Choices[0].FinishReason),
		RequestID:    resp.Header.Get("X-Request-Id"),
		Latency:      time.Since(start),
	}
	if out.Model == "" {
		out.Model = req.Model
	}
	if u := body.Usage.toUsage(); u != nil {
		out.Usage = *u
	}
	return out, nil
}

// post issues the completion request and maps non-2xx statuses to errors.
// On success the caller owns resp.Body.
func (c *Client) post(ctx context.Context, req llm.CallRequest, stream bool) (*http.Response, error) {
	if req.Model == "" {
		return nil, &pkgerrors.ValidationError{Field: "model", Message: "model is required"}
	}
	if len(req.Messages) == 0 {
		return nil, &pkgerrors.ValidationError{
			Field:      "messages",
			Message:    "completion request must have at least one message",
			Suggestion: "Add at least one message to the completion request",
		}
	}

	payload, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Stream:      stream,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &pkgerrors.TransportError{Provider: providerName, Message: "request failed", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := statusError(req.Model, resp.StatusCode, resp.Header, body)
		c.logger.Debug("completion rejected",
			slog.String("model", req.Model),
			slog.Int("status", resp.StatusCode),
			slog.String("error_kind", pkgerrors.KindOf(err)))
		return nil, err
	}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)
}
