package openrouter

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/llm"
	"github.com/hivetechs/consensus/pkg/llm/pricing"
)

// Stream sends a streaming chat completion. Errors that occur before the
// first byte (status, auth, rate limit) are returned directly; later
// failures arrive as a chunk with Error set, after which the channel closes.
func (c *Client) Stream(ctx context.Context, req llm.CallRequest) (<-chan llm.StreamChunk, error) {
	resp, err := c.post(ctx, req, true)
	if err != nil {
		return nil, err
	}

	expected := req.ExpectedTokens
	if expected <= 0 {
		expected = req.MaxTokens
	}

	out := make(chan llm.StreamChunk, 16)
	s := &streamReader{
		ctx:       ctx,
		model:     req.Model,
		requestID: resp.Header.Get("X-Request-Id"),
		expected:  expected,
		interval:  c.progressInterval,
		out:       out,
		logger:    c.logger,
	}
	go func() {
		defer close(out)
		defer resp.Body.Close()
		s.run(resp.Body)
	}()
	return out, nil
}

type streamReader struct {
	ctx       context.Context
	model     string
	requestID string
	expected  int
	interval  time.Duration
	out       chan<- llm.StreamChunk
	logger    *slog.Logger

	content      strings.Builder
	finish       llm.FinishReason
	usage        *llm.Usage
	lastProgress time.Time
}

func (s *streamReader) run(body io.Reader) {
	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			done, lineErr := s.handleLine(strings.TrimRight(line, "\r\n"))
			if lineErr != nil {
				s.fail(lineErr)
				return
			}
			if done {
				s.finishStream()
				return
			}
		}
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if err == io.EOF {
				s.fail(&pkgerrors.ValidationError{
					Field:   "stream",
					Message: "stream ended without [DONE]",
				})
				return
			}
			s.fail(&pkgerrors.TransportError{
				Provider:  providerName,
				Message:   "stream interrupted",
				RequestID: s.requestID,
				Cause:     err,
			})
			return
		}
	}
}

// handleLine processes one SSE line and reports whether the stream is done.
func (s *streamReader) handleLine(line string) (bool, error) {
	// Blank lines separate events; ':' lines are keep-alive comments.
	if line == "" || strings.HasPrefix(line, ":") {
		return false, nil
	}
	if !strings.HasPrefix(line, "data:") {
		return false, nil
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "" {
		return false, nil
	}
	if data == "[DONE]" {
		return true, nil
	}

	var event streamEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return false, &pkgerrors.ValidationError{
			Field:   "stream",
			Message: "malformed stream payload",
			Cause:   err,
		}
	}
	if event.Error != nil {
		return false, payloadError(s.model, event.Error)
	}
	if u := event.Usage.toUsage(); u != nil {
		s.usage = u
	}

	for _, choice := range event.Choices {
		if delta := choice.Delta.Content; delta != "" {
			s.content.WriteString(delta)
			if !s.send(llm.StreamChunk{Delta: delta, RequestID: s.requestID}) {
				return true, nil
			}
			s.maybeProgress()
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			s.finish = toFinishReason(*choice.FinishReason)
		}
	}
	return false, nil
}

func (s *streamReader) maybeProgress() {
	now := time.Now()
	if !s.lastProgress.IsZero() && now.Sub(s.lastProgress) < s.interval {
		return
	}
	s.lastProgress = now
	s.send(llm.StreamChunk{
		Progress: &llm.Progress{
			Tokens:   pricing.EstimateTokensFromText(s.content.String()),
			Expected: s.expected,
		},
		RequestID: s.requestID,
	})
}

func (s *streamReader) finishStream() {
	if s.ctx.Err() != nil {
		return
	}
	finish := s.finish
	if finish == "" {
		finish = llm.FinishReasonStop
	}
	s.send(llm.StreamChunk{FinishReason: finish, Usage: s.usage, RequestID: s.requestID})
}

func (s *streamReader) fail(err error) {
	if s.ctx.Err() != nil {
		return
	}
	s.logger.Debug("stream failed",
		slog.String("model", s.model),
		slog.String("error_kind", pkgerrors.KindOf(err)))
	s.send(llm.StreamChunk{Error: err, FinishReason: llm.FinishReasonError, RequestID: s.requestID})
}

// send delivers a chunk unless the consumer has gone away.
func (s *streamReader) send(chunk llm.StreamChunk) bool {
	select {
	case s.out <- chunk:
		return true
	case <-s.ctx.Done():
		return false
	}
}
