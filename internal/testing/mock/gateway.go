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

package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/hivetechs/consensus/pkg/llm"
)

// Gateway is a scripted llm.Gateway. By default every call succeeds with
// "answer from <model>". Responses and failures are set per model id.
type Gateway struct {
	mu        sync.Mutex
	responses map[string]string
	queued    map[string][]error
	permanent map[string]error
	calls     []llm.CallRequest
	models    []llm.ModelDescriptor
}

// NewGateway creates a gateway with no scripted behavior.
func NewGateway() *Gateway {
	return &Gateway{
		responses: make(map[string]string),
		queued:    make(map[string][]error),
		permanent: make(map[string]error),
	}
}

// Name returns "mock".
func (g *Gateway) Name() string { return "mock" }

// Respond sets the content returned for model.
func (g *Gateway) Respond(model, content string) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses[model] = content
	return g
}

// FailNext queues errors returned by the next calls to model, in order.
func (g *Gateway) FailNext(model string, errs ...error) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queued[model] = append(g.queued[model], errs...)
	return g
}

// FailAlways makes every call to model return err.
func (g *Gateway) FailAlways(model string, err error) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.permanent[model] = err
	return g
}

// Calls returns the model ids called so far, in order.
func (g *Gateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, len(g.calls))
	for i, c := range g.calls {
		ids[i] = c.Model
	}
	return ids
}

// Requests returns copies of every request received.
func (g *Gateway) Requests() []llm.CallRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.CallRequest(nil), g.calls...)
}

func (g *Gateway) begin(req llm.CallRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if q := g.queued[req.Model]; len(q) > 0 {
		err := q[0]
		g.queued[req.Model] = q[1:]
		return "", err
	}
	if err := g.permanent[req.Model]; err != nil {
		return "", err
	}
	if content, ok := g.responses[req.Model]; ok {
		return content, nil
	}
	return "answer from " + req.Model, nil
}

// Call implements llm.Gateway.
func (g *Gateway) Call(ctx context.Context, req llm.CallRequest) (*llm.CallResponse, error) {
	content, err := g.begin(req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llm.CallResponse{
		Model:        req.Model,
		Content:      content,
		FinishReason: llm.FinishReasonStop,
		Usage:        usageFor(req, content),
	}, nil
}

// Stream implements llm.Gateway, emitting the content one word at a time.
func (g *Gateway) Stream(ctx context.Context, req llm.CallRequest) (<-chan llm.StreamChunk, error) {
	content, err := g.begin(req)
	if err != nil {
		return nil, err
	}
	words := strings.SplitAfter(content, " ")
	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		for i, w := range words {
			chunk := llm.StreamChunk{
				Delta:    w,
				Progress: &llm.Progress{Tokens: i + 1, Expected: len(words)},
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		usage := usageFor(req, content)
		select {
		case out <- llm.StreamChunk{FinishReason: llm.FinishReasonStop, Usage: &usage}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func usageFor(req llm.CallRequest, content string) llm.Usage {
	in := 0
	for _, m := range req.Messages {
		in += len(m.Content) / 4
	}
	out := len(content)/4 + 1
	return llm.Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}
