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

package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	hiveerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/llm"
)

// TracedGateway wraps a gateway and records a client span for every Call
// and Stream with model and token usage attributes.
type TracedGateway struct {
	gateway llm.Gateway
	tracer  trace.Tracer
}

// WrapGateway wraps gateway with tracing instrumentation.
func WrapGateway(gateway llm.Gateway, tracer trace.Tracer) *TracedGateway {
	return &TracedGateway{gateway: gateway, tracer: tracer}
}

// Name returns the underlying gateway's name.
func (t *TracedGateway) Name() string {
	return t.gateway.Name()
}

// ListModels forwards to the wrapped gateway when it serves a catalog.
func (t *TracedGateway) ListModels(ctx context.Context) ([]llm.ModelDescriptor, error) {
	source, ok := t.gateway.(llm.CatalogSource)
	if !ok {
		return nil, &hiveerrors.ValidationError{Field: "gateway", Message: t.gateway.Name() + " does not serve a model catalog"}
	}

	ctx, span := t.tracer.Start(ctx, "gateway.list_models", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	models, err := source.ListModels(ctx)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("gateway.models", len(models)))
	return models, nil
}

func (t *TracedGateway) start(ctx context.Context, name string, req llm.CallRequest) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("gateway.name", t.gateway.Name()),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.max_tokens", req.MaxTokens),
		attribute.Int("llm.messages", len(req.Messages)),
	}
	if req.Temperature != nil {
		attrs = append(attrs, attribute.Float64("llm.temperature", *req.Temperature))
	}
	return t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

// Call creates a span for a buffered completion.
func (t *TracedGateway) Call(ctx context.Context, req llm.CallRequest) (*llm.CallResponse, error) {
	ctx, span := t.start(ctx, "gateway.call", req)
	defer span.End()

	resp, err := t.gateway.Call(ctx, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("llm.response.model", resp.Model),
		attribute.String("llm.response.finish_reason", string(resp.FinishReason)),
		attribute.String("llm.response.request_id", resp.RequestID),
		attribute.Int("llm.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("llm.usage.output_tokens", resp.Usage.OutputTokens),
		attribute.Int("llm.response.content_length", len(resp.Content)),
	)
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// Stream creates a span that ends when the stream does.
func (t *TracedGateway) Stream(ctx context.Context, req llm.CallRequest) (<-chan llm.StreamChunk, error) {
	ctx, span := t.start(ctx, "gateway.stream", req)

	chunks, err := t.gateway.Stream(ctx, req)
	if err != nil {
		recordError(span, err)
		span.End()
		return nil, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		defer span.End()

		var contentLength int
		var finished bool
		for chunk := range chunks {
			contentLength += len(chunk.Delta)

			switch {
			case chunk.Error != nil:
				recordError(span, chunk.Error)
			case chunk.FinishReason != "":
				finished = true
				span.SetAttributes(attribute.String("llm.response.finish_reason", string(chunk.FinishReason)))
				if chunk.Usage != nil {
					span.SetAttributes(
						attribute.Int("llm.usage.input_tokens", chunk.Usage.InputTokens),
						attribute.Int("llm.usage.output_tokens", chunk.Usage.OutputTokens),
					)
				}
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				// Drain so the producer can exit.
				for range chunks {
				}
				recordError(span, ctx.Err())
				return
			}
		}

		span.SetAttributes(attribute.Int("llm.response.content_length", contentLength))
		if finished {
			span.SetStatus(codes.Ok, "")
		}
	}()

	return out, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetAttributes(attribute.String("error.kind", hiveerrors.KindOf(err)))
	span.SetStatus(codes.Error, err.Error())
}
