// Package consensus runs a query through the Generator, Refiner, Validator
// and Curator stages, each served by a model chosen per stage, and streams
// the progress of each run as PipelineEvents.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/httpclient"
	"github.com/hivetechs/consensus/pkg/llm"
	"github.com/hivetechs/consensus/pkg/llm/cost"
	"github.com/hivetechs/consensus/pkg/llm/performance"
	"github.com/hivetechs/consensus/pkg/llm/pricing"
	"github.com/hivetechs/consensus/pkg/profile"
)

// Engine orchestrates consensus runs. It is safe for concurrent use; each
// Run gets its own goroutine and event channel.
type Engine struct {
	gateway  llm.Gateway
	registry *llm.Registry
	profiles atomic.Pointer[profile.Set]

	selector     *Selector
	selectorOpts []SelectorOption
	costs        *cost.Tracker
	perf         *performance.Tracker
	admission    *llm.Admission
	retry        llm.RetryPolicy
	hooks        Hooks
	cfg          Config

	slots   chan struct{}
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics Metrics
}

// New creates an engine. Trackers and admission control default to
// in-memory instances with default limits when not supplied.
func New(gateway llm.Gateway, registry *llm.Registry, profiles *profile.Set, opts ...Option) (*Engine, error) {
	if gateway == nil {
		return nil, &pkgerrors.ConfigError{Key: "gateway", Reason: "a gateway is required"}
	}
	if registry == nil {
		return nil, &pkgerrors.ConfigError{Key: "registry", Reason: "a model registry is required"}
	}
	if profiles == nil || profiles.Len() == 0 {
		return nil, &pkgerrors.ConfigError{Key: "profiles", Reason: "at least one profile is required"}
	}

	e := &Engine{
		gateway:  gateway,
		registry: registry,
		retry:    llm.DefaultRetryPolicy(),
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer("consensus"),
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "consensus"))
	if e.costs == nil {
		e.costs = cost.NewTracker(cost.NewMemoryStore(), cost.BudgetConfig{}, cost.WithLogger(e.logger))
	}
	if e.perf == nil {
		e.perf = performance.NewTracker(nil, performance.Config{}, performance.WithLogger(e.logger))
	}
	if e.admission == nil {
		e.admission = llm.NewAdmission(
			llm.NewRateLimiter(llm.DefaultProviderLimit, nil),
			llm.NewCircuitBreaker(llm.DefaultBreakerConfig()),
		)
	}
	e.profiles.Store(profiles)
	e.selector = NewSelector(registry, e.perf, e.admission,
		append([]SelectorOption{WithSelectorLogger(e.logger)}, e.selectorOpts...)...)
	e.slots = make(chan struct{}, e.cfg.MaxConcurrentRuns)
	return e, nil
}

// SetProfiles swaps the profile set. Runs already started keep the profile
// they resolved.
func (e *Engine) SetProfiles(profiles *profile.Set) error {
	if profiles == nil || profiles.Len() == 0 {
		return &pkgerrors.ConfigError{Key: "profiles", Reason: "at least one profile is required"}
	}
	e.profiles.Store(profiles)
	return nil
}

// Profiles returns the current profile set.
func (e *Engine) Profiles() *profile.Set { return e.profiles.Load() }

// Selector returns the engine's model selector.
func (e *Engine) Selector() *Selector { return e.selector }

// Costs returns the engine's cost tracker.
func (e *Engine) Costs() *cost.Tracker { return e.costs }

// Performance returns the engine's performance tracker.
func (e *Engine) Performance() *performance.Tracker { return e.perf }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) resolveProfile(name string) (profile.Profile, error) {
	if name == "" {
		name = e.cfg.DefaultProfile
	}
	p, ok := e.profiles.Load().Get(name)
	if !ok {
		return profile.Profile{}, &pkgerrors.NotFoundError{Resource: "profile", ID: name}
	}
	return p, nil
}

// Run starts a consensus run and returns its event channel. The channel
// is closed after exactly one terminal event (Complete or Error); callers
// must drain it. Run only returns an error for an invalid request.
func (e *Engine) Run(ctx context.Context, req Request) (<-chan PipelineEvent, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, &pkgerrors.ValidationError{
			Field:   "query",
			Message: "query must not be empty",
		}
	}
	prof, err := e.resolveProfile(req.ProfileID)
	if err != nil {
		return nil, err
	}

	r := &run{
		id:      uuid.New().String(),
		req:     req,
		profile: prof,
		events:  make(chan PipelineEvent, e.cfg.EventBuffer),
		start:   time.Now(),
	}
	go func() {
		defer close(r.events)
		e.execute(ctx, r)
	}()
	return r.events, nil
}

// RunSync runs a request to completion and assembles the Response. The
// returned error is the run's terminal error; the Response is returned
// either way so partial results can be inspected.
func (e *Engine) RunSync(ctx context.Context, req Request) (*Response, error) {
	events, err := e.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	resp := &Response{Profile: req.ProfileID}
	if resp.Profile == "" {
		resp.Profile = e.cfg.DefaultProfile
	}
	for ev := range events {
		resp.RunID = ev.RunID
		resp.Warnings = append(resp.Warnings, ev.Warnings...)
		switch ev.Type {
		case EventComplete:
			resp.Status = StatusCompleted
			resp.Stages = ev.Results
			resp.FinalText = ev.FinalText
		case EventError:
			resp.Status = statusFor(ev.Kind)
			resp.Stages = ev.Results
			resp.Err = ev.Err
		}
		if ev.IsTerminal() {
			resp.Duration = time.Duration(ev.DurationMS) * time.Millisecond
		}
	}
	resp.TotalTokens, resp.TotalCost = totals(resp.Stages)
	return resp, resp.Err
}

// run is the mutable state of one execution. It is owned by the run's
// goroutine.
type run struct {
	id      string
	req     Request
	profile profile.Profile
	events  chan PipelineEvent
	start   time.Time

	results  []StageResult
	spent    float64
	warnings []string
}

func (e *Engine) execute(ctx context.Context, r *run) {
	logger := e.logger.With(slog.String("run_id", r.id), slog.String("profile", r.profile.Name))

	ctx = httpclient.WithCorrelationID(ctx, r.id)
	ctx, span := e.tracer.Start(ctx, "consensus.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("consensus.run_id", r.id),
			attribute.String("consensus.profile", r.profile.Name),
			attribute.String("consensus.strategy", string(r.profile.Strategy)),
		),
	)
	defer span.End()

	select {
	case e.slots <- struct{}{}:
		defer func() { <-e.slots }()
	case <-ctx.Done():
		e.fail(ctx, r, span, StageGenerator, ctx.Err())
		return
	}

	logger.Info("consensus run started")
	previous := ""
	for _, stage := range Stages {
		if err := ctx.Err(); err != nil {
			e.fail(ctx, r, span, stage, err)
			return
		}
		result, err := e.runStage(ctx, r, stage, previous, logger)
		if err != nil {
			e.fail(ctx, r, span, stage, err)
			return
		}

		r.results = append(r.results, result)
		r.spent += result.Cost
		e.emit(ctx, r, PipelineEvent{
			Type:       EventStageCompleted,
			Stage:      stage,
			ModelID:    result.ModelID,
			TokensIn:   result.TokensIn,
			TokensOut:  result.TokensOut,
			Cost:       result.Cost,
			DurationMS: result.Duration.Milliseconds(),
		})
		if e.hooks.AfterStage != nil {
			if err := e.hooks.AfterStage(ctx, result); err != nil {
				logger.Warn("after-stage hook failed", slog.String("stage", string(stage)), slog.Any("error", err))
			}
		}
		previous = result.Output
	}

	tokens, total := totals(r.results)
	duration := time.Since(r.start)
	span.SetAttributes(
		attribute.Int("consensus.total_tokens", tokens),
		attribute.Float64("consensus.total_cost", total),
	)
	span.SetStatus(codes.Ok, "")
	e.metrics.RecordRun(ctx, r.profile.Name, StatusCompleted, duration)
	logger.Info("consensus run completed",
		slog.Int("total_tokens", tokens),
		slog.Float64("total_cost", total),
		slog.Duration("duration", duration))

	e.emitTerminal(r, PipelineEvent{
		Type:        EventComplete,
		FinalText:   previous,
		TotalTokens: tokens,
		TotalCost:   total,
		StagesUsed:  len(r.results),
		Results:     append([]StageResult(nil), r.results...),
		DurationMS:  duration.Milliseconds(),
		Warnings:    r.warnings,
	})
}

func (e *Engine) fail(ctx context.Context, r *run, span trace.Span, stage Stage, err error) {
	kind := pkgerrors.KindOf(err)
	status := statusFor(kind)
	duration := time.Since(r.start)

	span.RecordError(err)
	span.SetStatus(codes.Error, kind)
	e.metrics.RecordRun(context.WithoutCancel(ctx), r.profile.Name, status, duration)

	level := slog.LevelError
	if status == StatusCancelled {
		level = slog.LevelInfo
	}
	e.logger.Log(context.WithoutCancel(ctx), level, "consensus run ended",
		slog.String("run_id", r.id),
		slog.String("stage", string(stage)),
		slog.String("kind", kind),
		slog.Int("stages_completed", len(r.results)),
		slog.Any("error", err))

	e.emitTerminal(r, PipelineEvent{
		Type:       EventError,
		Stage:      stage,
		Kind:       kind,
		Message:    err.Error(),
		Results:    append([]StageResult(nil), r.results...),
		Err:        err,
		DurationMS: duration.Milliseconds(),
		Warnings:   r.warnings,
	})
}

// statusFor maps the kind of a terminal error to the run status. A timeout
// ends the run the same way as cancellation; only the kind differs.
func statusFor(kind string) Status {
	switch kind {
	case pkgerrors.KindCancelled, pkgerrors.KindTimeout:
		return StatusCancelled
	}
	return StatusFailed
}

// emit delivers a non-terminal event, blocking while the channel is full.
// Events are dropped once ctx is done; the terminal event reports why.
func (e *Engine) emit(ctx context.Context, r *run, ev PipelineEvent) {
	ev.RunID = r.id
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}

func (e *Engine) emitTerminal(r *run, ev PipelineEvent) {
	ev.RunID = r.id
	ev.Timestamp = time.Now()
	r.events <- ev
}

// runStage executes one stage: budget check, selection, then each ranked
// model in turn with retries, under the stage timeout.
func (e *Engine) runStage(ctx context.Context, r *run, stage Stage, previous string, logger *slog.Logger) (StageResult, error) {
	logger = logger.With(slog.String("stage", string(stage)))

	if e.hooks.BeforeStage != nil {
		info := StageInfo{RunID: r.id, Stage: stage, Profile: r.profile.Name, Input: previous}
		if err := e.hooks.BeforeStage(ctx, info); err != nil {
			return StageResult{}, &pkgerrors.HookError{Hook: "before_stage", Cause: err}
		}
	}

	if limit := r.profile.MaxCostPerRun; limit > 0 && r.spent >= limit {
		return StageResult{}, &pkgerrors.BudgetExceededError{Period: "profile", Spent: r.spent, Limit: limit}
	}

	messages := BuildMessages(stage, r.req, previous)
	inputTokens := estimateMessages(messages)

	budget := Budget{InputTokens: inputTokens, OutputTokens: e.cfg.MaxTokens}
	if r.profile.MaxCostPerRun > 0 {
		budget.Remaining = r.profile.MaxCostPerRun - r.spent
	}
	sel, err := e.selector.SelectWithin(stage, r.profile, budget)
	if err != nil {
		return StageResult{}, err
	}
	if err := e.costs.CheckRun(ctx, r.spent, sel.Primary.EstimateCost(inputTokens, e.cfg.MaxTokens)); err != nil {
		return StageResult{}, err
	}
	for _, w := range sel.Warnings {
		logger.Warn(w)
	}
	r.warnings = append(r.warnings, sel.Warnings...)

	stageCtx, cancel := context.WithTimeout(ctx, e.cfg.StageTimeout)
	defer cancel()
	stageCtx, span := e.tracer.Start(stageCtx, "consensus.stage: "+string(stage),
		trace.WithAttributes(
			attribute.String("consensus.stage", string(stage)),
			attribute.String("consensus.primary_model", sel.Primary.ID),
			attribute.Int("consensus.fallbacks", len(sel.Fallbacks)),
		),
	)
	defer span.End()

	start := time.Now()
	attempts := 0
	var lastErr error
	for i, model := range sel.Models() {
		if i > 0 {
			logger.Warn("falling back to next model",
				slog.String("model_id", model.ID),
				slog.String("previous_error_kind", pkgerrors.KindOf(lastErr)))
		}
		result, n, err := e.tryModel(stageCtx, r, stage, model, messages, inputTokens, logger)
		attempts += n
		if err == nil {
			result.Attempts = attempts
			result.Duration = time.Since(start)
			span.SetAttributes(attribute.String("consensus.model", model.ID), attribute.Int("consensus.attempts", attempts))
			e.metrics.RecordStage(ctx, string(stage), model.ID, result.TokensIn, result.TokensOut, result.Cost, result.Duration)
			return result, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return StageResult{}, ctxErr
		}
		if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
			err = &pkgerrors.TimeoutError{
				Operation: string(stage) + " stage",
				Duration:  e.cfg.StageTimeout,
				Cause:     context.DeadlineExceeded,
			}
			span.RecordError(err)
			return StageResult{}, err
		}
		switch pkgerrors.KindOf(err) {
		case pkgerrors.KindAuth, pkgerrors.KindBudgetExceeded:
			span.RecordError(err)
			return StageResult{}, err
		}
	}

	err = &pkgerrors.ExhaustedError{Stage: string(stage), Attempts: attempts, Last: lastErr}
	span.RecordError(err)
	span.SetStatus(codes.Error, "exhausted")
	return StageResult{}, err
}

// tryModel calls one model up to the retry policy's attempt limit. It
// returns the number of gateway calls made.
func (e *Engine) tryModel(ctx context.Context, r *run, stage Stage, model llm.ModelDescriptor, messages []llm.Message, inputTokens int, logger *slog.Logger) (StageResult, int, error) {
	logger = logger.With(slog.String("model_id", model.ID))
	maxAttempts := e.retry.Attempts()
	calls := 0
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := e.admission.Acquire(ctx, model.Provider); err != nil {
			if errors.Is(err, llm.ErrCircuitOpen) {
				return StageResult{}, calls, &pkgerrors.ModelUnavailableError{
					ModelID: model.ID,
					Reason:  fmt.Sprintf("circuit open for provider %s", model.Provider),
				}
			}
			return StageResult{}, calls, err
		}

		if calls == 0 {
			e.emit(ctx, r, PipelineEvent{Type: EventStageStarted, Stage: stage, ModelID: model.ID})
		}
		calls++
		start := time.Now()
		result, err := e.call(ctx, r, stage, model, messages, inputTokens)
		latency := time.Since(start)
		e.admission.Report(model.Provider, err)

		if err == nil {
			e.perf.Record(performance.Sample{ModelID: model.ID, Stage: string(stage), Latency: latency, Success: true})
			e.costs.Record(cost.Record{
				RunID:     r.id,
				ModelID:   model.ID,
				Stage:     string(stage),
				TokensIn:  result.TokensIn,
				TokensOut: result.TokensOut,
				Cost:      result.Cost,
			})
			e.metrics.RecordAttempt(ctx, string(stage), model.ID, "", latency)
			return result, calls, nil
		}
		if ctx.Err() != nil {
			return StageResult{}, calls, err
		}

		lastErr = err
		kind := pkgerrors.KindOf(err)
		e.perf.Record(performance.Sample{ModelID: model.ID, Stage: string(stage), Latency: latency, Success: false})
		e.metrics.RecordAttempt(ctx, string(stage), model.ID, kind, latency)

		if !pkgerrors.IsRetryable(err) || attempt == maxAttempts {
			logger.Warn("model call failed",
				slog.Int("attempt", attempt),
				slog.String("kind", kind),
				slog.Any("error", err))
			break
		}
		delay := e.retry.Delay(attempt, err)
		logger.Debug("retrying model call",
			slog.Int("attempt", attempt),
			slog.String("kind", kind),
			slog.Duration("delay", delay))
		if err := llm.Sleep(ctx, delay); err != nil {
			return StageResult{}, calls, err
		}
	}
	return StageResult{}, calls, lastErr
}

// call performs one gateway call and builds the stage result.
func (e *Engine) call(ctx context.Context, r *run, stage Stage, model llm.ModelDescriptor, messages []llm.Message, inputTokens int) (StageResult, error) {
	temp := e.cfg.Temperature
	if t := r.profile.Temperature.For(string(stage)); t != nil {
		temp = *t
	}
	req := llm.CallRequest{
		Model:          model.ID,
		Messages:       messages,
		Temperature:    &temp,
		MaxTokens:      e.cfg.MaxTokens,
		ExpectedTokens: e.cfg.MaxTokens,
	}

	var (
		output string
		usage  *llm.Usage
		err    error
	)
	if e.cfg.Streaming && model.Streaming {
		output, usage, err = e.stream(ctx, r, stage, model, req)
	} else {
		var resp *llm.CallResponse
		resp, err = e.gateway.Call(ctx, req)
		if err == nil {
			output = resp.Content
			if resp.Usage.TotalTokens > 0 || resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
				u := resp.Usage
				usage = &u
			}
		}
	}
	if err != nil {
		return StageResult{}, err
	}
	if strings.TrimSpace(output) == "" {
		return StageResult{}, &pkgerrors.ValidationError{
			Field:   "output",
			Message: fmt.Sprintf("model %s returned an empty response", model.ID),
		}
	}

	result := StageResult{
		Stage:   stage,
		ModelID: model.ID,
		Output:  output,
		Success: true,
	}
	if usage != nil {
		result.TokensIn, result.TokensOut = usage.InputTokens, usage.OutputTokens
	} else {
		result.TokensIn = inputTokens
		result.TokensOut = pricing.EstimateTokensFromText(output)
		result.Estimated = true
	}
	result.Cost = model.EstimateCost(result.TokensIn, result.TokensOut)
	return result, nil
}

// stream consumes a streamed completion, forwarding deltas and progress.
func (e *Engine) stream(ctx context.Context, r *run, stage Stage, model llm.ModelDescriptor, req llm.CallRequest) (string, *llm.Usage, error) {
	chunks, err := e.gateway.Stream(ctx, req)
	if err != nil {
		return "", nil, err
	}

	var (
		b        strings.Builder
		usage    *llm.Usage
		finished bool
		failure  error
	)
	for chunk := range chunks {
		if chunk.Error != nil {
			failure = chunk.Error
			continue
		}
		if chunk.Delta != "" {
			b.WriteString(chunk.Delta)
			e.emit(ctx, r, PipelineEvent{Type: EventTokenReceived, Stage: stage, ModelID: model.ID, Text: chunk.Delta})
		}
		if chunk.Progress != nil {
			e.emit(ctx, r, PipelineEvent{Type: EventStageProgress, Stage: stage, ModelID: model.ID, Percent: chunk.Progress.Percent()})
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if chunk.FinishReason != "" {
			finished = true
		}
	}
	if failure != nil {
		return "", nil, failure
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if !finished {
		return "", nil, &pkgerrors.ValidationError{
			Field:   "stream",
			Message: fmt.Sprintf("stream from %s ended before completion", model.ID),
		}
	}
	return b.String(), usage, nil
}

func estimateMessages(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += pricing.EstimateTokensFromText(m.Content)
	}
	return total
}
