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

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	internallog "github.com/hivetechs/consensus/internal/log"
	"github.com/hivetechs/consensus/pkg/consensus"
	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/llm"
	"github.com/hivetechs/consensus/pkg/llm/cost"
	"github.com/hivetechs/consensus/pkg/llm/performance"
	"github.com/hivetechs/consensus/pkg/profile"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// HealthResponse is returned by /v1/health/models.
type HealthResponse struct {
	Models   []performance.Health `json:"models"`
	Circuits []llm.CircuitStatus  `json:"circuits"`
}

// BudgetResponse is returned by /v1/budget.
type BudgetResponse struct {
	Status  cost.Status               `json:"status"`
	ByModel map[string]cost.Aggregate `json:"by_model"`
	ByStage map[string]cost.Aggregate `json:"by_stage"`
	Since   time.Time                 `json:"since"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ready",
		"version": s.config.Version,
	})
}

func (s *Server) handleConsensus(w http.ResponseWriter, r *http.Request) {
	var req consensus.Request
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.writeError(w, &pkgerrors.ValidationError{Field: "body", Message: "invalid JSON request body", Cause: err})
		return
	}

	if wantsStream(r) {
		s.streamConsensus(w, r, req)
		return
	}

	resp, err := s.deps.Engine.RunSync(r.Context(), req)
	if resp == nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	writeJSON(w, status, struct {
		*consensus.Response
		Error *ErrorDetail `json:"error,omitempty"`
	}{resp, detailFor(err)})
}

// streamConsensus writes each pipeline event as a server-sent event named
// after its type.
func (s *Server) streamConsensus(w http.ResponseWriter, r *http.Request, req consensus.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	events, err := s.deps.Engine.Run(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("failed to encode event", internallog.Error(err))
			continue
		}
		if r.Context().Err() != nil {
			// Client gone; keep draining so the run can finish.
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := llm.Query{
		Capabilities: splitList(q["capability"]...),
		Tier:         llm.ModelTier(q.Get("tier")),
		Allow:        splitList(q["allow"]...),
		Deny:         splitList(q["deny"]...),
		Where:        q.Get("where"),
	}
	filters, err := query.Filters()
	if err != nil {
		s.writeError(w, err)
		return
	}
	models := s.deps.Registry.List(filters...)
	writeJSON(w, http.StatusOK, map[string]any{
		"models":     models,
		"updated_at": s.deps.Registry.UpdatedAt(),
	})
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	set := s.deps.Engine.Profiles()
	profiles := make([]profile.Profile, 0, set.Len())
	for _, name := range set.Names() {
		p, _ := set.Get(name)
		profiles = append(profiles, p)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"default":  s.deps.Engine.Config().DefaultProfile,
		"profiles": profiles,
	})
}

func (s *Server) handleModelHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Models:   s.deps.Performance.Snapshot(),
		Circuits: []llm.CircuitStatus{},
	}
	if s.deps.Breaker != nil {
		resp.Circuits = s.deps.Breaker.Status()
	}
	if resp.Models == nil {
		resp.Models = []performance.Health{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	since := time.Now().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			s.writeError(w, &pkgerrors.ValidationError{Field: "since", Message: fmt.Sprintf("invalid duration %q", v), Suggestion: "use a Go duration such as 24h or 720h"})
			return
		}
		since = time.Now().Add(-d)
	}

	status, err := s.deps.Costs.BudgetStatus(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	byModel, err := s.deps.Costs.Summary(ctx, cost.GroupByModel, since)
	if err != nil {
		s.writeError(w, err)
		return
	}
	byStage, err := s.deps.Costs.Summary(ctx, cost.GroupByStage, since)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BudgetResponse{Status: status, ByModel: byModel, ByStage: byStage, Since: since})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", internallog.Error(err))
	}
	writeJSON(w, status, ErrorBody{Error: *detailFor(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func detailFor(err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	d := &ErrorDetail{Kind: pkgerrors.KindOf(err), Message: err.Error()}
	var userErr pkgerrors.UserVisibleError
	if errors.As(err, &userErr) && userErr.IsUserVisible() {
		d.Suggestion = userErr.Suggestion()
	}
	return d
}

// statusFor maps an error to an HTTP status by kind.
func statusFor(err error) int {
	var notFound *pkgerrors.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	switch pkgerrors.KindOf(err) {
	case pkgerrors.KindValidation:
		return http.StatusBadRequest
	case pkgerrors.KindBudgetExceeded:
		return http.StatusPaymentRequired
	case pkgerrors.KindRateLimit:
		return http.StatusTooManyRequests
	case pkgerrors.KindTimeout:
		return http.StatusGatewayTimeout
	case pkgerrors.KindAuth, pkgerrors.KindTransport, pkgerrors.KindModelUnavailable, pkgerrors.KindExhausted:
		return http.StatusBadGateway
	case pkgerrors.KindCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func wantsStream(r *http.Request) bool {
	if r.URL.Query().Get("stream") == "true" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// splitList flattens repeated and comma-separated query values.
func splitList(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
