package consensus

import (
	"time"
)

// Request is a single consensus query.
type Request struct {
	// Query is the user's question. Required.
	Query string `json:"query"`

	// ProfileID names the profile to run. Empty uses the default profile.
	ProfileID string `json:"profile_id,omitempty"`

	// Context is optional repository or domain context for the Generator.
	Context string `json:"context,omitempty"`

	// TemporalContext is optional date/time framing for the Generator,
	// e.g. "Today is Monday, 19 October 2026".
	TemporalContext string `json:"temporal_context,omitempty"`
}

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// StageResult is the outcome of one completed stage. Values are immutable;
// a retried stage produces a new result.
type StageResult struct {
	Stage     Stage         `json:"stage"`
	ModelID   string        `json:"model_id"`
	Output    string        `json:"output"`
	TokensIn  int           `json:"tokens_in"`
	TokensOut int           `json:"tokens_out"`
	Cost      float64       `json:"cost"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`

	// Attempts counts every gateway call made for this stage, across
	// fallback models.
	Attempts int `json:"attempts"`

	// Estimated is set when token counts were estimated because the
	// gateway did not report usage.
	Estimated bool `json:"estimated,omitempty"`
}

// Response is the assembled result of a run.
type Response struct {
	RunID       string        `json:"run_id"`
	Profile     string        `json:"profile"`
	Stages      []StageResult `json:"stages"`
	FinalText   string        `json:"final_text,omitempty"`
	TotalTokens int           `json:"total_tokens"`
	TotalCost   float64       `json:"total_cost"`
	Duration    time.Duration `json:"duration"`
	Status      Status        `json:"status"`
	Warnings    []string      `json:"warnings,omitempty"`

	// Err is the terminal error of a failed or cancelled run.
	Err error `json:"-"`
}

// totals sums tokens and cost over results.
func totals(results []StageResult) (tokens int, cost float64) {
	for _, r := range results {
		tokens += r.TokensIn + r.TokensOut
		cost += r.Cost
	}
	return tokens, cost
}
