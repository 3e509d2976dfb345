package consensus

import (
	"time"
)

// EventType identifies a pipeline event.
type EventType string

const (
	// EventStageStarted is emitted when a stage begins calling a model,
	// once per model. Retries on the same model emit nothing new; a
	// fallback to another model emits a second StageStarted.
	EventStageStarted EventType = "stage_started"

	// EventStageProgress reports estimated completion of a streaming stage.
	EventStageProgress EventType = "stage_progress"

	// EventTokenReceived carries a streamed text delta.
	EventTokenReceived EventType = "token_received"

	// EventStageCompleted is emitted once per successful stage.
	EventStageCompleted EventType = "stage_completed"

	// EventError is terminal: the run failed or was cancelled.
	EventError EventType = "error"

	// EventComplete is terminal: all four stages succeeded.
	EventComplete EventType = "complete"
)

// PipelineEvent is one element of a run's event stream. Fields not
// relevant to Type are left zero and omitted from JSON.
type PipelineEvent struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`

	Stage   Stage  `json:"stage,omitempty"`
	ModelID string `json:"model_id,omitempty"`

	// StageProgress
	Percent float64 `json:"percent,omitempty"`

	// TokenReceived
	Text string `json:"text,omitempty"`

	// StageCompleted
	TokensIn   int     `json:"tokens_in,omitempty"`
	TokensOut  int     `json:"tokens_out,omitempty"`
	Cost       float64 `json:"cost,omitempty"`
	DurationMS int64   `json:"duration_ms,omitempty"`

	// Error
	Kind    string        `json:"kind,omitempty"`
	Message string        `json:"message,omitempty"`
	Results []StageResult `json:"results,omitempty"`
	Err     error         `json:"-"`

	// Complete
	FinalText   string  `json:"final_text,omitempty"`
	TotalTokens int     `json:"total_tokens,omitempty"`
	TotalCost   float64 `json:"total_cost,omitempty"`
	StagesUsed  int     `json:"stages_used,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// IsTerminal reports whether e ends the stream.
func (e PipelineEvent) IsTerminal() bool {
	return e.Type == EventError || e.Type == EventComplete
}
