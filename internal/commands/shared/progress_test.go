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

package shared

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestProgressDisplay_StaticOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressDisplay(&buf, false, true)

	p.Start("balanced", "run-123")
	p.StageStarted("generator", "openai/gpt-4o", 0, 4)
	p.StageStarted("generator", "anthropic/claude-3.5-sonnet", 0, 4)
	p.StageCompleted("generator", "anthropic/claude-3.5-sonnet", 0.0123, true, 1500, 100, 50)
	p.StageStarted("refiner", "openai/gpt-4o", 1, 4)
	p.StageFailed("refiner", "rate limited")
	p.Finish("failed", 0.0123, 150)

	out := buf.String()
	for _, want := range []string{
		"run-123",
		"generator",
		"falling back to anthropic/claude-3.5-sonnet",
		"~$0.0123",
		"(1.5s)",
		"rate limited",
		"Consensus failed",
		"150 tokens",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	completed := p.CompletedStages()
	if len(completed) != 1 || completed[0].ModelID != "anthropic/claude-3.5-sonnet" {
		t.Errorf("completed = %+v", completed)
	}
}

func TestProgressDisplay_QuietFallback(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressDisplay(&buf, false, false)

	p.StageStarted("validator", "a/one", 2, 4)
	p.StageStarted("validator", "b/two", 2, 4)

	if strings.Contains(buf.String(), "falling back") {
		t.Error("fallback notes are only shown in verbose mode")
	}
}

func TestFormatCostValue(t *testing.T) {
	if got := formatCostValue(0.5, false); got != "$0.5000" {
		t.Errorf("formatCostValue() = %q", got)
	}
	if got := formatCostValue(0.5, true); got != "~$0.5000" {
		t.Errorf("formatCostValue(estimated) = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "0.5s"},
		{12400 * time.Millisecond, "12.4s"},
		{90 * time.Second, "1m 30s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
