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
	"context"
	"encoding/json"
	"errors"
	"testing"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
)

type sampleEvent struct {
	Type  string `json:"type"`
	Stage string `json:"stage,omitempty"`
}

func TestEmitJSON(t *testing.T) {
	ResetFlagsForTest()
	defer ResetFlagsForTest()

	var buf bytes.Buffer
	if err := EmitJSON(context.Background(), &buf, map[string]int{"runs": 3}); err != nil {
		t.Fatalf("EmitJSON() error = %v", err)
	}

	var decoded map[string]int
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["runs"] != 3 {
		t.Errorf("runs = %d", decoded["runs"])
	}
}

func TestEmitJSON_WithJQ(t *testing.T) {
	ResetFlagsForTest()
	defer ResetFlagsForTest()
	*JQFlagPointer() = ".runs"

	if !GetJSON() {
		t.Error("--jq should imply JSON output")
	}

	var buf bytes.Buffer
	if err := EmitJSON(context.Background(), &buf, map[string]int{"runs": 3}); err != nil {
		t.Fatalf("EmitJSON() error = %v", err)
	}
	if buf.String() != "3\n" {
		t.Errorf("output = %q, want %q", buf.String(), "3\n")
	}
}

func TestEmitJSON_InvalidJQ(t *testing.T) {
	ResetFlagsForTest()
	defer ResetFlagsForTest()
	*JQFlagPointer() = ".["

	err := EmitJSON(context.Background(), &bytes.Buffer{}, 1)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != ExitConfigError {
		t.Fatalf("expected config exit error, got %v", err)
	}
}

func TestEventWriter(t *testing.T) {
	ResetFlagsForTest()
	defer ResetFlagsForTest()

	var buf bytes.Buffer
	ew, err := NewEventWriter(&buf)
	if err != nil {
		t.Fatalf("NewEventWriter() error = %v", err)
	}
	ctx := context.Background()
	ew.Write(ctx, sampleEvent{Type: "stage_started", Stage: "generator"})
	ew.Write(ctx, sampleEvent{Type: "complete"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var first sampleEvent
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if first.Stage != "generator" {
		t.Errorf("first = %+v", first)
	}
}

func TestEventWriter_FiltersEvents(t *testing.T) {
	ResetFlagsForTest()
	defer ResetFlagsForTest()
	*JQFlagPointer() = `select(.type == "complete") | .type`

	var buf bytes.Buffer
	ew, err := NewEventWriter(&buf)
	if err != nil {
		t.Fatalf("NewEventWriter() error = %v", err)
	}
	ctx := context.Background()
	ew.Write(ctx, sampleEvent{Type: "stage_started"})
	ew.Write(ctx, sampleEvent{Type: "complete"})

	if buf.String() != "\"complete\"\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNewJSONError(t *testing.T) {
	je := NewJSONError(&pkgerrors.AuthError{Provider: "openrouter", StatusCode: 401, Message: "bad key"})
	if je.Kind != pkgerrors.KindAuth {
		t.Errorf("Kind = %q", je.Kind)
	}
	if je.Suggestion == "" {
		t.Error("expected suggestion for auth errors")
	}

	plain := NewJSONError(errors.New("boom"))
	if plain.Kind != pkgerrors.KindInternal || plain.Suggestion != "" {
		t.Errorf("plain = %+v", plain)
	}
}
