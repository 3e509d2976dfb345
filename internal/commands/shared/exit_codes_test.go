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
	"fmt"
	"strings"
	"testing"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"config", &pkgerrors.ConfigError{Key: "gateway.api_key", Reason: "missing"}, ExitConfigError},
		{"auth", &pkgerrors.AuthError{Provider: "openrouter", StatusCode: 401}, ExitAuthError},
		{"rate limit", &pkgerrors.RateLimitError{Provider: "openai"}, ExitGatewayError},
		{"budget", &pkgerrors.BudgetExceededError{Period: "daily", Limit: 1, Spent: 1.2}, ExitBudgetExceeded},
		{"cancelled", fmt.Errorf("run stopped: %w", context.Canceled), ExitCancelled},
		{"unclassified", errors.New("boom"), ExitExecutionFailed},
		{"exit error keeps its code", NewConfigError("bad flag", errors.New("boom")), ExitConfigError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCodeFor(tt.err); got != tt.want {
				t.Errorf("ExitCodeFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReportError_Suggestion(t *testing.T) {
	var buf bytes.Buffer
	err := NewExecutionError("consensus failed", &pkgerrors.AuthError{Provider: "openrouter", StatusCode: 401, Message: "bad key"})

	code := reportError(&buf, err)
	if code != ExitAuthError {
		t.Errorf("code = %d, want %d", code, ExitAuthError)
	}
	out := buf.String()
	if !strings.Contains(out, "Error: consensus failed") {
		t.Errorf("missing error line: %q", out)
	}
	if !strings.Contains(out, "Suggestion: Run 'hive auth login'") {
		t.Errorf("missing suggestion: %q", out)
	}
}

func TestReportError_ExplicitCode(t *testing.T) {
	var buf bytes.Buffer
	code := reportError(&buf, NewConfigError("bad config", errors.New("yaml")))
	if code != ExitConfigError {
		t.Errorf("code = %d, want %d", code, ExitConfigError)
	}
}

func TestReportError_JSON(t *testing.T) {
	ResetFlagsForTest()
	defer ResetFlagsForTest()
	_, _, jsonOut, _ := RegisterFlagPointers()
	*jsonOut = true

	var buf bytes.Buffer
	code := reportError(&buf, NewConfigError("bad config", errors.New("yaml")))
	if code != ExitConfigError {
		t.Errorf("code = %d, want %d", code, ExitConfigError)
	}

	var decoded struct {
		Error    JSONError `json:"error"`
		ExitCode int       `json:"exit_code"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if decoded.ExitCode != ExitConfigError {
		t.Errorf("exit_code = %d", decoded.ExitCode)
	}
	if !strings.Contains(decoded.Error.Message, "bad config") {
		t.Errorf("message = %q", decoded.Error.Message)
	}
}
