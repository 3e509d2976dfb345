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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitExecutionFailed = 1
	ExitConfigError     = 2
	ExitAuthError       = 3
	ExitGatewayError    = 4
	ExitBudgetExceeded  = 5
	ExitCancelled       = 130 // 128 + SIGINT
)

// ExitError carries a process exit code along with the failure
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExecutionError wraps a failed consensus run
func NewExecutionError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitCodeFor(cause),
		Message: msg,
		Cause:   cause,
	}
}

// NewConfigError wraps a configuration failure
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitConfigError,
		Message: msg,
		Cause:   cause,
	}
}

// ExitCodeFor maps an error to an exit code by its taxonomy kind
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var cfgErr *pkgerrors.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfigError
	}
	switch pkgerrors.KindOf(err) {
	case pkgerrors.KindAuth:
		return ExitAuthError
	case pkgerrors.KindTransport, pkgerrors.KindRateLimit, pkgerrors.KindModelUnavailable, pkgerrors.KindExhausted, pkgerrors.KindTimeout:
		return ExitGatewayError
	case pkgerrors.KindBudgetExceeded:
		return ExitBudgetExceeded
	case pkgerrors.KindCancelled:
		return ExitCancelled
	default:
		return ExitExecutionFailed
	}
}

// HandleExitError prints err with any suggestion and exits with its code
func HandleExitError(err error) {
	if err == nil {
		return
	}
	os.Exit(reportError(os.Stderr, err))
}

// reportError writes err to w and returns the exit code to use
func reportError(w io.Writer, err error) int {
	code := ExitCodeFor(err)
	if GetJSON() {
		enc := json.NewEncoder(w)
		if encErr := enc.Encode(map[string]interface{}{"error": NewJSONError(err), "exit_code": code}); encErr == nil {
			return code
		}
	}
	fmt.Fprintln(w, "Error:", err.Error())
	printUserVisibleSuggestion(w, err)
	return code
}

func printUserVisibleSuggestion(w io.Writer, err error) {
	// Walk the error chain to find a UserVisibleError
	for err != nil {
		if userErr, ok := err.(pkgerrors.UserVisibleError); ok {
			if userErr.IsUserVisible() {
				if suggestion := userErr.Suggestion(); suggestion != "" {
					fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
				}
			}
			return
		}
		err = errors.Unwrap(err)
	}
}
