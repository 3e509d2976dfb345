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


package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds reported on pipeline Error events.
const (
	KindTransport        = "transport"
	KindAuth             = "auth"
	KindRateLimit        = "rate_limit"
	KindModelUnavailable = "model_unavailable"
	KindBudgetExceeded   = "budget_exceeded"
	KindValidation       = "validation"
	KindTimeout          = "timeout"
	KindCancelled        = "cancelled"
	KindHook             = "hook"
	KindExhausted        = "exhausted"
	KindInternal         = "internal"
)

// ExhaustedError is returned when every ranked model for a stage failed.
type ExhaustedError struct {
	Stage    string
	Attempts int

	// Last is the error from the final attempt
	Last error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all models failed for %s stage after %d attempts: %v", e.Stage, e.Attempts, e.Last)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error { return e.Last }

// ErrorType implements ErrorClassifier.
func (e *ExhaustedError) ErrorType() string { return KindExhausted }

// IsRetryable implements ErrorClassifier.
func (e *ExhaustedError) IsRetryable() bool { return false }

// HookError wraps a failure returned by a stage hook.
type HookError struct {
	Hook  string
	Cause error
}

// Error implements the error interface.
func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook failed: %v", e.Hook, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *HookError) Unwrap() error { return e.Cause }

// ErrorType implements ErrorClassifier.
func (e *HookError) ErrorType() string { return KindHook }

// IsRetryable implements ErrorClassifier.
func (e *HookError) IsRetryable() bool { return false }

// KindOf returns the taxonomy kind of err. The outermost classifier wins,
// so an ExhaustedError reports "exhausted" rather than its last cause.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorType()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindInternal
}

// IsRetryable reports whether err may be retried against the same model.
// Unclassified errors are not retried.
func IsRetryable(err error) bool {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.IsRetryable()
	}
	return false
}
