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
	"fmt"
	"time"
)

// TransportError represents a network failure, a connection timeout, or a
// gateway-side 5xx response.
type TransportError struct {
	// Provider is the upstream provider or gateway name
	Provider string

	// StatusCode is the HTTP status code, zero when no response arrived
	StatusCode int

	// Message is the human-readable error message
	Message string

	// RequestID correlates this error with gateway logs
	RequestID string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	msg := fmt.Sprintf("transport error from %s", e.Provider)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	} else if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request-id: %s)", msg, e.RequestID)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TransportError) Unwrap() error { return e.Cause }

// ErrorType implements ErrorClassifier.
func (e *TransportError) ErrorType() string { return KindTransport }

// IsRetryable implements ErrorClassifier.
func (e *TransportError) IsRetryable() bool { return true }

// AuthError represents rejected credentials (HTTP 401/403).
type AuthError struct {
	Provider   string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s [HTTP %d]: %s", e.Provider, e.StatusCode, e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *AuthError) ErrorType() string { return KindAuth }

// IsRetryable implements ErrorClassifier.
func (e *AuthError) IsRetryable() bool { return false }

// IsUserVisible implements UserVisibleError.
func (e *AuthError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *AuthError) UserMessage() string {
	return fmt.Sprintf("The %s gateway rejected the API key.", e.Provider)
}

// Suggestion implements UserVisibleError.
func (e *AuthError) Suggestion() string {
	return "Run 'hive auth login' or set HIVE_API_KEY with a valid key"
}

// RateLimitError represents a provider-signalled rate limit.
type RateLimitError struct {
	Provider string
	Message  string

	// RetryAfter is the provider's requested wait, zero when not given
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by %s (retry after %v): %s", e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("rate limited by %s: %s", e.Provider, e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *RateLimitError) ErrorType() string { return KindRateLimit }

// IsRetryable implements ErrorClassifier.
func (e *RateLimitError) IsRetryable() bool { return true }

// ModelUnavailableError indicates the model was removed, deprecated or is
// not served by any upstream provider. The same model is never retried.
type ModelUnavailableError struct {
	ModelID string
	Reason  string
}

// Error implements the error interface.
func (e *ModelUnavailableError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("model unavailable: %s", e.ModelID)
	}
	return fmt.Sprintf("model unavailable: %s: %s", e.ModelID, e.Reason)
}

// ErrorType implements ErrorClassifier.
func (e *ModelUnavailableError) ErrorType() string { return KindModelUnavailable }

// IsRetryable implements ErrorClassifier.
func (e *ModelUnavailableError) IsRetryable() bool { return false }

// BudgetExceededError is returned before a stage starts when the projected
// spend would cross a hard ceiling.
type BudgetExceededError struct {
	// Period is "daily", "monthly" or "profile"
	Period string
	Spent  float64
	Limit  float64
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s budget exceeded: spent $%.4f of $%.4f", e.Period, e.Spent, e.Limit)
}

// ErrorType implements ErrorClassifier.
func (e *BudgetExceededError) ErrorType() string { return KindBudgetExceeded }

// IsRetryable implements ErrorClassifier.
func (e *BudgetExceededError) IsRetryable() bool { return false }

// IsUserVisible implements UserVisibleError.
func (e *BudgetExceededError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *BudgetExceededError) UserMessage() string {
	return fmt.Sprintf("The %s spending limit of $%.2f has been reached.", e.Period, e.Limit)
}

// Suggestion implements UserVisibleError.
func (e *BudgetExceededError) Suggestion() string {
	return "Raise budget limits in config.yaml or wait for the next budget period"
}
