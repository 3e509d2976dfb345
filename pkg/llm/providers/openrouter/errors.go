package openrouter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/httpclient"
)

// statusError maps a non-2xx gateway response onto the error taxonomy.
func statusError(model string, status int, header http.Header, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		msg = env.Error.Message
	}
	if len(msg) > 512 {
		msg = msg[:512]
	}
	requestID := header.Get("X-Request-Id")

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &pkgerrors.AuthError{Provider: providerName, StatusCode: status, Message: msg}
	case status == http.StatusPaymentRequired:
		return &pkgerrors.AuthError{Provider: providerName, StatusCode: status, Message: "insufficient credits: " + msg}
	case status == http.StatusTooManyRequests:
		return &pkgerrors.RateLimitError{
			Provider:   providerName,
			Message:    msg,
			RetryAfter: retryAfter(header),
		}
	case status == http.StatusNotFound, status == http.StatusGone, isUnknownModel(msg):
		return &pkgerrors.ModelUnavailableError{ModelID: model, Reason: msg}
	case status == http.StatusRequestTimeout || status >= 500:
		return &pkgerrors.TransportError{Provider: providerName, StatusCode: status, Message: msg, RequestID: requestID}
	default:
		return &pkgerrors.ValidationError{
			Field:   "request",
			Message: fmt.Sprintf("gateway rejected request [HTTP %d]: %s", status, msg),
		}
	}
}

// payloadError maps an error object embedded in a 200 response or stream.
func payloadError(model string, e *apiError) error {
	code := 0
	switch v := e.Code.(type) {
	case float64:
		code = int(v)
	case string:
		code, _ = strconv.Atoi(v)
	}
	if code == 0 {
		if strings.Contains(strings.ToLower(e.Message), "rate limit") {
			code = http.StatusTooManyRequests
		} else {
			code = http.StatusBadGateway
		}
	}
	return statusError(model, code, http.Header{}, []byte(fmt.Sprintf(`{"error":{"message":%q}}`, e.Message)))
}

func isUnknownModel(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "not a valid model") ||
		strings.Contains(lower, "no endpoints found") ||
		strings.Contains(lower, "model not found")
}

// retryAfter reads Retry-After, falling back to the X-RateLimit-Reset epoch
// milliseconds header that OpenRouter sends.
func retryAfter(header http.Header) time.Duration {
	if d := httpclient.ParseRetryAfter(header.Get("Retry-After"), time.Now()); d > 0 {
		return d
	}
	if reset := header.Get("X-RateLimit-Reset"); reset != "" {
		if ms, err := strconv.ParseInt(reset, 10, 64); err == nil {
			if d := time.Until(time.UnixMilli(ms)); d > 0 {
				return d
			}
		}
	}
	return 0
}
