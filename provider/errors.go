package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrUnknownProvider is returned by the registry when no factory is
// registered for the requested logical provider name.
var ErrUnknownProvider = errors.New("unknown provider")

// Kind classifies provider errors so callers can choose a retry policy.
// The gateway itself never retries.
type Kind string

const (
	// KindInvalidRequest marks caller errors; never retried.
	KindInvalidRequest Kind = "invalid_request"

	// KindRateLimited marks upstream throttling; RetryAfter carries the
	// provider's hint when one was supplied.
	KindRateLimited Kind = "rate_limited"

	// KindUpstreamTimeout marks a request that exceeded its deadline.
	KindUpstreamTimeout Kind = "upstream_timeout"

	// KindUpstream marks any other transient upstream failure.
	KindUpstream Kind = "upstream_error"
)

// Error represents a classified failure from a provider client.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Provider, e.Message, e.Kind, e.Cause)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (%s, status %d)", e.Provider, e.Message, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf extracts the error classification, or "" for non-provider errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func invalidRequest(providerName, format string, args ...any) error {
	return &Error{
		Kind:     KindInvalidRequest,
		Provider: providerName,
		Message:  fmt.Sprintf(format, args...),
	}
}

// NewHTTPError classifies a non-2xx upstream status into the taxonomy.
// retryAfter is the parsed Retry-After header value, zero when absent.
func NewHTTPError(providerName string, statusCode int, message string, retryAfter time.Duration) *Error {
	e := &Error{
		Provider:   providerName,
		StatusCode: statusCode,
		Message:    message,
		RetryAfter: retryAfter,
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		e.Kind = KindUpstreamTimeout
	case statusCode >= 400 && statusCode < 500:
		e.Kind = KindInvalidRequest
	default:
		e.Kind = KindUpstream
	}
	return e
}

// WrapTransport classifies a transport-level failure (connection refused,
// deadline exceeded, ...) from a provider call.
func WrapTransport(providerName string, err error) *Error {
	kind := KindUpstream
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindUpstreamTimeout
	}
	return &Error{
		Kind:     kind,
		Provider: providerName,
		Message:  "request failed",
		Cause:    err,
	}
}

// RetryAfterHeader parses a Retry-After header in seconds form.
// Returns zero for absent or malformed values.
func RetryAfterHeader(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
