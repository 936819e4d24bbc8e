package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewHTTPError_Classification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantKind   Kind
	}{
		{name: "bad request", statusCode: 400, wantKind: KindInvalidRequest},
		{name: "unauthorized", statusCode: 401, wantKind: KindInvalidRequest},
		{name: "not found", statusCode: 404, wantKind: KindInvalidRequest},
		{name: "request timeout", statusCode: 408, wantKind: KindUpstreamTimeout},
		{name: "rate limited", statusCode: 429, wantKind: KindRateLimited},
		{name: "server error", statusCode: 500, wantKind: KindUpstream},
		{name: "bad gateway", statusCode: 502, wantKind: KindUpstream},
		{name: "gateway timeout", statusCode: 504, wantKind: KindUpstreamTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewHTTPError("cerebras", tt.statusCode, "boom", 0)
			assert.Equal(t, tt.wantKind, err.Kind)
			assert.Equal(t, tt.wantKind, KindOf(err))
		})
	}
}

func TestNewHTTPError_CarriesRetryAfter(t *testing.T) {
	err := NewHTTPError("openai", 429, "slow down", 30*time.Second)
	assert.Equal(t, KindRateLimited, err.Kind)
	assert.Equal(t, 30*time.Second, err.RetryAfter)
	assert.Contains(t, err.Error(), "openai")
	assert.Contains(t, err.Error(), "429")
}

func TestWrapTransport(t *testing.T) {
	t.Run("deadline exceeded maps to timeout", func(t *testing.T) {
		err := WrapTransport("gemini", context.DeadlineExceeded)
		assert.Equal(t, KindUpstreamTimeout, err.Kind)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("other transport errors map to upstream", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := WrapTransport("gemini", cause)
		assert.Equal(t, KindUpstream, err.Kind)
		assert.ErrorIs(t, err, cause)
	})
}

func TestKindOf_NonProviderError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestRetryAfterHeader(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "seconds", value: "12", want: 12 * time.Second},
		{name: "absent", value: "", want: 0},
		{name: "malformed", value: "soon", want: 0},
		{name: "negative", value: "-1", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			assert.Equal(t, tt.want, RetryAfterHeader(h))
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{Kind: KindUpstream, Provider: "test", Message: "failed", Cause: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))

	var pe *Error
	assert.True(t, errors.As(err, &pe))
}
