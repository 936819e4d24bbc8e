package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return newBackend(srv.URL)
}

func TestChatStream_CollectsDeltasAndUsage(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/stream", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"content":"func ","session_id":"sess-1"}`+"\n\n")
		fmt.Fprint(w, `data: {"content":"add","session_id":"sess-1"}`+"\n\n")
		fmt.Fprint(w, `data: {"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var got string
	sessionID, usage, err := b.chatStream(context.Background(), &chatPayload{}, func(delta string) {
		got += delta
	})
	require.NoError(t, err)

	assert.Equal(t, "func add", got)
	assert.Equal(t, "sess-1", sessionID)
	require.NotNil(t, usage)
	assert.Equal(t, 7, usage.TotalTokens)
}

func TestChatStream_TruncatedStreamIsAnError(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"content":"half a","session_id":"sess-1"}`+"\n\n")
		// Connection drops with no [DONE] marker.
	})

	var got string
	_, _, err := b.chatStream(context.Background(), &chatPayload{}, func(delta string) {
		got += delta
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errTruncatedStream)
	assert.Equal(t, "half a", got)
}

func TestChatStream_GatewayErrorEvent(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"error":"upstream exploded","done":true}`+"\n\n")
	})

	_, _, err := b.chatStream(context.Background(), &chatPayload{}, func(string) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestChat_GatewayErrorStatus(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":"slow down"}`)
	})

	_, err := b.chat(context.Background(), &chatPayload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")
}
