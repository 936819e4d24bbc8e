package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axelhq/axel/provider"
	"github.com/axelhq/axel/router"
	"github.com/axelhq/axel/session"
)

type stubClient struct {
	chatResp   *provider.Response
	chatErr    error
	fimResp    *provider.Response
	streamErr  error
	chunks     []provider.StreamChunk
	streamTail *provider.Response
}

func (s *stubClient) Name() string { return "stub" }

func (s *stubClient) Chat(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if s.chatErr != nil {
		return nil, s.chatErr
	}
	return s.chatResp, nil
}

func (s *stubClient) FIM(ctx context.Context, req *provider.FIMRequest) (*provider.Response, error) {
	return s.fimResp, nil
}

func (s *stubClient) StreamChat(ctx context.Context, req *provider.Request) (provider.ResponseStream, error) {
	if s.streamErr != nil {
		return nil, s.streamErr
	}
	return &scriptedStream{chunks: s.chunks, tail: s.streamTail}, nil
}

type scriptedStream struct {
	chunks []provider.StreamChunk
	tail   *provider.Response
	pos    int
}

func (s *scriptedStream) Next() bool {
	if s.pos >= len(s.chunks) {
		return false
	}
	s.pos++
	return true
}

func (s *scriptedStream) Current() *provider.StreamChunk { return &s.chunks[s.pos-1] }
func (s *scriptedStream) Err() error                     { return nil }
func (s *scriptedStream) Close() error                   { return nil }

func (s *scriptedStream) Accumulated() *provider.Response {
	if s.tail != nil {
		return s.tail
	}
	return &provider.Response{}
}

func newTestServer(t *testing.T, client *stubClient) *httptest.Server {
	t.Helper()

	reg := provider.NewRegistry()
	reg.Register("stub", func(cfg provider.Config) (provider.Client, error) {
		return client, nil
	})

	rt := router.New(reg, session.NewMemoryStore(), router.Defaults{Provider: "stub"}, zerolog.Nop())
	srv, err := New(0, rt, zerolog.Nop())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &stubClient{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChat(t *testing.T) {
	ts := newTestServer(t, &stubClient{
		chatResp: &provider.Response{
			Content: "use a map",
			Usage:   provider.Usage{PromptTokens: 8, CompletionTokens: 3, TotalTokens: 11},
		},
	})

	resp := postJSON(t, ts.URL+"/chat",
		`{"messages":[{"role":"user","content":"how do I dedupe a slice?"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body chatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "use a map", body.Content)
	assert.NotEmpty(t, body.SessionID)
	require.NotNil(t, body.Usage)
	assert.Equal(t, 11, body.Usage.TotalTokens)
}

func TestChat_SessionContinuity(t *testing.T) {
	ts := newTestServer(t, &stubClient{
		chatResp: &provider.Response{Content: "hello"},
	})

	resp := postJSON(t, ts.URL+"/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var first chatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&first))

	resp = postJSON(t, ts.URL+"/chat", fmt.Sprintf(
		`{"messages":[{"role":"user","content":"again"}],"session_id":%q}`, first.SessionID))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var second chatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&second))
	assert.Equal(t, first.SessionID, second.SessionID)

	// Both turns are visible through the session endpoint.
	getResp, err := http.Get(ts.URL + "/chat/sessions/" + first.SessionID)
	require.NoError(t, err)
	defer func() { _ = getResp.Body.Close() }()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var sess session.Session
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&sess))
	assert.Len(t, sess.Messages, 4)
}

func TestChat_InvalidJSON(t *testing.T) {
	ts := newTestServer(t, &stubClient{})

	resp := postJSON(t, ts.URL+"/chat", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChat_UnknownProvider(t *testing.T) {
	ts := newTestServer(t, &stubClient{})

	resp := postJSON(t, ts.URL+"/chat",
		`{"messages":[{"role":"user","content":"hi"}],"provider":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "nope")
}

func TestChat_RateLimitedMapsTo429(t *testing.T) {
	ts := newTestServer(t, &stubClient{
		chatErr: &provider.Error{
			Kind:       provider.KindRateLimited,
			Provider:   "stub",
			Message:    "slow down",
			RetryAfter: 9 * time.Second,
		},
	})

	resp := postJSON(t, ts.URL+"/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "9", resp.Header.Get("Retry-After"))
}

func TestChat_TimeoutMapsTo504(t *testing.T) {
	ts := newTestServer(t, &stubClient{
		chatErr: &provider.Error{Kind: provider.KindUpstreamTimeout, Provider: "stub", Message: "deadline"},
	})

	resp := postJSON(t, ts.URL+"/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestChat_UpstreamMapsTo502(t *testing.T) {
	ts := newTestServer(t, &stubClient{
		chatErr: &provider.Error{Kind: provider.KindUpstream, Provider: "stub", Message: "boom"},
	})

	resp := postJSON(t, ts.URL+"/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestFIM(t *testing.T) {
	ts := newTestServer(t, &stubClient{
		fimResp: &provider.Response{Content: "result = a + b"},
	})

	resp := postJSON(t, ts.URL+"/fim", `{"prompt":"def add(a, b):\n    ","suffix":"\n    return result"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body fimResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "result = a + b", body.Content)
}

func TestChatStream(t *testing.T) {
	ts := newTestServer(t, &stubClient{
		chunks: []provider.StreamChunk{
			{Delta: "func "},
			{Delta: "add"},
			{FinishReason: provider.FinishReasonStop},
		},
		streamTail: &provider.Response{
			Content: "func add",
			Usage:   provider.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
		},
	})

	resp := postJSON(t, ts.URL+"/chat/stream", `{"messages":[{"role":"user","content":"write add"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	var deltas []string
	var sessionID string
	sawUsage := false
	sawDone := false

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			sawDone = true
			break
		}

		var payload struct {
			Content   string          `json:"content"`
			SessionID string          `json:"session_id"`
			Usage     *provider.Usage `json:"usage"`
		}
		require.NoError(t, json.Unmarshal([]byte(data), &payload))

		if payload.Usage != nil {
			assert.False(t, sawDone, "usage must precede the done marker")
			assert.Equal(t, 7, payload.Usage.TotalTokens)
			sawUsage = true
			continue
		}
		deltas = append(deltas, payload.Content)
		sessionID = payload.SessionID
	}

	assert.Equal(t, []string{"func ", "add"}, deltas)
	assert.NotEmpty(t, sessionID)
	assert.True(t, sawUsage)
	assert.True(t, sawDone)
}

func TestChatStream_ResolutionErrorIsHTTPStatus(t *testing.T) {
	ts := newTestServer(t, &stubClient{
		streamErr: &provider.Error{Kind: provider.KindRateLimited, Provider: "stub", Message: "slow down"},
	})

	resp := postJSON(t, ts.URL+"/chat/stream", `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestListSessions(t *testing.T) {
	ts := newTestServer(t, &stubClient{
		chatResp: &provider.Response{Content: "hello"},
	})

	// Empty store lists as an empty array, not null.
	resp, err := http.Get(ts.URL + "/chat/sessions")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Sessions []session.Summary `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Empty(t, body.Sessions)

	postJSON(t, ts.URL+"/chat", `{"messages":[{"role":"user","content":"first question"}]}`)

	resp2, err := http.Get(ts.URL + "/chat/sessions")
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()

	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&body))
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, "first question", body.Sessions[0].Preview)
}

func TestGetSession_NotFound(t *testing.T) {
	ts := newTestServer(t, &stubClient{})

	resp, err := http.Get(ts.URL + "/chat/sessions/no-such-id")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestErrorHandler_Plain(t *testing.T) {
	err := toHTTPError(errors.New("weird failure"))
	var reqErr requestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadGateway, reqErr.Status)
}
