package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axelhq/axel/provider"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := Factory(provider.Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)
	return c.(*Client)
}

func TestFactory_RequiresAPIKey(t *testing.T) {
	_, err := Factory(provider.Config{})
	assert.Error(t, err)
}

func TestChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, defaultModel, req.Model)
		assert.Equal(t, "you are a coding assistant", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(messagesResponse{
			Content:    []contentBlock{{Type: "text", Text: "use strings.Builder"}},
			StopReason: "end_turn",
			Usage:      usageInfo{InputTokens: 9, OutputTokens: 4},
		})
	})

	resp, err := c.Chat(context.Background(), &provider.Request{
		Messages: []provider.Message{
			provider.SystemMessage("you are a coding assistant"),
			provider.UserMessage("how do I concatenate strings efficiently?"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "use strings.Builder", resp.Content)
	assert.Equal(t, provider.FinishReasonStop, resp.FinishReason)
	assert.Equal(t, 13, resp.Usage.TotalTokens)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
}

func TestChat_MaxTokensStop(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(messagesResponse{
			Content:    []contentBlock{{Type: "text", Text: "truncated"}},
			StopReason: "max_tokens",
		})
	})

	resp, err := c.Chat(context.Background(), &provider.Request{
		Messages: []provider.Message{provider.UserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, provider.FinishReasonLength, resp.FinishReason)
}

func TestChat_ValidatesBeforeNetwork(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := c.Chat(context.Background(), &provider.Request{})
	assert.Equal(t, provider.KindInvalidRequest, provider.KindOf(err))
	assert.False(t, called)
}

func TestChat_RateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"rate limit exceeded"}}`)
	})

	_, err := c.Chat(context.Background(), &provider.Request{
		Messages: []provider.Message{provider.UserMessage("hi")},
	})
	require.Error(t, err)

	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, provider.KindRateLimited, pe.Kind)
	assert.Equal(t, 30*time.Second, pe.RetryAfter)
}

func TestChat_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Chat(ctx, &provider.Request{
		Messages: []provider.Message{provider.UserMessage("hi")},
	})
	assert.Equal(t, provider.KindUpstreamTimeout, provider.KindOf(err))
}

func TestFIM_SynthesizesChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.System)
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "def add(a, b):")
		assert.Contains(t, req.Messages[0].Content, "return result")

		_ = json.NewEncoder(w).Encode(messagesResponse{
			Content:    []contentBlock{{Type: "text", Text: "result = a + b"}},
			StopReason: "end_turn",
		})
	})

	resp, err := c.FIM(context.Background(), &provider.FIMRequest{
		Prompt: "def add(a, b):\n    ",
		Suffix: "\n    return result",
	})
	require.NoError(t, err)
	assert.Equal(t, "result = a + b", resp.Content)
}

func TestStreamChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\n")
		fmt.Fprint(w, `data: {"type":"message_start","message":{"usage":{"input_tokens":11,"output_tokens":1}}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"content_block_start","index":0}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"func "}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"add"}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"content_block_stop","index":0}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":6}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"message_stop"}`+"\n\n")
	})

	rs, err := c.StreamChat(context.Background(), &provider.Request{
		Messages: []provider.Message{provider.UserMessage("write add")},
	})
	require.NoError(t, err)
	defer func() { _ = rs.Close() }()

	var deltas []string
	for rs.Next() {
		if rs.Current().Delta != "" {
			deltas = append(deltas, rs.Current().Delta)
		}
	}
	require.NoError(t, rs.Err())

	assert.Equal(t, []string{"func ", "add"}, deltas)

	acc := rs.Accumulated()
	assert.Equal(t, "func add", acc.Content)
	assert.Equal(t, provider.FinishReasonStop, acc.FinishReason)
	assert.Equal(t, 11, acc.Usage.PromptTokens)
	assert.Equal(t, 6, acc.Usage.CompletionTokens)
	assert.Equal(t, 17, acc.Usage.TotalTokens)
}

func TestStreamChat_ErrorStatusBeforeStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens required"}}`)
	})

	_, err := c.StreamChat(context.Background(), &provider.Request{
		Messages: []provider.Message{provider.UserMessage("hi")},
	})
	assert.Equal(t, provider.KindInvalidRequest, provider.KindOf(err))
}
