package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/axelhq/axel/provider"
)

const defaultBackendURL = "http://localhost:8080"

// errTruncatedStream reports a stream that ended without its terminal
// marker while the local context was still live.
var errTruncatedStream = errors.New("stream ended before completion")

// backend is the thin HTTP client the chat and fim commands use to talk
// to a running gateway.
type backend struct {
	baseURL    string
	httpClient *http.Client
}

// resolveBackendURL picks the gateway address: explicit flag, then the
// AXEL_BACKEND_URL environment variable, then the local default.
func resolveBackendURL(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("AXEL_BACKEND_URL"); env != "" {
		return env
	}
	return defaultBackendURL
}

func newBackend(baseURL string) *backend {
	return &backend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
}

type chatPayload struct {
	Messages    []provider.Message `json:"messages"`
	Provider    string             `json:"provider,omitempty"`
	SessionID   string             `json:"session_id,omitempty"`
	Model       string             `json:"model,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	MaxTokens   *int               `json:"max_tokens,omitempty"`
}

type chatReply struct {
	Content   string          `json:"content"`
	SessionID string          `json:"session_id"`
	Usage     *provider.Usage `json:"usage,omitempty"`
}

type fimPayload struct {
	Prompt      string   `json:"prompt"`
	Suffix      string   `json:"suffix,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

type fimReply struct {
	Content string `json:"content"`
}

func (b *backend) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach gateway at %s: %w", b.baseURL, err)
	}
	return resp, nil
}

func (b *backend) chat(ctx context.Context, payload *chatPayload) (*chatReply, error) {
	resp, err := b.post(ctx, "/chat", payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, readGatewayError(resp)
	}

	var reply chatReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &reply, nil
}

func (b *backend) fim(ctx context.Context, payload *fimPayload) (*fimReply, error) {
	resp, err := b.post(ctx, "/fim", payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, readGatewayError(resp)
	}

	var reply fimReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &reply, nil
}

// chatStream posts to /chat/stream and invokes onDelta for each content
// chunk as it arrives. It returns the session id and usage once the
// stream terminates.
func (b *backend) chatStream(ctx context.Context, payload *chatPayload, onDelta func(string)) (string, *provider.Usage, error) {
	resp, err := b.post(ctx, "/chat/stream", payload)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", nil, readGatewayError(resp)
	}

	var sessionID string
	var usage *provider.Usage

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return sessionID, usage, nil
		}

		var event struct {
			Content   string          `json:"content"`
			SessionID string          `json:"session_id"`
			Usage     *provider.Usage `json:"usage"`
			Error     string          `json:"error"`
			Done      bool            `json:"done"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return sessionID, usage, fmt.Errorf("decode stream event: %w", err)
		}

		switch {
		case event.Error != "":
			return sessionID, usage, fmt.Errorf("gateway: %s", event.Error)
		case event.Usage != nil:
			usage = event.Usage
		default:
			if event.SessionID != "" {
				sessionID = event.SessionID
			}
			if event.Content != "" {
				onDelta(event.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return sessionID, usage, fmt.Errorf("read stream: %w", err)
	}

	// No [DONE] marker. Either this side cancelled, or the gateway went
	// away mid-stream; the latter must not read as success.
	if err := ctx.Err(); err != nil {
		return sessionID, usage, err
	}
	return sessionID, usage, errTruncatedStream
}

func readGatewayError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("gateway returned %s: %s", resp.Status, payload.Error)
	}
	return fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
}
