package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/axelhq/axel/provider"
)

// client wraps the HTTP client for OpenAI-compatible API calls.
type client struct {
	providerName string
	apiKey       string
	baseURL      string
	httpClient   *http.Client
}

func newClient(providerName, apiKey, baseURL string, httpClient *http.Client) *client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &client{
		providerName: providerName,
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   httpClient,
	}
}

func (c *client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport(c.providerName, err)
	}
	return httpResp, nil
}

// chatCompletion sends a non-streaming chat completion request.
func (c *client) chatCompletion(ctx context.Context, req *chatCompletionRequest) (*chatCompletionResponse, error) {
	httpResp, err := c.post(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, provider.WrapTransport(c.providerName, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.parseError(httpResp, respBody)
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &resp, nil
}

// completion sends a legacy completion request (used for FIM).
func (c *client) completion(ctx context.Context, req *completionRequest) (*completionResponse, error) {
	httpResp, err := c.post(ctx, "/completions", req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, provider.WrapTransport(c.providerName, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.parseError(httpResp, respBody)
	}

	var resp completionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &resp, nil
}

// chatCompletionStream sends a streaming chat completion request.
func (c *client) chatCompletionStream(ctx context.Context, req *chatCompletionRequest) (*streamReader, error) {
	streamReq := *req
	streamReq.Stream = true
	streamReq.StreamOptions = &streamOptions{IncludeUsage: true}

	httpResp, err := c.post(ctx, "/chat/completions", &streamReq)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		defer func() { _ = httpResp.Body.Close() }()
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, c.parseError(httpResp, respBody)
	}

	return &streamReader{
		reader: bufio.NewReader(httpResp.Body),
		closer: httpResp.Body,
	}, nil
}

// parseError classifies a non-2xx response into the provider taxonomy.
func (c *client) parseError(httpResp *http.Response, body []byte) error {
	retryAfter := provider.RetryAfterHeader(httpResp.Header)

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return provider.NewHTTPError(c.providerName, httpResp.StatusCode,
			strings.TrimSpace(string(body)), retryAfter)
	}
	return provider.NewHTTPError(c.providerName, httpResp.StatusCode,
		errResp.Error.Message, retryAfter)
}

// streamReader reads SSE events from an OpenAI-style stream.
type streamReader struct {
	reader *bufio.Reader
	closer io.Closer
}

// ReadChunk reads the next chunk from the stream.
// Returns nil, io.EOF when the stream is done.
func (s *streamReader) ReadChunk() (*streamChunk, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil, io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, fmt.Errorf("parsing chunk: %w", err)
		}
		return &chunk, nil
	}
}

// Close closes the stream.
func (s *streamReader) Close() error {
	return s.closer.Close()
}
