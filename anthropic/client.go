package anthropic

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

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"
)

// client wraps the HTTP client for Anthropic Messages API calls.
type client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newClient(apiKey, baseURL string, httpClient *http.Client) *client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *client) post(ctx context.Context, req *messagesRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport("anthropic", err)
	}
	return httpResp, nil
}

// messages sends a non-streaming request.
func (c *client) messages(ctx context.Context, req *messagesRequest) (*messagesResponse, error) {
	httpResp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, provider.WrapTransport("anthropic", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.parseError(httpResp, respBody)
	}

	var resp messagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &resp, nil
}

// messagesStream sends a streaming request.
func (c *client) messagesStream(ctx context.Context, req *messagesRequest) (*streamReader, error) {
	streamReq := *req
	streamReq.Stream = true

	httpResp, err := c.post(ctx, &streamReq)
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

func (c *client) parseError(httpResp *http.Response, body []byte) error {
	retryAfter := provider.RetryAfterHeader(httpResp.Header)

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return provider.NewHTTPError("anthropic", httpResp.StatusCode,
			strings.TrimSpace(string(body)), retryAfter)
	}
	return provider.NewHTTPError("anthropic", httpResp.StatusCode,
		errResp.Error.Message, retryAfter)
}

// streamReader reads SSE events from a messages stream.
type streamReader struct {
	reader *bufio.Reader
	closer io.Closer
}

// ReadEvent reads the next event from the stream. Event name lines are
// skipped; each data line carries the typed payload.
func (s *streamReader) ReadEvent() (*streamEvent, error) {
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
		if data == "" {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return nil, fmt.Errorf("parsing event: %w", err)
		}
		return &event, nil
	}
}

// Close closes the stream.
func (s *streamReader) Close() error {
	return s.closer.Close()
}
