package gemini

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
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	apiVersion     = "v1beta"
)

// client wraps the HTTP client for Gemini API calls.
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

func (c *client) post(ctx context.Context, url string, req *generateContentRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport("gemini", err)
	}
	return httpResp, nil
}

// generateContent sends a non-streaming request.
func (c *client) generateContent(ctx context.Context, model string, req *generateContentRequest) (*generateContentResponse, error) {
	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, apiVersion, model)
	httpResp, err := c.post(ctx, url, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, provider.WrapTransport("gemini", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.parseError(httpResp, respBody)
	}

	var resp generateContentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &resp, nil
}

// streamGenerateContent sends a streaming request with SSE output.
func (c *client) streamGenerateContent(ctx context.Context, model string, req *generateContentRequest) (*streamReader, error) {
	url := fmt.Sprintf("%s/%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, apiVersion, model)
	httpResp, err := c.post(ctx, url, req)
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
		return provider.NewHTTPError("gemini", httpResp.StatusCode,
			strings.TrimSpace(string(body)), retryAfter)
	}
	return provider.NewHTTPError("gemini", httpResp.StatusCode,
		errResp.Error.Message, retryAfter)
}

// streamReader reads SSE chunks from a Gemini stream.
type streamReader struct {
	reader *bufio.Reader
	closer io.Closer
}

// ReadChunk reads the next chunk from the stream.
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
		if data == "" {
			continue
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
