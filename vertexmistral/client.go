package vertexmistral

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

// client wraps the HTTP client for Vertex AI rawPredict calls against
// Mistral publisher models.
type client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// newClient creates a client for one project and region. baseURL overrides
// the regional endpoint when set, which tests use.
func newClient(token, project, region, baseURL string, httpClient *http.Client) *client {
	if baseURL == "" {
		baseURL = fmt.Sprintf(
			"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/mistralai",
			region, project, region)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &client{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *client) post(ctx context.Context, model, verb string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:%s", c.baseURL, model, verb)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport("vertex-mistral", err)
	}
	return httpResp, nil
}

// rawPredict sends a non-streaming request and decodes the completion.
func (c *client) rawPredict(ctx context.Context, model string, payload any) (*chatResponse, error) {
	httpResp, err := c.post(ctx, model, "rawPredict", payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, provider.WrapTransport("vertex-mistral", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.parseError(httpResp, respBody)
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &resp, nil
}

// streamRawPredict sends a streaming request with SSE output.
func (c *client) streamRawPredict(ctx context.Context, model string, payload any) (*streamReader, error) {
	httpResp, err := c.post(ctx, model, "streamRawPredict", payload)
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
		return provider.NewHTTPError("vertex-mistral", httpResp.StatusCode,
			strings.TrimSpace(string(body)), retryAfter)
	}
	return provider.NewHTTPError("vertex-mistral", httpResp.StatusCode,
		errResp.Error.Message, retryAfter)
}

// streamReader reads SSE chunks from a streamRawPredict response.
type streamReader struct {
	reader *bufio.Reader
	closer io.Closer
}

// ReadChunk reads the next chunk from the stream. Returns io.EOF on the
// [DONE] marker or end of body.
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
