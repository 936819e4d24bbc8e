// Package vertexmistral implements the provider client for Mistral
// publisher models served through Vertex AI rawPredict.
package vertexmistral

import (
	"context"
	"fmt"
	"io"

	"github.com/axelhq/axel/provider"
)

const (
	defaultModelName = "codestral"
	defaultVersion   = "2501"
)

func init() {
	provider.RegisterFactory("vertex-mistral", Factory)
}

// Client implements provider.Client for Vertex-hosted Mistral models.
type Client struct {
	model  string
	client *client
}

// Factory builds the vertex-mistral client from configuration. The model
// identity sent upstream is "{name}-{version}".
func Factory(cfg provider.Config) (provider.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vertex-mistral: access token required")
	}
	if cfg.Project == "" || cfg.Region == "" {
		return nil, fmt.Errorf("vertex-mistral: project and region required")
	}

	name := cfg.Model
	if name == "" {
		name = defaultModelName
	}
	version := cfg.Version
	if version == "" {
		version = defaultVersion
	}

	return &Client{
		model:  name + "-" + version,
		client: newClient(cfg.APIKey, cfg.Project, cfg.Region, cfg.BaseURL, cfg.HTTPClient),
	}, nil
}

// Name returns the logical provider identifier.
func (c *Client) Name() string {
	return "vertex-mistral"
}

// Chat implements provider.Client.
func (c *Client) Chat(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if err := req.Validate("vertex-mistral"); err != nil {
		return nil, err
	}

	apiResp, err := c.client.rawPredict(ctx, c.model, c.buildChatRequest(req, false))
	if err != nil {
		return nil, err
	}
	return convertResponse(apiResp), nil
}

// FIM implements provider.Client using Mistral's native fill-in-the-middle
// payload.
func (c *Client) FIM(ctx context.Context, req *provider.FIMRequest) (*provider.Response, error) {
	if err := req.Validate("vertex-mistral"); err != nil {
		return nil, err
	}

	apiResp, err := c.client.rawPredict(ctx, c.model, &fimRequest{
		Model:       c.model,
		Prompt:      req.Prompt,
		Suffix:      req.Suffix,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return convertResponse(apiResp), nil
}

// StreamChat implements provider.Client.
func (c *Client) StreamChat(ctx context.Context, req *provider.Request) (provider.ResponseStream, error) {
	if err := req.Validate("vertex-mistral"); err != nil {
		return nil, err
	}

	stream, err := c.client.streamRawPredict(ctx, c.model, c.buildChatRequest(req, true))
	if err != nil {
		return nil, err
	}

	return &chatStream{
		reader:      stream,
		accumulated: &provider.Response{},
	}, nil
}

func (c *Client) buildChatRequest(req *provider.Request, stream bool) *chatRequest {
	apiReq := &chatRequest{
		Model:       c.model,
		Messages:    make([]message, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	for _, msg := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return apiReq
}

func convertResponse(apiResp *chatResponse) *provider.Response {
	resp := &provider.Response{}
	if len(apiResp.Choices) > 0 {
		resp.Content = apiResp.Choices[0].Message.Content
		resp.FinishReason = convertFinishReason(apiResp.Choices[0].FinishReason)
	}
	if apiResp.Usage != nil {
		resp.Usage = convertUsage(*apiResp.Usage)
	}
	return resp
}

func convertUsage(u usage) provider.Usage {
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	return provider.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      total,
	}
}

func convertFinishReason(reason string) provider.FinishReason {
	if reason == "length" {
		return provider.FinishReasonLength
	}
	return provider.FinishReasonStop
}

// chatStream implements provider.ResponseStream over the SSE reader.
type chatStream struct {
	reader      *streamReader
	accumulated *provider.Response
	current     *provider.StreamChunk
	err         error
	done        bool
}

func (s *chatStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	chunk, err := s.reader.ReadChunk()
	if err != nil {
		if err == io.EOF {
			s.done = true
			return false
		}
		s.err = err
		return false
	}

	s.current = &provider.StreamChunk{}

	if chunk.Usage != nil {
		s.accumulated.Usage = convertUsage(*chunk.Usage)
	}

	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			s.current.Delta = choice.Delta.Content
			s.accumulated.Content += choice.Delta.Content
		}
		if choice.FinishReason != nil {
			s.current.FinishReason = convertFinishReason(*choice.FinishReason)
			s.accumulated.FinishReason = s.current.FinishReason
		}
	}

	return true
}

func (s *chatStream) Current() *provider.StreamChunk { return s.current }
func (s *chatStream) Err() error                     { return s.err }
func (s *chatStream) Close() error                   { return s.reader.Close() }

func (s *chatStream) Accumulated() *provider.Response { return s.accumulated }
