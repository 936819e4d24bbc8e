// Package openaicompat implements the provider client for backends that
// speak the OpenAI chat-completions wire protocol. It serves both the
// "openai" and "cerebras" logical providers; only base URL and default
// model differ.
package openaicompat

import (
	"context"
	"fmt"
	"io"

	"github.com/axelhq/axel/provider"
)

func init() {
	provider.RegisterFactory("openai", Factory("openai", "https://api.openai.com/v1", "gpt-4o"))
	provider.RegisterFactory("cerebras", Factory("cerebras", "https://api.cerebras.ai/v1", "llama3.1-8b"))
}

// Client implements provider.Client over the OpenAI-compatible protocol.
type Client struct {
	name   string
	model  string
	client *client
}

// Factory builds a provider.Factory for one logical provider sharing this
// wire protocol.
func Factory(name, defaultBaseURL, defaultModel string) provider.Factory {
	return func(cfg provider.Config) (provider.Client, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s: api key required", name)
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		model := cfg.Model
		if model == "" {
			model = defaultModel
		}
		return &Client{
			name:   name,
			model:  model,
			client: newClient(name, cfg.APIKey, baseURL, cfg.HTTPClient),
		}, nil
	}
}

// Name returns the logical provider identifier.
func (c *Client) Name() string {
	return c.name
}

// Chat implements provider.Client.
func (c *Client) Chat(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if err := req.Validate(c.name); err != nil {
		return nil, err
	}

	apiResp, err := c.client.chatCompletion(ctx, c.buildChatRequest(req))
	if err != nil {
		return nil, err
	}

	resp := &provider.Response{}
	if len(apiResp.Choices) > 0 {
		resp.Content = apiResp.Choices[0].Message.Content
		resp.FinishReason = convertFinishReason(apiResp.Choices[0].FinishReason)
	}
	if apiResp.Usage != nil {
		resp.Usage = convertUsage(*apiResp.Usage)
	}
	return resp, nil
}

// FIM implements provider.Client using the legacy completions endpoint's
// suffix parameter.
func (c *Client) FIM(ctx context.Context, req *provider.FIMRequest) (*provider.Response, error) {
	if err := req.Validate(c.name); err != nil {
		return nil, err
	}

	apiResp, err := c.client.completion(ctx, &completionRequest{
		Model:       c.model,
		Prompt:      req.Prompt,
		Suffix:      req.Suffix,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	resp := &provider.Response{}
	if len(apiResp.Choices) > 0 {
		resp.Content = apiResp.Choices[0].Text
		resp.FinishReason = convertFinishReason(apiResp.Choices[0].FinishReason)
	}
	if apiResp.Usage != nil {
		resp.Usage = convertUsage(*apiResp.Usage)
	}
	return resp, nil
}

// StreamChat implements provider.Client.
func (c *Client) StreamChat(ctx context.Context, req *provider.Request) (provider.ResponseStream, error) {
	if err := req.Validate(c.name); err != nil {
		return nil, err
	}

	stream, err := c.client.chatCompletionStream(ctx, c.buildChatRequest(req))
	if err != nil {
		return nil, err
	}

	return &chatStream{
		reader:      stream,
		accumulated: &provider.Response{},
	}, nil
}

func (c *Client) buildChatRequest(req *provider.Request) *chatCompletionRequest {
	apiReq := &chatCompletionRequest{
		Model:       c.model,
		Messages:    make([]message, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, msg := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return apiReq
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

	// The usage-bearing chunk arrives last, with an empty choices list.
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
