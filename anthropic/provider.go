// Package anthropic implements the provider client for Anthropic's
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"io"

	"github.com/axelhq/axel/provider"
)

const (
	defaultModel     = "claude-3-5-sonnet-20241022"
	defaultMaxTokens = 4096
)

func init() {
	provider.RegisterFactory("anthropic", Factory)
}

// Client implements provider.Client for Anthropic.
type Client struct {
	model  string
	client *client
}

// Factory builds the anthropic client from configuration.
func Factory(cfg provider.Config) (provider.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Client{
		model:  model,
		client: newClient(cfg.APIKey, cfg.BaseURL, cfg.HTTPClient),
	}, nil
}

// Name returns the logical provider identifier.
func (c *Client) Name() string {
	return "anthropic"
}

// Chat implements provider.Client.
func (c *Client) Chat(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if err := req.Validate("anthropic"); err != nil {
		return nil, err
	}

	apiResp, err := c.client.messages(ctx, c.buildRequest(req.Messages, req.Temperature, req.MaxTokens))
	if err != nil {
		return nil, err
	}

	resp := &provider.Response{
		FinishReason: convertStopReason(apiResp.StopReason),
		Usage:        convertUsage(apiResp.Usage),
	}
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			resp.Content += block.Text
		}
	}
	return resp, nil
}

// FIM implements provider.Client. The Messages API has no native infill
// endpoint, so the prompt and suffix are rephrased as a chat request.
func (c *Client) FIM(ctx context.Context, req *provider.FIMRequest) (*provider.Response, error) {
	if err := req.Validate("anthropic"); err != nil {
		return nil, err
	}

	chatReq := &provider.Request{
		Messages:    provider.InfillMessages(req.Prompt, req.Suffix),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	return c.Chat(ctx, chatReq)
}

// StreamChat implements provider.Client.
func (c *Client) StreamChat(ctx context.Context, req *provider.Request) (provider.ResponseStream, error) {
	if err := req.Validate("anthropic"); err != nil {
		return nil, err
	}

	stream, err := c.client.messagesStream(ctx, c.buildRequest(req.Messages, req.Temperature, req.MaxTokens))
	if err != nil {
		return nil, err
	}

	return &messagesStream{
		reader:      stream,
		accumulated: &provider.Response{},
	}, nil
}

func (c *Client) buildRequest(msgs []provider.Message, temperature *float64, maxTokens *int) *messagesRequest {
	apiReq := &messagesRequest{
		Model:       c.model,
		MaxTokens:   defaultMaxTokens,
		Temperature: temperature,
	}
	if maxTokens != nil {
		apiReq.MaxTokens = *maxTokens
	}

	// System prompts travel in a dedicated field, not the message list.
	for _, msg := range msgs {
		if msg.Role == provider.RoleSystem {
			if apiReq.System != "" {
				apiReq.System += "\n\n"
			}
			apiReq.System += msg.Content
			continue
		}
		apiReq.Messages = append(apiReq.Messages, message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return apiReq
}

func convertUsage(u usageInfo) provider.Usage {
	return provider.Usage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.InputTokens + u.OutputTokens,
	}
}

func convertStopReason(reason string) provider.FinishReason {
	if reason == "max_tokens" {
		return provider.FinishReasonLength
	}
	return provider.FinishReasonStop
}

// messagesStream implements provider.ResponseStream over the SSE reader.
type messagesStream struct {
	reader       *streamReader
	accumulated  *provider.Response
	current      *provider.StreamChunk
	promptTokens int
	err          error
	done         bool
}

func (s *messagesStream) Next() bool {
	for {
		if s.done || s.err != nil {
			return false
		}

		event, err := s.reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				s.done = true
				return false
			}
			s.err = err
			return false
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				s.promptTokens = event.Message.Usage.InputTokens
			}

		case "content_block_delta":
			if event.Delta == nil || event.Delta.Text == "" {
				continue
			}
			s.current = &provider.StreamChunk{Delta: event.Delta.Text}
			s.accumulated.Content += event.Delta.Text
			return true

		case "message_delta":
			// Carries the stop reason and output-side token count.
			if event.Delta != nil && event.Delta.StopReason != "" {
				s.accumulated.FinishReason = convertStopReason(event.Delta.StopReason)
			}
			if event.Usage != nil {
				s.accumulated.Usage = provider.Usage{
					PromptTokens:     s.promptTokens,
					CompletionTokens: event.Usage.OutputTokens,
					TotalTokens:      s.promptTokens + event.Usage.OutputTokens,
				}
			}
			s.current = &provider.StreamChunk{FinishReason: s.accumulated.FinishReason}
			return true

		case "message_stop":
			s.done = true
			return false
		}
	}
}

func (s *messagesStream) Current() *provider.StreamChunk { return s.current }
func (s *messagesStream) Err() error                     { return s.err }
func (s *messagesStream) Close() error                   { return s.reader.Close() }

func (s *messagesStream) Accumulated() *provider.Response { return s.accumulated }
