// Package gemini implements the provider client for Google's Gemini API.
package gemini

import (
	"context"
	"fmt"
	"io"

	"github.com/axelhq/axel/provider"
)

const defaultModel = "gemini-flash-latest"

func init() {
	provider.RegisterFactory("gemini", Factory)
}

// Client implements provider.Client for Gemini.
type Client struct {
	model  string
	client *client
}

// Factory builds the gemini client from configuration.
func Factory(cfg provider.Config) (provider.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key required")
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
	return "gemini"
}

// Chat implements provider.Client.
func (c *Client) Chat(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if err := req.Validate("gemini"); err != nil {
		return nil, err
	}

	apiResp, err := c.client.generateContent(ctx, c.model, buildRequest(req.Messages, req.Temperature, req.MaxTokens))
	if err != nil {
		return nil, err
	}

	resp := &provider.Response{}
	if len(apiResp.Candidates) > 0 {
		cand := apiResp.Candidates[0]
		resp.FinishReason = convertFinishReason(cand.FinishReason)
		if cand.Content != nil {
			for _, p := range cand.Content.Parts {
				resp.Content += p.Text
			}
		}
	}
	if apiResp.UsageMetadata != nil {
		resp.Usage = convertUsage(apiResp.UsageMetadata)
	}
	return resp, nil
}

// FIM implements provider.Client. Gemini has no native infill endpoint,
// so the prompt and suffix are rephrased as a chat request.
func (c *Client) FIM(ctx context.Context, req *provider.FIMRequest) (*provider.Response, error) {
	if err := req.Validate("gemini"); err != nil {
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
	if err := req.Validate("gemini"); err != nil {
		return nil, err
	}

	stream, err := c.client.streamGenerateContent(ctx, c.model, buildRequest(req.Messages, req.Temperature, req.MaxTokens))
	if err != nil {
		return nil, err
	}

	return &contentStream{
		reader:      stream,
		accumulated: &provider.Response{},
	}, nil
}

// buildRequest translates messages into Gemini's contents layout. System
// messages move to systemInstruction; assistant turns use the "model" role.
func buildRequest(msgs []provider.Message, temperature *float64, maxTokens *int) *generateContentRequest {
	apiReq := &generateContentRequest{}

	if temperature != nil || maxTokens != nil {
		apiReq.GenerationConfig = &generationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxTokens,
		}
	}

	for _, msg := range msgs {
		switch msg.Role {
		case provider.RoleSystem:
			if apiReq.SystemInstruction == nil {
				apiReq.SystemInstruction = &content{}
			}
			apiReq.SystemInstruction.Parts = append(apiReq.SystemInstruction.Parts, part{Text: msg.Content})
		case provider.RoleAssistant:
			apiReq.Contents = append(apiReq.Contents, content{
				Role:  "model",
				Parts: []part{{Text: msg.Content}},
			})
		default:
			apiReq.Contents = append(apiReq.Contents, content{
				Role:  "user",
				Parts: []part{{Text: msg.Content}},
			})
		}
	}
	return apiReq
}

func convertUsage(u *usageMetadata) provider.Usage {
	total := u.TotalTokenCount
	if total == 0 {
		total = u.PromptTokenCount + u.CandidatesTokenCount
	}
	return provider.Usage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      total,
	}
}

func convertFinishReason(reason string) provider.FinishReason {
	if reason == "MAX_TOKENS" {
		return provider.FinishReasonLength
	}
	return provider.FinishReasonStop
}

// contentStream implements provider.ResponseStream over the SSE reader.
type contentStream struct {
	reader      *streamReader
	accumulated *provider.Response
	current     *provider.StreamChunk
	err         error
	done        bool
}

func (s *contentStream) Next() bool {
	for {
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

		// Usage arrives on every chunk; the last value wins.
		if chunk.UsageMetadata != nil {
			s.accumulated.Usage = convertUsage(chunk.UsageMetadata)
		}

		if len(chunk.Candidates) == 0 {
			continue
		}
		cand := chunk.Candidates[0]

		s.current = &provider.StreamChunk{}
		if cand.Content != nil {
			for _, p := range cand.Content.Parts {
				s.current.Delta += p.Text
			}
			s.accumulated.Content += s.current.Delta
		}
		if cand.FinishReason != "" {
			s.current.FinishReason = convertFinishReason(cand.FinishReason)
			s.accumulated.FinishReason = s.current.FinishReason
		}

		if s.current.Delta == "" && cand.FinishReason == "" {
			continue
		}
		return true
	}
}

func (s *contentStream) Current() *provider.StreamChunk { return s.current }
func (s *contentStream) Err() error                     { return s.err }
func (s *contentStream) Close() error                   { return s.reader.Close() }

func (s *contentStream) Accumulated() *provider.Response { return s.accumulated }
