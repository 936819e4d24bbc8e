// Package router dispatches normalized chat and FIM requests to the
// configured provider, threading session history through each turn.
package router

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/axelhq/axel/provider"
	"github.com/axelhq/axel/relay"
	"github.com/axelhq/axel/session"
)

// Defaults are applied when a request leaves a field unset.
type Defaults struct {
	// Provider is the logical provider used when the request names none.
	Provider string

	// Timeout bounds synchronous upstream calls. Streaming calls are not
	// bounded here; the caller's context governs their lifetime.
	Timeout time.Duration
}

// Options carries per-request tuning parameters.
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// ChatRequest is a normalized conversational request.
type ChatRequest struct {
	Messages  []provider.Message
	Provider  string
	SessionID string
	Options   Options
}

// ChatResult is the synchronous chat response.
type ChatResult struct {
	Content   string
	SessionID string
	Usage     *provider.Usage
}

// FIMRequest is a normalized fill-in-the-middle request. Always stateless.
type FIMRequest struct {
	Prompt   string
	Suffix   string
	Provider string
	Options  Options
}

// FIMResult is the fill-in-the-middle response.
type FIMResult struct {
	Content string
}

// StreamHandle exposes a started stream: the session id the turn will be
// recorded under (minted fresh for stateless requests) and the normalized
// event sequence.
type StreamHandle struct {
	SessionID string
	Events    <-chan relay.Event
}

// Router resolves providers and dispatches requests. Safe for concurrent
// use; per-request state never leaks between calls.
type Router struct {
	registry *provider.Registry
	sessions session.Store
	defaults Defaults
	log      zerolog.Logger
}

// New constructs a Router.
func New(registry *provider.Registry, sessions session.Store, defaults Defaults, log zerolog.Logger) *Router {
	return &Router{
		registry: registry,
		sessions: sessions,
		defaults: defaults,
		log:      log,
	}
}

// Chat performs a synchronous conversational turn. With a session id, the
// stored history is prepended before dispatch and the new turn is appended
// after a successful reply. Without one, a fresh session id is minted and
// returned so the caller can continue the conversation.
func (r *Router) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	client, name, err := r.resolve(req.Provider, req.Options.Model)
	if err != nil {
		return nil, err
	}

	history, err := r.loadHistory(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	upstream := &provider.Request{
		Messages:    append(history, req.Messages...),
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
	}

	callCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := client.Chat(callCtx, upstream)
	if err != nil {
		return nil, err
	}
	r.log.Debug().
		Str("provider", name).
		Int("history_len", len(history)).
		Dur("elapsed", time.Since(start)).
		Msg("chat turn completed")

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	turn := append(append([]provider.Message{}, req.Messages...),
		provider.AssistantMessage(resp.Content))
	// The turn is complete once upstream replied; a caller cancelling at
	// this point must not lose it.
	if err := r.sessions.Append(context.WithoutCancel(ctx), sessionID, turn...); err != nil {
		return nil, err
	}

	result := &ChatResult{Content: resp.Content, SessionID: sessionID}
	if !resp.Usage.IsZero() {
		u := resp.Usage
		result.Usage = &u
	}
	return result, nil
}

// ChatStream starts a streaming conversational turn. The turn is appended
// to the session only after the terminal Done event is observed; cancelled
// or failed streams leave session history untouched.
func (r *Router) ChatStream(ctx context.Context, req *ChatRequest) (*StreamHandle, error) {
	client, name, err := r.resolve(req.Provider, req.Options.Model)
	if err != nil {
		return nil, err
	}

	history, err := r.loadHistory(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	upstream := &provider.Request{
		Messages:    append(history, req.Messages...),
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
	}

	rs, err := client.StreamChat(ctx, upstream)
	if err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	events := relay.Stream(ctx, rs)
	out := make(chan relay.Event, 16)

	go func() {
		defer close(out)

		var assistant []byte
		completed := false
		for ev := range events {
			if ev.Delta != "" {
				assistant = append(assistant, ev.Delta...)
			}
			if ev.Done {
				completed = true
			}
			// An abandoned consumer must not park this goroutine forever;
			// bailing out here leaves completed false, so nothing is
			// appended.
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}

		if !completed {
			return
		}

		// The caller's context may already be winding down once Done has
		// been delivered; the append must still land.
		appendCtx := context.WithoutCancel(ctx)
		turn := append(append([]provider.Message{}, req.Messages...),
			provider.AssistantMessage(string(assistant)))
		if err := r.sessions.Append(appendCtx, sessionID, turn...); err != nil {
			r.log.Error().Err(err).Str("session_id", sessionID).Msg("session append failed")
		}
		r.log.Debug().
			Str("provider", name).
			Str("session_id", sessionID).
			Int("assistant_bytes", len(assistant)).
			Msg("stream turn completed")
	}()

	return &StreamHandle{SessionID: sessionID, Events: out}, nil
}

// FIM performs a stateless fill-in-the-middle completion.
func (r *Router) FIM(ctx context.Context, req *FIMRequest) (*FIMResult, error) {
	client, name, err := r.resolve(req.Provider, req.Options.Model)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	resp, err := client.FIM(callCtx, &provider.FIMRequest{
		Prompt:      req.Prompt,
		Suffix:      req.Suffix,
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	r.log.Debug().Str("provider", name).Msg("fim completed")

	return &FIMResult{Content: resp.Content}, nil
}

// Sessions exposes the session store to the transport layer for the
// listing and retrieval endpoints.
func (r *Router) Sessions() session.Store {
	return r.sessions
}

func (r *Router) resolve(providerName, modelOverride string) (provider.Client, string, error) {
	name := providerName
	if name == "" {
		name = r.defaults.Provider
	}
	client, err := r.registry.Resolve(name, modelOverride)
	if err != nil {
		return nil, name, err
	}
	return client, name, nil
}

// loadHistory returns the stored messages for id, or nil for stateless
// requests and ids that have no history yet.
func (r *Router) loadHistory(ctx context.Context, id string) ([]provider.Message, error) {
	if id == "" {
		return nil, nil
	}
	sess, err := r.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sess.Messages, nil
}

func (r *Router) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.defaults.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.defaults.Timeout)
}
