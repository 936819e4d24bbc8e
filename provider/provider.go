// Package provider defines the capability interface for LLM backend providers
// and the registry that maps logical provider names to client instances.
package provider

import "context"

// Client is the core abstraction over backend model providers.
// A Client instance is bound to exactly one (provider, model, version)
// triple for its lifetime; switching models means constructing a new
// instance through the Registry, never reconfiguring an existing one.
type Client interface {
	// Name returns the logical provider identifier (e.g., "openai", "cerebras").
	Name() string

	// Chat executes a non-streaming conversational request.
	Chat(ctx context.Context, req *Request) (*Response, error)

	// FIM executes a fill-in-the-middle completion for the given
	// prefix/suffix pair.
	FIM(ctx context.Context, req *FIMRequest) (*Response, error)

	// StreamChat executes a streaming conversational request. The returned
	// stream is lazy, finite and non-restartable; cancelling ctx aborts the
	// underlying upstream read.
	StreamChat(ctx context.Context, req *Request) (ResponseStream, error)
}

// ResponseStream represents an in-flight streaming response.
type ResponseStream interface {
	// Next advances to the next chunk, returns false when done.
	Next() bool

	// Current returns the current chunk.
	Current() *StreamChunk

	// Err returns any error that occurred during streaming.
	Err() error

	// Close releases stream resources, aborting the upstream connection
	// if the stream has not been fully consumed.
	Close() error

	// Accumulated returns the full response accumulated so far, including
	// any usage metadata the provider reported along the way.
	Accumulated() *Response
}

// StreamChunk represents a single streaming chunk. Each chunk carries the
// exact text fragment the provider produced; the relay never re-chunks.
type StreamChunk struct {
	Delta        string
	FinishReason FinishReason
}
