// Package relay adapts provider-native incremental responses into a
// transport-agnostic event sequence.
package relay

import (
	"context"

	"github.com/axelhq/axel/provider"
)

// Event is one element of the normalized stream. Exactly one of the
// variants is set: a content delta, the final usage record, an error, or
// the end marker. A well-formed stream is zero or more deltas followed by
// either (optional UsageFinal, then Done) or a single Error. A cancelled
// stream ends with no terminal event at all; cancellation is not a failure
// and the transport decides how to surface it.
type Event struct {
	Delta string
	Usage *provider.Usage
	Err   error
	Done  bool
}

// eventBuffer bounds the producer so a slow consumer applies backpressure
// instead of unbounded buffering.
const eventBuffer = 16

// Stream consumes rs on a producer goroutine and re-emits its chunks as
// Events on the returned channel. Each provider chunk that carries text
// becomes exactly one delta event, in upstream order, never re-chunked.
// Usage metadata is buffered and emitted immediately before Done.
//
// Cancelling ctx stops the upstream read at chunk granularity, closes the
// upstream connection and closes the channel without a terminal event.
// The channel is always closed; rs is always closed.
func Stream(ctx context.Context, rs provider.ResponseStream) <-chan Event {
	out := make(chan Event, eventBuffer)

	go func() {
		defer close(out)
		defer func() { _ = rs.Close() }()

		for rs.Next() {
			chunk := rs.Current()
			if chunk == nil || chunk.Delta == "" {
				continue
			}
			if !send(ctx, out, Event{Delta: chunk.Delta}) {
				return
			}
		}

		if ctx.Err() != nil {
			return
		}
		if err := rs.Err(); err != nil {
			send(ctx, out, Event{Err: err})
			return
		}

		if usage := rs.Accumulated().Usage; !usage.IsZero() {
			u := usage
			if !send(ctx, out, Event{Usage: &u}) {
				return
			}
		}
		send(ctx, out, Event{Done: true})
	}()

	return out
}

// send yields one event unless the caller has cancelled.
func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}
