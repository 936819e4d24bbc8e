// Package session models server-tracked conversation history keyed by an
// opaque identifier. The gateway core only reads and appends; persistence
// mechanics live behind the Store boundary.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/axelhq/axel/provider"
)

// ErrNotFound is returned when a session id has no stored history.
var ErrNotFound = errors.New("session not found")

// Session is one conversation's ordered message history. Messages are
// append-only; order is chronological and preserved end to end.
type Session struct {
	ID        string             `json:"id"`
	Messages  []provider.Message `json:"messages"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Summary is a listing view of a session: identity plus a preview of the
// opening message.
type Summary struct {
	ID        string    `json:"id"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the durable boundary for sessions.
type Store interface {
	// Get loads a session by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Append adds messages to the session's history, creating the session
	// if it does not exist yet. Appends for the same id are serialized.
	Append(ctx context.Context, id string, msgs ...provider.Message) error

	// List returns summaries of the most recently updated sessions,
	// newest first, at most limit entries.
	List(ctx context.Context, limit int) ([]Summary, error)
}

const previewLen = 80

// Preview derives the listing preview from the session's first message.
func Preview(msgs []provider.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	content := msgs[0].Content
	if len(content) > previewLen {
		return content[:previewLen]
	}
	return content
}
