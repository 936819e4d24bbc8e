package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/axelhq/axel/provider"
)

// MemoryStore is an in-process Store. Appends are serialized per session
// id by the store lock, so two turns racing on the same session interleave
// whole turns rather than corrupting history.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Get implements Store. The returned session is a copy; mutating it does
// not affect stored history.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	out := &Session{
		ID:        sess.ID,
		Messages:  make([]provider.Message, len(sess.Messages)),
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
	copy(out.Messages, sess.Messages)
	return out, nil
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, id string, msgs ...provider.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{ID: id, CreatedAt: now}
		s.sessions[id] = sess
	}
	sess.Messages = append(sess.Messages, msgs...)
	sess.UpdatedAt = now
	return nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		summaries = append(summaries, Summary{
			ID:        sess.ID,
			Preview:   Preview(sess.Messages),
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}
