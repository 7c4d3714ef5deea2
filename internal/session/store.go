package session

import (
	"context"
	"sync"
	"time"
)

// Store persists conversation turns. Implementations must preserve
// insertion order and must never expose one user's turns to another.
type Store interface {
	// Append adds a turn to the user's session, creating the session if
	// this is the user's first turn.
	Append(ctx context.Context, userID string, turn Turn) error

	// History returns the user's turns in insertion order. An unknown
	// user yields an empty slice, not an error. The returned slice is a
	// copy; callers may not mutate stored state through it.
	History(ctx context.Context, userID string) ([]Turn, error)
}

// MemoryStore is an in-process Store for tests and ephemeral runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Append adds a turn to the user's session.
func (s *MemoryStore) Append(ctx context.Context, userID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{UserID: userID, CreatedAt: now}
		s.sessions[userID] = sess
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = now
	}
	sess.Turns = append(sess.Turns, turn)
	sess.UpdatedAt = now
	return nil
}

// History returns a copy of the user's turns.
func (s *MemoryStore) History(ctx context.Context, userID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return []Turn{}, nil
	}
	out := make([]Turn, len(sess.Turns))
	copy(out, sess.Turns)
	return out, nil
}
