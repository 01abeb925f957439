// Package session holds per-browser conversation state: the one
// loaded dataset and the ordered turn history. Everything lives in
// memory; a server restart starts every visitor over.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tablechat/tablechat/internal/chat"
	"github.com/tablechat/tablechat/internal/dataset"
)

// Session is one visitor's workspace. Data access locks internally so
// read endpoints stay cheap; mutating pipelines (upload, ask, reset)
// additionally serialize through Acquire so a session handles one
// interaction at a time.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.RWMutex
	lastSeen time.Time
	dataset  *dataset.Dataset
	turns    []chat.Turn

	interacting sync.Mutex
}

func newSession(now time.Time) *Session {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Session{
		ID:        id.String(),
		CreatedAt: now,
		lastSeen:  now,
	}
}

// Acquire blocks until this session has no interaction in flight.
// Callers must Release when their pipeline finishes.
func (s *Session) Acquire() { s.interacting.Lock() }

// Release ends the current interaction.
func (s *Session) Release() { s.interacting.Unlock() }

// Touch marks the session as recently used for idle eviction.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen reports when the session was last touched.
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// Append adds turns to the end of the history. The history is
// append-only; turns are never edited or removed except by Reset.
func (s *Session) Append(turns ...chat.Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, turns...)
	s.mu.Unlock()
}

// Turns returns a copy of the full history in insertion order.
func (s *Session) Turns() []chat.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// TurnCount reports the history length.
func (s *Session) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Dataset returns the currently loaded dataset, or nil.
func (s *Session) Dataset() *dataset.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataset
}

// SetDataset replaces the session's dataset. The conversation history
// is kept: earlier answers still refer to the data they were given.
func (s *Session) SetDataset(ds *dataset.Dataset) {
	s.mu.Lock()
	s.dataset = ds
	s.mu.Unlock()
}

// Reset drops the dataset and the whole history, returning the
// session to its initial empty state under the same ID.
func (s *Session) Reset() {
	s.mu.Lock()
	s.dataset = nil
	s.turns = nil
	s.mu.Unlock()
}
