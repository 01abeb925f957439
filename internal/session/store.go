package session

import (
	"sync"
	"time"
)

// Store keeps live sessions keyed by ID. There is no persistence and
// no background janitor: expired sessions are dropped lazily when the
// store is next asked for one.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewStore returns a store whose sessions expire after sitting idle
// for ttl. A ttl of zero disables expiry.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the live session with the given ID. An expired session
// counts as missing and is removed.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if st.expired(s) {
		st.mu.Lock()
		if cur, ok := st.sessions[id]; ok && st.expired(cur) {
			delete(st.sessions, id)
		}
		st.mu.Unlock()
		return nil, false
	}
	return s, true
}

// GetOrCreate returns the live session with the given ID, or a fresh
// one when the ID is empty, unknown, or expired. The second return
// value reports whether a new session was created, so the caller
// knows to reissue its cookie.
func (st *Store) GetOrCreate(id string) (*Session, bool) {
	if id != "" {
		if s, ok := st.Get(id); ok {
			s.Touch(st.now())
			return s, false
		}
	}
	now := st.now()
	s := newSession(now)
	st.mu.Lock()
	st.evictExpiredLocked(now)
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s, true
}

// Delete removes a session immediately.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Len reports the number of sessions currently held, expired or not.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *Store) expired(s *Session) bool {
	if st.ttl <= 0 {
		return false
	}
	return st.now().Sub(s.LastSeen()) > st.ttl
}

func (st *Store) evictExpiredLocked(now time.Time) {
	if st.ttl <= 0 {
		return
	}
	for id, s := range st.sessions {
		if now.Sub(s.LastSeen()) > st.ttl {
			delete(st.sessions, id)
		}
	}
}
