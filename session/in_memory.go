package session

import (
	"sort"
	"sync"

	"github.com/jcqin2022/AIAssistant/core"
)

// InMemoryStore is a volatile SessionStore implementation storing
// sessions in a process local map. It is safe for concurrent access and best
// suited for tests, the CLI or ephemeral demo servers. Sessions are cloned on
// the way in and out to prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	max      int
}

var _ core.SessionStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in‑memory session store. When max > 0
// the least recently updated sessions are dropped beyond max entries.
func NewInMemoryStore(max int) *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session), max: max}
}

// Save stores a clone of the provided session snapshot, replacing any
// previous snapshot with the same ID.
func (s *InMemoryStore) Save(session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	s.evictLocked()
	return nil
}

// Get returns a clone of the session with id.
func (s *InMemoryStore) Get(id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.sessions[id]; ok {
		return session.Clone(), nil
	}
	return nil, core.ErrSessionNotFound
}

// List returns up to limit sessions, most recently updated first.
func (s *InMemoryStore) List(limit int) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	sortByUpdated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// evictLocked drops the oldest sessions beyond max; caller must hold the
// write lock.
func (s *InMemoryStore) evictLocked() {
	if s.max <= 0 || len(s.sessions) <= s.max {
		return
	}
	all := make([]*core.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		all = append(all, session)
	}
	sortByUpdated(all)
	for _, session := range all[s.max:] {
		delete(s.sessions, session.ID)
	}
}

func sortByUpdated(sessions []*core.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].Updated.Equal(sessions[j].Updated) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].Updated.After(sessions[j].Updated)
	})
}
