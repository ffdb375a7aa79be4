package selection

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions in a map keyed by owner.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]Session)}
}

func (s *MemoryStore) Get(_ context.Context, ownerID int64) (Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[ownerID]
	if !ok {
		return Session{}, false, nil
	}
	return clone(sess), true, nil
}

func (s *MemoryStore) Put(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.OwnerID] = clone(sess)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, ownerID)
	return nil
}

func clone(s Session) Session {
	c := s
	c.Candidates = append([]Candidate(nil), s.Candidates...)
	return c
}
