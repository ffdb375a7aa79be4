package memory

import (
	"context"
	"sync"
)

// InMemoryStore keeps transcripts in process; used when no database is configured and in tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	maxTurns int
	byOwner  map[int64][]TurnRecord
}

// NewInMemoryStore keeps at most maxTurns per owner (DefaultMaxTurns when <= 0).
func NewInMemoryStore(maxTurns int) *InMemoryStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &InMemoryStore{maxTurns: maxTurns, byOwner: make(map[int64][]TurnRecord)}
}

func (s *InMemoryStore) SaveTurn(_ context.Context, record TurnRecord) error {
	record = stamp(record)
	s.mu.Lock()
	defer s.mu.Unlock()
	transcript := append(s.byOwner[record.OwnerID], record)
	if over := len(transcript) - s.maxTurns; over > 0 {
		transcript = append([]TurnRecord(nil), transcript[over:]...)
	}
	s.byOwner[record.OwnerID] = transcript
	return nil
}

func (s *InMemoryStore) RecentContext(_ context.Context, ownerID int64, limit int) ([]TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	transcript := s.byOwner[ownerID]
	if limit > 0 && limit < len(transcript) {
		transcript = transcript[len(transcript)-limit:]
	}
	return append([]TurnRecord(nil), openOnUserTurn(transcript)...), nil
}

func (s *InMemoryStore) Close() error { return nil }
