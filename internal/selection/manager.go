// Package selection implements the numbered "which task?" flow used to complete or delete tasks.
//
// An owner is either idle or awaiting a selection. Begin snapshots the owner's selectable tasks;
// Select resolves a 1-based index against that snapshot, never against a fresh query.
package selection

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Manager struct {
	repo  Repository
	store Store
	now   func() time.Time
}

func NewManager(repo Repository, store Store) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{repo: repo, store: store, now: time.Now}
}

// Begin opens a session with the owner's current selectable tasks, replacing any pending one.
// With no candidates it returns ErrNothingToSelect and leaves the store untouched.
func (m *Manager) Begin(ctx context.Context, ownerID int64, intent Intent) (Session, error) {
	list, err := m.repo.ListSelectable(ctx, ownerID)
	if err != nil {
		return Session{}, fmt.Errorf("list selectable: %w", err)
	}
	if len(list) == 0 {
		return Session{}, ErrNothingToSelect
	}

	s := Session{
		OwnerID:    ownerID,
		Intent:     intent,
		Candidates: make([]Candidate, 0, len(list)),
		CreatedAt:  m.now().UTC(),
	}
	for _, t := range list {
		s.Candidates = append(s.Candidates, candidateOf(t))
	}
	if err := m.store.Put(ctx, s); err != nil {
		return Session{}, fmt.Errorf("save selection: %w", err)
	}
	return s, nil
}

// Pending returns the owner's open session, if any.
func (m *Manager) Pending(ctx context.Context, ownerID int64) (Session, bool, error) {
	return m.store.Get(ctx, ownerID)
}

// Select applies the session intent to the candidate at the 1-based index in input.
//
// Non-numeric or out-of-range input returns an ErrInvalidSelection error and keeps the session.
// A valid index always ends the session, even when the mutation fails; the mutation error is
// returned alongside an Outcome with Applied=false.
func (m *Manager) Select(ctx context.Context, ownerID int64, input string) (Outcome, error) {
	s, ok, err := m.store.Get(ctx, ownerID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load selection: %w", err)
	}
	if !ok {
		return Outcome{}, ErrNoSession
	}

	idx, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return Outcome{}, ErrNotANumber
	}
	if idx < 1 || idx > len(s.Candidates) {
		return Outcome{}, fmt.Errorf("%w: %d not in 1..%d", ErrOutOfRange, idx, len(s.Candidates))
	}

	if err := m.store.Delete(ctx, ownerID); err != nil {
		return Outcome{}, fmt.Errorf("clear selection: %w", err)
	}

	out := Outcome{Intent: s.Intent, Candidate: s.Candidates[idx-1]}
	switch s.Intent {
	case IntentComplete:
		err = m.repo.MarkCompleted(ctx, out.Candidate.TaskID, true)
	case IntentDelete:
		err = m.repo.Delete(ctx, out.Candidate.TaskID)
	default:
		err = fmt.Errorf("unknown selection intent %q", s.Intent)
	}
	if err != nil {
		return out, fmt.Errorf("apply %s to task %d: %w", s.Intent, out.Candidate.TaskID, err)
	}
	out.Applied = true
	return out, nil
}

// Cancel drops the owner's pending session and reports whether one existed.
func (m *Manager) Cancel(ctx context.Context, ownerID int64) (bool, error) {
	_, ok, err := m.store.Get(ctx, ownerID)
	if err != nil || !ok {
		return false, err
	}
	if err := m.store.Delete(ctx, ownerID); err != nil {
		return false, err
	}
	return true, nil
}
