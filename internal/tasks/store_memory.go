package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/ent0n29/taskpal/internal/directive"
)

// InMemoryStore keeps tasks in process memory for local/dev use and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	loc    *time.Location
	nextID int64
	rows   map[int64]Task
}

func NewInMemoryStore(loc *time.Location) *InMemoryStore {
	if loc == nil {
		loc = time.Local
	}
	return &InMemoryStore{loc: loc, rows: make(map[int64]Task)}
}

func (s *InMemoryStore) Insert(_ context.Context, d directive.Directive, ownerID int64) (Task, error) {
	if d.Action != directive.ActionAdd {
		return Task{}, fmt.Errorf("insert %q: %w", d.Action, ErrNotInsertable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	task := Task{
		ID:          s.nextID,
		Action:      d.Action,
		Description: d.Task,
		DueDate:     d.DueDate,
		DueTime:     d.DueTime,
		Note:        d.Note,
		OwnerID:     ownerID,
	}.clone()
	s.rows[task.ID] = task
	return task.clone(), nil
}

func (s *InMemoryStore) Get(_ context.Context, id int64) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.rows[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t.clone(), nil
}

func (s *InMemoryStore) ListIncomplete(_ context.Context, ownerID int64) ([]Task, error) {
	out := s.filter(func(t Task) bool { return t.OwnerID == ownerID && !t.Completed })
	SortForDisplay(out)
	return out, nil
}

func (s *InMemoryStore) ListSelectable(ctx context.Context, ownerID int64) ([]Task, error) {
	return s.ListIncomplete(ctx, ownerID)
}

func (s *InMemoryStore) ListDueWithin(_ context.Context, start, end time.Time) ([]Task, error) {
	out := s.filter(func(t Task) bool {
		if t.Alerted || t.Completed {
			return false
		}
		due, ok := t.DueAt(s.loc)
		return ok && !due.Before(start) && !due.After(end)
	})
	SortForDisplay(out)
	return out, nil
}

func (s *InMemoryStore) ListDueOn(_ context.Context, date civil.Date) ([]Task, error) {
	out := s.filter(func(t Task) bool {
		return !t.Completed && t.DueDate != nil && *t.DueDate == date
	})
	sortByTime(out)
	return out, nil
}

func (s *InMemoryStore) MarkAlerted(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.rows[id]; ok {
		t.Alerted = true
		s.rows[id] = t
	}
	return nil
}

func (s *InMemoryStore) MarkCompleted(_ context.Context, id int64, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.rows[id]; ok {
		t.Completed = value
		s.rows[id] = t
	}
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) filter(keep func(Task) bool) []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.rows))
	for _, t := range s.rows {
		if keep(t) {
			out = append(out, t.clone())
		}
	}
	return out
}
