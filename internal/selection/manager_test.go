package selection

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ent0n29/taskpal/internal/directive"
	"github.com/ent0n29/taskpal/internal/tasks"
)

func seed(t *testing.T, s *tasks.InMemoryStore, owner int64, descs ...string) []tasks.Task {
	t.Helper()
	out := make([]tasks.Task, 0, len(descs))
	for i, desc := range descs {
		desc := desc
		date, _ := directive.ParseDate("2025-07-16")
		clock, _ := directive.ParseClock("0" + string(rune('1'+i)) + ":00")
		task, err := s.Insert(context.Background(), directive.Directive{
			Action:  directive.ActionAdd,
			Task:    &desc,
			DueDate: &date,
			DueTime: &clock,
		}, owner)
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		out = append(out, task)
	}
	return out
}

func TestSelectionRoundTripComplete(t *testing.T) {
	ctx := context.Background()
	repo := tasks.NewInMemoryStore(time.UTC)
	seeded := seed(t, repo, 1, "first", "second")
	m := NewManager(repo, nil)

	sess, err := m.Begin(ctx, 1, IntentComplete)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if sess.Intent != IntentComplete || len(sess.Candidates) != 2 {
		t.Fatalf("session = %+v, want complete with 2 candidates", sess)
	}

	out, err := m.Select(ctx, 1, " 2 ")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !out.Applied || out.Candidate.TaskID != seeded[1].ID {
		t.Fatalf("outcome = %+v, want applied to second task", out)
	}
	got, _ := repo.Get(ctx, seeded[1].ID)
	if !got.Completed {
		t.Fatalf("second task not completed")
	}
	first, _ := repo.Get(ctx, seeded[0].ID)
	if first.Completed {
		t.Fatalf("first task completed, want untouched")
	}
	if _, ok, _ := m.Pending(ctx, 1); ok {
		t.Fatalf("session still pending after valid selection")
	}
}

func TestSelectionDeleteIntent(t *testing.T) {
	ctx := context.Background()
	repo := tasks.NewInMemoryStore(time.UTC)
	seeded := seed(t, repo, 1, "only")
	m := NewManager(repo, nil)

	if _, err := m.Begin(ctx, 1, IntentDelete); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	out, err := m.Select(ctx, 1, "1")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if out.Intent != IntentDelete || !out.Applied {
		t.Fatalf("outcome = %+v, want applied delete", out)
	}
	if _, err := repo.Get(ctx, seeded[0].ID); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestSelectionInvalidInputKeepsSession(t *testing.T) {
	ctx := context.Background()
	repo := tasks.NewInMemoryStore(time.UTC)
	seed(t, repo, 1, "first", "second")
	m := NewManager(repo, nil)

	before, err := m.Begin(ctx, 1, IntentDelete)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	cases := []struct {
		input string
		want  error
	}{
		{"0", ErrOutOfRange},
		{"3", ErrOutOfRange},
		{"-1", ErrOutOfRange},
		{"two", ErrNotANumber},
		{"", ErrNotANumber},
		{"1.5", ErrNotANumber},
	}
	for _, tc := range cases {
		_, err := m.Select(ctx, 1, tc.input)
		if !errors.Is(err, tc.want) || !errors.Is(err, ErrInvalidSelection) {
			t.Fatalf("Select(%q) error = %v, want %v", tc.input, err, tc.want)
		}
		after, ok, err := m.Pending(ctx, 1)
		if err != nil || !ok {
			t.Fatalf("Pending() after %q = ok %v err %v, want retained", tc.input, ok, err)
		}
		if !reflect.DeepEqual(before, after) {
			t.Fatalf("session changed after %q: %+v -> %+v", tc.input, before, after)
		}
	}

	list, _ := repo.ListIncomplete(ctx, 1)
	if len(list) != 2 {
		t.Fatalf("tasks mutated by invalid selections, %d left", len(list))
	}
}

func TestSelectionCandidatesAreSnapshotted(t *testing.T) {
	ctx := context.Background()
	repo := tasks.NewInMemoryStore(time.UTC)
	seeded := seed(t, repo, 1, "first", "second")
	m := NewManager(repo, nil)

	if _, err := m.Begin(ctx, 1, IntentComplete); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	// A task added after the prompt must not shift the numbers the user saw.
	earlier, _ := directive.ParseDate("2025-07-01")
	zeroth := "zeroth"
	if _, err := repo.Insert(ctx, directive.Directive{Action: directive.ActionAdd, Task: &zeroth, DueDate: &earlier}, 1); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	out, err := m.Select(ctx, 1, "1")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if out.Candidate.TaskID != seeded[0].ID {
		t.Fatalf("selected task %d, want %d", out.Candidate.TaskID, seeded[0].ID)
	}
}

func TestBeginWithNothingToSelect(t *testing.T) {
	ctx := context.Background()
	m := NewManager(tasks.NewInMemoryStore(time.UTC), nil)
	if _, err := m.Begin(ctx, 1, IntentComplete); !errors.Is(err, ErrNothingToSelect) {
		t.Fatalf("Begin() error = %v, want ErrNothingToSelect", err)
	}
	if _, ok, _ := m.Pending(ctx, 1); ok {
		t.Fatalf("session created for empty candidate list")
	}
}

func TestBeginReplacesPendingSession(t *testing.T) {
	ctx := context.Background()
	repo := tasks.NewInMemoryStore(time.UTC)
	seed(t, repo, 1, "first")
	m := NewManager(repo, nil)

	if _, err := m.Begin(ctx, 1, IntentComplete); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := m.Begin(ctx, 1, IntentDelete); err != nil {
		t.Fatalf("Begin() second error = %v", err)
	}
	sess, ok, _ := m.Pending(ctx, 1)
	if !ok || sess.Intent != IntentDelete {
		t.Fatalf("pending = %+v ok=%v, want delete session", sess, ok)
	}
}

type failingRepo struct {
	*tasks.InMemoryStore
}

func (failingRepo) MarkCompleted(context.Context, int64, bool) error {
	return tasks.ErrPersistence
}

func TestFailedMutationStillEndsSession(t *testing.T) {
	ctx := context.Background()
	repo := tasks.NewInMemoryStore(time.UTC)
	seed(t, repo, 1, "first")
	m := NewManager(failingRepo{repo}, nil)

	if _, err := m.Begin(ctx, 1, IntentComplete); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	out, err := m.Select(ctx, 1, "1")
	if !errors.Is(err, tasks.ErrPersistence) {
		t.Fatalf("Select() error = %v, want ErrPersistence", err)
	}
	if out.Applied {
		t.Fatalf("outcome applied despite failure")
	}
	if _, ok, _ := m.Pending(ctx, 1); ok {
		t.Fatalf("session restored after failed mutation")
	}
}

func TestSelectWithoutSessionAndCancel(t *testing.T) {
	ctx := context.Background()
	repo := tasks.NewInMemoryStore(time.UTC)
	seed(t, repo, 1, "first")
	m := NewManager(repo, nil)

	if _, err := m.Select(ctx, 1, "1"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Select() error = %v, want ErrNoSession", err)
	}
	if _, err := m.Begin(ctx, 1, IntentDelete); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	cancelled, err := m.Cancel(ctx, 1)
	if err != nil || !cancelled {
		t.Fatalf("Cancel() = %v, %v, want true, nil", cancelled, err)
	}
	cancelled, _ = m.Cancel(ctx, 1)
	if cancelled {
		t.Fatalf("second Cancel() = true, want false")
	}
}

func TestIntentFor(t *testing.T) {
	cases := []struct {
		action directive.Action
		want   Intent
		ok     bool
	}{
		{directive.ActionUpdate, IntentComplete, true},
		{directive.ActionDone, IntentComplete, true},
		{directive.ActionDelete, IntentDelete, true},
		{directive.ActionAdd, "", false},
		{directive.ActionList, "", false},
	}
	for _, tc := range cases {
		got, ok := IntentFor(tc.action)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("IntentFor(%s) = %q, %v, want %q, %v", tc.action, got, ok, tc.want, tc.ok)
		}
	}
}
