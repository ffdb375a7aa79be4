package tasks

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/ent0n29/taskpal/internal/directive"
)

func addDirective(desc, date, clock string) directive.Directive {
	d := directive.Directive{Action: directive.ActionAdd, Task: &desc}
	if date != "" {
		v, err := directive.ParseDate(date)
		if err != nil {
			panic(err)
		}
		d.DueDate = &v
	}
	if clock != "" {
		v, err := directive.ParseClock(clock)
		if err != nil {
			panic(err)
		}
		d.DueTime = &v
	}
	return d
}

func titles(list []Task) []string {
	out := make([]string, 0, len(list))
	for _, t := range list {
		out = append(out, t.Title())
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestInMemoryStoreInsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(time.UTC)

	task, err := s.Insert(ctx, addDirective("Call mom", "2025-07-16", "14:00"), 42)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if task.ID == 0 {
		t.Fatalf("task.ID = 0, want assigned id")
	}
	if task.Alerted || task.Completed {
		t.Fatalf("new task flags alerted=%v completed=%v, want false", task.Alerted, task.Completed)
	}

	got, err := s.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.OwnerID != 42 || got.Title() != "Call mom" {
		t.Fatalf("Get() = %+v, want owner 42 and title Call mom", got)
	}

	if _, err := s.Get(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(999) error = %v, want ErrNotFound", err)
	}
}

func TestInsertRejectsNonAddDirectives(t *testing.T) {
	s := NewInMemoryStore(time.UTC)
	for _, a := range []directive.Action{directive.ActionList, directive.ActionDone, directive.ActionDelete, directive.ActionUpdate} {
		if _, err := s.Insert(context.Background(), directive.Directive{Action: a}, 1); !errors.Is(err, ErrNotInsertable) {
			t.Fatalf("Insert(%s) error = %v, want ErrNotInsertable", a, err)
		}
	}
}

func TestListIncompleteOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(time.UTC)
	inputs := []directive.Directive{
		addDirective("no date", "", ""),
		addDirective("late untimed", "2025-07-20", ""),
		addDirective("late morning", "2025-07-20", "09:00"),
		addDirective("early evening", "2025-07-16", "18:00"),
		addDirective("early noon", "2025-07-16", "12:00"),
		addDirective("time only", "", "08:00"),
	}
	for _, d := range inputs {
		if _, err := s.Insert(ctx, d, 7); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
	if _, err := s.Insert(ctx, addDirective("someone else", "2025-01-01", "00:00"), 8); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := s.ListIncomplete(ctx, 7)
	if err != nil {
		t.Fatalf("ListIncomplete() error = %v", err)
	}
	want := []string{"early noon", "early evening", "late morning", "late untimed", "time only", "no date"}
	if !equalStrings(titles(got), want) {
		t.Fatalf("ListIncomplete() = %v, want %v", titles(got), want)
	}

	selectable, err := s.ListSelectable(ctx, 7)
	if err != nil {
		t.Fatalf("ListSelectable() error = %v", err)
	}
	if !equalStrings(titles(selectable), want) {
		t.Fatalf("ListSelectable() = %v, want same order as ListIncomplete %v", titles(selectable), want)
	}
}

func TestSortForDisplayIsPermutationIndependent(t *testing.T) {
	d1 := civil.Date{Year: 2025, Month: 7, Day: 16}
	d2 := civil.Date{Year: 2025, Month: 7, Day: 17}
	t1 := civil.Time{Hour: 9}
	t2 := civil.Time{Hour: 17, Minute: 30}
	base := []Task{
		{ID: 1, DueDate: &d2, DueTime: &t1},
		{ID: 2, DueDate: &d1},
		{ID: 3},
		{ID: 4, DueDate: &d1, DueTime: &t2},
		{ID: 5, DueDate: &d1, DueTime: &t1},
		{ID: 6, DueTime: &t1},
		{ID: 7, DueDate: &d2},
	}
	wantIDs := []int64{5, 4, 2, 1, 7, 6, 3}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		list := append([]Task(nil), base...)
		rng.Shuffle(len(list), func(a, b int) { list[a], list[b] = list[b], list[a] })
		SortForDisplay(list)
		for k, task := range list {
			if task.ID != wantIDs[k] {
				t.Fatalf("permutation %d: position %d = id %d, want %d", i, k, task.ID, wantIDs[k])
			}
		}
	}
}

func TestCompletedTasksLeaveOpenLists(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(time.UTC)
	a, _ := s.Insert(ctx, addDirective("a", "2025-07-16", "10:00"), 1)
	if _, err := s.Insert(ctx, addDirective("b", "2025-07-16", "11:00"), 1); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.MarkCompleted(ctx, a.ID, true); err != nil {
			t.Fatalf("MarkCompleted() error = %v", err)
		}
	}
	got, _ := s.ListIncomplete(ctx, 1)
	if !equalStrings(titles(got), []string{"b"}) {
		t.Fatalf("ListIncomplete() = %v, want [b]", titles(got))
	}
	task, _ := s.Get(ctx, a.ID)
	if !task.Completed || task.Alerted {
		t.Fatalf("task flags completed=%v alerted=%v, want completed only", task.Completed, task.Alerted)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(time.UTC)
	a, _ := s.Insert(ctx, addDirective("a", "", ""), 1)
	for i := 0; i < 2; i++ {
		if err := s.Delete(ctx, a.ID); err != nil {
			t.Fatalf("Delete() #%d error = %v", i, err)
		}
	}
	if _, err := s.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestListDueWithinWindowAndAlerted(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(time.UTC)
	now := time.Date(2025, 7, 16, 13, 0, 0, 0, time.UTC)

	inside, _ := s.Insert(ctx, addDirective("inside", "2025-07-16", "14:00"), 1)
	edge, _ := s.Insert(ctx, addDirective("edge", "2025-07-16", "15:00"), 2)
	_, _ = s.Insert(ctx, addDirective("past", "2025-07-16", "12:59"), 1)
	_, _ = s.Insert(ctx, addDirective("later", "2025-07-16", "15:01"), 1)
	_, _ = s.Insert(ctx, addDirective("date only", "2025-07-16", ""), 1)
	done, _ := s.Insert(ctx, addDirective("done", "2025-07-16", "13:30"), 1)
	_ = s.MarkCompleted(ctx, done.ID, true)

	got, err := s.ListDueWithin(ctx, now, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ListDueWithin() error = %v", err)
	}
	if !equalStrings(titles(got), []string{"inside", "edge"}) {
		t.Fatalf("ListDueWithin() = %v, want [inside edge]", titles(got))
	}

	for i := 0; i < 2; i++ {
		if err := s.MarkAlerted(ctx, inside.ID); err != nil {
			t.Fatalf("MarkAlerted() error = %v", err)
		}
	}
	task, _ := s.Get(ctx, inside.ID)
	if !task.Alerted {
		t.Fatalf("Alerted = false after MarkAlerted")
	}
	got, _ = s.ListDueWithin(ctx, now, now.Add(2*time.Hour))
	if len(got) != 1 || got[0].ID != edge.ID {
		t.Fatalf("ListDueWithin() after alert = %v, want only edge", titles(got))
	}
}

func TestListDueOnOrdersByTimeNullsLast(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(time.UTC)
	_, _ = s.Insert(ctx, addDirective("untimed", "2025-07-17", ""), 1)
	_, _ = s.Insert(ctx, addDirective("evening", "2025-07-17", "19:00"), 2)
	_, _ = s.Insert(ctx, addDirective("morning", "2025-07-17", "08:15"), 1)
	_, _ = s.Insert(ctx, addDirective("other day", "2025-07-18", "08:00"), 1)

	got, err := s.ListDueOn(ctx, civil.Date{Year: 2025, Month: 7, Day: 17})
	if err != nil {
		t.Fatalf("ListDueOn() error = %v", err)
	}
	if !equalStrings(titles(got), []string{"morning", "evening", "untimed"}) {
		t.Fatalf("ListDueOn() = %v, want [morning evening untimed]", titles(got))
	}
}

func TestPgTimeConversion(t *testing.T) {
	in := civil.Time{Hour: 23, Minute: 59, Second: 7, Nanosecond: 250000000}
	got := fromPgTime(toPgTime(&in))
	if got == nil || *got != in {
		t.Fatalf("fromPgTime(toPgTime(%v)) = %v", in, got)
	}
	if fromPgTime(toPgTime(nil)) != nil {
		t.Fatalf("nil time should stay nil")
	}
	d := civil.Date{Year: 2025, Month: 2, Day: 28}
	if gotDate := fromPgDate(toPgDate(&d)); gotDate == nil || *gotDate != d {
		t.Fatalf("fromPgDate(toPgDate(%v)) = %v", d, gotDate)
	}
}
