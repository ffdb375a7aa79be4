package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/taskpal/internal/directive"
	"github.com/ent0n29/taskpal/internal/llm"
	"github.com/ent0n29/taskpal/internal/memory"
	"github.com/ent0n29/taskpal/internal/selection"
	"github.com/ent0n29/taskpal/internal/tasks"
)

// scriptedProvider answers each call with the next scripted reply and records the requests.
type scriptedProvider struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []llm.Request
}

func (*scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return "", p.err
	}
	if len(p.replies) == 0 {
		return "", errors.New("script exhausted")
	}
	next := p.replies[0]
	p.replies = p.replies[1:]
	return next, nil
}

type fixture struct {
	store    *tasks.InMemoryStore
	provider *scriptedProvider
	coord    *Coordinator
	mem      *memory.InMemoryStore
}

func newFixture(replies ...string) *fixture {
	store := tasks.NewInMemoryStore(time.UTC)
	provider := &scriptedProvider{replies: replies}
	mem := memory.NewInMemoryStore(0)
	coord := NewCoordinator(store, selection.NewManager(store, nil), provider, Config{
		Location:     time.UTC,
		HistoryTurns: 4,
		Memory:       mem,
		Now:          func() time.Time { return time.Date(2025, 7, 16, 9, 0, 0, 0, time.UTC) },
	})
	return &fixture{store: store, provider: provider, coord: coord, mem: mem}
}

func (f *fixture) send(t *testing.T, owner int64, text string) Reply {
	t.Helper()
	reply, err := f.coord.HandleMessage(context.Background(), owner, text)
	if err != nil {
		t.Fatalf("HandleMessage(%q) error = %v", text, err)
	}
	return reply
}

const (
	addCallMom = "👨‍💻 Action: add\n📝 Task: Call mom\n🗓️ Due date: 2025-07-16\n⏱️ Time: 14:00\n🗒️ Note: Ask about her trip"
	addDentist = "Action: add\nTask: Dentist\nDue date: 2025-07-17\nTime: 09:30\nNote: null"
)

func TestAddPersistsAndRelaysModelText(t *testing.T) {
	f := newFixture(addCallMom)
	reply := f.send(t, 42, "remind me to call mom today at 2pm")
	if reply.Text != addCallMom || reply.Kind != KindRelay {
		t.Fatalf("reply = %+v, want relayed model text", reply)
	}
	list, _ := f.store.ListIncomplete(context.Background(), 42)
	if len(list) != 1 || list[0].Title() != "Call mom" || list[0].OwnerID != 42 {
		t.Fatalf("stored tasks = %+v, want one Call mom for owner 42", list)
	}
	if *list[0].Note != "Ask about her trip" {
		t.Fatalf("note = %q", *list[0].Note)
	}
}

func TestUpdateScenarioCompletesChosenTask(t *testing.T) {
	f := newFixture(addCallMom, addDentist, "Action: update\nTask: null\nDue date: null\nTime: null\nNote: null", "Action: list")
	f.send(t, 1, "call mom")
	f.send(t, 1, "dentist")

	reply := f.send(t, 1, "I finished one of my tasks")
	if reply.Kind != KindChoose {
		t.Fatalf("reply kind = %s, want choose", reply.Kind)
	}
	want := "Which task should I mark as done? Reply with its number:\n1. Call mom (2025-07-16 14:00)\n2. Dentist (2025-07-17 09:30)"
	if reply.Text != want {
		t.Fatalf("reply = %q, want %q", reply.Text, want)
	}

	reply = f.send(t, 1, "2")
	if reply.Text != `✅ Marked "Dentist" as done.` {
		t.Fatalf("selection reply = %q", reply.Text)
	}
	if _, ok, _ := f.coord.sessions.Pending(context.Background(), 1); ok {
		t.Fatalf("session still pending after selection")
	}
	calls := len(f.provider.requests)

	reply = f.send(t, 1, "what's left?")
	if reply.Kind != KindList || !strings.Contains(reply.Text, "1. Call mom") || strings.Contains(reply.Text, "Dentist") {
		t.Fatalf("list reply = %q, want only Call mom", reply.Text)
	}
	if len(f.provider.requests) != calls+1 {
		t.Fatalf("provider not consulted after returning to idle")
	}
}

func TestSelectionBypassesProviderAndRepromptsOnBadInput(t *testing.T) {
	f := newFixture(addCallMom, "Action: delete")
	f.send(t, 1, "call mom")
	f.send(t, 1, "delete something")
	calls := len(f.provider.requests)

	reply := f.send(t, 1, "the first one")
	if !strings.HasPrefix(reply.Text, "Please reply with a number between 1 and 1") {
		t.Fatalf("reprompt = %q", reply.Text)
	}
	if len(f.provider.requests) != calls {
		t.Fatalf("provider called while a selection was pending")
	}

	reply = f.send(t, 1, "1")
	if reply.Text != `🗑️ Deleted "Call mom".` {
		t.Fatalf("delete reply = %q", reply.Text)
	}
	list, _ := f.store.ListIncomplete(context.Background(), 1)
	if len(list) != 0 {
		t.Fatalf("task not deleted: %+v", list)
	}
}

func TestNothingToSelectAndEmptyList(t *testing.T) {
	f := newFixture("Action: done", "Action: list")
	if reply := f.send(t, 1, "done"); reply.Text != MsgNothingToSelect {
		t.Fatalf("reply = %q, want %q", reply.Text, MsgNothingToSelect)
	}
	if _, ok, _ := f.coord.sessions.Pending(context.Background(), 1); ok {
		t.Fatalf("session opened with no candidates")
	}
	if reply := f.send(t, 1, "list"); reply.Text != MsgNoTasks {
		t.Fatalf("reply = %q, want %q", reply.Text, MsgNoTasks)
	}
}

func TestEmptyTextAndCommands(t *testing.T) {
	f := newFixture(addCallMom, "Action: update")
	if reply := f.send(t, 1, "   "); reply.Text != MsgNeedText {
		t.Fatalf("empty reply = %q", reply.Text)
	}
	if reply := f.send(t, 1, "/start"); reply.Text != MsgGreeting {
		t.Fatalf("/start reply = %q", reply.Text)
	}
	if reply := f.send(t, 1, "/help@taskpal_bot"); !strings.Contains(reply.Text, llm.HelpText) {
		t.Fatalf("/help reply = %q", reply.Text)
	}
	if reply := f.send(t, 1, "/cancel"); reply.Text != MsgNothingPending {
		t.Fatalf("/cancel reply = %q", reply.Text)
	}

	f.send(t, 1, "call mom")
	f.send(t, 1, "mark something done")
	if reply := f.send(t, 1, "/cancel"); reply.Text != MsgCancelled {
		t.Fatalf("/cancel with pending reply = %q", reply.Text)
	}
	if len(f.provider.requests) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(f.provider.requests))
	}
}

func TestProviderFailureIsUnavailable(t *testing.T) {
	f := newFixture()
	f.provider.err = llm.ErrUnavailable
	reply := f.send(t, 1, "add milk")
	if reply.Text != MsgUnavailable || reply.Kind != KindUnavailable {
		t.Fatalf("reply = %+v, want unavailable", reply)
	}
}

func TestCancelledContextIsReturned(t *testing.T) {
	f := newFixture()
	f.provider.err = context.Canceled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.coord.HandleMessage(ctx, 1, "hello"); !errors.Is(err, context.Canceled) {
		t.Fatalf("HandleMessage() error = %v, want context.Canceled", err)
	}
}

func TestMalformedDateOnAdd(t *testing.T) {
	f := newFixture("Action: add\nTask: Pay rent\nDue date: next friday")
	reply := f.send(t, 1, "pay rent next friday")
	want := `I couldn't understand the due date "next friday". Please use YYYY-MM-DD.`
	if reply.Text != want {
		t.Fatalf("reply = %q, want %q", reply.Text, want)
	}
	list, _ := f.store.ListIncomplete(context.Background(), 1)
	if len(list) != 0 {
		t.Fatalf("task stored despite invalid date")
	}
}

func TestConversationRelayAndMemory(t *testing.T) {
	f := newFixture("What time should I remind you?", addCallMom)
	reply := f.send(t, 1, "remind me to call mom")
	if reply.Text != "What time should I remind you?" || reply.Kind != KindRelay {
		t.Fatalf("reply = %+v, want relayed question", reply)
	}
	f.send(t, 1, "2pm")

	second := f.provider.requests[1]
	if len(second.History) != 2 {
		t.Fatalf("history = %+v, want the previous exchange", second.History)
	}
	if second.History[0].Role != llm.RoleUser || second.History[0].Content != "remind me to call mom" {
		t.Fatalf("history[0] = %+v", second.History[0])
	}
	if second.History[1].Role != llm.RoleAssistant {
		t.Fatalf("history[1] role = %s, want assistant", second.History[1].Role)
	}
	if !strings.Contains(second.SystemPrompt, "2025-07-16 (Wednesday)") {
		t.Fatalf("system prompt missing current date")
	}
}

type failingInsert struct {
	*tasks.InMemoryStore
}

func (failingInsert) Insert(context.Context, directive.Directive, int64) (tasks.Task, error) {
	return tasks.Task{}, tasks.ErrPersistence
}

func TestAddFailureStillRelays(t *testing.T) {
	store := tasks.NewInMemoryStore(time.UTC)
	provider := &scriptedProvider{replies: []string{addCallMom}}
	coord := NewCoordinator(failingInsert{store}, selection.NewManager(store, nil), provider, Config{Location: time.UTC})

	reply, err := coord.HandleMessage(context.Background(), 1, "call mom")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if reply.Text != addCallMom {
		t.Fatalf("reply = %q, want model text relayed", reply.Text)
	}
}

func TestMemoryStoresRedactedTurns(t *testing.T) {
	f := newFixture("Noted.")
	f.send(t, 1, "my email is sam@example.com")

	turns, err := f.mem.RecentContext(context.Background(), 1, 10)
	if err != nil || len(turns) != 2 {
		t.Fatalf("RecentContext() = %d turns, %v; want 2", len(turns), err)
	}
	if turns[0].Content != "my email is [REDACTED_EMAIL]" || !turns[0].PIIRedacted {
		t.Fatalf("user turn = %+v, want redacted email", turns[0])
	}
	if turns[1].Content != "Noted." || turns[1].PIIRedacted {
		t.Fatalf("assistant turn = %+v", turns[1])
	}
}
