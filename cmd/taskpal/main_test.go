package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ent0n29/taskpal/internal/directive"
)

func TestPrintResolvedShowsDirectiveAndWarnings(t *testing.T) {
	var out bytes.Buffer
	reply := "✅ Action: add\n📝 Task: Buy milk\n📅 Due Date: 2025-07-16\n⏰ Time: 25:99\n"
	if err := printResolved(&out, reply); err != nil {
		t.Fatalf("printResolved() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output lines = %q, want directive and one warning", lines)
	}
	want := `action=add task="Buy milk" due_date=2025-07-16 due_time=<none> note=<none>`
	if lines[0] != want {
		t.Fatalf("directive line = %q, want %q", lines[0], want)
	}
	if !strings.HasPrefix(lines[1], "warning: ") || !strings.Contains(lines[1], "25:99") {
		t.Fatalf("warning line = %q", lines[1])
	}
}

func TestPrintResolvedWithoutAction(t *testing.T) {
	err := printResolved(&bytes.Buffer{}, "Sure, I can help with that.")
	if !errors.Is(err, directive.ErrNoAction) {
		t.Fatalf("printResolved() error = %v, want ErrNoAction", err)
	}
}

func TestResolveCommandReadsStdin(t *testing.T) {
	cmd := resolveCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader("Action: list\n"))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "action=list ") {
		t.Fatalf("output = %q", out.String())
	}
}
