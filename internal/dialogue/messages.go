package dialogue

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/ent0n29/taskpal/internal/directive"
	"github.com/ent0n29/taskpal/internal/llm"
	"github.com/ent0n29/taskpal/internal/selection"
	"github.com/ent0n29/taskpal/internal/tasks"
)

const (
	MsgNeedText        = "Please send me a text message describing your task."
	MsgUnavailable     = "I am temporarily unavailable. Please try again later."
	MsgNoTasks         = "You have no open tasks. 🎉"
	MsgNothingToSelect = "You have no open tasks to choose from."
	MsgUpdateFailed    = "Sorry, I couldn't update that task. Please try again later."
	MsgListFailed      = "Sorry, I couldn't load your tasks. Please try again later."
	MsgGreeting        = "Hello! I'm your To-Do assistant. Send me tasks to manage!"
	MsgCancelled       = "Okay, cancelled."
	MsgNothingPending  = "There is nothing to cancel."
)

func badDateReply(value string) string {
	return fmt.Sprintf("I couldn't understand the due date %q. Please use YYYY-MM-DD.", value)
}

func helpReply() string {
	return llm.HelpText + "\nCommands: /start, /help, /cancel."
}

func outcomeReply(out selection.Outcome) string {
	if out.Intent == selection.IntentDelete {
		return fmt.Sprintf("🗑️ Deleted \"%s\".", out.Candidate.Description)
	}
	return fmt.Sprintf("✅ Marked \"%s\" as done.", out.Candidate.Description)
}

func selectionPrompt(s selection.Session) string {
	var b strings.Builder
	if s.Intent == selection.IntentDelete {
		b.WriteString("Which task should I delete? Reply with its number:")
	} else {
		b.WriteString("Which task should I mark as done? Reply with its number:")
	}
	writeCandidates(&b, s.Candidates)
	return b.String()
}

func reprompt(s selection.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please reply with a number between 1 and %d, or /cancel.", len(s.Candidates))
	writeCandidates(&b, s.Candidates)
	return b.String()
}

func writeCandidates(b *strings.Builder, list []selection.Candidate) {
	for i, c := range list {
		fmt.Fprintf(b, "\n%d. %s", i+1, c.Description)
		if due := dueLabel(c.DueDate, c.DueTime); due != "" {
			fmt.Fprintf(b, " (%s)", due)
		}
	}
}

// listReply renders open tasks in the order given, which is display order from the store.
func listReply(list []tasks.Task) string {
	if len(list) == 0 {
		return MsgNoTasks
	}
	var b strings.Builder
	b.WriteString("📋 Your open tasks:")
	for i, t := range list {
		fmt.Fprintf(&b, "\n%d. %s", i+1, t.Title())
		if due := dueLabel(t.DueDate, t.DueTime); due != "" {
			fmt.Fprintf(&b, " (%s)", due)
		}
		if t.Note != nil && *t.Note != "" {
			fmt.Fprintf(&b, " — %s", *t.Note)
		}
	}
	return b.String()
}

func dueLabel(date *civil.Date, clock *civil.Time) string {
	switch {
	case date != nil && clock != nil:
		return date.String() + " " + directive.FormatClock(*clock)
	case date != nil:
		return date.String()
	case clock != nil:
		return directive.FormatClock(*clock)
	default:
		return ""
	}
}
