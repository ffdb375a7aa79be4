// Package directive turns a completion provider's free-text reply into a structured task directive.
//
// A reply is actionable when it carries an "Action:" line. Every other field is optional and is
// extracted independently of line order; the literal value "null" means the field is absent.
package directive

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
)

// Action is the verb of a directive.
type Action string

const (
	ActionAdd    Action = "add"
	ActionList   Action = "list"
	ActionDone   Action = "done"
	ActionDelete Action = "delete"
	ActionUpdate Action = "update"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionAdd, ActionList, ActionDone, ActionDelete, ActionUpdate:
		return true
	default:
		return false
	}
}

var (
	// ErrNoAction means the text has no action line and is ordinary conversation.
	ErrNoAction = errors.New("no action line")
	// ErrUnknownAction means the action line names a verb outside the supported set.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidDueDate means an add directive carries a date that is not YYYY-MM-DD.
	ErrInvalidDueDate = errors.New("invalid due date")
)

// FieldError records which field failed validation and its raw value.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Directive is the structured form of one model reply.
type Directive struct {
	Action  Action
	Task    *string
	DueDate *civil.Date
	DueTime *civil.Time
	Note    *string
}

// Result is a resolved directive plus recoverable problems found while resolving it.
type Result struct {
	Directive Directive
	Warnings  []string
}

func (d Directive) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "action=%s", d.Action)
	fmt.Fprintf(&b, " task=%s", optString(d.Task))
	if d.DueDate != nil {
		fmt.Fprintf(&b, " due_date=%s", d.DueDate.String())
	} else {
		b.WriteString(" due_date=<none>")
	}
	if d.DueTime != nil {
		fmt.Fprintf(&b, " due_time=%s", FormatClock(*d.DueTime))
	} else {
		b.WriteString(" due_time=<none>")
	}
	fmt.Fprintf(&b, " note=%s", optString(d.Note))
	return b.String()
}

// FormatClock renders a time of day as 24-hour HH:MM.
func FormatClock(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func optString(s *string) string {
	if s == nil {
		return "<none>"
	}
	return fmt.Sprintf("%q", *s)
}
