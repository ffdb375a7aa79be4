package tasks

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/ent0n29/taskpal/internal/directive"
)

// Task is one persisted row of a user's task list.
type Task struct {
	ID          int64            `json:"id"`
	Action      directive.Action `json:"action"`
	Description *string          `json:"task,omitempty"`
	DueDate     *civil.Date      `json:"due_date,omitempty"`
	DueTime     *civil.Time      `json:"due_time,omitempty"`
	Note        *string          `json:"note,omitempty"`
	OwnerID     int64            `json:"user_id"`
	Alerted     bool             `json:"alerted"`
	Completed   bool             `json:"completed"`
}

// Title returns the description, or a placeholder for tasks saved without one.
func (t Task) Title() string {
	if t.Description == nil || *t.Description == "" {
		return "(untitled task)"
	}
	return *t.Description
}

// DueAt combines date and time in loc. It reports false unless both are set.
func (t Task) DueAt(loc *time.Location) (time.Time, bool) {
	if t.DueDate == nil || t.DueTime == nil {
		return time.Time{}, false
	}
	return civil.DateTime{Date: *t.DueDate, Time: *t.DueTime}.In(loc), true
}

func (t Task) clone() Task {
	out := t
	out.Description = cloneString(t.Description)
	out.Note = cloneString(t.Note)
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	if t.DueTime != nil {
		tm := *t.DueTime
		out.DueTime = &tm
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
