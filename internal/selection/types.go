package selection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/ent0n29/taskpal/internal/directive"
	"github.com/ent0n29/taskpal/internal/tasks"
)

// Intent is what happens to the chosen candidate.
type Intent string

const (
	IntentComplete Intent = "complete"
	IntentDelete   Intent = "delete"
)

// IntentFor maps a resolved action to the selection intent it opens, if any.
func IntentFor(action directive.Action) (Intent, bool) {
	switch action {
	case directive.ActionUpdate, directive.ActionDone:
		return IntentComplete, true
	case directive.ActionDelete:
		return IntentDelete, true
	default:
		return "", false
	}
}

var (
	ErrNoSession        = errors.New("no pending selection")
	ErrNothingToSelect  = errors.New("no tasks to select from")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrNotANumber       = fmt.Errorf("%w: not a number", ErrInvalidSelection)
	ErrOutOfRange       = fmt.Errorf("%w: out of range", ErrInvalidSelection)
)

// Candidate is a snapshot of a task taken when the user was prompted.
type Candidate struct {
	TaskID      int64       `json:"task_id"`
	Description string      `json:"description"`
	DueDate     *civil.Date `json:"due_date,omitempty"`
	DueTime     *civil.Time `json:"due_time,omitempty"`
}

func candidateOf(t tasks.Task) Candidate {
	return Candidate{
		TaskID:      t.ID,
		Description: t.Title(),
		DueDate:     t.DueDate,
		DueTime:     t.DueTime,
	}
}

// Session is a pending "which task?" prompt for one owner.
type Session struct {
	OwnerID    int64       `json:"owner_id"`
	Intent     Intent      `json:"intent"`
	Candidates []Candidate `json:"candidates"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Outcome reports what a valid selection did.
type Outcome struct {
	Intent    Intent
	Candidate Candidate
	// Applied is false when the repository mutation failed; the session is gone either way.
	Applied bool
}

// Store keeps at most one session per owner.
type Store interface {
	Get(ctx context.Context, ownerID int64) (Session, bool, error)
	Put(ctx context.Context, s Session) error
	Delete(ctx context.Context, ownerID int64) error
}

// Repository is the part of the task store selection needs.
type Repository interface {
	ListSelectable(ctx context.Context, ownerID int64) ([]tasks.Task, error)
	MarkCompleted(ctx context.Context, id int64, value bool) error
	Delete(ctx context.Context, id int64) error
}
