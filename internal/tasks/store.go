package tasks

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"

	"github.com/ent0n29/taskpal/internal/directive"
)

var (
	// ErrPersistence wraps every failure reported by the underlying store.
	ErrPersistence = errors.New("task store failure")
	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("task not found in store")
	// ErrNotInsertable is returned by Insert for directives other than add.
	ErrNotInsertable = errors.New("only add directives create tasks")
)

// Store owns the task table. Every mutation is a single-row operation and is idempotent.
type Store interface {
	Insert(ctx context.Context, d directive.Directive, ownerID int64) (Task, error)
	Get(ctx context.Context, id int64) (Task, error)
	// ListIncomplete returns the owner's open tasks in display order.
	ListIncomplete(ctx context.Context, ownerID int64) ([]Task, error)
	// ListSelectable returns the same rows in the same order as ListIncomplete so that
	// numbers shown to the user resolve to the same tasks later.
	ListSelectable(ctx context.Context, ownerID int64) ([]Task, error)
	// ListDueWithin returns unalerted open tasks whose date and time fall in [start, end].
	ListDueWithin(ctx context.Context, start, end time.Time) ([]Task, error)
	// ListDueOn returns open tasks due on date, ordered by time with untimed tasks last.
	ListDueOn(ctx context.Context, date civil.Date) ([]Task, error)
	MarkAlerted(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64, value bool) error
	Delete(ctx context.Context, id int64) error
	Close() error
}
