package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/taskpal/internal/directive"
)

const taskColumns = `id, action, task, duedate, duetime, note, userid, alerted, completed`

type PostgresStore struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewPostgresStore connects and makes sure the tasks table exists. Due dates and times are
// stored without zone and interpreted in loc.
func NewPostgresStore(ctx context.Context, databaseURL string, loc *time.Location) (*PostgresStore, error) {
	if loc == nil {
		loc = time.Local
	}
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initTaskSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, loc: loc}, nil
}

func initTaskSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id BIGSERIAL PRIMARY KEY,
			action TEXT NOT NULL,
			task TEXT NULL,
			duedate DATE NULL,
			duetime TIME NULL,
			note TEXT NULL,
			userid BIGINT NOT NULL,
			alerted BOOLEAN NULL DEFAULT FALSE,
			completed BOOLEAN NULL DEFAULT FALSE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_open ON tasks (userid) WHERE completed IS NOT TRUE;`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks (duedate, duetime);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init task schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, d directive.Directive, ownerID int64) (Task, error) {
	if d.Action != directive.ActionAdd {
		return Task{}, fmt.Errorf("insert %q: %w", d.Action, ErrNotInsertable)
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (action, task, duedate, duetime, note, userid)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+taskColumns,
		string(d.Action),
		d.Task,
		toPgDate(d.DueDate),
		toPgTime(d.DueTime),
		d.Note,
		ownerID,
	)
	task, err := scanTask(row)
	if err != nil {
		return Task{}, fmt.Errorf("%w: insert task: %w", ErrPersistence, err)
	}
	return task, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("%w: get task: %w", ErrPersistence, err)
	}
	return task, nil
}

func (s *PostgresStore) ListIncomplete(ctx context.Context, ownerID int64) ([]Task, error) {
	return s.query(ctx, "list incomplete",
		`SELECT `+taskColumns+` FROM tasks
		  WHERE userid=$1 AND completed IS NOT TRUE
		  ORDER BY duedate ASC NULLS LAST, duetime ASC NULLS LAST, id ASC`,
		ownerID,
	)
}

func (s *PostgresStore) ListSelectable(ctx context.Context, ownerID int64) ([]Task, error) {
	return s.ListIncomplete(ctx, ownerID)
}

func (s *PostgresStore) ListDueWithin(ctx context.Context, start, end time.Time) ([]Task, error) {
	return s.query(ctx, "list due within",
		`SELECT `+taskColumns+` FROM tasks
		  WHERE duedate IS NOT NULL AND duetime IS NOT NULL
		    AND alerted IS NOT TRUE AND completed IS NOT TRUE
		    AND (duedate + duetime) BETWEEN $1 AND $2
		  ORDER BY duedate ASC, duetime ASC, id ASC`,
		s.wallClock(start),
		s.wallClock(end),
	)
}

func (s *PostgresStore) ListDueOn(ctx context.Context, date civil.Date) ([]Task, error) {
	return s.query(ctx, "list due on",
		`SELECT `+taskColumns+` FROM tasks
		  WHERE duedate=$1 AND completed IS NOT TRUE
		  ORDER BY duetime ASC NULLS LAST, id ASC`,
		toPgDate(&date),
	)
}

func (s *PostgresStore) MarkAlerted(ctx context.Context, id int64) error {
	return s.exec(ctx, "mark alerted", `UPDATE tasks SET alerted=TRUE WHERE id=$1`, id)
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, id int64, value bool) error {
	return s.exec(ctx, "mark completed", `UPDATE tasks SET completed=$2 WHERE id=$1`, id, value)
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	return s.exec(ctx, "delete task", `DELETE FROM tasks WHERE id=$1`, id)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) exec(ctx context.Context, op, sql string, args ...any) error {
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
	}
	return nil
}

func (s *PostgresStore) query(ctx context.Context, op, sql string, args ...any) ([]Task, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
	}
	defer rows.Close()

	out := make([]Task, 0, 8)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan task row: %w", ErrPersistence, err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate task rows: %w", ErrPersistence, err)
	}
	return out, nil
}

// wallClock converts an instant to the zone-less timestamp the table's date+time columns produce.
func (s *PostgresStore) wallClock(t time.Time) pgtype.Timestamp {
	local := t.In(s.loc)
	naive := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), time.UTC)
	return pgtype.Timestamp{Time: naive, Valid: true}
}

func scanTask(row pgx.Row) (Task, error) {
	var (
		task      Task
		action    string
		desc      pgtype.Text
		dueDate   pgtype.Date
		dueTime   pgtype.Time
		note      pgtype.Text
		alerted   pgtype.Bool
		completed pgtype.Bool
	)
	if err := row.Scan(
		&task.ID,
		&action,
		&desc,
		&dueDate,
		&dueTime,
		&note,
		&task.OwnerID,
		&alerted,
		&completed,
	); err != nil {
		return Task{}, err
	}
	task.Action = directive.Action(action)
	task.Description = fromPgText(desc)
	task.DueDate = fromPgDate(dueDate)
	task.DueTime = fromPgTime(dueTime)
	task.Note = fromPgText(note)
	task.Alerted = alerted.Valid && alerted.Bool
	task.Completed = completed.Valid && completed.Bool
	return task, nil
}

func toPgDate(d *civil.Date) pgtype.Date {
	if d == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func fromPgDate(d pgtype.Date) *civil.Date {
	if !d.Valid {
		return nil
	}
	out := civil.DateOf(d.Time)
	return &out
}

func toPgTime(t *civil.Time) pgtype.Time {
	if t == nil {
		return pgtype.Time{}
	}
	return pgtype.Time{Microseconds: clockNanos(*t) / 1000, Valid: true}
}

func fromPgTime(t pgtype.Time) *civil.Time {
	if !t.Valid {
		return nil
	}
	us := t.Microseconds
	out := civil.Time{
		Hour:       int(us / 3_600_000_000),
		Minute:     int(us / 60_000_000 % 60),
		Second:     int(us / 1_000_000 % 60),
		Nanosecond: int(us%1_000_000) * 1000,
	}
	return &out
}

func fromPgText(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	v := t.String
	return &v
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
