// Package scheduler runs the two background loops: upcoming-task alerts and the evening digest of
// tomorrow's tasks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/ent0n29/taskpal/internal/logging"
	"github.com/ent0n29/taskpal/internal/observability"
	"github.com/ent0n29/taskpal/internal/tasks"
	"github.com/ent0n29/taskpal/internal/transport"
)

// Store is the part of the task repository the loops read and mark.
type Store interface {
	ListDueWithin(ctx context.Context, start, end time.Time) ([]tasks.Task, error)
	ListDueOn(ctx context.Context, date civil.Date) ([]tasks.Task, error)
	MarkAlerted(ctx context.Context, id int64) error
}

type Config struct {
	AlertPeriod  time.Duration
	AlertWindow  time.Duration
	DigestHour   int
	DigestMinute int
	RetryBackoff time.Duration
	Location     *time.Location
	Clock        Clock
	Metrics      *observability.Metrics
	// ShutdownGrace is how long a pass already in flight may keep using the store and sinks
	// after Run's context is cancelled. Zero cancels it immediately.
	ShutdownGrace time.Duration
}

type Scheduler struct {
	store   Store
	sink    transport.Sink
	cfg     Config
	clock   Clock
	log     *slog.Logger
	metrics *observability.Metrics
}

func New(store Store, sink transport.Sink, cfg Config) *Scheduler {
	if cfg.AlertPeriod <= 0 {
		cfg.AlertPeriod = 2 * time.Hour
	}
	if cfg.AlertWindow <= 0 {
		cfg.AlertWindow = 2 * time.Hour
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{
		store:   store,
		sink:    sink,
		cfg:     cfg,
		clock:   clock,
		log:     logging.Component("scheduler"),
		metrics: cfg.Metrics,
	}
}

// Run starts the alert and digest loops and blocks until ctx is cancelled and both have returned.
// Cancelling ctx ends every wait at once; store calls and sends already in flight keep running on a
// separate context until they finish or ShutdownGrace runs out.
func (s *Scheduler) Run(ctx context.Context) {
	work, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	loopsDone := make(chan struct{})
	go func() {
		select {
		case <-loopsDone:
			return
		case <-ctx.Done():
		}
		grace := time.NewTimer(s.cfg.ShutdownGrace)
		defer grace.Stop()
		select {
		case <-loopsDone:
		case <-grace.C:
			s.log.Warn("shutdown grace expired, cancelling in-flight notifications")
			cancelWork()
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.alertLoop(ctx, work)
	}()
	go func() {
		defer wg.Done()
		s.digestLoop(ctx, work)
	}()
	s.log.Info("scheduler started",
		"alert_period", s.cfg.AlertPeriod,
		"alert_window", s.cfg.AlertWindow,
		"digest_at", fmt.Sprintf("%02d:%02d", s.cfg.DigestHour, s.cfg.DigestMinute),
	)
	wg.Wait()
	close(loopsDone)
	s.log.Info("scheduler stopped")
}

// alertLoop waits on stop and runs each pass on work.
func (s *Scheduler) alertLoop(stop, work context.Context) {
	for {
		if stop.Err() != nil {
			return
		}
		s.runAlertPass(work)
		if !s.sleep(stop, s.cfg.AlertPeriod) {
			return
		}
	}
}

// runAlertPass notifies owners of tasks due within the window and marks each one alerted once its
// message went out. A failed send leaves the task eligible for the next pass.
func (s *Scheduler) runAlertPass(ctx context.Context) {
	now := s.clock.Now().In(s.cfg.Location)
	due, err := s.store.ListDueWithin(ctx, now, now.Add(s.cfg.AlertWindow))
	if err != nil {
		s.log.Error("list upcoming tasks", "err", err)
		s.metrics.IncStoreError("list_due_within")
		return
	}
	for _, t := range due {
		at, ok := t.DueAt(s.cfg.Location)
		if !ok {
			continue
		}
		if err := s.sink.Send(ctx, t.OwnerID, FormatAlert(t, at.Sub(now))); err != nil {
			s.log.Warn("send alert", "task_id", t.ID, "owner_id", t.OwnerID, "err", err)
			s.metrics.IncAlert("failed")
			continue
		}
		if err := s.store.MarkAlerted(ctx, t.ID); err != nil {
			s.log.Error("mark alerted", "task_id", t.ID, "err", err)
			s.metrics.IncStoreError("mark_alerted")
		}
		s.metrics.IncAlert("sent")
	}
}

func (s *Scheduler) digestLoop(stop, work context.Context) {
	for {
		now := s.clock.Now().In(s.cfg.Location)
		trigger := nextTrigger(now, s.cfg.DigestHour, s.cfg.DigestMinute)
		if !s.sleep(stop, trigger.Sub(now)) {
			return
		}

		date := civil.DateOf(trigger).AddDays(1)
		delivered := make(map[int64]bool)
		for {
			err := s.sendDigests(work, date, delivered)
			if err == nil {
				s.metrics.IncDigest("sent")
				break
			}
			if stop.Err() != nil || work.Err() != nil {
				return
			}
			s.log.Warn("daily digest failed, retrying", "date", date, "backoff", s.cfg.RetryBackoff, "err", err)
			s.metrics.IncDigest("failed")
			if !s.sleep(stop, s.cfg.RetryBackoff) {
				return
			}
		}
	}
}

// sendDigests sends one digest per owner with tasks on date. Owners already in delivered are
// skipped so a retry only reaches the ones that failed.
func (s *Scheduler) sendDigests(ctx context.Context, date civil.Date, delivered map[int64]bool) error {
	list, err := s.store.ListDueOn(ctx, date)
	if err != nil {
		s.metrics.IncStoreError("list_due_on")
		return fmt.Errorf("list tasks due %s: %w", date, err)
	}

	byOwner := make(map[int64][]tasks.Task)
	for _, t := range list {
		byOwner[t.OwnerID] = append(byOwner[t.OwnerID], t)
	}
	owners := make([]int64, 0, len(byOwner))
	for id := range byOwner {
		owners = append(owners, id)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })

	var errs []error
	for _, owner := range owners {
		if delivered[owner] {
			continue
		}
		if err := s.sink.Send(ctx, owner, FormatDigest(date, byOwner[owner])); err != nil {
			errs = append(errs, fmt.Errorf("owner %d: %w", owner, err))
			continue
		}
		delivered[owner] = true
	}
	return errors.Join(errs...)
}

// sleep waits d on the clock. It reports false if ctx was cancelled first.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}

// nextTrigger is today at hour:minute if that is strictly after now, otherwise tomorrow.
func nextTrigger(now time.Time, hour, minute int) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !t.After(now) {
		t = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return t
}
