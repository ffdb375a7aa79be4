// Package dialogue routes one inbound chat message to the right component and builds the reply.
package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/taskpal/internal/directive"
	"github.com/ent0n29/taskpal/internal/llm"
	"github.com/ent0n29/taskpal/internal/logging"
	"github.com/ent0n29/taskpal/internal/memory"
	"github.com/ent0n29/taskpal/internal/observability"
	"github.com/ent0n29/taskpal/internal/policy"
	"github.com/ent0n29/taskpal/internal/reliability"
	"github.com/ent0n29/taskpal/internal/selection"
	"github.com/ent0n29/taskpal/internal/tasks"
)

// Kind says which path produced a reply.
type Kind string

const (
	KindPrompt      Kind = "prompt"
	KindCommand     Kind = "command"
	KindSelection   Kind = "selection"
	KindRelay       Kind = "relay"
	KindList        Kind = "list"
	KindChoose      Kind = "choose"
	KindUnavailable Kind = "unavailable"
	KindError       Kind = "error"
)

type Reply struct {
	Text string `json:"reply"`
	Kind Kind   `json:"kind"`
}

// Repository is the part of the task store the coordinator needs.
type Repository interface {
	Insert(ctx context.Context, d directive.Directive, ownerID int64) (tasks.Task, error)
	ListIncomplete(ctx context.Context, ownerID int64) ([]tasks.Task, error)
}

type Config struct {
	Location     *time.Location
	HistoryTurns int
	Memory       memory.Store
	Metrics      *observability.Metrics
	Now          func() time.Time
}

type Coordinator struct {
	repo     Repository
	sessions *selection.Manager
	provider llm.Provider
	memory   memory.Store
	loc      *time.Location
	history  int
	now      func() time.Time
	metrics  *observability.Metrics
	log      *slog.Logger
}

func NewCoordinator(repo Repository, sessions *selection.Manager, provider llm.Provider, cfg Config) *Coordinator {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		repo:     repo,
		sessions: sessions,
		provider: provider,
		memory:   cfg.Memory,
		loc:      cfg.Location,
		history:  cfg.HistoryTurns,
		now:      cfg.Now,
		metrics:  cfg.Metrics,
		log:      logging.Component("dialogue"),
	}
}

// HandleMessage produces the reply for one inbound message. The returned error is non-nil only
// when ctx was cancelled; every other failure is turned into a user-facing reply.
func (c *Coordinator) HandleMessage(ctx context.Context, ownerID int64, text string) (Reply, error) {
	start := time.Now()
	defer c.metrics.ObserveStage("reply", start)

	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{Text: MsgNeedText, Kind: KindPrompt}, nil
	}
	if strings.HasPrefix(text, "/") {
		return c.handleCommand(ctx, ownerID, text), nil
	}

	pending, ok, err := c.sessions.Pending(ctx, ownerID)
	if err != nil {
		c.log.Error("load pending selection", "owner_id", ownerID, "err", err)
		return Reply{Text: MsgUpdateFailed, Kind: KindError}, nil
	}
	if ok {
		if reply, handled := c.handleSelection(ctx, ownerID, pending, text); handled {
			return reply, nil
		}
	}

	return c.handleConversation(ctx, ownerID, text)
}

func (c *Coordinator) handleCommand(ctx context.Context, ownerID int64, text string) Reply {
	cmd := strings.ToLower(strings.Fields(text)[0])
	// Telegram appends the bot name in groups: /help@taskpal_bot.
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	switch cmd {
	case "/start":
		return Reply{Text: MsgGreeting, Kind: KindCommand}
	case "/cancel":
		cancelled, err := c.sessions.Cancel(ctx, ownerID)
		if err != nil {
			c.log.Error("cancel selection", "owner_id", ownerID, "err", err)
			return Reply{Text: MsgUpdateFailed, Kind: KindError}
		}
		if !cancelled {
			return Reply{Text: MsgNothingPending, Kind: KindCommand}
		}
		c.metrics.IncSelection("cancelled")
		return Reply{Text: MsgCancelled, Kind: KindCommand}
	default:
		return Reply{Text: helpReply(), Kind: KindCommand}
	}
}

// handleSelection applies text to the pending session. It reports false only when the session
// disappeared between Pending and Select, so the message is handled as conversation instead.
func (c *Coordinator) handleSelection(ctx context.Context, ownerID int64, pending selection.Session, text string) (Reply, bool) {
	out, err := c.sessions.Select(ctx, ownerID, text)
	switch {
	case err == nil:
		c.metrics.IncSelection("applied")
		return Reply{Text: outcomeReply(out), Kind: KindSelection}, true
	case errors.Is(err, selection.ErrNoSession):
		return Reply{}, false
	case errors.Is(err, selection.ErrInvalidSelection):
		c.metrics.IncSelection("invalid")
		return Reply{Text: reprompt(pending), Kind: KindSelection}, true
	default:
		c.log.Error("apply selection", "owner_id", ownerID, "task_id", out.Candidate.TaskID, "err", err)
		c.metrics.IncSelection("failed")
		c.metrics.IncStoreError("selection")
		return Reply{Text: MsgUpdateFailed, Kind: KindError}, true
	}
}

func (c *Coordinator) handleConversation(ctx context.Context, ownerID int64, text string) (Reply, error) {
	req := llm.Request{
		SystemPrompt: llm.SystemPrompt(c.now().In(c.loc)),
		UserText:     text,
		History:      c.recentHistory(ctx, ownerID),
	}

	started := time.Now()
	raw, err := c.provider.Complete(ctx, req)
	c.metrics.ObserveCompletion(time.Since(started))
	if err != nil {
		if reliability.IsCancellation(err) && ctx.Err() != nil {
			return Reply{}, err
		}
		c.log.Warn("completion failed", "owner_id", ownerID, "provider", c.provider.Name(), "err", err)
		c.metrics.IncProviderError(c.provider.Name())
		return Reply{Text: MsgUnavailable, Kind: KindUnavailable}, nil
	}

	c.remember(ctx, ownerID, memory.RoleUser, text)
	c.remember(ctx, ownerID, memory.RoleAssistant, raw)

	res, err := directive.Resolve(raw)
	if err != nil {
		var fe *directive.FieldError
		switch {
		case errors.As(err, &fe) && errors.Is(err, directive.ErrInvalidDueDate):
			c.metrics.IncDirective("invalid")
			return Reply{Text: badDateReply(fe.Value), Kind: KindRelay}, nil
		case errors.Is(err, directive.ErrUnknownAction):
			c.log.Info("model returned unknown action", "owner_id", ownerID, "err", err)
		}
		return Reply{Text: raw, Kind: KindRelay}, nil
	}
	for _, w := range res.Warnings {
		c.log.Info("directive warning", "owner_id", ownerID, "warning", w)
	}

	d := res.Directive
	c.metrics.IncDirective(string(d.Action))
	switch d.Action {
	case directive.ActionAdd:
		// The model text is relayed even if the insert fails; the user is not told.
		if task, err := c.repo.Insert(ctx, d, ownerID); err != nil {
			c.log.Error("insert task", "owner_id", ownerID, "directive", d.String(), "err", err)
			c.metrics.IncStoreError("insert")
		} else {
			c.log.Info("task added", "owner_id", ownerID, "task_id", task.ID)
		}
		return Reply{Text: raw, Kind: KindRelay}, nil

	case directive.ActionList:
		list, err := c.repo.ListIncomplete(ctx, ownerID)
		if err != nil {
			c.log.Error("list tasks", "owner_id", ownerID, "err", err)
			c.metrics.IncStoreError("list_incomplete")
			return Reply{Text: MsgListFailed, Kind: KindError}, nil
		}
		return Reply{Text: listReply(list), Kind: KindList}, nil
	}

	intent, ok := selection.IntentFor(d.Action)
	if !ok {
		return Reply{Text: raw, Kind: KindRelay}, nil
	}
	sess, err := c.sessions.Begin(ctx, ownerID, intent)
	switch {
	case errors.Is(err, selection.ErrNothingToSelect):
		return Reply{Text: MsgNothingToSelect, Kind: KindChoose}, nil
	case err != nil:
		c.log.Error("begin selection", "owner_id", ownerID, "intent", intent, "err", err)
		c.metrics.IncStoreError("list_selectable")
		return Reply{Text: MsgListFailed, Kind: KindError}, nil
	}
	c.metrics.IncSelection("opened")
	return Reply{Text: selectionPrompt(sess), Kind: KindChoose}, nil
}

func (c *Coordinator) recentHistory(ctx context.Context, ownerID int64) []llm.Turn {
	if c.memory == nil || c.history <= 0 {
		return nil
	}
	records, err := c.memory.RecentContext(ctx, ownerID, c.history)
	if err != nil {
		c.log.Warn("load conversation memory", "owner_id", ownerID, "err", err)
		return nil
	}
	turns := make([]llm.Turn, 0, len(records))
	for _, r := range records {
		role := llm.RoleUser
		if r.Role == memory.RoleAssistant {
			role = llm.RoleAssistant
		}
		turns = append(turns, llm.Turn{Role: role, Content: r.Content})
	}
	return turns
}

func (c *Coordinator) remember(ctx context.Context, ownerID int64, role, content string) {
	if c.memory == nil {
		return
	}
	redacted, changed := policy.RedactPII(content)
	record := memory.TurnRecord{OwnerID: ownerID, Role: role, Content: redacted, PIIRedacted: changed}
	if err := c.memory.SaveTurn(ctx, record); err != nil {
		c.log.Warn("save conversation turn", "owner_id", ownerID, "role", role, "err", err)
	}
}
