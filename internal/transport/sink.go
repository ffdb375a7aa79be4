// Package transport moves chat text between users and the assistant: inbound Telegram polling and
// the outbound sinks that alerts, digests and replies go through.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ent0n29/taskpal/internal/logging"
)

// ErrNoDelivery is returned by MultiSink when no sink accepted the message.
var ErrNoDelivery = errors.New("message not delivered by any sink")

// Sink delivers one outbound text to an owner. Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, ownerID int64, text string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ownerID int64, text string) error

func (f SinkFunc) Send(ctx context.Context, ownerID int64, text string) error {
	return f(ctx, ownerID, text)
}

type namedSink struct {
	name string
	sink Sink
}

// MultiSink fans a message out to every registered sink and succeeds if any of them did.
type MultiSink struct {
	sinks []namedSink
	log   *slog.Logger
}

func NewMultiSink() *MultiSink {
	return &MultiSink{log: logging.Component("transport")}
}

// Add registers a sink under name; nil sinks are ignored.
func (m *MultiSink) Add(name string, s Sink) {
	if s == nil {
		return
	}
	m.sinks = append(m.sinks, namedSink{name: name, sink: s})
}

func (m *MultiSink) Len() int { return len(m.sinks) }

func (m *MultiSink) Send(ctx context.Context, ownerID int64, text string) error {
	if len(m.sinks) == 0 {
		return fmt.Errorf("%w: no sinks configured", ErrNoDelivery)
	}
	var errs []error
	delivered := false
	for _, ns := range m.sinks {
		if err := ns.sink.Send(ctx, ownerID, text); err != nil {
			if errors.Is(err, ErrNoRecipient) {
				continue
			}
			m.log.Warn("sink delivery failed", "sink", ns.name, "owner_id", ownerID, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", ns.name, err))
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	errs = append([]error{ErrNoDelivery}, errs...)
	return errors.Join(errs...)
}

// ErrNoRecipient is returned by sinks that have nobody to deliver to for an owner, such as a
// websocket hub with no connected client. MultiSink does not count it as a failure.
var ErrNoRecipient = errors.New("no recipient connected")
