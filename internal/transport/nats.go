package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ent0n29/taskpal/internal/logging"
)

const notificationSubjectPrefix = "taskpal.notifications."

// Notification is the JSON payload published for every outbound message.
type Notification struct {
	OwnerID   int64  `json:"owner_id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// NATSSink publishes outbound messages so other services (push gateways, audit) can consume them.
type NATSSink struct {
	nc  *nats.Conn
	log *slog.Logger
}

func ConnectNATS(url string) (*nats.Conn, error) {
	log := logging.Component("nats")
	nc, err := nats.Connect(url,
		nats.Name("taskpal"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

func NewNATSSink(nc *nats.Conn) *NATSSink {
	return &NATSSink{nc: nc, log: logging.Component("nats_sink")}
}

func (s *NATSSink) Send(ctx context.Context, ownerID int64, text string) error {
	subject, data, err := encodeNotification(ownerID, text, time.Now())
	if err != nil {
		return err
	}
	if err := s.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	s.log.DebugContext(ctx, "notification published", "subject", subject)
	return nil
}

// Close drains pending publishes and closes the connection.
func (s *NATSSink) Close() error {
	return s.nc.Drain()
}

func encodeNotification(ownerID int64, text string, now time.Time) (string, []byte, error) {
	data, err := json.Marshal(Notification{OwnerID: ownerID, Text: text, Timestamp: now.Unix()})
	if err != nil {
		return "", nil, fmt.Errorf("marshal notification: %w", err)
	}
	return fmt.Sprintf("%s%d", notificationSubjectPrefix, ownerID), data, nil
}
