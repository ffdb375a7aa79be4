package httpapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/taskpal/internal/observability"
	"github.com/ent0n29/taskpal/internal/protocol"
	"github.com/ent0n29/taskpal/internal/transport"
)

const clientQueueSize = 64

type client struct {
	id       string
	ownerID  int64
	outbound chan any
}

// Hub tracks connected websocket chat clients by owner and doubles as an outbound sink for
// alerts and digests.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[string]*client
	metrics *observability.Metrics
}

func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{clients: make(map[int64]map[string]*client), metrics: metrics}
}

func (h *Hub) register(ownerID int64) *client {
	c := &client{id: uuid.NewString(), ownerID: ownerID, outbound: make(chan any, clientQueueSize)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[ownerID] == nil {
		h.clients[ownerID] = make(map[string]*client)
	}
	h.clients[ownerID][c.id] = c
	if h.metrics != nil {
		h.metrics.WSClients.Inc()
	}
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	byID := h.clients[c.ownerID]
	if _, ok := byID[c.id]; !ok {
		return
	}
	delete(byID, c.id)
	if len(byID) == 0 {
		delete(h.clients, c.ownerID)
	}
	if h.metrics != nil {
		h.metrics.WSClients.Dec()
	}
}

// Connected returns how many clients the owner has open.
func (h *Hub) Connected(ownerID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[ownerID])
}

// Send queues a notification for every client of the owner. It returns transport.ErrNoRecipient
// when the owner has none, and an error if every client's queue was full.
func (h *Hub) Send(_ context.Context, ownerID int64, text string) error {
	msg := protocol.Notification{Type: protocol.TypeNotification, Text: text, TSMs: time.Now().UnixMilli()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	byID := h.clients[ownerID]
	if len(byID) == 0 {
		return transport.ErrNoRecipient
	}
	queued := 0
	for _, c := range byID {
		select {
		case c.outbound <- msg:
			queued++
		default:
		}
	}
	if queued == 0 {
		return fmt.Errorf("websocket queues full for owner %d", ownerID)
	}
	return nil
}
