package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/taskpal/internal/config"
	"github.com/ent0n29/taskpal/internal/dialogue"
	"github.com/ent0n29/taskpal/internal/logging"
	"github.com/ent0n29/taskpal/internal/observability"
	"github.com/ent0n29/taskpal/internal/protocol"
	"github.com/ent0n29/taskpal/internal/tasks"
)

// Chat handles one inbound message; *dialogue.Coordinator implements it.
type Chat interface {
	HandleMessage(ctx context.Context, ownerID int64, text string) (dialogue.Reply, error)
}

// TaskLister reads an owner's open tasks in display order.
type TaskLister interface {
	ListIncomplete(ctx context.Context, ownerID int64) ([]tasks.Task, error)
}

// ReadyCheck reports whether a backing dependency is usable.
type ReadyCheck func(ctx context.Context) error

type Server struct {
	cfg      config.Config
	chat     Chat
	tasks    TaskLister
	hub      *Hub
	metrics  *observability.Metrics
	checks   map[string]ReadyCheck
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func New(cfg config.Config, chat Chat, lister TaskLister, hub *Hub, metrics *observability.Metrics) *Server {
	if hub == nil {
		hub = NewHub(metrics)
	}
	return &Server{
		cfg:     cfg,
		chat:    chat,
		tasks:   lister,
		hub:     hub,
		metrics: metrics,
		checks:  make(map[string]ReadyCheck),
		log:     logging.Component("httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// AddReadyCheck registers a dependency probed by /readyz.
func (s *Server) AddReadyCheck(name string, check ReadyCheck) {
	s.checks[name] = check
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/messages", s.handleMessage)
	r.Get("/v1/tasks", s.handleListTasks)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	respondJSON(w, status, map[string]any{"status": state, "checks": results})
}

type messageRequest struct {
	OwnerID *int64 `json:"owner_id"`
	Text    string `json:"text"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.OwnerID == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "owner_id is required")
		return
	}
	s.metrics.IncInbound("http")

	reply, err := s.chat.HandleMessage(r.Context(), *req.OwnerID, req.Text)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "cancelled", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_owner_id", err.Error())
		return
	}
	list, err := s.tasks.ListIncomplete(r.Context(), ownerID)
	if err != nil {
		s.log.Error("list tasks", "owner_id", ownerID, "err", err)
		s.metrics.IncStoreError("list_incomplete")
		respondError(w, http.StatusInternalServerError, "store_error", "could not load tasks")
		return
	}
	if list == nil {
		list = []tasks.Task{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"owner_id": ownerID, "tasks": list})
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_owner_id", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	c := s.hub.register(ownerID)
	defer s.hub.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan protocol.UserText, 16)
	handlerDone := make(chan struct{})
	go func() {
		defer close(handlerDone)
		s.runChat(ctx, ownerID, inbound, c.outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-c.outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	enqueue(c.outbound, protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: "connected"})

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			enqueue(c.outbound, protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Source: "gateway",
				Detail: err.Error(),
			})
			continue
		}
		msg, ok := parsed.(protocol.UserText)
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- msg:
		}
	}

	cancel()
	close(inbound)
	<-handlerDone
	<-writerDone
}

// runChat answers one connection's messages in arrival order.
func (s *Server) runChat(ctx context.Context, ownerID int64, inbound <-chan protocol.UserText, outbound chan<- any) {
	for msg := range inbound {
		s.metrics.IncInbound("websocket")
		reply, err := s.chat.HandleMessage(ctx, ownerID, msg.Text)
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case outbound <- protocol.AssistantReply{
			Type:    protocol.TypeAssistantReply,
			ReplyTo: msg.ID,
			Text:    reply.Text,
			Kind:    string(reply.Kind),
		}:
		}
	}
}

// enqueue drops msg if the connection's queue is saturated; writes stay single-threaded.
func enqueue(outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	default:
	}
}

func ownerFromQuery(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	if raw == "" {
		return 0, errors.New("query parameter owner_id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("owner_id must be an integer")
	}
	return id, nil
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
