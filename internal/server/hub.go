package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
)

// Event types pushed over /ws.
const (
	EventVerdict    = "verdict"
	EventEscalation = "escalation"
)

// Event is one message on the live feed.
type Event struct {
	Type      string                    `json:"type"`
	Verdict   *domain.Verdict           `json:"verdict,omitempty"`
	Escalated bool                      `json:"escalated,omitempty"`
	Outcome   *domain.EscalationOutcome `json:"outcome,omitempty"`
}

const (
	clientBuffer = 16
	writeTimeout = 5 * time.Second
)

type client struct {
	send chan Event
}

// Hub fans pipeline events out to WebSocket clients. It implements
// engine.Observer. Slow clients drop events rather than block the pipeline.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	origins []string
	log     *logger.Logger
}

// NewHub creates an empty hub. origins are passed to the WebSocket origin
// check; nil allows same-origin only.
func NewHub(origins []string, log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		origins: origins,
		log:     log,
	}
}

// OnVerdict implements engine.Observer.
func (h *Hub) OnVerdict(v domain.Verdict, escalated bool) {
	h.broadcast(Event{Type: EventVerdict, Verdict: &v, Escalated: escalated})
}

// OnEscalation implements engine.Observer.
func (h *Hub) OnEscalation(o domain.EscalationOutcome) {
	h.broadcast(Event{Type: EventEscalation, Outcome: &o})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- evt:
		default:
			h.log.Debug("ws: client buffer full, dropping %s event", evt.Type)
		}
	}
}

// ServeHTTP upgrades the connection and streams events until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Warn("ws: accept failed: %v", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	c := &client{send: make(chan Event, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()

	h.log.Info("ws: client connected from %s", r.RemoteAddr)
	// The feed is one-way; CloseRead handles control frames and cancels
	// ctx when the peer disconnects.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			h.log.Debug("ws: client %s gone", r.RemoteAddr)
			return
		case evt := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, evt)
			cancel()
			if err != nil {
				h.log.Debug("ws: write to %s failed: %v", r.RemoteAddr, err)
				return
			}
		}
	}
}
