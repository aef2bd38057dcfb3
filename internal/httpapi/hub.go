package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sentineloop/incident-agent/internal/eventlog"
	"github.com/sentineloop/incident-agent/internal/metrics"
)

const (
	pushPollInterval = time.Second
	heartbeatInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict to configured origins once a UI deployment target
	// is known; webhook endpoint security is an explicit non-goal for
	// now but this one is worth tightening first.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// pushEvent is one message the websocket feed emits, a coarsened
// projection of an eventlog.Event onto the five UI-facing event types.
type pushEvent struct {
	Type       string    `json:"type"`
	IncidentID string    `json:"incident_id"`
	Detail     string    `json:"detail"`
	Timestamp  time.Time `json:"timestamp"`
}

// pushTypeFor maps an eventlog.Kind onto the UI's push event vocabulary.
// Event kinds with no UI-facing meaning (snapshots, compensation,
// backtracks, suggested facts) return ok=false and are dropped.
func pushTypeFor(kind eventlog.Kind) (string, bool) {
	switch kind {
	case eventlog.KindFactAsserted, eventlog.KindFactRetracted:
		return "beliefs-updated", true
	case eventlog.KindPlanSelected:
		return "plan-selected", true
	case eventlog.KindActionResult:
		return "action-completed", true
	case eventlog.KindEscalated:
		return "escalation-required", true
	case eventlog.KindResolved:
		return "incident-resolved", true
	default:
		return "", false
	}
}

// wsConn is one connected websocket client: a send buffer plus a
// cancelable context, mirroring the teacher's WSConnection.
type wsConn struct {
	conn   *websocket.Conn
	send   chan pushEvent
	ctx    context.Context
	cancel context.CancelFunc
}

// hub fans eventlog entries out to every connected client, driven by
// polling eventlog.EventsAfter rather than any in-process callback —
// the same way the teacher's UI subscribes to investigation events.
type hub struct {
	events *eventlog.Store
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*wsConn]struct{}
}

func newHub(events *eventlog.Store, logger *zap.Logger) *hub {
	return &hub{events: events, logger: logger, clients: make(map[*wsConn]struct{})}
}

func (h *hub) register(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	metrics.WebsocketConnections.Inc()
}

func (h *hub) unregister(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		metrics.WebsocketConnections.Dec()
	}
}

func (h *hub) broadcast(e pushEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- e:
		default:
			// Slow consumer: drop rather than block the poll loop: the
			// next poll's beliefs-updated/timeline queries still carry
			// the full current state, so a missed push is recoverable.
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.cancel()
		delete(h.clients, c)
	}
}

// run polls the event log for new entries and broadcasts their
// push-event projection until ctx is canceled.
func (h *hub) run(ctx context.Context) {
	ticker := time.NewTicker(pushPollInterval)
	defer ticker.Stop()

	var lastID int64
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			events, err := h.events.EventsAfter(ctx, lastID)
			if err != nil {
				h.logger.Warn("httpapi: poll event log", zap.Error(err))
				continue
			}
			for _, e := range events {
				lastID = e.ID
				if t, ok := pushTypeFor(e.Kind); ok {
					h.broadcast(pushEvent{Type: t, IncidentID: e.IncidentID, Detail: e.Description, Timestamp: e.Timestamp})
				}
			}
		}
	}
}

// handleWebsocket upgrades the connection and relays push events until
// the client disconnects or the server shuts down.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Warn("httpapi: websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &wsConn{conn: conn, send: make(chan pushEvent, 64), ctx: ctx, cancel: cancel}
	s.hub.register(c)

	go c.writeLoop()
	c.readLoop(s.hub)
}

// writeLoop forwards hub broadcasts and periodic pings to the client
// until send is closed or the connection's context is canceled.
func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		case e, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop blocks draining (and discarding) inbound frames purely to
// detect client disconnects; the feed is push-only.
func (c *wsConn) readLoop(h *hub) {
	defer h.unregister(c)
	defer c.cancel()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
