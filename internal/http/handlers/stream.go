package handlers

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/previsit/internal/prepnote"
	"github.com/wolfman30/previsit/internal/workflow"
	"github.com/wolfman30/previsit/pkg/logging"
)

// Event is one push on the session stream.
type Event struct {
	Type    string             `json:"type"` // "session", "note", "pong"
	Session *workflow.Snapshot `json:"session,omitempty"`
	Note    *prepnote.View     `json:"note,omitempty"`
}

type clientMessage struct {
	Type string `json:"type"` // "ping"
}

// StreamHub fans session and note changes out to connected browsers.
type StreamHub struct {
	logger  *logging.Logger
	initial func() (workflow.Snapshot, prepnote.View)

	mu          sync.RWMutex
	conns       map[string]*streamConn
	lastVersion uint64
}

type streamConn struct {
	conn *websocket.Conn
	send chan Event
	done chan struct{}
}

const streamBuffer = 16

// NewStreamHub builds a hub. initial supplies the state sent to each new connection.
func NewStreamHub(initial func() (workflow.Snapshot, prepnote.View), logger *logging.Logger) *StreamHub {
	if logger == nil {
		logger = logging.Default()
	}
	return &StreamHub{
		logger:  logger,
		initial: initial,
		conns:   make(map[string]*streamConn),
	}
}

// PublishSession pushes a session snapshot. Snapshots older than one already
// pushed are dropped, since observers may be called out of order.
func (h *StreamHub) PublishSession(snap workflow.Snapshot) {
	h.mu.Lock()
	if snap.Version <= h.lastVersion {
		h.mu.Unlock()
		return
	}
	h.lastVersion = snap.Version
	h.mu.Unlock()
	h.broadcast(Event{Type: "session", Session: &snap})
}

// PublishNote pushes a note panel view.
func (h *StreamHub) PublishNote(v prepnote.View) {
	h.broadcast(Event{Type: "note", Note: &v})
}

// Connections reports how many browsers are attached.
func (h *StreamHub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *StreamHub) broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.conns {
		select {
		case c.send <- ev:
		default:
			h.logger.Warn("stream: dropping event for slow client", "conn_id", id, "type", ev.Type)
		}
	}
}

// HandleWebSocket upgrades GET /session/events.
func (h *StreamHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(h.serveWS).ServeHTTP(w, r)
}

func (h *StreamHub) serveWS(conn *websocket.Conn) {
	id := uuid.NewString()
	sc := &streamConn{conn: conn, send: make(chan Event, streamBuffer), done: make(chan struct{})}

	if h.initial != nil {
		snap, note := h.initial()
		sc.send <- Event{Type: "session", Session: &snap}
		sc.send <- Event{Type: "note", Note: &note}
	}

	h.mu.Lock()
	h.conns[id] = sc
	h.mu.Unlock()
	h.logger.Info("stream: connection opened", "conn_id", id)

	go h.writeLoop(id, sc)
	defer func() {
		h.mu.Lock()
		delete(h.conns, id)
		h.mu.Unlock()
		close(sc.done)
		h.logger.Debug("stream: connection closed", "conn_id", id)
	}()

	for {
		var msg clientMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			return
		}
		if msg.Type == "ping" {
			select {
			case sc.send <- Event{Type: "pong"}:
			default:
			}
		}
	}
}

func (h *StreamHub) writeLoop(id string, sc *streamConn) {
	for {
		select {
		case <-sc.done:
			return
		case ev := <-sc.send:
			if err := websocket.JSON.Send(sc.conn, ev); err != nil {
				h.logger.Debug("stream: send failed", "conn_id", id, "error", err)
				_ = sc.conn.Close()
				return
			}
		}
	}
}
