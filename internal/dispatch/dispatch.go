package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulsegrid/infradash/internal/logging"
	"github.com/pulsegrid/infradash/internal/metrics"
	"github.com/pulsegrid/infradash/internal/models"
	"github.com/pulsegrid/infradash/internal/registry"
)

// DefaultIdleTimeout is how long the dispatcher waits for an inbound
// frame before pushing a system_update heartbeat instead.
const DefaultIdleTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for MVP
		return true
	},
}

// Conn is the bidirectional connection the dispatcher serves. The
// registry half covers writes; ReadMessage feeds the command loop.
type Conn interface {
	registry.Conn
	ReadMessage() (int, []byte, error)
}

// ScenarioHandler processes scenario control commands on behalf of a
// connection, blocking until all resulting events have been emitted.
type ScenarioHandler interface {
	Handle(cmd models.Command, sender string)
}

// SnapshotSource produces the synthetic snapshot for heartbeat events
type SnapshotSource interface {
	Snapshot() models.SystemSnapshot
}

// Handler runs one dispatcher loop per connected client
type Handler struct {
	reg         *registry.Registry
	engine      ScenarioHandler
	snapshots   SnapshotSource
	log         *logging.LogStore
	idleTimeout time.Duration
}

// NewHandler creates a dispatcher with the given collaborators. A
// non-positive idleTimeout falls back to DefaultIdleTimeout.
func NewHandler(reg *registry.Registry, engine ScenarioHandler, snapshots SnapshotSource, logStore *logging.LogStore, idleTimeout time.Duration) *Handler {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Handler{
		reg:         reg,
		engine:      engine,
		snapshots:   snapshots,
		log:         logStore,
		idleTimeout: idleTimeout,
	}
}

// HandleWebSocket upgrades the HTTP request and serves the connection
// until the client disconnects.
func (h *Handler) HandleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.LogAndStore("error", "WebSocket upgrade failed: %v", err)
			return
		}

		id := h.reg.Register(conn)
		h.log.LogAndStore("info", "New dashboard connection: %s", id)

		h.Serve(id, conn)

		h.reg.Unregister(id)
		conn.Close()
		h.log.LogAndStore("info", "Dashboard connection closed: %s", id)
	}
}

// Serve runs the dispatcher loop for an already-registered connection.
// It alternates between waiting for one inbound frame and, when the
// idle timeout elapses first, pushing a system_update heartbeat. It
// returns when the transport reports a read failure.
func (h *Handler) Serve(id string, conn Conn) {
	frames := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			frames <- data
		}
	}()

	for {
		select {
		case data := <-frames:
			h.handleFrame(id, data)
		case err := <-readErr:
			h.log.LogAndStore("info", "Connection %s read loop ended: %v", id, err)
			return
		case <-time.After(h.idleTimeout):
			h.sendHeartbeat(id)
		}
	}
}

// sendHeartbeat pushes a freshly generated snapshot to this connection.
// A failed send drops the connection in the registry; the read loop
// observes the close and terminates Serve.
func (h *Handler) sendHeartbeat(id string) {
	update := models.NewSystemUpdate(h.snapshots.Snapshot())
	if err := h.reg.Unicast(id, update); err != nil {
		h.log.LogAndStore("warning", "Heartbeat to %s failed: %v", id, err)
	}
}

// handleFrame decodes one inbound frame and routes it. Protocol errors
// are answered on the same connection; nothing here closes it.
func (h *Handler) handleFrame(id string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.log.LogAndStore("error", "Panic while handling command from %s: %v", id, r)
			h.reg.Unicast(id, models.NewErrorEvent("Internal error while handling command"))
		}
	}()

	var cmd models.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.reg.Unicast(id, models.NewErrorEvent("Invalid JSON message format"))
		return
	}

	metrics.CommandsTotal.WithLabelValues(cmd.Type).Inc()

	switch {
	case cmd.IsScenarioControl():
		h.engine.Handle(cmd, id)
	case cmd.Type == models.CmdPing:
		h.reg.Unicast(id, models.NewPong())
	case cmd.Type == models.CmdSubscribe:
		h.reg.Unicast(id, models.NewSubscriptionAck(cmd.Event))
	default:
		h.reg.Unicast(id, models.NewErrorEvent(fmt.Sprintf("Unknown command type: %s", cmd.Type)))
	}
}
