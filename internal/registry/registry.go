package registry

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsegrid/infradash/internal/logging"
	"github.com/pulsegrid/infradash/internal/metrics"
)

// writeWait bounds how long a single send may block on a slow peer.
const writeWait = 10 * time.Second

// Conn is the subset of *websocket.Conn the registry needs to deliver
// text frames. Tests substitute an in-memory implementation.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// textMessage matches websocket.TextMessage without importing the transport here.
const textMessage = 1

// client pairs a connection with the mutex serializing writes to it,
// so frames reach a single peer in send order.
type client struct {
	id   string
	conn Conn
	mu   sync.Mutex
}

func (c *client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(textMessage, data)
}

// Registry tracks live dashboard connections and fans events out to them
type Registry struct {
	clients map[string]*client
	mu      sync.RWMutex
	log     *logging.LogStore
}

// NewRegistry creates a new connection registry
func NewRegistry(logStore *logging.LogStore) *Registry {
	return &Registry{
		clients: make(map[string]*client),
		log:     logStore,
	}
}

// Register adds a connection and returns its identifier
func (r *Registry) Register(conn Conn) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.clients[id] = &client{id: id, conn: conn}
	r.mu.Unlock()

	metrics.ConnectedClients.Inc()
	return id
}

// Unregister removes a connection from the registry. Removing an unknown
// id is a no-op so the disconnect path and the failed-send path can race.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	_, exists := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()

	if exists {
		metrics.ConnectedClients.Dec()
	}
}

// Count returns the number of registered connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// IDs returns the identifiers of all registered connections
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// Broadcast serializes the event once and delivers it to every registered
// connection. Delivery is best-effort: a connection whose send fails is
// dropped from the registry and the remaining connections still receive
// the event. Fan-out order across peers is unspecified.
func (r *Registry) Broadcast(event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		r.log.LogAndStore("error", "Failed to marshal broadcast event: %v", err)
		return
	}

	// Snapshot under the lock, write outside it.
	r.mu.RLock()
	targets := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	metrics.BroadcastsTotal.Inc()

	for _, c := range targets {
		if err := c.send(data); err != nil {
			r.log.LogAndStore("warning", "Dropping connection %s after failed send: %v", c.id, err)
			r.drop(c)
		}
	}
}

// Unicast delivers one event to a single connection. A failed send drops
// the connection, same as a broadcast failure.
func (r *Registry) Unicast(id string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal unicast event: %w", err)
	}

	r.mu.RLock()
	c, exists := r.clients[id]
	r.mu.RUnlock()
	if !exists {
		return fmt.Errorf("connection %s not registered", id)
	}

	if err := c.send(data); err != nil {
		r.log.LogAndStore("warning", "Dropping connection %s after failed unicast: %v", id, err)
		r.drop(c)
		return fmt.Errorf("failed to send to %s: %w", id, err)
	}
	return nil
}

func (r *Registry) drop(c *client) {
	r.Unregister(c.id)
	c.conn.Close()
	metrics.DroppedConnectionsTotal.Inc()
}
