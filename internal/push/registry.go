// ABOUTME: In-memory connection registry for push delivery to live clients
// ABOUTME: Tracks websocket handles and fans events out to every registered connection

package push

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned when sending on a handle that has been disconnected
var ErrClosed = errors.New("connection closed")

// Conn is the minimal connection surface the registry needs. *websocket.Conn
// satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// textMessage matches websocket.TextMessage; declared locally so the registry
// itself has no transport import.
const textMessage = 1

// Handle represents one registered connection. Writes are serialized through
// the handle mutex because the underlying websocket permits a single
// concurrent writer.
type Handle struct {
	id   string
	conn Conn

	mu     sync.Mutex
	closed bool
}

// ID returns the registry-assigned connection identifier.
func (h *Handle) ID() string {
	return h.id
}

// write sends one frame, serialized per handle.
func (h *Handle) write(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	return h.conn.WriteMessage(textMessage, data)
}

// close marks the handle dead and closes the underlying connection.
// Idempotent.
func (h *Handle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	h.conn.Close()
}

// Registry tracks live client connections and delivers push events to them.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
	logger  *slog.Logger
}

// NewRegistry creates a registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handles: make(map[string]*Handle),
		logger:  logger.With("component", "push"),
	}
}

// Connect registers a connection and returns its handle.
func (r *Registry) Connect(conn Conn) *Handle {
	h := &Handle{
		id:   uuid.New().String(),
		conn: conn,
	}

	r.mu.Lock()
	r.handles[h.id] = h
	count := len(r.handles)
	r.mu.Unlock()

	r.logger.Debug("connection registered", "conn_id", h.id, "total", count)
	return h
}

// Disconnect removes a handle and closes its connection. Safe to call more
// than once for the same handle.
func (r *Registry) Disconnect(h *Handle) {
	if h == nil {
		return
	}

	r.mu.Lock()
	_, present := r.handles[h.id]
	delete(r.handles, h.id)
	count := len(r.handles)
	r.mu.Unlock()

	h.close()

	if present {
		r.logger.Debug("connection removed", "conn_id", h.id, "total", count)
	}
}

// Send delivers data to a single handle. Returns ErrClosed if the handle has
// been disconnected.
func (r *Registry) Send(h *Handle, data []byte) error {
	return h.write(data)
}

// Broadcast delivers data to every registered connection. Membership is
// snapshotted under the read lock and writes happen outside it, so a slow
// client never blocks registration. Handles whose write fails are pruned.
func (r *Registry) Broadcast(data []byte) {
	r.mu.RLock()
	targets := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		targets = append(targets, h)
	}
	r.mu.RUnlock()

	for _, h := range targets {
		if err := h.write(data); err != nil {
			r.logger.Debug("pruning failed connection", "conn_id", h.id, "error", err)
			r.Disconnect(h)
		}
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
