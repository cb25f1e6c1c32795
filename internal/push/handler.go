// ABOUTME: HTTP handler upgrading authenticated requests to websocket push connections
// ABOUTME: Verifies the bearer token before registration, then echoes acks on the read loop

package push

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/2389/parley-gateway/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves the websocket push endpoint. Every connection must present a
// valid bearer token before it is registered for delivery.
type Handler struct {
	registry *Registry
	verifier auth.TokenVerifier
	logger   *slog.Logger
}

// NewHandler creates a push endpoint handler.
func NewHandler(registry *Registry, verifier auth.TokenVerifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		verifier: verifier,
		logger:   logger.With("component", "push"),
	}
}

// tokenFromRequest extracts the bearer token from the Authorization header,
// falling back to the token query parameter for browser websocket clients
// that cannot set headers.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// ServeHTTP authenticates the request, upgrades it, and runs the read loop.
// Invalid credentials are rejected with 401 before any registration happens.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)
	if token == "" {
		http.Error(w, `{"error":"missing token"}`, http.StatusUnauthorized)
		return
	}

	subject, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	handle := h.registry.Connect(conn)
	h.logger.Info("push client connected", "conn_id", handle.ID(), "subject", subject)

	defer func() {
		h.registry.Disconnect(handle)
		h.logger.Info("push client disconnected", "conn_id", handle.ID(), "subject", subject)
	}()

	// Read loop: every inbound frame is acknowledged back to the sender.
	// Push delivery itself happens via registry broadcasts.
	for {
		var payload any
		if err := conn.ReadJSON(&payload); err != nil {
			return
		}

		frame, err := AckEvent(payload).Marshal()
		if err != nil {
			h.logger.Warn("failed to marshal ack", "conn_id", handle.ID(), "error", err)
			continue
		}
		if err := h.registry.Send(handle, frame); err != nil {
			return
		}
	}
}
