package canvas

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Hub maintains the many-to-many mapping between live connections and
// session ids. The two maps are always updated together under one mutex
// so a connection is never in a session set it is not mapped to.
type Hub struct {
	mu        sync.RWMutex
	byConn    map[*Conn]string
	bySession map[string]map[*Conn]struct{}

	// onSessionEmpty fires after the last connection of a session
	// leaves. The conversion ledger uses it to mark in-flight requests
	// undispatched so they can be redelivered to the next client.
	onSessionEmpty func(sessionID string)

	logger  *slog.Logger
	metrics *Metrics
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		byConn:    make(map[*Conn]string),
		bySession: make(map[string]map[*Conn]struct{}),
		logger:    logger.With("component", "hub"),
		metrics:   metrics,
	}
}

// SetOnSessionEmpty registers the empty-session callback. Must be called
// before connections join.
func (h *Hub) SetOnSessionEmpty(fn func(sessionID string)) {
	h.onSessionEmpty = fn
}

// Join binds a connection to a session, detaching it from any prior
// session first. Rejoining the same session is a no-op.
func (h *Hub) Join(c *Conn, sessionID string) {
	var emptied string

	h.mu.Lock()
	prior, known := h.byConn[c]
	if known && prior == sessionID {
		h.mu.Unlock()
		return
	}
	if known {
		emptied = h.detachLocked(c, prior)
	}
	h.byConn[c] = sessionID
	set, ok := h.bySession[sessionID]
	if !ok {
		set = make(map[*Conn]struct{})
		h.bySession[sessionID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	if emptied != "" && h.onSessionEmpty != nil {
		h.onSessionEmpty(emptied)
	}

	h.logger.Debug("connection joined", "conn_id", c.ID(), "session_id", sessionID)
}

// Leave removes a connection from its session. Safe to call for unknown
// connections.
func (h *Hub) Leave(c *Conn) {
	var emptied string

	h.mu.Lock()
	sessionID, ok := h.byConn[c]
	if ok {
		delete(h.byConn, c)
		emptied = h.detachLocked(c, sessionID)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	if emptied != "" && h.onSessionEmpty != nil {
		h.onSessionEmpty(emptied)
	}

	h.logger.Debug("connection left", "conn_id", c.ID(), "session_id", sessionID)
}

// detachLocked removes c from sessionID's set and returns sessionID when
// the set became empty. Callers must hold mu.
func (h *Hub) detachLocked(c *Conn, sessionID string) string {
	set, ok := h.bySession[sessionID]
	if !ok {
		return ""
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.bySession, sessionID)
		return sessionID
	}
	return ""
}

// SessionOf returns the session a connection is bound to.
func (h *Hub) SessionOf(c *Conn) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.byConn[c]
	return id, ok
}

// Connections returns the current connection set of a session.
func (h *Hub) Connections(sessionID string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.bySession[sessionID]
	conns := make([]*Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	return conns
}

// HasClients reports whether a session has at least one live connection.
func (h *Hub) HasClients(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bySession[sessionID]) > 0
}

// ConnCount returns the total number of live connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byConn)
}

// Broadcast serializes msg once and sends it to every connection of the
// session except exclude (used to avoid echoing an edit back to its
// sender). Sends are fire-and-forget; a failed write only logs.
func (h *Hub) Broadcast(sessionID string, msg any, exclude *Conn) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("broadcast marshal failed", "session_id", sessionID, "error", err)
		return
	}

	for _, c := range h.Connections(sessionID) {
		if c == exclude {
			continue
		}
		if err := c.SendRaw(data); err != nil {
			h.logger.Debug("broadcast send failed",
				"session_id", sessionID,
				"conn_id", c.ID(),
				"error", err)
			continue
		}
		if h.metrics != nil {
			h.metrics.broadcastBytes.Add(float64(len(data)))
		}
	}
}
