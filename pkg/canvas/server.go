package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Scofieldfree/excalidraw-mcp/pkg/scene"
	"github.com/Scofieldfree/excalidraw-mcp/pkg/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP/WebSocket front of the synchronization engine. It
// owns the hub and the three pending-operation ledgers; the session store
// is injected so the command surface shares it.
type Server struct {
	store       *store.Store
	hub         *Hub
	exports     *exportLedger
	conversions *convertLedger
	batches     *batchLedger

	config  *Config
	logger  *slog.Logger
	metrics *Metrics

	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener
	listenMu   sync.Mutex

	static *staticHandler
}

// NewServer wires a Server around the given store. A nil config or
// metrics falls back to defaults; metrics default to the global
// Prometheus registerer.
func NewServer(st *store.Store, config *Config, logger *slog.Logger, metrics *Metrics) *Server {
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	logger = logger.With("component", "canvas")

	s := &Server{
		store:       st,
		exports:     newExportLedger(config.ExportTimeout, logger),
		conversions: newConvertLedger(config.ConvertTimeout, logger),
		batches:     newBatchLedger(config.MaxBatches, logger),
		config:      config,
		logger:      logger,
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The canvas binds to localhost and serves its own bundle;
			// cross-origin pages have nothing useful to reach here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		static: newStaticHandler(logger),
	}
	s.hub = NewHub(logger, metrics)
	s.hub.SetOnSessionEmpty(s.conversions.markUndispatched)
	metrics.trackSessions(st.Count)

	return s
}

// Hub exposes the connection hub, mainly for tests.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler: WebSocket endpoint, health, metrics,
// session listing, and the embedded SPA with catch-all fallback.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/sessions", s.handleListSessions)
	r.NotFound(s.static.serve)

	return r
}

// Start listens and serves in the background. When the configured port is
// taken it walks forward through PortRetries consecutive ports before
// giving up, so several instances can coexist on one machine.
func (s *Server) Start() error {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	var listener net.Listener
	var lastErr error
	for i := 0; i < s.config.PortRetries; i++ {
		addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port+i)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		listener = ln
		break
	}
	if listener == nil {
		return fmt.Errorf("%w: %v", ErrNoFreePort, lastErr)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("serve error", "error", err)
		}
	}()

	s.logger.Info("canvas server listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address after Start.
func (s *Server) Addr() string {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains the HTTP server and drops all live connections.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	for _, c := range s.allConns() {
		c.Close()
	}

	s.listenMu.Lock()
	srv := s.httpServer
	s.listenMu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
	}
	s.logger.Info("canvas server shutdown complete")
	return nil
}

func (s *Server) allConns() []*Conn {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	conns := make([]*Conn, 0, len(s.hub.byConn))
	for c := range s.hub.byConn {
		conns = append(conns, c)
	}
	return conns
}

// =============================================================================
// HTTP handlers
// =============================================================================

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": s.hub.ConnCount(),
		"sessions":    s.store.Count(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"sessions": s.store.List(),
	})
}

// handleWebSocket upgrades the connection, binds it to the session named
// by the sessionId query parameter (default session when absent), sends
// the init snapshot, and runs the read loop until the transport closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	ws.SetReadLimit(s.config.ReadLimit)

	sessionID := r.URL.Query().Get("sessionId")
	sc, err := s.store.Get(sessionID, true)
	if err != nil {
		// Malformed id in the query string: fall back to the default
		// session rather than refusing the connection.
		s.logger.Warn("invalid session id on connect, using default",
			"session_id", sessionID, "error", err)
		sc, _ = s.store.Get("", true)
	}

	conn := newConn(ws, s.config.WriteTimeout, s.logger)
	s.hub.Join(conn, sc.ID)
	s.metrics.connectionsActive.Inc()

	s.sendInit(conn, sc)
	s.deliverPending(conn, sc.ID)

	s.readLoop(conn)
}

// readLoop consumes messages until the transport closes. Liveness is the
// transport's close event; there is no application-level read timeout.
func (s *Server) readLoop(conn *Conn) {
	defer func() {
		s.hub.Leave(conn)
		conn.Close()
		s.metrics.connectionsActive.Dec()
	}()

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				conn.logger.Debug("read error", "error", err)
			}
			return
		}
		s.dispatch(conn, data)
	}
}

// dispatch routes one inbound message. The channel is defensive only:
// anything malformed is dropped without a reply.
func (s *Server) dispatch(conn *Conn, data []byte) {
	env, ok := decodeEnvelope(data)
	if !ok {
		s.metrics.messagesDropped.Inc()
		conn.logger.Debug("dropped malformed message", "bytes", len(data))
		return
	}
	if len(env.Elements) > s.config.MaxElements {
		s.metrics.messagesDropped.Inc()
		conn.logger.Warn("dropped oversized element array",
			"type", env.Type, "elements", len(env.Elements))
		return
	}
	s.metrics.messagesIn.WithLabelValues(string(env.Type)).Inc()

	switch env.Type {
	case MsgPing:
		s.send(conn, MsgPong, pongMessage{Type: MsgPong})
	case MsgJoinSession:
		s.handleJoinSession(conn, env)
	case MsgReady:
		s.handleReady(conn, env)
	case MsgUpdate:
		s.handleUpdate(conn, env)
	case MsgElementsConverted:
		s.handleElementsConverted(conn, env)
	case MsgMermaidConverted:
		s.handleMermaidConverted(conn, env)
	case MsgMermaidConvertError:
		s.conversions.reject(env.RequestID, env.Error)
		s.metrics.conversionsTotal.WithLabelValues("error").Inc()
	case MsgExportResult:
		s.handleExportResult(env)
	default:
		conn.logger.Debug("unhandled message type", "type", env.Type)
	}
}

// handleJoinSession rebinds the connection to another session and
// delivers a fresh init snapshot for it.
func (s *Server) handleJoinSession(conn *Conn, env *envelope) {
	sc, err := s.store.Get(env.SessionID, true)
	if err != nil {
		conn.logger.Debug("join_session with invalid id dropped",
			"session_id", env.SessionID)
		return
	}
	s.hub.Join(conn, sc.ID)
	s.sendInit(conn, sc)
	s.deliverPending(conn, sc.ID)
}

// handleReady is the client's signal that buffered state is applied. It
// acknowledges the last applied skeleton batch and triggers replay of
// anything still pending for the session.
func (s *Server) handleReady(conn *Conn, env *envelope) {
	sessionID, ok := s.hub.SessionOf(conn)
	if !ok {
		return
	}
	s.batches.markSynced(sessionID, env.LastBatchID)
	s.deliverPending(conn, sessionID)
}

// deliverPending replays unsynced skeleton batches to one connection and
// dispatches any conversion requests that are waiting for a client.
func (s *Server) deliverPending(conn *Conn, sessionID string) {
	for _, batch := range s.batches.unsynced(sessionID) {
		s.send(conn, MsgAddElements, &addElementsMessage{
			Type:      MsgAddElements,
			SessionID: sessionID,
			BatchID:   batch.ID,
			Elements:  batch.Skeletons,
		})
	}

	for _, entry := range s.conversions.takeUndispatched(sessionID) {
		s.send(conn, MsgMermaidConvert, &convertMessage{
			Type:           MsgMermaidConvert,
			RequestID:      entry.requestID,
			SessionID:      sessionID,
			MermaidDiagram: entry.diagram,
			Reset:          entry.reset,
		})
	}
}

// handleUpdate applies a full element-array replacement plus partial app
// state merge from a client, then relays the authoritative result to the
// session's other connections.
func (s *Server) handleUpdate(conn *Conn, env *envelope) {
	sessionID, ok := s.hub.SessionOf(conn)
	if !ok {
		return
	}
	sc, err := s.store.Get(sessionID, true)
	if err != nil {
		return
	}

	sc.ReplaceElements(env.Elements, env.AppState)
	s.store.Update(sc)
	s.BroadcastScene(sc, conn)
}

// handleElementsConverted commits the fully resolved form of a skeleton
// batch reported by the rendering surface. Elements merge by id, so a
// replayed batch that introduces no new ids leaves the count unchanged.
func (s *Server) handleElementsConverted(conn *Conn, env *envelope) {
	sessionID, ok := s.hub.SessionOf(conn)
	if !ok {
		return
	}
	sc, err := s.store.Get(sessionID, true)
	if err != nil {
		return
	}

	s.batches.markSynced(sessionID, env.BatchID)
	sc.UpsertElements(env.Elements)
	s.store.Update(sc)
	s.BroadcastScene(sc, conn)
}

// handleMermaidConverted commits converted elements and resolves the
// pending conversion. A request id with no ledger entry is stale and
// ignored.
func (s *Server) handleMermaidConverted(conn *Conn, env *envelope) {
	entry := s.conversions.lookup(env.RequestID)
	if entry == nil {
		conn.logger.Debug("stale mermaid_converted ignored", "request_id", env.RequestID)
		return
	}

	sc, err := s.store.Get(entry.sessionID, true)
	if err != nil {
		s.conversions.reject(env.RequestID, err.Error())
		return
	}

	if entry.reset {
		sc.Clear()
	}
	sc.UpsertElements(env.Elements)
	s.store.Update(sc)
	s.BroadcastScene(sc, conn)

	s.conversions.resolve(env.RequestID, ConversionResult{
		SessionID:    entry.sessionID,
		ElementCount: len(env.Elements),
	})
	s.metrics.conversionsTotal.WithLabelValues("ok").Inc()
}

func (s *Server) handleExportResult(env *envelope) {
	if env.Error != "" {
		s.exports.reject(env.RequestID, env.Error)
		s.metrics.exportsTotal.WithLabelValues("error").Inc()
		return
	}
	s.exports.resolve(env.RequestID, env.Data)
	s.metrics.exportsTotal.WithLabelValues("ok").Inc()
}

// =============================================================================
// Operations used by the command surface
// =============================================================================

// sendInit delivers the full scene snapshot to one connection.
func (s *Server) sendInit(conn *Conn, sc *scene.Scene) {
	s.send(conn, MsgInit, newInitMessage(sc.Snapshot()))
}

func (s *Server) send(conn *Conn, t MessageType, msg any) {
	if err := conn.SendJSON(msg); err != nil {
		return
	}
	s.metrics.messagesOut.WithLabelValues(string(t)).Inc()
}

// BroadcastScene relays the scene's current snapshot to every connection
// of its session, excluding the given sender.
func (s *Server) BroadcastScene(sc *scene.Scene, exclude *Conn) {
	s.metrics.messagesOut.WithLabelValues(string(MsgUpdate)).Inc()
	s.hub.Broadcast(sc.ID, newUpdateMessage(sc.Snapshot()), exclude)
}

// WaitForClient polls until the session has at least one live connection
// or the bounded wait elapses, returning ErrNoActiveClient on give-up.
func (s *Server) WaitForClient(ctx context.Context, sessionID string) error {
	if s.hub.HasClients(sessionID) {
		return nil
	}

	deadline := time.NewTimer(s.config.ClientWaitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.config.ClientWaitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.hub.HasClients(sessionID) {
				return nil
			}
		case <-deadline.C:
			return ErrNoActiveClient
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// StageBatch stages a skeleton batch for the session and broadcasts it to
// every current connection. Unsynced batches are additionally replayed to
// connections that join or report ready later.
func (s *Server) StageBatch(sessionID string, skeletons []*scene.Element) *Batch {
	batch := s.batches.add(sessionID, skeletons)
	s.metrics.batchesStaged.Inc()
	s.metrics.messagesOut.WithLabelValues(string(MsgAddElements)).Inc()
	s.hub.Broadcast(sessionID, &addElementsMessage{
		Type:      MsgAddElements,
		SessionID: sessionID,
		BatchID:   batch.ID,
		Elements:  skeletons,
	}, nil)
	return batch
}

// RequestExport asks the session's rendering surface for an export and
// waits for the correlated export_result. A session with zero connections
// fails immediately with ErrNoActiveClient; no timer is started.
func (s *Server) RequestExport(ctx context.Context, sc *scene.Scene, format string) (string, error) {
	if !s.hub.HasClients(sc.ID) {
		s.metrics.exportsTotal.WithLabelValues("no_client").Inc()
		return "", ErrNoActiveClient
	}

	requestID := uuid.NewString()
	outcome := s.exports.register(requestID)

	snap := sc.Snapshot()
	s.metrics.messagesOut.WithLabelValues(string(MsgExport)).Inc()
	s.hub.Broadcast(sc.ID, &exportMessage{
		Type:      MsgExport,
		RequestID: requestID,
		SessionID: sc.ID,
		Format:    format,
		Elements:  snap.Elements,
		AppState:  snap.AppState,
	}, nil)

	select {
	case out := <-outcome:
		if out.err != nil {
			if out.err == ErrExportTimeout {
				s.metrics.exportsTotal.WithLabelValues("timeout").Inc()
			}
			return "", out.err
		}
		return out.data, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// RequestConversion submits mermaid text for client-side conversion and
// waits for the result. With no client connected the request is stored
// undispatched and delivered opportunistically when one appears; the
// timeout still applies either way.
func (s *Server) RequestConversion(ctx context.Context, sessionID, diagram string, reset bool) (ConversionResult, error) {
	requestID := uuid.NewString()
	entry, outcome := s.conversions.register(requestID, sessionID, diagram, reset)

	if s.hub.HasClients(sessionID) {
		s.conversions.markDispatched(requestID)
		s.metrics.messagesOut.WithLabelValues(string(MsgMermaidConvert)).Inc()
		s.hub.Broadcast(sessionID, &convertMessage{
			Type:           MsgMermaidConvert,
			RequestID:      requestID,
			SessionID:      sessionID,
			MermaidDiagram: entry.diagram,
			Reset:          entry.reset,
		}, nil)
	} else {
		s.logger.Info("conversion stored undispatched, waiting for a client",
			"session_id", sessionID, "request_id", requestID)
	}

	select {
	case out := <-outcome:
		if out.err != nil {
			if out.err == ErrConvertTimeout {
				s.metrics.conversionsTotal.WithLabelValues("timeout").Inc()
			}
			return ConversionResult{}, out.err
		}
		return out.result, nil
	case <-ctx.Done():
		return ConversionResult{}, ctx.Err()
	}
}

// DropSession discards channel-side state for a deleted session: staged
// skeleton batches go away and live connections are rebound to nothing
// (they keep their transport and may join another session).
func (s *Server) DropSession(sessionID string) {
	s.batches.drop(sessionID)
}

// PendingCounts reports in-flight ledger entries, for observability.
func (s *Server) PendingCounts() (exports, conversions int) {
	return s.exports.pendingCount(), s.conversions.pendingCount()
}
