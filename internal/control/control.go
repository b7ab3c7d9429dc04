// Package control implements the external HTTP/WebSocket control
// endpoint: a network surface addressing a running flowgraph by
// (flowgraph-id, block-id, port-name, value), plus a notification
// WebSocket broadcasting strings emitted by blocks (e.g.
// WebsocketPmtSink, FlowgraphController's reload ping).
package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/axiom-sdr/flowgraphd/internal/flowgraph"
	"github.com/axiom-sdr/flowgraphd/internal/pmt"
)

// Supervisor is the subset of *supervisor.Supervisor the control
// endpoint needs. Defined here rather than imported so this package
// has no compile-time dependency on the hot-swap implementation.
type Supervisor interface {
	Current() *flowgraph.Handle
	Call(ctx context.Context, blockID flowgraph.BlockID, port string, value pmt.Pmt) (pmt.Pmt, error)
	Description() []flowgraph.BlockDescription
	GraphID() (uuid.UUID, bool)
}

// writeJSON encodes v as JSON to w, logging any errors at debug level —
// typically just a client that disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

func errorResponse(w http.ResponseWriter, logger *slog.Logger, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{"error": message}, logger)
}

// Server is the HTTP/WebSocket control endpoint of spec.md §4.8. It
// implements blocks.Broadcaster so a WebsocketPmtSink or the
// supervisor's post-swap reload ping can push a string to every
// connected notification client.
type Server struct {
	addr   string
	sup    Supervisor
	logger *slog.Logger
	server *http.Server

	upgrader websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[chan string]struct{}
}

// NewServer creates a control endpoint server bound to addr (e.g.
// "127.0.0.1:1337", the spec's default loopback:1337).
func NewServer(addr string, sup Supervisor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		sup:     sup,
		logger:  logger,
		clients: make(map[chan string]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetSupervisor wires the supervisor in after construction, for the
// common startup order where the supervisor itself needs this Server
// as its blocks.Broadcaster (the control endpoint and the hot-swap
// supervisor each depend on the other's interface, not the other's
// concrete type). Must be called before Start.
func (s *Server) SetSupervisor(sup Supervisor) {
	s.sup = sup
}

// Broadcast pushes message to every connected notification client.
// Slow or absent clients never block the caller.
func (s *Server) Broadcast(message string) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- message:
		default:
			s.logger.Warn("notification client backlog full, dropping message")
		}
	}
}

// Start begins serving HTTP requests. It blocks until the server stops
// (via Shutdown) or fails, matching the teacher's api.Server.Start
// shape: build a mux, wrap it in request logging, hand it to
// http.Server.ListenAndServe.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/flowgraphs/", s.handleListFlowgraphs)
	mux.HandleFunc("GET /api/fg/{id}/", s.handleDescribeFlowgraph)
	mux.HandleFunc("POST /api/fg/{id}/block/{block_id}/call/{port}/", s.handleCall)
	mux.HandleFunc("GET /ws/notifications", s.handleNotifications)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.withLogging(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.logger.Info("starting control endpoint", "addr", s.addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleListFlowgraphs(w http.ResponseWriter, r *http.Request) {
	ids := []string{}
	if id, ok := s.sup.GraphID(); ok {
		ids = append(ids, id.String())
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"flowgraphs": ids}, s.logger)
}

func (s *Server) handleDescribeFlowgraph(w http.ResponseWriter, r *http.Request) {
	id, ok := s.currentGraphMatches(r.PathValue("id"))
	if !ok {
		errorResponse(w, s.logger, http.StatusNotFound, "no such flowgraph")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"id":     id,
		"blocks": s.sup.Description(),
	}, s.logger)
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.currentGraphMatches(r.PathValue("id")); !ok {
		errorResponse(w, s.logger, http.StatusNotFound, "no such flowgraph")
		return
	}

	blockIDStr := r.PathValue("block_id")
	blockID, err := strconv.Atoi(blockIDStr)
	if err != nil {
		errorResponse(w, s.logger, http.StatusBadRequest, "invalid block id")
		return
	}
	port := r.PathValue("port")

	var value pmt.Pmt
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		errorResponse(w, s.logger, http.StatusBadRequest, "invalid PMT body: "+err.Error())
		return
	}

	reply, err := s.sup.Call(r.Context(), flowgraph.BlockID(blockID), port, value)
	if err != nil {
		errorResponse(w, s.logger, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, reply, s.logger)
}

// currentGraphMatches reports whether a flowgraph is running and id
// (the URL path value) names it. The spec models one supervisor with
// a single current graph, so the only valid id is its own.
func (s *Server) currentGraphMatches(id string) (string, bool) {
	current, ok := s.sup.GraphID()
	if !ok {
		return "", false
	}
	if id != current.String() {
		return "", false
	}
	return id, true
}

// handleNotifications upgrades to a WebSocket and streams broadcast
// strings to the client until it disconnects. Grounded on the
// teacher's homeassistant.WSClient readLoop/writeJSON split: a
// dedicated write goroutine owns the connection, fed by a buffered
// channel, so Broadcast never blocks on a slow client.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ch := make(chan string, 32)
	s.clientsMu.Lock()
	s.clients[ch] = struct{}{}
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, ch)
		s.clientsMu.Unlock()
		close(ch)
		conn.Close()
	}()

	// Drain and discard client reads so control frames (ping/close)
	// are processed; this connection carries no inbound application
	// messages.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for msg := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return
		}
	}
}
