package diagnostics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/MyK00L/decipi/netcore"
	"github.com/MyK00L/decipi/queue"
)

// wsUpgrader allows all origins, matching webapi's WSUpgrader: this
// endpoint serves read-only diagnostics, not an authenticated API.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server serves a status endpoint and a live event feed over a node's
// connection table and queue, the diagnostics counterpart of webapi's
// WebapiInstance.
type Server struct {
	Router *mux.Router

	conns *netcore.ConnectionTable
	q     *queue.Queue
	hub   *Hub
	self  string
}

// NewServer wires the status/events routes. q and hub may be nil if the
// corresponding subsystem is not running (e.g. a pure spectator with no
// local queue).
func NewServer(self string, conns *netcore.ConnectionTable, q *queue.Queue, hub *Hub) *Server {
	s := &Server{Router: mux.NewRouter(), conns: conns, q: q, hub: hub, self: self}
	s.Router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.Router.HandleFunc("/events", s.handleEvents).Methods("GET")
	return s
}

// ListenAndServe starts the diagnostics HTTP server at addr and blocks
// until it exits, following startWebAPI's pattern of running each
// listener in its own call and logging a fatal-ish error on exit.
func (s *Server) ListenAndServe(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // the event feed is a long-lived connection
	}
	log.Printf("diagnostics: listening on %s", addr)
	return server.ListenAndServe()
}

type statusResponse struct {
	Self         string `json:"self"`
	Connections  int    `json:"connections"`
	QueuePending int    `json:"queue_pending,omitempty"`
	QueueNextId  uint32 `json:"queue_next_id,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Self: s.self}
	if s.conns != nil {
		resp.Connections = s.conns.Len()
	}
	if s.q != nil {
		resp.QueuePending = s.q.Pending()
		resp.QueueNextId = s.q.NextId()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("diagnostics: encoding status: %v", err)
	}
}

// handleEvents upgrades to a websocket and streams Events from the hub
// until the connection breaks, mirroring apiSearchResultStream's
// upgrade-then-loop-writing-JSON shape.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "", http.StatusServiceUnavailable)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go drainClient(conn, cancel)

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// drainClient reads (and discards) client frames so the websocket's read
// pump notices a closed connection and unblocks; it cancels ctx once the
// peer goes away.
func drainClient(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
