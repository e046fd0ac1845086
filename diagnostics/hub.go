/*
Package diagnostics exposes a read-only HTTP status endpoint over a
running node's connection table and queue, and a websocket live event
feed of published Events, grounded on the webapi package (API.go's
mux.Router wiring, Status.go's JSON status response, and Search.go's
apiSearchResultStream websocket-push loop) and on Filter.go's multiWriter
subscribe/unsubscribe-by-uuid pattern, adapted here to broadcast
structured Events instead of raw bytes.
*/
package diagnostics

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind names the occurrences a subscriber can observe.
type EventKind string

const (
	EventPeerConnected    EventKind = "peer_connected"
	EventPeerDisconnected EventKind = "peer_disconnected"
	EventSubmissionQueued EventKind = "submission_queued"
	EventEvaluationFinal  EventKind = "evaluation_final"
)

// Event is one occurrence broadcast to every subscriber. Data is kept as
// plain JSON-marshalable fields rather than protocol types, so the
// diagnostics package never needs to import wire's binary codec.
type Event struct {
	Kind EventKind `json:"kind"`
	At   time.Time `json:"at"`
	Peer string    `json:"peer,omitempty"`
	Note string    `json:"note,omitempty"`
}

// Hub fans out Events to every subscribed channel, mirroring Filter.go's
// multiWriter: subscribe/unsubscribe by uuid, broadcast best-effort.
type Hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]chan Event)}
}

// Subscribe registers a new receiver and returns its id and channel. The
// channel is buffered so a slow consumer does not block Publish; a
// subscriber that falls behind has new events dropped while its buffer is
// full rather than stalling the node.
func (h *Hub) Subscribe() (uuid.UUID, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.New()
	ch := make(chan Event, 64)
	h.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes the channel for id.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}

// Publish broadcasts ev to every current subscriber. A subscriber whose
// buffer is full has this event dropped for it rather than blocking the
// publisher.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
