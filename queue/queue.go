/*
Package queue buffers incoming QueueMessages and commits them in dense,
0-based id order, grounded on original_source/client/src/queue.rs's State:
messages may arrive over UDP out of order, but the application layer must
see them applied in the server's assigned sequence.
*/
package queue

import (
	"sync"

	"github.com/MyK00L/decipi/wire"
)

// Queue holds out-of-order QueueMessages until they can be committed in
// order, starting from id 0.
type Queue struct {
	mu      sync.Mutex
	nextId  uint32
	pending map[uint32]wire.QueueMessage
}

func New() *Queue {
	return &Queue{pending: make(map[uint32]wire.QueueMessage)}
}

// Add buffers msg. It returns the (possibly empty) run of messages that
// are now committable in order starting at the queue's next expected id.
// A duplicate of an already-committed id is silently ignored.
func (q *Queue) Add(msg wire.QueueMessage) []wire.QueueMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	if msg.Id < q.nextId {
		return nil
	}
	q.pending[msg.Id] = msg

	var ready []wire.QueueMessage
	for {
		m, ok := q.pending[q.nextId]
		if !ok {
			break
		}
		delete(q.pending, q.nextId)
		ready = append(ready, m)
		q.nextId++
	}
	return ready
}

// NextId reports the next id this queue expects to commit.
func (q *Queue) NextId() uint32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextId
}

// Pending reports how many messages are buffered waiting for a gap to
// close.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
