package netcore

import (
	"context"
	"time"

	"github.com/MyK00L/decipi/wire"
)

// keepAliveMin/Max bound the keep-alive send interval: uniform random
// 250ms-25s per spec §4.2. This supersedes the looser 15s-28s interval
// seen in the reference implementation snippet this package is grounded
// on; spec §4.2's tighter range governs.
const (
	keepAliveMin = 250 * time.Millisecond
	keepAliveMax = 25 * time.Second
)

// IncKeepalive marks one more use of the connection to peer as needing
// liveness proof, starting the background keep-alive task on a 0->1
// transition (spec §9's reference-counted keep-alive lifecycle).
func (n *Net) IncKeepalive(peer wire.VerifyKey) {
	conn, ok := n.conns.Get(peer)
	if !ok {
		return
	}
	conn.incKeepalive(func() func() { return n.startKeepAlive(conn) })
}

// startKeepAlive spawns conn's background keep-alive task and returns its
// cancel function. Shared by IncKeepalive's 0->1 transition and by
// ConnectionState.Replace, which must restart the task after a
// re-handshake if keep-alive is still requested.
func (n *Net) startKeepAlive(conn *ConnectionState) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go n.runKeepAlive(ctx, conn)
	return cancel
}

// DecKeepalive releases one use of the connection to peer, aborting the
// background keep-alive task on a 1->0 transition.
func (n *Net) DecKeepalive(peer wire.VerifyKey) {
	if conn, ok := n.conns.Get(peer); ok {
		conn.decKeepalive()
	}
}

// runKeepAlive sends the first keep-alive as soon as the task starts, then
// one per random interval until ctx is canceled.
func (n *Net) runKeepAlive(ctx context.Context, conn *ConnectionState) {
	for {
		addr, _, macKey := conn.Snapshot()
		proof := wire.NewMacced(wire.TimestampNow(), macKey)
		msg := wire.MessageFromNet(wire.NetMessageKeepAlive(wire.KeepAliveMessage{
			Sender: n.id.Verify,
			Proof:  proof,
		}))
		n.socket.WriteToUDP(wire.Encode(msg), addr.UDPAddr())

		select {
		case <-ctx.Done():
			return
		case <-time.After(randomDuration(keepAliveMin, keepAliveMax)):
		}
	}
}

func (n *Net) handleKeepAlive(msg wire.KeepAliveMessage) {
	conn, ok := n.conns.Get(msg.Sender)
	if !ok {
		return
	}
	_, _, macKey := conn.Snapshot()
	at, err := msg.Proof.Inner(macKey)
	if err != nil {
		return
	}
	if !at.Valid(time.Now()) {
		return
	}
	// Liveness proof accepted: this is the KEX retransmit's stop signal
	// (spec §4.2), a no-op via StopKex if the loop already stopped.
	n.inflight.StopKex(msg.Sender)
}
