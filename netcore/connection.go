package netcore

import (
	"context"
	"sync"

	"github.com/MyK00L/decipi/identity"
	"github.com/MyK00L/decipi/wire"
)

// ConnectionState is the live state of one authenticated peer (spec §4.2,
// §5): its MacKey, last known address, role, and keep-alive bookkeeping.
// Every accessor takes the per-connection lock, following Connection.go's
// pattern of locking at the PeerInfo granularity rather than globally.
type ConnectionState struct {
	mu sync.Mutex

	PeerId  wire.VerifyKey
	Addr    wire.PeerAddr
	Role    wire.Entity
	MacKey  wire.MacKey
	keepAliveRefs int
	keepAliveStop func()
}

func newConnectionState(peerId wire.VerifyKey, addr wire.PeerAddr, role wire.Entity, macKey wire.MacKey) *ConnectionState {
	return &ConnectionState{PeerId: peerId, Addr: addr, Role: role, MacKey: macKey}
}

// Snapshot returns a copy of the connection's current address/role/MacKey
// under lock, safe to read without holding the connection's mutex.
func (c *ConnectionState) Snapshot() (addr wire.PeerAddr, role wire.Entity, macKey wire.MacKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Addr, c.Role, c.MacKey
}

// Replace atomically installs a new address/role/MacKey after a successful
// re-handshake, canceling any previously running keep-alive task and, if
// keep-alive is still requested (refcount > 0), starting a fresh one via
// restart (spec §4.2: "abort the stale keep-alive task... if keep-alive is
// requested (refcount > 0), start a new keep-alive task"). restart has the
// same shape as incKeepalive's start: called only when a replacement task
// is actually needed, returning that task's cancel function.
func (c *ConnectionState) Replace(addr wire.PeerAddr, role wire.Entity, macKey wire.MacKey, restart func() func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keepAliveStop != nil {
		c.keepAliveStop()
		c.keepAliveStop = nil
	}
	c.Addr = addr
	c.Role = role
	c.MacKey = macKey
	if c.keepAliveRefs > 0 {
		c.keepAliveStop = restart()
	}
}

// incKeepalive increments the keep-alive reference count. On a 0->1
// transition it calls start to obtain the cancel function for the new
// task; on subsequent increments start is not called.
func (c *ConnectionState) incKeepalive(start func() func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keepAliveRefs++
	if c.keepAliveRefs == 1 {
		c.keepAliveStop = start()
	}
}

// decKeepalive decrements the keep-alive reference count. On a 1->0
// transition it aborts the running keep-alive task.
func (c *ConnectionState) decKeepalive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keepAliveRefs == 0 {
		return
	}
	c.keepAliveRefs--
	if c.keepAliveRefs == 0 && c.keepAliveStop != nil {
		c.keepAliveStop()
		c.keepAliveStop = nil
	}
}

// ConnectionTable is the concurrent map of live connections keyed by
// VerifyKey, locked per-entry rather than globally (spec §5), mirroring
// the peerList+peerlistMutex pattern but scoped to a single mutex per
// connection instead of per-operation list surgery.
type ConnectionTable struct {
	mu    sync.RWMutex
	byKey map[wire.VerifyKey]*ConnectionState
}

func NewConnectionTable() *ConnectionTable {
	return &ConnectionTable{byKey: make(map[wire.VerifyKey]*ConnectionState)}
}

// Get returns the connection for peer, if any.
func (t *ConnectionTable) Get(peer wire.VerifyKey) (*ConnectionState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.byKey[peer]
	return c, ok
}

// GetOrCreate returns the existing connection for peer, or installs a
// freshly constructed one.
func (t *ConnectionTable) GetOrCreate(peer wire.VerifyKey, addr wire.PeerAddr, role wire.Entity, macKey wire.MacKey) (conn *ConnectionState, created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.byKey[peer]; ok {
		return c, false
	}
	c := newConnectionState(peer, addr, role, macKey)
	t.byKey[peer] = c
	return c, true
}

// Remove deletes the connection for peer.
func (t *ConnectionTable) Remove(peer wire.VerifyKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byKey, peer)
}

// Len reports the number of live connections.
func (t *ConnectionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byKey)
}

// Each calls fn for a stable snapshot of all live connections.
func (t *ConnectionTable) Each(fn func(*ConnectionState)) {
	t.mu.RLock()
	conns := make([]*ConnectionState, 0, len(t.byKey))
	for _, c := range t.byKey {
		conns = append(conns, c)
	}
	t.mu.RUnlock()
	for _, c := range conns {
		fn(c)
	}
}

// handshakeWaiter is a one-shot completion primitive (spec §9) paired with
// an independent KEX-retransmit lifetime: Wait unblocks a caller of Connect
// as soon as a connection is usable (first valid Merkle), while the KEX
// retransmit loop itself keeps running, driven by cancelKex, until a
// KeepAlive round trip confirms liveness (spec §4.2). The two signals are
// deliberately decoupled so a duplicate inbound Merkle after Wait has
// already fired still finds its KexPair here instead of minting a new one.
// Never exposed to application code.
type handshakeWaiter struct {
	done      chan struct{}
	once      sync.Once
	conn      *ConnectionState
	kex       identity.KexPair
	cancelKex context.CancelFunc
}

func (h *handshakeWaiter) Complete(conn *ConnectionState) {
	h.once.Do(func() {
		h.conn = conn
		close(h.done)
	})
}

func (h *handshakeWaiter) Wait() <-chan struct{} { return h.done }

// HandshakeTable tracks in-flight handshakes, outbound or symmetrically
// spawned in response to an unsolicited inbound Merkle, so a second caller
// (or a duplicate inbound Merkle) joins the existing attempt instead of
// starting a redundant one (spec §5: handshake-initiating table).
type HandshakeTable struct {
	mu      sync.Mutex
	waiters map[wire.VerifyKey]*handshakeWaiter
}

func NewHandshakeTable() *HandshakeTable {
	return &HandshakeTable{waiters: make(map[wire.VerifyKey]*handshakeWaiter)}
}

// Begin returns the waiter for peer, creating one (with its own fresh
// ephemeral KexPair, derived from parent via context.WithCancel) if none is
// in flight. started reports whether this call created a new attempt, in
// which case the caller must drive the handshake loop with kexCtx (only
// valid when started is true).
func (t *HandshakeTable) Begin(parent context.Context, peer wire.VerifyKey, kex identity.KexPair) (w *handshakeWaiter, kexCtx context.Context, started bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.waiters[peer]; ok {
		return w, nil, false
	}
	kexCtx, cancel := context.WithCancel(parent)
	w = &handshakeWaiter{done: make(chan struct{}), kex: kex, cancelKex: cancel}
	t.waiters[peer] = w
	return w, kexCtx, true
}

// Kex returns the ephemeral KexPair of an in-flight attempt to peer,
// whether we initiated it or it was spawned symmetrically in response to an
// unsolicited inbound Merkle.
func (t *HandshakeTable) Kex(peer wire.VerifyKey) (identity.KexPair, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.waiters[peer]
	if !ok {
		return identity.KexPair{}, false
	}
	return w.kex, true
}

// Finish marks the handshake with peer as usable, unblocking any Connect
// caller waiting on it. It deliberately leaves the table entry in place:
// the KEX retransmit loop keeps running, and a duplicate inbound Merkle
// must still resolve to the same KexPair, until StopKex ends it.
func (t *HandshakeTable) Finish(peer wire.VerifyKey, conn *ConnectionState) {
	t.mu.Lock()
	w, ok := t.waiters[peer]
	t.mu.Unlock()
	if ok {
		w.Complete(conn)
	}
}

// StopKex ends the KEX retransmit loop for peer, if one is running, and
// removes the table entry. Safe to call when no attempt is in flight (a
// later Merkle from the same peer then starts a fresh one). Grounded on
// spec §4.2's KeepAlive handler: a validated round trip is the signal to
// "abort and remove" the now-redundant retransmission.
func (t *HandshakeTable) StopKex(peer wire.VerifyKey) {
	t.mu.Lock()
	w, ok := t.waiters[peer]
	delete(t.waiters, peer)
	t.mu.Unlock()
	if ok && w.cancelKex != nil {
		w.cancelKex()
	}
}
