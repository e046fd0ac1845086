package netcore

import (
	"context"
	"math/rand"
	"time"

	"github.com/MyK00L/decipi/identity"
	"github.com/MyK00L/decipi/wire"
)

// kexRetryMin/Max bound the outbound handshake retry interval: uniform
// random 40-400ms per spec §4.2.
const (
	kexRetryMin = 40 * time.Millisecond
	kexRetryMax = 400 * time.Millisecond
)

func randomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// Connect establishes (or joins an in-flight attempt to establish) an
// authenticated connection to peer at addr, blocking until the handshake
// completes or ctx is done. If a connection to peer already exists, it is
// returned immediately without a new handshake.
func (n *Net) Connect(ctx context.Context, peer wire.VerifyKey, addr wire.PeerAddr) (*ConnectionState, error) {
	if conn, ok := n.conns.Get(peer); ok {
		return conn, nil
	}

	kex, err := identity.NewKexPair()
	if err != nil {
		return nil, err
	}
	w, kexCtx, started := n.inflight.Begin(ctx, peer, kex)
	if started {
		go n.driveHandshake(kexCtx, peer, addr, w.kex)
	}

	select {
	case <-w.Wait():
		return w.conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (n *Net) myMerkleMessage(kex identity.KexPair, addr wire.PeerAddr) wire.Message {
	payload := wire.MerklePayload{
		Contest: n.contest,
		At:      wire.TimestampNow(),
		KexPub:  kex.Public,
		Addr:    wire.NewObfuscated(addr),
		Role:    n.role,
	}
	signed := wire.NewSigned[wire.MerklePayload, wire.VerifyKey](payload, n.id.Verify, n.id.SigKey)
	return wire.MessageFromNet(wire.NetMessageMerkle(signed))
}

// driveHandshake repeatedly sends a signed Merkle announcement to addr
// until ctx is canceled. A connection becoming usable (MacKey derived) is
// NOT by itself a stop condition: per spec §4.2 the KEX retransmit only
// stops once a KeepAlive round trip confirms liveness, which cancels ctx
// via HandshakeTable.StopKex. peer is unused for routing here (addr is
// fixed for the lifetime of one attempt) but keeps the signature symmetric
// with the table this loop is registered under.
func (n *Net) driveHandshake(ctx context.Context, peer wire.VerifyKey, addr wire.PeerAddr, kex identity.KexPair) {
	msg := n.myMerkleMessage(kex, wire.PeerAddrFromUDP(n.LocalAddr()))
	raw := wire.Encode(msg)

	for {
		n.socket.WriteToUDP(raw, addr.UDPAddr())

		select {
		case <-ctx.Done():
			return
		case <-time.After(randomDuration(kexRetryMin, kexRetryMax)):
		}
	}
}

// handleNetMessage processes the handshake/keep-alive control plane.
func (n *Net) handleNetMessage(nm wire.NetMessage, from wire.PeerAddr) {
	switch nm.Kind {
	case wire.NetMerkle:
		n.handleMerkle(nm.Merkle, from)
	case wire.NetKeepAlive:
		n.handleKeepAlive(nm.KeepAlive)
	}
}

func (n *Net) handleMerkle(signed wire.MerkleMessage, from wire.PeerAddr) {
	payload, signer, err := signed.Inner(signed.Signer)
	if err != nil {
		return
	}
	if !payload.At.Valid(time.Now()) {
		return
	}
	if payload.Contest != n.contest {
		return
	}
	if signer == n.id.Verify {
		return // loopback of our own broadcast/retry, ignore
	}
	if !n.filter.Allow(signer, from, payload.Role) {
		return
	}

	// Reuse whichever KexPair is already in flight for signer rather than
	// minting a fresh one: a duplicate inbound Merkle (retransmitted by a
	// peer that hasn't yet seen our reply) must derive the same MacKey it
	// derived the first time, never silently rekey an already-established
	// connection.
	kex, weInitiated := n.inflight.Kex(signer)
	if !weInitiated {
		fresh, err := identity.NewKexPair()
		if err != nil {
			return
		}
		w, kexCtx, started := n.inflight.Begin(context.Background(), signer, fresh)
		kex = w.kex
		if started {
			// Symmetric finalization (spec §4.2): we never requested this
			// peer, but our own Merkle still needs to reach it reliably, so
			// an outbound KEX loop runs on our side too instead of riding
			// on a single unacknowledged reply packet.
			go n.driveHandshake(kexCtx, signer, from, kex)
		}
	}

	macKey, err := identity.DeriveMacKey(kex.Secret, payload.KexPub)
	if err != nil {
		return
	}

	conn, created := n.conns.GetOrCreate(signer, from, payload.Role, macKey)
	if !created {
		conn.Replace(from, payload.Role, macKey, func() func() { return n.startKeepAlive(conn) })
	}

	n.inflight.Finish(signer, conn)
}
