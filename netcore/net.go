package netcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/MyK00L/decipi/identity"
	"github.com/MyK00L/decipi/wire"
)

// ErrNotConnected is returned by Send when no MacKey exists yet for peer.
var ErrNotConnected = errors.New("netcore: no established connection to peer")

// Inbound is a decoded application-layer message, paired with the sender's
// identity, handed to the caller of Recv.
type Inbound struct {
	From wire.VerifyKey
	Msg  wire.Message
}

// Net is the UDP router: one socket, the connection and handshake tables,
// the inbound filter, and the background Listen loop (grounded on
// Network.go's Listen/packetWorker split).
type Net struct {
	id       identity.Identity
	contest  wire.ContestId
	role     wire.Entity
	socket   *net.UDPConn
	filter   *Filter
	conns    *ConnectionTable
	inflight *HandshakeTable

	inbox  chan Inbound
	cancel context.CancelFunc
}

// NewNet binds a UDP socket at addr and prepares the router. Call Listen to
// start processing packets.
func NewNet(addr string, id identity.Identity, contest wire.ContestId, role wire.Entity, filter *Filter) (*Net, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("netcore: resolve %s: %w", addr, err)
	}
	socket, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("netcore: listen %s: %w", addr, err)
	}
	return &Net{
		id:       id,
		contest:  contest,
		role:     role,
		socket:   socket,
		filter:   filter,
		conns:    NewConnectionTable(),
		inflight: NewHandshakeTable(),
		inbox:    make(chan Inbound, 256),
	}, nil
}

// LocalAddr returns the bound UDP address.
func (n *Net) LocalAddr() *net.UDPAddr { return n.socket.LocalAddr().(*net.UDPAddr) }

// Connections exposes the live connection table, for diagnostics and the
// queue/aggregator layers that need to enumerate known peers.
func (n *Net) Connections() *ConnectionTable { return n.conns }

// Listen runs the receive loop until ctx is canceled or Close is called.
// Each datagram is MAC/signature-checked and dispatched to Recv's channel;
// invalid or unroutable datagrams are dropped silently, mirroring
// Network.go's Listen loop discarding below-minimum-length packets.
func (n *Net) Listen(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	go func() {
		<-ctx.Done()
		n.socket.Close()
	}()

	buf := make([]byte, wire.MaxPacketSize)
	for {
		length, addr, err := n.socket.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				close(n.inbox)
				return
			}
			log.Printf("netcore: read error: %v", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if length > wire.MaxMessageSize {
			continue
		}
		msg, err := wire.DecodeMessage(buf[:length])
		if err != nil {
			continue
		}
		n.handleInbound(msg, wire.PeerAddrFromUDP(addr))
	}
}

// Close shuts down the socket and receive loop.
func (n *Net) Close() error {
	if n.cancel != nil {
		n.cancel()
	}
	return nil
}

// Recv blocks until an application-layer message (everything but the
// handshake/keep-alive Net variants, which this router consumes itself)
// arrives, or ctx is done.
func (n *Net) Recv(ctx context.Context) (Inbound, error) {
	select {
	case in, ok := <-n.inbox:
		if !ok {
			return Inbound{}, errors.New("netcore: router closed")
		}
		return in, nil
	case <-ctx.Done():
		return Inbound{}, ctx.Err()
	}
}

func (n *Net) handleInbound(msg wire.Message, from wire.PeerAddr) {
	switch msg.Kind {
	case wire.MessageNet:
		n.handleNetMessage(msg.Net, from)
		return
	case wire.MessageQueue:
		n.routeMacced(msg)
	case wire.MessageFile:
		n.routeByAddr(from, msg)
	case wire.MessageEncKey:
		n.routeByAddr(from, msg)
	case wire.MessageRequest:
		n.routeByAddr(from, msg)
	case wire.MessageSubmission:
		n.routeByAddr(from, msg)
	case wire.MessageQuestion:
		n.routeByAddr(from, msg)
	}
}

// routeByAddr finds the connection matching the sender's observed address
// and, if its MAC checks out against that connection's MacKey, delivers the
// message to Recv's channel. File/Request/EncKey/Submission/Question
// messages don't carry a VerifyKey inline (they're already inside a
// connection's authenticated channel), so the peer is identified by
// address rather than by a signer field.
func (n *Net) routeByAddr(from wire.PeerAddr, msg wire.Message) {
	var matched *ConnectionState
	n.conns.Each(func(c *ConnectionState) {
		if matched != nil {
			return
		}
		addr, _, _ := c.Snapshot()
		if addr.Equal(from) {
			matched = c
		}
	})
	if matched == nil {
		return
	}
	_, _, macKey := matched.Snapshot()
	if !maccedChecks(msg, macKey) {
		return
	}
	select {
	case n.inbox <- Inbound{From: matched.PeerId, Msg: msg}:
	default:
		log.Printf("netcore: inbox full, dropping message from %s", matched.PeerId)
	}
}

// maccedChecks verifies the MAC of whichever Macced variant msg carries.
func maccedChecks(msg wire.Message, key wire.MacKey) bool {
	switch msg.Kind {
	case wire.MessageFile:
		return msg.File.Check(key)
	case wire.MessageEncKey:
		return msg.EncKey.Check(key)
	case wire.MessageRequest:
		return msg.Request.Check(key)
	case wire.MessageSubmission:
		return msg.Submission.Check(key)
	case wire.MessageQuestion:
		return msg.Question.Check(key)
	default:
		return false
	}
}

// routeMacced is used for the Queue message, which carries no sender
// address of its own: the outer MAC is tried against every live
// connection's MacKey until one checks out, and From is set to THAT
// connection's own PeerId, never to the inner SignedQueueMessage's
// self-declared Signer field -- a field the message's own author
// controls and which a verifier must never treat as a trust anchor
// before the embedded signature is itself checked against a known key.
func (n *Net) routeMacced(msg wire.Message) {
	var delivered bool
	n.conns.Each(func(c *ConnectionState) {
		if delivered {
			return
		}
		_, _, macKey := c.Snapshot()
		if !msg.Queue.Check(macKey) {
			return
		}
		delivered = true
		select {
		case n.inbox <- Inbound{From: c.PeerId, Msg: msg}:
		default:
			log.Printf("netcore: inbox full, dropping queue message")
		}
	})
}

// Send transmits an already-sealed application message to peer's current
// address, failing with ErrNotConnected if no handshake has completed yet.
// It adds no MAC of its own: callers wrap the payload with wire.NewMacced.
func (n *Net) Send(peer wire.VerifyKey, msg wire.Message) error {
	conn, ok := n.conns.Get(peer)
	if !ok {
		return ErrNotConnected
	}
	addr, _, _ := conn.Snapshot()
	_, err := n.socket.WriteToUDP(wire.Encode(msg), addr.UDPAddr())
	return err
}
