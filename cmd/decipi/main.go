/*
decipi is the command-line entry point for a single node in the overlay:
a worker, a participant, a spectator, or the contest server itself,
depending on --entity. Grounded on the flag.Parse-then-context-driven
main loop of go-node/main.go, with exit codes named in the spirit of
Exit.go (a dedicated constant per startup failure rather than a single
log.Fatal).
*/
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MyK00L/decipi/config"
	"github.com/MyK00L/decipi/diagnostics"
	"github.com/MyK00L/decipi/filestore"
	"github.com/MyK00L/decipi/identity"
	"github.com/MyK00L/decipi/internal/kvstore"
	"github.com/MyK00L/decipi/internal/logx"
	"github.com/MyK00L/decipi/netcore"
	"github.com/MyK00L/decipi/queue"
	"github.com/MyK00L/decipi/wire"
)

// Exit codes, named per failing subsystem rather than collapsed into one.
const (
	exitSuccess      = 0
	exitBadConfig    = 1
	exitBadArgs      = 2
	exitBadIdentity  = 3
	exitBadContestId = 4
	exitBadSocket    = 5
	exitBadDenylist  = 6
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "decipi.yaml", "path to the YAML config file")
		entity     = flag.String("entity", "", "role: server | worker | participant | spectator")
		contestHex = flag.String("contest-id", "", "hex-encoded 128-bit contest id")
		listenAddr = flag.String("listen", "", "ip:port to bind the UDP socket")
		serverAddr = flag.String("server-addr", "", "bootstrap peer ip:port")
		serverPSK  = flag.String("server-psk", "", "hex-encoded 32-byte server pre-shared key")
		diagAddr   = flag.String("diagnostics-addr", "", "http status/events listen address, empty disables")
		keyPath    = flag.String("key-path", "", "identity PEM file, empty uses the per-user default")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logx.Error("main", "loading config: %v", err)
		return exitBadConfig
	}
	cfg = config.Overlay{
		Entity:          *entity,
		ContestId:       *contestHex,
		Listen:          *listenAddr,
		ServerAddr:      *serverAddr,
		ServerPSK:       *serverPSK,
		DiagnosticsAddr: *diagAddr,
		KeyStorePath:    *keyPath,
	}.Apply(cfg)

	if err := logx.ToFile(cfg.LogFile); err != nil {
		logx.Error("main", "opening log file: %v", err)
		return exitBadConfig
	}

	role, ok := parseEntity(cfg.Entity)
	if !ok {
		logx.Error("main", "invalid --entity %q: want server, worker, participant, or spectator", cfg.Entity)
		return exitBadArgs
	}

	var contest wire.ContestId
	if cfg.ContestId != "" {
		b, err := hex.DecodeString(cfg.ContestId)
		if err != nil || len(b) != len(contest) {
			logx.Error("main", "invalid --contest-id %q: want 32 hex characters", cfg.ContestId)
			return exitBadContestId
		}
		copy(contest[:], b)
	}

	id, err := identity.LoadOrGenerate(cfg.KeyStorePath)
	if err != nil {
		logx.Error("main", "loading identity: %v", err)
		return exitBadIdentity
	}
	logx.Info("main", "identity %s, role %s, contest %x", id.Verify, role, contest[:])

	denylist, err := kvstore.NewPogrebStore(denylistPath(cfg))
	if err != nil {
		logx.Error("main", "opening denylist store: %v", err)
		return exitBadDenylist
	}
	defer denylist.Close()

	var filter *netcore.Filter
	if role == wire.EntityServer {
		filter = netcore.NewOpenServerFilter(nil, denylist)
	} else {
		server, ok := parseServerKey(cfg)
		if !ok {
			logx.Error("main", "client-mode entities need a server key: populate SeedList[0].PublicKey in the config")
			return exitBadArgs
		}
		filter = netcore.NewClientModeFilter(server, denylist)
	}

	router, err := netcore.NewNet(cfg.Listen, id, contest, role, filter)
	if err != nil {
		logx.Error("main", "binding socket %s: %v", cfg.Listen, err)
		return exitBadSocket
	}
	defer router.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Listen(ctx)

	files := filestore.NewStore()
	entitlements := filestore.NewEntitlements()
	q := queue.New()
	hub := diagnostics.NewHub()

	if cfg.DiagnosticsAddr != "" {
		srv := diagnostics.NewServer(id.Verify.String(), router.Connections(), q, hub)
		go func() {
			if err := srv.ListenAndServe(cfg.DiagnosticsAddr); err != nil {
				logx.Error("diagnostics", "server exited: %v", err)
			}
		}()
	}

	serverKey, haveServerKey := parseServerKey(cfg)

	if cfg.ServerAddr != "" {
		udpAddr, err := net.ResolveUDPAddr("udp", cfg.ServerAddr)
		if err != nil {
			logx.Error("main", "invalid --server-addr %q: %v", cfg.ServerAddr, err)
			return exitBadArgs
		}
		if conn, err := router.Connect(ctx, serverKey, wire.PeerAddrFromUDP(udpAddr)); err != nil {
			logx.Error("main", "connecting to server: %v", err)
		} else {
			router.IncKeepalive(conn.PeerId)
			hub.Publish(diagnostics.Event{Kind: diagnostics.EventPeerConnected, At: time.Now(), Peer: conn.PeerId.String()})
		}
	}

	go dispatchLoop(ctx, router, files, entitlements, q, hub, serverKey, haveServerKey)

	logx.Info("main", "listening on %s", router.LocalAddr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logx.Info("main", "shutting down")
	return exitSuccess
}

// dispatchLoop applies inbound messages to the queue-ordering and
// file-reassembly layers and surfaces notable occurrences to the
// diagnostics event feed, mirroring Network.go's packetWorker dispatch
// loop but generalized to decipi's message set.
func dispatchLoop(ctx context.Context, router *netcore.Net, files *filestore.Store, entitlements *filestore.Entitlements, q *queue.Queue, hub *diagnostics.Hub, serverKey wire.VerifyKey, haveServerKey bool) {
	for {
		in, err := router.Recv(ctx)
		if err != nil {
			return
		}
		switch in.Msg.Kind {
		case wire.MessageQueue:
			if !haveServerKey {
				continue
			}
			signed, err := in.Msg.Queue.Inner(mustMacKey(router, in.From))
			if err != nil {
				continue
			}
			// Verify against the pinned server identity, never against the
			// message's own self-declared Signer field: any peer could mint
			// a keypair and claim to be the server, and Inner's signature
			// check only means something when the verification key comes
			// from outside the message itself.
			qm, signer, err := signed.Inner(serverKey)
			if err != nil || signer != serverKey {
				continue
			}
			for _, committed := range q.Add(qm) {
				announceQueueMessage(hub, in.From, committed)
			}
		case wire.MessageFile:
			handleFileChunk(files, in.Msg.File)
		case wire.MessageRequest:
			handleRequest(router, entitlements, in.From, in.Msg.Request)
		}
	}
}

// handleRequest answers a RequestGetEncKey by evaluating the claimed
// EncKeyId against the requester's connection-table role (spec §3): a peer
// may decrypt a file iff it holds an EncKey bound to an EncKeyId that
// resolves true for it. Unresolved or unsatisfied requests are silently
// dropped, the same as a RequestGetChunk for an untracked hash.
func handleRequest(router *netcore.Net, entitlements *filestore.Entitlements, from wire.VerifyKey, req wire.Macced[wire.RequestMessage]) {
	macKey := mustMacKey(router, from)
	rm, err := req.Inner(macKey)
	if err != nil || rm.Kind != wire.RequestGetEncKey {
		return
	}
	conn, ok := router.Connections().Get(from)
	if !ok {
		return
	}
	_, role, _ := conn.Snapshot()
	key, ok := entitlements.Resolve(rm.KeyId, from, role, nil)
	if !ok {
		return
	}
	info := wire.EncKeyInfo{Id: rm.KeyId, Key: key}
	router.Send(from, wire.MessageFromEncKey(wire.NewMacced(info, macKey)))
}

// mustMacKey looks up peer's current MacKey; the zero key is returned if
// unknown, which simply fails the subsequent MAC check harmlessly.
func mustMacKey(router *netcore.Net, peer wire.VerifyKey) wire.MacKey {
	conn, ok := router.Connections().Get(peer)
	if !ok {
		return wire.MacKey{}
	}
	_, _, macKey := conn.Snapshot()
	return macKey
}

func announceQueueMessage(hub *diagnostics.Hub, from wire.VerifyKey, msg wire.QueueMessage) {
	var kind diagnostics.EventKind
	switch msg.Inner.Kind {
	case wire.QISubmission:
		kind = diagnostics.EventSubmissionQueued
	default:
		return
	}
	hub.Publish(diagnostics.Event{Kind: kind, At: time.Now(), Peer: from.String()})
}

// handleFileChunk feeds an inbound fragment to the file store if that hash
// is already being tracked (a prior GetEncKey/request exchange registered
// it); chunks for unknown hashes are dropped.
func handleFileChunk(files *filestore.Store, msg wire.FileMessage) {
	pieces, ok := files.GetFile(msg.Hash)
	if !ok {
		return
	}
	pieces.AddEncChunk(int(msg.PieceIndex), msg.Data)
}

func parseEntity(s string) (wire.Entity, bool) {
	switch s {
	case "server":
		return wire.EntityServer, true
	case "worker":
		return wire.EntityWorker, true
	case "participant":
		return wire.EntityParticipant, true
	case "spectator":
		return wire.EntitySpectator, true
	default:
		return 0, false
	}
}

// parseServerKey resolves the pinned server identity for client-mode
// filtering from the config's seed list: the first entry is taken to be
// the contest server.
func parseServerKey(cfg config.Config) (wire.VerifyKey, bool) {
	if len(cfg.SeedList) == 0 {
		return wire.VerifyKey{}, false
	}
	b, err := hex.DecodeString(cfg.SeedList[0].PublicKey)
	if err != nil || len(b) != 32 {
		return wire.VerifyKey{}, false
	}
	var vk wire.VerifyKey
	copy(vk[:], b)
	return vk, true
}

func denylistPath(cfg config.Config) string {
	if cfg.KeyStorePath != "" {
		return cfg.KeyStorePath + ".denylist"
	}
	return "decipi.denylist"
}
