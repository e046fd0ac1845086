package main

import (
	"context"
	"testing"
	"time"

	"github.com/MyK00L/decipi/config"
	"github.com/MyK00L/decipi/filestore"
	"github.com/MyK00L/decipi/identity"
	"github.com/MyK00L/decipi/netcore"
	"github.com/MyK00L/decipi/wire"
)

func TestParseEntity(t *testing.T) {
	cases := map[string]wire.Entity{
		"server":      wire.EntityServer,
		"worker":      wire.EntityWorker,
		"participant": wire.EntityParticipant,
		"spectator":   wire.EntitySpectator,
	}
	for s, want := range cases {
		got, ok := parseEntity(s)
		if !ok || got != want {
			t.Fatalf("parseEntity(%q) = (%v, %v), want (%v, true)", s, got, ok, want)
		}
	}
	if _, ok := parseEntity("admin"); ok {
		t.Fatal("parseEntity(\"admin\") should fail")
	}
}

func TestParseServerKeyFromSeedList(t *testing.T) {
	cfg := config.Config{SeedList: []config.PeerSeed{
		{PublicKey: "00000000000000000000000000000000000000000000000000000000000000aa", Address: "1.2.3.4:5"},
	}}
	vk, ok := parseServerKey(cfg)
	if !ok {
		t.Fatal("expected parseServerKey to succeed")
	}
	if vk[31] != 0xaa {
		t.Fatalf("parsed key mismatch: %x", vk)
	}
}

func TestParseServerKeyEmptySeedList(t *testing.T) {
	if _, ok := parseServerKey(config.Config{}); ok {
		t.Fatal("expected parseServerKey to fail with no seed list")
	}
}

func TestHandleRequestGrantsEncKeyWhenRoleSatisfiesPolicy(t *testing.T) {
	idServer, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate server identity: %v", err)
	}
	idWorker, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate worker identity: %v", err)
	}

	contest := wire.ContestId{1}
	server, err := netcore.NewNet("127.0.0.1:0", idServer, contest, wire.EntityServer,
		netcore.NewOpenServerFilter([]wire.VerifyKey{idWorker.Verify}, nil))
	if err != nil {
		t.Fatalf("new server net: %v", err)
	}
	defer server.Close()
	worker, err := netcore.NewNet("127.0.0.1:0", idWorker, contest, wire.EntityWorker,
		netcore.NewClientModeFilter(idServer.Verify, nil))
	if err != nil {
		t.Fatalf("new worker net: %v", err)
	}
	defer worker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go server.Listen(ctx)
	go worker.Listen(ctx)

	if _, err := worker.Connect(ctx, idServer.Verify, wire.PeerAddrFromUDP(server.LocalAddr())); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var serverConn *netcore.ConnectionState
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c, ok := server.Connections().Get(idWorker.Verify); ok {
			serverConn = c
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if serverConn == nil {
		t.Fatal("server never saw the worker's connection")
	}

	policy := wire.IsEntityKeyId(wire.EntityWorker)
	var sealed wire.EncKey
	sealed[0] = 0xAB
	entitlements := filestore.NewEntitlements()
	entitlements.Register(wire.EncKeyInfo{Id: policy, Key: sealed})

	_, _, macKey := serverConn.Snapshot()
	req := wire.NewMacced(wire.RequestMessage{Kind: wire.RequestGetEncKey, KeyId: policy}, macKey)
	handleRequest(server, entitlements, idWorker.Verify, req)

	in, err := worker.Recv(ctx)
	if err != nil {
		t.Fatalf("worker never received the granted key: %v", err)
	}
	if in.Msg.Kind != wire.MessageEncKey {
		t.Fatalf("got message kind %v, want MessageEncKey", in.Msg.Kind)
	}
	_, _, workerMac := func() (wire.PeerAddr, wire.Entity, wire.MacKey) {
		c, _ := worker.Connections().Get(idServer.Verify)
		return c.Snapshot()
	}()
	info, err := in.Msg.EncKey.Inner(workerMac)
	if err != nil {
		t.Fatalf("decode granted EncKeyInfo: %v", err)
	}
	if info.Key != sealed {
		t.Fatalf("granted key = %v, want %v", info.Key, sealed)
	}
}

func TestHandleRequestDropsUnsatisfiedPolicy(t *testing.T) {
	idServer, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate server identity: %v", err)
	}
	idSpectator, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate spectator identity: %v", err)
	}

	contest := wire.ContestId{2}
	server, err := netcore.NewNet("127.0.0.1:0", idServer, contest, wire.EntityServer,
		netcore.NewOpenServerFilter([]wire.VerifyKey{idSpectator.Verify}, nil))
	if err != nil {
		t.Fatalf("new server net: %v", err)
	}
	defer server.Close()
	spectator, err := netcore.NewNet("127.0.0.1:0", idSpectator, contest, wire.EntitySpectator,
		netcore.NewClientModeFilter(idServer.Verify, nil))
	if err != nil {
		t.Fatalf("new spectator net: %v", err)
	}
	defer spectator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go server.Listen(ctx)
	go spectator.Listen(ctx)

	if _, err := spectator.Connect(ctx, idServer.Verify, wire.PeerAddrFromUDP(server.LocalAddr())); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var serverConn *netcore.ConnectionState
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c, ok := server.Connections().Get(idSpectator.Verify); ok {
			serverConn = c
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if serverConn == nil {
		t.Fatal("server never saw the spectator's connection")
	}

	policy := wire.IsEntityKeyId(wire.EntityWorker) // spectator does not satisfy this
	entitlements := filestore.NewEntitlements()
	entitlements.Register(wire.EncKeyInfo{Id: policy, Key: wire.EncKey{0xFF}})

	_, _, macKey := serverConn.Snapshot()
	req := wire.NewMacced(wire.RequestMessage{Kind: wire.RequestGetEncKey, KeyId: policy}, macKey)
	handleRequest(server, entitlements, idSpectator.Verify, req)

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer recvCancel()
	if _, err := spectator.Recv(recvCtx); err == nil {
		t.Fatal("spectator should not have received a key it doesn't satisfy the policy for")
	}
}

func TestDenylistPathUsesKeyStoreWhenSet(t *testing.T) {
	got := denylistPath(config.Config{KeyStorePath: "/tmp/id.pem"})
	if got != "/tmp/id.pem.denylist" {
		t.Fatalf("denylistPath = %q", got)
	}
	if denylistPath(config.Config{}) != "decipi.denylist" {
		t.Fatal("denylistPath default mismatch")
	}
}
