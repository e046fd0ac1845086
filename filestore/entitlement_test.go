package filestore

import (
	"testing"

	"github.com/MyK00L/decipi/wire"
)

func TestEntitlementsResolveGrantsWhenSatisfied(t *testing.T) {
	var peer wire.VerifyKey
	peer[0] = 0x42
	id := wire.IsClientKeyId(peer)
	var key wire.EncKey
	key[0] = 0x99

	e := NewEntitlements()
	e.Register(wire.EncKeyInfo{Id: id, Key: key})

	got, ok := e.Resolve(id, peer, wire.EntityParticipant, nil)
	if !ok || got != key {
		t.Fatalf("Resolve() = (%v, %v), want (%v, true)", got, ok, key)
	}
}

func TestEntitlementsResolveDeniesWrongPeer(t *testing.T) {
	var owner, other wire.VerifyKey
	owner[0] = 1
	other[0] = 2
	id := wire.IsClientKeyId(owner)

	e := NewEntitlements()
	e.Register(wire.EncKeyInfo{Id: id, Key: wire.EncKey{}})

	if _, ok := e.Resolve(id, other, wire.EntityParticipant, nil); ok {
		t.Fatal("Resolve() should deny a peer the policy does not name")
	}
}

func TestEntitlementsResolveUnknownIdFails(t *testing.T) {
	e := NewEntitlements()
	if _, ok := e.Resolve(wire.IsEntityKeyId(wire.EntityWorker), wire.VerifyKey{}, wire.EntityWorker, nil); ok {
		t.Fatal("Resolve() should fail for an Id never registered")
	}
}
