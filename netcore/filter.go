/*
Package netcore implements the authenticated UDP overlay: the inbound
filter, the connection table, the Merkle handshake, keep-alive, and
fragmented file datagram routing (spec §4.2-§4.4).
*/
package netcore

import (
	"fmt"
	"sync"

	"github.com/MyK00L/decipi/internal/kvstore"
	"github.com/MyK00L/decipi/wire"
)

// Shape is a predefined inbound-filter configuration (spec §4.3): a
// server accepting workers from an explicit whitelist plus any
// participant/spectator, versus a client only ever accepting the server.
type Shape int

const (
	// ShapeOpenServer accepts any Participant/Spectator, and Workers only
	// if they appear in the worker whitelist.
	ShapeOpenServer Shape = iota
	// ShapeClientMode accepts only the single pinned server identity.
	ShapeClientMode
)

// rule is one allow/deny entry: either pinned to a specific VerifyKey, or
// to a whole Entity role.
type rule struct {
	allow bool
	role  wire.Entity
	key   wire.VerifyKey
	byKey bool
}

// Filter decides whether an inbound handshake from a given identity,
// address, and role should be accepted. It holds a pair of lists per
// spec: a VerifyKey-list (the denylist store plus, for ShapeOpenServer,
// the worker whitelist) and an Address-list (addrDenylist); a peer is
// admitted only if both lists admit it. Explicit bans persist via a
// pogreb-backed store so restarts don't forget manual decisions
// (grounded on Blacklist.go).
type Filter struct {
	mu           sync.RWMutex
	shape        Shape
	workers      map[wire.VerifyKey]bool // whitelist, ShapeOpenServer only
	pinned       wire.VerifyKey          // the single server identity, ShapeClientMode only
	hasPinned    bool
	denylist     kvstore.Store   // VerifyKey-list: explicit per-identity bans
	addrDenylist map[string]bool // Address-list: explicit per-host bans
}

// NewOpenServerFilter builds a server-side filter: Participants and
// Spectators are always accepted, Workers only if present in whitelist.
func NewOpenServerFilter(whitelist []wire.VerifyKey, denylist kvstore.Store) *Filter {
	workers := make(map[wire.VerifyKey]bool, len(whitelist))
	for _, vk := range whitelist {
		workers[vk] = true
	}
	return &Filter{shape: ShapeOpenServer, workers: workers, denylist: denylist, addrDenylist: make(map[string]bool)}
}

// NewClientModeFilter builds a participant/worker/spectator-side filter
// that only ever accepts the pinned server identity.
func NewClientModeFilter(server wire.VerifyKey, denylist kvstore.Store) *Filter {
	return &Filter{shape: ShapeClientMode, pinned: server, hasPinned: true, denylist: denylist, addrDenylist: make(map[string]bool)}
}

// Allow reports whether a handshake from peer at addr, claiming role,
// should be accepted: both the VerifyKey-list and the Address-list must
// admit it (spec §4.3).
func (f *Filter) Allow(peer wire.VerifyKey, addr wire.PeerAddr, role wire.Entity) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.denylist != nil {
		if _, banned := f.denylist.Get(peer[:]); banned {
			return false
		}
	}
	if f.addrDenylist[addr.IP.String()] {
		return false
	}

	switch f.shape {
	case ShapeClientMode:
		return f.hasPinned && peer == f.pinned
	case ShapeOpenServer:
		if role == wire.EntityWorker {
			return f.workers[peer]
		}
		return role == wire.EntityParticipant || role == wire.EntitySpectator
	default:
		return false
	}
}

// BanAddress adds host to the Address-list's deny set.
func (f *Filter) BanAddress(host string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addrDenylist == nil {
		f.addrDenylist = make(map[string]bool)
	}
	f.addrDenylist[host] = true
}

// UnbanAddress removes host from the Address-list's deny set.
func (f *Filter) UnbanAddress(host string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.addrDenylist, host)
}

// Ban persists a manual deny decision for peer, surviving process restart.
func (f *Filter) Ban(peer wire.VerifyKey, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denylist == nil {
		return fmt.Errorf("netcore: filter has no backing denylist store")
	}
	return f.denylist.Set(peer[:], []byte(reason))
}

// Unban removes a manual deny decision.
func (f *Filter) Unban(peer wire.VerifyKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denylist == nil {
		return nil
	}
	return f.denylist.Delete(peer[:])
}

// AllowWorker adds a VerifyKey to the worker whitelist (ShapeOpenServer).
func (f *Filter) AllowWorker(vk wire.VerifyKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.workers == nil {
		f.workers = make(map[wire.VerifyKey]bool)
	}
	f.workers[vk] = true
}
