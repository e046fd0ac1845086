package filestore

import (
	"bytes"
	"sync"

	"github.com/MyK00L/decipi/wire"
)

// Entitlements holds the EncKeyInfo records this node is willing to answer
// RequestGetEncKey queries from (spec §3): a peer may decrypt a file iff it
// holds an EncKey bound to an EncKeyId that the policy resolves true for.
// Registration is local only; nothing here crosses the wire except the
// sealed EncKeyInfo itself once a request is granted.
type Entitlements struct {
	mu      sync.Mutex
	entries []wire.EncKeyInfo
}

func NewEntitlements() *Entitlements {
	return &Entitlements{}
}

// Register records that info.Key is available to any peer for whom
// info.Id resolves true.
func (e *Entitlements) Register(info wire.EncKeyInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, info)
}

// Resolve looks up the entry whose Id matches want exactly and, if the
// requesting peer satisfies it, returns the sealed key. A peer naming an Id
// this node never registered, or one it does not satisfy, gets (_, false).
func (e *Entitlements) Resolve(want wire.EncKeyId, peer wire.VerifyKey, role wire.Entity, solved map[wire.ProblemId]bool) (wire.EncKey, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range e.entries {
		if !sameKeyId(entry.Id, want) {
			continue
		}
		if entry.Id.Satisfies(peer, role, solved) {
			return entry.Key, true
		}
	}
	return wire.EncKey{}, false
}

func sameKeyId(a, b wire.EncKeyId) bool {
	wa := wire.NewWriter(32)
	a.Encode(wa)
	wb := wire.NewWriter(32)
	b.Encode(wb)
	return bytes.Equal(wa.Bytes(), wb.Bytes())
}
