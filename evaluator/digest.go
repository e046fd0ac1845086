package evaluator

import (
	"encoding/binary"
	"math"

	"lukechampine.com/blake3"

	"github.com/MyK00L/decipi/wire"
)

// canonicalNaN is the bit pattern every NaN is normalized to before it
// enters a digest or a cross-evaluator comparison. Different WASI runtimes
// (and different CPUs) can produce NaNs with different payload bits for
// the same computation; without canonicalization two honest evaluators
// could disagree on DetailHash purely from NaN payload noise, breaking the
// majority-vote assumption that identical runs produce identical hashes.
const canonicalNaN = 0x7ff8000000000000

func canonicalizeFloat(f float64) float64 {
	if math.IsNaN(f) {
		return math.Float64frombits(canonicalNaN)
	}
	return f
}

// digestBuilder accumulates one evaluation's entire execution digest: a
// single blake3 hasher fed once per module run across the whole testset
// (spec §4.5), not re-created per test. finalize() is called exactly once,
// after the last run, to yield the submission's DetailHash.
type digestBuilder struct {
	h *blake3.Hasher
}

func newDigestBuilder() *digestBuilder {
	return &digestBuilder{h: blake3.New(32, nil)}
}

// writeRun feeds one module run's final memory image into the digest, and,
// for metered runs (the submission engine only), steps as big-endian 8
// bytes; Engine.run has no instruction counter and always reports 0 steps. Untrusted stdin/stdout are deliberately
// not part of the digest: they're already reproduced by the memory image,
// and the spec defines the digest purely in terms of execution state.
func (d *digestBuilder) writeRun(memory []byte, metered bool, steps uint64) {
	d.h.Write(memory)
	if metered {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], steps)
		d.h.Write(b[:])
	}
}

func (d *digestBuilder) finalize() wire.DetailHash {
	var out wire.DetailHash
	copy(out[:], d.h.Sum(nil))
	return out
}
