package evaluator

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tetratelabs/wazero/sys"

	"github.com/MyK00L/decipi/wire"
)

func TestClassifyRunErrorMapsTrapKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want VerdictKind
	}{
		{"deadline", context.DeadlineExceeded, VerdictTLE},
		{"exit", &sys.ExitError{}, VerdictRTE},
		{"oom phrase", errors.New("wasm error: out of memory"), VerdictMLE},
		{"grow phrase", errors.New("failed to grow memory.grow by 4 pages"), VerdictMLE},
		{"other trap", errors.New("unreachable"), VerdictRTE},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := classifyRunError(c.err)
			if got.Kind != c.want {
				t.Fatalf("classifyRunError(%v) = %v, want %v", c.err, got.Kind, c.want)
			}
		})
	}
}

func TestClassifyRunErrorNilIsZeroVerdict(t *testing.T) {
	got := classifyRunError(nil)
	if got.Kind != VerdictScore || got.Score != 0 {
		t.Fatalf("classifyRunError(nil) = %+v, want zero value", got)
	}
}

func TestCanonicalizeFloatNormalizesAllNaNs(t *testing.T) {
	bitPatterns := []uint64{
		0x7ff8000000000001,
		0xfff8000000000000,
		0x7ff0000000000001,
	}
	var want float64
	for i, bits := range bitPatterns {
		f := math.Float64frombits(bits)
		if !math.IsNaN(f) {
			t.Fatalf("bit pattern %d did not produce NaN", i)
		}
		got := canonicalizeFloat(f)
		if i == 0 {
			want = got
		} else if math.Float64bits(got) != math.Float64bits(want) {
			t.Fatalf("canonicalizeFloat not idempotent across NaN payloads: %x vs %x", math.Float64bits(got), math.Float64bits(want))
		}
	}
}

func TestCanonicalizeFloatLeavesOrdinaryValuesAlone(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 0.5, math.Inf(1), math.Inf(-1)} {
		if got := canonicalizeFloat(f); got != f {
			t.Fatalf("canonicalizeFloat(%v) = %v, want unchanged", f, got)
		}
	}
}

func digestOf(memory []byte, metered bool, steps uint64) wire.DetailHash {
	d := newDigestBuilder()
	d.writeRun(memory, metered, steps)
	return d.finalize()
}

func TestDigestBuilderDeterministicAndSensitiveToStepsAndMemory(t *testing.T) {
	a := digestOf([]byte{1, 2, 3}, true, 100)
	b := digestOf([]byte{1, 2, 3}, true, 100)
	if a != b {
		t.Fatalf("digest not deterministic: %x vs %x", a, b)
	}
	c := digestOf([]byte{1, 2, 3}, true, 200)
	if a == c {
		t.Fatal("digest ignored step count")
	}
	d := digestOf([]byte{1, 2, 4}, true, 100)
	if a == d {
		t.Fatal("digest ignored memory image")
	}
	e := digestOf([]byte{1, 2, 3}, false, 100)
	if a == e {
		t.Fatal("digest did not distinguish metered from unmetered runs")
	}
}

func TestDigestBuilderAccumulatesAcrossMultipleRuns(t *testing.T) {
	single := newDigestBuilder()
	single.writeRun([]byte("gen"), false, 0)
	single.writeRun([]byte("sub"), true, 42)
	single.writeRun([]byte("eval"), false, 0)

	other := newDigestBuilder()
	other.writeRun([]byte("gen"), false, 0)
	other.writeRun([]byte("sub"), true, 42)
	other.writeRun([]byte("eval"), false, 0)

	if single.finalize() != other.finalize() {
		t.Fatal("two identical sequences of runs should finalize to the same digest")
	}

	partial := newDigestBuilder()
	partial.writeRun([]byte("gen"), false, 0)
	partial.writeRun([]byte("sub"), true, 42)
	if partial.finalize() == single.finalize() {
		t.Fatal("finalizing after fewer runs should not collide with the full sequence")
	}
}

func TestVerdictConstructors(t *testing.T) {
	if v := ScoreVerdict(0.75); v.Kind != VerdictScore || v.Score != 0.75 {
		t.Fatalf("ScoreVerdict: got %+v", v)
	}
	for _, tc := range []struct {
		v    Verdict
		want VerdictKind
	}{
		{TLE(), VerdictTLE},
		{MLE(), VerdictMLE},
		{RTE(), VerdictRTE},
		{MFO(), VerdictMFO},
	} {
		if tc.v.Kind != tc.want {
			t.Fatalf("got kind %v, want %v", tc.v.Kind, tc.want)
		}
	}
}

func TestVerdictKindString(t *testing.T) {
	want := map[VerdictKind]string{
		VerdictScore: "score",
		VerdictTLE:   "tle",
		VerdictMLE:   "mle",
		VerdictRTE:   "rte",
		VerdictMFO:   "mfo",
	}
	for k, s := range want {
		if k.String() != s {
			t.Fatalf("VerdictKind(%d).String() = %q, want %q", k, k.String(), s)
		}
	}
}

func TestLimitsCPUIsWallClockBudget(t *testing.T) {
	l := Limits{MemoryPages: 64, CPU: 2 * time.Second}
	if l.CPU != 2*time.Second || l.MemoryPages != 64 {
		t.Fatalf("Limits did not round-trip fields: %+v", l)
	}
}
