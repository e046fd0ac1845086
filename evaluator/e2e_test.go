package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/MyK00L/decipi/wire"
)

func newTestEngines(t *testing.T, limits Limits) (contest, submission *Engine) {
	t.Helper()
	ctx := context.Background()
	contest, err := NewContestEngine(ctx)
	if err != nil {
		t.Fatalf("NewContestEngine: %v", err)
	}
	t.Cleanup(func() { contest.Close(ctx) })
	submission, err = NewSubmissionEngine(ctx, limits)
	if err != nil {
		t.Fatalf("NewSubmissionEngine: %v", err)
	}
	t.Cleanup(func() { submission.Close(ctx) })
	return contest, submission
}

// Spec §8 scenario 1: happy path. gen always emits "17\n", sub echoes it
// back verbatim, eval compares the echo against "17\n" and emits "1" on a
// match. Every test should score 1.0 and evaluate_submission's max_score
// should agree.
func TestEndToEndHappyPath(t *testing.T) {
	contest, submission := newTestEngines(t, Limits{MemoryPages: 16, CPU: 2 * time.Second})

	gen := wasmEmitConstant("17\n")
	sub := wasmEchoStdin()
	eval := wasmCompareThreeAndEmit([3]byte{'1', '7', '\n'}, '1', '0')

	ctx := context.Background()
	verdicts, digest, err := EvaluateOnTestSet(ctx, contest, submission, gen, sub, eval, 16)
	if err != nil {
		t.Fatalf("EvaluateOnTestSet: %v", err)
	}
	if len(verdicts) != 16 {
		t.Fatalf("len(verdicts) = %d, want 16", len(verdicts))
	}
	for i, v := range verdicts {
		if v.Kind != VerdictScore || v.Score != 1.0 {
			t.Fatalf("verdict[%d] = %+v, want Score(1.0)", i, v)
		}
	}
	if digest == (wire.DetailHash{}) {
		t.Fatal("digest should not be the zero value once runs executed")
	}

	maxScore, detailHash, err := EvaluateSubmission(ctx, contest, submission, gen, sub, eval, 16)
	if err != nil {
		t.Fatalf("EvaluateSubmission: %v", err)
	}
	if maxScore != 1.0 {
		t.Fatalf("max_score = %v, want 1.0", maxScore)
	}
	if detailHash != digest {
		t.Fatal("EvaluateSubmission's detail_hash should match EvaluateOnTestSet's digest for the same runs")
	}
}

// Spec §8 scenario 2: TLE. sub spins forever; the submission engine's CPU
// deadline must cut it off and classify it as a time-limit failure rather
// than hanging the test.
func TestEndToEndTimeLimitExceeded(t *testing.T) {
	contest, submission := newTestEngines(t, Limits{MemoryPages: 16, CPU: 50 * time.Millisecond})

	gen := wasmEmitConstant("1\n")
	sub := wasmInfiniteLoop()
	eval := wasmCompareThreeAndEmit([3]byte{'1', '\n', 0}, '1', '0')

	ctx := context.Background()
	digest := newDigestBuilder()
	v, err := EvaluateOnTest(ctx, contest, submission, digest, gen, sub, eval, 0)
	if err != nil {
		t.Fatalf("EvaluateOnTest: %v", err)
	}
	if v.Kind != VerdictTLE {
		t.Fatalf("verdict = %+v, want TLE", v)
	}
}

// Spec §8 scenario 3: MLE. sub requests a memory growth far beyond the
// submission engine's configured page cap; the host's own enforcement
// (Engine's WithMemoryLimitPages) must turn that into an MLE verdict.
func TestEndToEndMemoryLimitExceeded(t *testing.T) {
	contest, submission := newTestEngines(t, Limits{MemoryPages: 1, CPU: 2 * time.Second})

	gen := wasmEmitConstant("1\n")
	sub := wasmGrowMemoryBeyondLimit()
	eval := wasmCompareThreeAndEmit([3]byte{'1', '\n', 0}, '1', '0')

	ctx := context.Background()
	digest := newDigestBuilder()
	v, err := EvaluateOnTest(ctx, contest, submission, digest, gen, sub, eval, 0)
	if err != nil {
		t.Fatalf("EvaluateOnTest: %v", err)
	}
	if v.Kind != VerdictMLE {
		t.Fatalf("verdict = %+v, want MLE", v)
	}
}

// Spec §8 scenario 4: RTE / sandbox escape. sub traps unconditionally,
// standing in for a submission reaching past the sandbox (no filesystem or
// socket preopens are ever configured, so any such attempt traps the same
// way). The aborted run must not abort the whole evaluation -- it's a
// normal per-test outcome.
func TestEndToEndRuntimeError(t *testing.T) {
	contest, submission := newTestEngines(t, Limits{MemoryPages: 16, CPU: 2 * time.Second})

	gen := wasmEmitConstant("1\n")
	sub := wasmUnreachableTrap()
	eval := wasmCompareThreeAndEmit([3]byte{'1', '\n', 0}, '1', '0')

	ctx := context.Background()
	verdicts, _, err := EvaluateOnTestSet(ctx, contest, submission, gen, sub, eval, 3)
	if err != nil {
		t.Fatalf("EvaluateOnTestSet: %v", err)
	}
	for i, v := range verdicts {
		if v.Kind != VerdictRTE {
			t.Fatalf("verdict[%d] = %+v, want RTE", i, v)
		}
	}
}
