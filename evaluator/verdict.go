package evaluator

import (
	"context"
	"errors"
	"strings"

	"github.com/tetratelabs/wazero/sys"
)

// VerdictKind is one outcome of running a submission against a single test
// (spec §4.5). Supersedes original_source/evaluator/src/lib.rs's TestEval,
// whose Rust snippet only had Score/TLE/RTE: this additionally requires
// MLE (memory limit exceeded) and MFO (malformed output, i.e. the
// submission's stdout did not parse as the expected answer format).
type VerdictKind int

const (
	VerdictScore VerdictKind = iota
	VerdictTLE
	VerdictMLE
	VerdictRTE
	VerdictMFO
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictScore:
		return "score"
	case VerdictTLE:
		return "tle"
	case VerdictMLE:
		return "mle"
	case VerdictRTE:
		return "rte"
	case VerdictMFO:
		return "mfo"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of one test run: either a Score in [0, 1], or one
// of the failure kinds above.
type Verdict struct {
	Kind  VerdictKind
	Score float64
}

func ScoreVerdict(score float64) Verdict { return Verdict{Kind: VerdictScore, Score: score} }
func TLE() Verdict                       { return Verdict{Kind: VerdictTLE} }
func MLE() Verdict                       { return Verdict{Kind: VerdictMLE} }
func RTE() Verdict                       { return Verdict{Kind: VerdictRTE} }
func MFO() Verdict                       { return Verdict{Kind: VerdictMFO} }

// classifyRunError maps a wazero execution error to a trap classification.
// wazero surfaces a deadline-triggered interruption as context.DeadlineExceeded
// (when the runtime is configured WithCloseOnContextDone), an explicit
// proc_exit as *sys.ExitError, and a failed memory.grow (from
// WithMemoryLimitPages) as a trap whose message names the growth failure.
func classifyRunError(err error) Verdict {
	if err == nil {
		return Verdict{}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TLE()
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return RTE()
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "out of memory") || strings.Contains(msg, "memory.grow") || strings.Contains(msg, "unable to grow") {
		return MLE()
	}
	return RTE()
}
