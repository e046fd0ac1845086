/*
Package aggregator implements the majority-vote evaluation state machine
of spec §4.6, grounded directly on original_source/net/src/common.rs's
EvaluationInfo: each assigned evaluator reports None -> Provisional(score,
detail_hash) -> {Final(score, revealed key) | Failed}, and the submission's
final score is whichever (score, revealed key) pair a strict majority of
ALL assigned evaluators (including any stuck at None or gone Failed) agree
on, checked via a Boyer-Moore majority pass.

The pre-reveal commitment hash is unique per evaluator by construction
(it keys on EvaluationId, which embeds the evaluator's own VerifyKey), so
it can never be the field two honest evaluators agree on. Agreement is
checked on the revealed key instead, which by construction IS the
canonical digest once a submission's evaluation is deterministic.
*/
package aggregator

import (
	"sync"

	"github.com/MyK00L/decipi/wire"
)

// State is one evaluator's progress against a single submission.
type State int

const (
	StateNone State = iota
	StateProvisional
	StateFinal
	StateFailed
)

// commit pairs a reported score with the commitment hash of its detail
// trace. The commitment is unique per evaluator, so agreement between
// evaluators is judged on finalVote, not on commit.
type commit struct {
	score      wire.SubScore
	detailHash wire.DetailHash
}

// SingleEvaluation is one evaluator's current state against a submission.
type SingleEvaluation struct {
	Evaluator wire.VerifyKey
	State     State
	commit    commit
	revealed  wire.RevealKey // set once State reaches StateFinal
}

// Score reports the ResultScore this evaluator has settled on, per spec
// §4.6's Score variant table.
func (s SingleEvaluation) Score() (wire.SubScore, bool) {
	switch s.State {
	case StateProvisional, StateFinal:
		return s.commit.score, true
	default:
		return 0, false
	}
}

// Info aggregates every evaluator assigned to one submission.
type Info struct {
	mu    sync.Mutex
	evals []*SingleEvaluation
}

// NewInfo creates an Info with one None-state entry per assigned evaluator.
func NewInfo(evaluators []wire.VerifyKey) *Info {
	evals := make([]*SingleEvaluation, len(evaluators))
	for i, vk := range evaluators {
		evals[i] = &SingleEvaluation{Evaluator: vk, State: StateNone}
	}
	return &Info{evals: evals}
}

func (info *Info) find(evaluator wire.VerifyKey) *SingleEvaluation {
	for _, e := range info.evals {
		if e.Evaluator == evaluator {
			return e
		}
	}
	return nil
}

// AddEvaluation records an evaluator's provisional (committed, unrevealed)
// score and detail hash.
func (info *Info) AddEvaluation(evaluator wire.VerifyKey, score wire.SubScore, detailHash wire.DetailHash) bool {
	info.mu.Lock()
	defer info.mu.Unlock()
	e := info.find(evaluator)
	if e == nil || e.State != StateNone {
		return false
	}
	e.State = StateProvisional
	e.commit = commit{score: score, detailHash: detailHash}
	return true
}

// AddEvaluationProof reveals the key behind a previously committed detail
// hash, promoting Provisional to Final if the reveal checks out, or to
// Failed if it doesn't (a lying or buggy evaluator).
func (info *Info) AddEvaluationProof(evalId wire.EvaluationId, revealKey wire.RevealKey) bool {
	info.mu.Lock()
	defer info.mu.Unlock()
	e := info.find(evalId.Evaluator)
	if e == nil || e.State != StateProvisional {
		return false
	}
	recomputed := wire.KeyedBlake3([32]byte(revealKey), wire.Encode(evalId))
	if recomputed != e.commit.detailHash {
		e.State = StateFailed
		return false
	}
	e.State = StateFinal
	e.revealed = revealKey
	return true
}

// MarkFailed forces an evaluator's state to Failed (e.g. it crashed or
// timed out before committing anything).
func (info *Info) MarkFailed(evaluator wire.VerifyKey) {
	info.mu.Lock()
	defer info.mu.Unlock()
	if e := info.find(evaluator); e != nil {
		e.State = StateFailed
	}
}

// ProvisionalScore returns the first evaluator's committed score
// (Provisional or Final, in assignment order), a rough estimate to show
// before majority has settled (spec §4.6: "any score from a Provisional
// or Final evaluator, preferring the first observed").
func (info *Info) ProvisionalScore() (wire.SubScore, bool) {
	info.mu.Lock()
	defer info.mu.Unlock()
	for _, e := range info.evals {
		if s, ok := e.Score(); ok {
			return s, true
		}
	}
	return 0, false
}

// IsDone reports whether every assigned evaluator has reached a terminal
// state (Final or Failed).
func (info *Info) IsDone() bool {
	info.mu.Lock()
	defer info.mu.Unlock()
	for _, e := range info.evals {
		if e.State != StateFinal && e.State != StateFailed {
			return false
		}
	}
	return true
}

// finalVote is what two Final evaluators must agree on: the score, and the
// revealed key behind the detail hash commitment. Unlike the pre-reveal
// commit (unique per evaluator by construction, see the package doc), the
// revealed key is identical across honest evaluators on the same
// deterministic submission, making it the right field to vote on.
type finalVote struct {
	score wire.SubScore
	reveal wire.RevealKey
}

// FinalScore runs a Boyer-Moore majority vote over the (score, revealed
// key) of Final evaluators, requiring the winner to hold a strict majority
// of ALL assigned evaluators -- including ones stuck at None or gone
// Failed, which count against the threshold without ever being able to
// vote for it (spec §4.6). Returns ok=false if no candidate commands a
// strict majority yet.
func (info *Info) FinalScore() (score wire.SubScore, detailHash wire.DetailHash, ok bool) {
	info.mu.Lock()
	defer info.mu.Unlock()

	total := len(info.evals)
	if total == 0 {
		return 0, wire.DetailHash{}, false
	}

	// Boyer-Moore candidate selection over Final votes only.
	var candidate finalVote
	var haveCandidate bool
	count := 0
	for _, e := range info.evals {
		if e.State != StateFinal {
			continue
		}
		vote := finalVote{score: e.commit.score, reveal: e.revealed}
		if count == 0 {
			candidate = vote
			haveCandidate = true
			count = 1
		} else if vote == candidate {
			count++
		} else {
			count--
		}
	}
	if !haveCandidate {
		return 0, wire.DetailHash{}, false
	}

	// Verify: count actual agreement against the full evaluator set, since
	// Boyer-Moore only guarantees a majority candidate if one exists among
	// the scanned sequence, and other evaluators still outstanding or
	// failed all count against the denominator.
	agree := 0
	for _, e := range info.evals {
		if e.State == StateFinal && e.commit.score == candidate.score && e.revealed == candidate.reveal {
			agree++
		}
	}
	if agree*2 <= total {
		return 0, wire.DetailHash{}, false
	}
	return candidate.score, wire.DetailHash(candidate.reveal), true
}
