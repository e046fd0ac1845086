package evaluator

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/MyK00L/decipi/wire"
)

// EvaluateOnTest runs the full gen -> sub -> eval pipeline for one test
// (spec §4.5 steps 1-3), folding every run's execution into digest and
// returning the test's verdict. A failure of gen, or of eval once sub
// succeeded, aborts the whole evaluation (returned as an error); a trapped
// or malformed sub run is a normal per-test outcome, not an error.
func EvaluateOnTest(ctx context.Context, contest, submission *Engine, digest *digestBuilder, genWasm, subWasm, evalWasm []byte, testId uint64) (Verdict, error) {
	genRes, err := contest.run(ctx, genWasm, []string{strconv.FormatUint(testId, 10)}, nil)
	if err != nil {
		return Verdict{}, fmt.Errorf("evaluator: run_gen: %w", err)
	}
	digest.writeRun(genRes.memory, false, 0)
	testCase := genRes.stdout

	subRes, subErr := submission.run(ctx, subWasm, nil, testCase)
	digest.writeRun(subRes.memory, true, subRes.steps)
	if subErr != nil {
		return classifyRunError(subErr), nil
	}

	evalRes, err := contest.run(ctx, evalWasm, []string{strconv.FormatUint(testId, 10)}, subRes.stdout)
	if err != nil {
		// The grader itself is trusted contest code; a failure here is
		// this evaluator's own infrastructure problem, not the
		// submission's fault, so it is propagated rather than turned
		// into a verdict.
		return Verdict{}, fmt.Errorf("evaluator: run_eval: %w", err)
	}
	digest.writeRun(evalRes.memory, false, 0)

	score, err := strconv.ParseFloat(strings.TrimSpace(string(evalRes.stdout)), 64)
	if err != nil {
		return Verdict{}, fmt.Errorf("evaluator: grader produced a non-numeric score: %w", err)
	}
	score = canonicalizeFloat(score)
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 || score > 1 {
		return Verdict{}, fmt.Errorf("evaluator: grader score %v is not finite and in [0, 1]", score)
	}
	return ScoreVerdict(score), nil
}

// EvaluateOnTestSet runs EvaluateOnTest for every test in [0, count), in
// order, sharing one digestBuilder across the whole testset and finalizing
// it exactly once at the end (spec §4.5), stopping early only on an
// infrastructure error (not on a per-test trap verdict, which is a normal
// outcome to record).
func EvaluateOnTestSet(ctx context.Context, contest, submission *Engine, genWasm, subWasm, evalWasm []byte, count uint64) ([]Verdict, wire.DetailHash, error) {
	digest := newDigestBuilder()
	verdicts := make([]Verdict, 0, count)
	for testId := uint64(0); testId < count; testId++ {
		v, err := EvaluateOnTest(ctx, contest, submission, digest, genWasm, subWasm, evalWasm, testId)
		if err != nil {
			return verdicts, digest.finalize(), err
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, digest.finalize(), nil
}

// EvaluateSubmission is evaluate_submission (spec §4.5): it runs the full
// testset and reduces the per-test verdicts to max_score, the maximum of
// the finite per-test scores with non-score verdicts treated as 0, paired
// with the whole evaluation's DetailHash.
func EvaluateSubmission(ctx context.Context, contest, submission *Engine, genWasm, subWasm, evalWasm []byte, count uint64) (maxScore float64, detailHash wire.DetailHash, err error) {
	verdicts, digest, err := EvaluateOnTestSet(ctx, contest, submission, genWasm, subWasm, evalWasm, count)
	if err != nil {
		return 0, digest, err
	}
	for _, v := range verdicts {
		if v.Kind == VerdictScore && v.Score > maxScore {
			maxScore = v.Score
		}
	}
	return maxScore, digest, nil
}
