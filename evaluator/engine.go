package evaluator

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Engine owns one wazero Runtime configured for a single trust tier: the
// contest engine (gen/eval, trusted) or the submission engine (sub,
// adversarial). Grounded on the Rust original's get_contest_engine /
// get_submission_engine split, which differ only in whether fuel
// (wasmtime's instruction counter) is metered; wazero has no equivalent
// counter, so the distinction here is the memory cap and the CPU deadline
// applied around each run (see DESIGN.md).
type Engine struct {
	runtime   wazero.Runtime
	metered   bool
	memPages  uint32
	cpuBudget time.Duration
}

// NewContestEngine builds the trusted engine used to run gen/eval modules.
func NewContestEngine(ctx context.Context) (*Engine, error) {
	cfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(trustedMemoryPages).
		WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return nil, fmt.Errorf("evaluator: instantiate WASI for contest engine: %w", err)
	}
	return &Engine{runtime: rt, metered: false, memPages: trustedMemoryPages, cpuBudget: trustedDeadline}, nil
}

// NewSubmissionEngine builds the sandboxed engine used to run a
// submission's sub module, capped to limits.
func NewSubmissionEngine(ctx context.Context, limits Limits) (*Engine, error) {
	cfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(limits.MemoryPages).
		WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return nil, fmt.Errorf("evaluator: instantiate WASI for submission engine: %w", err)
	}
	return &Engine{runtime: rt, metered: true, memPages: limits.MemoryPages, cpuBudget: limits.CPU}, nil
}

// Close releases the engine's compiled module cache and WASI host module.
func (e *Engine) Close(ctx context.Context) error { return e.runtime.Close(ctx) }

// runResult carries a module run's captured stdout, its final linear
// memory image (fed into the execution digest per spec §4.5), and a step
// count for the digest. wazero exposes no instruction counter, so run
// leaves steps at 0.
type runResult struct {
	stdout []byte
	memory []byte
	steps  uint64
}

// run compiles and instantiates wasmBytes as a WASI command module,
// feeding it stdin and args, under the engine's configured memory cap and
// CPU deadline. No filesystem preopens and no configured wall-clock/random
// source are provided (spec §4.5: pure-compute sandbox only) -- wazero's
// WASI clock_time_get/random_get implementations fall back to a
// deterministic zero/error source when no host-backed one is configured,
// so omitting them is itself the determinism guarantee rather than
// something this code must separately enforce.
func (e *Engine) run(ctx context.Context, wasmBytes []byte, args []string, stdin []byte) (runResult, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if e.cpuBudget > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.cpuBudget)
		defer cancel()
	}

	compiled, err := e.runtime.CompileModule(runCtx, wasmBytes)
	if err != nil {
		return runResult{}, fmt.Errorf("evaluator: compile module: %w", err)
	}
	defer compiled.Close(runCtx)

	var stdout bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithStdin(bytes.NewReader(stdin)).
		WithStdout(&stdout).
		WithStderr(discardWriter{}).
		WithArgs(append([]string{"module"}, args...)...).
		WithFSConfig(wazero.NewFSConfig())

	mod, err := e.runtime.InstantiateModule(runCtx, compiled, modCfg)
	if mod != nil {
		defer mod.Close(runCtx)
	}

	// Snapshot the module's final linear memory before Close tears it
	// down, trap or no trap: the execution digest is defined over this
	// image regardless of how the run ended (spec §4.5).
	var memory []byte
	if mod != nil {
		if mem := mod.Memory(); mem != nil {
			if snap, ok := mem.Read(0, mem.Size()); ok {
				memory = append([]byte(nil), snap...)
			}
		}
	}

	if err != nil {
		return runResult{stdout: stdout.Bytes(), memory: memory}, err
	}

	// No step count is reported: wazero has no fuel counter, and a
	// wall-clock measurement would differ between runs and break the
	// digest's reproducibility.
	return runResult{stdout: stdout.Bytes(), memory: memory}, nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
