/*
Package evaluator runs the three-stage gen/sub/eval WASI pipeline of spec
§4.5 in a sandboxed WebAssembly runtime: gen produces a test case, sub (the
untrusted submission) consumes it and produces an answer, eval grades that
answer. Grounded on original_source/evaluator/src/lib.rs's
run_gen/run_sub/run_eval/evaluate_on_test, reimplemented on
github.com/tetratelabs/wazero since no WASM runtime exists anywhere in the
retrieved Go corpus (see DESIGN.md).
*/
package evaluator

import "time"

// Limits bounds a submission's single run (spec §4.5): memory in 64KiB
// WebAssembly pages, and a CPU budget. wazero has no wasmtime-style
// instruction-fuel counter, so CPU is bounded by a wall-clock deadline
// instead (see DESIGN.md); gen/eval modules, being trusted contest code,
// run under a generous fixed deadline rather than Limits.CPU.
type Limits struct {
	MemoryPages uint32
	CPU         time.Duration
}

// trustedDeadline bounds gen/eval execution, which is contest-author code
// and not subject to a submission's CPU budget.
const trustedDeadline = 10 * time.Second

// trustedMemoryPages bounds gen/eval memory loosely; they are not the
// sandboxed-for-malice stage.
const trustedMemoryPages = 256 // 16 MiB
