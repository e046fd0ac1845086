package evaluator

// Minimal WASM binary encoder, just enough to hand-build the tiny WASI
// command modules the end-to-end tests in this package need. There is no
// WASM toolchain anywhere in this environment to compile a .wat fixture, so
// these few helpers assemble the binary format directly: a handful of
// sections (type, import, function, memory, export, code, data) and a
// handful of opcodes is all any of the fixtures below require.

import "encoding/binary"

func uleb128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb128(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}

func wasmVec(items [][]byte) []byte {
	out := uleb128(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func wasmStr(s string) []byte {
	return append(uleb128(uint32(len(s))), []byte(s)...)
}

func wasmSection(id byte, payload []byte) []byte {
	return append([]byte{id}, append(uleb128(uint32(len(payload))), payload...)...)
}

const (
	valI32 = 0x7f
)

// wasmFuncType encodes a functype with the given param and result value
// types (each either valI32).
func wasmFuncType(params, results []byte) []byte {
	out := []byte{0x60}
	pv := make([][]byte, len(params))
	for i, p := range params {
		pv[i] = []byte{p}
	}
	rv := make([][]byte, len(results))
	for i, r := range results {
		rv[i] = []byte{r}
	}
	out = append(out, wasmVec(pv)...)
	out = append(out, wasmVec(rv)...)
	return out
}

func wasmImportFunc(mod, name string, typeIdx uint32) []byte {
	out := append([]byte{}, wasmStr(mod)...)
	out = append(out, wasmStr(name)...)
	out = append(out, 0x00) // import kind: func
	out = append(out, uleb128(typeIdx)...)
	return out
}

func wasmExport(name string, kind byte, idx uint32) []byte {
	out := append([]byte{}, wasmStr(name)...)
	out = append(out, kind)
	out = append(out, uleb128(idx)...)
	return out
}

const (
	exportKindFunc = 0x00
	exportKindMem  = 0x02
)

func wasmMemSection(minPages uint32) []byte {
	limits := append([]byte{0x00}, uleb128(minPages)...)
	return wasmSection(0x05, wasmVec([][]byte{limits}))
}

// wasmDataActive encodes an active data segment loaded into memory 0 at a
// constant offset.
func wasmDataActive(offset uint32, data []byte) []byte {
	out := []byte{0x00, 0x41}
	out = append(out, sleb128(int64(offset))...)
	out = append(out, 0x0b) // end
	out = append(out, uleb128(uint32(len(data)))...)
	out = append(out, data...)
	return out
}

// wasmFuncBody wraps a function's locals declaration and instruction stream
// (which must not include the trailing end opcode) into a size-prefixed
// code-section entry. locals is a list of (count, valtype) groups.
func wasmFuncBody(locals [][2]uint32, instrs []byte) []byte {
	body := uleb128(uint32(len(locals)))
	for _, l := range locals {
		body = append(body, uleb128(l[0])...)
		body = append(body, byte(l[1]))
	}
	body = append(body, instrs...)
	body = append(body, 0x0b) // end
	return append(uleb128(uint32(len(body))), body...)
}

// wasmModule assembles a complete module. typeSection/importSection entries
// are pre-encoded type/import payload vectors; fnTypeIdxs maps each
// locally-defined function (in order) to its type index; codies is the
// matching vector of wasmFuncBody outputs.
func wasmModule(types, imports [][]byte, fnTypeIdxs []uint32, memPages uint32, exports, codies, datas [][]byte) []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, wasmSection(0x01, wasmVec(types))...)
	if len(imports) > 0 {
		out = append(out, wasmSection(0x02, wasmVec(imports))...)
	}
	fnIdx := make([][]byte, len(fnTypeIdxs))
	for i, t := range fnTypeIdxs {
		fnIdx[i] = uleb128(t)
	}
	out = append(out, wasmSection(0x03, wasmVec(fnIdx))...)
	out = append(out, wasmMemSection(memPages)...)
	out = append(out, wasmSection(0x07, wasmVec(exports))...)
	out = append(out, wasmSection(0x0a, wasmVec(codies))...)
	if len(datas) > 0 {
		out = append(out, wasmSection(0x0b, wasmVec(datas))...)
	}
	return out
}

// Opcodes used by the fixtures below.
const (
	opUnreachable = 0x00
	opEnd         = 0x0b
	opBr          = 0x0c
	opCall        = 0x10
	opDrop        = 0x1a
	opSelect      = 0x1b
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opI32Load     = 0x28
	opI32Load8U   = 0x2c
	opI32Store    = 0x36
	opI32Const    = 0x41
	opI32Eq       = 0x46
	opI32And      = 0x71
	opMemorySize  = 0x3f
	opMemoryGrow  = 0x40
	opLoop        = 0x03
	blockTypeVoid = 0x40
)

func i32Const(v int64) []byte { return append([]byte{opI32Const}, sleb128(v)...) }
func call(fn uint32) []byte   { return append([]byte{opCall}, uleb128(fn)...) }
func memarg(align, offset uint32) []byte {
	return append(uleb128(align), uleb128(offset)...)
}

// wasmEmitConstant builds a WASI command module whose _start writes s to
// fd 1 (stdout) once and returns. Used for the "gen" stage of the
// happy-path end-to-end fixture, which emits the same test case regardless
// of the test id argument.
func wasmEmitConstant(s string) []byte {
	// memory layout: [0:8) iovec{ptr=8,len=len(s)}, [8:8+len(s)) the string,
	// [8+len(s):+4) nwritten scratch.
	strOff := uint32(8)
	nwrittenOff := strOff + uint32(len(s))

	iovec := make([]byte, 8)
	binary.LittleEndian.PutUint32(iovec[0:4], strOff)
	binary.LittleEndian.PutUint32(iovec[4:8], uint32(len(s)))

	var instrs []byte
	instrs = append(instrs, i32Const(1)...)           // fd = stdout
	instrs = append(instrs, i32Const(0)...)           // iovs ptr
	instrs = append(instrs, i32Const(1)...)           // iovs_len
	instrs = append(instrs, i32Const(int64(nwrittenOff))...)
	instrs = append(instrs, call(0)...) // fd_write (import idx 0)
	instrs = append(instrs, opDrop)

	fdWriteType := wasmFuncType([]byte{valI32, valI32, valI32, valI32}, []byte{valI32})
	startType := wasmFuncType(nil, nil)

	return wasmModule(
		[][]byte{fdWriteType, startType},
		[][]byte{wasmImportFunc("wasi_snapshot_preview1", "fd_write", 0)},
		[]uint32{1},
		1,
		[][]byte{wasmExport("memory", exportKindMem, 0), wasmExport("_start", exportKindFunc, 1)},
		[][]byte{wasmFuncBody(nil, instrs)},
		[][]byte{wasmDataActive(0, iovec), wasmDataActive(strOff, []byte(s))},
	)
}

// wasmEchoStdin builds a WASI command module whose _start reads up to
// bufLen bytes from fd 0 and writes exactly the bytes it read back to fd 1.
// Used for the "sub" stage of the happy-path fixture: it reproduces
// whatever gen produced, verbatim.
func wasmEchoStdin() []byte {
	const bufOff = 100
	const bufLen = 200
	// [0:8) iovec_read{ptr=bufOff,len=bufLen}
	// [8:12) nread scratch
	// [16:24) iovec_write{ptr=bufOff,len=<patched from nread at runtime>}
	// [24:28) nwritten scratch
	iovecRead := make([]byte, 8)
	binary.LittleEndian.PutUint32(iovecRead[0:4], bufOff)
	binary.LittleEndian.PutUint32(iovecRead[4:8], bufLen)
	iovecWrite := make([]byte, 8)
	binary.LittleEndian.PutUint32(iovecWrite[0:4], bufOff)

	var instrs []byte
	instrs = append(instrs, i32Const(0)...) // fd = stdin
	instrs = append(instrs, i32Const(0)...) // iovs ptr
	instrs = append(instrs, i32Const(1)...)
	instrs = append(instrs, i32Const(8)...) // nread ptr
	instrs = append(instrs, call(0)...)      // fd_read (import idx 0)
	instrs = append(instrs, opDrop)

	// iovec_write.len (offset 20) = mem[8] (nread)
	instrs = append(instrs, i32Const(20)...)
	instrs = append(instrs, i32Const(8)...)
	instrs = append(instrs, append([]byte{opI32Load}, memarg(2, 0)...)...)
	instrs = append(instrs, append([]byte{opI32Store}, memarg(2, 0)...)...)

	instrs = append(instrs, i32Const(1)...)  // fd = stdout
	instrs = append(instrs, i32Const(16)...) // iovs ptr
	instrs = append(instrs, i32Const(1)...)
	instrs = append(instrs, i32Const(24)...) // nwritten ptr
	instrs = append(instrs, call(1)...)       // fd_write (import idx 1)
	instrs = append(instrs, opDrop)

	rwType := wasmFuncType([]byte{valI32, valI32, valI32, valI32}, []byte{valI32})
	startType := wasmFuncType(nil, nil)

	return wasmModule(
		[][]byte{rwType, startType},
		[][]byte{
			wasmImportFunc("wasi_snapshot_preview1", "fd_read", 0),
			wasmImportFunc("wasi_snapshot_preview1", "fd_write", 0),
		},
		[]uint32{1},
		1,
		[][]byte{wasmExport("memory", exportKindMem, 0), wasmExport("_start", exportKindFunc, 2)},
		[][]byte{wasmFuncBody(nil, instrs)},
		[][]byte{wasmDataActive(0, iovecRead), wasmDataActive(16, iovecWrite)},
	)
}

// wasmCompareThreeAndEmit builds a WASI grader module: its _start reads up
// to 200 bytes from fd 0, compares the first three bytes read against want,
// and writes a single byte (matchByte on equality, mismatchByte otherwise)
// to fd 1. Used for the "eval" stage of the happy-path fixture.
func wasmCompareThreeAndEmit(want [3]byte, matchByte, mismatchByte byte) []byte {
	const bufOff = 100
	const bufLen = 200
	const matchOff = 200
	const mismatchOff = 201

	iovecRead := make([]byte, 8)
	binary.LittleEndian.PutUint32(iovecRead[0:4], bufOff)
	binary.LittleEndian.PutUint32(iovecRead[4:8], bufLen)
	iovecWrite := make([]byte, 8)
	binary.LittleEndian.PutUint32(iovecWrite[4:8], 1) // len is always 1; ptr patched at runtime

	var instrs []byte
	instrs = append(instrs, i32Const(0)...)
	instrs = append(instrs, i32Const(0)...)
	instrs = append(instrs, i32Const(1)...)
	instrs = append(instrs, i32Const(8)...)
	instrs = append(instrs, call(0)...) // fd_read
	instrs = append(instrs, opDrop)

	for i, w := range want {
		instrs = append(instrs, i32Const(int64(bufOff+i))...)
		instrs = append(instrs, append([]byte{opI32Load8U}, memarg(0, 0)...)...)
		instrs = append(instrs, i32Const(int64(w))...)
		instrs = append(instrs, opI32Eq)
		if i > 0 {
			instrs = append(instrs, opI32And)
		}
	}
	instrs = append(instrs, opLocalSet, 0) // local0 = match flag

	instrs = append(instrs, i32Const(16)...) // addr to store chosen ptr
	instrs = append(instrs, i32Const(matchOff)...)
	instrs = append(instrs, i32Const(mismatchOff)...)
	instrs = append(instrs, opLocalGet, 0)
	instrs = append(instrs, opSelect)
	instrs = append(instrs, append([]byte{opI32Store}, memarg(2, 0)...)...)

	instrs = append(instrs, i32Const(1)...)  // fd = stdout
	instrs = append(instrs, i32Const(16)...) // iovs ptr
	instrs = append(instrs, i32Const(1)...)
	instrs = append(instrs, i32Const(24)...) // nwritten ptr
	instrs = append(instrs, call(1)...)       // fd_write
	instrs = append(instrs, opDrop)

	rwType := wasmFuncType([]byte{valI32, valI32, valI32, valI32}, []byte{valI32})
	startType := wasmFuncType(nil, nil)

	return wasmModule(
		[][]byte{rwType, startType},
		[][]byte{
			wasmImportFunc("wasi_snapshot_preview1", "fd_read", 0),
			wasmImportFunc("wasi_snapshot_preview1", "fd_write", 0),
		},
		[]uint32{1},
		1,
		[][]byte{wasmExport("memory", exportKindMem, 0), wasmExport("_start", exportKindFunc, 2)},
		[][]byte{wasmFuncBody([][2]uint32{{1, valI32}}, instrs)},
		[][]byte{
			wasmDataActive(0, iovecRead),
			wasmDataActive(16, iovecWrite),
			wasmDataActive(matchOff, []byte{matchByte}),
			wasmDataActive(mismatchOff, []byte{mismatchByte}),
		},
	)
}

// wasmInfiniteLoop builds a module whose _start never returns. Used to
// exercise the CPU-deadline (TLE) path: it imports nothing, so it needs no
// WASI host function at all.
func wasmInfiniteLoop() []byte {
	instrs := []byte{opLoop, blockTypeVoid, opBr, 0x00, opEnd}
	startType := wasmFuncType(nil, nil)
	return wasmModule(
		[][]byte{startType},
		nil,
		[]uint32{0},
		1,
		[][]byte{wasmExport("memory", exportKindMem, 0), wasmExport("_start", exportKindFunc, 0)},
		[][]byte{wasmFuncBody(nil, instrs)},
		nil,
	)
}

// wasmUnreachableTrap builds a module whose _start immediately traps.
// Stands in for a submission that performs a disallowed operation (spec
// §8's sandbox-escape scenario): the sandbox has no filesystem or socket
// preopens at all (see Engine.run), so an attempt to reach either surfaces
// as exactly this kind of unconditional trap rather than a recoverable
// WASI errno.
func wasmUnreachableTrap() []byte {
	startType := wasmFuncType(nil, nil)
	return wasmModule(
		[][]byte{startType},
		nil,
		[]uint32{0},
		1,
		[][]byte{wasmExport("memory", exportKindMem, 0), wasmExport("_start", exportKindFunc, 0)},
		[][]byte{wasmFuncBody(nil, []byte{opUnreachable})},
		nil,
	)
}

// wasmGrowMemoryBeyondLimit builds a module whose _start requests a memory
// growth far larger than any Limits.MemoryPages used in these tests, to
// exercise the MLE path through the host's configured memory ceiling (see
// Engine's WithMemoryLimitPages and classifyRunError).
func wasmGrowMemoryBeyondLimit() []byte {
	var instrs []byte
	instrs = append(instrs, i32Const(1<<20)...) // grow delta: far beyond any configured limit
	instrs = append(instrs, opMemoryGrow, 0x00)
	instrs = append(instrs, opDrop)
	startType := wasmFuncType(nil, nil)
	return wasmModule(
		[][]byte{startType},
		nil,
		[]uint32{0},
		1,
		[][]byte{wasmExport("memory", exportKindMem, 0), wasmExport("_start", exportKindFunc, 0)},
		[][]byte{wasmFuncBody(nil, instrs)},
		nil,
	)
}
