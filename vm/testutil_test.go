package vm

import "github.com/vertexdlt/vertexvm/leb128"

// moduleBuilder assembles a minimal WebAssembly binary by hand for tests,
// so execution semantics can be exercised without shelling out to an
// external wat2wasm toolchain.
type moduleBuilder struct {
	types     [][]byte
	imports   [][]byte
	funcs     []uint32
	codes     [][]byte
	exports   []exportEntry
	memory    []byte
	hasMemory bool
	start     *uint32
}

type exportEntry struct {
	name string
	idx  uint32
}

func newModuleBuilder() *moduleBuilder {
	return &moduleBuilder{}
}

// addType registers a (params)->(results) function type and returns its
// index.
func (b *moduleBuilder) addType(params, results []byte) uint32 {
	ft := []byte{0x60}
	ft = append(ft, leb128.EncodeU32(uint32(len(params)))...)
	ft = append(ft, params...)
	ft = append(ft, leb128.EncodeU32(uint32(len(results)))...)
	ft = append(ft, results...)
	b.types = append(b.types, ft)
	return uint32(len(b.types) - 1)
}

// addFunc registers a function of the given type with declared locals
// (all the same type, for test simplicity) and a raw instruction body
// (including the closing 0x0b end, matching the binary format).
func (b *moduleBuilder) addFunc(typeIdx uint32, localType byte, numLocals int, body []byte) uint32 {
	b.funcs = append(b.funcs, typeIdx)

	var locals []byte
	if numLocals == 0 {
		locals = leb128.EncodeU32(0)
	} else {
		locals = append(leb128.EncodeU32(1), leb128.EncodeU32(uint32(numLocals))...)
		locals = append(locals, localType)
	}
	entry := append(append([]byte{}, locals...), body...)
	sized := append(leb128.EncodeU32(uint32(len(entry))), entry...)
	b.codes = append(b.codes, sized)
	return uint32(len(b.funcs) - 1)
}

// addImport registers an imported function and returns its combined
// function index (always lower than every locally defined function's).
func (b *moduleBuilder) addImport(module, name string, typeIdx uint32) uint32 {
	entry := leb128.EncodeU32(uint32(len(module)))
	entry = append(entry, []byte(module)...)
	entry = append(entry, leb128.EncodeU32(uint32(len(name)))...)
	entry = append(entry, []byte(name)...)
	entry = append(entry, 0x00) // external kind: func
	entry = append(entry, leb128.EncodeU32(typeIdx)...)
	b.imports = append(b.imports, entry)
	return uint32(len(b.imports) - 1)
}

func (b *moduleBuilder) export(name string, funcIdx uint32) {
	b.exports = append(b.exports, exportEntry{name: name, idx: funcIdx})
}

func (b *moduleBuilder) withMemory(minPages int, init []byte) {
	b.hasMemory = true
	b.memory = init
	_ = minPages
}

func (b *moduleBuilder) withStart(funcIdx uint32) {
	b.start = &funcIdx
}

func section(id byte, payload []byte) []byte {
	out := []byte{id}
	out = append(out, leb128.EncodeU32(uint32(len(payload)))...)
	return append(out, payload...)
}

func (b *moduleBuilder) bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	var typeSec []byte
	typeSec = append(typeSec, leb128.EncodeU32(uint32(len(b.types)))...)
	for _, t := range b.types {
		typeSec = append(typeSec, t...)
	}
	if len(b.types) > 0 {
		out = append(out, section(1, typeSec)...)
	}

	if len(b.imports) > 0 {
		var importSec []byte
		importSec = append(importSec, leb128.EncodeU32(uint32(len(b.imports)))...)
		for _, imp := range b.imports {
			importSec = append(importSec, imp...)
		}
		out = append(out, section(2, importSec)...)
	}

	var funcSec []byte
	funcSec = append(funcSec, leb128.EncodeU32(uint32(len(b.funcs)))...)
	for _, idx := range b.funcs {
		funcSec = append(funcSec, leb128.EncodeU32(idx)...)
	}
	if len(b.funcs) > 0 {
		out = append(out, section(3, funcSec)...)
	}

	if b.hasMemory {
		memSec := append(leb128.EncodeU32(1), 0x00) // one memory, no max
		memSec = append(memSec, leb128.EncodeU32(1)...)
		out = append(out, section(5, memSec)...)
	}

	if len(b.exports) > 0 {
		var expSec []byte
		expSec = append(expSec, leb128.EncodeU32(uint32(len(b.exports)))...)
		for _, e := range b.exports {
			expSec = append(expSec, leb128.EncodeU32(uint32(len(e.name)))...)
			expSec = append(expSec, []byte(e.name)...)
			expSec = append(expSec, 0x00)
			expSec = append(expSec, leb128.EncodeU32(e.idx)...)
		}
		out = append(out, section(7, expSec)...)
	}

	if b.start != nil {
		out = append(out, section(8, leb128.EncodeU32(*b.start))...)
	}

	var codeSec []byte
	codeSec = append(codeSec, leb128.EncodeU32(uint32(len(b.codes)))...)
	for _, c := range b.codes {
		codeSec = append(codeSec, c...)
	}
	if len(b.codes) > 0 {
		out = append(out, section(10, codeSec)...)
	}

	if b.hasMemory && len(b.memory) > 0 {
		var dataSec []byte
		dataSec = append(dataSec, leb128.EncodeU32(1)...)
		dataSec = append(dataSec, leb128.EncodeU32(0)...) // mem idx
		dataSec = append(dataSec, 0x41)                   // i32.const
		dataSec = append(dataSec, leb128.EncodeI32(0)...)
		dataSec = append(dataSec, 0x0b) // end
		dataSec = append(dataSec, leb128.EncodeU32(uint32(len(b.memory)))...)
		dataSec = append(dataSec, b.memory...)
		out = append(out, section(11, dataSec)...)
	}

	return out
}

const (
	vtI32 byte = 0x7f
	vtI64 byte = 0x7e
)
