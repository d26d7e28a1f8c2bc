// Package wasm decodes the WebAssembly 1.0 binary format into an in-memory
// module tree, and defines the instruction and value vocabulary the
// execution engine (package vm) interprets.
//
// Decoding is pure and all-or-nothing: DecodeModule either returns a fully
// formed Module or the first DecodeError encountered, never a partial one.
// It performs only the structural checks needed to reach executable code
// (§1); it does not validate that instruction sequences are type-correct,
// which remains the caller's responsibility before invoking a function.
package wasm

import "fmt"

// Section ids recognised by the core. Every other id is tolerated and its
// payload is skipped without interpretation, matching the binary format's
// forward-compatibility contract.
const (
	secCustom   byte = 0
	secType     byte = 1
	secImport   byte = 2
	secFunction byte = 3
	secTable    byte = 4
	secMemory   byte = 5
	secGlobal   byte = 6
	secExport   byte = 7
	secStart    byte = 8
	secElement  byte = 9
	secCode     byte = 10
	secData     byte = 11
)

// ExternalKind identifies what an Import or Export refers to.
type ExternalKind byte

// External kinds.
const (
	ExternFunc   ExternalKind = 0x00
	ExternTable  ExternalKind = 0x01
	ExternMem    ExternalKind = 0x02
	ExternGlobal ExternalKind = 0x03
)

// Import is one entry of the import section: a module-qualified name and
// the type of external it expects to be satisfied with. Imports are a
// module-level surface concern, resolved by the embedder (§1), not the
// core decoder or engine.
type Import struct {
	Module string
	Field  string
	Kind   ExternalKind

	TypeIdx    uint32      // valid when Kind == ExternFunc
	Table      *TableType  // valid when Kind == ExternTable
	Mem        *MemType    // valid when Kind == ExternMem
	GlobalType *GlobalType // valid when Kind == ExternGlobal
	Loc        SourceLocation
}

// Export is one entry of the export section.
type Export struct {
	Name string
	Kind ExternalKind
	Idx  uint32
}

// Global is a module-defined global variable: its type and its constant
// initializer expression.
type Global struct {
	Type GlobalType
	Init []Instr
	Loc  SourceLocation
}

// Element is one segment of the element section, populating a table with
// function indices at instantiation time.
type Element struct {
	TableIdx uint32
	Offset   []Instr
	FuncIdxs []uint32
}

// DataSegment is one segment of the data section, populating linear memory
// at instantiation time.
type DataSegment struct {
	MemIdx uint32
	Offset []Instr
	Init   []byte
}

// Code is the body of one function: its flattened local declarations and
// its instruction sequence. The body never contains the trailing `end`
// opcode; `end` is purely a decoder terminator.
type Code struct {
	Locals []ValType
	Body   []Instr
	Loc    SourceLocation
}

// Module is the decoded, immutable representation of a WebAssembly binary.
// Besides the type, function and code sections it carries the rest of the
// module-level surface (imports, tables, memories, globals, exports, the
// start function, element and data segments), which package vm reads when
// it instantiates the module and when it calls functions.
type Module struct {
	Version uint32

	Types   []FuncType
	Imports []Import
	// Funcs holds one type-section index per module-defined (i.e.
	// non-imported) function, indexed in declaration order.
	Funcs   []uint32
	Tables  []TableType
	Mems    []MemType
	Globals []Global
	Exports map[string]Export
	Start   *uint32
	Elems   []Element
	Code    []Code
	Data    []DataSegment
}

// NumImportedFuncs returns how many of the module's functions are imports,
// which precede module-defined functions in the function index space.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ExternFunc {
			n++
		}
	}
	return n
}

// FuncType returns the signature of the funcIdx-th function in the combined
// (imports ++ module-defined) function index space.
func (m *Module) FuncType(funcIdx int) (FuncType, error) {
	nImported := m.NumImportedFuncs()
	if funcIdx < nImported {
		i := 0
		for _, imp := range m.Imports {
			if imp.Kind != ExternFunc {
				continue
			}
			if i == funcIdx {
				return m.Types[imp.TypeIdx], nil
			}
			i++
		}
	}
	local := funcIdx - nImported
	if local < 0 || local >= len(m.Funcs) {
		return FuncType{}, fmt.Errorf("wasm: function index %d out of range", funcIdx)
	}
	typeIdx := m.Funcs[local]
	if int(typeIdx) >= len(m.Types) {
		return FuncType{}, fmt.Errorf("wasm: function %d refers to out-of-range type %d", funcIdx, typeIdx)
	}
	return m.Types[typeIdx], nil
}

// LocalCode returns the Code entry for the local (non-imported) function at
// funcIdx in the combined function index space.
func (m *Module) LocalCode(funcIdx int) (Code, error) {
	local := funcIdx - m.NumImportedFuncs()
	if local < 0 || local >= len(m.Code) {
		return Code{}, fmt.Errorf("wasm: function index %d has no local code", funcIdx)
	}
	return m.Code[local], nil
}

// NumImportedGlobals returns how many of the module's globals are imports,
// which precede module-defined globals in the global index space.
func (m *Module) NumImportedGlobals() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ExternGlobal {
			n++
		}
	}
	return n
}

// DecodeModule decodes a complete WebAssembly binary module. It is pure:
// it neither mutates bytes nor retains a reference to it after returning.
func DecodeModule(bytes []byte) (*Module, error) {
	r := NewReader(bytes)
	if err := r.Magic(); err != nil {
		return nil, err
	}
	if err := r.Version(); err != nil {
		return nil, err
	}

	m := &Module{Version: 1, Exports: map[string]Export{}}

	var lastID byte
	seenNonCustom := false
	for r.Len() > 0 {
		idStart := r.Pos()
		id, err := r.Byte()
		if err != nil {
			return nil, err
		}
		if id != secCustom {
			if seenNonCustom && id <= lastID {
				return nil, newDecodeError(InvalidSectionSize, idStart, 1, "sections must occur at most once, in order")
			}
			lastID = id
			seenNonCustom = true
		}

		size, err := r.U32()
		if err != nil {
			return nil, err
		}

		payloadStart := r.Pos()
		if uint32(r.Len()) < size {
			return nil, newDecodeError(UnexpectedEOF, payloadStart, r.Len(), "section payload truncated")
		}
		payload, _ := r.Bytes(size)
		sr := NewReader(payload)

		if err := decodeSection(m, id, sr); err != nil {
			return nil, err
		}
		if sr.Len() != 0 {
			return nil, newDecodeError(InvalidSectionSize, payloadStart, int(size), fmt.Sprintf("section id %d: %d trailing bytes after decode", id, sr.Len()))
		}
	}

	if err := m.validateIndices(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeSection(m *Module, id byte, r *Reader) error {
	switch id {
	case secCustom:
		return nil // core does not interpret custom sections
	case secType:
		return decodeTypeSection(m, r)
	case secImport:
		return decodeImportSection(m, r)
	case secFunction:
		return decodeFunctionSection(m, r)
	case secTable:
		return decodeTableSection(m, r)
	case secMemory:
		return decodeMemorySection(m, r)
	case secGlobal:
		return decodeGlobalSection(m, r)
	case secExport:
		return decodeExportSection(m, r)
	case secStart:
		return decodeStartSection(m, r)
	case secElement:
		return decodeElementSection(m, r)
	case secCode:
		return decodeCodeSection(m, r)
	case secData:
		return decodeDataSection(m, r)
	default:
		// Unknown section ids are tolerated: the payload has already been
		// sliced off by the caller and is simply discarded.
		return nil
	}
}

// validateIndices performs the structural cross-section checks the core
// relies on: |Funcs| == |Code|, and every function-section type index in
// range. Type indices of imports and block types are not checked. Anything
// deeper (operand-stack type-correctness of instruction sequences) is
// explicitly out of scope (§9, Validation).
func (m *Module) validateIndices() error {
	if len(m.Funcs) != len(m.Code) {
		return newDecodeError(TypeMismatch, 0, 0, fmt.Sprintf("function section has %d entries but code section has %d", len(m.Funcs), len(m.Code)))
	}
	for i, typeIdx := range m.Funcs {
		if int(typeIdx) >= len(m.Types) {
			return newDecodeError(TypeMismatch, 0, 0, fmt.Sprintf("function %d refers to out-of-range type %d", i, typeIdx))
		}
	}
	return nil
}

func decodeTypeSection(m *Module, r *Reader) error {
	n, err := r.U32()
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, n)
	for i := range m.Types {
		m.Types[i], err = r.funcType()
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeFunctionSection(m *Module, r *Reader) error {
	n, err := r.U32()
	if err != nil {
		return err
	}
	m.Funcs = make([]uint32, n)
	for i := range m.Funcs {
		m.Funcs[i], err = r.U32()
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeCodeSection(m *Module, r *Reader) error {
	n, err := r.U32()
	if err != nil {
		return err
	}
	m.Code = make([]Code, n)
	for i := range m.Code {
		entryStart := r.Pos()
		size, err := r.U32()
		if err != nil {
			return err
		}
		if uint32(r.Len()) < size {
			return newDecodeError(UnexpectedEOF, r.Pos(), r.Len(), "code entry truncated")
		}
		body, _ := r.Bytes(size)
		cr := NewReader(body)

		locals, err := decodeLocals(cr)
		if err != nil {
			return err
		}
		instrs, term, err := cr.decodeInstrs()
		if err != nil {
			return err
		}
		if term != OpEnd {
			return newDecodeError(InvalidInstruction, entryStart, int(size), "function body must be closed by end")
		}
		if cr.Len() != 0 {
			return newDecodeError(InvalidSectionSize, entryStart, int(size), "code entry has trailing bytes after its end opcode")
		}
		m.Code[i] = Code{Locals: locals, Body: instrs, Loc: SourceLocation{Offset: entryStart, Length: r.Pos() - entryStart}}
	}
	return nil
}

func decodeLocals(r *Reader) ([]ValType, error) {
	groups, err := r.U32()
	if err != nil {
		return nil, err
	}
	var out []ValType
	for i := uint32(0); i < groups; i++ {
		count, err := r.U32()
		if err != nil {
			return nil, err
		}
		vt, err := r.valType()
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < count; j++ {
			out = append(out, vt)
		}
	}
	return out, nil
}

func decodeImportSection(m *Module, r *Reader) error {
	n, err := r.U32()
	if err != nil {
		return err
	}
	m.Imports = make([]Import, n)
	for i := range m.Imports {
		start := r.Pos()
		mod, err := r.Name()
		if err != nil {
			return err
		}
		field, err := r.Name()
		if err != nil {
			return err
		}
		kindStart := r.Pos()
		kindByte, err := r.Byte()
		if err != nil {
			return err
		}
		imp := Import{Module: mod, Field: field, Kind: ExternalKind(kindByte)}
		switch imp.Kind {
		case ExternFunc:
			imp.TypeIdx, err = r.U32()
		case ExternTable:
			var t TableType
			t, err = r.tableType()
			imp.Table = &t
		case ExternMem:
			var mt MemType
			mt, err = r.memType()
			imp.Mem = &mt
		case ExternGlobal:
			var gt GlobalType
			gt, err = r.globalType()
			imp.GlobalType = &gt
		default:
			return newDecodeError(TypeMismatch, kindStart, 1, fmt.Sprintf("invalid import kind 0x%x", kindByte))
		}
		if err != nil {
			return err
		}
		imp.Loc = SourceLocation{Offset: start, Length: r.Pos() - start}
		m.Imports[i] = imp
	}
	return nil
}

func decodeTableSection(m *Module, r *Reader) error {
	n, err := r.U32()
	if err != nil {
		return err
	}
	m.Tables = make([]TableType, n)
	for i := range m.Tables {
		m.Tables[i], err = r.tableType()
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeMemorySection(m *Module, r *Reader) error {
	n, err := r.U32()
	if err != nil {
		return err
	}
	m.Mems = make([]MemType, n)
	for i := range m.Mems {
		m.Mems[i], err = r.memType()
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeGlobalSection(m *Module, r *Reader) error {
	n, err := r.U32()
	if err != nil {
		return err
	}
	m.Globals = make([]Global, n)
	for i := range m.Globals {
		start := r.Pos()
		gt, err := r.globalType()
		if err != nil {
			return err
		}
		init, term, err := r.decodeInstrs()
		if err != nil {
			return err
		}
		if term != OpEnd {
			return newDecodeError(InvalidInstruction, start, r.Pos()-start, "global initializer must be closed by end")
		}
		m.Globals[i] = Global{Type: gt, Init: init, Loc: SourceLocation{Offset: start, Length: r.Pos() - start}}
	}
	return nil
}

func decodeExportSection(m *Module, r *Reader) error {
	n, err := r.U32()
	if err != nil {
		return err
	}
	m.Exports = make(map[string]Export, n)
	for i := uint32(0); i < n; i++ {
		name, err := r.Name()
		if err != nil {
			return err
		}
		kindStart := r.Pos()
		kindByte, err := r.Byte()
		if err != nil {
			return err
		}
		kind := ExternalKind(kindByte)
		if kind != ExternFunc && kind != ExternTable && kind != ExternMem && kind != ExternGlobal {
			return newDecodeError(TypeMismatch, kindStart, 1, fmt.Sprintf("invalid export kind 0x%x", kindByte))
		}
		idx, err := r.U32()
		if err != nil {
			return err
		}
		m.Exports[name] = Export{Name: name, Kind: kind, Idx: idx}
	}
	return nil
}

func decodeStartSection(m *Module, r *Reader) error {
	idx, err := r.U32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func decodeElementSection(m *Module, r *Reader) error {
	n, err := r.U32()
	if err != nil {
		return err
	}
	m.Elems = make([]Element, n)
	for i := range m.Elems {
		tableIdx, err := r.U32()
		if err != nil {
			return err
		}
		offset, term, err := r.decodeInstrs()
		if err != nil {
			return err
		}
		if term != OpEnd {
			return newDecodeError(InvalidInstruction, r.Pos(), 0, "element offset expr must be closed by end")
		}
		count, err := r.U32()
		if err != nil {
			return err
		}
		funcIdxs := make([]uint32, count)
		for j := range funcIdxs {
			funcIdxs[j], err = r.U32()
			if err != nil {
				return err
			}
		}
		m.Elems[i] = Element{TableIdx: tableIdx, Offset: offset, FuncIdxs: funcIdxs}
	}
	return nil
}

func decodeDataSection(m *Module, r *Reader) error {
	n, err := r.U32()
	if err != nil {
		return err
	}
	m.Data = make([]DataSegment, n)
	for i := range m.Data {
		memIdx, err := r.U32()
		if err != nil {
			return err
		}
		offset, term, err := r.decodeInstrs()
		if err != nil {
			return err
		}
		if term != OpEnd {
			return newDecodeError(InvalidInstruction, r.Pos(), 0, "data offset expr must be closed by end")
		}
		size, err := r.U32()
		if err != nil {
			return err
		}
		init, err := r.Bytes(size)
		if err != nil {
			return err
		}
		m.Data[i] = DataSegment{MemIdx: memIdx, Offset: offset, Init: append([]byte(nil), init...)}
	}
	return nil
}
