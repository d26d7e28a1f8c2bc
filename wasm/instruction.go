package wasm

import "fmt"

// Opcode is a single WebAssembly instruction opcode byte.
type Opcode byte

// Control and structural opcodes.
const (
	OpUnreachable Opcode = 0x00
	OpNop         Opcode = 0x01
	OpBlock       Opcode = 0x02
	OpLoop        Opcode = 0x03
	OpIf          Opcode = 0x04
	OpElse        Opcode = 0x05
	OpEnd         Opcode = 0x0b
	OpBr          Opcode = 0x0c
	OpBrIf        Opcode = 0x0d
	OpBrTable     Opcode = 0x0e
	OpReturn      Opcode = 0x0f
	OpCall        Opcode = 0x10
	OpCallIndirect Opcode = 0x11
)

// Parametric opcodes.
const (
	OpDrop   Opcode = 0x1a
	OpSelect Opcode = 0x1b
)

// Variable access opcodes.
const (
	OpLocalGet  Opcode = 0x20
	OpLocalSet  Opcode = 0x21
	OpLocalTee  Opcode = 0x22
	OpGlobalGet Opcode = 0x23
	OpGlobalSet Opcode = 0x24
)

// Memory opcodes.
const (
	OpI32Load    Opcode = 0x28
	OpI64Load    Opcode = 0x29
	OpI32Store   Opcode = 0x36
	OpI64Store   Opcode = 0x37
	OpMemorySize Opcode = 0x3f
	OpMemoryGrow Opcode = 0x40
)

// Numeric constant opcodes.
const (
	OpI32Const Opcode = 0x41
	OpI64Const Opcode = 0x42
	OpF32Const Opcode = 0x43
	OpF64Const Opcode = 0x44
)

// i32 comparison opcodes.
const (
	OpI32Eqz Opcode = 0x45
	OpI32Eq  Opcode = 0x46
	OpI32Ne  Opcode = 0x47
	OpI32LtS Opcode = 0x48
	OpI32LtU Opcode = 0x49
	OpI32GtS Opcode = 0x4a
	OpI32GtU Opcode = 0x4b
	OpI32LeS Opcode = 0x4c
	OpI32LeU Opcode = 0x4d
	OpI32GeS Opcode = 0x4e
	OpI32GeU Opcode = 0x4f
)

// i64 comparison opcodes.
const (
	OpI64Eqz Opcode = 0x50
	OpI64Eq  Opcode = 0x51
	OpI64Ne  Opcode = 0x52
	OpI64LtS Opcode = 0x53
	OpI64LtU Opcode = 0x54
	OpI64GtS Opcode = 0x55
	OpI64GtU Opcode = 0x56
	OpI64LeS Opcode = 0x57
	OpI64LeU Opcode = 0x58
	OpI64GeS Opcode = 0x59
	OpI64GeU Opcode = 0x5a
)

// f32/f64 comparison opcodes.
const (
	OpF32Eq Opcode = 0x5b
	OpF32Lt Opcode = 0x5d
	OpF32Gt Opcode = 0x5e
	OpF64Eq Opcode = 0x61
	OpF64Lt Opcode = 0x63
	OpF64Gt Opcode = 0x64
)

// i32 arithmetic opcodes.
const (
	OpI32Add  Opcode = 0x6a
	OpI32Sub  Opcode = 0x6b
	OpI32Mul  Opcode = 0x6c
	OpI32DivS Opcode = 0x6d
	OpI32DivU Opcode = 0x6e
	OpI32RemS Opcode = 0x6f
	OpI32RemU Opcode = 0x70
	OpI32And  Opcode = 0x71
	OpI32Or   Opcode = 0x72
	OpI32Xor  Opcode = 0x73
	OpI32Shl  Opcode = 0x74
	OpI32ShrS Opcode = 0x75
	OpI32ShrU Opcode = 0x76
)

// i64 arithmetic opcodes.
const (
	OpI64Add  Opcode = 0x7c
	OpI64Sub  Opcode = 0x7d
	OpI64Mul  Opcode = 0x7e
	OpI64DivS Opcode = 0x7f
	OpI64DivU Opcode = 0x80
	OpI64RemS Opcode = 0x81
	OpI64RemU Opcode = 0x82
	OpI64And  Opcode = 0x83
	OpI64Or   Opcode = 0x84
	OpI64Xor  Opcode = 0x85
	OpI64Shl  Opcode = 0x86
	OpI64ShrS Opcode = 0x87
	OpI64ShrU Opcode = 0x88
)

// f32/f64 arithmetic opcodes.
const (
	OpF32Add Opcode = 0x92
	OpF32Sub Opcode = 0x93
	OpF32Mul Opcode = 0x94
	OpF32Div Opcode = 0x95
	OpF64Add Opcode = 0xa0
	OpF64Sub Opcode = 0xa1
	OpF64Mul Opcode = 0xa2
	OpF64Div Opcode = 0xa3
)

// Conversion opcodes exercising truncation edge cases (see package number).
const (
	OpI32TruncF32S Opcode = 0xa8
	OpI32TruncF32U Opcode = 0xa9
	OpI32TruncF64S Opcode = 0xaa
	OpI32TruncF64U Opcode = 0xab
)

// Instr is a decoded instruction: an opcode plus whatever immediate data it
// carries. Imm is nil for opcodes with no immediate. The tagged-variant
// design (opcode byte + an Imm discriminated by the opcode) keeps dispatch
// a flat switch over Op rather than a type hierarchy, per the arity table
// the engine actually needs.
type Instr struct {
	Op  Opcode
	Imm interface{}
	Loc SourceLocation
}

// MemArg is the alignment/offset immediate shared by all load/store
// instructions.
type MemArg struct {
	Align  uint32
	Offset uint32
}

// BlockImm is the immediate carried by block/loop/if: its type annotation
// and its nested instruction sequence(s). Else is nil for an if with no
// else arm (decoded as a bare `end` terminator).
type BlockImm struct {
	Type BlockType
	Then []Instr
	Else []Instr
}

// IdxImm carries a single LEB128 index operand (local/global/label/func).
type IdxImm struct {
	Idx uint32
}

// BrTableImm carries the label vector and default label of br_table.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallIndirectImm carries the type and table index of call_indirect.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// decodeInstrs decodes a flat instruction sequence until it hits an `end`
// or `else` terminator (neither of which is emitted as an instruction),
// returning the terminator byte so the caller (block/loop/if) knows which
// one it saw.
func (r *Reader) decodeInstrs() ([]Instr, Opcode, error) {
	var out []Instr
	for {
		start := r.Pos()
		opByte, err := r.Byte()
		if err != nil {
			return nil, 0, err
		}
		op := Opcode(opByte)
		if op == OpEnd || op == OpElse {
			return out, op, nil
		}

		instr, err := r.decodeOneInstr(op, start)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, instr)
	}
}

func (r *Reader) decodeOneInstr(op Opcode, start int) (Instr, error) {
	loc := func() SourceLocation { return SourceLocation{Offset: start, Length: r.Pos() - start} }

	switch op {
	case OpUnreachable, OpNop, OpDrop, OpSelect, OpReturn,
		OpI32Eqz, OpI32Eq, OpI32Ne, OpI32LtS, OpI32LtU, OpI32GtS, OpI32GtU, OpI32LeS, OpI32LeU, OpI32GeS, OpI32GeU,
		OpI64Eqz, OpI64Eq, OpI64Ne, OpI64LtS, OpI64LtU, OpI64GtS, OpI64GtU, OpI64LeS, OpI64LeU, OpI64GeS, OpI64GeU,
		OpF32Eq, OpF32Lt, OpF32Gt, OpF64Eq, OpF64Lt, OpF64Gt,
		OpI32Add, OpI32Sub, OpI32Mul, OpI32DivS, OpI32DivU, OpI32RemS, OpI32RemU,
		OpI32And, OpI32Or, OpI32Xor, OpI32Shl, OpI32ShrS, OpI32ShrU,
		OpI64Add, OpI64Sub, OpI64Mul, OpI64DivS, OpI64DivU, OpI64RemS, OpI64RemU,
		OpI64And, OpI64Or, OpI64Xor, OpI64Shl, OpI64ShrS, OpI64ShrU,
		OpF32Add, OpF32Sub, OpF32Mul, OpF32Div, OpF64Add, OpF64Sub, OpF64Mul, OpF64Div,
		OpI32TruncF32S, OpI32TruncF32U, OpI32TruncF64S, OpI32TruncF64U:
		return Instr{Op: op, Loc: loc()}, nil

	case OpMemorySize, OpMemoryGrow:
		// MVP reserves a single memory index byte, always 0x00.
		if _, err := r.Byte(); err != nil {
			return Instr{}, err
		}
		return Instr{Op: op, Loc: loc()}, nil

	case OpBlock, OpLoop:
		bt, err := r.blockType()
		if err != nil {
			return Instr{}, err
		}
		body, term, err := r.decodeInstrs()
		if err != nil {
			return Instr{}, err
		}
		if term != OpEnd {
			return Instr{}, newDecodeError(InvalidInstruction, start, r.Pos()-start, "block/loop must be closed by end")
		}
		return Instr{Op: op, Imm: BlockImm{Type: bt, Then: body}, Loc: loc()}, nil

	case OpIf:
		bt, err := r.blockType()
		if err != nil {
			return Instr{}, err
		}
		then, term, err := r.decodeInstrs()
		if err != nil {
			return Instr{}, err
		}
		var els []Instr
		if term == OpElse {
			els, term, err = r.decodeInstrs()
			if err != nil {
				return Instr{}, err
			}
		}
		if term != OpEnd {
			return Instr{}, newDecodeError(InvalidInstruction, start, r.Pos()-start, "if must be closed by end")
		}
		return Instr{Op: op, Imm: BlockImm{Type: bt, Then: then, Else: els}, Loc: loc()}, nil

	case OpBr, OpBrIf, OpCall, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet:
		idx, err := r.U32()
		if err != nil {
			return Instr{}, err
		}
		return Instr{Op: op, Imm: IdxImm{Idx: idx}, Loc: loc()}, nil

	case OpCallIndirect:
		typeIdx, err := r.U32()
		if err != nil {
			return Instr{}, err
		}
		tableIdx, err := r.U32()
		if err != nil {
			return Instr{}, err
		}
		return Instr{Op: op, Imm: CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}, Loc: loc()}, nil

	case OpBrTable:
		n, err := r.U32()
		if err != nil {
			return Instr{}, err
		}
		labels := make([]uint32, n)
		for i := range labels {
			labels[i], err = r.U32()
			if err != nil {
				return Instr{}, err
			}
		}
		def, err := r.U32()
		if err != nil {
			return Instr{}, err
		}
		return Instr{Op: op, Imm: BrTableImm{Labels: labels, Default: def}, Loc: loc()}, nil

	case OpI32Load, OpI64Load, OpI32Store, OpI64Store:
		align, err := r.U32()
		if err != nil {
			return Instr{}, err
		}
		offset, err := r.U32()
		if err != nil {
			return Instr{}, err
		}
		return Instr{Op: op, Imm: MemArg{Align: align, Offset: offset}, Loc: loc()}, nil

	case OpI32Const:
		v, err := r.I32()
		if err != nil {
			return Instr{}, err
		}
		return Instr{Op: op, Imm: v, Loc: loc()}, nil

	case OpI64Const:
		v, err := r.I64()
		if err != nil {
			return Instr{}, err
		}
		return Instr{Op: op, Imm: v, Loc: loc()}, nil

	case OpF32Const:
		v, err := r.F32()
		if err != nil {
			return Instr{}, err
		}
		return Instr{Op: op, Imm: v, Loc: loc()}, nil

	case OpF64Const:
		v, err := r.F64()
		if err != nil {
			return Instr{}, err
		}
		return Instr{Op: op, Imm: v, Loc: loc()}, nil

	default:
		return Instr{}, newDecodeError(InvalidInstruction, start, 1, fmt.Sprintf("unknown opcode 0x%x", byte(op)))
	}
}
