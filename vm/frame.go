package vm

import "github.com/vertexdlt/vertexvm/wasm"

// Frame holds the execution state of one active function invocation.
// Locals (parameters followed by declared locals) live directly on the
// shared operand stack starting at basePointer; LocalGet/LocalSet/LocalTee
// index into that region the same way the rest of the function's working
// stack sits above it. Its control stack's bottom entry always represents
// the function body itself: branching can unwind nested blocks but never
// past this entry; only Return or falling off the end retires it.
type Frame struct {
	funcIdx     int
	basePointer int
	control     []controlFrame
}

// NewFrame initializes a call frame for a function body, ready to execute
// from its first instruction. stackBase is the operand stack height the
// function collapses back to on return (i.e. basePointer, discarding its
// locals along with any leftover working values).
func NewFrame(funcIdx, basePointer int, body []wasm.Instr, resultArity, stackBase int) *Frame {
	return &Frame{
		funcIdx:     funcIdx,
		basePointer: basePointer,
		control:     []controlFrame{newControlFrame(labelFunc, body, resultArity, 0, stackBase)},
	}
}

func (f *Frame) top() *controlFrame {
	return &f.control[len(f.control)-1]
}

func (f *Frame) pushControl(cf controlFrame) {
	f.control = append(f.control, cf)
}

// atFunctionLevel reports whether the only remaining control frame is the
// function body itself, i.e. completing it retires the call.
func (f *Frame) atFunctionLevel() bool {
	return len(f.control) == 1
}
