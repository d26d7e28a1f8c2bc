package vm

import "github.com/vertexdlt/vertexvm/wasm"

// labelKind distinguishes why a controlFrame exists on a call frame's
// control stack: a plain block/if body exits to its end, a loop body
// re-enters at its start on a branch, and the outermost entry represents
// the function body itself.
type labelKind int

// Label kinds.
const (
	labelBlock labelKind = iota + 1
	labelLoop
	labelIf
	labelFunc
)

// controlFrame is one entry of a call frame's structured control stack: an
// instruction cursor (instrs, idx) paired with the label bookkeeping
// needed to resolve a branch into or out of it. Folding the label and the
// instruction cursor into one stack entry means resolving br n and
// advancing execution share a single representation instead of two
// stacks kept in lockstep.
type controlFrame struct {
	instrs []wasm.Instr
	idx    int

	kind        labelKind
	resultArity int
	paramArity  int // continuation arity for a loop; unused otherwise
	stackBase   int // operand stack height when this frame was entered
}

// newControlFrame initializes a controlFrame of the given kind with its
// cursor at the first instruction.
func newControlFrame(kind labelKind, instrs []wasm.Instr, resultArity, paramArity, stackBase int) controlFrame {
	return controlFrame{
		instrs:      instrs,
		kind:        kind,
		resultArity: resultArity,
		paramArity:  paramArity,
		stackBase:   stackBase,
	}
}
