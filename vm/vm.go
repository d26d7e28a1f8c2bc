// Package vm executes decoded WebAssembly instruction sequences (package
// wasm) against a flat operand stack and a stack of instruction cursors,
// the way a real call stack would be threaded through nested native
// frames: no Go-level recursion tracks nested blocks or loops, only
// explicit stack truncation (see controlFrame, Frame and the unwindTo
// helper).
package vm

import (
	"math"

	"github.com/chewxy/math32"

	"github.com/vertexdlt/vertexvm/number"
	"github.com/vertexdlt/vertexvm/wasm"
)

// StackSize is the operand stack depth shared by every call frame.
const StackSize = 1024 * 8

// MaxFrames is the maximum number of nested function calls supported.
const MaxFrames = 1024

// wasmPageSize is the fixed linear memory page size, in bytes (§ binary
// format: memory is sized in units of 64KiB pages).
const wasmPageSize = 64 * 1024

// tableNull marks an uninitialized table slot; 0 is a valid function
// index so a distinct sentinel is needed.
const tableNull = ^uint32(0)

// HostFunction is a Go function an embedder registers to satisfy a module
// import. Its signature mirrors the stack-machine calling convention:
// every argument and the single optional result are raw operand-stack
// slots, reinterpreted according to the import's declared signature.
type HostFunction func(vm *VM, args ...uint64) uint64

// Resolver resolves an imported function by its module and field name.
// Returning nil for an import VM encounters at call time produces
// ErrImportNotResolved.
type Resolver interface {
	GetFunction(module, name string) HostFunction
}

// VM executes one instantiated module. It is not safe for concurrent use
// by multiple goroutines.
type VM struct {
	Module   *wasm.Module
	resolver Resolver

	stack []uint64
	sp    int

	frames      []*Frame
	framesIndex int

	globals []uint64
	mem     []byte
	table   []uint32

	gas       Gas
	gasPolicy GasPolicy
}

// NewVM decodes a module and instantiates it: globals are evaluated,
// linear memory is allocated and populated from data segments, and the
// default table is populated from element segments. resolver supplies
// host functions for the module's imports; it may be nil if the module
// imports nothing.
func NewVM(code []byte, resolver Resolver) (*VM, error) {
	m, err := wasm.DecodeModule(code)
	if err != nil {
		return nil, err
	}

	v := &VM{
		Module:    m,
		resolver:  resolver,
		stack:     make([]uint64, StackSize),
		frames:    make([]*Frame, MaxFrames),
		gasPolicy: &FreeGasPolicy{},
	}

	if err := v.initGlobals(); err != nil {
		return nil, err
	}
	if err := v.initMemory(); err != nil {
		return nil, err
	}
	if err := v.initTable(); err != nil {
		return nil, err
	}
	if m.Start != nil {
		if _, err := v.Invoke(int(*m.Start)); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// SetGasPolicy installs a metering policy; passing nil restores the
// default (free) policy.
func (vm *VM) SetGasPolicy(p GasPolicy) {
	if p == nil {
		p = &FreeGasPolicy{}
	}
	vm.gasPolicy = p
}

// SetGasLimit bounds total gas consumption; 0 means unlimited.
func (vm *VM) SetGasLimit(limit uint64) {
	vm.gas = Gas{Limit: limit}
}

// GasUsed reports gas consumed so far.
func (vm *VM) GasUsed() uint64 {
	return vm.gas.Used
}

// GetMemory exposes the VM's linear memory for a host function to read or
// write directly.
func (vm *VM) GetMemory() []byte {
	return vm.mem
}

// GetFunctionIndex looks up an exported function's index by name.
func (vm *VM) GetFunctionIndex(name string) (int, bool) {
	exp, ok := vm.Module.Exports[name]
	if !ok || exp.Kind != wasm.ExternFunc {
		return 0, false
	}
	return int(exp.Idx), true
}

// Invoke calls the function at fidx with args and returns its single
// result (0 if the function has none).
func (vm *VM) Invoke(fidx int, args ...uint64) (uint64, error) {
	ft, err := vm.Module.FuncType(fidx)
	if err != nil {
		return 0, ErrFuncNotFound
	}
	if len(args) != len(ft.Params) {
		return 0, ErrWrongNumberOfArgs
	}
	for _, a := range args {
		if err := vm.push(a); err != nil {
			return 0, err
		}
	}
	if err := vm.prepareCall(fidx); err != nil {
		return 0, err
	}
	if fidx < vm.Module.NumImportedFuncs() {
		// prepareCall already ran the host function; no frame was pushed.
		if len(ft.Results) > 0 {
			return vm.pop(), nil
		}
		return 0, nil
	}
	return vm.run()
}

func (vm *VM) currentFrame() *Frame {
	return vm.frames[vm.framesIndex-1]
}

func (vm *VM) pushFrame(f *Frame) error {
	if vm.framesIndex >= len(vm.frames) {
		return ErrFrameOverflow
	}
	vm.frames[vm.framesIndex] = f
	vm.framesIndex++
	return nil
}

func (vm *VM) popFrame() {
	vm.framesIndex--
	vm.frames[vm.framesIndex] = nil
}

// run drives frames until the one most recently pushed (and anything it
// calls in turn) has completed, returning its single result value.
func (vm *VM) run() (uint64, error) {
	target := vm.framesIndex - 1
	for {
		frame := vm.currentFrame()
		cf := frame.top()

		if cf.idx >= len(cf.instrs) {
			done, ret, err := vm.completeControl(frame)
			if err != nil {
				return 0, err
			}
			if done && vm.framesIndex == target {
				return ret, nil
			}
			continue
		}

		instr := cf.instrs[cf.idx]
		cf.idx++

		if cost := vm.gasPolicy.GetCostForOp(instr.Op); cost > 0 {
			vm.gas.Used += cost
			if vm.gas.Limit > 0 && vm.gas.Used > vm.gas.Limit {
				return 0, ErrOutOfGas
			}
		}

		if err := vm.execute(frame, instr); err != nil {
			return 0, err
		}
	}
}

// completeControl runs when a control frame's instruction cursor has run
// off the end of its body: a block/if/loop falling through its last
// instruction, or Return having forced the function-level frame to its
// end. Loop fallthrough is treated identically to block fallthrough
// (exit, not re-iteration); only an explicit branch re-enters a loop.
func (vm *VM) completeControl(frame *Frame) (done bool, ret uint64, err error) {
	cf := frame.top()
	if err := vm.unwindTo(cf.stackBase, cf.resultArity); err != nil {
		return false, 0, err
	}
	if frame.atFunctionLevel() {
		if cf.resultArity > 0 {
			ret = vm.peek()
		}
		vm.popFrame()
		return true, ret, nil
	}
	frame.control = frame.control[:len(frame.control)-1]
	return false, 0, nil
}

// branch resolves `br n`/a taken `br_if`/a selected `br_table` target
// within frame: scan n labels out from the innermost, save the target's
// continuation values, truncate the operand stack, and either re-push a
// fresh loop iteration or drop straight past an exited block.
func (vm *VM) branch(frame *Frame, n int) error {
	idx := len(frame.control) - 1 - n
	if idx < 0 || frame.control[idx].kind == labelFunc {
		return ErrInvalidBreakDepth
	}
	target := frame.control[idx]
	if target.kind == labelLoop {
		if err := vm.unwindTo(target.stackBase, target.paramArity); err != nil {
			return err
		}
		frame.control = frame.control[:idx+1]
		frame.control[idx].idx = 0
		return nil
	}
	if err := vm.unwindTo(target.stackBase, target.resultArity); err != nil {
		return err
	}
	frame.control = frame.control[:idx]
	return nil
}

// prepareCall sets up fidx's call frame (or dispatches straight to a host
// function for an import) and pushes it for run's loop to pick up next,
// rather than recursing in Go: nested wasm-to-wasm calls cost a slice
// append, not a Go stack frame.
func (vm *VM) prepareCall(fidx int) error {
	nImported := vm.Module.NumImportedFuncs()
	if fidx < nImported {
		return vm.callHost(fidx)
	}

	ft, err := vm.Module.FuncType(fidx)
	if err != nil {
		return err
	}
	code, err := vm.Module.LocalCode(fidx)
	if err != nil {
		return err
	}

	basePointer := vm.sp - len(ft.Params)
	if basePointer < 0 {
		return ErrStackUnderflow
	}
	for range code.Locals {
		if err := vm.push(0); err != nil {
			return err
		}
	}
	frame := NewFrame(fidx, basePointer, code.Body, len(ft.Results), basePointer)
	return vm.pushFrame(frame)
}

func (vm *VM) callHost(fidx int) error {
	imp := vm.importByFuncIndex(fidx)
	if imp == nil {
		return ErrFuncNotFound
	}
	if int(imp.TypeIdx) >= len(vm.Module.Types) {
		return ErrFuncNotFound
	}
	ft := vm.Module.Types[imp.TypeIdx]
	nParams := len(ft.Params)
	if vm.sp < nParams {
		return ErrStackUnderflow
	}
	args := make([]uint64, nParams)
	copy(args, vm.stack[vm.sp-nParams:vm.sp])
	vm.sp -= nParams

	if vm.resolver == nil {
		return ErrImportNotResolved
	}
	hostFn := vm.resolver.GetFunction(imp.Module, imp.Field)
	if hostFn == nil {
		return ErrImportNotResolved
	}
	ret := hostFn(vm, args...)
	if len(ft.Results) > 0 {
		return vm.push(ret)
	}
	return nil
}

func (vm *VM) importByFuncIndex(fidx int) *wasm.Import {
	i := 0
	for idx := range vm.Module.Imports {
		imp := &vm.Module.Imports[idx]
		if imp.Kind != wasm.ExternFunc {
			continue
		}
		if i == fidx {
			return imp
		}
		i++
	}
	return nil
}

func (vm *VM) execute(frame *Frame, instr wasm.Instr) error {
	switch instr.Op {
	case wasm.OpUnreachable:
		return newTrap(TrapUnreachable, instr.Loc, "")
	case wasm.OpNop:
		return nil

	case wasm.OpBlock, wasm.OpLoop:
		return vm.execBlockOrLoop(frame, instr)
	case wasm.OpIf:
		return vm.execIf(frame, instr)

	case wasm.OpBr:
		return vm.branch(frame, int(instr.Imm.(wasm.IdxImm).Idx))
	case wasm.OpBrIf:
		cond := vm.pop()
		if int32(cond) != 0 {
			return vm.branch(frame, int(instr.Imm.(wasm.IdxImm).Idx))
		}
		return nil
	case wasm.OpBrTable:
		return vm.execBrTable(frame, instr)
	case wasm.OpReturn:
		frame.control = frame.control[:1]
		frame.top().idx = len(frame.top().instrs)
		return nil

	case wasm.OpCall:
		return vm.prepareCall(int(instr.Imm.(wasm.IdxImm).Idx))
	case wasm.OpCallIndirect:
		return vm.execCallIndirect(frame, instr)

	case wasm.OpDrop:
		vm.pop()
		return nil
	case wasm.OpSelect:
		cond := vm.pop()
		b := vm.pop()
		a := vm.pop()
		if int32(cond) != 0 {
			return vm.push(a)
		}
		return vm.push(b)

	case wasm.OpLocalGet:
		idx := int(instr.Imm.(wasm.IdxImm).Idx)
		return vm.push(vm.stack[frame.basePointer+idx])
	case wasm.OpLocalSet:
		idx := int(instr.Imm.(wasm.IdxImm).Idx)
		vm.stack[frame.basePointer+idx] = vm.pop()
		return nil
	case wasm.OpLocalTee:
		idx := int(instr.Imm.(wasm.IdxImm).Idx)
		vm.stack[frame.basePointer+idx] = vm.peek()
		return nil
	case wasm.OpGlobalGet:
		idx := instr.Imm.(wasm.IdxImm).Idx
		return vm.push(vm.globals[idx])
	case wasm.OpGlobalSet:
		idx := instr.Imm.(wasm.IdxImm).Idx
		vm.globals[idx] = vm.pop()
		return nil

	case wasm.OpI32Load:
		return vm.execLoad(instr, 4)
	case wasm.OpI64Load:
		return vm.execLoad(instr, 8)
	case wasm.OpI32Store:
		return vm.execStore(instr, 4)
	case wasm.OpI64Store:
		return vm.execStore(instr, 8)
	case wasm.OpMemorySize:
		return vm.push(uint64(len(vm.mem) / wasmPageSize))
	case wasm.OpMemoryGrow:
		return vm.execMemoryGrow()

	case wasm.OpI32Const:
		return vm.push(uint64(uint32(instr.Imm.(int32))))
	case wasm.OpI64Const:
		return vm.push(uint64(instr.Imm.(int64)))
	case wasm.OpF32Const:
		return vm.push(uint64(math32.Float32bits(instr.Imm.(float32))))
	case wasm.OpF64Const:
		return vm.push(math.Float64bits(instr.Imm.(float64)))

	default:
		return vm.execNumeric(instr)
	}
}

func (vm *VM) execBlockOrLoop(frame *Frame, instr wasm.Instr) error {
	imm := instr.Imm.(wasm.BlockImm)
	kind := labelBlock
	if instr.Op == wasm.OpLoop {
		kind = labelLoop
	}
	paramArity := imm.Type.ParamArity(vm.Module.Types)
	resultArity := imm.Type.ResultArity(vm.Module.Types)
	stackBase := vm.sp - paramArity
	if stackBase < 0 {
		return ErrStackUnderflow
	}
	frame.pushControl(newControlFrame(kind, imm.Then, resultArity, paramArity, stackBase))
	return nil
}

func (vm *VM) execIf(frame *Frame, instr wasm.Instr) error {
	imm := instr.Imm.(wasm.BlockImm)
	cond := vm.pop()
	paramArity := imm.Type.ParamArity(vm.Module.Types)
	resultArity := imm.Type.ResultArity(vm.Module.Types)
	stackBase := vm.sp - paramArity
	if stackBase < 0 {
		return ErrStackUnderflow
	}
	if int32(cond) != 0 {
		frame.pushControl(newControlFrame(labelIf, imm.Then, resultArity, paramArity, stackBase))
	} else if imm.Else != nil {
		frame.pushControl(newControlFrame(labelIf, imm.Else, resultArity, paramArity, stackBase))
	}
	return nil
}

func (vm *VM) execBrTable(frame *Frame, instr wasm.Instr) error {
	imm := instr.Imm.(wasm.BrTableImm)
	i := int32(vm.pop())
	target := imm.Default
	if i >= 0 && int(i) < len(imm.Labels) {
		target = imm.Labels[i]
	}
	return vm.branch(frame, int(target))
}

func (vm *VM) execCallIndirect(frame *Frame, instr wasm.Instr) error {
	imm := instr.Imm.(wasm.CallIndirectImm)
	elem := vm.pop()
	if elem >= uint64(len(vm.table)) {
		return newTrap(TrapOutOfBoundsTable, instr.Loc, "")
	}
	fidx := vm.table[elem]
	if fidx == tableNull {
		return newTrap(TrapUninitializedElement, instr.Loc, "")
	}
	ft, err := vm.Module.FuncType(int(fidx))
	if err != nil {
		return newTrap(TrapOutOfBoundsTable, instr.Loc, "")
	}
	if int(imm.TypeIdx) >= len(vm.Module.Types) {
		return ErrMismatchedFuncSig
	}
	want := vm.Module.Types[imm.TypeIdx]
	if !ft.Equal(want) {
		return newTrap(TrapIndirectCallTypeMismatch, instr.Loc, "")
	}
	return vm.prepareCall(int(fidx))
}

// execNumeric handles every comparison/arithmetic/conversion opcode left
// out of execute's main switch, grouped the way the opcode space itself
// groups them.
func (vm *VM) execNumeric(instr wasm.Instr) error {
	op := instr.Op
	switch {
	case op == wasm.OpI32Eqz:
		return vm.pushBool(int32(vm.pop()) == 0)
	case wasm.OpI32Eq <= op && op <= wasm.OpI32GeU:
		return vm.execI32Compare(op)
	case op == wasm.OpI64Eqz:
		return vm.pushBool(int64(vm.pop()) == 0)
	case wasm.OpI64Eq <= op && op <= wasm.OpI64GeU:
		return vm.execI64Compare(op)
	case op == wasm.OpF32Eq || op == wasm.OpF32Lt || op == wasm.OpF32Gt:
		return vm.execF32Compare(op)
	case op == wasm.OpF64Eq || op == wasm.OpF64Lt || op == wasm.OpF64Gt:
		return vm.execF64Compare(op)
	case wasm.OpI32Add <= op && op <= wasm.OpI32ShrU:
		return vm.execI32Arith(instr)
	case wasm.OpI64Add <= op && op <= wasm.OpI64ShrU:
		return vm.execI64Arith(instr)
	case wasm.OpF32Add <= op && op <= wasm.OpF32Div:
		return vm.execF32Arith(op)
	case wasm.OpF64Add <= op && op <= wasm.OpF64Div:
		return vm.execF64Arith(op)
	case wasm.OpI32TruncF32S <= op && op <= wasm.OpI32TruncF64U:
		return vm.execTrunc(instr)
	default:
		return ErrUnknownOpcode
	}
}

func (vm *VM) pushBool(b bool) error {
	if b {
		return vm.push(1)
	}
	return vm.push(0)
}

func (vm *VM) execI32Compare(op wasm.Opcode) error {
	b := int32(uint32(vm.pop()))
	a := int32(uint32(vm.pop()))
	switch op {
	case wasm.OpI32Eq:
		return vm.pushBool(a == b)
	case wasm.OpI32Ne:
		return vm.pushBool(a != b)
	case wasm.OpI32LtS:
		return vm.pushBool(a < b)
	case wasm.OpI32LtU:
		return vm.pushBool(uint32(a) < uint32(b))
	case wasm.OpI32GtS:
		return vm.pushBool(a > b)
	case wasm.OpI32GtU:
		return vm.pushBool(uint32(a) > uint32(b))
	case wasm.OpI32LeS:
		return vm.pushBool(a <= b)
	case wasm.OpI32LeU:
		return vm.pushBool(uint32(a) <= uint32(b))
	case wasm.OpI32GeS:
		return vm.pushBool(a >= b)
	case wasm.OpI32GeU:
		return vm.pushBool(uint32(a) >= uint32(b))
	default:
		return ErrUnknownOpcode
	}
}

func (vm *VM) execI64Compare(op wasm.Opcode) error {
	b := int64(vm.pop())
	a := int64(vm.pop())
	switch op {
	case wasm.OpI64Eq:
		return vm.pushBool(a == b)
	case wasm.OpI64Ne:
		return vm.pushBool(a != b)
	case wasm.OpI64LtS:
		return vm.pushBool(a < b)
	case wasm.OpI64LtU:
		return vm.pushBool(uint64(a) < uint64(b))
	case wasm.OpI64GtS:
		return vm.pushBool(a > b)
	case wasm.OpI64GtU:
		return vm.pushBool(uint64(a) > uint64(b))
	case wasm.OpI64LeS:
		return vm.pushBool(a <= b)
	case wasm.OpI64LeU:
		return vm.pushBool(uint64(a) <= uint64(b))
	case wasm.OpI64GeS:
		return vm.pushBool(a >= b)
	case wasm.OpI64GeU:
		return vm.pushBool(uint64(a) >= uint64(b))
	default:
		return ErrUnknownOpcode
	}
}

func (vm *VM) execF32Compare(op wasm.Opcode) error {
	b := math32.Float32frombits(uint32(vm.pop()))
	a := math32.Float32frombits(uint32(vm.pop()))
	switch op {
	case wasm.OpF32Eq:
		return vm.pushBool(a == b)
	case wasm.OpF32Lt:
		return vm.pushBool(a < b)
	case wasm.OpF32Gt:
		return vm.pushBool(a > b)
	default:
		return ErrUnknownOpcode
	}
}

func (vm *VM) execF64Compare(op wasm.Opcode) error {
	b := math.Float64frombits(vm.pop())
	a := math.Float64frombits(vm.pop())
	switch op {
	case wasm.OpF64Eq:
		return vm.pushBool(a == b)
	case wasm.OpF64Lt:
		return vm.pushBool(a < b)
	case wasm.OpF64Gt:
		return vm.pushBool(a > b)
	default:
		return ErrUnknownOpcode
	}
}

func (vm *VM) execI32Arith(instr wasm.Instr) error {
	b := int32(uint32(vm.pop()))
	a := int32(uint32(vm.pop()))
	var c int32
	switch instr.Op {
	case wasm.OpI32Add:
		c = a + b
	case wasm.OpI32Sub:
		c = a - b
	case wasm.OpI32Mul:
		c = a * b
	case wasm.OpI32DivS:
		if b == 0 {
			return newTrap(TrapIntegerDivideByZero, instr.Loc, "")
		}
		if a == math.MinInt32 && b == -1 {
			return newTrap(TrapIntegerOverflow, instr.Loc, "")
		}
		c = a / b
	case wasm.OpI32DivU:
		if b == 0 {
			return newTrap(TrapIntegerDivideByZero, instr.Loc, "")
		}
		c = int32(uint32(a) / uint32(b))
	case wasm.OpI32RemS:
		if b == 0 {
			return newTrap(TrapIntegerDivideByZero, instr.Loc, "")
		}
		c = a % b
	case wasm.OpI32RemU:
		if b == 0 {
			return newTrap(TrapIntegerDivideByZero, instr.Loc, "")
		}
		c = int32(uint32(a) % uint32(b))
	case wasm.OpI32And:
		c = a & b
	case wasm.OpI32Or:
		c = a | b
	case wasm.OpI32Xor:
		c = a ^ b
	case wasm.OpI32Shl:
		c = a << (uint32(b) % 32)
	case wasm.OpI32ShrS:
		c = a >> (uint32(b) % 32)
	case wasm.OpI32ShrU:
		c = int32(uint32(a) >> (uint32(b) % 32))
	default:
		return ErrUnknownOpcode
	}
	return vm.push(uint64(uint32(c)))
}

func (vm *VM) execI64Arith(instr wasm.Instr) error {
	b := int64(vm.pop())
	a := int64(vm.pop())
	var c int64
	switch instr.Op {
	case wasm.OpI64Add:
		c = a + b
	case wasm.OpI64Sub:
		c = a - b
	case wasm.OpI64Mul:
		c = a * b
	case wasm.OpI64DivS:
		if b == 0 {
			return newTrap(TrapIntegerDivideByZero, instr.Loc, "")
		}
		if a == math.MinInt64 && b == -1 {
			return newTrap(TrapIntegerOverflow, instr.Loc, "")
		}
		c = a / b
	case wasm.OpI64DivU:
		if b == 0 {
			return newTrap(TrapIntegerDivideByZero, instr.Loc, "")
		}
		c = int64(uint64(a) / uint64(b))
	case wasm.OpI64RemS:
		if b == 0 {
			return newTrap(TrapIntegerDivideByZero, instr.Loc, "")
		}
		c = a % b
	case wasm.OpI64RemU:
		if b == 0 {
			return newTrap(TrapIntegerDivideByZero, instr.Loc, "")
		}
		c = int64(uint64(a) % uint64(b))
	case wasm.OpI64And:
		c = a & b
	case wasm.OpI64Or:
		c = a | b
	case wasm.OpI64Xor:
		c = a ^ b
	case wasm.OpI64Shl:
		c = a << (uint64(b) % 64)
	case wasm.OpI64ShrS:
		c = a >> (uint64(b) % 64)
	case wasm.OpI64ShrU:
		c = int64(uint64(a) >> (uint64(b) % 64))
	default:
		return ErrUnknownOpcode
	}
	return vm.push(uint64(c))
}

func (vm *VM) execF32Arith(op wasm.Opcode) error {
	b := math32.Float32frombits(uint32(vm.pop()))
	a := math32.Float32frombits(uint32(vm.pop()))
	var c float32
	switch op {
	case wasm.OpF32Add:
		c = a + b
	case wasm.OpF32Sub:
		c = a - b
	case wasm.OpF32Mul:
		c = a * b
	case wasm.OpF32Div:
		c = a / b
	default:
		return ErrUnknownOpcode
	}
	return vm.push(uint64(math32.Float32bits(c)))
}

func (vm *VM) execF64Arith(op wasm.Opcode) error {
	b := math.Float64frombits(vm.pop())
	a := math.Float64frombits(vm.pop())
	var c float64
	switch op {
	case wasm.OpF64Add:
		c = a + b
	case wasm.OpF64Sub:
		c = a - b
	case wasm.OpF64Mul:
		c = a * b
	case wasm.OpF64Div:
		c = a / b
	default:
		return ErrUnknownOpcode
	}
	return vm.push(math.Float64bits(c))
}

// execTrunc implements the four truncating float-to-int conversions,
// deferring NaN/range trap decisions to package number, which already
// carries the min/max-clamped edge cases the reference interpreter traps
// on.
func (vm *VM) execTrunc(instr wasm.Instr) error {
	bits64 := vm.pop()
	var from number.Type
	var to number.Type
	switch instr.Op {
	case wasm.OpI32TruncF32S:
		from, to = number.F32, number.I32
	case wasm.OpI32TruncF32U:
		from, to = number.F32, number.U32
	case wasm.OpI32TruncF64S:
		from, to = number.F64, number.I32
	case wasm.OpI32TruncF64U:
		from, to = number.F64, number.U32
	default:
		return ErrUnknownOpcode
	}
	var bitsForFrom uint64
	if from == number.F32 {
		bitsForFrom = uint64(uint32(bits64))
	} else {
		bitsForFrom = bits64
	}
	result, trap := number.FloatTruncate(from, to, bitsForFrom)
	switch trap {
	case number.NanTrap:
		return newTrap(TrapInvalidConversion, instr.Loc, "cannot convert NaN to integer")
	case number.ConvertTrap:
		return newTrap(TrapIntegerOverflow, instr.Loc, "")
	}
	return vm.push(uint64(uint32(result)))
}

func (vm *VM) execLoad(instr wasm.Instr, width int) error {
	memArg := instr.Imm.(wasm.MemArg)
	base := uint32(vm.pop())
	addr := uint64(base) + uint64(memArg.Offset)
	if addr+uint64(width) > uint64(len(vm.mem)) {
		return newTrap(TrapOutOfBoundsMemory, instr.Loc, "")
	}
	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(vm.mem[addr+uint64(i)]) << (8 * i)
	}
	return vm.push(v)
}

func (vm *VM) execStore(instr wasm.Instr, width int) error {
	memArg := instr.Imm.(wasm.MemArg)
	v := vm.pop()
	base := uint32(vm.pop())
	addr := uint64(base) + uint64(memArg.Offset)
	if addr+uint64(width) > uint64(len(vm.mem)) {
		return newTrap(TrapOutOfBoundsMemory, instr.Loc, "")
	}
	for i := 0; i < width; i++ {
		vm.mem[addr+uint64(i)] = byte(v >> (8 * i))
	}
	return nil
}

func (vm *VM) execMemoryGrow() error {
	delta := int32(vm.pop())
	prevPages := len(vm.mem) / wasmPageSize
	if delta < 0 {
		return vm.push(uint64(uint32(0xffffffff)))
	}
	if err := vm.GrowMemory(int(delta)); err != nil {
		if err == ErrOutOfGas {
			return err
		}
		return vm.push(uint64(uint32(0xffffffff)))
	}
	return vm.push(uint64(uint32(prevPages)))
}

// GrowMemory grows linear memory by delta pages, refusing to exceed the
// module's declared maximum if one was declared.
func (vm *VM) GrowMemory(delta int) error {
	if delta == 0 {
		return nil
	}
	current := len(vm.mem) / wasmPageSize
	if len(vm.Module.Mems) > 0 {
		if max := vm.Module.Mems[0].Limits.Max; max != nil && current+delta > int(*max) {
			return ErrMemoryGrowRefused
		}
	}
	if cost := vm.gasPolicy.GetCostForMalloc(delta); cost > 0 {
		vm.gas.Used += cost
		if vm.gas.Limit > 0 && vm.gas.Used > vm.gas.Limit {
			return ErrOutOfGas
		}
	}
	vm.mem = append(vm.mem, make([]byte, delta*wasmPageSize)...)
	return nil
}

func (vm *VM) initMemory() error {
	if len(vm.Module.Mems) == 0 {
		return nil
	}
	pages := int(vm.Module.Mems[0].Limits.Min)
	vm.mem = make([]byte, pages*wasmPageSize)
	for _, d := range vm.Module.Data {
		offset, err := vm.evalConstExpr(d.Offset)
		if err != nil {
			return err
		}
		start := uint32(offset)
		if uint64(start)+uint64(len(d.Init)) > uint64(len(vm.mem)) {
			return NewExecError("data segment does not fit in memory")
		}
		copy(vm.mem[start:], d.Init)
	}
	return nil
}

func (vm *VM) initTable() error {
	if len(vm.Module.Tables) == 0 {
		return nil
	}
	size := int(vm.Module.Tables[0].Limits.Min)
	vm.table = make([]uint32, size)
	for i := range vm.table {
		vm.table[i] = tableNull
	}
	for _, e := range vm.Module.Elems {
		offset, err := vm.evalConstExpr(e.Offset)
		if err != nil {
			return err
		}
		start := int(offset)
		for i, fidx := range e.FuncIdxs {
			if start+i >= len(vm.table) {
				return NewExecError("element segment does not fit in table")
			}
			vm.table[start+i] = fidx
		}
	}
	return nil
}

func (vm *VM) initGlobals() error {
	nImported := vm.Module.NumImportedGlobals()
	vm.globals = make([]uint64, nImported+len(vm.Module.Globals))
	for i, g := range vm.Module.Globals {
		v, err := vm.evalConstExpr(g.Init)
		if err != nil {
			return err
		}
		vm.globals[nImported+i] = v
	}
	return nil
}

// evalConstExpr evaluates the restricted constant-expression language
// WebAssembly 1.0 allows for global initializers and element/data segment
// offsets: a single const instruction, or a read of an imported global.
func (vm *VM) evalConstExpr(instrs []wasm.Instr) (uint64, error) {
	if len(instrs) != 1 {
		return 0, ErrInvalidConstExpr
	}
	instr := instrs[0]
	switch instr.Op {
	case wasm.OpI32Const:
		return uint64(uint32(instr.Imm.(int32))), nil
	case wasm.OpI64Const:
		return uint64(instr.Imm.(int64)), nil
	case wasm.OpF32Const:
		return uint64(math32.Float32bits(instr.Imm.(float32))), nil
	case wasm.OpF64Const:
		return math.Float64bits(instr.Imm.(float64)), nil
	case wasm.OpGlobalGet:
		idx := instr.Imm.(wasm.IdxImm).Idx
		if int(idx) >= vm.Module.NumImportedGlobals() {
			return 0, ErrInvalidConstExpr
		}
		return vm.globals[idx], nil
	default:
		return 0, ErrInvalidConstExpr
	}
}

