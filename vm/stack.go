package vm

// push, pop and peek operate on the VM's single flat operand stack, shared
// across every active call frame the way a native call stack is shared
// across native stack frames. A call frame's locals occupy the bottom of
// its own region of this same stack (see Frame.basePointer). The stack has
// a fixed depth of StackSize slots; push reports ErrStackOverflow once it
// is full. pop and peek do not check for an empty stack.

func (vm *VM) push(v uint64) error {
	if vm.sp >= len(vm.stack) {
		return ErrStackOverflow
	}
	vm.stack[vm.sp] = v
	vm.sp++
	return nil
}

func (vm *VM) pop() uint64 {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek() uint64 {
	return vm.stack[vm.sp-1]
}

// unwindTo truncates the operand stack down to stackBase, keeping only the
// top arity values (relocated to sit directly on top of stackBase). This
// is the one primitive both normal block/function completion and branch
// resolution need: save the result/continuation values, discard
// everything pushed since the construct was entered, put the saved values
// back.
func (vm *VM) unwindTo(stackBase, arity int) error {
	if vm.sp-arity < stackBase {
		return ErrStackUnderflow
	}
	if arity == 0 {
		vm.sp = stackBase
		return nil
	}
	saved := make([]uint64, arity)
	copy(saved, vm.stack[vm.sp-arity:vm.sp])
	vm.sp = stackBase
	for _, v := range saved {
		if err := vm.push(v); err != nil {
			return err
		}
	}
	return nil
}
