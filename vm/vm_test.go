package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	b := newModuleBuilder()
	ft := b.addType([]byte{vtI32, vtI32}, []byte{vtI32})
	// local.get 0; local.get 1; i32.add; end
	body := []byte{0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b}
	fidx := b.addFunc(ft, 0, 0, body)
	b.export("add", fidx)

	v, err := NewVM(b.bytes(), nil)
	require.NoError(t, err)

	idx, ok := v.GetFunctionIndex("add")
	require.True(t, ok)

	ret, err := v.Invoke(idx, 3, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(7), ret)
}

func TestBlockResult(t *testing.T) {
	b := newModuleBuilder()
	ft := b.addType(nil, []byte{vtI32})
	// block (result i32); i32.const 42; end; end
	body := []byte{0x02, 0x7f, 0x41, 0x2a, 0x0b, 0x0b}
	fidx := b.addFunc(ft, 0, 0, body)
	b.export("answer", fidx)

	v, err := NewVM(b.bytes(), nil)
	require.NoError(t, err)

	idx, _ := v.GetFunctionIndex("answer")
	ret, err := v.Invoke(idx)
	require.NoError(t, err)
	require.Equal(t, uint64(42), ret)
}

// TestCountedLoop sums 1..n (inclusive) via a structured loop wrapped in
// an exit block: block { loop { if n==0 br 1; sum+=n; n-=1; br 0 } };
// local.get sum.
func TestCountedLoop(t *testing.T) {
	b := newModuleBuilder()
	ft := b.addType([]byte{vtI32}, []byte{vtI32})

	var body []byte
	body = append(body, 0x02, 0x40) // block (empty)
	body = append(body, 0x03, 0x40) // loop (empty)
	body = append(body, 0x20, 0x00) // local.get 0 (n)
	body = append(body, 0x45)       // i32.eqz
	body = append(body, 0x0d, 0x01) // br_if 1 (exit block)
	body = append(body, 0x20, 0x01) // local.get 1 (sum)
	body = append(body, 0x20, 0x00) // local.get 0 (n)
	body = append(body, 0x6a)       // i32.add
	body = append(body, 0x21, 0x01) // local.set 1 (sum)
	body = append(body, 0x20, 0x00) // local.get 0 (n)
	body = append(body, 0x41, 0x01) // i32.const 1
	body = append(body, 0x6b)       // i32.sub
	body = append(body, 0x21, 0x00) // local.set 0 (n)
	body = append(body, 0x0c, 0x00) // br 0 (continue loop)
	body = append(body, 0x0b)       // end (loop)
	body = append(body, 0x0b)       // end (block)
	body = append(body, 0x20, 0x01) // local.get 1 (sum)
	body = append(body, 0x0b)       // end (function)

	fidx := b.addFunc(ft, vtI32, 1, body)
	b.export("sum_to", fidx)

	v, err := NewVM(b.bytes(), nil)
	require.NoError(t, err)

	idx, _ := v.GetFunctionIndex("sum_to")
	ret, err := v.Invoke(idx, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(15), ret)

	ret, err = v.Invoke(idx, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), ret)
}

func TestDivByZeroTraps(t *testing.T) {
	b := newModuleBuilder()
	ft := b.addType([]byte{vtI32, vtI32}, []byte{vtI32})
	body := []byte{0x20, 0x00, 0x20, 0x01, 0x6d, 0x0b} // local.get 0; local.get 1; i32.div_s; end
	fidx := b.addFunc(ft, 0, 0, body)
	b.export("div", fidx)

	v, err := NewVM(b.bytes(), nil)
	require.NoError(t, err)

	idx, _ := v.GetFunctionIndex("div")
	_, err = v.Invoke(idx, 10, 0)
	require.Error(t, err)

	trap, ok := err.(*Trap)
	require.True(t, ok)
	require.Equal(t, TrapIntegerDivideByZero, trap.Kind)
}

func TestMemoryLoadStore(t *testing.T) {
	b := newModuleBuilder()
	b.withMemory(1, nil)
	ft := b.addType([]byte{vtI32, vtI32}, []byte{vtI32})
	// local.get 0 (addr); local.get 1 (value); i32.store align=0 offset=0
	// local.get 0 (addr); i32.load align=0 offset=0; end
	body := []byte{
		0x20, 0x00, 0x20, 0x01, 0x36, 0x00, 0x00,
		0x20, 0x00, 0x28, 0x00, 0x00,
		0x0b,
	}
	fidx := b.addFunc(ft, 0, 0, body)
	b.export("roundtrip", fidx)

	v, err := NewVM(b.bytes(), nil)
	require.NoError(t, err)

	idx, _ := v.GetFunctionIndex("roundtrip")
	ret, err := v.Invoke(idx, 8, 1234)
	require.NoError(t, err)
	require.Equal(t, uint64(1234), ret)
}

func TestCallHostFunction(t *testing.T) {
	b := newModuleBuilder()
	importType := b.addType([]byte{vtI32}, []byte{vtI32})
	b.addImport("env", "double", importType)

	ft := b.addType([]byte{vtI32}, []byte{vtI32})
	body := []byte{0x20, 0x00, 0x10, 0x00, 0x0b} // local.get 0; call 0 (the import); end
	fidx := b.addFunc(ft, 0, 0, body)
	// The import occupies combined function index 0, so this locally
	// defined function's real combined index is fidx+1.
	b.export("call_double", fidx+1)

	resolver := &funcResolver{fns: map[string]HostFunction{
		"double": func(vm *VM, args ...uint64) uint64 {
			return args[0] * 2
		},
	}}

	v, err := NewVM(b.bytes(), resolver)
	require.NoError(t, err)

	idx, ok := v.GetFunctionIndex("call_double")
	require.True(t, ok)
	require.Equal(t, 1, idx)

	ret, err := v.Invoke(idx, 21)
	require.NoError(t, err)
	require.Equal(t, uint64(42), ret)
}

// TestStartFunctionRunsAtInstantiation verifies the start section's
// function runs automatically inside NewVM, before any explicit Invoke:
// it writes a known value into memory that a later, separately exported
// function reads back.
func TestStartFunctionRunsAtInstantiation(t *testing.T) {
	b := newModuleBuilder()
	b.withMemory(1, nil)

	initType := b.addType(nil, nil)
	// i32.const 0 (addr); i32.const 99 (value); i32.store; end
	initBody := []byte{0x41, 0x00, 0x41, 0xe3, 0x00, 0x36, 0x00, 0x00, 0x0b}
	initFidx := b.addFunc(initType, 0, 0, initBody)
	b.withStart(initFidx)

	readType := b.addType(nil, []byte{vtI32})
	// i32.const 0; i32.load; end
	readBody := []byte{0x41, 0x00, 0x28, 0x00, 0x00, 0x0b}
	readFidx := b.addFunc(readType, 0, 0, readBody)
	b.export("read", readFidx)

	v, err := NewVM(b.bytes(), nil)
	require.NoError(t, err)

	idx, _ := v.GetFunctionIndex("read")
	ret, err := v.Invoke(idx)
	require.NoError(t, err)
	require.Equal(t, uint64(99), ret)
}

type funcResolver struct {
	fns map[string]HostFunction
}

func (r *funcResolver) GetFunction(module, name string) HostFunction {
	return r.fns[name]
}
