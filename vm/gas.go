package vm

import "github.com/vertexdlt/vertexvm/wasm"

// Gas tracks consumption against a limit for one VM instance.
type Gas struct {
	Used  uint64
	Limit uint64
}

// GasPolicy prices individual opcodes and memory growth. Engines embedding
// the VM in a metered environment supply their own; the two below cover
// the unmetered and flat-rate cases.
type GasPolicy interface {
	GetCostForOp(op wasm.Opcode) uint64
	GetCostForMalloc(pages int) uint64
}

// FreeGasPolicy charges nothing; it is the default policy a VM is created
// with when the caller supplies none.
type FreeGasPolicy struct{}

// GetCostForOp always returns 0.
func (p *FreeGasPolicy) GetCostForOp(op wasm.Opcode) uint64 {
	return 0
}

// GetCostForMalloc always returns 0.
func (p *FreeGasPolicy) GetCostForMalloc(pages int) uint64 {
	return 0
}

// SimpleGasPolicy charges a flat 1 gas per instruction and 1024 gas per
// memory page grown.
type SimpleGasPolicy struct{}

// GetCostForOp always returns 1.
func (p *SimpleGasPolicy) GetCostForOp(op wasm.Opcode) uint64 {
	return 1
}

// GetCostForMalloc returns 1024 gas per page.
func (p *SimpleGasPolicy) GetCostForMalloc(pages int) uint64 {
	return uint64(pages) * 1024
}
