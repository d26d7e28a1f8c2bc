package vm

import "github.com/vertexdlt/vertexvm/wasm"

// castReturnValue reinterprets a raw 64-bit operand stack slot as the
// signed integer value appropriate for retType, sign-extending i32 results
// the same way the spec's reference return value does. Floats are
// returned bit-for-bit (the caller reinterprets via math.Float32/64frombits
// as needed) since there is no single faithful integer rendering of NaN
// payloads.
func castReturnValue(raw uint64, retType wasm.ValType) int64 {
	switch retType {
	case wasm.I32:
		return int64(int32(uint32(raw)))
	case wasm.I64:
		return int64(raw)
	case wasm.F32, wasm.F64:
		return int64(raw)
	default:
		return int64(raw)
	}
}
