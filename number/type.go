package number

// Type identifies the numeric type on either side of a truncating
// conversion (int32/trunc_f32_s and friends).
type Type int

// Numeric types distinguished by signedness, since the trap behaviour of a
// truncating conversion depends on the target's signed range, not just its
// width.
const (
	I32 Type = iota + 1
	I64
	U32
	U64
	F32
	F64
)

// TrapCode classifies why a truncating conversion could not produce a
// value.
type TrapCode int

// Trap codes returned by FloatTruncate.
const (
	NoTrap TrapCode = iota
	NanTrap
	ConvertTrap
)
