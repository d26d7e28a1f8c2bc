package wasm

import "fmt"

// SourceLocation is the byte range in the decoder's input buffer that a
// decoded construct was produced from. Instructions, function types,
// imports, globals, code entries and decode errors carry one; exports,
// element and data segments, and table, memory, global and block types do
// not.
type SourceLocation struct {
	Offset int
	Length int
}

// End returns the offset one past the last byte covered by the location.
func (l SourceLocation) End() int {
	return l.Offset + l.Length
}

// Contains reports whether absolute offset o falls within the half-open
// range [Offset, Offset+Length).
func (l SourceLocation) Contains(o int) bool {
	return o >= l.Offset && o < l.End()
}

// Covers reports whether l fully contains other, i.e. other is a valid
// sub-span of l.
func (l SourceLocation) Covers(other SourceLocation) bool {
	return other.Offset >= l.Offset && other.End() <= l.End()
}

func (l SourceLocation) String() string {
	return fmt.Sprintf("[%d:%d)", l.Offset, l.End())
}
