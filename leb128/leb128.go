// Package leb128 implements the LEB128 variable-length integer encoding
// used throughout the WebAssembly binary format.
// https://webassembly.github.io/spec/core/binary/values.html#integers
package leb128

import "errors"

// ErrOverflow is returned when a LEB128 sequence exceeds the bit width of
// the integer it is being decoded into.
var ErrOverflow = errors.New("leb128: integer overflow")

// ErrUnexpectedEOF is returned when a continuation byte was expected but
// the input ran out.
var ErrUnexpectedEOF = errors.New("leb128: unexpected end of input")

// DecodeU32 decodes an unsigned 32-bit LEB128 integer from b, returning the
// value and the number of bytes consumed. b may contain trailing data; only
// the leading encoded integer is consumed.
func DecodeU32(b []byte) (uint32, int, error) {
	v, n, err := decodeUnsigned(b, 32)
	return uint32(v), n, err
}

// DecodeU64 decodes an unsigned 64-bit LEB128 integer from b.
func DecodeU64(b []byte) (uint64, int, error) {
	v, n, err := decodeUnsigned(b, 64)
	return v, n, err
}

// DecodeI32 decodes a signed 32-bit LEB128 integer from b.
func DecodeI32(b []byte) (int32, int, error) {
	v, n, err := decodeSigned(b, 32)
	return int32(v), n, err
}

// DecodeI64 decodes a signed 64-bit LEB128 integer from b.
func DecodeI64(b []byte) (int64, int, error) {
	return decodeSigned(b, 64)
}

func decodeUnsigned(b []byte, width uint) (uint64, int, error) {
	var result uint64
	var shift uint
	for i := 0; ; i++ {
		if i >= len(b) {
			return 0, 0, ErrUnexpectedEOF
		}
		cur := b[i]
		if shift >= width {
			return 0, 0, ErrOverflow
		}
		result |= uint64(cur&0x7f) << shift
		shift += 7
		if cur&0x80 == 0 {
			return result, i + 1, nil
		}
	}
}

func decodeSigned(b []byte, width uint) (int64, int, error) {
	var result int64
	var shift uint
	var cur byte
	i := 0
	for {
		if i >= len(b) {
			return 0, 0, ErrUnexpectedEOF
		}
		cur = b[i]
		i++
		if shift >= width {
			return 0, 0, ErrOverflow
		}
		result |= int64(cur&0x7f) << shift
		shift += 7
		if cur&0x80 == 0 {
			break
		}
	}
	if shift < width && cur&0x40 != 0 {
		result |= -1 << shift
	}
	return result, i, nil
}

// EncodeU32 encodes x as an unsigned LEB128 byte sequence.
func EncodeU32(x uint32) []byte {
	return encodeUnsigned(uint64(x))
}

// EncodeU64 encodes x as an unsigned LEB128 byte sequence.
func EncodeU64(x uint64) []byte {
	return encodeUnsigned(x)
}

func encodeUnsigned(x uint64) []byte {
	var out []byte
	for {
		b := byte(x & 0x7f)
		x >>= 7
		if x != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if x == 0 {
			return out
		}
	}
}

// EncodeI32 encodes x as a signed LEB128 byte sequence.
func EncodeI32(x int32) []byte {
	return encodeSigned(int64(x))
}

// EncodeI64 encodes x as a signed LEB128 byte sequence.
func EncodeI64(x int64) []byte {
	return encodeSigned(x)
}

func encodeSigned(x int64) []byte {
	var out []byte
	for {
		b := byte(x & 0x7f)
		x >>= 7
		signBitSet := b&0x40 != 0
		if (x == 0 && !signBitSet) || (x == -1 && signBitSet) {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}
