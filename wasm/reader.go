package wasm

import (
	"math"
	"unicode/utf8"

	"github.com/vertexdlt/vertexvm/leb128"
	"github.com/vertexdlt/vertexvm/util"
)

// Reader decodes the WebAssembly binary format from an in-memory buffer,
// tracking its read position so that decoded constructs and decode errors
// can record the byte range they came from. Primitive reads return bare
// values.
type Reader struct {
	br *util.ByteReader
}

// NewReader creates a Reader over b. Pos 0 of the reader corresponds to
// byte 0 of b, so locations it produces are offsets into b. DecodeModule
// gives each section payload and each code entry a Reader of its own, so
// locations decoded inside them are relative to the start of that payload
// or entry, not to the start of the module.
func NewReader(b []byte) *Reader {
	return &Reader{br: util.NewByteReader(b)}
}

// Pos returns the current offset into the buffer the Reader was created
// over.
func (r *Reader) Pos() int {
	return int(r.br.Pos())
}

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int {
	return r.br.Len()
}

// Byte consumes one byte, failing with UnexpectedEOF if none remain.
func (r *Reader) Byte() (byte, error) {
	start := r.Pos()
	b, err := r.br.ReadOne()
	if err != nil {
		return 0, newDecodeError(UnexpectedEOF, start, 0, "expected one more byte")
	}
	return b, nil
}

// Bytes consumes exactly n bytes.
func (r *Reader) Bytes(n uint32) ([]byte, error) {
	start := r.Pos()
	b, err := r.br.Read(n)
	if err != nil {
		return nil, newDecodeError(UnexpectedEOF, start, 0, "expected more bytes")
	}
	return b, nil
}

// Magic consumes and validates the 4-byte `\0asm` module preamble.
func (r *Reader) Magic() error {
	start := r.Pos()
	b, err := r.Bytes(4)
	if err != nil {
		return err
	}
	if b[0] != 0x00 || b[1] != 0x61 || b[2] != 0x73 || b[3] != 0x6d {
		return newDecodeError(InvalidMagic, start, 4, "missing \\0asm preamble")
	}
	return nil
}

// Version consumes and validates the 4-byte version field. This core only
// understands version 1.
func (r *Reader) Version() error {
	start := r.Pos()
	b, err := r.Bytes(4)
	if err != nil {
		return err
	}
	if b[0] != 0x01 || b[1] != 0x00 || b[2] != 0x00 || b[3] != 0x00 {
		return newDecodeError(InvalidVersion, start, 4, "unsupported version, only 1 is known")
	}
	return nil
}

// U32 decodes an unsigned LEB128 32-bit integer.
func (r *Reader) U32() (uint32, error) {
	start := r.Pos()
	v, n, err := leb128.DecodeU32(r.br.Remaining())
	if err != nil {
		return 0, r.leb128Error(err, start)
	}
	r.br.Read(uint32(n))
	return v, nil
}

// I32 decodes a signed LEB128 32-bit integer.
func (r *Reader) I32() (int32, error) {
	start := r.Pos()
	v, n, err := leb128.DecodeI32(r.br.Remaining())
	if err != nil {
		return 0, r.leb128Error(err, start)
	}
	r.br.Read(uint32(n))
	return v, nil
}

// U64 decodes an unsigned LEB128 64-bit integer.
func (r *Reader) U64() (uint64, error) {
	start := r.Pos()
	v, n, err := leb128.DecodeU64(r.br.Remaining())
	if err != nil {
		return 0, r.leb128Error(err, start)
	}
	r.br.Read(uint32(n))
	return v, nil
}

// I64 decodes a signed LEB128 64-bit integer.
func (r *Reader) I64() (int64, error) {
	start := r.Pos()
	v, n, err := leb128.DecodeI64(r.br.Remaining())
	if err != nil {
		return 0, r.leb128Error(err, start)
	}
	r.br.Read(uint32(n))
	return v, nil
}

// F32 decodes a little-endian IEEE-754 single-precision float.
func (r *Reader) F32() (float32, error) {
	u, err := r.fixedU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(u), nil
}

// F64 decodes a little-endian IEEE-754 double-precision float.
func (r *Reader) F64() (float64, error) {
	u, err := r.fixedU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}

func (r *Reader) fixedU32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (r *Reader) fixedU64() (uint64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v, nil
}

// Name decodes a length-prefixed, UTF-8-validated string.
func (r *Reader) Name() (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", err
	}
	start := r.Pos()
	b, err := r.Bytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", newDecodeError(InvalidUtf8, start, len(b), "name is not valid utf-8")
	}
	return string(b), nil
}

func (r *Reader) leb128Error(err error, start int) error {
	if err == leb128.ErrOverflow {
		return newDecodeError(Overflow, start, r.Pos()-start, "leb128 integer too wide")
	}
	return newDecodeError(UnexpectedEOF, start, r.Pos()-start, "truncated leb128 integer")
}
