// Package util provides small low-level helpers shared by the decoder and
// the execution engine.
package util

import "io"

// ByteReader is a forward-only cursor over an in-memory byte slice. Unlike
// bytes.Reader it exposes its absolute position, which the decoder uses to
// stamp decoded values with the source range they came from.
type ByteReader struct {
	b      []byte
	curPos uint32
}

// NewByteReader wraps b for sequential reading starting at offset 0.
func NewByteReader(b []byte) *ByteReader {
	return &ByteReader{b: b}
}

// Pos returns the current absolute offset into the wrapped buffer.
func (wr *ByteReader) Pos() uint32 {
	return wr.curPos
}

// Len returns the number of unread bytes remaining.
func (wr *ByteReader) Len() int {
	return len(wr.b) - int(wr.curPos)
}

// Read consumes and returns the next n bytes, or io.EOF if fewer remain.
func (wr *ByteReader) Read(n uint32) (b []byte, err error) {
	if uint64(wr.curPos)+uint64(n) > uint64(len(wr.b)) {
		return nil, io.EOF
	}
	b = wr.b[wr.curPos : wr.curPos+n]
	wr.curPos += n
	return b, nil
}

// ReadOne consumes and returns the next single byte.
func (wr *ByteReader) ReadOne() (b byte, err error) {
	if wr.curPos+1 > uint32(len(wr.b)) {
		return 0, io.EOF
	}
	b = wr.b[wr.curPos]
	wr.curPos++
	return b, nil
}

// PeekOne returns the next byte without consuming it.
func (wr *ByteReader) PeekOne() (b byte, err error) {
	if wr.curPos+1 > uint32(len(wr.b)) {
		return 0, io.EOF
	}
	return wr.b[wr.curPos], nil
}

// Remaining returns the unread tail of the buffer without consuming it.
func (wr *ByteReader) Remaining() []byte {
	return wr.b[wr.curPos:]
}
