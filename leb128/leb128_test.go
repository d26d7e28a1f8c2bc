package leb128

import (
	"math"
	"testing"
)

func TestEncodeDecodeU32(t *testing.T) {
	cases := []struct {
		input    uint32
		expected []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
		{math.MaxUint32, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}
	for _, c := range cases {
		encoded := EncodeU32(c.input)
		if string(encoded) != string(c.expected) {
			t.Errorf("EncodeU32(%d) = %v, want %v", c.input, encoded, c.expected)
		}
		decoded, n, err := DecodeU32(c.expected)
		if err != nil {
			t.Fatalf("DecodeU32(%v) returned error: %v", c.expected, err)
		}
		if decoded != c.input || n != len(c.expected) {
			t.Errorf("DecodeU32(%v) = (%d, %d), want (%d, %d)", c.expected, decoded, n, c.input, len(c.expected))
		}
	}
}

func TestEncodeDecodeI32(t *testing.T) {
	cases := []struct {
		input    int32
		expected []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{-1, []byte{0x7f}},
		{-2, []byte{0x7e}},
		{-624485, []byte{0x9b, 0xf1, 0x59}},
		{math.MaxInt32, []byte{0xff, 0xff, 0xff, 0xff, 0x07}},
		{math.MinInt32, []byte{0x80, 0x80, 0x80, 0x80, 0x78}},
	}
	for _, c := range cases {
		encoded := EncodeI32(c.input)
		if string(encoded) != string(c.expected) {
			t.Errorf("EncodeI32(%d) = %v, want %v", c.input, encoded, c.expected)
		}
		decoded, n, err := DecodeI32(c.expected)
		if err != nil {
			t.Fatalf("DecodeI32(%v) returned error: %v", c.expected, err)
		}
		if decoded != c.input || n != len(c.expected) {
			t.Errorf("DecodeI32(%v) = (%d, %d), want (%d, %d)", c.expected, decoded, n, c.input, len(c.expected))
		}
	}
}

// TestDecodeU32NonMinimal verifies the decoder accepts a well-formed but
// non-minimal (padded) encoding, as the spec requires only the encoder to
// produce minimal output.
func TestDecodeU32NonMinimal(t *testing.T) {
	padded := []byte{0x80, 0x80, 0x00} // 0, padded with redundant continuation bytes
	v, n, err := DecodeU32(padded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0 || n != 3 {
		t.Errorf("DecodeU32(%v) = (%d, %d), want (0, 3)", padded, v, n)
	}
}

func TestDecodeUnexpectedEOF(t *testing.T) {
	if _, _, err := DecodeU32([]byte{0x80}); err != ErrUnexpectedEOF {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
	if _, _, err := DecodeU32(nil); err != ErrUnexpectedEOF {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestDecodeOverflow(t *testing.T) {
	// Five continuation bytes carrying a 6th group shifts past bit 32.
	tooWide := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}
	if _, _, err := DecodeU32(tooWide); err != ErrOverflow {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

// TestRoundTrip exercises the property that decode(encode(x)) == x across a
// representative spread of the u32/i32 domains, including the boundary
// values called out by the specification.
func TestRoundTrip(t *testing.T) {
	u32Values := []uint32{0, 1, 2, 127, 128, 16384, math.MaxUint32, math.MaxUint32 - 1}
	for _, x := range u32Values {
		v, n, err := DecodeU32(EncodeU32(x))
		if err != nil || v != x || n != len(EncodeU32(x)) {
			t.Errorf("round trip failed for u32 %d: got (%d, %d, %v)", x, v, n, err)
		}
	}

	i32Values := []int32{0, 1, -1, 127, -127, math.MaxInt32, math.MinInt32}
	for _, x := range i32Values {
		v, n, err := DecodeI32(EncodeI32(x))
		if err != nil || v != x || n != len(EncodeI32(x)) {
			t.Errorf("round trip failed for i32 %d: got (%d, %d, %v)", x, v, n, err)
		}
	}
}
