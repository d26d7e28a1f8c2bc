package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vertexdlt/vertexvm/leb128"
)

func preamble() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}

func sec(id byte, payload []byte) []byte {
	out := []byte{id}
	out = append(out, leb128.EncodeU32(uint32(len(payload)))...)
	return append(out, payload...)
}

// addModuleBytes builds: one func type (i32,i32)->(i32), one function of that
// type, whose body is local.get 0; local.get 1; i32.add; end.
func addModuleBytes() []byte {
	typeSec := append(leb128.EncodeU32(1), []byte{0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f}...)
	funcSec := append(leb128.EncodeU32(1), leb128.EncodeU32(0)...)

	body := []byte{0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b}
	entry := append(leb128.EncodeU32(0), body...) // zero local groups
	entry = append(leb128.EncodeU32(uint32(len(entry))), entry...)
	codeSec := append(leb128.EncodeU32(1), entry...)

	var expSec []byte
	expSec = append(expSec, leb128.EncodeU32(1)...)
	expSec = append(expSec, leb128.EncodeU32(uint32(len("add")))...)
	expSec = append(expSec, []byte("add")...)
	expSec = append(expSec, 0x00)
	expSec = append(expSec, leb128.EncodeU32(0)...)

	out := preamble()
	out = append(out, sec(secType, typeSec)...)
	out = append(out, sec(secFunction, funcSec)...)
	out = append(out, sec(secExport, expSec)...)
	out = append(out, sec(secCode, codeSec)...)
	return out
}

func TestDecodeModule(t *testing.T) {
	m, err := DecodeModule(addModuleBytes())
	require.NoError(t, err)
	require.Len(t, m.Types, 1)
	require.Len(t, m.Code, 1)

	exp, ok := m.Exports["add"]
	require.True(t, ok)
	require.Equal(t, ExternFunc, exp.Kind)

	ft, err := m.FuncType(int(exp.Idx))
	require.NoError(t, err)
	require.Equal(t, []ValType{I32, I32}, ft.Params)
	require.Equal(t, []ValType{I32}, ft.Results)

	code, err := m.LocalCode(int(exp.Idx))
	require.NoError(t, err)
	require.Len(t, code.Body, 3)
	require.Equal(t, OpI32Add, code.Body[2].Op)
}

func TestDecodeModuleRejectsBadMagic(t *testing.T) {
	b := append([]byte{}, addModuleBytes()...)
	b[0] = 0xff
	_, err := DecodeModule(b)
	require.Error(t, err)
	de, ok := err.(*DecodeError)
	require.True(t, ok)
	require.Equal(t, InvalidMagic, de.Kind)
}

func TestDecodeModuleTruncatedNeverPanics(t *testing.T) {
	full := addModuleBytes()
	for n := 0; n < len(full); n++ {
		require.NotPanics(t, func() {
			_, _ = DecodeModule(full[:n])
		})
	}
}

func TestDecodeModuleRejectsOutOfOrderSections(t *testing.T) {
	// Swap the encoded type and function sections so function (id 3)
	// precedes type (id 1): still well-formed TLV framing, but out of the
	// required section order.
	typeSec := sec(secType, append(leb128.EncodeU32(1), []byte{0x60, 0x00, 0x00}...))
	funcSec := sec(secFunction, append(leb128.EncodeU32(1), leb128.EncodeU32(0)...))
	bad := append(append([]byte{}, preamble()...), funcSec...)
	bad = append(bad, typeSec...)
	_, err := DecodeModule(bad)
	require.Error(t, err)
}
