package sysfile_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemenkov/pspp-sub002/endian"
	"github.com/lemenkov/pspp-sub002/sysfile"
)

func TestUncompressedCaseReader(t *testing.T) {
	e := endian.Little
	var buf bytes.Buffer
	buf.Write(e.EmitF64(42.0))
	var str [8]byte
	copy(str[:], "abcdefgh")
	buf.Write(str[:])

	cr := sysfile.NewUncompressedCaseReader(&buf, e, []bool{false, true})
	c, err := cr.Next()
	require.NoError(t, err)
	require.Len(t, c, 2)
	assert.True(t, c[0].Present)
	assert.Equal(t, 42.0, c[0].Number)
	assert.True(t, c[1].IsString)
	assert.Equal(t, "abcdefgh", string(c[1].String[:]))

	_, err = cr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestBytecodeCaseReaderDecodesOpcodes(t *testing.T) {
	e := endian.Little
	bias := 100.0
	var buf bytes.Buffer
	// One case of 3 numeric values: 5.0 (opcode 105), sysmis (255), raw
	// payload (253) for value 3.0, then padding opcode 0 to fill block.
	buf.WriteByte(105)
	buf.WriteByte(255)
	buf.WriteByte(253)
	buf.Write(bytes.Repeat([]byte{0}, 5))
	buf.Write(e.EmitF64(3.0))

	cr := sysfile.NewBytecodeCaseReader(&buf, e, bias, []bool{false, false, false})
	c, err := cr.Next()
	require.NoError(t, err)
	require.Len(t, c, 3)
	assert.Equal(t, 5.0, c[0].Number)
	assert.True(t, c[0].Present)
	assert.False(t, c[1].Present)
	assert.Equal(t, 3.0, c[2].Number)
	assert.True(t, c[2].Present)
}

func TestBytecodeCaseReaderStringSpacesOpcode(t *testing.T) {
	e := endian.Little
	var buf bytes.Buffer
	buf.WriteByte(254)
	buf.Write(bytes.Repeat([]byte{0}, 7))

	cr := sysfile.NewBytecodeCaseReader(&buf, e, 100.0, []bool{true})
	c, err := cr.Next()
	require.NoError(t, err)
	assert.Equal(t, "        ", string(c[0].String[:]))
}
