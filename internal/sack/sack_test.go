package sack_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemenkov/pspp-sub002/endian"
	"github.com/lemenkov/pspp-sub002/internal/sack"
)

func TestBuildEmitsIntegersInOrder(t *testing.T) {
	got := sack.Build(endian.Little, "1; 2; 3;")
	want := append(append(endian.Little.EmitI32(1), endian.Little.EmitI32(2)...), endian.Little.EmitI32(3)...)
	assert.Equal(t, want, got)
}

func TestBuildEmitsBigEndianWhenRequested(t *testing.T) {
	got := sack.Build(endian.Big, "7;")
	assert.Equal(t, endian.Big.EmitI32(7), got)
}

func TestBuildEmitsPaddedString(t *testing.T) {
	got := sack.Build(endian.Little, `s8 "hi";`)
	assert.Equal(t, []byte("hi      "), got)
}

func TestBuildEmitsSizedIntegers(t *testing.T) {
	got := sack.Build(endian.Little, "i8 -1; i16 1000; i64 9999999999;")
	var want []byte
	want = append(want, byte(int8(-1)))
	want = append(want, endian.Little.EmitI16(1000)...)
	want = append(want, endian.Little.EmitI64(9999999999)...)
	assert.Equal(t, want, got)
}

func TestBuildRepeatsWithAsterisk(t *testing.T) {
	got := sack.Build(endian.Little, "1*3;")
	want := append(append(endian.Little.EmitI32(1), endian.Little.EmitI32(1)...), endian.Little.EmitI32(1)...)
	assert.Equal(t, want, got)
}

func TestBuildCountPrefixesGroupLength(t *testing.T) {
	got := sack.Build(endian.Little, `COUNT(1; 2;);`)
	want := endian.Little.EmitI32(8) // two 4-byte integers inside the group
	want = append(want, endian.Little.EmitI32(1)...)
	want = append(want, endian.Little.EmitI32(2)...)
	assert.Equal(t, want, got)
}

func TestBuildResolvesForwardLabelReference(t *testing.T) {
	got := sack.Build(endian.Little, "@target; 1; target: 2;")
	require.Len(t, got, 12)
	// @target's placeholder is patched to the byte offset where "target:"
	// appears, which is right after the first two 4-byte items.
	assert.Equal(t, endian.Little.EmitI32(8), got[0:4])
}

func TestBuildSysmisAndHighest(t *testing.T) {
	got := sack.Build(endian.Little, "SYSMIS; HIGHEST;")
	want := append(endian.Little.EmitF64(endian.Sysmis), endian.Little.EmitF64(1.7976931348623157e+308)...)
	assert.Equal(t, want, got)
}
