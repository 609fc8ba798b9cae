package endian_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemenkov/pspp-sub002/endian"
)

func TestRoundTripIntegers(t *testing.T) {
	for _, e := range []endian.Endian{endian.Big, endian.Little} {
		u16, err := e.ParseU16(e.EmitU16(0xBEEF))
		require.NoError(t, err)
		assert.Equal(t, uint16(0xBEEF), u16)

		i32, err := e.ParseI32(e.EmitI32(-12345))
		require.NoError(t, err)
		assert.Equal(t, int32(-12345), i32)

		u64, err := e.ParseU64(e.EmitU64(0x0123456789ABCDEF))
		require.NoError(t, err)
		assert.Equal(t, uint64(0x0123456789ABCDEF), u64)
	}
}

func TestSysmisRoundTrip(t *testing.T) {
	buf := endian.Big.EmitF64Missing(0, false)
	v, ok, err := endian.Big.ParseF64Missing(buf)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, v)

	buf = endian.Big.EmitF64Missing(105.0, true)
	v, ok, err = endian.Big.ParseF64Missing(buf)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 105.0, v)
}

func TestSysmisIsNegMaxFloat(t *testing.T) {
	assert.Equal(t, -math.MaxFloat64, endian.Sysmis)
}

func TestShortInput(t *testing.T) {
	_, err := endian.Big.ParseU32([]byte{1, 2})
	require.Error(t, err)
	var short endian.ErrShortInput
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 4, short.Want)
	assert.Equal(t, 2, short.Got)
}
