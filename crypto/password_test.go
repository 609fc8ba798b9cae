package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemenkov/pspp-sub002/crypto"
)

func TestParseEncodedPasswordDecodesKnownVectors(t *testing.T) {
	p, ok := crypto.ParseEncodedPassword([]byte("-|"))
	require.True(t, ok)
	assert.Equal(t, []byte("b"), p.Decode())

	p, ok = crypto.ParseEncodedPassword([]byte(" A"))
	require.True(t, ok)
	assert.Equal(t, []byte("a"), p.Decode())
}

func TestEncodeDecodeRoundTripsEveryByte(t *testing.T) {
	for b := 0; b < 256; b++ {
		plaintext := []byte{byte(b)}
		encoded := crypto.NewEncodedPassword(plaintext)
		n := encoded.NVariants()
		for v := uint64(0); v < n; v++ {
			variant := encoded.Variant(v)
			parsed, ok := crypto.ParseEncodedPassword(variant)
			require.True(t, ok, "variant %q of byte %d should parse", variant, b)
			assert.Equal(t, plaintext, parsed.Decode(), "variant %q of byte %d", variant, b)
		}
	}
}

func TestParseEncodedPasswordRejectsInvalid(t *testing.T) {
	_, ok := crypto.ParseEncodedPassword([]byte("odd"))
	assert.False(t, ok)

	_, ok = crypto.ParseEncodedPassword(make([]byte, 22))
	assert.False(t, ok)

	_, ok = crypto.ParseEncodedPassword([]byte{0x01, 0x02})
	assert.False(t, ok)
}
