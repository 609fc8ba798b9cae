package crypto

import (
	"bytes"
	"crypto/aes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReader(t *testing.T, plaintext []byte) *Reader {
	t.Helper()
	key, err := deriveKey([]byte("pspp"))
	require.NoError(t, err)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	padLen := blockLen - len(plaintext)%blockLen
	if padLen == 0 {
		padLen = blockLen
	}
	padded := append(append([]byte(nil), plaintext...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
	ciphertext := make([]byte, len(padded))
	for i := 0; i+blockLen <= len(padded); i += blockLen {
		block.Encrypt(ciphertext[i:i+blockLen], padded[i:i+blockLen])
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, headerLen))
	buf.Write(ciphertext)
	return newReader(bytes.NewReader(buf.Bytes()), block, Data, int64(len(plaintext)))
}

func TestReaderCrossesMultipleWindows(t *testing.T) {
	plaintext := bytes.Repeat([]byte("0123456789"), windowSize/5) // 8190 bytes: spans two windows, not block-aligned
	r := newTestReader(t, plaintext)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestReaderReadAtExactWindowBoundary(t *testing.T) {
	plaintext := bytes.Repeat([]byte{'z'}, windowSize*2)
	r := newTestReader(t, plaintext)

	_, err := r.Seek(windowSize, io.SeekStart)
	require.NoError(t, err)
	got := make([]byte, 32)
	_, err = io.ReadFull(r, got)
	require.NoError(t, err)
	assert.Equal(t, plaintext[windowSize:windowSize+32], got)
}

func TestReaderSeekFromEnd(t *testing.T) {
	plaintext := bytes.Repeat([]byte{'a'}, 500)
	r := newTestReader(t, plaintext)

	pos, err := r.Seek(-10, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(490), pos)

	got := make([]byte, 10)
	_, err = io.ReadFull(r, got)
	require.NoError(t, err)
	assert.Equal(t, plaintext[490:500], got)
}

func TestReaderReadAtEOFReturnsEOF(t *testing.T) {
	plaintext := []byte("short")
	r := newTestReader(t, plaintext)

	_, err := r.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	n, err := r.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestReaderRejectsNegativeSeek(t *testing.T) {
	r := newTestReader(t, []byte("abc"))
	_, err := r.Seek(-1, io.SeekStart)
	assert.Error(t, err)
}

func TestReaderRejectsInvalidWhence(t *testing.T) {
	r := newTestReader(t, []byte("abc"))
	_, err := r.Seek(0, 99)
	assert.Error(t, err)
}
