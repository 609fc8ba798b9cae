package crypto

import (
	"bytes"
	"crypto/aes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildEnvelope constructs a minimal, well-formed encrypted envelope around
// plaintext using the real key schedule, so Open/Unlock can be exercised
// without a binary fixture on disk.
func buildEnvelope(t *testing.T, password string, fileType FileType, plaintext []byte) []byte {
	t.Helper()

	key, err := deriveKey([]byte(password))
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
	buf.Write(make([]byte, 8))
	buf.WriteString("ENCRYPTED")
	buf.WriteString(fileType.String())
	buf.Write(make([]byte, 16))
	buf.Write(ciphertext)
	return buf.Bytes()
}

func TestOpenRejectsUnencrypted(t *testing.T) {
	_, err := Open(bytes.NewReader(bytes.Repeat([]byte{0}, 64)))
	assert.ErrorIs(t, err, ErrNotEncrypted)
}

func TestOpenAndUnlockRoundTrip(t *testing.T) {
	plaintext := append([]byte("$FL2@(#) test system file                      "), bytes.Repeat([]byte{'x'}, 200)...)
	raw := buildEnvelope(t, "pspp", Data, plaintext)

	f, err := Open(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, Data, f.FileType())

	reader, retry, err := f.Unlock([]byte("pspp"))
	require.NoError(t, err)
	assert.Nil(t, retry)

	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestUnlockWrongPasswordReturnsFileForRetry(t *testing.T) {
	plaintext := append([]byte("$FL2@(#) test system file                      "), bytes.Repeat([]byte{'x'}, 200)...)
	raw := buildEnvelope(t, "pspp", Data, plaintext)

	f, err := Open(bytes.NewReader(raw))
	require.NoError(t, err)

	reader, retry, err := f.Unlock([]byte("wrong"))
	require.Error(t, err)
	assert.Nil(t, reader)
	require.NotNil(t, retry)

	reader, retry, err = retry.Unlock([]byte("pspp"))
	require.NoError(t, err)
	assert.Nil(t, retry)
	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestUnlockSeeksWithinPlaintext(t *testing.T) {
	plaintext := append([]byte("$FL2@(#)"), bytes.Repeat([]byte{'y'}, 300)...)
	raw := buildEnvelope(t, "pspp", Data, plaintext)

	f, err := Open(bytes.NewReader(raw))
	require.NoError(t, err)
	reader, _, err := f.Unlock([]byte("pspp"))
	require.NoError(t, err)

	_, err = reader.Seek(100, io.SeekStart)
	require.NoError(t, err)
	got := make([]byte, 10)
	_, err = io.ReadFull(reader, got)
	require.NoError(t, err)
	assert.Equal(t, plaintext[100:110], got)
}
