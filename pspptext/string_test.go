package pspptext_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/lemenkov/pspp-sub002/pspptext"
)

func TestByteStringResizeWiden(t *testing.T) {
	b := pspptext.ByteString("abc")
	resized, err := b.Resize(6)
	require.NoError(t, err)
	assert.Equal(t, "abc   ", string(resized))
}

func TestByteStringResizeShortenTrailingSpaces(t *testing.T) {
	b := pspptext.ByteString("abc   ")
	resized, err := b.Resize(3)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(resized))
}

func TestByteStringResizeShortenRejectsNonSpace(t *testing.T) {
	b := pspptext.ByteString("abcdef")
	_, err := b.Resize(3)
	require.Error(t, err)
	var resizeErr pspptext.ResizeError
	require.ErrorAs(t, err, &resizeErr)
}

func TestEqIgnoreTrailingSpaces(t *testing.T) {
	a := pspptext.ByteString("hello   ")
	b := pspptext.ByteString("hello")
	assert.True(t, a.EqIgnoreTrailingSpaces(b))
	assert.False(t, a.EqIgnoreTrailingSpaces(pspptext.ByteString("hellz")))
}

func TestCodepageToUnicodeWidens(t *testing.T) {
	var enc encoding.Encoding = charmap.Windows1252
	raw, _ := charmap.Windows1252.NewEncoder().Bytes([]byte("éèäî"))
	s := pspptext.NewString(raw, &enc, "windows-1252")
	widened := s.CodepageToUnicode()
	assert.Equal(t, "éèäî", strings.TrimRight(widened.AsStr(), " "))
	assert.Equal(t, len("éèäî"), len(widened.RawBytes()))
}
