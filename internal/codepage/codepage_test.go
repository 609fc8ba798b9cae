package codepage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemenkov/pspp-sub002/internal/codepage"
)

func TestNameForCodepageKnownValues(t *testing.T) {
	name, ok := codepage.NameForCodepage(1252)
	require.True(t, ok)
	assert.Equal(t, "windows-1252", name)

	name, ok = codepage.NameForCodepage(65001)
	require.True(t, ok)
	assert.Equal(t, "utf-8", name)
}

func TestCodepageForNameIsCaseInsensitive(t *testing.T) {
	n, ok := codepage.CodepageForName("UTF-8")
	require.True(t, ok)
	assert.Equal(t, 65001, n)
}

func TestResolveExplicitLabelWins(t *testing.T) {
	label, err := codepage.Resolve("shift_jis", true, 1252, true)
	require.NoError(t, err)
	assert.Equal(t, "shift_jis", label)
}

func TestResolveRejectsEbcdic(t *testing.T) {
	_, err := codepage.Resolve("", false, 1, true)
	var cpErr codepage.Error
	require.ErrorAs(t, err, &cpErr)
	assert.Equal(t, codepage.Ebcdic, cpErr.Kind)
}

func TestResolveTreatsAsciiCodesAsNoEncoding(t *testing.T) {
	_, err := codepage.Resolve("", false, 2, true)
	var cpErr codepage.Error
	require.ErrorAs(t, err, &cpErr)
	assert.Equal(t, codepage.NoEncoding, cpErr.Kind)
}

func TestResolveUnknownCodepage(t *testing.T) {
	_, err := codepage.Resolve("", false, 999999, true)
	var cpErr codepage.Error
	require.ErrorAs(t, err, &cpErr)
	assert.Equal(t, codepage.UnknownCodepage, cpErr.Kind)
}

func TestResolveWithNoInformation(t *testing.T) {
	_, err := codepage.Resolve("", false, 0, false)
	var cpErr codepage.Error
	require.ErrorAs(t, err, &cpErr)
	assert.Equal(t, codepage.NoEncoding, cpErr.Kind)
}
