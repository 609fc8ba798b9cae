package scan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemenkov/pspp-sub002/lex/scan"
	"github.com/lemenkov/pspp-sub002/lex/segment"
	"github.com/lemenkov/pspp-sub002/lex/token"
)

func TestFromSegmentNumber(t *testing.T) {
	st := scan.FromSegment("3.5", segment.Number)
	require.NotNil(t, st)
	require.False(t, st.IsErr)
	assert.Equal(t, token.KindNumber, st.Token.Kind)
	assert.Equal(t, 3.5, st.Token.Number)
}

func TestFromSegmentQuotedStringUnescapesDoubledQuote(t *testing.T) {
	st := scan.FromSegment(`'it''s'`, segment.QuotedString)
	require.NotNil(t, st)
	require.False(t, st.IsErr)
	assert.Equal(t, "it's", st.Token.Str)
}

func TestFromSegmentHexString(t *testing.T) {
	st := scan.FromSegment(`X'4142'`, segment.HexString)
	require.NotNil(t, st)
	require.False(t, st.IsErr)
	assert.Equal(t, "AB", st.Token.Str)
}

func TestFromSegmentOddLengthHexStringIsError(t *testing.T) {
	st := scan.FromSegment(`X'414'`, segment.HexString)
	require.NotNil(t, st)
	assert.True(t, st.IsErr)
	assert.Equal(t, scan.ErrOddLengthHexString, st.Err.Kind)
}

func TestFromSegmentPunctuatorBecomesPunct(t *testing.T) {
	st := scan.FromSegment("(", segment.Punct)
	require.NotNil(t, st)
	require.False(t, st.IsErr)
	assert.Equal(t, token.LParen, st.Token.Pct)
}

func TestFromSegmentEndCommandBecomesEndToken(t *testing.T) {
	st := scan.FromSegment(".", segment.EndCommand)
	require.NotNil(t, st)
	require.False(t, st.IsErr)
	assert.Equal(t, token.KindEnd, st.Token.Kind)
}

// fixedWindow adapts a plain slice of tokens into the lookahead callback
// Merge expects, with no further input ever arriving (eof semantics).
func fixedWindow(toks []token.Token) func(int) (token.Token, bool, error) {
	return func(i int) (token.Token, bool, error) {
		if i >= len(toks) {
			return token.Token{}, false, nil
		}
		return toks[i], true, nil
	}
}

func TestMergeFusesConcatenatedStrings(t *testing.T) {
	toks := []token.Token{
		token.Str("a"), token.Pt(token.Plus), token.Str("b"), token.Pt(token.Plus), token.Str("c"),
	}
	action, err := scan.Merge(fixedWindow(toks))
	require.NoError(t, err)
	assert.False(t, action.Copy)
	assert.Equal(t, 5, action.N)
	assert.Equal(t, "abc", action.Replace.Str)
}

func TestMergeLeavesLoneStringAlone(t *testing.T) {
	toks := []token.Token{token.Str("a")}
	action, err := scan.Merge(fixedWindow(toks))
	require.NoError(t, err)
	assert.True(t, action.Copy)
}

func TestMergeFoldsDashIntoNegativeNumber(t *testing.T) {
	toks := []token.Token{token.Pt(token.Dash), token.Num(5)}
	action, err := scan.Merge(fixedWindow(toks))
	require.NoError(t, err)
	assert.False(t, action.Copy)
	assert.Equal(t, 2, action.N)
	assert.Equal(t, -5.0, action.Replace.Number)
}

func TestMergeDoesNotFoldDashBeforeAlreadyNegativeNumber(t *testing.T) {
	toks := []token.Token{token.Pt(token.Dash), token.Num(-5)}
	action, err := scan.Merge(fixedWindow(toks))
	require.NoError(t, err)
	assert.True(t, action.Copy)
}
