package lex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemenkov/pspp-sub002/lex/segment"
	"github.com/lemenkov/pspp-sub002/lex/token"
	"github.com/lemenkov/pspp-sub002/macro"
	"github.com/lemenkov/pspp-sub002/message"
)

// TestReadCommandCrosstabsIsOneCommandGroup covers scenario S3: a single
// command terminated by a bare dot produces one TokenSlice that begins
// with the command name and ends with an End.
func TestReadCommandCrosstabsIsOneCommandGroup(t *testing.T) {
	f := NewSyntaxFile("<test>", "CROSSTABS /TABLES=a BY b.\n")
	lx := NewLexer(f, segment.Batch, nil, nil)

	cmd, ok := lx.ReadCommand()
	require.True(t, ok)
	require.Equal(t, token.KindEnd, cmd.tokens[len(cmd.tokens)-1].Token.Kind)

	id, ok := cmd.tokens[0].Token.AsID()
	require.True(t, ok)
	assert.Equal(t, "CROSSTABS", id)

	_, ok = lx.ReadCommand()
	assert.False(t, ok)
}

// TestReadCommandFusesConcatenatedStrings covers scenario S4: ECHO 'a' +
// 'b'. lexes to an Id, a fused String (the '+' concatenation collapsed
// by scan.Merge), and an End.
func TestReadCommandFusesConcatenatedStrings(t *testing.T) {
	f := NewSyntaxFile("<test>", "ECHO 'a' + 'b'.\n")
	lx := NewLexer(f, segment.Batch, nil, nil)

	cmd, ok := lx.ReadCommand()
	require.True(t, ok)
	require.Len(t, cmd.tokens, 3)

	assert.Equal(t, token.KindID, cmd.tokens[0].Token.Kind)
	assert.Equal(t, token.KindString, cmd.tokens[1].Token.Kind)
	s, ok := cmd.tokens[1].Token.AsString()
	require.True(t, ok)
	assert.Equal(t, "ab", s)
	assert.Equal(t, token.KindEnd, cmd.tokens[2].Token.Kind)
}

// TestReadCommandTwoCommandsAreTwoSlices confirms a second statement
// after a terminating dot starts a fresh TokenSlice at the next
// ReadCommand call, rather than being folded into the first.
func TestReadCommandTwoCommandsAreTwoSlices(t *testing.T) {
	f := NewSyntaxFile("<test>", "ECHO 'a'.\nECHO 'b'.\n")
	lx := NewLexer(f, segment.Batch, nil, nil)

	first, ok := lx.ReadCommand()
	require.True(t, ok)
	second, ok := lx.ReadCommand()
	require.True(t, ok)

	s1, _ := first.tokens[1].Token.AsString()
	s2, _ := second.tokens[1].Token.AsString()
	assert.Equal(t, "a", s1)
	assert.Equal(t, "b", s2)

	_, ok = lx.ReadCommand()
	assert.False(t, ok)
}

// TestReadCommandPreservesTokenSpans exercises provenance: non-macro
// tokens carry a span whose offsets land on the exact source bytes they
// were scanned from.
func TestReadCommandPreservesTokenSpans(t *testing.T) {
	text := "ECHO 'hi'.\n"
	f := NewSyntaxFile("<test>", text)
	lx := NewLexer(f, segment.Batch, nil, nil)

	cmd, ok := lx.ReadCommand()
	require.True(t, ok)

	idTok := cmd.tokens[0]
	assert.False(t, idTok.FromMacro)
	assert.Equal(t, 1, idTok.Span.Start.Line)
	assert.Equal(t, 1, idTok.Span.Start.Column)
}

// TestReadCommandExpandsMacroAndTracksProvenance runs a defined macro
// through the lexer and confirms the expanded token carries FromMacro
// provenance naming the macro and its call text.
func TestReadCommandExpandsMacroAndTracksProvenance(t *testing.T) {
	set := macro.NewSet()
	set.Define(macro.Macro{Name: "!greeting", Body: []token.Token{token.Str("hello")}})

	f := NewSyntaxFile("<test>", "ECHO !greeting.\n")
	lx := NewLexer(f, segment.Batch, nil, set)

	cmd, ok := lx.ReadCommand()
	require.True(t, ok)
	require.Len(t, cmd.tokens, 3)

	expanded := cmd.tokens[1]
	assert.True(t, expanded.FromMacro)
	assert.Equal(t, "!greeting", expanded.MacroName)
	s, ok := expanded.Token.AsString()
	require.True(t, ok)
	assert.Equal(t, "hello", s)
}

// TestSkipKeywordAcceptsUnambiguousAbbreviation covers TokenSlice's
// ≥3-char prefix rule: the input token VAR abbreviates VARIABLES.
func TestSkipKeywordAcceptsUnambiguousAbbreviation(t *testing.T) {
	f := NewSyntaxFile("<test>", "VAR x.\n")
	lx := NewLexer(f, segment.Batch, nil, nil)
	cmd, ok := lx.ReadCommand()
	require.True(t, ok)

	assert.True(t, cmd.SkipKeyword("VARIABLES"))
	id, ok := cmd.At(0).AsID()
	require.True(t, ok)
	assert.Equal(t, "x", id)
}

// TestSkipKeywordRejectsTooShortAbbreviation confirms a 2-character
// prefix does not match, since the rule requires at least 3 characters.
func TestSkipKeywordRejectsTooShortAbbreviation(t *testing.T) {
	f := NewSyntaxFile("<test>", "VA x.\n")
	lx := NewLexer(f, segment.Batch, nil, nil)
	cmd, ok := lx.ReadCommand()
	require.True(t, ok)

	assert.False(t, cmd.SkipKeyword("VARIABLES"))
}

// TestSkipKeywordMatchesExactNameCaseInsensitively confirms an exact
// (non-abbreviated) match is accepted regardless of case.
func TestSkipKeywordMatchesExactNameCaseInsensitively(t *testing.T) {
	f := NewSyntaxFile("<test>", "variables x.\n")
	lx := NewLexer(f, segment.Batch, nil, nil)
	cmd, ok := lx.ReadCommand()
	require.True(t, ok)

	assert.True(t, cmd.SkipKeyword("VARIABLES"))
}

// TestSkipSyntaxMatchesLeadingTokenRun confirms SkipSyntax re-scans its
// snippet and consumes a matching prefix of the slice's tokens.
func TestSkipSyntaxMatchesLeadingTokenRun(t *testing.T) {
	f := NewSyntaxFile("<test>", "SET X = 1.\n")
	lx := NewLexer(f, segment.Batch, nil, nil)
	cmd, ok := lx.ReadCommand()
	require.True(t, ok)

	require.True(t, cmd.SkipKeyword("SET"))
	assert.True(t, cmd.SkipSyntax("X ="))
	assert.Equal(t, token.Num(1), cmd.At(0))
}

// TestSplitPartitionsAtEnd confirms Split finds the End token that
// closes the command and leaves the remainder starting at it.
func TestSplitPartitionsAtEnd(t *testing.T) {
	f := NewSyntaxFile("<test>", "ECHO 'a'.\n")
	lx := NewLexer(f, segment.Batch, nil, nil)
	cmd, ok := lx.ReadCommand()
	require.True(t, ok)

	before, after := cmd.Split(func(tok token.Token) bool { return tok.Kind == token.KindEnd })
	assert.Equal(t, 2, before.Len())
	assert.Equal(t, 1, after.Len())
	assert.Equal(t, token.KindEnd, after.At(0).Kind)
}

// TestReadCommandBatchModeSplitsOnNonIndentedLine covers spec §4.7's
// batch-mode rule directly through the lexer: two commands on
// consecutive non-indented lines, with no terminating dot, still split
// into two TokenSlices.
func TestReadCommandBatchModeSplitsOnNonIndentedLine(t *testing.T) {
	f := NewSyntaxFile("<test>", "LIST\nVARIABLES\n")
	lx := NewLexer(f, segment.Batch, nil, nil)

	first, ok := lx.ReadCommand()
	require.True(t, ok)
	id1, ok := first.tokens[0].Token.AsID()
	require.True(t, ok)
	assert.Equal(t, "LIST", id1)

	second, ok := lx.ReadCommand()
	require.True(t, ok)
	id2, ok := second.tokens[0].Token.AsID()
	require.True(t, ok)
	assert.Equal(t, "VARIABLES", id2)

	_, ok = lx.ReadCommand()
	assert.False(t, ok)
}

// TestErrorReportsThroughHandler confirms TokenSlice.Error reaches the
// Lexer's message.Handler with Error severity.
func TestErrorReportsThroughHandler(t *testing.T) {
	var got []message.Diagnostic
	h := message.NewHandler(func(d message.Diagnostic) { got = append(got, d) })

	f := NewSyntaxFile("<test>", "ECHO 'a'.\n")
	lx := NewLexer(f, segment.Batch, h, nil)
	cmd, ok := lx.ReadCommand()
	require.True(t, ok)

	cmd.Error("bad syntax")
	require.Len(t, got, 1)
	assert.Equal(t, message.Error, got[0].Severity)
	assert.True(t, h.SawError())
}
