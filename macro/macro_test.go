package macro_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemenkov/pspp-sub002/lex/token"
	"github.com/lemenkov/pspp-sub002/macro"
)

func TestExpandSimpleNoArgMacro(t *testing.T) {
	set := macro.NewSet()
	set.Define(macro.Macro{
		Name: "!greeting",
		Body: []token.Token{token.Str("hello"), token.Str("world")},
	})

	out, calls := macro.Expand([]token.Token{token.ID("!greeting")}, set)

	require.Len(t, out, 2)
	assert.Equal(t, "hello", out[0].Str)
	assert.Equal(t, "world", out[1].Str)
	require.Len(t, calls, 1)
	assert.Equal(t, "!greeting", calls[0].MacroName)
}

func TestExpandSubstitutesParameters(t *testing.T) {
	set := macro.NewSet()
	set.Define(macro.Macro{
		Name:   "!double",
		Params: []string{"!x"},
		Body:   []token.Token{token.ID("!x"), token.Pt(token.Plus), token.ID("!x")},
	})

	in := []token.Token{
		token.ID("!double"), token.Pt(token.LParen), token.Num(3), token.Pt(token.RParen),
	}
	out, calls := macro.Expand(in, set)

	require.Len(t, out, 3)
	assert.Equal(t, token.KindNumber, out[0].Kind)
	assert.Equal(t, 3.0, out[0].Number)
	assert.Equal(t, token.Plus, out[1].Pct)
	assert.Equal(t, 3.0, out[2].Number)
	require.Len(t, calls, 1)
	assert.Equal(t, 0, calls[0].Start)
	assert.Equal(t, 3, calls[0].End)
}

func TestExpandLeavesUnknownIdentifiersAlone(t *testing.T) {
	set := macro.NewSet()
	set.Define(macro.Macro{Name: "!foo", Body: []token.Token{token.Num(1)}})

	in := []token.Token{token.ID("bar")}
	out, calls := macro.Expand(in, set)

	require.Len(t, out, 1)
	assert.Equal(t, "bar", out[0].Ident)
	assert.Empty(t, calls)
}

func TestExpandWithNoMacrosIsANoop(t *testing.T) {
	in := []token.Token{token.ID("x"), token.Num(1)}
	out, calls := macro.Expand(in, macro.NewSet())
	assert.Equal(t, in, out)
	assert.Empty(t, calls)
}

func TestExpandReexpandsNestedMacroCallsAcrossPasses(t *testing.T) {
	set := macro.NewSet()
	set.Define(macro.Macro{Name: "!a", Body: []token.Token{token.ID("!b")}})
	set.Define(macro.Macro{Name: "!b", Body: []token.Token{token.Num(42)}})

	out, calls := macro.Expand([]token.Token{token.ID("!a")}, set)

	require.Len(t, out, 1)
	assert.Equal(t, 42.0, out[0].Number)
	assert.Len(t, calls, 2)
}
