// Package macro implements PSPP's preprocessor-style macro expansion: a
// table of named token-replacement templates, optionally parameterized,
// expanded inline into a command's token stream before parsing.
//
// original_source's lexer.rs (rust/pspp/src/lex/lexer.rs) imports this
// functionality from `crate::macros::{macro_tokens_to_syntax, MacroSet,
// ParseStatus, Parser}`, but macros.rs itself was not retrieved into this
// pack's original_source; this package is therefore built from spec
// §4.9 step 3's description ("attempt to parse a macro call at each
// position; on a committed call, replace the call's tokens with the
// expansion, keeping each output token's macro-representation for error
// reporting") plus the `!name`/`!ENDDEFINE`-style macro call and
// parameter punctuation `lex/token.rs` reserves (`Bang`, `Percent`,
// `Question`, `Backtick` are documented there as "only appears in
// macros").
package macro

import "github.com/lemenkov/pspp-sub002/lex/token"

// Macro is a named, optionally parameterized token template.
type Macro struct {
	Name   string
	Params []string
	Body   []token.Token
}

// Set is a table of macros in scope for one lexer.
type Set struct {
	byName map[string]Macro
}

// NewSet returns an empty macro table.
func NewSet() *Set {
	return &Set{byName: make(map[string]Macro)}
}

// Define adds or replaces a macro.
func (s *Set) Define(m Macro) {
	s.byName[normalize(m.Name)] = m
}

// Lookup finds a macro by name, case-insensitively, accepting both
// `!name` and bare `name` spellings.
func (s *Set) Lookup(name string) (Macro, bool) {
	m, ok := s.byName[normalize(name)]
	return m, ok
}

func normalize(name string) string {
	trimmed := name
	if len(trimmed) > 0 && trimmed[0] == '!' {
		trimmed = trimmed[1:]
	}
	return upperASCII(trimmed)
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

// Call records one macro invocation's position in the *expanded* output
// token stream, plus the original call text, so the lexer can render
// "In syntax expanded from `…`: …" diagnostics per spec §4.9.
type Call struct {
	Start, End int // half-open range in the expanded token slice
	MacroName  string
	CallText   string
}

// Expand scans tokens for macro calls and splices in their expansions,
// repeating until a pass makes no further substitutions (bounded to
// avoid runaway self-referential macros). It returns the expanded token
// list and the provenance of each substitution actually made.
func Expand(tokens []token.Token, set *Set) ([]token.Token, []Call) {
	if set == nil || len(set.byName) == 0 {
		return tokens, nil
	}

	const maxPasses = 16
	var calls []Call
	cur := tokens
	for pass := 0; pass < maxPasses; pass++ {
		next, passCalls, changed := expandOnce(cur, set)
		if !changed {
			return cur, calls
		}
		calls = append(calls, passCalls...)
		cur = next
	}
	return cur, calls
}

func expandOnce(tokens []token.Token, set *Set) ([]token.Token, []Call, bool) {
	var out []token.Token
	var calls []Call
	changed := false

	for i := 0; i < len(tokens); {
		name, ok := callName(tokens[i])
		m, found := set.Lookup(name)
		if !ok || !found {
			out = append(out, tokens[i])
			i++
			continue
		}

		consumed := 1
		var args [][]token.Token
		if len(m.Params) > 0 && i+1 < len(tokens) && isLParen(tokens[i+1]) {
			argTokens, n := readParenArgs(tokens[i+1:])
			consumed += n
			args = splitArgs(argTokens)
		}

		body := substitute(m, args)
		start := len(out)
		out = append(out, body...)
		calls = append(calls, Call{
			Start:     start,
			End:       len(out),
			MacroName: m.Name,
			CallText:  renderCall(tokens[i : i+consumed]),
		})
		i += consumed
		changed = true
	}
	return out, calls, changed
}

func callName(t token.Token) (string, bool) {
	if id, ok := t.AsID(); ok {
		return id, true
	}
	return "", false
}

func isLParen(t token.Token) bool {
	return t.Kind == token.KindPunct && t.Pct == token.LParen
}

func isRParen(t token.Token) bool {
	return t.Kind == token.KindPunct && t.Pct == token.RParen
}

func isComma(t token.Token) bool {
	return t.Kind == token.KindPunct && t.Pct == token.Comma
}

// readParenArgs consumes a balanced `( ... )` group starting at rest[0]
// and returns the tokens strictly inside it plus the total number of
// input tokens consumed (including both parens).
func readParenArgs(rest []token.Token) ([]token.Token, int) {
	depth := 0
	for i, t := range rest {
		if isLParen(t) {
			depth++
		} else if isRParen(t) {
			depth--
			if depth == 0 {
				return rest[1:i], i + 1
			}
		}
	}
	return nil, len(rest)
}

func splitArgs(tokens []token.Token) [][]token.Token {
	if len(tokens) == 0 {
		return nil
	}
	var args [][]token.Token
	start := 0
	depth := 0
	for i, t := range tokens {
		if isLParen(t) {
			depth++
		} else if isRParen(t) {
			depth--
		} else if isComma(t) && depth == 0 {
			args = append(args, tokens[start:i])
			start = i + 1
		}
	}
	args = append(args, tokens[start:])
	return args
}

func substitute(m Macro, args [][]token.Token) []token.Token {
	argByName := make(map[string][]token.Token, len(m.Params))
	for i, p := range m.Params {
		if i < len(args) {
			argByName[upperASCII(p)] = args[i]
		}
	}
	var out []token.Token
	for _, bt := range m.Body {
		if id, ok := bt.AsID(); ok {
			if replacement, isParam := argByName[upperASCII(id)]; isParam {
				out = append(out, replacement...)
				continue
			}
		}
		out = append(out, bt)
	}
	return out
}

func renderCall(tokens []token.Token) string {
	var out string
	for i, t := range tokens {
		if i > 0 {
			out += " "
		}
		out += t.String()
	}
	return ellipsize(out, 64)
}

func ellipsize(s string, maxCols int) string {
	runes := []rune(s)
	if len(runes) <= maxCols {
		return s
	}
	return string(runes[:maxCols-1]) + "…"
}
