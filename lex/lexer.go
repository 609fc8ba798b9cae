package lex

import (
	"strings"

	"github.com/lemenkov/pspp-sub002/lex/scan"
	"github.com/lemenkov/pspp-sub002/lex/segment"
	"github.com/lemenkov/pspp-sub002/lex/token"
	"github.com/lemenkov/pspp-sub002/macro"
	"github.com/lemenkov/pspp-sub002/message"
)

// LexToken is one token of a command's worth of lexed input, with its
// source span and, if it came from a macro expansion, the provenance
// needed to render "In syntax expanded from `…`" diagnostics.
type LexToken struct {
	Token     token.Token
	Span      message.Span
	FromMacro bool
	MacroName string
	CallText  string
	CallSpan  message.Span
}

// Lexer pulls command-bounded token groups out of a SyntaxFile. It is a
// pull API: ReadCommand advances through the file and returns one
// command's TokenSlice at a time, or false at end of file.
//
// Grounded on spec §4.9's read_command steps; original_source's
// lexer.rs additionally threads a command-dispatch table and output
// driver through the same struct, neither of which belongs to this
// module's scope (system-file I/O and the lexical front end only).
type Lexer struct {
	file    *SyntaxFile
	mode    segment.Syntax
	handler *message.Handler
	macros  *macro.Set
	pos     int
}

// NewLexer returns a Lexer over file. macros may be nil for no macro
// expansion.
func NewLexer(file *SyntaxFile, mode segment.Syntax, h *message.Handler, macros *macro.Set) *Lexer {
	return &Lexer{file: file, mode: mode, handler: h, macros: macros}
}

type rawToken struct {
	tok   token.Token
	start int
	end   int
}

// ReadCommand performs spec §4.9's five steps: pump the segmenter to the
// next End, map segments to tokens, expand macros, fold adjacent tokens,
// and drain through End. It returns (nil, false) once the file is
// exhausted.
func (l *Lexer) ReadCommand() (*TokenSlice, bool) {
	if l.pos >= len(l.file.Text) {
		return nil, false
	}

	seg := segment.NewSegmenter(l.mode, false)
	var raws []rawToken
	pos := l.pos
	sawEnd := false

	for pos < len(l.file.Text) {
		n, kind, err := seg.Push(l.file.Text[pos:], true)
		if err != nil {
			break
		}
		if kind == segment.End {
			break
		}
		text := l.file.Text[pos : pos+n]
		if st := scan.FromSegment(text, kind); st != nil {
			if st.IsErr {
				l.reportScanError(pos, pos+n, st.Err)
			} else {
				raws = append(raws, rawToken{tok: st.Token, start: pos, end: pos + n})
			}
		}
		pos += n
		if n == 0 {
			pos++
		}
		isEndKind := kind == segment.StartCommand || kind == segment.SeparateCommands || kind == segment.EndCommand
		if isEndKind && len(raws) > 0 {
			sawEnd = true
			break
		}
	}
	if !sawEnd {
		if len(raws) == 0 {
			// Only whitespace, comments or newlines remained.
			l.pos = pos
			return nil, false
		}
		raws = append(raws, rawToken{tok: token.End(), start: pos, end: pos})
	}
	l.pos = pos

	tokens := make([]token.Token, len(raws))
	for i, r := range raws {
		tokens[i] = r.tok
	}
	expanded, calls := macro.Expand(tokens, l.macros)

	lexTokens := attachProvenance(expanded, calls, raws, l.file)
	lexTokens = l.mergeTokens(lexTokens)

	return &TokenSlice{tokens: lexTokens, file: l.file, handler: l.handler}, true
}

// attachProvenance pairs each output token with a source span: tokens
// that were not touched by macro expansion keep the raw token's span at
// the same index; tokens introduced by a macro's body instead carry the
// call's span and text for diagnostic rendering.
func attachProvenance(expanded []token.Token, calls []macro.Call, raws []rawToken, file *SyntaxFile) []LexToken {
	out := make([]LexToken, len(expanded))
	callFor := make(map[int]macro.Call)
	for _, c := range calls {
		for i := c.Start; i < c.End; i++ {
			callFor[i] = c
		}
	}
	for i := range expanded {
		if c, ok := callFor[i]; ok {
			out[i] = LexToken{Token: expanded[i], FromMacro: true, MacroName: c.MacroName, CallText: c.CallText}
			continue
		}
		if i < len(raws) {
			out[i] = LexToken{Token: expanded[i], Span: file.Span(raws[i].start, raws[i].end)}
		} else {
			out[i] = LexToken{Token: expanded[i]}
		}
	}
	return out
}

func (l *Lexer) mergeTokens(in []LexToken) []LexToken {
	var out []LexToken
	i := 0
	for i < len(in) {
		plain := make([]token.Token, len(in)-i)
		for j := range plain {
			plain[j] = in[i+j].Token
		}
		action, err := scan.Merge(func(idx int) (token.Token, bool, error) {
			if idx < len(plain) {
				return plain[idx], true, nil
			}
			return token.Token{}, false, nil
		})
		if err != nil {
			out = append(out, in[i])
			i++
			continue
		}
		if action.Copy {
			out = append(out, in[i])
			i++
			continue
		}
		merged := in[i]
		merged.Token = action.Replace
		out = append(out, merged)
		i += action.N
	}
	return out
}

func (l *Lexer) reportScanError(start, end int, err *scan.Error) {
	if l.handler == nil || err == nil {
		return
	}
	l.handler.Report(message.Diagnostic{
		Severity: message.Error,
		Category: message.Syntax,
		Location: message.Location{FileName: l.file.Name, HasFileName: true, Span: spanPtr(l.file.Span(start, end))},
		Text:     err.Error(),
	})
}

func spanPtr(s message.Span) *message.Span { return &s }

// TokenSlice is the command's worth of tokens a command parser consumes.
//
// Grounded on spec §4.9's listed methods (skip/skip_keyword/skip_syntax/
// split/error/warning).
type TokenSlice struct {
	tokens []LexToken
	file   *SyntaxFile
	handler *message.Handler
}

// Len returns the number of tokens remaining.
func (t *TokenSlice) Len() int { return len(t.tokens) }

// At returns the token at position i.
func (t *TokenSlice) At(i int) token.Token { return t.tokens[i].Token }

// Skip consumes the slice's first token if it equals expected, returning
// whether it matched.
func (t *TokenSlice) Skip(expected token.Token) bool {
	if len(t.tokens) == 0 || t.tokens[0].Token != expected {
		return false
	}
	t.tokens = t.tokens[1:]
	return true
}

// SkipKeyword consumes the first token if it is an identifier matching
// name case-insensitively, or a prefix of name at least three characters
// long. No check is made for prefixes shared with other keywords.
func (t *TokenSlice) SkipKeyword(name string) bool {
	if len(t.tokens) == 0 {
		return false
	}
	id, ok := t.tokens[0].Token.AsID()
	if !ok {
		return false
	}
	if strings.EqualFold(id, name) {
		t.tokens = t.tokens[1:]
		return true
	}
	if len(id) >= 3 && len(id) < len(name) && strings.EqualFold(id, name[:len(id)]) {
		t.tokens = t.tokens[1:]
		return true
	}
	return false
}

// SkipSyntax re-scans snippet with a throwaway lexer and skips a
// matching run of tokens from the front of t.
func (t *TokenSlice) SkipSyntax(snippet string) bool {
	sub := NewSyntaxFile("<snippet>", snippet)
	lx := NewLexer(sub, segment.Batch, nil, nil)
	cmd, ok := lx.ReadCommand()
	if !ok {
		return false
	}
	want := cmd.tokens
	if len(want) > 0 && want[len(want)-1].Token.Kind == token.KindEnd {
		want = want[:len(want)-1]
	}
	if len(want) > len(t.tokens) {
		return false
	}
	for i, w := range want {
		if t.tokens[i].Token != w.Token {
			return false
		}
	}
	t.tokens = t.tokens[len(want):]
	return true
}

// Split partitions t at the first token for which pred returns true,
// returning the tokens before it and the remainder starting at it.
func (t *TokenSlice) Split(pred func(token.Token) bool) (TokenSlice, TokenSlice) {
	for i, lt := range t.tokens {
		if pred(lt.Token) {
			return TokenSlice{tokens: t.tokens[:i], file: t.file, handler: t.handler},
				TokenSlice{tokens: t.tokens[i:], file: t.file, handler: t.handler}
		}
	}
	return *t, TokenSlice{file: t.file, handler: t.handler}
}

// span returns the location covering t's full extent, or an empty
// location if t has no real (non-macro) tokens.
func (t *TokenSlice) span() message.Location {
	var first, last *message.Span
	for i := range t.tokens {
		if t.tokens[i].FromMacro {
			continue
		}
		if first == nil {
			first = &t.tokens[i].Span
		}
		last = &t.tokens[i].Span
	}
	if first == nil {
		return message.Location{}
	}
	merged := message.MergeLocations(
		&message.Location{FileName: t.file.Name, HasFileName: true, Span: first},
		&message.Location{FileName: t.file.Name, HasFileName: true, Span: last},
	)
	if merged == nil {
		return message.Location{FileName: t.file.Name, HasFileName: true, Span: first}
	}
	return *merged
}

func (t *TokenSlice) stack() []message.StackEntry {
	var stack []message.StackEntry
	seen := map[string]bool{}
	for _, lt := range t.tokens {
		if lt.FromMacro && !seen[lt.MacroName] {
			seen[lt.MacroName] = true
			stack = append(stack, message.StackEntry{
				Description: "In syntax expanded from `" + lt.CallText + "`",
			})
		}
	}
	return stack
}

// Error reports an Error-severity diagnostic spanning t's tokens.
func (t *TokenSlice) Error(text string) {
	t.report(message.Error, text)
}

// Warning reports a Warning-severity diagnostic spanning t's tokens.
func (t *TokenSlice) Warning(text string) {
	t.report(message.Warning, text)
}

func (t *TokenSlice) report(sev message.Severity, text string) {
	if t.handler == nil {
		return
	}
	t.handler.Report(message.Diagnostic{
		Severity: sev,
		Category: message.Syntax,
		Location: t.span(),
		Stack:    t.stack(),
		Text:     text,
	})
}
