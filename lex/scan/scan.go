// Package scan maps segment.Segmenter output onto lex/token.Token values
// and performs the small amount of token-level merging (string
// concatenation, negative-number folding) PSPP's parser relies on.
//
// Grounded on original_source/rust/pspp/src/lex/scan/mod.rs's
// ScanToken::from_segment and ScanToken::merge.
package scan

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/lemenkov/pspp-sub002/lex/segment"
	"github.com/lemenkov/pspp-sub002/lex/token"
)

// Error is a scan-time error attached to a span of input; it is reported
// as a message.Diagnostic by the lexer rather than here, so this package
// stays pure.
type Error struct {
	Kind    ErrorKind
	Detail  string
	Numeric int
}

type ErrorKind int

const (
	ErrExpectedQuote ErrorKind = iota
	ErrExpectedExponent
	ErrOddLengthHexString
	ErrBadHexDigit
	ErrBadLengthUnicodeString
	ErrBadCodePoint
	ErrExpectedCodePoint
	ErrDoRepeatOverflow
	ErrUnexpectedChar
)

func (e Error) Error() string {
	switch e.Kind {
	case ErrExpectedQuote:
		return "unterminated string constant"
	case ErrExpectedExponent:
		return fmt.Sprintf("missing exponent following %q", e.Detail)
	case ErrOddLengthHexString:
		return fmt.Sprintf("string of hex digits has %d characters, which is not a multiple of 2", e.Numeric)
	case ErrBadHexDigit:
		return fmt.Sprintf("invalid hex digit %q", e.Detail)
	case ErrBadLengthUnicodeString:
		return fmt.Sprintf("unicode string contains %d bytes, not in the valid range of 1 to 8", e.Numeric)
	case ErrBadCodePoint:
		return fmt.Sprintf("U+%04X is not a valid Unicode code point", e.Numeric)
	case ErrExpectedCodePoint:
		return "expected hexadecimal Unicode code point"
	case ErrDoRepeatOverflow:
		return "DO REPEAT nested too deeply"
	case ErrUnexpectedChar:
		return fmt.Sprintf("unexpected character %q in input", e.Detail)
	default:
		return "scan error"
	}
}

// ScanToken is either a successfully scanned Token or an Error, matching
// the input segment's position 1:1.
type ScanToken struct {
	Token token.Token
	Err   *Error
	IsErr bool
}

// FromSegment converts one labeled segment's source text into a
// ScanToken, or nil if the segment carries no token (whitespace,
// comments, shbang lines).
func FromSegment(s string, kind segment.Kind) *ScanToken {
	switch kind {
	case segment.Number:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			n = 0
		}
		return &ScanToken{Token: token.Num(n)}

	case segment.QuotedString:
		quote := s[0]
		inner := s[1 : len(s)-1]
		doubled := string(quote) + string(quote)
		return &ScanToken{Token: token.Str(strings.ReplaceAll(inner, doubled, string(quote)))}

	case segment.HexString:
		inner := s[2 : len(s)-1]
		for _, c := range inner {
			if !isHexDigit(c) {
				return &ScanToken{IsErr: true, Err: &Error{Kind: ErrBadHexDigit, Detail: string(c)}}
			}
		}
		if len(inner)%2 != 0 {
			return &ScanToken{IsErr: true, Err: &Error{Kind: ErrOddLengthHexString, Numeric: len(inner)}}
		}
		raw, err := hex.DecodeString(inner)
		if err != nil {
			return &ScanToken{IsErr: true, Err: &Error{Kind: ErrBadHexDigit, Detail: inner}}
		}
		return &ScanToken{Token: token.Str(string(raw))}

	case segment.UnicodeString:
		inner := s[2 : len(s)-1]
		if len(inner) < 1 || len(inner) > 8 {
			return &ScanToken{IsErr: true, Err: &Error{Kind: ErrBadLengthUnicodeString, Numeric: len(inner)}}
		}
		cp, err := strconv.ParseUint(inner, 16, 32)
		if err != nil {
			return &ScanToken{IsErr: true, Err: &Error{Kind: ErrExpectedCodePoint}}
		}
		if cp > 0x10FFFF || (cp >= 0xD800 && cp <= 0xDFFF) {
			return &ScanToken{IsErr: true, Err: &Error{Kind: ErrBadCodePoint, Numeric: int(cp)}}
		}
		return &ScanToken{Token: token.Str(string(rune(cp)))}

	case segment.UnquotedString, segment.DoRepeatCommand, segment.InlineData,
		segment.Document, segment.MacroBody, segment.MacroName:
		return &ScanToken{Token: token.Str(s)}

	case segment.Identifier:
		if p, ok := token.LookupReservedWord(s); ok {
			return &ScanToken{Token: token.Pt(p)}
		}
		return &ScanToken{Token: token.ID(s)}

	case segment.Punct:
		p, ok := puncts[s]
		if !ok {
			return &ScanToken{IsErr: true, Err: &Error{Kind: ErrUnexpectedChar, Detail: s}}
		}
		return &ScanToken{Token: token.Pt(p)}

	case segment.Shbang, segment.Spaces, segment.Comment, segment.Newline, segment.CommentCommand:
		return nil

	case segment.DoRepeatOverflow:
		return &ScanToken{IsErr: true, Err: &Error{Kind: ErrDoRepeatOverflow}}

	case segment.StartDocument:
		return &ScanToken{Token: token.ID("DOCUMENT")}

	case segment.StartCommand, segment.SeparateCommands, segment.EndCommand:
		return &ScanToken{Token: token.End()}

	case segment.ExpectedQuote:
		return &ScanToken{IsErr: true, Err: &Error{Kind: ErrExpectedQuote}}

	case segment.ExpectedExponent:
		return &ScanToken{IsErr: true, Err: &Error{Kind: ErrExpectedExponent, Detail: s}}

	case segment.UnexpectedChar:
		return &ScanToken{IsErr: true, Err: &Error{Kind: ErrUnexpectedChar, Detail: s}}

	default:
		return nil
	}
}

var puncts = map[string]token.Punct{
	"(": token.LParen, ")": token.RParen, "[": token.LSquare, "]": token.RSquare,
	"{": token.LCurly, "}": token.RCurly, ",": token.Comma, "=": token.Equals,
	"-": token.Dash, "&": token.And, "|": token.Or, "+": token.Plus,
	"/": token.Slash, "*": token.Asterisk, "<": token.Lt, ">": token.Gt,
	"~": token.Not, ":": token.Colon, ";": token.Semicolon, "**": token.Exp,
	"<=": token.Le, "<>": token.Ne, "~=": token.Ne, ">=": token.Ge,
	"!": token.Bang, "%": token.Percent, "?": token.Question,
	"`": token.Backtick, "_": token.Underscore, ".": token.Dot,
	"!*": token.BangAsterisk,
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// Incomplete signals that more lookahead tokens are needed before Merge
// can decide.
type Incomplete struct{}

func (Incomplete) Error() string { return "scan: need more lookahead" }

// MergeAction is the result of Merge: either copy one token through
// unchanged, or collapse n input tokens into one replacement.
type MergeAction struct {
	Copy    bool
	N       int
	Replace token.Token
}

// Merge inspects tokens from the front of the lookahead window (supplied
// via get, which returns an Incomplete error when index i is
// not yet available and eof is false) and decides how much of the window
// to fold into a single output token.
//
// Grounded bit-for-bit on ScanToken::merge's two cases: `- Number` folds
// into a negative number, and a run of `String (+ String)*` folds into a
// single concatenated string.
func Merge(get func(i int) (token.Token, bool, error)) (MergeAction, error) {
	first, ok, err := get(0)
	if err != nil {
		return MergeAction{}, err
	}
	if !ok {
		return MergeAction{Copy: true}, nil
	}

	switch {
	case first.Kind == token.KindPunct && first.Pct == token.Dash:
		next, ok, err := get(1)
		if err != nil {
			return MergeAction{}, err
		}
		if ok && next.Kind == token.KindNumber && !isNegative(next.Number) {
			return MergeAction{N: 2, Replace: token.Num(-next.Number)}, nil
		}
		return MergeAction{Copy: true}, nil

	case first.Kind == token.KindString:
		i := 0
		var parts []string
		parts = append(parts, first.Str)
		for {
			plus, ok, err := get(i*2 + 1)
			if err != nil {
				return MergeAction{}, err
			}
			if !ok || plus.Kind != token.KindPunct || plus.Pct != token.Plus {
				break
			}
			str, ok, err := get(i*2 + 2)
			if err != nil {
				return MergeAction{}, err
			}
			if !ok || str.Kind != token.KindString {
				break
			}
			parts = append(parts, str.Str)
			i++
		}
		if i == 0 {
			return MergeAction{Copy: true}, nil
		}
		return MergeAction{N: i*2 + 1, Replace: token.Str(strings.Join(parts, ""))}, nil

	default:
		return MergeAction{Copy: true}, nil
	}
}

func isNegative(f float64) bool {
	return f < 0 || (f == 0 && strings.HasPrefix(strconv.FormatFloat(f, 'g', -1, 64), "-"))
}
