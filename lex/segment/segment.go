// Package segment implements the lower-level phase of PSPP's two-phase
// lexical analysis: dividing a stream of UTF-8 text into labeled
// "segments" (identifiers, numbers, strings, comments, command
// boundaries, ...) without interpreting their contents. The scan package
// builds tokens on top of these segments.
//
// Grounded on spec §4.7's state enumeration and on
// original_source/rust/pspp/src/lex/scan/mod.rs's consumption of a
// `Segment`/`Segmenter`/`Syntax` API (the segment.rs file that defines
// them directly was not retrieved into this pack's original_source, so
// the state machine below is built from the specification's enumerated
// states and the call shape `push(rest, is_eof) -> (len, kind)` that the
// fuzz target and StringSegmenter in mod.rs both exercise).
package segment

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind labels one consumed prefix of the input.
type Kind int

const (
	Identifier Kind = iota
	Number
	QuotedString
	HexString
	UnicodeString
	UnquotedString
	Comment
	CommentCommand
	Newline
	Spaces
	Shbang
	InlineData
	Document
	DoRepeatCommand
	DoRepeatOverflow
	MacroName
	MacroBody
	Punct
	StartCommand
	SeparateCommands
	EndCommand
	StartDocument
	End // no more input
	ExpectedQuote
	ExpectedExponent
	UnexpectedChar
)

// Syntax selects command-boundary conventions.
type Syntax int

const (
	Auto Syntax = iota
	Interactive
	Batch
)

// ErrIncomplete is returned by Push when rest might be a prefix of a
// longer segment and isEOF is false; the caller should append more input
// and retry.
var ErrIncomplete = errors.New("segment: incomplete input")

const maxDoRepeatDepth = 20

// Segmenter is a pure, byte-driven state machine: it holds no reference
// to the input buffer between calls, only the small amount of state that
// survives a full rescan of the remaining input (nesting depth, whether
// the next segment starts a new command, whether inline-data or document
// mode is active).
type Segmenter struct {
	mode       Syntax
	isSnippet  bool
	atLineHead bool
	sawFirst   bool

	inlineData    bool
	inDocument    bool
	doRepeatDepth int
}

// NewSegmenter returns a Segmenter for mode; isSnippet disables the
// shbang-line and leading-blank-command handling used for whole syntax
// files.
func NewSegmenter(mode Syntax, isSnippet bool) *Segmenter {
	return &Segmenter{mode: mode, isSnippet: isSnippet, atLineHead: true}
}

// Push consumes a labeled prefix of rest. isEOF indicates whether rest is
// the entirety of the remaining input (true) or merely what is available
// so far (false, permitting ErrIncomplete).
func (s *Segmenter) Push(rest string, isEOF bool) (int, Kind, error) {
	if rest == "" {
		if !isEOF {
			return 0, 0, ErrIncomplete
		}
		return 0, End, nil
	}

	if !s.isSnippet && !s.sawFirst {
		s.sawFirst = true
		if strings.HasPrefix(rest, "#!") {
			return s.scanToEOL(rest), Shbang, nil
		}
	}
	s.sawFirst = true

	if s.inDocument && s.atLineHead {
		if lineIsExactly(rest, ".") {
			s.inDocument = false
		} else {
			n := s.scanToEOL(rest)
			if n == 0 {
				n = len(rest)
			}
			return n, Document, nil
		}
	}

	if s.inlineData && s.atLineHead {
		if lineIsExactly(rest, "END DATA") {
			s.inlineData = false
		} else {
			n := s.scanToEOL(rest)
			return n, InlineData, nil
		}
	}

	c, size := utf8.DecodeRuneInString(rest)

	switch {
	case c == '\n':
		s.atLineHead = true
		if s.mode != Batch && isBlankLineAhead(rest[size:]) {
			// A blank line separates commands in interactive mode.
			return size, SeparateCommands, nil
		}
		if s.mode == Batch && startsNewBatchCommand(rest[size:]) {
			// Batch mode has no interactive blank-line convention;
			// instead any non-indented line start begins a new command.
			return size, StartCommand, nil
		}
		return size, Newline, nil

	case c == ' ' || c == '\t' || c == '\r':
		n := spanWhile(rest, func(r rune) bool { return r == ' ' || r == '\t' || r == '\r' })
		return n, Spaces, nil

	case c == '*' && s.atLineHead:
		s.atLineHead = false
		return s.scanToEOL(rest), CommentCommand, nil

	case strings.HasPrefix(rest, "/*"):
		return s.scanBlockComment(rest, isEOF)

	case c == '\'' || c == '"':
		return s.scanQuotedString(rest, c, isEOF)

	case (c == 'x' || c == 'X') && startsQuoted(rest[size:]):
		return s.scanDelimitedString(rest, HexString, isEOF)

	case (c == 'u' || c == 'U') && startsQuoted(rest[size:]):
		return s.scanDelimitedString(rest, UnicodeString, isEOF)

	case unicode.IsDigit(c) || (c == '.' && startsDigit(rest[size:])):
		return s.scanNumber(rest, isEOF)

	case isIdentStart(c):
		n := spanWhile(rest, isIdentCont)
		word := rest[:n]
		wasLineHead := s.atLineHead
		s.atLineHead = false
		// Command-start keywords are recognized wherever they begin a
		// line; PSPP itself only honors them at the start of a command,
		// but tracking full command-boundary state is beyond this
		// simplified segmenter (see DESIGN.md).
		if wasLineHead {
			if strings.EqualFold(word, "DO") && lineHasWord(rest, "REPEAT") {
				s.doRepeatDepth++
				if s.doRepeatDepth > maxDoRepeatDepth {
					return n, DoRepeatOverflow, nil
				}
				return n, DoRepeatCommand, nil
			}
			if strings.EqualFold(word, "BEGIN") && lineHasWord(rest, "DATA") {
				s.inlineData = true
			}
			if strings.EqualFold(word, "DOCUMENT") {
				s.inDocument = true
				return n, StartDocument, nil
			}
		}
		return n, Identifier, nil

	case c == '.' && isEndOfCommandDot(rest[size:]):
		s.atLineHead = false
		return size, EndCommand, nil

	case isPunctRune(c):
		return s.scanPunct(rest), Punct, nil

	default:
		s.atLineHead = false
		return size, UnexpectedChar, nil
	}
}

func (s *Segmenter) scanToEOL(rest string) int {
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		return i
	}
	return len(rest)
}

func (s *Segmenter) scanBlockComment(rest string, isEOF bool) (int, Kind, error) {
	if end := strings.Index(rest[2:], "*/"); end >= 0 {
		return end + 4, Comment, nil
	}
	if !isEOF {
		return 0, 0, ErrIncomplete
	}
	return len(rest), Comment, nil
}

func (s *Segmenter) scanQuotedString(rest string, quote rune, isEOF bool) (int, Kind, error) {
	i := utf8.RuneLen(quote)
	for i < len(rest) {
		r, size := utf8.DecodeRuneInString(rest[i:])
		if r == quote {
			if i+size < len(rest) {
				if r2, size2 := utf8.DecodeRuneInString(rest[i+size:]); r2 == quote {
					i += size + size2
					continue
				}
			} else if !isEOF {
				return 0, 0, ErrIncomplete
			}
			return i + size, QuotedString, nil
		}
		i += size
	}
	if !isEOF {
		return 0, 0, ErrIncomplete
	}
	return len(rest), ExpectedQuote, nil
}

// scanDelimitedString handles X"..." and U"...", whose first rune is the
// tag ('x'/'u') already matched by the caller.
func (s *Segmenter) scanDelimitedString(rest string, kind Kind, isEOF bool) (int, Kind, error) {
	_, tagSize := utf8.DecodeRuneInString(rest)
	quoteRune, _ := utf8.DecodeRuneInString(rest[tagSize:])
	n, inner, err := s.scanQuotedString(rest[tagSize:], quoteRune, isEOF)
	if err != nil {
		return 0, 0, err
	}
	if inner == ExpectedQuote {
		return tagSize + n, ExpectedQuote, nil
	}
	return tagSize + n, kind, nil
}

func (s *Segmenter) scanNumber(rest string, isEOF bool) (int, Kind, error) {
	i := spanWhile(rest, unicode.IsDigit)
	if i < len(rest) && rest[i] == '.' {
		// Only absorb the dot as a decimal point when a digit follows;
		// a bare trailing dot is the command terminator, not a decimal
		// point with no fraction.
		if j := i + 1 + spanWhile(rest[i+1:], unicode.IsDigit); j > i+1 {
			i = j
		}
	}
	if i < len(rest) && (rest[i] == 'e' || rest[i] == 'E') {
		j := i + 1
		if j < len(rest) && (rest[j] == '+' || rest[j] == '-') {
			j++
		}
		digits := spanWhile(rest[j:], unicode.IsDigit)
		if digits == 0 {
			if !isEOF && j == len(rest) {
				return 0, 0, ErrIncomplete
			}
			return j, ExpectedExponent, nil
		}
		i = j + digits
	}
	return i, Number, nil
}

var compoundPuncts = []string{"**", "<=", "<>", "~=", ">=", "!*"}

func (s *Segmenter) scanPunct(rest string) int {
	for _, p := range compoundPuncts {
		if strings.HasPrefix(rest, p) {
			return len(p)
		}
	}
	_, size := utf8.DecodeRuneInString(rest)
	return size
}

func spanWhile(s string, pred func(rune) bool) int {
	i := 0
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !pred(r) {
			break
		}
		i += size
	}
	return i
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '@' || r == '#' || r == '$'
}

func isIdentCont(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '@' || r == '#' || r == '$' || r == '.' || r == '_'
}

func isPunctRune(r rune) bool {
	switch r {
	case '(', ')', '[', ']', '{', '}', ',', '=', '-', '&', '|', '+', '/',
		'*', '<', '>', '~', ':', ';', '!', '%', '?', '`', '_', '.':
		return true
	}
	return false
}

func startsQuoted(rest string) bool {
	return strings.HasPrefix(rest, "\"") || strings.HasPrefix(rest, "'")
}

func startsDigit(rest string) bool {
	if rest == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return unicode.IsDigit(r)
}

func isBlankLineAhead(rest string) bool {
	return len(rest) > 0 && rest[0] == '\n'
}

// startsNewBatchCommand reports whether rest, the text immediately
// following a newline, begins a non-indented line: spec §4.7's batch-mode
// rule is that any such line starts a new command. An empty line (EOF or
// another newline right away) isn't content, so it doesn't count.
func startsNewBatchCommand(rest string) bool {
	if rest == "" {
		return false
	}
	switch rest[0] {
	case ' ', '\t', '\r', '\n':
		return false
	default:
		return true
	}
}

// isEndOfCommandDot reports whether the text following a '.' contains
// nothing but spaces/carriage-returns before the next newline or the end
// of input, which is what marks the '.' as a command terminator rather
// than a decimal point or stray punctuator (spec §4.7's "a dot at end of
// line... is a separator").
func isEndOfCommandDot(after string) bool {
	for _, r := range after {
		switch r {
		case ' ', '\t', '\r':
			continue
		case '\n':
			return true
		default:
			return false
		}
	}
	return true
}

func lineHasWord(rest, word string) bool {
	line := rest
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		line = rest[:i]
	}
	for _, field := range strings.Fields(line) {
		if strings.EqualFold(field, word) {
			return true
		}
	}
	return false
}

func lineIsExactly(rest, want string) bool {
	line := rest
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		line = rest[:i]
	}
	return strings.EqualFold(strings.TrimRight(line, "\r"), want)
}
