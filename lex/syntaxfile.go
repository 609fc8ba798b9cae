// Package lex assembles command-bounded token groups from a source file,
// on top of the segment and scan packages: pumping the segmenter,
// mapping segments to tokens, expanding macros, and merging adjacent
// tokens (string concatenation, negative numbers).
//
// Grounded on spec §4.9 and original_source/rust/pspp/src/lex/lexer.rs's
// overall read_command shape (the file itself runs to 23KB and pulls in
// output-formatting and command-dispatch concerns well beyond this
// module's scope, so only its lexing responsibilities are reproduced
// here).
package lex

import (
	"sort"
	"strings"

	"github.com/lemenkov/pspp-sub002/message"
)

// SyntaxFile is a named source text plus the line-start index needed to
// map byte offsets to message.Point locations.
type SyntaxFile struct {
	Name       string
	Text       string
	lineStarts []int
}

// NewSyntaxFile indexes text's line starts once, up front.
func NewSyntaxFile(name, text string) *SyntaxFile {
	f := &SyntaxFile{Name: name, Text: text, lineStarts: []int{0}}
	for i, c := range text {
		if c == '\n' {
			f.lineStarts = append(f.lineStarts, i+1)
		}
	}
	return f
}

// OffsetToPoint converts a byte offset into text into a 1-based
// line/display-column Point.
func (f *SyntaxFile) OffsetToPoint(offset int) message.Point {
	line := sort.Search(len(f.lineStarts), func(i int) bool { return f.lineStarts[i] > offset }) - 1
	if line < 0 {
		line = 0
	}
	p := message.NewPoint(line+1, 1)
	lineStart := f.lineStarts[line]
	if offset > lineStart {
		p = p.Advance(f.Text[lineStart:offset])
	}
	return p
}

// GetLine returns the 1-based line's text, without its trailing newline.
func (f *SyntaxFile) GetLine(n int) string {
	if n < 1 || n > len(f.lineStarts) {
		return ""
	}
	start := f.lineStarts[n-1]
	end := len(f.Text)
	if n < len(f.lineStarts) {
		end = f.lineStarts[n] - 1
	}
	return strings.TrimSuffix(f.Text[start:end], "\r")
}

// Span returns the message.Span between two byte offsets.
func (f *SyntaxFile) Span(start, end int) message.Span {
	return message.Span{Start: f.OffsetToPoint(start), End: f.OffsetToPoint(end)}
}
