// Package message defines the diagnostic model shared by the system-file
// reader and the syntax lexer: source locations measured in display
// columns, severities and categories, and a Diagnostic formatter that
// renders source snippets with caret-and-tilde underlines.
//
// Grounded on original_source/rust/pspp/src/message.rs, with the Display
// formatter's streaming writes reshaped into a strings.Builder-based
// Diagnostic.String(), matching the teacher's (bufbuild-protocompile)
// preference for building reporter.ErrorWithPos-style strings ahead of
// returning them.
package message

import (
	"fmt"
	"strings"

	"github.com/rivo/uniseg"
)

// Point is a 1-based line number and optional 1-based display column within
// a source file. Column is nil when only line granularity is known.
type Point struct {
	Line   int
	Column *int
}

// NewPoint returns a Point with both line and column set.
func NewPoint(line, column int) Point {
	return Point{Line: line, Column: &column}
}

// WithoutColumn returns p with its column information discarded.
func (p Point) WithoutColumn() Point {
	return Point{Line: p.Line}
}

// displayWidth returns s's width in a fixed-width font: CJK characters
// count 2, combining characters count 0, matching the teacher's choice of
// a grapheme-cluster-aware width library for the analogous concern
// (bufbuild-protocompile's comment/token column tracking), adapted here to
// use github.com/rivo/uniseg's StringWidth in place of the Rust
// unicode_width crate.
func displayWidth(s string) int {
	return uniseg.StringWidth(s)
}

// Advance returns p advanced by the text of syntax: each newline in syntax
// increments the line number and resets the column to 1; other runs of
// text advance the column by their display width.
func (p Point) Advance(syntax string) Point {
	result := p
	for len(syntax) > 0 {
		idx := strings.IndexByte(syntax, '\n')
		if idx < 0 {
			if result.Column != nil {
				col := *result.Column + displayWidth(syntax)
				result.Column = &col
			}
			break
		}
		result.Line++
		col := 1
		result.Column = &col
		syntax = syntax[idx+1:]
	}
	return result
}

// Span is a half-open range of Points.
type Span struct {
	Start, End Point
}

// Location identifies where in a source file a diagnostic applies.
type Location struct {
	FileName       string
	HasFileName    bool
	Span           *Span
	OmitUnderlines bool
}

// IsEmpty reports whether l carries neither a file name nor a span.
func (l Location) IsEmpty() bool {
	return !l.HasFileName && l.Span == nil
}

// WithoutColumns returns l with column information stripped from its span.
func (l Location) WithoutColumns() Location {
	out := l
	if l.Span != nil {
		out.Span = &Span{Start: l.Span.Start.WithoutColumn(), End: l.Span.End.WithoutColumn()}
	}
	return out
}

// String renders "file:L1.C1-L2.C2", "file:L1-L2", "L1.C1-L2.C2", or "L1-L2"
// depending on which of file name and column information are present.
func (l Location) String() string {
	var b strings.Builder
	if l.HasFileName {
		b.WriteString(l.FileName)
	}
	if l.Span != nil {
		if l.HasFileName {
			b.WriteByte(':')
		}
		l1, l2 := l.Span.Start.Line, l.Span.End.Line
		c1, c2 := l.Span.Start.Column, l.Span.End.Column
		switch {
		case c1 != nil && c2 != nil && l2 > l1:
			fmt.Fprintf(&b, "%d.%d-%d.%d", l1, *c1, l2, *c2-1)
		case c1 != nil && c2 != nil:
			fmt.Fprintf(&b, "%d.%d-%d", l1, *c1, *c2-1)
		case l2 > l1:
			fmt.Fprintf(&b, "%d-%d", l1, l2)
		default:
			fmt.Fprintf(&b, "%d", l1)
		}
	}
	return b.String()
}

// MergeLocations combines two (possibly absent) locations into one whose
// span covers both, preferring a's file name when they disagree.
func MergeLocations(a, b *Location) *Location {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.HasFileName != b.HasFileName || a.FileName != b.FileName {
		return a
	}
	merged := *a
	switch {
	case a.Span == nil:
		merged.Span = b.Span
	case b.Span == nil:
		merged.Span = a.Span
	default:
		start := a.Span.Start
		if pointLess(b.Span.Start, start) {
			start = b.Span.Start
		}
		end := a.Span.End
		if pointLess(end, b.Span.End) {
			end = b.Span.End
		}
		merged.Span = &Span{Start: start, End: end}
	}
	merged.OmitUnderlines = a.OmitUnderlines || b.OmitUnderlines
	return &merged
}

func pointLess(a, b Point) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	if a.Column == nil || b.Column == nil {
		return false
	}
	return *a.Column < *b.Column
}

// Severity classifies how serious a Diagnostic is.
type Severity int

const (
	Error Severity = iota
	Warning
	Note
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Note:
		return "note"
	default:
		return "unknown"
	}
}

// Category classifies what part of the system produced a Diagnostic.
type Category int

const (
	General Category = iota
	Syntax
	Data
)

// StackEntry is one frame of a diagnostic's explanatory call stack, most
// often used to describe macro-expansion provenance.
type StackEntry struct {
	Location    Location
	Description string
}

// Diagnostic is a fully formed message ready for display: a severity, a
// category, an optional location with source-line snippets, an optional
// explanatory stack, and the message text itself.
type Diagnostic struct {
	Severity    Severity
	Category    Category
	Location    Location
	Source      []SourceLine
	Stack       []StackEntry
	CommandName string
	HasCommand  bool
	Text        string
}

// SourceLine is one line of source text shown alongside a Diagnostic's
// span, tagged with its 1-based line number.
type SourceLine struct {
	Number int
	Text   string
}

// String renders the diagnostic per the teacher's single-writer-pass idiom:
// stack frames, then "location: severity: [command: ]text", then source
// lines with caret-and-tilde underlines unless the location suppresses
// them.
func (d Diagnostic) String() string {
	var b strings.Builder
	for _, frame := range d.Stack {
		if !frame.Location.IsEmpty() {
			fmt.Fprintf(&b, "%s: ", frame.Location)
		}
		fmt.Fprintf(&b, "%s\n", frame.Description)
	}
	if d.Category != General && !d.Location.IsEmpty() {
		fmt.Fprintf(&b, "%s: ", d.Location)
	}
	fmt.Fprintf(&b, "%s: ", d.Severity)
	if d.HasCommand && d.Category == Syntax {
		fmt.Fprintf(&b, "%s: ", d.CommandName)
	}
	b.WriteString(d.Text)

	if d.Location.Span != nil {
		start, end := d.Location.Span.Start, d.Location.Span.End
		if start.Column != nil && end.Column != nil {
			writeSourceSnippets(&b, d, start, end)
		}
	}
	return b.String()
}

func writeSourceSnippets(b *strings.Builder, d Diagnostic, start, end Point) {
	prevLineNumber := -1
	havePrev := false
	for _, line := range d.Source {
		if havePrev && line.Number != prevLineNumber+1 {
			b.WriteString("\n  ... |")
		}
		prevLineNumber = line.Number
		havePrev = true

		fmt.Fprintf(b, "\n%5d | %s", line.Number, line.Text)
		if d.Location.OmitUnderlines {
			continue
		}

		c0 := 1
		if line.Number == start.Line {
			c0 = *start.Column
		}
		c1 := displayWidth(line.Text)
		if line.Number == end.Line {
			c1 = *end.Column
		}
		b.WriteString("\n      |")
		for i := 0; i < c0; i++ {
			b.WriteByte(' ')
		}
		if line.Number == start.Line {
			b.WriteByte('^')
			for i := c0; i < c1; i++ {
				b.WriteByte('~')
			}
		} else {
			for i := c0; i <= c1; i++ {
				b.WriteByte('~')
			}
		}
	}
}
