package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lemenkov/pspp-sub002/message"
)

func TestPointAdvanceTracksLinesAndColumns(t *testing.T) {
	p := message.NewPoint(1, 1)
	p = p.Advance("abc")
	assert.Equal(t, 1, p.Line)
	assert.Equal(t, 4, *p.Column)

	p = p.Advance("def\nghi")
	assert.Equal(t, 2, p.Line)
	assert.Equal(t, 4, *p.Column)
}

func TestPointAdvanceWidensCJK(t *testing.T) {
	p := message.NewPoint(1, 1)
	p = p.Advance("日本語")
	assert.Equal(t, 7, *p.Column)
}

func TestLocationStringSingleLine(t *testing.T) {
	loc := message.Location{
		HasFileName: true,
		FileName:    "test.sps",
		Span: &message.Span{
			Start: message.NewPoint(3, 1),
			End:   message.NewPoint(3, 5),
		},
	}
	assert.Equal(t, "test.sps:3.1-4", loc.String())
}

func TestLocationStringMultiLine(t *testing.T) {
	loc := message.Location{
		Span: &message.Span{
			Start: message.NewPoint(1, 1),
			End:   message.NewPoint(3, 5),
		},
	}
	assert.Equal(t, "1.1-3.4", loc.String())
}

func TestDiagnosticStringIncludesSeverityAndText(t *testing.T) {
	d := message.Diagnostic{
		Severity: message.Error,
		Category: message.General,
		Text:     "something went wrong",
	}
	assert.Equal(t, "error: something went wrong", d.String())
}

func TestDiagnosticStringUnderlinesSpan(t *testing.T) {
	d := message.Diagnostic{
		Severity: message.Warning,
		Category: message.Syntax,
		Location: message.Location{
			HasFileName: true,
			FileName:    "t.sps",
			Span: &message.Span{
				Start: message.NewPoint(1, 5),
				End:   message.NewPoint(1, 8),
			},
		},
		Source: []message.SourceLine{{Number: 1, Text: "GET FILE 'x'."}},
		Text:   "bad token",
	}
	got := d.String()
	assert.Contains(t, got, "t.sps:1.5-7: warning: bad token")
	assert.Contains(t, got, "1 | GET FILE 'x'.")
	assert.Contains(t, got, "^~~")
}

func TestHandlerTracksErrors(t *testing.T) {
	var seen []message.Diagnostic
	h := message.NewHandler(func(d message.Diagnostic) { seen = append(seen, d) })
	assert.False(t, h.SawError())

	h.Report(message.Diagnostic{Severity: message.Warning, Text: "w"})
	assert.False(t, h.SawError())

	h.Report(message.Diagnostic{Severity: message.Error, Text: "e"})
	assert.True(t, h.SawError())
	assert.Len(t, seen, 2)
}
