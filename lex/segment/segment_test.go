package segment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemenkov/pspp-sub002/lex/segment"
)

// runSegmenter pushes all of input through s and returns the sequence of
// (kind, text) pairs it produced, stopping at segment.End.
func runSegmenter(t *testing.T, s *segment.Segmenter, input string) []segKindText {
	t.Helper()
	var out []segKindText
	rest := input
	for {
		n, kind, err := s.Push(rest, true)
		require.NoError(t, err)
		if kind == segment.End {
			return out
		}
		out = append(out, segKindText{kind, rest[:n]})
		rest = rest[n:]
	}
}

type segKindText struct {
	kind segment.Kind
	text string
}

func kinds(got []segKindText) []segment.Kind {
	ks := make([]segment.Kind, len(got))
	for i, g := range got {
		ks[i] = g.kind
	}
	return ks
}

func TestSegmenterEmitsEndCommandForTerminatingDot(t *testing.T) {
	s := segment.NewSegmenter(segment.Auto, true)
	got := runSegmenter(t, s, "ECHO 'a'.\n")

	foundEnd := false
	for _, g := range got {
		if g.kind == segment.EndCommand {
			foundEnd = true
		}
	}
	assert.True(t, foundEnd, "expected an EndCommand segment for the terminating '.', got %v", kinds(got))
}

func TestSegmenterDotMidNumberIsNotEndCommand(t *testing.T) {
	s := segment.NewSegmenter(segment.Auto, true)
	got := runSegmenter(t, s, "COMPUTE X = 1.5.\n")

	for _, g := range got {
		if g.kind == segment.Number {
			assert.Contains(t, g.text, "1.5")
		}
	}
}

func TestSegmenterIsDeterministic(t *testing.T) {
	const input = "DATA LIST /a 1-2 b 3-4.\nBEGIN DATA.\n12 34\nEND DATA.\n"

	s1 := segment.NewSegmenter(segment.Auto, true)
	first := runSegmenter(t, s1, input)

	s2 := segment.NewSegmenter(segment.Auto, true)
	second := runSegmenter(t, s2, input)

	assert.Equal(t, first, second)
}

func TestSegmenterPunctuationIsNotEndCommand(t *testing.T) {
	s := segment.NewSegmenter(segment.Auto, true)
	got := runSegmenter(t, s, "COMPUTE X = 1 + 2.\n")

	var sawPlus bool
	for _, g := range got {
		if g.kind == segment.Punct && g.text == "+" {
			sawPlus = true
		}
	}
	assert.True(t, sawPlus)
}

func TestSegmenterBatchModeNonIndentedLineStartsCommand(t *testing.T) {
	s := segment.NewSegmenter(segment.Batch, true)
	got := runSegmenter(t, s, "LIST\nVARIABLES\n")

	require.True(t, len(got) > 0)
	var sawStart bool
	for _, g := range got {
		if g.kind == segment.StartCommand {
			sawStart = true
		}
	}
	assert.True(t, sawStart, "expected a StartCommand segment at the second, non-indented line, got %v", kinds(got))
}

func TestSegmenterBatchModeIndentedLineIsNotCommandStart(t *testing.T) {
	s := segment.NewSegmenter(segment.Batch, true)
	got := runSegmenter(t, s, "LIST\n  /VARIABLES\n")

	for _, g := range got {
		assert.NotEqual(t, segment.StartCommand, g.kind, "indented continuation line must not start a command")
	}
}

func TestSegmenterBatchModeDoesNotAffectDot(t *testing.T) {
	s := segment.NewSegmenter(segment.Batch, true)
	got := runSegmenter(t, s, "ECHO 'a'.\n")

	var foundEnd bool
	for _, g := range got {
		if g.kind == segment.EndCommand {
			foundEnd = true
		}
	}
	assert.True(t, foundEnd)
}
