// Package pspptext implements the encoded byte-string value used
// throughout the dictionary layer: a byte sequence interpreted under a
// named character encoding, with length-preserving resize and lossy
// recode to UTF-8.
//
// Grounded on original_source/rust/pspp/src/data/encoded.rs (the
// WithEncoding<T> wrapper and its codepage_to_unicode method) and on the
// teacher's reliance on the wider golang.org/x/ ecosystem (x/exp, x/sync)
// for the choice of golang.org/x/text/encoding as the transcoding layer.
package pspptext

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// MaxStringWidth is the widest declared width a string variable may have.
const MaxStringWidth = 32767

// ResizeError is returned by ByteString.Resize when shortening would drop
// non-space bytes.
type ResizeError struct {
	CurrentLen, WantLen int
}

func (e ResizeError) Error() string {
	return fmt.Sprintf("pspptext: cannot resize %d-byte string to %d bytes: trailing bytes are not all spaces", e.CurrentLen, e.WantLen)
}

// ByteString is a raw, encoding-less byte sequence. It is the storage
// representation for both numeric-variable-free text (documents, labels
// before encoding is known) and the payload of a String.
type ByteString []byte

// RawBytes returns the stored bytes verbatim.
func (b ByteString) RawBytes() []byte { return []byte(b) }

// EqIgnoreTrailingSpaces compares two byte strings, treating trailing
// ASCII 0x20 padding as insignificant.
func (b ByteString) EqIgnoreTrailingSpaces(other ByteString) bool {
	return bytes.Equal(trimSpaces(b), trimSpaces(other))
}

func trimSpaces(b []byte) []byte {
	return bytes.TrimRight(b, " ")
}

// Resize widens b by padding ASCII spaces, or shortens it iff the dropped
// suffix is all ASCII spaces. It returns a ResizeError otherwise.
func (b ByteString) Resize(n int) (ByteString, error) {
	switch {
	case n == len(b):
		return b, nil
	case n > len(b):
		out := make([]byte, n)
		copy(out, b)
		for i := len(b); i < n; i++ {
			out[i] = ' '
		}
		return out, nil
	default:
		dropped := b[n:]
		for _, c := range dropped {
			if c != ' ' {
				return nil, ResizeError{CurrentLen: len(b), WantLen: n}
			}
		}
		return append(ByteString(nil), b[:n]...), nil
	}
}

// String is a byte string carrying a named character encoding.
type String struct {
	bytes    ByteString
	encoding *encoding.Encoding
	name     string
}

// NewString wraps a copy of raw with enc, recording name as the
// encoding's label. It does no lookup of its own; LookupEncoding resolves
// a label to an encoding.
func NewString(raw []byte, enc *encoding.Encoding, name string) String {
	return String{bytes: ByteString(append([]byte(nil), raw...)), encoding: enc, name: name}
}

// RawBytes returns the stored bytes verbatim, matching spec §4.2.
func (s String) RawBytes() []byte { return s.bytes.RawBytes() }

// EncodingName returns the IANA/WHATWG label this string is stored under.
func (s String) EncodingName() string { return s.name }

// AsStr performs a lossy decode into UTF-8 without BOM handling: invalid
// byte sequences become U+FFFD.
func (s String) AsStr() string {
	if s.encoding == nil {
		return string(s.bytes)
	}
	decoder := s.encoding.NewDecoder()
	out, _ := decoder.Bytes(s.bytes)
	return string(out)
}

// EqIgnoreTrailingSpaces compares two encoded strings' raw bytes, ignoring
// ASCII-space padding.
func (s String) EqIgnoreTrailingSpaces(other String) bool {
	return s.bytes.EqIgnoreTrailingSpaces(other.bytes)
}

// Resize widens or shortens the stored bytes, following ByteString.Resize's
// padding/truncation rule.
func (s String) Resize(n int) (String, error) {
	resized, err := s.bytes.Resize(n)
	if err != nil {
		return String{}, err
	}
	s.bytes = resized
	return s, nil
}

// CodepageToUnicode replaces the buffer with its UTF-8 recoding, clamped to
// MaxStringWidth bytes, and marks the string's encoding as UTF-8.
//
// Grounded bit-for-bit on encoded.rs's WithEncoding<ByteString>::codepage_to_unicode:
// widen by decoding, then force-resize (which, unlike Resize, may truncate
// non-space bytes) to the clamp. The result is the decoded bytes
// themselves, cut at MaxStringWidth; no space padding is added.
func (s String) CodepageToUnicode() String {
	if s.name == "utf-8" {
		return s
	}
	decoded := []byte(s.AsStr())
	newLen := len(decoded)
	if newLen > MaxStringWidth {
		newLen = MaxStringWidth
	}
	out := make([]byte, newLen)
	n := copy(out, decoded)
	for i := n; i < newLen; i++ {
		out[i] = ' '
	}
	s.bytes = ByteString(out)
	s.encoding = unicode.UTF8
	s.name = "utf-8"
	return s
}

// LookupEncoding resolves an IANA/WHATWG label (e.g. "windows-1252",
// "utf-8", "ibm037") to an *encoding.Encoding using
// golang.org/x/text/encoding/htmlindex, falling back to the
// golang.org/x/text/encoding/charmap table of legacy IBM/Windows code
// pages for labels htmlindex does not recognize.
func LookupEncoding(label string) (*encoding.Encoding, bool) {
	if enc, err := htmlindex.Get(label); err == nil {
		return &enc, true
	}
	for _, c := range charmap.All {
		if named, ok := c.(fmt.Stringer); ok && named.String() == label {
			enc := c
			return &enc, true
		}
	}
	return nil, false
}
