// Package codepage resolves the numeric character-code field of a system
// file's integer-info extension record to an IANA/WHATWG encoding label,
// and implements the rest of the encoding-resolution fallback chain spec'd
// for dictionary decoding.
//
// Grounded on original_source/rust/pspp/src/sys/encoding.rs
// (codepage_from_encoding, get_encoding, and their Error variants).
package codepage

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed table.yaml
var tableYAML []byte

var (
	numberToName map[int]string
	nameToNumber map[string]int
)

func init() {
	var raw map[int]string
	if err := yaml.Unmarshal(tableYAML, &raw); err != nil {
		panic(fmt.Sprintf("codepage: invalid embedded table: %v", err))
	}
	numberToName = raw
	nameToNumber = make(map[string]int, len(raw))
	for n, name := range raw {
		nameToNumber[name] = n
	}
}

// NameForCodepage looks up the encoding label for a numeric codepage, as
// recorded in a system file's integer-info character-code field.
func NameForCodepage(codepage int) (string, bool) {
	name, ok := numberToName[codepage]
	return name, ok
}

// CodepageForName looks up the numeric codepage for an encoding label,
// case-insensitively.
func CodepageForName(name string) (int, bool) {
	n, ok := nameToNumber[lowerASCII(name)]
	return n, ok
}

func lowerASCII(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c + ('a' - 'A')
		}
	}
	return string(out)
}

// Error is returned by Resolve when no usable encoding can be determined.
type Error struct {
	Kind     ErrorKind
	Codepage int
	Encoding string
}

// ErrorKind distinguishes Resolve's failure modes.
type ErrorKind int

const (
	// NoEncoding means the file does not indicate its own encoding.
	NoEncoding ErrorKind = iota
	// UnknownCodepage means the character-code field names a codepage
	// number this table does not recognize.
	UnknownCodepage
	// UnknownEncoding means an explicit encoding label was given (or
	// resolved from a codepage) that the text-encoding registry does
	// not recognize.
	UnknownEncoding
	// Ebcdic means the file claims character-code 1 (EBCDIC), which
	// this module refuses to support.
	Ebcdic
)

func (e Error) Error() string {
	switch e.Kind {
	case NoEncoding:
		return "system file does not indicate its own character encoding"
	case UnknownCodepage:
		return fmt.Sprintf("system file encodes text with unknown code page %d", e.Codepage)
	case UnknownEncoding:
		return fmt.Sprintf("system file encodes text with unknown encoding %q", e.Encoding)
	case Ebcdic:
		return "system file is encoded in EBCDIC, which is not supported"
	default:
		return "codepage: unknown error"
	}
}

// Resolve implements the encoding-resolution fallback chain: an explicit
// label wins; failing that, a character code of 1 is rejected as EBCDIC, 2
// and 3 ("7-bit"/"8-bit ASCII") are treated as unknown (the caller should
// fall back to a locale default), 4 means Shift-JIS ("MS_KANJI"), and any
// other value is looked up in the codepage table.
func Resolve(explicitLabel string, hasExplicitLabel bool, characterCode int, hasCharacterCode bool) (string, error) {
	if hasExplicitLabel {
		return explicitLabel, nil
	}
	if !hasCharacterCode {
		return "", Error{Kind: NoEncoding}
	}
	switch characterCode {
	case 1:
		return "", Error{Kind: Ebcdic}
	case 2, 3:
		return "", Error{Kind: NoEncoding}
	case 4:
		return "shift_jis", nil
	default:
		name, ok := NameForCodepage(characterCode)
		if !ok {
			return "", Error{Kind: UnknownCodepage, Codepage: characterCode}
		}
		return name, nil
	}
}
