// Package sysfile reads and writes the raw binary layer of an SPSS system
// file: the 176-byte header, the stream of typed dictionary records that
// follows it, and the case data's three encodings (uncompressed,
// bytecode-compressed, and zlib-framed).
//
// Grounded on spec sections 4.4, 6.1, and 7 (original_source's own raw
// reader lives in sys/raw.rs and sys/cooked.rs, which the retrieval pack
// does not carry — see DESIGN.md), using the teacher's (bufbuild-
// protocompile) discipline of typed sentinel errors and explicit,
// allocation-light decode functions.
package sysfile

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/lemenkov/pspp-sub002/endian"
)

// Compression identifies how a system file's case data is encoded.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionBytecode
	CompressionZlib
)

// HeaderLen is the fixed size, in bytes, of a system file's header record.
const HeaderLen = 176

const (
	magicPlain = "$FL2"
	magicZsav  = "$FL3"
)

// Header is the decoded 176-byte header record that opens every system
// file.
type Header struct {
	Magic       string
	Endian      endian.Endian
	Product     string
	LayoutCode  int32
	CaseSize    int32
	Compression Compression
	WeightIndex int32
	NCases      int32 // -1 means unknown
	Bias        float64
	CreationDate string
	CreationTime string
	FileLabel    string
}

// NCasesKnown reports whether h.NCases holds a real count.
func (h Header) NCasesKnown() bool { return h.NCases >= 0 }

// Error taxonomy for container-level failures (spec §7). These are always
// fatal: the raw reader cannot make progress past them.
var (
	ErrNotASystemFile = fmt.Errorf("sysfile: not a system file (bad magic)")
	ErrEbcdic          = fmt.Errorf("sysfile: system file is EBCDIC-encoded, which is not supported")
)

// ErrTruncatedHeader is returned when fewer than HeaderLen bytes were
// available.
type ErrTruncatedHeader struct{ Got int }

func (e ErrTruncatedHeader) Error() string {
	return fmt.Sprintf("sysfile: truncated header: got %d of %d bytes", e.Got, HeaderLen)
}

// ErrUnsupportedCompression is returned by ReadHeader for a compression
// code other than 0, 1, or 2, and by Writer.ResumeCaseWriter (carrying
// the writer's own Compression value) for a non-zsav writer.
type ErrUnsupportedCompression struct{ Code int32 }

func (e ErrUnsupportedCompression) Error() string {
	return fmt.Sprintf("sysfile: unsupported compression code %d", e.Code)
}

// ebcdicMagic is "$FL2" as it would appear if the file's bytes were
// EBCDIC-encoded rather than ASCII.
var ebcdicMagic = []byte{0x5b, 0xc6, 0xd3, 0xf2}

// ReadHeader reads and validates a system file's header record.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderLen)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return Header{}, ErrTruncatedHeader{Got: n}
		}
		return Header{}, err
	}

	magic := string(buf[0:4])
	if bytes.Equal(buf[0:4], ebcdicMagic) {
		return Header{}, ErrEbcdic
	}
	if magic != magicPlain && magic != magicZsav {
		return Header{}, ErrNotASystemFile
	}

	layoutField := buf[64:68]
	var e endian.Endian
	if v, _ := endian.Big.ParseI32(layoutField); v == 2 {
		e = endian.Big
	} else if v, _ := endian.Little.ParseI32(layoutField); v == 2 {
		e = endian.Little
	} else {
		return Header{}, fmt.Errorf("sysfile: invalid layout code")
	}

	layoutCode, _ := e.ParseI32(buf[64:68])
	caseSize, _ := e.ParseI32(buf[68:72])
	compressionCode, _ := e.ParseI32(buf[72:76])
	weightIndex, _ := e.ParseI32(buf[76:80])
	nCases, _ := e.ParseI32(buf[80:84])
	bias, _ := e.ParseF64(buf[84:92])

	var compression Compression
	switch compressionCode {
	case 0:
		compression = CompressionNone
	case 1:
		compression = CompressionBytecode
	case 2:
		compression = CompressionZlib
	default:
		return Header{}, ErrUnsupportedCompression{Code: compressionCode}
	}

	return Header{
		Magic:        magic,
		Endian:       e,
		Product:      trimPadding(buf[4:64]),
		LayoutCode:   layoutCode,
		CaseSize:     caseSize,
		Compression:  compression,
		WeightIndex:  weightIndex,
		NCases:       nCases,
		Bias:         bias,
		CreationDate: trimPadding(buf[92:101]),
		CreationTime: trimPadding(buf[101:109]),
		FileLabel:    trimPadding(buf[109:173]),
	}, nil
}

func trimPadding(b []byte) string {
	return string(bytes.TrimRight(b, " \x00"))
}

// CreationTimestamp attempts to parse the header's creation date/time
// fields ("dd mmm yy" and "HH:MM:SS") as a time.Time. It returns false if
// either field does not match the expected layout.
func (h Header) CreationTimestamp() (time.Time, bool) {
	t, err := time.Parse("2 Jan 06 15:04:05", h.CreationDate+" "+h.CreationTime)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
