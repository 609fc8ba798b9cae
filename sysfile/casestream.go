package sysfile

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/lemenkov/pspp-sub002/endian"
)

// Value is one cell of a case: either a present/missing numeric datum or a
// raw string chunk (always a multiple of 8 bytes, joined by the dictionary
// layer into the variable's declared width).
type Value struct {
	IsString bool
	Number   float64
	Present  bool // meaningless when IsString
	String   [8]byte
}

// Case is one row of data: n_values entries, one per physical value slot
// in the file's nominal case layout (string-continuation slots included).
type Case []Value

// CaseReader yields Cases in file order.
type CaseReader interface {
	// Next returns the next case, or io.EOF when the stream is
	// exhausted.
	Next() (Case, error)
}

// ErrTruncatedCase is returned when a case stream ends partway through a
// case.
type ErrTruncatedCase struct{ GotValues, WantValues int }

func (e ErrTruncatedCase) Error() string {
	return fmt.Sprintf("sysfile: truncated case: got %d of %d values", e.GotValues, e.WantValues)
}

// uncompressedReader reads cases directly: n_values*8 bytes per case.
type uncompressedReader struct {
	r        io.Reader
	e        endian.Endian
	nValues  int
	isString []bool
}

// NewUncompressedCaseReader returns a CaseReader for CompressionNone data.
// isString[i] reports whether physical slot i holds a string chunk (rather
// than a numeric value).
func NewUncompressedCaseReader(r io.Reader, e endian.Endian, isString []bool) CaseReader {
	return &uncompressedReader{r: r, e: e, nValues: len(isString), isString: isString}
}

func (cr *uncompressedReader) Next() (Case, error) {
	buf := make([]byte, 8)
	out := make(Case, cr.nValues)
	for i := 0; i < cr.nValues; i++ {
		n, err := io.ReadFull(cr.r, buf)
		if err != nil {
			if err == io.EOF && i == 0 {
				return nil, io.EOF
			}
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				return nil, ErrTruncatedCase{GotValues: i, WantValues: cr.nValues}
			}
			return nil, err
		}
		_ = n
		if cr.isString[i] {
			copy(out[i].String[:], buf)
			out[i].IsString = true
		} else {
			v, ok, err := cr.e.ParseF64Missing(buf)
			if err != nil {
				return nil, err
			}
			out[i].Number = v
			out[i].Present = ok
		}
	}
	return out, nil
}

// bytecodeReader decodes CompressionBytecode case data: 8-byte command
// blocks of eight opcodes, interspersed with raw 8-byte payloads for
// opcode 253.
type bytecodeReader struct {
	r        io.Reader
	e        endian.Endian
	bias     float64
	nValues  int
	isString []bool

	opcodes   [8]byte
	opcodeIdx int
	eof       bool
}

// NewBytecodeCaseReader returns a CaseReader for CompressionBytecode data.
func NewBytecodeCaseReader(r io.Reader, e endian.Endian, bias float64, isString []bool) CaseReader {
	return &bytecodeReader{r: r, e: e, bias: bias, nValues: len(isString), isString: isString, opcodeIdx: 8}
}

func (cr *bytecodeReader) nextOpcode() (byte, bool, error) {
	if cr.eof {
		return 0, false, nil
	}
	if cr.opcodeIdx >= 8 {
		buf := make([]byte, 8)
		n, err := io.ReadFull(cr.r, buf)
		if err != nil {
			if err == io.EOF && n == 0 {
				cr.eof = true
				return 0, false, nil
			}
			return 0, false, err
		}
		copy(cr.opcodes[:], buf)
		cr.opcodeIdx = 0
	}
	op := cr.opcodes[cr.opcodeIdx]
	cr.opcodeIdx++
	return op, true, nil
}

func (cr *bytecodeReader) Next() (Case, error) {
	out := make(Case, cr.nValues)
	filled := 0
	for filled < cr.nValues {
		op, ok, err := cr.nextOpcode()
		if err != nil {
			return nil, err
		}
		if !ok {
			if filled == 0 {
				return nil, io.EOF
			}
			return nil, ErrTruncatedCase{GotValues: filled, WantValues: cr.nValues}
		}
		switch {
		case op == 0:
			// Padding: produces no value, consumed between cases.
			continue
		case op == 252:
			if filled == 0 {
				return nil, io.EOF
			}
			return nil, ErrTruncatedCase{GotValues: filled, WantValues: cr.nValues}
		case op == 253:
			buf := make([]byte, 8)
			if _, err := io.ReadFull(cr.r, buf); err != nil {
				return nil, fmt.Errorf("sysfile: bytecode raw payload: %w", err)
			}
			if cr.isString[filled] {
				copy(out[filled].String[:], buf)
				out[filled].IsString = true
			} else {
				v, present, err := cr.e.ParseF64Missing(buf)
				if err != nil {
					return nil, err
				}
				out[filled].Number = v
				out[filled].Present = present
			}
			filled++
		case op == 254:
			if !cr.isString[filled] {
				return nil, fmt.Errorf("sysfile: bytecode opcode 254 (spaces) used for numeric slot %d", filled)
			}
			for i := range out[filled].String {
				out[filled].String[i] = ' '
			}
			out[filled].IsString = true
			filled++
		case op == 255:
			out[filled].Present = false
			filled++
		default: // 1..=251
			out[filled].Number = float64(int(op)) - cr.bias
			out[filled].Present = true
			filled++
		}
	}
	return out, nil
}

// blockDescriptor is one entry of a zsav ZTRAILER.
type blockDescriptor struct {
	UncompressedOffset int64
	CompressedOffset   int64
	UncompressedSize   int32
	CompressedSize     int32
}

// zlibReader decodes CompressionZlib ("zsav") case data: the ZHEADER names
// the trailer's location, the ZTRAILER lists contiguous compressed blocks,
// and each block's plaintext is interpreted as bytecode-compressed bytes.
type zlibReader struct {
	inner  CaseReader
	blocks []blockDescriptor
}

// ErrBadZHeader is returned when a ZHEADER's fields are inconsistent with
// the reader's current position.
type ErrBadZHeader struct{ Detail string }

func (e ErrBadZHeader) Error() string { return "sysfile: bad zsav header: " + e.Detail }

// ErrBadZTrailer is returned when a ZTRAILER's block descriptors fail a
// contiguity or bounds check.
type ErrBadZTrailer struct{ Detail string }

func (e ErrBadZTrailer) Error() string { return "sysfile: bad zsav trailer: " + e.Detail }

// ErrCompressionExpandedTooMuch guards against a maliciously crafted
// zlib block whose declared uncompressed size is implausible relative to
// its compressed size.
type ErrCompressionExpandedTooMuch struct{ Ratio float64 }

func (e ErrCompressionExpandedTooMuch) Error() string {
	return fmt.Sprintf("sysfile: zsav block expanded by a factor of %.1f, exceeding the safety limit", e.Ratio)
}

const maxZlibExpansionRatio = 20.0

// NewZlibCaseReader reads a zsav case stream whose ZHEADER begins at
// dataStart. r must support seeking, since the ZTRAILER lives past the
// end of the compressed data and must be located, read, and then rewound
// from.
//
// dataStart is an absolute offset from the start of r, and the ZHEADER's
// first field must equal it; bias must match the file header's bias.
func NewZlibCaseReader(r io.ReadSeeker, e endian.Endian, bias float64, isString []bool, dataStart int64) (CaseReader, error) {
	if _, err := r.Seek(dataStart, io.SeekStart); err != nil {
		return nil, err
	}
	header := make([]byte, 24)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	zheaderOfs, _ := e.ParseI64(header[0:8])
	ztrailerOfs, _ := e.ParseI64(header[8:16])
	ztrailerLen, _ := e.ParseI64(header[16:24])

	if zheaderOfs != dataStart {
		return nil, ErrBadZHeader{Detail: fmt.Sprintf("offset %d does not match expected %d", zheaderOfs, dataStart)}
	}

	if _, err := r.Seek(ztrailerOfs, io.SeekStart); err != nil {
		return nil, err
	}
	trailerFixed := make([]byte, 24)
	if _, err := io.ReadFull(r, trailerFixed); err != nil {
		return nil, err
	}
	intSize, _ := e.ParseI32(trailerFixed[0:4])
	caseSize, _ := e.ParseI32(trailerFixed[4:8])
	nBlocks, _ := e.ParseI32(trailerFixed[8:12])
	_ = intSize
	_ = caseSize

	if (ztrailerLen-24)%24 != 0 || int64(nBlocks)*24 != ztrailerLen-24 {
		return nil, ErrBadZTrailer{Detail: "trailer length disagrees with block count"}
	}

	blocks := make([]blockDescriptor, nBlocks)
	buf := make([]byte, 24)
	for i := int32(0); i < nBlocks; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		uOfs, _ := e.ParseI64(buf[0:8])
		cOfs, _ := e.ParseI64(buf[8:16])
		uSize, _ := e.ParseI32(buf[16:20])
		cSize, _ := e.ParseI32(buf[20:24])
		blocks[i] = blockDescriptor{
			UncompressedOffset: uOfs,
			CompressedOffset:   cOfs,
			UncompressedSize:   uSize,
			CompressedSize:     cSize,
		}
	}

	if err := validateBlocks(blocks, zheaderOfs, ztrailerOfs); err != nil {
		return nil, err
	}

	var plaintext bytes.Buffer
	for _, blk := range blocks {
		if _, err := r.Seek(blk.CompressedOffset, io.SeekStart); err != nil {
			return nil, err
		}
		compressed := make([]byte, blk.CompressedSize)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return nil, err
		}
		zr, err := zlib.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("sysfile: zsav block: %w", err)
		}
		limited := io.LimitReader(zr, int64(blk.UncompressedSize)+1)
		n, err := io.Copy(&plaintext, limited)
		if err != nil {
			zr.Close()
			return nil, fmt.Errorf("sysfile: zsav block: %w", err)
		}
		zr.Close()
		if n > int64(blk.UncompressedSize) {
			ratio := float64(n) / float64(blk.CompressedSize+1)
			return nil, ErrCompressionExpandedTooMuch{Ratio: ratio}
		}
		if blk.CompressedSize > 0 && float64(blk.UncompressedSize)/float64(blk.CompressedSize) > maxZlibExpansionRatio {
			return nil, ErrCompressionExpandedTooMuch{Ratio: float64(blk.UncompressedSize) / float64(blk.CompressedSize)}
		}
	}

	inner := NewBytecodeCaseReader(bytes.NewReader(plaintext.Bytes()), e, bias, isString)
	return &zlibReader{inner: inner, blocks: blocks}, nil
}

func validateBlocks(blocks []blockDescriptor, zheaderOfs, ztrailerOfs int64) error {
	expectedUOfs := zheaderOfs
	expectedCOfs := blocks[0].CompressedOffset
	if len(blocks) > 0 {
		expectedCOfs = blocks[0].CompressedOffset
	}
	for i, blk := range blocks {
		if blk.UncompressedOffset != expectedUOfs {
			return ErrBadZTrailer{Detail: fmt.Sprintf("block %d uncompressed offset %d, expected %d", i, blk.UncompressedOffset, expectedUOfs)}
		}
		if blk.CompressedOffset != expectedCOfs {
			return ErrBadZTrailer{Detail: fmt.Sprintf("block %d compressed offset %d, expected %d", i, blk.CompressedOffset, expectedCOfs)}
		}
		expectedUOfs += int64(blk.UncompressedSize)
		expectedCOfs += int64(blk.CompressedSize)
	}
	if expectedCOfs != ztrailerOfs {
		return ErrBadZTrailer{Detail: fmt.Sprintf("sum of compressed block sizes ends at %d, expected ztrailer at %d", expectedCOfs, ztrailerOfs)}
	}
	return nil
}

func (z *zlibReader) Next() (Case, error) { return z.inner.Next() }
