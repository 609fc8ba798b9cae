package sysfile

import (
	"fmt"
	"io"

	"github.com/lemenkov/pspp-sub002/endian"
)

// RecordType is the i32 tag that opens every dictionary record.
type RecordType int32

const (
	RecordVariable      RecordType = 2
	RecordValueLabels   RecordType = 3
	RecordValueLabelVar RecordType = 4
	RecordDocument      RecordType = 6
	RecordExtension     RecordType = 7
	RecordTerminator    RecordType = 999
)

// RawRecord is any decoded dictionary record.
type RawRecord interface {
	recordType() RecordType
}

// FormatSpec is a packed print/write format word: a format type code, a
// field width, and a count of decimal digits.
type FormatSpec struct {
	Type     uint8
	Width    uint8
	Decimals uint8
}

// UnpackFormat decodes a format word as stored in a variable record:
// byte 2 (counting from the least significant byte, 0) is the type code,
// byte 1 the width, byte 0 the decimal count.
func UnpackFormat(word int32) FormatSpec {
	u := uint32(word)
	return FormatSpec{
		Type:     uint8(u >> 16),
		Width:    uint8(u >> 8),
		Decimals: uint8(u),
	}
}

// Pack re-encodes f as a format word.
func (f FormatSpec) Pack() int32 {
	return int32(uint32(f.Type)<<16 | uint32(f.Width)<<8 | uint32(f.Decimals))
}

// VariableRecord is a raw type-2 record. Width interpretation: 0 = numeric,
// 1..=255 = string of that many bytes, -1 = continuation of the preceding
// string variable's physical storage.
type VariableRecord struct {
	Width         int32
	HasLabel      bool
	MissingValues int32 // 0..3 discrete count, or -2/-3 range forms
	Print         FormatSpec
	Write         FormatSpec
	ShortName     [8]byte
	Label         []byte // raw bytes, present iff HasLabel
	Missing       []float64
}

func (VariableRecord) recordType() RecordType { return RecordVariable }

// ValueLabelEntry pairs a raw 8-byte value with its display label.
type ValueLabelEntry struct {
	RawValue [8]byte
	Label    []byte
}

// ValueLabelRecord is a raw type-3 record paired with the type-4 record
// naming the (1-based) variable indices it applies to.
type ValueLabelRecord struct {
	Labels        []ValueLabelEntry
	VariableIndex []int32
}

func (ValueLabelRecord) recordType() RecordType { return RecordValueLabels }

// DocumentRecord is a raw type-6 record: n 80-byte lines.
type DocumentRecord struct {
	Lines [][80]byte
}

func (DocumentRecord) recordType() RecordType { return RecordDocument }

// ExtensionRecord is a raw type-7 record.
type ExtensionRecord struct {
	Subtype int32
	Size    int32
	Count   int32
	Data    []byte
}

func (ExtensionRecord) recordType() RecordType { return RecordExtension }

// TerminatorRecord marks the end of the dictionary; case data follows
// immediately after it in the stream.
type TerminatorRecord struct{}

func (TerminatorRecord) recordType() RecordType { return RecordTerminator }

// ErrShortRecord is returned when a record's declared length runs past
// available input.
type ErrShortRecord struct {
	Record   RecordType
	Expected int
	Actual   int
}

func (e ErrShortRecord) Error() string {
	return fmt.Sprintf("sysfile: short %v record: expected %d bytes, got %d", e.Record, e.Expected, e.Actual)
}

// ErrBadRecordType is returned when a record tag is not one of the known
// values.
type ErrBadRecordType struct{ Tag int32 }

func (e ErrBadRecordType) Error() string {
	return fmt.Sprintf("sysfile: unrecognized record type tag %d", e.Tag)
}

// RawRecordReader reads the sequence of typed dictionary records that
// follows a system file's header.
type RawRecordReader struct {
	r io.Reader
	e endian.Endian
}

// NewRawRecordReader returns a reader over r, decoding integers in byte
// order e (as determined by the file's header).
func NewRawRecordReader(r io.Reader, e endian.Endian) *RawRecordReader {
	return &RawRecordReader{r: r, e: e}
}

func (rr *RawRecordReader) readFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	if got, err := io.ReadFull(rr.r, buf); err != nil {
		return buf[:got], err
	}
	return buf, nil
}

func (rr *RawRecordReader) readI32() (int32, error) {
	buf, err := rr.readFull(4)
	if err != nil {
		return 0, err
	}
	return rr.e.ParseI32(buf)
}

func (rr *RawRecordReader) readF64() (float64, error) {
	buf, err := rr.readFull(8)
	if err != nil {
		return 0, err
	}
	return rr.e.ParseF64(buf)
}

// Next reads and returns the next raw record. Callers should stop calling
// Next once a TerminatorRecord is returned: case data begins at the
// current stream position.
func (rr *RawRecordReader) Next() (RawRecord, error) {
	tag, err := rr.readI32()
	if err != nil {
		return nil, err
	}
	switch RecordType(tag) {
	case RecordVariable:
		return rr.readVariable()
	case RecordValueLabels:
		return rr.readValueLabels()
	case RecordDocument:
		return rr.readDocument()
	case RecordExtension:
		return rr.readExtension()
	case RecordTerminator:
		if _, err := rr.readFull(4); err != nil {
			return nil, err
		}
		return TerminatorRecord{}, nil
	default:
		return nil, ErrBadRecordType{Tag: tag}
	}
}

func (rr *RawRecordReader) readVariable() (RawRecord, error) {
	width, err := rr.readI32()
	if err != nil {
		return nil, err
	}
	hasLabelWord, err := rr.readI32()
	if err != nil {
		return nil, err
	}
	nMissing, err := rr.readI32()
	if err != nil {
		return nil, err
	}
	printWord, err := rr.readI32()
	if err != nil {
		return nil, err
	}
	writeWord, err := rr.readI32()
	if err != nil {
		return nil, err
	}
	nameBuf, err := rr.readFull(8)
	if err != nil {
		return nil, err
	}

	rec := VariableRecord{
		Width:         width,
		HasLabel:      hasLabelWord != 0,
		MissingValues: nMissing,
		Print:         UnpackFormat(printWord),
		Write:         UnpackFormat(writeWord),
	}
	copy(rec.ShortName[:], nameBuf)

	if rec.HasLabel {
		labelLen, err := rr.readI32()
		if err != nil {
			return nil, err
		}
		padded := roundUp4(int(labelLen))
		buf, err := rr.readFull(padded)
		if err != nil {
			return nil, ErrShortRecord{Record: RecordVariable, Expected: padded, Actual: len(buf)}
		}
		rec.Label = buf[:labelLen]
	}

	nDoubles := int(nMissing)
	if nDoubles < 0 {
		nDoubles = -nDoubles
	}
	if nDoubles > 3 {
		nDoubles = 3
	}
	for i := 0; i < nDoubles; i++ {
		v, err := rr.readF64()
		if err != nil {
			return nil, err
		}
		rec.Missing = append(rec.Missing, v)
	}
	return rec, nil
}

func (rr *RawRecordReader) readValueLabels() (RawRecord, error) {
	n, err := rr.readI32()
	if err != nil {
		return nil, err
	}
	rec := ValueLabelRecord{}
	for i := int32(0); i < n; i++ {
		var entry ValueLabelEntry
		raw, err := rr.readFull(8)
		if err != nil {
			return nil, err
		}
		copy(entry.RawValue[:], raw)

		lenBuf, err := rr.readFull(1)
		if err != nil {
			return nil, err
		}
		labelLen := int(lenBuf[0])
		// The length byte counts toward the 8-byte alignment of the
		// label's storage.
		padded := roundUp8(1+labelLen) - 1
		buf, err := rr.readFull(padded)
		if err != nil {
			return nil, ErrShortRecord{Record: RecordValueLabels, Expected: padded, Actual: len(buf)}
		}
		entry.Label = buf[:labelLen]
		rec.Labels = append(rec.Labels, entry)
	}

	tag, err := rr.readI32()
	if err != nil {
		return nil, err
	}
	if RecordType(tag) != RecordValueLabelVar {
		return nil, fmt.Errorf("sysfile: value-label record not followed by index record (got tag %d)", tag)
	}
	nVars, err := rr.readI32()
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < nVars; i++ {
		idx, err := rr.readI32()
		if err != nil {
			return nil, err
		}
		rec.VariableIndex = append(rec.VariableIndex, idx)
	}
	return rec, nil
}

func (rr *RawRecordReader) readDocument() (RawRecord, error) {
	n, err := rr.readI32()
	if err != nil {
		return nil, err
	}
	rec := DocumentRecord{}
	for i := int32(0); i < n; i++ {
		buf, err := rr.readFull(80)
		if err != nil {
			return nil, ErrShortRecord{Record: RecordDocument, Expected: 80, Actual: len(buf)}
		}
		var line [80]byte
		copy(line[:], buf)
		rec.Lines = append(rec.Lines, line)
	}
	return rec, nil
}

func (rr *RawRecordReader) readExtension() (RawRecord, error) {
	subtype, err := rr.readI32()
	if err != nil {
		return nil, err
	}
	size, err := rr.readI32()
	if err != nil {
		return nil, err
	}
	count, err := rr.readI32()
	if err != nil {
		return nil, err
	}
	total := int(size) * int(count)
	data, err := rr.readFull(total)
	if err != nil {
		return nil, ErrShortRecord{Record: RecordExtension, Expected: total, Actual: len(data)}
	}
	return ExtensionRecord{Subtype: subtype, Size: size, Count: count, Data: data}, nil
}

func roundUp4(n int) int { return (n + 3) &^ 3 }
func roundUp8(n int) int { return (n + 7) &^ 7 }
