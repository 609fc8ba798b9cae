package sysfile

import (
	"bytes"
	"compress/zlib"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lemenkov/pspp-sub002/endian"
)

// WriterOptions configures how a Writer lays out a system file. It mirrors
// the functional-options shape the teacher's compiler.go uses for its own
// driver configuration (spec's AMBIENT STACK "Configuration" section).
type WriterOptions struct {
	Compression Compression
	Endian      endian.Endian
	Bias        float64
	Product     string
	FileLabel   string
}

// Option mutates a WriterOptions in place.
type Option func(*WriterOptions)

// WithCompression selects the case-stream encoding.
func WithCompression(c Compression) Option {
	return func(o *WriterOptions) { o.Compression = c }
}

// WithEndian selects the byte order used for the header and every fixed-
// width field that follows it.
func WithEndian(e endian.Endian) Option {
	return func(o *WriterOptions) { o.Endian = e }
}

// WithBias sets the bytecode-compression bias (spec §4.4; typically 100.0).
func WithBias(bias float64) Option {
	return func(o *WriterOptions) { o.Bias = bias }
}

// defaultWriterOptions matches what ReadHeader would report for a freshly
// created, bytecode-compressed, little-endian file with the conventional
// bias.
func defaultWriterOptions() WriterOptions {
	return WriterOptions{
		Compression: CompressionBytecode,
		Endian:      endian.Little,
		Bias:        100.0,
		Product:     "pspp-sub002",
	}
}

// Writer serializes a Header plus a stream of raw dictionary records and
// cases into a system file, the inverse of RawRecordReader/CaseReader.
//
// Grounded on spec §4.11: "Serialises a dictionary back out... must
// produce a file the reader re-ingests into an equivalent dictionary."
type Writer struct {
	w    io.Writer
	opts WriterOptions
}

// NewWriter returns a Writer applying opts over the defaults.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	o := defaultWriterOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Writer{w: w, opts: o}
}

// WriteHeader emits the 176-byte header record. nCases may be -1 for
// "unknown", matching spec §6.1's field layout exactly (including the
// layout-code=2 endianness marker and the 3-byte trailing pad).
func (wr *Writer) WriteHeader(caseSize, weightIndex, nCases int32) error {
	e := wr.opts.Endian
	buf := make([]byte, 0, HeaderLen)

	magic := magicPlain
	compressionCode := int32(0)
	switch wr.opts.Compression {
	case CompressionBytecode:
		compressionCode = 1
	case CompressionZlib:
		compressionCode = 2
		magic = magicZsav
	}

	buf = append(buf, magic...)
	buf = append(buf, padTo([]byte(wr.opts.Product), 60, ' ')...)
	buf = append(buf, e.EmitI32(2)...) // layout code
	buf = append(buf, e.EmitI32(caseSize)...)
	buf = append(buf, e.EmitI32(compressionCode)...)
	buf = append(buf, e.EmitI32(weightIndex)...)
	buf = append(buf, e.EmitI32(nCases)...)
	buf = append(buf, e.EmitF64(wr.opts.Bias)...)
	buf = append(buf, padTo([]byte("01 Jan 70"), 9, ' ')...)
	buf = append(buf, padTo([]byte("00:00:00"), 8, ' ')...)
	buf = append(buf, padTo([]byte(wr.opts.FileLabel), 64, ' ')...)
	buf = append(buf, 0, 0, 0)

	if len(buf) != HeaderLen {
		panic("sysfile: writer produced a header of the wrong length")
	}
	_, err := wr.w.Write(buf)
	return err
}

func padTo(b []byte, n int, pad byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = pad
	}
	copy(out, b)
	if len(b) > n {
		copy(out, b[:n])
	}
	return out
}

// WriteVariable emits one type-2 variable record. Width follows spec
// §4.4's convention: 0 numeric, 1..255 string, -1 continuation.
func (wr *Writer) WriteVariable(rec VariableRecord) error {
	e := wr.opts.Endian
	var buf bytes.Buffer
	buf.Write(e.EmitI32(int32(RecordVariable)))
	buf.Write(e.EmitI32(rec.Width))
	hasLabel := int32(0)
	if rec.HasLabel {
		hasLabel = 1
	}
	buf.Write(e.EmitI32(hasLabel))
	buf.Write(e.EmitI32(rec.MissingValues))
	buf.Write(e.EmitI32(rec.Print.Pack()))
	buf.Write(e.EmitI32(rec.Write.Pack()))
	buf.Write(rec.ShortName[:])
	if rec.HasLabel {
		buf.Write(e.EmitI32(int32(len(rec.Label))))
		padded := roundUp4(len(rec.Label))
		out := make([]byte, padded)
		copy(out, rec.Label)
		buf.Write(out)
	}
	for _, m := range rec.Missing {
		buf.Write(e.EmitF64(m))
	}
	_, err := wr.w.Write(buf.Bytes())
	return err
}

// WriteValueLabels emits a type-3 record immediately followed by its
// type-4 index record, matching RawRecordReader.readValueLabels's
// expectation that the two are paired.
func (wr *Writer) WriteValueLabels(rec ValueLabelRecord) error {
	e := wr.opts.Endian
	var buf bytes.Buffer
	buf.Write(e.EmitI32(int32(RecordValueLabels)))
	buf.Write(e.EmitI32(int32(len(rec.Labels))))
	for _, entry := range rec.Labels {
		buf.Write(entry.RawValue[:])
		buf.WriteByte(byte(len(entry.Label)))
		padded := roundUp8(1+len(entry.Label)) - 1
		out := make([]byte, padded)
		copy(out, entry.Label)
		buf.Write(out)
	}
	buf.Write(e.EmitI32(int32(RecordValueLabelVar)))
	buf.Write(e.EmitI32(int32(len(rec.VariableIndex))))
	for _, idx := range rec.VariableIndex {
		buf.Write(e.EmitI32(idx))
	}
	_, err := wr.w.Write(buf.Bytes())
	return err
}

// WriteDocuments emits a type-6 record: a count followed by 80-byte lines.
func (wr *Writer) WriteDocuments(lines [][80]byte) error {
	e := wr.opts.Endian
	var buf bytes.Buffer
	buf.Write(e.EmitI32(int32(RecordDocument)))
	buf.Write(e.EmitI32(int32(len(lines))))
	for _, l := range lines {
		buf.Write(l[:])
	}
	_, err := wr.w.Write(buf.Bytes())
	return err
}

// WriteExtension emits a type-7 record with the given subtype; size and
// count are derived as 1 and len(data) respectively unless the caller has
// already packed data into size*count-shaped records (as the raw reader
// expects; most extension records use a per-entry size of 1).
func (wr *Writer) WriteExtension(subtype int32, size int32, data []byte) error {
	if size <= 0 {
		size = 1
	}
	count := int32(len(data)) / size
	e := wr.opts.Endian
	var buf bytes.Buffer
	buf.Write(e.EmitI32(int32(RecordExtension)))
	buf.Write(e.EmitI32(subtype))
	buf.Write(e.EmitI32(size))
	buf.Write(e.EmitI32(count))
	buf.Write(data)
	_, err := wr.w.Write(buf.Bytes())
	return err
}

// WriteTerminator emits the type-999 dictionary terminator; case data
// should follow immediately.
func (wr *Writer) WriteTerminator() error {
	e := wr.opts.Endian
	_, err := wr.w.Write(append(e.EmitI32(int32(RecordTerminator)), e.EmitI32(0)...))
	return err
}

// CaseWriter streams Cases out in the Writer's chosen compression mode.
type CaseWriter interface {
	// WriteCase emits one case. Values' isString slots must agree with
	// the layout the writer was constructed for.
	WriteCase(c Case) error
	// Close flushes any buffered state (the zsav trailer, in particular)
	// and must be called exactly once after the last case.
	Close() error
}

// NewCaseWriter returns a CaseWriter matching wr's configured compression
// mode. isString marks each physical value slot as holding a string chunk.
func (wr *Writer) NewCaseWriter(isString []bool) CaseWriter {
	switch wr.opts.Compression {
	case CompressionBytecode:
		return &bytecodeWriter{w: wr.w, e: wr.opts.Endian, bias: wr.opts.Bias, isString: isString}
	case CompressionZlib:
		return newZlibCaseWriter(wr.w, wr.opts.Endian, wr.opts.Bias, isString)
	default:
		return &uncompressedWriter{w: wr.w, e: wr.opts.Endian, isString: isString}
	}
}

// ResumeCaseWriter reconstructs a zsav CaseWriter's block-descriptor state
// from a token previously returned by CheckpointToken, so a caller whose
// process was interrupted mid-write can append further blocks to w (which
// must already be positioned right after the last compressed block named
// in the token) without having to recompress the cases already flushed.
// Only the zsav encoding keeps per-block state worth checkpointing; other
// compression modes return ErrUnsupportedCompression.
func (wr *Writer) ResumeCaseWriter(isString []bool, token []byte) (CaseWriter, error) {
	if wr.opts.Compression != CompressionZlib {
		return nil, ErrUnsupportedCompression{Code: int32(wr.opts.Compression)}
	}
	blocks, err := decodeBlockDescriptors(token)
	if err != nil {
		return nil, err
	}
	zw := newZlibCaseWriter(wr.w, wr.opts.Endian, wr.opts.Bias, isString)
	zw.blocks = blocks
	if n := len(blocks); n > 0 {
		last := blocks[n-1]
		zw.uOffset = last.UncompressedOffset + int64(last.UncompressedSize)
		zw.cOffset = last.CompressedOffset + int64(last.CompressedSize)
	}
	return zw, nil
}

type uncompressedWriter struct {
	w        io.Writer
	e        endian.Endian
	isString []bool
}

func (uw *uncompressedWriter) WriteCase(c Case) error {
	for i, v := range c {
		if uw.isString[i] {
			if _, err := uw.w.Write(v.String[:]); err != nil {
				return err
			}
			continue
		}
		if _, err := uw.w.Write(uw.e.EmitF64Missing(v.Number, v.Present)); err != nil {
			return err
		}
	}
	return nil
}

func (uw *uncompressedWriter) Close() error { return nil }

// spacesChunk is eight ASCII spaces, the payload opcode 254 stands for.
var spacesChunk = [8]byte{' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}

// opcodeFor picks the bytecode opcode for one numeric value, per spec §8
// property 3: 255 iff sysmis, k in [1,251] iff value = k - bias exactly
// and representable, else 253 (raw payload).
func opcodeFor(v float64, present bool, bias float64) (op byte, useRaw bool) {
	if !present {
		return 255, false
	}
	shifted := v + bias
	if shifted != math.Trunc(shifted) {
		return 253, true
	}
	k := int64(shifted)
	if k < 1 || k > 251 {
		return 253, true
	}
	// Guard against bias/value combinations whose float addition isn't
	// exactly invertible (e.g. bias 100 asked to represent a value with
	// more precision than float64 "+100" can round-trip).
	if float64(k)-bias != v {
		return 253, true
	}
	return byte(k), false
}

// bytecodeWriter emits CompressionBytecode case data: 8-byte command
// blocks of eight opcodes, with opcode 253 followed by the raw 8-byte
// payload in the data region immediately after the command block that
// references it (matching bytecodeReader's interleaved read order).
type bytecodeWriter struct {
	w        io.Writer
	e        endian.Endian
	bias     float64
	isString []bool

	block   [8]byte
	payload []byte
	n       int
}

func (bw *bytecodeWriter) WriteCase(c Case) error {
	for _, v := range c {
		if err := bw.emit(v); err != nil {
			return err
		}
	}
	return nil
}

func (bw *bytecodeWriter) emit(v Value) error {
	var op byte
	var raw []byte
	if v.IsString {
		if v.String == spacesChunk {
			op = 254
		} else {
			op = 253
			raw = append([]byte(nil), v.String[:]...)
		}
	} else {
		var useRaw bool
		op, useRaw = opcodeFor(v.Number, v.Present, bw.bias)
		if useRaw {
			raw = bw.e.EmitF64Missing(v.Number, v.Present)
		}
	}
	bw.block[bw.n] = op
	bw.n++
	if raw != nil {
		bw.payload = append(bw.payload, raw...)
	}
	if bw.n == 8 {
		return bw.flush()
	}
	return nil
}

func (bw *bytecodeWriter) flush() error {
	if bw.n == 0 {
		return nil
	}
	for i := bw.n; i < 8; i++ {
		bw.block[i] = 0
	}
	if _, err := bw.w.Write(bw.block[:]); err != nil {
		return err
	}
	if len(bw.payload) > 0 {
		if _, err := bw.w.Write(bw.payload); err != nil {
			return err
		}
	}
	bw.n = 0
	bw.payload = bw.payload[:0]
	return nil
}

func (bw *bytecodeWriter) Close() error {
	// Pad the final partial block with opcode 252 (end-of-file marker)
	// so the reader's nextOpcode sees a clean terminator, then flush.
	for bw.n > 0 && bw.n < 8 {
		bw.block[bw.n] = 252
		bw.n++
	}
	return bw.flush()
}

// zlibCaseWriter buffers bytecode-encoded case bytes into fixed-size
// blocks, deflating each with compress/zlib and recording a ZTRAILER
// block descriptor, per spec §4.4's zsav framing.
type zlibCaseWriter struct {
	w         io.Writer
	e         endian.Endian
	inner     *bytecodeWriter
	innerBuf  *bytes.Buffer
	blockSize int32
	blocks    []blockDescriptor
	uOffset   int64
	cOffset   int64
	dataStart int64
}

const zlibBlockSize = 1 << 20 // 1 MiB of uncompressed bytecode per block

func newZlibCaseWriter(w io.Writer, e endian.Endian, bias float64, isString []bool) *zlibCaseWriter {
	zw := &zlibCaseWriter{w: w, e: e, blockSize: zlibBlockSize}
	zw.innerBuf = &bytes.Buffer{}
	zw.inner = &bytecodeWriter{w: zw.innerBuf, e: e, bias: bias, isString: isString}
	// No space is reserved for the 24-byte ZHEADER here and dataStart is
	// left at zero; the caller writes the ZHEADER with Writer.WriteZHeader.
	// Block offsets are counted from zero, relative to this writer's first
	// compressed byte.
	return zw
}

func (zw *zlibCaseWriter) WriteCase(c Case) error {
	if err := zw.inner.WriteCase(c); err != nil {
		return err
	}
	if zw.innerBuf.Len() >= int(zw.blockSize) {
		return zw.flushBlock()
	}
	return nil
}

func (zw *zlibCaseWriter) flushBlock() error {
	if err := zw.inner.flush(); err != nil {
		return err
	}
	plain := zw.innerBuf.Bytes()
	if len(plain) == 0 {
		return nil
	}
	var compressed bytes.Buffer
	zwr := zlib.NewWriter(&compressed)
	if _, err := zwr.Write(plain); err != nil {
		return err
	}
	if err := zwr.Close(); err != nil {
		return err
	}
	if _, err := zw.w.Write(compressed.Bytes()); err != nil {
		return err
	}
	zw.blocks = append(zw.blocks, blockDescriptor{
		UncompressedOffset: zw.uOffset,
		CompressedOffset:   zw.cOffset,
		UncompressedSize:   int32(len(plain)),
		CompressedSize:     int32(compressed.Len()),
	})
	zw.uOffset += int64(len(plain))
	zw.cOffset += int64(compressed.Len())
	zw.innerBuf.Reset()
	return nil
}

// Close flushes any partial block, then emits the ZTRAILER (spec §4.4's
// block-descriptor array) immediately following the compressed data.
// The ZHEADER itself must be written by the caller before the first case
// (via WriteZHeader), since it names the trailer's eventual offset, which
// is only known once writing completes on a non-seekable stream; callers
// that can seek should instead patch the ZHEADER after Close returns.
func (zw *zlibCaseWriter) Close() error {
	if err := zw.inner.Close(); err != nil {
		return err
	}
	if err := zw.flushBlock(); err != nil {
		return err
	}
	e := zw.e
	var trailer bytes.Buffer
	trailer.Write(e.EmitI32(4))                 // int size
	trailer.Write(e.EmitI32(8))                 // case size (unused by the reader beyond presence)
	trailer.Write(e.EmitI32(int32(len(zw.blocks))))
	for _, b := range zw.blocks {
		trailer.Write(e.EmitI64(b.UncompressedOffset))
		trailer.Write(e.EmitI64(b.CompressedOffset))
		trailer.Write(e.EmitI32(b.UncompressedSize))
		trailer.Write(e.EmitI32(b.CompressedSize))
	}
	_, err := zw.w.Write(trailer.Bytes())
	return err
}

// ZTrailerOffset reports, after Close, the stream-relative offset of the
// data written (= the ZTRAILER's position, for callers constructing the
// ZHEADER by seeking back).
func (zw *zlibCaseWriter) ZTrailerOffset() int64 { return zw.cOffset }

// CheckpointToken varint-packs the block descriptors written so far, for a
// caller that wants to persist progress on a long-running zsav write (a
// crashed writer can resume appending blocks past a previously reported
// offset pair without replaying the whole case stream). Unlike the
// ZTRAILER itself, whose field widths are fixed by spec §4.4, this token
// is an internal bookkeeping format local to this package, so it uses
// protobuf wire's varint encoding rather than duplicating the ZTRAILER's
// fixed-width layout.
func (zw *zlibCaseWriter) CheckpointToken() []byte {
	return encodeBlockDescriptors(zw.blocks)
}

func encodeBlockDescriptors(blocks []blockDescriptor) []byte {
	var buf []byte
	buf = protowire.AppendVarint(buf, uint64(len(blocks)))
	for _, b := range blocks {
		buf = protowire.AppendVarint(buf, zigzag(b.UncompressedOffset))
		buf = protowire.AppendVarint(buf, zigzag(b.CompressedOffset))
		buf = protowire.AppendVarint(buf, uint64(b.UncompressedSize))
		buf = protowire.AppendVarint(buf, uint64(b.CompressedSize))
	}
	return buf
}

// decodeBlockDescriptors inverts encodeBlockDescriptors, for a writer
// resuming from a CheckpointToken.
func decodeBlockDescriptors(buf []byte) ([]blockDescriptor, error) {
	count, consumed := protowire.ConsumeVarint(buf)
	if consumed < 0 {
		return nil, ErrBadZTrailer{Detail: "malformed checkpoint token"}
	}
	buf = buf[consumed:]
	blocks := make([]blockDescriptor, 0, count)
	for i := uint64(0); i < count; i++ {
		uo, l1 := protowire.ConsumeVarint(buf)
		if l1 < 0 {
			return nil, ErrBadZTrailer{Detail: "truncated checkpoint token"}
		}
		buf = buf[l1:]
		co, l2 := protowire.ConsumeVarint(buf)
		if l2 < 0 {
			return nil, ErrBadZTrailer{Detail: "truncated checkpoint token"}
		}
		buf = buf[l2:]
		us, l3 := protowire.ConsumeVarint(buf)
		if l3 < 0 {
			return nil, ErrBadZTrailer{Detail: "truncated checkpoint token"}
		}
		buf = buf[l3:]
		cs, l4 := protowire.ConsumeVarint(buf)
		if l4 < 0 {
			return nil, ErrBadZTrailer{Detail: "truncated checkpoint token"}
		}
		buf = buf[l4:]
		blocks = append(blocks, blockDescriptor{
			UncompressedOffset: unzigzag(uo),
			CompressedOffset:   unzigzag(co),
			UncompressedSize:   int32(us),
			CompressedSize:     int32(cs),
		})
	}
	return blocks, nil
}

func zigzag(v int64) uint64   { return protowire.EncodeZigZag(v) }
func unzigzag(v uint64) int64 { return protowire.DecodeZigZag(v) }

// WriteZHeader emits the 24-byte ZHEADER at the current writer position.
// dataStart is the offset (relative to the case-data region) at which
// this ZHEADER itself begins, and ztrailerOfs/ztrailerLen describe the
// trailer this stream will produce once Close runs — callers writing to
// a seekable destination call this twice: once with a placeholder before
// streaming cases, and again after Close to patch in the real trailer
// offset and length.
func (wr *Writer) WriteZHeader(w io.Writer, dataStart, ztrailerOfs, ztrailerLen int64) error {
	e := wr.opts.Endian
	var buf bytes.Buffer
	buf.Write(e.EmitI64(dataStart))
	buf.Write(e.EmitI64(ztrailerOfs))
	buf.Write(e.EmitI64(ztrailerLen))
	_, err := w.Write(buf.Bytes())
	return err
}
