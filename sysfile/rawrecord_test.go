package sysfile_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemenkov/pspp-sub002/endian"
	"github.com/lemenkov/pspp-sub002/sysfile"
)

func TestRawRecordReaderReadsVariableRecord(t *testing.T) {
	e := endian.Little
	var buf bytes.Buffer
	buf.Write(e.EmitI32(int32(sysfile.RecordVariable)))
	buf.Write(e.EmitI32(0))  // numeric
	buf.Write(e.EmitI32(1))  // has label
	buf.Write(e.EmitI32(0))  // no missing values
	buf.Write(e.EmitI32(sysfile.FormatSpec{Type: 5, Width: 8, Decimals: 2}.Pack()))
	buf.Write(e.EmitI32(sysfile.FormatSpec{Type: 5, Width: 8, Decimals: 2}.Pack()))
	buf.WriteString("VAR1    ")
	buf.Write(e.EmitI32(5)) // label length
	buf.WriteString("hello")
	buf.Write(make([]byte, 3)) // pad to multiple of 4

	rr := sysfile.NewRawRecordReader(&buf, e)
	rec, err := rr.Next()
	require.NoError(t, err)
	v, ok := rec.(sysfile.VariableRecord)
	require.True(t, ok)
	assert.Equal(t, int32(0), v.Width)
	assert.True(t, v.HasLabel)
	assert.Equal(t, "hello", string(v.Label))
	assert.Equal(t, "VAR1    ", string(v.ShortName[:]))
}

func TestRawRecordReaderReadsValueLabelsAndTerminator(t *testing.T) {
	e := endian.Little
	var buf bytes.Buffer
	buf.Write(e.EmitI32(int32(sysfile.RecordValueLabels)))
	buf.Write(e.EmitI32(1)) // one label
	buf.Write(e.EmitF64(1.0))
	buf.WriteByte(3)
	buf.WriteString("yes")
	buf.Write(make([]byte, 4)) // pad (1+3=4, round to 8 => 4 more)
	buf.Write(e.EmitI32(int32(sysfile.RecordValueLabelVar)))
	buf.Write(e.EmitI32(1))
	buf.Write(e.EmitI32(1))

	buf.Write(e.EmitI32(int32(sysfile.RecordTerminator)))
	buf.Write(make([]byte, 4))

	rr := sysfile.NewRawRecordReader(&buf, e)
	rec, err := rr.Next()
	require.NoError(t, err)
	vl, ok := rec.(sysfile.ValueLabelRecord)
	require.True(t, ok)
	require.Len(t, vl.Labels, 1)
	assert.Equal(t, "yes", string(vl.Labels[0].Label))
	assert.Equal(t, []int32{1}, vl.VariableIndex)

	rec, err = rr.Next()
	require.NoError(t, err)
	_, ok = rec.(sysfile.TerminatorRecord)
	assert.True(t, ok)
}

func TestRawRecordReaderReadsExtension(t *testing.T) {
	e := endian.Little
	var buf bytes.Buffer
	buf.Write(e.EmitI32(int32(sysfile.RecordExtension)))
	buf.Write(e.EmitI32(20)) // subtype
	buf.Write(e.EmitI32(1))  // size
	buf.Write(e.EmitI32(12)) // count
	buf.WriteString("windows-1252")

	rr := sysfile.NewRawRecordReader(&buf, e)
	rec, err := rr.Next()
	require.NoError(t, err)
	ext, ok := rec.(sysfile.ExtensionRecord)
	require.True(t, ok)
	assert.Equal(t, int32(20), ext.Subtype)
	assert.Equal(t, "windows-1252", string(ext.Data))
}
