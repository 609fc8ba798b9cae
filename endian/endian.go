// Package endian parses and emits fixed-width integers and IEEE-754 floats
// in either byte order, and recognizes the SPSS system-missing sentinel.
package endian

import (
	"encoding/binary"
	"math"
)

// Endian selects a byte order for encoding and decoding fixed-width values.
type Endian int

const (
	// Big is most-significant-byte-first order.
	Big Endian = iota
	// Little is least-significant-byte-first order.
	Little
)

// ByteOrder returns the stdlib binary.ByteOrder implementing e.
func (e Endian) ByteOrder() binary.ByteOrder {
	if e == Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Sysmis is the bit pattern SPSS uses to mean "no value": the most negative
// finite double, i.e. -math.MaxFloat64.
const Sysmis = -math.MaxFloat64

// ErrShortInput is returned when fewer bytes were supplied than a value's
// fixed width requires.
type ErrShortInput struct {
	Want, Got int
}

func (e ErrShortInput) Error() string {
	return "endian: short input"
}

func need(buf []byte, n int) error {
	if len(buf) < n {
		return ErrShortInput{Want: n, Got: len(buf)}
	}
	return nil
}

// ParseU8 parses a single byte.
func ParseU8(buf []byte) (uint8, error) {
	if err := need(buf, 1); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ParseI8 parses a single signed byte.
func ParseI8(buf []byte) (int8, error) {
	v, err := ParseU8(buf)
	return int8(v), err
}

// ParseU16 parses a 16-bit unsigned integer in byte order e.
func (e Endian) ParseU16(buf []byte) (uint16, error) {
	if err := need(buf, 2); err != nil {
		return 0, err
	}
	return e.ByteOrder().Uint16(buf), nil
}

// ParseI16 parses a 16-bit signed integer in byte order e.
func (e Endian) ParseI16(buf []byte) (int16, error) {
	v, err := e.ParseU16(buf)
	return int16(v), err
}

// ParseU32 parses a 32-bit unsigned integer in byte order e.
func (e Endian) ParseU32(buf []byte) (uint32, error) {
	if err := need(buf, 4); err != nil {
		return 0, err
	}
	return e.ByteOrder().Uint32(buf), nil
}

// ParseI32 parses a 32-bit signed integer in byte order e.
func (e Endian) ParseI32(buf []byte) (int32, error) {
	v, err := e.ParseU32(buf)
	return int32(v), err
}

// ParseU64 parses a 64-bit unsigned integer in byte order e.
func (e Endian) ParseU64(buf []byte) (uint64, error) {
	if err := need(buf, 8); err != nil {
		return 0, err
	}
	return e.ByteOrder().Uint64(buf), nil
}

// ParseI64 parses a 64-bit signed integer in byte order e.
func (e Endian) ParseI64(buf []byte) (int64, error) {
	v, err := e.ParseU64(buf)
	return int64(v), err
}

// ParseF32 parses a 32-bit IEEE-754 float in byte order e.
func (e Endian) ParseF32(buf []byte) (float32, error) {
	v, err := e.ParseU32(buf)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ParseF64 parses a 64-bit IEEE-754 float in byte order e.
func (e Endian) ParseF64(buf []byte) (float64, error) {
	v, err := e.ParseU64(buf)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ParseF64Missing parses a 64-bit IEEE-754 float in byte order e, returning
// ok=false if the bit pattern equals the SYSMIS sentinel.
func (e Endian) ParseF64Missing(buf []byte) (value float64, ok bool, err error) {
	v, err := e.ParseF64(buf)
	if err != nil {
		return 0, false, err
	}
	if v == Sysmis {
		return 0, false, nil
	}
	return v, true, nil
}

// EmitU8 emits a single byte.
func EmitU8(v uint8) []byte { return []byte{v} }

// EmitI8 emits a single signed byte.
func EmitI8(v int8) []byte { return []byte{byte(v)} }

// EmitU16 emits a 16-bit unsigned integer in byte order e.
func (e Endian) EmitU16(v uint16) []byte {
	buf := make([]byte, 2)
	e.ByteOrder().PutUint16(buf, v)
	return buf
}

// EmitI16 emits a 16-bit signed integer in byte order e.
func (e Endian) EmitI16(v int16) []byte { return e.EmitU16(uint16(v)) }

// EmitU32 emits a 32-bit unsigned integer in byte order e.
func (e Endian) EmitU32(v uint32) []byte {
	buf := make([]byte, 4)
	e.ByteOrder().PutUint32(buf, v)
	return buf
}

// EmitI32 emits a 32-bit signed integer in byte order e.
func (e Endian) EmitI32(v int32) []byte { return e.EmitU32(uint32(v)) }

// EmitU64 emits a 64-bit unsigned integer in byte order e.
func (e Endian) EmitU64(v uint64) []byte {
	buf := make([]byte, 8)
	e.ByteOrder().PutUint64(buf, v)
	return buf
}

// EmitI64 emits a 64-bit signed integer in byte order e.
func (e Endian) EmitI64(v int64) []byte { return e.EmitU64(uint64(v)) }

// EmitF32 emits a 32-bit IEEE-754 float in byte order e.
func (e Endian) EmitF32(v float32) []byte { return e.EmitU32(math.Float32bits(v)) }

// EmitF64 emits a 64-bit IEEE-754 float in byte order e.
func (e Endian) EmitF64(v float64) []byte { return e.EmitU64(math.Float64bits(v)) }

// EmitF64Missing emits SYSMIS if ok is false, else the value v.
func (e Endian) EmitF64Missing(v float64, ok bool) []byte {
	if !ok {
		return e.EmitF64(Sysmis)
	}
	return e.EmitF64(v)
}

// String returns "big" or "little".
func (e Endian) String() string {
	if e == Big {
		return "big"
	}
	return "little"
}
