package format

import (
	"encoding/binary"
	"math"
)

// BinaryReader reads fixed size values from an in-memory buffer.
// The first out-of-bounds access sets a sticky MalformedInput error and
// every later read returns zero values.
type BinaryReader struct {
	data   []byte
	pos    int
	order  binary.ByteOrder
	format string
	err    error
}

func NewBinaryReader(data []byte, order binary.ByteOrder, format string) *BinaryReader {
	return &BinaryReader{data: data, order: order, format: format}
}

func (r *BinaryReader) Err() error     { return r.err }
func (r *BinaryReader) Pos() int       { return r.pos }
func (r *BinaryReader) Len() int       { return len(r.data) }
func (r *BinaryReader) Remaining() int { return len(r.data) - r.pos }

func (r *BinaryReader) Fail(err *Error) {
	if r.err == nil {
		r.err = err
	}
}

// Seek moves to an absolute offset.
func (r *BinaryReader) Seek(pos int) {
	if pos < 0 || pos > len(r.data) {
		r.Fail(Malformed(r.format, "offset %d out of range [0,%d]", pos, len(r.data)))
		return
	}
	r.pos = pos
}

func (r *BinaryReader) Skip(n int) {
	r.Bytes(n)
}

// Bytes returns the next n bytes without copying.
func (r *BinaryReader) Bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.Remaining() {
		r.Fail(Malformed(r.format, "truncated data: need %d bytes at offset %d, have %d", n, r.pos, r.Remaining()))
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// CheckCount validates that count elements of elemSize bytes can still be
// read. It guards allocations sized by length fields.
func (r *BinaryReader) CheckCount(count uint64, elemSize int, what string) bool {
	if r.err != nil {
		return false
	}
	if elemSize > 0 && count > uint64(r.Remaining())/uint64(elemSize) {
		r.Fail(Malformed(r.format, "%s count %d exceeds remaining %d bytes at offset %d", what, count, r.Remaining(), r.pos))
		return false
	}
	return true
}

func (r *BinaryReader) Uint8() uint8 {
	b := r.Bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *BinaryReader) Int8() int8 {
	return int8(r.Uint8())
}

func (r *BinaryReader) Uint16() uint16 {
	b := r.Bytes(2)
	if b == nil {
		return 0
	}
	return r.order.Uint16(b)
}

func (r *BinaryReader) Int16() int16 {
	return int16(r.Uint16())
}

func (r *BinaryReader) Uint32() uint32 {
	b := r.Bytes(4)
	if b == nil {
		return 0
	}
	return r.order.Uint32(b)
}

func (r *BinaryReader) Int32() int32 {
	return int32(r.Uint32())
}

func (r *BinaryReader) Uint64() uint64 {
	b := r.Bytes(8)
	if b == nil {
		return 0
	}
	return r.order.Uint64(b)
}

func (r *BinaryReader) Int64() int64 {
	return int64(r.Uint64())
}

func (r *BinaryReader) Float32() float32 {
	return math.Float32frombits(r.Uint32())
}

func (r *BinaryReader) Float64() float64 {
	return math.Float64frombits(r.Uint64())
}

// Float32s reads n values into dst.
func (r *BinaryReader) Float32s(dst []float32) {
	for i := range dst {
		dst[i] = r.Float32()
	}
}

// UintN reads an unsigned integer of size 1, 2 or 4 bytes.
func (r *BinaryReader) UintN(size int) uint32 {
	switch size {
	case 1:
		return uint32(r.Uint8())
	case 2:
		return uint32(r.Uint16())
	case 4:
		return r.Uint32()
	}
	r.Fail(Malformed(r.format, "invalid integer size %d", size))
	return 0
}

// IntN reads a signed integer of size 1, 2 or 4 bytes.
func (r *BinaryReader) IntN(size int) int32 {
	switch size {
	case 1:
		return int32(r.Int8())
	case 2:
		return int32(r.Int16())
	case 4:
		return r.Int32()
	}
	r.Fail(Malformed(r.format, "invalid integer size %d", size))
	return 0
}
