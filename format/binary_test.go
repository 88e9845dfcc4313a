package format

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBinaryReader(t *testing.T) {
	data := []byte{1, 0, 2, 0, 0, 0, 0, 0, 0x80, 0x3f}
	r := NewBinaryReader(data, binary.LittleEndian, "test")
	assert.Equal(t, uint16(1), r.Uint16())
	assert.Equal(t, uint32(2), r.Uint32())
	assert.Equal(t, float32(1), r.Float32())
	assert.NoError(t, r.Err())
	assert.Equal(t, 0, r.Remaining())

	// sticky error
	assert.Equal(t, uint32(0), r.Uint32())
	assert.ErrorIs(t, r.Err(), ErrMalformedInput)
	r.Seek(0)
	assert.Equal(t, uint8(0), r.Uint8())
}

func TestBinaryReaderBigEndian(t *testing.T) {
	r := NewBinaryReader([]byte{0, 1, 0xff, 0xfe}, binary.BigEndian, "test")
	assert.Equal(t, int32(1), r.IntN(2))
	assert.Equal(t, int32(-2), r.IntN(2))
}

func TestCheckCount(t *testing.T) {
	r := NewBinaryReader(make([]byte, 12), binary.LittleEndian, "test")
	assert.True(t, r.CheckCount(3, 4, "vertex"))
	assert.False(t, r.CheckCount(1<<40, 4, "vertex"))
	assert.Contains(t, r.Err().Error(), "vertex count")
}
