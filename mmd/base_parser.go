package mmd

import (
	"bytes"
	"encoding/binary"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

var (
	utf16le  = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	shiftJIS = japanese.ShiftJIS
)

// baseParser reads the little endian primitives shared by PMX, PMD and VMD.
type baseParser struct {
	r      *format.BinaryReader
	format string
}

func newBaseParser(data []byte, formatName string) baseParser {
	return baseParser{r: format.NewBinaryReader(data, binary.LittleEndian, formatName), format: formatName}
}

func (p *baseParser) err() error {
	return p.r.Err()
}

func (p *baseParser) fail(msg string, args ...interface{}) {
	p.r.Fail(format.Malformed(p.format, msg, args...))
}

func (p *baseParser) readUint8() uint8 {
	return p.r.Uint8()
}

func (p *baseParser) readUint16() uint16 {
	return p.r.Uint16()
}

func (p *baseParser) readInt() int {
	return int(p.r.Int32())
}

// readCount reads a 32 bit element count and checks that count elements of
// at least minSize bytes fit in the rest of the file.
func (p *baseParser) readCount(minSize int, what string) int {
	n := p.r.Uint32()
	if !p.r.CheckCount(uint64(n), minSize, what) {
		return 0
	}
	return int(n)
}

func (p *baseParser) readFloat() float32 {
	return p.r.Float32()
}

func (p *baseParser) readVec2() geom.Vector2 {
	return geom.Vector2{X: p.r.Float32(), Y: p.r.Float32()}
}

func (p *baseParser) readVec3() geom.Vector3 {
	return geom.Vector3{X: p.r.Float32(), Y: p.r.Float32(), Z: p.r.Float32()}
}

func (p *baseParser) readVec4() geom.Vector4 {
	return geom.Vector4{X: p.r.Float32(), Y: p.r.Float32(), Z: p.r.Float32(), W: p.r.Float32()}
}

// readVUInt reads an unsigned index of sz bytes.
func (p *baseParser) readVUInt(sz byte) int {
	return int(p.r.UintN(int(sz)))
}

// readVInt reads a signed index of sz bytes.
func (p *baseParser) readVInt(sz byte) int {
	return int(p.r.IntN(int(sz)))
}

// readFixedString reads a NUL padded Shift-JIS string of n bytes.
func (p *baseParser) readFixedString(n int) string {
	b := p.r.Bytes(n)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return decodeString(shiftJIS, b)
}

// decodeString converts b to UTF-8. Undecodable bytes become U+FFFD.
func decodeString(enc encoding.Encoding, b []byte) string {
	if len(b) == 0 {
		return ""
	}
	s, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(bytes.ToValidUTF8(b, []byte("\uFFFD")))
	}
	return string(s)
}
