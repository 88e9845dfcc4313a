package fbx

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"

	"github.com/binzume/modelio/format"
)

var binaryMagic = []byte("Kaydara FBX Binary  \x00")

const (
	binaryHeaderSize = 27
	maxNodeDepth     = 128
	// deflate cannot expand input by more than about 1032:1.
	maxInflateRatio = 1032
)

type binaryParser struct {
	r       *format.BinaryReader
	version int
	wide    bool // 64-bit record headers from 7.5
}

func newBinaryParser(data []byte) *binaryParser {
	return &binaryParser{r: format.NewBinaryReader(data, binary.LittleEndian, formatName)}
}

func (p *binaryParser) offset() uint64 {
	if p.wide {
		return p.r.Uint64()
	}
	return uint64(p.r.Uint32())
}

func (p *binaryParser) readArray(typ byte) interface{} {
	count := p.r.Uint32()
	encoding := p.r.Uint32()
	size := p.r.Uint32()
	elem := map[byte]int{'b': 1, 'i': 4, 'f': 4, 'l': 8, 'd': 8}[typ]
	raw := p.r.Bytes(int(size))
	if p.r.Err() != nil {
		return nil
	}
	want := uint64(count) * uint64(elem)
	switch encoding {
	case 0:
		if uint64(len(raw)) != want {
			p.r.Fail(format.Malformed(formatName, "array of %d elements stored in %d bytes", count, size))
			return nil
		}
	case 1:
		if want > uint64(size)*maxInflateRatio+64 {
			p.r.Fail(format.Malformed(formatName, "compressed array claims %d elements in %d bytes", count, size))
			return nil
		}
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			p.r.Fail(&format.Error{Kind: format.MalformedInput, Format: formatName, Msg: "compressed array", Err: err})
			return nil
		}
		defer zr.Close()
		buf := make([]byte, want)
		if _, err := io.ReadFull(zr, buf); err != nil {
			p.r.Fail(&format.Error{Kind: format.MalformedInput, Format: formatName, Msg: "compressed array", Err: err})
			return nil
		}
		raw = buf
	default:
		p.r.Fail(format.Malformed(formatName, "unknown array encoding %d", encoding))
		return nil
	}
	return decodeArray(typ, raw, int(count))
}

func decodeArray(typ byte, raw []byte, n int) interface{} {
	le := binary.LittleEndian
	switch typ {
	case 'b':
		v := make([]bool, n)
		for i := range v {
			v[i] = raw[i] != 0
		}
		return v
	case 'i':
		v := make([]int32, n)
		for i := range v {
			v[i] = int32(le.Uint32(raw[i*4:]))
		}
		return v
	case 'l':
		v := make([]int64, n)
		for i := range v {
			v[i] = int64(le.Uint64(raw[i*8:]))
		}
		return v
	case 'f':
		v := make([]float32, n)
		for i := range v {
			v[i] = math.Float32frombits(le.Uint32(raw[i*4:]))
		}
		return v
	case 'd':
		v := make([]float64, n)
		for i := range v {
			v[i] = math.Float64frombits(le.Uint64(raw[i*8:]))
		}
		return v
	}
	return nil
}

func (p *binaryParser) readProp() *Property {
	typ := p.r.Uint8()
	switch typ {
	case 'C':
		return &Property{Value: p.r.Uint8() != 0}
	case 'Y':
		return &Property{Value: p.r.Int16()}
	case 'I':
		return &Property{Value: p.r.Int32()}
	case 'L':
		return &Property{Value: p.r.Int64()}
	case 'F':
		return &Property{Value: p.r.Float32()}
	case 'D':
		return &Property{Value: p.r.Float64()}
	case 'S':
		return &Property{Value: string(p.r.Bytes(int(p.r.Uint32())))}
	case 'R':
		raw := p.r.Bytes(int(p.r.Uint32()))
		return &Property{Value: append([]byte(nil), raw...)}
	case 'b', 'i', 'l', 'f', 'd':
		return &Property{Value: p.readArray(typ)}
	}
	p.r.Fail(format.Malformed(formatName, "unknown property type 0x%02x at offset %d", typ, p.r.Pos()-1))
	return nil
}

// readNode returns nil at a null record, which terminates a child list.
func (p *binaryParser) readNode(depth int) *Node {
	start := p.r.Pos()
	end := p.offset()
	nprops := p.offset()
	p.offset() // property list length
	name := p.r.Bytes(int(p.r.Uint8()))
	if p.r.Err() != nil || end == 0 {
		return nil
	}
	if end <= uint64(start) || end > uint64(p.r.Len()) {
		p.r.Fail(format.Malformed(formatName, "record %q at offset %d ends at %d", name, start, end))
		return nil
	}
	if depth > maxNodeDepth {
		p.r.Fail(format.Malformed(formatName, "records nested deeper than %d", maxNodeDepth))
		return nil
	}
	if !p.r.CheckCount(nprops, 1, "property") {
		return nil
	}
	n := &Node{Name: string(name)}
	for i := uint64(0); i < nprops && p.r.Err() == nil; i++ {
		n.Properties = append(n.Properties, p.readProp())
	}
	for uint64(p.r.Pos()) < end && p.r.Err() == nil {
		child := p.readNode(depth + 1)
		if child == nil {
			break
		}
		n.Children = append(n.Children, child)
	}
	p.r.Seek(int(end))
	return n
}

func (p *binaryParser) Parse() (*Node, error) {
	if !bytes.Equal(p.r.Bytes(len(binaryMagic)), binaryMagic) {
		return nil, format.Unrecognized(formatName, "missing binary header")
	}
	p.r.Seek(23)
	p.version = int(p.r.Uint32())
	p.wide = p.version >= 7500
	p.r.Seek(binaryHeaderSize)

	root := &Node{Name: rootNodeName}
	headerSize := 13
	if p.wide {
		headerSize = 25
	}
	for p.r.Err() == nil && p.r.Remaining() >= headerSize {
		node := p.readNode(0)
		if node == nil {
			break
		}
		root.Children = append(root.Children, node)
	}
	if err := p.r.Err(); err != nil {
		return nil, err
	}
	return root, nil
}
