package stl

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
)

const colorValid = 1 << 15

// materialiseColor parses a "COLOR=" header entry followed by RGBA bytes.
func materialiseColor(header []byte) (geom.Vector4, bool) {
	i := bytes.Index(header, []byte("COLOR="))
	if i < 0 || i+10 > len(header) {
		return geom.Vector4{}, false
	}
	c := header[i+6 : i+10]
	return geom.Vector4{X: float32(c[0]) / 255, Y: float32(c[1]) / 255, Z: float32(c[2]) / 255, W: float32(c[3]) / 255}, true
}

// faceColor decodes a 15 bit attribute color. Materialise stores red in the
// low bits and marks per-face colors with bit 15 clear; VisCAM stores blue
// in the low bits and sets bit 15.
func faceColor(attr uint16, materialise bool) geom.Vector4 {
	lo := float32(attr&31) / 31
	mid := float32(attr>>5&31) / 31
	hi := float32(attr>>10&31) / 31
	if materialise {
		return geom.Vector4{X: lo, Y: mid, Z: hi, W: 1}
	}
	return geom.Vector4{X: hi, Y: mid, Z: lo, W: 1}
}

func readBinary(data []byte) (*scene.Scene, error) {
	r := format.NewBinaryReader(data, binary.LittleEndian, formatName)
	header := r.Bytes(headerSize)
	count := r.Uint32()
	if !r.CheckCount(uint64(count), triangleSize, "triangle") {
		return nil, r.Err()
	}
	if count == 0 {
		return nil, format.Malformed(formatName, "no facets")
	}

	base, materialise := materialiseColor(header)
	if !materialise {
		base = defaultColor
	}
	s := newScene(base)
	m := scene.NewMesh("mesh")
	m.MaterialIndex = 0
	m.Vertices = make([]geom.Vector3, 0, count*3)
	m.Normals = make([]geom.Vector3, 0, count*3)
	attrs := make([]uint16, count)
	var buf [12]float32
	for i := range attrs {
		r.Float32s(buf[:])
		n := geom.Vector3{X: buf[0], Y: buf[1], Z: buf[2]}
		addFacet(m, n, []geom.Vector3{
			{X: buf[3], Y: buf[4], Z: buf[5]},
			{X: buf[6], Y: buf[7], Z: buf[8]},
			{X: buf[9], Y: buf[10], Z: buf[11]},
		})
		attrs[i] = r.Uint16()
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	hasColors := materialise
	for _, a := range attrs {
		hasColors = hasColors || a&colorValid != 0
	}
	if hasColors {
		colors := make([]geom.Vector4, 0, len(m.Vertices))
		for _, a := range attrs {
			c := base
			if materialise && a&colorValid == 0 || !materialise && a&colorValid != 0 {
				c = faceColor(a, materialise)
			}
			colors = append(colors, c, c, c)
		}
		m.Colors = [][]geom.Vector4{colors}
	}
	m.UpdatePrimitiveTypes()
	s.RootNode.Meshes = append(s.RootNode.Meshes, s.AddMesh(m))
	s.Metadata.SetString("SourceAsset_Format", "stl binary")
	if h := bytes.TrimRight(header, "\x00 "); utf8.Valid(h) && len(h) > 0 {
		s.Metadata.SetString("STL_Header", string(h))
	}
	return s, nil
}
