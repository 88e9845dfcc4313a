// Package stl reads and writes stereolithography files in the ascii and
// binary encodings.
package stl

import (
	"bytes"
	"encoding/binary"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
)

const (
	formatName   = "stl"
	headerSize   = 80
	triangleSize = 50
)

var defaultColor = geom.Vector4{X: 0.6, Y: 0.6, Z: 0.6, W: 1}

type Reader struct{}

func (Reader) Format() string       { return formatName }
func (Reader) Extensions() []string { return []string{"stl"} }

// isBinary reports whether the size matches the triangle count of a
// binary file. Binary files may start with "solid" too.
func isBinary(data []byte) bool {
	if len(data) < headerSize+4 {
		return false
	}
	n := uint64(binary.LittleEndian.Uint32(data[headerSize:]))
	return uint64(len(data)) == headerSize+4+n*triangleSize
}

func (Reader) CanRead(data []byte) bool {
	if isBinary(data) {
		return true
	}
	if !format.HasPrefixFold(data, "solid") {
		return false
	}
	head := format.Head(data, 1024)
	return bytes.Contains(head, []byte("facet")) || bytes.Contains(head, []byte("endsolid"))
}

func (Reader) Read(data []byte, opts *format.ReadOptions) (*scene.Scene, error) {
	if !isBinary(data) && format.HasPrefixFold(data, "solid") {
		return readASCII(data, opts)
	}
	return readBinary(data)
}

func newScene(color geom.Vector4) *scene.Scene {
	s := scene.New()
	mat := scene.NewMaterial("DefaultMaterial")
	mat.SetColor(scene.KeyColorDiffuse, color)
	s.AddMaterial(mat)
	return s
}

// facetNormal returns n, or the normal of the triangle when n is zero.
func facetNormal(n geom.Vector3, a, b, c *geom.Vector3) geom.Vector3 {
	if n.LenSqr() > 0 {
		return n
	}
	return *b.Sub(a).Cross(c.Sub(a)).Normalize()
}

// addFacet appends a facet with its own vertices.
func addFacet(m *scene.Mesh, n geom.Vector3, verts []geom.Vector3) {
	if len(verts) >= 3 {
		n = facetNormal(n, &verts[0], &verts[1], &verts[2])
	}
	idx := make([]int, len(verts))
	for i, v := range verts {
		idx[i] = len(m.Vertices)
		m.Vertices = append(m.Vertices, v)
		m.Normals = append(m.Normals, n)
	}
	m.AddFace(idx...)
}
