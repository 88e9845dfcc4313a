package stl

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoSolids = `solid first
  facet normal 0 0 1
    outer loop
      vertex 0 0 0
      vertex 1 0 0
      vertex 0 1 0
    endloop
  endfacet
endsolid first
SOLID second
  FACET NORMAL 0 0 0
    OUTER LOOP
      VERTEX 0 0 0
      VERTEX 0 1 0
      VERTEX 0 0 1
    ENDLOOP
  ENDFACET
ENDSOLID second
`

func TestReadASCII(t *testing.T) {
	s, err := Reader{}.Read([]byte(twoSolids), nil)
	require.NoError(t, err)
	require.Len(t, s.Meshes, 2)
	assert.Equal(t, []int{0, 1}, s.RootNode.Meshes)

	first := s.Meshes[0]
	assert.Equal(t, "first", first.Name)
	assert.Equal(t, scene.PrimitiveTriangle, first.PrimitiveTypes)
	assert.Equal(t, geom.Vector3{Z: 1}, first.Normals[2])
	assert.Equal(t, 0, first.MaterialIndex)

	// zero normal is computed from the vertices
	assert.Equal(t, geom.Vector3{X: 1}, s.Meshes[1].Normals[0])
}

func TestReadASCIIErrors(t *testing.T) {
	_, err := Reader{}.Read([]byte("solid x\nendsolid x\n"), nil)
	assert.ErrorIs(t, err, format.ErrMalformedInput)

	bad := "solid x\nfacet normal 0 0 1\nouter loop\nvertex 0 0 0\nvertex 1 0 0\nendloop\nendfacet\nendsolid\n"
	_, err = Reader{}.Read([]byte(bad), &format.ReadOptions{Flags: format.FlagStrict})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 7: facet with 2 vertices")

	_, err = Reader{}.Read([]byte("solid x\nfacet normal 0 0 1\nouter loop\nvertex 0 zero 0\n"), nil)
	assert.ErrorIs(t, err, format.ErrMalformedInput)
}

func TestReadASCIIMissingEndSolid(t *testing.T) {
	data := "solid x\nfacet normal 0 0 1\nouter loop\nvertex 0 0 0\nvertex 1 0 0\nvertex 0 1 0\nendloop\nendfacet\n"
	s, err := Reader{}.Read([]byte(data), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.NumFaces())

	_, err = Reader{}.Read([]byte(data), &format.ReadOptions{Flags: format.FlagStrict})
	assert.ErrorIs(t, err, format.ErrMalformedInput)
}

func binarySTL(header string, attrs ...uint16) []byte {
	var buf bytes.Buffer
	var h [headerSize]byte
	copy(h[:], header)
	buf.Write(h[:])
	binary.Write(&buf, binary.LittleEndian, uint32(len(attrs)))
	for i, a := range attrs {
		x := float32(i)
		binary.Write(&buf, binary.LittleEndian, [12]float32{0, 0, 1, x, 0, 0, x + 1, 0, 0, x, 1, 0})
		binary.Write(&buf, binary.LittleEndian, a)
	}
	return buf.Bytes()
}

func TestReadBinary(t *testing.T) {
	// header starting with "solid" must not confuse detection
	data := binarySTL("solid but binary", 0, 0)
	assert.True(t, Reader{}.CanRead(data))
	s, err := Reader{}.Read(data, nil)
	require.NoError(t, err)
	m := s.Meshes[0]
	require.Len(t, m.Vertices, 6)
	assert.Equal(t, geom.Vector3{X: 2}, m.Vertices[4])
	assert.Equal(t, geom.Vector3{Z: 1}, m.Normals[5])
	assert.Equal(t, [][]int{{0, 1, 2}, {3, 4, 5}}, [][]int{m.Faces[0].Indices, m.Faces[1].Indices})
	assert.Empty(t, m.Colors)
	h, _ := s.Metadata.Get("STL_Header")
	assert.Equal(t, "solid but binary", h.Str)
}

func TestReadBinaryMaterialiseColors(t *testing.T) {
	header := "COLOR=" + string([]byte{255, 0, 0, 255})
	s, err := Reader{}.Read(binarySTL(header, 31<<5, colorValid), nil)
	require.NoError(t, err)
	colors := s.Meshes[0].Colors[0]
	assert.Equal(t, geom.Vector4{Y: 1, W: 1}, colors[0])
	assert.Equal(t, geom.Vector4{X: 1, W: 1}, colors[3])
	c, _ := s.Materials[0].GetColor(scene.KeyColorDiffuse)
	assert.Equal(t, geom.Vector4{X: 1, W: 1}, c)
}

func TestReadBinaryVisCAMColors(t *testing.T) {
	s, err := Reader{}.Read(binarySTL("", colorValid|31, 0), nil)
	require.NoError(t, err)
	colors := s.Meshes[0].Colors[0]
	assert.Equal(t, geom.Vector4{Z: 1, W: 1}, colors[2])
	assert.Equal(t, defaultColor, colors[3])
}

func TestReadBinaryTruncated(t *testing.T) {
	data := binarySTL("", 0, 0)
	_, err := Reader{}.Read(data[:len(data)-10], nil)
	assert.ErrorIs(t, err, format.ErrMalformedInput)
	assert.Contains(t, err.Error(), "triangle count 2")
}

func TestCanRead(t *testing.T) {
	assert.True(t, Reader{}.CanRead([]byte(twoSolids)))
	assert.False(t, Reader{}.CanRead([]byte("solidarity forever")))
	assert.False(t, Reader{}.CanRead([]byte("ply\nformat ascii 1.0\n")))
	assert.False(t, Reader{}.CanRead(make([]byte, 100)))
}

func quadScene() *scene.Scene {
	s := scene.New()
	m := scene.NewMesh("quad")
	m.Vertices = []geom.Vector3{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}
	m.Colors = [][]geom.Vector4{{{X: 1, W: 1}, {X: 1, W: 1}, {X: 1, W: 1}, {X: 1, W: 1}}}
	m.AddFace(0, 1, 2, 3)
	m.AddFace(0, 2)
	m.UpdatePrimitiveTypes()
	n := scene.NewNode("up")
	n.Transform = *geom.NewTranslateMatrix4(0, 0, 3)
	n.Meshes = []int{s.AddMesh(m)}
	s.RootNode.AddChild(n)
	return s
}

func TestWriteRoundTrip(t *testing.T) {
	for _, w := range []*Writer{{}, {Binary: true}} {
		t.Run(w.ID(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, w.Write(&buf, quadScene(), nil))
			assert.True(t, Reader{}.CanRead(buf.Bytes()))

			s, err := Reader{}.Read(buf.Bytes(), nil)
			require.NoError(t, err)
			m := s.Meshes[0]
			require.Len(t, m.Faces, 2)
			assert.Equal(t, []geom.Vector3{{Z: 3}, {X: 1, Z: 3}, {X: 1, Y: 1, Z: 3}}, m.Vertices[:3])
			assert.Equal(t, geom.Vector3{Z: 1}, m.Normals[0])
			if w.Binary {
				assert.Equal(t, geom.Vector4{X: 1, W: 1}, m.Colors[0][0])
			} else {
				assert.Equal(t, "quad", m.Name)
			}
		})
	}
}

func TestWriteNoTriangles(t *testing.T) {
	s := scene.New()
	m := scene.NewMesh("points")
	m.Vertices = []geom.Vector3{{}}
	m.AddFace(0)
	s.RootNode.Meshes = []int{s.AddMesh(m)}
	err := (&Writer{}).Write(&bytes.Buffer{}, s, nil)
	assert.ErrorIs(t, err, format.ErrUnsupportedFeature)
	assert.Equal(t, []string{"Triangulate"}, (&Writer{}).Prepare())
}
