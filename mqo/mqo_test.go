package mqo

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/postprocess"
	"github.com/binzume/modelio/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

const sampleDoc = `Metasequoia Document
Format Text Ver 1.0

Scene {
	pos 0.0000 0.0000 1500.0000
	amb 0.250 0.250 0.250
}
Thumbnail 2 2 24 bmp {
0089ffee
}
Material 2 {
	"red" col(1.000 0.000 0.000 1.000) dif(0.800) amb(0.500) emi(0.000) spc(0.200) power(5.00) tex("tex\a.png")
	"half" shader(3) col(0.000 0.000 1.000 0.500) dif(0.800) amb(0.600) emi(0.000) spc(0.000) power(5.00) dbls(1)  
}
Object "parent" {
	depth 0
	visible 15
	vertex 4 {
		0.0000 0.0000 0.0000
		1.0000 0.0000 0.0000
		1.0000 1.0000 0.0000
		0.0000 1.0000 0.0000
	}
	face 2 {
		4 V(0 1 2 3) M(0) UV(0.00000 0.00000 1.00000 0.00000 1.00000 1.00000 0.00000 1.00000)
		3 V(0 1 2) M(1) COL(4278190335 4278190335 4278190335)
	}
}
Object "child" {
	depth 1
	visible 0
	vertex 2 {
		0 0 -1
		0 0 1e-05
	}
	face 1 {
		2 V(0 1)
	}
}
Object "sibling" {
	depth 0
	vertex 1 {
		5 5 5
	}
}
Eof
`

func TestReadDocument(t *testing.T) {
	s, err := Reader{}.Read([]byte(sampleDoc), nil)
	require.NoError(t, err)

	require.Len(t, s.RootNode.Children, 2)
	parent := s.RootNode.Children[0]
	assert.Equal(t, "parent", parent.Name)
	require.Len(t, parent.Children, 1)
	child := parent.Children[0]
	assert.Equal(t, "child", child.Name)
	visible, _ := child.Metadata.Get("visible")
	assert.False(t, visible.Bool)
	assert.Equal(t, "sibling", s.RootNode.Children[1].Name)

	require.Len(t, parent.Meshes, 2)
	red := s.Meshes[parent.Meshes[0]]
	assert.Equal(t, "parent_red", red.Name)
	assert.Equal(t, 0, red.MaterialIndex)
	assert.Equal(t, []int{0, 1, 2, 3}, red.Faces[0].Indices)
	// corners are reversed
	assert.Equal(t, geom.Vector3{Y: 1}, red.Vertices[0])
	assert.Equal(t, geom.Vector3{}, red.TexCoords[0][0])
	assert.Equal(t, geom.Vector3{Y: 1}, red.TexCoords[0][3])
	assert.Equal(t, geom.Vector4{X: 1, Y: 1, Z: 1, W: 1}, red.Colors[0][0])

	half := s.Meshes[parent.Meshes[1]]
	assert.Equal(t, geom.Vector4{X: 1, W: 1}, half.Colors[0][0])
	assert.Equal(t, scene.PrimitiveTriangle, half.PrimitiveTypes)

	line := s.Meshes[child.Meshes[0]]
	assert.Equal(t, scene.PrimitiveLine, line.PrimitiveTypes)
	assert.Equal(t, scene.NoMaterial, line.MaterialIndex)
	assert.Equal(t, geom.Vector3{Z: -1}, line.Vertices[1])

	points := s.Meshes[s.RootNode.Children[1].Meshes[0]]
	assert.Equal(t, scene.PrimitivePoint, points.PrimitiveTypes)

	require.Len(t, s.Materials, 2)
	tex, ok := s.Materials[0].Texture(scene.TextureDiffuse, 0)
	require.True(t, ok)
	assert.Equal(t, "tex/a.png", tex.Path)
	amb, _ := s.Materials[0].GetColor(scene.KeyColorAmbient)
	assert.Equal(t, geom.Vector4{X: 0.5, W: 1}, amb)
	opacity, _ := s.Materials[1].GetFloat(scene.KeyOpacity)
	assert.Equal(t, float32(0.5), opacity)
	assert.True(t, s.Materials[1].GetBool(scene.KeyTwoSided))
}

func TestReadShiftJIS(t *testing.T) {
	src := "Metasequoia Document\nFormat Text Ver 1.0\nObject \"立方体\" {\n\tvertex 3 {\n\t\t0 0 0\n\t\t1 0 0\n\t\t0 1 0\n\t}\n\tface 1 {\n\t\t3 V(0 1 2)\n\t}\n}\nEof\n"
	data, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(src))
	require.NoError(t, err)
	s, err := Reader{}.Read(data, nil)
	require.NoError(t, err)
	assert.NotNil(t, s.FindNode("立方体"))
}

func TestReadErrors(t *testing.T) {
	const head = "Metasequoia Document\nFormat Text Ver 1.0\n"
	tests := []struct {
		name   string
		data   string
		strict bool
		err    error
		msg    string
	}{
		{"no header", "hello", false, format.ErrUnrecognizedFormat, "header"},
		{"compressed", "Metasequoia Document\nFormat Compress Ver 1.0\n", false, format.ErrUnsupportedFeature, "Compress"},
		{"huge count", head + "Object \"x\" {\n\tvertex 99999999 {\n", false, format.ErrMalformedInput, "vertex count 99999999"},
		{"unterminated", head + "Object \"x\" {\n\tvertex 1 {\n\t\t0 0 0\n\t}\n", false, format.ErrMalformedInput, "unterminated Object x"},
		{"bad number", head + "Object \"x\" {\n\tvertex 1 {\n\t\t0 zero 0\n\t}\n}\nEof\n", false, format.ErrMalformedInput, "line 5: expected number"},
		{"binary vertex", head + "Object \"x\" {\n\tBVertex 1 {\n", false, format.ErrUnsupportedFeature, "binary vertex"},
		{"index out of range", head + "Object \"x\" {\n\tvertex 1 {\n\t\t0 0 0\n\t}\n\tface 1 {\n\t\t3 V(0 1 2)\n\t}\n}\nEof\n", true, format.ErrMalformedInput, "vertex index out of range"},
		{"empty", head + "Eof\n", false, format.ErrMalformedInput, "no geometry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &format.ReadOptions{}
			if tt.strict {
				opts.Flags = format.FlagStrict
			}
			_, err := Reader{}.Read([]byte(tt.data), opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestReadSkipsBadFace(t *testing.T) {
	data := "Metasequoia Document\nFormat Text Ver 1.0\nObject \"x\" {\n\tvertex 3 {\n\t\t0 0 0\n\t\t1 0 0\n\t\t0 1 0\n\t}\n\tface 2 {\n\t\t3 V(0 1 7)\n\t\t3 V(0 1 2) M(4)\n\t}\n}\nEof\n"
	s, err := Reader{}.Read([]byte(data), nil)
	require.NoError(t, err)
	require.Equal(t, 1, s.NumFaces())
	assert.Equal(t, scene.NoMaterial, s.Meshes[0].MaterialIndex)
}

func TestReadArchive(t *testing.T) {
	var buf bytes.Buffer
	z := zip.NewWriter(&buf)
	w, _ := z.Create("model.mqo")
	w.Write([]byte(sampleDoc))
	w, _ = z.Create("tex/a.png")
	w.Write([]byte("png bytes"))
	require.NoError(t, z.Close())

	assert.True(t, Reader{}.CanRead(buf.Bytes()))
	s, err := Reader{}.Read(buf.Bytes(), nil)
	require.NoError(t, err)
	require.Len(t, s.Textures, 1)
	assert.Equal(t, "png", s.Textures[0].FormatHint)
	assert.Equal(t, []byte("png bytes"), s.Textures[0].Data)
	tex, _ := s.Materials[0].Texture(scene.TextureDiffuse, 0)
	assert.Equal(t, "*0", tex.Path)
}

func TestCanRead(t *testing.T) {
	assert.True(t, Reader{}.CanRead([]byte(sampleDoc)))
	assert.False(t, Reader{}.CanRead([]byte("solid x\n")))
	assert.False(t, Reader{}.CanRead([]byte("PK\x03\x04other.txt")))
}

func hierarchyScene() *scene.Scene {
	s := scene.New()
	mat := scene.NewMaterial("m")
	mat.SetColor(scene.KeyColorDiffuse, geom.Vector4{X: 1, W: 1})
	mat.SetFloat(scene.KeyShininess, 10)
	mat.SetFloat(scene.KeyMetallicFactor, 0.5)
	s.AddMaterial(mat)

	quad := scene.NewMesh("quad")
	quad.Vertices = []geom.Vector3{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}
	quad.TexCoords = [][]geom.Vector3{{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}}
	quad.UVComponents = []int{2}
	quad.Colors = [][]geom.Vector4{{{X: 1, W: 1}, {Y: 1, W: 1}, {Z: 1, W: 1}, {X: 1, Y: 1, Z: 1, W: 1}}}
	quad.AddFace(0, 1, 2, 3)
	quad.UpdatePrimitiveTypes()
	quad.MaterialIndex = 0

	tri := scene.NewMesh("tri")
	tri.Vertices = []geom.Vector3{{}, {X: 1}, {Y: 1}}
	tri.AddFace(0, 1, 2)
	tri.UpdatePrimitiveTypes()

	a := s.RootNode.AddChild(scene.NewNode("a"))
	a.Transform = *geom.NewTranslateMatrix4(0, 0, 1)
	a.Meshes = []int{s.AddMesh(quad)}
	b := a.AddChild(scene.NewNode("b"))
	b.Meshes = []int{s.AddMesh(tri)}
	return s
}

func TestWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Writer{}.Write(&buf, hierarchyScene(), nil))
	assert.Contains(t, buf.String(), "CodePage utf8\n")

	s, err := Reader{}.Read(buf.Bytes(), nil)
	require.NoError(t, err)
	a := s.FindNode("a")
	require.NotNil(t, a)
	require.Len(t, a.Children, 1)
	assert.Equal(t, "b", a.Children[0].Name)

	quad := s.Meshes[a.Meshes[0]]
	assert.Equal(t, []int{0, 1, 2, 3}, quad.Faces[0].Indices)
	assert.Equal(t, []geom.Vector3{{Z: 1}, {X: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {Y: 1, Z: 1}}, quad.Vertices)
	assert.Equal(t, geom.Vector3{X: 1, Y: 1}, quad.TexCoords[0][2])
	assert.Equal(t, geom.Vector4{Z: 1, W: 1}, quad.Colors[0][2])

	mat := s.Materials[quad.MaterialIndex]
	assert.Equal(t, "m", mat.Name())
	c, _ := mat.GetColor(scene.KeyColorDiffuse)
	assert.Equal(t, geom.Vector4{X: 1, W: 1}, c)
	power, _ := mat.GetFloat(scene.KeyShininess)
	assert.Equal(t, float32(10), power)
	metallic, ok := mat.GetFloat(scene.KeyMetallicFactor)
	require.True(t, ok)
	assert.Equal(t, float32(0.5), metallic)

	tri := s.Meshes[a.Children[0].Meshes[0]]
	assert.Equal(t, geom.Vector3{X: 1, Z: 1}, tri.Vertices[1])
	assert.Equal(t, "DefaultMaterial", s.Materials[tri.MaterialIndex].Name())
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestWriteEmbeddedTexture(t *testing.T) {
	src := hierarchyScene()
	src.Materials[0].AddTexture(scene.TextureRef{Semantic: scene.TextureDiffuse, Path: scene.TextureToken(0)})
	src.AddTexture(&scene.EmbeddedTexture{FormatHint: "jpg", Data: []byte("jpeg data")})

	files := map[string]*bytes.Buffer{}
	opts := &format.WriteOptions{BaseName: "doll", Create: func(name string) (io.WriteCloser, error) {
		b := &bytes.Buffer{}
		files[name] = b
		return nopWriteCloser{b}, nil
	}}
	var buf bytes.Buffer
	require.NoError(t, Writer{}.Write(&buf, src, opts))
	require.Contains(t, files, "doll_0.jpg")
	assert.Equal(t, "jpeg data", files["doll_0.jpg"].String())

	s, err := Reader{}.Read(buf.Bytes(), nil)
	require.NoError(t, err)
	require.NoError(t, postprocess.Apply(s, postprocess.ValidateDataStructure, nil))
	require.Equal(t, "m", s.Materials[0].Name())
	tex, ok := s.Materials[0].Texture(scene.TextureDiffuse, 0)
	require.True(t, ok)
	assert.Equal(t, "doll_0.jpg", tex.Path)

	// without side-car support the embedded reference is not written
	buf.Reset()
	require.NoError(t, Writer{}.Write(&buf, src, nil))
	s, err = Reader{}.Read(buf.Bytes(), nil)
	require.NoError(t, err)
	assert.NoError(t, postprocess.Apply(s, postprocess.ValidateDataStructure, nil))
	_, ok = s.Materials[0].Texture(scene.TextureDiffuse, 0)
	assert.False(t, ok)
}
