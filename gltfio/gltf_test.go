package gltfio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"github.com/binzume/modelio/vrm"
	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memFS map[string]*bytes.Buffer

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (fs memFS) open(name string) (io.ReadCloser, error) {
	b, ok := fs[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(b.Bytes())), nil
}

func (fs memFS) create(name string) (io.WriteCloser, error) {
	b := &bytes.Buffer{}
	fs[name] = b
	return nopWriteCloser{b}, nil
}

var squarePositions = []float32{0, 0, 0, 1, 0, 0, 0, 1, 0, 1, 1, 0}

// handmade returns a glTF document with one primitive. The buffer holds
// the positions followed by the indices.
func handmade(mode, count int, positions []float32, indices []uint16) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, positions)
	posLen := buf.Len()
	_ = binary.Write(&buf, binary.LittleEndian, indices)
	uri := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	return []byte(fmt.Sprintf(`{
  "asset": {"version": "2.0", "generator": "handmade"},
  "scene": 0,
  "scenes": [{"nodes": [0]}],
  "nodes": [{"name": "shape", "mesh": 0, "translation": [1, 2, 3]}],
  "meshes": [{"name": "m", "primitives": [{"attributes": {"POSITION": 0}, "indices": 1, "mode": %d}]}],
  "buffers": [{"byteLength": %d, "uri": "%s"}],
  "bufferViews": [
    {"buffer": 0, "byteLength": %d},
    {"buffer": 0, "byteOffset": %d, "byteLength": %d}
  ],
  "accessors": [
    {"bufferView": 0, "componentType": 5126, "count": %d, "type": "VEC3"},
    {"bufferView": 1, "componentType": 5123, "count": %d, "type": "SCALAR"}
  ]
}`, mode, buf.Len(), uri, posLen, posLen, buf.Len()-posLen, count, len(indices)))
}

func faceIndices(m *scene.Mesh) [][]int {
	var out [][]int
	for _, f := range m.Faces {
		out = append(out, f.Indices)
	}
	return out
}

func TestReadPrimitiveModes(t *testing.T) {
	tests := []struct {
		name  string
		mode  int
		faces [][]int
		types scene.PrimitiveType
	}{
		{"points", 0, [][]int{{0}, {1}, {2}, {3}}, scene.PrimitivePoint},
		{"lines", 1, [][]int{{0, 1}, {2, 3}}, scene.PrimitiveLine},
		{"line loop", 2, [][]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}}, scene.PrimitiveLine},
		{"line strip", 3, [][]int{{0, 1}, {1, 2}, {2, 3}}, scene.PrimitiveLine},
		{"triangles", 4, [][]int{{0, 1, 2}}, scene.PrimitiveTriangle},
		{"triangle strip", 5, [][]int{{0, 1, 2}, {2, 1, 3}}, scene.PrimitiveTriangle},
		{"triangle fan", 6, [][]int{{0, 1, 2}, {0, 2, 3}}, scene.PrimitiveTriangle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Reader{}.Read(handmade(tt.mode, 4, squarePositions, []uint16{0, 1, 2, 3}), nil)
			require.NoError(t, err)
			require.Len(t, s.Meshes, 1)
			assert.Equal(t, tt.faces, faceIndices(s.Meshes[0]))
			assert.Equal(t, tt.types, s.Meshes[0].PrimitiveTypes)
		})
	}
}

func TestReadNodeTransform(t *testing.T) {
	s, err := Reader{}.Read(handmade(4, 4, squarePositions, []uint16{0, 1, 2}), nil)
	require.NoError(t, err)
	n := s.FindNode("shape")
	require.NotNil(t, n)
	assert.Equal(t, []int{0}, n.Meshes)
	assertMatrixEqual(t, *geom.NewTranslateMatrix4(1, 2, 3), n.Transform)
	assert.Equal(t, scene.NoMaterial, s.Meshes[0].MaterialIndex)
	e, ok := s.Metadata.Get("SourceAsset_Generator")
	require.True(t, ok)
	assert.Equal(t, "handmade", e.Str)
}

func TestReadVRM(t *testing.T) {
	data := bytes.Replace(handmade(4, 4, squarePositions, []uint16{0, 1, 2}), []byte(`"asset": {`), []byte(`"extensionsUsed": ["VRM"],
  "extensions": {"VRM": {
    "meta": {"title": "Avatar", "author": "someone", "licenseName": "CC0"},
    "humanoid": {"humanBones": [{"bone": "hips", "node": 0}, {"bone": "head", "node": 5}]},
    "exporterVersion": "test"
  }},
  "asset": {`), 1)

	s, err := Reader{}.Read(data, nil)
	require.NoError(t, err)
	e, ok := s.Metadata.Get("VRM_Title")
	require.True(t, ok)
	assert.Equal(t, "Avatar", e.Str)
	e, _ = s.Metadata.Get("VRM_License")
	assert.Equal(t, "CC0", e.Str)
	_, ok = s.Metadata.Get("VRM_Version")
	assert.False(t, ok)

	bone, ok := s.FindNode("shape").Metadata.Get("HumanBone")
	require.True(t, ok)
	assert.Equal(t, "hips", bone.Str)
}

func TestReadAccessorOutOfBounds(t *testing.T) {
	data := handmade(4, 10, squarePositions, []uint16{0, 1, 2})
	_, err := Reader{}.Read(data, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, format.ErrMalformedInput), err.Error())

	_, err = Reader{}.Read(data, &format.ReadOptions{Flags: format.FlagStrict})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accessor 0")
}

func TestReadIndexOutOfRange(t *testing.T) {
	data := handmade(4, 4, squarePositions, []uint16{0, 1, 2, 1, 2, 7})
	s, err := Reader{}.Read(data, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2}}, faceIndices(s.Meshes[0]))

	_, err = Reader{}.Read(data, &format.ReadOptions{Flags: format.FlagStrict})
	require.Error(t, err)
	assert.Equal(t, format.MalformedInput, format.KindOf(err))
}

func TestReadMissingBuffer(t *testing.T) {
	data := []byte(`{"asset": {"version": "2.0"}, "buffers": [{"byteLength": 36, "uri": "missing.bin"}]}`)
	_, err := Reader{}.Read(data, nil)
	require.Error(t, err)
	assert.Equal(t, format.IOFailure, format.KindOf(err))
}

func TestReadUnsupportedVersion(t *testing.T) {
	_, err := Reader{}.Read([]byte(`{"asset": {"version": "1.0"}}`), nil)
	require.Error(t, err)
	assert.Equal(t, format.UnsupportedFeature, format.KindOf(err))
}

func TestCanRead(t *testing.T) {
	r := Reader{}
	assert.True(t, r.CanRead(handmade(4, 4, squarePositions, []uint16{0, 1, 2})))
	assert.True(t, r.CanRead([]byte("glTF\x02\x00\x00\x00")))
	assert.False(t, r.CanRead([]byte(`{"name": "package.json", "version": "1.0"}`)))
	assert.False(t, r.CanRead([]byte("solid cube\nfacet normal 0 0 1\n")))
}

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR fake image")

func roundTripScene() *scene.Scene {
	s := scene.New()
	s.AddTexture(&scene.EmbeddedTexture{Filename: "skin.png", FormatHint: "png", Data: pngData})
	mat := scene.NewMaterial("skin")
	mat.SetColor(scene.KeyColorDiffuse, geom.Vector4{X: 1, Y: 0.5, Z: 0.25, W: 1})
	mat.SetFloat(scene.KeyMetallicFactor, 0.5)
	mat.SetFloat(scene.KeyRoughnessFactor, 0.75)
	mat.SetBool(scene.KeyTwoSided, true)
	mat.AddTexture(scene.TextureRef{Semantic: scene.TextureDiffuse, Path: scene.TextureToken(0)})
	mat.AddTexture(scene.TextureRef{Semantic: scene.TextureNormals, Path: "normal.png"})
	s.AddMaterial(mat)

	quad := scene.NewMesh("quad")
	quad.Vertices = []geom.Vector3{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}
	quad.Normals = []geom.Vector3{{Z: 1}, {Z: 1}, {Z: 1}, {Z: 1}}
	ch := quad.AddTexCoordChannel(2)
	quad.TexCoords[ch] = []geom.Vector3{{X: 0.25, Y: 0.75}, {X: 1, Y: 0.75}, {X: 1, Y: 0}, {X: 0.25, Y: 0}}
	quad.Colors = [][]geom.Vector4{{{X: 1, W: 1}, {Y: 1, W: 1}, {Z: 1, W: 1}, {X: 1, Y: 1, Z: 1, W: 0.5}}}
	quad.AddFace(0, 1, 2, 3)
	quad.UpdatePrimitiveTypes()
	quad.MaterialIndex = 0

	body := s.RootNode.AddChild(scene.NewNode("body"))
	body.Transform = *geom.NewTranslateMatrix4(0, 1, 0)
	body.Meshes = []int{s.AddMesh(quad)}
	arm := body.AddChild(scene.NewNode("arm"))
	arm.Transform = *geom.NewTranslateMatrix4(0, 0, 2)
	arm.Meshes = []int{0}

	anim := &scene.Animation{Name: "wave", TicksPerSecond: 30}
	c := anim.Channel("arm")
	c.PositionKeys = []scene.VectorKey{{Time: 0, Value: geom.Vector3{Z: 2}}, {Time: 15, Value: geom.Vector3{Z: 3}}}
	c.RotationKeys = []scene.QuatKey{{Time: 0, Value: geom.Quaternion{W: 1}}, {Time: 30, Value: geom.Quaternion{Z: 1}}}
	anim.UpdateDuration()
	s.Animations = append(s.Animations, anim)
	return s
}

func assertMatrixEqual(t *testing.T, want, got geom.Matrix4) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "element %d", i)
	}
}

func checkRoundTrip(t *testing.T, s *scene.Scene) {
	require.Len(t, s.Meshes, 1)
	m := s.Meshes[0]
	assert.Equal(t, []geom.Vector3{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}, m.Vertices)
	assert.Equal(t, [][]int{{0, 1, 2}, {0, 2, 3}}, faceIndices(m))
	require.True(t, m.HasTextureCoords(0))
	assert.Equal(t, geom.Vector3{X: 0.25, Y: 0.75}, m.TexCoords[0][0])
	require.True(t, m.HasVertexColors(0))
	assert.Equal(t, geom.Vector4{X: 1, Y: 1, Z: 1, W: 0.5}, m.Colors[0][3])
	assert.True(t, m.HasNormals())
	assert.Equal(t, 0, m.MaterialIndex)

	require.Len(t, s.Materials, 1)
	mat := s.Materials[0]
	assert.Equal(t, "skin", mat.Name())
	c, _ := mat.GetColor(scene.KeyColorDiffuse)
	assert.Equal(t, geom.Vector4{X: 1, Y: 0.5, Z: 0.25, W: 1}, c)
	metallic, _ := mat.GetFloat(scene.KeyMetallicFactor)
	assert.Equal(t, float32(0.5), metallic)
	assert.True(t, mat.GetBool(scene.KeyTwoSided))
	diffuse, ok := mat.Texture(scene.TextureDiffuse, 0)
	require.True(t, ok)
	tex, ok := s.Texture(diffuse.Path)
	require.True(t, ok)
	assert.Equal(t, pngData, tex.Data)
	assert.Equal(t, "png", tex.FormatHint)
	normals, ok := mat.Texture(scene.TextureNormals, 0)
	require.True(t, ok)
	assert.Equal(t, "normal.png", normals.Path)

	body := s.FindNode("body")
	require.NotNil(t, body)
	assert.Equal(t, []int{0}, body.Meshes)
	assertMatrixEqual(t, *geom.NewTranslateMatrix4(0, 1, 0), body.Transform)
	arm := s.FindNode("arm")
	require.NotNil(t, arm)
	assert.Equal(t, []int{0}, arm.Meshes)
	assertMatrixEqual(t, *geom.NewTranslateMatrix4(0, 0, 2), arm.Transform)

	require.Len(t, s.Animations, 1)
	a := s.Animations[0]
	assert.Equal(t, "wave", a.Name)
	assert.Equal(t, float64(ticksPerSecond), a.TicksPerSecond)
	require.Len(t, a.Channels, 1)
	ch := a.Channels[0]
	assert.Equal(t, "arm", ch.NodeName)
	require.Len(t, ch.PositionKeys, 2)
	assert.InDelta(t, 500, ch.PositionKeys[1].Time, 1e-3)
	assert.Equal(t, geom.Vector3{Z: 3}, ch.PositionKeys[1].Value)
	require.Len(t, ch.RotationKeys, 2)
	assert.Equal(t, geom.Quaternion{Z: 1}, ch.RotationKeys[1].Value)
	assert.InDelta(t, 1000, a.Duration, 1e-3)
}

func TestWriteBinaryRoundTrip(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Writer{Binary: true}.Write(&out, roundTripScene(), nil))
	assert.True(t, bytes.HasPrefix(out.Bytes(), []byte("glTF")))
	assert.True(t, Reader{}.CanRead(out.Bytes()))

	s, err := Reader{}.Read(out.Bytes(), nil)
	require.NoError(t, err)
	checkRoundTrip(t, s)
}

func TestWriteSideCarBuffer(t *testing.T) {
	fs := memFS{}
	var out bytes.Buffer
	err := Writer{}.Write(&out, roundTripScene(), &format.WriteOptions{BaseName: "model", Create: fs.create})
	require.NoError(t, err)
	require.Contains(t, fs, "model.bin")
	assert.Contains(t, out.String(), `"model.bin"`)

	s, err := Reader{}.Read(out.Bytes(), &format.ReadOptions{Open: fs.open})
	require.NoError(t, err)
	checkRoundTrip(t, s)
}

func TestWriteDataURI(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Writer{}.Write(&out, roundTripScene(), nil))
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out.String()), "{"))
	assert.Contains(t, out.String(), "data:application/octet-stream;base64,")

	s, err := Reader{}.Read(out.Bytes(), nil)
	require.NoError(t, err)
	checkRoundTrip(t, s)
}

func TestWritePointsAndLines(t *testing.T) {
	s := scene.New()
	m := scene.NewMesh("wire")
	m.Vertices = []geom.Vector3{{}, {X: 1}, {Y: 1}}
	m.AddFace(0, 1)
	m.AddFace(1, 2)
	m.UpdatePrimitiveTypes()
	cloud := scene.NewMesh("cloud")
	cloud.Vertices = []geom.Vector3{{}, {Z: 1}}
	cloud.UpdatePrimitiveTypes()
	s.RootNode.Meshes = []int{s.AddMesh(m), s.AddMesh(cloud)}

	var out bytes.Buffer
	require.NoError(t, Writer{Binary: true}.Write(&out, s, nil))
	r, err := Reader{}.Read(out.Bytes(), nil)
	require.NoError(t, err)
	require.Len(t, r.Meshes, 2)
	assert.Equal(t, [][]int{{0, 1}, {1, 2}}, faceIndices(r.Meshes[0]))
	assert.Equal(t, scene.PrimitiveLine, r.Meshes[0].PrimitiveTypes)
	assert.Equal(t, [][]int{{0}, {1}}, faceIndices(r.Meshes[1]))
	assert.Equal(t, scene.PrimitivePoint, r.Meshes[1].PrimitiveTypes)
}

func TestWriterIDs(t *testing.T) {
	assert.Equal(t, "glb2", Writer{Binary: true}.ID())
	assert.Equal(t, "glb", Writer{Binary: true}.Extension())
	assert.Equal(t, "gltf2", Writer{}.ID())
	assert.Equal(t, "gltf", Writer{}.Extension())
	assert.Equal(t, []string{"Triangulate", "SortByPrimitiveType"}, Writer{}.Prepare())
	assert.Equal(t, "vrm", Writer{Avatar: true}.ID())
	assert.Equal(t, "vrm", Writer{Avatar: true}.Extension())
}

func TestWriteAvatarRoundTrip(t *testing.T) {
	src := roundTripScene()
	require.NoError(t, src.Metadata.Set("VRM_Title", "Robot"))
	require.NoError(t, src.Metadata.Set("VRM_Author", "modelio"))
	require.NoError(t, src.Metadata.Set("VRM_License", "CC_BY"))
	require.NoError(t, src.FindNode("body").Metadata.Set("HumanBone", "hips"))
	require.NoError(t, src.FindNode("arm").Metadata.Set("HumanBone", "leftUpperArm"))

	var out bytes.Buffer
	require.NoError(t, Writer{Avatar: true}.Write(&out, src, nil))
	assert.True(t, bytes.HasPrefix(out.Bytes(), glbMagic))

	s, err := Reader{}.Read(out.Bytes(), nil)
	require.NoError(t, err)
	for key, want := range map[string]string{"VRM_Title": "Robot", "VRM_Author": "modelio", "VRM_License": "CC_BY"} {
		e, ok := s.Metadata.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, want, e.Str)
	}
	for node, want := range map[string]string{"body": "hips", "arm": "leftUpperArm"} {
		n := s.FindNode(node)
		require.NotNil(t, n, node)
		bone, ok := n.Metadata.Get("HumanBone")
		require.True(t, ok, node)
		assert.Equal(t, want, bone.Str)
	}
}

func TestAvatarExtensionBones(t *testing.T) {
	s := scene.New()
	hips := s.RootNode.AddChild(scene.NewNode("hips"))
	require.NoError(t, hips.Metadata.Set("HumanBone", "hips"))
	s.RootNode.AddChild(scene.NewNode("prop"))
	doc := &gltf.Document{Nodes: []*gltf.Node{{Name: "prop"}, {Name: "hips"}, {Name: "hips"}}}

	ext := avatarExtension(s, doc, zap.NewNop())
	assert.Equal(t, "RootNode", ext.Meta.Title)
	assert.Equal(t, map[int]string{1: "hips"}, ext.BoneNodes())

	vrm.Attach(doc, ext)
	vrm.Attach(doc, ext)
	assert.Equal(t, []string{vrm.ExtensionName}, doc.ExtensionsUsed)
	got, ok := vrm.FromDocument(doc)
	require.True(t, ok)
	assert.Same(t, ext, got)
}
