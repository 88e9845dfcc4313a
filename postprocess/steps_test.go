package postprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleMeshScene(m *scene.Mesh) *scene.Scene {
	s := scene.New()
	s.RootNode.Meshes = []int{s.AddMesh(m)}
	return s
}

func TestTriangulateIsIdempotent(t *testing.T) {
	s := singleMeshScene(splitCube())
	require.NoError(t, Apply(s, Triangulate, nil))
	m := s.Meshes[0]
	require.Len(t, m.Faces, 12)
	assert.Equal(t, scene.PrimitiveTriangle, m.PrimitiveTypes)

	var once [][]int
	for _, f := range m.Faces {
		once = append(once, append([]int(nil), f.Indices...))
	}
	require.NoError(t, Apply(s, Triangulate, nil))
	require.Len(t, m.Faces, 12)
	for i, f := range m.Faces {
		assert.Equal(t, once[i], f.Indices)
	}
}

func TestTriangulateKeepsWinding(t *testing.T) {
	src := sharedCube()
	m := sharedCube()
	TriangulateMesh(m)
	require.Len(t, m.Faces, 12)
	for i, f := range m.Faces {
		quad := faceNormal(src, src.Faces[i/2])
		assert.Greater(t, faceNormal(m, f).Dot(quad), float32(0), "triangle %d", i)
	}
}

func TestTriangulateConcave(t *testing.T) {
	m := scene.NewMesh("L")
	m.Vertices = []geom.Vector3{{}, {X: 2}, {X: 2, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 2}, {Y: 2}}
	m.AddFace(0, 1, 2, 3, 4, 5)
	m.UpdatePrimitiveTypes()
	TriangulateMesh(m)
	require.Len(t, m.Faces, 4)
	area := float32(0)
	for _, f := range m.Faces {
		n := faceNormal(m, f)
		assert.Greater(t, n.Z, float32(0))
		area += n.Len() / 2
	}
	assert.InDelta(t, 3, area, 1e-5)
}

func TestJoinIdenticalVertices(t *testing.T) {
	m := splitCube()
	m.TexCoords, m.UVComponents = nil, nil
	joined := JoinVertices(m, 0)
	assert.Len(t, joined.Vertices, 8)
	require.Len(t, joined.Faces, 6)
	for i, f := range joined.Faces {
		for k, idx := range f.Indices {
			assert.Equal(t, m.Vertices[m.Faces[i].Indices[k]], joined.Vertices[idx])
		}
	}

	// UVs differ per side, so fewer vertices merge
	withUV := JoinVertices(splitCube(), 0)
	assert.Greater(t, len(withUV.Vertices), 8)
	assert.Less(t, len(withUV.Vertices), 24)
}

func TestJoinEpsilon(t *testing.T) {
	m := scene.NewMesh("m")
	m.Vertices = []geom.Vector3{{}, {X: 1}, {Y: 1}, {X: 1e-6}}
	m.AddFace(0, 1, 2)
	m.AddFace(3, 2, 1)
	m.UpdatePrimitiveTypes()

	assert.Len(t, JoinVertices(m, 0).Vertices, 4)
	joined := JoinVertices(m, 1e-4)
	assert.Len(t, joined.Vertices, 3)
	assert.Equal(t, []int{0, 2, 1}, joined.Faces[1].Indices)
}

func TestGenNormalsFlat(t *testing.T) {
	s := singleMeshScene(sharedCube())
	require.NoError(t, Apply(s, GenNormals, nil))
	m := s.Meshes[0]
	require.Len(t, m.Vertices, 24)
	require.Len(t, m.Normals, 24)
	assert.Equal(t, geom.Vector3{X: -1}, m.Normals[m.Faces[0].Indices[0]])
	assert.Equal(t, geom.Vector3{Z: 1}, m.Normals[m.Faces[5].Indices[2]])
}

func TestGenSmoothNormals(t *testing.T) {
	s := singleMeshScene(sharedCube())
	require.NoError(t, Apply(s, GenSmoothNormals, nil))
	m := s.Meshes[0]
	require.Len(t, m.Normals, 8)
	inv := 1 / math32.Sqrt(3)
	n := m.Normals[7]
	assert.InDelta(t, inv, n.X, 1e-5)
	assert.InDelta(t, inv, n.Y, 1e-5)
	assert.InDelta(t, inv, n.Z, 1e-5)
	assert.InDelta(t, -inv, m.Normals[0].X, 1e-5)
}

func TestSmoothingAngle(t *testing.T) {
	m := splitCube()
	smoothNormals(m, 80)
	assert.Equal(t, geom.Vector3{X: -1}, m.Normals[0])

	m = splitCube()
	smoothNormals(m, 175)
	assert.InDelta(t, -1/math32.Sqrt(3), m.Normals[0].X, 1e-5)
}

func TestNormalsAreNotOverwritten(t *testing.T) {
	m := sharedCube()
	m.Normals = make([]geom.Vector3, 8)
	for i := range m.Normals {
		m.Normals[i] = geom.Vector3{Y: 1}
	}
	s := singleMeshScene(m)
	require.NoError(t, Apply(s, GenSmoothNormals, nil))
	assert.Equal(t, geom.Vector3{Y: 1}, s.Meshes[0].Normals[0])

	require.NoError(t, Apply(s, GenSmoothNormals|ForceGenNormals, nil))
	assert.NotEqual(t, geom.Vector3{Y: 1}, s.Meshes[0].Normals[0])
}

func TestNormalsSkipLinesAndPoints(t *testing.T) {
	m := scene.NewMesh("lines")
	m.Vertices = []geom.Vector3{{}, {X: 1}}
	m.AddFace(0, 1)
	m.UpdatePrimitiveTypes()
	s := singleMeshScene(m)
	require.NoError(t, Apply(s, GenNormals, nil))
	assert.False(t, s.Meshes[0].HasNormals())
}

func TestCalcTangentSpace(t *testing.T) {
	s := singleMeshScene(splitCube())
	require.NoError(t, Apply(s, CalcTangentSpace|ValidateDataStructure, nil))
	m := s.Meshes[0]
	require.True(t, m.HasTangentsAndBitangents())
	for i := range m.Vertices {
		n, tan, b := m.Normals[i], m.Tangents[i], m.Bitangents[i]
		assert.InDelta(t, 0, n.Dot(&tan), 1e-5)
		assert.InDelta(t, 1, tan.Len(), 1e-5)
		assert.InDelta(t, 1, b.Len(), 1e-5)
	}
}

func TestCalcTangentSpaceDegenerateCorners(t *testing.T) {
	diag := geom.Vector3{X: 1, Y: 1, Z: 1}
	diag.Normalize()
	tests := []struct {
		name     string
		vertices []geom.Vector3
		uvs      []geom.Vector3
		normal   geom.Vector3
		faces    [][]int
	}{
		{
			// mirrored U: the two tangents cancel at the shared edge
			name:     "cancel",
			vertices: []geom.Vector3{{}, {X: 1}, {Y: 1}, {X: -1}},
			uvs:      []geom.Vector3{{}, {X: 1}, {Y: 1}, {X: 1}},
			normal:   geom.Vector3{Z: 1},
			faces:    [][]int{{0, 1, 2}, {0, 2, 3}},
		},
		{
			// the tangent points along the normal
			name:     "parallel",
			vertices: []geom.Vector3{{}, {X: 1, Y: 1, Z: 1}, {Z: 1}},
			uvs:      []geom.Vector3{{}, {X: 1}, {Y: 1}},
			normal:   diag,
			faces:    [][]int{{0, 1, 2}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := scene.NewMesh(tt.name)
			ch := m.AddTexCoordChannel(2)
			m.Vertices = tt.vertices
			m.TexCoords[ch] = tt.uvs
			for range tt.vertices {
				m.Normals = append(m.Normals, tt.normal)
			}
			for _, f := range tt.faces {
				m.AddFace(f...)
			}
			m.UpdatePrimitiveTypes()
			s := singleMeshScene(m)
			require.NoError(t, Apply(s, CalcTangentSpace|ValidateDataStructure, nil))

			m = s.Meshes[0]
			for i := range m.Vertices {
				n, tan, b := m.Normals[i], m.Tangents[i], m.Bitangents[i]
				assert.InDelta(t, 1, tan.Len(), 1e-5, "vertex %d", i)
				assert.InDelta(t, 1, b.Len(), 1e-5, "vertex %d", i)
				assert.InDelta(t, 0, n.Dot(&tan), 1e-5, "vertex %d", i)
				assert.InDelta(t, 0, n.Dot(&b), 1e-5, "vertex %d", i)
				assert.InDelta(t, 0, tan.Dot(&b), 1e-5, "vertex %d", i)
			}
		})
	}
}

func TestPreTransformVertices(t *testing.T) {
	s := testScene()
	require.NoError(t, Apply(s, PreTransformVertices, nil))
	assert.Empty(t, s.RootNode.Children)
	assert.Equal(t, []int{0, 1}, s.RootNode.Meshes)
	assert.Empty(t, s.Animations)
	assert.Equal(t, geom.Vector3{Y: 1}, s.Meshes[0].Vertices[0])
	assert.Equal(t, geom.Vector3{X: 1, Y: 1, Z: 2}, s.Meshes[1].Vertices[1])
}

func TestPreTransformDuplicatesSharedMesh(t *testing.T) {
	s := singleMeshScene(sharedCube())
	n := s.RootNode.AddChild(scene.NewNode("copy"))
	n.Transform = *geom.NewScaleMatrix4(-1, 1, 1)
	n.Meshes = []int{0}
	require.NoError(t, Apply(s, PreTransformVertices, nil))
	require.Len(t, s.Meshes, 2)
	assert.Equal(t, geom.Vector3{X: -1, Y: 1, Z: 1}, s.Meshes[1].Vertices[7])
	// mirrored copies keep facing outwards
	assert.Equal(t, []int{2, 3, 1, 0}, s.Meshes[1].Faces[0].Indices)
}

func TestFlipSteps(t *testing.T) {
	s := testScene()
	require.NoError(t, Apply(s, FlipUVs|FlipWindingOrder, nil))
	m := s.Meshes[0]
	assert.Equal(t, geom.Vector3{X: 1, Y: 1}, m.TexCoords[0][1])
	assert.Equal(t, geom.Vector3{X: 1}, m.TexCoords[0][2])
	assert.Equal(t, []int{3, 2, 1, 0}, m.Faces[0].Indices)
}

func TestMakeLeftHanded(t *testing.T) {
	s := testScene()
	require.NoError(t, Apply(s, MakeLeftHanded, nil))
	assert.Equal(t, geom.Vector3{Z: -1}, s.Meshes[0].Vertices[1])
	arm := s.FindNode("arm")
	assert.Equal(t, float32(-2), arm.Transform[14])
	ch := s.Animations[0].Channels[0]
	assert.Equal(t, geom.Vector3{Z: -3}, ch.PositionKeys[1].Value)
	assert.Equal(t, geom.Quaternion{X: -0.1, Y: -0.2, Z: 0.3, W: 0.9}, ch.RotationKeys[0].Value)
}

func TestMirrorZMatchesConjugation(t *testing.T) {
	m := geom.NewTRSMatrix4(geom.NewVector3(1, 2, 3), geom.NewQuaternionFromAxisAngle(geom.NewVector3(1, 1, 0).Normalize(), 0.7), geom.NewVector3(1, 2, 3))
	s := geom.NewScaleMatrix4(1, 1, -1)
	want := s.Mul(m).Mul(s)
	got := *m
	MirrorZ(&got)
	for i := range got {
		assert.InDelta(t, want[i], got[i], 1e-6, "element %d", i)
	}
}

func TestRemoveRedundantMaterials(t *testing.T) {
	s := testScene()
	require.NoError(t, Apply(s, RemoveRedundantMaterials, nil))
	require.Len(t, s.Materials, 1)
	assert.Equal(t, "a", s.Materials[0].Name())
	assert.Equal(t, 0, s.Meshes[0].MaterialIndex)
	assert.Equal(t, 0, s.Meshes[1].MaterialIndex)
}

func TestFindDegenerates(t *testing.T) {
	build := func() *scene.Scene {
		m := scene.NewMesh("m")
		m.Vertices = []geom.Vector3{{}, {X: 1}, {Y: 1}, {X: 2}, {X: 1}}
		m.AddFace(0, 1, 2)
		m.AddFace(0, 1, 4)
		m.AddFace(0, 1, 3)
		m.UpdatePrimitiveTypes()
		return singleMeshScene(m)
	}

	s := build()
	require.NoError(t, Apply(s, FindDegenerates, nil))
	m := s.Meshes[0]
	require.Len(t, m.Faces, 3)
	assert.Equal(t, []int{0, 1}, m.Faces[1].Indices)
	assert.Equal(t, scene.PrimitiveTriangle|scene.PrimitiveLine, m.PrimitiveTypes)

	s = build()
	cfg := DefaultConfig()
	cfg.RemoveDegenerates = true
	require.NoError(t, Apply(s, FindDegenerates, cfg))
	require.Len(t, s.Meshes[0].Faces, 1)
	assert.Equal(t, []int{0, 1, 2}, s.Meshes[0].Faces[0].Indices)
}

func TestFindDegeneratesDropsEmptyMeshes(t *testing.T) {
	s := testScene()
	flat := scene.NewMesh("flat")
	flat.Vertices = []geom.Vector3{{}, {}, {}}
	flat.AddFace(0, 1, 2)
	flat.UpdatePrimitiveTypes()
	s.RootNode.Meshes = []int{s.AddMesh(flat), 0}
	cfg := DefaultConfig()
	cfg.RemoveDegenerates = true
	require.NoError(t, Apply(s, FindDegenerates|ValidateDataStructure, cfg))
	assert.Len(t, s.Meshes, 2)
	assert.Equal(t, []int{0}, s.RootNode.Meshes)
}

func TestSortByPrimitiveType(t *testing.T) {
	s := testScene()
	cfg := DefaultConfig()
	require.NoError(t, Apply(s, SortByPrimitiveType, cfg))
	require.Len(t, s.Meshes, 4)
	assert.Equal(t, []int{1, 2, 3}, s.FindNode("arm").Meshes)
	point, line, tri := s.Meshes[1], s.Meshes[2], s.Meshes[3]
	assert.Equal(t, scene.PrimitivePoint, point.PrimitiveTypes)
	assert.Equal(t, []geom.Vector3{{Y: 3}}, point.Vertices)
	assert.Equal(t, scene.PrimitiveLine, line.PrimitiveTypes)
	assert.Len(t, line.Vertices, 2)
	assert.Equal(t, scene.PrimitiveTriangle, tri.PrimitiveTypes)
	assert.Equal(t, []int{0, 1, 2}, tri.Faces[0].Indices)
	assert.Equal(t, geom.Vector4{Z: 1, W: 1}, tri.Colors[0][2])
	assert.Equal(t, 1, tri.MaterialIndex)

	s = testScene()
	cfg.RemovePrimitives = scene.PrimitivePoint | scene.PrimitiveLine
	require.NoError(t, Apply(s, SortByPrimitiveType|ValidateDataStructure, cfg))
	require.Len(t, s.Meshes, 2)
	assert.Equal(t, []int{1}, s.FindNode("arm").Meshes)
}

func pngImage(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func TestEmbedTextures(t *testing.T) {
	files := map[string][]byte{"tex/wall.png": pngImage(64, 32)}
	open := func(name string) (io.ReadCloser, error) {
		if b, ok := files[name]; ok {
			return io.NopCloser(bytes.NewReader(b)), nil
		}
		return nil, fmt.Errorf("%s: not found", name)
	}
	s := testScene()
	s.Materials[0].AddTexture(scene.TextureRef{Semantic: scene.TextureDiffuse, Path: "tex/wall.png"})
	s.Materials[1].AddTexture(scene.TextureRef{Semantic: scene.TextureDiffuse, Path: "tex/wall.png"})
	s.Materials[1].AddTexture(scene.TextureRef{Semantic: scene.TextureNormals, Path: "missing.png"})

	cfg := DefaultConfig()
	cfg.Open = open
	cfg.MaxTextureSize = 16
	require.NoError(t, Apply(s, EmbedTextures|ValidateDataStructure, cfg))

	require.Len(t, s.Textures, 1)
	tex := s.Textures[0]
	assert.Equal(t, "png", tex.FormatHint)
	assert.Equal(t, "wall.png", tex.Filename)
	assert.Equal(t, 16, tex.Width)
	assert.Equal(t, 8, tex.Height)
	c, err := png.DecodeConfig(bytes.NewReader(tex.Data))
	require.NoError(t, err)
	assert.Equal(t, 16, c.Width)

	ref, _ := s.Materials[0].Texture(scene.TextureDiffuse, 0)
	assert.Equal(t, "*0", ref.Path)
	ref, _ = s.Materials[1].Texture(scene.TextureDiffuse, 0)
	assert.Equal(t, "*0", ref.Path)
	ref, _ = s.Materials[1].Texture(scene.TextureNormals, 0)
	assert.Equal(t, "missing.png", ref.Path)
}

func TestEncodeTextureKeepsSmallPNG(t *testing.T) {
	data := pngImage(8, 8)
	tex, err := EncodeTexture("a.png", data, 0)
	require.NoError(t, err)
	assert.Equal(t, data, tex.Data)
	assert.Equal(t, 8, tex.Width)
	assert.Equal(t, "png", FormatHint("noext", data))
	assert.Equal(t, "tga", FormatHint("a.TGA", []byte("not an image")))
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		modify func(s *scene.Scene)
		msg    string
	}{
		{"node mesh index", func(s *scene.Scene) { s.RootNode.Meshes = []int{5} }, "mesh index 5 out of range"},
		{"shared node", func(s *scene.Scene) { s.RootNode.AddChild(s.FindNode("arm")) }, `node "arm" appears twice`},
		{"normals length", func(s *scene.Scene) { s.Meshes[0].Normals = make([]geom.Vector3, 3) }, "3 normals for 24 vertices"},
		{"uv components", func(s *scene.Scene) { s.Meshes[0].UVComponents[0] = 4 }, "invalid component count for UV channel 0"},
		{"empty face", func(s *scene.Scene) { s.Meshes[1].Faces[2].Indices = nil }, "face 2 is empty"},
		{"primitive types", func(s *scene.Scene) { s.Meshes[1].PrimitiveTypes = scene.PrimitiveTriangle }, "do not match faces"},
		{"material index", func(s *scene.Scene) { s.Meshes[0].MaterialIndex = 7 }, "material index 7 out of range"},
		{"texture token", func(s *scene.Scene) {
			s.Materials[0].AddTexture(scene.TextureRef{Semantic: scene.TextureDiffuse, Path: "*2"})
		}, "refers to *2"},
		{"empty texture", func(s *scene.Scene) { s.AddTexture(&scene.EmbeddedTexture{}) }, "embedded texture 0 has no data"},
		{"no vertices", func(s *scene.Scene) { s.Meshes[1].Vertices = nil; s.Meshes[1].Colors = nil }, "has no vertices"},
		{"unordered keys", func(s *scene.Scene) { s.Animations[0].Channels[0].PositionKeys[1].Time = -1 }, "not ordered by time"},
		{"no meshes", func(s *scene.Scene) {
			s.Meshes = nil
			s.RootNode.Children = nil
		}, "no meshes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testScene()
			tt.modify(s)
			err := Validate(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
			assert.Zero(t, s.Flags&scene.FlagValidated)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	s := testScene()
	s.Animations[0].Channel("ghost")
	require.NoError(t, Validate(s))
	assert.NotZero(t, s.Flags&scene.FlagValidationWarning)

	s = scene.New()
	s.Flags |= scene.FlagIncomplete
	require.NoError(t, Validate(s))
}
