package scene

import (
	"testing"

	"github.com/binzume/modelio/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScene() *Scene {
	s := New()
	m := NewMesh("tri")
	m.Vertices = []geom.Vector3{{}, {X: 1}, {Y: 1}}
	m.AddFace(0, 1, 2)
	m.UpdatePrimitiveTypes()
	m.MaterialIndex = s.AddMaterial(NewMaterial("mat"))
	idx := s.AddMesh(m)

	a := s.RootNode.AddChild(NewNode("a"))
	a.Transform = *geom.NewTranslateMatrix4(1, 0, 0)
	b := a.AddChild(NewNode("b"))
	b.Transform = *geom.NewScaleMatrix4(2, 2, 2)
	b.Meshes = []int{idx}
	s.RootNode.AddChild(NewNode("c")).Meshes = []int{idx}
	return s
}

func TestWalk(t *testing.T) {
	s := testScene()
	var names []string
	var depths []int
	err := s.Walk(func(n, parent *Node, depth int) error {
		names = append(names, n.Name)
		depths = append(depths, depth)
		if depth == 0 {
			assert.Nil(t, parent)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"RootNode", "a", "b", "c"}, names)
	assert.Equal(t, []int{0, 1, 2, 1}, depths)

	assert.Equal(t, "b", s.FindNode("b").Name)
	assert.Nil(t, s.FindNode("missing"))
}

func TestInstances(t *testing.T) {
	s := testScene()
	inst := s.Instances()
	require.Len(t, inst, 2)
	assert.Equal(t, "b", inst[0].Node.Name)
	p := inst[0].Transform.ApplyTo(&geom.Vector3{X: 1})
	assert.Equal(t, geom.Vector3{X: 3}, *p)
	assert.True(t, inst[1].Transform.IsIdentity())
}

func TestCloneIsIndependent(t *testing.T) {
	s := testScene()
	s.Metadata.SetFloat("unit", 0.01)
	c, err := s.Clone()
	require.NoError(t, err)

	c.Meshes[0].Vertices[1].X = 10
	c.Meshes[0].Faces[0].Indices[0] = 2
	c.Materials[0].SetString(KeyName, "changed")
	c.RootNode.Children[0].Name = "renamed"

	assert.Equal(t, float32(1), s.Meshes[0].Vertices[1].X)
	assert.Equal(t, 0, s.Meshes[0].Faces[0].Indices[0])
	assert.Equal(t, "mat", s.Materials[0].Name())
	assert.Equal(t, "a", s.RootNode.Children[0].Name)
	assert.Equal(t, s.NumVertices(), c.NumVertices())
	e, ok := c.Metadata.Get("unit")
	require.True(t, ok)
	assert.Equal(t, 0.01, e.Float)
}

func TestPrimitiveTypes(t *testing.T) {
	m := NewMesh("m")
	assert.Equal(t, PrimitivePoint, m.DerivedPrimitiveTypes())
	m.AddFace(0, 1)
	m.AddFace(0, 1, 2, 3)
	m.UpdatePrimitiveTypes()
	assert.Equal(t, PrimitiveLine|PrimitivePolygon, m.PrimitiveTypes)
	assert.Equal(t, "line|polygon", m.PrimitiveTypes.String())
	assert.Equal(t, "none", PrimitiveType(0).String())
}

func TestCopyVertex(t *testing.T) {
	src := NewMesh("src")
	src.Vertices = []geom.Vector3{{X: 1}, {X: 2}}
	src.Normals = []geom.Vector3{{Y: 1}, {Z: 1}}
	ch := src.AddTexCoordChannel(2)
	src.TexCoords[ch] = append(src.TexCoords[ch], geom.Vector3{X: 0.5}, geom.Vector3{Y: 0.5})

	dst := src.EmptyCopy()
	assert.Equal(t, 0, dst.CopyVertex(src, 1))
	assert.Equal(t, geom.Vector3{X: 2}, dst.Vertices[0])
	assert.Equal(t, geom.Vector3{Z: 1}, dst.Normals[0])
	assert.Equal(t, geom.Vector3{Y: 0.5}, dst.TexCoords[0][0])
	assert.Equal(t, []int{2}, dst.UVComponents)
	assert.Equal(t, 1, dst.NumUVChannels())
}

func TestTransformMesh(t *testing.T) {
	m := NewMesh("m")
	m.Vertices = []geom.Vector3{{}, {X: 1}, {Y: 1}}
	m.Normals = []geom.Vector3{{Z: 1}, {Z: 1}, {Z: 1}}
	m.AddFace(0, 1, 2)

	mirrored := TransformMesh(m, geom.NewScaleMatrix4(1, 1, -1))
	assert.Equal(t, []int{2, 1, 0}, mirrored.Faces[0].Indices)
	assert.Equal(t, geom.Vector3{Z: -1}, mirrored.Normals[0])
	assert.Equal(t, []int{0, 1, 2}, m.Faces[0].Indices)

	moved := TransformMesh(m, geom.NewTranslateMatrix4(0, 3, 0))
	assert.Equal(t, geom.Vector3{X: 1, Y: 3}, moved.Vertices[1])
	assert.Equal(t, geom.Vector3{Z: 1}, moved.Normals[1])
}

func TestMaterialProperties(t *testing.T) {
	m := NewMaterial("skin")
	m.SetColor(KeyColorDiffuse, geom.Vector4{X: 1, Y: 0.5, Z: 0.25, W: 1})
	m.SetFloat(KeyOpacity, 0.5)
	m.SetBool(KeyTwoSided, true)
	assert.Equal(t, "skin", m.Name())

	c, ok := m.GetColor(KeyColorDiffuse)
	require.True(t, ok)
	assert.Equal(t, float32(0.5), c.Y)
	op, ok := m.GetFloat(KeyOpacity)
	require.True(t, ok)
	assert.Equal(t, float32(0.5), op)
	assert.True(t, m.GetBool(KeyTwoSided))
	_, ok = m.GetFloat(KeyShininess)
	assert.False(t, ok)

	m.SetFloat(KeyOpacity, 1)
	op, _ = m.GetFloat(KeyOpacity)
	assert.Equal(t, float32(1), op)

	assert.Equal(t, 0, m.AddTexture(TextureRef{Semantic: TextureDiffuse, Path: "a.png"}))
	assert.Equal(t, 1, m.AddTexture(TextureRef{Semantic: TextureDiffuse, Path: "b.png", UVIndex: 1}))
	assert.Equal(t, 0, m.AddTexture(TextureRef{Semantic: TextureNormals, Path: "n.png"}))
	tex, ok := m.Texture(TextureDiffuse, 1)
	require.True(t, ok)
	assert.Equal(t, TextureRef{Semantic: TextureDiffuse, Index: 1, Path: "b.png", UVIndex: 1}, tex)
	assert.Len(t, m.AllTextures(), 3)

	m.SetTexturePath(TextureDiffuse, 0, "*0")
	tex, _ = m.Texture(TextureDiffuse, 0)
	assert.Equal(t, "*0", tex.Path)

	m.Remove(KeyOpacity, TextureNone, 0)
	_, ok = m.GetFloat(KeyOpacity)
	assert.False(t, ok)
}

func TestMetadata(t *testing.T) {
	var md Metadata
	require.NoError(t, md.Set("a", 1))
	require.NoError(t, md.Set("b", "x"))
	require.NoError(t, md.Set("a", true))
	assert.Error(t, md.Set("c", struct{}{}))
	assert.Equal(t, []string{"a", "b"}, md.Keys())
	e, ok := md.Get("a")
	require.True(t, ok)
	assert.Equal(t, true, e.Value())
}

func TestMetadataTypedSetters(t *testing.T) {
	var md Metadata
	md.SetString("title", "robot")
	md.SetInt("bone", 7)
	md.SetFloat("scale", 2.5)
	md.SetBool("visible", false)
	md.SetString("bone", "hips")
	assert.Equal(t, []string{"title", "bone", "scale", "visible"}, md.Keys())

	for key, want := range map[string]interface{}{"title": "robot", "bone": "hips", "scale": 2.5, "visible": false} {
		e, ok := md.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, want, e.Value(), key)
	}
	e, _ := md.Get("bone")
	assert.Equal(t, MetaString, e.Type)
}

func TestTextureToken(t *testing.T) {
	assert.Equal(t, "*3", TextureToken(3))
	i, ok := ParseTextureToken("*12")
	assert.True(t, ok)
	assert.Equal(t, 12, i)
	for _, s := range []string{"12", "*", "*-1", "*x", "tex.png"} {
		_, ok := ParseTextureToken(s)
		assert.False(t, ok, s)
	}

	s := New()
	s.AddTexture(&EmbeddedTexture{FormatHint: "png"})
	_, ok = s.Texture("*0")
	assert.True(t, ok)
	_, ok = s.Texture("*1")
	assert.False(t, ok)
}

func TestAnimationDuration(t *testing.T) {
	a := &Animation{Name: "walk", TicksPerSecond: 30}
	a.Channel("hip").PositionKeys = []VectorKey{{Time: 0}, {Time: 10}}
	a.Channel("knee").RotationKeys = []QuatKey{{Time: 24, Value: geom.Quaternion{W: 1}}}
	assert.Same(t, a.Channel("hip"), a.Channels[0])
	a.UpdateDuration()
	assert.Equal(t, 24.0, a.Duration)
}
