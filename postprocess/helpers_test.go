package postprocess

import (
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
)

// cube corner i is (bit 2, bit 1, bit 0)
func corner(i int) geom.Vector3 {
	return geom.Vector3{X: float32(i >> 2 & 1), Y: float32(i >> 1 & 1), Z: float32(i & 1)}
}

// outward facing, counter-clockwise
var cubeQuads = [][4]int{{0, 1, 3, 2}, {4, 6, 7, 5}, {0, 4, 5, 1}, {2, 3, 7, 6}, {0, 2, 6, 4}, {1, 5, 7, 3}}

var quadUVs = [4]geom.Vector3{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}

func sharedCube() *scene.Mesh {
	m := scene.NewMesh("shared")
	for i := 0; i < 8; i++ {
		m.Vertices = append(m.Vertices, corner(i))
	}
	for _, q := range cubeQuads {
		m.AddFace(q[0], q[1], q[2], q[3])
	}
	m.UpdatePrimitiveTypes()
	return m
}

// splitCube has four vertices per side with UVs.
func splitCube() *scene.Mesh {
	m := scene.NewMesh("split")
	ch := m.AddTexCoordChannel(2)
	for _, q := range cubeQuads {
		base := len(m.Vertices)
		for k, c := range q {
			m.Vertices = append(m.Vertices, corner(c))
			m.TexCoords[ch] = append(m.TexCoords[ch], quadUVs[k])
		}
		m.AddFace(base, base+1, base+2, base+3)
	}
	m.UpdatePrimitiveTypes()
	return m
}

func mixedMesh() *scene.Mesh {
	m := scene.NewMesh("mixed")
	m.Vertices = []geom.Vector3{{}, {X: 1}, {Y: 1}, {X: 2}, {Y: 3}}
	m.Colors = [][]geom.Vector4{{{X: 1, W: 1}, {Y: 1, W: 1}, {Z: 1, W: 1}, {W: 1}, {W: 1}}}
	m.AddFace(0, 1, 2)
	m.AddFace(1, 3)
	m.AddFace(4)
	m.UpdatePrimitiveTypes()
	return m
}

func testScene() *scene.Scene {
	s := scene.New()
	red := geom.Vector4{X: 1, W: 1}
	a := scene.NewMaterial("a")
	a.SetColor(scene.KeyColorDiffuse, red)
	b := scene.NewMaterial("b")
	b.SetColor(scene.KeyColorDiffuse, red)
	unused := scene.NewMaterial("unused")
	s.AddMaterial(a)
	s.AddMaterial(b)
	s.AddMaterial(unused)

	cube := splitCube()
	cube.MaterialIndex = 0
	mixed := mixedMesh()
	mixed.MaterialIndex = 1

	body := s.RootNode.AddChild(scene.NewNode("body"))
	body.Transform = *geom.NewTranslateMatrix4(0, 1, 0)
	body.Meshes = []int{s.AddMesh(cube)}
	arm := body.AddChild(scene.NewNode("arm"))
	arm.Transform = *geom.NewTranslateMatrix4(0, 0, 2)
	arm.Meshes = []int{s.AddMesh(mixed)}

	anim := &scene.Animation{Name: "wave", TicksPerSecond: 30}
	ch := anim.Channel("arm")
	ch.PositionKeys = []scene.VectorKey{{Time: 0, Value: geom.Vector3{Z: 2}}, {Time: 10, Value: geom.Vector3{Z: 3}}}
	ch.RotationKeys = []scene.QuatKey{{Time: 0, Value: geom.Quaternion{X: 0.1, Y: 0.2, Z: 0.3, W: 0.9}}}
	anim.UpdateDuration()
	s.Animations = append(s.Animations, anim)
	return s
}
