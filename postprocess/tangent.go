package postprocess

import (
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

type tangentStep struct{}

func (tangentStep) Name() string { return "CalcTangentSpace" }

func (tangentStep) Requires() []Flags { return []Flags{GenSmoothNormals} }

func (tangentStep) Apply(s *scene.Scene, cfg *Config) error {
	for i, m := range s.Meshes {
		if !m.HasTextureCoords(0) || m.PrimitiveTypes&(scene.PrimitiveTriangle|scene.PrimitivePolygon) == 0 {
			continue
		}
		if !m.HasNormals() {
			cfg.log().Warn("mesh has no normals, skipping tangent space", zap.Int("mesh", i))
			continue
		}
		calcTangents(m)
	}
	return nil
}

func calcTangents(m *scene.Mesh) {
	tan := make([]geom.Vector3, len(m.Vertices))
	bitan := make([]geom.Vector3, len(m.Vertices))
	uv := m.TexCoords[0]
	for _, f := range m.Faces {
		for k := 2; k < len(f.Indices); k++ {
			i0, i1, i2 := f.Indices[0], f.Indices[k-1], f.Indices[k]
			e1 := m.Vertices[i1].Sub(&m.Vertices[i0])
			e2 := m.Vertices[i2].Sub(&m.Vertices[i0])
			du1, dv1 := uv[i1].X-uv[i0].X, uv[i1].Y-uv[i0].Y
			du2, dv2 := uv[i2].X-uv[i0].X, uv[i2].Y-uv[i0].Y
			det := du1*dv2 - du2*dv1
			if det == 0 {
				continue
			}
			r := 1 / det
			t := e1.Scale(dv2).Sub(e2.Scale(dv1)).Scale(r)
			b := e2.Scale(du1).Sub(e1.Scale(du2)).Scale(r)
			for _, v := range []int{i0, i1, i2} {
				tan[v] = *tan[v].Add(t)
				bitan[v] = *bitan[v].Add(b)
			}
		}
	}
	m.Tangents = make([]geom.Vector3, len(m.Vertices))
	m.Bitangents = make([]geom.Vector3, len(m.Vertices))
	for i := range m.Vertices {
		t, b := tangentFrame(&m.Normals[i], &tan[i], &bitan[i])
		m.Tangents[i] = *t
		m.Bitangents[i] = *b
	}
}

// parallelEpsilon is the squared fraction of the accumulated tangent that
// must remain after removing its normal component. Less than that is
// rounding noise with no usable direction.
const parallelEpsilon = 1e-8

// tangentFrame orthonormalizes the accumulated tangent against n. A
// tangent that vanishes or lines up with n is replaced by an arbitrary
// perpendicular.
func tangentFrame(normal, tan, bitan *geom.Vector3) (*geom.Vector3, *geom.Vector3) {
	if !(normal.LenSqr() > 0) {
		return &geom.Vector3{X: 1}, &geom.Vector3{Y: 1}
	}
	n := *normal
	n.Normalize()
	t := tan.Sub(n.Scale(n.Dot(tan)))
	if t.LenSqr() <= parallelEpsilon*tan.LenSqr() {
		t = perpendicular(&n)
	}
	t.Normalize()
	t = t.Sub(n.Scale(n.Dot(t))).Normalize()
	b := n.Cross(t)
	if b.LenSqr() <= parallelEpsilon {
		t = perpendicular(&n).Normalize()
		b = n.Cross(t)
	}
	b.Normalize()
	if b.Dot(bitan) < 0 {
		b = b.Scale(-1)
	}
	return t, b
}

func perpendicular(n *geom.Vector3) *geom.Vector3 {
	axis := &geom.Vector3{X: 1}
	if n.X > 0.9 || n.X < -0.9 {
		axis = &geom.Vector3{Y: 1}
	}
	return n.Cross(axis)
}
