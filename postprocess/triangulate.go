package postprocess

import (
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
)

type triangulateStep struct{ baseStep }

func (triangulateStep) Name() string { return "Triangulate" }

func (triangulateStep) Apply(s *scene.Scene, cfg *Config) error {
	for _, m := range s.Meshes {
		if m.PrimitiveTypes&scene.PrimitivePolygon == 0 {
			continue
		}
		TriangulateMesh(m)
	}
	return nil
}

// TriangulateMesh splits polygons into triangles, keeping winding and face order.
func TriangulateMesh(m *scene.Mesh) {
	faces := make([]scene.Face, 0, len(m.Faces))
	poly := make([]*geom.Vector3, 0, 8)
	for _, f := range m.Faces {
		if len(f.Indices) <= 3 {
			faces = append(faces, f)
			continue
		}
		poly = poly[:0]
		for _, idx := range f.Indices {
			poly = append(poly, &m.Vertices[idx])
		}
		for _, t := range geom.Triangulate(poly) {
			faces = append(faces, scene.Face{Indices: []int{f.Indices[t[0]], f.Indices[t[1]], f.Indices[t[2]]}})
		}
	}
	m.Faces = faces
	m.UpdatePrimitiveTypes()
}
