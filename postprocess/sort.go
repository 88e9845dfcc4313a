package postprocess

import (
	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/scene"
)

type sortByTypeStep struct{ baseStep }

func (sortByTypeStep) Name() string { return "SortByPrimitiveType" }

var primitiveOrder = []scene.PrimitiveType{
	scene.PrimitivePoint, scene.PrimitiveLine, scene.PrimitiveTriangle, scene.PrimitivePolygon,
}

// Apply splits meshes with mixed primitive types into one mesh per type
// and drops the types listed in RemovePrimitives.
func (sortByTypeStep) Apply(s *scene.Scene, cfg *Config) error {
	remap := make([][]int, len(s.Meshes))
	var meshes []*scene.Mesh
	for i, m := range s.Meshes {
		for _, part := range splitByType(m, cfg.RemovePrimitives) {
			remap[i] = append(remap[i], len(meshes))
			meshes = append(meshes, part)
		}
	}
	if len(meshes) == 0 && len(s.Meshes) > 0 {
		return format.Validation("SortByPrimitiveType", "every primitive type was removed")
	}
	_ = s.Walk(func(n, _ *scene.Node, _ int) error {
		var refs []int
		for _, m := range n.Meshes {
			refs = append(refs, remap[m]...)
		}
		n.Meshes = refs
		return nil
	})
	s.Meshes = meshes
	return nil
}

func isSingleType(t scene.PrimitiveType) bool {
	return t != 0 && t&(t-1) == 0
}

func splitByType(m *scene.Mesh, remove scene.PrimitiveType) []*scene.Mesh {
	if isSingleType(m.PrimitiveTypes) {
		if m.PrimitiveTypes&remove != 0 {
			return nil
		}
		return []*scene.Mesh{m}
	}
	var parts []*scene.Mesh
	for _, t := range primitiveOrder {
		if m.PrimitiveTypes&t == 0 || remove&t != 0 {
			continue
		}
		part := m.EmptyCopy()
		remap := map[int]int{}
		for _, f := range m.Faces {
			if scene.PrimitiveTypeOf(len(f.Indices)) != t {
				continue
			}
			idx := make([]int, len(f.Indices))
			for k, v := range f.Indices {
				nv, ok := remap[v]
				if !ok {
					nv = part.CopyVertex(m, v)
					remap[v] = nv
				}
				idx[k] = nv
			}
			part.Faces = append(part.Faces, scene.Face{Indices: idx})
		}
		part.UpdatePrimitiveTypes()
		parts = append(parts, part)
	}
	return parts
}
