package postprocess

import (
	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

type degeneratesStep struct{ baseStep }

func (degeneratesStep) Name() string { return "FindDegenerates" }

func (degeneratesStep) Apply(s *scene.Scene, cfg *Config) error {
	removed := 0
	keep := make([]bool, len(s.Meshes))
	for i, m := range s.Meshes {
		hadFaces := len(m.Faces) > 0
		removed += collapseDegenerates(m, cfg.RemoveDegenerates)
		keep[i] = !hadFaces || len(m.Faces) > 0
	}
	if removed > 0 {
		cfg.log().Debug("degenerate faces", zap.Int("count", removed), zap.Bool("removed", cfg.RemoveDegenerates))
	}
	return dropMeshes(s, keep, "FindDegenerates")
}

// collapseDegenerates removes repeated corners from every face. Faces that
// shrink or have no area are dropped when remove is set.
func collapseDegenerates(m *scene.Mesh, remove bool) int {
	count := 0
	faces := m.Faces[:0]
	for _, f := range m.Faces {
		idx := make([]int, 0, len(f.Indices))
		for k, v := range f.Indices {
			if len(idx) > 0 && m.Vertices[idx[len(idx)-1]] == m.Vertices[v] {
				continue
			}
			if k == len(f.Indices)-1 && len(idx) > 1 && m.Vertices[idx[0]] == m.Vertices[v] {
				continue
			}
			idx = append(idx, v)
		}
		degenerate := len(idx) < len(f.Indices)
		if !degenerate && len(idx) >= 3 {
			degenerate = faceNormal(m, scene.Face{Indices: idx}).LenSqr() == 0
		}
		if degenerate {
			count++
			if remove {
				continue
			}
		}
		faces = append(faces, scene.Face{Indices: idx})
	}
	m.Faces = faces
	m.UpdatePrimitiveTypes()
	return count
}

// dropMeshes removes meshes whose keep entry is false and remaps node
// references.
func dropMeshes(s *scene.Scene, keep []bool, step string) error {
	remap := make([]int, len(s.Meshes))
	var meshes []*scene.Mesh
	for i, m := range s.Meshes {
		remap[i] = -1
		if keep[i] {
			remap[i] = len(meshes)
			meshes = append(meshes, m)
		}
	}
	if len(meshes) == len(s.Meshes) {
		return nil
	}
	if len(meshes) == 0 {
		return format.Validation(step, "no meshes left")
	}
	_ = s.Walk(func(n, _ *scene.Node, _ int) error {
		refs := n.Meshes[:0]
		for _, m := range n.Meshes {
			if remap[m] >= 0 {
				refs = append(refs, remap[m])
			}
		}
		n.Meshes = refs
		return nil
	})
	s.Meshes = meshes
	return nil
}
