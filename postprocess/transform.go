package postprocess

import (
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

type preTransformStep struct{ baseStep }

func (preTransformStep) Name() string { return "PreTransformVertices" }

// Apply bakes every mesh instance into world space under the root node.
func (preTransformStep) Apply(s *scene.Scene, cfg *Config) error {
	var meshes []*scene.Mesh
	used := map[int]bool{}
	for _, inst := range s.Instances() {
		m := s.Meshes[inst.Mesh]
		if used[inst.Mesh] || !inst.Transform.IsIdentity() {
			m = scene.TransformMesh(m, &inst.Transform)
		}
		used[inst.Mesh] = true
		meshes = append(meshes, m)
	}
	if len(s.Animations) > 0 {
		cfg.log().Warn("dropping animations of a flattened hierarchy", zap.Int("animations", len(s.Animations)))
		s.Animations = nil
	}
	root := scene.NewNode(s.RootNode.Name)
	root.Metadata = s.RootNode.Metadata
	for i := range meshes {
		root.Meshes = append(root.Meshes, i)
	}
	s.Meshes = meshes
	s.RootNode = root
	if len(meshes) == 0 {
		s.Flags |= scene.FlagIncomplete
	}
	return nil
}

type flipUVsStep struct{ baseStep }

func (flipUVsStep) Name() string { return "FlipUVs" }

func (flipUVsStep) Apply(s *scene.Scene, cfg *Config) error {
	for _, m := range s.Meshes {
		for _, ch := range m.TexCoords {
			for i := range ch {
				ch[i].Y = 1 - ch[i].Y
			}
		}
	}
	return nil
}

type flipWindingStep struct{ baseStep }

func (flipWindingStep) Name() string { return "FlipWindingOrder" }

func (flipWindingStep) Apply(s *scene.Scene, cfg *Config) error {
	for _, m := range s.Meshes {
		for _, f := range m.Faces {
			idx := f.Indices
			for a, b := 0, len(idx)-1; a < b; a, b = a+1, b-1 {
				idx[a], idx[b] = idx[b], idx[a]
			}
		}
	}
	return nil
}

type leftHandedStep struct{ baseStep }

func (leftHandedStep) Name() string { return "MakeLeftHanded" }

// Apply mirrors the scene on the Z axis.
func (leftHandedStep) Apply(s *scene.Scene, cfg *Config) error {
	mirror := func(a []geom.Vector3) {
		for i := range a {
			a[i].Z = -a[i].Z
		}
	}
	for _, m := range s.Meshes {
		mirror(m.Vertices)
		mirror(m.Normals)
		mirror(m.Tangents)
		mirror(m.Bitangents)
	}
	_ = s.Walk(func(n, _ *scene.Node, _ int) error {
		MirrorZ(&n.Transform)
		return nil
	})
	for _, a := range s.Animations {
		for _, c := range a.Channels {
			for i := range c.PositionKeys {
				c.PositionKeys[i].Value.Z = -c.PositionKeys[i].Value.Z
			}
			for i := range c.RotationKeys {
				q := &c.RotationKeys[i].Value
				q.X, q.Y = -q.X, -q.Y
			}
		}
	}
	return nil
}

// MirrorZ converts a transform to the Z mirrored space, i.e. S*m*S with
// S = diag(1, 1, -1).
func MirrorZ(m *geom.Matrix4) {
	for _, i := range []int{2, 6, 8, 9, 11, 14} {
		m[i] = -m[i]
	}
}
