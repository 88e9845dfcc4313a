package postprocess

import (
	"strconv"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

type validateStep struct{ baseStep }

func (validateStep) Name() string { return "ValidateDataStructure" }

func (validateStep) Apply(s *scene.Scene, cfg *Config) error {
	v := &validator{s: s, log: cfg.log()}
	if err := v.validate(); err != nil {
		return err
	}
	s.Flags |= scene.FlagValidated
	if v.warnings > 0 {
		s.Flags |= scene.FlagValidationWarning
	}
	return nil
}

// Validate checks every structural invariant of s.
func Validate(s *scene.Scene) error {
	return (validateStep{}).Apply(s, DefaultConfig())
}

type validator struct {
	s        *scene.Scene
	log      *zap.Logger
	warnings int
	nodes    map[string]bool
}

func fail(msg string, args ...interface{}) error {
	return format.Validation("validate", msg, args...)
}

func (v *validator) warn(msg string, fields ...zap.Field) {
	v.warnings++
	v.log.Warn(msg, fields...)
}

func (v *validator) validate() error {
	s := v.s
	if s.RootNode == nil {
		return fail("scene has no root node")
	}
	if len(s.Meshes) == 0 && s.Flags&scene.FlagIncomplete == 0 {
		return fail("scene has no meshes and is not marked incomplete")
	}
	v.nodes = map[string]bool{}
	if err := v.validateNode(s.RootNode, map[*scene.Node]bool{}); err != nil {
		return err
	}
	for i, m := range s.Meshes {
		if m == nil {
			return fail("mesh %d is nil", i)
		}
		if err := v.validateMesh(i, m); err != nil {
			return err
		}
	}
	for i, m := range s.Materials {
		if m == nil {
			return fail("material %d is nil", i)
		}
		for _, t := range m.AllTextures() {
			if idx, ok := scene.ParseTextureToken(t.Path); ok && idx >= len(s.Textures) {
				return fail("material %d %q: %s texture %d refers to %s but the scene has %d textures",
					i, m.Name(), t.Semantic, t.Index, t.Path, len(s.Textures))
			}
		}
	}
	for i, t := range s.Textures {
		if t == nil || len(t.Data) == 0 {
			return fail("embedded texture %d has no data", i)
		}
	}
	for i, a := range s.Animations {
		if err := v.validateAnimation(i, a); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) validateNode(n *scene.Node, seen map[*scene.Node]bool) error {
	if seen[n] {
		return fail("node %q appears twice in the hierarchy", n.Name)
	}
	seen[n] = true
	if n.Name != "" {
		v.nodes[n.Name] = true
	}
	for _, m := range n.Meshes {
		if m < 0 || m >= len(v.s.Meshes) {
			return fail("node %q: mesh index %d out of range [0,%d)", n.Name, m, len(v.s.Meshes))
		}
	}
	for _, c := range n.Children {
		if c == nil {
			return fail("node %q has a nil child", n.Name)
		}
		if err := v.validateNode(c, seen); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) validateMesh(i int, m *scene.Mesh) error {
	nv := len(m.Vertices)
	if nv == 0 {
		return fail("mesh %d %q has no vertices", i, m.Name)
	}
	checkLen := func(what string, n int) error {
		if n != 0 && n != nv {
			return fail("mesh %d %q: %d %s for %d vertices", i, m.Name, n, what, nv)
		}
		return nil
	}
	if err := checkLen("normals", len(m.Normals)); err != nil {
		return err
	}
	if err := checkLen("tangents", len(m.Tangents)); err != nil {
		return err
	}
	if err := checkLen("bitangents", len(m.Bitangents)); err != nil {
		return err
	}
	if len(m.Tangents) != len(m.Bitangents) {
		return fail("mesh %d %q: tangents without bitangents", i, m.Name)
	}
	for ch, c := range m.Colors {
		if err := checkLen("colors in channel "+strconv.Itoa(ch), len(c)); err != nil {
			return err
		}
	}
	for ch, uv := range m.TexCoords {
		if err := checkLen("texture coordinates in channel "+strconv.Itoa(ch), len(uv)); err != nil {
			return err
		}
		if len(uv) == 0 {
			continue
		}
		if ch >= len(m.UVComponents) || m.UVComponents[ch] < 1 || m.UVComponents[ch] > 3 {
			return fail("mesh %d %q: invalid component count for UV channel %d", i, m.Name, ch)
		}
	}
	for fi, f := range m.Faces {
		if len(f.Indices) == 0 {
			return fail("mesh %d %q: face %d is empty", i, m.Name, fi)
		}
		for _, idx := range f.Indices {
			if idx < 0 || idx >= nv {
				return fail("mesh %d %q: face %d index %d out of range [0,%d)", i, m.Name, fi, idx, nv)
			}
		}
	}
	if d := m.DerivedPrimitiveTypes(); d != m.PrimitiveTypes {
		return fail("mesh %d %q: primitive types %s do not match faces (%s)", i, m.Name, m.PrimitiveTypes, d)
	}
	if m.MaterialIndex != scene.NoMaterial && (m.MaterialIndex < 0 || m.MaterialIndex >= len(v.s.Materials)) {
		return fail("mesh %d %q: material index %d out of range [0,%d)", i, m.Name, m.MaterialIndex, len(v.s.Materials))
	}
	for vi := range m.Vertices {
		if !m.Vertices[vi].IsFinite() {
			v.warn("non-finite vertex position", zap.Int("mesh", i), zap.Int("vertex", vi))
			break
		}
	}
	return nil
}

func (v *validator) validateAnimation(i int, a *scene.Animation) error {
	if a == nil {
		return fail("animation %d is nil", i)
	}
	for _, c := range a.Channels {
		if !v.nodes[c.NodeName] {
			v.warn("animation channel refers to a missing node", zap.String("animation", a.Name), zap.String("node", c.NodeName))
		}
		if !sortedVectorKeys(c.PositionKeys) || !sortedVectorKeys(c.ScalingKeys) || !sortedQuatKeys(c.RotationKeys) {
			return fail("animation %d %q: keys of channel %q are not ordered by time", i, a.Name, c.NodeName)
		}
	}
	return nil
}

func sortedVectorKeys(keys []scene.VectorKey) bool {
	for i := 1; i < len(keys); i++ {
		if keys[i].Time < keys[i-1].Time {
			return false
		}
	}
	return true
}

func sortedQuatKeys(keys []scene.QuatKey) bool {
	for i := 1; i < len(keys); i++ {
		if keys[i].Time < keys[i-1].Time {
			return false
		}
	}
	return true
}
