package postprocess

import (
	"sort"

	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

type redundantMaterialsStep struct{ baseStep }

func (redundantMaterialsStep) Name() string { return "RemoveRedundantMaterials" }

func (redundantMaterialsStep) Apply(s *scene.Scene, cfg *Config) error {
	referenced := make([]bool, len(s.Materials))
	for _, m := range s.Meshes {
		if m.MaterialIndex >= 0 && m.MaterialIndex < len(referenced) {
			referenced[m.MaterialIndex] = true
		}
	}
	remap := make([]int, len(s.Materials))
	var kept []*scene.Material
	var keys [][]scene.Property
	for i, mat := range s.Materials {
		remap[i] = scene.NoMaterial
		if !referenced[i] {
			continue
		}
		key := materialKey(mat)
		for j, k := range keys {
			if propertiesEqual(k, key) {
				remap[i] = j
				break
			}
		}
		if remap[i] == scene.NoMaterial {
			remap[i] = len(kept)
			kept = append(kept, mat)
			keys = append(keys, key)
		}
	}
	for _, m := range s.Meshes {
		if m.MaterialIndex >= 0 && m.MaterialIndex < len(remap) {
			m.MaterialIndex = remap[m.MaterialIndex]
		}
	}
	cfg.log().Debug("removed redundant materials", zap.Int("before", len(s.Materials)), zap.Int("after", len(kept)))
	s.Materials = kept
	return nil
}

// materialKey returns the properties without the name in a stable order.
func materialKey(m *scene.Material) []scene.Property {
	var props []scene.Property
	for _, p := range m.Properties {
		if p.Key != scene.KeyName {
			props = append(props, p)
		}
	}
	sort.SliceStable(props, func(i, j int) bool {
		a, b := props[i], props[j]
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.Semantic != b.Semantic {
			return a.Semantic < b.Semantic
		}
		return a.Index < b.Index
	})
	return props
}

func propertiesEqual(a, b []scene.Property) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(&b[i]) {
			return false
		}
	}
	return true
}
