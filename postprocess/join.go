package postprocess

import (
	"encoding/binary"
	"math"

	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

type joinStep struct{ baseStep }

func (joinStep) Name() string { return "JoinIdenticalVertices" }

func (joinStep) Apply(s *scene.Scene, cfg *Config) error {
	before, after := 0, 0
	for i, m := range s.Meshes {
		before += len(m.Vertices)
		s.Meshes[i] = JoinVertices(m, cfg.JoinEpsilon)
		after += len(s.Meshes[i].Vertices)
	}
	cfg.log().Debug("joined identical vertices", zap.Int("before", before), zap.Int("after", after))
	return nil
}

// vertexAttributes flattens every attribute of vertex i.
func vertexAttributes(m *scene.Mesh, i int, dst []float32) []float32 {
	dst = dst[:0]
	dst = append(dst, m.Vertices[i].X, m.Vertices[i].Y, m.Vertices[i].Z)
	add3 := func(a []geom.Vector3) {
		if len(a) > 0 {
			dst = append(dst, a[i].X, a[i].Y, a[i].Z)
		}
	}
	add3(m.Normals)
	add3(m.Tangents)
	add3(m.Bitangents)
	for _, uv := range m.TexCoords {
		add3(uv)
	}
	for _, c := range m.Colors {
		if len(c) > 0 {
			dst = append(dst, c[i].X, c[i].Y, c[i].Z, c[i].W)
		}
	}
	return dst
}

// JoinVertices merges vertices whose attributes are all equal within eps
// and remaps the faces. Face order and winding are kept.
func JoinVertices(m *scene.Mesh, eps float32) *scene.Mesh {
	dst := m.EmptyCopy()
	dst.PrimitiveTypes = m.PrimitiveTypes
	remap := make([]int, len(m.Vertices))
	var attrs []float32

	if eps <= 0 {
		seen := make(map[string]int, len(m.Vertices))
		key := make([]byte, 0, 64)
		for i := range m.Vertices {
			attrs = vertexAttributes(m, i, attrs)
			key = key[:0]
			for _, a := range attrs {
				key = binary.LittleEndian.AppendUint32(key, math.Float32bits(a))
			}
			if j, ok := seen[string(key)]; ok {
				remap[i] = j
				continue
			}
			remap[i] = dst.CopyVertex(m, i)
			seen[string(key)] = remap[i]
		}
	} else {
		type cell [3]int64
		grid := map[cell][]int{}
		cellOf := func(v geom.Vector3) cell {
			return cell{int64(math.Floor(float64(v.X / eps))), int64(math.Floor(float64(v.Y / eps))), int64(math.Floor(float64(v.Z / eps)))}
		}
		var other []float32
		for i := range m.Vertices {
			attrs = vertexAttributes(m, i, attrs)
			c := cellOf(m.Vertices[i])
			found := -1
		search:
			for dx := int64(-1); dx <= 1; dx++ {
				for dy := int64(-1); dy <= 1; dy++ {
					for dz := int64(-1); dz <= 1; dz++ {
						for _, j := range grid[cell{c[0] + dx, c[1] + dy, c[2] + dz}] {
							other = vertexAttributes(dst, j, other)
							if nearlyEqual(attrs, other, eps) {
								found = j
								break search
							}
						}
					}
				}
			}
			if found >= 0 {
				remap[i] = found
				continue
			}
			remap[i] = dst.CopyVertex(m, i)
			grid[c] = append(grid[c], remap[i])
		}
	}

	dst.Faces = make([]scene.Face, len(m.Faces))
	for fi, f := range m.Faces {
		idx := make([]int, len(f.Indices))
		for k, v := range f.Indices {
			idx[k] = remap[v]
		}
		dst.Faces[fi].Indices = idx
	}
	return dst
}

func nearlyEqual(a, b []float32, eps float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if d := a[i] - b[i]; d > eps || d < -eps {
			return false
		}
	}
	return true
}
