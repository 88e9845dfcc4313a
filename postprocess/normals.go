package postprocess

import (
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"github.com/chewxy/math32"
)

type genNormalsStep struct{ baseStep }

func (genNormalsStep) Name() string { return "GenNormals" }

func (genNormalsStep) Apply(s *scene.Scene, cfg *Config) error {
	for i, m := range s.Meshes {
		if !needsNormals(m, cfg) {
			continue
		}
		s.Meshes[i] = flatNormals(m)
	}
	return nil
}

type genSmoothNormalsStep struct{}

func (genSmoothNormalsStep) Name() string { return "GenSmoothNormals" }

func (genSmoothNormalsStep) Requires() []Flags { return []Flags{JoinIdenticalVertices} }

func (genSmoothNormalsStep) Apply(s *scene.Scene, cfg *Config) error {
	for _, m := range s.Meshes {
		if !needsNormals(m, cfg) {
			continue
		}
		smoothNormals(m, cfg.SmoothingAngle)
	}
	return nil
}

// needsNormals reports whether m has faces with an area and no normals yet.
func needsNormals(m *scene.Mesh, cfg *Config) bool {
	if m.HasNormals() && !cfg.forceNormals {
		return false
	}
	return m.PrimitiveTypes&(scene.PrimitiveTriangle|scene.PrimitivePolygon) != 0
}

func faceNormal(m *scene.Mesh, f scene.Face) *geom.Vector3 {
	if len(f.Indices) < 3 {
		return &geom.Vector3{}
	}
	poly := make([]*geom.Vector3, len(f.Indices))
	for i, idx := range f.Indices {
		poly[i] = &m.Vertices[idx]
	}
	return geom.PolygonNormal(poly)
}

func normalized(v *geom.Vector3) geom.Vector3 {
	if v.LenSqr() == 0 {
		return geom.Vector3{}
	}
	return *v.Normalize()
}

// flatNormals gives every face corner its own vertex with the face normal.
func flatNormals(m *scene.Mesh) *scene.Mesh {
	dst := m.EmptyCopy()
	dst.PrimitiveTypes = m.PrimitiveTypes
	var normals []geom.Vector3
	dst.Faces = make([]scene.Face, len(m.Faces))
	for fi, f := range m.Faces {
		n := normalized(faceNormal(m, f))
		idx := make([]int, len(f.Indices))
		for k, v := range f.Indices {
			idx[k] = dst.CopyVertex(m, v)
			normals = append(normals, n)
		}
		dst.Faces[fi].Indices = idx
	}
	dst.Normals = normals
	return dst
}

// smoothNormals computes area weighted vertex normals. Vertices at the same
// position share faces whose normals are within maxAngle degrees of the
// vertex's own faces.
func smoothNormals(m *scene.Mesh, maxAngle float32) {
	faceNormals := make([]geom.Vector3, len(m.Faces))
	own := make([]geom.Vector3, len(m.Vertices))
	vertexFaces := make([][]int, len(m.Vertices))
	for fi, f := range m.Faces {
		if len(f.Indices) < 3 {
			continue
		}
		n := faceNormal(m, f)
		faceNormals[fi] = *n
		for _, v := range f.Indices {
			own[v] = *own[v].Add(n)
			vertexFaces[v] = append(vertexFaces[v], fi)
		}
	}

	samePos := map[geom.Vector3][]int{}
	for i, v := range m.Vertices {
		samePos[v] = append(samePos[v], i)
	}

	limit := float32(-2)
	if maxAngle > 0 && maxAngle < 175 {
		limit = math32.Cos(maxAngle * math32.Pi / 180)
	}
	m.Normals = make([]geom.Vector3, len(m.Vertices))
	for i, v := range m.Vertices {
		ref := normalized(&own[i])
		sum := &geom.Vector3{}
		for _, j := range samePos[v] {
			for _, fi := range vertexFaces[j] {
				fn := faceNormals[fi]
				if limit > -2 && j != i {
					if dir := normalized(&fn); dir.Dot(&ref) < limit {
						continue
					}
				}
				sum = sum.Add(&fn)
			}
		}
		m.Normals[i] = normalized(sum)
	}
}
