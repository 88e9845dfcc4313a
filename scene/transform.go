package scene

import "github.com/binzume/modelio/geom"

// TransformMesh returns a copy of m with positions and directions
// transformed by t. Face winding is reversed when t mirrors the mesh.
func TransformMesh(m *Mesh, t *geom.Matrix4) *Mesh {
	dst := m.EmptyCopy()
	dst.PrimitiveTypes = m.PrimitiveTypes
	for i := range m.Vertices {
		dst.CopyVertex(m, i)
	}
	if t.IsIdentity() {
		dst.Faces = copyFaces(m.Faces, false)
		return dst
	}
	nm := t.NormalMatrix()
	for i := range dst.Vertices {
		dst.Vertices[i] = *t.ApplyTo(&dst.Vertices[i])
	}
	for i := range dst.Normals {
		dst.Normals[i] = *nm.ApplyToDirection(&dst.Normals[i]).Normalize()
	}
	for i := range dst.Tangents {
		dst.Tangents[i] = *t.ApplyToDirection(&dst.Tangents[i]).Normalize()
		dst.Bitangents[i] = *t.ApplyToDirection(&dst.Bitangents[i]).Normalize()
	}
	dst.Faces = copyFaces(m.Faces, t.Det() < 0)
	return dst
}

func copyFaces(faces []Face, reverse bool) []Face {
	r := make([]Face, len(faces))
	for i, f := range faces {
		idx := make([]int, len(f.Indices))
		copy(idx, f.Indices)
		if reverse {
			for a, b := 0, len(idx)-1; a < b; a, b = a+1, b-1 {
				idx[a], idx[b] = idx[b], idx[a]
			}
		}
		r[i].Indices = idx
	}
	return r
}
