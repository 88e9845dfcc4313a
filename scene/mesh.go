package scene

import "github.com/binzume/modelio/geom"

// NoMaterial is the MaterialIndex of a mesh without material.
const NoMaterial = -1

type PrimitiveType uint8

const (
	PrimitivePoint PrimitiveType = 1 << iota
	PrimitiveLine
	PrimitiveTriangle
	PrimitivePolygon
)

func (p PrimitiveType) String() string {
	s := ""
	for _, t := range []struct {
		f    PrimitiveType
		name string
	}{{PrimitivePoint, "point"}, {PrimitiveLine, "line"}, {PrimitiveTriangle, "triangle"}, {PrimitivePolygon, "polygon"}} {
		if p&t.f != 0 {
			if s != "" {
				s += "|"
			}
			s += t.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// PrimitiveTypeOf returns the primitive type of a face with n indices.
func PrimitiveTypeOf(n int) PrimitiveType {
	switch n {
	case 0:
		return 0
	case 1:
		return PrimitivePoint
	case 2:
		return PrimitiveLine
	case 3:
		return PrimitiveTriangle
	default:
		return PrimitivePolygon
	}
}

type Face struct {
	Indices []int
}

type Mesh struct {
	Name           string
	PrimitiveTypes PrimitiveType

	Vertices   []geom.Vector3
	Normals    []geom.Vector3
	Tangents   []geom.Vector3
	Bitangents []geom.Vector3
	Colors     [][]geom.Vector4
	TexCoords  [][]geom.Vector3
	// UVComponents[ch] is 2 for UV and 3 for UVW channels.
	UVComponents []int

	Faces         []Face
	MaterialIndex int
}

func NewMesh(name string) *Mesh {
	return &Mesh{Name: name, MaterialIndex: NoMaterial}
}

func (m *Mesh) AddFace(indices ...int) {
	m.Faces = append(m.Faces, Face{Indices: indices})
}

// UpdatePrimitiveTypes derives PrimitiveTypes from the faces.
// A mesh without faces is a point cloud.
func (m *Mesh) UpdatePrimitiveTypes() {
	m.PrimitiveTypes = m.DerivedPrimitiveTypes()
}

func (m *Mesh) DerivedPrimitiveTypes() PrimitiveType {
	if len(m.Faces) == 0 {
		return PrimitivePoint
	}
	var t PrimitiveType
	for _, f := range m.Faces {
		t |= PrimitiveTypeOf(len(f.Indices))
	}
	return t
}

func (m *Mesh) HasPositions() bool { return len(m.Vertices) > 0 }
func (m *Mesh) HasNormals() bool   { return len(m.Normals) > 0 }
func (m *Mesh) HasFaces() bool     { return len(m.Faces) > 0 }

func (m *Mesh) HasTangentsAndBitangents() bool {
	return len(m.Tangents) > 0 && len(m.Bitangents) > 0
}

func (m *Mesh) HasVertexColors(ch int) bool {
	return ch >= 0 && ch < len(m.Colors) && len(m.Colors[ch]) > 0
}

func (m *Mesh) HasTextureCoords(ch int) bool {
	return ch >= 0 && ch < len(m.TexCoords) && len(m.TexCoords[ch]) > 0
}

func (m *Mesh) NumColorChannels() int {
	n := 0
	for n < len(m.Colors) && len(m.Colors[n]) > 0 {
		n++
	}
	return n
}

func (m *Mesh) NumUVChannels() int {
	n := 0
	for n < len(m.TexCoords) && len(m.TexCoords[n]) > 0 {
		n++
	}
	return n
}

// AddTexCoordChannel appends an empty UV channel with the given component count.
func (m *Mesh) AddTexCoordChannel(components int) int {
	m.TexCoords = append(m.TexCoords, make([]geom.Vector3, 0, len(m.Vertices)))
	m.UVComponents = append(m.UVComponents, components)
	return len(m.TexCoords) - 1
}

// CopyVertex appends a copy of vertex i with all attributes and returns its index.
func (m *Mesh) CopyVertex(src *Mesh, i int) int {
	m.Vertices = append(m.Vertices, src.Vertices[i])
	if src.HasNormals() {
		m.Normals = append(m.Normals, src.Normals[i])
	}
	if src.HasTangentsAndBitangents() {
		m.Tangents = append(m.Tangents, src.Tangents[i])
		m.Bitangents = append(m.Bitangents, src.Bitangents[i])
	}
	if len(m.Colors) < len(src.Colors) {
		m.Colors = append(m.Colors, make([][]geom.Vector4, len(src.Colors)-len(m.Colors))...)
	}
	for ch := range src.Colors {
		if len(src.Colors[ch]) > 0 {
			m.Colors[ch] = append(m.Colors[ch], src.Colors[ch][i])
		}
	}
	if len(m.TexCoords) < len(src.TexCoords) {
		m.TexCoords = append(m.TexCoords, make([][]geom.Vector3, len(src.TexCoords)-len(m.TexCoords))...)
		m.UVComponents = append(m.UVComponents[:0:0], src.UVComponents...)
	}
	for ch := range src.TexCoords {
		if len(src.TexCoords[ch]) > 0 {
			m.TexCoords[ch] = append(m.TexCoords[ch], src.TexCoords[ch][i])
		}
	}
	return len(m.Vertices) - 1
}

// EmptyCopy returns a mesh with the same name and material but no data.
func (m *Mesh) EmptyCopy() *Mesh {
	return &Mesh{Name: m.Name, MaterialIndex: m.MaterialIndex}
}
