// Package mqo reads and writes Metasequoia documents (.mqo and zipped
// .mqoz).
package mqo

import "github.com/binzume/modelio/geom"

const formatName = "mqo"

type Material struct {
	Name  string
	Color geom.Vector4

	Diffuse       float32
	Ambient       float32
	Emission      float32
	EmissionColor *geom.Vector3
	Specular      float32
	Power         float32
	Texture       string
	AlphaPlane    string
	BumpTexture   string
	DoubleSided   bool
	UID           int

	Ex2 *MaterialEx2
}

// MaterialEx2 holds shader parameters of newer documents.
type MaterialEx2 struct {
	ShaderType   string
	ShaderName   string
	ShaderParams map[string]interface{}
}

func (ex *MaterialEx2) FloatParam(name string) (float32, bool) {
	if ex == nil {
		return 0, false
	}
	switch v := ex.ShaderParams[name].(type) {
	case float32:
		return v, true
	case int:
		return float32(v), true
	}
	return 0, false
}

func (ex *MaterialEx2) IntParam(name string) (int, bool) {
	if ex == nil {
		return 0, false
	}
	switch v := ex.ShaderParams[name].(type) {
	case int:
		return v, true
	case float32:
		return int(v), true
	}
	return 0, false
}

// Face corners are in document order (clockwise when seen from the front).
type Face struct {
	Verts    []int
	Material int
	UVs      []geom.Vector2
	// Colors are per corner 0xAABBGGRR values.
	Colors []uint32
	UID    int
}

type Object struct {
	Name      string
	UID       int
	Depth     int
	Visible   bool
	Locked    bool
	Shading   int
	Facet     float32
	Mirror    int
	MirrorDis float32
	Patch     int
	Segment   int
	Vertexes  []geom.Vector3
	Faces     []*Face
}

func NewObject(name string) *Object {
	return &Object{Name: name, Visible: true, Shading: 1, Facet: 59.5}
}

type Document struct {
	Materials []*Material
	Objects   []*Object
}

func NewMaterial(name string) *Material {
	return &Material{Name: name, Color: geom.Vector4{X: 1, Y: 1, Z: 1, W: 1}, Diffuse: 0.8, Ambient: 0.6, Power: 5}
}
