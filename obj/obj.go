// Package obj reads and writes Wavefront OBJ files and their MTL material
// libraries.
package obj

import "github.com/binzume/modelio/geom"

const formatName = "obj"

// Document holds the decoded statements of an OBJ file.
type Document struct {
	Vertices  []geom.Vector3
	Colors    []geom.Vector4 // parallel to Vertices when HasColors
	HasColors bool
	Normals   []geom.Vector3
	UVs       []geom.Vector3
	// UVComponents is 3 when any vt line has a w component.
	UVComponents int
	Objects      []*Object
	MaterialLibs []string
	Materials    []*Material
}

type Object struct {
	Name  string
	Faces []Face
}

// Corner indices are zero based. -1 means absent.
type Corner struct {
	V, VT, VN int
}

type Face struct {
	Corners  []Corner
	Material string
}

type Material struct {
	Name      string
	Ambient   *geom.Vector3
	Diffuse   *geom.Vector3
	Specular  *geom.Vector3
	Emissive  *geom.Vector3
	Shininess *float32
	Opacity   *float32
	Roughness *float32
	Metallic  *float32
	Illum     *int
	// Textures maps an MTL map statement like "map_Kd" to a file name.
	Textures    map[string]string
	TextureKeys []string
}

func (d *Document) material(name string) *Material {
	for _, m := range d.Materials {
		if m.Name == name {
			return m
		}
	}
	return nil
}
