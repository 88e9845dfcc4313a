package obj

import (
	"bytes"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
)

type Reader struct{}

func (Reader) Format() string       { return formatName }
func (Reader) Extensions() []string { return []string{"obj"} }

// CanRead accepts text with a vertex statement near the start.
func (Reader) CanRead(data []byte) bool {
	head := format.Head(data, 4096)
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	for _, line := range bytes.Split(head, []byte("\n")) {
		line = bytes.TrimLeft(line, " \t\ufeff")
		if bytes.HasPrefix(line, []byte("v ")) || bytes.HasPrefix(line, []byte("v\t")) {
			return true
		}
	}
	return false
}

func (Reader) Read(data []byte, opts *format.ReadOptions) (*scene.Scene, error) {
	doc, err := Parse(data, opts)
	if err != nil {
		return nil, err
	}
	return BuildScene(doc)
}

var textureSemantics = map[string]scene.TextureType{
	"map_Kd":   scene.TextureDiffuse,
	"map_Ks":   scene.TextureSpecular,
	"map_Ka":   scene.TextureAmbient,
	"map_Ke":   scene.TextureEmissive,
	"map_d":    scene.TextureOpacity,
	"map_bump": scene.TextureHeight,
	"map_Bump": scene.TextureHeight,
	"bump":     scene.TextureHeight,
	"norm":     scene.TextureNormals,
	"map_Ns":   scene.TextureShininess,
	"disp":     scene.TextureDisplacement,
	"map_Pr":   scene.TextureRoughness,
	"map_Pm":   scene.TextureMetalness,
	"refl":     scene.TextureReflection,
}

func convertMaterial(m *Material) *scene.Material {
	mat := scene.NewMaterial(m.Name)
	rgb := func(key string, c *geom.Vector3) {
		if c != nil {
			mat.SetColor(key, geom.Vector4{X: c.X, Y: c.Y, Z: c.Z, W: 1})
		}
	}
	rgb(scene.KeyColorDiffuse, m.Diffuse)
	rgb(scene.KeyColorAmbient, m.Ambient)
	rgb(scene.KeyColorSpecular, m.Specular)
	rgb(scene.KeyColorEmissive, m.Emissive)
	if m.Shininess != nil {
		mat.SetFloat(scene.KeyShininess, *m.Shininess)
	}
	if m.Opacity != nil {
		mat.SetFloat(scene.KeyOpacity, *m.Opacity)
	}
	if m.Roughness != nil {
		mat.SetFloat(scene.KeyRoughnessFactor, *m.Roughness)
	}
	if m.Metallic != nil {
		mat.SetFloat(scene.KeyMetallicFactor, *m.Metallic)
	}
	if m.Illum != nil {
		mat.SetInt(scene.KeyShadingModel, int32(*m.Illum))
	}
	for _, key := range m.TextureKeys {
		mat.AddTexture(scene.TextureRef{Semantic: textureSemantics[key], Path: m.Textures[key]})
	}
	return mat
}

type cornerKey struct {
	mesh int
	c    Corner
}

// BuildScene converts a parsed document. Each object becomes a child node
// of the root with one mesh per material it uses.
func BuildScene(doc *Document) (*scene.Scene, error) {
	if len(doc.Vertices) == 0 {
		return nil, format.Malformed(formatName, "no vertices")
	}
	s := scene.New()
	matIndex := map[string]int{}
	defaultMat := -1
	materialFor := func(name string) int {
		if i, ok := matIndex[name]; ok {
			return i
		}
		var mat *scene.Material
		if m := doc.material(name); m != nil {
			mat = convertMaterial(m)
		} else if name != "" {
			mat = scene.NewMaterial(name)
			mat.SetColor(scene.KeyColorDiffuse, geom.Vector4{X: 0.6, Y: 0.6, Z: 0.6, W: 1})
		} else {
			if defaultMat < 0 {
				mat = scene.NewMaterial("DefaultMaterial")
				mat.SetColor(scene.KeyColorDiffuse, geom.Vector4{X: 0.6, Y: 0.6, Z: 0.6, W: 1})
				defaultMat = s.AddMaterial(mat)
			}
			matIndex[name] = defaultMat
			return defaultMat
		}
		matIndex[name] = s.AddMaterial(mat)
		return matIndex[name]
	}

	faces := 0
	for _, o := range doc.Objects {
		faces += len(o.Faces)
	}
	if faces == 0 {
		// point cloud
		m := scene.NewMesh("points")
		m.Vertices = append(m.Vertices, doc.Vertices...)
		if doc.HasColors {
			m.Colors = [][]geom.Vector4{append([]geom.Vector4(nil), doc.Colors...)}
		}
		m.UpdatePrimitiveTypes()
		m.MaterialIndex = materialFor("")
		s.RootNode.Meshes = append(s.RootNode.Meshes, s.AddMesh(m))
		return s, nil
	}

	for _, o := range doc.Objects {
		if len(o.Faces) == 0 {
			continue
		}
		node := s.RootNode.AddChild(scene.NewNode(o.Name))
		meshes := map[string]int{}
		var order []*scene.Mesh
		hasUV, hasNormal := false, false
		for _, f := range o.Faces {
			for _, c := range f.Corners {
				hasUV = hasUV || c.VT >= 0
				hasNormal = hasNormal || c.VN >= 0
			}
		}
		remap := map[cornerKey]int{}
		for _, f := range o.Faces {
			mi, ok := meshes[f.Material]
			if !ok {
				m := scene.NewMesh(o.Name)
				if len(order) > 0 {
					m.Name = o.Name + "_" + f.Material
				}
				m.MaterialIndex = materialFor(f.Material)
				if hasUV {
					m.AddTexCoordChannel(doc.UVComponents)
				}
				if doc.HasColors {
					m.Colors = [][]geom.Vector4{nil}
				}
				mi = len(order)
				meshes[f.Material] = mi
				order = append(order, m)
			}
			m := order[mi]
			idx := make([]int, len(f.Corners))
			for i, c := range f.Corners {
				key := cornerKey{mi, c}
				vi, ok := remap[key]
				if !ok {
					vi = len(m.Vertices)
					m.Vertices = append(m.Vertices, doc.Vertices[c.V])
					if doc.HasColors {
						m.Colors[0] = append(m.Colors[0], doc.Colors[c.V])
					}
					if hasUV {
						uv := geom.Vector3{}
						if c.VT >= 0 {
							uv = doc.UVs[c.VT]
						}
						m.TexCoords[0] = append(m.TexCoords[0], uv)
					}
					if hasNormal {
						n := geom.Vector3{}
						if c.VN >= 0 {
							n = doc.Normals[c.VN]
						}
						m.Normals = append(m.Normals, n)
					}
					remap[key] = vi
				}
				idx[i] = vi
			}
			m.AddFace(idx...)
		}
		for _, m := range order {
			m.UpdatePrimitiveTypes()
			node.Meshes = append(node.Meshes, s.AddMesh(m))
		}
	}
	s.Metadata.SetString("SourceAsset_Format", "obj")
	return s, nil
}
