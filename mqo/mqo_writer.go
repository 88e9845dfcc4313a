package mqo

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func quote(s string) string {
	return "\"" + strings.ReplaceAll(strings.ReplaceAll(s, "\\", "/"), "\"", "'") + "\""
}

func ftoa(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// WriteDocument writes doc as a UTF-8 text document.
func WriteDocument(doc *Document, ww io.Writer) error {
	w := bufio.NewWriter(ww)
	w.WriteString("Metasequoia Document\n")
	w.WriteString("Format Text Ver 1.1\n")
	w.WriteString("CodePage utf8\n")
	w.WriteString("\n")

	ex2Count := 0
	fmt.Fprintf(w, "Material %v {\n", len(doc.Materials))
	for _, mat := range doc.Materials {
		fmt.Fprintf(w, "\t%s", quote(mat.Name))
		if mat.DoubleSided {
			fmt.Fprintf(w, " dbls(%d)", boolToInt(mat.DoubleSided))
		}
		if mat.UID > 0 {
			fmt.Fprintf(w, " uid(%d)", mat.UID)
		}
		fmt.Fprintf(w, " col(%s %s %s %s) dif(%s) amb(%s) emi(%s) spc(%s) power(%s)",
			ftoa(mat.Color.X), ftoa(mat.Color.Y), ftoa(mat.Color.Z), ftoa(mat.Color.W),
			ftoa(mat.Diffuse), ftoa(mat.Ambient), ftoa(mat.Emission), ftoa(mat.Specular), ftoa(mat.Power))
		if c := mat.EmissionColor; c != nil {
			fmt.Fprintf(w, " emi_col(%s %s %s)", ftoa(c.X), ftoa(c.Y), ftoa(c.Z))
		}
		if mat.Texture != "" {
			fmt.Fprintf(w, " tex(%s)", quote(mat.Texture))
		}
		if mat.AlphaPlane != "" {
			fmt.Fprintf(w, " aplane(%s)", quote(mat.AlphaPlane))
		}
		if mat.BumpTexture != "" {
			fmt.Fprintf(w, " bump(%s)", quote(mat.BumpTexture))
		}
		w.WriteString("\n")
		if mat.Ex2 != nil {
			ex2Count++
		}
	}
	w.WriteString("}\n")

	if ex2Count > 0 {
		fmt.Fprintf(w, "MaterialEx2 %v {\n", ex2Count)
		for mi, mat := range doc.Materials {
			if mat.Ex2 == nil {
				continue
			}
			fmt.Fprintf(w, "\tmaterial %v {\n", mi)
			fmt.Fprintf(w, "\t\tshadertype %s\n", quote(mat.Ex2.ShaderType))
			fmt.Fprintf(w, "\t\tshadername %s\n", quote(mat.Ex2.ShaderName))
			fmt.Fprintf(w, "\t\tshaderparam %v {\n", len(mat.Ex2.ShaderParams))
			names := make([]string, 0, len(mat.Ex2.ShaderParams))
			for name := range mat.Ex2.ShaderParams {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				v := mat.Ex2.ShaderParams[name]
				typ := "int"
				switch vv := v.(type) {
				case bool:
					typ, v = "bool", boolToInt(vv)
				case float32:
					typ, v = "float", ftoa(vv)
				}
				fmt.Fprintf(w, "\t\t\t%s %v %v\n", quote(name), typ, v)
			}
			w.WriteString("\t\t}\n")
			w.WriteString("\t}\n")
		}
		w.WriteString("}\n")
	}

	for _, obj := range doc.Objects {
		fmt.Fprintf(w, "Object %s {\n", quote(obj.Name))
		if obj.UID > 0 {
			fmt.Fprintf(w, "\tuid %v\n", obj.UID)
		}
		fmt.Fprintf(w, "\tdepth %d\n", obj.Depth)
		fmt.Fprintf(w, "\tvisible %d\n", boolToInt(obj.Visible)*15)
		fmt.Fprintf(w, "\tlocking %v\n", boolToInt(obj.Locked))
		fmt.Fprintf(w, "\tshading %v\n", obj.Shading)
		fmt.Fprintf(w, "\tfacet %s\n", ftoa(obj.Facet))
		fmt.Fprintf(w, "\tmirror %d\n", obj.Mirror)
		fmt.Fprintf(w, "\tmirror_dis %s\n", ftoa(obj.MirrorDis))
		if obj.Patch > 0 {
			fmt.Fprintf(w, "\tpatch %d\n", obj.Patch)
			fmt.Fprintf(w, "\tsegment %d\n", obj.Segment)
		}

		fmt.Fprintf(w, "\tvertex %v {\n", len(obj.Vertexes))
		for _, v := range obj.Vertexes {
			fmt.Fprintf(w, "\t\t%s %s %s\n", ftoa(v.X), ftoa(v.Y), ftoa(v.Z))
		}
		w.WriteString("\t}\n")

		fmt.Fprintf(w, "\tface %v {\n", len(obj.Faces))
		for _, f := range obj.Faces {
			fmt.Fprintf(w, "\t\t%v V(%v)", len(f.Verts), strings.Trim(fmt.Sprint(f.Verts), "[]"))
			if f.Material >= 0 {
				fmt.Fprintf(w, " M(%v)", f.Material)
			}
			if f.UID > 0 {
				fmt.Fprintf(w, " UID(%v)", f.UID)
			}
			if len(f.UVs) > 0 {
				w.WriteString(" UV(")
				for i, uv := range f.UVs {
					if i != 0 {
						w.WriteString(" ")
					}
					fmt.Fprintf(w, "%s %s", ftoa(uv.X), ftoa(uv.Y))
				}
				w.WriteString(")")
			}
			if len(f.Colors) > 0 {
				w.WriteString(" COL(")
				for i, c := range f.Colors {
					if i != 0 {
						w.WriteString(" ")
					}
					fmt.Fprintf(w, "%d", c)
				}
				w.WriteString(")")
			}
			w.WriteString("\n")
		}
		w.WriteString("\t}\n")
		w.WriteString("}\n")
	}

	w.WriteString("Eof\n")
	return w.Flush()
}

// Writer converts a scene to a document. Node depth becomes object depth
// and vertices are stored in world space.
type Writer struct{}

func (Writer) ID() string        { return formatName }
func (Writer) Extension() string { return "mqo" }

func (Writer) Write(w io.Writer, s *scene.Scene, opts *format.WriteOptions) error {
	doc, err := FromScene(s, opts)
	if err != nil {
		return err
	}
	if err := WriteDocument(doc, w); err != nil {
		return format.WrapIO(formatName, err)
	}
	return nil
}

// average of the RGB channels of a relative to b
func ratio(a, b geom.Vector4) float32 {
	sa, sb := a.X+a.Y+a.Z, b.X+b.Y+b.Z
	if sb <= 0 {
		return sa / 3
	}
	return sa / sb
}

func fromMaterial(m *scene.Material, textures map[string]string) *Material {
	mat := NewMaterial(m.Name())
	if c, ok := m.GetColor(scene.KeyColorDiffuse); ok {
		mat.Color = c
	}
	if v, ok := m.GetFloat(scene.KeyOpacity); ok {
		mat.Color.W = v
	}
	mat.Diffuse = 1
	if c, ok := m.GetColor(scene.KeyColorAmbient); ok {
		mat.Ambient = ratio(c, mat.Color)
	}
	if c, ok := m.GetColor(scene.KeyColorSpecular); ok {
		mat.Specular = (c.X + c.Y + c.Z) / 3
	}
	if c, ok := m.GetColor(scene.KeyColorEmissive); ok {
		mat.Emission = 1
		mat.EmissionColor = &geom.Vector3{X: c.X, Y: c.Y, Z: c.Z}
	}
	if v, ok := m.GetFloat(scene.KeyShininess); ok {
		mat.Power = v
	}
	mat.DoubleSided = m.GetBool(scene.KeyTwoSided)

	metallic, hasMetallic := m.GetFloat(scene.KeyMetallicFactor)
	roughness, hasRoughness := m.GetFloat(scene.KeyRoughnessFactor)
	if hasMetallic || hasRoughness {
		if !hasRoughness {
			roughness = 1
		}
		mat.Ex2 = &MaterialEx2{ShaderType: "hlsl", ShaderName: "glTF", ShaderParams: map[string]interface{}{
			"Metallic":  metallic,
			"Roughness": roughness,
		}}
		switch mode, _ := m.GetString(scene.KeyAlphaMode); mode {
		case "MASK":
			mat.Ex2.ShaderParams["AlphaMode"] = 2
			if v, ok := m.GetFloat(scene.KeyAlphaCutoff); ok {
				mat.Ex2.ShaderParams["AlphaCutOff"] = v
			}
		case "BLEND":
			mat.Ex2.ShaderParams["AlphaMode"] = 3
		default:
			mat.Ex2.ShaderParams["AlphaMode"] = 1
		}
	}

	texture := func(sems ...scene.TextureType) string {
		for _, sem := range sems {
			if t, ok := m.Texture(sem, 0); ok {
				if f, ok := textures[t.Path]; ok {
					return f
				}
				if _, embedded := scene.ParseTextureToken(t.Path); !embedded {
					return t.Path
				}
			}
		}
		return ""
	}
	mat.Texture = texture(scene.TextureDiffuse, scene.TextureBaseColor)
	mat.AlphaPlane = texture(scene.TextureOpacity)
	mat.BumpTexture = texture(scene.TextureHeight, scene.TextureNormals)
	return mat
}

func encodeColor(c geom.Vector4) uint32 {
	b := func(v float32) uint32 { return uint32(max(0, min(1, v))*255 + 0.5) }
	return b(c.X) | b(c.Y)<<8 | b(c.Z)<<16 | b(c.W)<<24
}

// FromScene converts s into a document.
func FromScene(s *scene.Scene, opts *format.WriteOptions) (*Document, error) {
	if s.RootNode == nil {
		return nil, format.Unsupported(formatName, "scene has no root node")
	}
	textures, err := format.ExtractTextures(s, opts.Base("model"), formatName, opts)
	if err != nil {
		return nil, err
	}
	doc := &Document{}
	for _, m := range s.Materials {
		doc.Materials = append(doc.Materials, fromMaterial(m, textures))
	}
	noMaterial := -1
	materialFor := func(i int) int {
		if i >= 0 && i < len(doc.Materials) {
			return i
		}
		if noMaterial < 0 {
			noMaterial = len(doc.Materials)
			doc.Materials = append(doc.Materials, NewMaterial("DefaultMaterial"))
		}
		return noMaterial
	}

	world := map[*scene.Node]*geom.Matrix4{}
	_ = s.Walk(func(n, parent *scene.Node, depth int) error {
		pm := geom.NewMatrix4()
		if parent != nil {
			pm = world[parent]
		}
		world[n] = pm.Mul(&n.Transform)
		if n == s.RootNode && len(n.Meshes) == 0 {
			return nil
		}
		o := NewObject(n.Name)
		o.Depth = max(depth-1, 0)
		if e, ok := n.Metadata.Get("visible"); ok && e.Type == scene.MetaBool {
			o.Visible = e.Bool
		}
		for _, mi := range n.Meshes {
			if mi < 0 || mi >= len(s.Meshes) {
				continue
			}
			addMesh(o, scene.TransformMesh(s.Meshes[mi], world[n]), materialFor)
		}
		doc.Objects = append(doc.Objects, o)
		return nil
	})
	return doc, nil
}

func addMesh(o *Object, m *scene.Mesh, materialFor func(int) int) {
	base := len(o.Vertexes)
	o.Vertexes = append(o.Vertexes, m.Vertices...)
	uvs, colors := m.HasTextureCoords(0), m.HasVertexColors(0)
	for _, src := range m.Faces {
		n := len(src.Indices)
		f := &Face{Verts: make([]int, n), Material: materialFor(m.MaterialIndex)}
		if uvs {
			f.UVs = make([]geom.Vector2, n)
		}
		if colors {
			f.Colors = make([]uint32, n)
		}
		for i := range src.Indices {
			vi := src.Indices[n-1-i]
			f.Verts[i] = base + vi
			if uvs {
				uv := m.TexCoords[0][vi]
				f.UVs[i] = *uv.XY().FlipV()
			}
			if colors {
				f.Colors[i] = encodeColor(m.Colors[0][vi])
			}
		}
		o.Faces = append(o.Faces, f)
	}
}
