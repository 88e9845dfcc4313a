package obj

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/scene"
)

// Writer writes mesh instances in world space. Materials go to a MTL
// side-car named after WriteOptions.BaseName.
type Writer struct{}

func (Writer) ID() string        { return formatName }
func (Writer) Extension() string { return "obj" }

var textureStatements = []struct {
	sem  scene.TextureType
	stmt string
}{
	{scene.TextureDiffuse, "map_Kd"},
	{scene.TextureBaseColor, "map_Kd"},
	{scene.TextureSpecular, "map_Ks"},
	{scene.TextureAmbient, "map_Ka"},
	{scene.TextureEmissive, "map_Ke"},
	{scene.TextureOpacity, "map_d"},
	{scene.TextureHeight, "map_bump"},
	{scene.TextureNormals, "norm"},
	{scene.TextureShininess, "map_Ns"},
	{scene.TextureDisplacement, "disp"},
	{scene.TextureRoughness, "map_Pr"},
	{scene.TextureMetalness, "map_Pm"},
	{scene.TextureReflection, "refl"},
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

func (Writer) Write(w io.Writer, s *scene.Scene, opts *format.WriteOptions) error {
	base := opts.Base("model")
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# Created by modelio")

	names := materialNames(s)
	texFiles, err := format.ExtractTextures(s, base, formatName, opts)
	if err != nil {
		return err
	}
	if len(s.Materials) > 0 {
		mw, ok, err := opts.CreateFile(base + ".mtl")
		if err != nil {
			return format.WrapIO(formatName, err)
		}
		if ok {
			fmt.Fprintf(bw, "mtllib %s.mtl\n", base)
			err = writeMaterials(mw, s, names, texFiles)
			if cerr := mw.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return format.WrapIO(formatName, err)
			}
		} else {
			opts.Log().Warn("material library not written: no side-car support")
		}
	}

	var offV, offT, offN int
	for i, inst := range s.Instances() {
		if inst.Mesh < 0 || inst.Mesh >= len(s.Meshes) {
			continue
		}
		src := s.Meshes[inst.Mesh]
		m := scene.TransformMesh(src, &inst.Transform)
		name := inst.Node.Name
		if name == "" {
			name = "object" + strconv.Itoa(i)
		}
		if m.Name != "" && m.Name != name {
			name += "_" + m.Name
		}
		fmt.Fprintf(bw, "o %s\n", name)
		colors := m.HasVertexColors(0)
		for vi, v := range m.Vertices {
			if colors {
				c := m.Colors[0][vi]
				fmt.Fprintf(bw, "v %s %s %s %s %s %s\n", formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z), formatFloat(c.X), formatFloat(c.Y), formatFloat(c.Z))
			} else {
				fmt.Fprintf(bw, "v %s %s %s\n", formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z))
			}
		}
		uvs := m.HasTextureCoords(0)
		if uvs {
			three := len(m.UVComponents) > 0 && m.UVComponents[0] == 3
			for _, t := range m.TexCoords[0] {
				if three {
					fmt.Fprintf(bw, "vt %s %s %s\n", formatFloat(t.X), formatFloat(t.Y), formatFloat(t.Z))
				} else {
					fmt.Fprintf(bw, "vt %s %s\n", formatFloat(t.X), formatFloat(t.Y))
				}
			}
		}
		normals := m.HasNormals()
		for _, n := range m.Normals {
			fmt.Fprintf(bw, "vn %s %s %s\n", formatFloat(n.X), formatFloat(n.Y), formatFloat(n.Z))
		}
		if src.MaterialIndex >= 0 && src.MaterialIndex < len(names) {
			fmt.Fprintf(bw, "usemtl %s\n", names[src.MaterialIndex])
		}
		for _, f := range m.Faces {
			switch len(f.Indices) {
			case 1:
				bw.WriteString("p")
			case 2:
				bw.WriteString("l")
			default:
				bw.WriteString("f")
			}
			for _, idx := range f.Indices {
				bw.WriteString(" " + strconv.Itoa(offV+idx+1))
				if len(f.Indices) < 3 {
					continue
				}
				switch {
				case uvs && normals:
					fmt.Fprintf(bw, "/%d/%d", offT+idx+1, offN+idx+1)
				case uvs:
					fmt.Fprintf(bw, "/%d", offT+idx+1)
				case normals:
					fmt.Fprintf(bw, "//%d", offN+idx+1)
				}
			}
			bw.WriteString("\n")
		}
		offV += len(m.Vertices)
		if uvs {
			offT += len(m.Vertices)
		}
		if normals {
			offN += len(m.Vertices)
		}
	}
	if err := bw.Flush(); err != nil {
		return format.WrapIO(formatName, err)
	}
	return nil
}

// materialNames returns unique names without white space.
func materialNames(s *scene.Scene) []string {
	names := make([]string, len(s.Materials))
	used := map[string]bool{}
	for i, m := range s.Materials {
		name := strings.Join(strings.Fields(m.Name()), "_")
		if name == "" {
			name = "material" + strconv.Itoa(i)
		}
		n := name
		for k := 1; used[n]; k++ {
			n = name + "_" + strconv.Itoa(k)
		}
		used[n] = true
		names[i] = n
	}
	return names
}

func writeMaterials(w io.Writer, s *scene.Scene, names []string, texFiles map[string]string) error {
	bw := bufio.NewWriter(w)
	color := func(stmt string, m *scene.Material, key string) {
		if c, ok := m.GetColor(key); ok {
			fmt.Fprintf(bw, "%s %s %s %s\n", stmt, formatFloat(c.X), formatFloat(c.Y), formatFloat(c.Z))
		}
	}
	scalar := func(stmt string, m *scene.Material, key string) {
		if v, ok := m.GetFloat(key); ok {
			fmt.Fprintf(bw, "%s %s\n", stmt, formatFloat(v))
		}
	}
	for i, m := range s.Materials {
		fmt.Fprintf(bw, "newmtl %s\n", names[i])
		color("Ka", m, scene.KeyColorAmbient)
		color("Kd", m, scene.KeyColorDiffuse)
		color("Ks", m, scene.KeyColorSpecular)
		color("Ke", m, scene.KeyColorEmissive)
		scalar("Ns", m, scene.KeyShininess)
		if v, ok := m.GetFloat(scene.KeyOpacity); ok {
			fmt.Fprintf(bw, "d %s\n", formatFloat(v))
		} else if c, ok := m.GetColor(scene.KeyColorDiffuse); ok && c.W < 1 {
			fmt.Fprintf(bw, "d %s\n", formatFloat(c.W))
		}
		scalar("Pr", m, scene.KeyRoughnessFactor)
		scalar("Pm", m, scene.KeyMetallicFactor)
		if v, ok := m.GetInt(scene.KeyShadingModel); ok {
			fmt.Fprintf(bw, "illum %d\n", v)
		}
		written := map[string]bool{}
		for _, ts := range textureStatements {
			t, ok := m.Texture(ts.sem, 0)
			if !ok || written[ts.stmt] {
				continue
			}
			path := t.Path
			if f, ok := texFiles[path]; ok {
				path = f
			} else if _, embedded := scene.ParseTextureToken(path); embedded {
				continue
			}
			written[ts.stmt] = true
			fmt.Fprintf(bw, "%s %s\n", ts.stmt, path)
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}
