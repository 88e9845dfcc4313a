package mqo

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

type Reader struct{}

func (Reader) Format() string       { return formatName }
func (Reader) Extensions() []string { return []string{"mqo", "mqoz"} }

var zipMagic = []byte("PK\x03\x04")

func (Reader) CanRead(data []byte) bool {
	if bytes.HasPrefix(data, zipMagic) {
		return bytes.Contains(format.Head(data, 1024), []byte(".mqo"))
	}
	return format.HasPrefixFold(data, "Metasequoia Document")
}

func (Reader) Read(data []byte, opts *format.ReadOptions) (*scene.Scene, error) {
	var archive *zip.Reader
	if bytes.HasPrefix(data, zipMagic) {
		var err error
		archive, data, err = openArchive(data)
		if err != nil {
			return nil, err
		}
	}
	doc, err := Parse(data, opts)
	if err != nil {
		return nil, err
	}
	b := &sceneBuilder{doc: doc, opts: opts, archive: archive}
	return b.build()
}

// openArchive returns the first .mqo entry of a zipped document.
func openArchive(data []byte) (*zip.Reader, []byte, error) {
	z, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, format.Malformed(formatName, "mqoz: %v", err)
	}
	for _, f := range z.File {
		if strings.EqualFold(path.Ext(f.Name), ".mqo") {
			b, err := readZipFile(f)
			if err != nil {
				return nil, nil, err
			}
			return z, b, nil
		}
	}
	return nil, nil, format.Malformed(formatName, "mqoz: no .mqo entry")
}

func readZipFile(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, format.Malformed(formatName, "mqoz %s: %v", f.Name, err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, format.WrapIO(formatName, err)
	}
	return b, nil
}

type sceneBuilder struct {
	doc     *Document
	opts    *format.ReadOptions
	archive *zip.Reader
	scene   *scene.Scene
	// textures embedded from the archive by path
	embedded map[string]string
}

func (b *sceneBuilder) build() (*scene.Scene, error) {
	s := scene.New()
	b.scene = s
	for _, m := range b.doc.Materials {
		s.AddMaterial(b.convertMaterial(m))
	}

	// last node seen at each depth
	var stack []*scene.Node
	for _, o := range b.doc.Objects {
		depth := min(max(o.Depth, 0), len(stack))
		parent := s.RootNode
		if depth > 0 {
			parent = stack[depth-1]
		}
		node := parent.AddChild(scene.NewNode(o.Name))
		stack = append(stack[:depth], node)
		if !o.Visible {
			node.Metadata.SetBool("visible", false)
		}
		if o.Mirror != 0 {
			b.opts.Log().Debug("mirror is not applied", zap.String("object", o.Name))
		}
		if err := b.convertObject(o, node); err != nil {
			return nil, err
		}
	}
	if len(s.Meshes) == 0 {
		return nil, format.Malformed(formatName, "no geometry")
	}
	s.Metadata.SetString("SourceAsset_Format", "mqo")
	return s, nil
}

func scale3(c geom.Vector4, f float32) geom.Vector4 {
	return geom.Vector4{X: c.X * f, Y: c.Y * f, Z: c.Z * f, W: 1}
}

func (b *sceneBuilder) convertMaterial(m *Material) *scene.Material {
	mat := scene.NewMaterial(m.Name)
	mat.SetColor(scene.KeyColorDiffuse, m.Color)
	mat.SetColor(scene.KeyColorAmbient, scale3(m.Color, m.Ambient))
	mat.SetColor(scene.KeyColorSpecular, geom.Vector4{X: m.Specular, Y: m.Specular, Z: m.Specular, W: 1})
	if m.EmissionColor != nil {
		mat.SetColor(scene.KeyColorEmissive, geom.Vector4{X: m.EmissionColor.X, Y: m.EmissionColor.Y, Z: m.EmissionColor.Z, W: 1})
	} else if m.Emission > 0 {
		mat.SetColor(scene.KeyColorEmissive, scale3(m.Color, m.Emission))
	}
	mat.SetFloat(scene.KeyShininess, m.Power)
	if m.Color.W < 1 {
		mat.SetFloat(scene.KeyOpacity, m.Color.W)
	}
	if m.DoubleSided {
		mat.SetBool(scene.KeyTwoSided, true)
	}
	if m.Ex2 != nil && m.Ex2.ShaderName == "glTF" {
		if v, ok := m.Ex2.FloatParam("Metallic"); ok {
			mat.SetFloat(scene.KeyMetallicFactor, v)
		}
		if v, ok := m.Ex2.FloatParam("Roughness"); ok {
			mat.SetFloat(scene.KeyRoughnessFactor, v)
		}
		switch mode, _ := m.Ex2.IntParam("AlphaMode"); mode {
		case 2:
			mat.SetString(scene.KeyAlphaMode, "MASK")
			if v, ok := m.Ex2.FloatParam("AlphaCutOff"); ok {
				mat.SetFloat(scene.KeyAlphaCutoff, v)
			}
		case 3:
			mat.SetString(scene.KeyAlphaMode, "BLEND")
		}
	}
	for _, t := range []struct {
		sem  scene.TextureType
		path string
	}{{scene.TextureDiffuse, m.Texture}, {scene.TextureOpacity, m.AlphaPlane}, {scene.TextureHeight, m.BumpTexture}} {
		if t.path != "" {
			mat.AddTexture(scene.TextureRef{Semantic: t.sem, Path: b.texturePath(t.path)})
		}
	}
	return mat
}

// texturePath embeds textures stored next to the document in an archive.
func (b *sceneBuilder) texturePath(name string) string {
	if b.archive == nil {
		return name
	}
	if tok, ok := b.embedded[name]; ok {
		return tok
	}
	for _, f := range b.archive.File {
		if !strings.EqualFold(f.Name, name) && !strings.EqualFold(path.Base(f.Name), path.Base(name)) {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			b.opts.Log().Warn("texture not embedded", zap.String("file", name), zap.Error(err))
			return name
		}
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
		if ext == "jpeg" {
			ext = "jpg"
		}
		tok := scene.TextureToken(b.scene.AddTexture(&scene.EmbeddedTexture{Filename: name, FormatHint: ext, Data: data}))
		if b.embedded == nil {
			b.embedded = map[string]string{}
		}
		b.embedded[name] = tok
		return tok
	}
	return name
}

type cornerKey struct {
	v     int
	uv    geom.Vector2
	color uint32
}

func decodeColor(c uint32) geom.Vector4 {
	return geom.Vector4{
		X: float32(c&0xff) / 255,
		Y: float32(c>>8&0xff) / 255,
		Z: float32(c>>16&0xff) / 255,
		W: float32(c>>24&0xff) / 255,
	}
}

// convertObject adds one mesh per material used by o. Corners are reversed
// to counter-clockwise order and V is flipped to a bottom-left origin.
func (b *sceneBuilder) convertObject(o *Object, node *scene.Node) error {
	s := b.scene
	hasUV, hasColor := false, false
	for _, f := range o.Faces {
		hasUV = hasUV || len(f.UVs) > 0
		hasColor = hasColor || len(f.Colors) > 0
	}
	meshes := map[int]*scene.Mesh{}
	remaps := map[int]map[cornerKey]int{}
	var order []int
	for fi, f := range o.Faces {
		if len(f.Verts) == 0 {
			continue
		}
		valid := true
		for _, v := range f.Verts {
			valid = valid && v >= 0 && v < len(o.Vertexes)
		}
		if !valid {
			if err := b.opts.Recover(format.Malformed(formatName, "object %q face %d: vertex index out of range [0,%d)", o.Name, fi, len(o.Vertexes))); err != nil {
				return err
			}
			continue
		}
		mi := f.Material
		if mi >= len(s.Materials) || mi < -1 {
			if err := b.opts.Recover(format.Malformed(formatName, "object %q face %d: material %d out of range", o.Name, fi, mi)); err != nil {
				return err
			}
			mi = -1
		}
		m := meshes[mi]
		if m == nil {
			m = scene.NewMesh(o.Name)
			m.MaterialIndex = mi
			if hasUV {
				m.AddTexCoordChannel(2)
			}
			if hasColor {
				m.Colors = [][]geom.Vector4{nil}
			}
			meshes[mi] = m
			remaps[mi] = map[cornerKey]int{}
			order = append(order, mi)
		}
		remap := remaps[mi]
		n := len(f.Verts)
		idx := make([]int, n)
		for i := range f.Verts {
			// reversed corner order
			c := n - 1 - i
			key := cornerKey{v: f.Verts[c], color: 0xffffffff}
			if len(f.UVs) == n {
				key.uv = f.UVs[c]
			}
			if len(f.Colors) == n {
				key.color = f.Colors[c]
			}
			vi, ok := remap[key]
			if !ok {
				vi = len(m.Vertices)
				m.Vertices = append(m.Vertices, o.Vertexes[key.v])
				if hasUV {
					m.TexCoords[0] = append(m.TexCoords[0], *key.uv.FlipV().Vector3())
				}
				if hasColor {
					m.Colors[0] = append(m.Colors[0], decodeColor(key.color))
				}
				remap[key] = vi
			}
			idx[i] = vi
		}
		m.AddFace(idx...)
	}
	if len(order) == 0 && len(o.Vertexes) > 0 {
		m := scene.NewMesh(o.Name)
		m.Vertices = append(m.Vertices, o.Vertexes...)
		m.UpdatePrimitiveTypes()
		node.Meshes = append(node.Meshes, s.AddMesh(m))
	}
	for _, mi := range order {
		m := meshes[mi]
		if len(order) > 1 && mi >= 0 {
			m.Name = o.Name + "_" + s.Materials[mi].Name()
		}
		m.UpdatePrimitiveTypes()
		node.Meshes = append(node.Meshes, s.AddMesh(m))
	}
	return nil
}
