package ply

import (
	"bytes"
	"strings"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

type Reader struct{}

func (Reader) Format() string       { return formatName }
func (Reader) Extensions() []string { return []string{"ply"} }

func (Reader) CanRead(data []byte) bool {
	data = data[skipBOM(data):]
	return len(data) > 3 && bytes.EqualFold(data[:3], []byte("ply")) && (data[3] == '\n' || data[3] == '\r')
}

func skipBOM(data []byte) int {
	if len(data) >= 3 && data[0] == 0xef && data[1] == 0xbb && data[2] == 0xbf {
		return 3
	}
	return 0
}

func (Reader) Read(data []byte, opts *format.ReadOptions) (*scene.Scene, error) {
	doc, err := Parse(data, opts)
	if err != nil {
		return nil, err
	}
	return (&sceneBuilder{doc: doc, opts: opts}).build()
}

type sceneBuilder struct {
	doc  *Document
	opts *format.ReadOptions
	mesh *scene.Mesh
}

func (b *sceneBuilder) build() (*scene.Scene, error) {
	vertex := b.doc.Element("vertex")
	if vertex == nil || vertex.Count == 0 {
		return nil, malformed("no vertex data")
	}
	b.mesh = scene.NewMesh("mesh")
	if err := b.readVertices(vertex); err != nil {
		return nil, err
	}
	for _, e := range b.doc.Elements {
		var err error
		switch e.Name {
		case "vertex":
		case "face":
			err = b.readFaces(e)
		case "tristrips":
			err = b.readTriStrips(e)
		case "edge":
			err = b.readEdges(e)
		default:
			b.opts.Log().Debug("ignoring element", zap.String("element", e.Name), zap.Int("count", e.Count))
		}
		if err != nil {
			return nil, err
		}
	}
	b.mesh.UpdatePrimitiveTypes()

	s := scene.New()
	mat := scene.NewMaterial("DefaultMaterial")
	mat.SetColor(scene.KeyColorDiffuse, geom.Vector4{X: 0.6, Y: 0.6, Z: 0.6, W: 1})
	for _, c := range b.doc.Comments {
		if !strings.HasPrefix(c, "TextureFile") {
			continue
		}
		path := strings.TrimSpace(strings.TrimPrefix(c, "TextureFile"))
		if _, embedded := scene.ParseTextureToken(path); embedded || path == "" {
			// PLY has no embedded textures
			if err := b.opts.Recover(malformed("invalid texture file %q", path)); err != nil {
				return nil, err
			}
			continue
		}
		mat.AddTexture(scene.TextureRef{Semantic: scene.TextureDiffuse, Path: path})
	}
	b.mesh.MaterialIndex = s.AddMaterial(mat)
	s.RootNode.Meshes = append(s.RootNode.Meshes, s.AddMesh(b.mesh))
	for _, info := range b.doc.ObjInfo {
		k, v, _ := strings.Cut(info, " ")
		s.Metadata.SetString(k, strings.TrimSpace(v))
	}
	s.Metadata.SetString("SourceAsset_Format", "ply "+b.doc.Encoding.String()+" "+b.doc.Version)
	return s, nil
}

func scalars(e *Element, idx int) []float64 {
	if idx < 0 || e.Properties[idx].IsList {
		return nil
	}
	return e.Scalars[idx]
}

func (b *sceneBuilder) readVertices(e *Element) error {
	x, y, z := scalars(e, e.PropertyIndex("x")), scalars(e, e.PropertyIndex("y")), scalars(e, e.PropertyIndex("z"))
	if x == nil || y == nil || z == nil {
		return malformed("vertex element has no x/y/z")
	}
	m := b.mesh
	m.Vertices = make([]geom.Vector3, e.Count)
	for i := range m.Vertices {
		m.Vertices[i] = geom.Vector3{X: float32(x[i]), Y: float32(y[i]), Z: float32(z[i])}
	}

	nx, ny, nz := scalars(e, e.PropertyIndex("nx")), scalars(e, e.PropertyIndex("ny")), scalars(e, e.PropertyIndex("nz"))
	if nx != nil && ny != nil && nz != nil {
		m.Normals = make([]geom.Vector3, e.Count)
		for i := range m.Normals {
			m.Normals[i] = geom.Vector3{X: float32(nx[i]), Y: float32(ny[i]), Z: float32(nz[i])}
		}
	}

	ri := e.PropertyIndex("red", "diffuse_red", "r")
	gi := e.PropertyIndex("green", "diffuse_green", "g")
	bi := e.PropertyIndex("blue", "diffuse_blue", "b")
	ai := e.PropertyIndex("alpha", "diffuse_alpha", "a")
	if r, g, bl := scalars(e, ri), scalars(e, gi), scalars(e, bi); r != nil && g != nil && bl != nil {
		a := scalars(e, ai)
		colors := make([]geom.Vector4, e.Count)
		for i := range colors {
			colors[i] = geom.Vector4{
				X: colorValue(r[i], e.Properties[ri].Type),
				Y: colorValue(g[i], e.Properties[gi].Type),
				Z: colorValue(bl[i], e.Properties[bi].Type),
				W: 1,
			}
			if a != nil {
				colors[i].W = colorValue(a[i], e.Properties[ai].Type)
			}
		}
		m.Colors = [][]geom.Vector4{colors}
	}

	for _, uv := range [][2]string{{"u", "v"}, {"s", "t"}, {"texture_u", "texture_v"}, {"texture_s", "texture_t"}} {
		u, v := scalars(e, e.PropertyIndex(uv[0])), scalars(e, e.PropertyIndex(uv[1]))
		if u == nil || v == nil {
			continue
		}
		ch := m.AddTexCoordChannel(2)
		for i := 0; i < e.Count; i++ {
			m.TexCoords[ch] = append(m.TexCoords[ch], geom.Vector3{X: float32(u[i]), Y: float32(v[i])})
		}
		break
	}
	return nil
}

func colorValue(v float64, t DataType) float32 {
	if t.IsInteger() {
		return float32(v / t.MaxValue())
	}
	return float32(v)
}

// indices converts a list of index values, reporting values outside the
// vertex range.
func (b *sceneBuilder) indices(list []float64) ([]int, bool) {
	idx := make([]int, len(list))
	for i, v := range list {
		if v < 0 || v >= float64(len(b.mesh.Vertices)) || v != float64(int(v)) {
			return nil, false
		}
		idx[i] = int(v)
	}
	return idx, true
}

func (b *sceneBuilder) readFaces(e *Element) error {
	pi := e.PropertyIndex("vertex_indices", "vertex_index")
	if pi < 0 || !e.Properties[pi].IsList {
		return b.opts.Recover(malformed("face element has no vertex_indices list"))
	}
	if e.PropertyIndex("texcoord") >= 0 {
		b.opts.Log().Warn("per-face texcoord lists are not supported")
	}
	b.mesh.Faces = make([]scene.Face, 0, e.Count)
	for i, list := range e.Lists[pi] {
		if len(list) == 0 {
			continue
		}
		idx, ok := b.indices(list)
		if !ok {
			if err := b.opts.Recover(malformed("face %d has an index out of range", i)); err != nil {
				return err
			}
			continue
		}
		b.mesh.AddFace(idx...)
	}
	return nil
}

// readTriStrips splits strips at -1 and flips every other triangle.
func (b *sceneBuilder) readTriStrips(e *Element) error {
	pi := e.PropertyIndex("vertex_indices")
	if pi < 0 || !e.Properties[pi].IsList {
		return b.opts.Recover(malformed("tristrips element has no vertex_indices list"))
	}
	for _, list := range e.Lists[pi] {
		var strip []float64
		flush := func() error {
			idx, ok := b.indices(strip)
			strip = strip[:0]
			if !ok {
				return b.opts.Recover(malformed("strip index out of range"))
			}
			for k := 2; k < len(idx); k++ {
				a, c := idx[k-2], idx[k-1]
				if k%2 == 1 {
					a, c = c, a
				}
				if a == c || c == idx[k] || a == idx[k] {
					continue
				}
				b.mesh.AddFace(a, c, idx[k])
			}
			return nil
		}
		for _, v := range list {
			if v < 0 {
				if err := flush(); err != nil {
					return err
				}
				continue
			}
			strip = append(strip, v)
		}
		if err := flush(); err != nil {
			return err
		}
	}
	return nil
}

func (b *sceneBuilder) readEdges(e *Element) error {
	v1, v2 := scalars(e, e.PropertyIndex("vertex1")), scalars(e, e.PropertyIndex("vertex2"))
	if v1 == nil || v2 == nil {
		return b.opts.Recover(malformed("edge element has no vertex1/vertex2"))
	}
	for i := range v1 {
		idx, ok := b.indices([]float64{v1[i], v2[i]})
		if !ok {
			if err := b.opts.Recover(malformed("edge %d has an index out of range", i)); err != nil {
				return err
			}
			continue
		}
		b.mesh.AddFace(idx...)
	}
	return nil
}
