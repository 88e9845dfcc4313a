package mmd

import (
	"io"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

// Writer writes a scene as a PMX 2.0 model. Every node below the root
// becomes a bone and vertices are bound to the bone of their node.
type Writer struct{}

func (Writer) ID() string        { return pmxFormat }
func (Writer) Extension() string { return "pmx" }

func (Writer) Prepare() []string { return []string{"Triangulate"} }

func (Writer) Write(w io.Writer, s *scene.Scene, opts *format.WriteOptions) error {
	doc, err := FromScene(s, opts)
	if err != nil {
		return err
	}
	if err := WritePMX(doc, w); err != nil {
		return format.WrapIO(pmxFormat, err)
	}
	return nil
}

type docBuilder struct {
	s        *scene.Scene
	opts     *format.WriteOptions
	doc      *Document
	texFiles map[string]string
	textures map[string]int
	bones    map[*scene.Node]int
	world    map[*scene.Node]*geom.Matrix4
}

// FromScene converts s into a PMX document.
func FromScene(s *scene.Scene, opts *format.WriteOptions) (*Document, error) {
	if s.RootNode == nil {
		return nil, format.Unsupported(pmxFormat, "scene has no root node")
	}
	texFiles, err := format.ExtractTextures(s, opts.Base("model"), pmxFormat, opts)
	if err != nil {
		return nil, err
	}
	b := &docBuilder{
		s:        s,
		opts:     opts,
		doc:      NewDocument(),
		texFiles: texFiles,
		textures: map[string]int{},
		bones:    map[*scene.Node]int{},
		world:    map[*scene.Node]*geom.Matrix4{},
	}
	b.doc.Name = opts.Base("model")
	b.doc.Comment = "modelio"
	b.buildBones()
	if err := b.buildGeometry(); err != nil {
		return nil, err
	}
	return b.doc, nil
}

func (b *docBuilder) buildBones() {
	_ = b.s.Walk(func(n, parent *scene.Node, depth int) error {
		pm := geom.NewMatrix4()
		if parent != nil {
			pm = b.world[parent]
		}
		b.world[n] = pm.Mul(&n.Transform)
		if n == b.s.RootNode {
			return nil
		}
		m := b.world[n]
		bone := &Bone{
			Name:     n.Name,
			Pos:      mirror(geom.Vector3{X: m[12], Y: m[13], Z: m[14]}),
			ParentID: -1,
			TailID:   -1,
			Flags:    BoneFlagRotatable | BoneFlagVisible | BoneFlagEnabled,
		}
		if p, ok := b.bones[parent]; ok {
			bone.ParentID = p
		} else {
			bone.Flags |= BoneFlagTranslatable
		}
		b.bones[n] = len(b.doc.Bones)
		b.doc.Bones = append(b.doc.Bones, bone)
		return nil
	})
	if len(b.doc.Bones) == 0 {
		b.doc.Bones = append(b.doc.Bones, &Bone{
			Name:     "Root",
			ParentID: -1,
			TailID:   -1,
			Flags:    BoneFlagRotatable | BoneFlagTranslatable | BoneFlagVisible | BoneFlagEnabled,
		})
	}
}

func (b *docBuilder) texture(m *scene.Material, sems ...scene.TextureType) int {
	for _, sem := range sems {
		t, ok := m.Texture(sem, 0)
		if !ok {
			continue
		}
		p := t.Path
		if f, ok := b.texFiles[p]; ok {
			p = f
		} else if _, embedded := scene.ParseTextureToken(p); embedded {
			continue
		}
		if id, ok := b.textures[p]; ok {
			return id
		}
		id := len(b.doc.Textures)
		b.doc.Textures = append(b.doc.Textures, p)
		b.textures[p] = id
		return id
	}
	return -1
}

func (b *docBuilder) material(m *scene.Material) *Material {
	mat := &Material{
		Name:      "material",
		Color:     geom.Vector4{X: 0.8, Y: 0.8, Z: 0.8, W: 1},
		EdgeColor: geom.Vector4{W: 1},
		Flags:     MaterialFlagCastShadow,
		TextureID: -1,
		EnvID:     -1,
		Toon:      -1,
	}
	if m == nil {
		return mat
	}
	if n := m.Name(); n != "" {
		mat.Name = n
	}
	if c, ok := m.GetColor(scene.KeyColorDiffuse); ok {
		mat.Color = c
	}
	if v, ok := m.GetFloat(scene.KeyOpacity); ok {
		mat.Color.W = v
	}
	if c, ok := m.GetColor(scene.KeyColorSpecular); ok {
		mat.Specular = geom.Vector3{X: c.X, Y: c.Y, Z: c.Z}
	}
	if v, ok := m.GetFloat(scene.KeyShininess); ok {
		mat.Specularity = v
	}
	if c, ok := m.GetColor(scene.KeyColorAmbient); ok {
		mat.AColor = geom.Vector3{X: c.X, Y: c.Y, Z: c.Z}
	}
	if m.GetBool(scene.KeyTwoSided) {
		mat.Flags |= MaterialFlagDoubleSided
	}
	mat.TextureID = b.texture(m, scene.TextureDiffuse, scene.TextureBaseColor)
	if env := b.texture(m, scene.TextureReflection); env >= 0 {
		mat.EnvID = env
		mat.EnvMode = 1
	}
	return mat
}

// buildGeometry writes the triangles of every mesh instance in world space,
// grouped by material so that each material covers one face range.
func (b *docBuilder) buildGeometry() error {
	insts := b.s.Instances()
	groups := map[int][]scene.Instance{}
	for _, inst := range insts {
		if inst.Mesh < 0 || inst.Mesh >= len(b.s.Meshes) {
			continue
		}
		mi := b.s.Meshes[inst.Mesh].MaterialIndex
		if mi < 0 || mi >= len(b.s.Materials) {
			mi = scene.NoMaterial
		}
		groups[mi] = append(groups[mi], inst)
	}

	order := make([]int, 0, len(b.s.Materials)+1)
	for i := range b.s.Materials {
		order = append(order, i)
	}
	if len(groups[scene.NoMaterial]) > 0 {
		order = append(order, scene.NoMaterial)
	}

	skipped := 0
	for _, mi := range order {
		var src *scene.Material
		if mi >= 0 {
			src = b.s.Materials[mi]
		}
		mat := b.material(src)
		start := len(b.doc.Faces)
		for _, inst := range groups[mi] {
			skipped += b.addInstance(inst)
		}
		mat.Count = (len(b.doc.Faces) - start) * 3
		b.doc.Materials = append(b.doc.Materials, mat)
	}
	if skipped > 0 {
		b.opts.Log().Warn("skipping non-triangle faces", zap.String("format", pmxFormat), zap.Int("faces", skipped))
	}
	if len(b.doc.Faces) == 0 {
		return format.Unsupported(pmxFormat, "scene has no triangles")
	}
	return nil
}

func (b *docBuilder) addInstance(inst scene.Instance) int {
	m := b.s.Meshes[inst.Mesh]
	normalMat := inst.Transform.NormalMatrix()
	// root meshes bind to the first bone
	bone := b.bones[inst.Node]
	base := len(b.doc.Vertexes)
	for i := range m.Vertices {
		v := &Vertex{
			Pos:         mirror(*inst.Transform.ApplyTo(&m.Vertices[i])),
			Bones:       []int{bone},
			BoneWeights: []float32{1},
			EdgeScale:   1,
		}
		if m.HasNormals() {
			v.Normal = mirror(*normalMat.ApplyToDirection(&m.Normals[i]).Normalize())
		}
		if m.HasTextureCoords(0) {
			uv := m.TexCoords[0][i]
			v.UV = *uv.XY().FlipV()
		}
		b.doc.Vertexes = append(b.doc.Vertexes, v)
	}
	skipped := 0
	for _, f := range m.Faces {
		if len(f.Indices) != 3 {
			skipped++
			continue
		}
		b.doc.Faces = append(b.doc.Faces, &Face{Verts: [3]int{
			base + f.Indices[0], base + f.Indices[2], base + f.Indices[1],
		}})
	}
	return skipped
}
