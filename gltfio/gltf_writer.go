package gltfio

import (
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"github.com/binzume/modelio/vrm"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"
)

// defaultTicksPerSecond is assumed for animations that do not specify a rate.
const defaultTicksPerSecond = 25

// Writer exports glTF 2.0. Binary selects .glb output; otherwise the JSON
// document refers to a .bin side-car or embeds the buffer as a data URI.
// Avatar writes a binary .vrm with the VRM extension built from the scene
// metadata and the HumanBone tags of nodes.
type Writer struct {
	Binary bool
	Avatar bool
}

func (w Writer) ID() string {
	switch {
	case w.Avatar:
		return "vrm"
	case w.Binary:
		return "glb2"
	}
	return "gltf2"
}

func (w Writer) Extension() string {
	switch {
	case w.Avatar:
		return "vrm"
	case w.Binary:
		return "glb"
	}
	return "gltf"
}

func (Writer) Prepare() []string {
	return []string{"Triangulate", "SortByPrimitiveType"}
}

// sideCarFS stores external buffers through WriteOptions.Create.
type sideCarFS struct {
	opts *format.WriteOptions
}

func (sideCarFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
}

func (f sideCarFS) Create(name string) (io.WriteCloser, error) {
	w, ok, err := f.opts.CreateFile(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("cannot create %s", name)
	}
	return w, nil
}

func (w Writer) Write(out io.Writer, s *scene.Scene, opts *format.WriteOptions) error {
	doc, err := ToDocument(s, opts)
	if err != nil {
		return err
	}
	binary := w.Binary || w.Avatar
	if w.Avatar {
		vrm.Attach(doc, avatarExtension(s, doc, opts.Log()))
	}
	enc := gltf.NewEncoderFS(out, sideCarFS{opts: opts})
	enc.AsBinary = binary
	if !binary && len(doc.Buffers) > 0 {
		buf := doc.Buffers[0]
		if opts != nil && opts.Create != nil {
			buf.URI = opts.Base("model") + ".bin"
		} else {
			buf.URI = "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(buf.Data)
		}
	}
	if err := enc.Encode(doc); err != nil {
		return format.WrapIO(formatName, err)
	}
	return nil
}

// avatarExtension maps the VRM_* scene metadata and the HumanBone node tags
// to a VRM extension for doc. Bones refer to the first glTF node carrying
// the tagged node's name.
func avatarExtension(s *scene.Scene, doc *gltf.Document, log *zap.Logger) *vrm.VRM {
	str := func(key string) string {
		e, _ := s.Metadata.Get(key)
		return e.Str
	}
	ext := &vrm.VRM{
		Meta: vrm.Metadata{
			Title:       str("VRM_Title"),
			Author:      str("VRM_Author"),
			Version:     str("VRM_Version"),
			LicenseName: str("VRM_License"),
		},
		ExporterVersion: "modelio",
	}
	if ext.Meta.Title == "" && s.RootNode != nil {
		ext.Meta.Title = s.RootNode.Name
	}

	bones := map[string]string{}
	_ = s.Walk(func(n, _ *scene.Node, _ int) error {
		if e, ok := n.Metadata.Get("HumanBone"); ok && e.Str != "" {
			if _, dup := bones[n.Name]; !dup {
				bones[n.Name] = e.Str
			}
		}
		return nil
	})
	done := map[string]bool{}
	for i, gn := range doc.Nodes {
		bone, ok := bones[gn.Name]
		if !ok || done[gn.Name] {
			continue
		}
		done[gn.Name] = true
		ext.Humanoid.Bones = append(ext.Humanoid.Bones, &vrm.Bone{Bone: bone, Node: i, UseDefaultValues: true})
	}
	if missing := ext.MissingBones(); len(missing) > 0 {
		log.Warn("humanoid bones missing", zap.Strings("bones", missing))
	}
	return ext
}

type docBuilder struct {
	s    *scene.Scene
	doc  *gltf.Document
	opts *format.WriteOptions

	textures   map[string]uint32
	primitives map[int][]*gltf.Primitive
	meshes     map[string]uint32
	nodes      map[string]uint32
	animated   map[string]bool
}

// ToDocument converts s into a glTF document with a single binary buffer.
func ToDocument(s *scene.Scene, opts *format.WriteOptions) (*gltf.Document, error) {
	if s.RootNode == nil {
		return nil, format.Unsupported(formatName, "scene has no root node")
	}
	doc := gltf.NewDocument()
	doc.Asset.Generator = "modelio"
	if e, ok := s.Metadata.Get("SourceAsset_Copyright"); ok {
		doc.Asset.Copyright = e.Str
	}
	if len(doc.Buffers) == 0 {
		doc.Buffers = []*gltf.Buffer{{}}
	}
	b := &docBuilder{
		s:          s,
		doc:        doc,
		opts:       opts,
		textures:   map[string]uint32{},
		primitives: map[int][]*gltf.Primitive{},
		meshes:     map[string]uint32{},
		nodes:      map[string]uint32{},
		animated:   map[string]bool{},
	}
	b.embedImages()
	for _, m := range s.Materials {
		doc.Materials = append(doc.Materials, b.material(m))
	}
	if len(doc.Textures) > 0 {
		doc.Samplers = []*gltf.Sampler{{}}
	}
	for _, a := range s.Animations {
		for _, ch := range a.Channels {
			b.animated[ch.NodeName] = true
		}
	}

	root := s.RootNode
	var roots []*scene.Node
	if root.IsIdentity() && len(root.Meshes) == 0 && len(root.Children) > 0 && !b.animated[root.Name] {
		roots = root.Children
	} else {
		roots = []*scene.Node{root}
	}
	for _, n := range roots {
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, b.node(n))
	}
	for _, a := range s.Animations {
		if ga := b.animation(a); ga != nil {
			doc.Animations = append(doc.Animations, ga)
		}
	}

	if len(doc.Buffers[0].Data) == 0 {
		doc.Buffers = nil
	} else {
		doc.Buffers[0].ByteLength = uint32(len(doc.Buffers[0].Data))
	}
	return doc, nil
}

func (b *docBuilder) embedImages() {
	for i, t := range b.s.Textures {
		mime := mimeType(t.FormatHint, t.Data)
		if mime != "image/png" && mime != "image/jpeg" {
			b.opts.Log().Warn("texture is not png or jpeg", zap.Int("texture", i), zap.String("mime", mime))
		}
		bv := modeler.WriteBufferView(b.doc, gltf.TargetNone, t.Data)
		b.doc.Images = append(b.doc.Images, &gltf.Image{Name: t.Filename, MimeType: mime, BufferView: gltf.Index(bv)})
		b.textures[scene.TextureToken(i)] = b.addTexture(uint32(len(b.doc.Images) - 1))
	}
}

func (b *docBuilder) addTexture(image uint32) uint32 {
	b.doc.Textures = append(b.doc.Textures, &gltf.Texture{Sampler: gltf.Index(0), Source: gltf.Index(image)})
	return uint32(len(b.doc.Textures) - 1)
}

// texture returns the texture index for a material texture path. Files
// are referenced by URI.
func (b *docBuilder) texture(path string) (uint32, bool) {
	if t, ok := b.textures[path]; ok {
		return t, true
	}
	if _, ok := scene.ParseTextureToken(path); ok {
		b.opts.Log().Warn("missing embedded texture", zap.String("ref", path))
		return 0, false
	}
	b.doc.Images = append(b.doc.Images, &gltf.Image{URI: filepath.ToSlash(path)})
	t := b.addTexture(uint32(len(b.doc.Images) - 1))
	b.textures[path] = t
	return t, true
}

func (b *docBuilder) textureInfo(m *scene.Material, sems ...scene.TextureType) (uint32, uint32, bool) {
	for _, sem := range sems {
		if ref, ok := m.Texture(sem, 0); ok && ref.Path != "" {
			if t, ok := b.texture(ref.Path); ok {
				return t, uint32(ref.UVIndex), true
			}
		}
	}
	return 0, 0, false
}

func (b *docBuilder) material(m *scene.Material) *gltf.Material {
	color := geom.Vector4{X: 1, Y: 1, Z: 1, W: 1}
	if c, ok := m.GetColor(scene.KeyColorDiffuse); ok {
		color = c
	}
	if o, ok := m.GetFloat(scene.KeyOpacity); ok {
		color.W = o
	}
	var metallic float32
	if v, ok := m.GetFloat(scene.KeyMetallicFactor); ok {
		metallic = v
	}
	var roughness float32 = 0.4
	if v, ok := m.GetFloat(scene.KeyRoughnessFactor); ok {
		roughness = v
	}
	mm := &gltf.Material{
		Name: m.Name(),
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float32{color.X, color.Y, color.Z, color.W},
			MetallicFactor:  &metallic,
			RoughnessFactor: &roughness,
		},
		DoubleSided: m.GetBool(scene.KeyTwoSided),
	}
	if e, ok := m.GetColor(scene.KeyColorEmissive); ok {
		mm.EmissiveFactor = [3]float32{e.X, e.Y, e.Z}
	}
	mode, _ := m.GetString(scene.KeyAlphaMode)
	switch {
	case mode == "MASK":
		mm.AlphaMode = gltf.AlphaMask
		if c, ok := m.GetFloat(scene.KeyAlphaCutoff); ok {
			mm.AlphaCutoff = &c
		}
	case mode == "BLEND", mode == "" && color.W < 1:
		mm.AlphaMode = gltf.AlphaBlend
	default:
		mm.AlphaMode = gltf.AlphaOpaque
	}

	if t, uv, ok := b.textureInfo(m, scene.TextureBaseColor, scene.TextureDiffuse); ok {
		mm.PBRMetallicRoughness.BaseColorTexture = &gltf.TextureInfo{Index: t, TexCoord: uv}
	}
	if t, uv, ok := b.textureInfo(m, scene.TextureMetalness, scene.TextureRoughness); ok {
		mm.PBRMetallicRoughness.MetallicRoughnessTexture = &gltf.TextureInfo{Index: t, TexCoord: uv}
	}
	if t, uv, ok := b.textureInfo(m, scene.TextureEmissive); ok {
		mm.EmissiveTexture = &gltf.TextureInfo{Index: t, TexCoord: uv}
	}
	if t, _, ok := b.textureInfo(m, scene.TextureNormals); ok {
		mm.NormalTexture = &gltf.NormalTexture{Index: gltf.Index(t)}
	}
	if t, _, ok := b.textureInfo(m, scene.TextureAmbientOcclusion, scene.TextureLightmap); ok {
		mm.OcclusionTexture = &gltf.OcclusionTexture{Index: gltf.Index(t)}
	}
	return mm
}

// meshPrimitives writes the vertex data of mesh i and returns one
// primitive per face size.
func (b *docBuilder) meshPrimitives(i int) []*gltf.Primitive {
	if p, ok := b.primitives[i]; ok {
		return p
	}
	doc := b.doc
	m := b.s.Meshes[i]
	count := len(m.Vertices)
	attrs := map[string]uint32{}

	positions := make([][3]float32, count)
	for k, v := range m.Vertices {
		positions[k] = v.Array()
	}
	attrs["POSITION"] = modeler.WritePosition(doc, positions)
	if len(m.Normals) == count {
		normals := make([][3]float32, count)
		for k, v := range m.Normals {
			normals[k] = v.Array()
		}
		attrs["NORMAL"] = modeler.WriteNormal(doc, normals)
		if len(m.Tangents) == count && len(m.Bitangents) == count {
			tangents := make([][4]float32, count)
			for k, t := range m.Tangents {
				w := float32(1)
				if m.Normals[k].Cross(&t).Dot(&m.Bitangents[k]) < 0 {
					w = -1
				}
				tangents[k] = [4]float32{t.X, t.Y, t.Z, w}
			}
			attrs["TANGENT"] = modeler.WriteTangent(doc, tangents)
		}
	}
	uv := 0
	for _, ch := range m.TexCoords {
		if len(ch) != count {
			continue
		}
		coords := make([][2]float32, count)
		for k, t := range ch {
			coords[k] = [2]float32{t.X, 1 - t.Y}
		}
		attrs[fmt.Sprintf("TEXCOORD_%d", uv)] = modeler.WriteTextureCoord(doc, coords)
		uv++
	}
	nc := 0
	for _, ch := range m.Colors {
		if len(ch) != count {
			continue
		}
		colors := make([][4]float32, count)
		for k, c := range ch {
			colors[k] = c.Array()
		}
		attrs[fmt.Sprintf("COLOR_%d", nc)] = modeler.WriteAccessor(doc, gltf.TargetArrayBuffer, colors)
		nc++
	}

	var points, lines, triangles []uint32
	for _, f := range m.Faces {
		idx := f.Indices
		switch len(idx) {
		case 0:
		case 1:
			points = append(points, uint32(idx[0]))
		case 2:
			lines = append(lines, uint32(idx[0]), uint32(idx[1]))
		default:
			for k := 1; k+1 < len(idx); k++ {
				triangles = append(triangles, uint32(idx[0]), uint32(idx[k]), uint32(idx[k+1]))
			}
		}
	}
	var prims []*gltf.Primitive
	add := func(mode gltf.PrimitiveMode, indices []uint32) {
		p := &gltf.Primitive{Attributes: attrs, Mode: mode}
		if indices != nil {
			p.Indices = gltf.Index(modeler.WriteIndices(doc, indices))
		}
		if m.MaterialIndex >= 0 && m.MaterialIndex < len(b.s.Materials) {
			p.Material = gltf.Index(uint32(m.MaterialIndex))
		}
		prims = append(prims, p)
	}
	if len(m.Faces) == 0 {
		add(gltf.PrimitivePoints, nil)
	}
	if len(triangles) > 0 {
		add(gltf.PrimitiveTriangles, triangles)
	}
	if len(lines) > 0 {
		add(gltf.PrimitiveLines, lines)
	}
	if len(points) > 0 {
		add(gltf.PrimitivePoints, points)
	}
	b.primitives[i] = prims
	return prims
}

// mesh returns a glTF mesh holding the primitives of the given scene meshes.
func (b *docBuilder) mesh(name string, indices []int) (uint32, bool) {
	key := fmt.Sprint(indices)
	if i, ok := b.meshes[key]; ok {
		return i, true
	}
	gm := &gltf.Mesh{}
	for _, i := range indices {
		if i < 0 || i >= len(b.s.Meshes) {
			b.opts.Log().Warn("mesh reference out of range", zap.String("node", name), zap.Int("mesh", i))
			continue
		}
		if gm.Name == "" {
			gm.Name = b.s.Meshes[i].Name
		}
		gm.Primitives = append(gm.Primitives, b.meshPrimitives(i)...)
	}
	if len(gm.Primitives) == 0 {
		return 0, false
	}
	b.doc.Meshes = append(b.doc.Meshes, gm)
	b.meshes[key] = uint32(len(b.doc.Meshes) - 1)
	return b.meshes[key], true
}

func (b *docBuilder) node(n *scene.Node) uint32 {
	gn := &gltf.Node{
		Name:     n.Name,
		Matrix:   gltf.DefaultMatrix,
		Rotation: [4]float32{0, 0, 0, 1},
		Scale:    [3]float32{1, 1, 1},
	}
	if !n.Transform.IsIdentity() {
		if b.animated[n.Name] {
			t, r, sc := n.Transform.Decompose()
			gn.Translation = t.Array()
			gn.Rotation = r.Array()
			gn.Scale = sc.Array()
		} else {
			n.Transform.ToArray(gn.Matrix[:])
		}
	}
	idx := uint32(len(b.doc.Nodes))
	b.doc.Nodes = append(b.doc.Nodes, gn)
	if _, ok := b.nodes[n.Name]; !ok {
		b.nodes[n.Name] = idx
	}
	if len(n.Meshes) > 0 {
		if mi, ok := b.mesh(n.Name, n.Meshes); ok {
			gn.Mesh = gltf.Index(mi)
		}
	}
	for _, c := range n.Children {
		gn.Children = append(gn.Children, b.node(c))
	}
	return idx
}

func (b *docBuilder) keyTimes(times []float32) uint32 {
	acc := modeler.WriteAccessor(b.doc, gltf.TargetNone, times)
	b.doc.Accessors[acc].Min = []float32{times[0]}
	b.doc.Accessors[acc].Max = []float32{times[len(times)-1]}
	return acc
}

func (b *docBuilder) animation(a *scene.Animation) *gltf.Animation {
	tps := a.TicksPerSecond
	if tps <= 0 {
		tps = defaultTicksPerSecond
	}
	ga := &gltf.Animation{Name: a.Name}
	addChannel := func(node, input, output uint32, path gltf.TRSProperty) {
		ga.Samplers = append(ga.Samplers, &gltf.AnimationSampler{
			Input:         gltf.Index(input),
			Output:        gltf.Index(output),
			Interpolation: gltf.InterpolationLinear,
		})
		ga.Channels = append(ga.Channels, &gltf.Channel{
			Sampler: gltf.Index(uint32(len(ga.Samplers) - 1)),
			Target:  gltf.ChannelTarget{Node: gltf.Index(node), Path: path},
		})
	}
	vectorKeys := func(node uint32, keys []scene.VectorKey, path gltf.TRSProperty) {
		if len(keys) == 0 {
			return
		}
		times := make([]float32, len(keys))
		values := make([][3]float32, len(keys))
		for i, k := range keys {
			times[i] = float32(k.Time / tps)
			values[i] = k.Value.Array()
		}
		addChannel(node, b.keyTimes(times), modeler.WriteAccessor(b.doc, gltf.TargetNone, values), path)
	}
	for _, ch := range a.Channels {
		node, ok := b.nodes[ch.NodeName]
		if !ok {
			b.opts.Log().Warn("animation channel target not found", zap.String("animation", a.Name), zap.String("node", ch.NodeName))
			continue
		}
		vectorKeys(node, ch.PositionKeys, gltf.TRSTranslation)
		if len(ch.RotationKeys) > 0 {
			times := make([]float32, len(ch.RotationKeys))
			values := make([][4]float32, len(ch.RotationKeys))
			for i, k := range ch.RotationKeys {
				times[i] = float32(k.Time / tps)
				values[i] = k.Value.Array()
			}
			addChannel(node, b.keyTimes(times), modeler.WriteAccessor(b.doc, gltf.TargetNone, values), gltf.TRSRotation)
		}
		vectorKeys(node, ch.ScalingKeys, gltf.TRSScale)
	}
	if len(ga.Channels) == 0 {
		return nil
	}
	return ga
}
