package gltfio

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"strconv"
	"strings"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"github.com/binzume/modelio/vrm"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"
)

// ticksPerSecond of imported animations. Key times are milliseconds.
const ticksPerSecond = 1000

// resourceFS serves external buffers to the decoder through
// ReadOptions.Open.
type resourceFS struct {
	opts *format.ReadOptions
	err  error
}

func (f *resourceFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
}

func (f *resourceFS) ReadFile(uri string) ([]byte, error) {
	name, err := url.PathUnescape(uri)
	if err != nil {
		name = uri
	}
	r, err := f.opts.OpenFile(formatName, name)
	if err != nil {
		f.err = err
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		f.err = format.WrapIO(formatName, err)
		return nil, err
	}
	return data, nil
}

func (Reader) Read(data []byte, opts *format.ReadOptions) (*scene.Scene, error) {
	res := &resourceFS{opts: opts}
	doc := new(gltf.Document)
	if err := gltf.NewDecoderFS(bytes.NewReader(data), res).Decode(doc); err != nil {
		if res.err != nil {
			return nil, res.err
		}
		return nil, &format.Error{Kind: format.MalformedInput, Format: formatName, Msg: "decode", Err: err}
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return nil, format.Unsupported(formatName, "asset version %q", doc.Asset.Version)
	}
	b := &sceneBuilder{doc: doc, opts: opts, s: scene.New()}
	return b.build()
}

type sceneBuilder struct {
	doc  *gltf.Document
	opts *format.ReadOptions
	s    *scene.Scene

	images    []string
	meshes    [][]int
	nodeNames []string
	visited   []bool
}

// skip drops a malformed element unless reading is strict.
func (b *sceneBuilder) skip(what string, err error) error {
	if b.opts.Strict() {
		return err
	}
	b.opts.Log().Warn("skipping "+what, zap.String("format", formatName), zap.Error(err))
	return nil
}

func (b *sceneBuilder) build() (*scene.Scene, error) {
	doc := b.doc
	b.images = make([]string, len(doc.Images))
	for i, img := range doc.Images {
		path, err := b.image(i, img)
		if err != nil {
			if err := b.skip("image "+strconv.Itoa(i), err); err != nil {
				return nil, err
			}
		}
		b.images[i] = path
	}
	for _, m := range doc.Materials {
		b.s.AddMaterial(b.material(m))
	}
	b.meshes = make([][]int, len(doc.Meshes))
	for i, m := range doc.Meshes {
		name := m.Name
		if name == "" {
			name = "mesh_" + strconv.Itoa(i)
		}
		for j, p := range m.Primitives {
			pname := name
			if j > 0 {
				pname += "_" + strconv.Itoa(j)
			}
			mesh, err := b.primitive(pname, p)
			if err != nil {
				if err := b.skip(fmt.Sprintf("mesh %d primitive %d", i, j), err); err != nil {
					return nil, err
				}
				continue
			}
			b.meshes[i] = append(b.meshes[i], b.s.AddMesh(mesh))
		}
	}

	b.nodeNames = make([]string, len(doc.Nodes))
	used := map[string]bool{}
	for i, n := range doc.Nodes {
		name := n.Name
		if name == "" || used[name] {
			name = fmt.Sprintf("%snode_%d", name, i)
		}
		used[name] = true
		b.nodeNames[i] = name
	}
	b.visited = make([]bool, len(doc.Nodes))
	for _, root := range b.roots() {
		if err := b.node(root, b.s.RootNode); err != nil {
			return nil, err
		}
	}

	for i, a := range doc.Animations {
		anim, err := b.animation(i, a)
		if err != nil {
			if err := b.skip("animation "+strconv.Itoa(i), err); err != nil {
				return nil, err
			}
			continue
		}
		b.s.Animations = append(b.s.Animations, anim)
	}

	if len(b.s.Meshes) == 0 {
		if len(b.s.Animations) == 0 {
			return nil, format.Malformed(formatName, "no geometry")
		}
		b.s.Flags |= scene.FlagIncomplete
	}
	b.s.Metadata.SetString("SourceAsset_Format", "gltf "+doc.Asset.Version)
	if doc.Asset.Generator != "" {
		b.s.Metadata.SetString("SourceAsset_Generator", doc.Asset.Generator)
	}
	if doc.Asset.Copyright != "" {
		b.s.Metadata.SetString("SourceAsset_Copyright", doc.Asset.Copyright)
	}
	if ext, ok := vrm.FromDocument(doc); ok {
		b.avatar(ext)
	}
	return b.s, nil
}

// avatar copies VRM metadata to the scene and tags humanoid bone nodes.
func (b *sceneBuilder) avatar(ext *vrm.VRM) {
	md := &b.s.Metadata
	for k, v := range map[string]string{
		"VRM_Title":   ext.Meta.Title,
		"VRM_Author":  ext.Meta.Author,
		"VRM_Version": ext.Meta.Version,
		"VRM_License": ext.Meta.LicenseName,
	} {
		if v != "" {
			md.SetString(k, v)
		}
	}
	for i, bone := range ext.BoneNodes() {
		if i >= len(b.nodeNames) {
			b.opts.Log().Warn("humanoid bone node out of range", zap.String("bone", bone), zap.Int("node", i))
			continue
		}
		if n := b.s.FindNode(b.nodeNames[i]); n != nil {
			n.Metadata.SetString("HumanBone", bone)
		}
	}
	if missing := ext.MissingBones(); len(missing) > 0 {
		b.opts.Log().Warn("humanoid bones missing", zap.Strings("bones", missing))
	}
}

// roots returns the nodes of the default scene, or every node without a
// parent when the document has no scenes.
func (b *sceneBuilder) roots() []uint32 {
	doc := b.doc
	if len(doc.Scenes) > 0 {
		i := 0
		if doc.Scene != nil && int(*doc.Scene) < len(doc.Scenes) {
			i = int(*doc.Scene)
		}
		return doc.Scenes[i].Nodes
	}
	child := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if int(c) < len(child) {
				child[c] = true
			}
		}
	}
	var roots []uint32
	for i := range doc.Nodes {
		if !child[i] {
			roots = append(roots, uint32(i))
		}
	}
	return roots
}

func (b *sceneBuilder) image(i int, img *gltf.Image) (string, error) {
	var data []byte
	switch {
	case img.BufferView != nil:
		d, err := bufferViewData(b.doc, *img.BufferView)
		if err != nil {
			return "", err
		}
		data = d
	case img.IsEmbeddedResource():
		d, err := img.MarshalData()
		if err != nil {
			return "", &format.Error{Kind: format.MalformedInput, Format: formatName, Msg: "image data uri", Err: err}
		}
		data = d
	case img.URI != "":
		if p, err := url.PathUnescape(img.URI); err == nil {
			return p, nil
		}
		return img.URI, nil
	default:
		return "", format.Malformed(formatName, "image %d has no source", i)
	}
	ext := imageExtension(img.MimeType, data)
	name := img.Name
	if name == "" {
		name = "image_" + strconv.Itoa(i) + "." + ext
	}
	t := &scene.EmbeddedTexture{Filename: name, FormatHint: ext, Data: append([]byte(nil), data...)}
	return scene.TextureToken(b.s.AddTexture(t)), nil
}

func (b *sceneBuilder) texture(i uint32) (string, bool) {
	if int(i) >= len(b.doc.Textures) {
		b.opts.Log().Warn("texture index out of range", zap.Uint32("texture", i))
		return "", false
	}
	t := b.doc.Textures[i]
	if t.Source == nil || int(*t.Source) >= len(b.images) || b.images[*t.Source] == "" {
		return "", false
	}
	return b.images[*t.Source], true
}

func (b *sceneBuilder) addTexture(mat *scene.Material, sem scene.TextureType, index, uv uint32) {
	if path, ok := b.texture(index); ok {
		mat.AddTexture(scene.TextureRef{Semantic: sem, Path: path, UVIndex: int(uv)})
	}
}

func (b *sceneBuilder) material(m *gltf.Material) *scene.Material {
	mat := scene.NewMaterial(m.Name)
	color := [4]float32{1, 1, 1, 1}
	if pbr := m.PBRMetallicRoughness; pbr != nil {
		color = pbr.BaseColorFactorOrDefault()
		mat.SetFloat(scene.KeyMetallicFactor, pbr.MetallicFactorOrDefault())
		mat.SetFloat(scene.KeyRoughnessFactor, pbr.RoughnessFactorOrDefault())
		if t := pbr.BaseColorTexture; t != nil {
			b.addTexture(mat, scene.TextureDiffuse, t.Index, t.TexCoord)
			b.addTexture(mat, scene.TextureBaseColor, t.Index, t.TexCoord)
		}
		if t := pbr.MetallicRoughnessTexture; t != nil {
			b.addTexture(mat, scene.TextureMetalness, t.Index, t.TexCoord)
			b.addTexture(mat, scene.TextureRoughness, t.Index, t.TexCoord)
		}
	} else {
		mat.SetFloat(scene.KeyMetallicFactor, 1)
		mat.SetFloat(scene.KeyRoughnessFactor, 1)
	}
	mat.SetColor(scene.KeyColorDiffuse, geom.Vector4{X: color[0], Y: color[1], Z: color[2], W: color[3]})
	e := m.EmissiveFactor
	if e != [3]float32{} {
		mat.SetColor(scene.KeyColorEmissive, geom.Vector4{X: e[0], Y: e[1], Z: e[2], W: 1})
	}
	switch m.AlphaMode {
	case gltf.AlphaBlend:
		mat.SetString(scene.KeyAlphaMode, "BLEND")
		mat.SetFloat(scene.KeyOpacity, color[3])
	case gltf.AlphaMask:
		mat.SetString(scene.KeyAlphaMode, "MASK")
		mat.SetFloat(scene.KeyAlphaCutoff, m.AlphaCutoffOrDefault())
	default:
		mat.SetString(scene.KeyAlphaMode, "OPAQUE")
	}
	if m.DoubleSided {
		mat.SetBool(scene.KeyTwoSided, true)
	}
	if t := m.NormalTexture; t != nil && t.Index != nil {
		b.addTexture(mat, scene.TextureNormals, *t.Index, 0)
	}
	if t := m.OcclusionTexture; t != nil && t.Index != nil {
		b.addTexture(mat, scene.TextureAmbientOcclusion, *t.Index, 0)
	}
	if t := m.EmissiveTexture; t != nil {
		b.addTexture(mat, scene.TextureEmissive, t.Index, t.TexCoord)
	}
	return mat
}

// attribute reads a vertex attribute with one element per vertex.
func (b *sceneBuilder) attribute(name string, acr uint32, count int, comps ...int) ([]float32, int, error) {
	values, n, err := readFloats(b.doc, acr)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", name, err)
	}
	ok := false
	for _, c := range comps {
		ok = ok || c == n
	}
	if !ok {
		return nil, 0, format.Malformed(formatName, "%s: unexpected element size %d", name, n)
	}
	if len(values) != count*n {
		return nil, 0, format.Malformed(formatName, "%s: %d elements for %d vertices", name, len(values)/n, count)
	}
	return values, n, nil
}

func vectors3(v []float32) []geom.Vector3 {
	out := make([]geom.Vector3, len(v)/3)
	for i := range out {
		out[i] = geom.Vector3{X: v[i*3], Y: v[i*3+1], Z: v[i*3+2]}
	}
	return out
}

func (b *sceneBuilder) primitive(name string, p *gltf.Primitive) (*scene.Mesh, error) {
	pos, ok := p.Attributes["POSITION"]
	if !ok {
		return nil, format.Malformed(formatName, "primitive without POSITION")
	}
	values, n, err := readFloats(b.doc, pos)
	if err != nil {
		return nil, err
	}
	if n != 3 {
		return nil, format.Malformed(formatName, "POSITION: unexpected element size %d", n)
	}
	mesh := scene.NewMesh(name)
	mesh.Vertices = vectors3(values)
	count := len(mesh.Vertices)

	if a, ok := p.Attributes["NORMAL"]; ok {
		v, _, err := b.attribute("NORMAL", a, count, 3)
		if err != nil {
			return nil, err
		}
		mesh.Normals = vectors3(v)
	}
	if a, ok := p.Attributes["TANGENT"]; ok && mesh.HasNormals() {
		v, _, err := b.attribute("TANGENT", a, count, 4)
		if err != nil {
			return nil, err
		}
		mesh.Tangents = make([]geom.Vector3, count)
		mesh.Bitangents = make([]geom.Vector3, count)
		for i := range mesh.Tangents {
			t := geom.Vector3{X: v[i*4], Y: v[i*4+1], Z: v[i*4+2]}
			mesh.Tangents[i] = t
			mesh.Bitangents[i] = *mesh.Normals[i].Cross(&t).Scale(v[i*4+3])
		}
	}
	for ch := 0; ; ch++ {
		attr := "TEXCOORD_" + strconv.Itoa(ch)
		a, ok := p.Attributes[attr]
		if !ok {
			break
		}
		v, _, err := b.attribute(attr, a, count, 2)
		if err != nil {
			return nil, err
		}
		c := mesh.AddTexCoordChannel(2)
		for i := 0; i < count; i++ {
			mesh.TexCoords[c] = append(mesh.TexCoords[c], geom.Vector3{X: v[i*2], Y: 1 - v[i*2+1]})
		}
	}
	for ch := 0; ; ch++ {
		attr := "COLOR_" + strconv.Itoa(ch)
		a, ok := p.Attributes[attr]
		if !ok {
			break
		}
		v, n, err := b.attribute(attr, a, count, 3, 4)
		if err != nil {
			return nil, err
		}
		colors := make([]geom.Vector4, count)
		for i := range colors {
			colors[i] = geom.Vector4{X: v[i*n], Y: v[i*n+1], Z: v[i*n+2], W: 1}
			if n == 4 {
				colors[i].W = v[i*n+3]
			}
		}
		mesh.Colors = append(mesh.Colors, colors)
	}

	var indices []uint32
	if p.Indices != nil {
		if indices, err = readIndices(b.doc, *p.Indices); err != nil {
			return nil, err
		}
	} else {
		indices = make([]uint32, count)
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	if err := b.faces(mesh, p.Mode, indices); err != nil {
		return nil, err
	}
	mesh.UpdatePrimitiveTypes()

	if p.Material != nil {
		if int(*p.Material) < len(b.doc.Materials) {
			mesh.MaterialIndex = int(*p.Material)
		} else if err := b.opts.Recover(format.Malformed(formatName, "mesh %q: material %d out of range", name, *p.Material)); err != nil {
			return nil, err
		}
	}
	return mesh, nil
}

// faces converts an index list of the given topology into faces.
func (b *sceneBuilder) faces(mesh *scene.Mesh, mode gltf.PrimitiveMode, indices []uint32) error {
	count := uint32(len(mesh.Vertices))
	add := func(idx ...uint32) error {
		face := make([]int, len(idx))
		for i, v := range idx {
			if v >= count {
				return b.opts.Recover(format.Malformed(formatName, "mesh %q: vertex index %d out of range [0,%d)", mesh.Name, v, count))
			}
			face[i] = int(v)
		}
		mesh.AddFace(face...)
		return nil
	}
	var err error
	n := len(indices)
	switch mode {
	case gltf.PrimitivePoints:
		for i := 0; i < n && err == nil; i++ {
			err = add(indices[i])
		}
	case gltf.PrimitiveLines:
		for i := 0; i+1 < n && err == nil; i += 2 {
			err = add(indices[i], indices[i+1])
		}
	case gltf.PrimitiveLineStrip, gltf.PrimitiveLineLoop:
		for i := 0; i+1 < n && err == nil; i++ {
			err = add(indices[i], indices[i+1])
		}
		if mode == gltf.PrimitiveLineLoop && n > 2 && err == nil {
			err = add(indices[n-1], indices[0])
		}
	case gltf.PrimitiveTriangles:
		for i := 0; i+2 < n && err == nil; i += 3 {
			err = add(indices[i], indices[i+1], indices[i+2])
		}
	case gltf.PrimitiveTriangleStrip:
		for i := 0; i+2 < n && err == nil; i++ {
			a, c, d := indices[i], indices[i+1], indices[i+2]
			if a == c || c == d || a == d {
				continue
			}
			if i%2 == 1 {
				a, c = c, a
			}
			err = add(a, c, d)
		}
	case gltf.PrimitiveTriangleFan:
		for i := 1; i+1 < n && err == nil; i++ {
			err = add(indices[0], indices[i], indices[i+1])
		}
	default:
		return format.Unsupported(formatName, "primitive mode %d", mode)
	}
	return err
}

func nodeTransform(n *gltf.Node) geom.Matrix4 {
	if n.Matrix != [16]float32{} && n.Matrix != gltf.DefaultMatrix {
		return *geom.NewMatrix4FromSlice(n.Matrix[:])
	}
	r := n.Rotation
	if r == [4]float32{} {
		r = [4]float32{0, 0, 0, 1}
	}
	sc := n.Scale
	if sc == [3]float32{} {
		sc = [3]float32{1, 1, 1}
	}
	return *geom.NewTRSMatrix4(geom.NewVector3FromArray(n.Translation), geom.NewQuaternionFromArray(r), geom.NewVector3FromArray(sc))
}

func (b *sceneBuilder) node(i uint32, parent *scene.Node) error {
	if int(i) >= len(b.doc.Nodes) {
		return format.Malformed(formatName, "node %d out of range", i)
	}
	if b.visited[i] {
		return format.Malformed(formatName, "node %d has more than one parent", i)
	}
	b.visited[i] = true
	src := b.doc.Nodes[i]
	n := parent.AddChild(scene.NewNode(b.nodeNames[i]))
	n.Transform = nodeTransform(src)
	if src.Mesh != nil {
		if int(*src.Mesh) >= len(b.meshes) {
			return format.Malformed(formatName, "node %d: mesh %d out of range", i, *src.Mesh)
		}
		n.Meshes = append(n.Meshes, b.meshes[*src.Mesh]...)
	}
	if src.Skin != nil {
		b.opts.Log().Debug("skin is not imported", zap.String("node", n.Name))
	}
	for _, c := range src.Children {
		if err := b.node(c, n); err != nil {
			return err
		}
	}
	return nil
}

func (b *sceneBuilder) animation(i int, a *gltf.Animation) (*scene.Animation, error) {
	name := a.Name
	if name == "" {
		name = "animation_" + strconv.Itoa(i)
	}
	anim := &scene.Animation{Name: name, TicksPerSecond: ticksPerSecond}
	for ci, ch := range a.Channels {
		if ch.Target.Node == nil || ch.Sampler == nil {
			continue
		}
		if p := ch.Target.Path; p != gltf.TRSTranslation && p != gltf.TRSRotation && p != gltf.TRSScale {
			b.opts.Log().Debug("animation channel not imported", zap.Int("channel", ci))
			continue
		}
		if int(*ch.Target.Node) >= len(b.doc.Nodes) {
			return nil, format.Malformed(formatName, "channel %d: node %d out of range", ci, *ch.Target.Node)
		}
		if int(*ch.Sampler) >= len(a.Samplers) {
			return nil, format.Malformed(formatName, "channel %d: sampler %d out of range", ci, *ch.Sampler)
		}
		smp := a.Samplers[*ch.Sampler]
		if smp.Input == nil || smp.Output == nil {
			return nil, format.Malformed(formatName, "channel %d: sampler without input or output", ci)
		}
		times, _, err := readFloats(b.doc, *smp.Input)
		if err != nil {
			return nil, err
		}
		values, n, err := readFloats(b.doc, *smp.Output)
		if err != nil {
			return nil, err
		}
		// cubic spline outputs are (in-tangent, value, out-tangent) triples
		stride := 1
		if smp.Interpolation == gltf.InterpolationCubicSpline {
			stride = 3
		}
		if len(values) < len(times)*n*stride {
			return nil, format.Malformed(formatName, "channel %d: %d output values for %d keys", ci, len(values), len(times))
		}
		value := func(k int) []float32 {
			off := (k*stride + stride/2) * n
			return values[off : off+n]
		}
		target := anim.Channel(b.nodeNames[*ch.Target.Node])
		switch ch.Target.Path {
		case gltf.TRSTranslation, gltf.TRSScale:
			if n != 3 {
				return nil, format.Malformed(formatName, "channel %d: unexpected element size %d", ci, n)
			}
			keys := make([]scene.VectorKey, len(times))
			for k, t := range times {
				v := value(k)
				keys[k] = scene.VectorKey{Time: float64(t) * ticksPerSecond, Value: geom.Vector3{X: v[0], Y: v[1], Z: v[2]}}
			}
			if ch.Target.Path == gltf.TRSTranslation {
				target.PositionKeys = keys
			} else {
				target.ScalingKeys = keys
			}
		case gltf.TRSRotation:
			if n != 4 {
				return nil, format.Malformed(formatName, "channel %d: unexpected element size %d", ci, n)
			}
			keys := make([]scene.QuatKey, len(times))
			for k, t := range times {
				v := value(k)
				keys[k] = scene.QuatKey{Time: float64(t) * ticksPerSecond, Value: geom.Quaternion{X: v[0], Y: v[1], Z: v[2], W: v[3]}}
			}
			target.RotationKeys = keys
		}
	}
	anim.UpdateDuration()
	return anim, nil
}
