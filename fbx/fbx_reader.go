package fbx

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

// Reader imports FBX files into a scene.
type Reader struct{}

func (Reader) Format() string       { return formatName }
func (Reader) Extensions() []string { return []string{"fbx"} }

func (Reader) CanRead(data []byte) bool {
	if isBinary(data) {
		return true
	}
	if format.HasPrefixFold(data, "; FBX") {
		return true
	}
	return bytes.Contains(format.Head(data, 1024), []byte("FBXHeaderExtension:"))
}

func (Reader) Read(data []byte, opts *format.ReadOptions) (*scene.Scene, error) {
	doc, err := Load(data)
	if err != nil {
		return nil, err
	}
	b := &sceneBuilder{
		doc:       doc,
		opts:      opts,
		materials: map[string]int{},
		textures:  map[string]int{},
		meshes:    map[string][]int{},
		nodeNames: map[string]string{},
		visited:   map[string]bool{},
		usedNames: map[string]bool{},
	}
	return b.build()
}

type sceneBuilder struct {
	doc       *Document
	opts      *format.ReadOptions
	s         *scene.Scene
	materials map[string]int
	textures  map[string]int
	meshes    map[string][]int
	nodeNames map[string]string
	visited   map[string]bool
	usedNames map[string]bool
}

func (b *sceneBuilder) build() (*scene.Scene, error) {
	b.s = scene.New()
	b.usedNames[b.s.RootNode.Name] = true
	for _, m := range b.doc.Scene.ChildObjects("Model") {
		n, err := b.node(m)
		if err != nil {
			return nil, err
		}
		if n != nil {
			b.s.RootNode.AddChild(n)
		}
	}
	if err := b.animations(); err != nil {
		return nil, err
	}
	if len(b.s.Meshes) == 0 {
		if len(b.s.Animations) == 0 {
			return nil, format.Malformed(formatName, "no geometry")
		}
		b.s.Flags |= scene.FlagIncomplete
	}
	b.metadata()
	return b.s, nil
}

func (b *sceneBuilder) metadata() {
	md := &b.s.Metadata
	md.SetString("SourceAsset_Format", "fbx "+VersionString(b.doc.Version))
	if b.doc.Creator != "" {
		md.SetString("SourceAsset_Generator", b.doc.Creator)
	}
	gs := b.doc.GlobalSettings()
	if gs == nil {
		return
	}
	if p := gs.Property("UnitScaleFactor"); len(p) > 0 {
		md.SetFloat("UnitScaleFactor", float64(p[0].ToFloat32(1)))
	}
	for _, key := range []string{"UpAxis", "UpAxisSign", "FrontAxis", "FrontAxisSign", "CoordAxis", "CoordAxisSign"} {
		if p := gs.Property(key); len(p) > 0 {
			md.SetInt(key, p[0].ToInt64(0))
		}
	}
	if p := gs.Property("CustomFrameRate"); len(p) > 0 && p[0].ToFloat64(-1) > 0 {
		md.SetFloat("FrameRate", p[0].ToFloat64(0))
	}
}

func (b *sceneBuilder) uniqueName(name string) string {
	if name == "" {
		name = "node"
	}
	unique := name
	for i := 1; b.usedNames[unique]; i++ {
		unique = name + "_" + strconv.Itoa(i)
	}
	b.usedNames[unique] = true
	return unique
}

func (b *sceneBuilder) node(m *Object) (*scene.Node, error) {
	if b.visited[m.Key] {
		return nil, b.opts.Recover(format.Malformed(formatName, "model %q has more than one parent", m.Name()))
	}
	b.visited[m.Key] = true
	model := Model{m}
	n := scene.NewNode(b.uniqueName(m.Name()))
	b.nodeNames[m.Key] = n.Name
	n.Transform = *model.LocalMatrix()
	if kind := m.Kind(); kind != "" {
		n.Metadata.SetString("FbxKind", kind)
	}

	var slots []int
	for _, mat := range m.ChildObjects("Material") {
		slots = append(slots, b.material(mat))
	}
	for _, g := range model.Geometries() {
		meshes, err := b.geometry(Geometry{g}, model, slots)
		if err != nil {
			return nil, err
		}
		n.Meshes = append(n.Meshes, meshes...)
	}

	for _, c := range m.ChildObjects("Model") {
		child, err := b.node(c)
		if err != nil {
			return nil, err
		}
		if child != nil {
			n.AddChild(child)
		}
	}
	return n, nil
}

// geometry converts g for one model. Meshes are shared between models
// that use the same geometry, materials and geometric transform.
func (b *sceneBuilder) geometry(g Geometry, model Model, slots []int) ([]int, error) {
	transform := model.GeometricMatrix()
	key := fmt.Sprint(g.Key, slots, *transform)
	if idx, ok := b.meshes[key]; ok {
		return idx, nil
	}
	if len(g.ChildObjects("Deformer")) > 0 {
		b.opts.Log().Debug("skin deformers not imported", zap.String("format", formatName), zap.String("geometry", g.Name()))
	}
	name := g.Name()
	if name == "" || strings.EqualFold(name, g.Kind()) {
		name = model.Name()
	}
	mb := &meshBuilder{g: g, opts: b.opts, transform: transform}
	meshes, meshSlots, err := mb.build(name, len(slots))
	if err != nil {
		return nil, err
	}
	var idx []int
	for i, mesh := range meshes {
		if s := meshSlots[i]; s < len(slots) {
			mesh.MaterialIndex = slots[s]
		}
		idx = append(idx, b.s.AddMesh(mesh))
	}
	b.meshes[key] = idx
	return idx, nil
}
