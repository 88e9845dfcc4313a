package fbx

import (
	"strconv"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
)

type MappingType string

const (
	AllSame         MappingType = "AllSame"
	ByPolygon       MappingType = "ByPolygon"
	ByVertice       MappingType = "ByVertice"
	ByVertex        MappingType = "ByVertex"
	ByPolygonVertex MappingType = "ByPolygonVertex"
	ByControlPoint  MappingType = "ByControlPoint"
)

// LayerElement is a per-polygon, per-corner or per-vertex attribute of
// a geometry, e.g. "LayerElementNormal".
type LayerElement struct {
	*Node
	Mapping MappingType
	// Direct is false for IndexToDirect references.
	Direct  bool
	Values  []float64
	Indices []int64
	Comps   int
}

func newLayerElement(n *Node, arrayName, indexName string, comps int) *LayerElement {
	if n == nil {
		return nil
	}
	ref := n.ChildString("ReferenceInformationType")
	e := &LayerElement{
		Node:    n,
		Mapping: MappingType(n.ChildString("MappingInformationType")),
		Direct:  ref != "IndexToDirect" && ref != "Index",
		Values:  n.FindChild(arrayName).Float64s(),
		Comps:   comps,
	}
	if !e.Direct {
		e.Indices = n.FindChild(indexName).Int64s()
	}
	return e
}

// Index resolves the value index for a polygon corner.
func (e *LayerElement) Index(poly, corner, vertex int) (int, bool) {
	var i int
	switch e.Mapping {
	case ByPolygonVertex:
		i = corner
	case ByVertice, ByVertex, ByControlPoint:
		i = vertex
	case ByPolygon:
		i = poly
	case AllSame:
		i = 0
	default:
		return 0, false
	}
	if !e.Direct {
		if i >= len(e.Indices) {
			return 0, false
		}
		i = int(e.Indices[i])
	}
	if i < 0 || (i+1)*e.Comps > len(e.Values) {
		return 0, false
	}
	return i, true
}

func (e *LayerElement) Value(i int) []float64 {
	return e.Values[i*e.Comps : (i+1)*e.Comps]
}

type polygon struct {
	index   int // position among all polygons, including skipped ones
	corner  int // index of the first corner in PolygonVertexIndex
	indices []int
}

// Geometry wraps a "Geometry" object, or a 6.x "Model" holding mesh data.
type Geometry struct {
	*Object
}

func (g Geometry) Vertices() ([]geom.Vector3, error) {
	v := g.FindChild("Vertices").Float64s()
	if len(v)%3 != 0 {
		return nil, format.Malformed(formatName, "geometry %q: %d vertex components", g.Name(), len(v))
	}
	r := make([]geom.Vector3, len(v)/3)
	for i := range r {
		r[i] = geom.Vector3{X: float32(v[i*3]), Y: float32(v[i*3+1]), Z: float32(v[i*3+2])}
	}
	return r, nil
}

// Polygons splits PolygonVertexIndex, where a negative index i ends a
// polygon and stands for ^i.
func (g Geometry) Polygons(nverts int, opts *format.ReadOptions) ([]polygon, error) {
	var polys []polygon
	cur := polygon{}
	n := 0
	for c, idx := range g.FindChild("PolygonVertexIndex").Int64s() {
		last := idx < 0
		if last {
			idx = ^idx
		}
		if len(cur.indices) == 0 {
			cur.corner = c
		}
		cur.indices = append(cur.indices, int(idx))
		if !last {
			continue
		}
		valid := true
		for _, i := range cur.indices {
			if i >= nverts {
				valid = false
			}
		}
		if valid {
			polys = append(polys, cur)
		} else if err := opts.Recover(format.Malformed(formatName, "geometry %q: polygon at corner %d references vertex out of range [0,%d)", g.Name(), cur.corner, nverts)); err != nil {
			return nil, err
		}
		n++
		cur = polygon{index: n}
	}
	if len(cur.indices) > 0 {
		if err := opts.Recover(format.Malformed(formatName, "geometry %q: unterminated polygon", g.Name())); err != nil {
			return nil, err
		}
	}
	return polys, nil
}

func (g Geometry) Layer(name, arrayName, indexName string, comps int) *LayerElement {
	return newLayerElement(g.FindChild(name), arrayName, indexName, comps)
}

func (g Geometry) Layers(name, arrayName, indexName string, comps int) []*LayerElement {
	var r []*LayerElement
	for _, n := range g.FindChildren(name) {
		r = append(r, newLayerElement(n, arrayName, indexName, comps))
	}
	return r
}

// MaterialSlot returns the model material slot of a polygon.
func (g Geometry) MaterialSlot(layer *Node, poly int) int {
	mats := layer.FindChild("Materials").Int64s()
	if len(mats) == 0 {
		return 0
	}
	if MappingType(layer.ChildString("MappingInformationType")) == AllSame {
		return int(mats[0])
	}
	if poly >= len(mats) {
		return -1
	}
	return int(mats[poly])
}

// meshBuilder converts one geometry into one mesh per material slot.
// Every polygon corner becomes its own vertex.
type meshBuilder struct {
	g         Geometry
	opts      *format.ReadOptions
	transform *geom.Matrix4
	verts     []geom.Vector3

	normals, tangents, binormals *LayerElement
	uvs, colors                  []*LayerElement
}

// checkLayer drops a layer whose references do not resolve.
func (b *meshBuilder) checkLayer(e *LayerElement, what string, polys []polygon) (*LayerElement, error) {
	if e == nil {
		return nil, nil
	}
	for _, poly := range polys {
		for k, v := range poly.indices {
			if _, ok := e.Index(poly.index, poly.corner+k, v); !ok {
				err := b.opts.Recover(format.Malformed(formatName, "geometry %q: %s layer (%s) does not cover polygon %d", b.g.Name(), what, e.Mapping, poly.index))
				return nil, err
			}
		}
	}
	return e, nil
}

func (b *meshBuilder) build(name string, slots int) ([]*scene.Mesh, []int, error) {
	verts, err := b.g.Vertices()
	if err != nil {
		return nil, nil, err
	}
	b.verts = verts
	polys, err := b.g.Polygons(len(verts), b.opts)
	if err != nil {
		return nil, nil, err
	}

	if b.normals, err = b.checkLayer(b.g.Layer("LayerElementNormal", "Normals", "NormalsIndex", 3), "normal", polys); err != nil {
		return nil, nil, err
	}
	if b.tangents, err = b.checkLayer(b.g.Layer("LayerElementTangent", "Tangents", "TangentsIndex", 3), "tangent", polys); err != nil {
		return nil, nil, err
	}
	if b.binormals, err = b.checkLayer(b.g.Layer("LayerElementBinormal", "Binormals", "BinormalsIndex", 3), "binormal", polys); err != nil {
		return nil, nil, err
	}
	if b.tangents == nil || b.binormals == nil || b.normals == nil {
		b.tangents, b.binormals = nil, nil
	}
	for _, e := range b.g.Layers("LayerElementUV", "UV", "UVIndex", 2) {
		if e, err = b.checkLayer(e, "uv", polys); err != nil {
			return nil, nil, err
		} else if e != nil {
			b.uvs = append(b.uvs, e)
		}
	}
	for _, e := range b.g.Layers("LayerElementColor", "Colors", "ColorIndex", 4) {
		if e, err = b.checkLayer(e, "color", polys); err != nil {
			return nil, nil, err
		} else if e != nil {
			b.colors = append(b.colors, e)
		}
	}

	matLayer := b.g.FindChild("LayerElementMaterial")
	groups := map[int][]int{}
	var order []int
	for p, poly := range polys {
		slot := b.g.MaterialSlot(matLayer, poly.index)
		if slot < 0 || slot >= max(slots, 1) {
			if err := b.opts.Recover(format.Malformed(formatName, "geometry %q: polygon %d uses material slot %d of %d", b.g.Name(), poly.index, slot, slots)); err != nil {
				return nil, nil, err
			}
			slot = 0
		}
		if _, ok := groups[slot]; !ok {
			order = append(order, slot)
		}
		groups[slot] = append(groups[slot], p)
	}

	var meshes []*scene.Mesh
	var meshSlots []int
	for _, slot := range order {
		meshName := name
		if len(order) > 1 {
			meshName = name + "_" + strconv.Itoa(slot)
		}
		meshes = append(meshes, b.mesh(meshName, polys, groups[slot]))
		meshSlots = append(meshSlots, slot)
	}
	if len(polys) == 0 && len(verts) > 0 {
		// point cloud
		m := scene.NewMesh(name)
		for _, v := range verts {
			m.Vertices = append(m.Vertices, *b.transform.ApplyTo(&v))
		}
		m.UpdatePrimitiveTypes()
		meshes = append(meshes, m)
		meshSlots = append(meshSlots, 0)
	}
	return meshes, meshSlots, nil
}

func vec3(v []float64) *geom.Vector3 {
	return &geom.Vector3{X: float32(v[0]), Y: float32(v[1]), Z: float32(v[2])}
}

func (b *meshBuilder) mesh(name string, polys []polygon, group []int) *scene.Mesh {
	m := scene.NewMesh(name)
	for range b.uvs {
		m.AddTexCoordChannel(2)
	}
	m.Colors = make([][]geom.Vector4, len(b.colors))
	normalMat := b.transform.NormalMatrix()

	attr := func(e *LayerElement, p, corner, v int) []float64 {
		i, _ := e.Index(p, corner, v)
		return e.Value(i)
	}
	for _, p := range group {
		poly := polys[p]
		face := make([]int, len(poly.indices))
		for k, v := range poly.indices {
			corner := poly.corner + k
			face[k] = len(m.Vertices)
			m.Vertices = append(m.Vertices, *b.transform.ApplyTo(&b.verts[v]))
			if b.normals != nil {
				m.Normals = append(m.Normals, *normalMat.ApplyToDirection(vec3(attr(b.normals, poly.index, corner, v))).Normalize())
			}
			if b.tangents != nil {
				m.Tangents = append(m.Tangents, *normalMat.ApplyToDirection(vec3(attr(b.tangents, poly.index, corner, v))).Normalize())
				m.Bitangents = append(m.Bitangents, *normalMat.ApplyToDirection(vec3(attr(b.binormals, poly.index, corner, v))).Normalize())
			}
			for ch, e := range b.uvs {
				uv := attr(e, poly.index, corner, v)
				m.TexCoords[ch] = append(m.TexCoords[ch], geom.Vector3{X: float32(uv[0]), Y: float32(uv[1])})
			}
			for ch, e := range b.colors {
				c := attr(e, poly.index, corner, v)
				m.Colors[ch] = append(m.Colors[ch], geom.Vector4{X: float32(c[0]), Y: float32(c[1]), Z: float32(c[2]), W: float32(c[3])})
			}
		}
		m.AddFace(face...)
	}
	m.UpdatePrimitiveTypes()
	return m
}
