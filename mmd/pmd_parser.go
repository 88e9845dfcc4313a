package mmd

import (
	"fmt"
	"strings"

	"github.com/binzume/modelio/format"
)

const (
	pmdVertexSize   = 38
	pmdMaterialSize = 70
	pmdBoneSize     = 39
)

// PMDParser is parser for .pmd model. Text is Shift-JIS.
type PMDParser struct {
	baseParser
	header *Header
}

// NewPMDParser returns new parser.
func NewPMDParser(data []byte) *PMDParser {
	return &PMDParser{baseParser: newBaseParser(data, pmdFormat)}
}

func (p *PMDParser) readHeader() error {
	h := &Header{}
	p.header = h
	h.Format = string(p.r.Bytes(3))
	if h.Format != string(pmdMagic) {
		return format.Unrecognized(pmdFormat, "bad magic %q", h.Format)
	}
	h.Version = p.readFloat()
	if err := p.err(); err != nil {
		return err
	}
	if h.Version != 1 {
		return format.Unsupported(pmdFormat, "version %v", h.Version)
	}
	return nil
}

func (p *PMDParser) readVertex() *Vertex {
	var v Vertex
	v.Pos = p.readVec3()
	v.Normal = p.readVec3()
	v.UV = p.readVec2()

	v.Bones = []int{int(p.readUint16()), int(p.readUint16())}
	w := float32(p.readUint8()) / 100
	v.BoneWeights = []float32{w, 1 - w}
	v.EdgeScale = 1
	if p.readUint8() != 0 {
		v.EdgeScale = 0
	}
	return &v
}

func (p *PMDParser) readMaterial(model *Document, i int) *Material {
	var m Material
	m.Name = fmt.Sprintf("mat%d", i+1)
	m.Color = p.readVec4()
	m.Specularity = p.readFloat()
	m.Specular = p.readVec3()
	m.AColor = p.readVec3()
	m.Toon = int(int8(p.readUint8()))
	m.EdgeScale = float32(p.readUint8())
	m.Count = p.readInt()

	// "texture.bmp*sphere.spa"
	tex := strings.SplitN(p.readFixedString(20), "*", 2)
	m.TextureID, m.EnvID = -1, -1
	for _, t := range tex {
		if t == "" {
			continue
		}
		id := len(model.Textures)
		model.Textures = append(model.Textures, t)
		if ext := strings.ToLower(t); strings.HasSuffix(ext, ".sph") || strings.HasSuffix(ext, ".spa") {
			m.EnvID = id
			m.EnvMode = 1
			if strings.HasSuffix(ext, ".spa") {
				m.EnvMode = 2
			}
		} else {
			m.TextureID = id
		}
	}

	if m.Color.W < 1 {
		m.Flags = MaterialFlagDoubleSided
	}
	return &m
}

func (p *PMDParser) readBone() *Bone {
	var b Bone
	b.Name = p.readFixedString(20)
	b.ParentID = p.readVInt(2)
	b.TailID = p.readVInt(2)
	if b.TailID <= 0 {
		b.TailID = -1
	} else {
		b.Flags |= BoneFlagTailIndex
	}
	typ := p.readUint8()
	p.readUint16() // IK target
	b.Pos = p.readVec3()
	b.Flags |= BoneFlagRotatable | BoneFlagVisible | BoneFlagEnabled
	if typ == 1 {
		b.Flags |= BoneFlagTranslatable
	}
	return &b
}

func (p *PMDParser) readMorph() *Morph {
	var m Morph
	m.Name = p.readFixedString(20)
	vn := p.readCount(16, "morph vertex")
	m.PanelType = p.readUint8()
	m.MorphType = MorphTypeVertex
	for i := 0; i < vn; i++ {
		var mv MorphVertex
		mv.Target = p.readInt()
		mv.Offset = p.readVec3()
		m.Vertex = append(m.Vertex, &mv)
	}
	return &m
}

// Parse model data.
func (p *PMDParser) Parse() (*Document, error) {
	var model Document

	if err := p.readHeader(); err != nil {
		return nil, err
	}
	model.Header = p.header
	model.Name = p.readFixedString(20)
	model.Comment = p.readFixedString(256)

	n := p.readCount(pmdVertexSize, "vertex")
	model.Vertexes = make([]*Vertex, n)
	for i := 0; i < n && p.err() == nil; i++ {
		model.Vertexes[i] = p.readVertex()
	}

	n = p.readCount(2, "face index")
	if n%3 != 0 {
		p.fail("face index count %d is not a multiple of 3", n)
	}
	model.Faces = make([]*Face, n/3)
	for i := range model.Faces {
		var f Face
		for k := range f.Verts {
			f.Verts[k] = int(p.readUint16())
		}
		model.Faces[i] = &f
	}

	n = p.readCount(pmdMaterialSize, "material")
	model.Materials = make([]*Material, n)
	for i := 0; i < n && p.err() == nil; i++ {
		model.Materials[i] = p.readMaterial(&model, i)
	}

	n = int(p.readUint16())
	if p.r.CheckCount(uint64(n), pmdBoneSize, "bone") {
		model.Bones = make([]*Bone, n)
	}
	for i := range model.Bones {
		model.Bones[i] = p.readBone()
	}

	// IK chains
	n = int(p.readUint16())
	for i := 0; i < n && p.err() == nil; i++ {
		bi := int(p.readUint16())
		target := p.readVInt(2)
		ln := int(p.readUint8())
		loop := int(p.readUint16())
		limit := p.readFloat()
		var links []*Link
		for k := 0; k < ln; k++ {
			links = append(links, &Link{TargetID: p.readVInt(2)})
		}
		if bi >= len(model.Bones) {
			p.fail("IK bone %d out of range [0,%d)", bi, len(model.Bones))
			break
		}
		b := model.Bones[bi]
		b.Flags |= BoneFlagEnableIK
		b.IK.TargetID, b.IK.Loop, b.IK.LimitRad, b.IK.Links = target, loop, limit, links
	}

	// Morphs. The first one is the base listing the vertices the others
	// refer to by position.
	n = int(p.readUint16())
	if n > 0 && p.err() == nil {
		base := p.readMorph()
		for i := 1; i < n && p.err() == nil; i++ {
			m := p.readMorph()
			for _, v := range m.Vertex {
				if v.Target < 0 || v.Target >= len(base.Vertex) {
					p.fail("morph %q: base vertex %d out of range [0,%d)", m.Name, v.Target, len(base.Vertex))
					break
				}
				v.Target = base.Vertex[v.Target].Target
			}
			model.Morphs = append(model.Morphs, m)
		}
	}

	if err := p.err(); err != nil {
		return nil, err
	}
	return &model, nil
}
