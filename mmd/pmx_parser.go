package mmd

import (
	"bytes"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
)

// see also:
// https://github.com/binzume/mikumikudroid/blob/oculus/src/jp/gauzau/MikuMikuDroid/PMXParser.java
// https://gist.github.com/felixjones/f8a06bd48f9da9a4539f

var (
	pmxMagic = []byte("PMX ")
	pmdMagic = []byte("Pmd")
)

// PMXParser reads .pmx models. Display frames, rigid bodies and joints
// following the morphs are not read.
type PMXParser struct {
	baseParser
	header *Header
}

func NewPMXParser(data []byte) *PMXParser {
	return &PMXParser{baseParser: newBaseParser(data, pmxFormat)}
}

func (p *PMXParser) readIndex(attrTyp int) int {
	return p.readVInt(p.header.Info[attrTyp])
}

// vertex indices are unsigned unless stored in 4 bytes
func (p *PMXParser) readVertexIndex() int {
	sz := p.header.Info[AttrVertIndexSz]
	if sz == 4 {
		return p.readVInt(sz)
	}
	return p.readVUInt(sz)
}

func (p *PMXParser) readText() string {
	n := p.readCount(1, "text length")
	b := p.r.Bytes(n)
	if p.header.UTF8() {
		return string(bytes.ToValidUTF8(b, []byte("\uFFFD")))
	}
	return decodeString(utf16le, b)
}

func (p *PMXParser) readHeader() error {
	h := &Header{}
	p.header = h
	h.Format = string(p.r.Bytes(4))
	if h.Format != string(pmxMagic) {
		return format.Unrecognized(pmxFormat, "bad magic %q", h.Format)
	}
	h.Version = p.readFloat()
	if h.Version != 2.0 && h.Version != 2.1 {
		if err := p.err(); err != nil {
			return err
		}
		return format.Unsupported(pmxFormat, "version %v", h.Version)
	}
	h.Info = p.r.Bytes(int(p.readUint8()))
	if err := p.err(); err != nil {
		return err
	}
	if len(h.Info) < 8 {
		return format.Malformed(pmxFormat, "header has %d globals, want 8", len(h.Info))
	}
	h.Info = append([]byte(nil), h.Info...)
	if h.Info[AttrStringEncoding] > 1 {
		return format.Malformed(pmxFormat, "unknown text encoding %d", h.Info[AttrStringEncoding])
	}
	if h.Info[AttrExtUV] > 4 {
		return format.Malformed(pmxFormat, "%d additional UVs, at most 4 allowed", h.Info[AttrExtUV])
	}
	for i := AttrVertIndexSz; i <= AttrRBIndexSz; i++ {
		if sz := h.Info[i]; sz != 1 && sz != 2 && sz != 4 {
			return format.Malformed(pmxFormat, "invalid index size %d", sz)
		}
	}
	return nil
}

func (p *PMXParser) readVertex() *Vertex {
	var v Vertex
	v.Pos = p.readVec3()
	v.Normal = p.readVec3()
	v.UV = p.readVec2()
	if n := p.header.Info[AttrExtUV]; n > 0 {
		v.ExtUVs = make([]geom.Vector4, n)
		for i := range v.ExtUVs {
			v.ExtUVs[i] = p.readVec4()
		}
	}
	switch weightType := p.readUint8(); weightType {
	case 0: // BDEF1
		v.Bones = []int{p.readIndex(AttrBoneIndexSz)}
		v.BoneWeights = []float32{1}
	case 1: // BDEF2
		v.Bones = []int{p.readIndex(AttrBoneIndexSz), p.readIndex(AttrBoneIndexSz)}
		w := p.readFloat()
		v.BoneWeights = []float32{w, 1 - w}
	case 2, 4: // BDEF4, QDEF
		v.Bones = make([]int, 4)
		for i := range v.Bones {
			v.Bones[i] = p.readIndex(AttrBoneIndexSz)
		}
		v.BoneWeights = make([]float32, 4)
		for i := range v.BoneWeights {
			v.BoneWeights[i] = p.readFloat()
		}
	case 3: // SDEF
		v.Bones = []int{p.readIndex(AttrBoneIndexSz), p.readIndex(AttrBoneIndexSz)}
		w := p.readFloat()
		v.BoneWeights = []float32{w, 1 - w}
		v.SDEF = &[3]geom.Vector3{p.readVec3(), p.readVec3(), p.readVec3()}
	default:
		p.fail("unknown weight type %d", weightType)
	}
	v.EdgeScale = p.readFloat()
	return &v
}

func (p *PMXParser) readMaterial() *Material {
	var m Material
	m.Name = p.readText()
	m.NameEn = p.readText()
	m.Color = p.readVec4()
	m.Specular = p.readVec3()
	m.Specularity = p.readFloat()
	m.AColor = p.readVec3()
	m.Flags = p.readUint8()
	m.EdgeColor = p.readVec4()
	m.EdgeScale = p.readFloat()
	m.TextureID = p.readIndex(AttrTexIndexSz)
	m.EnvID = p.readIndex(AttrTexIndexSz)
	m.EnvMode = p.readUint8()
	m.ToonType = p.readUint8()
	if m.ToonType == 0 {
		m.Toon = p.readIndex(AttrTexIndexSz)
	} else {
		m.Toon = int(p.readUint8())
	}
	m.Memo = p.readText()
	m.Count = p.readInt()
	return &m
}

func (p *PMXParser) readBone() *Bone {
	var b Bone
	b.Name = p.readText()
	b.NameEn = p.readText()
	b.Pos = p.readVec3()
	b.ParentID = p.readIndex(AttrBoneIndexSz)
	b.Layer = p.readInt()
	b.Flags = p.readUint16()

	if b.Flags&BoneFlagTailIndex != 0 {
		b.TailID = p.readIndex(AttrBoneIndexSz)
	} else {
		b.TailID = -1
		b.TailPos = p.readVec3()
	}
	if b.Flags&(BoneFlagInheritRotation|BoneFlagInheritTranslation) != 0 {
		b.InheritParentID = p.readIndex(AttrBoneIndexSz)
		b.InheritParentInfluence = p.readFloat()
	}
	if b.Flags&BoneFlagFixedAxis != 0 {
		b.FixedAxis = p.readVec3()
	}
	if b.Flags&BoneFlagLocalAxis != 0 {
		b.LocalAxisX = p.readVec3()
		b.LocalAxisZ = p.readVec3()
	}
	if b.Flags&BoneFlagExternalParent != 0 {
		b.ExternalID = p.readInt()
	}
	if b.Flags&BoneFlagEnableIK != 0 {
		b.IK.TargetID = p.readIndex(AttrBoneIndexSz)
		b.IK.Loop = p.readInt()
		b.IK.LimitRad = p.readFloat()
		links := p.readCount(2, "IK link")
		for i := 0; i < links; i++ {
			var l Link
			l.TargetID = p.readIndex(AttrBoneIndexSz)
			l.HasLimit = p.readUint8() != 0
			if l.HasLimit {
				l.LimitMin = p.readVec3()
				l.LimitMax = p.readVec3()
			}
			b.IK.Links = append(b.IK.Links, &l)
		}
	}
	return &b
}

func (p *PMXParser) readMorph() *Morph {
	var m Morph
	m.Name = p.readText()
	m.NameEn = p.readText()
	m.PanelType = p.readUint8()
	m.MorphType = p.readUint8()

	n := p.readCount(5, "morph offset")
	for i := 0; i < n && p.err() == nil; i++ {
		switch t := m.MorphType; {
		case t == MorphTypeGroup || t == MorphTypeFlip:
			m.Group = append(m.Group, &MorphGroup{
				Target: p.readIndex(AttrMorphIndexSz),
				Weight: p.readFloat(),
			})
		case t == MorphTypeVertex:
			var v MorphVertex
			v.Target = p.readVertexIndex()
			v.Offset = p.readVec3()
			m.Vertex = append(m.Vertex, &v)
		case t == MorphTypeBone:
			var v MorphBone
			v.Target = p.readIndex(AttrBoneIndexSz)
			v.Translation = p.readVec3()
			v.Rotation = p.readVec4()
			m.Bone = append(m.Bone, &v)
		case t >= MorphTypeUV && t <= MorphTypeExtUV4:
			var v MorphUV
			v.Target = p.readVertexIndex()
			v.Value = p.readVec4()
			m.UV = append(m.UV, &v)
		case t == MorphTypeMaterial:
			var v MorphMaterial
			v.Target = p.readIndex(AttrMatIndexSz)
			v.Flags = p.readUint8()
			v.Diffuse = p.readVec4()
			v.Specular = p.readVec3()
			v.Specularity = p.readFloat()
			v.Ambient = p.readVec3()
			v.EdgeColor = p.readVec4()
			v.EdgeSize = p.readFloat()
			v.TextureTint = p.readVec4()
			v.EnvironmentTint = p.readVec4()
			v.ToonTint = p.readVec4()
			m.Material = append(m.Material, &v)
		case t == MorphTypeImpulse:
			// rigid body, local flag, velocity, torque
			p.readIndex(AttrRBIndexSz)
			p.readUint8()
			p.readVec3()
			p.readVec3()
		default:
			p.fail("morph %q: unknown morph type %d", m.Name, t)
		}
	}
	return &m
}

func (p *PMXParser) Parse() (*Document, error) {
	var pmx Document

	if err := p.readHeader(); err != nil {
		return nil, err
	}
	pmx.Header = p.header
	pmx.Name = p.readText()
	pmx.NameEn = p.readText()
	pmx.Comment = p.readText()
	pmx.CommentEn = p.readText()

	boneSz := int(p.header.Info[AttrBoneIndexSz])
	vn := p.readCount(37+boneSz, "vertex")
	pmx.Vertexes = make([]*Vertex, vn)
	for i := 0; i < vn && p.err() == nil; i++ {
		pmx.Vertexes[i] = p.readVertex()
	}

	in := p.readCount(int(p.header.Info[AttrVertIndexSz]), "face index")
	if in%3 != 0 {
		p.fail("face index count %d is not a multiple of 3", in)
	}
	pmx.Faces = make([]*Face, in/3)
	for i := range pmx.Faces {
		if p.err() != nil {
			break
		}
		var f Face
		for k := range f.Verts {
			f.Verts[k] = p.readVertexIndex()
		}
		pmx.Faces[i] = &f
	}

	tn := p.readCount(4, "texture")
	pmx.Textures = make([]string, tn)
	for i := 0; i < tn && p.err() == nil; i++ {
		pmx.Textures[i] = p.readText()
	}

	mn := p.readCount(4+4+16+12+4+12+1+16+4, "material")
	pmx.Materials = make([]*Material, mn)
	for i := 0; i < mn && p.err() == nil; i++ {
		pmx.Materials[i] = p.readMaterial()
	}

	bn := p.readCount(4+4+12+4+2, "bone")
	pmx.Bones = make([]*Bone, bn)
	for i := 0; i < bn && p.err() == nil; i++ {
		pmx.Bones[i] = p.readBone()
	}

	pn := p.readCount(4+4+1+1+4, "morph")
	pmx.Morphs = make([]*Morph, pn)
	for i := 0; i < pn && p.err() == nil; i++ {
		pmx.Morphs[i] = p.readMorph()
	}

	if err := p.err(); err != nil {
		return nil, err
	}
	return &pmx, nil
}

// Parse reads a .pmx or .pmd model.
func Parse(data []byte) (*Document, error) {
	if bytes.HasPrefix(data, pmdMagic) {
		return NewPMDParser(data).Parse()
	}
	return NewPMXParser(data).Parse()
}
