package mmd

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/binzume/modelio/geom"
)

type baseWriter struct {
	w   *bufio.Writer
	err error
}

func (p *baseWriter) write(v interface{}) {
	if p.err == nil {
		p.err = binary.Write(p.w, binary.LittleEndian, v)
	}
}

func (p *baseWriter) writeUint8(v uint8) {
	p.write(v)
}

func (p *baseWriter) writeInt(v int) {
	p.write(int32(v))
}

func (p *baseWriter) writeFloat(v float32) {
	p.write(v)
}

func (p *baseWriter) writeVUInt(sz byte, v int) {
	switch sz {
	case 1:
		p.write(uint8(v))
	case 2:
		p.write(uint16(v))
	default:
		p.write(uint32(v))
	}
}

func (p *baseWriter) writeVInt(sz byte, v int) {
	switch sz {
	case 1:
		p.write(int8(v))
	case 2:
		p.write(int16(v))
	default:
		p.write(int32(v))
	}
}

func indexSize(n int, signed bool) byte {
	limit1, limit2 := 255, 65535
	if signed {
		limit1, limit2 = 127, 32767
	}
	switch {
	case n <= limit1:
		return 1
	case n <= limit2:
		return 2
	}
	return 4
}

// PMXWriter is writer for .pmx data
type PMXWriter struct {
	baseWriter
	header *Header
}

// Write writes doc. Index sizes in the header are recomputed from the
// element counts.
func (w *PMXWriter) Write(doc *Document) error {
	w.writeHeader(doc)
	w.writeText(doc.Name)
	w.writeText(doc.NameEn)
	w.writeText(doc.Comment)
	w.writeText(doc.CommentEn)

	w.writeInt(len(doc.Vertexes))
	for _, v := range doc.Vertexes {
		w.writeVertex(v)
	}

	w.writeInt(len(doc.Faces) * 3)
	for _, f := range doc.Faces {
		for _, v := range f.Verts {
			w.writeVertexIndex(v)
		}
	}

	w.writeInt(len(doc.Textures))
	for _, t := range doc.Textures {
		w.writeText(t)
	}

	w.writeInt(len(doc.Materials))
	for _, m := range doc.Materials {
		w.writeMaterial(m)
	}

	w.writeInt(len(doc.Bones))
	for _, b := range doc.Bones {
		w.writeBone(b)
	}

	w.writeInt(len(doc.Morphs))
	for _, m := range doc.Morphs {
		w.writeMorph(m)
	}

	// display frames, rigid bodies, joints
	w.writeInt(0)
	w.writeInt(0)
	w.writeInt(0)
	if w.header.Version >= 2.1 {
		w.writeInt(0) // soft bodies
	}
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

func (w *PMXWriter) writeText(v string) {
	b := []byte(v)
	if !w.header.UTF8() {
		var err error
		if b, err = utf16le.NewEncoder().Bytes(b); err != nil && w.err == nil {
			w.err = err
		}
	}
	w.writeInt(len(b))
	w.write(b)
}

func (w *PMXWriter) writeIndex(attrTyp int, v int) {
	w.writeVInt(w.header.Info[attrTyp], v)
}

func (w *PMXWriter) writeVertexIndex(v int) {
	if sz := w.header.Info[AttrVertIndexSz]; sz == 4 {
		w.writeVInt(sz, v)
	} else {
		w.writeVUInt(sz, v)
	}
}

func (w *PMXWriter) writeHeader(doc *Document) {
	h := &Header{Format: string(pmxMagic), Version: 2, Info: []byte{1, 0, 4, 4, 4, 4, 4, 4}}
	if doc.Header != nil {
		if doc.Header.Version == 2.1 {
			h.Version = 2.1
		}
		if len(doc.Header.Info) > AttrExtUV {
			h.Info[AttrStringEncoding] = doc.Header.Info[AttrStringEncoding]
			h.Info[AttrExtUV] = min(doc.Header.Info[AttrExtUV], 4)
		}
	}
	h.Info[AttrVertIndexSz] = indexSize(len(doc.Vertexes), false)
	h.Info[AttrTexIndexSz] = indexSize(len(doc.Textures), true)
	h.Info[AttrMatIndexSz] = indexSize(len(doc.Materials), true)
	h.Info[AttrBoneIndexSz] = indexSize(len(doc.Bones), true)
	h.Info[AttrMorphIndexSz] = indexSize(len(doc.Morphs), true)
	h.Info[AttrRBIndexSz] = 1
	w.header = h

	w.write([]byte(h.Format))
	w.writeFloat(h.Version)
	w.writeUint8(uint8(len(h.Info)))
	w.write(h.Info)
}

func (w *PMXWriter) writeVertex(v *Vertex) {
	w.write(&v.Pos)
	w.write(&v.Normal)
	w.write(&v.UV)
	for i := 0; i < int(w.header.Info[AttrExtUV]); i++ {
		var uv geom.Vector4
		if i < len(v.ExtUVs) {
			uv = v.ExtUVs[i]
		}
		w.write(&uv)
	}

	bones, weights := v.Bones, v.BoneWeights
	switch {
	case len(bones) == 0:
		w.writeUint8(0)
		w.writeIndex(AttrBoneIndexSz, 0)
	case len(bones) == 1:
		w.writeUint8(0)
		w.writeIndex(AttrBoneIndexSz, bones[0])
	case len(bones) == 2 && len(weights) > 0:
		if v.SDEF != nil {
			w.writeUint8(3)
		} else {
			w.writeUint8(1)
		}
		w.writeIndex(AttrBoneIndexSz, bones[0])
		w.writeIndex(AttrBoneIndexSz, bones[1])
		w.writeFloat(weights[0])
		if v.SDEF != nil {
			w.write(v.SDEF)
		}
	default:
		w.writeUint8(2)
		for i := 0; i < 4; i++ {
			b := -1
			if i < len(bones) && i < len(weights) {
				b = bones[i]
			}
			w.writeIndex(AttrBoneIndexSz, b)
		}
		for i := 0; i < 4; i++ {
			var wt float32
			if i < len(bones) && i < len(weights) {
				wt = weights[i]
			}
			w.writeFloat(wt)
		}
	}
	w.writeFloat(v.EdgeScale)
}

func (w *PMXWriter) writeMaterial(m *Material) {
	w.writeText(m.Name)
	w.writeText(m.NameEn)
	w.write(&m.Color)
	w.write(&m.Specular)
	w.writeFloat(m.Specularity)
	w.write(&m.AColor)
	w.writeUint8(m.Flags)
	w.write(&m.EdgeColor)
	w.writeFloat(m.EdgeScale)

	w.writeIndex(AttrTexIndexSz, m.TextureID)
	w.writeIndex(AttrTexIndexSz, m.EnvID)

	w.writeUint8(m.EnvMode)
	w.writeUint8(m.ToonType)
	if m.ToonType == 0 {
		w.writeIndex(AttrTexIndexSz, m.Toon)
	} else {
		w.writeUint8(uint8(m.Toon))
	}

	w.writeText(m.Memo)
	w.writeInt(m.Count)
}

func (w *PMXWriter) writeBone(b *Bone) {
	w.writeText(b.Name)
	w.writeText(b.NameEn)
	w.write(&b.Pos)

	w.writeIndex(AttrBoneIndexSz, b.ParentID)
	w.writeInt(b.Layer)

	flags := b.Flags & BoneFlagAll
	w.write(flags)

	if flags&BoneFlagTailIndex != 0 {
		w.writeIndex(AttrBoneIndexSz, b.TailID)
	} else {
		w.write(&b.TailPos)
	}
	if flags&(BoneFlagInheritRotation|BoneFlagInheritTranslation) != 0 {
		w.writeIndex(AttrBoneIndexSz, b.InheritParentID)
		w.writeFloat(b.InheritParentInfluence)
	}
	if flags&BoneFlagFixedAxis != 0 {
		w.write(&b.FixedAxis)
	}
	if flags&BoneFlagLocalAxis != 0 {
		w.write(&b.LocalAxisX)
		w.write(&b.LocalAxisZ)
	}
	if flags&BoneFlagExternalParent != 0 {
		w.writeInt(b.ExternalID)
	}
	if flags&BoneFlagEnableIK != 0 {
		w.writeIndex(AttrBoneIndexSz, b.IK.TargetID)
		w.writeInt(b.IK.Loop)
		w.writeFloat(b.IK.LimitRad)
		w.writeInt(len(b.IK.Links))
		for _, l := range b.IK.Links {
			w.writeIndex(AttrBoneIndexSz, l.TargetID)
			if l.HasLimit {
				w.writeUint8(1)
				w.write(&l.LimitMin)
				w.write(&l.LimitMax)
			} else {
				w.writeUint8(0)
			}
		}
	}
}

func (w *PMXWriter) writeMorph(m *Morph) {
	w.writeText(m.Name)
	w.writeText(m.NameEn)
	w.writeUint8(m.PanelType)
	w.writeUint8(m.MorphType)

	switch t := m.MorphType; {
	case t == MorphTypeGroup || t == MorphTypeFlip:
		w.writeInt(len(m.Group))
		for _, g := range m.Group {
			w.writeIndex(AttrMorphIndexSz, g.Target)
			w.writeFloat(g.Weight)
		}
	case t == MorphTypeVertex:
		w.writeInt(len(m.Vertex))
		for _, v := range m.Vertex {
			w.writeVertexIndex(v.Target)
			w.write(&v.Offset)
		}
	case t == MorphTypeBone:
		w.writeInt(len(m.Bone))
		for _, b := range m.Bone {
			w.writeIndex(AttrBoneIndexSz, b.Target)
			w.write(&b.Translation)
			w.write(&b.Rotation)
		}
	case t >= MorphTypeUV && t <= MorphTypeExtUV4:
		w.writeInt(len(m.UV))
		for _, v := range m.UV {
			w.writeVertexIndex(v.Target)
			w.write(&v.Value)
		}
	case t == MorphTypeMaterial:
		w.writeInt(len(m.Material))
		for _, v := range m.Material {
			w.writeIndex(AttrMatIndexSz, v.Target)
			w.writeUint8(v.Flags)
			w.write(&v.Diffuse)
			w.write(&v.Specular)
			w.writeFloat(v.Specularity)
			w.write(&v.Ambient)
			w.write(&v.EdgeColor)
			w.writeFloat(v.EdgeSize)
			w.write(&v.TextureTint)
			w.write(&v.EnvironmentTint)
			w.write(&v.ToonTint)
		}
	default:
		w.writeInt(0)
	}
}

// WritePMX writes .pmx data
func WritePMX(doc *Document, w io.Writer) error {
	return (&PMXWriter{baseWriter: baseWriter{w: bufio.NewWriter(w)}}).Write(doc)
}
