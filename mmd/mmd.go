// Package mmd reads and writes MikuMikuDance models (PMX 2.0/2.1, PMD) and
// reads VMD motions.
package mmd

import (
	"github.com/binzume/modelio/geom"
)

const (
	pmxFormat = "pmx"
	pmdFormat = "pmd"
	vmdFormat = "vmd"
)

type Document struct {
	Header    *Header
	Name      string
	NameEn    string
	Comment   string
	CommentEn string
	Vertexes  []*Vertex
	Faces     []*Face
	Textures  []string
	Materials []*Material
	Bones     []*Bone
	Morphs    []*Morph
}

// NewDocument returns an empty PMX 2.0 document with UTF-8 text and 4 byte
// indices.
func NewDocument() *Document {
	return &Document{Header: &Header{
		Format:  "PMX ",
		Version: 2,
		Info:    []byte{1, 0, 4, 4, 4, 4, 4, 4},
	}}
}

type Header struct {
	Format  string
	Version float32
	// Info holds the PMX globals, see the Attr constants.
	Info []byte
}

func (h *Header) UTF8() bool {
	return len(h.Info) > AttrStringEncoding && h.Info[AttrStringEncoding] == 1
}

type Vertex struct {
	Pos       geom.Vector3
	Normal    geom.Vector3
	UV        geom.Vector2
	ExtUVs    []geom.Vector4
	EdgeScale float32

	Bones       []int
	BoneWeights []float32
	// SDEF parameters for weight type 3.
	SDEF *[3]geom.Vector3
}

type Face struct {
	Verts [3]int
}

type Material struct {
	Name        string
	NameEn      string
	Color       geom.Vector4
	Specular    geom.Vector3
	Specularity float32
	AColor      geom.Vector3
	Flags       byte
	EdgeColor   geom.Vector4
	EdgeScale   float32
	TextureID   int
	EnvID       int
	EnvMode     byte
	ToonType    byte
	Toon        int
	Memo        string
	// Count is the number of face indices (3 per face) using the material.
	Count int
}

const (
	MaterialFlagDoubleSided uint8 = 1
	MaterialFlagCastShadow  uint8 = 2
)

type Link struct {
	TargetID int
	HasLimit bool
	LimitMax geom.Vector3
	LimitMin geom.Vector3
}

type Bone struct {
	Name     string
	NameEn   string
	Pos      geom.Vector3
	ParentID int
	Layer    int
	Flags    uint16
	TailID   int
	TailPos  geom.Vector3

	InheritParentID        int
	InheritParentInfluence float32

	FixedAxis  geom.Vector3
	LocalAxisX geom.Vector3
	LocalAxisZ geom.Vector3
	ExternalID int

	IK struct {
		TargetID int
		Loop     int
		LimitRad float32
		Links    []*Link
	}
}

const (
	BoneFlagTailIndex    uint16 = 1
	BoneFlagRotatable    uint16 = 2
	BoneFlagTranslatable uint16 = 4
	BoneFlagVisible      uint16 = 8
	BoneFlagEnabled      uint16 = 16
	BoneFlagEnableIK     uint16 = 32

	BoneFlagInheritRotation    uint16 = 256
	BoneFlagInheritTranslation uint16 = 512
	BoneFlagFixedAxis          uint16 = 1024
	BoneFlagLocalAxis          uint16 = 2048
	BoneFlagPhysicsMode        uint16 = 4096
	BoneFlagExternalParent     uint16 = 8192

	BoneFlagAll uint16 = (31 | 32 | 256 | 512 | 1024 | 2048 | 4096 | 8192)
)

// type 0
type MorphGroup struct {
	Target int
	Weight float32
}

// type 1
type MorphVertex struct {
	Target int
	Offset geom.Vector3
}

// type 2
type MorphBone struct {
	Target      int
	Translation geom.Vector3
	Rotation    geom.Vector4
}

// type 3-7
type MorphUV struct {
	Target int
	Value  geom.Vector4
}

// type 8
type MorphMaterial struct {
	Target int

	Flags           byte
	Diffuse         geom.Vector4
	Specular        geom.Vector3
	Specularity     float32
	Ambient         geom.Vector3
	EdgeColor       geom.Vector4
	EdgeSize        float32
	TextureTint     geom.Vector4
	EnvironmentTint geom.Vector4
	ToonTint        geom.Vector4
}

const (
	MorphTypeGroup    byte = 0
	MorphTypeVertex   byte = 1
	MorphTypeBone     byte = 2
	MorphTypeUV       byte = 3
	MorphTypeExtUV4   byte = 7
	MorphTypeMaterial byte = 8
	MorphTypeFlip     byte = 9
	MorphTypeImpulse  byte = 10
)

type Morph struct {
	Name      string
	NameEn    string
	PanelType byte
	MorphType byte

	// oneof
	Group    []*MorphGroup
	Vertex   []*MorphVertex
	Bone     []*MorphBone
	UV       []*MorphUV
	Material []*MorphMaterial
}

const (
	AttrStringEncoding int = iota
	AttrExtUV
	AttrVertIndexSz
	AttrTexIndexSz
	AttrMatIndexSz
	AttrBoneIndexSz
	AttrMorphIndexSz
	AttrRBIndexSz
)
