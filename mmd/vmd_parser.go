package mmd

import (
	"sort"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
)

const (
	vmdMagic    = "Vocaloid Motion Data 0002"
	vmdMagicOld = "Vocaloid Motion Data file"

	vmdBoneFrameSize  = 111
	vmdMorphFrameSize = 23
)

// VMDParser is parser for .vmd animation.
type VMDParser struct {
	baseParser
}

type Animation struct {
	Name  string
	Bone  []*AnimationBoneSample
	Morph []*AnimationMorphSample
}

type AnimationBoneSample struct {
	Target   string
	Frame    int
	Position geom.Vector3
	Rotation geom.Vector4
	Params   [64]byte
}

type AnimationMorphSample struct {
	Target string
	Frame  int
	Value  float32
}

type BoneChannel struct {
	Target  string
	Samples []*AnimationBoneSample
}

type MorphChannel struct {
	Target  string
	Frames  []uint32
	Samples []float32
}

// GetBoneChannels groups bone samples by bone name in order of first
// appearance. Samples are sorted by frame.
func (a *Animation) GetBoneChannels() []*BoneChannel {
	sort.SliceStable(a.Bone, func(i, j int) bool { return a.Bone[i].Frame < a.Bone[j].Frame })

	var r []*BoneChannel
	index := map[string]*BoneChannel{}
	for _, s := range a.Bone {
		ch, ok := index[s.Target]
		if !ok {
			ch = &BoneChannel{Target: s.Target}
			index[s.Target] = ch
			r = append(r, ch)
		}
		ch.Samples = append(ch.Samples, s)
	}
	return r
}

func (a *Animation) GetMorphChannels() map[string]*MorphChannel {
	sort.SliceStable(a.Morph, func(i, j int) bool { return a.Morph[i].Frame < a.Morph[j].Frame })

	r := map[string]*MorphChannel{}
	for _, s := range a.Morph {
		a, ok := r[s.Target]
		if !ok {
			a = &MorphChannel{Target: s.Target}
			r[s.Target] = a
		}
		a.Frames = append(a.Frames, uint32(s.Frame))
		a.Samples = append(a.Samples, s.Value)
	}
	return r
}

// NewVMDParser returns new parser.
func NewVMDParser(data []byte) *VMDParser {
	return &VMDParser{baseParser: newBaseParser(data, vmdFormat)}
}

// Parse animation data. Camera, light and shadow frames after the morph
// frames are ignored; the morph section may be missing in old files.
func (p *VMDParser) Parse() (*Animation, error) {
	var anim Animation

	nameLen := 20
	switch magic := p.readFixedString(30); magic {
	case vmdMagic:
	case vmdMagicOld:
		nameLen = 10
	default:
		if err := p.err(); err != nil {
			return nil, err
		}
		return nil, format.Unrecognized(vmdFormat, "bad magic %q", magic)
	}
	anim.Name = p.readFixedString(nameLen)

	frames := p.readCount(vmdBoneFrameSize, "bone frame")
	anim.Bone = make([]*AnimationBoneSample, 0, frames)
	for i := 0; i < frames && p.err() == nil; i++ {
		sample := &AnimationBoneSample{}
		sample.Target = p.readFixedString(15)
		sample.Frame = int(p.r.Uint32())
		sample.Position = p.readVec3()
		sample.Rotation = p.readVec4()
		copy(sample.Params[:], p.r.Bytes(len(sample.Params)))
		anim.Bone = append(anim.Bone, sample)
	}

	if p.err() == nil && p.r.Remaining() >= 4 {
		frames = p.readCount(vmdMorphFrameSize, "morph frame")
		for i := 0; i < frames && p.err() == nil; i++ {
			sample := &AnimationMorphSample{}
			sample.Target = p.readFixedString(15)
			sample.Frame = int(p.r.Uint32())
			sample.Value = p.readFloat()
			anim.Morph = append(anim.Morph, sample)
		}
	}

	if err := p.err(); err != nil {
		return nil, err
	}
	return &anim, nil
}
