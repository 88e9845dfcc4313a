package mmd

import (
	"bytes"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

// Motions are keyed at 30 frames per second.
const framesPerSecond = 30

// VMDReader imports .vmd motions as an animation-only scene. Channels are
// named after the bones they animate.
type VMDReader struct{}

func (VMDReader) Format() string       { return vmdFormat }
func (VMDReader) Extensions() []string { return []string{"vmd"} }

func (VMDReader) CanRead(data []byte) bool {
	return bytes.HasPrefix(data, []byte("Vocaloid Motion Data"))
}

func (VMDReader) Read(data []byte, opts *format.ReadOptions) (*scene.Scene, error) {
	anim, err := NewVMDParser(data).Parse()
	if err != nil {
		return nil, err
	}
	return AnimationToScene(anim, opts), nil
}

// AnimationToScene converts bone samples to node channels. Positions are
// offsets from the bone rest positions.
func AnimationToScene(a *Animation, opts *format.ReadOptions) *scene.Scene {
	s := scene.New()
	s.Flags |= scene.FlagIncomplete
	name := a.Name
	if name == "" {
		name = "motion"
	}
	out := &scene.Animation{Name: name, TicksPerSecond: framesPerSecond}
	for _, ch := range a.GetBoneChannels() {
		na := out.Channel(ch.Target)
		for _, sample := range ch.Samples {
			t := float64(sample.Frame)
			// several samples at one frame keep the last
			if n := len(na.PositionKeys); n > 0 && na.PositionKeys[n-1].Time == t {
				na.PositionKeys = na.PositionKeys[:n-1]
				na.RotationKeys = na.RotationKeys[:n-1]
			}
			na.PositionKeys = append(na.PositionKeys, scene.VectorKey{Time: t, Value: mirror(sample.Position)})
			q := mirrorRotation(sample.Rotation)
			na.RotationKeys = append(na.RotationKeys, scene.QuatKey{Time: t, Value: *q.Normalize()})
		}
	}
	out.UpdateDuration()
	s.Animations = append(s.Animations, out)
	if len(a.Morph) > 0 {
		opts.Log().Debug("morph frames not imported", zap.String("format", vmdFormat), zap.Int("frames", len(a.Morph)))
	}
	s.Metadata.SetString("SourceAsset_Format", vmdFormat)
	return s
}
