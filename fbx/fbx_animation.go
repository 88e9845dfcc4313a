package fbx

import (
	"slices"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

// KTimePerSecond is the FBX time unit.
const KTimePerSecond = 46186158000

// Imported animations use milliseconds as ticks.
const ticksPerSecond = 1000

// Curve is an "AnimationCurve" with linear interpolation between keys.
type Curve struct {
	Times  []int64
	Values []float64
}

func newCurve(o *Object) (*Curve, *format.Error) {
	c := &Curve{
		Times:  o.FindChild("KeyTime").Int64s(),
		Values: o.FindChild("KeyValueFloat").Float64s(),
	}
	if len(c.Times) != len(c.Values) {
		return nil, format.Malformed(formatName, "curve %s: %d key times, %d values", o.Key, len(c.Times), len(c.Values))
	}
	return c, nil
}

func (c *Curve) Eval(t int64) float64 {
	i, found := slices.BinarySearch(c.Times, t)
	switch {
	case found:
		return c.Values[i]
	case i == 0:
		return c.Values[0]
	case i >= len(c.Times):
		return c.Values[len(c.Values)-1]
	}
	t0, t1 := c.Times[i-1], c.Times[i]
	f := float64(t-t0) / float64(t1-t0)
	return c.Values[i-1] + (c.Values[i]-c.Values[i-1])*f
}

var curveAxes = map[string]int{"d|X": 0, "d|Y": 1, "d|Z": 2}

// curveNode samples the X/Y/Z curves of an "AnimationCurveNode" at the
// union of their key times.
func (b *sceneBuilder) curveNode(cn *Object) ([]int64, [][3]float32, error) {
	def := [3]float64{
		float64(cn.PropertyFloat("d|X", 0)),
		float64(cn.PropertyFloat("d|Y", 0)),
		float64(cn.PropertyFloat("d|Z", 0)),
	}
	var curves [3]*Curve
	var times []int64
	for _, ref := range cn.Refs {
		if ref.Class() != "AnimationCurve" {
			continue
		}
		i, ok := curveAxes[ref.Prop]
		if !ok {
			continue
		}
		c, err := newCurve(ref.Object)
		if err != nil {
			if err := b.opts.Recover(err); err != nil {
				return nil, nil, err
			}
			continue
		}
		curves[i] = c
		times = append(times, c.Times...)
	}
	slices.Sort(times)
	times = slices.Compact(times)

	values := make([][3]float32, len(times))
	for k, t := range times {
		for i, c := range curves {
			v := def[i]
			if c != nil && len(c.Times) > 0 {
				v = c.Eval(t)
			}
			values[k][i] = float32(v)
		}
	}
	return times, values, nil
}

func ticks(t int64) float64 {
	return float64(t) * ticksPerSecond / KTimePerSecond
}

func (b *sceneBuilder) animations() error {
	for _, stack := range b.doc.ObjectsOf("AnimationStack") {
		anim := &scene.Animation{Name: stack.Name(), TicksPerSecond: ticksPerSecond}
		for _, layer := range stack.ChildObjects("AnimationLayer") {
			for _, cn := range layer.ChildObjects("AnimationCurveNode") {
				if err := b.animateNode(anim, cn); err != nil {
					return err
				}
			}
		}
		if len(anim.Channels) == 0 {
			continue
		}
		anim.UpdateDuration()
		b.s.Animations = append(b.s.Animations, anim)
	}
	return nil
}

func (b *sceneBuilder) animateNode(anim *scene.Animation, cn *Object) error {
	for _, target := range cn.Parents {
		if target.Class() != "Model" {
			continue
		}
		name, ok := b.nodeNames[target.Key]
		if !ok {
			continue
		}
		var path string
		switch target.Prop {
		case "Lcl Translation", "Lcl Rotation", "Lcl Scaling":
			path = target.Prop
		default:
			b.opts.Log().Debug("animation curve not imported", zap.String("format", formatName), zap.String("property", target.Prop))
			continue
		}
		times, values, err := b.curveNode(cn)
		if err != nil {
			return err
		}
		if len(times) == 0 {
			continue
		}
		ch := anim.Channel(name)
		model := Model{target.Object}
		for k, t := range times {
			v := values[k]
			switch path {
			case "Lcl Translation":
				ch.PositionKeys = append(ch.PositionKeys, scene.VectorKey{Time: ticks(t), Value: geom.Vector3{X: v[0], Y: v[1], Z: v[2]}})
			case "Lcl Rotation":
				ch.RotationKeys = append(ch.RotationKeys, scene.QuatKey{Time: ticks(t), Value: *model.Rotation(v)})
			case "Lcl Scaling":
				ch.ScalingKeys = append(ch.ScalingKeys, scene.VectorKey{Time: ticks(t), Value: geom.Vector3{X: v[0], Y: v[1], Z: v[2]}})
			}
		}
	}
	return nil
}
