package scene

import "github.com/binzume/modelio/geom"

type VectorKey struct {
	Time  float64
	Value geom.Vector3
}

type QuatKey struct {
	Time  float64
	Value geom.Quaternion
}

// NodeAnim animates the node with NodeName. Key times are in ticks.
type NodeAnim struct {
	NodeName     string
	PositionKeys []VectorKey
	RotationKeys []QuatKey
	ScalingKeys  []VectorKey
}

type Animation struct {
	Name           string
	Duration       float64
	TicksPerSecond float64
	Channels       []*NodeAnim
}

// Channel returns the channel for node, creating it when missing.
func (a *Animation) Channel(node string) *NodeAnim {
	for _, c := range a.Channels {
		if c.NodeName == node {
			return c
		}
	}
	c := &NodeAnim{NodeName: node}
	a.Channels = append(a.Channels, c)
	return c
}

// UpdateDuration sets Duration to the last key time.
func (a *Animation) UpdateDuration() {
	d := 0.0
	for _, c := range a.Channels {
		for _, k := range c.PositionKeys {
			d = max(d, k.Time)
		}
		for _, k := range c.RotationKeys {
			d = max(d, k.Time)
		}
		for _, k := range c.ScalingKeys {
			d = max(d, k.Time)
		}
	}
	a.Duration = d
}
