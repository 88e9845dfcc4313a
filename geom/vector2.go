package geom

import "github.com/chewxy/math32"

// Vector2 is mostly used for texture coordinates of formats that store
// them as pairs.
type Vector2 struct {
	X Element
	Y Element
}

func NewVector2(x, y Element) *Vector2 {
	return &Vector2{X: x, Y: y}
}

func (v *Vector2) Add(v2 *Vector2) *Vector2 {
	return &Vector2{X: v.X + v2.X, Y: v.Y + v2.Y}
}

func (v *Vector2) Sub(v2 *Vector2) *Vector2 {
	return &Vector2{X: v.X - v2.X, Y: v.Y - v2.Y}
}

func (v *Vector2) Scale(s Element) *Vector2 {
	return &Vector2{X: v.X * s, Y: v.Y * s}
}

func (v *Vector2) Dot(v2 *Vector2) Element {
	return v.X*v2.X + v.Y*v2.Y
}

// Cross returns the z component of the 3D cross product.
func (v *Vector2) Cross(v2 *Vector2) Element {
	return v.X*v2.Y - v.Y*v2.X
}

func (v *Vector2) LenSqr() Element {
	return v.Dot(v)
}

func (v *Vector2) Len() Element {
	return math32.Sqrt(v.LenSqr())
}

// Normalize normalizes v in place. A zero vector becomes (1,0).
func (v *Vector2) Normalize() *Vector2 {
	if l := v.Len(); l > 0 {
		v.X /= l
		v.Y /= l
	} else {
		v.X = 1
	}
	return v
}

// FlipV mirrors a texture coordinate vertically, converting between
// top-left and bottom-left image origins.
func (v *Vector2) FlipV() *Vector2 {
	return &Vector2{X: v.X, Y: 1 - v.Y}
}

// Vector3 extends v with z = 0.
func (v *Vector2) Vector3() *Vector3 {
	return &Vector3{X: v.X, Y: v.Y}
}
