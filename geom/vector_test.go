package geom

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

const vecEpsilon = 1e-6

func TestVector2Ops(t *testing.T) {
	a, b := NewVector2(3, 4), NewVector2(1, -2)
	assert.Equal(t, Vector2{4, 2}, *a.Add(b))
	assert.Equal(t, Vector2{2, 6}, *a.Sub(b))
	assert.Equal(t, Vector2{1.5, 2}, *a.Scale(0.5))
	assert.Equal(t, Element(-5), a.Dot(b))
	assert.Equal(t, Element(-10), a.Cross(b))
	assert.Equal(t, Element(10), b.Cross(a))
	assert.Equal(t, Element(25), a.LenSqr())
	assert.Equal(t, Element(5), a.Len())

	// operations return new vectors
	assert.Equal(t, Vector2{3, 4}, *a)
}

func TestVector2Normalize(t *testing.T) {
	v := NewVector2(3, 4)
	assert.Same(t, v, v.Normalize())
	assert.InDelta(t, 0.6, v.X, vecEpsilon)
	assert.InDelta(t, 0.8, v.Y, vecEpsilon)

	assert.Equal(t, Vector2{1, 0}, *NewVector2(0, 0).Normalize())
}

func TestVector2TexCoords(t *testing.T) {
	uv := NewVector2(0.25, 0.125)
	assert.Equal(t, Vector2{0.25, 0.875}, *uv.FlipV())
	assert.Equal(t, *uv, *uv.FlipV().FlipV())
	assert.Equal(t, Vector3{X: 0.25, Y: 0.125}, *uv.Vector3())
	assert.Equal(t, *uv, *NewVector3(0.25, 0.125, 9).XY())
}

func TestVector3Ops(t *testing.T) {
	a, b := NewVector3(1, 2, 3), NewVector3(4, -5, 6)
	assert.Equal(t, Vector3{5, -3, 9}, *a.Add(b))
	assert.Equal(t, Vector3{-3, 7, -3}, *a.Sub(b))
	assert.Equal(t, Vector3{2, 4, 6}, *a.Scale(2))
	assert.Equal(t, Element(12), a.Dot(b))
	assert.Equal(t, Element(14), a.LenSqr())
	assert.InDelta(t, math32.Sqrt(14), a.Len(), vecEpsilon)
	assert.Equal(t, Vector3{1, 2, 3}, *a)
}

func TestVector3Cross(t *testing.T) {
	x, y, z := NewVector3(1, 0, 0), NewVector3(0, 1, 0), NewVector3(0, 0, 1)
	assert.Equal(t, *z, *x.Cross(y))
	assert.Equal(t, *x, *y.Cross(z))
	assert.Equal(t, *y, *z.Cross(x))
	assert.Equal(t, Vector3{0, 0, -1}, *y.Cross(x))
	assert.Equal(t, Vector3{}, *x.Cross(x))

	a, b := NewVector3(1, 2, 3), NewVector3(4, -5, 6)
	c := a.Cross(b)
	assert.Equal(t, Vector3{27, 6, -13}, *c)
	assert.Zero(t, c.Dot(a))
	assert.Zero(t, c.Dot(b))
}

func TestVector3Normalize(t *testing.T) {
	v := NewVector3(0, 3, -4)
	assert.Same(t, v, v.Normalize())
	assert.InDelta(t, 1, v.Len(), vecEpsilon)
	assert.InDelta(t, 0.6, v.Y, vecEpsilon)
	assert.InDelta(t, -0.8, v.Z, vecEpsilon)

	assert.Equal(t, Vector3{1, 0, 0}, *NewVector3(0, 0, 0).Normalize())
}

func TestVector3Finite(t *testing.T) {
	assert.True(t, NewVector3(1, -2, 1e30).IsFinite())
	assert.False(t, NewVector3(math32.NaN(), 0, 0).IsFinite())
	assert.False(t, NewVector3(0, math32.Inf(1), 0).IsFinite())
	assert.False(t, NewVector3(0, 0, math32.Inf(-1)).IsFinite())
}

func TestVector3Arrays(t *testing.T) {
	v := NewVector3FromArray([3]Element{1, 2, 3})
	assert.Equal(t, [3]Element{1, 2, 3}, v.Array())
	assert.Equal(t, *v, *NewVector3FromSlice([]Element{1, 2, 3, 4}))

	buf := make([]Element, 4)
	v.ToArray(buf[1:])
	assert.Equal(t, []Element{0, 1, 2, 3}, buf)
}

func TestVector4Ops(t *testing.T) {
	a, b := NewVector4(1, 2, 3, 4), NewVector4(4, 3, 2, 1)
	assert.Equal(t, Vector4{5, 5, 5, 5}, *a.Add(b))
	assert.Equal(t, Vector4{-3, -1, 1, 3}, *a.Sub(b))
	assert.Equal(t, Vector4{-1, -2, -3, -4}, *a.Scale(-1))
	assert.Equal(t, Element(20), a.Dot(b))
	assert.Equal(t, Element(30), a.LenSqr())

	v := NewVector4(2, 0, 0, 0)
	assert.Equal(t, Vector4{1, 0, 0, 0}, *v.Normalize())
	assert.Equal(t, Element(2), NewVector4(1, 1, 1, 1).Len())
	assert.Equal(t, Vector4{0, 0, 0, 1}, *NewVector4(0, 0, 0, 0).Normalize())

	w := NewVector4FromArray([4]Element{1, 2, 3, 4})
	assert.Equal(t, *a, *w)
	assert.Equal(t, [4]Element{1, 2, 3, 4}, w.Array())
	buf := make([]Element, 4)
	w.ToArray(buf)
	assert.Equal(t, []Element{1, 2, 3, 4}, buf)
}
