package geom

import "github.com/chewxy/math32"

type Quaternion = Vector4

func NewQuaternion(x, y, z, w Element) *Quaternion {
	return &Quaternion{X: x, Y: y, Z: z, W: w}
}

func NewQuaternionFromArray(arr [4]Element) *Quaternion {
	return &Quaternion{X: arr[0], Y: arr[1], Z: arr[2], W: arr[3]}
}

// NewQuaternionFromAxisAngle returns a rotation of rad around a normalized axis.
func NewQuaternionFromAxisAngle(axis *Vector3, rad Element) *Quaternion {
	s := math32.Sin(rad / 2)
	return &Quaternion{X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s, W: math32.Cos(rad / 2)}
}

// Inverse returns the conjugate. q must be a unit quaternion.
func (v *Vector4) Inverse() *Vector4 {
	return &Vector4{X: -v.X, Y: -v.Y, Z: -v.Z, W: v.W}
}

// Returns Hamilton product
func (a *Vector4) Mul(b *Vector4) *Vector4 {
	return &Vector4{
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z, // 1
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y, // i
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X, // j
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W, // k
	}
}

// ApplyTo rotates v by the quaternion.
func (q *Vector4) ApplyTo(v *Vector3) *Vector3 {
	ix := q.W*v.X + q.Y*v.Z - q.Z*v.Y
	iy := q.W*v.Y + q.Z*v.X - q.X*v.Z
	iz := q.W*v.Z + q.X*v.Y - q.Y*v.X
	iw := -q.X*v.X - q.Y*v.Y - q.Z*v.Z
	return &Vector3{
		X: ix*q.W + iw*-q.X + iy*-q.Z - iz*-q.Y,
		Y: iy*q.W + iw*-q.Y + iz*-q.X - ix*-q.Z,
		Z: iz*q.W + iw*-q.Z + ix*-q.Y - iy*-q.X,
	}
}

// Slerp interpolates between a and b.
func (a *Vector4) Slerp(b *Vector4, t Element) *Vector4 {
	cos := a.Dot(b)
	bb := *b
	if cos < 0 {
		cos = -cos
		bb = Vector4{-b.X, -b.Y, -b.Z, -b.W}
	}
	if cos > 0.9995 {
		return a.Add(bb.Sub(a).Scale(t)).Normalize()
	}
	theta := math32.Acos(cos)
	sin := math32.Sin(theta)
	wa := math32.Sin((1-t)*theta) / sin
	wb := math32.Sin(t*theta) / sin
	return a.Scale(wa).Add(bb.Scale(wb))
}
