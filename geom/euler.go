package geom

import "github.com/chewxy/math32"

type RotationOrder int

const (
	RotationOrderXYZ RotationOrder = iota
	RotationOrderYXZ
	RotationOrderZXY
	RotationOrderZYX
	RotationOrderXZY
	RotationOrderYZX
)

type EulerAngles struct {
	Vector3
	Order RotationOrder
}

func NewEuler(x, y, z Element, order RotationOrder) *EulerAngles {
	return &EulerAngles{Vector3: Vector3{x, y, z}, Order: order}
}

// NewEulerDegrees is NewEuler with angles in degrees.
func NewEulerDegrees(x, y, z Element, order RotationOrder) *EulerAngles {
	const d = math32.Pi / 180
	return NewEuler(x*d, y*d, z*d, order)
}

func NewEulerFromQuaternion(q *Quaternion, order RotationOrder) *EulerAngles {
	return NewEulerFromMatrix4(NewRotationMatrix4FromQuaternion(q), order)
}

func NewEulerFromMatrix4(mat *Matrix4, order RotationOrder) *EulerAngles {
	const eps = 0.0000001
	m11, m21, m31 := mat[0], mat[1], mat[2]
	m12, m22, m32 := mat[4], mat[5], mat[6]
	m13, m23, m33 := mat[8], mat[9], mat[10]

	ret := &EulerAngles{Order: order}
	switch order {
	case RotationOrderXYZ:
		ret.Y = math32.Asin(clamp(m13))
		if math32.Abs(m13) < 1-eps {
			ret.X = math32.Atan2(-m23, m33)
			ret.Z = math32.Atan2(-m12, m11)
		} else {
			ret.X = math32.Atan2(m32, m22)
		}
	case RotationOrderYXZ:
		ret.X = math32.Asin(-clamp(m23))
		if math32.Abs(m23) < 1-eps {
			ret.Y = math32.Atan2(m13, m33)
			ret.Z = math32.Atan2(m21, m22)
		} else {
			ret.Y = math32.Atan2(-m31, m11)
		}
	case RotationOrderZXY:
		ret.X = math32.Asin(clamp(m32))
		if math32.Abs(m32) < 1-eps {
			ret.Y = math32.Atan2(-m31, m33)
			ret.Z = math32.Atan2(-m12, m22)
		} else {
			ret.Z = math32.Atan2(m21, m11)
		}
	case RotationOrderZYX:
		ret.Y = math32.Asin(-clamp(m31))
		if math32.Abs(m31) < 1-eps {
			ret.X = math32.Atan2(m32, m33)
			ret.Z = math32.Atan2(m21, m11)
		} else {
			ret.Z = math32.Atan2(-m12, m22)
		}
	case RotationOrderXZY:
		ret.Z = math32.Asin(-clamp(m12))
		if math32.Abs(m12) < 1-eps {
			ret.X = math32.Atan2(m32, m22)
			ret.Y = math32.Atan2(m13, m11)
		} else {
			ret.X = math32.Atan2(-m23, m33)
		}
	case RotationOrderYZX:
		ret.Z = math32.Asin(clamp(m21))
		if math32.Abs(m21) < 1-eps {
			ret.X = math32.Atan2(-m23, m22)
			ret.Y = math32.Atan2(-m31, m11)
		} else {
			ret.Y = math32.Atan2(m13, m33)
		}
	}
	return ret
}

func (v *EulerAngles) ToQuaternion() *Quaternion {
	cx, sx := math32.Cos(v.X/2), math32.Sin(v.X/2)
	cy, sy := math32.Cos(v.Y/2), math32.Sin(v.Y/2)
	cz, sz := math32.Cos(v.Z/2), math32.Sin(v.Z/2)

	switch v.Order {
	case RotationOrderXYZ:
		return &Quaternion{
			X: sx*cy*cz + cx*sy*sz,
			Y: cx*sy*cz - sx*cy*sz,
			Z: cx*cy*sz + sx*sy*cz,
			W: cx*cy*cz - sx*sy*sz}
	case RotationOrderYXZ:
		return &Quaternion{
			X: sx*cy*cz + cx*sy*sz,
			Y: cx*sy*cz - sx*cy*sz,
			Z: cx*cy*sz - sx*sy*cz,
			W: cx*cy*cz + sx*sy*sz}
	case RotationOrderZXY:
		return &Quaternion{
			X: sx*cy*cz - cx*sy*sz,
			Y: cx*sy*cz + sx*cy*sz,
			Z: cx*cy*sz + sx*sy*cz,
			W: cx*cy*cz - sx*sy*sz}
	case RotationOrderZYX:
		return &Quaternion{
			X: sx*cy*cz - cx*sy*sz,
			Y: cx*sy*cz + sx*cy*sz,
			Z: cx*cy*sz - sx*sy*cz,
			W: cx*cy*cz + sx*sy*sz}
	case RotationOrderXZY:
		return &Quaternion{
			X: sx*cy*cz - cx*sy*sz,
			Y: cx*sy*cz - sx*cy*sz,
			Z: cx*cy*sz + sx*sy*cz,
			W: cx*cy*cz + sx*sy*sz}
	case RotationOrderYZX:
		return &Quaternion{
			X: sx*cy*cz + cx*sy*sz,
			Y: cx*sy*cz + sx*cy*sz,
			Z: cx*cy*sz - sx*sy*cz,
			W: cx*cy*cz - sx*sy*sz}
	default:
		return &Quaternion{0, 0, 0, 1}
	}
}

func clamp(f Element) Element {
	return math32.Max(-1, math32.Min(f, 1))
}
