package fbx

import (
	"github.com/binzume/modelio/geom"
)

// FBX composes Euler angles with the first named axis applied first, so
// eEulerXYZ is Rz*Ry*Rx, which is geom's ZYX order.
var rotationOrders = [...]geom.RotationOrder{
	geom.RotationOrderZYX, // eEulerXYZ
	geom.RotationOrderYZX, // eEulerXZY
	geom.RotationOrderXZY, // eEulerYZX
	geom.RotationOrderZXY, // eEulerYXZ
	geom.RotationOrderYXZ, // eEulerZXY
	geom.RotationOrderXYZ, // eEulerZYX
}

var (
	zero3 = [3]float32{}
	one3  = [3]float32{1, 1, 1}
)

// Model wraps a "Model" object with its transform properties.
type Model struct {
	*Object
}

func (m Model) RotationOrder() geom.RotationOrder {
	i := m.PropertyInt("RotationOrder", 0)
	if i < 0 || i >= len(rotationOrders) {
		return rotationOrders[0]
	}
	return rotationOrders[i]
}

func eulerQuaternion(deg [3]float32, order geom.RotationOrder) *geom.Quaternion {
	return geom.NewEulerDegrees(deg[0], deg[1], deg[2], order).ToQuaternion()
}

// Rotation returns PreRotation * R(euler) * PostRotation^-1 for euler
// angles in degrees.
func (m Model) Rotation(euler [3]float32) *geom.Quaternion {
	pre := eulerQuaternion(m.PropertyVec3("PreRotation", zero3), rotationOrders[0])
	post := eulerQuaternion(m.PropertyVec3("PostRotation", zero3), rotationOrders[0])
	r := eulerQuaternion(euler, m.RotationOrder())
	return pre.Mul(r).Mul(post.Inverse())
}

func translate(v [3]float32) *geom.Matrix4 {
	return geom.NewTranslateMatrix4(v[0], v[1], v[2])
}

func negate(v [3]float32) [3]float32 {
	return [3]float32{-v[0], -v[1], -v[2]}
}

// LocalMatrix evaluates
// T * Roff * Rp * Rpre * R * Rpost^-1 * Rp^-1 * Soff * Sp * S * Sp^-1.
func (m Model) LocalMatrix() *geom.Matrix4 {
	t := m.PropertyVec3("Lcl Translation", zero3)
	s := m.PropertyVec3("Lcl Scaling", one3)
	rp := m.PropertyVec3("RotationPivot", zero3)
	sp := m.PropertyVec3("ScalingPivot", zero3)

	mat := translate(t).
		Mul(translate(m.PropertyVec3("RotationOffset", zero3))).
		Mul(translate(rp)).
		Mul(geom.NewRotationMatrix4FromQuaternion(m.Rotation(m.PropertyVec3("Lcl Rotation", zero3)))).
		Mul(translate(negate(rp))).
		Mul(translate(m.PropertyVec3("ScalingOffset", zero3))).
		Mul(translate(sp)).
		Mul(geom.NewScaleMatrix4(s[0], s[1], s[2])).
		Mul(translate(negate(sp)))
	return mat
}

// GeometricMatrix is the transform applied to the model's geometry only.
func (m Model) GeometricMatrix() *geom.Matrix4 {
	t := m.PropertyVec3("GeometricTranslation", zero3)
	r := m.PropertyVec3("GeometricRotation", zero3)
	s := m.PropertyVec3("GeometricScaling", one3)
	return geom.NewTRSMatrix4(geom.NewVector3FromArray(t), eulerQuaternion(r, rotationOrders[0]), geom.NewVector3FromArray(s))
}

// Geometries returns the geometry objects of the model. 6.x files store
// the geometry inside the model itself.
func (m Model) Geometries() []*Object {
	g := m.ChildObjects("Geometry")
	if len(g) == 0 && m.FindChild("Vertices") != nil {
		g = append(g, m.Object)
	}
	return g
}
