package geom

import (
	"testing"
)

func TestDecomposeMatrix(t *testing.T) {
	const eps = 0.00001

	pos := NewVector3(1, 2, 3)
	rot := NewEulerDegrees(10, 20, 30, RotationOrderZXY).ToQuaternion()
	scale := NewVector3(1.5, 1.6, 1.7)

	mat := NewTRSMatrix4(pos, rot, scale)
	pos1, rot1, scale1 := mat.Decompose()

	if pos.Sub(pos1).Len() > eps {
		t.Error("pos: ", pos, pos1)
	}
	if rot.Sub(rot1).Len() > eps {
		t.Error("rot: ", rot, rot1)
	}
	if scale.Sub(scale1).Len() > eps {
		t.Error("scale: ", scale, scale1)
	}

	mat2 := NewRotationMatrix4FromQuaternion(rot)
	pos1, rot1, scale1 = mat2.Decompose()
	if rot.Sub(rot1).Len() > eps {
		t.Error("rot: ", rot, rot1)
	}
	if pos1.Len() > eps {
		t.Error("pos: ", pos1)
	}
	if scale1.Sub(NewVector3(1, 1, 1)).Len() > eps {
		t.Error("scale: ", scale1)
	}
}

func TestMatrixRotationMatchesQuaternion(t *testing.T) {
	const eps = 0.00001
	q := NewEulerDegrees(30, -45, 60, RotationOrderXYZ).ToQuaternion()
	v := NewVector3(1, 2, 3)
	if NewRotationMatrix4FromQuaternion(q).ApplyTo(v).Sub(q.ApplyTo(v)).Len() > eps {
		t.Error("matrix and quaternion rotation differ")
	}
}

func TestMatrixInverse(t *testing.T) {
	const eps = 0.0001
	m := NewTRSMatrix4(NewVector3(1, -2, 3), NewEuler(0.3, 0.2, 0.1, RotationOrderXYZ).ToQuaternion(), NewVector3(2, 2, 2))
	r := m.Mul(m.Inverse())
	for i := range r {
		if d := r[i] - identity[i]; d > eps || d < -eps {
			t.Fatal("m * m^-1 != I", r)
		}
	}
	if !NewMatrix4().IsIdentity() {
		t.Error("NewMatrix4() is not identity")
	}
}

func TestTranslateScaleOrder(t *testing.T) {
	m := NewTranslateMatrix4(1, 0, 0).Mul(NewScaleMatrix4(2, 2, 2))
	v := m.ApplyTo(NewVector3(1, 1, 1))
	if *v != *NewVector3(3, 2, 2) {
		t.Error("T*S applied in wrong order: ", v)
	}
	d := m.ApplyToDirection(NewVector3(1, 0, 0))
	if *d != *NewVector3(2, 0, 0) {
		t.Error("direction must ignore translation: ", d)
	}
}
