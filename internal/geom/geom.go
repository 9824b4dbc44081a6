package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Triangle is a triangle given by its three corners.
type Triangle struct {
	A, B, C mgl64.Vec3
}

// Normal returns the unit normal following the A, B, C winding. Degenerate
// triangles report a zero vector.
func (t Triangle) Normal() mgl64.Vec3 {
	n := t.B.Sub(t.A).Cross(t.C.Sub(t.A))
	l := n.Len()
	if l < 1e-18 {
		return mgl64.Vec3{}
	}
	return n.Mul(1 / l)
}

func (t Triangle) Centroid() mgl64.Vec3 {
	return t.A.Add(t.B).Add(t.C).Mul(1.0 / 3.0)
}

func (t Triangle) Bounds() AABB {
	box := EmptyAABB()
	box.AddPoint(t.A)
	box.AddPoint(t.B)
	box.AddPoint(t.C)
	return box
}

// RayIntersect intersects the segment origin + t*dir, t in [0, 1], with the
// triangle (Moller-Trumbore, both sides). The returned normal faces the
// segment origin.
func (t Triangle) RayIntersect(origin, dir mgl64.Vec3) (float64, mgl64.Vec3, bool) {
	const eps = 1e-12

	e1 := t.B.Sub(t.A)
	e2 := t.C.Sub(t.A)
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < eps {
		return 0, mgl64.Vec3{}, false
	}
	inv := 1 / det

	s := origin.Sub(t.A)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, mgl64.Vec3{}, false
	}

	q := s.Cross(e1)
	v := dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, mgl64.Vec3{}, false
	}

	f := e2.Dot(q) * inv
	if f < 0 || f > 1 {
		return 0, mgl64.Vec3{}, false
	}

	n := e1.Cross(e2).Normalize()
	if n.Dot(dir) > 0 {
		n = n.Mul(-1)
	}
	return f, n, true
}

// RotationMatrix converts a unit quaternion into a rotation matrix.
func RotationMatrix(q mgl64.Quat) mgl64.Mat3 {
	return q.Mat4().Mat3()
}

// AbsMat3 returns the matrix with every entry replaced by its magnitude.
func AbsMat3(m mgl64.Mat3) mgl64.Mat3 {
	for i := range m {
		m[i] = math.Abs(m[i])
	}
	return m
}

// Perpendicular returns a unit vector orthogonal to the unit vector n.
func Perpendicular(n mgl64.Vec3) mgl64.Vec3 {
	if math.Abs(n[0]) > 0.57735 {
		return mgl64.Vec3{n[1], -n[0], 0}.Normalize()
	}
	return mgl64.Vec3{0, n[2], -n[1]}.Normalize()
}

// TangentBasis returns two unit vectors completing n to an orthonormal basis.
func TangentBasis(n mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	t1 := Perpendicular(n)
	return t1, n.Cross(t1)
}

// InverseRotate rotates v by the inverse of the unit quaternion q.
func InverseRotate(q mgl64.Quat, v mgl64.Vec3) mgl64.Vec3 {
	return q.Conjugate().Rotate(v)
}

func IsFinite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
