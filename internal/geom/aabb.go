package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max mgl64.Vec3
}

// EmptyAABB returns an inverted box that any AddPoint call will overwrite.
func EmptyAABB() AABB {
	inf := math.Inf(1)
	return AABB{
		Min: mgl64.Vec3{inf, inf, inf},
		Max: mgl64.Vec3{-inf, -inf, -inf},
	}
}

func NewAABB(a, b mgl64.Vec3) AABB {
	box := EmptyAABB()
	box.AddPoint(a)
	box.AddPoint(b)
	return box
}

func (b *AABB) AddPoint(p mgl64.Vec3) {
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Min(b.Min[i], p[i])
		b.Max[i] = math.Max(b.Max[i], p[i])
	}
}

func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

func (b AABB) Union(o AABB) AABB {
	var r AABB
	for i := 0; i < 3; i++ {
		r.Min[i] = math.Min(b.Min[i], o.Min[i])
		r.Max[i] = math.Max(b.Max[i], o.Max[i])
	}
	return r
}

func (b AABB) Overlaps(o AABB) bool {
	for i := 0; i < 3; i++ {
		if b.Max[i] < o.Min[i] || b.Min[i] > o.Max[i] {
			return false
		}
	}
	return true
}

// Contains reports whether o lies entirely inside b.
func (b AABB) Contains(o AABB) bool {
	for i := 0; i < 3; i++ {
		if o.Min[i] < b.Min[i] || o.Max[i] > b.Max[i] {
			return false
		}
	}
	return true
}

func (b AABB) ContainsPoint(p mgl64.Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Expand grows the box by margin on every side.
func (b AABB) Expand(margin float64) AABB {
	m := mgl64.Vec3{margin, margin, margin}
	return AABB{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

// Sweep extends the box along d, only on the side d points to.
func (b AABB) Sweep(d mgl64.Vec3) AABB {
	r := b
	for i := 0; i < 3; i++ {
		if d[i] < 0 {
			r.Min[i] += d[i]
		} else {
			r.Max[i] += d[i]
		}
	}
	return r
}

func (b AABB) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b AABB) Extents() mgl64.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

func (b AABB) SurfaceArea() float64 {
	d := b.Max.Sub(b.Min)
	return 2 * (d[0]*d[1] + d[1]*d[2] + d[2]*d[0])
}

// Octant returns the i-th of the eight sub-boxes, bit k of i selecting the
// upper half along axis k.
func (b AABB) Octant(i int) AABB {
	c := b.Center()
	var r AABB
	for k := 0; k < 3; k++ {
		if i&(1<<k) != 0 {
			r.Min[k], r.Max[k] = c[k], b.Max[k]
		} else {
			r.Min[k], r.Max[k] = b.Min[k], c[k]
		}
	}
	return r
}

// Transform returns the box enclosing b after rotation by orientation and
// translation by position.
func (b AABB) Transform(orientation mgl64.Quat, position mgl64.Vec3) AABB {
	center := orientation.Rotate(b.Center()).Add(position)
	half := AbsMat3(RotationMatrix(orientation)).Mul3x1(b.Extents())
	return AABB{Min: center.Sub(half), Max: center.Add(half)}
}

// RayIntersect performs a slab test of the segment origin + t*dir, t in
// [0, 1]. It returns the entry fraction and the face normal at entry. A
// segment starting inside the box enters at t = 0 with a zero normal.
func (b AABB) RayIntersect(origin, dir mgl64.Vec3) (float64, mgl64.Vec3, bool) {
	tmin, tmax := 0.0, 1.0
	var normal mgl64.Vec3

	for i := 0; i < 3; i++ {
		if math.Abs(dir[i]) < 1e-12 {
			if origin[i] < b.Min[i] || origin[i] > b.Max[i] {
				return 0, mgl64.Vec3{}, false
			}
			continue
		}

		inv := 1 / dir[i]
		t1 := (b.Min[i] - origin[i]) * inv
		t2 := (b.Max[i] - origin[i]) * inv
		sign := -1.0
		if t1 > t2 {
			t1, t2 = t2, t1
			sign = 1.0
		}

		if t1 > tmin {
			tmin = t1
			normal = mgl64.Vec3{}
			normal[i] = sign
		}
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, mgl64.Vec3{}, false
		}
	}
	return tmin, normal, true
}
