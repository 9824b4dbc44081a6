package collision

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/shape"
)

const (
	// MaxIterations caps every MPR loop. Running out counts as no contact.
	MaxIterations = 34

	mprTolerance = 1e-6
)

type portalResult int

const (
	portalMiss portalResult = iota
	portalFound
	portalTouching // origin coincides with v1
	portalSegment  // origin lies on the segment v0-v1
)

// portal is the MPR state: v0 is an interior point of A-B and v1..v3 span
// the portal triangle.
type portal struct {
	p [4]supportPoint
}

// MPR tests two convex shapes for overlap using Minkowski portal refinement
// and returns the contact on overlap.
func MPR(a, b shape.SupportMapper, poseA, poseB Pose) (Contact, bool) {
	pr := pair{a: a, b: b, poseA: poseA, poseB: poseB}
	c, _, ok := pr.mpr()
	return c, ok
}

// mpr also returns the final portal so EPA can start from it.
func (pr *pair) mpr() (Contact, *portal, bool) {
	var po portal
	switch pr.discoverPortal(&po) {
	case portalMiss:
		return Contact{}, nil, false

	case portalTouching:
		n := po.p[1].v
		if isZero(n) {
			n = mgl64.Vec3{0, 1, 0}
		}
		return contactFrom(po.p[1].a, po.p[1].b, n.Normalize(), 0), nil, true

	case portalSegment:
		v1 := po.p[1]
		depth := v1.v.Len()
		return contactFrom(v1.a, v1.b, v1.v.Mul(1/depth), depth), nil, true
	}

	if !pr.refinePortal(&po) {
		return Contact{}, nil, false
	}
	c, ok := pr.penetration(&po)
	if !ok {
		return Contact{}, nil, false
	}
	return c, &po, true
}

func (pr *pair) discoverPortal(po *portal) portalResult {
	po.p[0] = pr.center()
	if isZero(po.p[0].v) {
		// Coincident centers: nudge v0 so the first search direction exists.
		po.p[0].v = mgl64.Vec3{1e-5, 0, 0}
	}

	dir := po.p[0].v.Mul(-1).Normalize()
	po.p[1] = pr.support(dir)
	if po.p[1].v.Dot(dir) <= 0 {
		return portalMiss
	}

	dir = po.p[0].v.Cross(po.p[1].v)
	if isZero(dir) {
		if isZero(po.p[1].v) {
			return portalTouching
		}
		return portalSegment
	}

	po.p[2] = pr.support(dir.Normalize())
	if po.p[2].v.Dot(dir) <= 0 {
		return portalMiss
	}

	dir = portalNormal(po.p[0].v, po.p[1].v, po.p[2].v)
	if dir.Dot(po.p[0].v) > 0 {
		po.p[1], po.p[2] = po.p[2], po.p[1]
		dir = dir.Mul(-1)
	}

	for i := 0; i < MaxIterations; i++ {
		po.p[3] = pr.support(dir)
		if po.p[3].v.Dot(dir) <= 0 {
			return portalMiss
		}

		switch {
		case po.p[1].v.Cross(po.p[3].v).Dot(po.p[0].v) < 0:
			// Origin is outside the (v0, v1, v3) plane.
			po.p[2] = po.p[3]
		case po.p[3].v.Cross(po.p[2].v).Dot(po.p[0].v) < 0:
			po.p[1] = po.p[3]
		default:
			return portalFound
		}
		dir = portalNormal(po.p[0].v, po.p[1].v, po.p[2].v)
	}
	return portalMiss
}

// refinePortal moves the portal towards the origin until the origin lies
// behind it (overlap) or the boundary is reached without enclosing it.
func (pr *pair) refinePortal(po *portal) bool {
	for i := 0; i < MaxIterations; i++ {
		dir := po.direction()
		if dir.Dot(po.p[1].v) >= 0 {
			return true
		}

		v4 := pr.support(dir)
		if v4.v.Dot(dir) < 0 || po.reachedTolerance(v4, dir) {
			return false
		}
		po.expand(v4)
	}
	return false
}

func (pr *pair) penetration(po *portal) (Contact, bool) {
	for i := 0; i < MaxIterations; i++ {
		dir := po.direction()
		v4 := pr.support(dir)
		if !po.reachedTolerance(v4, dir) {
			po.expand(v4)
			continue
		}

		closest := closestOnTriangle(po.p[1].v, po.p[2].v, po.p[3].v)
		depth := closest.Len()
		n := dir
		if depth > eps {
			n = closest.Mul(1 / depth)
		}
		a, b := po.witness(n)
		return contactFrom(a, b, n, depth), true
	}
	return Contact{}, false
}

func portalNormal(v0, v1, v2 mgl64.Vec3) mgl64.Vec3 {
	n := v1.Sub(v0).Cross(v2.Sub(v0))
	l := n.Len()
	if l < eps {
		return n
	}
	return n.Mul(1 / l)
}

// direction is the unit normal of the portal triangle pointing away from v0.
func (po *portal) direction() mgl64.Vec3 {
	return portalNormal(po.p[1].v, po.p[2].v, po.p[3].v)
}

func (po *portal) reachedTolerance(v4 supportPoint, dir mgl64.Vec3) bool {
	d4 := v4.v.Dot(dir)
	d := math.Min(d4-po.p[1].v.Dot(dir), math.Min(d4-po.p[2].v.Dot(dir), d4-po.p[3].v.Dot(dir)))
	return d <= mprTolerance
}

// expand replaces one portal vertex by v4 so the origin stays inside the
// cone spanned from v0.
func (po *portal) expand(v4 supportPoint) {
	c := v4.v.Cross(po.p[0].v)
	if po.p[1].v.Dot(c) > 0 {
		if po.p[2].v.Dot(c) > 0 {
			po.p[1] = v4
		} else {
			po.p[3] = v4
		}
	} else {
		if po.p[3].v.Dot(c) > 0 {
			po.p[2] = v4
		} else {
			po.p[1] = v4
		}
	}
}

// witness interpolates the support points with the barycentric coordinates
// of the origin in the portal tetrahedron, falling back to the portal face.
func (po *portal) witness(dir mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	v := [4]mgl64.Vec3{po.p[0].v, po.p[1].v, po.p[2].v, po.p[3].v}

	var w [4]float64
	w[0] = v[1].Cross(v[2]).Dot(v[3])
	w[1] = v[3].Cross(v[2]).Dot(v[0])
	w[2] = v[0].Cross(v[1]).Dot(v[3])
	w[3] = v[2].Cross(v[1]).Dot(v[0])
	sum := w[0] + w[1] + w[2] + w[3]

	if sum <= 0 {
		w[0] = 0
		w[1] = v[2].Cross(v[3]).Dot(dir)
		w[2] = v[3].Cross(v[1]).Dot(dir)
		w[3] = v[1].Cross(v[2]).Dot(dir)
		sum = w[1] + w[2] + w[3]
	}
	if math.Abs(sum) < eps {
		return po.p[1].a, po.p[1].b
	}

	var a, b mgl64.Vec3
	for i := 0; i < 4; i++ {
		a = a.Add(po.p[i].a.Mul(w[i]))
		b = b.Add(po.p[i].b.Mul(w[i]))
	}
	inv := 1 / sum
	return a.Mul(inv), b.Mul(inv)
}
