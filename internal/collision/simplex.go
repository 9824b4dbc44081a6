package collision

import (
	"github.com/go-gl/mathgl/mgl64"
)

// barycentric returns the coordinates of p, assumed to lie in the plane of
// a, b, c.
func barycentric(p, a, b, c mgl64.Vec3) (float64, float64, float64) {
	v0 := b.Sub(a)
	v1 := c.Sub(a)
	v2 := p.Sub(a)
	d00 := v0.Dot(v0)
	d01 := v0.Dot(v1)
	d11 := v1.Dot(v1)
	d20 := v2.Dot(v0)
	d21 := v2.Dot(v1)
	denom := d00*d11 - d01*d01
	if denom < eps {
		return 1, 0, 0
	}
	v := (d11*d20 - d01*d21) / denom
	w := (d00*d21 - d01*d20) / denom
	return 1 - v - w, v, w
}

func closestOnTriangle(a, b, c mgl64.Vec3) mgl64.Vec3 {
	p, _ := closestTriangle(a, b, c)
	return p
}

// closestTriangle returns the point of triangle abc closest to the origin
// and the barycentric weights of that point (Ericson, Real-Time Collision
// Detection 5.1.5).
func closestTriangle(a, b, c mgl64.Vec3) (mgl64.Vec3, [3]float64) {
	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := a.Mul(-1)

	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a, [3]float64{1, 0, 0}
	}

	bp := b.Mul(-1)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b, [3]float64{0, 1, 0}
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return a.Add(ab.Mul(v)), [3]float64{1 - v, v, 0}
	}

	cp := c.Mul(-1)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c, [3]float64{0, 0, 1}
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return a.Add(ac.Mul(w)), [3]float64{1 - w, 0, w}
	}

	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).Mul(w)), [3]float64{0, 1 - w, w}
	}

	sum := va + vb + vc
	if sum == 0 {
		return a, [3]float64{1, 0, 0}
	}
	denom := 1 / sum
	v := vb * denom
	w := vc * denom
	return a.Add(ab.Mul(v)).Add(ac.Mul(w)), [3]float64{1 - v - w, v, w}
}

// closestSegment returns the point of segment ab closest to the origin and
// its weights.
func closestSegment(a, b mgl64.Vec3) (mgl64.Vec3, [2]float64) {
	ab := b.Sub(a)
	den := ab.Dot(ab)
	if den < eps {
		return a, [2]float64{1, 0}
	}
	t := -a.Dot(ab) / den
	switch {
	case t <= 0:
		return a, [2]float64{1, 0}
	case t >= 1:
		return b, [2]float64{0, 1}
	}
	return a.Add(ab.Mul(t)), [2]float64{1 - t, t}
}

// simplex is a GJK simplex of up to four points.
type simplex struct {
	p [4]mgl64.Vec3
	n int
}

func (s *simplex) add(v mgl64.Vec3) {
	for i := 0; i < s.n; i++ {
		if s.p[i].ApproxEqualThreshold(v, 1e-12) {
			return
		}
	}
	if s.n < 4 {
		s.p[s.n] = v
		s.n++
	}
}

// closest returns the point of the simplex's convex hull nearest the origin
// after mapping every vertex through f, and drops vertices that do not
// support it.
func (s *simplex) closest(f func(mgl64.Vec3) mgl64.Vec3) mgl64.Vec3 {
	var w [4]mgl64.Vec3
	for i := 0; i < s.n; i++ {
		w[i] = f(s.p[i])
	}

	switch s.n {
	case 1:
		return w[0]

	case 2:
		pt, bc := closestSegment(w[0], w[1])
		s.keep([]bool{bc[0] > 0, bc[1] > 0})
		return pt

	case 3:
		pt, bc := closestTriangle(w[0], w[1], w[2])
		s.keep([]bool{bc[0] > 0, bc[1] > 0, bc[2] > 0})
		return pt

	case 4:
		return s.closestTetrahedron(w)
	}
	return mgl64.Vec3{}
}

func (s *simplex) closestTetrahedron(w [4]mgl64.Vec3) mgl64.Vec3 {
	faces := [4][4]int{{0, 1, 2, 3}, {0, 3, 1, 2}, {0, 2, 3, 1}, {1, 3, 2, 0}}

	inside := true
	bestDist := -1.0
	var best mgl64.Vec3
	var bestKeep []bool

	for _, f := range faces {
		a, b, c, d := w[f[0]], w[f[1]], w[f[2]], w[f[3]]
		n := b.Sub(a).Cross(c.Sub(a))
		// The origin is outside this face when it lies on the opposite side
		// from the fourth vertex.
		sideOrigin := n.Dot(a.Mul(-1))
		sideD := n.Dot(d.Sub(a))
		if sideOrigin*sideD >= 0 {
			continue
		}
		inside = false

		pt, bc := closestTriangle(a, b, c)
		dist := pt.Dot(pt)
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			best = pt
			keep := make([]bool, 4)
			keep[f[0]] = bc[0] > 0
			keep[f[1]] = bc[1] > 0
			keep[f[2]] = bc[2] > 0
			bestKeep = keep
		}
	}

	if inside {
		return mgl64.Vec3{}
	}
	s.keep(bestKeep)
	return best
}

func (s *simplex) keep(mask []bool) {
	n := 0
	for i := 0; i < s.n; i++ {
		if mask[i] {
			s.p[n] = s.p[i]
			n++
		}
	}
	if n == 0 {
		n = 1
	}
	s.n = n
}
