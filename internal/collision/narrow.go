package collision

import (
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/geom"
	"github.com/san-kum/rigid/internal/shape"
)

// Settings tunes contact generation.
type Settings struct {
	// EPAThreshold is the MPR depth above which EPA refines the result.
	EPAThreshold float64
	// Manifold enables extra contacts from clipping the support features of
	// both shapes around the contact normal.
	Manifold bool
	// FeatureAngle is the tilt, in radians, of the directions used to sample
	// a support feature.
	FeatureAngle float64
	// BreakThreshold is the distance scale of persistent contacts.
	BreakThreshold float64
}

func DefaultSettings() Settings {
	return Settings{
		EPAThreshold:   0.1,
		Manifold:       true,
		FeatureAngle:   0.05,
		BreakThreshold: 0.02,
	}
}

// Stats counts how contacts were resolved.
type Stats struct {
	MPR, EPA, EPAFallback int
}

func (s *Stats) Add(o Stats) {
	s.MPR += o.MPR
	s.EPA += o.EPA
	s.EPAFallback += o.EPAFallback
}

// MPREPA runs MPR and refines deep results with EPA. If EPA fails to
// converge the MPR contact is kept. Both shapes need volume: two
// zero-thickness triangles lying in one plane are reported as separated,
// so mesh triangles go through FatTriangle.
func MPREPA(a, b shape.SupportMapper, poseA, poseB Pose, epaThreshold float64) (Contact, bool) {
	c, ok, _ := mprepa(a, b, poseA, poseB, epaThreshold)
	return c, ok
}

func mprepa(a, b shape.SupportMapper, poseA, poseB Pose, epaThreshold float64) (Contact, bool, Stats) {
	var st Stats
	pr := pair{a: a, b: b, poseA: poseA, poseB: poseB}
	c, po, ok := pr.mpr()
	if !ok {
		return Contact{}, false, st
	}
	st.MPR++
	if po == nil || c.Penetration <= epaThreshold {
		return c, true, st
	}

	if e, ok := pr.epa(po); ok {
		st.EPA++
		return e, true, st
	}
	st.EPAFallback++
	return c, true, st
}

const (
	featureSamples = 6
	// maxManifold bounds the points a face contact reports.
	maxManifold = 4
)

// Collide reports the contact between a and b. With Manifold set, the
// support features facing each other along the contact normal are clipped
// against each other; a face contact reports up to four clipped points in
// place of the single MPR point.
func Collide(a, b shape.SupportMapper, poseA, poseB Pose, s Settings, report func(Contact)) (bool, Stats) {
	c, ok, st := mprepa(a, b, poseA, poseB, s.EPAThreshold)
	if !ok {
		return false, st
	}
	if !s.Manifold {
		report(c)
		return true, st
	}

	var buf [4 * featureSamples]Contact
	points := manifold(a, b, poseA, poseB, c.Normal, s, buf[:0])
	if len(points) >= 3 {
		for _, p := range reduceManifold(points) {
			report(p)
		}
		return true, st
	}
	report(c)
	for _, p := range points {
		report(p)
	}
	return true, st
}

// manifold clips the incident feature against the side planes of the
// reference feature, the one with more points (a on ties), and returns the
// clipped points that lie within the break threshold of the reference
// support plane.
func manifold(a, b shape.SupportMapper, poseA, poseB Pose, n mgl64.Vec3, s Settings, dst []Contact) []Contact {
	t1, t2 := geom.TangentBasis(n)

	var bufA, bufB [featureSamples]mgl64.Vec3
	fa := feature(a, poseA, n, t1, t2, s.FeatureAngle, bufA[:0])
	fb := feature(b, poseB, n.Mul(-1), t1, t2, s.FeatureAngle, bufB[:0])

	ref, inc, incidentIsB := fa, fb, true
	if len(fb) > len(fa) {
		ref, inc, incidentIsB = fb, fa, false
	}
	if len(ref) < 2 || len(inc) < 2 {
		return dst
	}

	proj := func(p mgl64.Vec3) [2]float64 { return [2]float64{p.Dot(t1), p.Dot(t2)} }
	// Points this close outside a side plane count as inside, so nearly
	// coincident edges keep their corners instead of crossing mid-edge.
	slop := 0.5 * s.BreakThreshold

	var bufIn, bufOut [4 * featureSamples]mgl64.Vec3
	in, out := bufIn[:0], bufOut[:0]
	poly := append(in, inc...)
	for _, pl := range sidePlanes(ref, proj) {
		poly = clip(poly, pl, slop, proj, out[:0])
		if len(poly) == 0 {
			return dst
		}
		in, out = out, in
	}

	deepA := Support(a, poseA, n)
	deepB := Support(b, poseB, n.Mul(-1))
	for _, p := range poly {
		var ct Contact
		if incidentIsB {
			depth := deepA.Sub(p).Dot(n)
			ct = Contact{PointA: p.Add(n.Mul(depth)), PointB: p, Normal: n, Penetration: depth}
		} else {
			depth := p.Sub(deepB).Dot(n)
			ct = Contact{PointA: p, PointB: p.Sub(n.Mul(depth)), Normal: n, Penetration: depth}
		}
		if ct.Penetration >= -s.BreakThreshold {
			dst = append(dst, ct)
		}
	}
	return dst
}

// plane2 is a line in the tangent plane; points with a non-negative
// signed distance along inward are inside.
type plane2 struct {
	origin, inward [2]float64
}

func (pl plane2) distance(p [2]float64) float64 {
	return (p[0]-pl.origin[0])*pl.inward[0] + (p[1]-pl.origin[1])*pl.inward[1]
}

// sidePlanes returns the edge planes of a counter-clockwise polygon, or the
// two end planes of a segment.
func sidePlanes(ref []mgl64.Vec3, proj func(mgl64.Vec3) [2]float64) []plane2 {
	var planes []plane2
	if len(ref) == 2 {
		a, b := proj(ref[0]), proj(ref[1])
		d := [2]float64{b[0] - a[0], b[1] - a[1]}
		l := math.Hypot(d[0], d[1])
		if l < 1e-12 {
			return nil
		}
		d = [2]float64{d[0] / l, d[1] / l}
		return append(planes,
			plane2{origin: a, inward: d},
			plane2{origin: b, inward: [2]float64{-d[0], -d[1]}})
	}
	for i := range ref {
		a, b := proj(ref[i]), proj(ref[(i+1)%len(ref)])
		d := [2]float64{b[0] - a[0], b[1] - a[1]}
		l := math.Hypot(d[0], d[1])
		if l < 1e-12 {
			continue
		}
		planes = append(planes, plane2{origin: a, inward: [2]float64{-d[1] / l, d[0] / l}})
	}
	return planes
}

// clip keeps the part of poly inside pl (Sutherland-Hodgman). A segment is
// clipped as a segment, not as a closed polygon.
func clip(poly []mgl64.Vec3, pl plane2, slop float64, proj func(mgl64.Vec3) [2]float64, dst []mgl64.Vec3) []mgl64.Vec3 {
	if len(poly) == 1 {
		if pl.distance(proj(poly[0])) >= -slop {
			dst = append(dst, poly[0])
		}
		return dst
	}

	edges := len(poly)
	if edges == 2 {
		edges = 1
	}
	for i := 0; i < edges; i++ {
		p, q := poly[i], poly[(i+1)%len(poly)]
		dp, dq := pl.distance(proj(p)), pl.distance(proj(q))
		inP, inQ := dp >= -slop, dq >= -slop
		if inP {
			dst = append(dst, p)
		}
		if inP != inQ {
			t := dp / (dp - dq)
			dst = append(dst, p.Add(q.Sub(p).Mul(t)))
		}
		if len(poly) == 2 && inQ {
			dst = append(dst, q)
		}
	}
	return dst
}

// reduceManifold keeps at most four points: the deepest, the one farthest
// from it, the one spanning the largest triangle with both, and the one
// adding the most area outside that triangle. Ties go to the earliest point.
func reduceManifold(points []Contact) []Contact {
	if len(points) <= maxManifold {
		return points
	}
	pick := func(score func(p mgl64.Vec3) float64, used []int) int {
		best, bestScore := -1, -1.0
		for i, c := range points {
			if slices.Contains(used, i) {
				continue
			}
			if v := score(c.PointA); v > bestScore {
				best, bestScore = i, v
			}
		}
		return best
	}

	deepest := 0
	for i, c := range points {
		if c.Penetration > points[deepest].Penetration {
			deepest = i
		}
	}
	used := make([]int, 1, maxManifold)
	used[0] = deepest
	p0 := points[deepest].PointA
	used = append(used, pick(func(p mgl64.Vec3) float64 { return p.Sub(p0).LenSqr() }, used))
	p1 := points[used[1]].PointA
	used = append(used, pick(func(p mgl64.Vec3) float64 { return p1.Sub(p0).Cross(p.Sub(p0)).LenSqr() }, used))
	p2 := points[used[2]].PointA
	n := p1.Sub(p0).Cross(p2.Sub(p0))
	outside := func(p mgl64.Vec3) float64 {
		// Area added past each triangle edge; only positive parts count.
		area := 0.0
		for _, e := range [3][2]mgl64.Vec3{{p0, p1}, {p1, p2}, {p2, p0}} {
			if v := e[1].Sub(e[0]).Cross(p.Sub(e[0])).Dot(n); v < 0 {
				area -= v
			}
		}
		return area
	}
	used = append(used, pick(outside, used))

	reduced := make([]Contact, 0, maxManifold)
	for _, i := range used {
		reduced = append(reduced, points[i])
	}
	return reduced
}

// feature samples the support points of s around direction n and returns
// them deduplicated and ordered by angle in the (t1, t2) plane. A support
// point that moves when the tilt is halved lies on a curved surface; such
// a feature is the single support point along n.
func feature(s shape.SupportMapper, pose Pose, n, t1, t2 mgl64.Vec3, tilt float64, dst []mgl64.Vec3) []mgl64.Vec3 {
	cos, sin := math.Cos(tilt), math.Sin(tilt)
	hcos, hsin := math.Cos(tilt/2), math.Sin(tilt/2)
	for i := 0; i < featureSamples; i++ {
		phi := 2 * math.Pi * float64(i) / featureSamples
		u := t1.Mul(math.Cos(phi)).Add(t2.Mul(math.Sin(phi)))
		p := Support(s, pose, n.Mul(cos).Add(u.Mul(sin)))
		if Support(s, pose, n.Mul(hcos).Add(u.Mul(hsin))).Sub(p).LenSqr() > 1e-12 {
			return append(dst[:0], Support(s, pose, n))
		}

		dup := false
		for _, q := range dst {
			if q.Sub(p).LenSqr() < 1e-10 {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, p)
		}
	}
	if len(dst) < 3 {
		return dst
	}

	var center mgl64.Vec3
	for _, p := range dst {
		center = center.Add(p)
	}
	center = center.Mul(1 / float64(len(dst)))
	angle := func(p mgl64.Vec3) float64 {
		r := p.Sub(center)
		return math.Atan2(r.Dot(t2), r.Dot(t1))
	}
	slices.SortFunc(dst, func(p, q mgl64.Vec3) int {
		ap, aq := angle(p), angle(q)
		switch {
		case ap < aq:
			return -1
		case ap > aq:
			return 1
		}
		return 0
	})
	return dst
}
