package collision

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/shape"
)

const (
	epaMaxIterations = 64
	epaMaxVertices   = 128
	epaTolerance     = 1e-6
)

type epaFace struct {
	i      [3]int
	normal mgl64.Vec3
	dist   float64
}

type epaEdge struct{ a, b int }

type polytope struct {
	verts    []supportPoint
	faces    []epaFace
	edges    []epaEdge
	interior mgl64.Vec3
}

var polytopePool = sync.Pool{
	New: func() any {
		return &polytope{
			verts: make([]supportPoint, 0, epaMaxVertices),
			faces: make([]epaFace, 0, 2*epaMaxVertices),
		}
	},
}

func (p *polytope) reset() {
	p.verts = p.verts[:0]
	p.faces = p.faces[:0]
	p.edges = p.edges[:0]
}

// EPA computes the minimum penetration of two overlapping shapes by
// expanding a polytope inside their Minkowski difference. It reports false
// when the shapes do not overlap or the expansion does not converge.
func EPA(a, b shape.SupportMapper, poseA, poseB Pose) (Contact, bool) {
	pr := pair{a: a, b: b, poseA: poseA, poseB: poseB}
	_, po, ok := pr.mpr()
	if !ok || po == nil {
		return Contact{}, false
	}
	return pr.epa(po)
}

func (pr *pair) epa(po *portal) (Contact, bool) {
	p := polytopePool.Get().(*polytope)
	defer polytopePool.Put(p)
	p.reset()

	p.verts = append(p.verts, po.p[:]...)
	p.interior = p.verts[0].v.Add(p.verts[1].v).Add(p.verts[2].v).Add(p.verts[3].v).Mul(0.25)

	for _, f := range [4][3]int{{0, 1, 2}, {0, 3, 1}, {0, 2, 3}, {1, 3, 2}} {
		p.addFace(f[0], f[1], f[2])
	}
	if len(p.faces) < 4 {
		return Contact{}, false
	}

	for iter := 0; iter < epaMaxIterations; iter++ {
		closest := p.closestFace()
		if closest < 0 {
			return Contact{}, false
		}
		face := p.faces[closest]

		s := pr.support(face.normal)
		if s.v.Dot(face.normal)-face.dist < epaTolerance {
			return p.contact(face), true
		}
		if len(p.verts) >= epaMaxVertices {
			return Contact{}, false
		}

		p.verts = append(p.verts, s)
		if !p.expand(len(p.verts) - 1) {
			return Contact{}, false
		}
	}
	return Contact{}, false
}

// addFace appends a face oriented away from the interior point. Degenerate
// faces are dropped.
func (p *polytope) addFace(a, b, c int) {
	va, vb, vc := p.verts[a].v, p.verts[b].v, p.verts[c].v
	n := vb.Sub(va).Cross(vc.Sub(va))
	l := n.Len()
	if l < eps {
		return
	}
	n = n.Mul(1 / l)
	if n.Dot(va.Sub(p.interior)) < 0 {
		n = n.Mul(-1)
		b, c = c, b
	}
	p.faces = append(p.faces, epaFace{i: [3]int{a, b, c}, normal: n, dist: n.Dot(va)})
}

func (p *polytope) closestFace() int {
	best := -1
	bestDist := math.Inf(1)
	for i, f := range p.faces {
		if f.dist < bestDist {
			best, bestDist = i, f.dist
		}
	}
	return best
}

// expand removes every face visible from vertex v and stitches the horizon
// to v.
func (p *polytope) expand(v int) bool {
	point := p.verts[v].v
	p.edges = p.edges[:0]

	kept := p.faces[:0]
	for _, f := range p.faces {
		if f.normal.Dot(point.Sub(p.verts[f.i[0]].v)) > eps {
			for k := 0; k < 3; k++ {
				p.toggleEdge(f.i[k], f.i[(k+1)%3])
			}
			continue
		}
		kept = append(kept, f)
	}
	p.faces = kept

	if len(p.edges) == 0 {
		return false
	}
	for _, e := range p.edges {
		p.addFace(e.a, e.b, v)
	}
	return len(p.faces) > 0
}

// toggleEdge records a horizon candidate; an edge shared by two removed
// faces appears in both directions and cancels out.
func (p *polytope) toggleEdge(a, b int) {
	for i, e := range p.edges {
		if e.a == b && e.b == a {
			p.edges = append(p.edges[:i], p.edges[i+1:]...)
			return
		}
	}
	p.edges = append(p.edges, epaEdge{a, b})
}

func (p *polytope) contact(f epaFace) Contact {
	a, b, c := p.verts[f.i[0]], p.verts[f.i[1]], p.verts[f.i[2]]
	proj := f.normal.Mul(f.dist)
	u, v, w := barycentric(proj, a.v, b.v, c.v)

	pa := a.a.Mul(u).Add(b.a.Mul(v)).Add(c.a.Mul(w))
	pb := a.b.Mul(u).Add(b.b.Mul(v)).Add(c.b.Mul(w))
	return contactFrom(pa, pb, f.normal, math.Max(f.dist, 0))
}
