package viz

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/collision"
	"github.com/san-kum/rigid/internal/dynamics"
	"github.com/san-kum/rigid/internal/geom"
	"github.com/san-kum/rigid/internal/scene"
	"github.com/san-kum/rigid/internal/shape"
)

const sphereSegments = 16

// Camera orbits Target. Extent is the scene radius that fills half the
// canvas at Zoom 1.
type Camera struct {
	Target     mgl64.Vec3
	Extent     float64
	Distance   float64
	RotX, RotY float64
	Zoom       float64
}

func NewCamera(target mgl64.Vec3, extent float64) *Camera {
	if extent <= 0 {
		extent = 1
	}
	return &Camera{Target: target, Extent: extent, Distance: 4, RotX: 0.35, RotY: 0.6, Zoom: 1}
}

func (c *Camera) RotateX(a float64) {
	c.RotX = mgl64.Clamp(c.RotX+a, -math.Pi/2, math.Pi/2)
}
func (c *Camera) RotateY(a float64) { c.RotY += a }
func (c *Camera) ZoomIn()           { c.Zoom = math.Min(10, c.Zoom*1.2) }
func (c *Camera) ZoomOut()          { c.Zoom = math.Max(0.1, c.Zoom/1.2) }

func (c *Camera) view(p mgl64.Vec3) mgl64.Vec3 {
	q := mgl64.QuatRotate(c.RotX, mgl64.Vec3{1, 0, 0}).Mul(mgl64.QuatRotate(-c.RotY, mgl64.Vec3{0, 1, 0}))
	return q.Rotate(p.Sub(c.Target)).Mul(c.Zoom / c.Extent)
}

// Project maps a world point to canvas pixels. It returns the depth along
// the view direction and false for points behind the camera.
func (c *Camera) Project(p mgl64.Vec3, sw, sh int) (int, int, float64, bool) {
	v := c.view(p)
	depth := c.Distance - v.Z()
	if depth <= 0.1 {
		return 0, 0, 0, false
	}
	scale := c.Distance / depth * float64(min(sw, sh)) / 2
	sx := int(math.Round(v.X()*scale)) + sw/2
	sy := int(math.Round(-v.Y()*scale)) + sh/2
	return sx, sy, depth, true
}

type Edge struct {
	Start, End mgl64.Vec3
	Ink        Ink
}

type Wireframe struct{ Edges []Edge }

func NewWireframe() *Wireframe { return &Wireframe{Edges: make([]Edge, 0)} }

func (w *Wireframe) AddEdge(s, e mgl64.Vec3, ink Ink) { w.Edges = append(w.Edges, Edge{s, e, ink}) }
func (w *Wireframe) AddPoint(p mgl64.Vec3, ink Ink)   { w.Edges = append(w.Edges, Edge{p, p, ink}) }
func (w *Wireframe) Clear()                           { w.Edges = w.Edges[:0] }

// AddShape appends the outline of s placed at pose.
func (w *Wireframe) AddShape(s shape.Shape, pose collision.Pose, ink Ink) {
	switch s := s.(type) {
	case *shape.Box:
		h := s.Size().Mul(0.5)
		var v [8]mgl64.Vec3
		for i := range v {
			c := mgl64.Vec3{h.X(), h.Y(), h.Z()}
			if i&1 != 0 {
				c[0] = -c[0]
			}
			if i&2 != 0 {
				c[1] = -c[1]
			}
			if i&4 != 0 {
				c[2] = -c[2]
			}
			v[i] = pose.Apply(c)
		}
		// Corners differing in exactly one bit share an edge.
		for i := range v {
			for _, bit := range [3]int{1, 2, 4} {
				if j := i ^ bit; j > i {
					w.AddEdge(v[i], v[j], ink)
				}
			}
		}
	case *shape.Sphere:
		r := s.Radius()
		for axis := 0; axis < 3; axis++ {
			prev := pose.Apply(circlePoint(axis, r, 0))
			for k := 1; k <= sphereSegments; k++ {
				next := pose.Apply(circlePoint(axis, r, 2*math.Pi*float64(k)/sphereSegments))
				w.AddEdge(prev, next, ink)
				prev = next
			}
		}
	case *shape.ConvexHull:
		verts := s.Vertices()
		for i := range verts {
			for _, j := range s.Neighbors(i) {
				if int(j) > i {
					w.AddEdge(pose.Apply(verts[i]), pose.Apply(verts[j]), ink)
				}
			}
		}
	default:
		w.AddBox(s.BoundingBox(pose.Orientation, pose.Position), ink)
	}
}

// AddBox appends the twelve edges of an axis-aligned box.
func (w *Wireframe) AddBox(b geom.AABB, ink Ink) {
	corner := func(i int) mgl64.Vec3 {
		c := b.Min
		if i&1 != 0 {
			c[0] = b.Max[0]
		}
		if i&2 != 0 {
			c[1] = b.Max[1]
		}
		if i&4 != 0 {
			c[2] = b.Max[2]
		}
		return c
	}
	for i := 0; i < 8; i++ {
		for _, bit := range [3]int{1, 2, 4} {
			if j := i ^ bit; j > i {
				w.AddEdge(corner(i), corner(j), ink)
			}
		}
	}
}

func circlePoint(axis int, r, a float64) mgl64.Vec3 {
	s, c := r*math.Sin(a), r*math.Cos(a)
	switch axis {
	case 0:
		return mgl64.Vec3{0, c, s}
	case 1:
		return mgl64.Vec3{c, 0, s}
	default:
		return mgl64.Vec3{c, s, 0}
	}
}

// AddScene appends every body shape, the terrain mesh and the current
// contact points of s. Sleeping and static bodies use the muted ink.
func (w *Wireframe) AddScene(s *scene.Scene) {
	world := s.World

	if s.Terrain != nil {
		mesh := s.Terrain.Octree().Mesh()
		for i := 0; i < s.Terrain.Octree().TriangleCount(); i++ {
			t := mesh.Triangle(i)
			w.AddEdge(t.A, t.B, InkMuted)
			w.AddEdge(t.B, t.C, InkMuted)
			w.AddEdge(t.C, t.A, InkMuted)
		}
	}

	world.Bodies(func(_ dynamics.BodyID, b *dynamics.RigidBody) bool {
		ink := InkMuted
		if !b.IsStatic() && b.IsActive() {
			ink = InkBody
		}
		for _, sid := range b.Shapes() {
			if inst, ok := world.ShapeInstance(sid); ok {
				w.AddShape(inst.Shape, inst.Pose(), ink)
			}
		}
		return true
	})

	var buf []dynamics.Contact
	world.Arbiters().Each(func(a *dynamics.Arbiter) bool {
		b2, ok := world.Body(a.Body2)
		if !ok {
			return true
		}
		buf = a.Contact.Contacts(buf[:0])
		for _, c := range buf {
			w.AddPoint(b2.Pose().Apply(c.RelativePos2), InkContact)
		}
		return true
	})
}

type projectedEdge struct {
	x1, y1, x2, y2 int
	depth          float64
	ink            Ink
}

// Render3D draws the wireframe to the canvas far to near, so nearer edges
// own the ink of shared cells.
func Render3D(c *Canvas, w *Wireframe, cam *Camera) {
	if c == nil || w == nil || cam == nil {
		return
	}
	pw, ph := c.Pixels()
	proj := make([]projectedEdge, 0, len(w.Edges))
	for _, e := range w.Edges {
		x1, y1, d1, ok1 := cam.Project(e.Start, pw, ph)
		x2, y2, d2, ok2 := cam.Project(e.End, pw, ph)
		if ok1 && ok2 {
			proj = append(proj, projectedEdge{x1, y1, x2, y2, (d1 + d2) / 2, e.Ink})
		}
	}
	sort.SliceStable(proj, func(i, j int) bool { return proj[i].depth > proj[j].depth })
	for _, e := range proj {
		c.SetInk(e.ink)
		c.DrawLine(e.x1, e.y1, e.x2, e.y2)
	}
}

// Frame returns a camera target and extent that fit every body of s.
func Frame(s *scene.Scene) (mgl64.Vec3, float64) {
	box := geom.EmptyAABB()
	if s.Terrain != nil {
		d := s.Terrain.Octree().Dimensions()
		box.AddPoint(d.Min)
		box.AddPoint(d.Max)
	}
	for _, id := range s.Bodies {
		if b, ok := s.World.Body(id); ok {
			box.AddPoint(b.Position)
		}
	}
	if box.IsEmpty() {
		return mgl64.Vec3{}, 1
	}
	center := box.Min.Add(box.Max).Mul(0.5)
	extent := box.Max.Sub(box.Min).Len()/2 + 1
	return center, extent
}
