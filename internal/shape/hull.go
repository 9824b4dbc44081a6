package shape

import (
	"fmt"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/geom"
)

// MaxHullVertices is the largest vertex count a uint16 neighbor index can
// address.
const MaxHullVertices = math.MaxUint16 + 1

type hullVertex struct {
	position mgl64.Vec3
	// neighbors[start:end] lists the adjacent vertex indices.
	start, end uint32
}

type hullFace struct {
	a, b, c uint16
}

// hullGeometry is immutable once built and shared between clones.
type hullGeometry struct {
	vertices  []hullVertex
	neighbors []uint16
	faces     []hullFace
}

// ConvexHull is a convex polyhedron with a vertex adjacency graph used for
// hill-climbing support queries. All input vertices must lie on the hull
// surface.
type ConvexHull struct {
	geo *hullGeometry

	shift   mgl64.Vec3
	box     geom.AABB
	inertia mgl64.Mat3
	com     mgl64.Vec3
	mass    float64
}

// NewConvexHull builds a hull from its surface triangles.
func NewConvexHull(tris []geom.Triangle) (*ConvexHull, error) {
	if len(tris) == 0 {
		return nil, ErrEmptyHull
	}

	index := make(map[mgl64.Vec3]uint16, len(tris))
	var positions []mgl64.Vec3

	push := func(v mgl64.Vec3) (uint16, error) {
		if i, ok := index[v]; ok {
			return i, nil
		}
		if len(positions) >= MaxHullVertices {
			return 0, fmt.Errorf("%w: more than %d distinct vertices", ErrCapacityExceeded, MaxHullVertices)
		}
		i := uint16(len(positions))
		index[v] = i
		positions = append(positions, v)
		return i, nil
	}

	faces := make([]hullFace, 0, len(tris))
	for _, t := range tris {
		a, err := push(t.A)
		if err != nil {
			return nil, err
		}
		b, err := push(t.B)
		if err != nil {
			return nil, err
		}
		c, err := push(t.C)
		if err != nil {
			return nil, err
		}
		faces = append(faces, hullFace{a, b, c})
	}

	adjacency := make([][]uint16, len(positions))
	link := func(i, j uint16) {
		if i != j {
			adjacency[i] = append(adjacency[i], j)
		}
	}
	for _, f := range faces {
		link(f.a, f.b)
		link(f.a, f.c)
		link(f.b, f.a)
		link(f.b, f.c)
		link(f.c, f.a)
		link(f.c, f.b)
	}

	geo := &hullGeometry{
		vertices: make([]hullVertex, len(positions)),
		faces:    faces,
	}
	for i, p := range positions {
		list := adjacency[i]
		slices.Sort(list)
		list = slices.Compact(list)

		start := uint32(len(geo.neighbors))
		geo.neighbors = append(geo.neighbors, list...)
		geo.vertices[i] = hullVertex{
			position: p,
			start:    start,
			end:      uint32(len(geo.neighbors)),
		}
	}

	h := &ConvexHull{geo: geo}
	h.update()
	return h, nil
}

// Clone returns a hull sharing the immutable geometry with h.
func (h *ConvexHull) Clone() *ConvexHull {
	c := *h
	return &c
}

func (h *ConvexHull) Shift() mgl64.Vec3 { return h.shift }

// SetShift translates the hull without touching the adjacency graph.
func (h *ConvexHull) SetShift(shift mgl64.Vec3) {
	h.shift = shift
	h.update()
}

func (h *ConvexHull) VertexCount() int { return len(h.geo.vertices) }

// Vertices returns the shifted vertex positions.
func (h *ConvexHull) Vertices() []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(h.geo.vertices))
	for i, v := range h.geo.vertices {
		out[i] = v.position.Add(h.shift)
	}
	return out
}

// Neighbors returns the adjacency list of vertex i.
func (h *ConvexHull) Neighbors(i int) []uint16 {
	v := h.geo.vertices[i]
	return h.geo.neighbors[v.start:v.end]
}

func (h *ConvexHull) update() {
	h.computeMassInertia()
	h.box = supportBounds(h)
}

func (h *ConvexHull) computeMassInertia() {
	canonical := mgl64.Mat3{
		1.0 / 60.0, 1.0 / 120.0, 1.0 / 120.0,
		1.0 / 120.0, 1.0 / 60.0, 1.0 / 120.0,
		1.0 / 120.0, 1.0 / 120.0, 1.0 / 60.0,
	}

	var within mgl64.Vec3
	for _, v := range h.geo.vertices {
		within = within.Add(v.position)
	}
	within = within.Mul(1 / float64(len(h.geo.vertices))).Add(h.shift)

	var (
		covariance mgl64.Mat3
		com        mgl64.Vec3
		mass       float64
	)
	for _, f := range h.geo.faces {
		c0 := h.geo.vertices[f.a].position.Add(h.shift)
		c1 := h.geo.vertices[f.b].position.Add(h.shift)
		c2 := h.geo.vertices[f.c].position.Add(h.shift)

		normal := c1.Sub(c0).Cross(c2.Sub(c0))
		if normal.Dot(c0.Sub(within)) < 0 {
			c0, c1 = c1, c0
		}

		a := mgl64.Mat3FromCols(c0, c1, c2)
		det := a.Det()

		covariance = covariance.Add(a.Mul3(canonical).Mul3(a.Transpose()).Mul(det))

		tetMass := det / 6
		mass += tetMass
		com = com.Add(c0.Add(c1).Add(c2).Mul(tetMass / 4))
	}

	if mass != 0 {
		com = com.Mul(1 / mass)
	}

	h.inertia = mgl64.Ident3().Mul(covariance.Trace()).Sub(covariance)
	h.com = com
	h.mass = mass
}

func (h *ConvexHull) SupportMap(direction mgl64.Vec3) mgl64.Vec3 {
	verts := h.geo.vertices
	nbs := h.geo.neighbors

	current := 0
	best := verts[0].position.Dot(direction)

again:
	v := verts[current]
	for _, n := range nbs[v.start:v.end] {
		d := verts[n].position.Dot(direction)
		if d > best {
			best = d
			current = int(n)
			goto again
		}
	}

	return verts[current].position.Add(h.shift)
}

func (h *ConvexHull) Center() mgl64.Vec3 {
	return h.com
}

func (h *ConvexHull) LocalBoundingBox() geom.AABB { return h.box }

func (h *ConvexHull) BoundingBox(orientation mgl64.Quat, position mgl64.Vec3) geom.AABB {
	return h.box.Transform(orientation, position)
}

func (h *ConvexHull) MassInertia() (mgl64.Mat3, mgl64.Vec3, float64) {
	return h.inertia, h.com, h.mass
}
