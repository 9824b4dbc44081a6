package shape

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/geom"
)

const (
	MinimumThickness = 0.01
	DefaultThickness = 0.2
)

// MeshTriangle indexes three vertices of a TriangleMesh.
type MeshTriangle struct {
	A, B, C uint32
	Normal  mgl64.Vec3
}

// TriangleMesh is shared, immutable triangle soup used by triangle shapes.
type TriangleMesh struct {
	Vertices  []mgl64.Vec3
	Triangles []MeshTriangle
}

// NewTriangleMesh builds a mesh from vertices and a flat index list of
// triangle corners, three per triangle.
func NewTriangleMesh(vertices []mgl64.Vec3, indices []uint32) (*TriangleMesh, error) {
	if len(indices)%3 != 0 {
		return nil, fmt.Errorf("%w: %d indices is not a multiple of 3", ErrIndexOutOfRange, len(indices))
	}

	m := &TriangleMesh{
		Vertices:  vertices,
		Triangles: make([]MeshTriangle, 0, len(indices)/3),
	}
	for i := 0; i < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]
		for _, idx := range [3]uint32{a, b, c} {
			if int(idx) >= len(vertices) {
				return nil, fmt.Errorf("%w: vertex %d of %d", ErrIndexOutOfRange, idx, len(vertices))
			}
		}
		tri := geom.Triangle{A: vertices[a], B: vertices[b], C: vertices[c]}
		m.Triangles = append(m.Triangles, MeshTriangle{A: a, B: b, C: c, Normal: tri.Normal()})
	}
	return m, nil
}

func (m *TriangleMesh) Triangle(i int) geom.Triangle {
	t := m.Triangles[i]
	return geom.Triangle{A: m.Vertices[t.A], B: m.Vertices[t.B], C: m.Vertices[t.C]}
}

// Triangle is a single, infinitely thin mesh triangle.
type Triangle struct {
	mesh  *TriangleMesh
	index int
}

func NewTriangle(mesh *TriangleMesh, index int) (*Triangle, error) {
	if index < 0 || index >= len(mesh.Triangles) {
		return nil, fmt.Errorf("%w: triangle %d of %d", ErrIndexOutOfRange, index, len(mesh.Triangles))
	}
	return &Triangle{mesh: mesh, index: index}, nil
}

func (t *Triangle) Index() int { return t.index }

func (t *Triangle) Corners() geom.Triangle { return t.mesh.Triangle(t.index) }

func (t *Triangle) Normal() mgl64.Vec3 { return t.mesh.Triangles[t.index].Normal }

func (t *Triangle) SupportMap(d mgl64.Vec3) mgl64.Vec3 {
	return supportCorner(t.Corners(), d)
}

func (t *Triangle) Center() mgl64.Vec3 { return t.Corners().Centroid() }

func (t *Triangle) BoundingBox(orientation mgl64.Quat, position mgl64.Vec3) geom.AABB {
	c := t.Corners()
	box := geom.EmptyAABB()
	for _, p := range [3]mgl64.Vec3{c.A, c.B, c.C} {
		box.AddPoint(orientation.Rotate(p).Add(position))
	}
	return box
}

// MassInertia reports no mass; triangles only belong to static bodies.
func (t *Triangle) MassInertia() (mgl64.Mat3, mgl64.Vec3, float64) {
	return mgl64.Mat3{}, t.Center(), 0
}

// FatTriangle is a mesh triangle extruded backwards along its normal, giving
// it a shell thickness without extra geometry.
type FatTriangle struct {
	Triangle
	thickness float64
}

func NewFatTriangle(mesh *TriangleMesh, index int, thickness float64) (*FatTriangle, error) {
	tri, err := NewTriangle(mesh, index)
	if err != nil {
		return nil, err
	}
	f := &FatTriangle{Triangle: *tri, thickness: DefaultThickness}
	if err := f.SetThickness(thickness); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FatTriangle) Thickness() float64 { return f.thickness }

// SetThickness updates the extrusion depth. Values below MinimumThickness are
// rejected and leave the shape unchanged.
func (f *FatTriangle) SetThickness(t float64) error {
	if !(t >= MinimumThickness) {
		return fmt.Errorf("%w: %f < %f", ErrThicknessTooSmall, t, MinimumThickness)
	}
	f.thickness = t
	return nil
}

func (f *FatTriangle) SupportMap(d mgl64.Vec3) mgl64.Vec3 {
	p := supportCorner(f.Corners(), d)
	n := f.Normal()
	if n.Dot(d) < 0 {
		p = p.Sub(n.Mul(f.thickness))
	}
	return p
}

func (f *FatTriangle) Center() mgl64.Vec3 {
	return f.Corners().Centroid().Sub(f.Normal().Mul(0.5 * f.thickness))
}

func (f *FatTriangle) BoundingBox(orientation mgl64.Quat, position mgl64.Vec3) geom.AABB {
	c := f.Corners()
	back := f.Normal().Mul(f.thickness)
	box := geom.EmptyAABB()
	for _, p := range [3]mgl64.Vec3{c.A, c.B, c.C} {
		box.AddPoint(orientation.Rotate(p).Add(position))
		box.AddPoint(orientation.Rotate(p.Sub(back)).Add(position))
	}
	return box
}

func supportCorner(t geom.Triangle, d mgl64.Vec3) mgl64.Vec3 {
	best := t.A
	top := t.A.Dot(d)
	if v := t.B.Dot(d); v > top {
		best, top = t.B, v
	}
	if v := t.C.Dot(d); v > top {
		best = t.C
	}
	return best
}
