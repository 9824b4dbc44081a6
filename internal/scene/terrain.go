package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/broadphase"
	"github.com/san-kum/rigid/internal/collision"
	"github.com/san-kum/rigid/internal/dynamics"
	"github.com/san-kum/rigid/internal/octree"
	"github.com/san-kum/rigid/internal/shape"
)

// Heightfield generates a square grid of cells x cells quads centred on
// the origin, two upward-facing triangles per quad, with rolling hills of
// the given amplitude.
func Heightfield(cells int, size, amplitude float64) ([]mgl64.Vec3, []uint32) {
	n := cells + 1
	step := size / float64(cells)
	half := size / 2

	vertices := make([]mgl64.Vec3, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x := float64(i)*step - half
			z := float64(j)*step - half
			y := amplitude * math.Sin(x*0.5) * math.Cos(z*0.4)
			vertices = append(vertices, mgl64.Vec3{x, y, z})
		}
	}

	indices := make([]uint32, 0, cells*cells*6)
	for i := 0; i < cells; i++ {
		for j := 0; j < cells; j++ {
			a := uint32(i*n + j)
			b := a + 1
			c := a + uint32(n)
			d := c + 1
			indices = append(indices, a, b, c, b, d, c)
		}
	}
	return vertices, indices
}

// TerrainFilter collides bodies with a static triangle mesh outside the
// broad phase. A single inactive proxy covering the mesh stands in for all
// triangles; pairs with it are vetoed and replaced by per-triangle contacts
// registered against the null body.
type TerrainFilter struct {
	world     *dynamics.World
	tree      *octree.Octree
	triangles []*shape.FatTriangle
	firstID   uint64
	tester    *broadphase.Static
	proxy     broadphase.ProxyID
	next      broadphase.Filter

	candidates []uint32
	contacts   int
}

func NewTerrainFilter(w *dynamics.World, vertices []mgl64.Vec3, indices []uint32, thickness float64) (*TerrainFilter, error) {
	tree, err := octree.New(vertices, indices)
	if err != nil {
		return nil, err
	}
	if thickness == 0 {
		thickness = shape.DefaultThickness
	}

	mesh := tree.Mesh()
	tris := make([]*shape.FatTriangle, tree.TriangleCount())
	for i := range tris {
		if tris[i], err = shape.NewFatTriangle(mesh, i, thickness); err != nil {
			return nil, err
		}
	}

	f := &TerrainFilter{
		world:     w,
		tree:      tree,
		triangles: tris,
		firstID:   w.RequestIDs(len(tris)),
		tester:    &broadphase.Static{Box: tree.Dimensions().Expand(thickness)},
	}
	f.proxy = w.DynamicTree().AddProxy(f.tester, false)
	return f, nil
}

// Chain passes pairs not involving the terrain to next.
func (f *TerrainFilter) Chain(next broadphase.Filter) { f.next = next }

func (f *TerrainFilter) Octree() *octree.Octree { return f.tree }

// Contacts returns the number of triangle contacts registered since the
// filter was created.
func (f *TerrainFilter) Contacts() int { return f.contacts }

// Remove takes the terrain out of the world.
func (f *TerrainFilter) Remove() {
	f.world.DynamicTree().RemoveProxy(f.proxy)
	f.world.SetBroadPhaseFilter(f.next)
}

func (f *TerrainFilter) Filter(a, b broadphase.Proxy) bool {
	if a != broadphase.Proxy(f.tester) && b != broadphase.Proxy(f.tester) {
		if f.next != nil {
			return f.next.Filter(a, b)
		}
		return true
	}

	other := a
	if a == broadphase.Proxy(f.tester) {
		other = b
	}
	inst, ok := other.(*dynamics.ShapeInstance)
	if !ok {
		return false
	}
	body, ok := f.world.Body(inst.Body)
	if !ok || body.IsStatic() || !body.IsActive() {
		return false
	}

	epa := f.world.Config().NarrowPhase.EPAThreshold
	f.candidates = f.tree.Query(f.candidates[:0], inst.WorldBoundingBox())
	for _, idx := range f.candidates {
		c, hit := collision.MPREPA(f.triangles[idx], inst.Shape, collision.IdentityPose(), inst.Pose(), epa)
		if !hit {
			continue
		}
		f.world.RegisterContact(f.firstID+uint64(idx), inst.ID, f.world.NullBody(), inst.Body,
			c.PointA, c.PointB, c.Normal, c.Penetration)
		f.contacts++
	}
	return false
}
