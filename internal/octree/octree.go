// Package octree indexes a static triangle mesh for box and ray queries.
// The tree is built once; changing the geometry requires a rebuild.
package octree

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/geom"
	"github.com/san-kum/rigid/internal/shape"
)

const (
	MaxDepth = 8
	// LeafSize is the triangle count below which a node is not split.
	LeafSize = 8
)

var ErrEmptyMesh = errors.New("octree: mesh has no triangles")

const noChild = int32(-1)

type node struct {
	box       geom.AABB
	children  [8]int32
	triangles []uint32
}

// Octree holds triangle indices in the deepest node whose box fully
// contains the triangle.
type Octree struct {
	mesh   *shape.TriangleMesh
	bounds []geom.AABB
	nodes  []node
}

// RayHit is the closest triangle along a ray.
type RayHit struct {
	Triangle uint32
	Fraction float64
	Normal   mgl64.Vec3
}

// New builds an octree over the triangles given by a flat index list,
// three corners per triangle.
func New(vertices []mgl64.Vec3, indices []uint32) (*Octree, error) {
	mesh, err := shape.NewTriangleMesh(vertices, indices)
	if err != nil {
		return nil, err
	}
	return FromMesh(mesh)
}

func FromMesh(mesh *shape.TriangleMesh) (*Octree, error) {
	n := len(mesh.Triangles)
	if n == 0 {
		return nil, ErrEmptyMesh
	}

	o := &Octree{mesh: mesh, bounds: make([]geom.AABB, n)}
	root := geom.EmptyAABB()
	all := make([]uint32, n)
	for i := range mesh.Triangles {
		o.bounds[i] = mesh.Triangle(i).Bounds()
		root = root.Union(o.bounds[i])
		all[i] = uint32(i)
	}

	// Pad flat meshes so every octant has volume.
	root = root.Expand(1e-6)
	o.build(o.newNode(root), all, 0)
	return o, nil
}

func (o *Octree) newNode(box geom.AABB) int32 {
	n := node{box: box}
	for i := range n.children {
		n.children[i] = noChild
	}
	o.nodes = append(o.nodes, n)
	return int32(len(o.nodes) - 1)
}

func (o *Octree) build(idx int32, tris []uint32, depth int) {
	if len(tris) <= LeafSize || depth >= MaxDepth {
		o.nodes[idx].triangles = tris
		return
	}

	box := o.nodes[idx].box
	var buckets [8][]uint32
	var kept []uint32
	for _, t := range tris {
		placed := false
		for i := 0; i < 8; i++ {
			if box.Octant(i).Contains(o.bounds[t]) {
				buckets[i] = append(buckets[i], t)
				placed = true
				break
			}
		}
		if !placed {
			kept = append(kept, t)
		}
	}
	o.nodes[idx].triangles = kept

	for i, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		child := o.newNode(box.Octant(i))
		// newNode may grow the slice, so index again.
		o.nodes[idx].children[i] = child
		o.build(child, bucket, depth+1)
	}
}

// Mesh returns the indexed triangle mesh.
func (o *Octree) Mesh() *shape.TriangleMesh { return o.mesh }

// Dimensions returns the box enclosing the whole mesh.
func (o *Octree) Dimensions() geom.AABB { return o.nodes[0].box }

func (o *Octree) TriangleCount() int { return len(o.bounds) }

func (o *Octree) Triangle(i uint32) geom.Triangle { return o.mesh.Triangle(int(i)) }

// Query appends to dst the index of every triangle whose bounding box
// overlaps box.
func (o *Octree) Query(dst []uint32, box geom.AABB) []uint32 {
	var storage [64]int32
	stack := append(storage[:0], 0)
	for len(stack) > 0 {
		n := &o.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if !n.box.Overlaps(box) {
			continue
		}
		for _, t := range n.triangles {
			if o.bounds[t].Overlaps(box) {
				dst = append(dst, t)
			}
		}
		for _, c := range n.children {
			if c != noChild {
				stack = append(stack, c)
			}
		}
	}
	return dst
}

// RayCast returns the closest triangle hit by origin + t*dir, t in [0, 1].
func (o *Octree) RayCast(origin, dir mgl64.Vec3) (RayHit, bool) {
	best := RayHit{Fraction: math.Inf(1)}
	found := false

	var storage [64]int32
	stack := append(storage[:0], 0)
	for len(stack) > 0 {
		n := &o.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]

		enter, _, ok := n.box.RayIntersect(origin, dir)
		if !ok || enter > best.Fraction {
			continue
		}
		for _, t := range n.triangles {
			frac, normal, ok := o.mesh.Triangle(int(t)).RayIntersect(origin, dir)
			if !ok {
				continue
			}
			if frac < best.Fraction || (frac == best.Fraction && t < best.Triangle) {
				best = RayHit{Triangle: t, Fraction: frac, Normal: normal}
				found = true
			}
		}
		for _, c := range n.children {
			if c != noChild {
				stack = append(stack, c)
			}
		}
	}
	return best, found
}
