// Package broadphase maintains a dynamic bounding volume tree over proxies
// and answers pair, box and ray queries against it.
package broadphase

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/geom"
	"github.com/san-kum/rigid/internal/handle"
)

// ProxyID identifies a proxy inside a DynamicTree.
type ProxyID = handle.Handle

// Proxy is anything the tree can index.
type Proxy interface {
	WorldBoundingBox() geom.AABB
	Velocity() mgl64.Vec3
}

// RayCaster is implemented by proxies that can answer an exact ray query.
// The segment is origin + t*dir with t in [0, 1].
type RayCaster interface {
	RayCast(origin, dir mgl64.Vec3) (fraction float64, normal mgl64.Vec3, ok bool)
}

// Filter decides whether a broad phase pair proceeds to the default narrow
// phase. Returning false lets the filter handle the pair itself, or drop it.
type Filter interface {
	Filter(a, b Proxy) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(a, b Proxy) bool

func (f FilterFunc) Filter(a, b Proxy) bool { return f(a, b) }

// Pair is an overlapping pair of proxies.
type Pair struct {
	A, B ProxyID
}

// RayHit describes the closest accepted ray intersection.
type RayHit struct {
	ID       ProxyID
	Proxy    Proxy
	Normal   mgl64.Vec3
	Fraction float64
}

// PreFilter rejects proxies before they are tested against the ray.
type PreFilter func(Proxy) bool

// PostFilter rejects hits after they are computed.
type PostFilter func(RayHit) bool

// Static is a proxy with a fixed box, such as the bounds of a static mesh
// handled by a Filter.
type Static struct {
	Box geom.AABB
}

func (s *Static) WorldBoundingBox() geom.AABB { return s.Box }

func (s *Static) Velocity() mgl64.Vec3 { return mgl64.Vec3{} }
