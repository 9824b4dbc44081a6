package dynamics

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/broadphase"
	"github.com/san-kum/rigid/internal/collision"
	"github.com/san-kum/rigid/internal/geom"
	"github.com/san-kum/rigid/internal/shape"
)

// ShapeInstance is a shape attached to a body. It is the broad phase proxy
// of that shape and caches its world pose and box between steps.
type ShapeInstance struct {
	ID    uint64
	Body  BodyID
	Shape shape.Shape

	proxy    broadphase.ProxyID
	pose     collision.Pose
	box      geom.AABB
	velocity mgl64.Vec3
}

var (
	_ broadphase.Proxy     = (*ShapeInstance)(nil)
	_ broadphase.RayCaster = (*ShapeInstance)(nil)
)

func (s *ShapeInstance) WorldBoundingBox() geom.AABB { return s.box }

func (s *ShapeInstance) Velocity() mgl64.Vec3 { return s.velocity }

func (s *ShapeInstance) Pose() collision.Pose { return s.pose }

func (s *ShapeInstance) ProxyID() broadphase.ProxyID { return s.proxy }

func (s *ShapeInstance) RayCast(origin, dir mgl64.Vec3) (float64, mgl64.Vec3, bool) {
	return collision.RayCast(s.Shape, s.pose, origin, dir)
}

func (s *ShapeInstance) refresh(b *RigidBody) {
	s.pose = b.Pose()
	s.box = s.Shape.BoundingBox(b.Orientation, b.Position)
	s.velocity = b.Velocity
}
