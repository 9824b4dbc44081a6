// Package collision implements the narrow phase. Everything here works on
// shape.SupportMapper alone. MPR finds overlap and a contact, EPA refines
// deep penetrations and Collide grows the result into a manifold by clipping
// support features. RayCast is a GJK ray cast.
package collision

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/shape"
)

// Pose places a shape in the world.
type Pose struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

func IdentityPose() Pose {
	return Pose{Orientation: mgl64.QuatIdent()}
}

func (p Pose) Apply(v mgl64.Vec3) mgl64.Vec3 {
	return p.Orientation.Rotate(v).Add(p.Position)
}

func (p Pose) ApplyInverse(v mgl64.Vec3) mgl64.Vec3 {
	return p.Orientation.Conjugate().Rotate(v.Sub(p.Position))
}

// Contact is a single narrow phase result. Normal points from A towards B;
// moving B by Normal*Penetration separates the shapes.
type Contact struct {
	PointA, PointB mgl64.Vec3
	Normal         mgl64.Vec3
	Penetration    float64
}

// Support returns the world-space support point of s placed at pose.
func Support(s shape.SupportMapper, pose Pose, dir mgl64.Vec3) mgl64.Vec3 {
	local := pose.Orientation.Conjugate().Rotate(dir)
	return pose.Apply(s.SupportMap(local))
}

// Center returns the world-space interior point of s placed at pose.
func Center(s shape.SupportMapper, pose Pose) mgl64.Vec3 {
	return pose.Apply(s.Center())
}

// supportPoint is a vertex of the Minkowski difference A - B together with
// the two support points it came from.
type supportPoint struct {
	v, a, b mgl64.Vec3
}

type pair struct {
	a, b         shape.SupportMapper
	poseA, poseB Pose
}

func (p *pair) support(dir mgl64.Vec3) supportPoint {
	a := Support(p.a, p.poseA, dir)
	b := Support(p.b, p.poseB, dir.Mul(-1))
	return supportPoint{v: a.Sub(b), a: a, b: b}
}

func (p *pair) center() supportPoint {
	a := Center(p.a, p.poseA)
	b := Center(p.b, p.poseB)
	return supportPoint{v: a.Sub(b), a: a, b: b}
}

// contactFrom places the witnesses symmetrically around mid so that
// dot(PointA-PointB, n) equals depth exactly.
func contactFrom(a, b, n mgl64.Vec3, depth float64) Contact {
	mid := a.Add(b).Mul(0.5)
	half := n.Mul(0.5 * depth)
	return Contact{
		PointA:      mid.Add(half),
		PointB:      mid.Sub(half),
		Normal:      n,
		Penetration: depth,
	}
}

const eps = 1e-12

func isZero(v mgl64.Vec3) bool {
	return v.Dot(v) < eps*eps
}
