package dynamics

import (
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl64"
)

// LinearLimit bounds the signed distance of a PointOnPlane anchor from its
// plane.
type LinearLimit struct {
	Min, Max float64
}

var (
	// Fixed keeps the anchor on the plane.
	Fixed = LinearLimit{}
	// Full leaves the distance unconstrained.
	Full = LinearLimit{Min: math.Inf(-1), Max: math.Inf(1)}
)

func NewLinearLimit(min, max float64) LinearLimit {
	if min > max {
		min, max = max, min
	}
	return LinearLimit{Min: min, Max: max}
}

const (
	clampFree uint16 = iota
	clampMax
	clampMin
)

type pointOnPlaneData struct {
	body1, body2 BodyID

	localAxis    mgl64.Vec3
	localAnchor1 mgl64.Vec3
	localAnchor2 mgl64.Vec3

	biasFactor float64
	softness   float64

	effectiveMass      float64
	accumulatedImpulse float64
	bias               float64

	min, max float64
	clamp    uint16

	jacobian [4]mgl64.Vec3
}

const _ = MaxConstraintSize - unsafe.Sizeof(pointOnPlaneData{})

// PointOnPlane constrains an anchor on body 2 to a plane fixed in body 1.
// With a Fixed limit it removes one translational degree of freedom.
type PointOnPlane struct {
	data pointOnPlaneData
}

// NewPointOnPlane builds the constraint from world-space inputs: the plane
// passes through anchor1 with normal axis, both fixed to b1, and anchor2 is
// fixed to b2.
func NewPointOnPlane(b1, b2 *RigidBody, axis, anchor1, anchor2 mgl64.Vec3, limit LinearLimit) *PointOnPlane {
	c := &PointOnPlane{}
	d := &c.data
	d.body1, d.body2 = b1.ID(), b2.ID()

	inv1 := b1.Orientation.Conjugate()
	inv2 := b2.Orientation.Conjugate()
	d.localAxis = inv1.Rotate(axis.Normalize())
	d.localAnchor1 = inv1.Rotate(anchor1.Sub(b1.Position))
	d.localAnchor2 = inv2.Rotate(anchor2.Sub(b2.Position))

	d.biasFactor = 0.01
	d.softness = 0.00001
	d.min, d.max = limit.Min, limit.Max
	return c
}

func (c *PointOnPlane) Bodies() (BodyID, BodyID) { return c.data.body1, c.data.body2 }

func (c *PointOnPlane) PayloadSize() uintptr { return unsafe.Sizeof(c.data) }

func (c *PointOnPlane) Impulse() float64 { return c.data.accumulatedImpulse }

func (c *PointOnPlane) Softness() float64 { return c.data.softness }

func (c *PointOnPlane) SetSoftness(s float64) { c.data.softness = s }

func (c *PointOnPlane) BiasFactor() float64 { return c.data.biasFactor }

func (c *PointOnPlane) SetBiasFactor(b float64) { c.data.biasFactor = b }

func (c *PointOnPlane) Limit() LinearLimit {
	return LinearLimit{Min: c.data.min, Max: c.data.max}
}

// Distance returns the signed distance of anchor 2 from the plane.
func (c *PointOnPlane) Distance(b1, b2 *RigidBody) float64 {
	d := &c.data
	axis := b1.Orientation.Rotate(d.localAxis)
	p1 := b1.Position.Add(b1.Orientation.Rotate(d.localAnchor1))
	p2 := b2.Position.Add(b2.Orientation.Rotate(d.localAnchor2))
	return p2.Sub(p1).Dot(axis)
}

func (c *PointOnPlane) PrepareForIteration(b1, b2 *RigidBody, idt float64) {
	d := &c.data

	axis := b1.Orientation.Rotate(d.localAxis)
	r1 := b1.Orientation.Rotate(d.localAnchor1)
	r2 := b2.Orientation.Rotate(d.localAnchor2)
	u := b2.Position.Add(r2).Sub(b1.Position.Add(r1))

	d.jacobian[0] = axis.Mul(-1)
	d.jacobian[1] = r1.Add(u).Cross(axis).Mul(-1)
	d.jacobian[2] = axis
	d.jacobian[3] = r2.Cross(axis)

	d.clamp = clampFree
	d.effectiveMass = 1

	e := u.Dot(axis)
	switch {
	case e > d.max:
		e -= d.max
		d.clamp = clampMax
	case e < d.min:
		e -= d.min
		d.clamp = clampMin
	default:
		d.accumulatedImpulse = 0
		return
	}

	im1, ii1 := effective(b1)
	im2, ii2 := effective(b2)
	k := im1 + im2 +
		d.jacobian[1].Dot(ii1.Mul3x1(d.jacobian[1])) +
		d.jacobian[3].Dot(ii2.Mul3x1(d.jacobian[3]))
	d.effectiveMass = 1 / (k + d.softness*idt)
	d.bias = e * d.biasFactor * idt

	acc := d.accumulatedImpulse
	b1.applyRow(d.jacobian[0], d.jacobian[1], acc)
	b2.applyRow(d.jacobian[2], d.jacobian[3], acc)
}

func (c *PointOnPlane) Iterate(b1, b2 *RigidBody, idt float64) {
	d := &c.data
	if d.clamp == clampFree {
		return
	}

	jv := d.jacobian[0].Dot(b1.Velocity) + d.jacobian[1].Dot(b1.AngularVelocity) +
		d.jacobian[2].Dot(b2.Velocity) + d.jacobian[3].Dot(b2.AngularVelocity)
	softness := d.accumulatedImpulse * d.softness * idt
	lambda := -(jv + d.bias + softness) * d.effectiveMass

	old := d.accumulatedImpulse
	d.accumulatedImpulse += lambda
	if d.clamp == clampMax {
		d.accumulatedImpulse = math.Min(d.accumulatedImpulse, 0)
	} else {
		d.accumulatedImpulse = math.Max(d.accumulatedImpulse, 0)
	}
	lambda = d.accumulatedImpulse - old

	b1.applyRow(d.jacobian[0], d.jacobian[1], lambda)
	b2.applyRow(d.jacobian[2], d.jacobian[3], lambda)
}
