package dynamics

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl64"
)

type ballSocketData struct {
	body1, body2 BodyID

	localAnchor1 mgl64.Vec3
	localAnchor2 mgl64.Vec3
	r1, r2       mgl64.Vec3

	effectiveMass      mgl64.Mat3
	accumulatedImpulse mgl64.Vec3
	bias               mgl64.Vec3

	biasFactor float64
	softness   float64
}

const _ = MaxConstraintSize - unsafe.Sizeof(ballSocketData{})

// BallSocket pins a world point to both bodies, removing three
// translational degrees of freedom.
type BallSocket struct {
	data ballSocketData
}

func NewBallSocket(b1, b2 *RigidBody, anchor mgl64.Vec3) *BallSocket {
	c := &BallSocket{}
	d := &c.data
	d.body1, d.body2 = b1.ID(), b2.ID()
	d.localAnchor1 = b1.Orientation.Conjugate().Rotate(anchor.Sub(b1.Position))
	d.localAnchor2 = b2.Orientation.Conjugate().Rotate(anchor.Sub(b2.Position))
	d.biasFactor = 0.2
	d.softness = 0.0001
	return c
}

func (c *BallSocket) Bodies() (BodyID, BodyID) { return c.data.body1, c.data.body2 }

func (c *BallSocket) PayloadSize() uintptr { return unsafe.Sizeof(c.data) }

func (c *BallSocket) Impulse() mgl64.Vec3 { return c.data.accumulatedImpulse }

func (c *BallSocket) SetSoftness(s float64) { c.data.softness = s }

func (c *BallSocket) SetBiasFactor(b float64) { c.data.biasFactor = b }

// Separation returns the distance between the two anchors.
func (c *BallSocket) Separation(b1, b2 *RigidBody) float64 {
	d := &c.data
	p1 := b1.Position.Add(b1.Orientation.Rotate(d.localAnchor1))
	p2 := b2.Position.Add(b2.Orientation.Rotate(d.localAnchor2))
	return p2.Sub(p1).Len()
}

func skew(v mgl64.Vec3) mgl64.Mat3 {
	return mgl64.Mat3FromCols(
		mgl64.Vec3{0, v[2], -v[1]},
		mgl64.Vec3{-v[2], 0, v[0]},
		mgl64.Vec3{v[1], -v[0], 0},
	)
}

func (c *BallSocket) PrepareForIteration(b1, b2 *RigidBody, idt float64) {
	d := &c.data
	d.r1 = b1.Orientation.Rotate(d.localAnchor1)
	d.r2 = b2.Orientation.Rotate(d.localAnchor2)
	p1 := b1.Position.Add(d.r1)
	p2 := b2.Position.Add(d.r2)

	im1, ii1 := effective(b1)
	im2, ii2 := effective(b2)
	s1, s2 := skew(d.r1), skew(d.r2)

	k := mgl64.Ident3().Mul(im1 + im2 + d.softness*idt)
	k = k.Add(s1.Mul3(ii1).Mul3(s1.Transpose()))
	k = k.Add(s2.Mul3(ii2).Mul3(s2.Transpose()))
	if k.Det() > 1e-18 {
		d.effectiveMass = k.Inv()
	} else {
		d.effectiveMass = mgl64.Mat3{}
	}

	d.bias = p2.Sub(p1).Mul(d.biasFactor * idt)

	b1.applyImpulse(d.accumulatedImpulse.Mul(-1), d.r1)
	b2.applyImpulse(d.accumulatedImpulse, d.r2)
}

func (c *BallSocket) Iterate(b1, b2 *RigidBody, idt float64) {
	d := &c.data
	jv := relativeVelocity(b1, b2, d.r1, d.r2)
	softness := d.accumulatedImpulse.Mul(d.softness * idt)
	lambda := d.effectiveMass.Mul3x1(jv.Add(d.bias).Add(softness)).Mul(-1)

	d.accumulatedImpulse = d.accumulatedImpulse.Add(lambda)
	b1.applyImpulse(lambda.Mul(-1), d.r1)
	b2.applyImpulse(lambda, d.r2)
}
