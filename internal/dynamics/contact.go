package dynamics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/geom"
)

// MaxContacts is the number of persistent points kept per arbiter.
const MaxContacts = 4

// Contact is one persistent contact point. Anchors are stored in the body
// frames so the point follows both bodies between steps.
type Contact struct {
	RelativePos1 mgl64.Vec3
	RelativePos2 mgl64.Vec3
	// Normal points from body 1 towards body 2, in world space.
	Normal         mgl64.Vec3
	Penetration    float64
	NormalImpulse  float64
	TangentImpulse [2]float64

	r1, r2      mgl64.Vec3
	tangent1    mgl64.Vec3
	tangent2    mgl64.Vec3
	massNormal  float64
	massTangent [2]float64
	bias        float64
	friction    float64
}

func (c *Contact) init(b1, b2 *RigidBody, p1, p2, n mgl64.Vec3, pen float64, keepImpulses bool) {
	c.RelativePos1 = geom.InverseRotate(b1.Orientation, p1.Sub(b1.Position))
	c.RelativePos2 = geom.InverseRotate(b2.Orientation, p2.Sub(b2.Position))
	c.Normal = n
	c.Penetration = pen
	if !keepImpulses {
		c.NormalImpulse = 0
		c.TangentImpulse = [2]float64{}
	}
}

func (c *Contact) worldPoints(b1, b2 *RigidBody) (mgl64.Vec3, mgl64.Vec3) {
	p1 := b1.Position.Add(b1.Orientation.Rotate(c.RelativePos1))
	p2 := b2.Position.Add(b2.Orientation.Rotate(c.RelativePos2))
	return p1, p2
}

// ContactData holds up to MaxContacts points between two shapes. Bit i of
// UsageMask marks slot i as used.
type ContactData struct {
	UsageMask uint8
	Body1     BodyID
	Body2     BodyID
	Key       ArbiterKey

	breakThreshold float64
	points         [MaxContacts]Contact
}

func (cd *ContactData) Count() int {
	n := 0
	for i := 0; i < MaxContacts; i++ {
		if cd.UsageMask&(1<<i) != 0 {
			n++
		}
	}
	return n
}

// Contacts appends the used contact points to dst.
func (cd *ContactData) Contacts(dst []Contact) []Contact {
	for i := 0; i < MaxContacts; i++ {
		if cd.UsageMask&(1<<i) != 0 {
			dst = append(dst, cd.points[i])
		}
	}
	return dst
}

// MaxPenetration returns the deepest used contact, 0 without contacts.
func (cd *ContactData) MaxPenetration() float64 {
	deepest := 0.0
	for i := 0; i < MaxContacts; i++ {
		if cd.UsageMask&(1<<i) != 0 {
			deepest = math.Max(deepest, cd.points[i].Penetration)
		}
	}
	return deepest
}

// AddContact merges a new contact into the cache. The nearest point closer
// than the break threshold is updated and keeps its impulses; otherwise
// the contact fills a free slot or replaces the slot chosen by
// sortCachedPoints.
func (cd *ContactData) AddContact(b1, b2 *RigidBody, p1, p2, n mgl64.Vec3, pen float64) {
	rel := geom.InverseRotate(b1.Orientation, p1.Sub(b1.Position))

	match, nearest := -1, cd.breakThreshold*cd.breakThreshold
	for i := 0; i < MaxContacts; i++ {
		if cd.UsageMask&(1<<i) == 0 {
			continue
		}
		if d := cd.points[i].RelativePos1.Sub(rel).LenSqr(); d < nearest {
			match, nearest = i, d
		}
	}
	if match >= 0 {
		cd.points[match].init(b1, b2, p1, p2, n, pen, true)
		return
	}

	for i := 0; i < MaxContacts; i++ {
		if cd.UsageMask&(1<<i) == 0 {
			cd.points[i].init(b1, b2, p1, p2, n, pen, false)
			cd.UsageMask |= 1 << i
			return
		}
	}

	i := cd.sortCachedPoints(rel, pen)
	cd.points[i].init(b1, b2, p1, p2, n, pen, false)
}

// sortCachedPoints picks the slot whose replacement by rel keeps the
// largest contact area. A cached point deeper than the new one is never
// replaced. Ties resolve to the lowest slot.
func (cd *ContactData) sortCachedPoints(rel mgl64.Vec3, pen float64) int {
	deepest := -1
	maxPen := pen
	for i := 0; i < MaxContacts; i++ {
		if cd.points[i].Penetration > maxPen {
			maxPen = cd.points[i].Penetration
			deepest = i
		}
	}

	c0 := cd.points[0].RelativePos1
	c1 := cd.points[1].RelativePos1
	c2 := cd.points[2].RelativePos1
	c3 := cd.points[3].RelativePos1

	res := [MaxContacts]float64{-1, -1, -1, -1}
	if deepest != 0 {
		res[0] = rel.Sub(c1).Cross(c3.Sub(c2)).LenSqr()
	}
	if deepest != 1 {
		res[1] = rel.Sub(c0).Cross(c3.Sub(c2)).LenSqr()
	}
	if deepest != 2 {
		res[2] = rel.Sub(c0).Cross(c3.Sub(c1)).LenSqr()
	}
	if deepest != 3 {
		res[3] = rel.Sub(c0).Cross(c2.Sub(c1)).LenSqr()
	}

	best := 0
	for i := 1; i < MaxContacts; i++ {
		if res[i] > res[best] {
			best = i
		}
	}
	return best
}

// UpdatePosition re-measures every point at the current body poses and
// drops points that separated or slid apart.
func (cd *ContactData) UpdatePosition(b1, b2 *RigidBody) {
	bt := cd.breakThreshold
	for i := 0; i < MaxContacts; i++ {
		if cd.UsageMask&(1<<i) == 0 {
			continue
		}
		c := &cd.points[i]
		p1, p2 := c.worldPoints(b1, b2)
		d := p1.Sub(p2)
		c.Penetration = d.Dot(c.Normal)
		if c.Penetration < -bt {
			cd.UsageMask &^= 1 << i
			continue
		}
		drift := d.Sub(c.Normal.Mul(c.Penetration))
		if drift.LenSqr() > bt*bt {
			cd.UsageMask &^= 1 << i
		}
	}
}

// effective returns the inverse mass and world inverse inertia the solver
// sees for b; bodies it may not write count as immovable.
func effective(b *RigidBody) (float64, mgl64.Mat3) {
	if !b.writable() {
		return 0, mgl64.Mat3{}
	}
	return b.inverseMass, b.invInertiaWorld
}

func rowMass(im1, im2 float64, ii1, ii2 mgl64.Mat3, r1, r2, dir mgl64.Vec3) float64 {
	rn1 := r1.Cross(dir)
	rn2 := r2.Cross(dir)
	return im1 + im2 + rn1.Dot(ii1.Mul3x1(rn1)) + rn2.Dot(ii2.Mul3x1(rn2))
}

// Prepare computes jacobian rows, effective masses and bias for every
// point and applies the cached impulses.
func (cd *ContactData) Prepare(b1, b2 *RigidBody, idt float64, s ContactSettings) {
	im1, ii1 := effective(b1)
	im2, ii2 := effective(b2)
	friction := math.Max(b1.Friction, b2.Friction)
	restitution := math.Max(b1.Restitution, b2.Restitution)

	for i := 0; i < MaxContacts; i++ {
		if cd.UsageMask&(1<<i) == 0 {
			continue
		}
		c := &cd.points[i]
		p1, p2 := c.worldPoints(b1, b2)
		c.r1 = p1.Sub(b1.Position)
		c.r2 = p2.Sub(b2.Position)
		c.Penetration = p1.Sub(p2).Dot(c.Normal)
		c.friction = friction

		n := c.Normal
		c.tangent1, c.tangent2 = geom.TangentBasis(n)

		c.massNormal = 1 / (rowMass(im1, im2, ii1, ii2, c.r1, c.r2, n) + s.Softness*idt)
		for k, t := range [2]mgl64.Vec3{c.tangent1, c.tangent2} {
			if m := rowMass(im1, im2, ii1, ii2, c.r1, c.r2, t); m > 0 {
				c.massTangent[k] = 1 / m
			} else {
				c.massTangent[k] = 0
			}
		}

		switch {
		case c.Penetration > s.AllowedPenetration:
			c.bias = s.BiasFactor * (c.Penetration - s.AllowedPenetration) * idt
		case c.Penetration < 0:
			// Speculative: allow closing the gap within this step.
			c.bias = c.Penetration * idt
		default:
			c.bias = 0
		}

		vn := b2.VelocityAt(p2).Sub(b1.VelocityAt(p1)).Dot(n)
		if -vn > s.RestitutionThreshold {
			c.bias = math.Max(c.bias, -restitution*vn)
		}

		impulse := n.Mul(c.NormalImpulse).
			Add(c.tangent1.Mul(c.TangentImpulse[0])).
			Add(c.tangent2.Mul(c.TangentImpulse[1]))
		b1.applyImpulse(impulse.Mul(-1), c.r1)
		b2.applyImpulse(impulse, c.r2)
	}
}

func relativeVelocity(b1, b2 *RigidBody, r1, r2 mgl64.Vec3) mgl64.Vec3 {
	v1 := b1.Velocity.Add(b1.AngularVelocity.Cross(r1))
	v2 := b2.Velocity.Add(b2.AngularVelocity.Cross(r2))
	return v2.Sub(v1)
}

// Iterate runs one sequential impulse pass over the used points.
func (cd *ContactData) Iterate(b1, b2 *RigidBody, idt float64, s ContactSettings) {
	for i := 0; i < MaxContacts; i++ {
		if cd.UsageMask&(1<<i) == 0 {
			continue
		}
		c := &cd.points[i]
		n := c.Normal

		vn := relativeVelocity(b1, b2, c.r1, c.r2).Dot(n)
		lambda := c.massNormal * (-vn + c.bias - c.NormalImpulse*s.Softness*idt)
		old := c.NormalImpulse
		c.NormalImpulse = math.Max(old+lambda, 0)
		lambda = c.NormalImpulse - old

		impulse := n.Mul(lambda)
		b1.applyImpulse(impulse.Mul(-1), c.r1)
		b2.applyImpulse(impulse, c.r2)

		maxFriction := c.friction * c.NormalImpulse
		for k, t := range [2]mgl64.Vec3{c.tangent1, c.tangent2} {
			vt := relativeVelocity(b1, b2, c.r1, c.r2).Dot(t)
			lambda := -c.massTangent[k] * vt
			old := c.TangentImpulse[k]
			c.TangentImpulse[k] = mgl64.Clamp(old+lambda, -maxFriction, maxFriction)
			lambda = c.TangentImpulse[k] - old

			impulse := t.Mul(lambda)
			b1.applyImpulse(impulse.Mul(-1), c.r1)
			b2.applyImpulse(impulse, c.r2)
		}
	}
}
