package dynamics

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/collision"
	"github.com/san-kum/rigid/internal/geom"
	"github.com/san-kum/rigid/internal/handle"
)

// BodyID identifies a body inside a World.
type BodyID = handle.Handle

// RigidBody is the simulated state of one body. Static bodies have zero
// inverse mass and inertia and are never written by the solver.
type RigidBody struct {
	Position        mgl64.Vec3
	Orientation     mgl64.Quat
	Velocity        mgl64.Vec3
	AngularVelocity mgl64.Vec3

	Force  mgl64.Vec3
	Torque mgl64.Vec3

	Friction    float64
	Restitution float64

	id     BodyID
	static bool
	active bool

	mass            float64
	inverseMass     float64
	inertia         mgl64.Mat3
	invInertiaLocal mgl64.Mat3
	invInertiaWorld mgl64.Mat3

	sleepTime float64
	shapes    []uint64
}

func newRigidBody() RigidBody {
	return RigidBody{
		Orientation: mgl64.QuatIdent(),
		Friction:    0.6,
		Restitution: 0,
		active:      true,
	}
}

func (b *RigidBody) ID() BodyID { return b.id }

func (b *RigidBody) IsStatic() bool { return b.static }

func (b *RigidBody) IsActive() bool { return b.active }

func (b *RigidBody) Mass() float64 { return b.mass }

func (b *RigidBody) InverseMass() float64 { return b.inverseMass }

func (b *RigidBody) InverseInertiaWorld() mgl64.Mat3 { return b.invInertiaWorld }

func (b *RigidBody) Shapes() []uint64 { return b.shapes }

func (b *RigidBody) SleepTime() float64 { return b.sleepTime }

// Pose returns the body placement used by its shapes.
func (b *RigidBody) Pose() collision.Pose {
	return collision.Pose{Position: b.Position, Orientation: b.Orientation}
}

// writable reports whether the solver may change this body's velocities.
func (b *RigidBody) writable() bool {
	return !b.static && b.active
}

// VelocityAt returns the velocity of the world point p attached to the body.
func (b *RigidBody) VelocityAt(p mgl64.Vec3) mgl64.Vec3 {
	return b.Velocity.Add(b.AngularVelocity.Cross(p.Sub(b.Position)))
}

func (b *RigidBody) KineticEnergy() float64 {
	if b.static || b.inverseMass == 0 {
		return 0
	}
	w := b.AngularVelocity
	R := geom.RotationMatrix(b.Orientation)
	iw := R.Mul3(b.inertia).Mul3(R.Transpose())
	return 0.5*b.mass*b.Velocity.Dot(b.Velocity) + 0.5*w.Dot(iw.Mul3x1(w))
}

// applyImpulse changes the velocities by impulse j acting at offset r from
// the body position.
func (b *RigidBody) applyImpulse(j, r mgl64.Vec3) {
	if !b.writable() {
		return
	}
	b.Velocity = b.Velocity.Add(j.Mul(b.inverseMass))
	b.AngularVelocity = b.AngularVelocity.Add(b.invInertiaWorld.Mul3x1(r.Cross(j)))
}

// applyRow applies impulse lambda along a jacobian row given as linear and
// angular parts.
func (b *RigidBody) applyRow(linear, angular mgl64.Vec3, lambda float64) {
	if !b.writable() {
		return
	}
	b.Velocity = b.Velocity.Add(linear.Mul(b.inverseMass * lambda))
	b.AngularVelocity = b.AngularVelocity.Add(b.invInertiaWorld.Mul3x1(angular.Mul(lambda)))
}

func (b *RigidBody) updateWorldInertia() {
	if b.static {
		b.invInertiaWorld = mgl64.Mat3{}
		return
	}
	R := geom.RotationMatrix(b.Orientation)
	b.invInertiaWorld = R.Mul3(b.invInertiaLocal).Mul3(R.Transpose())
}

// setMassProperties stores mass and inertia about the body origin.
func (b *RigidBody) setMassProperties(mass float64, inertia mgl64.Mat3) {
	if mass <= 0 {
		mass, inertia = 1, mgl64.Ident3().Mul(1.0/6.0)
	}
	b.mass = mass
	b.inertia = inertia
	if b.static {
		b.inverseMass = 0
		b.invInertiaLocal = mgl64.Mat3{}
	} else {
		b.inverseMass = 1 / mass
		if det := inertia.Det(); det > 1e-18 {
			b.invInertiaLocal = inertia.Inv()
		} else {
			b.invInertiaLocal = mgl64.Mat3{}
		}
	}
	b.updateWorldInertia()
}

// integrateForces applies gravity and accumulated forces, then damping.
func (b *RigidBody) integrateForces(gravity mgl64.Vec3, dt, linDamp, angDamp float64) {
	b.Velocity = b.Velocity.Add(gravity.Add(b.Force.Mul(b.inverseMass)).Mul(dt))
	b.AngularVelocity = b.AngularVelocity.Add(b.invInertiaWorld.Mul3x1(b.Torque).Mul(dt))
	b.Velocity = b.Velocity.Mul(1 - linDamp*dt)
	b.AngularVelocity = b.AngularVelocity.Mul(1 - angDamp*dt)
	b.Force = mgl64.Vec3{}
	b.Torque = mgl64.Vec3{}
}

func (b *RigidBody) integratePosition(dt float64) {
	b.Position = b.Position.Add(b.Velocity.Mul(dt))

	w := b.AngularVelocity
	if w.LenSqr() > 0 {
		spin := mgl64.Quat{W: 0, V: w}.Mul(b.Orientation).Scale(0.5 * dt)
		b.Orientation = b.Orientation.Add(spin).Normalize()
	}
	b.updateWorldInertia()
}

func (b *RigidBody) updateSleep(dt float64, s SleepSettings) {
	if b.Velocity.LenSqr() < s.LinearThreshold*s.LinearThreshold &&
		b.AngularVelocity.LenSqr() < s.AngularThreshold*s.AngularThreshold {
		b.sleepTime += dt
	} else {
		b.sleepTime = 0
	}
}

func (b *RigidBody) finite() bool {
	return geom.IsFinite(b.Position) && geom.IsFinite(b.Velocity) && geom.IsFinite(b.AngularVelocity)
}
