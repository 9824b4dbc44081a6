package dynamics

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/broadphase"
	"github.com/san-kum/rigid/internal/collision"
	"github.com/san-kum/rigid/internal/handle"
	"github.com/san-kum/rigid/internal/parallel"
	"github.com/san-kum/rigid/internal/shape"
)

// StepStats describes the last completed step.
type StepStats struct {
	Step        int
	Time        float64
	Bodies      int
	Awake       int
	Pairs       int
	Reinserted  int
	Arbiters    int
	Contacts    int
	Created     int
	Retired     int
	Islands     int
	Slept       int
	Woken       int
	Colors      int
	Overflow    int
	Narrow      collision.Stats
	Constraints int
}

// World owns bodies, shapes, arbiters and constraints and advances them
// with Step.
type World struct {
	cfg    Config
	logger *log.Logger

	pool     *parallel.ThreadPool
	ownsPool bool

	bodies      handle.Pool[RigidBody]
	shapes      map[uint64]*ShapeInstance
	nextShapeID atomic.Uint64
	constraints handle.Pool[Constraint]
	nullBody    BodyID

	tree     *broadphase.DynamicTree
	filter   broadphase.Filter
	contacts *ContactManager

	solver  solver
	islands islands

	pairs  []broadphase.Pair
	narrow []narrowItem

	stepping atomic.Bool
	step     int
	time     float64
	stats    StepStats
}

type Option func(*World)

func WithLogger(l *log.Logger) Option {
	return func(w *World) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithThreadPool runs the world on an existing pool. The world does not
// stop it on Close.
func WithThreadPool(p *parallel.ThreadPool) Option {
	return func(w *World) {
		w.pool = p
	}
}

func WithFilter(f broadphase.Filter) Option {
	return func(w *World) {
		w.filter = f
	}
}

func NewWorld(cfg Config, opts ...Option) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w := &World{
		cfg:      cfg,
		logger:   log.New(io.Discard),
		shapes:   make(map[uint64]*ShapeInstance),
		tree:     broadphase.NewDynamicTree(),
		contacts: NewContactManager(cfg.Contact.BreakThreshold),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.pool == nil {
		w.pool = parallel.NewThreadPool(cfg.Threads, w.logger)
		w.ownsPool = true
	}

	w.tree.Margin = cfg.BroadPhase.Margin
	w.tree.VelocityFactor = cfg.BroadPhase.VelocityFactor
	w.nextShapeID.Store(1)

	w.nullBody = w.CreateBody()
	nb, _ := w.bodies.Get(w.nullBody)
	nb.static = true
	nb.setMassProperties(1, mgl64.Ident3())

	return w, nil
}

// Close stops the thread pool if the world created it.
func (w *World) Close() {
	if w.ownsPool {
		w.pool.Stop()
	}
}

func (w *World) Config() Config { return w.cfg }

func (w *World) Logger() *log.Logger { return w.logger }

func (w *World) ThreadPool() *parallel.ThreadPool { return w.pool }

// NullBody returns the static body the world creates for contacts against
// external geometry.
func (w *World) NullBody() BodyID { return w.nullBody }

func (w *World) DynamicTree() *broadphase.DynamicTree { return w.tree }

func (w *World) Arbiters() *ContactManager { return w.contacts }

func (w *World) Stats() StepStats { return w.stats }

func (w *World) Time() float64 { return w.time }

func (w *World) SetBroadPhaseFilter(f broadphase.Filter) { w.filter = f }

// RequestIDs reserves n consecutive shape ids and returns the first. Ids
// are never reused.
func (w *World) RequestIDs(n int) uint64 {
	if n <= 0 {
		return w.nextShapeID.Load()
	}
	return w.nextShapeID.Add(uint64(n)) - uint64(n)
}

func (w *World) CreateBody() BodyID {
	id := w.bodies.Insert(newRigidBody())
	b, _ := w.bodies.Get(id)
	b.id = id
	b.setMassProperties(1, mgl64.Ident3().Mul(1.0/6.0))
	return id
}

func (w *World) Body(id BodyID) (*RigidBody, bool) {
	return w.bodies.Get(id)
}

func (w *World) BodyCount() int { return w.bodies.Len() }

// Bodies visits every body in slot order, including the null body.
func (w *World) Bodies(fn func(id BodyID, b *RigidBody) bool) {
	w.bodies.Each(fn)
}

func (w *World) body(id BodyID) (*RigidBody, error) {
	b, ok := w.bodies.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrBodyNotFound, id)
	}
	return b, nil
}

func (w *World) mutableBody(id BodyID) (*RigidBody, error) {
	if id == w.nullBody {
		return nil, ErrNullBody
	}
	return w.body(id)
}

// RemoveBody deletes a body together with its shapes, arbiters and
// constraints.
func (w *World) RemoveBody(id BodyID) error {
	b, err := w.mutableBody(id)
	if err != nil {
		return err
	}

	for _, sid := range append([]uint64(nil), b.shapes...) {
		if inst, ok := w.shapes[sid]; ok {
			w.tree.RemoveProxy(inst.proxy)
			delete(w.shapes, sid)
		}
	}
	w.contacts.RemoveIf(func(a *Arbiter) bool {
		return a.Body1 == id || a.Body2 == id
	})

	var doomed []ConstraintID
	w.constraints.Each(func(cid ConstraintID, c *Constraint) bool {
		b1, b2 := (*c).Bodies()
		if b1 == id || b2 == id {
			doomed = append(doomed, cid)
		}
		return true
	})
	for _, cid := range doomed {
		w.constraints.Remove(cid)
	}

	w.bodies.Remove(id)
	return nil
}

// SetStatic switches a body between static and dynamic. Static bodies keep
// their mass for reporting but expose zero inverse mass and inertia.
func (w *World) SetStatic(id BodyID, static bool) error {
	b, err := w.mutableBody(id)
	if err != nil {
		return err
	}
	b.static = static
	if static {
		b.Velocity, b.AngularVelocity = mgl64.Vec3{}, mgl64.Vec3{}
	}
	b.setMassProperties(b.mass, b.inertia)
	for _, sid := range b.shapes {
		if inst, ok := w.shapes[sid]; ok {
			inst.refresh(b)
			w.tree.SetActive(inst.proxy, !static && b.active)
			w.tree.UpdateProxy(inst.proxy)
		}
	}
	if !static {
		w.wake(id)
	}
	return nil
}

// SetActivationState wakes a body and its island, or puts the body to
// sleep.
func (w *World) SetActivationState(id BodyID, active bool) error {
	b, err := w.mutableBody(id)
	if err != nil {
		return err
	}
	if b.static {
		return nil
	}
	if active {
		w.wake(id)
	} else {
		w.deactivate(b)
	}
	return nil
}

func (w *World) poseChanged(id BodyID, b *RigidBody) {
	b.updateWorldInertia()
	for _, sid := range b.shapes {
		if inst, ok := w.shapes[sid]; ok {
			inst.refresh(b)
			w.tree.UpdateProxy(inst.proxy)
		}
	}
	if !b.static {
		w.wake(id)
	}
}

func (w *World) SetPosition(id BodyID, p mgl64.Vec3) error {
	b, err := w.mutableBody(id)
	if err != nil {
		return err
	}
	b.Position = p
	w.poseChanged(id, b)
	return nil
}

func (w *World) SetOrientation(id BodyID, q mgl64.Quat) error {
	b, err := w.mutableBody(id)
	if err != nil {
		return err
	}
	b.Orientation = q.Normalize()
	w.poseChanged(id, b)
	return nil
}

func (w *World) SetVelocity(id BodyID, v mgl64.Vec3) error {
	b, err := w.mutableBody(id)
	if err != nil {
		return err
	}
	if b.static {
		return nil
	}
	b.Velocity = v
	w.wake(id)
	return nil
}

func (w *World) SetAngularVelocity(id BodyID, v mgl64.Vec3) error {
	b, err := w.mutableBody(id)
	if err != nil {
		return err
	}
	if b.static {
		return nil
	}
	b.AngularVelocity = v
	w.wake(id)
	return nil
}

// SetMass rescales the body's mass, scaling its inertia with it.
func (w *World) SetMass(id BodyID, mass float64) error {
	b, err := w.mutableBody(id)
	if err != nil {
		return err
	}
	if !(mass > 0) {
		return fmt.Errorf("%w: mass %v must be positive", ErrInvalidConfig, mass)
	}
	b.setMassProperties(mass, b.inertia.Mul(mass/b.mass))
	return nil
}

// AddForce accumulates a force acting at the world point, waking the body.
func (w *World) AddForce(id BodyID, force, point mgl64.Vec3) error {
	b, err := w.mutableBody(id)
	if err != nil {
		return err
	}
	if b.static {
		return nil
	}
	b.Force = b.Force.Add(force)
	b.Torque = b.Torque.Add(point.Sub(b.Position).Cross(force))
	w.wake(id)
	return nil
}

// AddImpulse changes the velocities immediately, waking the body.
func (w *World) AddImpulse(id BodyID, impulse, point mgl64.Vec3) error {
	b, err := w.mutableBody(id)
	if err != nil {
		return err
	}
	if b.static {
		return nil
	}
	w.wake(id)
	b.applyImpulse(impulse, point.Sub(b.Position))
	return nil
}

// AttachShape adds a shape to a body and returns its shape id. The body's
// mass properties become the sum over its shapes.
func (w *World) AttachShape(id BodyID, s shape.Shape) (uint64, error) {
	b, err := w.body(id)
	if err != nil {
		return 0, err
	}

	sid := w.RequestIDs(1)
	inst := &ShapeInstance{ID: sid, Body: id, Shape: s}
	inst.refresh(b)
	inst.proxy = w.tree.AddProxy(inst, !b.static && b.active)
	w.shapes[sid] = inst
	b.shapes = append(b.shapes, sid)

	w.updateMass(b)
	if !b.static {
		w.wake(id)
	}
	return sid, nil
}

// DetachShape removes a shape and every arbiter it takes part in.
func (w *World) DetachShape(sid uint64) error {
	inst, ok := w.shapes[sid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrShapeNotFound, sid)
	}
	w.tree.RemoveProxy(inst.proxy)
	delete(w.shapes, sid)
	w.contacts.RemoveIf(func(a *Arbiter) bool {
		return a.Key.Key1 == sid || a.Key.Key2 == sid
	})

	if b, ok := w.bodies.Get(inst.Body); ok {
		for i, x := range b.shapes {
			if x == sid {
				b.shapes = append(b.shapes[:i], b.shapes[i+1:]...)
				break
			}
		}
		w.updateMass(b)
		if !b.static {
			w.wake(inst.Body)
		}
	}
	return nil
}

func (w *World) ShapeInstance(sid uint64) (*ShapeInstance, bool) {
	inst, ok := w.shapes[sid]
	return inst, ok
}

func (w *World) updateMass(b *RigidBody) {
	var mass float64
	var inertia mgl64.Mat3
	for _, sid := range b.shapes {
		inst := w.shapes[sid]
		i, _, m := inst.Shape.MassInertia()
		mass += m
		inertia = inertia.Add(i)
	}
	b.setMassProperties(mass, inertia)
}

// AddConstraint registers a joint. Both bodies are woken. A payload larger
// than MaxConstraintSize panics.
func (w *World) AddConstraint(c Constraint) (ConstraintID, error) {
	checkPayload(c)

	id1, id2 := c.Bodies()
	if id1 == id2 {
		return ConstraintID{}, fmt.Errorf("%w: constraint connects body %v to itself", ErrInvalidConfig, id1)
	}
	if _, err := w.body(id1); err != nil {
		return ConstraintID{}, err
	}
	if _, err := w.body(id2); err != nil {
		return ConstraintID{}, err
	}

	cid := w.constraints.Insert(c)
	w.wake(id1, id2)
	return cid, nil
}

func (w *World) RemoveConstraint(id ConstraintID) error {
	c, ok := w.constraints.Get(id)
	if !ok {
		return fmt.Errorf("%w: %v", ErrConstraintNotFound, id)
	}
	w.wake((*c).Bodies())
	w.constraints.Remove(id)
	return nil
}

func (w *World) Constraint(id ConstraintID) (Constraint, bool) {
	c, ok := w.constraints.Get(id)
	if !ok {
		return nil, false
	}
	return *c, true
}

// RegisterContact adds a contact between two shapes to their arbiter,
// creating it if needed. The sides are swapped when the shape ids are given
// in descending order. An unknown body panics.
func (w *World) RegisterContact(shapeA, shapeB uint64, bodyA, bodyB BodyID,
	pointA, pointB, normal mgl64.Vec3, penetration float64) {

	key, swapped := NewArbiterKey(shapeA, shapeB)
	if swapped {
		bodyA, bodyB = bodyB, bodyA
		pointA, pointB = pointB, pointA
		normal = normal.Mul(-1)
	}

	b1 := w.mustBody(bodyA)
	b2 := w.mustBody(bodyB)

	a, created := w.contacts.GetOrCreate(key, bodyA, bodyB)
	if created {
		w.stats.Created++
	}
	a.touched = true
	a.Contact.AddContact(b1, b2, pointA, pointB, normal, penetration)
}

// RayCast returns the closest shape hit by origin + t*dir, t in [0, 1].
// The proxies passed to pre and post are *ShapeInstance for shapes attached
// to bodies.
func (w *World) RayCast(origin, dir mgl64.Vec3, pre broadphase.PreFilter, post broadphase.PostFilter) (broadphase.RayHit, bool) {
	return w.tree.RayCast(origin, dir, pre, post)
}

// ExcludeBody is a ray pre filter that skips the shapes of one body.
func ExcludeBody(id BodyID) broadphase.PreFilter {
	return func(p broadphase.Proxy) bool {
		inst, ok := p.(*ShapeInstance)
		return !ok || inst.Body != id
	}
}
