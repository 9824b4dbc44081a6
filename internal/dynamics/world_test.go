package dynamics

import (
	"errors"
	"math"
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/broadphase"
	"github.com/san-kum/rigid/internal/handle"
	"github.com/san-kum/rigid/internal/shape"
)

func testHandle(i int) BodyID {
	return handle.FromID(1<<32 | uint64(i))
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := NewWorld(DefaultConfig())
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		valid  bool
	}{
		{"default", func(c *Config) {}, true},
		{"zero iterations", func(c *Config) { c.SolverIterations = 0 }, false},
		{"negative threads", func(c *Config) { c.Threads = -1 }, false},
		{"nan gravity", func(c *Config) { c.Gravity[1] = math.NaN() }, false},
		{"full damping", func(c *Config) { c.LinearDamping = 1 }, false},
		{"negative softness", func(c *Config) { c.Contact.Softness = -0.1 }, false},
		{"zero break threshold", func(c *Config) { c.Contact.BreakThreshold = 0 }, false},
		{"zero feature angle", func(c *Config) { c.NarrowPhase.FeatureAngle = 0 }, false},
		{"no sleeping", func(c *Config) { c.AllowDeactivation = false }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.valid && err != nil {
				t.Errorf("expected valid config, got %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	bad := DefaultConfig()
	bad.SolverIterations = 0
	if _, err := NewWorld(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewWorld accepted an invalid config: %v", err)
	}
}

func TestStepRejectsInvalidTimestep(t *testing.T) {
	w := newTestWorld(t)
	for _, dt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := w.Step(dt); !errors.Is(err, ErrInvalidTimestep) {
			t.Errorf("Step(%v): expected ErrInvalidTimestep, got %v", dt, err)
		}
	}
	if w.Time() != 0 {
		t.Errorf("rejected steps advanced time to %v", w.Time())
	}
}

func TestStepReportsNonFiniteState(t *testing.T) {
	w := newTestWorld(t)
	id := w.CreateBody()
	if err := w.SetVelocity(id, mgl64.Vec3{math.Inf(1), 0, 0}); err != nil {
		t.Fatal(err)
	}

	err := w.Step(1.0 / 60)
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StepError, got %v", err)
	}
	if !errors.Is(err, ErrNonFiniteState) {
		t.Errorf("expected ErrNonFiniteState, got %v", err)
	}
	if se.Step != 0 {
		t.Errorf("expected step 0, got %d", se.Step)
	}
}

func TestRemoveBodyInvalidatesHandle(t *testing.T) {
	w := newTestWorld(t)
	box, _ := shape.NewBox(mgl64.Vec3{1, 1, 1})

	id := w.CreateBody()
	sid, err := w.AttachShape(id, box)
	if err != nil {
		t.Fatal(err)
	}
	proxies := w.DynamicTree().ProxyCount()

	if err := w.RemoveBody(id); err != nil {
		t.Fatal(err)
	}
	if _, ok := w.Body(id); ok {
		t.Error("stale handle still resolves")
	}
	if err := w.SetPosition(id, mgl64.Vec3{}); !errors.Is(err, ErrBodyNotFound) {
		t.Errorf("expected ErrBodyNotFound, got %v", err)
	}
	if err := w.RemoveBody(id); !errors.Is(err, ErrBodyNotFound) {
		t.Errorf("double remove: expected ErrBodyNotFound, got %v", err)
	}
	if _, ok := w.ShapeInstance(sid); ok {
		t.Error("shape outlived its body")
	}
	if got := w.DynamicTree().ProxyCount(); got != proxies-1 {
		t.Errorf("expected %d proxies, got %d", proxies-1, got)
	}

	reused := w.CreateBody()
	if reused == id {
		t.Error("reused slot kept the old generation")
	}
	if _, ok := w.Body(id); ok {
		t.Error("old handle resolves to the new body")
	}
}

func TestNullBodyIsProtected(t *testing.T) {
	w := newTestWorld(t)
	nb := w.NullBody()

	b, ok := w.Body(nb)
	if !ok || !b.IsStatic() {
		t.Fatal("null body must exist and be static")
	}
	if err := w.RemoveBody(nb); !errors.Is(err, ErrNullBody) {
		t.Errorf("RemoveBody: expected ErrNullBody, got %v", err)
	}
	if err := w.SetStatic(nb, false); !errors.Is(err, ErrNullBody) {
		t.Errorf("SetStatic: expected ErrNullBody, got %v", err)
	}
}

func TestRequestIDsAreContiguous(t *testing.T) {
	w := newTestWorld(t)
	first := w.RequestIDs(10)
	next := w.RequestIDs(1)
	if next != first+10 {
		t.Errorf("expected %d, got %d", first+10, next)
	}

	box, _ := shape.NewBox(mgl64.Vec3{1, 1, 1})
	sid, _ := w.AttachShape(w.CreateBody(), box)
	if sid != next+1 {
		t.Errorf("shape id %d overlaps a reserved range ending at %d", sid, next)
	}
}

func TestAttachShapeSetsMass(t *testing.T) {
	w := newTestWorld(t)
	id := w.CreateBody()
	box, _ := shape.NewBox(mgl64.Vec3{1, 2, 3})
	if _, err := w.AttachShape(id, box); err != nil {
		t.Fatal(err)
	}
	b, _ := w.Body(id)
	if math.Abs(b.Mass()-6) > 1e-9 {
		t.Errorf("expected mass 6, got %f", b.Mass())
	}

	if err := w.SetMass(id, 3); err != nil {
		t.Fatal(err)
	}
	if math.Abs(b.InverseMass()-1.0/3) > 1e-12 {
		t.Errorf("expected inverse mass 1/3, got %f", b.InverseMass())
	}
	if err := w.SetMass(id, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("zero mass: expected ErrInvalidConfig, got %v", err)
	}

	if _, err := w.AttachShape(BodyID{}, box); !errors.Is(err, ErrBodyNotFound) {
		t.Errorf("expected ErrBodyNotFound, got %v", err)
	}
	if err := w.DetachShape(9999); !errors.Is(err, ErrShapeNotFound) {
		t.Errorf("expected ErrShapeNotFound, got %v", err)
	}
}

type hugeConstraint struct {
	body1, body2 BodyID
	payload      [64]mgl64.Vec3
}

func (c *hugeConstraint) Bodies() (BodyID, BodyID)                       { return c.body1, c.body2 }
func (c *hugeConstraint) PrepareForIteration(_, _ *RigidBody, _ float64) {}
func (c *hugeConstraint) Iterate(_, _ *RigidBody, _ float64)             {}
func (c *hugeConstraint) PayloadSize() uintptr                           { return unsafe.Sizeof(c.payload) }

func TestAddConstraintOversizedPayloadPanics(t *testing.T) {
	w := newTestWorld(t)
	a, b := w.CreateBody(), w.CreateBody()

	defer func() {
		if recover() == nil {
			t.Error("expected a panic for an oversized payload")
		}
		if n := w.constraints.Len(); n != 0 {
			t.Errorf("constraint was registered before the panic: %d", n)
		}
	}()
	w.AddConstraint(&hugeConstraint{body1: a, body2: b})
}

func TestAddConstraintValidation(t *testing.T) {
	w := newTestWorld(t)
	a, b := w.CreateBody(), w.CreateBody()
	ba, _ := w.Body(a)
	bb, _ := w.Body(b)

	self := NewBallSocket(ba, ba, mgl64.Vec3{})
	if _, err := w.AddConstraint(self); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("self constraint: expected ErrInvalidConfig, got %v", err)
	}

	c := NewPointOnPlane(ba, bb, mgl64.Vec3{0, 1, 0}, mgl64.Vec3{}, mgl64.Vec3{}, Fixed)
	cid, err := w.AddConstraint(c)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := w.Constraint(cid); !ok || got != Constraint(c) {
		t.Error("constraint lookup failed")
	}

	if err := w.RemoveBody(b); err != nil {
		t.Fatal(err)
	}
	if _, ok := w.Constraint(cid); ok {
		t.Error("constraint outlived its body")
	}
	if err := w.RemoveConstraint(cid); !errors.Is(err, ErrConstraintNotFound) {
		t.Errorf("expected ErrConstraintNotFound, got %v", err)
	}
}

func TestPayloadsFit(t *testing.T) {
	for _, c := range []Constraint{&PointOnPlane{}, &BallSocket{}} {
		if c.PayloadSize() > MaxConstraintSize {
			t.Errorf("%T payload is %d bytes", c, c.PayloadSize())
		}
	}
}

func TestRegisterContactOrdersSides(t *testing.T) {
	w := newTestWorld(t)
	bodyA := w.CreateBody()
	bodyB := w.CreateBody()
	w.SetPosition(bodyB, mgl64.Vec3{0, 1, 0})

	n := mgl64.Vec3{0, 1, 0}
	pa := mgl64.Vec3{0, 0.5, 0}
	pb := mgl64.Vec3{0, 0.49, 0}
	w.RegisterContact(5, 3, bodyA, bodyB, pa, pb, n, 0.01)

	a, ok := w.Arbiters().Get(ArbiterKey{3, 5})
	if !ok {
		t.Fatal("arbiter {3, 5} not created")
	}
	if a.Body1 != bodyB || a.Body2 != bodyA {
		t.Errorf("sides not swapped: body1 %v body2 %v", a.Body1, a.Body2)
	}
	cs := a.Contact.Contacts(nil)
	if len(cs) != 1 {
		t.Fatalf("expected one contact, got %d", len(cs))
	}
	if !cs[0].Normal.ApproxEqual(n.Mul(-1)) {
		t.Errorf("normal not negated: %v", cs[0].Normal)
	}

	w.RegisterContact(3, 5, bodyB, bodyA, pb, pa, n.Mul(-1), 0.01)
	if w.Arbiters().Len() != 1 || a.Contact.Count() != 1 {
		t.Error("same pair in ascending order must reuse the arbiter and point")
	}
}

func TestRegisterContactUnknownBodyPanics(t *testing.T) {
	w := newTestWorld(t)
	gone := w.CreateBody()
	w.RemoveBody(gone)

	defer func() {
		if recover() == nil {
			t.Error("expected a panic for an unknown body")
		}
	}()
	w.RegisterContact(1, 2, w.NullBody(), gone, mgl64.Vec3{}, mgl64.Vec3{}, mgl64.Vec3{0, 1, 0}, 0)
}

func TestBroadPhaseFilterVetoesPairs(t *testing.T) {
	w := newTestWorld(t)
	box, _ := shape.NewBox(mgl64.Vec3{1, 1, 1})

	a := w.CreateBody()
	b := w.CreateBody()
	w.AttachShape(a, box)
	w.AttachShape(b, box)
	w.SetPosition(b, mgl64.Vec3{0, 0.9, 0})

	calls := 0
	w.SetBroadPhaseFilter(broadphase.FilterFunc(func(_, _ broadphase.Proxy) bool {
		calls++
		return false
	}))
	if err := w.Step(1.0 / 60); err != nil {
		t.Fatal(err)
	}
	if calls == 0 {
		t.Error("filter never called")
	}
	if w.Arbiters().Len() != 0 {
		t.Errorf("vetoed pair produced %d arbiters", w.Arbiters().Len())
	}

	w.SetBroadPhaseFilter(nil)
	if err := w.Step(1.0 / 60); err != nil {
		t.Fatal(err)
	}
	if w.Arbiters().Len() != 1 {
		t.Errorf("expected one arbiter without filter, got %d", w.Arbiters().Len())
	}
}

func TestSolverColorsNeverShareWritableBodies(t *testing.T) {
	var s solver
	bodies := make([]RigidBody, 8)
	for i := range bodies {
		bodies[i] = newRigidBody()
		bodies[i].id = testHandle(i)
	}
	ground := newRigidBody()
	ground.static = true
	ground.id = testHandle(len(bodies))
	s.reset(len(bodies) + 1)

	// A chain plus every body resting on the same ground.
	for i := 0; i+1 < len(bodies); i++ {
		s.add(solverItem{b1: &bodies[i], b2: &bodies[i+1]})
	}
	for i := range bodies {
		s.add(solverItem{b1: &ground, b2: &bodies[i]})
	}

	colors, overflow := s.color()
	if overflow != 0 {
		t.Errorf("unexpected overflow %d", overflow)
	}
	if colors > 3 {
		t.Errorf("expected at most 3 colors, got %d", colors)
	}
	for c := 0; c < parallelColors; c++ {
		seen := map[*RigidBody]bool{}
		for _, it := range s.colored[s.offsets[c]:s.offsets[c+1]] {
			for _, b := range []*RigidBody{it.b1, it.b2} {
				if !b.writable() {
					continue
				}
				if seen[b] {
					t.Fatalf("color %d writes body %v twice", c, b.id)
				}
				seen[b] = true
			}
		}
	}
}

func TestSolverOverflowColor(t *testing.T) {
	var s solver
	hub := newRigidBody()
	hub.id = testHandle(0)
	spokes := make([]RigidBody, parallelColors+5)
	s.reset(len(spokes) + 1)
	for i := range spokes {
		spokes[i] = newRigidBody()
		spokes[i].id = testHandle(i + 1)
		s.add(solverItem{b1: &hub, b2: &spokes[i]})
	}

	colors, overflow := s.color()
	if colors != parallelColors || overflow != 5 {
		t.Errorf("expected %d colors and 5 overflow items, got %d and %d", parallelColors, colors, overflow)
	}
	// Overflow keeps insertion order.
	tail := s.colored[s.offsets[overflowColor]:]
	for i, it := range tail {
		if it.b2 != &spokes[parallelColors+i] {
			t.Errorf("overflow item %d out of order", i)
		}
	}
}
