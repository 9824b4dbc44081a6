package dynamics

import (
	"fmt"
	"math"

	"github.com/san-kum/rigid/internal/collision"
)

type narrowItem struct {
	arbiter      *Arbiter
	inst1, inst2 *ShapeInstance
	b1, b2       *RigidBody
	stats        collision.Stats
}

// Step advances the world by dt. The step always runs to completion; a
// body leaving the finite range is reported as a StepError afterwards.
func (w *World) Step(dt float64) error {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidTimestep, dt)
	}
	if !w.stepping.CompareAndSwap(false, true) {
		return ErrStepInProgress
	}
	defer w.stepping.Store(false)

	idt := 1 / dt
	minBatch := w.cfg.ParallelMinBatch
	w.stats = StepStats{Step: w.step}

	w.integrateForces(dt)
	w.updateContacts()

	w.stats.Reinserted = w.tree.Update(w.pool, dt, minBatch)
	w.pairs = w.tree.OverlappingPairs(w.pool, minBatch, w.pairs[:0])
	w.stats.Pairs = len(w.pairs)

	w.dispatchPairs()
	w.narrowPhase()
	w.retireArbiters()
	w.stats.Woken = w.wakeTouched()
	w.stats.Islands, w.stats.Slept = w.buildIslands()
	if w.stats.Slept > 0 {
		w.logger.Debug("island asleep", "bodies", w.stats.Slept, "step", w.step)
	}

	w.solve(idt)
	w.integratePositions(dt)

	w.step++
	w.time += dt
	w.collectStats()

	var diverged error
	w.bodies.Each(func(id BodyID, b *RigidBody) bool {
		if !b.finite() {
			diverged = fmt.Errorf("%w: body %v", ErrNonFiniteState, id)
			return false
		}
		return true
	})
	if diverged != nil {
		return &StepError{Step: w.step - 1, Time: w.time, Err: diverged}
	}
	return nil
}

func (w *World) integrateForces(dt float64) {
	g := w.cfg.Gravity
	lin, ang := w.cfg.LinearDamping, w.cfg.AngularDamping
	w.pool.ParallelFor(w.bodies.Cap(), w.cfg.ParallelMinBatch, func(start, end int) {
		for i := start; i < end; i++ {
			_, b, ok := w.bodies.At(i)
			if !ok || !b.writable() {
				continue
			}
			b.integrateForces(g, dt, lin, ang)
		}
	})
}

// updateContacts re-measures cached contacts at the new poses and drops
// those that broke.
func (w *World) updateContacts() {
	w.pool.ParallelFor(w.contacts.Len(), w.cfg.ParallelMinBatch, func(start, end int) {
		for i := start; i < end; i++ {
			a := w.contacts.At(i)
			b1, ok1 := w.bodies.Get(a.Body1)
			b2, ok2 := w.bodies.Get(a.Body2)
			if !ok1 || !ok2 {
				continue
			}
			a.Contact.UpdatePosition(b1, b2)
		}
	})
}

// dispatchPairs runs the filter on every pair in order and creates the
// arbiters the narrow phase fills. Filters may call RegisterContact.
func (w *World) dispatchPairs() {
	w.narrow = w.narrow[:0]
	for _, p := range w.pairs {
		pa, okA := w.tree.Proxy(p.A)
		pb, okB := w.tree.Proxy(p.B)
		if !okA || !okB {
			continue
		}
		if w.filter != nil && !w.filter.Filter(pa, pb) {
			continue
		}

		i1, ok1 := pa.(*ShapeInstance)
		i2, ok2 := pb.(*ShapeInstance)
		if !ok1 || !ok2 || i1.Body == i2.Body {
			continue
		}
		b1 := w.mustBody(i1.Body)
		b2 := w.mustBody(i2.Body)
		if !b1.writable() && !b2.writable() {
			continue
		}

		key, swapped := NewArbiterKey(i1.ID, i2.ID)
		if swapped {
			i1, i2 = i2, i1
			b1, b2 = b2, b1
		}
		a, created := w.contacts.GetOrCreate(key, i1.Body, i2.Body)
		if created {
			w.stats.Created++
		}
		a.touched = true
		w.narrow = append(w.narrow, narrowItem{arbiter: a, inst1: i1, inst2: i2, b1: b1, b2: b2})
	}
}

// narrowPhase generates contacts for every dispatched pair. Each item
// writes only its own arbiter.
func (w *World) narrowPhase() {
	settings := w.cfg.collisionSettings()
	w.pool.ParallelFor(len(w.narrow), w.cfg.ParallelMinBatch, func(start, end int) {
		for i := start; i < end; i++ {
			it := &w.narrow[i]
			_, it.stats = collision.Collide(
				it.inst1.Shape, it.inst2.Shape, it.inst1.pose, it.inst2.pose, settings,
				func(c collision.Contact) {
					it.arbiter.Contact.AddContact(it.b1, it.b2, c.PointA, c.PointB, c.Normal, c.Penetration)
				})
		}
	})
	for i := range w.narrow {
		w.stats.Narrow.Add(w.narrow[i].stats)
	}
}

// retireArbiters returns arbiters whose shapes stopped overlapping to the
// pool. Arbiters between resting or static bodies are kept for warm start.
func (w *World) retireArbiters() {
	retired := w.contacts.RemoveIf(func(a *Arbiter) bool {
		touched := a.touched
		a.touched = false
		if touched {
			return false
		}
		b1, ok1 := w.bodies.Get(a.Body1)
		b2, ok2 := w.bodies.Get(a.Body2)
		if !ok1 || !ok2 {
			return true
		}
		return b1.writable() || b2.writable()
	})
	w.stats.Retired = retired
	if w.stats.Created > 0 || retired > 0 {
		w.logger.Debug("arbiters", "created", w.stats.Created, "retired", retired, "live", w.contacts.Len())
	}
}

// wakeTouched wakes sleeping bodies in contact with awake ones.
func (w *World) wakeTouched() int {
	var sleepers []BodyID
	w.contacts.Each(func(a *Arbiter) bool {
		if a.Contact.UsageMask == 0 {
			return true
		}
		b1, ok1 := w.bodies.Get(a.Body1)
		b2, ok2 := w.bodies.Get(a.Body2)
		if !ok1 || !ok2 || b1.static || b2.static {
			return true
		}
		switch {
		case b1.active && !b2.active:
			sleepers = append(sleepers, a.Body2)
		case b2.active && !b1.active:
			sleepers = append(sleepers, a.Body1)
		}
		return true
	})
	if len(sleepers) == 0 {
		return 0
	}
	return w.wake(sleepers...)
}

func (w *World) solve(idt float64) {
	s := &w.solver
	s.reset(w.bodies.Cap())

	w.contacts.Each(func(a *Arbiter) bool {
		if a.Contact.UsageMask == 0 {
			return true
		}
		b1 := w.mustBody(a.Body1)
		b2 := w.mustBody(a.Body2)
		if b1.writable() || b2.writable() {
			s.add(solverItem{arbiter: a, b1: b1, b2: b2})
		}
		return true
	})
	w.constraints.Each(func(_ ConstraintID, c *Constraint) bool {
		id1, id2 := (*c).Bodies()
		b1 := w.mustBody(id1)
		b2 := w.mustBody(id2)
		if b1.writable() || b2.writable() {
			s.add(solverItem{constraint: *c, b1: b1, b2: b2})
			w.stats.Constraints++
		}
		return true
	})

	w.stats.Colors, w.stats.Overflow = s.color()
	s.solve(w.pool, w.cfg.ParallelMinBatch, w.cfg.SolverIterations, idt, w.cfg.Contact)
}

func (w *World) integratePositions(dt float64) {
	sleep := w.cfg.Sleep
	w.pool.ParallelFor(w.bodies.Cap(), w.cfg.ParallelMinBatch, func(start, end int) {
		for i := start; i < end; i++ {
			_, b, ok := w.bodies.At(i)
			if !ok || !b.writable() {
				continue
			}
			b.integratePosition(dt)
			b.updateSleep(dt, sleep)
			for _, sid := range b.shapes {
				w.shapes[sid].refresh(b)
			}
		}
	})
}

func (w *World) collectStats() {
	st := &w.stats
	st.Time = w.time
	st.Bodies = w.bodies.Len()
	st.Arbiters = w.contacts.Len()
	w.bodies.Each(func(_ BodyID, b *RigidBody) bool {
		if b.writable() {
			st.Awake++
		}
		return true
	})
	w.contacts.Each(func(a *Arbiter) bool {
		st.Contacts += a.Contact.Count()
		return true
	})
}
