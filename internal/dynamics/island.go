package dynamics

import "slices"

// islands is a union-find over body slots, rebuilt every step. Between
// steps it still describes the islands of the last step, which wake uses.
type islands struct {
	parent []int32
	rank   []uint8
}

func (is *islands) reset(n int) {
	if cap(is.parent) < n {
		is.parent = make([]int32, n)
		is.rank = make([]uint8, n)
	}
	is.parent = is.parent[:n]
	is.rank = is.rank[:n]
	for i := range is.parent {
		is.parent[i] = int32(i)
		is.rank[i] = 0
	}
}

func (is *islands) find(i int32) int32 {
	for is.parent[i] != i {
		is.parent[i] = is.parent[is.parent[i]]
		i = is.parent[i]
	}
	return i
}

func (is *islands) union(a, b int32) {
	ra, rb := is.find(a), is.find(b)
	if ra == rb {
		return
	}
	switch {
	case is.rank[ra] < is.rank[rb]:
		is.parent[ra] = rb
	case is.rank[ra] > is.rank[rb]:
		is.parent[rb] = ra
	default:
		is.parent[rb] = ra
		is.rank[ra]++
	}
}

// linksBodies reports whether two bodies should share an island: both must
// be dynamic.
func linksBodies(b1, b2 *RigidBody) bool {
	return !b1.static && !b2.static
}

// buildIslands joins active dynamic bodies connected by touching arbiters
// or constraints, then deactivates every island whose members all rested
// long enough. It returns the island count and the number of bodies put to
// sleep.
func (w *World) buildIslands() (count, slept int) {
	is := &w.islands
	is.reset(w.bodies.Cap())

	w.contacts.Each(func(a *Arbiter) bool {
		if a.Contact.UsageMask == 0 {
			return true
		}
		b1, ok1 := w.bodies.Get(a.Body1)
		b2, ok2 := w.bodies.Get(a.Body2)
		if ok1 && ok2 && linksBodies(b1, b2) {
			is.union(int32(a.Body1.Index()), int32(a.Body2.Index()))
		}
		return true
	})
	w.constraints.Each(func(_ ConstraintID, c *Constraint) bool {
		id1, id2 := (*c).Bodies()
		b1, ok1 := w.bodies.Get(id1)
		b2, ok2 := w.bodies.Get(id2)
		if ok1 && ok2 && linksBodies(b1, b2) {
			is.union(int32(id1.Index()), int32(id2.Index()))
		}
		return true
	})

	// An island rests only if every active member rests.
	restless := make(map[int32]bool)
	members := make(map[int32]int)
	w.bodies.Each(func(id BodyID, b *RigidBody) bool {
		if b.static || !b.active {
			return true
		}
		root := is.find(int32(id.Index()))
		members[root]++
		if b.sleepTime < w.cfg.Sleep.DeactivationTime {
			restless[root] = true
		}
		return true
	})
	count = len(members)

	if !w.cfg.AllowDeactivation {
		return count, 0
	}
	w.bodies.Each(func(id BodyID, b *RigidBody) bool {
		if b.static || !b.active {
			return true
		}
		if restless[is.find(int32(id.Index()))] {
			return true
		}
		w.deactivate(b)
		slept++
		return true
	})
	return count, slept
}

func (w *World) deactivate(b *RigidBody) {
	b.active = false
	b.Velocity = b.Velocity.Mul(0)
	b.AngularVelocity = b.AngularVelocity.Mul(0)
	for _, sid := range b.shapes {
		if inst, ok := w.shapes[sid]; ok {
			inst.velocity = b.Velocity
			w.tree.SetActive(inst.proxy, false)
		}
	}
}

// wake resets the sleep timer of the given bodies and activates every
// sleeping island among them. Islands come from the union-find of the last
// step; a body created since then is its own island.
func (w *World) wake(ids ...BodyID) int {
	is := &w.islands
	var roots []int32
	woken := 0
	for _, id := range ids {
		b, ok := w.bodies.Get(id)
		if !ok || b.static {
			continue
		}
		if b.active {
			b.sleepTime = 0
			continue
		}
		i := id.Index()
		if i >= len(is.parent) {
			w.activate(b)
			woken++
			continue
		}
		if root := is.find(int32(i)); !slices.Contains(roots, root) {
			roots = append(roots, root)
		}
	}

	if len(roots) > 0 {
		w.bodies.Each(func(id BodyID, b *RigidBody) bool {
			i := id.Index()
			if b.static || b.active || i >= len(is.parent) {
				return true
			}
			if slices.Contains(roots, is.find(int32(i))) {
				w.activate(b)
				woken++
			}
			return true
		})
	}
	if woken > 0 {
		w.logger.Debug("island awake", "bodies", woken)
	}
	return woken
}

func (w *World) activate(b *RigidBody) {
	b.sleepTime = 0
	if b.active {
		return
	}
	b.active = true
	for _, sid := range b.shapes {
		if inst, ok := w.shapes[sid]; ok {
			w.tree.SetActive(inst.proxy, true)
		}
	}
}
