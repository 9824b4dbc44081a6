package dynamics

import (
	"fmt"
	"math/bits"

	"github.com/san-kum/rigid/internal/parallel"
)

const (
	// parallelColors is the number of colors whose items run concurrently.
	// Items that fit none of them go to one serial overflow batch.
	parallelColors = 63
	overflowColor  = parallelColors
)

type solverItem struct {
	arbiter    *Arbiter
	constraint Constraint
	b1, b2     *RigidBody
}

func (it *solverItem) prepare(idt float64, s ContactSettings) {
	if it.arbiter != nil {
		it.arbiter.Contact.Prepare(it.b1, it.b2, idt, s)
		return
	}
	it.constraint.PrepareForIteration(it.b1, it.b2, idt)
}

func (it *solverItem) iterate(idt float64, s ContactSettings) {
	if it.arbiter != nil {
		it.arbiter.Contact.Iterate(it.b1, it.b2, idt, s)
		return
	}
	it.constraint.Iterate(it.b1, it.b2, idt)
}

// solver batches contacts and constraints so that no two items of the same
// color write the same body. Colors run one after another; items inside a
// color run in parallel.
type solver struct {
	items   []solverItem
	colored []solverItem
	offsets [parallelColors + 2]int
	masks   []uint64
}

func (s *solver) reset(bodySlots int) {
	s.items = s.items[:0]
	if cap(s.masks) < bodySlots {
		s.masks = make([]uint64, bodySlots)
	}
	s.masks = s.masks[:bodySlots]
	clear(s.masks)
}

func (s *solver) add(it solverItem) {
	s.items = append(s.items, it)
}

// color assigns every item the lowest color unused by its writable bodies,
// then sorts items by color keeping insertion order within a color.
func (s *solver) color() (colors, overflow int) {
	var counts [parallelColors + 1]int
	assigned := make([]uint8, len(s.items))

	for i := range s.items {
		it := &s.items[i]
		var used uint64
		if it.b1.writable() {
			used |= s.masks[it.b1.id.Index()]
		}
		if it.b2.writable() {
			used |= s.masks[it.b2.id.Index()]
		}

		c := bits.TrailingZeros64(^used)
		if c >= parallelColors {
			c = overflowColor
		} else {
			bit := uint64(1) << c
			if it.b1.writable() {
				s.masks[it.b1.id.Index()] |= bit
			}
			if it.b2.writable() {
				s.masks[it.b2.id.Index()] |= bit
			}
		}
		assigned[i] = uint8(c)
		counts[c]++
	}

	s.offsets[0] = 0
	for c := 0; c <= parallelColors; c++ {
		s.offsets[c+1] = s.offsets[c] + counts[c]
		if counts[c] > 0 && c < parallelColors {
			colors++
		}
	}
	overflow = counts[overflowColor]

	if cap(s.colored) < len(s.items) {
		s.colored = make([]solverItem, len(s.items))
	}
	s.colored = s.colored[:len(s.items)]
	next := s.offsets
	for i, c := range assigned {
		s.colored[next[c]] = s.items[i]
		next[c]++
	}
	return colors, overflow
}

func (s *solver) forEach(pool *parallel.ThreadPool, minBatch int, fn func(it *solverItem)) {
	for c := 0; c <= parallelColors; c++ {
		batch := s.colored[s.offsets[c]:s.offsets[c+1]]
		if len(batch) == 0 {
			continue
		}
		if c == overflowColor {
			for i := range batch {
				fn(&batch[i])
			}
			continue
		}
		pool.ParallelFor(len(batch), minBatch, func(start, end int) {
			for i := start; i < end; i++ {
				fn(&batch[i])
			}
		})
	}
}

func (s *solver) solve(pool *parallel.ThreadPool, minBatch, iterations int, idt float64, cs ContactSettings) {
	s.forEach(pool, minBatch, func(it *solverItem) { it.prepare(idt, cs) })
	for i := 0; i < iterations; i++ {
		s.forEach(pool, minBatch, func(it *solverItem) { it.iterate(idt, cs) })
	}
}

// mustBody resolves a handle at solve time. A missing body means the scene
// graph is inconsistent, which is a programming error.
func (w *World) mustBody(id BodyID) *RigidBody {
	b, ok := w.bodies.Get(id)
	if !ok {
		panic(fmt.Sprintf("dynamics: body %v referenced by the solver does not exist", id))
	}
	return b
}
