// Package handle provides a generational slot map. Handles stay valid while
// the element lives and become stale, not dangling, once it is removed, so
// storage can be reused without exposing addresses.
package handle

import "fmt"

// Handle references a slot in a Pool. The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// FromID rebuilds a handle from its packed ID.
func FromID(id uint64) Handle {
	return Handle{index: uint32(id), gen: uint32(id >> 32)}
}

// ID packs the handle into a single number for external callers.
func (h Handle) ID() uint64 {
	return uint64(h.gen)<<32 | uint64(h.index)
}

func (h Handle) Index() int { return int(h.index) }

func (h Handle) IsZero() bool { return h.gen == 0 }

func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.index, h.gen)
}

type slot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Pool stores values in a dense slice and hands out generational handles.
// Pointers returned by Get are invalidated by the next Insert.
type Pool[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

func (p *Pool[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(p.free); n > 0 {
		idx = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		idx = uint32(len(p.slots))
		p.slots = append(p.slots, slot[T]{})
	}

	s := &p.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.value = v
	s.live = true
	p.count++
	return Handle{index: idx, gen: s.gen}
}

func (p *Pool[T]) Get(h Handle) (*T, bool) {
	if h.gen == 0 || int(h.index) >= len(p.slots) {
		return nil, false
	}
	s := &p.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil, false
	}
	return &s.value, true
}

func (p *Pool[T]) Contains(h Handle) bool {
	_, ok := p.Get(h)
	return ok
}

// Remove frees the slot. The stored value is zeroed so the pool does not
// keep references alive.
func (p *Pool[T]) Remove(h Handle) bool {
	if _, ok := p.Get(h); !ok {
		return false
	}
	s := &p.slots[h.index]
	var zero T
	s.value = zero
	s.live = false
	p.free = append(p.free, h.index)
	p.count--
	return true
}

func (p *Pool[T]) Len() int { return p.count }

// Cap returns the number of slots, live or free.
func (p *Pool[T]) Cap() int { return len(p.slots) }

// At returns the live value in slot i, if any.
func (p *Pool[T]) At(i int) (Handle, *T, bool) {
	if i < 0 || i >= len(p.slots) || !p.slots[i].live {
		return Handle{}, nil, false
	}
	s := &p.slots[i]
	return Handle{index: uint32(i), gen: s.gen}, &s.value, true
}

// Each visits live values in slot order until fn returns false.
func (p *Pool[T]) Each(fn func(h Handle, v *T) bool) {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.live {
			continue
		}
		if !fn(Handle{index: uint32(i), gen: s.gen}, &s.value) {
			return
		}
	}
}
