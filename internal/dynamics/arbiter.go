package dynamics

import "sync"

// ArbiterKey identifies an unordered pair of shapes. Key1 <= Key2.
type ArbiterKey struct {
	Key1, Key2 uint64
}

// NewArbiterKey orders the two ids and reports whether they were swapped.
func NewArbiterKey(a, b uint64) (ArbiterKey, bool) {
	if a > b {
		return ArbiterKey{Key1: b, Key2: a}, true
	}
	return ArbiterKey{Key1: a, Key2: b}, false
}

// Arbiter tracks the contact between two shapes. Body1 owns the shape with
// the lower id.
type Arbiter struct {
	Key     ArbiterKey
	Body1   BodyID
	Body2   BodyID
	Contact ContactData

	touched bool
}

// ArbiterPool recycles arbiters. Returned arbiters are zeroed.
type ArbiterPool struct {
	pool sync.Pool
}

func NewArbiterPool() *ArbiterPool {
	return &ArbiterPool{
		pool: sync.Pool{
			New: func() interface{} {
				return new(Arbiter)
			},
		},
	}
}

func (p *ArbiterPool) Get() *Arbiter {
	return p.pool.Get().(*Arbiter)
}

func (p *ArbiterPool) Put(a *Arbiter) {
	*a = Arbiter{}
	p.pool.Put(a)
}

// ContactManager owns every arbiter of a world. At most one arbiter exists
// per key; iteration follows creation order.
type ContactManager struct {
	arbiters       map[ArbiterKey]*Arbiter
	list           []*Arbiter
	pool           *ArbiterPool
	breakThreshold float64
}

func NewContactManager(breakThreshold float64) *ContactManager {
	return &ContactManager{
		arbiters:       make(map[ArbiterKey]*Arbiter),
		pool:           NewArbiterPool(),
		breakThreshold: breakThreshold,
	}
}

func (m *ContactManager) Len() int { return len(m.list) }

func (m *ContactManager) Get(key ArbiterKey) (*Arbiter, bool) {
	a, ok := m.arbiters[key]
	return a, ok
}

// GetOrCreate returns the arbiter for key, creating it for body1 and body2
// if needed. The bool reports creation.
func (m *ContactManager) GetOrCreate(key ArbiterKey, body1, body2 BodyID) (*Arbiter, bool) {
	if a, ok := m.arbiters[key]; ok {
		return a, false
	}
	a := m.pool.Get()
	a.Key = key
	a.Body1, a.Body2 = body1, body2
	a.Contact.Key = key
	a.Contact.Body1, a.Contact.Body2 = body1, body2
	a.Contact.breakThreshold = m.breakThreshold

	m.arbiters[key] = a
	m.list = append(m.list, a)
	return a, true
}

// Remove returns the arbiter for key to the pool.
func (m *ContactManager) Remove(key ArbiterKey) bool {
	a, ok := m.arbiters[key]
	if !ok {
		return false
	}
	delete(m.arbiters, key)
	for i, x := range m.list {
		if x == a {
			m.list = append(m.list[:i], m.list[i+1:]...)
			break
		}
	}
	m.pool.Put(a)
	return true
}

// RemoveIf drops every arbiter for which drop returns true, keeping the
// order of the rest, and returns the number removed.
func (m *ContactManager) RemoveIf(drop func(a *Arbiter) bool) int {
	kept := m.list[:0]
	removed := 0
	for _, a := range m.list {
		if drop(a) {
			delete(m.arbiters, a.Key)
			m.pool.Put(a)
			removed++
			continue
		}
		kept = append(kept, a)
	}
	clear(m.list[len(kept):])
	m.list = kept
	return removed
}

// Each visits arbiters in creation order until fn returns false.
func (m *ContactManager) Each(fn func(a *Arbiter) bool) {
	for _, a := range m.list {
		if !fn(a) {
			return
		}
	}
}

// At returns the i-th arbiter in creation order.
func (m *ContactManager) At(i int) *Arbiter { return m.list[i] }
