package metrics

import (
	"math"

	"github.com/san-kum/rigid/internal/dynamics"
)

// Contacts is the mean number of contact points per step.
type Contacts struct {
	name    string
	sum     float64
	samples int
}

func NewContacts() *Contacts {
	return &Contacts{
		name: "contacts",
	}
}

func (c *Contacts) Name() string {
	return c.name
}

func (c *Contacts) Observe(w *dynamics.World, t float64) {
	c.sum += float64(w.Stats().Contacts)
	c.samples++
}

func (c *Contacts) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *Contacts) Reset() {
	c.sum = 0
	c.samples = 0
}

// Penetration is the deepest contact seen during the run.
type Penetration struct {
	name string
	max  float64
}

func NewPenetration() *Penetration {
	return &Penetration{name: "max_penetration"}
}

func (p *Penetration) Name() string { return p.name }

func (p *Penetration) Observe(w *dynamics.World, t float64) {
	p.max = math.Max(p.max, MaxPenetration(w))
}

func (p *Penetration) Value() float64 { return p.max }

func (p *Penetration) Reset() { p.max = 0 }

// Awake is the number of awake bodies after the last observed step.
type Awake struct {
	name  string
	value float64
}

func NewAwake() *Awake {
	return &Awake{name: "awake_bodies"}
}

func (a *Awake) Name() string { return a.name }

func (a *Awake) Observe(w *dynamics.World, t float64) {
	a.value = float64(w.Stats().Awake)
}

func (a *Awake) Value() float64 { return a.value }

func (a *Awake) Reset() { a.value = 0 }
