// Package metrics observes a world once per step and reduces what it sees
// to a single number per metric.
package metrics

import (
	"github.com/san-kum/rigid/internal/dynamics"
)

type Metric interface {
	Name() string
	Observe(w *dynamics.World, t float64)
	Value() float64
	Reset()
}

// KineticEnergy sums the kinetic energy of every dynamic body.
func KineticEnergy(w *dynamics.World) float64 {
	total := 0.0
	w.Bodies(func(_ dynamics.BodyID, b *dynamics.RigidBody) bool {
		total += b.KineticEnergy()
		return true
	})
	return total
}

// MaxPenetration returns the deepest contact over all arbiters.
func MaxPenetration(w *dynamics.World) float64 {
	deepest := 0.0
	w.Arbiters().Each(func(a *dynamics.Arbiter) bool {
		if p := a.Contact.MaxPenetration(); p > deepest {
			deepest = p
		}
		return true
	})
	return deepest
}

// Standard returns the metrics the CLI records for every run.
func Standard() []Metric {
	return []Metric{
		NewEnergy(),
		NewSettling(0.05),
		NewContacts(),
		NewPenetration(),
		NewAwake(),
		NewStability(0.05),
	}
}
