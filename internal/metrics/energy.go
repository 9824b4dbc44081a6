package metrics

import (
	"github.com/san-kum/rigid/internal/dynamics"
)

// Energy is the mean total kinetic energy over the run.
type Energy struct {
	name        string
	samples     int
	totalEnergy float64
}

func NewEnergy() *Energy {
	return &Energy{name: "kinetic_energy"}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(w *dynamics.World, t float64) {
	e.totalEnergy += KineticEnergy(w)
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.totalEnergy / float64(e.samples)
}

func (e *Energy) Reset() {
	e.totalEnergy = 0
	e.samples = 0
}

// Settling reports the last time the kinetic energy was above threshold,
// that is when the scene came to rest. It is 0 for a scene that never
// moved and the run length for one that never settled.
type Settling struct {
	name      string
	threshold float64
	last      float64
}

func NewSettling(threshold float64) *Settling {
	return &Settling{name: "settling_time", threshold: threshold}
}

func (s *Settling) Name() string { return s.name }

func (s *Settling) Observe(w *dynamics.World, t float64) {
	if KineticEnergy(w) > s.threshold {
		s.last = t
	}
}

func (s *Settling) Value() float64 { return s.last }

func (s *Settling) Reset() { s.last = 0 }
