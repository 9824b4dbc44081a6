package metrics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/dynamics"
)

func newWorld(t *testing.T) *dynamics.World {
	t.Helper()
	w, err := dynamics.NewWorld(dynamics.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Close)
	return w
}

func TestEnergy(t *testing.T) {
	w := newWorld(t)
	id := w.CreateBody()
	w.SetVelocity(id, mgl64.Vec3{2, 0, 0})

	m := NewEnergy()
	m.Observe(w, 0)
	if math.Abs(m.Value()-2) > 1e-9 {
		t.Errorf("expected energy 2, got %f", m.Value())
	}

	w.SetVelocity(id, mgl64.Vec3{})
	m.Observe(w, 0.1)
	if math.Abs(m.Value()-1) > 1e-9 {
		t.Errorf("expected mean energy 1, got %f", m.Value())
	}

	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero energy after reset")
	}
}

func TestSettling(t *testing.T) {
	w := newWorld(t)
	id := w.CreateBody()

	s := NewSettling(0.05)
	w.SetVelocity(id, mgl64.Vec3{1, 0, 0})
	s.Observe(w, 0.5)
	w.SetVelocity(id, mgl64.Vec3{})
	s.Observe(w, 1.0)
	if s.Value() != 0.5 {
		t.Errorf("expected settling at 0.5, got %f", s.Value())
	}
}

func TestPenetrationAndStability(t *testing.T) {
	w := newWorld(t)
	id := w.CreateBody()

	up := mgl64.Vec3{0, 1, 0}
	w.RegisterContact(1, 2, w.NullBody(), id, mgl64.Vec3{0, 0.03, 0}, mgl64.Vec3{}, up, 0.03)

	if got := MaxPenetration(w); math.Abs(got-0.03) > 1e-12 {
		t.Fatalf("expected max penetration 0.03, got %f", got)
	}

	p := NewPenetration()
	s := NewStability(0.01)
	p.Observe(w, 0)
	s.Observe(w, 0)
	if p.Value() != 0.03 {
		t.Errorf("expected 0.03, got %f", p.Value())
	}
	if s.Value() != 0 {
		t.Errorf("expected stability 0, got %f", s.Value())
	}

	loose := NewStability(0.1)
	loose.Observe(w, 0)
	if loose.Value() != 1 {
		t.Errorf("expected stability 1, got %f", loose.Value())
	}
}

func TestStandardNamesUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Standard() {
		if seen[m.Name()] {
			t.Errorf("duplicate metric %s", m.Name())
		}
		seen[m.Name()] = true
	}
}
