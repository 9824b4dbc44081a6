package scene

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/san-kum/rigid/internal/dynamics"
	"github.com/san-kum/rigid/internal/metrics"
)

// TraceColumns names the per-step values recorded in Result.Trace.
var TraceColumns = []string{"kinetic_energy", "awake", "contacts", "arbiters", "max_penetration", "islands", "colors"}

type Observer interface {
	OnStep(w *dynamics.World, step int, t float64)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(w *dynamics.World, step int, t float64)

func (f ObserverFunc) OnStep(w *dynamics.World, step int, t float64) { f(w, step, t) }

type Result struct {
	Times      []float64
	Trace      [][]float64
	Metrics    map[string]float64
	StepsTaken int
	Stats      dynamics.StepStats
	Hash       uint64
	Errors     []error
}

// Runner steps a scene and records metrics and a trace.
type Runner struct {
	scene     *Scene
	metrics   []metrics.Metric
	observers []Observer
}

func NewRunner(s *Scene) *Runner {
	return &Runner{
		scene:     s,
		metrics:   make([]metrics.Metric, 0),
		observers: make([]Observer, 0),
	}
}

func (r *Runner) AddMetric(m metrics.Metric) { r.metrics = append(r.metrics, m) }
func (r *Runner) AddObserver(o Observer)     { r.observers = append(r.observers, o) }

// Run advances the world steps times. A cancelled context stops the run
// between steps and returns the partial result with ctx.Err(). A step
// error ends the run; it is recorded in Result.Errors, not returned.
func (r *Runner) Run(ctx context.Context, steps int, dt float64) (*Result, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("%w: steps must be positive, got %d", dynamics.ErrInvalidConfig, steps)
	}
	if !(dt > 0) {
		return nil, fmt.Errorf("%w: dt must be positive, got %f", dynamics.ErrInvalidTimestep, dt)
	}

	w := r.scene.World
	result := &Result{
		Times:   make([]float64, 0, steps),
		Trace:   make([][]float64, 0, steps),
		Metrics: make(map[string]float64),
		Errors:  make([]error, 0),
	}
	for _, m := range r.metrics {
		m.Reset()
	}

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			r.finish(result)
			return result, ctx.Err()
		default:
		}

		if err := w.Step(dt); err != nil {
			result.Errors = append(result.Errors, err)
			break
		}
		t := w.Time()
		result.StepsTaken++

		for _, m := range r.metrics {
			m.Observe(w, t)
		}
		for _, obs := range r.observers {
			obs.OnStep(w, i, t)
		}

		st := w.Stats()
		result.Times = append(result.Times, t)
		result.Trace = append(result.Trace, []float64{
			metrics.KineticEnergy(w),
			float64(st.Awake),
			float64(st.Contacts),
			float64(st.Arbiters),
			metrics.MaxPenetration(w),
			float64(st.Islands),
			float64(st.Colors),
		})
	}

	r.finish(result)
	return result, nil
}

func (r *Runner) finish(result *Result) {
	for _, m := range r.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	result.Stats = r.scene.World.Stats()
	result.Hash = StateHash(r.scene.World)
}

// StateHash digests the pose and velocity bits of every body in slot
// order. Equal hashes mean bit-identical simulations.
func StateHash(w *dynamics.World) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	put := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	w.Bodies(func(_ dynamics.BodyID, b *dynamics.RigidBody) bool {
		for _, v := range [4][3]float64{b.Position, b.Velocity, b.AngularVelocity, b.Orientation.V} {
			for _, x := range v {
				put(x)
			}
		}
		put(b.Orientation.W)
		return true
	})
	return h.Sum64()
}
