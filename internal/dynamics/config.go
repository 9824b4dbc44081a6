package dynamics

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/collision"
)

type ContactSettings struct {
	BiasFactor           float64 `yaml:"bias_factor"`
	Softness             float64 `yaml:"softness"`
	AllowedPenetration   float64 `yaml:"allowed_penetration"`
	BreakThreshold       float64 `yaml:"break_threshold"`
	RestitutionThreshold float64 `yaml:"restitution_threshold"`
}

type SleepSettings struct {
	LinearThreshold  float64 `yaml:"linear_threshold"`
	AngularThreshold float64 `yaml:"angular_threshold"`
	DeactivationTime float64 `yaml:"deactivation_time"`
}

type BroadPhaseSettings struct {
	Margin         float64 `yaml:"margin"`
	VelocityFactor float64 `yaml:"velocity_factor"`
}

type NarrowPhaseSettings struct {
	EPAThreshold float64 `yaml:"epa_threshold"`
	FeatureAngle float64 `yaml:"feature_angle"`
	Manifold     bool    `yaml:"manifold"`
}

// Config holds the world settings. Zero values are not usable; start from
// DefaultConfig.
type Config struct {
	Gravity           mgl64.Vec3 `yaml:"gravity,flow"`
	SolverIterations  int        `yaml:"solver_iterations"`
	Threads           int        `yaml:"threads"`
	LinearDamping     float64    `yaml:"linear_damping"`
	AngularDamping    float64    `yaml:"angular_damping"`
	AllowDeactivation bool       `yaml:"allow_deactivation"`
	ParallelMinBatch  int        `yaml:"parallel_min_batch"`

	Contact     ContactSettings     `yaml:"contact"`
	Sleep       SleepSettings       `yaml:"sleep"`
	BroadPhase  BroadPhaseSettings  `yaml:"broad_phase"`
	NarrowPhase NarrowPhaseSettings `yaml:"narrow_phase"`
}

func DefaultConfig() Config {
	return Config{
		Gravity:           mgl64.Vec3{0, -9.81, 0},
		SolverIterations:  8,
		Threads:           1,
		LinearDamping:     0.02,
		AngularDamping:    0.05,
		AllowDeactivation: true,
		ParallelMinBatch:  16,
		Contact: ContactSettings{
			BiasFactor:           0.2,
			Softness:             0.001,
			AllowedPenetration:   0.01,
			BreakThreshold:       0.02,
			RestitutionThreshold: 0.2,
		},
		Sleep: SleepSettings{
			LinearThreshold:  0.1,
			AngularThreshold: 0.1,
			DeactivationTime: 1,
		},
		BroadPhase: BroadPhaseSettings{
			Margin:         0.05,
			VelocityFactor: 2,
		},
		NarrowPhase: NarrowPhaseSettings{
			EPAThreshold: 0.1,
			FeatureAngle: 0.05,
			Manifold:     true,
		},
	}
}

func (c Config) Validate() error {
	for i, g := range c.Gravity {
		if math.IsNaN(g) || math.IsInf(g, 0) {
			return fmt.Errorf("%w: gravity[%d] is %v", ErrInvalidConfig, i, g)
		}
	}

	checks := []struct {
		name string
		ok   bool
	}{
		{"solver_iterations must be positive", c.SolverIterations > 0},
		{"threads must not be negative", c.Threads >= 0},
		{"parallel_min_batch must be positive", c.ParallelMinBatch > 0},
		{"damping must be in [0, 1)", c.LinearDamping >= 0 && c.LinearDamping < 1 && c.AngularDamping >= 0 && c.AngularDamping < 1},
		{"contact bias_factor must be in [0, 1]", c.Contact.BiasFactor >= 0 && c.Contact.BiasFactor <= 1},
		{"contact softness must not be negative", c.Contact.Softness >= 0},
		{"contact allowed_penetration must not be negative", c.Contact.AllowedPenetration >= 0},
		{"contact break_threshold must be positive", c.Contact.BreakThreshold > 0},
		{"sleep thresholds must not be negative", c.Sleep.LinearThreshold >= 0 && c.Sleep.AngularThreshold >= 0},
		{"sleep deactivation_time must be positive", c.Sleep.DeactivationTime > 0},
		{"broad_phase margin must not be negative", c.BroadPhase.Margin >= 0},
		{"broad_phase velocity_factor must not be negative", c.BroadPhase.VelocityFactor >= 0},
		{"narrow_phase epa_threshold must not be negative", c.NarrowPhase.EPAThreshold >= 0},
		{"narrow_phase feature_angle must be in (0, pi/4]", c.NarrowPhase.FeatureAngle > 0 && c.NarrowPhase.FeatureAngle <= math.Pi/4},
	}
	for _, chk := range checks {
		if !chk.ok {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, chk.name)
		}
	}
	return nil
}

func (c Config) collisionSettings() collision.Settings {
	return collision.Settings{
		EPAThreshold:   c.NarrowPhase.EPAThreshold,
		Manifold:       c.NarrowPhase.Manifold,
		FeatureAngle:   c.NarrowPhase.FeatureAngle,
		BreakThreshold: c.Contact.BreakThreshold,
	}
}
