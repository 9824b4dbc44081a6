package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/rigid/internal/dynamics"
)

const (
	DefaultDt    = 1.0 / 60.0
	DefaultSteps = 600
	DefaultScene = "stack"

	// NullBody refers to the world's static null body in joint definitions.
	NullBody = -1
)

// ErrUnknownPreset is returned by GetPreset for an unregistered name.
var ErrUnknownPreset = errors.New("config: unknown preset")

// Config is the YAML document the CLI runs: world settings, the scene to
// build and how long to run it.
type Config struct {
	World dynamics.Config `yaml:"world"`
	Scene SceneConfig     `yaml:"scene"`
	Run   RunConfig       `yaml:"run"`
}

type RunConfig struct {
	Steps  int     `yaml:"steps"`
	Dt     float64 `yaml:"dt"`
	Output string  `yaml:"output,omitempty"`
}

type SceneConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Ground      *GroundConfig  `yaml:"ground,omitempty"`
	Terrain     *TerrainConfig `yaml:"terrain,omitempty"`
	Bodies      []BodyConfig   `yaml:"bodies"`
	Joints      []JointConfig  `yaml:"joints,omitempty"`
}

// GroundConfig is a static box whose top face lies at y = 0.
type GroundConfig struct {
	Size mgl64.Vec3 `yaml:"size,flow"`
}

// TerrainConfig describes a generated height field collided through an
// octree instead of the broad phase.
type TerrainConfig struct {
	Cells     int     `yaml:"cells"`
	Size      float64 `yaml:"size"`
	Amplitude float64 `yaml:"amplitude"`
	Thickness float64 `yaml:"thickness"`
}

type BodyConfig struct {
	Shape  string     `yaml:"shape"`
	Size   mgl64.Vec3 `yaml:"size,flow,omitempty"`
	Radius float64    `yaml:"radius,omitempty"`
	// Vertices and Faces define a "hull" shape; faces wind outwards.
	Vertices []mgl64.Vec3 `yaml:"vertices,flow,omitempty"`
	Faces    [][3]int     `yaml:"faces,flow,omitempty"`

	Position        mgl64.Vec3 `yaml:"position,flow"`
	Axis            mgl64.Vec3 `yaml:"axis,flow,omitempty"`
	Angle           float64    `yaml:"angle,omitempty"`
	Velocity        mgl64.Vec3 `yaml:"velocity,flow,omitempty"`
	AngularVelocity mgl64.Vec3 `yaml:"angular_velocity,flow,omitempty"`

	Mass        float64  `yaml:"mass,omitempty"`
	Static      bool     `yaml:"static,omitempty"`
	Friction    *float64 `yaml:"friction,omitempty"`
	Restitution float64  `yaml:"restitution,omitempty"`
}

// JointConfig connects two bodies by index into SceneConfig.Bodies, with
// NullBody standing for the world.
type JointConfig struct {
	Type    string     `yaml:"type"`
	Body1   int        `yaml:"body1"`
	Body2   int        `yaml:"body2"`
	Anchor1 mgl64.Vec3 `yaml:"anchor1,flow"`
	Anchor2 mgl64.Vec3 `yaml:"anchor2,flow,omitempty"`
	Axis    mgl64.Vec3 `yaml:"axis,flow,omitempty"`
	// Limit is empty for a fixed distance or [min, max].
	Limit []float64 `yaml:"limit,flow,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		World: dynamics.DefaultConfig(),
		Scene: SceneConfig{Name: DefaultScene},
		Run: RunConfig{
			Steps: DefaultSteps,
			Dt:    DefaultDt,
		},
	}
}

// Load reads a YAML file over DefaultConfig, so a file only needs the
// values it changes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the run and scene. World settings are checked by
// dynamics.Config.Validate.
func (c *Config) Validate() error {
	if err := c.World.Validate(); err != nil {
		return err
	}
	if c.Run.Steps <= 0 {
		return fmt.Errorf("%w: run.steps must be positive", dynamics.ErrInvalidConfig)
	}
	if !(c.Run.Dt > 0) {
		return fmt.Errorf("%w: run.dt must be positive", dynamics.ErrInvalidConfig)
	}
	if t := c.Scene.Terrain; t != nil && (t.Cells <= 0 || t.Size <= 0) {
		return fmt.Errorf("%w: terrain needs positive cells and size", dynamics.ErrInvalidConfig)
	}
	n := len(c.Scene.Bodies)
	for i, j := range c.Scene.Joints {
		for _, b := range []int{j.Body1, j.Body2} {
			if b < NullBody || b >= n {
				return fmt.Errorf("%w: joint %d references body %d of %d", dynamics.ErrInvalidConfig, i, b, n)
			}
		}
		if len(j.Limit) != 0 && len(j.Limit) != 2 {
			return fmt.Errorf("%w: joint %d limit needs two values", dynamics.ErrInvalidConfig, i)
		}
	}
	return nil
}

// ToDynamics returns the world settings with the thread count overridden
// when threads > 0.
func (c *Config) ToDynamics(threads int) dynamics.Config {
	w := c.World
	if threads > 0 {
		w.Threads = threads
	}
	return w
}

// Rotation returns the body's initial orientation.
func (b BodyConfig) Rotation() mgl64.Quat {
	if b.Angle == 0 || b.Axis.Len() == 0 {
		return mgl64.QuatIdent()
	}
	return mgl64.QuatRotate(b.Angle, b.Axis.Normalize())
}

// LinearLimit converts a joint limit to its dynamics form.
func (j JointConfig) LinearLimit() dynamics.LinearLimit {
	if len(j.Limit) != 2 {
		return dynamics.Fixed
	}
	return dynamics.NewLinearLimit(j.Limit[0], j.Limit[1])
}
