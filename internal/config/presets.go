package config

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// Presets builds the named scenes. Each call returns a fresh Config.
var Presets = map[string]func() *Config{
	"stack":    stackPreset,
	"pyramid":  pyramidPreset,
	"rain":     rainPreset,
	"terrain":  terrainPreset,
	"slider":   sliderPreset,
	"pendulum": pendulumPreset,
}

func GetPreset(name string) (*Config, error) {
	build, ok := Presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return build(), nil
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newScene(name, description string) *Config {
	cfg := DefaultConfig()
	cfg.Scene.Name = name
	cfg.Scene.Description = description
	cfg.Scene.Ground = &GroundConfig{Size: mgl64.Vec3{40, 1, 40}}
	return cfg
}

func box(pos mgl64.Vec3) BodyConfig {
	return BodyConfig{Shape: "box", Size: mgl64.Vec3{1, 1, 1}, Position: pos}
}

func stackPreset() *Config {
	cfg := newScene("stack", "five unit boxes stacked on the ground")
	for i := 0; i < 5; i++ {
		cfg.Scene.Bodies = append(cfg.Scene.Bodies, box(mgl64.Vec3{0, 0.5 + float64(i), 0}))
	}
	cfg.Run.Steps = 600
	return cfg
}

func pyramidPreset() *Config {
	cfg := newScene("pyramid", "a 2D pyramid of 21 boxes, base of six")
	const base = 6
	for row := 0; row < base; row++ {
		n := base - row
		x0 := -float64(n-1) * 0.55
		for i := 0; i < n; i++ {
			p := mgl64.Vec3{x0 + float64(i)*1.1, 0.5 + float64(row), 0}
			cfg.Scene.Bodies = append(cfg.Scene.Bodies, box(p))
		}
	}
	cfg.World.SolverIterations = 12
	cfg.Run.Steps = 900
	return cfg
}

// octahedron returns a hull description with vertices at distance r.
func octahedron(r float64) ([]mgl64.Vec3, [][3]int) {
	v := []mgl64.Vec3{
		{r, 0, 0}, {-r, 0, 0},
		{0, r, 0}, {0, -r, 0},
		{0, 0, r}, {0, 0, -r},
	}
	f := [][3]int{
		{0, 2, 4}, {2, 1, 4}, {1, 3, 4}, {3, 0, 4},
		{2, 0, 5}, {1, 2, 5}, {3, 1, 5}, {0, 3, 5},
	}
	return v, f
}

func rainPreset() *Config {
	cfg := newScene("rain", "boxes, spheres and octahedra dropped in a grid")
	verts, faces := octahedron(0.6)
	for layer := 0; layer < 3; layer++ {
		for i := 0; i < 5; i++ {
			for j := 0; j < 5; j++ {
				p := mgl64.Vec3{
					float64(i-2)*1.6 + 0.1*float64(layer),
					2 + float64(layer)*1.8,
					float64(j-2)*1.6 - 0.1*float64(layer),
				}
				var b BodyConfig
				switch (i + j + layer) % 3 {
				case 0:
					b = box(p)
					b.Axis, b.Angle = mgl64.Vec3{1, 0, 1}, 0.3*float64(i+1)
				case 1:
					b = BodyConfig{Shape: "sphere", Radius: 0.5, Position: p, Restitution: 0.3}
				default:
					b = BodyConfig{Shape: "hull", Vertices: verts, Faces: faces, Position: p}
					b.Axis, b.Angle = mgl64.Vec3{0, 1, 1}, 0.2*float64(j+1)
				}
				cfg.Scene.Bodies = append(cfg.Scene.Bodies, b)
			}
		}
	}
	cfg.World.Threads = 4
	cfg.Run.Steps = 600
	return cfg
}

func terrainPreset() *Config {
	cfg := newScene("terrain", "bodies dropped on a rolling height field collided through an octree")
	cfg.Scene.Ground = nil
	cfg.Scene.Terrain = &TerrainConfig{Cells: 24, Size: 24, Amplitude: 0.8, Thickness: 0.1}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			p := mgl64.Vec3{float64(i-2)*3 + 1, 3, float64(j-2)*3 + 1}
			if (i+j)%2 == 0 {
				cfg.Scene.Bodies = append(cfg.Scene.Bodies, BodyConfig{Shape: "sphere", Radius: 0.5, Position: p})
			} else {
				cfg.Scene.Bodies = append(cfg.Scene.Bodies, box(p))
			}
		}
	}
	cfg.Run.Steps = 600
	return cfg
}

func sliderPreset() *Config {
	cfg := newScene("slider", "a spinning box held in the z = 0 plane by a point-on-plane joint")
	b := BodyConfig{
		Shape:           "box",
		Size:            mgl64.Vec3{2, 0.5, 1},
		Position:        mgl64.Vec3{0, 3, 0},
		Velocity:        mgl64.Vec3{2, 0, 1},
		AngularVelocity: mgl64.Vec3{0, 0, 3},
	}
	cfg.Scene.Bodies = append(cfg.Scene.Bodies, b)
	cfg.Scene.Joints = append(cfg.Scene.Joints, JointConfig{
		Type:    "point_on_plane",
		Body1:   NullBody,
		Body2:   0,
		Axis:    mgl64.Vec3{0, 0, 1},
		Anchor1: mgl64.Vec3{0, 0, 0},
		Anchor2: b.Position,
	})
	// A second slider bounded in height.
	b2 := box(mgl64.Vec3{4, 4, 0})
	cfg.Scene.Bodies = append(cfg.Scene.Bodies, b2)
	cfg.Scene.Joints = append(cfg.Scene.Joints, JointConfig{
		Type:    "point_on_plane",
		Body1:   NullBody,
		Body2:   1,
		Axis:    mgl64.Vec3{0, 1, 0},
		Anchor1: mgl64.Vec3{4, 4, 0},
		Anchor2: b2.Position,
		Limit:   []float64{-2, math.Inf(1)},
	})
	cfg.Run.Steps = 600
	return cfg
}

func pendulumPreset() *Config {
	cfg := newScene("pendulum", "a chain of four spheres hanging from ball-socket joints")
	const links = 4
	pivot := mgl64.Vec3{0, 6, 0}
	for i := 0; i < links; i++ {
		p := pivot.Add(mgl64.Vec3{float64(i) + 1, 0, 0})
		cfg.Scene.Bodies = append(cfg.Scene.Bodies, BodyConfig{Shape: "sphere", Radius: 0.3, Position: p})

		prev := NullBody
		if i > 0 {
			prev = i - 1
		}
		cfg.Scene.Joints = append(cfg.Scene.Joints, JointConfig{
			Type:    "ball_socket",
			Body1:   prev,
			Body2:   i,
			Anchor1: p.Sub(mgl64.Vec3{0.5, 0, 0}),
		})
	}
	cfg.World.AllowDeactivation = false
	cfg.Run.Steps = 900
	return cfg
}
