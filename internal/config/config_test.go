package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/rigid/internal/dynamics"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Scene.Name != DefaultScene {
		t.Errorf("expected scene %s, got %s", DefaultScene, cfg.Scene.Name)
	}
	if cfg.Run.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if cfg.Run.Steps <= 0 {
		t.Error("steps should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	cfg, err := GetPreset("stack")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Scene.Bodies) != 5 {
		t.Errorf("expected 5 bodies, got %d", len(cfg.Scene.Bodies))
	}

	// Presets must not share state between calls.
	cfg.Scene.Bodies = nil
	again, _ := GetPreset("stack")
	if len(again.Scene.Bodies) != 5 {
		t.Error("preset mutated through a previous result")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	cfg, err := GetPreset("nonexistent")
	if cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("expected ErrUnknownPreset, got %v", err)
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets()
	if len(presets) != len(Presets) {
		t.Fatalf("expected %d presets, got %d", len(Presets), len(presets))
	}
	for i := 1; i < len(presets); i++ {
		if presets[i-1] >= presets[i] {
			t.Errorf("presets not sorted: %v", presets)
		}
	}
}

func TestPresetsValidate(t *testing.T) {
	for _, name := range ListPresets() {
		cfg, _ := GetPreset(name)
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset %s: %v", name, err)
		}
		if cfg.Scene.Name != name {
			t.Errorf("preset %s names its scene %s", name, cfg.Scene.Name)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero steps", func(c *Config) { c.Run.Steps = 0 }},
		{"negative dt", func(c *Config) { c.Run.Dt = -0.01 }},
		{"world", func(c *Config) { c.World.SolverIterations = 0 }},
		{"terrain", func(c *Config) { c.Scene.Terrain = &TerrainConfig{} }},
		{"joint body", func(c *Config) {
			c.Scene.Joints = []JointConfig{{Type: "ball_socket", Body1: NullBody, Body2: 3}}
		}},
		{"joint limit", func(c *Config) {
			c.Scene.Bodies = []BodyConfig{{Shape: "box"}}
			c.Scene.Joints = []JointConfig{{Type: "point_on_plane", Body1: NullBody, Body2: 0, Limit: []float64{1}}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, dynamics.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg, _ := GetPreset("slider")
	path := filepath.Join(t.TempDir(), "slider.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Scene.Joints) != 2 {
		t.Fatalf("expected 2 joints, got %d", len(loaded.Scene.Joints))
	}
	lim := loaded.Scene.Joints[1].LinearLimit()
	if lim.Min != -2 || !math.IsInf(lim.Max, 1) {
		t.Errorf("limit not preserved: %+v", lim)
	}
	if loaded.Scene.Joints[0].LinearLimit() != dynamics.Fixed {
		t.Error("empty limit should load as fixed")
	}
	if loaded.World.Gravity != cfg.World.Gravity {
		t.Errorf("gravity %v, want %v", loaded.World.Gravity, cfg.World.Gravity)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	doc := "run:\n  steps: 42\nworld:\n  threads: 3\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Run.Steps != 42 || cfg.World.Threads != 3 {
		t.Errorf("overrides lost: steps %d threads %d", cfg.Run.Steps, cfg.World.Threads)
	}
	if cfg.Run.Dt != DefaultDt || cfg.World.SolverIterations != dynamics.DefaultConfig().SolverIterations {
		t.Error("defaults not kept for missing keys")
	}
	if got := cfg.ToDynamics(0).Threads; got != 3 {
		t.Errorf("ToDynamics(0) threads = %d", got)
	}
	if got := cfg.ToDynamics(8).Threads; got != 8 {
		t.Errorf("ToDynamics(8) threads = %d", got)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
