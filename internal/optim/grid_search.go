// Package optim searches world settings for the values that minimize a
// run metric.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/rigid/internal/config"
	"github.com/san-kum/rigid/internal/metrics"
	"github.com/san-kum/rigid/internal/scene"
)

var ErrUnknownParam = errors.New("optim: unknown parameter")

// Objective scores one parameter assignment; lower is better.
type Objective func(ctx context.Context, params map[string]float64) (float64, error)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Search evaluates every combination of the ranges and returns the best.
// Failed or non-finite evaluations are skipped; if every one fails the
// last error is returned.
func (g *GridSearch) Search(ctx context.Context, objective Objective) (map[string]float64, float64, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, fmt.Errorf("optim: %d names for %d ranges", len(g.paramNames), len(g.ranges))
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	var lastErr error

	err := g.searchRecursive(ctx, 0, make(map[string]float64), objective, func(params map[string]float64, val float64, err error) {
		if err != nil {
			lastErr = err
			return
		}
		if val < best {
			best = val
			bestParams = params
		}
	})
	if err != nil {
		return nil, 0, err
	}
	if bestParams == nil {
		if lastErr == nil {
			lastErr = errors.New("optim: no finite evaluation")
		}
		return nil, 0, lastErr
	}
	return bestParams, best, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	objective Objective,
	report func(map[string]float64, float64, error),
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		val, err := objective(ctx, current)
		if err == nil && (math.IsNaN(val) || math.IsInf(val, 0)) {
			err = fmt.Errorf("optim: non-finite value for %v", current)
		}
		report(current, val, err)
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, objective, report); err != nil {
			return err
		}
	}
	return nil
}

// setters maps tunable parameter names to the config field they write.
var setters = map[string]func(c *config.Config, v float64){
	"solver_iterations":   func(c *config.Config, v float64) { c.World.SolverIterations = int(v) },
	"bias_factor":         func(c *config.Config, v float64) { c.World.Contact.BiasFactor = v },
	"softness":            func(c *config.Config, v float64) { c.World.Contact.Softness = v },
	"allowed_penetration": func(c *config.Config, v float64) { c.World.Contact.AllowedPenetration = v },
	"break_threshold":     func(c *config.Config, v float64) { c.World.Contact.BreakThreshold = v },
	"linear_damping":      func(c *config.Config, v float64) { c.World.LinearDamping = v },
	"angular_damping":     func(c *config.Config, v float64) { c.World.AngularDamping = v },
	"margin":              func(c *config.Config, v float64) { c.World.BroadPhase.Margin = v },
	"dt":                  func(c *config.Config, v float64) { c.Run.Dt = v },
}

// Params lists the names Apply accepts.
func Params() []string {
	names := make([]string, 0, len(setters))
	for name := range setters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply writes params into a copy of base.
func Apply(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg := *base
	for name, v := range params {
		set, ok := setters[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParam, name)
		}
		set(&cfg, v)
	}
	return &cfg, nil
}

// SceneObjective runs base with each assignment for steps steps and
// scores it by the named standard metric.
func SceneObjective(base *config.Config, metricName string, steps, threads int) (Objective, error) {
	found := false
	for _, m := range metrics.Standard() {
		if m.Name() == metricName {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("optim: unknown metric %q", metricName)
	}

	return func(ctx context.Context, params map[string]float64) (float64, error) {
		cfg, err := Apply(base, params)
		if err != nil {
			return 0, err
		}
		s, err := scene.Build(cfg, threads)
		if err != nil {
			return 0, err
		}
		defer s.Close()

		r := scene.NewRunner(s)
		for _, m := range metrics.Standard() {
			r.AddMetric(m)
		}
		res, err := r.Run(ctx, steps, cfg.Run.Dt)
		if err != nil {
			return 0, err
		}
		if len(res.Errors) > 0 {
			return 0, res.Errors[0]
		}
		return res.Metrics[metricName], nil
	}, nil
}
