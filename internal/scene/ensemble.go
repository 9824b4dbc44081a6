package scene

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/rigid/internal/config"
	"github.com/san-kum/rigid/internal/dynamics"
)

// EnsembleRun is the outcome of one member of an ensemble.
type EnsembleRun struct {
	Threads int
	Hash    uint64
	Result  *Result
}

// Ensemble runs the same scene at several thread counts concurrently.
// Every member builds its own world, so runs share nothing but cfg.
type Ensemble struct {
	cfg     *config.Config
	threads []int
	opts    []dynamics.Option
}

func NewEnsemble(cfg *config.Config, threads []int, opts ...dynamics.Option) *Ensemble {
	return &Ensemble{cfg: cfg, threads: threads, opts: opts}
}

func (e *Ensemble) Run(ctx context.Context, steps int, dt float64) ([]EnsembleRun, error) {
	runs := make([]EnsembleRun, len(e.threads))

	g, ctx := errgroup.WithContext(ctx)
	for i, n := range e.threads {
		g.Go(func() error {
			s, err := Build(e.cfg, n, e.opts...)
			if err != nil {
				return fmt.Errorf("threads=%d: %w", n, err)
			}
			defer s.Close()

			res, err := NewRunner(s).Run(ctx, steps, dt)
			if err != nil {
				return fmt.Errorf("threads=%d: %w", n, err)
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("threads=%d: %w", n, res.Errors[0])
			}
			runs[i] = EnsembleRun{Threads: n, Hash: res.Hash, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}

// Deterministic reports whether every run ended in the same state.
func Deterministic(runs []EnsembleRun) bool {
	if len(runs) == 0 {
		return true
	}
	for _, r := range runs[1:] {
		if r.Hash != runs[0].Hash {
			return false
		}
	}
	return true
}
