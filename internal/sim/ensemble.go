package sim

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/san-kum/daesim/internal/integrator"
	"github.com/san-kum/daesim/internal/oracle"
)

// Ensemble runs the same forward problem once per parameter vector,
// each run on its own integrator instance so the runs proceed
// concurrently. The provider's function bodies must be safe to call
// from multiple goroutines; the models in this repository are, since
// they only read their own fields.
type Ensemble struct {
	name string
	prov oracle.Provider
	grid []float64
	opts integrator.Options

	// Workers caps concurrent runs; 0 means one per CPU.
	Workers int
}

func NewEnsemble(name string, prov oracle.Provider, grid []float64, opts integrator.Options) *Ensemble {
	return &Ensemble{name: name, prov: prov, grid: grid, opts: opts}
}

// Member is the outcome of one ensemble run. Result is nil when Err is
// set.
type Member struct {
	P      []float64
	Result *Result
	Err    error
}

// Run integrates once per row of params, all from the same initial
// point, and returns the members in parameter order.
func (e *Ensemble) Run(ctx context.Context, x0, z0 []float64, params [][]float64) []Member {
	workers := e.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	sem := make(chan struct{}, workers)
	members := make([]Member, len(params))

	var wg sync.WaitGroup
	for i := range params {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			members[idx].P = params[idx]
			r, err := New(fmt.Sprintf("%s#%d", e.name, idx), e.prov, e.grid, e.opts)
			if err != nil {
				members[idx].Err = err
				return
			}
			defer r.Close()
			res, err := r.Run(ctx, x0, z0, params[idx])
			if err != nil {
				members[idx].Err = err
				return
			}
			members[idx].Result = res
		}(i)
	}
	wg.Wait()
	return members
}
