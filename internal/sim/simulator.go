// Package sim walks an integrator instance along its output grid and
// collects trajectories, forward and adjoint.
package sim

import (
	"context"

	"github.com/san-kum/daesim/internal/bdf"
	"github.com/san-kum/daesim/internal/integrator"
	"github.com/san-kum/daesim/internal/oracle"
)

// Result is one collected trajectory. The adjoint slices are filled by
// RunAdjoint and stay nil otherwise. All rows are indexed by grid
// point; the adjoint rows share the same grid, recorded while
// integrating backwards.
type Result struct {
	Times []float64
	X     [][]float64
	Z     [][]float64
	Q     [][]float64

	RX [][]float64
	RZ [][]float64
	RQ [][]float64

	Stats       bdf.Stats
	StatsB      bdf.Stats
	Checkpoints int
}

// Runner owns one integrator instance.
type Runner struct {
	sol  *integrator.Solver
	mem  *integrator.Memory
	dims oracle.Dimensions
	grid []float64
}

func New(name string, prov oracle.Provider, grid []float64, opts integrator.Options) (*Runner, error) {
	sol, err := integrator.New(name, prov, grid, opts)
	if err != nil {
		return nil, err
	}
	mem, err := sol.InitMemory()
	if err != nil {
		return nil, err
	}
	return &Runner{sol: sol, mem: mem, dims: sol.Dimensions(), grid: sol.Grid()}, nil
}

func (r *Runner) Close() {
	if r.mem != nil {
		r.mem.Close()
		r.mem = nil
	}
}

// Solver exposes the underlying facade, mainly for stats and tests.
func (r *Runner) Solver() *integrator.Solver { return r.sol }

// Run integrates forward across the whole grid from the given initial
// point and records the state at every grid time.
func (r *Runner) Run(ctx context.Context, x0, z0, p []float64) (*Result, error) {
	d := r.dims
	if err := r.mem.Reset(x0, z0, p); err != nil {
		return nil, err
	}
	res := &Result{
		Times: append([]float64(nil), r.grid...),
		X:     make([][]float64, len(r.grid)),
		Z:     make([][]float64, len(r.grid)),
		Q:     make([][]float64, len(r.grid)),
	}
	for i, t := range r.grid {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		x := make([]float64, d.Nx)
		z := make([]float64, d.Nz)
		q := make([]float64, d.Nq)
		if err := r.mem.Advance(t, x, z, q); err != nil {
			return res, err
		}
		res.X[i], res.Z[i], res.Q[i] = x, z, q
	}
	res.Stats = r.mem.StatsForward()
	res.Checkpoints = r.mem.Checkpoints()
	return res, nil
}

// RunAdjoint integrates the backward problem from the grid end to the
// start, seeding the adjoint state with (rxT, rzT) and recording it at
// every grid point. Run must have completed first so the forward
// trajectory tape exists.
func (r *Runner) RunAdjoint(ctx context.Context, res *Result, rxT, rzT, rp []float64) error {
	d := r.dims
	if err := r.mem.ResetBackward(rxT, rzT, rp); err != nil {
		return err
	}
	res.RX = make([][]float64, len(r.grid))
	res.RZ = make([][]float64, len(r.grid))
	res.RQ = make([][]float64, len(r.grid))
	for i := len(r.grid) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		rx := make([]float64, d.Nrx)
		rz := make([]float64, d.Nrz)
		rq := make([]float64, d.Nrq)
		if err := r.mem.Retreat(r.grid[i], rx, rz, rq); err != nil {
			return err
		}
		res.RX[i], res.RZ[i], res.RQ[i] = rx, rz, rq
	}
	res.StatsB = r.mem.StatsBackward()
	return nil
}
