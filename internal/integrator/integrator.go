package integrator

import (
	"math"
	"sort"

	"github.com/san-kum/daesim/internal/linsol"
	"github.com/san-kum/daesim/internal/oracle"
)

// Solver is the immutable half of the integrator: the named-function
// table, assembled Jacobians, dimensions, grid and resolved options.
// All mutable state lives in Memory objects created by InitMemory.
type Solver struct {
	name string
	opts Options
	dims oracle.Dimensions
	grid []float64
	fns  *oracle.Registry

	calcICB   bool
	firstTime float64
	newLin    func(n int) linsol.Solver

	// cached handles into fns
	daeF, quadF oracle.Func
	daeB, quadB oracle.Func
	jacF, jacB  oracle.Func
	jtF, jtB    oracle.Func
}

// New builds a solver for the DAE described by prov over the given
// ascending time grid. It requests every named function up front, so a
// provider that cannot derive a required Jacobian or directional
// derivative fails here rather than mid-integration.
func New(name string, prov oracle.Provider, grid []float64, opts Options) (*Solver, error) {
	dims := prov.Dimensions()
	n := dims.Nx + dims.Nz
	if n == 0 {
		return nil, configErrf("state has no components")
	}
	if len(grid) < 2 {
		return nil, configErrf("time grid needs at least two points, got %d", len(grid))
	}
	if !sort.Float64sAreSorted(grid) || hasDuplicates(grid) {
		return nil, configErrf("time grid must be strictly increasing")
	}
	if err := opts.validate(n); err != nil {
		return nil, err
	}
	if dims.Nrx == 0 && dims.Nrq > 0 {
		return nil, configErrf("backward quadratures require a backward state")
	}

	s := &Solver{
		name:      name,
		opts:      opts,
		dims:      dims,
		grid:      append([]float64(nil), grid...),
		fns:       oracle.NewRegistry(),
		calcICB:   opts.CalcIC,
		firstTime: grid[len(grid)-1],
		newLin:    opts.NewLinearSolver,
	}
	if opts.CalcICB != nil {
		s.calcICB = *opts.CalcICB
	}
	if opts.FirstTime != 0 {
		if opts.FirstTime <= grid[0] {
			return nil, configErrf("first_time %g is not past the grid start %g", opts.FirstTime, grid[0])
		}
		s.firstTime = opts.FirstTime
	}
	if s.newLin == nil {
		s.newLin = func(n int) linsol.Solver { return linsol.NewDense(n) }
	}
	if err := s.createFunctions(prov); err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the solver instance name given to New.
func (s *Solver) Name() string { return s.name }

// Dimensions reports the problem sizes the solver was built for.
func (s *Solver) Dimensions() oracle.Dimensions { return s.dims }

// Grid returns the output time grid.
func (s *Solver) Grid() []float64 { return s.grid }

func (s *Solver) createFunctions(prov oracle.Provider) error {
	var err error
	add := func(name string, in, out []oracle.Role) oracle.Func {
		if err != nil {
			return nil
		}
		var f oracle.Func
		if f, err = prov.Create(name, in, out); err != nil {
			err = configErrf("creating %s: %v", name, err)
			return nil
		}
		s.fns.Add(f)
		return f
	}

	d := s.dims
	fIn := []oracle.Role{oracle.X, oracle.Z, oracle.P, oracle.T}
	s.daeF = add("daeF", fIn, []oracle.Role{oracle.ODE, oracle.ALG})
	if d.Nq > 0 {
		s.quadF = add("quadF", fIn, []oracle.Role{oracle.Quad})
	}
	if d.Nrx > 0 {
		bIn := []oracle.Role{oracle.RX, oracle.RZ, oracle.RP,
			oracle.X, oracle.Z, oracle.P, oracle.T}
		s.daeB = add("daeB", bIn, []oracle.Role{oracle.RODE, oracle.RALG})
		if d.Nrq > 0 {
			s.quadB = add("quadB", bIn, []oracle.Role{oracle.RQuad})
		}
	}
	if err != nil {
		return err
	}

	if s.opts.Iterative {
		jIn := []oracle.Role{oracle.T, oracle.X, oracle.Z, oracle.P,
			oracle.Fwd(oracle.X), oracle.Fwd(oracle.Z)}
		s.jtF = add("jtimesF", jIn,
			[]oracle.Role{oracle.Fwd(oracle.ODE), oracle.Fwd(oracle.ALG)})
		if d.Nrx > 0 {
			jbIn := []oracle.Role{oracle.T, oracle.X, oracle.Z, oracle.P,
				oracle.RX, oracle.RZ, oracle.RP,
				oracle.Fwd(oracle.RX), oracle.Fwd(oracle.RZ)}
			s.jtB = add("jtimesB", jbIn,
				[]oracle.Role{oracle.Fwd(oracle.RODE), oracle.Fwd(oracle.RALG)})
		}
		if err != nil {
			return err
		}
	}

	// The assembled iteration matrix serves both the direct corrector
	// and the Krylov preconditioner, so it is built whenever either
	// can ask for it.
	if !s.opts.Iterative || s.opts.Precondition {
		if s.jacF, err = s.assembleJacF(prov); err != nil {
			return err
		}
		s.fns.Add(s.jacF)
		if d.Nrx > 0 {
			if s.jacB, err = s.assembleJacB(prov); err != nil {
				return err
			}
			s.fns.Add(s.jacB)
		}
	}
	return nil
}

// Functions exposes the named-function table, mainly for inspection
// and tests.
func (s *Solver) Functions() *oracle.Registry { return s.fns }

func hasDuplicates(grid []float64) bool {
	for i := 1; i < len(grid); i++ {
		if grid[i] == grid[i-1] {
			return true
		}
	}
	return false
}

// tooClose is the tolerance under which a requested output time is
// treated as already reached and no engine call is made.
const tooClose = 1e-9

func timesEqual(a, b float64) bool {
	return math.Abs(a-b) < tooClose
}
