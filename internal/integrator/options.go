package integrator

import (
	"math"

	"github.com/san-kum/daesim/internal/bdf"
	"github.com/san-kum/daesim/internal/linsol"
)

// Options configures a solver built by New. The zero value is not
// usable; start from DefaultOptions.
type Options struct {
	// Tolerances for the forward and backward error tests.
	RelTol float64
	AbsTol float64
	// AbsTolV, when non-empty, replaces AbsTol with a per-component
	// vector of length nx+nz.
	AbsTolV []float64
	// FsensAbsTolV is the per-component absolute tolerance reserved
	// for forward sensitivities. Accepted for interface compatibility
	// and currently unused since no forward sensitivities are carried.
	FsensAbsTolV []float64

	MaxSteps    int
	MaxOrder    int
	MaxStepSize float64

	// StopAtEnd makes the engine refuse to step past the last grid
	// point, so the residual is never evaluated beyond it.
	StopAtEnd bool

	// SuppressAlgebraic excludes algebraic components from the local
	// error test.
	SuppressAlgebraic bool

	// QuadErrCon includes quadratures in the step error test.
	QuadErrCon bool

	// CalcIC corrects the initial conditions at every forward reset:
	// the derivative of the differential components and the value of
	// the algebraic components are adjusted until the residual
	// vanishes. CalcICB is the backward-pass analogue; leave it nil to
	// inherit CalcIC.
	CalcIC  bool
	CalcICB *bool

	// InitXdot supplies the initial state derivative guess used by the
	// consistency correction. Length must be exactly nx+nz when set;
	// empty means a zero guess.
	InitXdot []float64

	// FirstTime is the absolute time the consistency correction aims
	// its first internal step at. Zero means the end of the grid.
	FirstTime float64

	// ExtraFsensCalcIC requests an additional consistency pass for
	// forward sensitivities. Accepted and ignored, as above.
	ExtraFsensCalcIC bool

	// CJScaling rescales Newton corrections by 2/(1+cjratio) after an
	// out-of-date factorization is reused with a changed step size.
	CJScaling bool

	// Iterative selects a matrix-free Krylov corrector instead of the
	// direct dense solve. Family and MaxKrylov only apply then, and
	// Precondition attaches the assembled iteration matrix as a right
	// preconditioner.
	Iterative    bool
	Family       bdf.Family
	MaxKrylov    int
	Precondition bool

	// NewLinearSolver builds the direct (or preconditioner) linear
	// solver for a system of the given size. Nil means dense LU.
	NewLinearSolver func(n int) linsol.Solver

	// Interp selects the dense-output scheme used to replay the
	// forward trajectory during the backward pass.
	Interp bdf.InterpType

	// StepsPerCheckpoint is the forward taping density: one stored
	// point every so many accepted steps would be the classical
	// scheme; here every accepted step is taped and this value sizes
	// the checkpoint count reported by Advance.
	StepsPerCheckpoint int
}

// DefaultOptions returns the baseline configuration: loose enough for
// interactive use, consistency correction on, direct dense corrector.
func DefaultOptions() Options {
	return Options{
		RelTol:             1e-6,
		AbsTol:             1e-8,
		MaxSteps:           10000,
		MaxOrder:           2,
		StopAtEnd:          true,
		CalcIC:             true,
		CJScaling:          true,
		Family:             bdf.GMRES,
		MaxKrylov:          10,
		Interp:             bdf.Hermite,
		StepsPerCheckpoint: 20,
	}
}

func (o *Options) validate(n int) error {
	if o.RelTol <= 0 || o.AbsTol <= 0 {
		return configErrf("tolerances must be positive, got rtol=%g atol=%g", o.RelTol, o.AbsTol)
	}
	if len(o.AbsTolV) != 0 && len(o.AbsTolV) != n {
		return configErrf("abstol vector has length %d, state has %d components", len(o.AbsTolV), n)
	}
	if len(o.InitXdot) != 0 && len(o.InitXdot) != n {
		return configErrf("init_xdot has length %d, state has %d components", len(o.InitXdot), n)
	}
	if o.MaxSteps <= 0 {
		return configErrf("max_num_steps must be positive, got %d", o.MaxSteps)
	}
	if o.MaxOrder < 1 {
		return configErrf("max_multistep_order must be at least 1, got %d", o.MaxOrder)
	}
	if o.MaxStepSize < 0 || math.IsNaN(o.MaxStepSize) {
		return configErrf("max_step_size must be non-negative, got %g", o.MaxStepSize)
	}
	if o.Iterative && o.MaxKrylov <= 0 {
		return configErrf("max_krylov must be positive, got %d", o.MaxKrylov)
	}
	if o.StepsPerCheckpoint <= 0 {
		return configErrf("steps_per_checkpoint must be positive, got %d", o.StepsPerCheckpoint)
	}
	return nil
}
