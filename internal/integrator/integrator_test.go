package integrator

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/daesim/internal/bdf"
	"github.com/san-kum/daesim/internal/oracle"
)

// decayProvider builds the test workhorse
//
//	x' = -p*x, 0 = z - x, q' = x
//
// with the full adjoint pair, so every facade path has a closed-form
// answer to check against.
func decayProvider() *oracle.System {
	dims := oracle.Dimensions{
		Nx: 1, Nz: 1, Np: 1, Nq: 1,
		Nrx: 1, Nrz: 1, Nrp: 1, Nrq: 1,
	}
	sys := oracle.NewSystem(dims)
	fIn := []oracle.Role{oracle.X, oracle.Z, oracle.P, oracle.T}
	sys.Define("daeF", fIn, []oracle.Role{oracle.ODE, oracle.ALG},
		func(arg, res [][]float64) error {
			res[0][0] = -arg[2][0] * arg[0][0]
			res[1][0] = arg[1][0] - arg[0][0]
			return nil
		})
	sys.Define("quadF", fIn, []oracle.Role{oracle.Quad},
		func(arg, res [][]float64) error {
			res[0][0] = arg[0][0]
			return nil
		})
	bIn := []oracle.Role{oracle.RX, oracle.RZ, oracle.RP,
		oracle.X, oracle.Z, oracle.P, oracle.T}
	sys.Define("daeB", bIn, []oracle.Role{oracle.RODE, oracle.RALG},
		func(arg, res [][]float64) error {
			rx, rz, p := arg[0], arg[1], arg[5]
			res[0][0] = -p[0]*rx[0] - rz[0]
			res[1][0] = rz[0]
			return nil
		})
	sys.Define("quadB", bIn, []oracle.Role{oracle.RQuad},
		func(arg, res [][]float64) error {
			res[0][0] = -arg[3][0] * arg[0][0]
			return nil
		})
	return sys
}

func grid(t0, t1 float64, n int) []float64 {
	g := make([]float64, n+1)
	for i := range g {
		g[i] = t0 + (t1-t0)*float64(i)/float64(n)
	}
	return g
}

func tightOptions() Options {
	opts := DefaultOptions()
	opts.RelTol = 1e-10
	opts.AbsTol = 1e-12
	opts.QuadErrCon = true
	return opts
}

func newDecay(t *testing.T, opts Options) (*Solver, *Memory) {
	t.Helper()
	sol, err := New("decay", decayProvider(), grid(0, 1, 10), opts)
	if err != nil {
		t.Fatal(err)
	}
	mem, err := sol.InitMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mem.Close)
	return sol, mem
}

func resetDecay(t *testing.T, mem *Memory) {
	t.Helper()
	if err := mem.Reset([]float64{1}, []float64{1}, []float64{1}); err != nil {
		t.Fatal(err)
	}
}

func TestForwardDecay(t *testing.T) {
	_, mem := newDecay(t, tightOptions())
	resetDecay(t, mem)

	x := make([]float64, 1)
	z := make([]float64, 1)
	q := make([]float64, 1)
	if err := mem.Advance(1.0, x, z, q); err != nil {
		t.Fatal(err)
	}
	if math.Abs(x[0]-math.Exp(-1)) > 1e-6 {
		t.Errorf("x(1): got %.10f, expected %.10f", x[0], math.Exp(-1))
	}
	if math.Abs(z[0]-x[0]) > 1e-8 {
		t.Errorf("z(1) should track x(1): %.10f vs %.10f", z[0], x[0])
	}
	if math.Abs(q[0]-(1-math.Exp(-1))) > 1e-6 {
		t.Errorf("q(1): got %.10f, expected %.10f", q[0], 1-math.Exp(-1))
	}
	if mem.StatsForward().Steps == 0 {
		t.Error("expected forward steps recorded")
	}
}

func TestGridWalk(t *testing.T) {
	sol, mem := newDecay(t, tightOptions())
	resetDecay(t, mem)

	x := make([]float64, 1)
	for _, tt := range sol.Grid() {
		if err := mem.Advance(tt, x, nil, nil); err != nil {
			t.Fatalf("advance to %g: %v", tt, err)
		}
		if math.Abs(x[0]-math.Exp(-tt)) > 1e-6 {
			t.Errorf("x(%g): got %.10f, expected %.10f", tt, x[0], math.Exp(-tt))
		}
	}
}

func TestAdvanceIdempotent(t *testing.T) {
	_, mem := newDecay(t, tightOptions())
	resetDecay(t, mem)

	x := make([]float64, 1)
	if err := mem.Advance(0.5, x, nil, nil); err != nil {
		t.Fatal(err)
	}
	first := x[0]
	stepsBefore := mem.StatsForward().Steps
	if err := mem.Advance(0.5+1e-10, x, nil, nil); err != nil {
		t.Fatal(err)
	}
	if x[0] != first {
		t.Errorf("repeated advance changed the state: %.14g vs %.14g", x[0], first)
	}
	if mem.StatsForward().Steps != stepsBefore {
		t.Error("near-identical target must not trigger new steps")
	}
}

func TestAdvanceOutsideGrid(t *testing.T) {
	_, mem := newDecay(t, tightOptions())
	resetDecay(t, mem)

	var de *DomainError
	if err := mem.Advance(2.0, nil, nil, nil); !errors.As(err, &de) {
		t.Errorf("advance past grid end: expected DomainError, got %v", err)
	}
	if err := mem.Advance(-0.5, nil, nil, nil); !errors.As(err, &de) {
		t.Errorf("advance before grid start: expected DomainError, got %v", err)
	}
	x := make([]float64, 1)
	if err := mem.Advance(0.6, x, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := mem.Advance(0.3, x, nil, nil); !errors.As(err, &de) {
		t.Errorf("advance backwards: expected DomainError, got %v", err)
	}
}

// With stop_at_end off the grid end is a soft boundary: the engine
// keeps integrating past it on request. The grid start stays hard.
func TestAdvancePastEndNoStop(t *testing.T) {
	opts := tightOptions()
	opts.StopAtEnd = false
	_, mem := newDecay(t, opts)
	resetDecay(t, mem)

	x := make([]float64, 1)
	if err := mem.Advance(1.5, x, nil, nil); err != nil {
		t.Fatal(err)
	}
	if math.Abs(x[0]-math.Exp(-1.5)) > 1e-6 {
		t.Errorf("x(1.5): got %.10f, expected %.10f", x[0], math.Exp(-1.5))
	}
	var de *DomainError
	if err := mem.Advance(-0.5, nil, nil, nil); !errors.As(err, &de) {
		t.Errorf("advance before grid start: expected DomainError, got %v", err)
	}
}

func TestAdvanceBeforeReset(t *testing.T) {
	_, mem := newDecay(t, tightOptions())
	var de *DomainError
	if err := mem.Advance(0.5, nil, nil, nil); !errors.As(err, &de) {
		t.Errorf("expected DomainError before reset, got %v", err)
	}
}

func TestResetDeterminism(t *testing.T) {
	_, mem := newDecay(t, tightOptions())

	run := func() float64 {
		resetDecay(t, mem)
		x := make([]float64, 1)
		if err := mem.Advance(1.0, x, nil, nil); err != nil {
			t.Fatal(err)
		}
		return x[0]
	}
	a := run()
	b := run()
	if a != b {
		t.Errorf("reset is not deterministic: %.16g vs %.16g", a, b)
	}
}

func TestCalcICCorrectsAlgebraic(t *testing.T) {
	_, mem := newDecay(t, tightOptions())
	// Inconsistent algebraic guess; the consistency correction must
	// pull z onto the constraint before stepping.
	if err := mem.Reset([]float64{1}, []float64{7}, []float64{1}); err != nil {
		t.Fatal(err)
	}
	z := make([]float64, 1)
	if err := mem.Advance(0, nil, z, nil); err != nil {
		t.Fatal(err)
	}
	if math.Abs(z[0]-1) > 1e-6 {
		t.Errorf("corrected z(0): got %.10f, expected 1", z[0])
	}
}

func TestAdjointDecay(t *testing.T) {
	sol, mem := newDecay(t, tightOptions())
	resetDecay(t, mem)

	if err := mem.Advance(1.0, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if mem.Checkpoints() == 0 {
		t.Error("expected forward checkpoints for the backward pass")
	}
	if err := mem.ResetBackward([]float64{1}, []float64{0}, []float64{0}); err != nil {
		t.Fatal(err)
	}
	rx := make([]float64, 1)
	rq := make([]float64, 1)
	for i := len(sol.Grid()) - 1; i >= 0; i-- {
		if err := mem.Retreat(sol.Grid()[i], rx, nil, rq); err != nil {
			t.Fatalf("retreat to %g: %v", sol.Grid()[i], err)
		}
	}
	if math.Abs(rx[0]-math.Exp(-1)) > 1e-5 {
		t.Errorf("rx(0): got %.10f, expected %.10f", rx[0], math.Exp(-1))
	}
	if math.Abs(rq[0]-(-math.Exp(-1))) > 1e-5 {
		t.Errorf("rq(0): got %.10f, expected %.10f", rq[0], -math.Exp(-1))
	}
	if mem.StatsBackward().Steps == 0 {
		t.Error("expected backward steps recorded")
	}
}

func TestAdjointRepeatable(t *testing.T) {
	_, mem := newDecay(t, tightOptions())

	run := func() float64 {
		resetDecay(t, mem)
		if err := mem.Advance(1.0, nil, nil, nil); err != nil {
			t.Fatal(err)
		}
		if err := mem.ResetBackward([]float64{1}, []float64{0}, []float64{0}); err != nil {
			t.Fatal(err)
		}
		rx := make([]float64, 1)
		if err := mem.Retreat(0, rx, nil, nil); err != nil {
			t.Fatal(err)
		}
		return rx[0]
	}
	a := run()
	b := run()
	if a != b {
		t.Errorf("backward pass not repeatable: %.16g vs %.16g", a, b)
	}
}

// The backward problem keeps its own clock: a retreat must not move
// the forward output time, and forward copy-out at the reached time
// still works after a backward pass.
func TestRetreatKeepsForwardTime(t *testing.T) {
	_, mem := newDecay(t, tightOptions())
	resetDecay(t, mem)

	if err := mem.Advance(1.0, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := mem.ResetBackward([]float64{1}, []float64{0}, []float64{0}); err != nil {
		t.Fatal(err)
	}
	rx := make([]float64, 1)
	if err := mem.Retreat(0.5, rx, nil, nil); err != nil {
		t.Fatal(err)
	}
	if got := mem.Time(); got != 1.0 {
		t.Errorf("forward time after retreat: got %g, expected 1", got)
	}
	if got := mem.TimeBackward(); got != 0.5 {
		t.Errorf("backward time after retreat: got %g, expected 0.5", got)
	}
	x := make([]float64, 1)
	if err := mem.Advance(1.0, x, nil, nil); err != nil {
		t.Fatal(err)
	}
	if math.Abs(x[0]-math.Exp(-1)) > 1e-6 {
		t.Errorf("x(1) after retreat: got %.10f, expected %.10f", x[0], math.Exp(-1))
	}
}

func TestIterativeDecay(t *testing.T) {
	for _, precon := range []bool{false, true} {
		opts := tightOptions()
		opts.Iterative = true
		opts.Precondition = precon
		_, mem := newDecay(t, opts)
		resetDecay(t, mem)

		x := make([]float64, 1)
		if err := mem.Advance(1.0, x, nil, nil); err != nil {
			t.Fatalf("precon=%v: %v", precon, err)
		}
		if math.Abs(x[0]-math.Exp(-1)) > 1e-6 {
			t.Errorf("precon=%v: x(1): got %.10f, expected %.10f", precon, x[0], math.Exp(-1))
		}
	}
}

func TestInitXdotValidation(t *testing.T) {
	opts := DefaultOptions()
	opts.InitXdot = []float64{0, 0, 0} // state has nx+nz = 2 components
	var ce *ConfigurationError
	_, err := New("decay", decayProvider(), grid(0, 1, 10), opts)
	if !errors.As(err, &ce) {
		t.Errorf("expected ConfigurationError for bad init_xdot length, got %v", err)
	}
}

func TestOptionValidation(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Options)
	}{
		{"negative reltol", func(o *Options) { o.RelTol = -1 }},
		{"zero abstol", func(o *Options) { o.AbsTol = 0 }},
		{"bad abstolv", func(o *Options) { o.AbsTolV = []float64{1e-8} }},
		{"bad max steps", func(o *Options) { o.MaxSteps = 0 }},
		{"bad order", func(o *Options) { o.MaxOrder = 0 }},
		{"bad krylov", func(o *Options) { o.Iterative = true; o.MaxKrylov = 0 }},
		{"first time before start", func(o *Options) { o.FirstTime = -1 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			opts := DefaultOptions()
			c.mod(&opts)
			var ce *ConfigurationError
			if _, err := New("decay", decayProvider(), grid(0, 1, 10), opts); !errors.As(err, &ce) {
				t.Errorf("expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestBadGrid(t *testing.T) {
	var ce *ConfigurationError
	for _, g := range [][]float64{
		{0},
		{0, 0.5, 0.5, 1},
		{0, 0.7, 0.3},
	} {
		if _, err := New("decay", decayProvider(), g, DefaultOptions()); !errors.As(err, &ce) {
			t.Errorf("grid %v: expected ConfigurationError, got %v", g, err)
		}
	}
}

func TestRegisteredFunctions(t *testing.T) {
	sol, _ := newDecay(t, tightOptions())
	for _, name := range []string{"daeF", "quadF", "daeB", "quadB", "jacF", "jacB"} {
		if !sol.Functions().Has(name) {
			t.Errorf("expected %q in the function table", name)
		}
	}
}

func TestPluginRegistry(t *testing.T) {
	p, err := Lookup("bdf")
	if err != nil {
		t.Fatal(err)
	}
	if p.Creator == nil || p.Version == 0 {
		t.Error("bdf plugin is incomplete")
	}
	if err := Register(Plugin{Name: "bdf", Creator: New}); err == nil {
		t.Error("expected duplicate plugin registration to fail")
	}
	found := false
	for _, name := range Methods() {
		if name == "bdf" {
			found = true
		}
	}
	if !found {
		t.Error("expected bdf in method list")
	}
}

func TestEngineErrorFlag(t *testing.T) {
	opts := tightOptions()
	opts.MaxSteps = 1
	_, mem := newDecay(t, opts)
	resetDecay(t, mem)

	err := mem.Advance(1.0, nil, nil, nil)
	var ee *EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EngineError, got %v", err)
	}
	if ee.Flag != "TOO_MUCH_WORK" {
		t.Errorf("expected TOO_MUCH_WORK flag, got %q", ee.Flag)
	}
	if ee.Op != "advance" {
		t.Errorf("expected advance op, got %q", ee.Op)
	}
	if bdf.Name(errors.Unwrap(ee)) != "TOO_MUCH_WORK" {
		t.Error("wrapped engine error lost its flag")
	}
}

func TestJacobianAssembly(t *testing.T) {
	sol, _ := newDecay(t, tightOptions())
	jacF, err := sol.Functions().Get("jacF")
	if err != nil {
		t.Fatal(err)
	}
	jac := make([]float64, 4)
	err = jacF.Call(
		[][]float64{{0}, {1}, {1}, {2}, {10}},
		[][]float64{jac})
	if err != nil {
		t.Fatal(err)
	}
	// [[-p-cj, 0], [-1, 1]] at p=2, cj=10
	want := []float64{-12, 0, -1, 1}
	for i := range want {
		if math.Abs(jac[i]-want[i]) > 1e-4 {
			t.Errorf("jacF[%d]: got %g, expected %g", i, jac[i], want[i])
		}
	}
}
