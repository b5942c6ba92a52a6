package bdf

import (
	"math"
	"sort"
)

// Backward callback shapes mirror the forward ones with the
// interpolated forward trajectory prepended: the engine reconstructs
// (yy, yp) at t from the checkpoint tape before each invocation.
type (
	BackResFn         func(t float64, yy, yp, yyB, ypB, rr []float64) error
	BackQuadFn        func(t float64, yy, yp, yyB, ypB, qdot []float64) error
	BackDirectSetupFn func(t float64, yy, yp, yyB, ypB []float64, cj float64) error
	BackDirectSolveFn func(b []float64, t float64, yy, yp, yyB, ypB []float64, cj, cjratio float64) error
	BackJacTimesFn    func(t float64, yy, yp, yyB, ypB, v, jv []float64, cj float64) error
	BackPrecSetupFn   func(t float64, yy, yp, yyB, ypB []float64, cj float64) error
	BackPrecSolveFn   func(t float64, yy, yp, yyB, ypB, r, z []float64, cj float64) error
)

type tapePoint struct {
	t     float64
	y, yp []float64
}

type adjointState struct {
	stepsPerCheck int
	interp        InterpType
	tape          []tapePoint
}

func (a *adjointState) reset() { a.tape = a.tape[:0] }

func (a *adjointState) record(t float64, y, yp []float64) {
	a.tape = append(a.tape, tapePoint{
		t:  t,
		y:  append([]float64(nil), y...),
		yp: append([]float64(nil), yp...),
	})
}

// AdjInit enables taping. Forward integration must then run through
// SolveF so the trajectory is recorded for backward re-interpolation.
func (s *Solver) AdjInit(stepsPerCheck int, interp InterpType) {
	if stepsPerCheck <= 0 {
		stepsPerCheck = 20
	}
	s.adj = &adjointState{stepsPerCheck: stepsPerCheck, interp: interp}
}

// AdjReInit discards the recorded forward trajectory.
func (s *Solver) AdjReInit() error {
	if s.adj == nil {
		return engErr(FlagIllInput, "adjoint reinit before adjoint init")
	}
	s.adj.reset()
	return nil
}

// SolveF is Solve in taping mode: every accepted step is recorded so
// a backward problem can interpolate the forward solution. It returns
// the reached time and the checkpoint count.
func (s *Solver) SolveF(tout float64) (float64, int, error) {
	if s.adj == nil {
		return 0, 0, engErr(FlagIllInput, "SolveF before adjoint init")
	}
	tret, err := s.advance(tout, true)
	return tret, s.Checkpoints(), err
}

// Checkpoints reports how many checkpoint groups the tape currently
// spans.
func (s *Solver) Checkpoints() int {
	if s.adj == nil || len(s.adj.tape) == 0 {
		return 0
	}
	return (len(s.adj.tape) + s.adj.stepsPerCheck - 1) / s.adj.stepsPerCheck
}

// Interp reconstructs the forward solution at t from the tape using
// the configured interpolation scheme.
func (s *Solver) Interp(t float64, yy, yp []float64) error {
	a := s.adj
	if a == nil || len(a.tape) == 0 {
		return engErr(FlagIllInput, "no forward trajectory recorded")
	}
	tape := a.tape
	first, last := tape[0].t, tape[len(tape)-1].t
	slack := 1e-8 * math.Max(1, math.Abs(last-first))
	if t < first-slack || t > last+slack {
		return engErr(FlagBadT, "t = %g outside the taped interval [%g, %g]", t, first, last)
	}
	if len(tape) == 1 {
		copy(yy, tape[0].y)
		copy(yp, tape[0].yp)
		return nil
	}
	// First index with tape[i].t >= t.
	i := sort.Search(len(tape), func(k int) bool { return tape[k].t >= t })
	if i == 0 {
		i = 1
	}
	if i == len(tape) {
		i = len(tape) - 1
	}
	aPt, bPt := &tape[i-1], &tape[i]

	if a.interp == Polynomial && len(tape) >= 3 {
		j := i - 1
		if j == 0 {
			j = 1
		}
		if j == len(tape)-1 {
			j = len(tape) - 2
		}
		lagrange3(&tape[j-1], &tape[j], &tape[j+1], t, yy, yp)
		return nil
	}
	hermite(aPt.t, aPt.y, aPt.yp, bPt.t, bPt.y, bPt.yp, t, yy, yp)
	return nil
}

// lagrange3 evaluates the quadratic through three tape points and its
// derivative.
func lagrange3(p0, p1, p2 *tapePoint, t float64, y, yp []float64) {
	t0, t1, t2 := p0.t, p1.t, p2.t
	l0 := (t - t1) * (t - t2) / ((t0 - t1) * (t0 - t2))
	l1 := (t - t0) * (t - t2) / ((t1 - t0) * (t1 - t2))
	l2 := (t - t0) * (t - t1) / ((t2 - t0) * (t2 - t1))
	d0 := (2*t - t1 - t2) / ((t0 - t1) * (t0 - t2))
	d1 := (2*t - t0 - t2) / ((t1 - t0) * (t1 - t2))
	d2 := (2*t - t0 - t1) / ((t2 - t0) * (t2 - t1))
	for i := range y {
		y[i] = l0*p0.y[i] + l1*p1.y[i] + l2*p2.y[i]
		if yp != nil {
			yp[i] = d0*p0.y[i] + d1*p1.y[i] + d2*p2.y[i]
		}
	}
}

// Backward integrates an adjoint problem in decreasing time against
// the forward solver's tape.
type Backward struct {
	fwd     *Solver
	inner   *Solver
	ty, typ []float64
}

// CreateB builds the backward problem anchored at t0 (normally the end
// of the forward interval). yyB and ypB follow the same registered-
// buffer contract as Init.
func (s *Solver) CreateB(res BackResFn, t0 float64, yyB, ypB []float64) (*Backward, error) {
	if s.adj == nil {
		return nil, engErr(FlagIllInput, "backward problem requires adjoint init")
	}
	b := &Backward{
		fwd:   s,
		inner: New(len(yyB)),
		ty:    make([]float64, s.n),
		typ:   make([]float64, s.n),
	}
	b.inner.dir = -1
	// Backward steps must stay inside the taped interval, or the
	// wrapped residual has nothing to interpolate from.
	if tp := s.adj.tape; len(tp) > 0 {
		b.inner.SetStopTime(tp[0].t)
	}
	wrapped := func(t float64, yy, yp, rr []float64) error {
		if err := s.Interp(t, b.ty, b.typ); err != nil {
			return err
		}
		return res(t, b.ty, b.typ, yy, yp, rr)
	}
	if err := b.inner.Init(wrapped, t0, yyB, ypB); err != nil {
		return nil, err
	}
	return b, nil
}

// ReInitB restarts the backward problem in place. The stop time is
// refreshed from the forward tape, which may have been re-recorded
// since CreateB.
func (b *Backward) ReInitB(t0 float64, yyB, ypB []float64) error {
	if tp := b.fwd.adj.tape; len(tp) > 0 {
		b.inner.SetStopTime(tp[0].t)
	}
	return b.inner.ReInit(t0, yyB, ypB)
}

func (b *Backward) SetTolerances(rtol, atol float64) { b.inner.SetTolerances(rtol, atol) }

func (b *Backward) SetVectorTolerances(rtol float64, atol []float64) error {
	return b.inner.SetVectorTolerances(rtol, atol)
}

func (b *Backward) SetID(id []float64) error { return b.inner.SetID(id) }
func (b *Backward) SetSuppressAlg(on bool)   { b.inner.SetSuppressAlg(on) }
func (b *Backward) SetMaxStep(h float64)     { b.inner.SetMaxStep(h) }
func (b *Backward) SetMaxSteps(n int)        { b.inner.SetMaxSteps(n) }
func (b *Backward) SetMaxOrder(k int)        { b.inner.SetMaxOrder(k) }

// InstallDirectSolver mirrors Solver.InstallDirectSolver with the
// forward trajectory interpolated into the hook arguments.
func (b *Backward) InstallDirectSolver(setup BackDirectSetupFn, solve BackDirectSolveFn) {
	b.inner.InstallDirectSolver(
		func(t float64, yy, yp []float64, cj float64) error {
			if err := b.fwd.Interp(t, b.ty, b.typ); err != nil {
				return err
			}
			return setup(t, b.ty, b.typ, yy, yp, cj)
		},
		func(bv []float64, t float64, yy, yp []float64, cj, cjratio float64) error {
			if err := b.fwd.Interp(t, b.ty, b.typ); err != nil {
				return err
			}
			return solve(bv, t, b.ty, b.typ, yy, yp, cj, cjratio)
		},
	)
}

func (b *Backward) SetKrylov(f Family, maxDim int) { b.inner.SetKrylov(f, maxDim) }

func (b *Backward) SetJacTimes(jt BackJacTimesFn) {
	b.inner.SetJacTimes(func(t float64, yy, yp, v, jv []float64, cj float64) error {
		if err := b.fwd.Interp(t, b.ty, b.typ); err != nil {
			return err
		}
		return jt(t, b.ty, b.typ, yy, yp, v, jv, cj)
	})
}

func (b *Backward) SetPreconditioner(setup BackPrecSetupFn, solve BackPrecSolveFn) {
	var ps PrecSetupFn
	var sv PrecSolveFn
	if setup != nil {
		ps = func(t float64, yy, yp []float64, cj float64) error {
			if err := b.fwd.Interp(t, b.ty, b.typ); err != nil {
				return err
			}
			return setup(t, b.ty, b.typ, yy, yp, cj)
		}
	}
	if solve != nil {
		sv = func(t float64, yy, yp, r, z []float64, cj float64) error {
			if err := b.fwd.Interp(t, b.ty, b.typ); err != nil {
				return err
			}
			return solve(t, b.ty, b.typ, yy, yp, r, z, cj)
		}
	}
	b.inner.SetPreconditioner(ps, sv)
}

// QuadInitB attaches the backward quadratures.
func (b *Backward) QuadInitB(fq BackQuadFn, q []float64) error {
	return b.inner.QuadInit(func(t float64, yy, yp, qdot []float64) error {
		if err := b.fwd.Interp(t, b.ty, b.typ); err != nil {
			return err
		}
		return fq(t, b.ty, b.typ, yy, yp, qdot)
	}, q)
}

func (b *Backward) QuadReInitB(q []float64) error     { return b.inner.QuadReInit(q) }
func (b *Backward) SetQuadErrCon(on bool)             { b.inner.SetQuadErrCon(on) }
func (b *Backward) QuadTolerances(rtol, atol float64) { b.inner.QuadTolerances(rtol, atol) }

// CalcICB corrects the backward initial conditions; tout1 is the first
// backward output time (normally the start of the forward interval).
func (b *Backward) CalcICB(tout1 float64) error { return b.inner.CalcIC(tout1) }

// ConsistentICB copies the corrected backward state and derivative.
func (b *Backward) ConsistentICB(yy, yp []float64) { b.inner.ConsistentIC(yy, yp) }

// SolveB integrates the backward problem to tout (tout earlier than
// the current backward time) and fills the registered buffers.
func (b *Backward) SolveB(tout float64) (float64, error) { return b.inner.Solve(tout) }

func (b *Backward) Time() float64 { return b.inner.Time() }
func (b *Backward) Stats() Stats  { return b.inner.Stats() }
func (b *Backward) Close()        { b.inner.Close() }
