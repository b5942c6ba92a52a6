package bdf

import (
	"errors"
	"math"
)

// ResFn evaluates the DAE residual F(t, y, y') into rr. A recoverable
// failure (wrap Recoverable) makes the engine retry the step with a
// smaller step size; any other error aborts the solve.
type ResFn func(t float64, yy, yp, rr []float64) error

// QuadFn evaluates the quadrature right-hand side q' = f(t, y, y').
type QuadFn func(t float64, yy, yp, qdot []float64) error

// DirectSetupFn prepares an externally factorized iteration matrix
// J = dF/dy + cj*dF/dy' at the given point.
type DirectSetupFn func(t float64, yy, yp []float64, cj float64) error

// DirectSolveFn overwrites b with J^{-1} b. cjratio is cj divided by
// the cj value at the last setup; solvers compensating for a stale
// factorization may rescale with it.
type DirectSolveFn func(b []float64, t float64, yy, yp []float64, cj, cjratio float64) error

// JacTimesFn computes jv = J v for the iteration matrix.
type JacTimesFn func(t float64, yy, yp, v, jv []float64, cj float64) error

// PrecSetupFn and PrecSolveFn are the preconditioner hooks of the
// Krylov path. PrecSolveFn overwrites z with P^{-1} r; r and z may
// alias.
type PrecSetupFn func(t float64, yy, yp []float64, cj float64) error
type PrecSolveFn func(t float64, yy, yp, r, z []float64, cj float64) error

// InterpType selects the checkpoint interpolation scheme used to
// reconstruct the forward trajectory during backward integration.
type InterpType int

const (
	Hermite InterpType = iota
	Polynomial
)

// Stats are the integrator statistics captured after each advance.
type Stats struct {
	Steps        int
	ResEvals     int
	LinSetups    int
	ErrTestFails int
	LastOrder    int
	CurrentOrder int
	FirstStep    float64
	LastStep     float64
	CurrentStep  float64
	CurrentTime  float64
}

const (
	maxNewtonIter = 4
	newtonTol     = 0.33
	maxStepFails  = 10
	uround        = 2.220446049250313e-16
)

// internal retry signal: shrink the step and try again.
var errStepRetry = errors.New("bdf: retry step")

type histPoint struct {
	t     float64
	y, yp []float64
}

// Solver integrates one DAE instance. It is not safe for concurrent
// use; run independent instances on separate goroutines instead.
type Solver struct {
	n   int
	res ResFn
	dir float64 // +1 integrating forward in t, -1 backward

	// tolerances and limits
	rtol        float64
	atol        []float64 // length 1 (scalar) or n
	id          []float64 // 1 differential, 0 algebraic; nil = all differential
	suppressAlg bool
	hmax        float64 // 0 = no limit
	maxSteps    int
	maxOrder    int
	tstop       float64
	hasTstop    bool

	// linear solver wiring (exactly one of direct / krylov)
	dsetup DirectSetupFn
	dsolve DirectSolveFn
	kry    *krylov

	// registered output buffers
	uyy, uyp []float64

	// step state
	t          float64
	h          float64
	order      int
	lastEst    float64
	cjLast     float64
	cjRatio    float64
	forceSetup bool
	started    bool

	hist  [3]histPoint
	nhist int

	yn, ypn, ypred, rest, delta, rr, ewt []float64

	quad *quadState
	adj  *adjointState

	stats Stats
}

// New creates a solver for systems of size n with default tolerances.
func New(n int) *Solver {
	return &Solver{
		n:        n,
		dir:      1,
		rtol:     1e-6,
		atol:     []float64{1e-8},
		maxSteps: 10000,
		maxOrder: 2,
	}
}

// Init registers the residual and the state buffers and sets the
// initial time. The engine copies yy and yp in; Solve writes the
// solution at the requested time back into them.
func (s *Solver) Init(res ResFn, t0 float64, yy, yp []float64) error {
	if len(yy) != s.n || len(yp) != s.n {
		return engErr(FlagIllInput, "state buffers have length %d/%d, want %d", len(yy), len(yp), s.n)
	}
	s.res = res
	s.uyy, s.uyp = yy, yp
	if s.yn == nil {
		s.yn = make([]float64, s.n)
		s.ypn = make([]float64, s.n)
		s.ypred = make([]float64, s.n)
		s.rest = make([]float64, s.n)
		s.delta = make([]float64, s.n)
		s.rr = make([]float64, s.n)
		s.ewt = make([]float64, s.n)
		for i := range s.hist {
			s.hist[i].y = make([]float64, s.n)
			s.hist[i].yp = make([]float64, s.n)
		}
	}
	return s.ReInit(t0, yy, yp)
}

// ReInit restarts the integration at t0 with new initial values,
// keeping all option settings.
func (s *Solver) ReInit(t0 float64, yy, yp []float64) error {
	if s.res == nil {
		return engErr(FlagIllInput, "reinit before init")
	}
	copy(s.yn, yy)
	copy(s.ypn, yp)
	s.t = t0
	s.nhist = 0
	s.started = false
	s.forceSetup = true
	s.cjLast = 0
	s.order = 1
	s.stats = Stats{CurrentTime: t0}
	return nil
}

// Close releases the solver's buffers. The solver must not be used
// afterwards. Close is idempotent.
func (s *Solver) Close() {
	s.res = nil
	s.yn, s.ypn, s.ypred, s.rest, s.delta, s.rr, s.ewt = nil, nil, nil, nil, nil, nil, nil
	for i := range s.hist {
		s.hist[i] = histPoint{}
	}
	s.quad = nil
	s.adj = nil
}

// SetTolerances sets scalar relative and absolute tolerances.
func (s *Solver) SetTolerances(rtol, atol float64) {
	s.rtol = rtol
	s.atol = []float64{atol}
}

// SetVectorTolerances sets a per-component absolute tolerance.
func (s *Solver) SetVectorTolerances(rtol float64, atol []float64) error {
	if len(atol) != s.n {
		return engErr(FlagIllInput, "absolute tolerance vector has length %d, want %d", len(atol), s.n)
	}
	s.rtol = rtol
	s.atol = append([]float64(nil), atol...)
	return nil
}

// SetID declares the differential (1) / algebraic (0) partition. The
// vector is fixed for the lifetime of the instance.
func (s *Solver) SetID(id []float64) error {
	if len(id) != s.n {
		return engErr(FlagIllInput, "id vector has length %d, want %d", len(id), s.n)
	}
	s.id = append([]float64(nil), id...)
	return nil
}

// SetSuppressAlg excludes algebraic components from the local error
// test.
func (s *Solver) SetSuppressAlg(on bool) { s.suppressAlg = on }

// SetMaxStep bounds the step magnitude; 0 removes the bound.
func (s *Solver) SetMaxStep(h float64) { s.hmax = math.Abs(h) }

// SetMaxSteps bounds the number of internal steps per Solve call.
func (s *Solver) SetMaxSteps(n int) {
	if n > 0 {
		s.maxSteps = n
	}
}

// SetMaxOrder caps the BDF order (1 or 2).
func (s *Solver) SetMaxOrder(k int) {
	if k >= 1 && k <= 2 {
		s.maxOrder = k
	}
}

// SetStopTime forbids integrating past t.
func (s *Solver) SetStopTime(t float64) {
	s.tstop = t
	s.hasTstop = true
}

// InstallDirectSolver wires externally factorized linear solves into
// the Newton corrector. This is the engine's internal-integration
// seam: there is no generic direct-solver slot, so adapters supplying
// their own factorization install these two hooks directly.
func (s *Solver) InstallDirectSolver(setup DirectSetupFn, solve DirectSolveFn) {
	s.dsetup = setup
	s.dsolve = solve
	s.kry = nil
}

// Time returns the internal integration time (the end of the last
// accepted step, which may lie past the last requested output time).
func (s *Solver) Time() float64 { return s.t }

// Stats returns a copy of the current statistics.
func (s *Solver) Stats() Stats {
	st := s.stats
	st.CurrentTime = s.t
	st.CurrentStep = s.h
	st.CurrentOrder = s.order
	return st
}

// Solve integrates to tout in normal mode and writes the solution at
// tout into the buffers registered at Init. It returns the reached
// time (tout on success).
func (s *Solver) Solve(tout float64) (float64, error) {
	return s.advance(tout, false)
}

func (s *Solver) advance(tout float64, taping bool) (float64, error) {
	if s.res == nil {
		return 0, engErr(FlagIllInput, "solver not initialized")
	}
	if s.dsolve == nil && s.kry == nil {
		return 0, engErr(FlagIllInput, "no linear solver attached")
	}
	if s.hasTstop && s.dir*(tout-s.tstop) > uround*math.Abs(s.tstop) {
		return 0, engErr(FlagIllInput, "tout %g beyond stop time %g", tout, s.tstop)
	}
	if !s.started {
		if err := s.start(tout); err != nil {
			return s.t, err
		}
	}
	nsteps := 0
	for s.dir*(tout-s.t) > 0 {
		if nsteps >= s.maxSteps {
			return s.t, engErr(FlagTooMuchWork, "%d steps taken before reaching t = %g", nsteps, tout)
		}
		if err := s.step(taping); err != nil {
			return s.t, err
		}
		nsteps++
	}
	if err := s.interpolate(tout, s.uyy, s.uyp); err != nil {
		return s.t, err
	}
	if s.quad != nil {
		s.interpolateQuad(tout)
	}
	return tout, nil
}

func (s *Solver) start(tout float64) error {
	span := tout - s.t
	if span == 0 || s.dir*span < 0 {
		return engErr(FlagTooClose, "tout %g does not advance from t = %g", tout, s.t)
	}
	s.updateEwt()

	// Conservative first step, shortened when the initial derivative
	// is large on the tolerance scale.
	h := 1e-3 * span
	if ypw := s.wrms(s.ypn, s.ewt); ypw > 0 && math.Abs(h)*ypw > 0.5 {
		h = s.dir * 0.5 / ypw
	}
	if s.hmax > 0 && math.Abs(h) > s.hmax {
		h = s.dir * s.hmax
	}
	s.h = h
	s.order = 1
	s.pushHist()
	if s.quad != nil {
		if err := s.startQuad(); err != nil {
			return err
		}
	}
	if s.adj != nil && len(s.adj.tape) == 0 {
		s.adj.record(s.t, s.yn, s.ypn)
	}
	s.started = true
	return nil
}

// step takes one accepted BDF step, retrying internally on corrector
// and error-test failures.
func (s *Solver) step(taping bool) error {
	s.updateEwt()
	fails := 0
	for {
		h := s.h
		if s.hasTstop && s.dir*(s.t+h-s.tstop) > 0 {
			h = s.tstop - s.t
		}
		tn := s.t + h
		q := s.order
		if s.nhist < 2 {
			q = 1
		}
		cj := s.coeffs(q, h)
		s.predict(q, tn)

		err := s.newton(tn, cj)
		if err == nil {
			err = s.errorTest(q, tn, h)
			if err == nil {
				s.accept(q, tn, h, taping)
				return nil
			}
		}
		if !errors.Is(err, errStepRetry) {
			return err
		}
		fails++
		if fails >= maxStepFails {
			return engErr(FlagErrFail, "step at t = %g failed %d times", s.t, fails)
		}
		s.h *= 0.25
		s.order = 1
		s.forceSetup = true
		if math.Abs(s.h) < 10*uround*math.Max(1, math.Abs(s.t)) {
			return engErr(FlagConvFail, "step size underflow at t = %g", s.t)
		}
	}
}

// coeffs fills s.rest with the history part of the BDF formula
// y' = cj*y + rest and returns cj.
func (s *Solver) coeffs(q int, h float64) float64 {
	y1 := s.hist[0].y
	if q == 1 {
		cj := 1 / h
		for i := range s.rest {
			s.rest[i] = -y1[i] / h
		}
		return cj
	}
	h2 := s.hist[0].t - s.hist[1].t
	y2 := s.hist[1].y
	a0 := (2*h + h2) / (h * (h + h2))
	a1 := -(h + h2) / (h * h2)
	a2 := h / (h2 * (h + h2))
	for i := range s.rest {
		s.rest[i] = a1*y1[i] + a2*y2[i]
	}
	return a0
}

// predict extrapolates the history to tn into s.ypred.
func (s *Solver) predict(q int, tn float64) {
	p1 := &s.hist[0]
	d := tn - p1.t
	if q == 1 || s.nhist < 2 {
		for i := range s.ypred {
			s.ypred[i] = p1.y[i] + d*p1.yp[i]
		}
		return
	}
	p2 := &s.hist[1]
	dt2 := p2.t - p1.t
	for i := range s.ypred {
		c := (p2.y[i] - p1.y[i] - p1.yp[i]*dt2) / (dt2 * dt2)
		s.ypred[i] = p1.y[i] + d*p1.yp[i] + c*d*d
	}
}

// newton runs the corrector at tn, leaving the solution in s.yn/s.ypn.
// A stale iteration matrix is refreshed once before the step is
// declared failed.
func (s *Solver) newton(tn, cj float64) error {
	ratio := 0.0
	if s.cjLast != 0 {
		ratio = cj / s.cjLast
	}
	setup := s.forceSetup || ratio < 0.6 || ratio > 5.0/3.0
	for attempt := 0; attempt < 2; attempt++ {
		copy(s.yn, s.ypred)
		if setup {
			if err := s.lsetup(tn, cj, s.ypred, s.ypn); err != nil {
				if errors.Is(err, Recoverable) {
					return errStepRetry
				}
				return wrapErr(FlagLSetupFail, "linear solver setup", err)
			}
			s.stats.LinSetups++
			s.cjLast = cj
			s.forceSetup = false
		}
		s.cjRatio = cj / s.cjLast
		err := s.newtonIterate(tn, cj)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errStepRetry) {
			return err
		}
		if setup {
			// Fresh matrix did not help; shrink the step.
			return errStepRetry
		}
		setup = true
	}
	return errStepRetry
}

func (s *Solver) newtonIterate(tn, cj float64) error {
	prev := math.Inf(1)
	for m := 0; m < maxNewtonIter; m++ {
		for i := range s.ypn {
			s.ypn[i] = cj*s.yn[i] + s.rest[i]
		}
		s.stats.ResEvals++
		if err := s.res(tn, s.yn, s.ypn, s.rr); err != nil {
			if errors.Is(err, Recoverable) {
				return errStepRetry
			}
			return wrapErr(FlagResFail, "residual evaluation", err)
		}
		copy(s.delta, s.rr)
		if err := s.linSolve(tn, cj, s.yn, s.ypn, s.delta); err != nil {
			if errors.Is(err, Recoverable) {
				return errStepRetry
			}
			return wrapErr(FlagLSolveFail, "linear solve", err)
		}
		for i := range s.yn {
			s.yn[i] -= s.delta[i]
		}
		norm := s.wrms(s.delta, s.ewt)
		if norm <= newtonTol {
			for i := range s.ypn {
				s.ypn[i] = cj*s.yn[i] + s.rest[i]
			}
			return nil
		}
		if norm >= 2*prev {
			return errStepRetry
		}
		prev = norm
	}
	return errStepRetry
}

// errorTest estimates the local truncation error of the accepted
// corrector value against the predictor.
func (s *Solver) errorTest(q int, tn, h float64) error {
	c := 0.5
	if q == 2 {
		c = 1.0 / 3.0
	}
	for i := range s.delta {
		s.delta[i] = s.yn[i] - s.ypred[i]
	}
	est := c * s.wrmsMasked(s.delta, s.ewt)
	if s.quad != nil {
		qe, err := s.correctQuad(q, tn, h)
		if err != nil {
			return err
		}
		if qe > est {
			est = qe
		}
	}
	if est <= 1 {
		s.lastEst = est
		return nil
	}
	s.stats.ErrTestFails++
	return errStepRetry
}

func (s *Solver) accept(q int, tn, h float64, taping bool) {
	s.t = tn
	s.pushHist()
	if s.quad != nil {
		s.acceptQuad()
	}
	if taping && s.adj != nil {
		s.adj.record(tn, s.yn, s.ypn)
	}
	s.stats.Steps++
	if s.stats.Steps == 1 {
		s.stats.FirstStep = h
	}
	s.stats.LastStep = h
	s.stats.LastOrder = q

	if q < s.maxOrder && s.nhist >= 2 {
		s.order = q + 1
	}
	eta := 0.9 * math.Pow(math.Max(s.lastEst, 1e-10), -1/float64(q+1))
	eta = math.Min(2.0, math.Max(0.5, eta))
	s.h = h * eta
	if s.hmax > 0 && math.Abs(s.h) > s.hmax {
		s.h = s.dir * s.hmax
	}
}

func (s *Solver) pushHist() {
	old := s.hist[2]
	s.hist[2] = s.hist[1]
	s.hist[1] = s.hist[0]
	s.hist[0] = old
	s.hist[0].t = s.t
	copy(s.hist[0].y, s.yn)
	copy(s.hist[0].yp, s.ypn)
	if s.nhist < 3 {
		s.nhist++
	}
}

func (s *Solver) lsetup(t, cj float64, yy, yp []float64) error {
	if s.dsetup != nil {
		return s.dsetup(t, yy, yp, cj)
	}
	if s.kry != nil && s.kry.psetup != nil {
		return s.kry.psetup(t, yy, yp, cj)
	}
	return nil
}

func (s *Solver) linSolve(t, cj float64, yy, yp []float64, b []float64) error {
	if s.dsolve != nil {
		return s.dsolve(b, t, yy, yp, cj, s.cjRatio)
	}
	return s.kry.solve(s, t, cj, yy, yp, b)
}

// updateEwt refreshes the error weights 1/(rtol*|y| + atol).
func (s *Solver) updateEwt() {
	for i := range s.ewt {
		atol := s.atol[0]
		if len(s.atol) == s.n {
			atol = s.atol[i]
		}
		s.ewt[i] = 1 / (s.rtol*math.Abs(s.yn[i]) + atol)
	}
}

func (s *Solver) wrms(v, w []float64) float64 {
	sum := 0.0
	for i := range v {
		x := v[i] * w[i]
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(v)))
}

// wrmsMasked is wrms with algebraic components excluded when
// suppress_algebraic is active.
func (s *Solver) wrmsMasked(v, w []float64) float64 {
	if !s.suppressAlg || s.id == nil {
		return s.wrms(v, w)
	}
	sum := 0.0
	for i := range v {
		x := v[i] * w[i] * s.id[i]
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(v)))
}

// interpolate writes the Hermite dense-output solution at t into yy
// and yp. t must lie within the retained history span.
func (s *Solver) interpolate(t float64, yy, yp []float64) error {
	if s.nhist < 2 || t == s.hist[0].t {
		copy(yy, s.hist[0].y)
		copy(yp, s.hist[0].yp)
		return nil
	}
	// Locate the bracketing pair, newest first.
	k := 0
	for k+1 < s.nhist-1 && s.dir*(t-s.hist[k+1].t) < 0 {
		k++
	}
	a, b := &s.hist[k+1], &s.hist[k]
	if s.dir*(t-a.t) < -uround*math.Max(1, math.Abs(t)) && k+1 == s.nhist-1 {
		return engErr(FlagBadT, "t = %g is before the retained history (oldest %g)", t, a.t)
	}
	hermite(a.t, a.y, a.yp, b.t, b.y, b.yp, t, yy, yp)
	return nil
}

// hermite evaluates the cubic Hermite interpolant through
// (ta, ya, ypa) and (tb, yb, ypb) at t, writing value and derivative.
// yp may be nil.
func hermite(ta float64, ya, ypa []float64, tb float64, yb, ypb []float64, t float64, y, yp []float64) {
	h := tb - ta
	th := (t - ta) / h
	h00 := (1 + 2*th) * (1 - th) * (1 - th)
	h10 := th * (1 - th) * (1 - th)
	h01 := th * th * (3 - 2*th)
	h11 := th * th * (th - 1)
	d00 := (6*th*th - 6*th) / h
	d10 := 3*th*th - 4*th + 1
	d01 := (-6*th*th + 6*th) / h
	d11 := 3*th*th - 2*th
	for i := range y {
		y[i] = h00*ya[i] + h10*h*ypa[i] + h01*yb[i] + h11*h*ypb[i]
		if yp != nil {
			yp[i] = d00*ya[i] + d10*ypa[i] + d01*yb[i] + d11*ypb[i]
		}
	}
}
