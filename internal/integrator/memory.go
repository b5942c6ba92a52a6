package integrator

import (
	"github.com/san-kum/daesim/internal/bdf"
	"github.com/san-kum/daesim/internal/linsol"
)

// Interface is the narrow surface callers use to drive one
// integration instance. *Memory implements it.
type Interface interface {
	Reset(x, z, p []float64) error
	Advance(t float64, x, z, q []float64) error
	ResetBackward(rx, rz, rp []float64) error
	Retreat(t float64, rx, rz, rq []float64) error
	Close()
}

var _ Interface = (*Memory)(nil)

// Memory holds every mutable buffer of one integration instance: the
// engine, the linear solver contexts, the combined state vectors and
// the argument/result slot tables reused across oracle calls. A Memory
// belongs to one goroutine at a time.
type Memory struct {
	s *Solver

	eng  *bdf.Solver
	engB *bdf.Backward

	linF linsol.Solver
	linB linsol.Solver

	// combined forward state [x; z], its derivative and quadratures
	xz, xzdot, q []float64
	p            []float64

	// combined backward state [rx; rz], derivative and quadratures
	rxz, rxzdot, rq []float64
	rp              []float64

	// dense iteration matrices, row-major
	jacA, jacAB []float64

	tbuf, cjbuf [1]float64
	arg, res    [][]float64

	t          float64 // forward output time
	tB         float64 // backward output time
	wasReset   bool
	firstCallB bool
	ncheck     int
}

// InitMemory allocates an integration instance and wires the engine:
// residual, tolerances, the differential/algebraic partition, the
// linear solver path and, when the problem has a backward state, the
// checkpoint tape. Buffers are released again if any wiring step
// fails.
func (s *Solver) InitMemory() (m *Memory, err error) {
	d := s.dims
	n := d.Nx + d.Nz
	m = &Memory{
		s:          s,
		xz:         make([]float64, n),
		xzdot:      make([]float64, n),
		q:          make([]float64, d.Nq),
		p:          make([]float64, d.Np),
		arg:        make([][]float64, 9),
		res:        make([][]float64, 2),
		firstCallB: true,
	}
	defer func() {
		if err != nil {
			m.Close()
			m = nil
		}
	}()

	m.eng = bdf.New(n)
	if err = m.eng.Init(m.resF, s.grid[0], m.xz, m.xzdot); err != nil {
		return nil, check(err, "init_memory")
	}
	if len(s.opts.AbsTolV) > 0 {
		err = m.eng.SetVectorTolerances(s.opts.RelTol, s.opts.AbsTolV)
	} else {
		m.eng.SetTolerances(s.opts.RelTol, s.opts.AbsTol)
	}
	if err != nil {
		return nil, check(err, "init_memory")
	}
	id := make([]float64, n)
	for i := 0; i < d.Nx; i++ {
		id[i] = 1
	}
	if err = m.eng.SetID(id); err != nil {
		return nil, check(err, "init_memory")
	}
	m.eng.SetSuppressAlg(s.opts.SuppressAlgebraic)
	m.eng.SetMaxStep(s.opts.MaxStepSize)
	m.eng.SetMaxSteps(s.opts.MaxSteps)
	m.eng.SetMaxOrder(s.opts.MaxOrder)

	if s.opts.Iterative {
		m.eng.SetKrylov(s.opts.Family, s.opts.MaxKrylov)
		m.eng.SetJacTimes(m.jtimesF)
		if s.opts.Precondition {
			m.jacA = make([]float64, n*n)
			m.linF = s.newLin(n)
			m.eng.SetPreconditioner(m.psetupF, m.psolveF)
		}
	} else {
		m.jacA = make([]float64, n*n)
		m.linF = s.newLin(n)
		m.eng.InstallDirectSolver(m.lsetupF, m.lsolveF)
	}

	if d.Nq > 0 {
		if err = m.eng.QuadInit(m.rhsQ, m.q); err != nil {
			return nil, check(err, "init_memory")
		}
		m.eng.SetQuadErrCon(s.opts.QuadErrCon)
		if s.opts.QuadErrCon {
			m.eng.QuadTolerances(s.opts.RelTol, s.opts.AbsTol)
		}
	}

	if d.Nrx > 0 {
		nB := d.Nrx + d.Nrz
		m.rxz = make([]float64, nB)
		m.rxzdot = make([]float64, nB)
		m.rq = make([]float64, d.Nrq)
		m.rp = make([]float64, d.Nrp)
		m.eng.AdjInit(s.opts.StepsPerCheckpoint, s.opts.Interp)
	}

	m.t = s.grid[0]
	return m, nil
}

// Close releases the instance. Idempotent; the Memory must not be used
// afterwards.
func (m *Memory) Close() {
	if m.eng != nil {
		m.eng.Close()
		m.eng = nil
	}
	if m.engB != nil {
		m.engB.Close()
		m.engB = nil
	}
	m.linF, m.linB = nil, nil
	m.xz, m.xzdot, m.q, m.p = nil, nil, nil, nil
	m.rxz, m.rxzdot, m.rq, m.rp = nil, nil, nil, nil
	m.jacA, m.jacAB = nil, nil
}

// Reset places the instance at the start of the grid with the given
// state, parameters and quadrature zero, then corrects the initial
// conditions when configured to.
func (m *Memory) Reset(x, z, p []float64) error {
	s := m.s
	d := s.dims
	if len(x) != d.Nx || len(z) != d.Nz {
		return configErrf("reset: state has length %d+%d, want %d+%d", len(x), len(z), d.Nx, d.Nz)
	}
	if len(p) != d.Np {
		return configErrf("reset: parameter vector has length %d, want %d", len(p), d.Np)
	}
	copy(m.xz[:d.Nx], x)
	copy(m.xz[d.Nx:], z)
	copy(m.p, p)
	if len(s.opts.InitXdot) > 0 {
		copy(m.xzdot, s.opts.InitXdot)
	} else {
		clear(m.xzdot)
	}

	if err := m.eng.ReInit(s.grid[0], m.xz, m.xzdot); err != nil {
		return check(err, "reset")
	}
	if d.Nq > 0 {
		clear(m.q)
		if err := m.eng.QuadReInit(m.q); err != nil {
			return check(err, "reset")
		}
	}
	if d.Nrx > 0 {
		if err := m.eng.AdjReInit(); err != nil {
			return check(err, "reset")
		}
	}
	if s.opts.StopAtEnd {
		m.eng.SetStopTime(s.grid[len(s.grid)-1])
	}
	if s.opts.CalcIC {
		if err := m.eng.CalcIC(s.firstTime); err != nil {
			return check(err, "calc_ic")
		}
		m.eng.ConsistentIC(m.xz, m.xzdot)
	}
	m.t = s.grid[0]
	m.wasReset = true
	return nil
}

// Advance integrates forward to t and writes the state, algebraic
// variables and quadratures at t into the given slices (any may be
// nil). t may not precede the grid start, and with StopAtEnd set it
// may not pass the grid end. A target within 1e-9 of the current time
// is a no-op apart from the copy-out.
func (m *Memory) Advance(t float64, x, z, q []float64) error {
	s := m.s
	if !m.wasReset {
		return &DomainError{Op: "advance", T: t, Msg: "instance has not been reset"}
	}
	if t < s.grid[0] && !timesEqual(t, s.grid[0]) {
		return &DomainError{Op: "advance", T: t, Msg: "before the grid start"}
	}
	if last := s.grid[len(s.grid)-1]; s.opts.StopAtEnd && t > last && !timesEqual(t, last) {
		return &DomainError{Op: "advance", T: t, Msg: "past the grid end"}
	}
	if !timesEqual(t, m.t) {
		if t < m.t {
			return &DomainError{Op: "advance", T: t, Msg: "earlier than the current time"}
		}
		var err error
		if s.dims.Nrx > 0 {
			_, m.ncheck, err = m.eng.SolveF(t)
		} else {
			_, err = m.eng.Solve(t)
		}
		if err != nil {
			return check(err, "advance")
		}
		m.t = t
	}
	d := s.dims
	if x != nil {
		copy(x, m.xz[:d.Nx])
	}
	if z != nil {
		copy(z, m.xz[d.Nx:])
	}
	if q != nil {
		copy(q, m.q)
	}
	return nil
}

// ResetBackward places the backward problem at the end of the grid
// with the given adjoint seed. The backward engine is created lazily
// on the first call and reinitialized in place afterwards.
func (m *Memory) ResetBackward(rx, rz, rp []float64) error {
	s := m.s
	d := s.dims
	if d.Nrx == 0 {
		return configErrf("reset_backward: problem has no backward state")
	}
	if len(rx) != d.Nrx || len(rz) != d.Nrz {
		return configErrf("reset_backward: adjoint state has length %d+%d, want %d+%d",
			len(rx), len(rz), d.Nrx, d.Nrz)
	}
	if len(rp) != d.Nrp {
		return configErrf("reset_backward: adjoint parameter vector has length %d, want %d", len(rp), d.Nrp)
	}
	copy(m.rxz[:d.Nrx], rx)
	copy(m.rxz[d.Nrx:], rz)
	copy(m.rp, rp)
	clear(m.rxzdot)
	clear(m.rq)

	tEnd := s.grid[len(s.grid)-1]
	if m.firstCallB {
		if err := m.createBackward(tEnd); err != nil {
			return err
		}
		m.firstCallB = false
	} else {
		if err := m.engB.ReInitB(tEnd, m.rxz, m.rxzdot); err != nil {
			return check(err, "reset_backward")
		}
		if d.Nrq > 0 {
			if err := m.engB.QuadReInitB(m.rq); err != nil {
				return check(err, "reset_backward")
			}
		}
	}
	if s.calcICB {
		if err := m.engB.CalcICB(s.grid[0]); err != nil {
			return check(err, "calc_icB")
		}
		m.engB.ConsistentICB(m.rxz, m.rxzdot)
	}
	m.tB = tEnd
	return nil
}

func (m *Memory) createBackward(tEnd float64) error {
	s := m.s
	d := s.dims
	nB := d.Nrx + d.Nrz

	engB, err := m.eng.CreateB(m.resB, tEnd, m.rxz, m.rxzdot)
	if err != nil {
		return check(err, "reset_backward")
	}
	if len(s.opts.AbsTolV) > 0 && len(s.opts.AbsTolV) == nB {
		if err := engB.SetVectorTolerances(s.opts.RelTol, s.opts.AbsTolV); err != nil {
			engB.Close()
			return check(err, "reset_backward")
		}
	} else {
		engB.SetTolerances(s.opts.RelTol, s.opts.AbsTol)
	}
	idB := make([]float64, nB)
	for i := 0; i < d.Nrx; i++ {
		idB[i] = 1
	}
	if err := engB.SetID(idB); err != nil {
		engB.Close()
		return check(err, "reset_backward")
	}
	engB.SetSuppressAlg(s.opts.SuppressAlgebraic)
	engB.SetMaxStep(s.opts.MaxStepSize)
	engB.SetMaxSteps(s.opts.MaxSteps)
	engB.SetMaxOrder(s.opts.MaxOrder)

	if s.opts.Iterative {
		engB.SetKrylov(s.opts.Family, s.opts.MaxKrylov)
		engB.SetJacTimes(m.jtimesB)
		if s.opts.Precondition {
			m.jacAB = make([]float64, nB*nB)
			m.linB = s.newLin(nB)
			engB.SetPreconditioner(m.psetupB, m.psolveB)
		}
	} else {
		m.jacAB = make([]float64, nB*nB)
		m.linB = s.newLin(nB)
		engB.InstallDirectSolver(m.lsetupB, m.lsolveB)
	}

	if d.Nrq > 0 {
		if err := engB.QuadInitB(m.rhsQB, m.rq); err != nil {
			engB.Close()
			return check(err, "reset_backward")
		}
		engB.SetQuadErrCon(s.opts.QuadErrCon)
		if s.opts.QuadErrCon {
			engB.QuadTolerances(s.opts.RelTol, s.opts.AbsTol)
		}
	}
	m.engB = engB
	return nil
}

// Retreat integrates the backward problem to t (an earlier time) and
// writes the adjoint state and backward quadratures at t.
func (m *Memory) Retreat(t float64, rx, rz, rq []float64) error {
	s := m.s
	if m.engB == nil {
		return &DomainError{Op: "retreat", T: t, Msg: "backward problem has not been reset"}
	}
	if t < s.grid[0] && !timesEqual(t, s.grid[0]) {
		return &DomainError{Op: "retreat", T: t, Msg: "before the grid start"}
	}
	if t > m.tB && !timesEqual(t, m.tB) {
		return &DomainError{Op: "retreat", T: t, Msg: "later than the current backward time"}
	}
	if !timesEqual(t, m.tB) {
		if _, err := m.engB.SolveB(t); err != nil {
			return check(err, "retreat")
		}
		m.tB = t
	}
	d := s.dims
	if rx != nil {
		copy(rx, m.rxz[:d.Nrx])
	}
	if rz != nil {
		copy(rz, m.rxz[d.Nrx:])
	}
	if rq != nil {
		copy(rq, m.rq)
	}
	return nil
}

// Time returns the current forward output time of the instance. The
// backward problem keeps its own clock, so interleaving Retreat calls
// does not disturb it.
func (m *Memory) Time() float64 { return m.t }

// TimeBackward returns the current backward output time; meaningful
// only after ResetBackward.
func (m *Memory) TimeBackward() float64 { return m.tB }

// Checkpoints reports how many checkpoint groups the forward tape
// holds for the backward pass.
func (m *Memory) Checkpoints() int { return m.ncheck }

// StatsForward returns the forward engine statistics.
func (m *Memory) StatsForward() bdf.Stats { return m.eng.Stats() }

// StatsBackward returns the backward engine statistics; zero before
// the first ResetBackward.
func (m *Memory) StatsBackward() bdf.Stats {
	if m.engB == nil {
		return bdf.Stats{}
	}
	return m.engB.Stats()
}
