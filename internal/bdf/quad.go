package bdf

import (
	"errors"
	"math"
)

type qPoint struct {
	t       float64
	q, qdot []float64
}

type quadState struct {
	nq      int
	fq      QuadFn
	uq      []float64
	hist    [3]qPoint
	nhist   int
	qn      []float64
	qdotn   []float64
	qNew    []float64
	qdotNew []float64
	qpred   []float64
	qewt    []float64
	errCon  bool
	rtol    float64
	atol    float64
}

// QuadInit attaches a quadrature right-hand side. q is both the
// initial value and the buffer Solve writes quadrature results into.
func (s *Solver) QuadInit(fq QuadFn, q []float64) error {
	nq := len(q)
	if nq == 0 {
		return engErr(FlagIllInput, "empty quadrature buffer")
	}
	qs := &quadState{
		nq: nq, fq: fq, uq: q,
		qn:      make([]float64, nq),
		qdotn:   make([]float64, nq),
		qNew:    make([]float64, nq),
		qdotNew: make([]float64, nq),
		qpred:   make([]float64, nq),
		qewt:    make([]float64, nq),
		rtol:    s.rtol,
		atol:    1e-8,
	}
	for i := range qs.hist {
		qs.hist[i].q = make([]float64, nq)
		qs.hist[i].qdot = make([]float64, nq)
	}
	copy(qs.qn, q)
	s.quad = qs
	return nil
}

// QuadReInit restarts quadrature accumulation from the values in q.
func (s *Solver) QuadReInit(q []float64) error {
	if s.quad == nil {
		return engErr(FlagIllInput, "quadrature reinit before init")
	}
	if len(q) != s.quad.nq {
		return engErr(FlagIllInput, "quadrature buffer has length %d, want %d", len(q), s.quad.nq)
	}
	s.quad.uq = q
	copy(s.quad.qn, q)
	s.quad.nhist = 0
	return nil
}

// SetQuadErrCon includes the quadratures in the local error test, so
// quadrature accuracy feeds back into step-size control.
func (s *Solver) SetQuadErrCon(on bool) {
	if s.quad != nil {
		s.quad.errCon = on
	}
}

// QuadTolerances sets the tolerances used when quadratures take part
// in error control.
func (s *Solver) QuadTolerances(rtol, atol float64) {
	if s.quad != nil {
		s.quad.rtol = rtol
		s.quad.atol = atol
	}
}

// startQuad seeds the quadrature history at the initial point.
func (s *Solver) startQuad() error {
	qs := s.quad
	if err := qs.fq(s.t, s.yn, s.ypn, qs.qdotn); err != nil {
		return wrapErr(FlagResFail, "quadrature right-hand side", err)
	}
	qs.nhist = 0
	s.pushQuadHist(s.t)
	return nil
}

// correctQuad advances the quadratures over the candidate step with
// the same BDF formula as the states and returns their error estimate
// (zero unless quadrature error control is active).
func (s *Solver) correctQuad(q int, tn, h float64) (float64, error) {
	qs := s.quad
	if err := qs.fq(tn, s.yn, s.ypn, qs.qdotNew); err != nil {
		if errors.Is(err, Recoverable) {
			return 0, errStepRetry
		}
		return 0, wrapErr(FlagResFail, "quadrature right-hand side", err)
	}
	p1 := &qs.hist[0]
	d := tn - p1.t
	if q == 1 || qs.nhist < 2 {
		for i := range qs.qNew {
			qs.qNew[i] = p1.q[i] + h*qs.qdotNew[i]
			qs.qpred[i] = p1.q[i] + d*p1.qdot[i]
		}
	} else {
		p2 := &qs.hist[1]
		h2 := p1.t - p2.t
		a0 := (2*h + h2) / (h * (h + h2))
		a1 := -(h + h2) / (h * h2)
		a2 := h / (h2 * (h + h2))
		dt2 := p2.t - p1.t
		for i := range qs.qNew {
			qs.qNew[i] = (qs.qdotNew[i] - a1*p1.q[i] - a2*p2.q[i]) / a0
			c := (p2.q[i] - p1.q[i] - p1.qdot[i]*dt2) / (dt2 * dt2)
			qs.qpred[i] = p1.q[i] + d*p1.qdot[i] + c*d*d
		}
	}
	if !qs.errCon {
		return 0, nil
	}
	c := 0.5
	if q == 2 {
		c = 1.0 / 3.0
	}
	sum := 0.0
	for i := range qs.qNew {
		qs.qewt[i] = 1 / (qs.rtol*math.Abs(qs.qn[i]) + qs.atol)
		x := (qs.qNew[i] - qs.qpred[i]) * qs.qewt[i]
		sum += x * x
	}
	return c * math.Sqrt(sum/float64(qs.nq)), nil
}

func (s *Solver) acceptQuad() {
	qs := s.quad
	copy(qs.qn, qs.qNew)
	copy(qs.qdotn, qs.qdotNew)
	s.pushQuadHist(s.t)
}

func (s *Solver) pushQuadHist(t float64) {
	qs := s.quad
	old := qs.hist[2]
	qs.hist[2] = qs.hist[1]
	qs.hist[1] = qs.hist[0]
	qs.hist[0] = old
	qs.hist[0].t = t
	copy(qs.hist[0].q, qs.qn)
	copy(qs.hist[0].qdot, qs.qdotn)
	if qs.nhist < 3 {
		qs.nhist++
	}
}

// interpolateQuad writes the quadrature values at t into the
// registered buffer.
func (s *Solver) interpolateQuad(t float64) {
	qs := s.quad
	if qs.nhist < 2 || t == qs.hist[0].t {
		copy(qs.uq, qs.qn)
		return
	}
	k := 0
	for k+1 < qs.nhist-1 && s.dir*(t-qs.hist[k+1].t) < 0 {
		k++
	}
	a, b := &qs.hist[k+1], &qs.hist[k]
	hermite(a.t, a.q, a.qdot, b.t, b.q, b.qdot, t, qs.uq, nil)
}
