package integrator

import (
	"errors"
	"fmt"
	"log"

	"github.com/san-kum/daesim/internal/bdf"
	"github.com/san-kum/daesim/internal/oracle"
)

// callbackErr translates an oracle evaluation failure for the engine:
// recoverable failures become the engine's retry sentinel, everything
// else is logged once and wrapped fatally.
func callbackErr(fn string, err error) error {
	if errors.Is(err, oracle.ErrRecoverable) {
		return fmt.Errorf("%s: %w", fn, bdf.Recoverable)
	}
	log.Printf("integrator: %s failed fatally: %v", fn, err)
	return &FatalCallbackError{Fn: fn, Err: err}
}

// resF is the forward residual: the oracle supplies the right-hand
// sides, the time derivative of the differential part is subtracted
// here so the oracle never sees x'.
func (m *Memory) resF(t float64, yy, yp, rr []float64) error {
	s := m.s
	nx := s.dims.Nx
	m.tbuf[0] = t
	arg := m.arg[:4]
	arg[0] = yy[:nx]
	arg[1] = yy[nx:]
	arg[2] = m.p
	arg[3] = m.tbuf[:]
	res := m.res[:2]
	res[0] = rr[:nx]
	res[1] = rr[nx:]
	if err := s.daeF.Call(arg, res); err != nil {
		return callbackErr("daeF", err)
	}
	for i := 0; i < nx; i++ {
		rr[i] -= yp[i]
	}
	return nil
}

// rhsQ evaluates the forward quadrature derivative.
func (m *Memory) rhsQ(t float64, yy, yp, qdot []float64) error {
	s := m.s
	nx := s.dims.Nx
	m.tbuf[0] = t
	arg := m.arg[:4]
	arg[0] = yy[:nx]
	arg[1] = yy[nx:]
	arg[2] = m.p
	arg[3] = m.tbuf[:]
	res := m.res[:1]
	res[0] = qdot
	if err := s.quadF.Call(arg, res); err != nil {
		return callbackErr("quadF", err)
	}
	return nil
}

// resB is the backward residual. The adjoint differential equation
// integrates toward decreasing time, so the derivative enters with the
// opposite sign of the forward residual.
func (m *Memory) resB(t float64, yy, yp, yyB, ypB, rr []float64) error {
	s := m.s
	nx, nrx := s.dims.Nx, s.dims.Nrx
	m.tbuf[0] = t
	arg := m.arg[:7]
	arg[0] = yyB[:nrx]
	arg[1] = yyB[nrx:]
	arg[2] = m.rp
	arg[3] = yy[:nx]
	arg[4] = yy[nx:]
	arg[5] = m.p
	arg[6] = m.tbuf[:]
	res := m.res[:2]
	res[0] = rr[:nrx]
	res[1] = rr[nrx:]
	if err := s.daeB.Call(arg, res); err != nil {
		return callbackErr("daeB", err)
	}
	for i := 0; i < nrx; i++ {
		rr[i] += ypB[i]
	}
	return nil
}

// rhsQB evaluates the backward quadrature derivative. The oracle
// reports the integrand in forward time; the sign flip accounts for
// integrating it backwards.
func (m *Memory) rhsQB(t float64, yy, yp, yyB, ypB, qdot []float64) error {
	s := m.s
	nx, nrx := s.dims.Nx, s.dims.Nrx
	m.tbuf[0] = t
	arg := m.arg[:7]
	arg[0] = yyB[:nrx]
	arg[1] = yyB[nrx:]
	arg[2] = m.rp
	arg[3] = yy[:nx]
	arg[4] = yy[nx:]
	arg[5] = m.p
	arg[6] = m.tbuf[:]
	res := m.res[:1]
	res[0] = qdot
	if err := s.quadB.Call(arg, res); err != nil {
		return callbackErr("quadB", err)
	}
	for i := range qdot {
		qdot[i] = -qdot[i]
	}
	return nil
}

// jtimesF applies the forward iteration matrix to v: the directional
// derivative of the right-hand sides minus cj times the differential
// part of v.
func (m *Memory) jtimesF(t float64, yy, yp, v, jv []float64, cj float64) error {
	s := m.s
	nx := s.dims.Nx
	m.tbuf[0] = t
	arg := m.arg[:6]
	arg[0] = m.tbuf[:]
	arg[1] = yy[:nx]
	arg[2] = yy[nx:]
	arg[3] = m.p
	arg[4] = v[:nx]
	arg[5] = v[nx:]
	res := m.res[:2]
	res[0] = jv[:nx]
	res[1] = jv[nx:]
	if err := s.jtF.Call(arg, res); err != nil {
		return callbackErr("jtimesF", err)
	}
	for i := 0; i < nx; i++ {
		jv[i] -= cj * v[i]
	}
	return nil
}

// jtimesB applies the backward iteration matrix, with the cj term
// entering with the opposite sign.
func (m *Memory) jtimesB(t float64, yy, yp, yyB, ypB, v, jv []float64, cj float64) error {
	s := m.s
	nx, nrx := s.dims.Nx, s.dims.Nrx
	m.tbuf[0] = t
	arg := m.arg[:9]
	arg[0] = m.tbuf[:]
	arg[1] = yy[:nx]
	arg[2] = yy[nx:]
	arg[3] = m.p
	arg[4] = yyB[:nrx]
	arg[5] = yyB[nrx:]
	arg[6] = m.rp
	arg[7] = v[:nrx]
	arg[8] = v[nrx:]
	res := m.res[:2]
	res[0] = jv[:nrx]
	res[1] = jv[nrx:]
	if err := s.jtB.Call(arg, res); err != nil {
		return callbackErr("jtimesB", err)
	}
	for i := 0; i < nrx; i++ {
		jv[i] += cj * v[i]
	}
	return nil
}
