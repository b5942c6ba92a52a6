package integrator

import (
	"errors"
	"fmt"

	"github.com/san-kum/daesim/internal/bdf"
	"github.com/san-kum/daesim/internal/linsol"
)

// linsolErr maps a factorization or solve failure: a singular matrix
// is worth retrying with a smaller step, anything else is fatal.
func linsolErr(fn string, err error) error {
	if errors.Is(err, linsol.ErrSingular) {
		return fmt.Errorf("%s: %w", fn, bdf.Recoverable)
	}
	return callbackErr(fn, err)
}

// psetupF assembles and factorizes the forward iteration matrix at
// (t, yy, cj).
func (m *Memory) psetupF(t float64, yy, yp []float64, cj float64) error {
	s := m.s
	nx := s.dims.Nx
	m.tbuf[0] = t
	m.cjbuf[0] = cj
	arg := m.arg[:5]
	arg[0] = m.tbuf[:]
	arg[1] = yy[:nx]
	arg[2] = yy[nx:]
	arg[3] = m.p
	arg[4] = m.cjbuf[:]
	res := m.res[:1]
	res[0] = m.jacA
	if err := s.jacF.Call(arg, res); err != nil {
		return callbackErr("jacF", err)
	}
	if err := m.linF.Setup(arg, res, nil); err != nil {
		return linsolErr("linsolF setup", err)
	}
	if err := m.linF.Factorize(m.jacA); err != nil {
		return linsolErr("linsolF factorize", err)
	}
	return nil
}

// psolveF applies the factorized matrix as a preconditioner: z is
// overwritten with the solve of r.
func (m *Memory) psolveF(t float64, yy, yp, r, z []float64, cj float64) error {
	if &z[0] != &r[0] {
		copy(z, r)
	}
	if err := m.linF.Solve(z); err != nil {
		return linsolErr("linsolF solve", err)
	}
	return nil
}

// lsetupF and lsolveF are the direct-corrector hooks. The solve path
// rescales the correction by 2/(1+cjratio) when the factorization is
// being reused with a changed step size.
func (m *Memory) lsetupF(t float64, yy, yp []float64, cj float64) error {
	return m.psetupF(t, yy, yp, cj)
}

func (m *Memory) lsolveF(b []float64, t float64, yy, yp []float64, cj, cjratio float64) error {
	if err := m.psolveF(t, yy, yp, b, b, cj); err != nil {
		return err
	}
	if m.s.opts.CJScaling && cjratio != 1 {
		scale := 2 / (1 + cjratio)
		for i := range b {
			b[i] *= scale
		}
	}
	return nil
}

// psetupB assembles and factorizes the backward iteration matrix.
func (m *Memory) psetupB(t float64, yy, yp, yyB, ypB []float64, cj float64) error {
	s := m.s
	nx, nrx := s.dims.Nx, s.dims.Nrx
	m.tbuf[0] = t
	m.cjbuf[0] = cj
	arg := m.arg[:8]
	arg[0] = m.tbuf[:]
	arg[1] = yyB[:nrx]
	arg[2] = yyB[nrx:]
	arg[3] = m.rp
	arg[4] = yy[:nx]
	arg[5] = yy[nx:]
	arg[6] = m.p
	arg[7] = m.cjbuf[:]
	res := m.res[:1]
	res[0] = m.jacAB
	if err := s.jacB.Call(arg, res); err != nil {
		return callbackErr("jacB", err)
	}
	if err := m.linB.Setup(arg, res, nil); err != nil {
		return linsolErr("linsolB setup", err)
	}
	if err := m.linB.Factorize(m.jacAB); err != nil {
		return linsolErr("linsolB factorize", err)
	}
	return nil
}

func (m *Memory) psolveB(t float64, yy, yp, yyB, ypB, r, z []float64, cj float64) error {
	if &z[0] != &r[0] {
		copy(z, r)
	}
	if err := m.linB.Solve(z); err != nil {
		return linsolErr("linsolB solve", err)
	}
	return nil
}

func (m *Memory) lsetupB(t float64, yy, yp, yyB, ypB []float64, cj float64) error {
	return m.psetupB(t, yy, yp, yyB, ypB, cj)
}

func (m *Memory) lsolveB(b []float64, t float64, yy, yp, yyB, ypB []float64, cj, cjratio float64) error {
	if err := m.psolveB(t, yy, yp, yyB, ypB, b, b, cj); err != nil {
		return err
	}
	if m.s.opts.CJScaling && cjratio != 1 {
		scale := 2 / (1 + cjratio)
		for i := range b {
			b[i] *= scale
		}
	}
	return nil
}
