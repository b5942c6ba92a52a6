// Package linsol defines the linear-solver contract the integrator's
// Newton corrector uses, and a dense implementation backed by gonum's
// LU factorization.
package linsol

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is reported when factorization meets a numerically
// singular matrix. The Newton corrector treats it as recoverable and
// retries with a smaller step.
var ErrSingular = errors.New("linsol: matrix is singular to working precision")

// Solver factorizes the Newton iteration matrix and solves correction
// systems in place. Setup runs once before a (re-)factorization and
// may use the argument/result slots and scratch space; dense solvers
// typically ignore them.
type Solver interface {
	Setup(arg, res [][]float64, scratch []float64) error
	Factorize(a []float64) error
	Solve(b []float64) error
}

// Dense solves n-by-n systems with a row-major dense matrix buffer.
type Dense struct {
	n   int
	lu  mat.LU
	rhs *mat.VecDense
	ok  bool
}

func NewDense(n int) *Dense {
	return &Dense{n: n, rhs: mat.NewVecDense(n, nil)}
}

func (d *Dense) Setup(arg, res [][]float64, scratch []float64) error {
	return nil
}

// Factorize computes the LU decomposition of a, which must hold n*n
// row-major entries. The buffer is not retained.
func (d *Dense) Factorize(a []float64) error {
	if len(a) != d.n*d.n {
		return fmt.Errorf("linsol: matrix buffer has %d entries, want %d", len(a), d.n*d.n)
	}
	d.lu.Factorize(mat.NewDense(d.n, d.n, a))
	if d.lu.Cond() > 1/condTol {
		d.ok = false
		return fmt.Errorf("%w (cond %.3g)", ErrSingular, d.lu.Cond())
	}
	d.ok = true
	return nil
}

// Solve overwrites b with the solution of the factorized system.
func (d *Dense) Solve(b []float64) error {
	if !d.ok {
		return errors.New("linsol: solve before successful factorize")
	}
	copy(d.rhs.RawVector().Data, b)
	var x mat.VecDense
	if err := d.lu.SolveVecTo(&x, false, d.rhs); err != nil {
		return fmt.Errorf("%w: %v", ErrSingular, err)
	}
	copy(b, x.RawVector().Data)
	return nil
}

const condTol = 1e-14
