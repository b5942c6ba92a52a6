package linsol

import (
	"errors"
	"math"
	"testing"
)

func TestDenseSolve(t *testing.T) {
	d := NewDense(2)
	// [2 1; 1 3] x = [5; 10] has solution [1; 3]
	a := []float64{2, 1, 1, 3}
	if err := d.Factorize(a); err != nil {
		t.Fatal(err)
	}
	b := []float64{5, 10}
	if err := d.Solve(b); err != nil {
		t.Fatal(err)
	}
	if math.Abs(b[0]-1) > 1e-12 || math.Abs(b[1]-3) > 1e-12 {
		t.Errorf("solution: got [%g %g], expected [1 3]", b[0], b[1])
	}
}

func TestDenseRefactorize(t *testing.T) {
	d := NewDense(1)
	if err := d.Factorize([]float64{2}); err != nil {
		t.Fatal(err)
	}
	b := []float64{8}
	if err := d.Solve(b); err != nil {
		t.Fatal(err)
	}
	if b[0] != 4 {
		t.Errorf("got %g, expected 4", b[0])
	}
	if err := d.Factorize([]float64{4}); err != nil {
		t.Fatal(err)
	}
	b[0] = 8
	if err := d.Solve(b); err != nil {
		t.Fatal(err)
	}
	if b[0] != 2 {
		t.Errorf("after refactorize: got %g, expected 2", b[0])
	}
}

func TestDenseSingular(t *testing.T) {
	d := NewDense(2)
	a := []float64{1, 2, 2, 4}
	err := d.Factorize(a)
	if err == nil {
		err = d.Solve([]float64{1, 1})
	}
	if !errors.Is(err, ErrSingular) {
		t.Errorf("expected ErrSingular, got %v", err)
	}
}

func TestDenseSolveBeforeFactorize(t *testing.T) {
	d := NewDense(2)
	if err := d.Solve([]float64{1, 1}); err == nil {
		t.Error("expected solve before factorize to fail")
	}
}
