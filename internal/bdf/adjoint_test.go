package bdf

import (
	"math"
	"testing"
)

// Adjoint of the decay problem: with terminal seed rx(T) = 1 the
// adjoint pair satisfies rx' = rx + rz, rz = 0, integrated backwards
// from T, so rx(0) = exp(-T).
func backwardDecaySolver(t *testing.T, interp InterpType) (*Solver, []float64, []float64) {
	t.Helper()
	s := decaySolver(t)
	s.AdjInit(10, interp)

	tret, ncheck, err := s.SolveF(1.0)
	if err != nil {
		t.Fatal(err)
	}
	if tret != 1.0 {
		t.Fatalf("forward pass reached %g, expected 1.0", tret)
	}
	if ncheck == 0 {
		t.Fatal("expected checkpoints recorded")
	}
	return s, s.uyy, s.uyp
}

func TestForwardInterp(t *testing.T) {
	for _, interp := range []InterpType{Hermite, Polynomial} {
		s, _, _ := backwardDecaySolver(t, interp)
		yy := make([]float64, 2)
		yp := make([]float64, 2)
		for _, tt := range []float64{0.1, 0.35, 0.62, 0.9} {
			if err := s.Interp(tt, yy, yp); err != nil {
				t.Fatalf("interp at %g: %v", tt, err)
			}
			want := math.Exp(-tt)
			if math.Abs(yy[0]-want) > 1e-4 {
				t.Errorf("interp x(%g): got %.8f, expected %.8f", tt, yy[0], want)
			}
		}
		if err := s.Interp(-0.5, yy, yp); err == nil {
			t.Error("expected interpolation outside the tape to fail")
		}
	}
}

func TestAdjointDecay(t *testing.T) {
	s, _, _ := backwardDecaySolver(t, Hermite)

	resB := func(tt float64, yy, yp, yyB, ypB, rr []float64) error {
		rr[0] = -yyB[0] - yyB[1] + ypB[0]
		rr[1] = yyB[1]
		return nil
	}
	yyB := []float64{1, 0}
	ypB := []float64{1, 0} // rx' = rx + rz at the terminal point
	b, err := s.CreateB(resB, 1.0, yyB, ypB)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	b.SetTolerances(1e-8, 1e-10)
	if err := b.SetID([]float64{1, 0}); err != nil {
		t.Fatal(err)
	}
	// Backward iteration matrix [[-1+cj, -1], [0, 1]], solved in
	// closed form from the second row up.
	var cjSaved float64
	b.InstallDirectSolver(
		func(tt float64, yy, yp, yyB, ypB []float64, cj float64) error {
			cjSaved = cj
			return nil
		},
		func(bv []float64, tt float64, yy, yp, yyB, ypB []float64, cj, cjratio float64) error {
			bv[0] = (bv[0] + bv[1]) / (cjSaved - 1)
			return nil
		})

	tret, err := b.SolveB(0)
	if err != nil {
		t.Fatal(err)
	}
	if tret != 0 {
		t.Errorf("backward pass reached %g, expected 0", tret)
	}
	want := math.Exp(-1)
	if math.Abs(yyB[0]-want) > 1e-4 {
		t.Errorf("rx(0): got %.8f, expected %.8f", yyB[0], want)
	}
	if math.Abs(yyB[1]) > 1e-6 {
		t.Errorf("rz(0): got %.8f, expected 0", yyB[1])
	}
}

// The backward problem may not step past the start of the tape: the
// wrapped residual interpolates the forward trajectory, which ends
// there. The difference-quotient matvec evaluates the residual at the
// tentative step end, so an overshoot surfaces as a BAD_T failure.
func TestBackwardStaysOnTape(t *testing.T) {
	s, _, _ := backwardDecaySolver(t, Hermite)

	resB := func(tt float64, yy, yp, yyB, ypB, rr []float64) error {
		rr[0] = -yyB[0] - yyB[1] + ypB[0]
		rr[1] = yyB[1]
		return nil
	}
	yyB := []float64{1, 0}
	ypB := []float64{1, 0}
	b, err := s.CreateB(resB, 1.0, yyB, ypB)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	b.SetTolerances(1e-8, 1e-10)
	if err := b.SetID([]float64{1, 0}); err != nil {
		t.Fatal(err)
	}
	b.SetKrylov(GMRES, 5)

	if _, err := b.SolveB(0); err != nil {
		t.Fatal(err)
	}
	if b.Time() < 0 {
		t.Errorf("backward internal time %g left the taped interval", b.Time())
	}

	// A restart re-anchors at the tape end and must respect the same
	// bound.
	yyB[0], yyB[1] = 1, 0
	ypB[0], ypB[1] = 1, 0
	if err := b.ReInitB(1.0, yyB, ypB); err != nil {
		t.Fatal(err)
	}
	if _, err := b.SolveB(0); err != nil {
		t.Fatal(err)
	}
	if b.Time() < 0 {
		t.Errorf("backward internal time %g left the taped interval after reinit", b.Time())
	}
	want := math.Exp(-1)
	if math.Abs(yyB[0]-want) > 1e-4 {
		t.Errorf("rx(0): got %.8f, expected %.8f", yyB[0], want)
	}
}

func TestBackwardQuadrature(t *testing.T) {
	s, _, _ := backwardDecaySolver(t, Hermite)

	resB := func(tt float64, yy, yp, yyB, ypB, rr []float64) error {
		rr[0] = -yyB[0] - yyB[1] + ypB[0]
		rr[1] = yyB[1]
		return nil
	}
	yyB := []float64{1, 0}
	ypB := []float64{1, 0}
	b, err := s.CreateB(resB, 1.0, yyB, ypB)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	b.SetTolerances(1e-8, 1e-10)
	if err := b.SetID([]float64{1, 0}); err != nil {
		t.Fatal(err)
	}
	b.SetKrylov(GMRES, 5)

	// Integrating qdot = x*rx from T down to 0 accumulates
	// rq(0) = -integral_0^1 exp(-t)*exp(t-1) dt = -exp(-1).
	rq := []float64{0}
	err = b.QuadInitB(func(tt float64, yy, yp, yyB, ypB, qdot []float64) error {
		qdot[0] = yy[0] * yyB[0]
		return nil
	}, rq)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := b.SolveB(0); err != nil {
		t.Fatal(err)
	}
	want := -math.Exp(-1)
	if math.Abs(rq[0]-want) > 1e-4 {
		t.Errorf("rq(0): got %.8f, expected %.8f", rq[0], want)
	}
}
