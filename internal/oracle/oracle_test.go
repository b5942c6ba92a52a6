package oracle

import (
	"math"
	"testing"
)

func decaySystem() *System {
	dims := Dimensions{Nx: 1, Nz: 1, Np: 1}
	sys := NewSystem(dims)
	sys.Define("daeF", []Role{X, Z, P, T}, []Role{ODE, ALG},
		func(arg, res [][]float64) error {
			res[0][0] = -arg[2][0] * arg[0][0]
			res[1][0] = arg[1][0] - arg[0][0]
			return nil
		})
	return sys
}

func TestRegistry(t *testing.T) {
	sys := decaySystem()
	f, err := sys.Create("daeF", []Role{X, Z, P, T}, []Role{ODE, ALG})
	if err != nil {
		t.Fatal(err)
	}
	reg := NewRegistry()
	if err := reg.Add(f); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(f); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if !reg.Has("daeF") {
		t.Error("expected daeF to be registered")
	}
	if _, err := reg.Get("missing"); err == nil {
		t.Error("expected lookup of missing function to fail")
	}
}

func TestCreateRejectsRoleMismatch(t *testing.T) {
	sys := decaySystem()
	_, err := sys.Create("daeF", []Role{X, P, Z, T}, []Role{ODE, ALG})
	if err == nil {
		t.Error("expected mismatched roles to be rejected")
	}
}

func TestDirectionalDerivative(t *testing.T) {
	sys := decaySystem()
	jt, err := sys.Create("jtimesF",
		[]Role{T, X, Z, P, Fwd(X), Fwd(Z)},
		[]Role{Fwd(ODE), Fwd(ALG)})
	if err != nil {
		t.Fatal(err)
	}

	x := []float64{2.0}
	z := []float64{2.0}
	p := []float64{1.5}
	tt := []float64{0}
	vx := []float64{1.0}
	vz := []float64{0.5}
	jvODE := []float64{0}
	jvALG := []float64{0}
	err = jt.Call([][]float64{tt, x, z, p, vx, vz}, [][]float64{jvODE, jvALG})
	if err != nil {
		t.Fatal(err)
	}
	// d(-p*x)*v = -p*vx, d(z-x)*v = vz - vx
	if math.Abs(jvODE[0]-(-1.5)) > 1e-6 {
		t.Errorf("ode directional derivative: got %g, expected -1.5", jvODE[0])
	}
	if math.Abs(jvALG[0]-(-0.5)) > 1e-6 {
		t.Errorf("alg directional derivative: got %g, expected -0.5", jvALG[0])
	}
}

func TestDirectionalZeroSeed(t *testing.T) {
	sys := decaySystem()
	jt, err := sys.Create("jtimesF",
		[]Role{T, X, Z, P, Fwd(X), Fwd(Z)},
		[]Role{Fwd(ODE), Fwd(ALG)})
	if err != nil {
		t.Fatal(err)
	}
	jvODE := []float64{99}
	jvALG := []float64{99}
	err = jt.Call(
		[][]float64{{0}, {1}, {1}, {1}, {0}, {0}},
		[][]float64{jvODE, jvALG})
	if err != nil {
		t.Fatal(err)
	}
	if jvODE[0] != 0 || jvALG[0] != 0 {
		t.Errorf("zero seed should give zero output, got %g %g", jvODE[0], jvALG[0])
	}
}

func TestJacobianBlock(t *testing.T) {
	sys := decaySystem()
	jac, err := sys.Create("jac", []Role{X, Z, P, T}, []Role{JacBlock(ODE, X)})
	if err != nil {
		t.Fatal(err)
	}
	block := []float64{0}
	err = jac.Call([][]float64{{3}, {3}, {2}, {0}}, [][]float64{block})
	if err != nil {
		t.Fatal(err)
	}
	// d(-p*x)/dx = -p = -2
	if math.Abs(block[0]-(-2)) > 1e-5 {
		t.Errorf("jacobian block: got %g, expected -2", block[0])
	}
}

func TestDimensionsLen(t *testing.T) {
	d := Dimensions{Nx: 3, Nz: 2, Np: 1, Nq: 4, Nrx: 3, Nrz: 2, Nrp: 1, Nrq: 5}
	cases := []struct {
		r Role
		n int
	}{
		{T, 1}, {CJ, 1}, {X, 3}, {Z, 2}, {P, 1}, {Quad, 4},
		{RX, 3}, {RZ, 2}, {RP, 1}, {RQuad, 5}, {Fwd(X), 3},
	}
	for _, c := range cases {
		if got := d.Len(c.r); got != c.n {
			t.Errorf("Len(%s): got %d, expected %d", c.r, got, c.n)
		}
	}
}
