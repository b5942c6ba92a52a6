package models

import (
	"github.com/san-kum/daesim/internal/oracle"
)

// Robertson is the classic stiff chemical kinetics benchmark in its
// DAE form: two differential species and the third eliminated through
// conservation of mass.
//
//	x1' = -k1*x1 + k3*x2*z
//	x2' =  k1*x1 - k3*x2*z - k2*x2^2
//	 0  =  x1 + x2 + z - 1
type Robertson struct {
	K1, K2, K3 float64
	T          float64
}

func NewRobertson() *Robertson {
	return &Robertson{K1: 0.04, K2: 3e7, K3: 1e4, T: 0.4}
}

func (r *Robertson) Name() string { return "robertson" }

func (r *Robertson) Describe() string {
	return "stiff Robertson kinetics with a mass-conservation algebraic constraint"
}

func (r *Robertson) Grid() []float64 { return uniformGrid(0, r.T, 40) }

func (r *Robertson) Initial() (x, z, p []float64) {
	return []float64{1, 0}, []float64{0}, nil
}

func (r *Robertson) System() *oracle.System {
	dims := oracle.Dimensions{Nx: 2, Nz: 1}
	sys := oracle.NewSystem(dims)

	fIn := []oracle.Role{oracle.X, oracle.Z, oracle.P, oracle.T}
	sys.Define("daeF", fIn, []oracle.Role{oracle.ODE, oracle.ALG},
		func(arg, res [][]float64) error {
			x, z := arg[0], arg[1]
			res[0][0] = -r.K1*x[0] + r.K3*x[1]*z[0]
			res[0][1] = r.K1*x[0] - r.K3*x[1]*z[0] - r.K2*x[1]*x[1]
			res[1][0] = x[0] + x[1] + z[0] - 1
			return nil
		})
	return sys
}
