package models

import (
	"math"

	"github.com/san-kum/daesim/internal/oracle"
)

// Decay is exponential decay with a mirrored algebraic variable:
//
//	x' = -p*x,  0 = z - x,  q' = x
//
// The decay rate is the single parameter, so the model exercises every
// piece of the adjoint machinery while keeping closed-form answers:
// x(t) = x0*exp(-p*t), q(t) = x0*(1-exp(-p*t))/p, and with a unit
// terminal seed rx(0) = exp(-p*T) and rq(0) = -x0*T*exp(-p*T).
type Decay struct {
	Rate float64 // initial value of p
	X0   float64
	T    float64
}

func NewDecay() *Decay {
	return &Decay{Rate: 1.0, X0: 1.0, T: 1.0}
}

func (d *Decay) Name() string { return "decay" }

func (d *Decay) Describe() string {
	return "exponential decay with an algebraic mirror state and a quadrature"
}

func (d *Decay) Grid() []float64 { return uniformGrid(0, d.T, 100) }

func (d *Decay) Initial() (x, z, p []float64) {
	return []float64{d.X0}, []float64{d.X0}, []float64{d.Rate}
}

// Exact returns the analytic solution at t.
func (d *Decay) Exact(t float64) (x, q float64) {
	x = d.X0 * math.Exp(-d.Rate*t)
	q = d.X0 * (1 - math.Exp(-d.Rate*t)) / d.Rate
	return
}

func (d *Decay) System() *oracle.System {
	dims := oracle.Dimensions{
		Nx: 1, Nz: 1, Np: 1, Nq: 1,
		Nrx: 1, Nrz: 1, Nrp: 1, Nrq: 1,
	}
	sys := oracle.NewSystem(dims)

	fIn := []oracle.Role{oracle.X, oracle.Z, oracle.P, oracle.T}
	sys.Define("daeF", fIn, []oracle.Role{oracle.ODE, oracle.ALG},
		func(arg, res [][]float64) error {
			x, z, p := arg[0], arg[1], arg[2]
			res[0][0] = -p[0] * x[0]
			res[1][0] = z[0] - x[0]
			return nil
		})
	sys.Define("quadF", fIn, []oracle.Role{oracle.Quad},
		func(arg, res [][]float64) error {
			res[0][0] = arg[0][0]
			return nil
		})

	bIn := []oracle.Role{oracle.RX, oracle.RZ, oracle.RP,
		oracle.X, oracle.Z, oracle.P, oracle.T}
	// Adjoint of the semi-explicit pair (f, g): the differential part
	// is f_x'*rx + g_x'*rz, the algebraic part f_z'*rx + g_z'*rz.
	sys.Define("daeB", bIn, []oracle.Role{oracle.RODE, oracle.RALG},
		func(arg, res [][]float64) error {
			rx, rz, p := arg[0], arg[1], arg[5]
			res[0][0] = -p[0]*rx[0] - rz[0]
			res[1][0] = rz[0]
			return nil
		})
	// Parameter sensitivity integrand f_p'*rx in forward time.
	sys.Define("quadB", bIn, []oracle.Role{oracle.RQuad},
		func(arg, res [][]float64) error {
			rx, x := arg[0], arg[3]
			res[0][0] = -x[0] * rx[0]
			return nil
		})
	return sys
}
