package models

import (
	"math"

	"github.com/san-kum/daesim/internal/oracle"
)

// Pendulum is a damped pendulum written as a fully implicit system
// with the rod tension carried as an algebraic variable:
//
//	theta' = omega
//	omega' = -(g/L)*sin(theta) - (c/(m*L^2))*omega
//	    0  = z - m*(g*cos(theta) + L*omega^2)
//	    q' = c*omega^2
//
// z is the physical string tension, so the algebraic path is exercised
// by a quantity with a checkable small-angle limit z ~= m*g. The
// quadrature accumulates dissipated energy, so along any trajectory
// E(0) - E(t) = q(t).
type Pendulum struct {
	Mass    float64
	Length  float64
	Damping float64
	Gravity float64
	Theta0  float64
	T       float64
}

func NewPendulum() *Pendulum {
	return &Pendulum{
		Mass:    1.0,
		Length:  1.0,
		Damping: 0.1,
		Gravity: 9.81,
		Theta0:  0.3,
		T:       10.0,
	}
}

func (p *Pendulum) Name() string { return "pendulum" }

func (p *Pendulum) Describe() string {
	return "damped pendulum with the rod tension as an algebraic variable"
}

func (p *Pendulum) Grid() []float64 { return uniformGrid(0, p.T, 200) }

func (p *Pendulum) Initial() (x, z, pp []float64) {
	tension := p.Mass * p.Gravity * math.Cos(p.Theta0)
	return []float64{p.Theta0, 0}, []float64{tension}, nil
}

// Energy returns the mechanical energy of the state, measured from the
// pivot. With damping it must decrease along trajectories.
func (p *Pendulum) Energy(theta, omega float64) float64 {
	kinetic := 0.5 * p.Mass * p.Length * p.Length * omega * omega
	potential := -p.Mass * p.Gravity * p.Length * math.Cos(theta)
	return kinetic + potential
}

func (p *Pendulum) System() *oracle.System {
	dims := oracle.Dimensions{Nx: 2, Nz: 1, Nq: 1}
	sys := oracle.NewSystem(dims)

	fIn := []oracle.Role{oracle.X, oracle.Z, oracle.P, oracle.T}
	sys.Define("daeF", fIn, []oracle.Role{oracle.ODE, oracle.ALG},
		func(arg, res [][]float64) error {
			x, z := arg[0], arg[1]
			theta, omega := x[0], x[1]
			res[0][0] = omega
			res[0][1] = -(p.Gravity/p.Length)*math.Sin(theta) -
				p.Damping/(p.Mass*p.Length*p.Length)*omega
			res[1][0] = z[0] - p.Mass*(p.Gravity*math.Cos(theta)+p.Length*omega*omega)
			return nil
		})
	sys.Define("quadF", fIn, []oracle.Role{oracle.Quad},
		func(arg, res [][]float64) error {
			omega := arg[0][1]
			res[0][0] = p.Damping * omega * omega
			return nil
		})
	return sys
}
