package oracle

import (
	"errors"
	"fmt"
	"strings"
)

// Role identifies one argument slot of a named function. Scalar roles
// (t, cj) travel as length-1 buffers. Seed roles carry a "fwd:" prefix
// and request a directional derivative with respect to the base role.
type Role string

const (
	T  Role = "t"
	X  Role = "x"
	Z  Role = "z"
	P  Role = "p"
	CJ Role = "cj"

	RX Role = "rx"
	RZ Role = "rz"
	RP Role = "rp"

	ODE  Role = "ode"
	ALG  Role = "alg"
	Quad Role = "quad"

	RODE  Role = "rode"
	RALG  Role = "ralg"
	RQuad Role = "rquad"
)

// Fwd marks a role as a forward seed, e.g. Fwd(X) == "fwd:x".
func Fwd(r Role) Role { return "fwd:" + r }

// IsFwd reports whether r is a seed role and returns its base.
func IsFwd(r Role) (Role, bool) {
	s, ok := strings.CutPrefix(string(r), "fwd:")
	return Role(s), ok
}

// Dimensions are the problem sizes, fixed for the lifetime of an
// integrator instance.
type Dimensions struct {
	Nx  int // differential states
	Nz  int // algebraic states
	Np  int // parameters
	Nq  int // quadratures
	Nrx int // adjoint differential states
	Nrz int // adjoint algebraic states
	Nrp int // adjoint parameters
	Nrq int // adjoint quadratures
	Ns  int // forward sensitivity directions
}

// Len returns the buffer length for a role.
func (d Dimensions) Len(r Role) int {
	if base, ok := IsFwd(r); ok {
		r = base
	}
	switch r {
	case T, CJ:
		return 1
	case X, ODE:
		return d.Nx
	case Z, ALG:
		return d.Nz
	case P:
		return d.Np
	case Quad:
		return d.Nq
	case RX, RODE:
		return d.Nrx
	case RZ, RALG:
		return d.Nrz
	case RP:
		return d.Nrp
	case RQuad:
		return d.Nrq
	}
	return -1
}

// ErrRecoverable signals a numerical failure the integration engine
// may resolve by retrying the step with a smaller step size. Any other
// evaluation error is treated as fatal for the current solve attempt.
var ErrRecoverable = errors.New("oracle: recoverable evaluation failure")

// ErrUnknownFunction is returned by Registry.Get for missing names.
var ErrUnknownFunction = errors.New("oracle: unknown function")

// Func is a named callable with fixed argument slots. Call evaluates
// with arg[i] aliasing the buffer for In()[i] and writes res[j] for
// Out()[j]. Implementations must not retain the buffers.
type Func interface {
	Name() string
	In() []Role
	Out() []Role
	Call(arg, res [][]float64) error
}

// Provider supplies named functions on request. Create may derive
// functions it was not given directly (Jacobian blocks, directional
// derivatives) when the requested roles make the derivation
// unambiguous.
type Provider interface {
	Dimensions() Dimensions
	Create(name string, in, out []Role) (Func, error)
}

// Registry maps names to functions. It is built once at integrator
// init and is read-only afterwards, so lookups are safe for concurrent
// readers. Callers on hot paths should cache the Func handle instead
// of re-resolving the name.
type Registry struct {
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Add registers f under its name. Duplicate names are rejected.
func (r *Registry) Add(f Func) error {
	if _, ok := r.funcs[f.Name()]; ok {
		return fmt.Errorf("oracle: duplicate function %q", f.Name())
	}
	r.funcs[f.Name()] = f
	return nil
}

// Get resolves a name in O(1).
func (r *Registry) Get(name string) (Func, error) {
	f, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	return f, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.funcs[name]
	return ok
}
