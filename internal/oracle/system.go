package oracle

import (
	"fmt"
	"math"
	"strings"
)

// EvalFn is the body of a user-defined named function. arg and res
// follow the declared role order.
type EvalFn func(arg, res [][]float64) error

// JacBlock names the dense Jacobian of output role of with respect to
// input role wrt, e.g. JacBlock(ODE, X) == "jac:ode:x". The block is
// row-major with Len(of) rows and Len(wrt) columns.
func JacBlock(of, wrt Role) Role {
	return Role("jac:" + string(of) + ":" + string(wrt))
}

func parseJacBlock(r Role) (of, wrt Role, ok bool) {
	parts := strings.Split(string(r), ":")
	if len(parts) != 3 || parts[0] != "jac" {
		return "", "", false
	}
	return Role(parts[1]), Role(parts[2]), true
}

// System is a closure-backed Provider. Functions the caller defines
// are returned as-is; requested derivative functions (seed roles or
// Jacobian blocks) are derived from the matching base function by
// finite differences, standing in for symbolic differentiation on
// request.
type System struct {
	dims Dimensions
	defs map[string]*def
}

type def struct {
	name    string
	in, out []Role
	fn      EvalFn
}

func NewSystem(dims Dimensions) *System {
	return &System{dims: dims, defs: make(map[string]*def)}
}

// Define registers a function body under name. Returns the receiver
// for chaining.
func (s *System) Define(name string, in, out []Role, fn EvalFn) *System {
	s.defs[name] = &def{name: name, in: in, out: out, fn: fn}
	return s
}

func (s *System) Dimensions() Dimensions { return s.dims }

// Has reports whether name was defined directly.
func (s *System) Has(name string) bool {
	_, ok := s.defs[name]
	return ok
}

// Create implements Provider.
func (s *System) Create(name string, in, out []Role) (Func, error) {
	if d, ok := s.defs[name]; ok {
		if !rolesEqual(d.in, in) || !rolesEqual(d.out, out) {
			return nil, fmt.Errorf("oracle: %q declared with different roles", name)
		}
		return &closureFunc{def: d}, nil
	}
	if hasSeeds(in) {
		return s.deriveDirectional(name, in, out)
	}
	if _, _, ok := parseJacBlock(out[0]); len(out) == 1 && ok {
		return s.deriveJacobian(name, in, out[0])
	}
	return nil, fmt.Errorf("oracle: cannot create %q: not defined and not derivable", name)
}

type closureFunc struct{ def *def }

func (f *closureFunc) Name() string { return f.def.name }
func (f *closureFunc) In() []Role   { return f.def.in }
func (f *closureFunc) Out() []Role  { return f.def.out }

func (f *closureFunc) Call(arg, res [][]float64) error {
	return f.def.fn(arg, res)
}

func rolesEqual(a, b []Role) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hasSeeds(in []Role) bool {
	for _, r := range in {
		if _, ok := IsFwd(r); ok {
			return true
		}
	}
	return false
}

// findBase locates a defined function whose input roles match base
// (order-insensitive) and whose output roles are exactly out.
func (s *System) findBase(base []Role, out []Role) *def {
	want := make(map[Role]bool, len(base))
	for _, r := range base {
		want[r] = true
	}
	for _, d := range s.defs {
		if len(d.in) != len(base) || !rolesEqual(d.out, out) {
			continue
		}
		ok := true
		for _, r := range d.in {
			if !want[r] {
				ok = false
				break
			}
		}
		if ok {
			return d
		}
	}
	return nil
}

const fdEps = 1.4901161193847656e-08 // sqrt(machine epsilon)

// deriveDirectional builds a Jacobian-vector product of the base
// function identified by the non-seed input roles: out[j] is the
// directional derivative of the base output with respect to the
// seeded inputs.
func (s *System) deriveDirectional(name string, in, out []Role) (Func, error) {
	var base []Role
	seeds := make(map[Role]int) // base role -> position in `in`
	for i, r := range in {
		if b, ok := IsFwd(r); ok {
			seeds[b] = i
		} else {
			base = append(base, r)
		}
	}
	baseOut := make([]Role, len(out))
	for j, r := range out {
		b, ok := IsFwd(r)
		if !ok {
			return nil, fmt.Errorf("oracle: %q output %q is not a seed role", name, r)
		}
		baseOut[j] = b
	}
	d := s.findBase(base, baseOut)
	if d == nil {
		return nil, fmt.Errorf("oracle: %q has no base function to differentiate", name)
	}
	f := &fdDirectional{
		name: name, in: in, out: out, base: d,
		argIdx:  make([]int, len(d.in)),
		seedIdx: make([]int, len(d.in)),
	}
	for k, r := range d.in {
		f.argIdx[k] = roleIndex(in, r)
		f.seedIdx[k] = -1
		if i, ok := seeds[r]; ok {
			f.seedIdx[k] = i
			f.pert = append(f.pert, make([]float64, s.dims.Len(r)))
		} else {
			f.pert = append(f.pert, nil)
		}
	}
	for _, r := range baseOut {
		f.f0 = append(f.f0, make([]float64, s.dims.Len(r)))
	}
	f.args = make([][]float64, len(d.in))
	f.res1 = make([][]float64, len(baseOut))
	return f, nil
}

func roleIndex(rs []Role, r Role) int {
	for i, x := range rs {
		if x == r {
			return i
		}
	}
	return -1
}

type fdDirectional struct {
	name    string
	in, out []Role
	base    *def
	argIdx  []int // base arg k comes from in[argIdx[k]]
	seedIdx []int // seed for base arg k, or -1
	pert    [][]float64
	f0      [][]float64
	args    [][]float64
	res1    [][]float64
}

func (f *fdDirectional) Name() string { return f.name }
func (f *fdDirectional) In() []Role   { return f.in }
func (f *fdDirectional) Out() []Role  { return f.out }

func (f *fdDirectional) Call(arg, res [][]float64) error {
	// Seed and base magnitudes fix the perturbation size.
	vmax, xmax := 0.0, 0.0
	for k, si := range f.seedIdx {
		if si < 0 {
			continue
		}
		for _, v := range arg[si] {
			vmax = math.Max(vmax, math.Abs(v))
		}
		for _, v := range arg[f.argIdx[k]] {
			xmax = math.Max(xmax, math.Abs(v))
		}
	}
	if vmax == 0 {
		for j := range res {
			clear(res[j])
		}
		return nil
	}
	h := fdEps * (1 + xmax) / vmax

	for k := range f.base.in {
		f.args[k] = arg[f.argIdx[k]]
	}
	if err := f.base.fn(f.args, f.f0); err != nil {
		return err
	}
	for k, si := range f.seedIdx {
		if si < 0 {
			continue
		}
		x, v, w := arg[f.argIdx[k]], arg[si], f.pert[k]
		for i := range w {
			w[i] = x[i] + h*v[i]
		}
		f.args[k] = w
	}
	copy(f.res1, res)
	if err := f.base.fn(f.args, f.res1); err != nil {
		return err
	}
	for j := range res {
		for i := range res[j] {
			res[j][i] = (res[j][i] - f.f0[j][i]) / h
		}
	}
	return nil
}

// deriveJacobian builds one dense Jacobian block of a base function by
// column-wise finite differences.
func (s *System) deriveJacobian(name string, in []Role, block Role) (Func, error) {
	of, wrt, _ := parseJacBlock(block)
	var d *def
	for _, cand := range s.defs {
		if roleIndex(cand.out, of) >= 0 && roleIndex(cand.in, wrt) >= 0 &&
			len(cand.in) == len(in) && s.findBase(in, cand.out) == cand {
			d = cand
			break
		}
	}
	if d == nil {
		return nil, fmt.Errorf("oracle: %q: no function with output %q and input %q", name, of, wrt)
	}
	f := &fdJacobian{
		name: name, in: in, out: []Role{block}, base: d,
		ofIdx:  roleIndex(d.out, of),
		wrtIdx: roleIndex(d.in, wrt),
		argIdx: make([]int, len(d.in)),
		nRow:   s.dims.Len(of),
		nCol:   s.dims.Len(wrt),
		pert:   make([]float64, s.dims.Len(wrt)),
	}
	for k, r := range d.in {
		f.argIdx[k] = roleIndex(in, r)
	}
	for _, r := range d.out {
		f.f0 = append(f.f0, make([]float64, s.dims.Len(r)))
		f.f1 = append(f.f1, make([]float64, s.dims.Len(r)))
	}
	f.args = make([][]float64, len(d.in))
	return f, nil
}

type fdJacobian struct {
	name          string
	in, out       []Role
	base          *def
	ofIdx, wrtIdx int
	argIdx        []int
	nRow, nCol    int
	pert          []float64
	f0, f1, args  [][]float64
}

func (f *fdJacobian) Name() string { return f.name }
func (f *fdJacobian) In() []Role   { return f.in }
func (f *fdJacobian) Out() []Role  { return f.out }

func (f *fdJacobian) Call(arg, res [][]float64) error {
	for k := range f.base.in {
		f.args[k] = arg[f.argIdx[k]]
	}
	if err := f.base.fn(f.args, f.f0); err != nil {
		return err
	}
	x := arg[f.argIdx[f.wrtIdx]]
	jac := res[0]
	for j := 0; j < f.nCol; j++ {
		copy(f.pert, x)
		h := fdEps * (1 + math.Abs(x[j]))
		f.pert[j] += h
		f.args[f.wrtIdx] = f.pert
		if err := f.base.fn(f.args, f.f1); err != nil {
			return err
		}
		f.args[f.wrtIdx] = x
		col := f.f1[f.ofIdx]
		base := f.f0[f.ofIdx]
		for i := 0; i < f.nRow; i++ {
			jac[i*f.nCol+j] = (col[i] - base[i]) / h
		}
	}
	return nil
}
