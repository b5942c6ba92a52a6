package bdf

import "math"

// Family selects the Krylov iteration used when no direct solver is
// installed.
type Family int

const (
	GMRES Family = iota
	BiCGStab
	TFQMR
)

func (f Family) String() string {
	switch f {
	case GMRES:
		return "gmres"
	case BiCGStab:
		return "bcgstab"
	case TFQMR:
		return "tfqmr"
	}
	return "unknown"
}

// safety factor between the linear tolerance and the Newton tolerance
const krylovTol = 0.05

type krylov struct {
	family Family
	maxDim int
	jt     JacTimesFn
	psetup PrecSetupFn
	psolve PrecSolveFn

	// scratch, sized on first solve
	n                          int
	basis                      [][]float64 // maxDim+1 Krylov vectors
	hess                       [][]float64 // (maxDim+1) x maxDim Hessenberg
	cs, sn, g, y               []float64
	t1, t2, t3, t4, t5, t6, t7 []float64
	dq                         []float64 // perturbed state for difference-quotient matvec
	dqp                        []float64
}

// SetKrylov attaches an iterative linear solver to the Newton
// corrector. The Jacobian-vector product defaults to a difference
// quotient of the residual unless SetJacTimes is called.
func (s *Solver) SetKrylov(f Family, maxDim int) {
	if maxDim <= 0 {
		maxDim = 5
	}
	s.kry = &krylov{family: f, maxDim: maxDim}
	s.dsetup = nil
	s.dsolve = nil
}

// SetJacTimes installs an analytic Jacobian-vector product.
func (s *Solver) SetJacTimes(jt JacTimesFn) {
	if s.kry != nil {
		s.kry.jt = jt
	}
}

// SetPreconditioner installs the preconditioner pair. setup is invoked
// under the same staleness policy as a direct factorization; solve
// applies the inverse preconditioner.
func (s *Solver) SetPreconditioner(setup PrecSetupFn, solve PrecSolveFn) {
	if s.kry != nil {
		s.kry.psetup = setup
		s.kry.psolve = solve
	}
}

func (k *krylov) ensure(n int) {
	if k.n == n {
		return
	}
	k.n = n
	k.basis = make([][]float64, k.maxDim+1)
	for i := range k.basis {
		k.basis[i] = make([]float64, n)
	}
	k.hess = make([][]float64, k.maxDim+1)
	for i := range k.hess {
		k.hess[i] = make([]float64, k.maxDim)
	}
	k.cs = make([]float64, k.maxDim)
	k.sn = make([]float64, k.maxDim)
	k.g = make([]float64, k.maxDim+1)
	k.y = make([]float64, k.maxDim)
	k.t1 = make([]float64, n)
	k.t2 = make([]float64, n)
	k.t3 = make([]float64, n)
	k.t4 = make([]float64, n)
	k.t5 = make([]float64, n)
	k.t6 = make([]float64, n)
	k.t7 = make([]float64, n)
	k.dq = make([]float64, n)
	k.dqp = make([]float64, n)
}

// solve overwrites b with an approximate solution of J x = b using the
// configured Krylov family with right preconditioning.
//
// The iteration runs on the scaled system (W J W^{-1})(W x) = W b with
// W = diag(ewt), so the stopping test measures the linear residual in
// the same weighted norm the Newton corrector uses. Unscaled, a small
// badly-weighted component (an algebraic variable near zero) is
// invisible to the 2-norm and its correction gets dropped.
func (k *krylov) solve(s *Solver, t, cj float64, yy, yp, b []float64) error {
	k.ensure(s.n)
	ewt := s.ewt
	for i := range b {
		b[i] *= ewt[i]
	}
	// ||W r||_2 <= tol is wrms(r) <= krylovTol*newtonTol.
	tol := krylovTol * newtonTol * math.Sqrt(float64(s.n))

	// A v = W J P^{-1} W^{-1} v; the unscaled unpreconditioned
	// solution is recovered below.
	av := func(v, w []float64) error {
		for i := range v {
			k.t6[i] = v[i] / ewt[i]
		}
		if k.psolve != nil {
			if err := k.psolve(t, yy, yp, k.t6, k.t6, cj); err != nil {
				return err
			}
		}
		if err := k.jacTimes(s, t, cj, yy, yp, k.t6, w); err != nil {
			return err
		}
		for i := range w {
			w[i] *= ewt[i]
		}
		return nil
	}

	var err error
	switch k.family {
	case BiCGStab:
		err = k.bicgstab(av, b, tol)
	case TFQMR:
		err = k.tfqmr(av, b, tol)
	default:
		err = k.gmres(av, b, tol)
	}
	if err != nil {
		return err
	}
	for i := range b {
		b[i] /= ewt[i]
	}
	if k.psolve != nil {
		return k.psolve(t, yy, yp, b, b, cj)
	}
	return nil
}

func (k *krylov) jacTimes(s *Solver, t, cj float64, yy, yp, v, jv []float64) error {
	if k.jt != nil {
		return k.jt(t, yy, yp, v, jv, cj)
	}
	// Difference quotient against the residual s.rr evaluated by the
	// corrector at (yy, yp).
	vw := s.wrms(v, s.ewt)
	if vw == 0 {
		clear(jv)
		return nil
	}
	sig := 1 / vw
	for i := range k.dq {
		k.dq[i] = yy[i] + sig*v[i]
		k.dqp[i] = yp[i] + sig*cj*v[i]
	}
	s.stats.ResEvals++
	if err := s.res(t, k.dq, k.dqp, jv); err != nil {
		return err
	}
	for i := range jv {
		jv[i] = (jv[i] - s.rr[i]) / sig
	}
	return nil
}

func (k *krylov) gmres(av func(v, w []float64) error, b []float64, tol float64) error {
	beta := nrm2(b)
	if beta <= tol {
		clear(b)
		return nil
	}
	v0 := k.basis[0]
	for i := range v0 {
		v0[i] = b[i] / beta
	}
	clear(k.g)
	k.g[0] = beta

	m := 0
	for j := 0; j < k.maxDim; j++ {
		w := k.basis[j+1]
		if err := av(k.basis[j], w); err != nil {
			return err
		}
		for i := 0; i <= j; i++ {
			h := dot(w, k.basis[i])
			k.hess[i][j] = h
			axpy(-h, k.basis[i], w)
		}
		hj1 := nrm2(w)
		k.hess[j+1][j] = hj1
		if hj1 != 0 {
			scal(1/hj1, w)
		}
		for i := 0; i < j; i++ {
			h0 := k.cs[i]*k.hess[i][j] + k.sn[i]*k.hess[i+1][j]
			k.hess[i+1][j] = -k.sn[i]*k.hess[i][j] + k.cs[i]*k.hess[i+1][j]
			k.hess[i][j] = h0
		}
		r := math.Hypot(k.hess[j][j], k.hess[j+1][j])
		if r == 0 {
			r = uround
		}
		k.cs[j] = k.hess[j][j] / r
		k.sn[j] = k.hess[j+1][j] / r
		k.hess[j][j] = r
		k.hess[j+1][j] = 0
		k.g[j+1] = -k.sn[j] * k.g[j]
		k.g[j] = k.cs[j] * k.g[j]
		m = j + 1
		if math.Abs(k.g[j+1]) <= tol {
			break
		}
	}
	for i := m - 1; i >= 0; i-- {
		sum := k.g[i]
		for l := i + 1; l < m; l++ {
			sum -= k.hess[i][l] * k.y[l]
		}
		k.y[i] = sum / k.hess[i][i]
	}
	clear(b)
	for i := 0; i < m; i++ {
		axpy(k.y[i], k.basis[i], b)
	}
	return nil
}

func (k *krylov) bicgstab(av func(v, w []float64) error, b []float64, tol float64) error {
	r, rhat, p, v, sv, t := k.t1, k.t2, k.t3, k.t4, k.t5, k.basis[0]
	x := k.basis[1]
	copy(r, b)
	copy(rhat, b)
	clear(x)
	clear(p)
	clear(v)
	if nrm2(b) <= tol {
		clear(b)
		return nil
	}
	rho, alpha, omega := 1.0, 1.0, 1.0
	for iter := 0; iter < 2*k.maxDim; iter++ {
		rho1 := dot(rhat, r)
		if rho1 == 0 {
			break
		}
		if iter == 0 {
			copy(p, r)
		} else {
			bet := (rho1 / rho) * (alpha / omega)
			for i := range p {
				p[i] = r[i] + bet*(p[i]-omega*v[i])
			}
		}
		if err := av(p, v); err != nil {
			return err
		}
		alpha = rho1 / dot(rhat, v)
		for i := range sv {
			sv[i] = r[i] - alpha*v[i]
		}
		if nrm2(sv) <= tol {
			axpy(alpha, p, x)
			break
		}
		if err := av(sv, t); err != nil {
			return err
		}
		omega = dot(t, sv) / dot(t, t)
		for i := range x {
			x[i] += alpha*p[i] + omega*sv[i]
		}
		for i := range r {
			r[i] = sv[i] - omega*t[i]
		}
		rho = rho1
		if nrm2(r) <= tol {
			break
		}
	}
	copy(b, x)
	return nil
}

func (k *krylov) tfqmr(av func(v, w []float64) error, b []float64, tol float64) error {
	// t6 is scratch inside av and must not be used for iteration
	// vectors here.
	r0, w, y1, y2, u, v, d, x := k.t1, k.t2, k.t3, k.t4, k.t5, k.t7, k.basis[0], k.basis[1]
	copy(r0, b)
	copy(w, b)
	copy(y1, b)
	clear(d)
	clear(x)
	tau := nrm2(b)
	if tau <= tol {
		clear(b)
		return nil
	}
	if err := av(y1, u); err != nil {
		return err
	}
	copy(v, u)
	rho := dot(r0, r0)
	theta, eta := 0.0, 0.0
	for iter := 0; iter < k.maxDim; iter++ {
		sigma := dot(r0, v)
		if sigma == 0 {
			break
		}
		alpha := rho / sigma
		for i := range y2 {
			y2[i] = y1[i] - alpha*v[i]
		}
		for half := 0; half < 2; half++ {
			// u holds A*y1 on the first half and A*y2 on the second.
			yc := y1
			if half == 1 {
				if err := av(y2, u); err != nil {
					return err
				}
				yc = y2
			}
			axpy(-alpha, u, w)
			thOld, etaOld := theta, eta
			theta = nrm2(w) / tau
			c := 1 / math.Sqrt(1+theta*theta)
			tau = tau * theta * c
			eta = c * c * alpha
			coef := thOld * thOld * etaOld / alpha
			for i := range d {
				d[i] = yc[i] + coef*d[i]
			}
			axpy(eta, d, x)
			if tau*math.Sqrt(float64(2*iter+half+1)) <= tol {
				copy(b, x)
				return nil
			}
		}
		rho1 := dot(r0, w)
		if rho1 == 0 {
			break
		}
		bet := rho1 / rho
		rho = rho1
		for i := range y1 {
			y1[i] = w[i] + bet*y2[i]
		}
		// v = A*y1 + bet*(A*y2 + bet*v); u holds A*y2 here.
		for i := range v {
			v[i] = u[i] + bet*v[i]
		}
		if err := av(y1, u); err != nil {
			return err
		}
		for i := range v {
			v[i] = u[i] + bet*v[i]
		}
	}
	copy(b, x)
	return nil
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func nrm2(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}

func axpy(alpha float64, x, y []float64) {
	for i := range y {
		y[i] += alpha * x[i]
	}
}

func scal(alpha float64, x []float64) {
	for i := range x {
		x[i] *= alpha
	}
}
