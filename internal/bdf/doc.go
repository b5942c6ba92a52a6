// Package bdf implements an implicit integration engine for
// differential-algebraic equations F(t, y, y') = 0, using a
// variable-step backward-differentiation formula of orders 1-2 with a
// Newton corrector.
//
// The engine is deliberately narrow: it owns step-size control, order
// selection, the consistent-initial-condition solve, quadrature
// accumulation, and checkpoint taping for backward (adjoint)
// integration. Everything problem-specific arrives through callbacks:
// the residual, an optional quadrature right-hand side, and the linear
// solver used by the corrector, either as externally factorized
// direct-solve hooks or as a preconditioned Krylov iteration.
//
// A Solver is single-threaded; independent Solver instances may run
// concurrently on separate goroutines.
package bdf
