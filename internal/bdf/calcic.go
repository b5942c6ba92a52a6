package bdf

import "errors"

const (
	maxICIter = 10
	icTol     = 0.01 // in error-weight units
)

// CalcIC corrects the algebraic components of y and the differential
// components of y' (per the id vector) so that F(t0, y, y') = 0 before
// the first step. tout1, the first requested output time, fixes the
// scale of the step-like quantity cj in the iteration matrix.
//
// The corrected values are read back with ConsistentIC.
func (s *Solver) CalcIC(tout1 float64) error {
	if s.res == nil {
		return engErr(FlagIllInput, "solver not initialized")
	}
	h := 1e-3 * (tout1 - s.t)
	if h == 0 {
		return engErr(FlagIllInput, "first output time equals the initial time %g", s.t)
	}
	cj := 1 / h
	s.updateEwt()
	if err := s.lsetup(s.t, cj, s.yn, s.ypn); err != nil {
		return wrapErr(FlagLSetupFail, "linear solver setup", err)
	}
	s.stats.LinSetups++
	s.cjLast = cj
	s.cjRatio = 1
	s.forceSetup = true // the step loop uses a different cj

	for iter := 0; iter < maxICIter; iter++ {
		s.stats.ResEvals++
		if err := s.res(s.t, s.yn, s.ypn, s.rr); err != nil {
			if errors.Is(err, Recoverable) {
				return engErr(FlagNoRecovery, "residual unrecoverable during initial-condition correction")
			}
			return wrapErr(FlagResFail, "residual evaluation", err)
		}
		copy(s.delta, s.rr)
		if err := s.linSolve(s.t, cj, s.yn, s.ypn, s.delta); err != nil {
			return wrapErr(FlagLSolveFail, "linear solve", err)
		}
		// Differential components absorb the correction through their
		// derivative, algebraic components directly.
		for i := range s.yn {
			if s.id == nil || s.id[i] != 0 {
				s.ypn[i] -= cj * s.delta[i]
			} else {
				s.yn[i] -= s.delta[i]
			}
		}
		if s.wrms(s.delta, s.ewt) < icTol {
			return nil
		}
	}
	return engErr(FlagNoRecovery, "initial-condition correction did not converge at t = %g", s.t)
}

// ConsistentIC copies the corrected initial state and derivative into
// yy and yp.
func (s *Solver) ConsistentIC(yy, yp []float64) {
	copy(yy, s.yn)
	copy(yp, s.ypn)
}
