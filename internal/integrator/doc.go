// Package integrator provides the DAE integrator facade: it drives the
// implicit engine in package bdf through the named-function table of an
// oracle.Provider, wires the Newton corrector to a linsol.Solver, and
// manages the forward/adjoint lifecycle (consistent initial
// conditions, quadratures, checkpoint taping and backward
// integration).
//
// The facade is split in two: the solver object created by New
// (configuration, dimensions, named functions, assembled Jacobians),
// and per-instance Memory objects that own the integration state. The
// named functions carry evaluation scratch, so a solver and its Memory
// instances belong to one goroutine at a time; for concurrent runs
// build one solver per goroutine, as sim.Ensemble does.
package integrator
