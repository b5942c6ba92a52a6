// Package oracle provides the named-function table that the integrator
// evaluates at every engine callback: a function is identified by a
// logical name ("daeF", "jacB", ...) and a fixed ordered list of
// input/output argument roles, and evaluates into caller-supplied
// buffers without allocating.
//
// A Provider supplies functions on request and may derive ones it was
// never given directly, such as Jacobian blocks or Jacobian-vector
// products; the System provider in this package derives them by finite
// differences.
package oracle
