package integrator

import (
	"errors"
	"fmt"

	"github.com/san-kum/daesim/internal/bdf"
)

// ConfigurationError reports a structural problem detected before any
// numerical work starts: inconsistent option dimensions, a malformed
// time grid, a missing oracle function.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "integrator: " + e.Msg
}

func configErrf(format string, a ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, a...)}
}

// DomainError reports a time target outside the configured grid, or an
// operation invoked in the wrong lifecycle phase.
type DomainError struct {
	Op  string
	T   float64
	Msg string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("integrator: %s at t=%g: %s", e.Op, e.T, e.Msg)
}

// EngineError wraps a failure surfaced by the stepping engine. Flag
// carries the engine's symbolic failure name (CONV_FAIL, ERR_FAIL and
// so on) so callers and logs can tell a stiff-problem breakdown from a
// tolerance failure.
type EngineError struct {
	Op   string
	Flag string
	Err  error
}

func (e *EngineError) Error() string {
	if e.Flag != "" {
		return fmt.Sprintf("integrator: %s: engine returned %s: %v", e.Op, e.Flag, e.Err)
	}
	return fmt.Sprintf("integrator: %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// FatalCallbackError marks an oracle evaluation failure the engine must
// not retry. Recoverable oracle failures are translated to the engine's
// retry sentinel instead and never reach the caller in this form.
type FatalCallbackError struct {
	Fn  string
	Err error
}

func (e *FatalCallbackError) Error() string {
	return fmt.Sprintf("integrator: %s: %v", e.Fn, e.Err)
}

func (e *FatalCallbackError) Unwrap() error { return e.Err }

// check translates an engine error into an EngineError tagged with the
// operation that triggered it. A FatalCallbackError travelling up
// through the engine is passed through untouched.
func check(err error, op string) error {
	if err == nil {
		return nil
	}
	var fe *FatalCallbackError
	if errors.As(err, &fe) {
		return fe
	}
	return &EngineError{Op: op, Flag: bdf.Name(err), Err: err}
}
