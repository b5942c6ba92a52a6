package bdf

import (
	"errors"
	"fmt"
)

// Flag classifies an engine failure. The names follow the convention
// implicit solvers use in their diagnostics and are surfaced verbatim
// by Error.
type Flag int

const (
	FlagTooMuchWork Flag = iota // step budget exhausted before reaching tout
	FlagConvFail                // Newton corrector failed to converge repeatedly
	FlagErrFail                 // error test failed repeatedly at minimum step
	FlagResFail                 // residual callback reported a fatal failure
	FlagRepResErr               // residual kept reporting recoverable failures
	FlagLSetupFail              // linear solver setup hook failed
	FlagLSolveFail              // linear solver solve hook failed
	FlagBadT                    // requested time outside the reachable interval
	FlagTooClose                // tout indistinguishable from the current time
	FlagIllInput                // inconsistent solver configuration or arguments
	FlagNoRecovery              // initial-condition correction did not converge
)

var flagNames = map[Flag]string{
	FlagTooMuchWork: "TOO_MUCH_WORK",
	FlagConvFail:    "CONV_FAIL",
	FlagErrFail:     "ERR_FAIL",
	FlagResFail:     "RES_FAIL",
	FlagRepResErr:   "REP_RES_ERR",
	FlagLSetupFail:  "LSETUP_FAIL",
	FlagLSolveFail:  "LSOLVE_FAIL",
	FlagBadT:        "BAD_T",
	FlagTooClose:    "TOO_CLOSE",
	FlagIllInput:    "ILL_INPUT",
	FlagNoRecovery:  "NO_RECOVERY",
}

func (f Flag) String() string {
	if s, ok := flagNames[f]; ok {
		return s
	}
	return fmt.Sprintf("FLAG(%d)", int(f))
}

// Error is a failed engine operation. Name carries the diagnostic flag
// string callers embed in their own error messages.
type Error struct {
	Flag Flag
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Flag.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Name returns the diagnostic flag string of err if it is an engine
// error, or the empty string.
func Name(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Flag.String()
	}
	return ""
}

func engErr(f Flag, format string, args ...any) *Error {
	return &Error{Flag: f, Msg: fmt.Sprintf(format, args...)}
}

func wrapErr(f Flag, msg string, err error) *Error {
	return &Error{Flag: f, Msg: msg, Err: err}
}

// Recoverable marks a callback failure the engine should answer by
// retrying the current step with a smaller step size. Callbacks signal
// it by returning an error wrapping this sentinel.
var Recoverable = errors.New("bdf: recoverable callback failure")
