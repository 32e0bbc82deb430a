package run

import (
	"context"
	"errors"
	"fmt"
)

const (
	exitCodeSuccess     = 0
	exitCodeFatal       = 1
	exitCodeInterrupted = 130
)

type runExitError struct {
	code int
	msg  string
}

func (e runExitError) Error() string { return e.msg }
func (e runExitError) ExitCode() int { return e.code }

// evaluateRunExit maps the outcome of a run to the process exit. Per-file
// tool failures never change it; only fatal errors and interruption do.
func evaluateRunExit(err error, failures int) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return runExitError{code: exitCodeInterrupted, msg: fmt.Sprintf("interrupted (%d failed tasks so far)", failures)}
	}
	return runExitError{code: exitCodeFatal, msg: err.Error()}
}
