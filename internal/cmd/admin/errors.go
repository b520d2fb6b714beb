package admin

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitUsage    = 1
	ExitRejected = 2
	ExitFailure  = 3
)

// usageError marks malformed or missing arguments.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// rejectedError marks a request refused before anything was changed.
type rejectedError struct{ err error }

func (e *rejectedError) Error() string { return e.err.Error() }
func (e *rejectedError) Unwrap() error { return e.err }

func rejectedf(format string, args ...any) error {
	return &rejectedError{err: fmt.Errorf(format, args...)}
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	var ue *usageError
	var re *rejectedError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &ue):
		return ExitUsage
	case errors.As(err, &re):
		return ExitRejected
	}
	return ExitFailure
}
