package utils

import (
	"errors"
	"fmt"
)

// ErrorExitCode represents different types of errors with their exit codes
type ErrorExitCode int

const (
	ExitCodeGeneral    ErrorExitCode = 1
	ExitCodeValidation ErrorExitCode = 1
	ExitCodeConnection ErrorExitCode = 2
	ExitCodeFileSystem ErrorExitCode = 3
	ExitCodeTimeout    ErrorExitCode = 5
)

// ExitError carries the process exit code for a failed command
type ExitError struct {
	Code ErrorExitCode
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// WithExitCode tags err with an exit code. A nil err stays nil.
func WithExitCode(err error, code ErrorExitCode) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

// ConnectionError wraps a QMP connection failure
func ConnectionError(vmid string, err error) error {
	return WithExitCode(fmt.Errorf("failed to connect to VM %s: %w", vmid, err), ExitCodeConnection)
}

// FileSystemError wraps a file operation failure
func FileSystemError(operation string, path string, err error) error {
	return WithExitCode(fmt.Errorf("failed to %s '%s': %w", operation, path, err), ExitCodeFileSystem)
}

// ExitCode returns the code a command error should exit with
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return int(ee.Code)
	}
	return int(ExitCodeGeneral)
}
