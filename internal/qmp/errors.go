package qmp

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when a method is called on a disconnected client
var ErrNotConnected = errors.New("not connected to QMP socket")

// ErrConnect wraps socket dial failures
var ErrConnect = errors.New("failed to connect to QMP socket")

// ErrCommandFailed is returned when a QMP command fails
func ErrCommandFailed(cmd string, err error) error {
	return fmt.Errorf("command %q failed: %w", cmd, err)
}

// ErrInvalidResponse is returned when an invalid response is received
func ErrInvalidResponse(detail string) error {
	return fmt.Errorf("invalid response: %s", detail)
}
