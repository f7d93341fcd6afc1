package macro

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateName is returned when a function name is already taken
	ErrDuplicateName = errors.New("function name already exists")

	// ErrNotFound is returned when a function does not exist
	ErrNotFound = errors.New("function not found")

	// ErrLastFunction is returned when deleting the only remaining function
	ErrLastFunction = errors.New("cannot delete the last function")

	// ErrIndexOutOfRange is returned for a step index outside [1, len]
	ErrIndexOutOfRange = errors.New("step index out of range")

	// ErrInvalidName is returned for a blank function name
	ErrInvalidName = errors.New("function name is empty")

	// ErrInvalidStep is returned when a step's fields do not fit its kind
	ErrInvalidStep = errors.New("invalid step")
)

func indexError(index, length int) error {
	return fmt.Errorf("%w: %d (function has %d steps)", ErrIndexOutOfRange, index, length)
}

func invalidStep(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidStep, fmt.Sprintf(format, args...))
}
