package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores and services for unknown ids.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by stores when a guarded write finds the row
	// changed underneath it. Nothing is written.
	ErrConflict = errors.New("concurrent modification")
	// ErrInvalidInput wraps caller mistakes such as missing ids.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPaymentRequired signals that the shipping fee must be collected
	// before the item can ship. It is a control-flow signal, not a failure.
	ErrPaymentRequired = errors.New("payment required")
)

// TransitionError reports a state change the lifecycle does not allow.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition from %s to %s", e.Entity, e.From, e.To)
}

// PersistenceError reports a store write or read that did not complete.
// State is left as it was before the attempted mutation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// persistErr leaves not-found errors bare so callers can map them directly.
func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &PersistenceError{Op: op, Err: err}
}
