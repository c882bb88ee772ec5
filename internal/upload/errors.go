package upload

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownTask is returned for keys the tracker does not hold.
	ErrUnknownTask = errors.New("unknown upload task")
	// ErrNotQueued is returned when Start is called on a task that already
	// left the queued state.
	ErrNotQueued = errors.New("upload task is not queued")
)

// ValidationError lists every reason a file was refused by the validator.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Reasons, "; ")
}

// TransferError wraps a failure raised by the object store mid-upload.
type TransferError struct {
	Key string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s failed: %v", e.Key, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
