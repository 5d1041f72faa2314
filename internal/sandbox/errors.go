package sandbox

import (
	"errors"
	"fmt"
)

var ErrUnknownEvent = errors.New("unknown event")

// UnrecoverableError means the sandbox can no longer serve requests. The
// slave reports it to the engine as a server error.
type UnrecoverableError struct {
	Err error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("sandbox is unrecoverable: %v", e.Err)
}

func (e *UnrecoverableError) Unwrap() error {
	return e.Err
}

// Unrecoverable wraps err as an UnrecoverableError.
func Unrecoverable(err error) error {
	return &UnrecoverableError{Err: err}
}

// AppError means the user code failed while handling an event. It is
// confined to the current invocation.
type AppError struct {
	Err error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("app failed: %v", e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Failed wraps err as an AppError.
func Failed(err error) error {
	return &AppError{Err: err}
}
