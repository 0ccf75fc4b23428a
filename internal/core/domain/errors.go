package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDemoNotFound is returned when no demo is stored under an id.
	ErrDemoNotFound = errors.New("demo not found")

	// ErrLogNotFound is returned when no build log exists for a log id.
	ErrLogNotFound = errors.New("build log not found")

	// ErrPortsExhausted is returned when no host port is left in the
	// configured range.
	ErrPortsExhausted = errors.New("no free port left in range")
)

// ConnectionError reports a failure to talk to the runtime daemon:
// transport errors, protocol errors and call timeouts alike.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("runtime daemon: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NewConnectionError wraps err as a ConnectionError for op. An err that
// already is a ConnectionError is returned as is.
func NewConnectionError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{Op: op, Err: err}
}

// IsConnectionError reports whether err is or wraps a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// BuildError reports that a finished build did not yield a usable image id.
type BuildError struct {
	Reason string
	Err    error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("image build failed: %s: %v", e.Reason, e.Err)
	}
	return "image build failed: " + e.Reason
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// IsBuildError reports whether err is or wraps a BuildError.
func IsBuildError(err error) bool {
	var be *BuildError
	return errors.As(err, &be)
}
