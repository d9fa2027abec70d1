package fs

import (
	"errors"
	"fmt"
)

// OpError records a failed step of a compound filesystem operation.
type OpError struct {
	Op    string
	Path  string
	Cause error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *OpError) Unwrap() error { return e.Cause }

// IOError marks the error as an unexpected I/O failure.
func (e *OpError) IOError() bool { return true }

var (
	ErrIsDirectory = errors.New("is a directory")
)
