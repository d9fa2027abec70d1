package execution

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutError is returned when a process outlives its deadline.
type TimeoutError struct {
	Command  string
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %s timed out after %v", e.Command, e.Duration)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// StartError is returned when the process could not be spawned.
type StartError struct {
	Command string
	Cause   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Command, e.Cause)
}

func (e *StartError) Unwrap() error {
	return e.Cause
}

var (
	ErrCommandRequired   = errors.New("command is required")
	ErrNegativeTimeout   = errors.New("timeoutMs must not be negative")
	ErrInvalidEnv        = errors.New("environment variable names must be non-empty and contain no '=' or NUL")
	ErrProcessNotFound   = errors.New("no such process")
	ErrProcessIDRequired = errors.New("processId is required")
	ErrUnknownBuildType  = errors.New("unknown build type")
	ErrNoBuildDetected   = errors.New("could not detect a build system")
	ErrShuttingDown      = errors.New("execution engine is shutting down")
)
