package path

import (
	"errors"
	"fmt"
)

// RootError is returned when the project root is unusable.
type RootError struct {
	Root  string
	Cause error
}

func (e *RootError) Error() string {
	return fmt.Sprintf("invalid project root %s: %v", e.Root, e.Cause)
}
func (e *RootError) Unwrap() error { return e.Cause }

var (
	ErrOutsideRoot   = errors.New("path is outside project root")
	ErrDenied        = errors.New("path matches a denied pattern")
	ErrSymlinkLoop   = errors.New("symlink loop or chain too long")
	ErrEmptyPath     = errors.New("path is empty")
	ErrInvalidPath   = errors.New("path is malformed")
	ErrNotADirectory = errors.New("not a directory")
)
