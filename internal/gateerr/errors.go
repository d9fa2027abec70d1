// Package gateerr defines the error taxonomy returned to gateway callers.
package gateerr

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Kind identifies a class of error for programmatic handling.
type Kind string

const (
	KindInvalidParams        Kind = "INVALID_PARAMS"
	KindPathRejected         Kind = "PATH_REJECTED"
	KindCommandBlocked       Kind = "COMMAND_BLOCKED"
	KindNotFound             Kind = "NOT_FOUND"
	KindPermissionDenied     Kind = "PERMISSION_DENIED"
	KindConfirmationRequired Kind = "CONFIRMATION_REQUIRED"
	KindTimeout              Kind = "TIMEOUT"
	KindBackupFailed         Kind = "BACKUP_FAILED"
	KindBackpressure         Kind = "BACKPRESSURE"
	KindInternal             Kind = "INTERNAL_ERROR"
)

// Error wraps an underlying error with a kind and a caller-safe message.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// New creates a new error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new error of the given kind that wraps err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetails attaches structured details and returns the same error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Sentinels usable with errors.Is to test for a kind.
var (
	ErrInvalidParams        = &Error{Kind: KindInvalidParams}
	ErrPathRejected         = &Error{Kind: KindPathRejected}
	ErrCommandBlocked       = &Error{Kind: KindCommandBlocked}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrPermissionDenied     = &Error{Kind: KindPermissionDenied}
	ErrConfirmationRequired = &Error{Kind: KindConfirmationRequired}
	ErrTimeout              = &Error{Kind: KindTimeout}
	ErrBackupFailed         = &Error{Kind: KindBackupFailed}
	ErrBackpressure         = &Error{Kind: KindBackpressure}
	ErrInternal             = &Error{Kind: KindInternal}
)

// Panic converts a recovered panic value into an Internal error.
func Panic(r any) *Error {
	return Newf(KindInternal, "panic: %v", r)
}

// KindOf classifies err. Unclassified errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}

	// Behavioural interfaces implemented by typed errors in other packages.
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return KindTimeout
	}
	var outside interface{ OutsideWorkspace() bool }
	if errors.As(err, &outside) && outside.OutsideWorkspace() {
		return KindPathRejected
	}
	var invalid interface{ InvalidInput() bool }
	if errors.As(err, &invalid) && invalid.InvalidInput() {
		return KindInvalidParams
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return KindNotFound
	case errors.Is(err, os.ErrPermission):
		return KindPermissionDenied
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindInternal
}

// Public returns the message that may be shown to a caller for err.
// Internal errors get a generic message so paths and causes do not leak.
func Public(err error) string {
	if err == nil {
		return ""
	}
	kind := KindOf(err)
	if kind == KindInternal {
		return "internal error"
	}
	var ge *Error
	if errors.As(err, &ge) && ge.Message != "" {
		return ge.Message
	}
	switch kind {
	case KindNotFound:
		return "not found"
	case KindPermissionDenied:
		return "permission denied"
	case KindTimeout:
		return "operation timed out"
	}
	return err.Error()
}
