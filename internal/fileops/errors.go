package fileops

import (
	"errors"

	"github.com/Cyclone1070/gatekeep/internal/gateerr"
)

var (
	ErrPathRequired    = errors.New("path is required")
	ErrIsDirectory     = errors.New("path is a directory")
	ErrNotADirectory   = errors.New("path exists and is not a directory")
	ErrFileTooLarge    = errors.New("content exceeds maximum file size")
	ErrParentMissing   = errors.New("parent directory does not exist")
	ErrInvalidMaxSize  = errors.New("maxSize must not be negative")
	ErrNoEditFunction  = errors.New("edit has no apply function")
	ErrRollbackFailed  = errors.New("rollback after failed write was incomplete")
	ErrUnknownEditPath = errors.New("edit produced content for a path it did not load")
)

func invalid(err error) error {
	return gateerr.Wrap(gateerr.KindInvalidParams, err.Error(), err)
}

func notFound(msg string) error {
	return gateerr.New(gateerr.KindNotFound, msg)
}
