package codeedit

import "errors"

var (
	errEmptyMatch    = errors.New("pattern matches the empty string")
	errOverlap       = errors.New("quick fix contains overlapping edits")
	errStaleRange    = errors.New("edit range does not match the current file content")
	errNoEdits       = errors.New("quick fix has no edits")
	errEditFileEmpty = errors.New("edit has no file")
)
