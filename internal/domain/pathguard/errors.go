package pathguard

import "errors"

var (
	// ErrEscapesRoot is returned for any candidate that does not resolve to a
	// strict descendant of the root.
	ErrEscapesRoot = errors.New("path escapes root")
	// ErrInvalidRoot is returned when the root cannot be canonicalized.
	ErrInvalidRoot = errors.New("invalid root")
)
