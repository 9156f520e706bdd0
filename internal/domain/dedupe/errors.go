package dedupe

import "errors"

var (
	ErrCacheLocked  = errors.New("fingerprint cache is locked")
	ErrCorruptCache = errors.New("fingerprint cache is corrupt")
)
