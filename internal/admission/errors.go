package admission

import "errors"

var (
	ErrUnsupportedScheme = errors.New("unsupported source scheme")
	ErrUnsupportedSource = errors.New("source is neither a shard directory nor a supported archive")
	ErrSourceNotFound    = errors.New("source not found")
	ErrTimeout           = errors.New("admission timed out")
	ErrNothingToEnroll   = errors.New("shard produced no fingerprints")
)
