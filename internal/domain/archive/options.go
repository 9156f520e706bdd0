package archive

import "github.com/ShagaDAO/gap/pkg/logger"

const (
	defaultMaxEntries     = 10_000
	defaultMaxTotalBytes  = 2 << 30
	defaultMaxExpansion   = 20.0
	defaultChunkSize      = 1 << 20
	defaultDirPermissions = 0o755
)

// Limits bounds what an archive may expand into.
type Limits struct {
	MaxEntries    int
	MaxTotalBytes int64
	MaxExpansion  float64
}

// DefaultLimits returns 10,000 files, 2 GiB and 20x expansion.
func DefaultLimits() Limits {
	return Limits{
		MaxEntries:    defaultMaxEntries,
		MaxTotalBytes: defaultMaxTotalBytes,
		MaxExpansion:  defaultMaxExpansion,
	}
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLimits replaces the extraction limits. Non-positive fields keep
// their defaults.
func WithLimits(l Limits) Option {
	return func(e *Extractor) {
		if l.MaxEntries > 0 {
			e.limits.MaxEntries = l.MaxEntries
		}
		if l.MaxTotalBytes > 0 {
			e.limits.MaxTotalBytes = l.MaxTotalBytes
		}
		if l.MaxExpansion > 0 {
			e.limits.MaxExpansion = l.MaxExpansion
		}
	}
}

// WithChunkSize sets the streaming copy buffer size.
func WithChunkSize(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.log = l
		}
	}
}
