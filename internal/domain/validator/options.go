package validator

import (
	"github.com/ShagaDAO/gap/internal/domain/profile"
	"github.com/ShagaDAO/gap/internal/domain/shard"
	"github.com/ShagaDAO/gap/pkg/logger"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	defaultMaxVideoBytes = 512 << 20
	defaultDriftRateHz   = 60.0
	defaultHashWorkers   = 4
)

// Option configures a Validator.
type Option func(*Validator)

// WithLimits sets the meta and controls read caps.
func WithLimits(l shard.Limits) Option {
	return func(v *Validator) {
		if l.MaxMetaBytes > 0 {
			v.limits.MaxMetaBytes = l.MaxMetaBytes
		}
		if l.MaxControlsBytes > 0 {
			v.limits.MaxControlsBytes = l.MaxControlsBytes
		}
		if l.MaxRecords > 0 {
			v.limits.MaxRecords = l.MaxRecords
		}
	}
}

// WithMaxVideoBytes caps the video file size.
func WithMaxVideoBytes(n int64) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxVideoBytes = n
		}
	}
}

// WithRegistry replaces the profile registry.
func WithRegistry(r *profile.Registry) Option {
	return func(v *Validator) {
		if r != nil {
			v.registry = r
		}
	}
}

// WithMetaSchema sets the compiled meta.json schema. A nil schema selects
// the manual field checks.
func WithMetaSchema(s *jsonschema.Schema) Option {
	return func(v *Validator) {
		v.schema = s
		v.schemaSet = true
	}
}

// WithDriftSampleRate sets the rate assumed by the drift heuristic when the
// shard does not declare one.
func WithDriftSampleRate(hz float64) Option {
	return func(v *Validator) {
		if hz > 0 {
			v.driftRateHz = hz
		}
	}
}

// WithHashWorkers bounds concurrent file hashing.
func WithHashWorkers(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.hashWorkers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.log = l
		}
	}
}
