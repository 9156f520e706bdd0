package fingerprint

import "github.com/ShagaDAO/gap/pkg/logger"

// Option configures an Engine.
type Option func(*Engine)

// WithSampler replaces the frame sampler.
func WithSampler(s FrameSampler) Option {
	return func(e *Engine) {
		if s != nil {
			e.sampler = s
		}
	}
}

// WithWorkers bounds concurrent frame hashing.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}
