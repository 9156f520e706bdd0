package admission

import (
	"time"

	"github.com/ShagaDAO/gap/internal/domain/archive"
	"github.com/ShagaDAO/gap/internal/domain/dedupe"
	"github.com/ShagaDAO/gap/internal/domain/fingerprint"
	"github.com/ShagaDAO/gap/internal/domain/scoring"
	"github.com/ShagaDAO/gap/internal/domain/validator"
	"github.com/ShagaDAO/gap/pkg/logger"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithValidator(v *validator.Validator) Option {
	return func(p *Pipeline) {
		if v != nil {
			p.validator = v
		}
	}
}

func WithEngine(e *fingerprint.Engine) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.engine = e
		}
	}
}

func WithScorer(s *scoring.Scorer) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.scorer = s
		}
	}
}

func WithExtractor(e *archive.Extractor) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.extractor = e
		}
	}
}

// WithCache sets the fingerprint cache read before and updated after an
// admission.
func WithCache(c dedupe.Cache) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.cache = c
		}
	}
}

// WithTimeout bounds one admission end to end. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d >= 0 {
			p.timeout = d
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}
