package dedupe

import (
	"time"

	"github.com/ShagaDAO/gap/pkg/logger"
)

// Option configures a FileCache.
type Option func(*FileCache)

// WithLockTimeout bounds how long an operation waits for the cache lock.
func WithLockTimeout(d time.Duration) Option {
	return func(c *FileCache) {
		if d > 0 {
			c.lockTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *FileCache) {
		if l != nil {
			c.log = l
		}
	}
}
