package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithRetention caps how many finished jobs are kept. Pending and running
// jobs are never evicted.
func WithRetention(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
