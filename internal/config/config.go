// Package config defines gap configuration and its loading hooks.
package config

import (
	"fmt"
	"runtime"
	"time"
)

const (
	mib = 1 << 20
	gib = 1 << 30
)

// Config contains process configuration shared by the CLI and the daemon.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Shard file limits.
	MaxVideoBytes      int64 `koanf:"max_video_bytes"`
	MaxControlsBytes   int64 `koanf:"max_controls_bytes"`
	MaxControlsRecords int64 `koanf:"max_controls_records"`
	MaxMetaBytes       int64 `koanf:"max_meta_bytes"`

	// Archive guards.
	MaxArchiveEntries int     `koanf:"max_archive_entries"`
	MaxArchiveBytes   int64   `koanf:"max_archive_bytes"`
	MaxExpansionRatio float64 `koanf:"max_expansion_ratio"`

	// FingerprintCachePath points at the JSON fingerprint cache. Empty keeps
	// the cache in memory.
	FingerprintCachePath string `koanf:"fingerprint_cache_path"`
	CacheLockTimeoutSec  int    `koanf:"cache_lock_timeout_sec"`
	UpdateCache          bool   `koanf:"update_cache"`

	// Frame sampling for the perceptual hash.
	FrameIntervalSec float64 `koanf:"frame_interval_sec"`
	MaxFrames        int     `koanf:"max_frames"`
	FFmpegPath       string  `koanf:"ffmpeg_path"`

	// Validator knobs.
	DefaultProfile    string  `koanf:"default_profile"`
	Strict            bool    `koanf:"strict"`
	MetaSchemaPath    string  `koanf:"meta_schema_path"`
	DriftSampleRateHz float64 `koanf:"drift_sample_rate_hz"`
	HashWorkers       int     `koanf:"hash_workers"`

	// SourceRoot confines sources submitted to the daemon. Empty accepts
	// any local path.
	SourceRoot string `koanf:"source_root"`

	// Hosting limits.
	QueueSize            int `koanf:"queue_size"`
	WorkerCount          int `koanf:"worker_count"`
	ValidationTimeoutSec int `koanf:"validation_timeout_sec"`
	ReportRetention      int `koanf:"report_retention"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		MaxVideoBytes:        512 * mib,
		MaxControlsBytes:     100 * mib,
		MaxControlsRecords:   5_000_000,
		MaxMetaBytes:         4 * mib,
		MaxArchiveEntries:    10_000,
		MaxArchiveBytes:      2 * gib,
		MaxExpansionRatio:    20,
		CacheLockTimeoutSec:  30,
		FrameIntervalSec:     5,
		MaxFrames:            100,
		FFmpegPath:           "ffmpeg",
		DriftSampleRateHz:    60,
		HashWorkers:          4,
		QueueSize:            1024,
		WorkerCount:          runtime.NumCPU(),
		ValidationTimeoutSec: 300,
		ReportRetention:      10_000,
	}
}

// ValidationTimeout returns the per-submission wall-clock budget.
func (c *Config) ValidationTimeout() time.Duration {
	return time.Duration(c.ValidationTimeoutSec) * time.Second
}

// CacheLockTimeout returns how long a cache writer waits for the file lock.
func (c *Config) CacheLockTimeout() time.Duration {
	return time.Duration(c.CacheLockTimeoutSec) * time.Second
}

// Validate rejects configurations that would disable a safety guard.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.MaxVideoBytes <= 0:
		return fmt.Errorf("%w: max_video_bytes must be positive", ErrInvalidConfig)
	case c.MaxControlsBytes <= 0 || c.MaxControlsRecords <= 0:
		return fmt.Errorf("%w: controls caps must be positive", ErrInvalidConfig)
	case c.MaxMetaBytes <= 0:
		return fmt.Errorf("%w: max_meta_bytes must be positive", ErrInvalidConfig)
	case c.MaxArchiveEntries <= 0 || c.MaxArchiveBytes <= 0:
		return fmt.Errorf("%w: archive caps must be positive", ErrInvalidConfig)
	case c.MaxExpansionRatio < 1:
		return fmt.Errorf("%w: max_expansion_ratio must be at least 1", ErrInvalidConfig)
	case c.FrameIntervalSec <= 0 || c.MaxFrames <= 0:
		return fmt.Errorf("%w: frame sampling must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0 || c.QueueSize <= 0:
		return fmt.Errorf("%w: worker_count and queue_size must be positive", ErrInvalidConfig)
	case c.ValidationTimeoutSec <= 0:
		return fmt.Errorf("%w: validation_timeout_sec must be positive", ErrInvalidConfig)
	}
	return nil
}
