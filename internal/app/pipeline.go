package app

import (
	"fmt"
	"time"

	"github.com/ShagaDAO/gap/internal/admission"
	"github.com/ShagaDAO/gap/internal/config"
	"github.com/ShagaDAO/gap/internal/domain/archive"
	"github.com/ShagaDAO/gap/internal/domain/dedupe"
	"github.com/ShagaDAO/gap/internal/domain/fingerprint"
	"github.com/ShagaDAO/gap/internal/domain/shard"
	"github.com/ShagaDAO/gap/internal/domain/validator"
	"github.com/ShagaDAO/gap/pkg/logger"
)

// NewPipeline builds an admission pipeline from configuration. The daemon
// and the CLI share it so both enforce the same limits.
func NewPipeline(cfg *config.Config, log logger.Logger) (*admission.Pipeline, error) {
	if log == nil {
		log = logger.Get()
	}

	vopts := []validator.Option{
		validator.WithLimits(shard.Limits{
			MaxMetaBytes:     cfg.MaxMetaBytes,
			MaxControlsBytes: cfg.MaxControlsBytes,
			MaxRecords:       cfg.MaxControlsRecords,
		}),
		validator.WithMaxVideoBytes(cfg.MaxVideoBytes),
		validator.WithDriftSampleRate(cfg.DriftSampleRateHz),
		validator.WithHashWorkers(cfg.HashWorkers),
		validator.WithLogger(log.Named("validator")),
	}
	if cfg.MetaSchemaPath != "" {
		schema, err := validator.LoadMetaSchema(cfg.MetaSchemaPath)
		if err != nil {
			return nil, fmt.Errorf("meta schema: %w", err)
		}
		vopts = append(vopts, validator.WithMetaSchema(schema))
	}

	interval := time.Duration(cfg.FrameIntervalSec * float64(time.Second))
	engine := fingerprint.New(
		fingerprint.WithSampler(fingerprint.NewFFmpegSampler(cfg.FFmpegPath, interval, cfg.MaxFrames)),
		fingerprint.WithLogger(log.Named("fingerprint")),
	)

	return admission.New(
		admission.WithValidator(validator.New(vopts...)),
		admission.WithEngine(engine),
		admission.WithExtractor(NewExtractor(cfg, log)),
		admission.WithCache(NewCache(cfg, log)),
		admission.WithTimeout(cfg.ValidationTimeout()),
		admission.WithLogger(log.Named("admission")),
	), nil
}

// NewCache opens the configured fingerprint cache. Without a path the
// cache lives in memory and is lost on exit.
func NewCache(cfg *config.Config, log logger.Logger) dedupe.Cache {
	if cfg.FingerprintCachePath == "" {
		return dedupe.NewMemoryCache()
	}
	return dedupe.NewFileCache(cfg.FingerprintCachePath,
		dedupe.WithLockTimeout(cfg.CacheLockTimeout()),
		dedupe.WithLogger(log.Named("cache")),
	)
}

// NewExtractor returns an archive extractor bounded by the configured
// archive limits.
func NewExtractor(cfg *config.Config, log logger.Logger) *archive.Extractor {
	return archive.NewExtractor(
		archive.WithLimits(archive.Limits{
			MaxEntries:    cfg.MaxArchiveEntries,
			MaxTotalBytes: cfg.MaxArchiveBytes,
			MaxExpansion:  cfg.MaxExpansionRatio,
		}),
		archive.WithLogger(log.Named("archive")),
	)
}
