package fingerprint

import (
	"context"
	"path/filepath"
	"runtime"

	"github.com/ShagaDAO/gap/internal/domain/model"
	"github.com/ShagaDAO/gap/internal/domain/shard"
	"github.com/ShagaDAO/gap/pkg/logger"
	"github.com/ShagaDAO/gap/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Content kinds, used as metric labels.
const (
	KindVideo    = "video"
	KindControls = "controls"
)

// Engine fingerprints shard content. It keeps no state between calls; the
// known fingerprints are passed in by the caller.
type Engine struct {
	sampler FrameSampler
	workers int
	log     logger.Logger
}

// New builds an Engine that samples with ffmpeg unless WithSampler is given.
func New(opts ...Option) *Engine {
	e := &Engine{
		sampler: NewFFmpegSampler("", 0, 0),
		workers: runtime.NumCPU(),
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// VideoHashes samples frames from the video and hashes each of them, in
// frame order.
func (e *Engine) VideoHashes(ctx context.Context, videoPath string) ([]uint64, error) {
	frames, err := e.sampler.Frames(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	hashes := make([]uint64, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, f := range frames {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			hashes[i] = PHash(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hashes, nil
}

// ControlsHash returns the SimHash of the stream's behavioral features.
func ControlsHash(events []shard.ControlEvent) (uint64, error) {
	features := ControlFeatures(events)
	if len(features) == 0 {
		return 0, ErrNoFeatures
	}
	return SimHash(features), nil
}

// CheckVideo fingerprints the video and compares it with known. Failures
// degrade to an unknown risk.
func (e *Engine) CheckVideo(ctx context.Context, videoPath string, known []uint64) (model.FingerprintResult, []uint64) {
	hashes, err := e.VideoHashes(ctx, videoPath)
	if err != nil {
		e.log.Warn(ctx, "video fingerprint unavailable",
			logger.String("video", filepath.Base(videoPath)), logger.Error(err))
		return Unknown(KindVideo, err), nil
	}
	return compare(hashes, known), hashes
}

// CheckControls fingerprints the control stream and compares it with known.
func (e *Engine) CheckControls(ctx context.Context, events []shard.ControlEvent, known []uint64) (model.FingerprintResult, []uint64) {
	h, err := ControlsHash(events)
	if err != nil {
		e.log.Warn(ctx, "controls fingerprint unavailable", logger.Error(err))
		return Unknown(KindControls, err), nil
	}
	hashes := []uint64{h}
	return compare(hashes, known), hashes
}

func compare(hashes, known []uint64) model.FingerprintResult {
	d := MinDistance(hashes, known)
	return model.FingerprintResult{
		Hashes:      HexAll(hashes),
		MinDistance: d,
		Risk:        RiskForDistance(d),
		Compared:    len(known),
	}
}

// Unknown is the result recorded when a kind could not be fingerprinted.
func Unknown(kind string, err error) model.FingerprintResult {
	metrics.RecordFingerprintFailure(kind)
	return model.FingerprintResult{
		Hashes:      []string{},
		MinDistance: NoMatch,
		Risk:        model.RiskUnknown,
		Error:       err.Error(),
	}
}
