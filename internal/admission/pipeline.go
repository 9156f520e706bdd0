// Package admission runs a shard submission end to end: archive extraction,
// validation, fingerprinting, scoring and the cache update.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShagaDAO/gap/internal/domain/archive"
	"github.com/ShagaDAO/gap/internal/domain/dedupe"
	"github.com/ShagaDAO/gap/internal/domain/fingerprint"
	"github.com/ShagaDAO/gap/internal/domain/model"
	"github.com/ShagaDAO/gap/internal/domain/pathguard"
	"github.com/ShagaDAO/gap/internal/domain/scoring"
	"github.com/ShagaDAO/gap/internal/domain/shard"
	"github.com/ShagaDAO/gap/internal/domain/validator"
	"github.com/ShagaDAO/gap/pkg/logger"
	"github.com/ShagaDAO/gap/pkg/metrics"
)

const (
	defaultTimeout = 5 * time.Minute
	tempPrefix     = "gap-admit-"
)

// Pipeline wires the admission components. It holds no per-submission
// state and is safe for concurrent use.
type Pipeline struct {
	validator *validator.Validator
	engine    *fingerprint.Engine
	scorer    *scoring.Scorer
	extractor *archive.Extractor
	cache     dedupe.Cache
	timeout   time.Duration
	log       logger.Logger
}

// New builds a Pipeline. Without WithCache it compares against an empty
// in-memory cache.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		timeout: defaultTimeout,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.validator == nil {
		p.validator = validator.New(validator.WithLogger(p.log))
	}
	if p.engine == nil {
		p.engine = fingerprint.New(fingerprint.WithLogger(p.log))
	}
	if p.scorer == nil {
		p.scorer = scoring.NewScorer()
	}
	if p.extractor == nil {
		p.extractor = archive.NewExtractor(archive.WithLogger(p.log))
	}
	if p.cache == nil {
		p.cache = dedupe.NewMemoryCache()
	}
	return p
}

// Cache returns the fingerprint cache in use.
func (p *Pipeline) Cache() dedupe.Cache { return p.cache }

// Admit runs one submission. Findings about the shard land in the report;
// the error is reserved for inputs that could not be opened, cancellation
// and timeouts.
func (p *Pipeline) Admit(ctx context.Context, req model.AdmissionRequest) (*model.AdmissionReport, error) {
	start := time.Now()
	src, err := ResolveSource(req.Source)
	if err != nil {
		return nil, err
	}

	ctx, cancel := p.bound(ctx)
	defer cancel()

	report := &model.AdmissionReport{Source: req.Source}
	err = p.open(ctx, src, report, func(ctx context.Context, dir string) error {
		return p.run(ctx, dir, req, report)
	})
	if err != nil {
		return nil, p.timeoutErr(ctx, err)
	}

	report.DurationMS = time.Since(start).Milliseconds()
	action := "invalid"
	if report.Decision != nil {
		action = string(report.Decision.Action)
	}
	metrics.RecordAdmission(action)
	metrics.ObserveAdmissionLatency(time.Since(start))
	p.log.Info(ctx, "admission complete",
		logger.String("source", src.Name()),
		logger.Bool("valid", report.Validation.Valid),
		logger.String("action", action),
		logger.Bool("cache_updated", report.CacheUpdated),
		logger.Duration("elapsed", time.Since(start)))
	return report, nil
}

// Validate runs only the quality checks on a submission, unpacking it
// first when it is an archive. The returned report carries no fingerprints.
func (p *Pipeline) Validate(ctx context.Context, req model.AdmissionRequest) (*model.AdmissionReport, error) {
	start := time.Now()
	src, err := ResolveSource(req.Source)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	report := &model.AdmissionReport{Source: req.Source}
	err = p.open(ctx, src, report, func(ctx context.Context, dir string) error {
		out, err := p.validator.Validate(ctx, dir, validator.RunOptions{Profile: req.Profile, Strict: req.Strict})
		if err != nil {
			return err
		}
		report.Validation = out.Report
		return nil
	})
	if err != nil {
		return nil, p.timeoutErr(ctx, err)
	}
	report.Decision, report.Acceptance = nil, nil
	report.DurationMS = time.Since(start).Milliseconds()
	return report, nil
}

// Enrollment is the outcome of adding a shard to the cache.
type Enrollment struct {
	Video    int
	Controls int
	Added    int
}

// Enroll fingerprints a shard and merges its fingerprints into the cache
// without scoring it.
func (p *Pipeline) Enroll(ctx context.Context, source string) (*Enrollment, error) {
	src, err := ResolveSource(source)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	var out *Enrollment
	report := &model.AdmissionReport{Source: source}
	err = p.open(ctx, src, report, func(ctx context.Context, dir string) error {
		res, err := p.validator.Validate(ctx, dir, validator.RunOptions{})
		if err != nil {
			return err
		}
		add := p.fingerprints(ctx, res, dedupe.Snapshot{}, nil)
		if err := ctx.Err(); err != nil {
			return err
		}
		if add.Len() == 0 {
			return fmt.Errorf("%w: %s", ErrNothingToEnroll, src.Name())
		}
		n, err := p.cache.Merge(ctx, add)
		if err != nil {
			return err
		}
		out = &Enrollment{Video: len(add.Video), Controls: len(add.Controls), Added: n}
		return nil
	})
	if err != nil {
		return nil, p.timeoutErr(ctx, err)
	}
	if out == nil {
		// The archive was refused before a shard could be read.
		reason := src.Name()
		if v := report.Validation; v != nil && len(v.Errors) > 0 {
			reason = v.Errors[0]
		}
		return nil, fmt.Errorf("%w: %s", ErrNothingToEnroll, reason)
	}
	return out, nil
}

func (p *Pipeline) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

func (p *Pipeline) timeoutErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, p.timeout)
	}
	return err
}

// open hands fn a directory holding the shard. Archives are unpacked into a
// scoped temporary directory that is removed when fn returns. An archive
// refused by a safety guard is recorded on the report and fn is not called.
func (p *Pipeline) open(ctx context.Context, src Source, report *model.AdmissionReport, fn func(ctx context.Context, dir string) error) error {
	if src.Kind == SourceDir {
		return fn(ctx, src.Path)
	}
	return archive.WithTempDir(ctx, tempPrefix, func(ctx context.Context, tmp string) error {
		res, err := p.extractor.Extract(ctx, src.Path, tmp)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !guardViolation(err) {
				return fmt.Errorf("extract %s: %w", src.Name(), err)
			}
			p.log.Warn(ctx, "archive refused",
				logger.String("source", src.Name()), logger.String("reason", archive.Reason(err)))
			refuse(report, model.CategorySecurity, fmt.Sprintf("Archive rejected (%s): %v", archive.Reason(err), err))
			return nil
		}
		report.Extraction = &model.ExtractionSummary{Format: res.Format.String(), Files: res.Files, Bytes: res.Bytes}

		root, err := shard.FindRoot(tmp)
		if err != nil {
			if errors.Is(err, shard.ErrNoShard) {
				refuse(report, model.CategoryStructural, "Archive does not contain a shard (no meta.json found)")
				return nil
			}
			return err
		}
		return fn(ctx, root)
	})
}

func (p *Pipeline) run(ctx context.Context, dir string, req model.AdmissionRequest, report *model.AdmissionReport) error {
	out, err := p.validator.Validate(ctx, dir, validator.RunOptions{Profile: req.Profile, Strict: req.Strict})
	if err != nil {
		return err
	}
	report.Validation = out.Report

	known, err := p.cache.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Warn(ctx, "fingerprint cache unreadable, comparing against nothing", logger.Error(err))
		known = dedupe.Snapshot{}
	}

	add := p.fingerprints(ctx, out, known, report)
	if err := ctx.Err(); err != nil {
		return err
	}
	p.settle(report, out.Report.Valid)

	if req.UpdateCache && admissible(report) && add.Len() > 0 {
		n, err := p.cache.Merge(ctx, add)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			p.log.Error(ctx, "fingerprint cache update failed", logger.Error(err))
			report.CacheError = err.Error()
		default:
			report.CacheUpdated = true
			p.log.Debug(ctx, "fingerprint cache updated", logger.Int("added", n))
		}
	}
	return nil
}

// fingerprints hashes the shard's video and controls and, when report is
// not nil, records the comparison against known. It returns the computed
// hashes.
func (p *Pipeline) fingerprints(ctx context.Context, out *validator.Outcome, known dedupe.Snapshot, report *model.AdmissionReport) dedupe.Snapshot {
	var (
		add      dedupe.Snapshot
		video    model.FingerprintResult
		controls model.FingerprintResult
	)
	if out.VideoPath != "" {
		video, add.Video = p.engine.CheckVideo(ctx, out.VideoPath, known.Video)
	} else {
		video = fingerprint.Unknown(fingerprint.KindVideo, fingerprint.ErrNoInput)
	}
	if out.Controls != nil {
		controls, add.Controls = p.engine.CheckControls(ctx, out.Controls.Inputs(), known.Controls)
	} else {
		controls = fingerprint.Unknown(fingerprint.KindControls, fingerprint.ErrNoInput)
	}
	if report != nil {
		report.Video = &video
		report.Controls = &controls
	}
	return add
}

// settle fills the decision and the acceptance estimate. A report without
// fingerprints is scored as if nothing matched.
func (p *Pipeline) settle(report *model.AdmissionReport, valid bool) {
	vd, cd := fingerprint.NoMatch, fingerprint.NoMatch
	if report.Video != nil {
		vd = report.Video.MinDistance
	}
	if report.Controls != nil {
		cd = report.Controls.MinDistance
	}
	d := p.scorer.Decide(vd, cd)
	report.Decision = &d
	acc := scoring.EstimateAcceptance(valid, &d)
	report.Acceptance = &acc
}

func admissible(r *model.AdmissionReport) bool {
	if r.Validation == nil || !r.Validation.Valid || r.Decision == nil {
		return false
	}
	return r.Decision.Action == model.ActionAccept || r.Decision.Action == model.ActionReview
}

func guardViolation(err error) bool {
	for _, target := range []error{
		archive.ErrTooManyEntries,
		archive.ErrArchiveTooLarge,
		archive.ErrExpansionRatio,
		archive.ErrUnsafeMember,
		archive.ErrMemberSize,
		archive.ErrUnsupportedArchive,
		pathguard.ErrEscapesRoot,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// refuse records a submission that never reached the validator. Nothing
// was fingerprinted, so the report carries no decision.
func refuse(report *model.AdmissionReport, cat model.Category, msg string) {
	report.Validation = refused(cat, msg)
	report.Decision = nil
	acc := scoring.EstimateAcceptance(false, nil)
	report.Acceptance = &acc
}

func refused(cat model.Category, msg string) *model.ValidationReport {
	return &model.ValidationReport{
		Valid:    false,
		Errors:   []string{msg},
		Warnings: []string{},
		Checks:   map[model.Stage]bool{model.StageFileStructure: false},
		NotRun:   []model.Stage{model.StageMeta, model.StageControls, model.StageHashes, model.StageProfileSpecific},
		Issues: []model.Issue{{
			Stage:    model.StageFileStructure,
			Category: cat,
			Severity: model.SeverityError,
			Message:  msg,
		}},
	}
}
