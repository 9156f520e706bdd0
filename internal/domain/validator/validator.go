// Package validator runs the Quality Acceptance Tests over a shard
// directory and produces a ValidationReport.
//
// Stages run in a fixed order: file_structure, then meta, controls and
// hashes (only when the structure passed), then profile_specific, which
// always runs. Every finding is accumulated; nothing short-circuits except
// cancellation.
package validator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ShagaDAO/gap/internal/domain/model"
	"github.com/ShagaDAO/gap/internal/domain/pathguard"
	"github.com/ShagaDAO/gap/internal/domain/profile"
	"github.com/ShagaDAO/gap/internal/domain/shard"
	"github.com/ShagaDAO/gap/pkg/logger"
	"github.com/ShagaDAO/gap/pkg/metrics"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks shards. It holds no per-run state and is safe for
// concurrent use.
type Validator struct {
	limits        shard.Limits
	maxVideoBytes int64
	registry      *profile.Registry
	schema        *jsonschema.Schema
	schemaSet     bool
	driftRateHz   float64
	hashWorkers   int
	log           logger.Logger
}

// RunOptions select the profile and strictness of one run.
type RunOptions struct {
	Profile string
	Strict  bool
}

// Outcome is the report plus the decoded pieces later pipeline stages reuse.
type Outcome struct {
	Report *model.ValidationReport
	Layout *shard.Layout
	// Meta is nil when meta.json could not be read.
	Meta *shard.Meta
	// Controls is nil when the control stream could not be read.
	Controls *shard.Controls
	// VideoPath is the guarded path of the video file, empty when absent.
	VideoPath string
}

// New builds a Validator. The embedded meta schema is used unless
// WithMetaSchema says otherwise.
func New(opts ...Option) *Validator {
	v := &Validator{
		limits:        shard.DefaultLimits(),
		maxVideoBytes: defaultMaxVideoBytes,
		registry:      profile.DefaultRegistry(),
		driftRateHz:   defaultDriftRateHz,
		hashWorkers:   defaultHashWorkers,
		log:           logger.Discard(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if !v.schemaSet {
		s, err := CompileMetaSchema(embeddedMetaSchema)
		if err != nil {
			v.log.Warn(context.Background(), "meta schema unavailable, using field checks", logger.Error(err))
		}
		v.schema = s
	}
	return v
}

// Validate checks the shard in dir. The returned error is non-nil only when
// ctx ends; every shard problem is reported in the Outcome.
func (v *Validator) Validate(ctx context.Context, dir string, opts RunOptions) (*Outcome, error) {
	r := &run{
		v:      v,
		ctx:    ctx,
		dir:    dir,
		opts:   opts,
		checks: make(map[model.Stage]bool, len(model.Stages)),
	}

	r.stage(model.StageFileStructure, r.checkFileStructure)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.checks[model.StageFileStructure] {
		r.stage(model.StageMeta, r.checkMeta)
		r.stage(model.StageControls, r.checkControls)
		r.stage(model.StageHashes, r.checkHashes)
	} else {
		r.notRun = append(r.notRun, model.StageMeta, model.StageControls, model.StageHashes)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.stage(model.StageProfileSpecific, r.checkProfile)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Outcome{Report: r.report(), Layout: r.layout, Meta: r.meta(), Controls: r.controls, VideoPath: r.videoPath}
	if r.checks[model.StageMeta] && r.checks[model.StageControls] && out.Meta != nil && r.controls != nil && out.Meta.Display.FPS > 0 {
		out.Report.SyncStats = ComputeSyncStats(r.controls.Timestamps(), out.Meta.Display.FPS, out.Meta.Timing.T0US)
	}

	metrics.RecordValidation(out.Report.Valid)
	v.log.Info(ctx, "shard validated",
		logger.String("shard", filepath.Base(dir)),
		logger.String("profile", opts.Profile),
		logger.Bool("valid", out.Report.Valid),
		logger.Int("errors", len(out.Report.Errors)),
		logger.Int("warnings", len(out.Report.Warnings)))
	return out, nil
}

// run is the mutable state of one validation.
type run struct {
	v    *Validator
	ctx  context.Context
	dir  string
	opts RunOptions

	guard     *pathguard.Guard
	layout    *shard.Layout
	metaDoc   *shard.MetaDocument
	controls  *shard.Controls
	videoPath string

	issues []model.Issue
	checks map[model.Stage]bool
	notRun []model.Stage
	cur    model.Stage
}

func (r *run) stage(s model.Stage, fn func()) {
	start := time.Now()
	r.cur = s
	before := r.errorCount()
	fn()
	r.checks[s] = r.errorCount() == before
	metrics.ObserveStage(string(s), time.Since(start))
}

func (r *run) errorCount() int {
	n := 0
	for _, i := range r.issues {
		if i.Severity == model.SeverityError {
			n++
		}
	}
	return n
}

func (r *run) add(sev model.Severity, cat model.Category, format string, args ...any) {
	r.issues = append(r.issues, model.Issue{Stage: r.cur, Category: cat, Severity: sev, Message: fmt.Sprintf(format, args...)})
}

func (r *run) fail(cat model.Category, format string, args ...any) {
	r.add(model.SeverityError, cat, format, args...)
}

func (r *run) warn(cat model.Category, format string, args ...any) {
	r.add(model.SeverityWarning, cat, format, args...)
}

func (r *run) report() *model.ValidationReport {
	rep := &model.ValidationReport{
		Profile:  r.opts.Profile,
		Strict:   r.opts.Strict,
		Errors:   []string{},
		Warnings: []string{},
		Checks:   r.checks,
		NotRun:   r.notRun,
		Issues:   r.issues,
	}
	if rep.Issues == nil {
		rep.Issues = []model.Issue{}
	}
	for _, i := range r.issues {
		metrics.RecordFinding(string(i.Category), string(i.Severity))
		if i.Severity == model.SeverityError {
			rep.Errors = append(rep.Errors, i.Message)
		} else {
			rep.Warnings = append(rep.Warnings, i.Message)
		}
	}
	rep.Valid = len(rep.Errors) == 0
	return rep
}
