package validator

import (
	"encoding/json"
	"errors"
	"slices"

	"github.com/ShagaDAO/gap/internal/domain/model"
	"github.com/ShagaDAO/gap/internal/domain/pathguard"
	"github.com/ShagaDAO/gap/internal/domain/profile"
	"github.com/ShagaDAO/gap/internal/domain/shard"
)

// driftTolerance is the fraction by which the record count may differ from
// the expected sample count before a warning is raised.
const driftTolerance = 0.1

func (r *run) checkFileStructure() {
	g, err := pathguard.New(r.dir)
	if err != nil {
		r.fail(model.CategoryStructural, "Shard directory unavailable: %v", err)
		return
	}
	r.guard = g
	l, err := shard.Discover(g.Root())
	if err != nil {
		r.fail(model.CategoryStructural, "Cannot list shard directory: %v", err)
		return
	}
	r.layout = l

	for _, name := range l.Irregular {
		r.fail(model.CategorySecurity, "Refusing non-regular shard member: %s", name)
	}
	if !l.HasMeta && !slices.Contains(l.Irregular, shard.MetaFile) {
		r.fail(model.CategoryStructural, "Required file missing: %s", shard.MetaFile)
	}
	if !l.HasHashes && !slices.Contains(l.Irregular, shard.HashesFile) {
		r.fail(model.CategoryStructural, "Required file missing: %s", shard.HashesFile)
	}

	switch video, ok := l.Video(); {
	case !ok:
		r.fail(model.CategoryStructural, "No video file found. Expected one of: %v", shard.VideoFiles)
	default:
		if len(l.Videos) > 1 {
			r.warn(model.CategoryStructural, "Multiple video files found: %v", l.Videos)
		}
		if size := l.Sizes[video]; size > r.v.maxVideoBytes {
			r.fail(model.CategoryStructural, "%s too large: %.1fMB > %.1fMB", video, mib(size), mib(r.v.maxVideoBytes))
			break
		}
		p, err := g.Resolve(video)
		if err != nil {
			r.fail(model.CategorySecurity, "%s: %v", video, err)
			break
		}
		r.videoPath = p
	}

	expected := r.v.registry.ExpectedControls(r.opts.Profile)
	switch {
	case len(l.Controls) == 0:
		r.fail(model.CategoryStructural, "No controls file found. Expected one of: %v", shard.ControlsFiles)
	case !slices.Contains(l.Controls, expected.FileName()) && r.opts.Profile != "":
		r.warn(model.CategoryProfile, "Controls file format doesn't match profile %s", r.opts.Profile)
	}
	if len(l.Controls) > 1 {
		r.warn(model.CategoryStructural, "Multiple controls files found: %v", l.Controls)
	}
}

// requiredMetaFields lists the top-level meta.json fields and whether each
// must be an object (true) or a string (false).
var requiredMetaFields = []struct {
	name   string
	object bool
}{
	{"schema_version", false},
	{"session_id", false},
	{"title", true},
	{"capture", true},
	{"display", true},
	{"timing", true},
	{"privacy", true},
	{"rights", true},
}

func (r *run) checkMeta() {
	doc, err := r.loadMeta()
	if err != nil {
		r.fail(model.CategorySchema, "Failed to load meta.json: %v", err)
		return
	}
	r.metaDoc = doc
	before := r.errorCount()

	if r.v.schema != nil {
		if err := r.v.schema.Validate(doc.Raw); err != nil {
			for _, msg := range schemaMessages(err) {
				r.fail(model.CategorySchema, "%s", msg)
			}
		}
	} else {
		for _, f := range requiredMetaFields {
			v, ok := doc.Raw[f.name]
			switch {
			case !ok:
				r.fail(model.CategorySchema, "meta.json missing required field: %s", f.name)
			case f.object:
				if _, isObj := v.(map[string]any); !isObj {
					r.fail(model.CategorySchema, "meta.json field %s should be an object", f.name)
				}
			default:
				if _, isStr := v.(string); !isStr {
					r.fail(model.CategorySchema, "meta.json field %s should be a string", f.name)
				}
			}
		}
	}

	if v, _ := doc.Raw["schema_version"].(string); v != shard.SchemaVersion {
		r.fail(model.CategorySchema, "Unsupported schema_version: %v", doc.Raw["schema_version"])
	}
	if doc.TypedErr != nil && r.errorCount() == before {
		r.fail(model.CategorySchema, "meta.json has fields of the wrong type: %v", doc.TypedErr)
	}
}

// loadMeta reads meta.json through the guard once per run.
func (r *run) loadMeta() (*shard.MetaDocument, error) {
	if r.metaDoc != nil {
		return r.metaDoc, nil
	}
	if r.guard == nil {
		return nil, errors.New("shard directory unavailable")
	}
	p, err := r.guard.Resolve(shard.MetaFile)
	if err != nil {
		return nil, err
	}
	return shard.LoadMeta(p, r.v.limits.MaxMetaBytes)
}

// meta returns the typed metadata when it decoded cleanly.
func (r *run) meta() *shard.Meta {
	if r.metaDoc == nil || r.metaDoc.TypedErr != nil {
		return nil
	}
	return &r.metaDoc.Meta
}

func (r *run) checkControls() {
	name, ok := r.layout.ControlsFor(r.v.registry.ExpectedControls(r.opts.Profile))
	if !ok {
		r.fail(model.CategoryStructural, "No controls file found")
		return
	}
	p, err := r.guard.Resolve(name)
	if err != nil {
		r.fail(model.CategorySecurity, "%s: %v", name, err)
		return
	}
	c, err := shard.ReadControls(r.ctx, p, r.v.limits)
	switch {
	case r.ctx.Err() != nil:
		return
	case errors.Is(err, shard.ErrMissingColumn):
		r.fail(model.CategorySchema, "Controls missing required column: ts_us")
		return
	case errors.Is(err, shard.ErrMalformed):
		r.fail(model.CategorySchema, "Failed to load %s: %v", name, err)
		return
	case err != nil:
		r.fail(model.CategoryStructural, "Failed to load %s: %v", name, err)
		return
	}

	if c.Format == shard.FormatJSONL {
		if !c.Columns["t_us"] {
			r.fail(model.CategorySchema, "JSONL controls missing t_us timestamp field")
			return
		}
		if !c.Columns["type"] {
			r.fail(model.CategorySchema, "Controls missing required column: type")
		}
	} else {
		for _, col := range []string{"player_id", "device"} {
			if !c.Columns[col] {
				r.fail(model.CategorySchema, "Controls missing required column: %s", col)
			}
		}
	}
	r.controls = c

	ts := c.Timestamps()
	for i := 1; i < len(ts); i++ {
		if ts[i] <= ts[i-1] {
			r.fail(model.CategoryTemporal, "QAT FAIL: Timestamps not strictly monotonic (record %d: %d after %d)", i, ts[i], ts[i-1])
			break
		}
	}
	r.checkDrift(ts)
}

// checkDrift compares the record count with what the declared (or assumed)
// sample rate predicts over the recorded span.
func (r *run) checkDrift(ts []int64) {
	if len(ts) < 2 {
		return
	}
	rate := r.v.driftRateHz
	if m := r.meta(); m != nil && m.Controls.SampleRateHz > 0 {
		rate = m.Controls.SampleRateHz
	}
	expected := float64(ts[len(ts)-1]-ts[0]) / 1e6 * rate
	if expected <= 0 {
		return
	}
	actual := float64(len(ts))
	if diff := actual - expected; diff/expected > driftTolerance || -diff/expected > driftTolerance {
		r.warn(model.CategoryTemporal, "Potential timestamp drift: expected ~%.0f samples, got %d", expected, len(ts))
	}
}

func (r *run) checkProfile() {
	if r.opts.Profile == "" {
		return
	}
	p, ok := r.v.registry.Lookup(r.opts.Profile)
	if !ok {
		r.warn(model.CategoryProfile, "Unknown profile %s: only baseline checks applied", r.opts.Profile)
		return
	}
	if r.metaDoc == nil {
		if doc, err := r.loadMeta(); err == nil {
			r.metaDoc = doc
		}
	}
	in := profile.Input{Requested: r.opts.Profile, Strict: r.opts.Strict, Meta: r.meta()}
	if p.EventStream() {
		in.FirstEvent = r.firstEvent(p)
	}
	r.issues = append(r.issues, p.Check(in)...)
}

// firstEvent returns the first JSONL record, reading it directly when the
// controls stage did not load the stream.
func (r *run) firstEvent(p profile.Profile) map[string]json.RawMessage {
	if r.controls != nil && r.controls.Format == shard.FormatJSONL {
		return r.controls.First
	}
	if r.guard == nil || r.layout == nil || !slices.Contains(r.layout.Controls, shard.ControlsJSONLFile) {
		return nil
	}
	path, err := r.guard.Resolve(shard.ControlsJSONLFile)
	if err == nil {
		var first map[string]json.RawMessage
		if first, err = shard.FirstJSONLRecord(path, r.v.limits.MaxControlsBytes); err == nil {
			return first
		}
	}
	r.warn(model.CategoryProfile, "Could not validate %s controls format: %v", p.Name, err)
	return nil
}

func mib(n int64) float64 { return float64(n) / (1 << 20) }
