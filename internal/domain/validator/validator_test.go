package validator_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShagaDAO/gap/internal/domain/model"
	"github.com/ShagaDAO/gap/internal/domain/profile"
	"github.com/ShagaDAO/gap/internal/domain/shard"
	"github.com/ShagaDAO/gap/internal/domain/validator"
	"github.com/parquet-go/parquet-go"
	. "github.com/smartystreets/goconvey/convey"
)

// fixture is a shard under construction. Hashes are computed over every
// member when it is written unless a test sets hashes explicitly.
type fixture struct {
	meta   map[string]any
	files  map[string]string
	hashes map[string]any
}

func newFixture() *fixture {
	var lines []string
	for i := 0; i <= 20; i++ {
		typ := "mouse"
		if i%2 == 0 {
			typ = "key"
		}
		lines = append(lines, fmt.Sprintf(`{"t_us":%d,"type":%q,"key":"W","state":"down"}`, i*50_000, typ))
	}
	return &fixture{
		meta: map[string]any{
			"schema_version": "0.2.0",
			"profile":        "wayfarer-owl",
			"session_id":     "s-1",
			"title":          map[string]any{"name": "game"},
			"capture":        map[string]any{},
			"display":        map[string]any{"resolution": "1920x1080", "fps": 60},
			"video":          map[string]any{"bitrate_mbps": 25, "cfr_enforced": true},
			"controls":       map[string]any{"sample_rate_hz": 20},
			"timing":         map[string]any{"t0_us": 0},
			"privacy":        map[string]any{"mic_recorded": false},
			"rights":         map[string]any{},
		},
		files: map[string]string{
			"video.mp4":      strings.Repeat("frame", 64),
			"controls.jsonl": strings.Join(lines, "\n") + "\n",
		},
	}
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (f *fixture) write(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	put := func(name string, data []byte) {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	sums := map[string]string{}
	if f.meta != nil {
		data, err := json.Marshal(f.meta)
		if err != nil {
			t.Fatal(err)
		}
		put(shard.MetaFile, data)
		sums[shard.MetaFile] = digest(string(data))
	}
	for name, content := range f.files {
		put(name, []byte(content))
		sums[name] = digest(content)
	}
	hashes := f.hashes
	if hashes == nil {
		hashes = map[string]any{
			"sha256":                 sums,
			"frame_watermark_sample": []map[string]any{{"frame_idx": 0, "proof": "p"}},
		}
	}
	data, err := json.Marshal(hashes)
	if err != nil {
		t.Fatal(err)
	}
	put(shard.HashesFile, data)
	return dir
}

func joined(list []string) string { return strings.Join(list, "\n") }

func TestValidate(t *testing.T) {
	ctx := context.Background()
	owl := validator.RunOptions{Profile: profile.Owl}

	Convey("Given a well-formed owl shard", t, func() {
		f := newFixture()
		v := validator.New()

		Convey("Every stage passes and sync stats are attached", func() {
			out, err := v.Validate(ctx, f.write(t), owl)
			So(err, ShouldBeNil)
			rep := out.Report
			So(rep.Errors, ShouldBeEmpty)
			So(rep.Warnings, ShouldBeEmpty)
			So(rep.Valid, ShouldBeTrue)
			for _, s := range model.Stages {
				So(rep.Passed(s), ShouldBeTrue)
			}
			So(rep.NotRun, ShouldBeEmpty)
			So(rep.SyncStats, ShouldNotBeNil)
			So(rep.SyncStats.Samples, ShouldEqual, 21)
			So(out.Meta, ShouldNotBeNil)
			So(out.Controls.Events, ShouldHaveLength, 21)
			So(filepath.Base(out.VideoPath), ShouldEqual, "video.mp4")
		})

		Convey("Out-of-order timestamps fail the controls stage", func() {
			f.files["controls.jsonl"] = "{\"t_us\":100,\"type\":\"key\"}\n{\"t_us\":200,\"type\":\"key\"}\n{\"t_us\":150,\"type\":\"key\"}\n"
			out, err := v.Validate(ctx, f.write(t), owl)
			So(err, ShouldBeNil)
			So(out.Report.Valid, ShouldBeFalse)
			So(out.Report.Passed(model.StageControls), ShouldBeFalse)
			So(joined(out.Report.Errors), ShouldContainSubstring, "QAT FAIL: Timestamps not strictly monotonic")
			So(out.Report.SyncStats, ShouldBeNil)
		})

		Convey("A repeated timestamp is not strictly increasing", func() {
			f.files["controls.jsonl"] = "{\"t_us\":100,\"type\":\"key\"}\n{\"t_us\":100,\"type\":\"key\"}\n"
			out, err := v.Validate(ctx, f.write(t), owl)
			So(err, ShouldBeNil)
			So(joined(out.Report.Errors), ShouldContainSubstring, "not strictly monotonic")
		})

		Convey("Flipping one byte of a hashed file names that file", func() {
			dir := f.write(t)
			p := filepath.Join(dir, "video.mp4")
			data, err := os.ReadFile(p)
			So(err, ShouldBeNil)
			data[3] ^= 0x01
			So(os.WriteFile(p, data, 0o600), ShouldBeNil)

			out, err := v.Validate(ctx, dir, owl)
			So(err, ShouldBeNil)
			So(out.Report.Passed(model.StageHashes), ShouldBeFalse)
			So(out.Report.Errors, ShouldHaveLength, 1)
			So(out.Report.Errors[0], ShouldStartWith, "Hash mismatch for video.mp4: expected ")
		})

		Convey("Manifest entries for absent files only warn", func() {
			f.hashes = map[string]any{
				"sha256":                 map[string]string{"netstats.json": digest("x")},
				"frame_watermark_sample": []any{},
			}
			out, err := v.Validate(ctx, f.write(t), owl)
			So(err, ShouldBeNil)
			So(out.Report.Valid, ShouldBeTrue)
			So(out.Report.Warnings, ShouldContain, "Hash entry for non-existent file: netstats.json")
		})

		Convey("Manifest entries outside the shard are security errors", func() {
			f.hashes = map[string]any{
				"sha256":                 map[string]string{"../../etc/passwd": digest("x")},
				"frame_watermark_sample": []any{},
			}
			out, err := v.Validate(ctx, f.write(t), owl)
			So(err, ShouldBeNil)
			So(out.Report.Valid, ShouldBeFalse)
			So(joined(out.Report.Errors), ShouldContainSubstring, "escapes shard root")
			So(out.Report.Issues[0].Category, ShouldEqual, model.CategorySecurity)
		})

		Convey("A manifest without a sha256 section fails", func() {
			f.hashes = map[string]any{"frame_watermark_sample": []any{}}
			out, err := v.Validate(ctx, f.write(t), owl)
			So(err, ShouldBeNil)
			So(out.Report.Errors, ShouldContain, "hashes.json missing sha256 section")
		})

		Convey("Missing structural files skip the dependent stages", func() {
			dir := f.write(t)
			So(os.Remove(filepath.Join(dir, shard.HashesFile)), ShouldBeNil)
			So(os.Remove(filepath.Join(dir, "video.mp4")), ShouldBeNil)

			out, err := v.Validate(ctx, dir, owl)
			So(err, ShouldBeNil)
			rep := out.Report
			So(rep.Errors, ShouldContain, "Required file missing: hashes.json")
			So(joined(rep.Errors), ShouldContainSubstring, "No video file found. Expected one of:")
			So(rep.NotRun, ShouldResemble, []model.Stage{model.StageMeta, model.StageControls, model.StageHashes})
			So(rep.Ran(model.StageMeta), ShouldBeFalse)
			So(rep.Ran(model.StageProfileSpecific), ShouldBeTrue)
			So(rep.Passed(model.StageProfileSpecific), ShouldBeTrue)
		})

		Convey("Several video files warn and still validate", func() {
			f.files["video.mkv"] = "other"
			out, err := v.Validate(ctx, f.write(t), owl)
			So(err, ShouldBeNil)
			So(out.Report.Valid, ShouldBeTrue)
			So(joined(out.Report.Warnings), ShouldContainSubstring, "Multiple video files found")
		})

		Convey("An oversized video is rejected before parsing", func() {
			small := validator.New(validator.WithMaxVideoBytes(16))
			out, err := small.Validate(ctx, f.write(t), owl)
			So(err, ShouldBeNil)
			So(joined(out.Report.Errors), ShouldContainSubstring, "video.mp4 too large")
			So(out.Report.NotRun, ShouldHaveLength, 3)
		})

		Convey("A symlinked member is refused", func() {
			dir := f.write(t)
			outside := filepath.Join(t.TempDir(), "elsewhere.mp4")
			So(os.WriteFile(outside, []byte("x"), 0o600), ShouldBeNil)
			So(os.Remove(filepath.Join(dir, "video.mp4")), ShouldBeNil)
			So(os.Symlink(outside, filepath.Join(dir, "video.mp4")), ShouldBeNil)

			out, err := v.Validate(ctx, dir, owl)
			So(err, ShouldBeNil)
			So(joined(out.Report.Errors), ShouldContainSubstring, "Refusing non-regular shard member: video.mp4")
		})

		Convey("A controls cap aborts the read", func() {
			capped := validator.New(validator.WithLimits(shard.Limits{MaxRecords: 5}))
			out, err := capped.Validate(ctx, f.write(t), owl)
			So(err, ShouldBeNil)
			So(out.Report.Passed(model.StageControls), ShouldBeFalse)
			So(joined(out.Report.Errors), ShouldContainSubstring, "Failed to load controls.jsonl")
		})

		Convey("Too few records for the declared rate warn about drift", func() {
			f.meta["controls"] = map[string]any{}
			out, err := v.Validate(ctx, f.write(t), owl)
			So(err, ShouldBeNil)
			So(out.Report.Valid, ShouldBeTrue)
			So(out.Report.Warnings, ShouldContain, "Potential timestamp drift: expected ~60 samples, got 21")
		})

		Convey("Mic capture is forbidden by the owl profile", func() {
			f.meta["privacy"] = map[string]any{"mic_recorded": true}
			out, err := v.Validate(ctx, f.write(t), owl)
			So(err, ShouldBeNil)
			So(out.Report.Errors, ShouldContain, "wayfarer-owl profile prohibits mic recording")
			So(out.Report.Passed(model.StageProfileSpecific), ShouldBeFalse)
			So(out.Report.Passed(model.StageMeta), ShouldBeTrue)
		})

		Convey("Low bitrate is advisory unless strict", func() {
			f.meta["video"] = map[string]any{"bitrate_mbps": 10, "cfr_enforced": true}
			dir := f.write(t)

			out, err := v.Validate(ctx, dir, owl)
			So(err, ShouldBeNil)
			So(out.Report.Valid, ShouldBeTrue)
			So(out.Report.Warnings, ShouldContain, "wayfarer-owl baseline expects ~25 Mbps, got 10 Mbps (advisory)")

			out, err = v.Validate(ctx, dir, validator.RunOptions{Profile: profile.Owl, Strict: true})
			So(err, ShouldBeNil)
			So(out.Report.Valid, ShouldBeFalse)
			So(out.Report.Errors, ShouldContain, "wayfarer-owl baseline expects ~25 Mbps, got 10 Mbps")
		})

		Convey("Baseline targets only apply to the exact profile name", func() {
			f.meta["display"] = map[string]any{"resolution": "1280x720", "fps": 30}
			dir := f.write(t)

			out, err := v.Validate(ctx, dir, owl)
			So(err, ShouldBeNil)
			So(out.Report.Warnings, ShouldContain, "wayfarer-owl baseline expects 1920x1080, got 1280x720")

			out, err = v.Validate(ctx, dir, validator.RunOptions{Profile: "wayfarer-owl-720p"})
			So(err, ShouldBeNil)
			So(joined(out.Report.Warnings), ShouldNotContainSubstring, "baseline expects")
		})

		Convey("An unsupported schema version is an error", func() {
			f.meta["schema_version"] = "0.1.0"
			out, err := v.Validate(ctx, f.write(t), owl)
			So(err, ShouldBeNil)
			So(out.Report.Errors, ShouldContain, "Unsupported schema_version: 0.1.0")
		})

		Convey("Schema validation reports missing fields", func() {
			delete(f.meta, "session_id")
			out, err := v.Validate(ctx, f.write(t), owl)
			So(err, ShouldBeNil)
			So(out.Report.Passed(model.StageMeta), ShouldBeFalse)
			So(joined(out.Report.Errors), ShouldContainSubstring, "session_id")
		})

		Convey("Manual field checks apply without a schema", func() {
			manual := validator.New(validator.WithMetaSchema(nil))
			delete(f.meta, "session_id")
			f.meta["rights"] = "all"
			out, err := manual.Validate(ctx, f.write(t), owl)
			So(err, ShouldBeNil)
			So(out.Report.Errors, ShouldContain, "meta.json missing required field: session_id")
			So(out.Report.Errors, ShouldContain, "meta.json field rights should be an object")
		})

		Convey("A cancelled context aborts validation", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			out, err := v.Validate(cctx, f.write(t), owl)
			So(err, ShouldEqual, context.Canceled)
			So(out, ShouldBeNil)
		})
	})

	Convey("Given a columnar shard without a profile", t, func() {
		f := newFixture()
		delete(f.files, "controls.jsonl")
		dir := f.write(t)
		rows := make([]shard.ControlRow, 0, 21)
		for i := 0; i <= 20; i++ {
			rows = append(rows, shard.ControlRow{TsUs: int64(i) * 50_000, PlayerID: "p1", Device: "kbm"})
		}
		So(parquet.WriteFile(filepath.Join(dir, shard.ControlsParquet), rows), ShouldBeNil)

		Convey("It validates and reports sync stats", func() {
			out, err := validator.New().Validate(ctx, dir, validator.RunOptions{})
			So(err, ShouldBeNil)
			So(out.Report.Errors, ShouldBeEmpty)
			So(out.Report.Valid, ShouldBeTrue)
			So(out.Controls.Format, ShouldEqual, shard.FormatParquet)
			So(out.Report.SyncStats, ShouldNotBeNil)
		})

		Convey("The owl profile warns about the format", func() {
			out, err := validator.New().Validate(ctx, dir, validator.RunOptions{Profile: profile.Owl})
			So(err, ShouldBeNil)
			So(out.Report.Warnings, ShouldContain, "Controls file format doesn't match profile wayfarer-owl")
		})
	})
}

func TestComputeSyncStats(t *testing.T) {
	Convey("Given timestamps against a 100fps clock", t, func() {
		stats := validator.ComputeSyncStats([]int64{0, 2_000, 5_000, 13_000}, 100, 0)

		Convey("Deltas are measured to the nearest frame", func() {
			So(stats.Samples, ShouldEqual, 4)
			So(stats.MeanDeltaMS, ShouldAlmostEqual, 2.5, 1e-9)
			So(stats.MedianDeltaMS, ShouldAlmostEqual, 2.5, 1e-9)
			So(stats.MaxDeltaMS, ShouldAlmostEqual, 5.0, 1e-9)
			So(stats.P95DeltaMS, ShouldAlmostEqual, 4.7, 1e-9)
			So(stats.Within8msPct, ShouldAlmostEqual, 100.0, 1e-9)
		})
	})

	Convey("Nothing is measured without a frame rate", t, func() {
		So(validator.ComputeSyncStats([]int64{1, 2}, 0, 0), ShouldBeNil)
		So(validator.ComputeSyncStats(nil, 60, 0), ShouldBeNil)
	})
}
